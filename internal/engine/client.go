/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/friendsincode/onair/internal/models"
	"github.com/friendsincode/onair/internal/telemetry"
)

// ClientConfig configures the control-socket client.
type ClientConfig struct {
	// Addr is host:port, or unix:/path for a unix socket.
	Addr             string
	Timeout          time.Duration
	RetryInterval    time.Duration
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// Client drives the engine over its line-oriented control socket. Next and
// gain commands are coalesced so only the latest value is sent; skip and
// jingle commands are delivered in order.
type Client struct {
	*Inbox
	cfg     ClientConfig
	logger  zerolog.Logger
	breaker *gobreaker.CircuitBreaker[string]
	dialer  net.Dialer

	mu   sync.Mutex
	next *string
	mix  *string
	fifo []string
	wake chan struct{}
}

// NewClient creates a control-socket client. Call Run to start delivery.
func NewClient(cfg ClientConfig, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 2 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 15 * time.Second
	}

	c := &Client{
		Inbox:  NewInbox(64),
		cfg:    cfg,
		logger: logger.With().Str("component", "engine").Str("addr", cfg.Addr).Logger(),
		wake:   make(chan struct{}, 1),
	}
	c.breaker = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "engine",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			telemetry.EngineBreakerState.Set(breakerGauge(to))
			c.logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("engine circuit breaker state changed")
		},
	})
	return c
}

func breakerGauge(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// PushNext replaces any pending next command.
func (c *Client) PushNext(item models.QueueItem) {
	line := FormatNext(item.Source)
	c.mu.Lock()
	c.next = &line
	c.mu.Unlock()
	c.signal()
}

// PushMix replaces any pending gain command.
func (c *Client) PushMix(g Gains) {
	line := FormatGains(g)
	c.mu.Lock()
	c.mix = &line
	c.mu.Unlock()
	c.signal()
}

// PlayJingle queues a jingle command.
func (c *Client) PlayJingle(slot int, volume float64, source string) {
	c.enqueue(FormatJingle(slot, volume, source))
}

// Skip queues a skip command.
func (c *Client) Skip() {
	c.enqueue(CommandSkip)
}

func (c *Client) enqueue(line string) {
	c.mu.Lock()
	c.fifo = append(c.fifo, line)
	c.mu.Unlock()
	c.signal()
}

func (c *Client) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Run delivers queued commands until ctx is cancelled. Failed next and gain
// commands are retried unless a newer value replaced them.
func (c *Client) Run(ctx context.Context) error {
	c.logger.Info().Msg("engine client started")
	retry := time.NewTimer(time.Hour)
	retry.Stop()
	defer retry.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("engine client stopped")
			return ctx.Err()
		case <-c.wake:
		case <-retry.C:
		}
		if c.flush(ctx) {
			retry.Reset(c.cfg.RetryInterval)
		}
	}
}

func (c *Client) flush(ctx context.Context) (retry bool) {
	c.mu.Lock()
	next, mix, fifo := c.next, c.mix, c.fifo
	c.next, c.mix, c.fifo = nil, nil, nil
	c.mu.Unlock()

	// Next goes first so a queued skip lands on the freshly pushed track.
	if next != nil {
		if _, err := c.Send(ctx, *next); err != nil {
			c.logger.Warn().Err(err).Msg("push next failed")
			c.restore(&c.next, *next)
			retry = true
		}
	}
	for _, line := range fifo {
		if _, err := c.Send(ctx, line); err != nil {
			c.logger.Warn().Err(err).Str("command", line).Msg("engine command dropped")
		}
	}
	if mix != nil {
		if _, err := c.Send(ctx, *mix); err != nil {
			c.logger.Warn().Err(err).Msg("push mix failed")
			c.restore(&c.mix, *mix)
			retry = true
		}
	}
	return retry
}

func (c *Client) restore(slot **string, line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if *slot == nil {
		*slot = &line
	}
}

// Send performs one synchronous command round trip through the breaker.
func (c *Client) Send(ctx context.Context, line string) (string, error) {
	name := CommandName(line)
	start := time.Now()
	reply, err := c.breaker.Execute(func() (string, error) {
		return c.roundTrip(ctx, line)
	})
	telemetry.EngineCommandDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.EngineCommandsTotal.WithLabelValues(name, "error").Inc()
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: %v", ErrEngine, err)
		}
		return reply, err
	}
	telemetry.EngineCommandsTotal.WithLabelValues(name, "ok").Inc()
	return reply, nil
}

func (c *Client) roundTrip(ctx context.Context, line string) (string, error) {
	network, addr := "tcp", c.cfg.Addr
	if path, ok := strings.CutPrefix(addr, "unix:"); ok {
		network, addr = "unix", path
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	conn, err := c.dialer.DialContext(dialCtx, network, addr)
	if err != nil {
		return "", fmt.Errorf("%w: dial: %v", ErrEngine, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(c.cfg.Timeout))

	if _, err := io.WriteString(conn, line+"\n"); err != nil {
		return "", fmt.Errorf("%w: write: %v", ErrEngine, err)
	}

	var lines []string
	scanner := bufio.NewScanner(conn)
	ended := false
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "END" {
			ended = true
			break
		}
		lines = append(lines, text)
	}
	if !ended {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("%w: read: %v", ErrEngine, err)
		}
		return "", fmt.Errorf("%w: reply not terminated", ErrEngine)
	}

	reply := strings.Join(lines, "\n")
	if strings.Contains(reply, "ERROR") {
		return reply, fmt.Errorf("%w: %s", ErrEngine, reply)
	}
	return reply, nil
}
