/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus mirrors in-process events to an external broker so
// dashboards and other services can follow the station without polling.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/onair/internal/events"
)

// SubjectPrefix namespaces every mirrored event.
const SubjectPrefix = "onair.events."

// Publisher delivers one encoded message to a broker subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Ping(ctx context.Context) error
	Close() error
}

// MirrorConfig tunes buffering and the failure breaker.
type MirrorConfig struct {
	Buffer         int
	PublishTimeout time.Duration
	MaxFailures    int
	CheckInterval  time.Duration
}

// DefaultMirrorConfig returns production defaults.
func DefaultMirrorConfig() MirrorConfig {
	return MirrorConfig{
		Buffer:         256,
		PublishTimeout: 2 * time.Second,
		MaxFailures:    5,
		CheckInterval:  30 * time.Second,
	}
}

// Message is the envelope written to the broker.
type Message struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"`
}

// Mirror forwards bus events to a Publisher from a single goroutine.
// Events are dropped when the buffer is full or the broker is failing;
// the in-process bus stays authoritative.
type Mirror struct {
	name   string
	pub    Publisher
	cfg    MirrorConfig
	nodeID string
	logger zerolog.Logger
	queue  chan Message

	mu        sync.Mutex
	failCount int
	suspended bool
	lastCheck time.Time
	dropped   int
}

// NewMirror wraps a publisher.
func NewMirror(name string, pub Publisher, cfg MirrorConfig, logger zerolog.Logger) *Mirror {
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultMirrorConfig().Buffer
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultMirrorConfig().PublishTimeout
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMirrorConfig().MaxFailures
	}
	return &Mirror{
		name:   name,
		pub:    pub,
		cfg:    cfg,
		nodeID: NodeID(),
		logger: logger.With().Str("component", "eventbus").Str("backend", name).Logger(),
		queue:  make(chan Message, cfg.Buffer),
	}
}

// Attach registers the mirror as a hook on bus.
func (m *Mirror) Attach(bus *events.Bus) {
	bus.AddHook(m.enqueue)
}

func (m *Mirror) enqueue(eventType events.EventType, payload events.Payload) {
	msg := Message{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    m.nodeID,
		MessageID: uuid.NewString(),
	}
	select {
	case m.queue <- msg:
	default:
		m.mu.Lock()
		m.dropped++
		m.mu.Unlock()
	}
}

// Dropped reports how many events never reached the worker.
func (m *Mirror) Dropped() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

// Suspended reports whether the breaker is open.
func (m *Mirror) Suspended() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.suspended
}

// Run publishes queued events until ctx is cancelled, then closes the publisher.
func (m *Mirror) Run(ctx context.Context) {
	m.logger.Info().Msg("event mirror started")
	defer func() {
		if err := m.pub.Close(); err != nil {
			m.logger.Error().Err(err).Msg("failed to close event mirror")
		}
		m.logger.Info().Msg("event mirror stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-m.queue:
			m.send(ctx, msg)
		}
	}
}

func (m *Mirror) send(ctx context.Context, msg Message) {
	if !m.ready(ctx) {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		m.logger.Error().Err(err).Str("event_type", string(msg.EventType)).Msg("failed to marshal event")
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, m.cfg.PublishTimeout)
	defer cancel()

	if err := m.pub.Publish(pubCtx, SubjectPrefix+string(msg.EventType), data); err != nil {
		m.logger.Warn().Err(err).Str("event_type", string(msg.EventType)).Msg("failed to mirror event")
		m.handleFailure()
		return
	}

	m.mu.Lock()
	m.failCount = 0
	m.mu.Unlock()
}

// ready reports whether publishing should be attempted, probing the broker
// once per CheckInterval while suspended.
func (m *Mirror) ready(ctx context.Context) bool {
	m.mu.Lock()
	if !m.suspended {
		m.mu.Unlock()
		return true
	}
	if time.Since(m.lastCheck) < m.cfg.CheckInterval {
		m.mu.Unlock()
		return false
	}
	m.lastCheck = time.Now()
	m.mu.Unlock()

	pingCtx, cancel := context.WithTimeout(ctx, m.cfg.PublishTimeout)
	defer cancel()
	if err := m.pub.Ping(pingCtx); err != nil {
		m.logger.Debug().Err(err).Msg("broker still unavailable")
		return false
	}

	m.mu.Lock()
	m.suspended = false
	m.failCount = 0
	m.mu.Unlock()
	m.logger.Info().Msg("broker reachable again, resuming event mirror")
	return true
}

func (m *Mirror) handleFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failCount++
	if m.failCount >= m.cfg.MaxFailures && !m.suspended {
		m.logger.Warn().Int("fail_count", m.failCount).Msg("broker failure threshold reached, suspending event mirror")
		m.suspended = true
		m.lastCheck = time.Now()
	}
}

// NodeID identifies this process in mirrored messages.
func NodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "onair"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// DecodeMessage parses an envelope read from a broker.
func DecodeMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal event message: %w", err)
	}
	return &msg, nil
}
