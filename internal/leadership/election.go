/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package leadership decides which onair instance drives the engine when
// several run against the same station.
package leadership

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/onair/internal/telemetry"
)

const (
	defaultKey           = "onair:leader:playout"
	defaultLeaseDuration = 15 * time.Second
	defaultRetryInterval = 2 * time.Second
)

// Lock is a lease that at most one holder owns at a time.
type Lock interface {
	// Acquire takes or renews the lease for id. It reports whether id holds it.
	Acquire(ctx context.Context, key, id string, ttl time.Duration) (bool, error)
	// Release drops the lease if id still holds it.
	Release(ctx context.Context, key, id string) error
}

// Config tunes the election.
type Config struct {
	Key           string
	LeaseDuration time.Duration
	// RetryInterval is how often the lease is renewed or contested. It
	// must be well below LeaseDuration.
	RetryInterval time.Duration
	InstanceID    string
}

// Election campaigns for the lease and runs work only while it is held.
type Election struct {
	lock   Lock
	cfg    Config
	logger zerolog.Logger

	mu     sync.RWMutex
	leader bool
}

// New creates an election over lock.
func New(lock Lock, cfg Config, logger zerolog.Logger) *Election {
	if cfg.Key == "" {
		cfg.Key = defaultKey
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = defaultLeaseDuration
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryInterval
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}
	return &Election{
		lock:   lock,
		cfg:    cfg,
		logger: logger.With().Str("component", "leader_election").Str("instance_id", cfg.InstanceID).Logger(),
	}
}

// InstanceID identifies this campaigner.
func (e *Election) InstanceID() string { return e.cfg.InstanceID }

// IsLeader reports whether this instance currently holds the lease.
func (e *Election) IsLeader() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.leader
}

// Run campaigns until ctx ends. While the lease is held, work runs with a
// context that is cancelled as soon as the lease is lost. The lease is
// released on return.
func (e *Election) Run(ctx context.Context, work func(context.Context) error) error {
	e.logger.Info().Dur("lease", e.cfg.LeaseDuration).Msg("starting leader election")

	ticker := time.NewTicker(e.cfg.RetryInterval)
	defer ticker.Stop()

	var (
		cancelWork context.CancelFunc
		done       chan struct{}
	)
	stopWork := func() {
		if cancelWork == nil {
			return
		}
		cancelWork()
		<-done
		cancelWork = nil
	}
	defer func() {
		stopWork()
		e.setLeader(false)
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.lock.Release(releaseCtx, e.cfg.Key, e.cfg.InstanceID); err != nil {
			e.logger.Error().Err(err).Msg("failed to release leadership lease")
		}
	}()

	for {
		held, err := e.lock.Acquire(ctx, e.cfg.Key, e.cfg.InstanceID, e.cfg.LeaseDuration)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			e.logger.Error().Err(err).Msg("failed to acquire leadership lease")
		}
		switch {
		case held && cancelWork == nil:
			e.logger.Info().Msg("acquired leadership")
			e.setLeader(true)
			var workCtx context.Context
			workCtx, cancelWork = context.WithCancel(ctx)
			done = make(chan struct{})
			go func(done chan struct{}) {
				defer close(done)
				if err := work(workCtx); err != nil && !errors.Is(err, context.Canceled) {
					e.logger.Error().Err(err).Msg("leader work exited")
				}
			}(done)
		case !held && cancelWork != nil:
			e.logger.Warn().Msg("lost leadership")
			stopWork()
			e.setLeader(false)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (e *Election) setLeader(leader bool) {
	e.mu.Lock()
	changed := e.leader != leader
	e.leader = leader
	e.mu.Unlock()
	if !changed {
		return
	}
	if leader {
		telemetry.LeaderStatus.Set(1)
		telemetry.LeaderChangesTotal.WithLabelValues("acquired").Inc()
	} else {
		telemetry.LeaderStatus.Set(0)
		telemetry.LeaderChangesTotal.WithLabelValues("lost").Inc()
	}
}

// RedisLock keeps the lease in a Redis key with an expiry.
type RedisLock struct {
	client redis.UniversalClient
}

// NewRedisLock wraps a Redis client.
func NewRedisLock(client redis.UniversalClient) *RedisLock {
	return &RedisLock{client: client}
}

// DialRedisLock connects to addr and verifies the connection.
func DialRedisLock(ctx context.Context, addr, password string, db int) (*RedisLock, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &RedisLock{client: client}, nil
}

// Acquire sets the key if absent, or extends it when id already owns it.
func (l *RedisLock) Acquire(ctx context.Context, key, id string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, key, id, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("set lease: %w", err)
	}
	if ok {
		return true, nil
	}
	owner, err := l.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get lease owner: %w", err)
	}
	if owner != id {
		return false, nil
	}
	if err := l.client.PExpire(ctx, key, ttl).Err(); err != nil {
		return false, fmt.Errorf("renew lease: %w", err)
	}
	return true, nil
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Release deletes the key only if id still owns it.
func (l *RedisLock) Release(ctx context.Context, key, id string) error {
	if err := releaseScript.Run(ctx, l.client, []string{key}, id).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (l *RedisLock) Close() error {
	return l.client.Close()
}
