/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/onair/internal/events"
)

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	failing  bool
	pings    int
	closed   bool
}

func (f *fakePublisher) Publish(_ context.Context, subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("broker down")
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakePublisher) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	if f.failing {
		return errors.New("broker down")
	}
	return nil
}

func (f *fakePublisher) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subjects)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestMirrorForwardsBusEvents(t *testing.T) {
	pub := &fakePublisher{}
	bus := events.NewBus()
	m := NewMirror("fake", pub, DefaultMirrorConfig(), zerolog.Nop())
	m.Attach(bus)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	bus.Publish(events.EventNowPlaying, events.Payload{"title": "Song"})
	bus.Publish(events.EventQueueChanged, events.Payload{"version": 2})
	waitFor(t, func() bool { return pub.count() == 2 })

	pub.mu.Lock()
	if pub.subjects[0] != "onair.events.now_playing" || pub.subjects[1] != "onair.events.queue_changed" {
		t.Fatalf("unexpected subjects: %v", pub.subjects)
	}
	msg, err := DecodeMessage(pub.payloads[0])
	pub.mu.Unlock()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.EventType != events.EventNowPlaying || msg.Payload["title"] != "Song" || msg.NodeID == "" || msg.MessageID == "" {
		t.Fatalf("unexpected envelope: %+v", msg)
	}

	cancel()
	<-done
	if !pub.closed {
		t.Fatal("publisher not closed on shutdown")
	}
}

func TestMirrorSuspendsAfterFailuresAndResumes(t *testing.T) {
	pub := &fakePublisher{failing: true}
	cfg := DefaultMirrorConfig()
	cfg.MaxFailures = 2
	cfg.CheckInterval = 20 * time.Millisecond
	m := NewMirror("fake", pub, cfg, zerolog.Nop())
	ctx := context.Background()

	m.send(ctx, Message{EventType: events.EventHealth})
	if m.Suspended() {
		t.Fatal("suspended after a single failure")
	}
	m.send(ctx, Message{EventType: events.EventHealth})
	if !m.Suspended() {
		t.Fatal("expected suspension after reaching the threshold")
	}

	// Within the check interval nothing is attempted.
	m.send(ctx, Message{EventType: events.EventHealth})
	if pub.pings != 0 {
		t.Fatalf("pinged %d times inside the check interval", pub.pings)
	}

	pub.mu.Lock()
	pub.failing = false
	pub.mu.Unlock()
	time.Sleep(30 * time.Millisecond)

	m.send(ctx, Message{EventType: events.EventHealth})
	if m.Suspended() {
		t.Fatal("expected mirror to resume after successful ping")
	}
	if pub.count() != 1 {
		t.Fatalf("published %d, want 1", pub.count())
	}
}

func TestMirrorDropsWhenBufferFull(t *testing.T) {
	cfg := DefaultMirrorConfig()
	cfg.Buffer = 1
	m := NewMirror("fake", &fakePublisher{}, cfg, zerolog.Nop())
	bus := events.NewBus()
	m.Attach(bus)

	bus.Publish(events.EventHealth, events.Payload{})
	bus.Publish(events.EventHealth, events.Payload{})
	bus.Publish(events.EventHealth, events.Payload{})
	if m.Dropped() != 2 {
		t.Fatalf("dropped = %d, want 2", m.Dropped())
	}
}

func TestNATSPublisherConnectFailure(t *testing.T) {
	cfg := DefaultNATSConfig()
	cfg.URL = "nats://127.0.0.1:1"
	cfg.Timeout = 200 * time.Millisecond
	if _, err := NewNATSPublisher(cfg); err == nil {
		t.Fatal("expected connection error")
	}
}

func TestRedisPublisherConnectFailure(t *testing.T) {
	cfg := DefaultRedisConfig()
	cfg.Addr = "127.0.0.1:1"
	cfg.DialTimeout = 200 * time.Millisecond
	if _, err := NewRedisPublisher(context.Background(), cfg); err == nil {
		t.Fatal("expected connection error")
	}
}
