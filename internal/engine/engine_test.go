/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/friendsincode/onair/internal/apperrors"
	"github.com/friendsincode/onair/internal/models"
)

// fakeEngine accepts one command per connection and answers with reply.
type fakeEngine struct {
	ln    net.Listener
	reply func(cmd string) string

	mu       sync.Mutex
	received []string
}

func startFakeEngine(t *testing.T, reply func(string) string) *fakeEngine {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := &fakeEngine{ln: ln, reply: reply}
	go f.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return f
}

func (f *fakeEngine) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		go func(conn net.Conn) {
			defer conn.Close()
			line, err := bufio.NewReader(conn).ReadString('\n')
			if err != nil {
				return
			}
			cmd := strings.TrimSpace(line)
			f.mu.Lock()
			f.received = append(f.received, cmd)
			f.mu.Unlock()
			_, _ = conn.Write([]byte(f.reply(cmd) + "\nEND\n"))
		}(conn)
	}
}

func (f *fakeEngine) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.received...)
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
	t.Fatalf("condition not met before deadline")
}

func ok(string) string { return "OK" }

func TestFormatCommands(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{FormatNext("/media/music/a.mp3"), "onair.next /media/music/a.mp3"},
		{FormatGains(Gains{Track: 0.15, Bed: 0.3, Mic: 1}), "onair.gain track=0.15 bed=0.3 mic=1"},
		{FormatGains(Gains{Track: 1, Jingles: map[int]float64{5: 0.8, 2: 1}}), "onair.gain track=1 bed=0 mic=0 jingle_2=1 jingle_5=0.8"},
		{FormatJingle(3, 1, "/media/jingles/id.mp3"), "onair.jingle 3 1 /media/jingles/id.mp3"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
	if CommandName("onair.gain track=1") != "gain" || CommandName(CommandSkip) != "skip" {
		t.Errorf("unexpected command names")
	}
}

func TestSendReplies(t *testing.T) {
	fake := startFakeEngine(t, func(cmd string) string {
		if strings.HasPrefix(cmd, "onair.next /missing") {
			return "ERROR: file not found"
		}
		return "OK"
	})
	c := NewClient(ClientConfig{Addr: fake.ln.Addr().String()}, zerolog.Nop())
	ctx := context.Background()

	reply, err := c.Send(ctx, FormatNext("/media/music/a.mp3"))
	if err != nil || reply != "OK" {
		t.Fatalf("send = %q, %v", reply, err)
	}

	_, err = c.Send(ctx, FormatNext("/missing.mp3"))
	if !errors.Is(err, ErrEngine) {
		t.Fatalf("expected ErrEngine, got %v", err)
	}
	if apperrors.KindOf(err) != apperrors.KindEngineCommunication {
		t.Fatalf("expected engine communication kind, got %s", apperrors.KindOf(err))
	}
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	c := NewClient(ClientConfig{Addr: addr, FailureThreshold: 2, Timeout: 200 * time.Millisecond}, zerolog.Nop())
	for i := 0; i < 2; i++ {
		if _, err := c.Send(context.Background(), CommandSkip); !errors.Is(err, ErrEngine) {
			t.Fatalf("attempt %d: expected ErrEngine, got %v", i, err)
		}
	}
	if c.breaker.State() != gobreaker.StateOpen {
		t.Fatalf("breaker state = %s, want open", c.breaker.State())
	}
	if _, err := c.Send(context.Background(), CommandSkip); !errors.Is(err, ErrEngine) {
		t.Fatalf("open breaker should still report ErrEngine, got %v", err)
	}
}

func TestRunCoalescesNextAndMix(t *testing.T) {
	fake := startFakeEngine(t, ok)
	c := NewClient(ClientConfig{Addr: fake.ln.Addr().String()}, zerolog.Nop())

	c.PushNext(models.QueueItem{Source: "/a.mp3"})
	c.PushNext(models.QueueItem{Source: "/b.mp3"})
	c.PushMix(Gains{Track: 1})
	c.PushMix(Gains{Track: 0.15})
	c.Skip()
	c.PlayJingle(2, 1, "/j.mp3")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	waitFor(t, func() bool { return len(fake.commands()) >= 4 })
	time.Sleep(20 * time.Millisecond)

	got := fake.commands()
	want := []string{
		"onair.next /b.mp3",
		"skip",
		"onair.jingle 2 1 /j.mp3",
		"onair.gain track=0.15 bed=0 mic=0",
	}
	if len(got) != len(want) {
		t.Fatalf("commands = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("commands = %v, want %v", got, want)
		}
	}
}

func TestRunRetriesFailedNext(t *testing.T) {
	var mu sync.Mutex
	fail := true
	fake := startFakeEngine(t, func(string) string {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			fail = false
			return "ERROR: busy"
		}
		return "OK"
	})
	c := NewClient(ClientConfig{Addr: fake.ln.Addr().String(), RetryInterval: 10 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	c.PushNext(models.QueueItem{Source: "/a.mp3"})
	waitFor(t, func() bool { return len(fake.commands()) >= 2 })
	got := fake.commands()
	if got[0] != "onair.next /a.mp3" || got[1] != "onair.next /a.mp3" {
		t.Fatalf("expected retried next command, got %v", got)
	}
}

func TestRecorder(t *testing.T) {
	r := NewRecorder(zerolog.Nop())
	r.PushNext(models.QueueItem{Source: "/a.mp3"})
	r.PushMix(Gains{Track: 1, Bed: 0.3})
	r.Skip()

	got := r.Commands()
	if len(got) != 3 || got[0] != "onair.next /a.mp3" || got[2] != "skip" {
		t.Fatalf("commands = %v", got)
	}
	r.Reset()
	if len(r.Commands()) != 0 {
		t.Fatalf("reset did not clear commands")
	}
}

func TestInboxDeliver(t *testing.T) {
	in := NewInbox(1)
	ctx := context.Background()
	if err := in.Deliver(ctx, Event{Kind: EventTrackStarted}); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	full, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if err := in.Deliver(full, Event{Kind: EventEngineError}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline on full inbox, got %v", err)
	}
	if ev := <-in.Events(); ev.Kind != EventTrackStarted {
		t.Fatalf("unexpected event %v", ev.Kind)
	}
}

func TestGainsEqual(t *testing.T) {
	a := Gains{Track: 1, Jingles: map[int]float64{1: 1}}
	if !a.Equal(Gains{Track: 1, Jingles: map[int]float64{1: 1}}) {
		t.Fatalf("expected equal")
	}
	if a.Equal(Gains{Track: 1}) || a.Equal(Gains{Track: 1, Jingles: map[int]float64{2: 1}}) {
		t.Fatalf("expected different")
	}
}
