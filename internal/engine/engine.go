/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package engine is the boundary to the external audio engine. Commands go
// out through an Adapter; callbacks come back as Events on a channel.
package engine

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/friendsincode/onair/internal/apperrors"
	"github.com/friendsincode/onair/internal/models"
)

// ErrEngine is returned when the engine rejects or fails a command.
var ErrEngine = fmt.Errorf("%w: engine command failed", apperrors.ErrEngineCommunication)

// Gains is the effective live-mix vector. Jingles holds only firing slots.
type Gains struct {
	Track   float64         `json:"track"`
	Bed     float64         `json:"bed"`
	Mic     float64         `json:"mic"`
	Jingles map[int]float64 `json:"jingles,omitempty"`
}

// Equal reports whether two gain vectors are identical.
func (g Gains) Equal(o Gains) bool {
	if g.Track != o.Track || g.Bed != o.Bed || g.Mic != o.Mic || len(g.Jingles) != len(o.Jingles) {
		return false
	}
	for slot, v := range g.Jingles {
		if ov, ok := o.Jingles[slot]; !ok || ov != v {
			return false
		}
	}
	return true
}

// EventKind enumerates engine callbacks.
type EventKind string

const (
	EventTrackStarted   EventKind = "track_started"
	EventEngineError    EventKind = "engine_error"
	EventJingleFinished EventKind = "jingle_finished"
)

// TrackInfo is the metadata reported with a track start.
type TrackInfo struct {
	Title     string        `json:"title"`
	Artist    string        `json:"artist"`
	Filename  string        `json:"filename"`
	Duration  time.Duration `json:"duration"`
	StartedAt time.Time     `json:"started_at"`
}

// Event is one callback from the engine.
type Event struct {
	Kind   EventKind
	Track  TrackInfo
	Reason string
	Slot   int
}

// Adapter sends commands to the engine. Every method returns immediately;
// delivery happens in the background.
type Adapter interface {
	PushNext(item models.QueueItem)
	PushMix(g Gains)
	PlayJingle(slot int, volume float64, source string)
	Skip()
	Events() <-chan Event
}

// Inbox carries engine callbacks into the core.
type Inbox struct {
	ch chan Event
}

// NewInbox creates an inbox with the given buffer.
func NewInbox(size int) *Inbox {
	return &Inbox{ch: make(chan Event, size)}
}

// Deliver hands an event to the core, waiting for buffer space until ctx ends.
func (in *Inbox) Deliver(ctx context.Context, ev Event) error {
	select {
	case in.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events returns the receive side of the inbox.
func (in *Inbox) Events() <-chan Event {
	return in.ch
}

// Control-socket command lines.

// FormatNext builds the command that sets the next track.
func FormatNext(path string) string {
	return "onair.next " + path
}

// FormatGains builds the command that applies a gain vector.
func FormatGains(g Gains) string {
	var b strings.Builder
	b.WriteString("onair.gain")
	b.WriteString(" track=" + formatGain(g.Track))
	b.WriteString(" bed=" + formatGain(g.Bed))
	b.WriteString(" mic=" + formatGain(g.Mic))
	slots := make([]int, 0, len(g.Jingles))
	for slot := range g.Jingles {
		slots = append(slots, slot)
	}
	sort.Ints(slots)
	for _, slot := range slots {
		fmt.Fprintf(&b, " jingle_%d=%s", slot, formatGain(g.Jingles[slot]))
	}
	return b.String()
}

// FormatJingle builds the command that fires an instant jingle.
func FormatJingle(slot int, volume float64, source string) string {
	return fmt.Sprintf("onair.jingle %d %s %s", slot, formatGain(volume), source)
}

// CommandSkip ends the current track.
const CommandSkip = "skip"

func formatGain(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// CommandName returns the verb of a command line for logs and metrics.
func CommandName(line string) string {
	name, _, _ := strings.Cut(line, " ")
	return strings.TrimPrefix(name, "onair.")
}
