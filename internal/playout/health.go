/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"time"

	"github.com/friendsincode/onair/internal/events"
	"github.com/friendsincode/onair/internal/telemetry"
)

// Health status values.
const (
	HealthOK      = "ok"
	HealthIdle    = "idle"
	HealthStalled = "stalled"
)

// Health reports whether playout is progressing.
type Health struct {
	Status          string        `json:"status"`
	Stalled         bool          `json:"stalled"`
	Overdue         bool          `json:"overdue"`
	NoNext          bool          `json:"no_next"`
	LastTrackStart  time.Time     `json:"last_track_start,omitempty"`
	SinceTrackStart time.Duration `json:"since_track_start_ns"`
	ExpectedLength  time.Duration `json:"expected_length_ns"`
	QueueLength     int           `json:"queue_length"`
	Mode            string        `json:"mode"`
}

// Health computes the stall signal: the current track ran past its
// duration plus the margin without a new track start, or nothing is
// queued to follow it. Before the first track start the status is idle.
func (d *Director) Health(now time.Time) Health {
	d.mu.Lock()
	last := d.lastTrackStart
	d.mu.Unlock()

	np, _, playing := d.queue.NowPlaying()
	h := Health{
		LastTrackStart: last,
		QueueLength:    d.queue.Len(),
		Mode:           string(d.shows.Mode()),
	}
	h.NoNext = h.QueueLength == 0

	if last.IsZero() {
		h.Status = HealthIdle
		h.Stalled = h.NoNext
		if h.Stalled {
			h.Status = HealthStalled
		}
		return h
	}

	h.SinceTrackStart = now.Sub(last)
	if playing {
		h.ExpectedLength = np.Duration
	}
	if h.ExpectedLength > 0 && h.SinceTrackStart > h.ExpectedLength+d.cfg.HealthMargin {
		h.Overdue = true
	}
	h.Stalled = h.Overdue || h.NoNext
	h.Status = HealthOK
	if h.Stalled {
		h.Status = HealthStalled
	}
	return h
}

func (d *Director) emitHealth(h Health) {
	if !h.LastTrackStart.IsZero() {
		telemetry.SecondsSinceTrackStart.Set(h.SinceTrackStart.Seconds())
	}
	stalledGauge := 0.0
	if h.Stalled {
		stalledGauge = 1
	}
	telemetry.PlayoutStalled.Set(stalledGauge)

	d.mu.Lock()
	changed := d.stalled != h.Stalled
	d.stalled = h.Stalled
	d.mu.Unlock()

	if changed {
		if h.Stalled {
			d.logger.Warn().
				Bool("overdue", h.Overdue).
				Bool("no_next", h.NoNext).
				Dur("since_track_start", h.SinceTrackStart).
				Msg("playout stalled")
		} else {
			d.logger.Info().Msg("playout recovered")
		}
	}

	d.bus.Publish(events.EventHealth, events.Payload{
		"status":            h.Status,
		"stalled":           h.Stalled,
		"overdue":           h.Overdue,
		"no_next":           h.NoNext,
		"last_track_start":  h.LastTrackStart,
		"since_track_start": h.SinceTrackStart.Seconds(),
		"queue_length":      h.QueueLength,
		"mode":              h.Mode,
	})
}
