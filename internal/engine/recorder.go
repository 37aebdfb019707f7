/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/friendsincode/onair/internal/models"
	"github.com/friendsincode/onair/internal/telemetry"
)

// Recorder is a dry-run adapter: it logs and records command lines instead
// of dialing an engine. Callbacks still flow through its Inbox.
type Recorder struct {
	*Inbox
	logger zerolog.Logger

	mu       sync.Mutex
	commands []string
}

// NewRecorder creates a dry-run adapter.
func NewRecorder(logger zerolog.Logger) *Recorder {
	return &Recorder{
		Inbox:  NewInbox(64),
		logger: logger.With().Str("component", "engine").Str("mode", "dry").Logger(),
	}
}

func (r *Recorder) record(line string) {
	r.mu.Lock()
	r.commands = append(r.commands, line)
	r.mu.Unlock()
	telemetry.EngineCommandsTotal.WithLabelValues(CommandName(line), "dry").Inc()
	r.logger.Debug().Str("command", line).Msg("dry run engine command")
}

// PushNext records a next command.
func (r *Recorder) PushNext(item models.QueueItem) { r.record(FormatNext(item.Source)) }

// PushMix records a gain command.
func (r *Recorder) PushMix(g Gains) { r.record(FormatGains(g)) }

// PlayJingle records a jingle command.
func (r *Recorder) PlayJingle(slot int, volume float64, source string) {
	r.record(FormatJingle(slot, volume, source))
}

// Skip records a skip command.
func (r *Recorder) Skip() { r.record(CommandSkip) }

// Commands returns the recorded command lines in order.
func (r *Recorder) Commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.commands...)
}

// Reset forgets recorded commands.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.commands = nil
	r.mu.Unlock()
}
