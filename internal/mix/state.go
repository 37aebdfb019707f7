/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mix

import (
	"time"

	"github.com/friendsincode/onair/internal/engine"
)

// SlotCount is the number of instant jingle slots, numbered from 1.
const SlotCount = 9

// DefaultColor is the colour of a slot configured without one.
const DefaultColor = "primary"

// Slot is one instant-jingle button.
type Slot struct {
	Number   int           `json:"slot"`
	Source   string        `json:"source,omitempty"`
	Label    string        `json:"label,omitempty"`
	Color    string        `json:"color,omitempty"`
	Volume   float64       `json:"volume"`
	Duration time.Duration `json:"duration,omitempty"`
	Firing   bool          `json:"firing"`
}

// Configured reports whether the slot has audio assigned.
func (s Slot) Configured() bool {
	return s.Source != ""
}

// State is the live-mix state mirrored to the engine.
type State struct {
	BedEnabled      bool            `json:"bed_enabled"`
	BedVolume       float64         `json:"bed_volume"`
	DuckingActive   bool            `json:"ducking_active"`
	DuckingLevel    float64         `json:"ducking_level"`
	MicEnabled      bool            `json:"mic_enabled"`
	MicVolume       float64         `json:"mic_volume"`
	MicAutoDuck     bool            `json:"mic_auto_duck"`
	JingleDuckMusic bool            `json:"jingle_duck_music"`
	Jingles         [SlotCount]Slot `json:"jingles"`
}

// DefaultState is the state a process starts with.
func DefaultState() State {
	s := State{
		BedVolume:       0.3,
		DuckingLevel:    0.15,
		MicVolume:       1.0,
		MicAutoDuck:     true,
		JingleDuckMusic: true,
	}
	for i := range s.Jingles {
		s.Jingles[i] = Slot{Number: i + 1, Volume: 1.0}
	}
	return s
}

// Ducked reports whether music is currently attenuated. Mic auto-duck is
// derived rather than stored, so disabling the mic leaves DuckingActive as
// the operator set it.
func (s State) Ducked() bool {
	if s.DuckingActive {
		return true
	}
	if s.MicEnabled && s.MicAutoDuck {
		return true
	}
	if s.JingleDuckMusic {
		for _, slot := range s.Jingles {
			if slot.Firing {
				return true
			}
		}
	}
	return false
}

// Gains derives the effective gain vector.
func (s State) Gains() engine.Gains {
	g := engine.Gains{Track: 1}
	if s.Ducked() {
		g.Track = s.DuckingLevel
	}
	if s.BedEnabled {
		g.Bed = s.BedVolume
	}
	if s.MicEnabled {
		g.Mic = s.MicVolume
	}
	for _, slot := range s.Jingles {
		if slot.Firing {
			if g.Jingles == nil {
				g.Jingles = make(map[int]float64)
			}
			g.Jingles[slot.Number] = slot.Volume
		}
	}
	return g
}
