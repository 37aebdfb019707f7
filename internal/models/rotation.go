/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"fmt"
	"time"
)

// RuleKind selects the trigger predicate of a rotation rule.
type RuleKind string

const (
	RuleAfterSongs    RuleKind = "after_n_songs"
	RuleAtMinute      RuleKind = "at_minute"
	RuleEveryInterval RuleKind = "every_interval"
)

// RotationRule inserts an item from Category when its predicate triggers.
// Value carries the predicate argument: song count, minute of hour or
// interval in minutes depending on Kind. Position is the definition order
// used to break priority ties.
type RotationRule struct {
	ID        string       `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string       `gorm:"type:varchar(100);uniqueIndex" json:"name"`
	Kind      RuleKind     `gorm:"type:varchar(32);not null" json:"kind"`
	Value     int          `gorm:"not null;default:0" json:"value"`
	Category  Category     `gorm:"type:varchar(32);not null" json:"category"`
	Priority  int          `gorm:"not null;default:0" json:"priority"`
	Window    ActiveWindow `gorm:"embedded;embeddedPrefix:window_" json:"active_window"`
	Enabled   bool         `gorm:"not null" json:"enabled"`
	Position  int          `gorm:"not null;default:0;index" json:"position"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (RotationRule) TableName() string {
	return "rotation_rules"
}

// Validate checks the rule shape.
func (r RotationRule) Validate() error {
	switch r.Kind {
	case RuleAfterSongs:
		if r.Value < 1 {
			return fmt.Errorf("after_n_songs needs n >= 1, got %d", r.Value)
		}
	case RuleAtMinute:
		if r.Value < 0 || r.Value > 59 {
			return fmt.Errorf("at_minute needs a minute in 0..59, got %d", r.Value)
		}
	case RuleEveryInterval:
		if r.Value < 1 {
			return fmt.Errorf("every_interval needs minutes >= 1, got %d", r.Value)
		}
	default:
		return fmt.Errorf("unknown rule kind %q", r.Kind)
	}
	if !r.Category.Valid() {
		return fmt.Errorf("unknown category %q", r.Category)
	}
	return r.Window.Validate()
}

// ActiveWindow limits a rule to a time-of-day range and a set of weekdays.
// A zero window is always active. Start and End are "HH:MM"; when Start is
// after End the window wraps past midnight.
type ActiveWindow struct {
	Start    string         `gorm:"type:varchar(5)" json:"start,omitempty"`
	End      string         `gorm:"type:varchar(5)" json:"end,omitempty"`
	Weekdays []time.Weekday `gorm:"type:text;serializer:json" json:"weekdays,omitempty"`
}

// IsZero reports whether the window places no restriction.
func (w ActiveWindow) IsZero() bool {
	return w.Start == "" && w.End == "" && len(w.Weekdays) == 0
}

// Validate checks that both bounds parse and are set together.
func (w ActiveWindow) Validate() error {
	if (w.Start == "") != (w.End == "") {
		return fmt.Errorf("active window needs both start and end")
	}
	if w.Start != "" {
		if _, err := parseClock(w.Start); err != nil {
			return err
		}
		if _, err := parseClock(w.End); err != nil {
			return err
		}
	}
	for _, d := range w.Weekdays {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("invalid weekday %d", d)
		}
	}
	return nil
}

// Contains reports whether t falls inside the window. Bounds are inclusive
// at minute resolution.
func (w ActiveWindow) Contains(t time.Time) bool {
	if len(w.Weekdays) > 0 {
		found := false
		for _, d := range w.Weekdays {
			if d == t.Weekday() {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if w.Start == "" || w.End == "" {
		return true
	}
	start, err := parseClock(w.Start)
	if err != nil {
		return false
	}
	end, err := parseClock(w.End)
	if err != nil {
		return false
	}
	now := t.Hour()*60 + t.Minute()
	if start <= end {
		return now >= start && now <= end
	}
	return now >= start || now <= end
}

func parseClock(s string) (int, error) {
	parsed, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return parsed.Hour()*60 + parsed.Minute(), nil
}

// PlayHistoryEntry is an append-only record of something that went on air
// or was inserted by a rule. RuleID is nil for organic picks.
type PlayHistoryEntry struct {
	ID          string     `gorm:"type:uuid;primaryKey" json:"id"`
	Category    Category   `gorm:"type:varchar(32);index" json:"category"`
	PlayedAt    time.Time  `gorm:"index" json:"played_at"`
	RuleID      *string    `gorm:"type:uuid;index" json:"rule_id,omitempty"`
	AudioFileID *string    `gorm:"type:uuid;index" json:"audio_file_id,omitempty"`
	Title       string     `json:"title"`
	Artist      string     `json:"artist"`
	Filename    string     `json:"filename"`
	InsertedBy  InsertedBy `gorm:"type:varchar(16)" json:"inserted_by"`
}

// TableName returns the table name for GORM.
func (PlayHistoryEntry) TableName() string {
	return "play_history"
}
