/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"fmt"
	"time"
)

// Show is a pre-assembled playlist that can be scheduled.
type Show struct {
	ID          string     `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string     `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"`
	Description string     `gorm:"type:text" json:"description,omitempty"`
	Items       []ShowItem `gorm:"foreignKey:ShowID" json:"items,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (Show) TableName() string {
	return "shows"
}

// ShowItem is one playlist position of a show.
type ShowItem struct {
	ID          string     `gorm:"type:uuid;primaryKey" json:"id"`
	ShowID      string     `gorm:"type:uuid;index;not null" json:"show_id"`
	AudioFileID string     `gorm:"type:uuid;not null" json:"audio_file_id"`
	Position    int        `gorm:"not null" json:"position"`
	AudioFile   *AudioFile `gorm:"foreignKey:AudioFileID" json:"audio_file,omitempty"`
}

// TableName returns the table name for GORM.
func (ShowItem) TableName() string {
	return "show_items"
}

// RepeatKind controls how a schedule entry recurs.
type RepeatKind string

const (
	RepeatOnce   RepeatKind = "once"
	RepeatDaily  RepeatKind = "daily"
	RepeatWeekly RepeatKind = "weekly"
)

// ScheduleEntry starts a show at TriggerTime. After firing, TriggerTime is
// moved to the next occurrence (daily, weekly) or the entry is deactivated.
// Weekday is only meaningful for weekly entries.
type ScheduleEntry struct {
	ID          string       `gorm:"type:uuid;primaryKey" json:"id"`
	ShowID      string       `gorm:"type:uuid;index;not null" json:"show_id"`
	TriggerTime time.Time    `gorm:"index;not null" json:"trigger_time"`
	Repeat      RepeatKind   `gorm:"type:varchar(16);not null;default:'once'" json:"repeat"`
	Weekday     time.Weekday `json:"weekday"`
	Active      bool         `gorm:"not null;index" json:"active"`
	Override    bool         `gorm:"not null;default:false" json:"override"`
	LastFiredAt *time.Time   `json:"last_fired_at,omitempty"`
	Show        *Show        `gorm:"foreignKey:ShowID" json:"show,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (ScheduleEntry) TableName() string {
	return "schedule_entries"
}

// Validate checks the entry shape.
func (e ScheduleEntry) Validate() error {
	if e.ShowID == "" {
		return fmt.Errorf("schedule entry needs a show")
	}
	if e.TriggerTime.IsZero() {
		return fmt.Errorf("schedule entry needs a trigger time")
	}
	switch e.Repeat {
	case RepeatOnce, RepeatDaily:
	case RepeatWeekly:
		if e.Weekday < time.Sunday || e.Weekday > time.Saturday {
			return fmt.Errorf("invalid weekday %d", e.Weekday)
		}
	default:
		return fmt.Errorf("unknown repeat kind %q", e.Repeat)
	}
	return nil
}
