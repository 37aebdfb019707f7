/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"path"
	"strings"
	"time"
)

// Category names a pool of audio files.
type Category string

const (
	CategoryMusic             Category = "music"
	CategoryJingles           Category = "jingles"
	CategoryPromos            Category = "promos"
	CategoryAds               Category = "ads"
	CategoryRandomModeration  Category = "random-moderation"
	CategoryPlannedModeration Category = "planned-moderation"
)

// Categories lists every known category in display order.
var Categories = []Category{
	CategoryMusic,
	CategoryJingles,
	CategoryPromos,
	CategoryAds,
	CategoryRandomModeration,
	CategoryPlannedModeration,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// CountsAsSong reports whether a play of this category advances song counters.
// Plays with no category are treated as music.
func (c Category) CountsAsSong() bool {
	return c == CategoryMusic || c == ""
}

// AudioFile is a library entry the core can queue. Scanning and tagging
// happen elsewhere; the core only reads these rows and bumps play stats.
type AudioFile struct {
	ID         string        `gorm:"type:uuid;primaryKey" json:"id"`
	Category   Category      `gorm:"type:varchar(32);index" json:"category"`
	Path       string        `gorm:"type:varchar(512);uniqueIndex" json:"path"`
	Filename   string        `gorm:"type:varchar(255);index" json:"filename"`
	Title      string        `json:"title"`
	Artist     string        `json:"artist"`
	Duration   time.Duration `json:"duration"`
	Active     bool          `gorm:"not null" json:"active"`
	PlayCount  int           `json:"play_count"`
	LastPlayed *time.Time    `json:"last_played,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (AudioFile) TableName() string {
	return "audio_files"
}

// DisplayTitle falls back to the file name when no title tag exists.
func (f AudioFile) DisplayTitle() string {
	if strings.TrimSpace(f.Title) != "" {
		return f.Title
	}
	if f.Filename != "" {
		return f.Filename
	}
	return path.Base(f.Path)
}

// CategoryFromPath derives a category from a path laid out as
// <root>/<category>/<file>. It returns "" when the segment is unknown.
func CategoryFromPath(mediaRoot, p string) Category {
	root := strings.TrimSuffix(mediaRoot, "/") + "/"
	if mediaRoot == "" || !strings.HasPrefix(p, root) {
		return ""
	}
	rest := strings.TrimPrefix(p, root)
	segment, _, found := strings.Cut(rest, "/")
	if !found {
		return ""
	}
	c := Category(segment)
	if !c.Valid() {
		return ""
	}
	return c
}
