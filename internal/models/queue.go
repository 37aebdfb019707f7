/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"

	"github.com/google/uuid"
)

// InsertedBy records which actor put an item into the queue.
type InsertedBy string

const (
	InsertedByRotation InsertedBy = "rotation"
	InsertedByManual   InsertedBy = "manual"
	InsertedByShow     InsertedBy = "show"
	InsertedByEngine   InsertedBy = "engine" // reported by the engine without a queue entry
)

// QueueItem is one pending playback decision.
type QueueItem struct {
	ID          string        `json:"id"`
	Source      string        `json:"source"`
	AudioFileID string        `json:"audio_file_id,omitempty"`
	ShowItemID  string        `json:"show_item_id,omitempty"`
	Title       string        `json:"title"`
	Artist      string        `json:"artist"`
	Duration    time.Duration `json:"duration"`
	Category    Category      `json:"category"`
	InsertedBy  InsertedBy    `json:"inserted_by"`
	RuleID      string        `json:"rule_id,omitempty"`
}

// NewQueueItem builds a queue item for a library file.
func NewQueueItem(f AudioFile, by InsertedBy) QueueItem {
	return QueueItem{
		ID:          uuid.NewString(),
		Source:      f.Path,
		AudioFileID: f.ID,
		Title:       f.DisplayTitle(),
		Artist:      f.Artist,
		Duration:    f.Duration,
		Category:    f.Category,
		InsertedBy:  by,
	}
}
