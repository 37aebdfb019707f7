/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package state

import (
	"sort"
	"sync"
	"time"

	"github.com/friendsincode/onair/internal/models"
)

// Play is one entry of the recent play history.
type Play struct {
	AudioFileID string
	Path        string
	Category    models.Category
	RuleID      string
	PlayedAt    time.Time
}

// Key identifies the file behind a play for repeat avoidance.
func (p Play) Key() string {
	if p.AudioFileID != "" {
		return p.AudioFileID
	}
	return p.Path
}

// FromEntry converts a persisted history row.
func FromEntry(e models.PlayHistoryEntry) Play {
	p := Play{Category: e.Category, PlayedAt: e.PlayedAt, Path: e.Filename}
	if e.AudioFileID != nil {
		p.AudioFileID = *e.AudioFileID
	}
	if e.RuleID != nil {
		p.RuleID = *e.RuleID
	}
	return p
}

// Store keeps recent plays in memory, ordered by PlayedAt.
type Store struct {
	mu     sync.RWMutex
	recent []Play
}

// NewStore creates a history store.
func NewStore() *Store {
	return &Store{recent: make([]Play, 0, 128)}
}

// Add registers a play event.
func (s *Store) Add(play Play) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.recent)
	if n == 0 || !play.PlayedAt.Before(s.recent[n-1].PlayedAt) {
		s.recent = append(s.recent, play)
		return
	}
	i := sort.Search(n, func(i int) bool { return s.recent[i].PlayedAt.After(play.PlayedAt) })
	s.recent = append(s.recent, Play{})
	copy(s.recent[i+1:], s.recent[i:])
	s.recent[i] = play
}

// Recent returns a snapshot of tracked plays, oldest first.
func (s *Store) Recent() []Play {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Play, len(s.recent))
	copy(out, s.recent)
	return out
}

// CountSince counts plays strictly after t that satisfy pred.
func (s *Store) CountSince(t time.Time, pred func(Play) bool) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := sort.Search(len(s.recent), func(i int) bool { return s.recent[i].PlayedAt.After(t) })
	count := 0
	for _, p := range s.recent[i:] {
		if pred == nil || pred(p) {
			count++
		}
	}
	return count
}

// Len returns the number of tracked plays.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.recent)
}

// Prune removes entries older than cutoff but always keeps the newest keep
// entries so song counters survive long quiet periods.
func (s *Store) Prune(cutoff time.Time, keep int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	limit := len(s.recent) - keep
	drop := 0
	for drop < limit && !s.recent[drop].PlayedAt.After(cutoff) {
		drop++
	}
	if drop == 0 {
		return
	}
	s.recent = append(s.recent[:0], s.recent[drop:]...)
}
