/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package logbuffer keeps the most recent log records in memory so
// operators can read them over the API.
package logbuffer

import (
	"encoding/json"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 2000

// Entry is one captured log record.
type Entry struct {
	Time      time.Time      `json:"time"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Buffer is a fixed-size ring of log entries.
type Buffer struct {
	mu      sync.RWMutex
	entries []Entry
	head    int
	count   int
}

// New creates a buffer holding up to capacity entries.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{entries: make([]Entry, capacity)}
}

// Add stores an entry, overwriting the oldest once full.
func (b *Buffer) Add(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[b.head] = e
	b.head = (b.head + 1) % len(b.entries)
	if b.count < len(b.entries) {
		b.count++
	}
}

// snapshot returns entries oldest first.
func (b *Buffer) snapshot() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Entry, b.count)
	start := 0
	if b.count == len(b.entries) {
		start = b.head
	}
	for i := range out {
		out[i] = b.entries[(start+i)%len(b.entries)]
	}
	return out
}

// Query filters captured entries.
type Query struct {
	// MinLevel keeps entries at or above this level.
	MinLevel  zerolog.Level
	Component string
	Search    string
	Since     time.Time
	Limit     int
}

// Query returns matching entries, newest first.
func (b *Buffer) Query(q Query) []Entry {
	all := b.snapshot()
	out := make([]Entry, 0, len(all))
	search := strings.ToLower(q.Search)
	for i := len(all) - 1; i >= 0; i-- {
		e := all[i]
		if lvl, err := zerolog.ParseLevel(e.Level); err == nil && lvl < q.MinLevel {
			continue
		}
		if q.Component != "" && e.Component != q.Component {
			continue
		}
		if !q.Since.IsZero() && e.Time.Before(q.Since) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(e.Message), search) {
			continue
		}
		out = append(out, e)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out
}

// Components lists the distinct component names seen, sorted.
func (b *Buffer) Components() []string {
	seen := map[string]struct{}{}
	for _, e := range b.snapshot() {
		if e.Component != "" {
			seen[e.Component] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// Stats summarises the buffer.
type Stats struct {
	Capacity int            `json:"capacity"`
	Count    int            `json:"count"`
	ByLevel  map[string]int `json:"by_level"`
}

// Stats counts entries per level.
func (b *Buffer) Stats() Stats {
	entries := b.snapshot()
	st := Stats{Capacity: len(b.entries), Count: len(entries), ByLevel: map[string]int{}}
	for _, e := range entries {
		st.ByLevel[e.Level]++
	}
	return st
}

// Write decodes one zerolog JSON record. It implements io.Writer so the
// buffer can sit behind zerolog.MultiLevelWriter. Records that are not JSON
// are ignored.
func (b *Buffer) Write(p []byte) (int, error) {
	var raw map[string]any
	if err := json.Unmarshal(p, &raw); err != nil {
		return len(p), nil
	}
	e := Entry{Time: time.Now()}
	if v, ok := raw[zerolog.LevelFieldName].(string); ok {
		e.Level = v
	}
	if v, ok := raw[zerolog.MessageFieldName].(string); ok {
		e.Message = v
	}
	if v, ok := raw["component"].(string); ok {
		e.Component = v
	}
	switch ts := raw[zerolog.TimestampFieldName].(type) {
	case float64:
		e.Time = time.Unix(int64(ts), 0)
	case string:
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			e.Time = t
		}
	}
	for _, k := range []string{zerolog.LevelFieldName, zerolog.MessageFieldName, zerolog.TimestampFieldName, "component"} {
		delete(raw, k)
	}
	if len(raw) > 0 {
		e.Fields = raw
	}
	b.Add(e)
	return len(p), nil
}
