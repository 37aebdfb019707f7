/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package queue holds the playback queue: the ordered pending items and the
// item currently on air. Head-of-queue order is the sole authority for what
// plays next.
package queue

import (
	"fmt"
	"sync"
	"time"

	"github.com/friendsincode/onair/internal/apperrors"
	"github.com/friendsincode/onair/internal/models"
)

var (
	// ErrIndexOutOfRange indicates an index outside the pending items.
	ErrIndexOutOfRange = fmt.Errorf("%w: index out of range", apperrors.ErrValidation)

	// ErrInvalidPermutation indicates a reorder that is not a bijection on the current indices.
	ErrInvalidPermutation = fmt.Errorf("%w: invalid permutation", apperrors.ErrValidation)

	// ErrQueueEmpty indicates advance was called with no pending items.
	ErrQueueEmpty = fmt.Errorf("%w: queue empty", apperrors.ErrEmptyResource)

	// ErrStaleIndex indicates the item at an index is not the one the caller saw.
	ErrStaleIndex = fmt.Errorf("%w: queue changed", apperrors.ErrConflict)
)

// Op names the mutation carried by a Change.
type Op string

const (
	OpEnqueue    Op = "enqueue"
	OpInsert     Op = "insert"
	OpRemove     Op = "remove"
	OpReorder    Op = "reorder"
	OpAdvance    Op = "advance"
	OpClear      Op = "clear"
	OpReplace    Op = "replace"
	OpNowPlaying Op = "now_playing"
)

// Change describes a committed mutation. Listeners get it after the lock
// is released, in commit order.
type Change struct {
	Op       Op
	Version  uint64
	Item     *models.QueueItem // affected item for enqueue/insert/remove/advance/now_playing
	HeadID   string            // id of the head after the change, "" when empty
	Length   int
	ChangeAt time.Time
}

// Status is a consistent snapshot of the queue.
type Status struct {
	NowPlaying *models.QueueItem  `json:"now_playing,omitempty"`
	StartedAt  time.Time          `json:"started_at"`
	Items      []models.QueueItem `json:"items"`
	Version    uint64             `json:"version"`
}

// Queue is the playback queue. All operations serialize on one mutex and do
// only in-memory work while holding it.
type Queue struct {
	mu         sync.Mutex
	items      []models.QueueItem
	nowPlaying *models.QueueItem
	startedAt  time.Time
	version    uint64
	now        func() time.Time

	// notifyMu orders listener delivery with commit order.
	notifyMu  sync.Mutex
	listeners []func(Change)
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{now: time.Now}
}

// WithClock overrides the clock used for started_at stamps.
func (q *Queue) WithClock(now func() time.Time) *Queue {
	q.now = now
	return q
}

// OnChange registers a listener for committed mutations.
func (q *Queue) OnChange(fn func(Change)) {
	q.notifyMu.Lock()
	q.listeners = append(q.listeners, fn)
	q.notifyMu.Unlock()
}

// Enqueue appends item at the tail.
func (q *Queue) Enqueue(item models.QueueItem) {
	q.notifyMu.Lock()
	defer q.notifyMu.Unlock()

	q.mu.Lock()
	q.items = append(q.items, item)
	change := q.commitLocked(OpEnqueue, &item)
	q.mu.Unlock()

	q.emit(change)
}

// InsertAt places item at index; index == Len() appends.
func (q *Queue) InsertAt(index int, item models.QueueItem) error {
	q.notifyMu.Lock()
	defer q.notifyMu.Unlock()

	q.mu.Lock()
	if index < 0 || index > len(q.items) {
		q.mu.Unlock()
		return fmt.Errorf("insert at %d of %d: %w", index, len(q.items), ErrIndexOutOfRange)
	}
	q.items = append(q.items, models.QueueItem{})
	copy(q.items[index+1:], q.items[index:])
	q.items[index] = item
	change := q.commitLocked(OpInsert, &item)
	q.mu.Unlock()

	q.emit(change)
	return nil
}

// RemoveAt removes and returns the pending item at index.
func (q *Queue) RemoveAt(index int) (models.QueueItem, error) {
	return q.removeAt(index, "")
}

// RemoveAtID removes the item at index only if its id is expectedID, so a
// caller working from an older snapshot cannot remove the wrong item.
func (q *Queue) RemoveAtID(index int, expectedID string) (models.QueueItem, error) {
	return q.removeAt(index, expectedID)
}

func (q *Queue) removeAt(index int, expectedID string) (models.QueueItem, error) {
	q.notifyMu.Lock()
	defer q.notifyMu.Unlock()

	q.mu.Lock()
	if index < 0 || index >= len(q.items) {
		q.mu.Unlock()
		return models.QueueItem{}, fmt.Errorf("remove at %d of %d: %w", index, len(q.items), ErrIndexOutOfRange)
	}
	removed := q.items[index]
	if expectedID != "" && removed.ID != expectedID {
		q.mu.Unlock()
		return models.QueueItem{}, fmt.Errorf("remove at %d: expected %s, found %s: %w", index, expectedID, removed.ID, ErrStaleIndex)
	}
	q.items = append(q.items[:index], q.items[index+1:]...)
	change := q.commitLocked(OpRemove, &removed)
	q.mu.Unlock()

	q.emit(change)
	return removed, nil
}

// Reorder rearranges pending items so that new position i holds the item
// previously at permutation[i]. The permutation must cover every current
// index exactly once; otherwise the queue is left unchanged.
func (q *Queue) Reorder(permutation []int) error {
	q.notifyMu.Lock()
	defer q.notifyMu.Unlock()

	q.mu.Lock()
	if err := validatePermutation(permutation, len(q.items)); err != nil {
		q.mu.Unlock()
		return err
	}
	reordered := make([]models.QueueItem, len(q.items))
	for i, from := range permutation {
		reordered[i] = q.items[from]
	}
	q.items = reordered
	change := q.commitLocked(OpReorder, nil)
	q.mu.Unlock()

	q.emit(change)
	return nil
}

func validatePermutation(permutation []int, n int) error {
	if len(permutation) != n {
		return fmt.Errorf("permutation has %d entries for %d items: %w", len(permutation), n, ErrInvalidPermutation)
	}
	seen := make([]bool, n)
	for _, idx := range permutation {
		if idx < 0 || idx >= n {
			return fmt.Errorf("permutation index %d out of range: %w", idx, ErrInvalidPermutation)
		}
		if seen[idx] {
			return fmt.Errorf("permutation repeats index %d: %w", idx, ErrInvalidPermutation)
		}
		seen[idx] = true
	}
	return nil
}

// Advance pops the head into now playing and returns it.
func (q *Queue) Advance() (models.QueueItem, error) {
	q.notifyMu.Lock()
	defer q.notifyMu.Unlock()

	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return models.QueueItem{}, ErrQueueEmpty
	}
	head := q.items[0]
	q.items = q.items[1:]
	playing := head
	q.nowPlaying = &playing
	q.startedAt = q.now()
	change := q.commitLocked(OpAdvance, &head)
	q.mu.Unlock()

	q.emit(change)
	return head, nil
}

// SetNowPlaying replaces the now-playing item without touching pending
// items. Used when the engine reports audio the queue did not predict.
func (q *Queue) SetNowPlaying(item models.QueueItem, startedAt time.Time) {
	q.notifyMu.Lock()
	defer q.notifyMu.Unlock()

	q.mu.Lock()
	playing := item
	q.nowPlaying = &playing
	if startedAt.IsZero() {
		startedAt = q.now()
	}
	q.startedAt = startedAt
	change := q.commitLocked(OpNowPlaying, &item)
	q.mu.Unlock()

	q.emit(change)
}

// Clear drops every pending item. Now playing is untouched.
func (q *Queue) Clear() {
	q.Replace(nil)
}

// Replace swaps all pending items for items, keeping their order.
func (q *Queue) Replace(items []models.QueueItem) {
	q.notifyMu.Lock()
	defer q.notifyMu.Unlock()

	q.mu.Lock()
	op := OpReplace
	if len(items) == 0 {
		op = OpClear
	}
	q.items = append([]models.QueueItem(nil), items...)
	change := q.commitLocked(op, nil)
	q.mu.Unlock()

	q.emit(change)
}

// RemoveWhere drops every pending item matching pred and returns them.
func (q *Queue) RemoveWhere(pred func(models.QueueItem) bool) []models.QueueItem {
	q.notifyMu.Lock()
	defer q.notifyMu.Unlock()

	q.mu.Lock()
	var removed []models.QueueItem
	kept := make([]models.QueueItem, 0, len(q.items))
	for _, it := range q.items {
		if pred(it) {
			removed = append(removed, it)
			continue
		}
		kept = append(kept, it)
	}
	if len(removed) == 0 {
		q.mu.Unlock()
		return nil
	}
	q.items = kept
	change := q.commitLocked(OpRemove, nil)
	q.mu.Unlock()

	q.emit(change)
	return removed
}

// Head returns the next pending item.
func (q *Queue) Head() (models.QueueItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return models.QueueItem{}, false
	}
	return q.items[0], true
}

// Len returns the number of pending items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// CountWhere returns the number of pending items matching pred.
func (q *Queue) CountWhere(pred func(models.QueueItem) bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, item := range q.items {
		if pred(item) {
			n++
		}
	}
	return n
}

// NowPlaying returns the item on air and when it started.
func (q *Queue) NowPlaying() (models.QueueItem, time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.nowPlaying == nil {
		return models.QueueItem{}, time.Time{}, false
	}
	return *q.nowPlaying, q.startedAt, true
}

// Snapshot returns a copy of the whole queue state.
func (q *Queue) Snapshot() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	status := Status{
		StartedAt: q.startedAt,
		Items:     append([]models.QueueItem{}, q.items...),
		Version:   q.version,
	}
	if q.nowPlaying != nil {
		playing := *q.nowPlaying
		status.NowPlaying = &playing
	}
	return status
}

// PeekTimeUntilNext returns the remaining duration of the now-playing item
// at now. It is zero when nothing plays, the duration is unknown, or the
// item has overrun.
func (q *Queue) PeekTimeUntilNext(now time.Time) time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.nowPlaying == nil || q.nowPlaying.Duration <= 0 {
		return 0
	}
	remaining := q.nowPlaying.Duration - now.Sub(q.startedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (q *Queue) commitLocked(op Op, item *models.QueueItem) Change {
	q.version++
	change := Change{
		Op:       op,
		Version:  q.version,
		Item:     item,
		Length:   len(q.items),
		ChangeAt: q.now(),
	}
	if len(q.items) > 0 {
		change.HeadID = q.items[0].ID
	}
	return change
}

// emit runs listeners with notifyMu held so they observe commit order.
// Listeners must not mutate the queue.
func (q *Queue) emit(change Change) {
	for _, fn := range q.listeners {
		fn(change)
	}
}
