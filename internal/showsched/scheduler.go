/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package showsched switches the station between automation and scheduled
// or operator-started shows.
package showsched

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/friendsincode/onair/internal/apperrors"
	"github.com/friendsincode/onair/internal/events"
	"github.com/friendsincode/onair/internal/models"
	"github.com/friendsincode/onair/internal/telemetry"
)

var (
	// ErrShowNotFound is returned for unknown show ids.
	ErrShowNotFound = fmt.Errorf("%w: show not found", apperrors.ErrNotFound)

	// ErrShowEmpty is returned when a show has no playable items.
	ErrShowEmpty = fmt.Errorf("%w: show has no playable items", apperrors.ErrEmptyResource)

	// ErrShowRunning is returned when starting a show without override while
	// another one is on air.
	ErrShowRunning = fmt.Errorf("%w: a show is already running", apperrors.ErrConflict)

	// ErrNoShow is returned when stopping while in automation.
	ErrNoShow = fmt.Errorf("%w: no show running", apperrors.ErrConflict)
)

// Mode is the system-wide playout mode.
type Mode string

const (
	ModeAutomation Mode = "automation"
	ModeShow       Mode = "show"
)

// Store is the persistence the scheduler needs. GetShow returns an error
// wrapping apperrors.ErrNotFound for unknown ids.
type Store interface {
	GetShow(ctx context.Context, id string) (*models.Show, error)
	ActiveScheduleEntries(ctx context.Context) ([]models.ScheduleEntry, error)
	SaveScheduleEntry(ctx context.Context, entry *models.ScheduleEntry) error
}

// Queue is the subset of the playback queue the scheduler mutates.
type Queue interface {
	Replace(items []models.QueueItem)
	RemoveWhere(pred func(models.QueueItem) bool) []models.QueueItem
}

// Config tunes the scheduler.
type Config struct {
	Location    *time.Location
	MissedGrace time.Duration
	DefaultName string
}

// Current describes the show on air.
type Current struct {
	ShowID    string    `json:"show_id"`
	ShowName  string    `json:"show_name"`
	EntryID   string    `json:"entry_id,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Override  bool      `json:"override"`
}

// Scheduler owns the mode state machine.
type Scheduler struct {
	store  Store
	queue  Queue
	bus    *events.Bus
	logger zerolog.Logger
	cfg    Config
	now    func() time.Time

	pollMu sync.Mutex
	// switchMu is held while a show takes over the queue.
	switchMu sync.Mutex

	mu       sync.Mutex
	mode     Mode
	current  *Current
	fired    map[string]time.Time
	deferred map[string]bool
}

// New creates a scheduler in automation mode.
func New(store Store, q Queue, bus *events.Bus, logger zerolog.Logger, cfg Config) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.DefaultName == "" {
		cfg.DefaultName = "Automation"
	}
	if cfg.MissedGrace <= 0 {
		cfg.MissedGrace = time.Hour
	}
	return &Scheduler{
		store:    store,
		queue:    q,
		bus:      bus,
		logger:   logger.With().Str("component", "showsched").Logger(),
		cfg:      cfg,
		now:      time.Now,
		mode:     ModeAutomation,
		fired:    make(map[string]time.Time),
		deferred: make(map[string]bool),
	}
}

// WithClock replaces the clock used by operator commands.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Mode returns the current mode.
func (s *Scheduler) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// InAutomation runs fn only while the scheduler is in automation mode. No
// show can take over the queue while fn runs. It reports whether fn ran.
func (s *Scheduler) InAutomation(fn func()) bool {
	s.switchMu.Lock()
	defer s.switchMu.Unlock()
	if s.Mode() != ModeAutomation {
		return false
	}
	fn()
	return true
}

// Current returns the show on air, if any.
func (s *Scheduler) Current() (Current, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Current{}, false
	}
	return *s.current, true
}

// DisplayName is the show name for now-playing announcements.
func (s *Scheduler) DisplayName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return s.cfg.DefaultName
	}
	return s.current.ShowName
}

// Poll fires due schedule entries. At most one show starts per poll.
func (s *Scheduler) Poll(ctx context.Context, now time.Time) (*models.ScheduleEntry, error) {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()

	entries, err := s.store.ActiveScheduleEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].TriggerTime.Before(entries[j].TriggerTime) })

	for i := range entries {
		entry := entries[i]
		if entry.TriggerTime.After(now) {
			break
		}
		if s.alreadyFired(entry) {
			continue
		}

		if now.Sub(entry.TriggerTime) > s.cfg.MissedGrace {
			s.missed(ctx, entry, now)
			continue
		}

		if s.Mode() == ModeShow && !entry.Override {
			s.deferEntry(ctx, entry, now)
			continue
		}

		err := s.start(ctx, entry.ShowID, &entry, entry.Override, now)
		switch {
		case err == nil:
			return &entry, nil
		case errors.Is(err, ErrShowRunning):
			// Lost a race with an operator start.
			s.deferEntry(ctx, entry, now)
		default:
			s.logger.Warn().Err(err).Str("entry", entry.ID).Str("show", entry.ShowID).Msg("scheduled show could not start")
			s.markFired(ctx, entry, now)
		}
	}
	return nil, nil
}

// PlayShow starts a show on operator request.
func (s *Scheduler) PlayShow(ctx context.Context, showID string, override bool) error {
	return s.start(ctx, showID, nil, override, s.now())
}

// StopShow ends the running show and drops its pending items.
func (s *Scheduler) StopShow(ctx context.Context) error {
	if !s.end(ctx, "stopped") {
		return ErrNoShow
	}
	return nil
}

// ShowCompleted returns to automation after the show's queue ran dry. It
// reports whether a show was running.
func (s *Scheduler) ShowCompleted(ctx context.Context) bool {
	return s.end(ctx, "completed")
}

// SetEntry validates, normalizes and stores a schedule entry.
func (s *Scheduler) SetEntry(ctx context.Context, entry *models.ScheduleEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	if _, err := s.store.GetShow(ctx, entry.ShowID); err != nil {
		return err
	}
	normalized, err := Normalize(*entry, s.cfg.Location)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	*entry = normalized
	if err := s.store.SaveScheduleEntry(ctx, entry); err != nil {
		return fmt.Errorf("save schedule entry: %w", err)
	}

	s.mu.Lock()
	delete(s.fired, entry.ID)
	delete(s.deferred, entry.ID)
	s.mu.Unlock()
	return nil
}

// NextOccurrence returns the next trigger of entry after t in the configured zone.
func (s *Scheduler) NextOccurrence(entry models.ScheduleEntry, t time.Time) (time.Time, error) {
	return NextOccurrence(entry, t, s.cfg.Location)
}

func (s *Scheduler) start(ctx context.Context, showID string, entry *models.ScheduleEntry, override bool, now time.Time) error {
	ctx, span := telemetry.StartSpan(ctx, "showsched.start", attribute.String("show", showID))
	defer span.End()

	show, err := s.store.GetShow(ctx, showID)
	if err != nil {
		telemetry.RecordError(span, err)
		if errors.Is(err, apperrors.ErrNotFound) {
			return fmt.Errorf("show %s: %w", showID, ErrShowNotFound)
		}
		return fmt.Errorf("load show %s: %w", showID, err)
	}
	items := ItemsFor(show)
	if len(items) == 0 {
		return fmt.Errorf("show %s: %w", show.Name, ErrShowEmpty)
	}

	s.switchMu.Lock()
	defer s.switchMu.Unlock()
	s.mu.Lock()
	if s.mode == ModeShow && !override {
		s.mu.Unlock()
		return ErrShowRunning
	}
	previous := s.current
	s.queue.Replace(items)
	s.mode = ModeShow
	s.current = &Current{ShowID: show.ID, ShowName: show.Name, StartedAt: now, Override: override}
	if entry != nil {
		s.current.EntryID = entry.ID
	}
	s.mu.Unlock()

	if entry != nil {
		s.markFired(ctx, *entry, now)
	}

	telemetry.ShowMode.Set(1)
	telemetry.ShowTransitionsTotal.WithLabelValues("start").Inc()
	if previous != nil {
		telemetry.ShowTransitionsTotal.WithLabelValues("end").Inc()
		s.publish(events.EventShowEnd, events.Payload{"show_id": previous.ShowID, "show_name": previous.ShowName, "reason": "override"})
	}
	payload := events.Payload{"show_id": show.ID, "show_name": show.Name, "items": len(items), "override": override}
	if entry != nil {
		payload["entry_id"] = entry.ID
	}
	s.publish(events.EventShowStart, payload)
	s.logger.Info().Str("show", show.Name).Int("items", len(items)).Bool("override", override).Msg("show started")
	return nil
}

func (s *Scheduler) end(ctx context.Context, reason string) bool {
	s.mu.Lock()
	if s.mode != ModeShow {
		s.mu.Unlock()
		return false
	}
	previous := s.current
	removed := s.queue.RemoveWhere(func(it models.QueueItem) bool { return it.InsertedBy == models.InsertedByShow })
	s.mode = ModeAutomation
	s.current = nil
	s.mu.Unlock()

	telemetry.ShowMode.Set(0)
	telemetry.ShowTransitionsTotal.WithLabelValues("end").Inc()
	s.publish(events.EventShowEnd, events.Payload{"show_id": previous.ShowID, "show_name": previous.ShowName, "reason": reason})
	s.logger.Info().Str("show", previous.ShowName).Str("reason", reason).Int("dropped", len(removed)).Msg("show ended")
	return true
}

// markFired moves a fired entry to its next occurrence, or deactivates a
// one-off entry. The in-memory mark holds even if the save fails.
func (s *Scheduler) markFired(ctx context.Context, entry models.ScheduleEntry, now time.Time) {
	s.mu.Lock()
	s.fired[entry.ID] = entry.TriggerTime
	delete(s.deferred, entry.ID)
	s.mu.Unlock()

	fired := now
	entry.LastFiredAt = &fired
	s.advance(ctx, &entry, now)
}

func (s *Scheduler) advance(ctx context.Context, entry *models.ScheduleEntry, now time.Time) {
	if entry.Repeat == models.RepeatOnce {
		entry.Active = false
	} else {
		next, err := NextOccurrence(*entry, now, s.cfg.Location)
		if err != nil {
			s.logger.Error().Err(err).Str("entry", entry.ID).Msg("cannot compute next occurrence, deactivating")
			entry.Active = false
		} else {
			entry.TriggerTime = next
		}
	}
	if err := s.store.SaveScheduleEntry(ctx, entry); err != nil {
		s.logger.Error().Err(err).Str("entry", entry.ID).Msg("failed to save schedule entry")
	}
}

// deferEntry handles a due entry that must not interrupt the running show:
// repeating entries move to their next cycle, one-off entries wait for
// automation to resume within the grace window.
func (s *Scheduler) deferEntry(ctx context.Context, entry models.ScheduleEntry, now time.Time) {
	s.mu.Lock()
	first := !s.deferred[entry.ID]
	s.deferred[entry.ID] = true
	s.mu.Unlock()

	if first {
		telemetry.ScheduleDeferralsTotal.Inc()
		s.publish(events.EventShowDeferred, events.Payload{"entry_id": entry.ID, "show_id": entry.ShowID})
		s.logger.Info().Str("entry", entry.ID).Str("show", entry.ShowID).Msg("show running, schedule entry deferred")
	}
	if entry.Repeat != models.RepeatOnce {
		s.mu.Lock()
		s.fired[entry.ID] = entry.TriggerTime
		delete(s.deferred, entry.ID)
		s.mu.Unlock()
		s.advance(ctx, &entry, now)
	}
}

func (s *Scheduler) missed(ctx context.Context, entry models.ScheduleEntry, now time.Time) {
	s.mu.Lock()
	s.fired[entry.ID] = entry.TriggerTime
	delete(s.deferred, entry.ID)
	s.mu.Unlock()

	s.publish(events.EventShowMissed, events.Payload{"entry_id": entry.ID, "show_id": entry.ShowID, "trigger_time": entry.TriggerTime})
	s.logger.Warn().Str("entry", entry.ID).Time("trigger_time", entry.TriggerTime).Msg("schedule entry missed")
	s.advance(ctx, &entry, now)
}

func (s *Scheduler) alreadyFired(entry models.ScheduleEntry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.fired[entry.ID]
	return ok && at.Equal(entry.TriggerTime)
}

func (s *Scheduler) publish(et events.EventType, p events.Payload) {
	if s.bus != nil {
		s.bus.Publish(et, p)
	}
}

// ItemsFor builds queue items for a show's playlist in position order.
// Items whose audio file is missing or inactive are skipped.
func ItemsFor(show *models.Show) []models.QueueItem {
	showItems := append([]models.ShowItem(nil), show.Items...)
	sort.SliceStable(showItems, func(i, j int) bool { return showItems[i].Position < showItems[j].Position })

	items := make([]models.QueueItem, 0, len(showItems))
	for _, si := range showItems {
		if si.AudioFile == nil || !si.AudioFile.Active {
			continue
		}
		item := models.NewQueueItem(*si.AudioFile, models.InsertedByShow)
		item.ShowItemID = si.ID
		items = append(items, item)
	}
	return items
}
