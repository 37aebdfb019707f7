/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package rotation decides which rule-driven items and organic music picks
// enter the playback queue.
package rotation

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/friendsincode/onair/internal/apperrors"
	"github.com/friendsincode/onair/internal/models"
	"github.com/friendsincode/onair/internal/queue"
	"github.com/friendsincode/onair/internal/rotation/state"
	"github.com/friendsincode/onair/internal/telemetry"
)

// ErrEmptyPool is reported when a category has no active files.
var ErrEmptyPool = fmt.Errorf("%w: category pool empty", apperrors.ErrEmptyResource)

// historyKeep is the minimum number of plays retained in memory regardless of age.
const historyKeep = 256

// Store is the persistence the engine needs.
type Store interface {
	ListRules(ctx context.Context) ([]models.RotationRule, error)
	FilesByCategory(ctx context.Context, category models.Category) ([]models.AudioFile, error)
	AppendHistory(ctx context.Context, entry *models.PlayHistoryEntry) error
	HistorySince(ctx context.Context, since time.Time) ([]models.PlayHistoryEntry, error)
	LastRuleFiring(ctx context.Context, ruleID string) (time.Time, bool, error)
}

// Queue is the subset of the playback queue the engine mutates.
type Queue interface {
	InsertAt(index int, item models.QueueItem) error
	Enqueue(item models.QueueItem)
	Snapshot() queue.Status
}

// Config tunes rotation behaviour.
type Config struct {
	Location         *time.Location
	MusicAvoidWindow time.Duration
	RuleAvoidWindow  time.Duration
	MinPending       int
	HistoryRetention time.Duration
}

// SkippedRule records a triggered rule that could not insert anything.
type SkippedRule struct {
	Rule models.RotationRule
	Err  error
}

// TickResult describes what one evaluation changed.
type TickResult struct {
	Fired       *models.RotationRule
	Inserted    *models.QueueItem
	Skipped     []SkippedRule
	Replenished []models.QueueItem
}

// Engine evaluates rotation rules against play history.
type Engine struct {
	store   Store
	queue   Queue
	history *state.Store
	logger  zerolog.Logger
	cfg     Config

	mu        sync.Mutex
	rng       *rand.Rand
	rules     []models.RotationRule
	lastFired map[string]time.Time
}

// NewEngine creates a rotation engine.
func NewEngine(store Store, q Queue, logger zerolog.Logger, cfg Config) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.HistoryRetention <= 0 {
		cfg.HistoryRetention = 24 * time.Hour
	}
	return &Engine{
		store:     store,
		queue:     q,
		history:   state.NewStore(),
		logger:    logger.With().Str("component", "rotation").Logger(),
		cfg:       cfg,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		lastFired: make(map[string]time.Time),
	}
}

// WithRand replaces the random source.
func (e *Engine) WithRand(rng *rand.Rand) *Engine {
	e.mu.Lock()
	e.rng = rng
	e.mu.Unlock()
	return e
}

// Reload reads the rule set from the store. Invalid rules are skipped.
func (e *Engine) Reload(ctx context.Context) error {
	rules, err := e.store.ListRules(ctx)
	if err != nil {
		return fmt.Errorf("list rules: %w", err)
	}

	valid := make([]models.RotationRule, 0, len(rules))
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			e.logger.Warn().Err(err).Str("rule", r.Name).Msg("ignoring invalid rotation rule")
			continue
		}
		valid = append(valid, r)
	}
	sort.SliceStable(valid, func(i, j int) bool { return valid[i].Position < valid[j].Position })

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = valid
	known := make(map[string]bool, len(valid))
	for _, r := range valid {
		known[r.ID] = true
	}
	for id := range e.lastFired {
		if !known[id] {
			delete(e.lastFired, id)
		}
	}
	e.logger.Debug().Int("rules", len(valid)).Msg("rotation rules loaded")
	return nil
}

// Restore loads rules, recent history and each rule's last firing so a
// restart neither re-fires rules nor forgets song counts.
func (e *Engine) Restore(ctx context.Context, now time.Time) error {
	if err := e.Reload(ctx); err != nil {
		return err
	}
	entries, err := e.store.HistorySince(ctx, now.Add(-e.cfg.HistoryRetention))
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	for _, entry := range entries {
		e.history.Add(state.FromEntry(entry))
	}

	e.mu.Lock()
	rules := append([]models.RotationRule(nil), e.rules...)
	e.mu.Unlock()

	fired := make(map[string]time.Time, len(rules))
	for _, r := range rules {
		at, ok, err := e.store.LastRuleFiring(ctx, r.ID)
		if err != nil {
			return fmt.Errorf("last firing of %s: %w", r.Name, err)
		}
		if ok {
			fired[r.ID] = at
		}
	}

	e.mu.Lock()
	for id, at := range fired {
		e.lastFired[id] = at
	}
	e.mu.Unlock()

	e.logger.Info().Int("history", len(entries)).Int("rules", len(rules)).Msg("rotation state restored")
	return nil
}

// Rules returns the loaded rule set in definition order.
func (e *Engine) Rules() []models.RotationRule {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.RotationRule(nil), e.rules...)
}

// LastFired returns when a rule last fired.
func (e *Engine) LastFired(ruleID string) (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	at, ok := e.lastFired[ruleID]
	return at, ok
}

// RecordPlay appends an on-air item to history. Rule insertions are recorded
// when they are inserted and are ignored here.
func (e *Engine) RecordPlay(ctx context.Context, item models.QueueItem, at time.Time) error {
	if item.RuleID != "" {
		return nil
	}
	entry := historyEntry(item, at)
	e.history.Add(state.FromEntry(*entry))
	e.history.Prune(at.Add(-e.cfg.HistoryRetention), historyKeep)
	if err := e.store.AppendHistory(ctx, entry); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// Tick evaluates all rules once. At most one rule inserts an item per tick.
// When no rule inserts, the queue is topped up with organic music.
func (e *Engine) Tick(ctx context.Context, now time.Time) (TickResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "rotation.tick")
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	var result TickResult
	for _, rule := range e.candidatesLocked(now) {
		pool, err := e.store.FilesByCategory(ctx, rule.Category)
		if err != nil {
			telemetry.RecordError(span, err)
			return result, fmt.Errorf("load %s pool: %w", rule.Category, err)
		}

		// The trigger is consumed even when nothing can be inserted.
		e.lastFired[rule.ID] = now

		file, ok := Pick(e.rng, pool, e.history.Recent(), now, Policy{AvoidWindow: e.cfg.RuleAvoidWindow})
		if !ok {
			telemetry.RotationEmptyPoolTotal.WithLabelValues(string(rule.Category)).Inc()
			e.logger.Warn().Str("rule", rule.Name).Str("category", string(rule.Category)).Msg("rule triggered with empty pool, skipping")
			result.Skipped = append(result.Skipped, SkippedRule{Rule: rule, Err: ErrEmptyPool})
			continue
		}

		item := models.NewQueueItem(file, models.InsertedByRotation)
		item.RuleID = rule.ID
		if err := e.queue.InsertAt(0, item); err != nil {
			return result, fmt.Errorf("insert rule item: %w", err)
		}
		e.recordRuleLocked(ctx, item, now)

		fired := rule
		result.Fired = &fired
		result.Inserted = &item
		telemetry.RotationInsertionsTotal.WithLabelValues(string(rule.Category), "rule").Inc()
		span.SetAttributes(attribute.String("rule", rule.Name), attribute.String("category", string(rule.Category)))
		e.logger.Info().
			Str("rule", rule.Name).
			Str("category", string(rule.Category)).
			Str("title", item.Title).
			Msg("rotation rule fired")
		return result, nil
	}

	replenished, err := e.replenishLocked(ctx, now)
	result.Replenished = replenished
	if err != nil {
		telemetry.RecordError(span, err)
	}
	return result, err
}

func (e *Engine) candidatesLocked(now time.Time) []models.RotationRule {
	local := now.In(e.cfg.Location)
	var out []models.RotationRule
	for _, rule := range e.rules {
		if !rule.Enabled || !rule.Window.Contains(local) {
			continue
		}
		if e.triggeredLocked(rule, local) {
			out = append(out, rule)
		}
	}
	// Rules are held in definition order, so a stable sort keeps it as the tie-break.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

func (e *Engine) triggeredLocked(rule models.RotationRule, local time.Time) bool {
	last, fired := e.lastFired[rule.ID]
	switch rule.Kind {
	case models.RuleAfterSongs:
		songs := e.history.CountSince(last, func(p state.Play) bool { return p.Category.CountsAsSong() })
		return songs >= rule.Value
	case models.RuleAtMinute:
		if local.Minute() != rule.Value {
			return false
		}
		return !fired || !sameHour(last.In(local.Location()), local)
	case models.RuleEveryInterval:
		if !fired {
			return true
		}
		return local.Sub(last) >= time.Duration(rule.Value)*time.Minute
	default:
		return false
	}
}

func sameHour(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay() && a.Hour() == b.Hour()
}

func (e *Engine) replenishLocked(ctx context.Context, now time.Time) ([]models.QueueItem, error) {
	if e.cfg.MinPending <= 0 {
		return nil, nil
	}
	status := e.queue.Snapshot()
	pending := 0
	queued := make(map[string]bool, len(status.Items))
	for _, it := range status.Items {
		if it.Category.CountsAsSong() {
			pending++
		}
		queued[it.AudioFileID] = true
	}
	if pending >= e.cfg.MinPending {
		return nil, nil
	}

	pool, err := e.store.FilesByCategory(ctx, models.CategoryMusic)
	if err != nil {
		return nil, fmt.Errorf("load music pool: %w", err)
	}

	var added []models.QueueItem
	history := e.history.Recent()
	for pending < e.cfg.MinPending {
		candidates := make([]models.AudioFile, 0, len(pool))
		for _, f := range pool {
			if !queued[f.ID] {
				candidates = append(candidates, f)
			}
		}
		if len(candidates) == 0 {
			candidates = pool
		}
		file, ok := Pick(e.rng, candidates, history, now, Policy{AvoidWindow: e.cfg.MusicAvoidWindow})
		if !ok {
			telemetry.RotationEmptyPoolTotal.WithLabelValues(string(models.CategoryMusic)).Inc()
			e.logger.Warn().Msg("music pool empty, queue cannot be replenished")
			return added, ErrEmptyPool
		}
		item := models.NewQueueItem(file, models.InsertedByRotation)
		e.queue.Enqueue(item)
		queued[file.ID] = true
		added = append(added, item)
		pending++
		telemetry.RotationInsertionsTotal.WithLabelValues(string(models.CategoryMusic), "replenish").Inc()
		e.logger.Debug().Str("title", item.Title).Msg("queue replenished")
	}
	return added, nil
}

func (e *Engine) recordRuleLocked(ctx context.Context, item models.QueueItem, at time.Time) {
	entry := historyEntry(item, at)
	e.history.Add(state.FromEntry(*entry))
	if err := e.store.AppendHistory(ctx, entry); err != nil {
		e.logger.Warn().Err(err).Str("rule", item.RuleID).Msg("failed to persist rule firing")
	}
}

func historyEntry(item models.QueueItem, at time.Time) *models.PlayHistoryEntry {
	entry := &models.PlayHistoryEntry{
		ID:         uuid.NewString(),
		Category:   item.Category,
		PlayedAt:   at,
		Title:      item.Title,
		Artist:     item.Artist,
		Filename:   item.Source,
		InsertedBy: item.InsertedBy,
	}
	if item.RuleID != "" {
		id := item.RuleID
		entry.RuleID = &id
	}
	if item.AudioFileID != "" {
		id := item.AudioFileID
		entry.AudioFileID = &id
	}
	return entry
}
