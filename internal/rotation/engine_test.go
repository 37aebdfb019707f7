/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package rotation

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/onair/internal/models"
	"github.com/friendsincode/onair/internal/queue"
)

type memStore struct {
	mu      sync.Mutex
	rules   []models.RotationRule
	files   map[models.Category][]models.AudioFile
	history []models.PlayHistoryEntry
}

func newMemStore() *memStore {
	return &memStore{files: make(map[models.Category][]models.AudioFile)}
}

func (m *memStore) ListRules(context.Context) ([]models.RotationRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.RotationRule(nil), m.rules...), nil
}

func (m *memStore) FilesByCategory(_ context.Context, c models.Category) ([]models.AudioFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.AudioFile(nil), m.files[c]...), nil
}

func (m *memStore) AppendHistory(_ context.Context, e *models.PlayHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, *e)
	return nil
}

func (m *memStore) HistorySince(_ context.Context, since time.Time) ([]models.PlayHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PlayHistoryEntry
	for _, e := range m.history {
		if !e.PlayedAt.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) LastRuleFiring(_ context.Context, ruleID string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var last time.Time
	found := false
	for _, e := range m.history {
		if e.RuleID != nil && *e.RuleID == ruleID && e.PlayedAt.After(last) {
			last = e.PlayedAt
			found = true
		}
	}
	return last, found, nil
}

func (m *memStore) addFiles(c models.Category, names ...string) {
	for _, n := range names {
		m.files[c] = append(m.files[c], models.AudioFile{
			ID:       string(c) + "-" + n,
			Category: c,
			Path:     "/media/" + string(c) + "/" + n + ".mp3",
			Title:    n,
			Duration: 3 * time.Minute,
			Active:   true,
		})
	}
}

func rule(id string, kind models.RuleKind, value int, c models.Category, priority, position int) models.RotationRule {
	return models.RotationRule{
		ID:       id,
		Name:     id,
		Kind:     kind,
		Value:    value,
		Category: c,
		Priority: priority,
		Position: position,
		Enabled:  true,
	}
}

var t0 = time.Date(2026, 3, 2, 14, 7, 0, 0, time.UTC) // a Monday

func newTestEngine(t *testing.T, store *memStore, cfg Config) (*Engine, *queue.Queue) {
	t.Helper()
	q := queue.New()
	e := NewEngine(store, q, zerolog.Nop(), cfg).WithRand(rand.New(rand.NewSource(1)))
	if err := e.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	return e, q
}

func playMusic(t *testing.T, e *Engine, n int, start time.Time) time.Time {
	t.Helper()
	at := start
	for i := 0; i < n; i++ {
		at = at.Add(3 * time.Minute)
		item := models.QueueItem{ID: "m", Source: "/media/music/x.mp3", Category: models.CategoryMusic, InsertedBy: models.InsertedByRotation}
		if err := e.RecordPlay(context.Background(), item, at); err != nil {
			t.Fatalf("record play: %v", err)
		}
	}
	return at
}

func TestAfterSongsFiresOnceAndResets(t *testing.T) {
	store := newMemStore()
	store.addFiles(models.CategoryJingles, "j1", "j2")
	store.rules = []models.RotationRule{rule("r1", models.RuleAfterSongs, 3, models.CategoryJingles, 1, 0)}
	e, q := newTestEngine(t, store, Config{})
	ctx := context.Background()

	now := playMusic(t, e, 2, t0)
	res, err := e.Tick(ctx, now)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if res.Fired != nil || q.Len() != 0 {
		t.Fatalf("rule fired after 2 songs")
	}

	now = playMusic(t, e, 1, now)
	res, err = e.Tick(ctx, now)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if res.Fired == nil || res.Fired.ID != "r1" {
		t.Fatalf("expected r1 to fire, got %+v", res)
	}
	if q.Len() != 1 {
		t.Fatalf("queue len = %d, want 1", q.Len())
	}
	head, _ := q.Head()
	if head.Category != models.CategoryJingles || head.InsertedBy != models.InsertedByRotation || head.RuleID != "r1" {
		t.Fatalf("unexpected head %+v", head)
	}

	// Counter reset: a concurrent or repeated tick must not insert again.
	res, _ = e.Tick(ctx, now)
	if res.Fired != nil || q.Len() != 1 {
		t.Fatalf("rule fired twice for the same songs")
	}

	var ruleEntries int
	for _, h := range store.history {
		if h.RuleID != nil && *h.RuleID == "r1" {
			ruleEntries++
		}
	}
	if ruleEntries != 1 {
		t.Fatalf("rule history entries = %d, want 1", ruleEntries)
	}
}

func TestNonMusicPlaysDoNotCount(t *testing.T) {
	store := newMemStore()
	store.addFiles(models.CategoryAds, "a1")
	store.rules = []models.RotationRule{rule("r1", models.RuleAfterSongs, 2, models.CategoryAds, 1, 0)}
	e, q := newTestEngine(t, store, Config{})
	ctx := context.Background()

	now := playMusic(t, e, 1, t0)
	for i := 0; i < 3; i++ {
		now = now.Add(time.Minute)
		_ = e.RecordPlay(ctx, models.QueueItem{Category: models.CategoryPromos, InsertedBy: models.InsertedByManual}, now)
	}
	if res, _ := e.Tick(ctx, now); res.Fired != nil || q.Len() != 0 {
		t.Fatalf("promo plays counted as songs")
	}
}

func TestHighestPriorityWins(t *testing.T) {
	store := newMemStore()
	store.addFiles(models.CategoryPromos, "p1")
	store.addFiles(models.CategoryAds, "a1")
	store.rules = []models.RotationRule{
		rule("low", models.RuleEveryInterval, 10, models.CategoryPromos, 5, 0),
		rule("high", models.RuleEveryInterval, 10, models.CategoryAds, 10, 1),
	}
	e, q := newTestEngine(t, store, Config{})

	res, err := e.Tick(context.Background(), t0)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if res.Fired == nil || res.Fired.ID != "high" {
		t.Fatalf("expected high to fire, got %+v", res.Fired)
	}
	if q.Len() != 1 {
		t.Fatalf("queue len = %d, want 1", q.Len())
	}
	if _, fired := e.LastFired("low"); fired {
		t.Fatalf("lower priority rule was evaluated")
	}

	// The lower rule still fires on the next tick.
	res, _ = e.Tick(context.Background(), t0.Add(time.Second))
	if res.Fired == nil || res.Fired.ID != "low" {
		t.Fatalf("expected low to fire on next tick, got %+v", res.Fired)
	}
}

func TestPriorityTieUsesDefinitionOrder(t *testing.T) {
	store := newMemStore()
	store.addFiles(models.CategoryPromos, "p1")
	store.addFiles(models.CategoryAds, "a1")
	store.rules = []models.RotationRule{
		rule("second", models.RuleEveryInterval, 10, models.CategoryAds, 5, 2),
		rule("first", models.RuleEveryInterval, 10, models.CategoryPromos, 5, 1),
	}
	e, _ := newTestEngine(t, store, Config{})

	res, _ := e.Tick(context.Background(), t0)
	if res.Fired == nil || res.Fired.ID != "first" {
		t.Fatalf("expected first by definition order, got %+v", res.Fired)
	}
}

func TestEmptyPoolSkipsRule(t *testing.T) {
	store := newMemStore()
	store.addFiles(models.CategoryPromos, "p1")
	store.rules = []models.RotationRule{
		rule("empty", models.RuleEveryInterval, 10, models.CategoryAds, 10, 0),
		rule("fallback", models.RuleEveryInterval, 10, models.CategoryPromos, 1, 1),
	}
	e, q := newTestEngine(t, store, Config{})
	ctx := context.Background()

	res, err := e.Tick(ctx, t0)
	if err != nil {
		t.Fatalf("empty pool must not fail the tick: %v", err)
	}
	if len(res.Skipped) != 1 || res.Skipped[0].Rule.ID != "empty" || !errors.Is(res.Skipped[0].Err, ErrEmptyPool) {
		t.Fatalf("expected empty rule skipped, got %+v", res.Skipped)
	}
	if res.Fired == nil || res.Fired.ID != "fallback" || q.Len() != 1 {
		t.Fatalf("expected fallback to fire, got %+v", res.Fired)
	}

	// The skipped rule waits for its next natural trigger.
	store.addFiles(models.CategoryAds, "a1")
	res, _ = e.Tick(ctx, t0.Add(5*time.Minute))
	if res.Fired != nil {
		t.Fatalf("skipped rule retried before its interval: %+v", res.Fired)
	}
	res, _ = e.Tick(ctx, t0.Add(10*time.Minute))
	if res.Fired == nil || res.Fired.ID != "empty" {
		t.Fatalf("expected rule to fire after interval, got %+v", res.Fired)
	}
}

func TestAtMinuteFiresOncePerHour(t *testing.T) {
	store := newMemStore()
	store.addFiles(models.CategoryRandomModeration, "m1")
	store.rules = []models.RotationRule{rule("top", models.RuleAtMinute, 0, models.CategoryRandomModeration, 1, 0)}
	e, q := newTestEngine(t, store, Config{})
	ctx := context.Background()

	hour := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	for s := 0; s < 60; s += 5 {
		if _, err := e.Tick(ctx, hour.Add(time.Duration(s)*time.Second)); err != nil {
			t.Fatalf("tick: %v", err)
		}
	}
	if q.Len() != 1 {
		t.Fatalf("at_minute inserted %d items within one minute", q.Len())
	}
	if res, _ := e.Tick(ctx, hour.Add(30*time.Minute)); res.Fired != nil {
		t.Fatalf("fired outside its minute")
	}
	if res, _ := e.Tick(ctx, hour.Add(time.Hour)); res.Fired == nil {
		t.Fatalf("expected firing in the next hour")
	}
}

func TestActiveWindowAndDisabled(t *testing.T) {
	store := newMemStore()
	store.addFiles(models.CategoryAds, "a1")
	windowed := rule("windowed", models.RuleEveryInterval, 1, models.CategoryAds, 1, 0)
	windowed.Window = models.ActiveWindow{Start: "06:00", End: "09:00", Weekdays: []time.Weekday{time.Monday}}
	disabled := rule("disabled", models.RuleEveryInterval, 1, models.CategoryAds, 1, 1)
	disabled.Enabled = false
	store.rules = []models.RotationRule{windowed, disabled}
	e, _ := newTestEngine(t, store, Config{})
	ctx := context.Background()

	if res, _ := e.Tick(ctx, t0); res.Fired != nil {
		t.Fatalf("fired outside window: %+v", res.Fired)
	}
	morning := time.Date(2026, 3, 2, 7, 30, 0, 0, time.UTC)
	if res, _ := e.Tick(ctx, morning); res.Fired == nil || res.Fired.ID != "windowed" {
		t.Fatalf("expected windowed rule inside window, got %+v", res.Fired)
	}
	tuesday := morning.Add(24 * time.Hour)
	if res, _ := e.Tick(ctx, tuesday); res.Fired != nil {
		t.Fatalf("fired on wrong weekday")
	}
}

func TestWindowUsesConfiguredLocation(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	store := newMemStore()
	store.addFiles(models.CategoryAds, "a1")
	r := rule("evening", models.RuleEveryInterval, 1, models.CategoryAds, 1, 0)
	r.Window = models.ActiveWindow{Start: "20:00", End: "20:59"}
	store.rules = []models.RotationRule{r}
	e, _ := newTestEngine(t, store, Config{Location: loc})

	// 19:30 UTC is 20:30 local.
	if res, _ := e.Tick(context.Background(), time.Date(2026, 3, 2, 19, 30, 0, 0, time.UTC)); res.Fired == nil {
		t.Fatalf("window should be evaluated in local time")
	}
}

func TestReplenishKeepsMusicPending(t *testing.T) {
	store := newMemStore()
	store.addFiles(models.CategoryMusic, "s1", "s2", "s3")
	e, q := newTestEngine(t, store, Config{MinPending: 2, MusicAvoidWindow: time.Hour})
	ctx := context.Background()

	res, err := e.Tick(ctx, t0)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(res.Replenished) != 2 || q.Len() != 2 {
		t.Fatalf("replenished %d, queue %d; want 2", len(res.Replenished), q.Len())
	}
	items := q.Snapshot().Items
	if items[0].AudioFileID == items[1].AudioFileID {
		t.Fatalf("same track queued twice")
	}

	res, _ = e.Tick(ctx, t0.Add(time.Second))
	if len(res.Replenished) != 0 {
		t.Fatalf("replenished a full queue")
	}
}

func TestReplenishEmptyMusicPool(t *testing.T) {
	e, q := newTestEngine(t, newMemStore(), Config{MinPending: 1})
	_, err := e.Tick(context.Background(), t0)
	if !errors.Is(err, ErrEmptyPool) {
		t.Fatalf("expected ErrEmptyPool, got %v", err)
	}
	if q.Len() != 0 {
		t.Fatalf("queue should stay empty")
	}
}

func TestRuleInsertionPrecedesOrganic(t *testing.T) {
	store := newMemStore()
	store.addFiles(models.CategoryMusic, "s1", "s2")
	store.addFiles(models.CategoryJingles, "j1")
	store.rules = []models.RotationRule{rule("j", models.RuleEveryInterval, 30, models.CategoryJingles, 1, 0)}
	e, q := newTestEngine(t, store, Config{MinPending: 1})
	q.Enqueue(models.QueueItem{ID: "organic", Category: models.CategoryMusic})

	if _, err := e.Tick(context.Background(), t0); err != nil {
		t.Fatalf("tick: %v", err)
	}
	items := q.Snapshot().Items
	if len(items) != 2 || items[0].Category != models.CategoryJingles || items[1].ID != "organic" {
		t.Fatalf("rule item should be inserted ahead of organic picks: %v", items)
	}
}

func TestRestoreRebuildsRuleState(t *testing.T) {
	store := newMemStore()
	store.addFiles(models.CategoryJingles, "j1")
	store.rules = []models.RotationRule{rule("r1", models.RuleAfterSongs, 2, models.CategoryJingles, 1, 0)}
	ctx := context.Background()

	first, _ := newTestEngine(t, store, Config{})
	now := playMusic(t, first, 2, t0)
	if res, _ := first.Tick(ctx, now); res.Fired == nil {
		t.Fatalf("expected firing before restart")
	}
	now = playMusic(t, first, 1, now)

	restarted := NewEngine(store, queue.New(), zerolog.Nop(), Config{}).WithRand(rand.New(rand.NewSource(2)))
	if err := restarted.Restore(ctx, now); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if res, _ := restarted.Tick(ctx, now); res.Fired != nil {
		t.Fatalf("rule re-fired after restart with one song since last firing")
	}
	now = playMusic(t, restarted, 1, now)
	if res, _ := restarted.Tick(ctx, now); res.Fired == nil {
		t.Fatalf("rule should fire after the second song")
	}
}

func TestReloadSkipsInvalidRules(t *testing.T) {
	store := newMemStore()
	store.rules = []models.RotationRule{
		rule("ok", models.RuleAtMinute, 15, models.CategoryAds, 1, 0),
		rule("bad", models.RuleAtMinute, 75, models.CategoryAds, 1, 1),
	}
	e, _ := newTestEngine(t, store, Config{})
	rules := e.Rules()
	if len(rules) != 1 || rules[0].ID != "ok" {
		t.Fatalf("rules = %+v", rules)
	}
}
