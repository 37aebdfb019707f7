/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/friendsincode/onair/internal/apperrors"
	"github.com/friendsincode/onair/internal/engine"
	"github.com/friendsincode/onair/internal/events"
	"github.com/friendsincode/onair/internal/mix"
	"github.com/friendsincode/onair/internal/models"
	"github.com/friendsincode/onair/internal/queue"
	"github.com/friendsincode/onair/internal/rotation"
	"github.com/friendsincode/onair/internal/showsched"
	"github.com/friendsincode/onair/internal/telemetry"
)

// ErrFileInactive is returned when an operator enqueues a disabled file.
var ErrFileInactive = fmt.Errorf("%w: audio file is inactive", apperrors.ErrValidation)

// Library is the persistence the director reads on track start and for
// operator commands.
type Library interface {
	GetFile(ctx context.Context, id string) (*models.AudioFile, error)
	FileByPath(ctx context.Context, p string) (*models.AudioFile, error)
	RecordPlayStats(ctx context.Context, fileID string, at time.Time) error
	SaveRule(ctx context.Context, rule *models.RotationRule) error
	DeleteRule(ctx context.Context, id string) error
}

// Config tunes the automation loop.
type Config struct {
	RotationTick   time.Duration
	SchedulePoll   time.Duration
	HealthInterval time.Duration
	HealthMargin   time.Duration
	MediaRoot      string
}

func (c *Config) applyDefaults() {
	if c.RotationTick <= 0 {
		c.RotationTick = 30 * time.Second
	}
	if c.SchedulePoll <= 0 {
		c.SchedulePoll = 5 * time.Second
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = 10 * time.Second
	}
	if c.HealthMargin <= 0 {
		c.HealthMargin = 30 * time.Second
	}
}

// trackKey identifies one TRACK_STARTED report so redeliveries are ignored.
type trackKey struct {
	filename  string
	startedAt time.Time
}

// Director joins the queue, rotation, shows, mix and engine into the
// automation loop. Engine callbacks are consumed from a channel by Run.
type Director struct {
	queue    *queue.Queue
	rotation *rotation.Engine
	shows    *showsched.Scheduler
	mix      *mix.Controller
	engine   engine.Adapter
	library  Library
	bus      *events.Bus
	logger   zerolog.Logger
	cfg      Config
	now      func() time.Time

	kick chan struct{}

	// trackMu serializes track-start handling with safety ticks.
	trackMu sync.Mutex

	mu             sync.Mutex
	lastTrackStart time.Time
	lastTrack      trackKey
	pushedID       string
	stalled        bool
}

// NewDirector wires the playout services together and starts pushing the
// queue head to the engine on every queue change.
func NewDirector(
	q *queue.Queue,
	rot *rotation.Engine,
	shows *showsched.Scheduler,
	mixer *mix.Controller,
	eng engine.Adapter,
	library Library,
	bus *events.Bus,
	logger zerolog.Logger,
	cfg Config,
) *Director {
	cfg.applyDefaults()
	d := &Director{
		queue:    q,
		rotation: rot,
		shows:    shows,
		mix:      mixer,
		engine:   eng,
		library:  library,
		bus:      bus,
		logger:   logger.With().Str("component", "playout").Logger(),
		cfg:      cfg,
		now:      time.Now,
		kick:     make(chan struct{}, 1),
	}
	q.OnChange(d.onQueueChange)
	return d
}

// WithClock overrides the clock.
func (d *Director) WithClock(now func() time.Time) *Director {
	d.now = now
	return d
}

// Run executes the automation loop until context cancellation.
func (d *Director) Run(ctx context.Context) error {
	d.logger.Info().Msg("playout director started")

	d.mix.Resync()
	d.safetyTick(ctx, "startup")
	d.pollSchedule(ctx)

	rotationTicker := time.NewTicker(d.cfg.RotationTick)
	defer rotationTicker.Stop()
	scheduleTicker := time.NewTicker(d.cfg.SchedulePoll)
	defer scheduleTicker.Stop()
	healthTicker := time.NewTicker(d.cfg.HealthInterval)
	defer healthTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("playout director stopped")
			return ctx.Err()
		case ev := <-d.engine.Events():
			d.HandleEvent(ctx, ev)
		case <-rotationTicker.C:
			d.safetyTick(ctx, "timer")
		case <-d.kick:
			d.safetyTick(ctx, "operator")
		case <-scheduleTicker.C:
			d.pollSchedule(ctx)
		case <-healthTicker.C:
			d.emitHealth(d.Health(d.now()))
		}
	}
}

// HandleEvent applies one engine callback.
func (d *Director) HandleEvent(ctx context.Context, ev engine.Event) {
	switch ev.Kind {
	case engine.EventTrackStarted:
		d.TrackStarted(ctx, ev.Track)
	case engine.EventEngineError:
		telemetry.EngineErrorsTotal.Inc()
		d.logger.Warn().Str("reason", ev.Reason).Msg("engine reported an error")
		d.bus.Publish(events.EventEngineError, events.Payload{
			"reason": ev.Reason,
			"at":     d.now().UTC(),
		})
	case engine.EventJingleFinished:
		d.mix.JingleFinished(ev.Slot)
	default:
		d.logger.Debug().Str("kind", string(ev.Kind)).Msg("ignoring unknown engine event")
	}
}

// TrackStarted reconciles the queue with what the engine actually started.
// The head is advanced when it matches the reported file; anything else is
// accepted as now playing without touching pending items.
func (d *Director) TrackStarted(ctx context.Context, info engine.TrackInfo) {
	ctx, span := telemetry.StartSpan(ctx, "playout.track_started", attribute.String("filename", info.Filename))
	defer span.End()

	d.trackMu.Lock()
	defer d.trackMu.Unlock()

	startedAt := info.StartedAt
	if startedAt.IsZero() {
		startedAt = d.now()
	}

	key := trackKey{filename: info.Filename, startedAt: startedAt.UTC()}
	d.mu.Lock()
	duplicate := !info.StartedAt.IsZero() && key == d.lastTrack
	d.mu.Unlock()
	if duplicate {
		d.logger.Debug().Str("filename", info.Filename).Msg("duplicate track-started report ignored")
		return
	}

	item, advanced := d.reconcile(ctx, info, startedAt)

	d.mu.Lock()
	d.lastTrack = key
	d.lastTrackStart = startedAt
	d.mu.Unlock()

	telemetry.TracksStartedTotal.WithLabelValues(categoryLabel(item.Category)).Inc()
	telemetry.SecondsSinceTrackStart.Set(0)

	if item.AudioFileID != "" {
		if err := d.library.RecordPlayStats(ctx, item.AudioFileID, startedAt); err != nil {
			d.logger.Warn().Err(err).Str("file", item.AudioFileID).Msg("failed to record play stats")
		}
	}
	if err := d.rotation.RecordPlay(ctx, item, startedAt); err != nil {
		telemetry.RecordError(span, err)
		d.logger.Warn().Err(err).Msg("failed to record play history")
	}

	d.publishNowPlaying(item, startedAt)

	if d.shows.Mode() == showsched.ModeShow && d.queue.Len() == 0 {
		// The show's last item is on air; automation queues what follows.
		d.shows.ShowCompleted(ctx)
	}

	d.shows.InAutomation(func() { d.tick(ctx, startedAt, "track_started") })

	d.logger.Info().
		Str("title", item.Title).
		Str("filename", info.Filename).
		Bool("advanced", advanced).
		Msg("track started")
}

func (d *Director) reconcile(ctx context.Context, info engine.TrackInfo, startedAt time.Time) (models.QueueItem, bool) {
	if head, ok := d.queue.Head(); ok && sameFile(head.Source, info.Filename) {
		item, err := d.queue.Advance()
		if err == nil {
			// Advance stamps its own clock; keep the engine's start time.
			item = mergeInfo(item, info)
			d.queue.SetNowPlaying(item, startedAt)
			return item, true
		}
	}

	if np, _, ok := d.queue.NowPlaying(); ok && info.Filename == "" {
		item := mergeInfo(np, info)
		d.queue.SetNowPlaying(item, startedAt)
		return item, false
	}

	if d.queue.Len() == 0 && d.shows.Mode() == showsched.ModeShow {
		d.shows.ShowCompleted(ctx)
	}

	item := d.itemFor(ctx, info)
	d.queue.SetNowPlaying(item, startedAt)
	return item, false
}

// itemFor builds a queue item for audio the queue did not predict.
func (d *Director) itemFor(ctx context.Context, info engine.TrackInfo) models.QueueItem {
	if info.Filename != "" {
		f, err := d.library.FileByPath(ctx, info.Filename)
		switch {
		case err == nil:
			return mergeInfo(models.NewQueueItem(*f, models.InsertedByEngine), info)
		case !errors.Is(err, apperrors.ErrNotFound):
			d.logger.Warn().Err(err).Str("filename", info.Filename).Msg("library lookup failed")
		}
	}

	item := models.NewQueueItem(models.AudioFile{
		Path:     info.Filename,
		Filename: path.Base(info.Filename),
		Category: models.CategoryFromPath(d.cfg.MediaRoot, info.Filename),
	}, models.InsertedByEngine)
	return mergeInfo(item, info)
}

// mergeInfo lets engine-reported metadata win over library metadata.
func mergeInfo(item models.QueueItem, info engine.TrackInfo) models.QueueItem {
	if info.Title != "" {
		item.Title = info.Title
	}
	if info.Artist != "" {
		item.Artist = info.Artist
	}
	if info.Duration > 0 {
		item.Duration = info.Duration
	}
	if info.Filename != "" && item.Source == "" {
		item.Source = info.Filename
	}
	return item
}

func sameFile(source, reported string) bool {
	if source == "" || reported == "" {
		return false
	}
	return source == reported || path.Base(source) == path.Base(reported)
}

func categoryLabel(c models.Category) string {
	if c == "" {
		return "unknown"
	}
	return string(c)
}

func (d *Director) safetyTick(ctx context.Context, trigger string) {
	d.trackMu.Lock()
	defer d.trackMu.Unlock()
	d.shows.InAutomation(func() { d.tick(ctx, d.now(), trigger) })
}

// tick runs one rotation evaluation. Callers hold trackMu.
func (d *Director) tick(ctx context.Context, now time.Time, trigger string) {
	telemetry.RotationTicksTotal.WithLabelValues(trigger).Inc()
	result, err := d.rotation.Tick(ctx, now)
	if err != nil {
		if errors.Is(err, apperrors.ErrEmptyResource) {
			d.logger.Warn().Err(err).Msg("rotation could not top up the queue")
		} else {
			d.logger.Error().Err(err).Str("trigger", trigger).Msg("rotation tick failed")
		}
	}
	if result.Fired != nil && result.Inserted != nil {
		d.bus.Publish(events.EventRuleFired, events.Payload{
			"rule_id":   result.Fired.ID,
			"rule_name": result.Fired.Name,
			"category":  string(result.Fired.Category),
			"title":     result.Inserted.Title,
			"item_id":   result.Inserted.ID,
		})
	}
}

func (d *Director) pollSchedule(ctx context.Context) {
	entry, err := d.shows.Poll(ctx, d.now())
	if err != nil {
		d.logger.Error().Err(err).Msg("schedule poll failed")
		return
	}
	if entry != nil {
		d.logger.Info().Str("entry", entry.ID).Str("show", entry.ShowID).Msg("scheduled show started")
	}
}

// requestTick asks Run for a safety tick without blocking.
func (d *Director) requestTick() {
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

func (d *Director) onQueueChange(change queue.Change) {
	telemetry.QueueLength.Set(float64(change.Length))
	telemetry.QueueOperationsTotal.WithLabelValues(string(change.Op)).Inc()

	if head, ok := d.queue.Head(); ok {
		d.mu.Lock()
		push := head.ID != d.pushedID
		if push {
			d.pushedID = head.ID
		}
		d.mu.Unlock()
		if push {
			d.engine.PushNext(head)
		}
	} else {
		d.mu.Lock()
		d.pushedID = ""
		d.mu.Unlock()
	}

	d.bus.Publish(events.EventQueueChanged, events.Payload{
		"op":      string(change.Op),
		"version": change.Version,
		"length":  change.Length,
		"head_id": change.HeadID,
	})
}

func (d *Director) publishNowPlaying(item models.QueueItem, startedAt time.Time) {
	d.bus.Publish(events.EventNowPlaying, events.Payload{
		"item_id":     item.ID,
		"title":       item.Title,
		"artist":      item.Artist,
		"filename":    path.Base(item.Source),
		"source":      item.Source,
		"duration":    item.Duration.Seconds(),
		"category":    string(item.Category),
		"inserted_by": string(item.InsertedBy),
		"show":        d.shows.DisplayName(),
		"mode":        string(d.shows.Mode()),
		"started_at":  startedAt.UTC(),
	})
}
