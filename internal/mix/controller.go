/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package mix owns the live-mix state and mirrors its derived gains to the
// engine on every change.
package mix

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/onair/internal/apperrors"
	"github.com/friendsincode/onair/internal/engine"
	"github.com/friendsincode/onair/internal/events"
	"github.com/friendsincode/onair/internal/models"
	"github.com/friendsincode/onair/internal/telemetry"
)

var (
	// ErrOutOfRange is returned for volumes and levels outside [0,1].
	ErrOutOfRange = fmt.Errorf("%w: value must be within [0,1]", apperrors.ErrValidation)

	// ErrInvalidSlot is returned for slot numbers outside 1..9.
	ErrInvalidSlot = fmt.Errorf("%w: jingle slot must be within 1..%d", apperrors.ErrValidation, SlotCount)

	// ErrSlotNotConfigured is returned when firing a slot with no audio.
	ErrSlotNotConfigured = fmt.Errorf("%w: jingle slot not configured", apperrors.ErrValidation)

	// ErrMissingSource is returned when configuring a slot without audio.
	ErrMissingSource = fmt.Errorf("%w: jingle source required", apperrors.ErrValidation)
)

// Dispatcher is the part of the engine adapter the controller drives.
type Dispatcher interface {
	PushMix(g engine.Gains)
	PlayJingle(slot int, volume float64, source string)
}

// SlotStore persists jingle slot configuration.
type SlotStore interface {
	ListJingleSlots(ctx context.Context) ([]models.JingleSlot, error)
	SaveJingleSlot(ctx context.Context, slot *models.JingleSlot) error
	DeleteJingleSlot(ctx context.Context, slot int) error
}

// SlotConfig is the operator-editable part of a slot.
type SlotConfig struct {
	Source   string        `json:"source"`
	Label    string        `json:"label"`
	Color    string        `json:"color"`
	Duration time.Duration `json:"duration"`
}

// Controller serializes all live-mix mutations behind one lock.
type Controller struct {
	engine    Dispatcher
	store     SlotStore
	bus       *events.Bus
	logger    zerolog.Logger
	maxJingle time.Duration

	mu     sync.Mutex
	state  State
	gen    [SlotCount]uint64
	timers [SlotCount]*time.Timer
}

// NewController creates a controller with default state. store and bus may
// be nil.
func NewController(dispatcher Dispatcher, store SlotStore, bus *events.Bus, logger zerolog.Logger, maxJingle time.Duration) *Controller {
	if maxJingle <= 0 {
		maxJingle = 30 * time.Second
	}
	return &Controller{
		engine:    dispatcher,
		store:     store,
		bus:       bus,
		logger:    logger.With().Str("component", "mix").Logger(),
		maxJingle: maxJingle,
		state:     DefaultState(),
	}
}

// Load restores persisted jingle slots and pushes the initial gains.
func (c *Controller) Load(ctx context.Context) error {
	var rows []models.JingleSlot
	if c.store != nil {
		var err error
		rows, err = c.store.ListJingleSlots(ctx)
		if err != nil {
			return fmt.Errorf("list jingle slots: %w", err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, row := range rows {
		if row.Slot < 1 || row.Slot > SlotCount {
			c.logger.Warn().Int("slot", row.Slot).Msg("ignoring stored jingle slot out of range")
			continue
		}
		if err := checkUnit(row.Volume); err != nil {
			c.logger.Warn().Int("slot", row.Slot).Float64("volume", row.Volume).Msg("ignoring stored jingle slot with volume out of range")
			continue
		}
		c.state.Jingles[row.Slot-1] = Slot{
			Number:   row.Slot,
			Source:   row.Source,
			Label:    row.Label,
			Color:    row.Color,
			Volume:   row.Volume,
			Duration: row.Duration,
		}
	}
	c.commitLocked()
	c.logger.Info().Int("slots", len(rows)).Msg("mix state loaded")
	return nil
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Gains returns the effective gains.
func (c *Controller) Gains() engine.Gains {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Gains()
}

// Resync pushes the current gains again, e.g. after an engine restart.
func (c *Controller) Resync() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.engine.PushMix(c.state.Gains())
}

// SetBedEnabled switches the music bed.
func (c *Controller) SetBedEnabled(v bool) {
	c.update(func(s *State) { s.BedEnabled = v })
}

// SetBedVolume sets the music bed volume.
func (c *Controller) SetBedVolume(v float64) error {
	if err := checkUnit(v); err != nil {
		return err
	}
	c.update(func(s *State) { s.BedVolume = v })
	return nil
}

// SetDuckingActive switches manual ducking.
func (c *Controller) SetDuckingActive(v bool) {
	c.update(func(s *State) { s.DuckingActive = v })
}

// SetDuckingLevel sets the music gain used while ducked.
func (c *Controller) SetDuckingLevel(v float64) error {
	if err := checkUnit(v); err != nil {
		return err
	}
	c.update(func(s *State) { s.DuckingLevel = v })
	return nil
}

// SetMicEnabled opens or closes the microphone.
func (c *Controller) SetMicEnabled(v bool) {
	c.update(func(s *State) { s.MicEnabled = v })
}

// SetMicVolume sets the microphone gain.
func (c *Controller) SetMicVolume(v float64) error {
	if err := checkUnit(v); err != nil {
		return err
	}
	c.update(func(s *State) { s.MicVolume = v })
	return nil
}

// SetMicAutoDuck controls whether an open mic ducks music.
func (c *Controller) SetMicAutoDuck(v bool) {
	c.update(func(s *State) { s.MicAutoDuck = v })
}

// SetJingleDuckMusic controls whether a firing jingle ducks music.
func (c *Controller) SetJingleDuckMusic(v bool) {
	c.update(func(s *State) { s.JingleDuckMusic = v })
}

// ConfigureJingleSlot assigns audio to slot n and persists it.
func (c *Controller) ConfigureJingleSlot(ctx context.Context, n int, cfg SlotConfig) error {
	if err := checkSlot(n); err != nil {
		return err
	}
	if cfg.Source == "" {
		return ErrMissingSource
	}
	if cfg.Color == "" {
		cfg.Color = DefaultColor
	}

	c.mu.Lock()
	volume := c.state.Jingles[n-1].Volume
	c.mu.Unlock()

	if err := c.persist(ctx, n, cfg, volume); err != nil {
		return err
	}
	c.update(func(s *State) {
		slot := &s.Jingles[n-1]
		slot.Source = cfg.Source
		slot.Label = cfg.Label
		slot.Color = cfg.Color
		slot.Duration = cfg.Duration
	})
	return nil
}

// SetJingleVolume sets the playback volume of slot n.
func (c *Controller) SetJingleVolume(ctx context.Context, n int, v float64) error {
	if err := checkSlot(n); err != nil {
		return err
	}
	if err := checkUnit(v); err != nil {
		return err
	}

	c.mu.Lock()
	slot := c.state.Jingles[n-1]
	c.mu.Unlock()

	if slot.Configured() {
		cfg := SlotConfig{Source: slot.Source, Label: slot.Label, Color: slot.Color, Duration: slot.Duration}
		if err := c.persist(ctx, n, cfg, v); err != nil {
			return err
		}
	}
	c.update(func(s *State) { s.Jingles[n-1].Volume = v })
	return nil
}

// ClearJingleSlot removes the audio from slot n.
func (c *Controller) ClearJingleSlot(ctx context.Context, n int) error {
	if err := checkSlot(n); err != nil {
		return err
	}
	if c.store != nil {
		if err := c.store.DeleteJingleSlot(ctx, n); err != nil {
			return fmt.Errorf("delete jingle slot: %w", err)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimerLocked(n)
	c.state.Jingles[n-1] = Slot{Number: n, Volume: 1.0}
	c.commitLocked()
	return nil
}

// PlayJingle fires slot n once. The slot is marked firing until the engine
// reports it finished or its duration elapses.
func (c *Controller) PlayJingle(n int) error {
	if err := checkSlot(n); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	slot := &c.state.Jingles[n-1]
	if !slot.Configured() {
		return fmt.Errorf("slot %d: %w", n, ErrSlotNotConfigured)
	}

	c.stopTimerLocked(n)
	slot.Firing = true
	c.gen[n-1]++
	gen := c.gen[n-1]

	hold := slot.Duration
	if hold <= 0 || hold > c.maxJingle {
		hold = c.maxJingle
	}
	c.timers[n-1] = time.AfterFunc(hold, func() { c.finish(n, gen) })

	c.engine.PlayJingle(n, slot.Volume, slot.Source)
	telemetry.JinglesFiredTotal.WithLabelValues(strconv.Itoa(n)).Inc()
	c.publish(events.EventJingleStart, events.Payload{"slot": n, "label": slot.Label, "source": slot.Source})
	c.commitLocked()
	c.logger.Debug().Int("slot", n).Str("label", slot.Label).Msg("jingle fired")
	return nil
}

// JingleFinished clears the firing mark of slot n early.
func (c *Controller) JingleFinished(n int) {
	if checkSlot(n) != nil {
		return
	}
	c.mu.Lock()
	gen := c.gen[n-1]
	c.mu.Unlock()
	c.finish(n, gen)
}

func (c *Controller) finish(n int, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	slot := &c.state.Jingles[n-1]
	if c.gen[n-1] != gen || !slot.Firing {
		return
	}
	c.stopTimerLocked(n)
	slot.Firing = false
	c.publish(events.EventJingleEnd, events.Payload{"slot": n})
	c.commitLocked()
}

func (c *Controller) stopTimerLocked(n int) {
	if t := c.timers[n-1]; t != nil {
		t.Stop()
		c.timers[n-1] = nil
	}
}

func (c *Controller) update(fn func(*State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.state)
	c.commitLocked()
}

// commitLocked dispatches the derived gains and announces the new state.
func (c *Controller) commitLocked() {
	g := c.state.Gains()
	c.engine.PushMix(g)

	telemetry.MixGain.WithLabelValues("track").Set(g.Track)
	telemetry.MixGain.WithLabelValues("bed").Set(g.Bed)
	telemetry.MixGain.WithLabelValues("mic").Set(g.Mic)

	c.publish(events.EventMixChanged, events.Payload{"state": c.state, "gains": g})
}

func (c *Controller) publish(et events.EventType, p events.Payload) {
	if c.bus != nil {
		c.bus.Publish(et, p)
	}
}

func (c *Controller) persist(ctx context.Context, n int, cfg SlotConfig, volume float64) error {
	if c.store == nil {
		return nil
	}
	row := &models.JingleSlot{
		Slot:     n,
		Source:   cfg.Source,
		Label:    cfg.Label,
		Color:    cfg.Color,
		Volume:   volume,
		Duration: cfg.Duration,
	}
	if err := c.store.SaveJingleSlot(ctx, row); err != nil {
		return fmt.Errorf("save jingle slot: %w", err)
	}
	return nil
}

func checkUnit(v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return fmt.Errorf("%v: %w", v, ErrOutOfRange)
	}
	return nil
}

func checkSlot(n int) error {
	if n < 1 || n > SlotCount {
		return fmt.Errorf("slot %d: %w", n, ErrInvalidSlot)
	}
	return nil
}
