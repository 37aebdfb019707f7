/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"context"
	"fmt"

	"github.com/friendsincode/onair/internal/models"
	"github.com/friendsincode/onair/internal/queue"
	"github.com/friendsincode/onair/internal/showsched"
)

// Status is the operator view of playout.
type Status struct {
	Queue    queue.Status       `json:"queue"`
	Mode     showsched.Mode     `json:"mode"`
	Show     *showsched.Current `json:"show,omitempty"`
	ShowName string             `json:"show_name"`
	Health   Health             `json:"health"`
}

// Status returns a consistent queue snapshot with mode and health.
func (d *Director) Status() Status {
	st := Status{
		Queue:    d.queue.Snapshot(),
		Mode:     d.shows.Mode(),
		ShowName: d.shows.DisplayName(),
		Health:   d.Health(d.now()),
	}
	if cur, ok := d.shows.Current(); ok {
		st.Show = &cur
	}
	return st
}

// Skip asks the engine to end the current track. The queue advances when
// the engine reports the next track start.
func (d *Director) Skip() {
	d.logger.Info().Msg("skip requested")
	d.engine.Skip()
}

// Enqueue appends a library file to the queue.
func (d *Director) Enqueue(ctx context.Context, fileID string) (models.QueueItem, error) {
	f, err := d.library.GetFile(ctx, fileID)
	if err != nil {
		return models.QueueItem{}, err
	}
	if !f.Active {
		return models.QueueItem{}, fmt.Errorf("file %s: %w", fileID, ErrFileInactive)
	}
	item := models.NewQueueItem(*f, models.InsertedByManual)
	d.queue.Enqueue(item)
	return item, nil
}

// ClearQueue drops every pending item. Automation refills the queue on
// the next tick.
func (d *Director) ClearQueue() {
	d.queue.Clear()
	d.requestTick()
}

// RemoveAt removes the pending item at index. When expectedID is set the
// removal fails with a conflict if another item now sits at index.
func (d *Director) RemoveAt(index int, expectedID string) (models.QueueItem, error) {
	var (
		item models.QueueItem
		err  error
	)
	if expectedID != "" {
		item, err = d.queue.RemoveAtID(index, expectedID)
	} else {
		item, err = d.queue.RemoveAt(index)
	}
	if err != nil {
		return models.QueueItem{}, err
	}
	d.requestTick()
	return item, nil
}

// Reorder applies a permutation to the pending items.
func (d *Director) Reorder(permutation []int) error {
	return d.queue.Reorder(permutation)
}

// PlayShow starts a show now. With immediate the current track is skipped
// so the show's first item follows without waiting.
func (d *Director) PlayShow(ctx context.Context, showID string, override, immediate bool) error {
	if err := d.shows.PlayShow(ctx, showID, override); err != nil {
		return err
	}
	if immediate {
		d.engine.Skip()
	}
	return nil
}

// StopShow returns to automation.
func (d *Director) StopShow(ctx context.Context) error {
	if err := d.shows.StopShow(ctx); err != nil {
		return err
	}
	d.requestTick()
	return nil
}

// SetRule stores a rotation rule and reloads the engine.
func (d *Director) SetRule(ctx context.Context, rule *models.RotationRule) error {
	if err := d.library.SaveRule(ctx, rule); err != nil {
		return err
	}
	if err := d.rotation.Reload(ctx); err != nil {
		return fmt.Errorf("reload rules: %w", err)
	}
	d.logger.Info().Str("rule", rule.Name).Str("id", rule.ID).Msg("rotation rule saved")
	return nil
}

// DeleteRule removes a rotation rule and reloads the engine.
func (d *Director) DeleteRule(ctx context.Context, id string) error {
	if err := d.library.DeleteRule(ctx, id); err != nil {
		return err
	}
	if err := d.rotation.Reload(ctx); err != nil {
		return fmt.Errorf("reload rules: %w", err)
	}
	d.logger.Info().Str("id", id).Msg("rotation rule deleted")
	return nil
}

// SetSchedule stores a schedule entry.
func (d *Director) SetSchedule(ctx context.Context, entry *models.ScheduleEntry) error {
	return d.shows.SetEntry(ctx, entry)
}
