/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/friendsincode/onair/internal/apperrors"
	"github.com/friendsincode/onair/internal/config"
	"github.com/friendsincode/onair/internal/models"
)

// SeedReport counts what ApplySeed wrote.
type SeedReport struct {
	Files    int `json:"files"`
	Rules    int `json:"rules"`
	Shows    int `json:"shows"`
	Schedule int `json:"schedule"`
	Jingles  int `json:"jingles"`
}

// ApplySeed upserts a seed document in one transaction. Files match by
// path, rules and shows by name, schedule entries by show and trigger time.
func (s *Store) ApplySeed(ctx context.Context, seed *config.Seed, mediaRoot string, loc *time.Location) (SeedReport, error) {
	var report SeedReport
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, sf := range seed.Library {
			f, err := sf.AudioFile(mediaRoot)
			if err != nil {
				return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
			}
			if err := s.upsertFile(tx, &f); err != nil {
				return err
			}
			report.Files++
		}

		for i, sr := range seed.Rules {
			rule, err := sr.Rule(i)
			if err != nil {
				return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
			}
			var existing models.RotationRule
			err = tx.First(&existing, "name = ?", rule.Name).Error
			switch {
			case err == nil:
				rule.ID = existing.ID
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return fmt.Errorf("query rule %s: %w", rule.Name, err)
			}
			if err := s.saveRule(tx, &rule); err != nil {
				return err
			}
			report.Rules++
		}

		showIDs := make(map[string]string, len(seed.Shows))
		for _, ss := range seed.Shows {
			show := models.Show{Name: ss.Name, Description: ss.Description}
			var existing models.Show
			err := tx.First(&existing, "name = ?", ss.Name).Error
			switch {
			case err == nil:
				show.ID = existing.ID
				show.CreatedAt = existing.CreatedAt
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return fmt.Errorf("query show %s: %w", ss.Name, err)
			}
			for pos, p := range ss.Items {
				var f models.AudioFile
				if err := tx.First(&f, "path = ?", p).Error; err != nil {
					if errors.Is(err, gorm.ErrRecordNotFound) {
						return fmt.Errorf("%w: show %s references unknown file %s", apperrors.ErrValidation, ss.Name, p)
					}
					return fmt.Errorf("query show file %s: %w", p, err)
				}
				show.Items = append(show.Items, models.ShowItem{AudioFileID: f.ID, Position: pos})
			}
			if err := s.saveShow(tx, &show); err != nil {
				return err
			}
			showIDs[show.Name] = show.ID
			report.Shows++
		}

		for _, sc := range seed.Schedule {
			showID, ok := showIDs[sc.Show]
			if !ok {
				var existing models.Show
				if err := tx.First(&existing, "name = ?", sc.Show).Error; err != nil {
					if errors.Is(err, gorm.ErrRecordNotFound) {
						return fmt.Errorf("%w: schedule references unknown show %s", apperrors.ErrValidation, sc.Show)
					}
					return fmt.Errorf("query show %s: %w", sc.Show, err)
				}
				showID = existing.ID
			}
			entry, err := sc.Entry(showID, loc)
			if err != nil {
				return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
			}
			entry.TriggerTime = entry.TriggerTime.UTC()
			var existing models.ScheduleEntry
			err = tx.First(&existing, "show_id = ? AND trigger_time = ?", showID, entry.TriggerTime).Error
			switch {
			case err == nil:
				entry.ID = existing.ID
				entry.LastFiredAt = existing.LastFiredAt
			case errors.Is(err, gorm.ErrRecordNotFound):
				entry.ID = uuid.NewString()
			default:
				return fmt.Errorf("query schedule entry: %w", err)
			}
			if err := tx.Omit(clause.Associations).Save(&entry).Error; err != nil {
				return fmt.Errorf("save schedule entry: %w", err)
			}
			report.Schedule++
		}

		for _, sj := range seed.Jingles {
			slot, err := sj.JingleSlot()
			if err != nil {
				return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
			}
			if slot.Slot < 1 || slot.Slot > 9 {
				return fmt.Errorf("%w: jingle slot %d out of range 1..9", apperrors.ErrValidation, slot.Slot)
			}
			if err := tx.Save(&slot).Error; err != nil {
				return fmt.Errorf("save jingle slot %d: %w", slot.Slot, err)
			}
			report.Jingles++
		}
		return nil
	})
	if err != nil {
		return SeedReport{}, err
	}

	s.logger.Info().
		Int("files", report.Files).
		Int("rules", report.Rules).
		Int("shows", report.Shows).
		Int("schedule", report.Schedule).
		Int("jingles", report.Jingles).
		Msg("seed applied")
	return report, nil
}
