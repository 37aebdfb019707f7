/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"
	"path/filepath"

	"gorm.io/gorm"

	"github.com/friendsincode/onair/internal/models"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		// Library and history
		&models.AudioFile{},
		&models.PlayHistoryEntry{},

		// Rotation
		&models.RotationRule{},

		// Shows and scheduling
		&models.Show{},
		&models.ShowItem{},
		&models.ScheduleEntry{},

		// Mix
		&models.JingleSlot{},
	); err != nil {
		return err
	}

	if err := applyPostgresRuleChecks(database); err != nil {
		return err
	}
	if err := backfillFilenames(database); err != nil {
		return err
	}

	return nil
}

// applyPostgresRuleChecks adds range checks the other backends leave to
// application validation.
func applyPostgresRuleChecks(database *gorm.DB) error {
	if database.Dialector.Name() != "postgres" {
		return nil
	}

	stmt := `
DO $$
BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_rotation_rules_value') THEN
    ALTER TABLE rotation_rules ADD CONSTRAINT chk_rotation_rules_value CHECK (
      (kind = 'at_minute' AND value BETWEEN 0 AND 59)
      OR (kind IN ('after_n_songs', 'every_interval') AND value >= 1)
    );
  END IF;
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_jingle_slots_volume') THEN
    ALTER TABLE jingle_slots ADD CONSTRAINT chk_jingle_slots_volume CHECK (volume >= 0 AND volume <= 1);
  END IF;
END;
$$;
`
	if err := database.Exec(stmt).Error; err != nil {
		return fmt.Errorf("apply postgres rule checks: %w", err)
	}
	return nil
}

// backfillFilenames populates filename for library rows imported without one
// so path-less engine reports can still be matched by basename.
func backfillFilenames(database *gorm.DB) error {
	type row struct {
		ID   string
		Path string
	}
	var rows []row
	if err := database.
		Model(&models.AudioFile{}).
		Select("id, path").
		Where("(filename IS NULL OR filename = '') AND path != ''").
		Find(&rows).Error; err != nil {
		return fmt.Errorf("backfill filenames query: %w", err)
	}

	for _, r := range rows {
		name := filepath.Base(r.Path)
		if name == "" || name == "." {
			continue
		}
		if err := database.Model(&models.AudioFile{}).
			Where("id = ?", r.ID).
			Update("filename", name).Error; err != nil {
			return fmt.Errorf("backfill filename for %s: %w", r.ID, err)
		}
	}

	return nil
}
