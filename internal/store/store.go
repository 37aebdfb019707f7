/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package store persists the library, rules, shows, schedule, jingle slots
// and play history through gorm.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/friendsincode/onair/internal/apperrors"
	"github.com/friendsincode/onair/internal/models"
)

var (
	// ErrFileNotFound indicates an unknown library entry.
	ErrFileNotFound = fmt.Errorf("%w: audio file not found", apperrors.ErrNotFound)

	// ErrShowNotFound indicates an unknown show.
	ErrShowNotFound = fmt.Errorf("%w: show not found", apperrors.ErrNotFound)

	// ErrRuleNotFound indicates an unknown rotation rule.
	ErrRuleNotFound = fmt.Errorf("%w: rotation rule not found", apperrors.ErrNotFound)

	// ErrEntryNotFound indicates an unknown schedule entry.
	ErrEntryNotFound = fmt.Errorf("%w: schedule entry not found", apperrors.ErrNotFound)
)

// Store is the gorm-backed repository shared by the playout services.
type Store struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// New creates a store over an already migrated database.
func New(db *gorm.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "store").Logger(),
	}
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Library

// FilesByCategory returns the active files of a category.
func (s *Store) FilesByCategory(ctx context.Context, category models.Category) ([]models.AudioFile, error) {
	var files []models.AudioFile
	err := s.db.WithContext(ctx).
		Where("category = ? AND active = ?", category, true).
		Order("path").
		Find(&files).Error
	if err != nil {
		return nil, fmt.Errorf("list %s files: %w", category, err)
	}
	return files, nil
}

// ListFiles returns library entries, optionally filtered by category.
func (s *Store) ListFiles(ctx context.Context, category models.Category) ([]models.AudioFile, error) {
	q := s.db.WithContext(ctx).Order("category, path")
	if category != "" {
		q = q.Where("category = ?", category)
	}
	var files []models.AudioFile
	if err := q.Find(&files).Error; err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return files, nil
}

// GetFile loads a library entry by id.
func (s *Store) GetFile(ctx context.Context, id string) (*models.AudioFile, error) {
	var f models.AudioFile
	if err := s.db.WithContext(ctx).First(&f, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("query file: %w", err)
	}
	return &f, nil
}

// FileByPath resolves an engine-reported path. When no row has the exact
// path the basename is matched against the filename column.
func (s *Store) FileByPath(ctx context.Context, p string) (*models.AudioFile, error) {
	var f models.AudioFile
	err := s.db.WithContext(ctx).First(&f, "path = ?", p).Error
	if err == nil {
		return &f, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("query file by path: %w", err)
	}

	err = s.db.WithContext(ctx).Order("path").First(&f, "filename = ?", path.Base(p)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query file by name: %w", err)
	}
	return &f, nil
}

// UpsertFile inserts or updates a library entry keyed by path.
func (s *Store) UpsertFile(ctx context.Context, f *models.AudioFile) error {
	return s.upsertFile(s.db.WithContext(ctx), f)
}

func (s *Store) upsertFile(tx *gorm.DB, f *models.AudioFile) error {
	var existing models.AudioFile
	err := tx.First(&existing, "path = ?", f.Path).Error
	switch {
	case err == nil:
		f.ID = existing.ID
		f.PlayCount = existing.PlayCount
		f.LastPlayed = existing.LastPlayed
		f.CreatedAt = existing.CreatedAt
	case errors.Is(err, gorm.ErrRecordNotFound):
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
	default:
		return fmt.Errorf("query file %s: %w", f.Path, err)
	}
	if err := tx.Save(f).Error; err != nil {
		return fmt.Errorf("save file %s: %w", f.Path, err)
	}
	return nil
}

// RecordPlayStats bumps the play counter and last-played time of a file.
func (s *Store) RecordPlayStats(ctx context.Context, fileID string, at time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&models.AudioFile{}).
		Where("id = ?", fileID).
		Updates(map[string]any{
			"play_count":  gorm.Expr("play_count + 1"),
			"last_played": at.UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("record play stats: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrFileNotFound
	}
	return nil
}

// Rotation rules

// ListRules returns every rule in definition order.
func (s *Store) ListRules(ctx context.Context) ([]models.RotationRule, error) {
	var rules []models.RotationRule
	if err := s.db.WithContext(ctx).Order("position, created_at").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return rules, nil
}

// SaveRule validates and stores a rule. New rules are appended after the
// current last position and get an id.
func (s *Store) SaveRule(ctx context.Context, rule *models.RotationRule) error {
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	return s.saveRule(s.db.WithContext(ctx), rule)
}

func (s *Store) saveRule(tx *gorm.DB, rule *models.RotationRule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
		if rule.Position == 0 {
			var maxPos sql.NullInt64
			if err := tx.Model(&models.RotationRule{}).Select("MAX(position)").Row().Scan(&maxPos); err != nil {
				return fmt.Errorf("query rule position: %w", err)
			}
			if maxPos.Valid {
				rule.Position = int(maxPos.Int64) + 1
			}
		}
		if err := tx.Create(rule).Error; err != nil {
			return fmt.Errorf("create rule: %w", err)
		}
		return nil
	}
	res := tx.Model(rule).Select("*").Omit("created_at").Updates(rule)
	if res.Error != nil {
		return fmt.Errorf("update rule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// DeleteRule removes a rule.
func (s *Store) DeleteRule(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&models.RotationRule{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete rule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// Play history

// AppendHistory records a play or a rule insertion.
func (s *Store) AppendHistory(ctx context.Context, entry *models.PlayHistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.PlayedAt = entry.PlayedAt.UTC()
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// HistorySince returns entries played after since, oldest first.
func (s *Store) HistorySince(ctx context.Context, since time.Time) ([]models.PlayHistoryEntry, error) {
	var entries []models.PlayHistoryEntry
	err := s.db.WithContext(ctx).
		Where("played_at > ?", since.UTC()).
		Order("played_at").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("history since: %w", err)
	}
	return entries, nil
}

// RecentHistory returns the newest entries first.
func (s *Store) RecentHistory(ctx context.Context, limit int) ([]models.PlayHistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []models.PlayHistoryEntry
	err := s.db.WithContext(ctx).
		Order("played_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("recent history: %w", err)
	}
	return entries, nil
}

// LastRuleFiring reports when the rule last inserted an item.
func (s *Store) LastRuleFiring(ctx context.Context, ruleID string) (time.Time, bool, error) {
	var entry models.PlayHistoryEntry
	err := s.db.WithContext(ctx).
		Where("rule_id = ?", ruleID).
		Order("played_at DESC").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last rule firing: %w", err)
	}
	return entry.PlayedAt, true, nil
}

// PruneHistory deletes entries older than cutoff.
func (s *Store) PruneHistory(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("played_at < ?", cutoff.UTC()).Delete(&models.PlayHistoryEntry{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune history: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Shows

// GetShow loads a show with its items and their files, ordered by position.
func (s *Store) GetShow(ctx context.Context, id string) (*models.Show, error) {
	var show models.Show
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Preload("Items.AudioFile").
		First(&show, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrShowNotFound
		}
		return nil, fmt.Errorf("query show: %w", err)
	}
	return &show, nil
}

// ListShows returns all shows without items.
func (s *Store) ListShows(ctx context.Context) ([]models.Show, error) {
	var shows []models.Show
	if err := s.db.WithContext(ctx).Order("name").Find(&shows).Error; err != nil {
		return nil, fmt.Errorf("list shows: %w", err)
	}
	return shows, nil
}

// SaveShow stores a show and replaces its item list.
func (s *Store) SaveShow(ctx context.Context, show *models.Show) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.saveShow(tx, show)
	})
}

func (s *Store) saveShow(tx *gorm.DB, show *models.Show) error {
	if show.ID == "" {
		show.ID = uuid.NewString()
	}
	items := show.Items
	show.Items = nil
	if err := tx.Omit(clause.Associations).Save(show).Error; err != nil {
		return fmt.Errorf("save show: %w", err)
	}
	if err := tx.Where("show_id = ?", show.ID).Delete(&models.ShowItem{}).Error; err != nil {
		return fmt.Errorf("clear show items: %w", err)
	}
	for i := range items {
		items[i].ShowID = show.ID
		items[i].AudioFile = nil
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
	}
	if len(items) > 0 {
		if err := tx.Create(&items).Error; err != nil {
			return fmt.Errorf("save show items: %w", err)
		}
	}
	show.Items = items
	return nil
}

// Schedule

// ActiveScheduleEntries returns active entries ordered by trigger time.
func (s *Store) ActiveScheduleEntries(ctx context.Context) ([]models.ScheduleEntry, error) {
	var entries []models.ScheduleEntry
	err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("trigger_time").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("active schedule entries: %w", err)
	}
	return entries, nil
}

// ListScheduleEntries returns every entry with its show.
func (s *Store) ListScheduleEntries(ctx context.Context) ([]models.ScheduleEntry, error) {
	var entries []models.ScheduleEntry
	err := s.db.WithContext(ctx).
		Preload("Show").
		Order("trigger_time").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list schedule entries: %w", err)
	}
	return entries, nil
}

// SaveScheduleEntry inserts or updates an entry.
func (s *Store) SaveScheduleEntry(ctx context.Context, entry *models.ScheduleEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.TriggerTime = entry.TriggerTime.UTC()
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Save(entry).Error; err != nil {
		return fmt.Errorf("save schedule entry: %w", err)
	}
	return nil
}

// DeleteScheduleEntry removes an entry.
func (s *Store) DeleteScheduleEntry(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&models.ScheduleEntry{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete schedule entry: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// Jingle slots

// ListJingleSlots returns configured slots ordered by number.
func (s *Store) ListJingleSlots(ctx context.Context) ([]models.JingleSlot, error) {
	var slots []models.JingleSlot
	if err := s.db.WithContext(ctx).Order("slot").Find(&slots).Error; err != nil {
		return nil, fmt.Errorf("list jingle slots: %w", err)
	}
	return slots, nil
}

// SaveJingleSlot inserts or replaces a slot.
func (s *Store) SaveJingleSlot(ctx context.Context, slot *models.JingleSlot) error {
	if err := s.db.WithContext(ctx).Save(slot).Error; err != nil {
		return fmt.Errorf("save jingle slot %d: %w", slot.Slot, err)
	}
	return nil
}

// DeleteJingleSlot removes a slot. Missing slots are not an error.
func (s *Store) DeleteJingleSlot(ctx context.Context, slot int) error {
	if err := s.db.WithContext(ctx).Delete(&models.JingleSlot{}, "slot = ?", slot).Error; err != nil {
		return fmt.Errorf("delete jingle slot %d: %w", slot, err)
	}
	return nil
}
