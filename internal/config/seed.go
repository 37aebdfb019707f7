/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/friendsincode/onair/internal/models"
)

// Seed is the declarative station setup read from a YAML file.
type Seed struct {
	Library  []SeedFile     `yaml:"library"`
	Rules    []SeedRule     `yaml:"rules"`
	Shows    []SeedShow     `yaml:"shows"`
	Schedule []SeedSchedule `yaml:"schedule"`
	Jingles  []SeedJingle   `yaml:"jingles"`
}

// SeedFile registers a library entry. Category defaults to the directory
// below the media root.
type SeedFile struct {
	Path     string `yaml:"path"`
	Category string `yaml:"category"`
	Title    string `yaml:"title"`
	Artist   string `yaml:"artist"`
	Duration string `yaml:"duration"`
}

// SeedRule declares a rotation rule. Rules keep file order as definition order.
type SeedRule struct {
	Name     string   `yaml:"name"`
	Kind     string   `yaml:"kind"`
	Value    int      `yaml:"value"`
	Category string   `yaml:"category"`
	Priority int      `yaml:"priority"`
	Start    string   `yaml:"start"`
	End      string   `yaml:"end"`
	Weekdays []string `yaml:"weekdays"`
	Enabled  *bool    `yaml:"enabled"`
}

// SeedShow declares a show and its playlist as library paths.
type SeedShow struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Items       []string `yaml:"items"`
}

// SeedSchedule starts a show at a local wall-clock time.
type SeedSchedule struct {
	Show     string `yaml:"show"`
	At       string `yaml:"at"` // "2006-01-02 15:04" in the station timezone
	Repeat   string `yaml:"repeat"`
	Weekday  string `yaml:"weekday"`
	Override bool   `yaml:"override"`
}

// SeedJingle configures one instant-jingle slot.
type SeedJingle struct {
	Slot     int      `yaml:"slot"`
	Source   string   `yaml:"source"`
	Label    string   `yaml:"label"`
	Color    string   `yaml:"color"`
	Volume   *float64 `yaml:"volume"`
	Duration string   `yaml:"duration"`
}

// LoadSeed reads and validates a seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes a seed document and rejects unknown fields.
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	for i, r := range seed.Rules {
		if strings.TrimSpace(r.Name) == "" {
			return nil, fmt.Errorf("rule %d: name is required", i)
		}
	}
	for i, s := range seed.Shows {
		if strings.TrimSpace(s.Name) == "" {
			return nil, fmt.Errorf("show %d: name is required", i)
		}
	}
	for i, f := range seed.Library {
		if strings.TrimSpace(f.Path) == "" {
			return nil, fmt.Errorf("library entry %d: path is required", i)
		}
	}
	return &seed, nil
}

// AudioFile converts the entry to a model, deriving the category from
// mediaRoot when none is set.
func (f SeedFile) AudioFile(mediaRoot string) (models.AudioFile, error) {
	dur, err := parseDuration(f.Duration)
	if err != nil {
		return models.AudioFile{}, fmt.Errorf("library %s: %w", f.Path, err)
	}
	cat := models.Category(f.Category)
	if cat == "" {
		cat = models.CategoryFromPath(mediaRoot, f.Path)
	}
	if cat == "" {
		cat = models.CategoryMusic
	}
	if !cat.Valid() {
		return models.AudioFile{}, fmt.Errorf("library %s: unknown category %q", f.Path, cat)
	}
	name := f.Path
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return models.AudioFile{
		Path:     f.Path,
		Filename: name,
		Category: cat,
		Title:    f.Title,
		Artist:   f.Artist,
		Duration: dur,
		Active:   true,
	}, nil
}

// Rule converts the entry to a validated rotation rule at the given position.
func (r SeedRule) Rule(position int) (models.RotationRule, error) {
	days, err := parseWeekdays(r.Weekdays)
	if err != nil {
		return models.RotationRule{}, fmt.Errorf("rule %s: %w", r.Name, err)
	}
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	rule := models.RotationRule{
		Name:     r.Name,
		Kind:     models.RuleKind(r.Kind),
		Value:    r.Value,
		Category: models.Category(r.Category),
		Priority: r.Priority,
		Window:   models.ActiveWindow{Start: r.Start, End: r.End, Weekdays: days},
		Enabled:  enabled,
		Position: position,
	}
	if err := rule.Validate(); err != nil {
		return models.RotationRule{}, fmt.Errorf("rule %s: %w", r.Name, err)
	}
	return rule, nil
}

// Entry converts the schedule line to an entry for showID in loc.
func (s SeedSchedule) Entry(showID string, loc *time.Location) (models.ScheduleEntry, error) {
	at, err := time.ParseInLocation("2006-01-02 15:04", s.At, loc)
	if err != nil {
		return models.ScheduleEntry{}, fmt.Errorf("schedule %s: invalid at %q: %w", s.Show, s.At, err)
	}
	repeat := models.RepeatKind(s.Repeat)
	if repeat == "" {
		repeat = models.RepeatOnce
	}
	weekday := at.Weekday()
	if s.Weekday != "" {
		days, err := parseWeekdays([]string{s.Weekday})
		if err != nil {
			return models.ScheduleEntry{}, fmt.Errorf("schedule %s: %w", s.Show, err)
		}
		weekday = days[0]
	}
	entry := models.ScheduleEntry{
		ShowID:      showID,
		TriggerTime: at,
		Repeat:      repeat,
		Weekday:     weekday,
		Active:      true,
		Override:    s.Override,
	}
	if err := entry.Validate(); err != nil {
		return models.ScheduleEntry{}, fmt.Errorf("schedule %s: %w", s.Show, err)
	}
	return entry, nil
}

// JingleSlot converts the jingle line to a persisted slot.
func (j SeedJingle) JingleSlot() (models.JingleSlot, error) {
	dur, err := parseDuration(j.Duration)
	if err != nil {
		return models.JingleSlot{}, fmt.Errorf("jingle %d: %w", j.Slot, err)
	}
	vol := 1.0
	if j.Volume != nil {
		vol = *j.Volume
	}
	if !(vol >= 0 && vol <= 1) {
		return models.JingleSlot{}, fmt.Errorf("jingle %d: volume %v out of range 0..1", j.Slot, vol)
	}
	color := j.Color
	if color == "" {
		color = "primary"
	}
	return models.JingleSlot{
		Slot:     j.Slot,
		Source:   j.Source,
		Label:    j.Label,
		Color:    color,
		Volume:   vol,
		Duration: dur,
	}, nil
}

func parseDuration(s string) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

func parseWeekdays(names []string) ([]time.Weekday, error) {
	if len(names) == 0 {
		return nil, nil
	}
	out := make([]time.Weekday, 0, len(names))
	for _, n := range names {
		d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", n)
		}
		out = append(out, d)
	}
	return out, nil
}
