/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"testing"
	"time"
)

func TestActiveWindowContains(t *testing.T) {
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	at := func(day, hour, min int) time.Time {
		return monday.AddDate(0, 0, day).Add(time.Duration(hour)*time.Hour + time.Duration(min)*time.Minute)
	}

	tests := []struct {
		name   string
		window ActiveWindow
		at     time.Time
		want   bool
	}{
		{"zero window", ActiveWindow{}, at(0, 3, 0), true},
		{"inside", ActiveWindow{Start: "06:00", End: "10:00"}, at(0, 8, 15), true},
		{"start inclusive", ActiveWindow{Start: "06:00", End: "10:00"}, at(0, 6, 0), true},
		{"end inclusive", ActiveWindow{Start: "06:00", End: "10:00"}, at(0, 10, 0), true},
		{"after end", ActiveWindow{Start: "06:00", End: "10:00"}, at(0, 10, 1), false},
		{"wraps midnight late", ActiveWindow{Start: "22:00", End: "02:00"}, at(0, 23, 30), true},
		{"wraps midnight early", ActiveWindow{Start: "22:00", End: "02:00"}, at(0, 1, 30), true},
		{"wraps midnight outside", ActiveWindow{Start: "22:00", End: "02:00"}, at(0, 12, 0), false},
		{"weekday match", ActiveWindow{Weekdays: []time.Weekday{time.Monday}}, at(0, 12, 0), true},
		{"weekday miss", ActiveWindow{Weekdays: []time.Weekday{time.Monday}}, at(1, 12, 0), false},
		{"weekday and time", ActiveWindow{Start: "06:00", End: "10:00", Weekdays: []time.Weekday{time.Saturday, time.Sunday}}, at(5, 7, 0), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.window.Contains(tt.at); got != tt.want {
				t.Errorf("Contains(%s) = %v, want %v", tt.at.Format(time.RFC3339), got, tt.want)
			}
		})
	}
}

func TestRotationRuleValidate(t *testing.T) {
	tests := []struct {
		name    string
		rule    RotationRule
		wantErr bool
	}{
		{"after songs", RotationRule{Kind: RuleAfterSongs, Value: 3, Category: CategoryJingles}, false},
		{"after zero songs", RotationRule{Kind: RuleAfterSongs, Value: 0, Category: CategoryJingles}, true},
		{"minute 59", RotationRule{Kind: RuleAtMinute, Value: 59, Category: CategoryPromos}, false},
		{"minute 60", RotationRule{Kind: RuleAtMinute, Value: 60, Category: CategoryPromos}, true},
		{"interval", RotationRule{Kind: RuleEveryInterval, Value: 15, Category: CategoryAds}, false},
		{"zero interval", RotationRule{Kind: RuleEveryInterval, Value: 0, Category: CategoryAds}, true},
		{"unknown kind", RotationRule{Kind: "sometimes", Value: 1, Category: CategoryAds}, true},
		{"unknown category", RotationRule{Kind: RuleEveryInterval, Value: 5, Category: "weather"}, true},
		{"half window", RotationRule{Kind: RuleEveryInterval, Value: 5, Category: CategoryAds, Window: ActiveWindow{Start: "06:00"}}, true},
		{"bad clock", RotationRule{Kind: RuleEveryInterval, Value: 5, Category: CategoryAds, Window: ActiveWindow{Start: "6am", End: "10:00"}}, true},
		{"bad weekday", RotationRule{Kind: RuleEveryInterval, Value: 5, Category: CategoryAds, Window: ActiveWindow{Weekdays: []time.Weekday{9}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCategoryFromPath(t *testing.T) {
	tests := []struct {
		root string
		path string
		want Category
	}{
		{"/srv/media", "/srv/media/music/a.mp3", CategoryMusic},
		{"/srv/media/", "/srv/media/jingles/id.mp3", CategoryJingles},
		{"/srv/media", "/srv/media/random-moderation/x/y.mp3", CategoryRandomModeration},
		{"/srv/media", "/srv/media/weather/a.mp3", ""},
		{"/srv/media", "/elsewhere/music/a.mp3", ""},
		{"/srv/media", "/srv/media/a.mp3", ""},
		{"", "/srv/media/music/a.mp3", ""},
	}
	for _, tt := range tests {
		if got := CategoryFromPath(tt.root, tt.path); got != tt.want {
			t.Errorf("CategoryFromPath(%q, %q) = %q, want %q", tt.root, tt.path, got, tt.want)
		}
	}
}

func TestScheduleEntryValidate(t *testing.T) {
	at := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		entry   ScheduleEntry
		wantErr bool
	}{
		{"once", ScheduleEntry{ShowID: "s", TriggerTime: at, Repeat: RepeatOnce}, false},
		{"weekly", ScheduleEntry{ShowID: "s", TriggerTime: at, Repeat: RepeatWeekly, Weekday: time.Monday}, false},
		{"no show", ScheduleEntry{TriggerTime: at, Repeat: RepeatOnce}, true},
		{"no time", ScheduleEntry{ShowID: "s", Repeat: RepeatDaily}, true},
		{"bad repeat", ScheduleEntry{ShowID: "s", TriggerTime: at, Repeat: "hourly"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.entry.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDisplayTitle(t *testing.T) {
	if got := (AudioFile{Title: "Song", Filename: "f.mp3"}).DisplayTitle(); got != "Song" {
		t.Errorf("got %q", got)
	}
	if got := (AudioFile{Filename: "f.mp3"}).DisplayTitle(); got != "f.mp3" {
		t.Errorf("got %q", got)
	}
	if got := (AudioFile{Path: "/m/music/g.mp3"}).DisplayTitle(); got != "g.mp3" {
		t.Errorf("got %q", got)
	}
}
