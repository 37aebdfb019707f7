/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package showsched

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/friendsincode/onair/internal/models"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// CronExpr returns the cron expression of a repeating entry, evaluated in loc.
func CronExpr(entry models.ScheduleEntry, loc *time.Location) (string, error) {
	local := entry.TriggerTime.In(loc)
	switch entry.Repeat {
	case models.RepeatDaily:
		return fmt.Sprintf("%d %d * * *", local.Minute(), local.Hour()), nil
	case models.RepeatWeekly:
		return fmt.Sprintf("%d %d * * %d", local.Minute(), local.Hour(), int(entry.Weekday)), nil
	default:
		return "", fmt.Errorf("entry repeat %q has no recurrence", entry.Repeat)
	}
}

// NextOccurrence returns the first trigger strictly after after, or the zero
// time for entries that do not repeat.
func NextOccurrence(entry models.ScheduleEntry, after time.Time, loc *time.Location) (time.Time, error) {
	if entry.Repeat == models.RepeatOnce {
		return time.Time{}, nil
	}
	expr, err := CronExpr(entry, loc)
	if err != nil {
		return time.Time{}, err
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid recurrence %q: %w", expr, err)
	}
	return schedule.Next(after.In(loc)), nil
}

// Normalize aligns a weekly entry's trigger time to its weekday, keeping the
// time of day. Other entries are truncated to the minute.
func Normalize(entry models.ScheduleEntry, loc *time.Location) (models.ScheduleEntry, error) {
	entry.TriggerTime = entry.TriggerTime.Truncate(time.Minute)
	if entry.Repeat != models.RepeatWeekly {
		return entry, nil
	}
	if entry.TriggerTime.In(loc).Weekday() == entry.Weekday {
		return entry, nil
	}
	next, err := NextOccurrence(entry, entry.TriggerTime, loc)
	if err != nil {
		return entry, err
	}
	entry.TriggerTime = next
	return entry, nil
}
