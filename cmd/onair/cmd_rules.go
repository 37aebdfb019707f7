/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/onair/internal/config"
	"github.com/friendsincode/onair/internal/showsched"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect rotation rules and schedules",
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check <seed-file>",
	Short: "Validate a seed file without touching the database",
	Long: `Parse a seed file, validate every rule and schedule entry, and print
the rules in evaluation order with the next trigger of each schedule entry.`,
	Args: cobra.ExactArgs(1),
	RunE: runRulesCheck,
}

func init() {
	rulesCmd.AddCommand(rulesCheckCmd)
	rootCmd.AddCommand(rulesCmd)
}

func runRulesCheck(cmd *cobra.Command, args []string) error {
	seed, err := config.LoadSeed(args[0])
	if err != nil {
		return err
	}
	// Only the zone matters here; the rest of the environment may be unset.
	loc := time.UTC
	if tz := config.TimezoneFromEnv(); tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			return fmt.Errorf("load timezone %s: %w", tz, err)
		}
	}
	return checkSeed(cmd.OutOrStdout(), seed, loc, time.Now())
}

func checkSeed(out io.Writer, seed *config.Seed, loc *time.Location, now time.Time) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "POS\tRULE\tKIND\tVALUE\tCATEGORY\tPRIORITY\tWINDOW")
	for i, sr := range seed.Rules {
		rule, err := sr.Rule(i)
		if err != nil {
			return err
		}
		window := "always"
		if rule.Window.Start != "" || len(rule.Window.Weekdays) > 0 {
			days := make([]string, 0, len(rule.Window.Weekdays))
			for _, d := range rule.Window.Weekdays {
				days = append(days, d.String()[:3])
			}
			window = strings.TrimSpace(fmt.Sprintf("%s-%s %s", rule.Window.Start, rule.Window.End, strings.Join(days, ",")))
		}
		state := ""
		if !rule.Enabled {
			state = " (disabled)"
		}
		fmt.Fprintf(tw, "%d\t%s%s\t%s\t%d\t%s\t%d\t%s\n", i, rule.Name, state, rule.Kind, rule.Value, rule.Category, rule.Priority, window)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(seed.Schedule) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SHOW\tREPEAT\tNEXT")
	for _, sc := range seed.Schedule {
		entry, err := sc.Entry(sc.Show, loc)
		if err != nil {
			return err
		}
		at := entry.TriggerTime
		if !at.After(now) {
			if at, err = showsched.NextOccurrence(entry, now, loc); err != nil {
				return err
			}
		}
		next := "passed"
		if !at.IsZero() {
			next = at.In(loc).Format("Mon 2006-01-02 15:04 MST")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", sc.Show, entry.Repeat, next)
	}
	return tw.Flush()
}
