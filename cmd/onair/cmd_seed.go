/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/friendsincode/onair/internal/config"
	"github.com/friendsincode/onair/internal/db"
	"github.com/friendsincode/onair/internal/store"
)

var seedCmd = &cobra.Command{
	Use:   "seed <file>",
	Short: "Apply a station seed file to the database",
	Long: `Upsert library files, rotation rules, shows, schedule entries and
jingle slots from a YAML seed file. Running it twice is harmless.

Examples:
  onair seed station.yaml
  ONAIR_DB_BACKEND=postgres ONAIR_DB_DSN=... onair seed station.yaml
`,
	Args: cobra.ExactArgs(1),
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	seed, err := config.LoadSeed(args[0])
	if err != nil {
		return err
	}

	database, err := db.Connect(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close(database)
	if err := db.Migrate(database); err != nil {
		return err
	}

	report, err := store.New(database, logger).ApplySeed(context.Background(), seed, cfg.MediaRoot, cfg.Location)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "seeded %d files, %d rules, %d shows, %d schedule entries, %d jingles\n",
		report.Files, report.Rules, report.Shows, report.Schedule, report.Jingles)
	return nil
}
