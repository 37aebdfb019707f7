/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/onair/internal/config"
	"github.com/friendsincode/onair/internal/logbuffer"
	"github.com/friendsincode/onair/internal/logging"
	"github.com/friendsincode/onair/internal/server"
	"github.com/friendsincode/onair/internal/telemetry"
	"github.com/friendsincode/onair/internal/version"
)

var (
	logger   zerolog.Logger
	logs     = logbuffer.New(logbuffer.DefaultCapacity)
	cfg      *config.Config
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:           "onair",
	Short:         "OnAir - radio playout automation",
	Long:          "OnAir keeps a station on air: it fills the play queue from rotation rules, starts scheduled shows and drives the audio engine.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the playout core and HTTP API",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.Get())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the log level (debug, info, warn, error)")
	rootCmd.AddCommand(serveCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = logging.SetupWithWriter(cfg.Environment, logs)
	logger, err = logging.ParseLevel(logger, logLevel)
	if err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	info := version.Get()
	logger.Info().Str("version", info.Version).Str("revision", info.Revision).Msg("onair starting")

	tracerProvider, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "onair",
		ServiceVersion: info.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	srv, err := server.New(cfg, logger, logs)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}

	serve := func(name string, hs *http.Server) {
		if hs == nil {
			return
		}
		go func() {
			logger.Info().Str("addr", hs.Addr).Msg(name + " listening")
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Fatal().Err(err).Msg(name + " error")
			}
		}()
	}
	serve("HTTP server", srv.HTTPServer())
	serve("metrics server", srv.MetricsServer())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down gracefully...")

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, hs := range []*http.Server{srv.HTTPServer(), srv.MetricsServer()} {
		if hs == nil {
			continue
		}
		if err := hs.Shutdown(timeoutCtx); err != nil {
			logger.Error().Err(err).Str("addr", hs.Addr).Msg("graceful shutdown failed")
		}
	}

	if err := srv.Close(); err != nil {
		logger.Error().Err(err).Msg("shutdown cleanup failed")
	}

	logger.Info().Msg("onair stopped")
	return nil
}
