/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// EngineMode selects how commands reach the audio engine.
type EngineMode string

const (
	EngineSocket EngineMode = "socket"
	EngineDry    EngineMode = "dry"
)

// EventBusBackend selects where events are mirrored besides the in-process bus.
type EventBusBackend string

const (
	EventBusMemory EventBusBackend = "memory"
	EventBusRedis  EventBusBackend = "redis"
	EventBusNATS   EventBusBackend = "nats"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	MetricsBind string
	DBBackend   DatabaseBackend
	DBDSN       string
	MediaRoot   string
	Timezone    string
	Location    *time.Location

	// Engine control socket
	EngineMode             EngineMode
	EngineAddr             string // host:port or unix:/path
	EngineTimeout          time.Duration
	EngineRetryInterval    time.Duration
	EngineFailureThreshold int

	// Playout timing
	RotationTick     time.Duration
	SchedulePoll     time.Duration
	HealthMargin     time.Duration
	MusicAvoidWindow time.Duration
	MinPending       int
	ShowMissedGrace  time.Duration
	JingleMax        time.Duration

	// Event mirroring
	EventBus      EventBusBackend
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	NATSURL       string

	// Standby: only the lease holder drives the engine
	LeaderElection bool
	LeaderLease    time.Duration

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	APIRateLimit int // requests per minute per client IP, 0 disables
	SeedFile     string

	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnvAny([]string{"ONAIR_ENV"}, "development"),
		HTTPBind:    getEnvAny([]string{"ONAIR_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:    getEnvIntAny([]string{"ONAIR_HTTP_PORT", "PORT"}, 8080),
		MetricsBind: getEnvAny([]string{"ONAIR_METRICS_BIND"}, "127.0.0.1:9000"),
		DBBackend:   DatabaseBackend(getEnvAny([]string{"ONAIR_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:       getEnvAny([]string{"ONAIR_DB_DSN", "DATABASE_URL"}, ""),
		MediaRoot:   getEnvAny([]string{"ONAIR_MEDIA_ROOT", "MEDIA_PATH"}, "/media"),
		Timezone:    getEnvAny([]string{"ONAIR_TIMEZONE", "TZ"}, "UTC"),

		EngineMode:             EngineMode(getEnvAny([]string{"ONAIR_ENGINE_MODE"}, string(EngineSocket))),
		EngineAddr:             getEnvAny([]string{"ONAIR_ENGINE_ADDR"}, "127.0.0.1:1234"),
		EngineTimeout:          time.Duration(getEnvIntAny([]string{"ONAIR_ENGINE_TIMEOUT_MS"}, 2000)) * time.Millisecond,
		EngineRetryInterval:    time.Duration(getEnvIntAny([]string{"ONAIR_ENGINE_RETRY_MS"}, 1000)) * time.Millisecond,
		EngineFailureThreshold: getEnvIntAny([]string{"ONAIR_ENGINE_FAILURE_THRESHOLD"}, 5),

		RotationTick:     time.Duration(getEnvIntAny([]string{"ONAIR_ROTATION_TICK_SECONDS"}, 30)) * time.Second,
		SchedulePoll:     time.Duration(getEnvIntAny([]string{"ONAIR_SCHEDULE_POLL_SECONDS"}, 5)) * time.Second,
		HealthMargin:     time.Duration(getEnvIntAny([]string{"ONAIR_HEALTH_MARGIN_SECONDS"}, 30)) * time.Second,
		MusicAvoidWindow: time.Duration(getEnvIntAny([]string{"ONAIR_MUSIC_AVOID_MINUTES"}, 60)) * time.Minute,
		MinPending:       getEnvIntAny([]string{"ONAIR_MIN_PENDING"}, 1),
		ShowMissedGrace:  time.Duration(getEnvIntAny([]string{"ONAIR_SHOW_MISSED_GRACE_MINUTES"}, 60)) * time.Minute,
		JingleMax:        time.Duration(getEnvIntAny([]string{"ONAIR_JINGLE_MAX_SECONDS"}, 30)) * time.Second,

		EventBus:      EventBusBackend(getEnvAny([]string{"ONAIR_EVENTBUS"}, string(EventBusMemory))),
		RedisAddr:     getEnvAny([]string{"ONAIR_REDIS_ADDR"}, "localhost:6379"),
		RedisPassword: getEnvAny([]string{"ONAIR_REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"ONAIR_REDIS_DB"}, 0),
		NATSURL:       getEnvAny([]string{"ONAIR_NATS_URL", "NATS_URL"}, "nats://127.0.0.1:4222"),

		LeaderElection: getEnvBoolAny([]string{"ONAIR_LEADER_ELECTION"}, false),
		LeaderLease:    time.Duration(getEnvIntAny([]string{"ONAIR_LEADER_LEASE_SECONDS"}, 15)) * time.Second,

		TracingEnabled:    getEnvBoolAny([]string{"ONAIR_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"ONAIR_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"ONAIR_TRACING_SAMPLE_RATE"}, 1.0),

		APIRateLimit: getEnvIntAny([]string{"ONAIR_API_RATE_LIMIT"}, 300),
		SeedFile:     getEnvAny([]string{"ONAIR_SEED_FILE"}, ""),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		if cfg.DBBackend != DatabaseSQLite {
			return nil, fmt.Errorf("ONAIR_DB_DSN must be provided for the %s backend", cfg.DBBackend)
		}
		cfg.DBDSN = "file:onair.db?_foreign_keys=on"
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid ONAIR_TIMEZONE %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	if cfg.EngineMode != EngineSocket && cfg.EngineMode != EngineDry {
		return nil, fmt.Errorf("unsupported engine mode %q", cfg.EngineMode)
	}
	if cfg.EngineMode == EngineSocket && strings.TrimSpace(cfg.EngineAddr) == "" {
		return nil, fmt.Errorf("ONAIR_ENGINE_ADDR must be provided in socket mode")
	}

	if cfg.EventBus != EventBusMemory && cfg.EventBus != EventBusRedis && cfg.EventBus != EventBusNATS {
		return nil, fmt.Errorf("unsupported event bus %q", cfg.EventBus)
	}

	for name, d := range map[string]time.Duration{
		"ONAIR_ROTATION_TICK_SECONDS": cfg.RotationTick,
		"ONAIR_SCHEDULE_POLL_SECONDS": cfg.SchedulePoll,
		"ONAIR_ENGINE_TIMEOUT_MS":     cfg.EngineTimeout,
		"ONAIR_JINGLE_MAX_SECONDS":    cfg.JingleMax,
		"ONAIR_LEADER_LEASE_SECONDS":  cfg.LeaderLease,
	} {
		if d <= 0 {
			return nil, fmt.Errorf("%s must be positive", name)
		}
	}
	if cfg.MinPending < 0 {
		return nil, fmt.Errorf("ONAIR_MIN_PENDING must not be negative")
	}
	if cfg.TracingSampleRate < 0 || cfg.TracingSampleRate > 1 {
		return nil, fmt.Errorf("ONAIR_TRACING_SAMPLE_RATE must be within 0..1")
	}

	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"ENVIRONMENT":         "use ONAIR_ENV",
		"TIMEZONE":            "use ONAIR_TIMEZONE",
		"TRACING_ENABLED":     "use ONAIR_TRACING_ENABLED",
		"OTLP_ENDPOINT":       "use ONAIR_OTLP_ENDPOINT",
		"TRACING_SAMPLE_RATE": "use ONAIR_TRACING_SAMPLE_RATE",
		"REDIS_ADDR":          "use ONAIR_REDIS_ADDR",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// HTTPAddr returns the bind address of the API listener.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

// TimezoneFromEnv returns the configured station timezone name without
// loading the rest of the configuration.
func TimezoneFromEnv() string {
	return getEnvAny([]string{"ONAIR_TIMEZONE", "TZ"}, "")
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
