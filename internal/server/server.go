/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/onair/internal/api"
	"github.com/friendsincode/onair/internal/config"
	"github.com/friendsincode/onair/internal/db"
	"github.com/friendsincode/onair/internal/engine"
	"github.com/friendsincode/onair/internal/eventbus"
	"github.com/friendsincode/onair/internal/events"
	"github.com/friendsincode/onair/internal/leadership"
	"github.com/friendsincode/onair/internal/logbuffer"
	"github.com/friendsincode/onair/internal/mix"
	"github.com/friendsincode/onair/internal/playout"
	"github.com/friendsincode/onair/internal/queue"
	"github.com/friendsincode/onair/internal/rotation"
	"github.com/friendsincode/onair/internal/showsched"
	"github.com/friendsincode/onair/internal/store"
	"github.com/friendsincode/onair/internal/telemetry"
)

const (
	dbMetricsInterval = 30 * time.Second
	historyPruneEvery = time.Hour
	historyKeep       = 30 * 24 * time.Hour
)

// engineAdapter is what the server needs from either engine mode.
type engineAdapter interface {
	engine.Adapter
	api.EventSink
}

// Server bundles HTTP and the playout services.
type Server struct {
	cfg           *config.Config
	logger        zerolog.Logger
	logs          *logbuffer.Buffer
	router        chi.Router
	httpServer    *http.Server
	metricsServer *http.Server
	closers       []func() error

	db       *gorm.DB
	store    *store.Store
	bus      *events.Bus
	queue    *queue.Queue
	rotation *rotation.Engine
	shows    *showsched.Scheduler
	mixer    *mix.Controller
	engine   engineAdapter
	client   *engine.Client
	director *playout.Director
	mirror   *eventbus.Mirror
	election *leadership.Election
	api      *api.API

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New connects storage, restores playout state and starts background
// workers. Serving HTTP is left to the caller.
// New wires the playout core. logs may be nil, in which case the log
// endpoint is not mounted.
func New(cfg *config.Config, logger zerolog.Logger, logs *logbuffer.Buffer) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("onair-api"))
	router.Use(telemetry.MetricsMiddleware)

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		logs:   logs,
		router: router,
		bus:    events.NewBus(),
	}

	if err := srv.initDependencies(context.Background()); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	srv.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		// Websocket streams manage their own deadlines.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	if cfg.MetricsBind != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", telemetry.Handler())
		srv.metricsServer = &http.Server{
			Addr:              cfg.MetricsBind,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies(ctx context.Context) error {
	database, err := db.Connect(s.cfg, s.logger)
	if err != nil {
		return err
	}
	s.DeferClose(func() error { return db.Close(database) })
	if err := db.Migrate(database); err != nil {
		return err
	}
	s.db = database
	s.store = store.New(database, s.logger)

	if s.cfg.SeedFile != "" {
		seed, err := config.LoadSeed(s.cfg.SeedFile)
		if err != nil {
			return err
		}
		if _, err := s.store.ApplySeed(ctx, seed, s.cfg.MediaRoot, s.cfg.Location); err != nil {
			return fmt.Errorf("apply seed %s: %w", s.cfg.SeedFile, err)
		}
	}

	switch s.cfg.EngineMode {
	case config.EngineSocket:
		s.client = engine.NewClient(engine.ClientConfig{
			Addr:             s.cfg.EngineAddr,
			Timeout:          s.cfg.EngineTimeout,
			RetryInterval:    s.cfg.EngineRetryInterval,
			FailureThreshold: uint32(s.cfg.EngineFailureThreshold),
		}, s.logger)
		s.engine = s.client
	default:
		s.logger.Warn().Msg("engine in dry mode: commands are logged, not sent")
		s.engine = engine.NewRecorder(s.logger)
	}

	s.queue = queue.New()
	s.rotation = rotation.NewEngine(s.store, s.queue, s.logger, rotation.Config{
		Location:         s.cfg.Location,
		MusicAvoidWindow: s.cfg.MusicAvoidWindow,
		MinPending:       s.cfg.MinPending,
	})
	if err := s.rotation.Reload(ctx); err != nil {
		return fmt.Errorf("load rotation rules: %w", err)
	}
	if err := s.rotation.Restore(ctx, time.Now()); err != nil {
		return fmt.Errorf("restore rotation history: %w", err)
	}

	s.shows = showsched.New(s.store, s.queue, s.bus, s.logger, showsched.Config{
		Location:    s.cfg.Location,
		MissedGrace: s.cfg.ShowMissedGrace,
	})

	s.mixer = mix.NewController(s.engine, s.store, s.bus, s.logger, s.cfg.JingleMax)
	if err := s.mixer.Load(ctx); err != nil {
		return fmt.Errorf("load jingle slots: %w", err)
	}

	s.director = playout.NewDirector(s.queue, s.rotation, s.shows, s.mixer, s.engine, s.store, s.bus, s.logger, playout.Config{
		RotationTick: s.cfg.RotationTick,
		SchedulePoll: s.cfg.SchedulePoll,
		HealthMargin: s.cfg.HealthMargin,
		MediaRoot:    s.cfg.MediaRoot,
	})

	s.mirror = s.connectMirror(ctx)

	if s.cfg.LeaderElection {
		lock, err := leadership.DialRedisLock(ctx, s.cfg.RedisAddr, s.cfg.RedisPassword, s.cfg.RedisDB)
		if err != nil {
			return fmt.Errorf("leader election: %w", err)
		}
		s.DeferClose(lock.Close)
		s.election = leadership.New(lock, leadership.Config{LeaseDuration: s.cfg.LeaderLease, RetryInterval: s.cfg.LeaderLease / 3}, s.logger)
		s.logger.Info().Str("instance_id", s.election.InstanceID()).Msg("standby mode: director runs only while holding the lease")
	}

	s.api = api.New(s.director, s.mixer, s.store, s.engine, s.bus, s.logger, api.Config{
		RateLimit:   s.cfg.APIRateLimit,
		ServiceName: "onair-api",
		Logs:        s.logs,
	})
	return nil
}

// connectMirror attaches the configured external event mirror. A broker
// that cannot be reached is logged and skipped; playout does not depend on it.
func (s *Server) connectMirror(ctx context.Context) *eventbus.Mirror {
	var (
		pub eventbus.Publisher
		err error
	)
	switch s.cfg.EventBus {
	case config.EventBusRedis:
		rc := eventbus.DefaultRedisConfig()
		rc.Addr = s.cfg.RedisAddr
		rc.Password = s.cfg.RedisPassword
		rc.DB = s.cfg.RedisDB
		pub, err = eventbus.NewRedisPublisher(ctx, rc)
	case config.EventBusNATS:
		nc := eventbus.DefaultNATSConfig()
		nc.URL = s.cfg.NATSURL
		pub, err = eventbus.NewNATSPublisher(nc)
	default:
		return nil
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("backend", string(s.cfg.EventBus)).Msg("event mirror unavailable, continuing without it")
		return nil
	}

	m := eventbus.NewMirror(string(s.cfg.EventBus), pub, eventbus.DefaultMirrorConfig(), s.logger)
	m.Attach(s.bus)
	s.logger.Info().Str("backend", string(s.cfg.EventBus)).Msg("event mirror attached")
	return m
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if s.cfg.MetricsBind == "" {
		s.router.Handle("/metrics", telemetry.Handler())
	}
	s.api.Routes(s.router)
}

// HTTPServer exposes the API server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// MetricsServer exposes the metrics listener, or nil when metrics share
// the API listener.
func (s *Server) MetricsServer() *http.Server {
	return s.metricsServer
}

// Close stops background workers and releases resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	if s.client != nil {
		s.goWorker("engine client", func() error { return s.client.Run(ctx) })
	}
	if s.mirror != nil {
		s.goWorker("event mirror", func() error { s.mirror.Run(ctx); return nil })
	}
	if s.election != nil {
		s.goWorker("leader election", func() error { return s.election.Run(ctx, s.director.Run) })
	} else {
		s.goWorker("playout director", func() error { return s.director.Run(ctx) })
	}
	s.goWorker("database metrics", func() error {
		s.every(ctx, dbMetricsInterval, func() { db.UpdateConnectionMetrics(s.db) })
		return nil
	})
	s.goWorker("history pruning", func() error {
		s.every(ctx, historyPruneEvery, func() {
			n, err := s.store.PruneHistory(ctx, time.Now().Add(-historyKeep))
			if err != nil {
				s.logger.Warn().Err(err).Msg("prune play history failed")
				return
			}
			if n > 0 {
				s.logger.Debug().Int64("rows", n).Msg("pruned play history")
			}
		})
		return nil
	})
}

func (s *Server) goWorker(name string, run func() error) {
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		if err := run(); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Str("worker", name).Msg("background worker exited")
		}
	}()
}

func (s *Server) every(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}
