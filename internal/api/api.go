/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"github.com/friendsincode/onair/internal/apperrors"
	"github.com/friendsincode/onair/internal/engine"
	"github.com/friendsincode/onair/internal/events"
	"github.com/friendsincode/onair/internal/logbuffer"
	"github.com/friendsincode/onair/internal/mix"
	"github.com/friendsincode/onair/internal/models"
	"github.com/friendsincode/onair/internal/playout"
	"github.com/friendsincode/onair/internal/store"
	"github.com/friendsincode/onair/internal/telemetry"
)

// Catalog is the read side of persistence plus the show and schedule
// edits that do not pass through the director.
type Catalog interface {
	Ping(ctx context.Context) error
	ListFiles(ctx context.Context, category models.Category) ([]models.AudioFile, error)
	ListRules(ctx context.Context) ([]models.RotationRule, error)
	RecentHistory(ctx context.Context, limit int) ([]models.PlayHistoryEntry, error)
	ListShows(ctx context.Context) ([]models.Show, error)
	GetShow(ctx context.Context, id string) (*models.Show, error)
	SaveShow(ctx context.Context, show *models.Show) error
	ListScheduleEntries(ctx context.Context) ([]models.ScheduleEntry, error)
	DeleteScheduleEntry(ctx context.Context, id string) error
}

var _ Catalog = (*store.Store)(nil)

// EventSink accepts engine callbacks posted over HTTP.
type EventSink interface {
	Deliver(ctx context.Context, ev engine.Event) error
}

// Config tunes the router.
type Config struct {
	// RateLimit is the request budget per client IP per minute. Zero disables limiting.
	RateLimit int
	// ServiceName labels server spans.
	ServiceName string
	// Logs, when set, is served at /api/v1/logs.
	Logs *logbuffer.Buffer
}

// API exposes the operator and engine HTTP surface.
type API struct {
	director *playout.Director
	mixer    *mix.Controller
	catalog  Catalog
	sink     EventSink
	bus      *events.Bus
	logger   zerolog.Logger
	cfg      Config
}

// New creates the API router wrapper.
func New(director *playout.Director, mixer *mix.Controller, catalog Catalog, sink EventSink, bus *events.Bus, logger zerolog.Logger, cfg Config) *API {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "onair-api"
	}
	return &API{
		director: director,
		mixer:    mixer,
		catalog:  catalog,
		sink:     sink,
		bus:      bus,
		logger:   logger.With().Str("component", "api").Logger(),
		cfg:      cfg,
	}
}

// Handler builds the router with the middleware stack.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(telemetry.TracingMiddleware(a.cfg.ServiceName))
	r.Use(telemetry.MetricsMiddleware)
	r.Use(a.requestLogger)
	a.Routes(r)
	return r
}

// Routes mounts API routes on provided router.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		// Engine callbacks are not rate limited.
		r.Route("/engine", func(r chi.Router) {
			r.Post("/track-started", a.handleEngineTrackStarted)
			r.Post("/error", a.handleEngineError)
			r.Post("/jingle-finished", a.handleEngineJingleFinished)
		})

		r.Get("/events", a.handleEvents)

		r.Group(func(r chi.Router) {
			if a.cfg.RateLimit > 0 {
				r.Use(httprate.Limit(a.cfg.RateLimit, time.Minute,
					httprate.WithKeyFuncs(httprate.KeyByIP),
					httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
						writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
					}),
				))
			}

			r.Get("/status", a.handleStatus)

			r.Route("/queue", func(r chi.Router) {
				r.Get("/", a.handleQueueGet)
				r.Post("/", a.handleQueueEnqueue)
				r.Delete("/", a.handleQueueClear)
				r.Post("/skip", a.handleQueueSkip)
				r.Put("/order", a.handleQueueReorder)
				r.Delete("/{index}", a.handleQueueRemove)
			})

			r.Get("/library", a.handleLibraryList)
			r.Get("/history", a.handleHistory)
			if a.cfg.Logs != nil {
				r.Get("/logs", a.handleLogs)
				r.Get("/logs/stats", a.handleLogStats)
			}

			r.Route("/rules", func(r chi.Router) {
				r.Get("/", a.handleRulesList)
				r.Put("/", a.handleRuleSet)
				r.Delete("/{ruleID}", a.handleRuleDelete)
			})

			r.Route("/shows", func(r chi.Router) {
				r.Get("/", a.handleShowsList)
				r.Put("/", a.handleShowSave)
				r.Post("/stop", a.handleShowStop)
				r.Get("/{showID}", a.handleShowGet)
				r.Post("/{showID}/play", a.handleShowPlay)
			})

			r.Route("/schedule", func(r chi.Router) {
				r.Get("/", a.handleScheduleList)
				r.Put("/", a.handleScheduleSet)
				r.Delete("/{entryID}", a.handleScheduleDelete)
			})

			r.Route("/mix", func(r chi.Router) {
				r.Get("/", a.handleMixGet)
				r.Put("/jingles/{slot}", a.handleJingleConfigure)
				r.Put("/jingles/{slot}/volume", a.handleJingleVolume)
				r.Delete("/jingles/{slot}", a.handleJingleClear)
				r.Post("/jingles/{slot}/play", a.handleJinglePlay)
				r.Put("/{control}", a.handleMixSet)
			})
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.catalog.Ping(ctx); err != nil {
		a.logger.Error().Err(err).Msg("health check: database unreachable")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "database": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, a.director.Health(time.Now()))
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		a.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

// decodeJSON reads a request body, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid json: %v", apperrors.ErrValidation, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

// fail answers with the status the error's kind maps to.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	code := string(apperrors.KindOf(err))
	if errors.Is(err, context.Canceled) {
		code = "canceled"
	}
	writeError(w, status, code, err.Error())
}
