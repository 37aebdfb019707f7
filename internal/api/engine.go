/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/friendsincode/onair/internal/engine"
)

// trackStartedRequest is what the engine posts when a track goes on air.
type trackStartedRequest struct {
	Title           string     `json:"title"`
	Artist          string     `json:"artist"`
	Filename        string     `json:"filename"`
	DurationSeconds float64    `json:"duration"`
	StartedAt       *time.Time `json:"started_at"`
}

type engineErrorRequest struct {
	Reason string `json:"reason"`
}

type jingleFinishedRequest struct {
	Slot int `json:"slot"`
}

func (a *API) handleEngineTrackStarted(w http.ResponseWriter, r *http.Request) {
	var req trackStartedRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	info := engine.TrackInfo{
		Title:    req.Title,
		Artist:   req.Artist,
		Filename: req.Filename,
		Duration: secondsToDuration(req.DurationSeconds),
	}
	if req.StartedAt != nil {
		info.StartedAt = *req.StartedAt
	}
	a.deliver(w, r, engine.Event{Kind: engine.EventTrackStarted, Track: info})
}

func (a *API) handleEngineError(w http.ResponseWriter, r *http.Request) {
	var req engineErrorRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	a.deliver(w, r, engine.Event{Kind: engine.EventEngineError, Reason: req.Reason})
}

func (a *API) handleEngineJingleFinished(w http.ResponseWriter, r *http.Request) {
	var req jingleFinishedRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	a.deliver(w, r, engine.Event{Kind: engine.EventJingleFinished, Slot: req.Slot})
}

// deliver queues the callback for the director. A full inbox answers 503
// so the engine retries.
func (a *API) deliver(w http.ResponseWriter, r *http.Request, ev engine.Event) {
	if a.sink == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "engine callbacks disabled")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.sink.Deliver(ctx, ev); err != nil {
		a.logger.Warn().Err(err).Str("kind", string(ev.Kind)).Msg("engine callback not delivered")
		writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "received"})
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
