/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/onair/internal/apperrors"
	"github.com/friendsincode/onair/internal/mix"
)

// mixValueRequest carries a bool for switches and a number for levels.
type mixValueRequest struct {
	Value json.RawMessage `json:"value"`
}

type jingleSlotRequest struct {
	Source          string  `json:"source"`
	Label           string  `json:"label"`
	Color           string  `json:"color"`
	DurationSeconds float64 `json:"duration_seconds"`
}

type jingleVolumeRequest struct {
	Volume float64 `json:"volume"`
}

var (
	mixSwitches = map[string]func(*mix.Controller, bool){
		"bed_enabled":       (*mix.Controller).SetBedEnabled,
		"ducking_active":    (*mix.Controller).SetDuckingActive,
		"mic_enabled":       (*mix.Controller).SetMicEnabled,
		"mic_auto_duck":     (*mix.Controller).SetMicAutoDuck,
		"jingle_duck_music": (*mix.Controller).SetJingleDuckMusic,
	}
	mixLevels = map[string]func(*mix.Controller, float64) error{
		"bed_volume":    (*mix.Controller).SetBedVolume,
		"ducking_level": (*mix.Controller).SetDuckingLevel,
		"mic_volume":    (*mix.Controller).SetMicVolume,
	}
)

func (a *API) handleMixGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.mixer.State())
}

func (a *API) handleMixSet(w http.ResponseWriter, r *http.Request) {
	control := chi.URLParam(r, "control")
	var req mixValueRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}

	if set, ok := mixSwitches[control]; ok {
		var v bool
		if err := json.Unmarshal(req.Value, &v); err != nil {
			a.fail(w, r, fmt.Errorf("%w: %s expects a boolean", apperrors.ErrValidation, control))
			return
		}
		set(a.mixer, v)
		writeJSON(w, http.StatusOK, a.mixer.State())
		return
	}
	if set, ok := mixLevels[control]; ok {
		var v float64
		if err := json.Unmarshal(req.Value, &v); err != nil {
			a.fail(w, r, fmt.Errorf("%w: %s expects a number", apperrors.ErrValidation, control))
			return
		}
		if err := set(a.mixer, v); err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, a.mixer.State())
		return
	}
	writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("unknown mix control %q", control))
}

func slotParam(r *http.Request) (int, error) {
	n, err := strconv.Atoi(chi.URLParam(r, "slot"))
	if err != nil {
		return 0, fmt.Errorf("%w: slot must be an integer", apperrors.ErrValidation)
	}
	return n, nil
}

func (a *API) handleJingleConfigure(w http.ResponseWriter, r *http.Request) {
	n, err := slotParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req jingleSlotRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if req.DurationSeconds < 0 {
		a.fail(w, r, fmt.Errorf("%w: duration_seconds must not be negative", apperrors.ErrValidation))
		return
	}
	cfg := mix.SlotConfig{
		Source:   req.Source,
		Label:    req.Label,
		Color:    req.Color,
		Duration: secondsToDuration(req.DurationSeconds),
	}
	if err := a.mixer.ConfigureJingleSlot(r.Context(), n, cfg); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.mixer.State().Jingles[n-1])
}

func (a *API) handleJingleVolume(w http.ResponseWriter, r *http.Request) {
	n, err := slotParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req jingleVolumeRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.mixer.SetJingleVolume(r.Context(), n, req.Volume); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.mixer.State().Jingles[n-1])
}

func (a *API) handleJingleClear(w http.ResponseWriter, r *http.Request) {
	n, err := slotParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.mixer.ClearJingleSlot(r.Context(), n); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleJinglePlay(w http.ResponseWriter, r *http.Request) {
	n, err := slotParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.mixer.PlayJingle(n); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, a.mixer.State().Jingles[n-1])
}
