/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/onair/internal/apperrors"
	"github.com/friendsincode/onair/internal/models"
)

type enqueueRequest struct {
	FileID string `json:"file_id"`
}

type reorderRequest struct {
	Permutation []int `json:"permutation"`
}

type playShowRequest struct {
	Override  bool `json:"override"`
	Immediate bool `json:"immediate"`
}

type scheduleRequest struct {
	ID          string    `json:"id"`
	ShowID      string    `json:"show_id"`
	TriggerTime time.Time `json:"trigger_time"`
	Repeat      string    `json:"repeat"`
	Weekday     *int      `json:"weekday"`
	Active      *bool     `json:"active"`
	Override    bool      `json:"override"`
}

type showRequest struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	FileIDs     []string `json:"file_ids"`
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.director.Status())
}

func (a *API) handleQueueGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.director.Status().Queue)
}

func (a *API) handleQueueEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if req.FileID == "" {
		writeError(w, http.StatusBadRequest, "validation", "file_id required")
		return
	}
	item, err := a.director.Enqueue(r.Context(), req.FileID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (a *API) handleQueueClear(w http.ResponseWriter, r *http.Request) {
	a.director.ClearQueue()
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleQueueSkip(w http.ResponseWriter, r *http.Request) {
	a.director.Skip()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "skipping"})
}

func (a *API) handleQueueReorder(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.director.Reorder(req.Permutation); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.director.Status().Queue)
}

func (a *API) handleQueueRemove(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation", "index must be an integer")
		return
	}
	item, err := a.director.RemoveAt(index, r.URL.Query().Get("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *API) handleLibraryList(w http.ResponseWriter, r *http.Request) {
	cat := models.Category(r.URL.Query().Get("category"))
	if cat != "" && !cat.Valid() {
		writeError(w, http.StatusBadRequest, "validation", fmt.Sprintf("unknown category %q", cat))
		return
	}
	files, err := a.catalog.ListFiles(r.Context(), cat)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, http.StatusBadRequest, "validation", "limit must be within 1..1000")
			return
		}
		limit = n
	}
	history, err := a.catalog.RecentHistory(r.Context(), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// Rules

func (a *API) handleRulesList(w http.ResponseWriter, r *http.Request) {
	rules, err := a.catalog.ListRules(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func (a *API) handleRuleSet(w http.ResponseWriter, r *http.Request) {
	// Rules are enabled unless the body says otherwise.
	rule := models.RotationRule{Enabled: true}
	if err := decodeJSON(r, &rule); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.director.SetRule(r.Context(), &rule); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (a *API) handleRuleDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.director.DeleteRule(r.Context(), chi.URLParam(r, "ruleID")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Shows

func (a *API) handleShowsList(w http.ResponseWriter, r *http.Request) {
	shows, err := a.catalog.ListShows(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shows)
}

func (a *API) handleShowGet(w http.ResponseWriter, r *http.Request) {
	show, err := a.catalog.GetShow(r.Context(), chi.URLParam(r, "showID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, show)
}

func (a *API) handleShowSave(w http.ResponseWriter, r *http.Request) {
	var req showRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "validation", "name required")
		return
	}
	show := models.Show{ID: req.ID, Name: req.Name, Description: req.Description}
	for i, id := range req.FileIDs {
		show.Items = append(show.Items, models.ShowItem{AudioFileID: id, Position: i})
	}
	if err := a.catalog.SaveShow(r.Context(), &show); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, show)
}

func (a *API) handleShowPlay(w http.ResponseWriter, r *http.Request) {
	var req playShowRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}
	}
	if err := a.director.PlayShow(r.Context(), chi.URLParam(r, "showID"), req.Override, req.Immediate); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, a.director.Status())
}

func (a *API) handleShowStop(w http.ResponseWriter, r *http.Request) {
	if err := a.director.StopShow(r.Context()); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.director.Status())
}

// Schedule

func (a *API) handleScheduleList(w http.ResponseWriter, r *http.Request) {
	entries, err := a.catalog.ListScheduleEntries(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) handleScheduleSet(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	entry := models.ScheduleEntry{
		ID:          req.ID,
		ShowID:      req.ShowID,
		TriggerTime: req.TriggerTime,
		Repeat:      models.RepeatKind(req.Repeat),
		Active:      true,
		Override:    req.Override,
	}
	if entry.Repeat == "" {
		entry.Repeat = models.RepeatOnce
	}
	if req.Weekday != nil {
		if *req.Weekday < 0 || *req.Weekday > 6 {
			a.fail(w, r, fmt.Errorf("%w: weekday must be within 0..6", apperrors.ErrValidation))
			return
		}
		entry.Weekday = time.Weekday(*req.Weekday)
	} else {
		entry.Weekday = req.TriggerTime.Weekday()
	}
	if req.Active != nil {
		entry.Active = *req.Active
	}
	if err := a.director.SetSchedule(r.Context(), &entry); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (a *API) handleScheduleDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.catalog.DeleteScheduleEntry(r.Context(), chi.URLParam(r, "entryID")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
