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

	"github.com/rs/zerolog"

	"github.com/friendsincode/onair/internal/apperrors"
	"github.com/friendsincode/onair/internal/logbuffer"
)

const maxLogLimit = 2000

func (a *API) handleLogs(w http.ResponseWriter, r *http.Request) {
	q, err := parseLogQuery(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries":    a.cfg.Logs.Query(q),
		"components": a.cfg.Logs.Components(),
	})
}

func (a *API) handleLogStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.cfg.Logs.Stats())
}

func parseLogQuery(r *http.Request) (logbuffer.Query, error) {
	v := r.URL.Query()
	q := logbuffer.Query{
		MinLevel:  zerolog.DebugLevel,
		Component: v.Get("component"),
		Search:    v.Get("search"),
		Limit:     200,
	}
	if s := v.Get("level"); s != "" {
		lvl, err := zerolog.ParseLevel(s)
		if err != nil {
			return q, fmt.Errorf("%w: unknown level %q", apperrors.ErrValidation, s)
		}
		q.MinLevel = lvl
	}
	if s := v.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxLogLimit {
			return q, fmt.Errorf("%w: limit must be between 1 and %d", apperrors.ErrValidation, maxLogLimit)
		}
		q.Limit = n
	}
	if s := v.Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return q, fmt.Errorf("%w: since must be RFC3339", apperrors.ErrValidation)
		}
		q.Since = t
	}
	return q, nil
}
