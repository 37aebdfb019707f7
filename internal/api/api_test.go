/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	ws "nhooyr.io/websocket"

	"github.com/friendsincode/onair/internal/db"
	"github.com/friendsincode/onair/internal/engine"
	"github.com/friendsincode/onair/internal/events"
	"github.com/friendsincode/onair/internal/mix"
	"github.com/friendsincode/onair/internal/models"
	"github.com/friendsincode/onair/internal/playout"
	"github.com/friendsincode/onair/internal/queue"
	"github.com/friendsincode/onair/internal/rotation"
	"github.com/friendsincode/onair/internal/showsched"
	"github.com/friendsincode/onair/internal/store"
)

type testEnv struct {
	handler  http.Handler
	store    *store.Store
	recorder *engine.Recorder
	director *playout.Director
	bus      *events.Bus
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, Config{})
}

func newTestEnvWith(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	log := zerolog.Nop()
	st := store.New(database, log)
	q := queue.New()
	bus := events.NewBus()
	rec := engine.NewRecorder(log)
	rot := rotation.NewEngine(st, q, log, rotation.Config{})
	shows := showsched.New(st, q, bus, log, showsched.Config{Location: time.UTC})
	mixer := mix.NewController(rec, st, bus, log, 0)
	d := playout.NewDirector(q, rot, shows, mixer, rec, st, bus, log, playout.Config{MediaRoot: "/media"})

	a := New(d, mixer, st, rec, bus, log, cfg)
	return &testEnv{handler: a.Handler(), store: st, recorder: rec, director: d, bus: bus}
}

func (e *testEnv) addFile(t *testing.T, p string, cat models.Category) models.AudioFile {
	t.Helper()
	f := models.AudioFile{Path: p, Filename: p[strings.LastIndex(p, "/")+1:], Category: cat, Title: p, Duration: 3 * time.Minute, Active: true}
	if err := e.store.UpsertFile(context.Background(), &f); err != nil {
		t.Fatalf("upsert %s: %v", p, err)
	}
	return f
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodGet, "/api/v1/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	h := decode[playout.Health](t, rr)
	if h.Mode != "automation" {
		t.Fatalf("mode = %q, want automation", h.Mode)
	}
}

func TestQueueEndpoints(t *testing.T) {
	env := newTestEnv(t)
	a := env.addFile(t, "/media/music/a.mp3", models.CategoryMusic)
	b := env.addFile(t, "/media/music/b.mp3", models.CategoryMusic)

	rr := env.do(t, http.MethodPost, "/api/v1/queue", map[string]string{"file_id": a.ID})
	if rr.Code != http.StatusCreated {
		t.Fatalf("enqueue a: %d %s", rr.Code, rr.Body.String())
	}
	itemA := decode[models.QueueItem](t, rr)
	env.do(t, http.MethodPost, "/api/v1/queue", map[string]string{"file_id": b.ID})

	rr = env.do(t, http.MethodPut, "/api/v1/queue/order", map[string][]int{"permutation": {1, 0}})
	if rr.Code != http.StatusOK {
		t.Fatalf("reorder: %d %s", rr.Code, rr.Body.String())
	}
	st := decode[queue.Status](t, rr)
	if len(st.Items) != 2 || st.Items[0].AudioFileID != b.ID {
		t.Fatalf("after reorder items = %+v", st.Items)
	}

	rr = env.do(t, http.MethodDelete, "/api/v1/queue/0?id="+itemA.ID, nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("stale remove: %d, want 409", rr.Code)
	}
	rr = env.do(t, http.MethodDelete, "/api/v1/queue/1?id="+itemA.ID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("remove: %d %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodDelete, "/api/v1/queue", nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("clear: %d", rr.Code)
	}
	st = env.director.Status().Queue
	if len(st.Items) != 0 {
		t.Fatalf("queue not cleared: %+v", st.Items)
	}

	rr = env.do(t, http.MethodPost, "/api/v1/queue/skip", nil)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("skip: %d", rr.Code)
	}
	cmds := env.recorder.Commands()
	if cmds[len(cmds)-1] != engine.CommandSkip {
		t.Fatalf("last command = %q, want skip", cmds[len(cmds)-1])
	}
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"unknown file", http.MethodPost, "/api/v1/queue", map[string]string{"file_id": "nope"}, http.StatusNotFound},
		{"missing file id", http.MethodPost, "/api/v1/queue", map[string]string{}, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/v1/queue", `{"file":"x"}`, http.StatusBadRequest},
		{"bad permutation", http.MethodPut, "/api/v1/queue/order", map[string][]int{"permutation": {0}}, http.StatusBadRequest},
		{"index not int", http.MethodDelete, "/api/v1/queue/x", nil, http.StatusBadRequest},
		{"stop without show", http.MethodPost, "/api/v1/shows/stop", nil, http.StatusConflict},
		{"play unknown show", http.MethodPost, "/api/v1/shows/nope/play", nil, http.StatusNotFound},
		{"invalid rule", http.MethodPut, "/api/v1/rules", map[string]any{"name": "x", "kind": "at_minute", "value": 99, "category": "jingles"}, http.StatusBadRequest},
		{"unknown mix control", http.MethodPut, "/api/v1/mix/treble", map[string]any{"value": 1}, http.StatusNotFound},
		{"mix out of range", http.MethodPut, "/api/v1/mix/bed_volume", map[string]any{"value": 1.5}, http.StatusBadRequest},
		{"mix wrong type", http.MethodPut, "/api/v1/mix/bed_enabled", map[string]any{"value": 0.5}, http.StatusBadRequest},
		{"jingle bad slot", http.MethodPost, "/api/v1/mix/jingles/12/play", nil, http.StatusBadRequest},
		{"jingle unconfigured", http.MethodPost, "/api/v1/mix/jingles/2/play", nil, http.StatusBadRequest},
		{"unknown category", http.MethodGet, "/api/v1/library?category=polka", nil, http.StatusBadRequest},
		{"unknown event type", http.MethodGet, "/api/v1/events?types=bogus", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, tt.method, tt.path, tt.body)
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, tt.status, rr.Body.String())
			}
			body := decode[map[string]string](t, rr)
			if body["error"] == "" {
				t.Fatalf("missing error code in %s", rr.Body.String())
			}
		})
	}
}

func TestMixEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPut, "/api/v1/mix/bed_enabled", map[string]any{"value": true})
	if rr.Code != http.StatusOK {
		t.Fatalf("bed_enabled: %d %s", rr.Code, rr.Body.String())
	}
	rr = env.do(t, http.MethodPut, "/api/v1/mix/bed_volume", map[string]any{"value": 0.5})
	if rr.Code != http.StatusOK {
		t.Fatalf("bed_volume: %d %s", rr.Code, rr.Body.String())
	}
	st := decode[mix.State](t, rr)
	if !st.BedEnabled || st.BedVolume != 0.5 {
		t.Fatalf("state = %+v", st)
	}

	rr = env.do(t, http.MethodPut, "/api/v1/mix/jingles/3", map[string]any{"source": "/media/jingles/horn.mp3", "label": "Horn", "duration_seconds": 2})
	if rr.Code != http.StatusOK {
		t.Fatalf("configure: %d %s", rr.Code, rr.Body.String())
	}
	rr = env.do(t, http.MethodPost, "/api/v1/mix/jingles/3/play", nil)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("play: %d %s", rr.Code, rr.Body.String())
	}
	slot := decode[mix.Slot](t, rr)
	if !slot.Firing {
		t.Fatal("slot should be firing")
	}

	slots, err := env.store.ListJingleSlots(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 1 || slots[0].Slot != 3 {
		t.Fatalf("persisted slots = %+v", slots)
	}
}

func TestRulesAndShows(t *testing.T) {
	env := newTestEnv(t)
	f := env.addFile(t, "/media/planned-moderation/intro.mp3", models.CategoryPlannedModeration)

	rr := env.do(t, http.MethodPut, "/api/v1/rules", map[string]any{
		"name": "top of hour", "kind": "at_minute", "value": 0, "category": "jingles", "enabled": true,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("set rule: %d %s", rr.Code, rr.Body.String())
	}
	rule := decode[models.RotationRule](t, rr)

	rr = env.do(t, http.MethodGet, "/api/v1/rules", nil)
	if rules := decode[[]models.RotationRule](t, rr); len(rules) != 1 {
		t.Fatalf("rules = %+v", rules)
	}

	rr = env.do(t, http.MethodPut, "/api/v1/rules", map[string]any{
		"name": "parked promo", "kind": "after_n_songs", "value": 5, "category": "promos", "enabled": false,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("set disabled rule: %d %s", rr.Code, rr.Body.String())
	}
	parked := decode[models.RotationRule](t, rr)
	rr = env.do(t, http.MethodGet, "/api/v1/rules", nil)
	for _, got := range decode[[]models.RotationRule](t, rr) {
		if got.ID == parked.ID && got.Enabled {
			t.Fatalf("disabled rule stored as enabled: %+v", got)
		}
	}
	if rr := env.do(t, http.MethodDelete, "/api/v1/rules/"+parked.ID, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("delete parked rule: %d", rr.Code)
	}
	if rr := env.do(t, http.MethodDelete, "/api/v1/rules/"+rule.ID, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("delete rule: %d", rr.Code)
	}

	rr = env.do(t, http.MethodPut, "/api/v1/shows", map[string]any{"name": "Breakfast", "file_ids": []string{f.ID}})
	if rr.Code != http.StatusOK {
		t.Fatalf("save show: %d %s", rr.Code, rr.Body.String())
	}
	show := decode[models.Show](t, rr)

	when := time.Date(2030, 1, 7, 7, 0, 0, 0, time.UTC)
	rr = env.do(t, http.MethodPut, "/api/v1/schedule", map[string]any{"show_id": show.ID, "trigger_time": when, "repeat": "weekly"})
	if rr.Code != http.StatusOK {
		t.Fatalf("set schedule: %d %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodPost, "/api/v1/shows/"+show.ID+"/play", map[string]bool{"immediate": true})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("play show: %d %s", rr.Code, rr.Body.String())
	}
	if st := env.director.Status(); st.Mode != showsched.ModeShow {
		t.Fatalf("mode = %s, want show", st.Mode)
	}
	rr = env.do(t, http.MethodPost, "/api/v1/shows/"+show.ID+"/play", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("second play: %d, want 409", rr.Code)
	}
	if rr := env.do(t, http.MethodPost, "/api/v1/shows/stop", nil); rr.Code != http.StatusOK {
		t.Fatalf("stop: %d", rr.Code)
	}
}

func TestEngineCallbackDeliversEvent(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodPost, "/api/v1/engine/track-started", map[string]any{
		"filename": "/media/music/a.mp3", "title": "A", "duration": 180,
	})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("track-started: %d %s", rr.Code, rr.Body.String())
	}
	select {
	case ev := <-env.recorder.Events():
		if ev.Kind != engine.EventTrackStarted || ev.Track.Filename != "/media/music/a.mp3" || ev.Track.Duration != 3*time.Minute {
			t.Fatalf("event = %+v", ev)
		}
	default:
		t.Fatal("no event delivered")
	}

	rr = env.do(t, http.MethodPost, "/api/v1/engine/jingle-finished", map[string]int{"slot": 4})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("jingle-finished: %d", rr.Code)
	}
	if ev := <-env.recorder.Events(); ev.Kind != engine.EventJingleFinished || ev.Slot != 4 {
		t.Fatalf("event = %+v", ev)
	}
}

func TestEventsWebsocket(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events?types=mix_changed"
	conn, _, err := ws.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(ws.StatusNormalClosure, "")

	// Subscription happens after the handshake; publish until a frame arrives.
	go func() {
		for ctx.Err() == nil {
			env.bus.Publish(events.EventMixChanged, events.Payload{"bed_enabled": true})
			env.bus.Publish(events.EventHealth, events.Payload{"status": "ok"})
			time.Sleep(20 * time.Millisecond)
		}
	}()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env2 struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(data, &env2); err != nil {
		t.Fatal(err)
	}
	if env2.Type != string(events.EventMixChanged) {
		t.Fatalf("type = %q, want mix_changed only", env2.Type)
	}
}
