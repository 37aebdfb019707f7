/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	ws "nhooyr.io/websocket"

	"github.com/friendsincode/onair/internal/apperrors"
	"github.com/friendsincode/onair/internal/events"
	"github.com/friendsincode/onair/internal/telemetry"
)

const wsPingInterval = 15 * time.Second

type eventEnvelope struct {
	Type    events.EventType `json:"type"`
	Payload events.Payload   `json:"payload"`
}

// handleEvents streams bus events over a websocket. The types query
// parameter selects event types; all types are sent when it is empty.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	eventTypes, err := parseEventTypes(r.URL.Query().Get("types"))
	if err != nil {
		a.fail(w, r, err)
		return
	}

	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.APIWebSocketConnections.Inc()
	defer telemetry.APIWebSocketConnections.Dec()

	// Clients only listen; CloseRead ends ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	out := make(chan eventEnvelope, 64)
	for _, et := range eventTypes {
		sub := a.bus.Subscribe(et)
		defer a.bus.Unsubscribe(et, sub)
		go forward(ctx, et, sub, out)
	}

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "")
			return
		case <-ticker.C:
			if err := conn.Write(ctx, ws.MessageText, []byte(`{"type":"ping"}`)); err != nil {
				a.logger.Debug().Err(err).Msg("websocket ping failed")
				return
			}
		case env := <-out:
			if err := writeEvent(ctx, conn, env); err != nil {
				a.logger.Debug().Err(err).Msg("websocket write failed")
				return
			}
		}
	}
}

func forward(ctx context.Context, et events.EventType, sub events.Subscriber, out chan<- eventEnvelope) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub:
			if !ok {
				return
			}
			select {
			case out <- eventEnvelope{Type: et, Payload: payload}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *ws.Conn, env eventEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(ctx, ws.MessageText, data)
}

func parseEventTypes(raw string) ([]events.EventType, error) {
	if strings.TrimSpace(raw) == "" {
		return events.AllTypes, nil
	}
	var out []events.EventType
	for _, part := range strings.Split(raw, ",") {
		et := events.EventType(strings.TrimSpace(part))
		if et == "" || slices.Contains(out, et) {
			continue
		}
		if !slices.Contains(events.AllTypes, et) {
			return nil, fmt.Errorf("%w: unknown event type %q", apperrors.ErrValidation, et)
		}
		out = append(out, et)
	}
	return out, nil
}
