/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	ws "nhooyr.io/websocket"

	"github.com/friendsincode/receiver_portal/internal/events"
	"github.com/friendsincode/receiver_portal/internal/playout"
	"github.com/friendsincode/receiver_portal/internal/telemetry"
)

const wsPingInterval = 15 * time.Second

// sessionEvents are forwarded to a session's WebSocket clients.
var sessionEvents = []events.EventType{
	events.EventView,
	events.EventTransition,
	events.EventCue,
	events.EventBridgeOutcome,
	events.EventSessionClosed,
}

// handleSessionWS pushes a session's view on every change and accepts
// commands shaped like the HTTP command bodies.
func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	d, ok := s.director(w, r)
	if !ok {
		return
	}

	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		s.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.APIWebSocketConnections.Inc()
	defer telemetry.APIWebSocketConnections.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	subs := make([]events.Subscriber, len(sessionEvents))
	for i, t := range sessionEvents {
		subs[i] = s.bus.SubscribeBuffered(t, 64)
	}
	defer func() {
		for i, t := range sessionEvents {
			s.bus.Unsubscribe(t, subs[i])
		}
	}()

	// Merge the per-type subscriptions into one stream for this session.
	type message struct {
		t events.EventType
		p events.Payload
	}
	merged := make(chan message, 64)
	for i, sub := range subs {
		go func(t events.EventType, sub events.Subscriber) {
			for {
				select {
				case <-ctx.Done():
					return
				case p, ok := <-sub:
					if !ok {
						return
					}
					if p["session_id"] != d.ID() {
						continue
					}
					select {
					case merged <- message{t, p}:
					case <-ctx.Done():
						return
					}
				}
			}
		}(sessionEvents[i], sub)
	}

	if err := writeEvent(ctx, conn, events.EventView, d.View()); err != nil {
		return
	}

	go s.readCommands(ctx, cancel, conn, d)

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "")
			return
		case <-ticker.C:
			if err := conn.Write(ctx, ws.MessageText, []byte(`{"type":"ping"}`)); err != nil {
				s.logger.Debug().Err(err).Msg("websocket ping failed")
				return
			}
		case m := <-merged:
			var payload any = m.p
			if m.t == events.EventView {
				payload = m.p["view"]
			}
			if err := writeEvent(ctx, conn, m.t, payload); err != nil {
				s.logger.Debug().Err(err).Msg("websocket write failed")
				return
			}
			if m.t == events.EventSessionClosed {
				conn.Close(ws.StatusNormalClosure, "session closed")
				return
			}
		}
	}
}

func (s *Server) readCommands(ctx context.Context, cancel context.CancelFunc, conn *ws.Conn, d *playout.Director) {
	defer cancel()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var cmd command
		if typ != ws.MessageText || json.Unmarshal(data, &cmd) != nil {
			if err := writeEvent(ctx, conn, "error", map[string]string{"error": "invalid_json"}); err != nil {
				return
			}
			continue
		}
		// Virtual time is only advanced through the HTTP step endpoint.
		cmd.Seconds = nil
		if err := apply(ctx, d, cmd); err != nil {
			code := "invalid_command"
			if !errors.Is(err, errBadCommand) {
				_, code = errorCode(err)
			}
			if err := writeEvent(ctx, conn, "error", map[string]string{"error": code}); err != nil {
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *ws.Conn, eventType events.EventType, payload any) error {
	data, err := json.Marshal(map[string]any{
		"type":    eventType,
		"payload": payload,
	})
	if err != nil {
		return err
	}
	return conn.Write(ctx, ws.MessageText, data)
}
