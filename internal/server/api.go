/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/receiver_portal/internal/bridge"
	"github.com/friendsincode/receiver_portal/internal/flow"
	"github.com/friendsincode/receiver_portal/internal/logbuffer"
	"github.com/friendsincode/receiver_portal/internal/playout"
	"github.com/friendsincode/receiver_portal/internal/version"
)

const maxBody = 1 << 16

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// errorCode maps domain errors onto an HTTP status and a stable error code.
func errorCode(err error) (int, string) {
	switch {
	case errors.Is(err, playout.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, playout.ErrCapacity):
		return http.StatusServiceUnavailable, "capacity_reached"
	case errors.Is(err, playout.ErrDirectorStopped):
		return http.StatusGone, "session_stopped"
	case errors.Is(err, playout.ErrNotVirtual):
		return http.StatusConflict, "not_virtual"
	case errors.Is(err, flow.ErrBridging):
		return http.StatusConflict, "bridging"
	case errors.Is(err, flow.ErrUnavailable):
		return http.StatusConflict, "unavailable"
	case errors.Is(err, flow.ErrNoSelectionPending):
		return http.StatusConflict, "no_selection_pending"
	case errors.Is(err, flow.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, bridge.ErrBusy):
		return http.StatusConflict, "bridge_busy"
	}
	return http.StatusInternalServerError, "internal_error"
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorCode(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, status, code)
}

// decode reads an optional JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *Server) director(w http.ResponseWriter, r *http.Request) (*playout.Director, bool) {
	d, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	return d, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Len(),
		"version":  version.Version,
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	info := version.UpdateInfo{CurrentVersion: version.Version}
	if s.updates != nil {
		info = s.updates.Info()
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.exp.Timeline)
}

func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"assets": s.exp.Assets})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := logbuffer.QueryParams{
		Level:      q.Get("level"),
		Component:  q.Get("component"),
		SessionID:  q.Get("session"),
		Search:     q.Get("search"),
		Limit:      200,
		Descending: q.Get("order") != "asc",
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		params.Limit = n
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_since")
			return
		}
		params.Since = t
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": s.logBuffer.Query(params),
		"stats":   s.logBuffer.StatsForSession(params.SessionID),
	})
}

type createSessionRequest struct {
	Virtual bool `json:"virtual"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.sessions.List()})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	d, err := s.sessions.Create(r.Context(), req.Virtual)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/sessions/"+d.ID())
	writeJSON(w, http.StatusCreated, map[string]any{"id": d.ID(), "view": d.View()})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	d, ok := s.director(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":      d.ID(),
		"virtual": d.Virtual(),
		"elapsed": d.Elapsed().Seconds(),
		"session": d.Session(),
		"view":    d.View(),
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Stop(chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTransitions(w http.ResponseWriter, r *http.Request) {
	d, ok := s.director(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transitions": d.History()})
}

// command is the shared body of session commands, over HTTP and WebSocket.
type command struct {
	Action     string   `json:"action,omitempty"`
	ChoiceMade *bool    `json:"choice_made,omitempty"`
	Unlocked   *bool    `json:"unlocked,omitempty"`
	Muted      *bool    `json:"muted,omitempty"`
	Scan       bool     `json:"scan,omitempty"`
	Grant      bool     `json:"grant,omitempty"`
	Reset      bool     `json:"reset,omitempty"`
	Seconds    *float64 `json:"seconds,omitempty"`
}

// sessionHandler decodes a command, applies it and replies with the new view.
func (s *Server) sessionHandler(prepare func(*command) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, ok := s.director(w, r)
		if !ok {
			return
		}
		var cmd command
		if err := decode(r, &cmd); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if prepare != nil {
			if err := prepare(&cmd); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
		}
		if err := apply(r.Context(), d, cmd); err != nil {
			if errors.Is(err, errBadCommand) {
				writeError(w, http.StatusBadRequest, "invalid_command")
				return
			}
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"view": d.View()})
	}
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	s.sessionHandler(func(c *command) error {
		if _, ok := flow.ParseAction(c.Action); !ok {
			return errors.New("invalid_action")
		}
		*c = command{Action: c.Action}
		return nil
	})(w, r)
}

func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	s.sessionHandler(func(c *command) error {
		if c.ChoiceMade == nil {
			return errors.New("choice_made_required")
		}
		*c = command{ChoiceMade: c.ChoiceMade}
		return nil
	})(w, r)
}

func (s *Server) handleAccess(w http.ResponseWriter, r *http.Request) {
	s.sessionHandler(func(c *command) error {
		// A bare POST starts a key scan; {"grant": true} authorizes immediately.
		*c = command{Scan: !c.Grant, Grant: c.Grant}
		return nil
	})(w, r)
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	s.sessionHandler(func(c *command) error {
		if c.Unlocked == nil && c.Muted == nil {
			return errors.New("unlocked_or_muted_required")
		}
		*c = command{Unlocked: c.Unlocked, Muted: c.Muted}
		return nil
	})(w, r)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.sessionHandler(func(c *command) error {
		*c = command{Reset: true}
		return nil
	})(w, r)
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	s.sessionHandler(func(c *command) error {
		if c.Seconds == nil || *c.Seconds <= 0 || *c.Seconds > 600 {
			return errors.New("seconds_out_of_range")
		}
		*c = command{Seconds: c.Seconds}
		return nil
	})(w, r)
}
