/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/receiver_portal/internal/flow"
	"github.com/friendsincode/receiver_portal/internal/telemetry"
)

var (
	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("playout: session not found")

	// ErrCapacity is returned when the session limit is reached.
	ErrCapacity = errors.New("playout: session capacity reached")
)

// Summary is a listing entry for one session.
type Summary struct {
	ID        string       `json:"id"`
	Virtual   bool         `json:"virtual"`
	StartedAt time.Time    `json:"started_at"`
	Phase     flow.Phase   `json:"phase"`
	Overlay   flow.Overlay `json:"overlay"`
	Position  float64      `json:"position"`
}

type entry struct {
	director *Director
	cancel   context.CancelFunc
	done     chan struct{}
}

// Manager tracks running sessions.
type Manager struct {
	opts   Options
	limit  int
	logger zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*entry
}

// NewManager creates a session manager. limit <= 0 means unlimited.
func NewManager(opts Options, limit int, logger zerolog.Logger) *Manager {
	return &Manager{
		opts:     opts,
		limit:    limit,
		logger:   logger.With().Str("component", "sessions").Logger(),
		sessions: make(map[string]*entry),
	}
}

// Create starts a session. Wall-clock sessions get their own loop goroutine
// bound to ctx; virtual sessions are advanced with Step.
func (m *Manager) Create(ctx context.Context, virtual bool) (*Director, error) {
	m.mu.Lock()
	full := m.limit > 0 && len(m.sessions) >= m.limit
	m.mu.Unlock()
	if full {
		return nil, ErrCapacity
	}

	newDirector := NewDirector
	if virtual {
		newDirector = NewVirtualDirector
	}
	d, err := newDirector(m.opts)
	if err != nil {
		return nil, err
	}

	e := &entry{director: d}
	m.mu.Lock()
	if m.limit > 0 && len(m.sessions) >= m.limit {
		m.mu.Unlock()
		_ = d.Close()
		return nil, ErrCapacity
	}
	m.sessions[d.ID()] = e
	telemetry.SessionsActive.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	if !virtual {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		e.cancel = cancel
		e.done = make(chan struct{})
		go func() {
			defer close(e.done)
			if err := d.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Warn().Err(err).Str("session_id", d.ID()).Msg("session loop exited")
			}
		}()
	}
	return d, nil
}

// Get returns a session by id.
func (m *Manager) Get(id string) (*Director, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e.director, nil
}

// Stop closes a session and forgets it.
func (m *Manager) Stop(id string) error {
	m.mu.Lock()
	e, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		telemetry.SessionsActive.Set(float64(len(m.sessions)))
	}
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	return m.stop(e)
}

func (m *Manager) stop(e *entry) error {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
	return e.director.Close()
}

// List returns session summaries ordered by start time.
func (m *Manager) List() []Summary {
	m.mu.Lock()
	directors := make([]*Director, 0, len(m.sessions))
	for _, e := range m.sessions {
		directors = append(directors, e.director)
	}
	m.mu.Unlock()

	out := make([]Summary, 0, len(directors))
	for _, d := range directors {
		v := d.View()
		out = append(out, Summary{
			ID:        d.ID(),
			Virtual:   d.Virtual(),
			StartedAt: d.StartedAt(),
			Phase:     v.Phase,
			Overlay:   v.Overlay,
			Position:  v.Position,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Len returns the number of running sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown stops every session and clears the registry.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*entry)
	telemetry.SessionsActive.Set(0)
	m.mu.Unlock()

	var errs []error
	for _, e := range sessions {
		if err := m.stop(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
