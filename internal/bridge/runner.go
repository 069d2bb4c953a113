/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package bridge plays the short secondary clips that mask discontinuous
// jumps in the primary video, and hands control back exactly once.
package bridge

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/receiver_portal/internal/clock"
	"github.com/friendsincode/receiver_portal/internal/media"
	"github.com/friendsincode/receiver_portal/internal/telemetry"
)

var (
	// ErrBusy is returned when a clip is already in flight.
	ErrBusy = errors.New("bridge clip already running")

	// ErrUnknownKind is returned for a kind with no clip.
	ErrUnknownKind = errors.New("unknown bridge kind")
)

// Kind selects which clip plays.
type Kind string

const (
	KindExit   Kind = "exit"
	KindRelive Kind = "relive"
)

// Continuation is the action executed when the clip completes.
type Continuation string

const (
	ContinueExitReset    Continuation = "exit-reset"
	ContinueReliveReplay Continuation = "relive-replay"
)

// Outcome records how a clip completed.
type Outcome string

const (
	OutcomeEnded   Outcome = "ended"
	OutcomeError   Outcome = "error"
	OutcomeTimeout Outcome = "timeout"
)

// State is the runner lifecycle.
type State string

const (
	StateIdle    State = "idle"
	StatePlaying State = "playing"
	StateDwell   State = "dwell"
)

// Config holds runner timings.
type Config struct {
	SafetyTimeout time.Duration
	Dwell         time.Duration
	VeilLead      time.Duration
	ExitFade      time.Duration
	ReliveFade    time.Duration
}

// DefaultConfig returns the stock timings.
func DefaultConfig() Config {
	return Config{
		SafetyTimeout: 12 * time.Second,
		Dwell:         1600 * time.Millisecond,
		VeilLead:      3 * time.Second,
		ExitFade:      800 * time.Millisecond,
		ReliveFade:    1800 * time.Millisecond,
	}
}

// Status is what the presentation layer needs to draw the bridge.
type Status struct {
	State       State         `json:"state"`
	Active      bool          `json:"active"`
	Kind        Kind          `json:"kind,omitempty"`
	HasStarted  bool          `json:"has_started"`
	Placeholder bool          `json:"placeholder"`
	Veil        bool          `json:"veil"`
	Fade        time.Duration `json:"fade"`
}

// Runner plays one bridge clip at a time. It is driven from the session loop
// and is not safe for concurrent use.
type Runner struct {
	cfg    Config
	timers clock.Timers
	logger zerolog.Logger
	clips  map[Kind]media.Element

	state      State
	kind       Kind
	cont       Continuation
	hasStarted bool
	veil       bool
	gen        uint64
	safety     clock.Timer
	dwell      clock.Timer

	onComplete func(Kind, Continuation)
	onChange   func(Status)
	onOutcome  func(Kind, Outcome)
}

// NewRunner builds a runner with the exit and relive clips found in eng.
// A missing clip leaves that kind unavailable.
func NewRunner(eng media.Engine, timers clock.Timers, cfg Config, logger zerolog.Logger) *Runner {
	r := &Runner{
		cfg:    cfg,
		timers: timers,
		logger: logger.With().Str("component", "bridge").Logger(),
		clips:  make(map[Kind]media.Element, 2),
		state:  StateIdle,
	}
	if el, ok := eng.Element(media.ElementBridgeExit); ok {
		r.clips[KindExit] = el
	}
	if el, ok := eng.Element(media.ElementBridgeRelive); ok {
		r.clips[KindRelive] = el
	}
	return r
}

// SetOnComplete registers the continuation callback.
func (r *Runner) SetOnComplete(fn func(Kind, Continuation)) {
	r.onComplete = fn
}

// SetOnChange registers a status observer.
func (r *Runner) SetOnChange(fn func(Status)) {
	r.onChange = fn
}

// SetOnOutcome registers an observer for clip completions.
func (r *Runner) SetOnOutcome(fn func(Kind, Outcome)) {
	r.onOutcome = fn
}

// Owns reports whether id is one of the runner's clips.
func (r *Runner) Owns(id string) bool {
	for _, el := range r.clips {
		if el.ID() == id {
			return true
		}
	}
	return false
}

// Busy reports whether a clip is playing or dwelling.
func (r *Runner) Busy() bool {
	return r.state != StateIdle
}

// Run starts the clip for kind from position zero. cont is handed back to the
// completion callback after the clip finishes and the dwell elapses.
func (r *Runner) Run(kind Kind, cont Continuation) error {
	if r.state != StateIdle {
		return ErrBusy
	}
	clip, ok := r.clips[kind]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	r.gen++
	gen := r.gen
	r.state = StatePlaying
	r.kind = kind
	r.cont = cont
	r.hasStarted = false
	r.veil = false
	r.safety = r.timers.AfterFunc(r.cfg.SafetyTimeout, func() {
		r.finish(gen, OutcomeTimeout)
	})

	r.logger.Info().Str("kind", string(kind)).Str("continuation", string(cont)).Msg("bridge clip starting")
	r.notify()

	clip.Seek(0)
	clip.Play()
	return nil
}

// HandleEvent consumes an engine event for a bridge clip. It returns false if
// the event does not belong to a clip.
func (r *Runner) HandleEvent(ev media.Event) bool {
	if !r.Owns(ev.Source) {
		return false
	}
	if r.state != StatePlaying || r.clips[r.kind].ID() != ev.Source {
		return true
	}

	gen := r.gen
	switch ev.Kind {
	case media.EventPlaying:
		if !r.hasStarted {
			r.hasStarted = true
			r.notify()
		}
	case media.EventTimeUpdate:
		if v := r.veilDue(); v != r.veil {
			r.veil = v
			r.notify()
		}
	case media.EventPlayRejected:
		r.logger.Debug().Str("kind", string(r.kind)).Err(ev.Err).Msg("bridge clip start rejected, waiting for safety timeout")
	case media.EventEnded:
		r.finish(gen, OutcomeEnded)
	case media.EventError:
		r.logger.Warn().Str("kind", string(r.kind)).Err(ev.Err).Msg("bridge clip failed")
		r.finish(gen, OutcomeError)
	}
	return true
}

func (r *Runner) veilDue() bool {
	if r.kind != KindRelive || !r.hasStarted {
		return false
	}
	clip := r.clips[r.kind]
	d := clip.Duration()
	if d <= 0 {
		return false
	}
	remaining := time.Duration((d - clip.Position()) * float64(time.Second))
	return remaining <= r.cfg.VeilLead
}

// finish runs at most once per Run; stale generations are ignored.
func (r *Runner) finish(gen uint64, outcome Outcome) {
	if gen != r.gen || r.state != StatePlaying {
		return
	}
	if r.safety != nil {
		r.safety.Stop()
		r.safety = nil
	}

	clip := r.clips[r.kind]
	if !clip.Paused() {
		clip.Pause()
	}

	telemetry.BridgeOutcomesTotal.WithLabelValues(string(r.kind), string(outcome)).Inc()
	ev := r.logger.Info()
	if outcome == OutcomeTimeout {
		ev = r.logger.Warn()
	}
	ev.Str("kind", string(r.kind)).Str("outcome", string(outcome)).Msg("bridge clip finished")
	if r.onOutcome != nil {
		r.onOutcome(r.kind, outcome)
	}

	r.state = StateDwell
	r.veil = false
	r.notify()

	r.dwell = r.timers.AfterFunc(r.cfg.Dwell, func() {
		if gen != r.gen || r.state != StateDwell {
			return
		}
		kind, cont := r.kind, r.cont
		r.state = StateIdle
		r.kind = ""
		r.cont = ""
		r.hasStarted = false
		r.dwell = nil
		r.notify()
		if r.onComplete != nil {
			r.onComplete(kind, cont)
		}
	})
}

// Cancel abandons the clip in flight without calling the completion callback.
// Used when the whole session resets.
func (r *Runner) Cancel() {
	r.gen++
	if r.safety != nil {
		r.safety.Stop()
		r.safety = nil
	}
	if r.dwell != nil {
		r.dwell.Stop()
		r.dwell = nil
	}
	if clip, ok := r.clips[r.kind]; ok && !clip.Paused() {
		clip.Pause()
	}
	wasBusy := r.state != StateIdle
	r.state = StateIdle
	r.kind = ""
	r.cont = ""
	r.hasStarted = false
	r.veil = false
	if wasBusy {
		r.notify()
	}
}

// Status returns a snapshot.
func (r *Runner) Status() Status {
	st := Status{
		State:      r.state,
		Active:     r.state != StateIdle,
		Kind:       r.kind,
		HasStarted: r.hasStarted,
		Veil:       r.veil,
	}
	// The placeholder covers the gap before the first frame and the dwell.
	st.Placeholder = (r.state == StatePlaying && !r.hasStarted) || r.state == StateDwell
	switch r.kind {
	case KindExit:
		st.Fade = r.cfg.ExitFade
	case KindRelive:
		st.Fade = r.cfg.ReliveFade
	}
	return st
}

func (r *Runner) notify() {
	if r.onChange != nil {
		r.onChange(r.Status())
	}
}

// Close releases the clips.
func (r *Runner) Close() error {
	r.Cancel()
	var errs []error
	for kind, el := range r.clips {
		if err := el.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s clip: %w", kind, err))
		}
	}
	return errors.Join(errs...)
}
