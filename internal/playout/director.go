/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playout runs portal sessions: each Director owns one engine and one
// flow controller and serializes every touch of them through a session loop.
package playout

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/receiver_portal/internal/audio"
	"github.com/friendsincode/receiver_portal/internal/bridge"
	"github.com/friendsincode/receiver_portal/internal/clock"
	"github.com/friendsincode/receiver_portal/internal/config"
	"github.com/friendsincode/receiver_portal/internal/events"
	"github.com/friendsincode/receiver_portal/internal/flow"
	"github.com/friendsincode/receiver_portal/internal/media"
	"github.com/friendsincode/receiver_portal/internal/media/sim"
	"github.com/friendsincode/receiver_portal/internal/telemetry"
	"github.com/friendsincode/receiver_portal/internal/timeline"
)

var (
	// ErrDirectorStopped is returned for operations on a closed session.
	ErrDirectorStopped = errors.New("playout: director stopped")

	// ErrNotVirtual is returned when stepping a director that runs on wall-clock time.
	ErrNotVirtual = errors.New("playout: director is not on virtual time")
)

// EngineFactory builds the media engine for one session. Engines must emit
// events on the goroutine that calls into them; engines with their own event
// threads hand events over with Director.Deliver instead.
type EngineFactory func(assets []media.Asset, sink media.Sink) media.Engine

// SimEngine builds the simulated engine.
func SimEngine(assets []media.Asset, sink media.Sink) media.Engine {
	return sim.New(assets, sink)
}

// Options configure a Director.
type Options struct {
	Experience     config.Experience
	Flow           flow.Config
	Audio          audio.Config
	Bridge         bridge.Config
	SampleInterval time.Duration
	HistoryLimit   int
	NewEngine      EngineFactory
	// Selection is opened from inside the session loop and must not call
	// back into the Director synchronously.
	Selection flow.SelectionFlow
	Bus       *events.Bus
	Logger    zerolog.Logger
}

// DefaultOptions returns options for the stock experience on the simulator.
func DefaultOptions() Options {
	return Options{
		Experience:     config.DefaultExperience(),
		Flow:           flow.DefaultConfig(),
		Audio:          audio.DefaultConfig(),
		Bridge:         bridge.DefaultConfig(),
		SampleInterval: 250 * time.Millisecond,
		HistoryLimit:   64,
		NewEngine:      SimEngine,
		Logger:         zerolog.Nop(),
	}
}

// OptionsFromConfig maps process configuration onto director options.
func OptionsFromConfig(cfg *config.Config, exp config.Experience) Options {
	opts := DefaultOptions()
	opts.Experience = exp
	opts.SampleInterval = cfg.SampleInterval
	opts.Flow = flow.Config{
		SeekReveal:        cfg.SeekReveal,
		SeekSettleTimeout: cfg.SeekSettleTimeout,
		KeyScan:           cfg.KeyScan,
	}
	opts.Audio = audio.Config{CueChain: cfg.CueChain}
	opts.Bridge.SafetyTimeout = cfg.BridgeSafetyTimeout
	opts.Bridge.Dwell = cfg.BridgeDwell
	opts.Bridge.VeilLead = cfg.BridgeVeilLead
	return opts
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.SampleInterval <= 0 {
		o.SampleInterval = def.SampleInterval
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = def.HistoryLimit
	}
	if o.NewEngine == nil {
		o.NewEngine = def.NewEngine
	}
	if len(o.Experience.Assets) == 0 && len(o.Experience.Timeline.Checkpoints) == 0 {
		o.Experience = def.Experience
	}
	return o
}

// Director drives one portal session.
type Director struct {
	opts   Options
	id     string
	logger zerolog.Logger
	bus    *events.Bus
	manual *clock.Manual

	// loop serializes all access to the engine and the controller.
	loop    sync.Mutex
	eng     media.Engine
	ctrl    *flow.Controller
	pending []media.Event
	closed  bool
	started time.Time

	mu      sync.RWMutex
	view    flow.View
	history []flow.Transition
}

// NewDirector builds a session whose timers run on wall-clock time. Call Run
// to drive it.
func NewDirector(opts Options) (*Director, error) {
	return build(opts, nil)
}

// NewVirtualDirector builds a session on a virtual clock, driven with Step.
func NewVirtualDirector(opts Options) (*Director, error) {
	return build(opts, clock.NewManual())
}

func build(opts Options, manual *clock.Manual) (*Director, error) {
	opts = opts.withDefaults()
	if err := opts.Experience.Validate(); err != nil {
		return nil, err
	}

	d := &Director{
		opts:    opts,
		bus:     opts.Bus,
		manual:  manual,
		started: time.Now().UTC(),
	}
	var timers clock.Timers = clock.Real{Post: d.post}
	if manual != nil {
		timers = manual
	}

	d.eng = opts.NewEngine(opts.Experience.Assets, d.sink)
	video, ok := d.eng.Element(media.ElementPrimary)
	if !ok {
		_ = d.eng.Close()
		return nil, fmt.Errorf("playout: engine has no %q element", media.ElementPrimary)
	}
	am, err := audio.NewManager(d.eng, opts.Audio, opts.Logger)
	if err != nil {
		_ = d.eng.Close()
		return nil, fmt.Errorf("playout: audio: %w", err)
	}
	br := bridge.NewRunner(d.eng, timers, opts.Bridge, opts.Logger)

	d.ctrl, err = flow.New(flow.Deps{
		Video:     video,
		Audio:     am,
		Bridge:    br,
		Scheduler: timeline.NewScheduler(opts.Experience.Timeline),
		Timers:    timers,
		Selection: opts.Selection,
		Logger:    opts.Logger,
		Hooks: flow.Hooks{
			OnTransition: d.onTransition,
			OnCue:        d.onCue,
		},
	}, opts.Flow)
	if err != nil {
		_ = d.eng.Close()
		return nil, fmt.Errorf("playout: flow: %w", err)
	}
	br.SetOnOutcome(d.onBridgeOutcome)

	d.id = d.ctrl.ID()
	d.logger = opts.Logger.With().
		Str("component", "director").
		Str("session_id", d.id).
		Logger()

	d.loop.Lock()
	d.eng.Load()
	d.settleLocked()
	d.loop.Unlock()

	d.publish(events.EventSessionCreated, events.Payload{"session_id": d.id, "virtual": manual != nil})
	d.logger.Info().Bool("virtual", manual != nil).Msg("session created")
	return d, nil
}

// ID returns the session id.
func (d *Director) ID() string { return d.id }

// Virtual reports whether the session runs on a virtual clock.
func (d *Director) Virtual() bool { return d.manual != nil }

// StartedAt returns the creation time.
func (d *Director) StartedAt() time.Time { return d.started }

// Elapsed returns session time: virtual time for virtual sessions, wall time otherwise.
func (d *Director) Elapsed() time.Duration {
	if d.manual != nil {
		return d.manual.Now()
	}
	return time.Since(d.started)
}

// Run samples the session every SampleInterval until ctx is done or the
// director is closed.
func (d *Director) Run(ctx context.Context) error {
	d.logger.Info().Dur("interval", d.opts.SampleInterval).Msg("session loop started")
	ticker := time.NewTicker(d.opts.SampleInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("session loop stopped")
			return ctx.Err()
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			if d.manual != nil {
				dt = d.opts.SampleInterval
			}
			if err := d.advance(dt); err != nil {
				if errors.Is(err, ErrDirectorStopped) {
					return nil
				}
				d.logger.Error().Err(err).Msg("session tick failed")
			}
		}
	}
}

// Step advances a virtual session by dt in sample-interval increments.
func (d *Director) Step(dt time.Duration) error {
	if d.manual == nil {
		return ErrNotVirtual
	}
	for dt > 0 {
		s := min(dt, d.opts.SampleInterval)
		if err := d.advance(s); err != nil {
			return err
		}
		dt -= s
	}
	return nil
}

func (d *Director) advance(dt time.Duration) error {
	start := time.Now()
	d.loop.Lock()
	defer d.loop.Unlock()
	if d.closed {
		return ErrDirectorStopped
	}
	if d.manual != nil {
		d.manual.Advance(dt)
	}
	d.eng.Advance(dt)
	d.settleLocked()
	telemetry.SessionTickDuration.Observe(time.Since(start).Seconds())
	return nil
}

// Do runs fn on the session loop, then publishes the resulting view.
func (d *Director) Do(ctx context.Context, op string, fn func(*flow.Controller) error) error {
	ctx, span := telemetry.StartSessionSpan(ctx, d.id, op)
	defer span.End()
	if err := ctx.Err(); err != nil {
		return err
	}

	d.loop.Lock()
	defer d.loop.Unlock()
	if d.closed {
		return ErrDirectorStopped
	}
	err := fn(d.ctrl)
	d.settleLocked()
	telemetry.RecordError(span, err)
	return err
}

// Act applies a user action.
func (d *Director) Act(ctx context.Context, action flow.Action) error {
	return d.Do(ctx, "act."+string(action), func(c *flow.Controller) error {
		return c.Act(action)
	})
}

// Deliver hands an engine event to the session loop.
func (d *Director) Deliver(ctx context.Context, ev media.Event) error {
	return d.Do(ctx, "deliver", func(*flow.Controller) error {
		d.pending = append(d.pending, ev)
		return nil
	})
}

// post runs a wall-clock timer callback on the session loop.
func (d *Director) post(f func()) {
	d.loop.Lock()
	defer d.loop.Unlock()
	if d.closed {
		return
	}
	f()
	d.settleLocked()
}

func (d *Director) sink(ev media.Event) {
	d.pending = append(d.pending, ev)
}

// settleLocked drains queued engine events and refreshes the published view.
func (d *Director) settleLocked() {
	for len(d.pending) > 0 {
		ev := d.pending[0]
		d.pending = d.pending[1:]
		if !d.ctrl.HandleMedia(ev) {
			d.logger.Debug().Str("source", ev.Source).Str("kind", string(ev.Kind)).Msg("event for unknown element")
		}
	}

	v := d.ctrl.View()
	d.mu.Lock()
	changed := !reflect.DeepEqual(v, d.view)
	d.view = v
	d.mu.Unlock()
	if changed {
		d.publish(events.EventView, events.Payload{"session_id": d.id, "view": v})
	}
}

// View returns the latest published view.
func (d *Director) View() flow.View {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v := d.view
	v.FiredCues = slices.Clone(v.FiredCues)
	return v
}

// Session returns a copy of the playback session.
func (d *Director) Session() flow.Session {
	d.loop.Lock()
	defer d.loop.Unlock()
	return d.ctrl.Session()
}

// History returns the most recent phase transitions, oldest first.
func (d *Director) History() []flow.Transition {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.history)
}

func (d *Director) onTransition(tr flow.Transition) {
	d.mu.Lock()
	d.history = append(d.history, tr)
	if over := len(d.history) - d.opts.HistoryLimit; over > 0 {
		d.history = slices.Delete(d.history, 0, over)
	}
	d.mu.Unlock()

	d.publish(events.EventTransition, events.Payload{
		"session_id": d.id,
		"from":       string(tr.From),
		"to":         string(tr.To),
		"reason":     tr.Reason,
		"position":   tr.Position,
	})
}

func (d *Director) onCue(cp timeline.Checkpoint) {
	d.publish(events.EventCue, events.Payload{
		"session_id": d.id,
		"checkpoint": string(cp.ID),
		"channel":    cp.Channel,
		"at":         cp.At,
	})
}

func (d *Director) onBridgeOutcome(kind bridge.Kind, outcome bridge.Outcome) {
	d.publish(events.EventBridgeOutcome, events.Payload{
		"session_id": d.id,
		"kind":       string(kind),
		"outcome":    string(outcome),
	})
}

func (d *Director) publish(t events.EventType, p events.Payload) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(t, p)
}

// Close stops the session and releases the engine. Closing twice is a no-op.
func (d *Director) Close() error {
	d.loop.Lock()
	if d.closed {
		d.loop.Unlock()
		return nil
	}
	d.closed = true
	d.pending = nil
	err := errors.Join(d.ctrl.Close(), d.eng.Close())
	d.loop.Unlock()

	d.publish(events.EventSessionClosed, events.Payload{"session_id": d.id})
	d.logger.Info().Msg("session closed")
	return err
}
