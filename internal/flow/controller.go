/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package flow implements the playback flow controller: the state machine
// that turns checkpoint events and user actions into seeks, pauses, overlays
// and audio intent for one portal session.
package flow

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/receiver_portal/internal/audio"
	"github.com/friendsincode/receiver_portal/internal/bridge"
	"github.com/friendsincode/receiver_portal/internal/clock"
	"github.com/friendsincode/receiver_portal/internal/media"
	"github.com/friendsincode/receiver_portal/internal/telemetry"
	"github.com/friendsincode/receiver_portal/internal/timeline"
)

// SelectionFlow is the external gallery the user picks an item from. The
// result comes back through Controller.ReturnSelection.
type SelectionFlow interface {
	Open()
}

// SelectionFunc adapts a function to SelectionFlow.
type SelectionFunc func()

// Open implements SelectionFlow.
func (f SelectionFunc) Open() { f() }

// Config holds controller timings.
type Config struct {
	// SeekReveal keeps the primary hidden after a seek settles.
	SeekReveal time.Duration
	// SeekSettleTimeout clears the seeking flag if no seeked event arrives.
	SeekSettleTimeout time.Duration
	// KeyScan is how long an import-key scan shows before access is granted.
	KeyScan time.Duration
}

// DefaultConfig returns the stock timings.
func DefaultConfig() Config {
	return Config{
		SeekReveal:        180 * time.Millisecond,
		SeekSettleTimeout: 1500 * time.Millisecond,
		KeyScan:           2 * time.Second,
	}
}

// Hooks observe controller activity.
type Hooks struct {
	OnTransition func(Transition)
	OnCue        func(timeline.Checkpoint)
}

// Deps are the controller's collaborators.
type Deps struct {
	Video     media.Element
	Audio     *audio.Manager
	Bridge    *bridge.Runner
	Scheduler *timeline.Scheduler
	Timers    clock.Timers
	Selection SelectionFlow
	Logger    zerolog.Logger
	Hooks     Hooks
}

// Controller owns one Playback Session. It is driven from a single session
// loop and is not safe for concurrent use.
type Controller struct {
	cfg       Config
	video     media.Element
	audio     *audio.Manager
	bridge    *bridge.Runner
	sched     *timeline.Scheduler
	table     timeline.Table
	timers    clock.Timers
	selection SelectionFlow
	hooks     Hooks
	logger    zerolog.Logger

	sess Session

	seekGen   uint64
	settle    clock.Timer
	reveal    clock.Timer
	scanGen   uint64
	scanTimer clock.Timer
}

// New builds a controller in the priming phase.
func New(deps Deps, cfg Config) (*Controller, error) {
	switch {
	case deps.Video == nil:
		return nil, errors.New("flow: primary video required")
	case deps.Audio == nil:
		return nil, errors.New("flow: audio manager required")
	case deps.Bridge == nil:
		return nil, errors.New("flow: bridge runner required")
	case deps.Scheduler == nil:
		return nil, errors.New("flow: scheduler required")
	case deps.Timers == nil:
		return nil, errors.New("flow: timers required")
	}

	c := &Controller{
		cfg:       cfg,
		video:     deps.Video,
		audio:     deps.Audio,
		bridge:    deps.Bridge,
		sched:     deps.Scheduler,
		table:     deps.Scheduler.Table(),
		timers:    deps.Timers,
		selection: deps.Selection,
		hooks:     deps.Hooks,
	}
	c.sess = Session{ID: uuid.NewString(), Phase: PhasePriming}
	c.logger = deps.Logger.With().
		Str("component", "flow").
		Str("session_id", c.sess.ID).
		Logger()
	c.bridge.SetOnComplete(c.completeBridge)
	c.applyMute()
	return c, nil
}

// ID returns the session id.
func (c *Controller) ID() string {
	return c.sess.ID
}

// Session returns a copy of the playback session.
func (c *Controller) Session() Session {
	return c.sess
}

// HandleMedia routes an engine event to the component owning its element.
// It returns false for elements no component owns.
func (c *Controller) HandleMedia(ev media.Event) bool {
	switch {
	case ev.Source == c.video.ID():
		c.handleVideo(ev)
	case c.bridge.HandleEvent(ev):
	case c.audio.HandleEvent(ev):
	default:
		return false
	}
	return true
}

func (c *Controller) handleVideo(ev media.Event) {
	switch ev.Kind {
	case media.EventReady:
		c.sess.VideoReady = true
		if c.sess.Phase == PhasePriming && !c.sess.VideoError {
			if c.transition(PhaseGateOne, "media ready") == nil {
				c.resume()
				c.resolveAudio()
			}
		}
	case media.EventTimeUpdate:
		c.evaluate()
	case media.EventSeeked:
		c.seeked()
	case media.EventPlaying:
		c.sess.Stalled = false
	case media.EventPlayRejected:
		c.logger.Debug().Err(ev.Err).Float64("position", ev.Position).Msg("primary video start rejected")
		if c.canAutoResume() {
			c.sess.Stalled = true
		}
	case media.EventEnded:
		c.reachEnd("media ended")
	case media.EventError:
		c.logger.Warn().Err(ev.Err).Msg("primary video unavailable")
		c.sess.VideoError = true
		c.resolveAudio()
	}
}

// evaluate runs one scheduler pass over the current position.
func (c *Controller) evaluate() {
	if c.sess.Phase == PhasePriming || c.sess.Phase == PhaseBridging {
		return
	}
	smp := timeline.Sample{
		Position:       c.video.Position(),
		Duration:       c.video.Duration(),
		Playing:        !c.video.Paused(),
		Seeking:        c.sess.Seeking,
		PassedGate1:    c.sess.HasPassedGate1,
		AccessGranted:  c.sess.AccessGranted,
		PlayingThrough: c.sess.PlayingThrough,
		InLoopBack:     c.sess.InLoopBack,
		Held:           c.sess.Held,
	}

	for _, ev := range c.sched.Evaluate(smp) {
		telemetry.CheckpointEventsTotal.WithLabelValues(string(ev.Kind), string(ev.Checkpoint.ID)).Inc()
		switch ev.Kind {
		case timeline.EventGate:
			c.gate(ev.Checkpoint.ID)
		case timeline.EventCue:
			c.logger.Debug().Str("cue", string(ev.Checkpoint.ID)).Int("channel", ev.Checkpoint.Channel).Msg("cue fired")
			c.audio.FireCue(ev.Checkpoint.Channel)
			if c.hooks.OnCue != nil {
				c.hooks.OnCue(ev.Checkpoint)
			}
		case timeline.EventLoopCorrect:
			c.logger.Debug().Float64("position", smp.Position).Float64("target", ev.Target).Msg("loop position corrected")
			c.seek(ev.Target)
		}
	}
}

func (c *Controller) gate(id timeline.ID) {
	if id == timeline.GateEnd {
		c.reachEnd("end checkpoint")
		return
	}
	c.hold(id)
	c.logger.Info().Str("gate", string(id)).Str("phase", string(c.sess.Phase)).Msg("holding at gate")
}

func (c *Controller) hold(id timeline.ID) {
	c.sess.Held = id
	c.sess.Stalled = false
	if !c.video.Paused() {
		c.video.Pause()
	}
}

// resume clears any held gate and starts the primary video.
func (c *Controller) resume() {
	c.sess.Held = ""
	c.sess.Stalled = false
	if c.sess.SelectionOpen || c.sess.VideoError {
		return
	}
	c.video.Play()
}

// retryStart re-issues a primary start the engine rejected. The engine's
// answer decides whether the session stays stalled.
func (c *Controller) retryStart() bool {
	if !c.sess.Stalled || !c.canAutoResume() {
		return false
	}
	c.sess.Stalled = false
	c.logger.Debug().Str("phase", string(c.sess.Phase)).Msg("retrying primary start")
	c.video.Play()
	return true
}

// seek moves the primary video and masks it until the position settles.
func (c *Controller) seek(pos float64) {
	c.seekGen++
	gen := c.seekGen
	c.sess.Seeking = true
	if c.reveal != nil {
		c.reveal.Stop()
		c.reveal = nil
	}
	if c.settle != nil {
		c.settle.Stop()
	}
	c.settle = c.timers.AfterFunc(c.cfg.SeekSettleTimeout, func() {
		if gen != c.seekGen || !c.sess.Seeking {
			return
		}
		c.logger.Debug().Msg("seek settle timeout")
		c.sess.Seeking = false
	})
	c.video.Seek(pos)
}

func (c *Controller) seeked() {
	if !c.sess.Seeking || c.reveal != nil {
		return
	}
	gen := c.seekGen
	c.reveal = c.timers.AfterFunc(c.cfg.SeekReveal, func() {
		if gen != c.seekGen {
			return
		}
		c.reveal = nil
		c.sess.Seeking = false
		if c.settle != nil {
			c.settle.Stop()
			c.settle = nil
		}
	})
}

func (c *Controller) transition(to Phase, reason string) error {
	from := c.sess.Phase
	if from == to {
		return nil
	}
	if !isValidTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	c.setPhase(to, reason)
	return nil
}

func (c *Controller) setPhase(to Phase, reason string) {
	tr := Transition{From: c.sess.Phase, To: to, Reason: reason, Position: c.video.Position()}
	c.sess.Phase = to
	telemetry.FlowTransitionsTotal.WithLabelValues(string(tr.From), string(tr.To)).Inc()
	c.logger.Info().
		Str("from", string(tr.From)).
		Str("to", string(tr.To)).
		Str("reason", reason).
		Float64("position", tr.Position).
		Msg("flow transition")
	if c.hooks.OnTransition != nil {
		c.hooks.OnTransition(tr)
	}
}

func (c *Controller) reachEnd(reason string) {
	if c.sess.Phase == PhaseEndGate {
		return
	}
	if err := c.transition(PhaseEndGate, reason); err != nil {
		c.logger.Debug().Err(err).Msg("end of media ignored")
		return
	}
	c.hold(timeline.GateEnd)
	c.sess.PlayingThrough = false
	c.sess.InLoopBack = false
	c.resolveAudio()
}

// Act applies a user action from the overlay.
func (c *Controller) Act(action Action) error {
	err := c.act(action)
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	telemetry.FlowActionsTotal.WithLabelValues(string(action), result).Inc()
	return err
}

func (c *Controller) act(action Action) error {
	if err := c.acceptInput(); err != nil {
		return err
	}
	c.unlockAudio()
	// A stalled start holds no gate, so the gesture is spent on the retry.
	if c.retryStart() {
		return nil
	}

	switch action {
	case ActionEnter:
		return c.enter()
	case ActionSelect:
		return c.selectItem()
	case ActionExit:
		return c.startBridge(bridge.KindExit, bridge.ContinueExitReset)
	case ActionRelive:
		return c.startBridge(bridge.KindRelive, bridge.ContinueReliveReplay)
	}
	return fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, action)
}

func (c *Controller) acceptInput() error {
	switch {
	case c.sess.VideoError:
		return ErrUnavailable
	case c.sess.Phase == PhaseBridging:
		return ErrBridging
	case c.sess.Phase == PhasePriming:
		return ErrUnavailable
	}
	return nil
}

func (c *Controller) enter() error {
	if c.sess.Held != timeline.GateEnter {
		return fmt.Errorf("%w: enter in %s", ErrInvalidTransition, c.sess.Phase)
	}
	to := PhaseGuestGate
	if c.sess.AccessGranted {
		to = PhaseFastForward
	}
	if err := c.transition(to, "enter"); err != nil {
		return err
	}
	c.sess.HasPassedGate1 = true
	if c.sess.AccessGranted {
		c.sess.PlayingThrough = true
		c.sess.SelectionMade = true
	}
	c.resume()
	c.resolveAudio()
	return nil
}

func (c *Controller) selectItem() error {
	if c.sess.Held != timeline.GateSelect && c.sess.Held != timeline.LoopEnd {
		return fmt.Errorf("%w: select in %s", ErrInvalidTransition, c.sess.Phase)
	}
	if c.sess.SelectionMade || c.sess.AccessGranted {
		return c.enterFinale("select")
	}
	if c.sess.SelectionOpen {
		return nil
	}
	c.sess.SelectionOpen = true
	if !c.video.Paused() {
		c.video.Pause()
	}
	c.resolveAudio()
	c.logger.Info().Msg("selection flow opened")
	if c.selection != nil {
		c.selection.Open()
	}
	return nil
}

// ReturnSelection delivers the selection flow's result.
func (c *Controller) ReturnSelection(choiceMade bool) error {
	if !c.sess.SelectionOpen {
		return ErrNoSelectionPending
	}
	if c.sess.Phase == PhaseBridging {
		return ErrBridging
	}
	c.sess.SelectionOpen = false
	c.logger.Info().Bool("choice_made", choiceMade).Msg("selection returned")

	if choiceMade {
		c.sess.SelectionMade = true
		return c.enterFinale("selection made")
	}

	if err := c.transition(PhaseLoopBack, "selection declined"); err != nil {
		c.resolveAudio()
		return err
	}
	loopStart, loopEnd := c.table.LoopBounds()
	c.sess.InLoopBack = true
	c.sess.PlayingThrough = false
	c.sched.Rearm(c.cuesFrom(loopStart, loopEnd+1)...)
	c.seek(loopStart)
	c.resume()
	c.resolveAudio()
	return nil
}

func (c *Controller) enterFinale(reason string) error {
	if err := c.transition(PhaseFinale, reason); err != nil {
		return err
	}
	_, loopEnd := c.table.LoopBounds()
	c.sess.SelectionMade = true
	c.sess.PlayingThrough = true
	c.sess.InLoopBack = false
	c.sess.SelectionOpen = false
	c.sched.Rearm(c.cuesFrom(loopEnd, c.table.FinaleResume+1)...)
	c.seek(c.table.FinaleResume)
	c.resume()
	c.resolveAudio()
	return nil
}

// cuesFrom returns the cue ids with from <= at < to.
func (c *Controller) cuesFrom(from, to float64) []timeline.ID {
	var ids []timeline.ID
	for _, cp := range c.table.Cues() {
		if cp.At >= from && cp.At < to {
			ids = append(ids, cp.ID)
		}
	}
	return ids
}

func (c *Controller) startBridge(kind bridge.Kind, cont bridge.Continuation) error {
	if c.sess.Phase != PhaseEndGate {
		return fmt.Errorf("%w: %s in %s", ErrInvalidTransition, kind, c.sess.Phase)
	}
	if err := c.transition(PhaseBridging, string(kind)); err != nil {
		return err
	}
	c.sess.BridgeKind = kind
	if !c.video.Paused() {
		c.video.Pause()
	}
	c.resolveAudio()

	if err := c.bridge.Run(kind, cont); err != nil {
		c.logger.Warn().Err(err).Str("kind", string(kind)).Msg("bridge clip unavailable, continuing")
		c.completeBridge(kind, cont)
	}
	return nil
}

func (c *Controller) completeBridge(kind bridge.Kind, cont bridge.Continuation) {
	if c.sess.Phase != PhaseBridging {
		return
	}
	c.sess.BridgeKind = ""

	switch cont {
	case bridge.ContinueReliveReplay:
		if err := c.enterFinale("relive complete"); err != nil {
			c.logger.Error().Err(err).Msg("relive continuation failed")
		}
	default:
		if err := c.transition(PhaseGuestGate, "exit complete"); err != nil {
			c.logger.Error().Err(err).Msg("exit continuation failed")
			return
		}
		c.sess.SelectionMade = false
		c.sess.AccessGranted = false
		c.sess.PlayingThrough = false
		c.sess.InLoopBack = false
		c.sess.HasPassedGate1 = true
		c.sched.Rearm(c.cuesFrom(math.Nextafter(c.table.GuestResume, math.Inf(1)), math.Inf(1))...)
		c.seek(c.table.GuestResume)
		c.hold(timeline.GateSelect)
		c.resolveAudio()
	}
	c.logger.Info().Str("kind", string(kind)).Str("continuation", string(cont)).Msg("bridge continuation applied")
}

// GrantAccess records a late-arriving authorization. A guest flow waiting at
// or heading to the select gate switches to playing through.
func (c *Controller) GrantAccess() {
	if c.sess.AccessGranted {
		return
	}
	c.sess.AccessGranted = true
	c.logger.Info().Str("phase", string(c.sess.Phase)).Msg("access granted")

	if c.sess.Phase != PhaseGuestGate || c.sess.VideoError {
		return
	}
	if c.sess.Held != "" && c.sess.Held != timeline.GateSelect {
		return
	}
	if err := c.transition(PhaseFastForward, "access granted"); err != nil {
		c.logger.Debug().Err(err).Msg("access transition skipped")
		return
	}
	c.sess.SelectionOpen = false
	c.sess.PlayingThrough = true
	c.sess.SelectionMade = true
	c.resume()
	c.resolveAudio()
}

// BeginKeyScan starts an import-key scan that grants access when it finishes.
// Starting a scan counts as a gesture. Scans started while one is running are
// ignored.
func (c *Controller) BeginKeyScan() error {
	if c.sess.Scanning {
		return nil
	}
	if c.sess.Phase == PhaseBridging {
		return ErrBridging
	}
	c.unlockAudio()
	c.retryStart()
	c.sess.Scanning = true
	c.scanGen++
	gen := c.scanGen
	c.scanTimer = c.timers.AfterFunc(c.cfg.KeyScan, func() {
		if gen != c.scanGen {
			return
		}
		c.sess.Scanning = false
		c.scanTimer = nil
		c.GrantAccess()
	})
	return nil
}

// SetAudioUnlocked records whether the user has allowed audio. Unlocking
// resumes the primary video unless it is held at a gate.
func (c *Controller) SetAudioUnlocked(unlocked bool) {
	if c.sess.AudioUnlocked != unlocked {
		c.sess.AudioUnlocked = unlocked
		c.applyMute()
		c.resolveAudio()
	}
	if !unlocked || c.retryStart() {
		return
	}
	if c.canAutoResume() && c.video.Paused() {
		c.video.Play()
	}
}

func (c *Controller) unlockAudio() {
	if c.sess.AudioUnlocked {
		return
	}
	c.sess.AudioUnlocked = true
	c.applyMute()
	c.resolveAudio()
}

func (c *Controller) canAutoResume() bool {
	switch c.sess.Phase {
	case PhasePriming, PhaseBridging, PhaseEndGate:
		return false
	}
	return c.sess.Held == "" && !c.sess.SelectionOpen && !c.sess.VideoError
}

// SetMuted toggles the global mute.
func (c *Controller) SetMuted(muted bool) {
	c.sess.Muted = muted
	c.applyMute()
}

func (c *Controller) applyMute() {
	muted := c.sess.Muted || !c.sess.AudioUnlocked
	c.video.SetMuted(muted)
	c.audio.SetGlobalMute(muted)
}

func (c *Controller) resolveAudio() {
	in := audio.Intent{
		Unlocked:  c.sess.AudioUnlocked,
		Suspended: c.sess.Phase == PhasePriming || c.sess.SelectionOpen || c.sess.VideoError,
		Selected:  c.sess.SelectionMade || c.sess.PlayingThrough,
	}
	if c.sess.Phase == PhaseBridging {
		in.Bridge = audio.BridgeState(c.sess.BridgeKind)
	}
	c.audio.Resolve(in)
}

// Reset returns to the start of the experience, keeping readiness and the
// audio unlock.
func (c *Controller) Reset() {
	c.bridge.Cancel()
	c.scanGen++
	if c.scanTimer != nil {
		c.scanTimer.Stop()
		c.scanTimer = nil
	}
	c.sched.Reset()

	prev := c.sess
	c.sess = Session{
		ID:            prev.ID,
		Phase:         prev.Phase,
		AudioUnlocked: prev.AudioUnlocked,
		Muted:         prev.Muted,
		VideoReady:    prev.VideoReady,
		VideoError:    prev.VideoError,
	}
	to := PhasePriming
	if c.sess.VideoReady {
		to = PhaseGateOne
	}
	if prev.Phase != to {
		c.setPhase(to, "reset")
	}

	if !c.video.Paused() {
		c.video.Pause()
	}
	c.seek(0)
	if to == PhaseGateOne {
		c.resume()
	}
	c.applyMute()
	c.resolveAudio()
}

// Close stops pending timers and releases the collaborators.
func (c *Controller) Close() error {
	c.bridge.Cancel()
	c.scanGen++
	c.seekGen++
	if c.scanTimer != nil {
		c.scanTimer.Stop()
	}
	if c.settle != nil {
		c.settle.Stop()
	}
	if c.reveal != nil {
		c.reveal.Stop()
	}
	return errors.Join(c.audio.Close(), c.bridge.Close(), c.video.Close())
}
