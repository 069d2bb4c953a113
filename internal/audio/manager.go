/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package audio arbitrates the portal's audio channels so that at most one
// plays at any time. Callers describe intent; the manager decides which
// channel runs.
package audio

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/friendsincode/receiver_portal/internal/media"
	"github.com/friendsincode/receiver_portal/internal/telemetry"
)

// ErrMissingElement is returned when the engine lacks a required audio element.
var ErrMissingElement = errors.New("audio element missing")

// Channel is a logical audio channel.
type Channel string

const (
	ChannelNone      Channel = ""
	ChannelBed       Channel = "bed"
	ChannelReliveBed Channel = "relive_bed"
)

// CueChannel returns the channel name of cue slot n.
func CueChannel(n int) Channel {
	return Channel(fmt.Sprintf("cue%d", n))
}

// Track selects what the bed channel plays.
type Track string

const (
	TrackIntro    Track = "intro"
	TrackSelected Track = "selected"
)

// BridgeState is the bridge clip currently playing, as seen by audio policy.
type BridgeState string

const (
	BridgeNone   BridgeState = ""
	BridgeExit   BridgeState = "exit"
	BridgeRelive BridgeState = "relive"
)

// Intent is the flow state the channel policy is resolved from. Unlocked only
// gates new cues; locking is applied as a global mute by the caller.
type Intent struct {
	Unlocked  bool
	Suspended bool
	Bridge    BridgeState
	Selected  bool
}

// Config tunes the manager.
type Config struct {
	// CueChain is how many cues may follow the fired one before the window
	// closes.
	CueChain int
}

// DefaultConfig returns the stock settings.
func DefaultConfig() Config {
	return Config{CueChain: 3}
}

// Status is a snapshot of the arbitration state.
type Status struct {
	Active    Channel  `json:"active"`
	Element   string   `json:"element,omitempty"`
	Muted     bool     `json:"muted"`
	CueWindow bool     `json:"cue_window"`
	Silent    []string `json:"silent,omitempty"`
}

type slot struct {
	channel Channel
	el      media.Element
	cue     int
}

// Manager owns the audio elements. It is driven from the session loop and is
// not safe for concurrent use.
type Manager struct {
	cfg    Config
	logger zerolog.Logger

	intro, selected, relive media.Element
	cues                    []media.Element
	slots                   map[string]slot
	order                   []media.Element

	intent    Intent
	muted     bool
	active    Channel
	activeEl  media.Element
	cueWindow bool
	cueIdx    int
	chainLeft int
	silent    map[string]bool

	onChange      func(Status)
	onCueComplete func()
}

// NewManager resolves the audio elements from eng.
func NewManager(eng media.Engine, cfg Config, logger zerolog.Logger) (*Manager, error) {
	if cfg.CueChain < 0 {
		cfg.CueChain = 0
	}
	m := &Manager{
		cfg:    cfg,
		logger: logger.With().Str("component", "audio").Logger(),
		slots:  make(map[string]slot),
		silent: make(map[string]bool),
	}

	lookup := func(id string) (media.Element, error) {
		el, ok := eng.Element(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingElement, id)
		}
		return el, nil
	}

	var err error
	if m.intro, err = lookup(media.ElementBedIntro); err != nil {
		return nil, err
	}
	if m.selected, err = lookup(media.ElementBedSelected); err != nil {
		return nil, err
	}
	if m.relive, err = lookup(media.ElementReliveBed); err != nil {
		return nil, err
	}
	m.register(m.intro, ChannelBed, -1)
	m.register(m.selected, ChannelBed, -1)
	m.register(m.relive, ChannelReliveBed, -1)

	for i := 0; ; i++ {
		el, ok := eng.Element(media.CueElement(i))
		if !ok {
			break
		}
		m.cues = append(m.cues, el)
		m.register(el, CueChannel(i), i)
	}
	return m, nil
}

func (m *Manager) register(el media.Element, ch Channel, cue int) {
	m.slots[el.ID()] = slot{channel: ch, el: el, cue: cue}
	m.order = append(m.order, el)
}

// SetOnChange registers a callback invoked whenever the active channel or
// mute state changes.
func (m *Manager) SetOnChange(fn func(Status)) {
	m.onChange = fn
}

// SetOnCueComplete registers the "cue sequence complete" callback.
func (m *Manager) SetOnCueComplete(fn func()) {
	m.onCueComplete = fn
}

// Cues returns the number of cue channels.
func (m *Manager) Cues() int {
	return len(m.cues)
}

// Owns reports whether the element id belongs to the manager.
func (m *Manager) Owns(id string) bool {
	_, ok := m.slots[id]
	return ok
}

// Active returns the active channel.
func (m *Manager) Active() Channel {
	return m.active
}

// Status returns a snapshot.
func (m *Manager) Status() Status {
	st := Status{
		Active:    m.active,
		Muted:     m.muted,
		CueWindow: m.cueWindow,
	}
	if m.activeEl != nil {
		st.Element = m.activeEl.ID()
	}
	for id := range m.silent {
		st.Silent = append(st.Silent, id)
	}
	sort.Strings(st.Silent)
	return st
}

// Resolve applies the channel policy for in. Rules are evaluated in priority
// order and exactly one applies.
func (m *Manager) Resolve(in Intent) {
	m.intent = in
	switch {
	case in.Suspended:
		m.cueWindow = false
		m.StopAll()
	case in.Bridge == BridgeRelive:
		m.cueWindow = false
		m.SelectChannel(ChannelReliveBed)
	case in.Bridge == BridgeExit:
		m.cueWindow = false
		m.StopAll()
	case m.cueWindow:
		if m.active == ChannelBed || m.active == ChannelReliveBed {
			m.stopActive()
		}
	case in.Selected:
		m.selectBed(TrackSelected)
	default:
		m.selectBed(TrackIntro)
	}
}

func (m *Manager) selectBed(track Track) {
	el := m.intro
	if track == TrackSelected {
		el = m.selected
	}
	m.start(ChannelBed, el)
}

// SelectChannel makes ch the only playing channel. Selecting the channel that
// is already active is a no-op. The bed channel plays its current track.
func (m *Manager) SelectChannel(ch Channel) {
	switch ch {
	case ChannelNone:
		m.StopAll()
	case ChannelBed:
		track := TrackIntro
		if m.intent.Selected {
			track = TrackSelected
		}
		m.selectBed(track)
	case ChannelReliveBed:
		m.start(ChannelReliveBed, m.relive)
	default:
		for i := range m.cues {
			if CueChannel(i) == ch {
				m.start(ch, m.cues[i])
				return
			}
		}
		m.logger.Debug().Str("channel", string(ch)).Msg("unknown audio channel")
	}
}

func (m *Manager) start(ch Channel, el media.Element) {
	if m.activeEl == el {
		return
	}
	m.play(ch, el)
}

// play restarts el from zero as the only running channel. State is committed
// before Play so synchronous engine callbacks observe it.
func (m *Manager) play(ch Channel, el media.Element) {
	for _, other := range m.order {
		if other != el && !other.Paused() {
			other.Pause()
		}
	}
	m.active = ch
	m.activeEl = el
	m.notify()

	el.Seek(0)
	el.SetMuted(m.muted)
	el.Play()
}

// StopAll pauses every channel without resetting positions.
func (m *Manager) StopAll() {
	for _, el := range m.order {
		if !el.Paused() {
			el.Pause()
		}
	}
	if m.active != ChannelNone {
		m.active = ChannelNone
		m.activeEl = nil
		m.notify()
	}
}

func (m *Manager) stopActive() {
	if m.activeEl != nil && !m.activeEl.Paused() {
		m.activeEl.Pause()
	}
	m.active = ChannelNone
	m.activeEl = nil
	m.notify()
}

// SetGlobalMute applies the mute flag to every channel.
func (m *Manager) SetGlobalMute(muted bool) {
	for _, el := range m.order {
		el.SetMuted(muted)
	}
	if m.muted != muted {
		m.muted = muted
		m.notify()
	}
}

// Muted reports the global mute flag.
func (m *Manager) Muted() bool {
	return m.muted
}

// FireCue opens a cue window on slot n, restarting it even if a cue is already
// playing. Cues are dropped while audio is locked, suspended or bridging.
func (m *Manager) FireCue(n int) {
	if n < 0 || n >= len(m.cues) {
		m.logger.Debug().Int("cue", n).Msg("cue channel out of range")
		return
	}
	if !m.intent.Unlocked || m.intent.Suspended || m.intent.Bridge != BridgeNone {
		m.logger.Debug().Int("cue", n).Msg("cue dropped, audio inactive")
		return
	}
	m.cueWindow = true
	m.cueIdx = n
	m.chainLeft = m.cfg.CueChain
	m.play(CueChannel(n), m.cues[n])
}

// HandleEvent consumes an engine event for one of the manager's elements.
// It returns false if the element is not an audio element.
func (m *Manager) HandleEvent(ev media.Event) bool {
	s, ok := m.slots[ev.Source]
	if !ok {
		return false
	}
	switch ev.Kind {
	case media.EventPlaying:
		if m.silent[ev.Source] {
			delete(m.silent, ev.Source)
			m.notify()
		}
	case media.EventPlayRejected, media.EventError:
		m.reject(s, ev)
	case media.EventEnded:
		m.ended(s)
	}
	return true
}

func (m *Manager) reject(s slot, ev media.Event) {
	telemetry.AudioRejectionsTotal.WithLabelValues(string(s.channel)).Inc()
	m.logger.Debug().
		Str("channel", string(s.channel)).
		Str("element", ev.Source).
		Err(ev.Err).
		Msg("audio channel silent")

	m.silent[ev.Source] = true
	if m.activeEl != s.el {
		m.notify()
		return
	}
	m.active = ChannelNone
	m.activeEl = nil
	if s.cue >= 0 && m.cueWindow {
		m.closeCueWindow()
		return
	}
	m.notify()
}

func (m *Manager) ended(s slot) {
	if m.activeEl != s.el {
		return
	}
	if s.cue < 0 || !m.cueWindow {
		m.active = ChannelNone
		m.activeEl = nil
		m.notify()
		return
	}
	if m.chainLeft > 0 {
		m.chainLeft--
		m.cueIdx = (m.cueIdx + 1) % len(m.cues)
		m.play(CueChannel(m.cueIdx), m.cues[m.cueIdx])
		return
	}
	m.active = ChannelNone
	m.activeEl = nil
	m.closeCueWindow()
}

func (m *Manager) closeCueWindow() {
	m.cueWindow = false
	if m.activeEl != nil && !m.activeEl.Paused() {
		m.activeEl.Pause()
	}
	m.logger.Debug().Msg("cue sequence complete")
	if m.onCueComplete != nil {
		m.onCueComplete()
	}
	m.Resolve(m.intent)
	m.notify()
}

func (m *Manager) notify() {
	if m.onChange != nil {
		m.onChange(m.Status())
	}
}

// Close pauses and releases every element.
func (m *Manager) Close() error {
	m.StopAll()
	var errs []error
	for _, el := range m.order {
		if err := el.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", el.ID(), err))
		}
	}
	return errors.Join(errs...)
}
