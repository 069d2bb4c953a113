/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package media defines the boundary between the portal orchestrator and a
// playback engine (browser media elements, a native player, or the simulator).
package media

import (
	"errors"
	"strconv"
	"time"
)

var (
	// ErrStartRejected indicates the engine refused to start playback,
	// typically because of an autoplay policy.
	ErrStartRejected = errors.New("media start rejected")

	// ErrDecode indicates the element could not decode its source.
	ErrDecode = errors.New("media decode error")
)

// Well-known element identifiers.
const (
	ElementPrimary      = "primary"
	ElementBridgeExit   = "bridge-exit"
	ElementBridgeRelive = "bridge-relive"
	ElementBedIntro     = "bed-intro"
	ElementBedSelected  = "bed-selected"
	ElementReliveBed    = "relive-bed"
)

// CueElement returns the element id for cue channel n.
func CueElement(n int) string {
	return "cue-" + strconv.Itoa(n)
}

// EventKind enumerates engine callbacks.
type EventKind string

const (
	EventReady        EventKind = "ready"
	EventTimeUpdate   EventKind = "time_update"
	EventPlaying      EventKind = "playing"
	EventPlayRejected EventKind = "play_rejected"
	EventSeeked       EventKind = "seeked"
	EventEnded        EventKind = "ended"
	EventError        EventKind = "error"
)

// Event is a single engine callback.
type Event struct {
	Source   string
	Kind     EventKind
	Position float64
	Err      error
}

// Sink receives engine events.
type Sink func(Event)

// Element is one video or audio element owned by the engine.
//
// Play does not report its outcome synchronously: the engine later emits
// EventPlaying or EventPlayRejected for the element.
type Element interface {
	ID() string
	Position() float64
	Seek(seconds float64)
	Play()
	Pause()
	Paused() bool
	Duration() float64
	SetMuted(muted bool)
	Muted() bool
	Close() error
}

// Engine owns the set of elements for one portal session.
type Engine interface {
	Element(id string) (Element, bool)
	// Load starts loading every element; readiness arrives as EventReady.
	Load()
	// Advance moves engine time forward. Engines with their own clock may no-op.
	Advance(dt time.Duration)
	Close() error
}

// Asset describes one media source in the experience catalog.
type Asset struct {
	ID       string  `yaml:"id" toml:"id" json:"id"`
	Source   string  `yaml:"source" toml:"source" json:"source"`
	Duration float64 `yaml:"duration" toml:"duration" json:"duration"`
}

// DefaultAssets returns the stock catalog.
func DefaultAssets() []Asset {
	return []Asset{
		{ID: ElementPrimary, Source: "/media/portal_loop.mp4", Duration: 42},
		{ID: ElementBridgeExit, Source: "/media/Stargate_Clockwork_Video_Generation.mp4", Duration: 8},
		{ID: ElementBridgeRelive, Source: "/media/breach_intro.mp4", Duration: 10},
		{ID: ElementBedIntro, Source: "/media/shadowmystic_score.wav", Duration: 60},
		{ID: ElementBedSelected, Source: "/media/exso_audio.wav", Duration: 60},
		{ID: ElementReliveBed, Source: "/media/relive_score.wav", Duration: 20},
		{ID: CueElement(0), Source: "/media/Music_fx_celestial_uplifting_cinematic_score (3).wav", Duration: 6},
		{ID: CueElement(1), Source: "/media/Music_fx_deep_introspective_ambient_score_wi (1).wav", Duration: 6},
		{ID: CueElement(2), Source: "/media/Music_fx_deep_introspective_ambient_score_wi.wav", Duration: 6},
		{ID: CueElement(3), Source: "/media/Music_fx_celestial_uplifting_cinematic_score (3).wav", Duration: 6},
	}
}
