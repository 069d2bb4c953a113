/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package sim provides a virtual-time playback engine used by the CLI, the
// HTTP server's headless sessions and the tests.
package sim

import (
	"time"

	"github.com/friendsincode/receiver_portal/internal/media"
)

// Element is a simulated media element. It is not safe for concurrent use;
// the owning session loop drives it.
type Element struct {
	id       string
	source   string
	duration float64
	sink     media.Sink

	pos     float64
	playing bool
	muted   bool
	closed  bool

	blocked bool
	faulty  bool

	plays int
	seeks int
}

func (e *Element) emit(kind media.EventKind, err error) {
	if e.sink == nil {
		return
	}
	e.sink(media.Event{Source: e.id, Kind: kind, Position: e.pos, Err: err})
}

// ID returns the element id.
func (e *Element) ID() string { return e.id }

// Source returns the asset source URL.
func (e *Element) Source() string { return e.source }

// Position returns the current position in seconds.
func (e *Element) Position() float64 { return e.pos }

// Duration returns the media duration in seconds.
func (e *Element) Duration() float64 { return e.duration }

// Paused reports whether the element is not playing.
func (e *Element) Paused() bool { return !e.playing }

// Muted reports the mute flag.
func (e *Element) Muted() bool { return e.muted }

// SetMuted sets the mute flag.
func (e *Element) SetMuted(muted bool) { e.muted = muted }

// Plays returns how many times Play was called.
func (e *Element) Plays() int { return e.plays }

// Seeks returns how many times Seek was called.
func (e *Element) Seeks() int { return e.seeks }

// Seek moves the position, clamped into [0, duration], and emits EventSeeked.
func (e *Element) Seek(seconds float64) {
	if e.closed {
		return
	}
	e.seeks++
	if seconds < 0 {
		seconds = 0
	}
	if e.duration > 0 && seconds > e.duration {
		seconds = e.duration
	}
	e.pos = seconds
	e.emit(media.EventSeeked, nil)
}

// Play starts playback. The outcome is reported through the sink.
func (e *Element) Play() {
	if e.closed {
		return
	}
	e.plays++
	switch {
	case e.faulty:
		e.playing = false
		e.emit(media.EventError, media.ErrDecode)
		return
	case e.blocked:
		e.playing = false
		e.emit(media.EventPlayRejected, media.ErrStartRejected)
		return
	}
	// Ended media restarts from the top, like an HTML media element.
	if e.duration > 0 && e.pos >= e.duration {
		e.pos = 0
	}
	e.playing = true
	e.emit(media.EventPlaying, nil)
}

// Pause stops playback without moving the position.
func (e *Element) Pause() { e.playing = false }

// Close releases the element.
func (e *Element) Close() error {
	e.playing = false
	e.closed = true
	return nil
}

// Closed reports whether Close was called.
func (e *Element) Closed() bool { return e.closed }

func (e *Element) advance(dt time.Duration) {
	if !e.playing || e.closed {
		return
	}
	e.pos += dt.Seconds()
	if e.duration > 0 && e.pos >= e.duration {
		e.pos = e.duration
		e.playing = false
		e.emit(media.EventTimeUpdate, nil)
		e.emit(media.EventEnded, nil)
		return
	}
	e.emit(media.EventTimeUpdate, nil)
}

// Engine is a simulated engine holding one element per catalog asset.
type Engine struct {
	order    []string
	elements map[string]*Element
}

// New builds an engine from the asset catalog. Every element emits into sink.
func New(assets []media.Asset, sink media.Sink) *Engine {
	eng := &Engine{elements: make(map[string]*Element, len(assets))}
	for _, a := range assets {
		if _, dup := eng.elements[a.ID]; dup {
			continue
		}
		eng.order = append(eng.order, a.ID)
		eng.elements[a.ID] = &Element{id: a.ID, source: a.Source, duration: a.Duration, sink: sink}
	}
	return eng
}

// Element implements media.Engine.
func (eng *Engine) Element(id string) (media.Element, bool) {
	el, ok := eng.elements[id]
	if !ok {
		return nil, false
	}
	return el, true
}

// Get returns the concrete simulated element, or nil.
func (eng *Engine) Get(id string) *Element {
	return eng.elements[id]
}

// Load emits EventReady for every healthy element and EventError for faulty ones.
func (eng *Engine) Load() {
	for _, id := range eng.order {
		el := eng.elements[id]
		if el.faulty {
			el.emit(media.EventError, media.ErrDecode)
			continue
		}
		el.emit(media.EventReady, nil)
	}
}

// Advance moves every playing element forward by dt.
func (eng *Engine) Advance(dt time.Duration) {
	for _, id := range eng.order {
		eng.elements[id].advance(dt)
	}
}

// Block makes Play on the element fail with ErrStartRejected until unblocked.
func (eng *Engine) Block(id string, blocked bool) {
	if el, ok := eng.elements[id]; ok {
		el.blocked = blocked
	}
}

// Fail marks the element as undecodable.
func (eng *Engine) Fail(id string) {
	if el, ok := eng.elements[id]; ok {
		el.faulty = true
	}
}

// Playing returns the ids of elements currently playing, in catalog order.
func (eng *Engine) Playing() []string {
	var ids []string
	for _, id := range eng.order {
		if eng.elements[id].playing {
			ids = append(ids, id)
		}
	}
	return ids
}

// Close releases every element.
func (eng *Engine) Close() error {
	for _, id := range eng.order {
		_ = eng.elements[id].Close()
	}
	return nil
}
