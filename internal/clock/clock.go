/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package clock schedules deferred callbacks for a session loop, either on
// wall-clock time or on a manually advanced virtual clock.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Timer is a pending callback.
type Timer interface {
	// Stop prevents the callback from running if it has not been handed off yet.
	// A Real timer whose callback was already posted may still run; callers
	// guard with their own generation counters.
	Stop() bool
}

// Timers creates deferred callbacks.
type Timers interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Real fires on wall-clock time and hands callbacks to Post so they run on the
// owner's goroutine. A nil Post runs the callback on the timer goroutine.
type Real struct {
	Post func(func())
}

// AfterFunc implements Timers.
func (r Real) AfterFunc(d time.Duration, f func()) Timer {
	post := r.Post
	return time.AfterFunc(d, func() {
		if post != nil {
			post(f)
			return
		}
		f()
	})
}

// Manual is a virtual clock. Callbacks run synchronously inside Advance in
// deadline order (ties in scheduling order).
type Manual struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	m       *Manual
	at      time.Duration
	seq     int
	f       func()
	stopped bool
	fired   bool
}

// NewManual returns a virtual clock at zero.
func NewManual() *Manual {
	return &Manual{}
}

// Now returns elapsed virtual time.
func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// AfterFunc implements Timers.
func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	if d < 0 {
		d = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{m: m, at: m.now + d, seq: m.seq, f: f}
	m.timers = append(m.timers, t)
	return t
}

// Stop implements Timer.
func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Pending returns the number of timers that have neither fired nor been stopped.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// Advance moves virtual time forward by d, firing every timer that falls due.
// Timers scheduled by a firing callback are honoured within the same call.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next := m.nextDueLocked(target)
		if next == nil {
			m.now = target
			m.compactLocked()
			m.mu.Unlock()
			return
		}
		m.now = next.at
		next.fired = true
		m.mu.Unlock()

		next.f()
	}
}

func (m *Manual) nextDueLocked(target time.Duration) *manualTimer {
	var due []*manualTimer
	for _, t := range m.timers {
		if !t.stopped && !t.fired && t.at <= target {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].at == due[j].at {
			return due[i].seq < due[j].seq
		}
		return due[i].at < due[j].at
	})
	return due[0]
}

func (m *Manual) compactLocked() {
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	m.timers = live
}
