/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package clock

import (
	"testing"
	"time"
)

func TestManualFiresInDeadlineOrder(t *testing.T) {
	m := NewManual()
	var got []string
	m.AfterFunc(300*time.Millisecond, func() { got = append(got, "c") })
	m.AfterFunc(100*time.Millisecond, func() { got = append(got, "a") })
	m.AfterFunc(100*time.Millisecond, func() { got = append(got, "b") })

	m.Advance(200 * time.Millisecond)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("after 200ms got %v, want [a b]", got)
	}
	m.Advance(100 * time.Millisecond)
	if len(got) != 3 || got[2] != "c" {
		t.Fatalf("after 300ms got %v", got)
	}
	if m.Now() != 300*time.Millisecond {
		t.Fatalf("now = %v", m.Now())
	}
}

func TestManualStopPreventsFire(t *testing.T) {
	m := NewManual()
	fired := false
	timer := m.AfterFunc(time.Second, func() { fired = true })
	if !timer.Stop() {
		t.Fatal("expected first Stop to report true")
	}
	if timer.Stop() {
		t.Fatal("expected second Stop to report false")
	}
	m.Advance(2 * time.Second)
	if fired {
		t.Fatal("stopped timer fired")
	}
	if m.Pending() != 0 {
		t.Fatalf("pending = %d", m.Pending())
	}
}

func TestManualNestedSchedulingWithinAdvance(t *testing.T) {
	m := NewManual()
	var at []time.Duration
	m.AfterFunc(time.Second, func() {
		at = append(at, m.Now())
		m.AfterFunc(500*time.Millisecond, func() { at = append(at, m.Now()) })
	})

	m.Advance(2 * time.Second)
	if len(at) != 2 {
		t.Fatalf("expected nested timer to fire, got %v", at)
	}
	if at[0] != time.Second || at[1] != 1500*time.Millisecond {
		t.Fatalf("fire times = %v", at)
	}
}

func TestRealPostsCallback(t *testing.T) {
	posted := make(chan func(), 1)
	r := Real{Post: func(f func()) { posted <- f }}
	done := false
	r.AfterFunc(time.Millisecond, func() { done = true })

	select {
	case f := <-posted:
		f()
	case <-time.After(time.Second):
		t.Fatal("callback was never posted")
	}
	if !done {
		t.Fatal("posted callback did not run")
	}
}
