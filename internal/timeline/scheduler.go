/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package timeline

import "sync"

// EventKind classifies scheduler output.
type EventKind string

const (
	EventGate        EventKind = "gate"
	EventCue         EventKind = "cue"
	EventLoopCorrect EventKind = "loop_correct"
)

// Event is emitted by Evaluate when a checkpoint condition holds.
type Event struct {
	Kind       EventKind
	Checkpoint Checkpoint
	// Target is the seek position for loop corrections.
	Target float64
}

// Sample is one playback-position reading plus the flow flags that gate
// checkpoint evaluation.
type Sample struct {
	Position float64
	Duration float64
	Playing  bool
	Seeking  bool

	PassedGate1    bool
	AccessGranted  bool
	PlayingThrough bool
	InLoopBack     bool
	// Held is the gate the primary video is currently paused at, if any.
	Held ID
}

// Scheduler evaluates samples against a table. Gates are level-triggered and
// rely on the Held flag for suppression. Cues are edge-triggered and tracked in
// a fired set that clears when playback drops under the reset threshold.
type Scheduler struct {
	mu    sync.Mutex
	table Table
	gates []Checkpoint
	cues  []Checkpoint
	fired map[ID]bool
}

// NewScheduler builds a scheduler for t. The table is assumed valid.
func NewScheduler(t Table) *Scheduler {
	s := &Scheduler{
		table: t,
		fired: make(map[ID]bool),
	}
	for _, cp := range t.Checkpoints {
		switch {
		case cp.Kind == KindCue:
			s.cues = append(s.cues, cp)
		case cp.Kind == KindPause, cp.ID == LoopEnd:
			s.gates = append(s.gates, cp)
		}
	}
	return s
}

// Table returns the table the scheduler evaluates.
func (s *Scheduler) Table() Table {
	return s.table
}

// Evaluate returns the events due for smp: gates first, then cues, then the
// loop correction.
func (s *Scheduler) Evaluate(smp Sample) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Event
	for _, cp := range s.gates {
		if s.gateDue(cp, smp) {
			out = append(out, Event{Kind: EventGate, Checkpoint: cp})
		}
	}

	if smp.Position < s.table.CueResetBelow {
		clear(s.fired)
	}
	for _, cp := range s.cues {
		if s.fired[cp.ID] || smp.Position < cp.At {
			continue
		}
		s.fired[cp.ID] = true
		out = append(out, Event{Kind: EventCue, Checkpoint: cp})
	}

	if smp.InLoopBack && smp.Playing && !smp.Seeking && smp.Held != LoopEnd {
		start, _ := s.table.LoopBounds()
		if smp.Position < start {
			cp, _ := s.table.Lookup(LoopStart)
			out = append(out, Event{Kind: EventLoopCorrect, Checkpoint: cp, Target: start})
		}
	}
	return out
}

func (s *Scheduler) gateDue(cp Checkpoint, smp Sample) bool {
	if smp.Held == cp.ID {
		return false
	}
	switch cp.ID {
	case GateEnter:
		return !smp.PassedGate1 && smp.Position >= cp.At
	case GateSelect:
		return smp.PassedGate1 && !smp.AccessGranted && !smp.PlayingThrough && !smp.InLoopBack &&
			smp.Position >= cp.At
	case LoopEnd:
		return smp.InLoopBack && !smp.PlayingThrough && smp.Position >= cp.At
	case GateEnd:
		return smp.Duration > 0 && smp.Position >= smp.Duration
	}
	return false
}

// Fired returns the ids of cues fired in the current pass, in table order.
func (s *Scheduler) Fired() []ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]ID, 0, len(s.fired))
	for _, cp := range s.cues {
		if s.fired[cp.ID] {
			ids = append(ids, cp.ID)
		}
	}
	return ids
}

// Reset clears the fired set.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	clear(s.fired)
	s.mu.Unlock()
}

// Rearm removes ids from the fired set so they fire on the next crossing.
func (s *Scheduler) Rearm(ids ...ID) {
	s.mu.Lock()
	for _, id := range ids {
		delete(s.fired, id)
	}
	s.mu.Unlock()
}
