/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package timeline

import (
	"reflect"
	"testing"
)

func kinds(events []Event) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, string(ev.Kind)+":"+string(ev.Checkpoint.ID))
	}
	return out
}

func TestGateEnterLevelTriggered(t *testing.T) {
	s := NewScheduler(Default())

	if got := s.Evaluate(Sample{Position: 7.9, Duration: 42, Playing: true}); len(got) != 0 {
		t.Fatalf("before gate: %v", kinds(got))
	}
	got := s.Evaluate(Sample{Position: 8.1, Duration: 42, Playing: true})
	want := []string{"gate:gate-enter", "cue:cue-8"}
	if !reflect.DeepEqual(kinds(got), want) {
		t.Fatalf("at gate = %v, want %v", kinds(got), want)
	}

	// Held suppresses the gate; cue already fired.
	if got := s.Evaluate(Sample{Position: 8.1, Duration: 42, Held: GateEnter}); len(got) != 0 {
		t.Fatalf("held: %v", kinds(got))
	}
	// Not yet acknowledged: fires again.
	got = s.Evaluate(Sample{Position: 8.2, Duration: 42, Playing: true})
	if !reflect.DeepEqual(kinds(got), []string{"gate:gate-enter"}) {
		t.Fatalf("re-evaluate = %v", kinds(got))
	}
}

func TestGateSelectSuppression(t *testing.T) {
	tests := []struct {
		name string
		smp  Sample
		want bool
	}{
		{"guest", Sample{PassedGate1: true}, true},
		{"before gate one", Sample{}, false},
		{"access granted", Sample{PassedGate1: true, AccessGranted: true}, false},
		{"playing through", Sample{PassedGate1: true, PlayingThrough: true}, false},
		{"loop back", Sample{PassedGate1: true, InLoopBack: true}, false},
		{"already held", Sample{PassedGate1: true, Held: GateSelect}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScheduler(Default())
			smp := tt.smp
			smp.Position = 14.05
			smp.Duration = 42
			found := false
			for _, ev := range s.Evaluate(smp) {
				if ev.Kind == EventGate && ev.Checkpoint.ID == GateSelect {
					found = true
				}
			}
			if found != tt.want {
				t.Fatalf("gate-select fired = %v, want %v", found, tt.want)
			}
		})
	}
}

func TestLoopEndOnlyInLoopBack(t *testing.T) {
	s := NewScheduler(Default())
	s.Evaluate(Sample{Position: 29.1, Duration: 42, PassedGate1: true, PlayingThrough: true})
	for _, ev := range s.Evaluate(Sample{Position: 29.2, Duration: 42, PassedGate1: true, PlayingThrough: true}) {
		if ev.Kind == EventGate {
			t.Fatalf("unexpected gate %s while playing through", ev.Checkpoint.ID)
		}
	}

	got := s.Evaluate(Sample{Position: 29.05, Duration: 42, Playing: true, PassedGate1: true, InLoopBack: true})
	if len(got) == 0 || got[0].Kind != EventGate || got[0].Checkpoint.ID != LoopEnd {
		t.Fatalf("loop end = %v", kinds(got))
	}
}

func TestGateEnd(t *testing.T) {
	s := NewScheduler(Default())
	s.Evaluate(Sample{Position: 30, Duration: 42, PassedGate1: true, PlayingThrough: true})
	got := s.Evaluate(Sample{Position: 42, Duration: 42, PassedGate1: true, PlayingThrough: true})
	if !reflect.DeepEqual(kinds(got), []string{"gate:gate-end"}) {
		t.Fatalf("end = %v", kinds(got))
	}
	if got := s.Evaluate(Sample{Position: 42, PassedGate1: true, PlayingThrough: true}); len(got) != 0 {
		t.Fatalf("unknown duration fired %v", kinds(got))
	}
}

func TestCuesEdgeTriggeredAndReset(t *testing.T) {
	s := NewScheduler(Default())
	base := Sample{Duration: 42, Playing: true, PassedGate1: true, PlayingThrough: true}

	smp := base
	smp.Position = 16.2
	got := s.Evaluate(smp)
	// Crossing several cues in one sample fires them all in table order.
	if !reflect.DeepEqual(kinds(got), []string{"cue:cue-8", "cue:cue-16"}) {
		t.Fatalf("first pass = %v", kinds(got))
	}
	smp.Position = 16.5
	if got := s.Evaluate(smp); len(got) != 0 {
		t.Fatalf("repeat = %v", kinds(got))
	}
	if !reflect.DeepEqual(s.Fired(), []ID{"cue-8", "cue-16"}) {
		t.Fatalf("fired = %v", s.Fired())
	}

	smp.Position = 6.9
	s.Evaluate(smp)
	if len(s.Fired()) != 0 {
		t.Fatalf("fired after reset = %v", s.Fired())
	}
	smp.Position = 8
	if got := s.Evaluate(smp); !reflect.DeepEqual(kinds(got), []string{"cue:cue-8"}) {
		t.Fatalf("after rewind = %v", kinds(got))
	}
}

func TestRearm(t *testing.T) {
	s := NewScheduler(Default())
	s.Evaluate(Sample{Position: 22, Duration: 42, PassedGate1: true, PlayingThrough: true})
	s.Rearm("cue-21")
	got := s.Evaluate(Sample{Position: 22, Duration: 42, PassedGate1: true, PlayingThrough: true})
	if !reflect.DeepEqual(kinds(got), []string{"cue:cue-21"}) {
		t.Fatalf("rearm = %v", kinds(got))
	}
	s.Reset()
	if len(s.Fired()) != 0 {
		t.Fatal("Reset left fired cues")
	}
}

func TestLoopCorrection(t *testing.T) {
	tests := []struct {
		name string
		smp  Sample
		want bool
	}{
		{"below start", Sample{Position: 18, Playing: true, InLoopBack: true}, true},
		{"inside window", Sample{Position: 22, Playing: true, InLoopBack: true}, false},
		{"seeking", Sample{Position: 18, Playing: true, InLoopBack: true, Seeking: true}, false},
		{"paused", Sample{Position: 18, InLoopBack: true}, false},
		{"held at loop end", Sample{Position: 18, Playing: true, InLoopBack: true, Held: LoopEnd}, false},
		{"not looping", Sample{Position: 18, Playing: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScheduler(Default())
			smp := tt.smp
			smp.Duration = 42
			smp.PassedGate1 = true
			var found *Event
			for _, ev := range s.Evaluate(smp) {
				if ev.Kind == EventLoopCorrect {
					ev := ev
					found = &ev
				}
			}
			if (found != nil) != tt.want {
				t.Fatalf("loop correction = %v, want %v", found != nil, tt.want)
			}
			if found != nil && found.Target != 21 {
				t.Fatalf("target = %.1f, want 21", found.Target)
			}
		})
	}
}

func TestEvaluationOrder(t *testing.T) {
	s := NewScheduler(Default())
	got := s.Evaluate(Sample{Position: 29.0, Duration: 42, Playing: true, PassedGate1: true, InLoopBack: true})
	want := []string{"gate:loop-end", "cue:cue-8", "cue:cue-16", "cue:cue-21", "cue:cue-29"}
	if !reflect.DeepEqual(kinds(got), want) {
		t.Fatalf("order = %v, want %v", kinds(got), want)
	}
}
