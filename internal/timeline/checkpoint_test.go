/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package timeline

import (
	"errors"
	"testing"
)

func TestDefaultTableValid(t *testing.T) {
	tbl := Default()
	if err := tbl.Validate(); err != nil {
		t.Fatalf("default table invalid: %v", err)
	}
	start, end := tbl.LoopBounds()
	if start != 21 || end != 29 {
		t.Fatalf("loop bounds = %.1f..%.1f, want 21..29", start, end)
	}
	if got := len(tbl.Cues()); got != 4 {
		t.Fatalf("cues = %d, want 4", got)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Table)
	}{
		{"duplicate id", func(tb *Table) {
			tb.Checkpoints[1].ID = GateEnter
		}},
		{"missing gate", func(tb *Table) {
			tb.Checkpoints = tb.Checkpoints[1:]
		}},
		{"negative timestamp", func(tb *Table) {
			tb.Checkpoints[0].At = -1
		}},
		{"out of order", func(tb *Table) {
			tb.Checkpoints[3].At = 10
		}},
		{"channel out of range", func(tb *Table) {
			tb.Checkpoints[1].Channel = MaxCueChannels
		}},
		{"shared channel", func(tb *Table) {
			tb.Checkpoints[3].Channel = 0
		}},
		{"end not last", func(tb *Table) {
			n := len(tb.Checkpoints)
			tb.Checkpoints[n-1], tb.Checkpoints[n-2] = tb.Checkpoints[n-2], tb.Checkpoints[n-1]
		}},
		{"end with timestamp", func(tb *Table) {
			tb.Checkpoints[len(tb.Checkpoints)-1].At = 40
		}},
		{"wrong role kind", func(tb *Table) {
			tb.Checkpoints[0].Kind = KindCue
		}},
		{"extra pause", func(tb *Table) {
			tb.Checkpoints = append([]Checkpoint{{ID: "gate-x", Kind: KindPause, At: 1}}, tb.Checkpoints...)
		}},
		{"inverted loop", func(tb *Table) {
			tb.Checkpoints[4].At = 29
			tb.Checkpoints[5].At = 29
		}},
		{"cue below reset", func(tb *Table) {
			tb.CueResetBelow = 9
		}},
		{"zero finale resume", func(tb *Table) {
			tb.FinaleResume = 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := Default()
			tt.mutate(&tbl)
			if err := tbl.Validate(); !errors.Is(err, ErrInvalidTable) {
				t.Fatalf("Validate() = %v, want ErrInvalidTable", err)
			}
		})
	}
}

func TestLookup(t *testing.T) {
	tbl := Default()
	cp, ok := tbl.Lookup(GateSelect)
	if !ok || cp.At != 14 {
		t.Fatalf("Lookup(gate-select) = %+v, %v", cp, ok)
	}
	if _, ok := tbl.Lookup("nope"); ok {
		t.Fatal("Lookup of unknown id succeeded")
	}
}
