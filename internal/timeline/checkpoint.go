/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package timeline holds the static checkpoint table of the primary video and
// the scheduler that turns playback-position samples into transition events.
package timeline

import (
	"errors"
	"fmt"
)

// ErrInvalidTable reports a malformed checkpoint table.
var ErrInvalidTable = errors.New("invalid checkpoint table")

// MaxCueChannels is the number of cue audio channels available.
const MaxCueChannels = 4

// Kind classifies a checkpoint.
type Kind string

const (
	KindPause        Kind = "pause"
	KindCue          Kind = "cue"
	KindLoopBoundary Kind = "loop_boundary"
)

// ID identifies a checkpoint.
type ID string

// Checkpoints with fixed roles in the flow.
const (
	GateEnter  ID = "gate-enter"
	GateSelect ID = "gate-select"
	LoopStart  ID = "loop-start"
	LoopEnd    ID = "loop-end"
	GateEnd    ID = "gate-end"
)

// Checkpoint is an immutable timeline trigger. A pause checkpoint with At == 0
// and ID GateEnd means "at media end".
type Checkpoint struct {
	ID      ID      `yaml:"id" toml:"id" json:"id"`
	Kind    Kind    `yaml:"kind" toml:"kind" json:"kind"`
	At      float64 `yaml:"at" toml:"at" json:"at"`
	Channel int     `yaml:"channel,omitempty" toml:"channel,omitempty" json:"channel,omitempty"`
}

// Thresholds are tunable positions used by the flow around the table.
type Thresholds struct {
	// CueResetBelow rearms every cue when the position drops under it.
	CueResetBelow float64 `yaml:"cue_reset_below" toml:"cue_reset_below" json:"cue_reset_below"`
	// FinaleResume is where the finale starts after a selection or relive.
	FinaleResume float64 `yaml:"finale_resume" toml:"finale_resume" json:"finale_resume"`
	// GuestResume is where an exit bridge returns the guest flow.
	GuestResume float64 `yaml:"guest_resume" toml:"guest_resume" json:"guest_resume"`
}

// Table is the full checkpoint configuration.
type Table struct {
	Checkpoints []Checkpoint `yaml:"checkpoints" toml:"checkpoints" json:"checkpoints"`
	Thresholds  `yaml:"thresholds" toml:"thresholds" json:"thresholds"`
}

// Default returns the stock table for the experience.
func Default() Table {
	return Table{
		Checkpoints: []Checkpoint{
			{ID: GateEnter, Kind: KindPause, At: 8},
			{ID: "cue-8", Kind: KindCue, At: 8, Channel: 0},
			{ID: GateSelect, Kind: KindPause, At: 14},
			{ID: "cue-16", Kind: KindCue, At: 16, Channel: 1},
			{ID: LoopStart, Kind: KindLoopBoundary, At: 21},
			{ID: "cue-21", Kind: KindCue, At: 21, Channel: 2},
			{ID: LoopEnd, Kind: KindLoopBoundary, At: 29},
			{ID: "cue-29", Kind: KindCue, At: 29, Channel: 3},
			{ID: GateEnd, Kind: KindPause, At: 0},
		},
		Thresholds: Thresholds{
			CueResetBelow: 7,
			FinaleResume:  29.1,
			GuestResume:   14,
		},
	}
}

// Lookup returns the checkpoint with the given id.
func (t Table) Lookup(id ID) (Checkpoint, bool) {
	for _, cp := range t.Checkpoints {
		if cp.ID == id {
			return cp, true
		}
	}
	return Checkpoint{}, false
}

// LoopBounds returns the loop-back window.
func (t Table) LoopBounds() (start, end float64) {
	if cp, ok := t.Lookup(LoopStart); ok {
		start = cp.At
	}
	if cp, ok := t.Lookup(LoopEnd); ok {
		end = cp.At
	}
	return start, end
}

// Cues returns the cue checkpoints in table order.
func (t Table) Cues() []Checkpoint {
	var cues []Checkpoint
	for _, cp := range t.Checkpoints {
		if cp.Kind == KindCue {
			cues = append(cues, cp)
		}
	}
	return cues
}

// Validate checks roles, ordering and channel bindings.
func (t Table) Validate() error {
	required := map[ID]Kind{
		GateEnter:  KindPause,
		GateSelect: KindPause,
		GateEnd:    KindPause,
		LoopStart:  KindLoopBoundary,
		LoopEnd:    KindLoopBoundary,
	}
	seen := make(map[ID]bool, len(t.Checkpoints))
	channels := make(map[int]ID)
	last := -1.0
	for i, cp := range t.Checkpoints {
		if cp.ID == "" {
			return fmt.Errorf("%w: checkpoint %d has no id", ErrInvalidTable, i)
		}
		if seen[cp.ID] {
			return fmt.Errorf("%w: duplicate checkpoint %q", ErrInvalidTable, cp.ID)
		}
		seen[cp.ID] = true

		switch cp.Kind {
		case KindPause, KindCue, KindLoopBoundary:
		default:
			return fmt.Errorf("%w: checkpoint %q has unknown kind %q", ErrInvalidTable, cp.ID, cp.Kind)
		}
		want, role := required[cp.ID]
		if role && want != cp.Kind {
			return fmt.Errorf("%w: checkpoint %q must be %s", ErrInvalidTable, cp.ID, want)
		}
		if !role && cp.Kind != KindCue {
			return fmt.Errorf("%w: checkpoint %q: only cues may be added", ErrInvalidTable, cp.ID)
		}
		if cp.At < 0 {
			return fmt.Errorf("%w: checkpoint %q has negative timestamp", ErrInvalidTable, cp.ID)
		}

		if cp.ID == GateEnd {
			if cp.At != 0 {
				return fmt.Errorf("%w: %q is bound to media end and must have at=0", ErrInvalidTable, GateEnd)
			}
			if i != len(t.Checkpoints)-1 {
				return fmt.Errorf("%w: %q must be the last checkpoint", ErrInvalidTable, GateEnd)
			}
			continue
		}
		if cp.At < last {
			return fmt.Errorf("%w: checkpoint %q is out of order", ErrInvalidTable, cp.ID)
		}
		last = cp.At

		if cp.Kind == KindCue {
			if cp.Channel < 0 || cp.Channel >= MaxCueChannels {
				return fmt.Errorf("%w: cue %q uses channel %d outside [0,%d)", ErrInvalidTable, cp.ID, cp.Channel, MaxCueChannels)
			}
			if other, taken := channels[cp.Channel]; taken {
				return fmt.Errorf("%w: cues %q and %q share channel %d", ErrInvalidTable, other, cp.ID, cp.Channel)
			}
			channels[cp.Channel] = cp.ID
		}
	}
	for id := range required {
		if !seen[id] {
			return fmt.Errorf("%w: missing checkpoint %q", ErrInvalidTable, id)
		}
	}

	start, end := t.LoopBounds()
	if start >= end {
		return fmt.Errorf("%w: loop start %.2f must precede loop end %.2f", ErrInvalidTable, start, end)
	}
	if t.CueResetBelow <= 0 {
		return fmt.Errorf("%w: cue_reset_below must be positive", ErrInvalidTable)
	}
	for _, cue := range t.Cues() {
		if cue.At < t.CueResetBelow {
			return fmt.Errorf("%w: cue %q fires below the reset threshold", ErrInvalidTable, cue.ID)
		}
	}
	if t.FinaleResume <= 0 || t.GuestResume <= 0 {
		return fmt.Errorf("%w: finale_resume and guest_resume must be positive", ErrInvalidTable)
	}
	return nil
}
