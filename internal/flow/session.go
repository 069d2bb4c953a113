/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package flow

import (
	"github.com/friendsincode/receiver_portal/internal/bridge"
	"github.com/friendsincode/receiver_portal/internal/timeline"
)

// Phase is the flow controller's state.
type Phase string

const (
	PhasePriming     Phase = "priming"
	PhaseGateOne     Phase = "gate_one"
	PhaseGuestGate   Phase = "guest_gate"
	PhaseFastForward Phase = "fast_forward"
	PhaseLoopBack    Phase = "loop_back"
	PhaseFinale      Phase = "finale"
	PhaseEndGate     Phase = "end_gate"
	PhaseBridging    Phase = "bridging"
)

// Action is a user action raised from an overlay.
type Action string

const (
	ActionEnter  Action = "enter"
	ActionSelect Action = "select"
	ActionExit   Action = "exit"
	ActionRelive Action = "relive"
)

// ParseAction validates an action name.
func ParseAction(s string) (Action, bool) {
	switch a := Action(s); a {
	case ActionEnter, ActionSelect, ActionExit, ActionRelive:
		return a, true
	}
	return "", false
}

// Session is the consolidated playback session. Only the controller mutates
// it; everything else reads copies.
type Session struct {
	ID    string `json:"id"`
	Phase Phase  `json:"phase"`

	HasPassedGate1 bool        `json:"has_passed_gate1"`
	AccessGranted  bool        `json:"access_granted"`
	SelectionMade  bool        `json:"selection_made"`
	PlayingThrough bool        `json:"playing_through"`
	InLoopBack     bool        `json:"in_loop_back"`
	Held           timeline.ID `json:"held,omitempty"`
	BridgeKind     bridge.Kind `json:"bridge_kind,omitempty"`

	AudioUnlocked bool `json:"audio_unlocked"`
	Muted         bool `json:"muted"`
	SelectionOpen bool `json:"selection_open"`
	Seeking       bool `json:"seeking"`
	VideoReady    bool `json:"video_ready"`
	VideoError    bool `json:"video_error"`
	Scanning      bool `json:"scanning"`
	// Stalled is set when the engine refused to start the primary after a
	// resume. The next gesture retries the start.
	Stalled bool `json:"stalled"`
}

// Transition records one phase change.
type Transition struct {
	From     Phase   `json:"from"`
	To       Phase   `json:"to"`
	Reason   string  `json:"reason"`
	Position float64 `json:"position"`
}
