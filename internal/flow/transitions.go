/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package flow

import "errors"

var (
	// ErrInvalidTransition is returned for a phase change or action the
	// current phase does not allow.
	ErrInvalidTransition = errors.New("invalid flow transition")

	// ErrBridging is returned for inputs received while a bridge clip runs.
	ErrBridging = errors.New("input ignored while bridging")

	// ErrUnavailable is returned while priming or after the primary video
	// failed to load.
	ErrUnavailable = errors.New("experience unavailable")

	// ErrNoSelectionPending is returned when a selection result arrives with no
	// selection flow open.
	ErrNoSelectionPending = errors.New("no selection pending")
)

// isValidTransition checks if a phase change is allowed. Reset bypasses it.
func isValidTransition(from, to Phase) bool {
	validTransitions := map[Phase][]Phase{
		PhasePriming: {
			PhaseGateOne,
		},
		PhaseGateOne: {
			PhaseFastForward,
			PhaseGuestGate,
		},
		PhaseGuestGate: {
			PhaseFinale,
			PhaseLoopBack,
			PhaseFastForward,
		},
		PhaseFastForward: {
			PhaseEndGate,
		},
		PhaseLoopBack: {
			PhaseFinale,
		},
		PhaseFinale: {
			PhaseEndGate,
		},
		PhaseEndGate: {
			PhaseBridging,
		},
		PhaseBridging: {
			PhaseGuestGate,
			PhaseFinale,
		},
	}

	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}

	for _, allowedPhase := range allowed {
		if allowedPhase == to {
			return true
		}
	}

	return false
}
