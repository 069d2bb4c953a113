/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package flow

import (
	"github.com/friendsincode/receiver_portal/internal/bridge"
	"github.com/friendsincode/receiver_portal/internal/timeline"
)

// Overlay is the prompt the presentation layer shows over the video.
type Overlay string

const (
	OverlayNone          Overlay = "none"
	OverlayPriming       Overlay = "priming"
	OverlayGateEnter     Overlay = "gate-enter"
	OverlayGateSelect    Overlay = "gate-select"
	OverlayEndOfSequence Overlay = "end-of-sequence"
)

// ParseOverlay validates an overlay name.
func ParseOverlay(s string) (Overlay, bool) {
	switch o := Overlay(s); o {
	case OverlayNone, OverlayPriming, OverlayGateEnter, OverlayGateSelect, OverlayEndOfSequence:
		return o, true
	}
	return "", false
}

// Overlay labels.
const (
	LabelPriming    = "PRIMING EXPERIENCE"
	LabelGateEnter  = "ENTER JEENIVERSE"
	LabelSelect     = "SELECT EXSO"
	LabelEnterExso  = "ENTER EXSO"
	LabelEndOptions = "EXIT EXSO / RELIVE EXSO"
)

// View is the derived state published to the presentation layer.
type View struct {
	SessionID    string  `json:"session_id"`
	Phase        Phase   `json:"phase"`
	Overlay      Overlay `json:"overlay"`
	OverlayLabel string  `json:"overlay_label,omitempty"`
	Position     float64 `json:"position"`
	Duration     float64 `json:"duration"`

	HasPassedGate1 bool `json:"has_passed_gate1"`
	AccessGranted  bool `json:"access_granted"`
	SelectionMade  bool `json:"selection_made"`
	PlayingThrough bool `json:"playing_through"`
	InLoopBack     bool `json:"in_loop_back"`
	SelectionOpen  bool `json:"selection_open"`
	Scanning       bool `json:"scanning"`
	VideoError     bool `json:"video_error"`
	AudioUnlocked  bool `json:"audio_unlocked"`
	Stalled        bool `json:"stalled"`

	PrimaryHidden bool        `json:"primary_hidden"`
	BridgeVisible bool        `json:"bridge_visible"`
	BridgeKind    bridge.Kind `json:"bridge_kind,omitempty"`
	Placeholder   bool        `json:"placeholder"`
	Veil          bool        `json:"veil"`
	FadeMillis    int64       `json:"fade_ms,omitempty"`

	ActiveAudioChannel string   `json:"active_audio_channel"`
	AudioMuted         bool     `json:"audio_muted"`
	FiredCues          []string `json:"fired_cues"`
}

func overlayFor(s Session) (Overlay, string) {
	switch {
	case s.VideoError, s.SelectionOpen, s.Phase == PhaseBridging:
		return OverlayNone, ""
	case s.Phase == PhasePriming:
		return OverlayPriming, LabelPriming
	case s.Phase == PhaseEndGate || s.Held == timeline.GateEnd:
		return OverlayEndOfSequence, LabelEndOptions
	case s.Held == timeline.GateEnter:
		return OverlayGateEnter, LabelGateEnter
	case s.Held == timeline.GateSelect || s.Held == timeline.LoopEnd:
		if s.SelectionMade || s.AccessGranted {
			return OverlayGateSelect, LabelEnterExso
		}
		return OverlayGateSelect, LabelSelect
	}
	return OverlayNone, ""
}

// View derives the presentation state from the session and collaborators.
func (c *Controller) View() View {
	s := c.sess
	overlay, label := overlayFor(s)
	bs := c.bridge.Status()
	as := c.audio.Status()

	v := View{
		SessionID:      s.ID,
		Phase:          s.Phase,
		Overlay:        overlay,
		OverlayLabel:   label,
		Position:       c.video.Position(),
		Duration:       c.video.Duration(),
		HasPassedGate1: s.HasPassedGate1,
		AccessGranted:  s.AccessGranted,
		SelectionMade:  s.SelectionMade,
		PlayingThrough: s.PlayingThrough,
		InLoopBack:     s.InLoopBack,
		SelectionOpen:  s.SelectionOpen,
		Scanning:       s.Scanning,
		VideoError:     s.VideoError,
		AudioUnlocked:  s.AudioUnlocked,
		Stalled:        s.Stalled,

		BridgeVisible: bs.Active,
		BridgeKind:    bs.Kind,
		Placeholder:   bs.Placeholder,
		Veil:          bs.Veil,
		FadeMillis:    bs.Fade.Milliseconds(),

		ActiveAudioChannel: string(as.Active),
		AudioMuted:         as.Muted,
	}
	// The primary stays visible under the bridge until the clip's first frame.
	v.PrimaryHidden = s.Seeking || bs.HasStarted || bs.State == bridge.StateDwell

	fired := c.sched.Fired()
	v.FiredCues = make([]string, 0, len(fired))
	for _, id := range fired {
		v.FiredCues = append(v.FiredCues, string(id))
	}
	return v
}
