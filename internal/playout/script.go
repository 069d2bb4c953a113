/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/friendsincode/receiver_portal/internal/flow"
)

// ErrScript reports a malformed script or a step that could not complete.
var ErrScript = errors.New("playout: script")

// DefaultUntilLimit bounds an until step when the script gives no limit.
const DefaultUntilLimit = 2 * time.Minute

// StepKind enumerates script steps.
type StepKind string

const (
	StepAction StepKind = "action" // enter, select, exit, relive
	StepChoice StepKind = "choice" // selection returned with a pick
	StepBack   StepKind = "back"   // selection returned without a pick
	StepGrant  StepKind = "grant"
	StepScan   StepKind = "scan"
	StepUnlock StepKind = "unlock"
	StepMute   StepKind = "mute"
	StepUnmute StepKind = "unmute"
	StepReset  StepKind = "reset"
	StepWait   StepKind = "wait"
	StepUntil  StepKind = "until"
)

// Step is one parsed script instruction.
type Step struct {
	Kind    StepKind
	Action  flow.Action
	Wait    time.Duration
	Overlay flow.Overlay
	Limit   time.Duration
	Raw     string
}

// ParseScript parses a whitespace or comma separated list of steps, e.g.
//
//	until:gate-enter enter until:gate-select select back wait:5s
//
// until steps take an optional limit: until:end-of-sequence/90s.
func ParseScript(src string) ([]Step, error) {
	fields := strings.FieldsFunc(src, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t' || r == ';'
	})
	steps := make([]Step, 0, len(fields))
	for _, f := range fields {
		s, err := parseStep(f)
		if err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	return steps, nil
}

func parseStep(tok string) (Step, error) {
	name, arg, _ := strings.Cut(strings.ToLower(strings.TrimSpace(tok)), ":")
	s := Step{Raw: tok}
	if a, ok := flow.ParseAction(name); ok {
		s.Kind, s.Action = StepAction, a
		return s, nil
	}
	switch StepKind(name) {
	case StepChoice, StepBack, StepGrant, StepScan, StepUnlock, StepMute, StepUnmute, StepReset:
		s.Kind = StepKind(name)
		return s, nil
	case StepWait:
		d, err := time.ParseDuration(arg)
		if err != nil || d <= 0 {
			return Step{}, fmt.Errorf("%w: bad wait %q", ErrScript, tok)
		}
		s.Kind, s.Wait = StepWait, d
		return s, nil
	case StepUntil:
		target, limit, hasLimit := strings.Cut(arg, "/")
		o, ok := flow.ParseOverlay(target)
		if !ok {
			return Step{}, fmt.Errorf("%w: unknown overlay %q", ErrScript, target)
		}
		s.Kind, s.Overlay, s.Limit = StepUntil, o, DefaultUntilLimit
		if hasLimit {
			d, err := time.ParseDuration(limit)
			if err != nil || d <= 0 {
				return Step{}, fmt.Errorf("%w: bad limit %q", ErrScript, tok)
			}
			s.Limit = d
		}
		return s, nil
	}
	return Step{}, fmt.Errorf("%w: unknown step %q", ErrScript, tok)
}

// TraceEntry records the state after one script step.
type TraceEntry struct {
	Step    string
	Elapsed time.Duration
	View    flow.View
	Err     error
}

// RunScript executes steps against a virtual session. Action errors are
// recorded in the trace and do not stop the script; an until step that
// times out does.
func RunScript(ctx context.Context, d *Director, steps []Step) ([]TraceEntry, error) {
	if !d.Virtual() {
		return nil, ErrNotVirtual
	}
	trace := make([]TraceEntry, 0, len(steps))
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return trace, err
		}
		err := runStep(ctx, d, s)
		trace = append(trace, TraceEntry{Step: s.Raw, Elapsed: d.Elapsed(), View: d.View(), Err: err})
		if err != nil && (s.Kind == StepUntil || errors.Is(err, ErrDirectorStopped)) {
			return trace, err
		}
	}
	return trace, nil
}

func runStep(ctx context.Context, d *Director, s Step) error {
	switch s.Kind {
	case StepAction:
		return d.Act(ctx, s.Action)
	case StepChoice, StepBack:
		return d.Do(ctx, "selection", func(c *flow.Controller) error {
			return c.ReturnSelection(s.Kind == StepChoice)
		})
	case StepGrant:
		return d.Do(ctx, "grant", func(c *flow.Controller) error {
			c.GrantAccess()
			return nil
		})
	case StepScan:
		return d.Do(ctx, "scan", func(c *flow.Controller) error {
			return c.BeginKeyScan()
		})
	case StepUnlock:
		return d.Do(ctx, "unlock", func(c *flow.Controller) error {
			c.SetAudioUnlocked(true)
			return nil
		})
	case StepMute, StepUnmute:
		return d.Do(ctx, "mute", func(c *flow.Controller) error {
			c.SetMuted(s.Kind == StepMute)
			return nil
		})
	case StepReset:
		return d.Do(ctx, "reset", func(c *flow.Controller) error {
			c.Reset()
			return nil
		})
	case StepWait:
		return d.Step(s.Wait)
	case StepUntil:
		return until(d, s)
	}
	return fmt.Errorf("%w: unknown step %q", ErrScript, s.Raw)
}

func until(d *Director, s Step) error {
	for waited := time.Duration(0); d.View().Overlay != s.Overlay; waited += d.opts.SampleInterval {
		if waited >= s.Limit {
			v := d.View()
			return fmt.Errorf("%w: %s not reached within %s (phase %s, position %.2f)",
				ErrScript, s.Overlay, s.Limit, v.Phase, v.Position)
		}
		if err := d.Step(d.opts.SampleInterval); err != nil {
			return err
		}
	}
	return nil
}
