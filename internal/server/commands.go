/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"errors"
	"time"

	"github.com/friendsincode/receiver_portal/internal/flow"
	"github.com/friendsincode/receiver_portal/internal/playout"
)

var errBadCommand = errors.New("invalid command")

// apply runs every part of cmd that is set, in a fixed order: audio, access,
// selection result, action, reset, step.
func apply(ctx context.Context, d *playout.Director, cmd command) error {
	if cmd.Unlocked != nil || cmd.Muted != nil {
		err := d.Do(ctx, "audio", func(c *flow.Controller) error {
			if cmd.Unlocked != nil {
				c.SetAudioUnlocked(*cmd.Unlocked)
			}
			if cmd.Muted != nil {
				c.SetMuted(*cmd.Muted)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	switch {
	case cmd.Grant:
		if err := d.Do(ctx, "grant", func(c *flow.Controller) error {
			c.GrantAccess()
			return nil
		}); err != nil {
			return err
		}
	case cmd.Scan:
		if err := d.Do(ctx, "scan", func(c *flow.Controller) error {
			return c.BeginKeyScan()
		}); err != nil {
			return err
		}
	}

	if cmd.ChoiceMade != nil {
		if err := d.Do(ctx, "selection", func(c *flow.Controller) error {
			return c.ReturnSelection(*cmd.ChoiceMade)
		}); err != nil {
			return err
		}
	}

	if cmd.Action != "" {
		action, ok := flow.ParseAction(cmd.Action)
		if !ok {
			return errBadCommand
		}
		if err := d.Act(ctx, action); err != nil {
			return err
		}
	}

	if cmd.Reset {
		if err := d.Do(ctx, "reset", func(c *flow.Controller) error {
			c.Reset()
			return nil
		}); err != nil {
			return err
		}
	}

	if cmd.Seconds != nil {
		return d.Step(time.Duration(*cmd.Seconds * float64(time.Second)))
	}
	return nil
}
