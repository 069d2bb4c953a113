/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/friendsincode/receiver_portal/internal/config"
	"github.com/friendsincode/receiver_portal/internal/timeline"
)

var timelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Print the checkpoint table and thresholds",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return err
		}
		exp, err := loadExperience()
		if err != nil {
			return err
		}
		printTimeline(cmd.OutOrStdout(), exp)
		return nil
	},
}

func printTimeline(out io.Writer, exp config.Experience) {
	checkpoints := newReport("Checkpoints",
		column{name: "ID"},
		column{name: "Kind"},
		column{name: "At", numeric: true},
		column{name: "Cue channel", numeric: true},
	)
	for _, cp := range exp.Timeline.Checkpoints {
		at := strconv.FormatFloat(cp.At, 'f', -1, 64) + "s"
		if cp.ID == timeline.GateEnd && cp.At == 0 {
			at = "end"
		}
		channel := ""
		if cp.Kind == timeline.KindCue {
			channel = strconv.Itoa(cp.Channel)
		}
		checkpoints.add(string(cp.ID), string(cp.Kind), at, channel)
	}
	fmt.Fprintln(out, checkpoints)

	th := exp.Timeline.Thresholds
	thresholds := newReport("Thresholds", column{name: "Threshold"}, column{name: "Seconds", numeric: true})
	thresholds.add("cue reset below", strconv.FormatFloat(th.CueResetBelow, 'f', -1, 64))
	thresholds.add("finale resume", strconv.FormatFloat(th.FinaleResume, 'f', -1, 64))
	thresholds.add("guest resume", strconv.FormatFloat(th.GuestResume, 'f', -1, 64))
	fmt.Fprintln(out, thresholds)
}
