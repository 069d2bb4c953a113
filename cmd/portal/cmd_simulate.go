/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/receiver_portal/internal/config"
	"github.com/friendsincode/receiver_portal/internal/flow"
	"github.com/friendsincode/receiver_portal/internal/playout"
)

const defaultScript = "unlock until:gate-enter enter until:gate-select select choice until:end-of-sequence relive until:end-of-sequence exit"

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a scripted session in virtual time and print what happened",
	Long: `Runs one session on the simulated engine in virtual time.

Steps: enter, select, exit, relive, choice, back, grant, scan, unlock, mute,
unmute, reset, wait:<duration>, until:<overlay>[/<limit>].
Overlays: priming, gate-enter, gate-select, end-of-sequence, none.`,
	RunE: runSimulate,
}

type simulateOptions struct {
	script  string
	access  bool
	logs    bool
	block   []string
	failing []string
}

var simOpts simulateOptions

func init() {
	f := simulateCmd.Flags()
	f.StringVar(&simOpts.script, "script", defaultScript, "scenario steps, comma or space separated")
	f.BoolVar(&simOpts.access, "access", false, "grant access before the script starts")
	f.BoolVar(&simOpts.logs, "logs", false, "write session logs to stderr")
	f.StringSliceVar(&simOpts.block, "block", nil, "element ids whose playback start is rejected")
	f.StringSliceVar(&simOpts.failing, "fail", nil, "element ids that fail to decode")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	exp, err := loadExperience()
	if err != nil {
		return err
	}
	log := zerolog.Nop()
	if simOpts.logs {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return simulate(cmd.Context(), cmd.OutOrStdout(), cfg, exp, simOpts, log)
}

func simulate(ctx context.Context, out io.Writer, cfg *config.Config, exp config.Experience, o simulateOptions, log zerolog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	script := o.script
	if o.access {
		script = "grant " + script
	}
	steps, err := playout.ParseScript(script)
	if err != nil {
		return err
	}

	opts := playout.OptionsFromConfig(cfg, exp)
	opts.Logger = log
	opts.NewEngine = simEngine(o.block, o.failing)

	d, err := playout.NewVirtualDirector(opts)
	if err != nil {
		return err
	}
	defer d.Close()

	trace, runErr := playout.RunScript(ctx, d, steps)

	stepReport := newReport("Steps",
		column{name: "Step"},
		column{name: "Time", numeric: true},
		column{name: "Phase"},
		column{name: "Overlay"},
		column{name: "Position", numeric: true},
		column{name: "Audio"},
		column{name: "Error"},
	)
	for _, e := range trace {
		errText := ""
		if e.Err != nil {
			errText = e.Err.Error()
		}
		stepReport.add(
			e.Step,
			fmt.Sprintf("%.2fs", e.Elapsed.Seconds()),
			string(e.View.Phase),
			overlayText(e.View),
			strconv.FormatFloat(e.View.Position, 'f', 2, 64),
			audioText(e.View),
			errText,
		)
	}
	fmt.Fprintln(out, stepReport)

	transitions := newReport("Transitions",
		column{name: "From"},
		column{name: "To"},
		column{name: "Reason", maxWidth: 32},
		column{name: "Position", numeric: true},
	)
	for _, tr := range d.History() {
		transitions.add(string(tr.From), string(tr.To), tr.Reason, strconv.FormatFloat(tr.Position, 'f', 2, 64))
	}
	transitions.countFooter("transitions")
	fmt.Fprintln(out, transitions)

	if fired := d.View().FiredCues; len(fired) > 0 {
		fmt.Fprintf(out, "fired cues: %s\n", strings.Join(fired, ", "))
	}
	return runErr
}

func overlayText(v flow.View) string {
	if v.OverlayLabel == "" {
		return string(v.Overlay)
	}
	return fmt.Sprintf("%s (%s)", v.Overlay, v.OverlayLabel)
}

func audioText(v flow.View) string {
	switch {
	case !v.AudioUnlocked:
		return "locked"
	case v.ActiveAudioChannel == "":
		return "-"
	}
	return v.ActiveAudioChannel
}
