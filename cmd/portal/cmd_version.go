/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/friendsincode/receiver_portal/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the portal version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "receiver portal %s\n", version.Version)
	},
}
