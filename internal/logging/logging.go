/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures zerolog for the process.
func Setup(environment string) zerolog.Logger {
	return SetupWithWriter(environment, os.Stdout, nil)
}

// SetupWithWriter configures the process logger. Development gets a console
// writer on out; other environments write JSON. capture, when set, receives
// every JSON line (for the log buffer).
func SetupWithWriter(environment string, out io.Writer, capture io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	env := strings.ToLower(environment)
	level := zerolog.InfoLevel
	if env == "development" {
		level = zerolog.DebugLevel
	}
	if lvl, err := zerolog.ParseLevel(os.Getenv("PORTAL_LOG_LEVEL")); err == nil && lvl != zerolog.NoLevel {
		level = lvl
	}

	var writer io.Writer = out
	if env == "development" {
		writer = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000"}
	}
	if capture != nil {
		writer = zerolog.MultiLevelWriter(writer, capture)
	}

	logger := zerolog.New(writer).With().Timestamp().Logger().Level(level)
	log.Logger = logger
	return logger
}
