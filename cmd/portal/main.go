/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/receiver_portal/internal/config"
	"github.com/friendsincode/receiver_portal/internal/logbuffer"
	"github.com/friendsincode/receiver_portal/internal/logging"
	"github.com/friendsincode/receiver_portal/internal/server"
	"github.com/friendsincode/receiver_portal/internal/telemetry"
	"github.com/friendsincode/receiver_portal/internal/version"
)

var (
	logger zerolog.Logger
	cfg    *config.Config

	experienceFile string
)

var rootCmd = &cobra.Command{
	Use:   "portal",
	Short: "Receiver portal - interactive cinematic playback orchestrator",
	Long:  "Runs portal sessions: checkpoint scheduling, audio arbitration, gated playback flow and bridge clips.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "warning: .env not loaded: %v\n", err)
		}
	},
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the portal HTTP and WebSocket server",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&experienceFile, "experience", "", "experience file (YAML or TOML); overrides PORTAL_EXPERIENCE_FILE")
	rootCmd.AddCommand(serveCmd, simulateCmd, timelineCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if experienceFile != "" {
		cfg.ExperienceFile = experienceFile
	}
	return nil
}

func loadExperience() (config.Experience, error) {
	path := experienceFile
	if path == "" && cfg != nil {
		path = cfg.ExperienceFile
	}
	exp, err := config.LoadExperience(path)
	if err != nil {
		return config.Experience{}, fmt.Errorf("load experience: %w", err)
	}
	return exp, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	logBuf := logbuffer.New(cfg.LogBufferSize)
	logger = logging.SetupWithWriter(cfg.Environment, os.Stdout, logbuffer.NewWriter(logBuf, nil))

	exp, err := loadExperience()
	if err != nil {
		return err
	}

	logger.Info().Str("version", version.Version).Msg("receiver portal starting")

	tracerProvider, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    telemetry.ServiceName,
		ServiceVersion: version.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	srv, err := server.New(cfg, exp, logBuf, logger)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}

	httpServer := srv.HTTPServer()
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		_ = srv.Close()
		return fmt.Errorf("http server: %w", err)
	}

	logger.Info().Msg("shutting down gracefully...")

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := srv.Close(); err != nil {
		logger.Error().Err(err).Msg("shutdown cleanup failed")
	}

	logger.Info().Msg("receiver portal stopped")
	return nil
}
