/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.SampleInterval != 250*time.Millisecond {
		t.Fatalf("sample interval = %s", cfg.SampleInterval)
	}
	if cfg.BridgeSafetyTimeout != 12*time.Second || cfg.BridgeDwell != 1600*time.Millisecond {
		t.Fatalf("bridge timings = %s / %s", cfg.BridgeSafetyTimeout, cfg.BridgeDwell)
	}
	if cfg.CueChain != 3 || cfg.MaxSessions != 64 {
		t.Fatalf("cue chain = %d max sessions = %d", cfg.CueChain, cfg.MaxSessions)
	}
	if cfg.Addr() != "0.0.0.0:8080" {
		t.Fatalf("addr = %q", cfg.Addr())
	}
}

func TestLoadReadsEnvKeys(t *testing.T) {
	t.Setenv("PORTAL_ENV", "production")
	t.Setenv("PORTAL_HTTP_PORT", "9090")
	t.Setenv("PORTAL_SEEK_REVEAL_MS", "250")
	t.Setenv("RECEIVER_EXPERIENCE_FILE", "/etc/portal/experience.yaml")
	t.Setenv("PORTAL_TRACING_ENABLED", "yes")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Environment != "production" || cfg.HTTPPort != 9090 {
		t.Fatalf("env=%q port=%d", cfg.Environment, cfg.HTTPPort)
	}
	if cfg.SeekReveal != 250*time.Millisecond {
		t.Fatalf("seek reveal = %s", cfg.SeekReveal)
	}
	if cfg.ExperienceFile != "/etc/portal/experience.yaml" {
		t.Fatalf("experience file fallback key not read: %q", cfg.ExperienceFile)
	}
	if !cfg.TracingEnabled {
		t.Fatal("tracing not enabled")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown environment", "PORTAL_ENV", "moon"},
		{"zero sample interval", "PORTAL_SAMPLE_INTERVAL_MS", "0"},
		{"negative dwell", "PORTAL_BRIDGE_DWELL_MS", "-5"},
		{"negative cue chain", "PORTAL_CUE_CHAIN", "-1"},
		{"port out of range", "PORTAL_HTTP_PORT", "70000"},
		{"sample rate above one", "PORTAL_TRACING_SAMPLE_RATE", "1.5"},
		{"negative redis db", "PORTAL_REDIS_DB", "-2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected %s=%s to be rejected", tt.key, tt.val)
			}
		})
	}
}

func TestLoadReportsLegacyEnvWarnings(t *testing.T) {
	t.Setenv("TRACING_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.LegacyEnvWarnings) == 0 {
		t.Fatal("expected legacy env warnings")
	}
}

func TestStorageSettings(t *testing.T) {
	t.Setenv("PORTAL_S3_BUCKET", "portal-media")
	t.Setenv("PORTAL_S3_PREFIX", "exso/")
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("PORTAL_S3_USE_PATH_STYLE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	st := cfg.Storage()
	if st.Bucket != "portal-media" || st.Prefix != "exso/" || st.Region != "eu-west-1" || !st.UsePathStyle {
		t.Fatalf("storage = %+v", st)
	}
	if cfg.NodeID == "" || cfg.EventsPrefix != "portal.events" {
		t.Fatalf("node=%q prefix=%q", cfg.NodeID, cfg.EventsPrefix)
	}
}
