/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/friendsincode/receiver_portal/internal/media"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment    string
	HTTPBind       string
	HTTPPort       int
	ExperienceFile string // YAML or TOML file overriding the timeline and assets
	LogBufferSize  int
	MaxSessions    int
	UpdateCheck    bool // poll GitHub releases in the background

	// Session loop and flow timings
	SampleInterval    time.Duration
	SeekReveal        time.Duration
	SeekSettleTimeout time.Duration
	KeyScan           time.Duration
	CueChain          int

	// Bridge clip timings
	BridgeSafetyTimeout time.Duration
	BridgeDwell         time.Duration
	BridgeVeilLead      time.Duration

	// Media storage checked by the asset preflight. S3 wins when a bucket is set.
	MediaRoot         string
	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3Prefix          string
	S3PublicBaseURL   string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3UsePathStyle    bool

	// Event export
	NodeID        string
	EventsPrefix  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	NATSURL       string
	NATSToken     string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	LegacyEnvWarnings []string
}

var environments = map[string]bool{
	"development": true,
	"staging":     true,
	"production":  true,
	"test":        true,
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:    getEnvAny([]string{"PORTAL_ENV", "RECEIVER_ENV"}, "development"),
		HTTPBind:       getEnvAny([]string{"PORTAL_HTTP_BIND", "RECEIVER_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:       getEnvIntAny([]string{"PORTAL_HTTP_PORT", "RECEIVER_HTTP_PORT"}, 8080),
		ExperienceFile: getEnvAny([]string{"PORTAL_EXPERIENCE_FILE", "RECEIVER_EXPERIENCE_FILE"}, ""),
		LogBufferSize:  getEnvIntAny([]string{"PORTAL_LOG_BUFFER_SIZE"}, 5000),
		MaxSessions:    getEnvIntAny([]string{"PORTAL_MAX_SESSIONS"}, 64),
		UpdateCheck:    getEnvBoolAny([]string{"PORTAL_UPDATE_CHECK"}, false),

		SampleInterval:    getEnvMillisAny([]string{"PORTAL_SAMPLE_INTERVAL_MS"}, 250),
		SeekReveal:        getEnvMillisAny([]string{"PORTAL_SEEK_REVEAL_MS"}, 180),
		SeekSettleTimeout: getEnvMillisAny([]string{"PORTAL_SEEK_SETTLE_TIMEOUT_MS"}, 1500),
		KeyScan:           getEnvMillisAny([]string{"PORTAL_KEY_SCAN_MS"}, 2000),
		CueChain:          getEnvIntAny([]string{"PORTAL_CUE_CHAIN"}, 3),

		BridgeSafetyTimeout: getEnvMillisAny([]string{"PORTAL_BRIDGE_SAFETY_TIMEOUT_MS"}, 12000),
		BridgeDwell:         getEnvMillisAny([]string{"PORTAL_BRIDGE_DWELL_MS"}, 1600),
		BridgeVeilLead:      getEnvMillisAny([]string{"PORTAL_BRIDGE_VEIL_LEAD_MS"}, 3000),

		MediaRoot:         getEnvAny([]string{"PORTAL_MEDIA_ROOT", "RECEIVER_MEDIA_ROOT"}, ""),
		S3Bucket:          getEnvAny([]string{"PORTAL_S3_BUCKET"}, ""),
		S3Region:          getEnvAny([]string{"PORTAL_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Endpoint:        getEnvAny([]string{"PORTAL_S3_ENDPOINT"}, ""),
		S3Prefix:          getEnvAny([]string{"PORTAL_S3_PREFIX"}, ""),
		S3PublicBaseURL:   getEnvAny([]string{"PORTAL_S3_PUBLIC_BASE_URL"}, ""),
		S3AccessKeyID:     getEnvAny([]string{"PORTAL_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"PORTAL_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3UsePathStyle:    getEnvBoolAny([]string{"PORTAL_S3_USE_PATH_STYLE"}, false),

		NodeID:        getEnvAny([]string{"PORTAL_NODE_ID"}, defaultNodeID()),
		EventsPrefix:  getEnvAny([]string{"PORTAL_EVENTS_PREFIX"}, "portal.events"),
		RedisAddr:     getEnvAny([]string{"PORTAL_REDIS_ADDR"}, ""),
		RedisPassword: getEnvAny([]string{"PORTAL_REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"PORTAL_REDIS_DB"}, 0),
		NATSURL:       getEnvAny([]string{"PORTAL_NATS_URL"}, ""),
		NATSToken:     getEnvAny([]string{"PORTAL_NATS_TOKEN"}, ""),

		// Tracing configuration
		TracingEnabled:    getEnvBoolAny([]string{"PORTAL_TRACING_ENABLED", "RECEIVER_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"PORTAL_OTLP_ENDPOINT", "RECEIVER_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"PORTAL_TRACING_SAMPLE_RATE", "RECEIVER_TRACING_SAMPLE_RATE"}, 1.0),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

// Validate checks ranges and known values.
func (c *Config) Validate() error {
	if !environments[strings.ToLower(c.Environment)] {
		return fmt.Errorf("unknown environment %q", c.Environment)
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("PORTAL_HTTP_PORT out of range: %d", c.HTTPPort)
	}
	if c.MaxSessions <= 0 {
		return fmt.Errorf("PORTAL_MAX_SESSIONS must be positive")
	}
	if c.CueChain < 0 {
		return fmt.Errorf("PORTAL_CUE_CHAIN must not be negative")
	}

	timings := []struct {
		key string
		val time.Duration
	}{
		{"PORTAL_SAMPLE_INTERVAL_MS", c.SampleInterval},
		{"PORTAL_SEEK_REVEAL_MS", c.SeekReveal},
		{"PORTAL_SEEK_SETTLE_TIMEOUT_MS", c.SeekSettleTimeout},
		{"PORTAL_KEY_SCAN_MS", c.KeyScan},
		{"PORTAL_BRIDGE_SAFETY_TIMEOUT_MS", c.BridgeSafetyTimeout},
		{"PORTAL_BRIDGE_DWELL_MS", c.BridgeDwell},
		{"PORTAL_BRIDGE_VEIL_LEAD_MS", c.BridgeVeilLead},
	}
	for _, t := range timings {
		if t.val <= 0 {
			return fmt.Errorf("%s must be positive", t.key)
		}
	}

	if c.RedisDB < 0 {
		return fmt.Errorf("PORTAL_REDIS_DB must not be negative")
	}
	if c.EventsPrefix == "" && (c.RedisAddr != "" || c.NATSURL != "") {
		return fmt.Errorf("PORTAL_EVENTS_PREFIX must be set when exporting events")
	}

	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		return fmt.Errorf("PORTAL_TRACING_SAMPLE_RATE must be within [0,1]")
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

// Storage returns the media storage settings.
func (c *Config) Storage() media.StorageConfig {
	return media.StorageConfig{
		MediaRoot:       c.MediaRoot,
		Bucket:          c.S3Bucket,
		Region:          c.S3Region,
		Endpoint:        c.S3Endpoint,
		Prefix:          c.S3Prefix,
		PublicBaseURL:   c.S3PublicBaseURL,
		AccessKeyID:     c.S3AccessKeyID,
		SecretAccessKey: c.S3SecretAccessKey,
		UsePathStyle:    c.S3UsePathStyle,
	}
}

func defaultNodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "portal"
	}
	return host
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"ENVIRONMENT":         "use PORTAL_ENV (or RECEIVER_ENV)",
		"TRACING_ENABLED":     "use PORTAL_TRACING_ENABLED",
		"OTLP_ENDPOINT":       "use PORTAL_OTLP_ENDPOINT",
		"TRACING_SAMPLE_RATE": "use PORTAL_TRACING_SAMPLE_RATE",
		"PORTAL_SAMPLE_MS":    "use PORTAL_SAMPLE_INTERVAL_MS",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvMillisAny reads a millisecond count into a duration.
func getEnvMillisAny(keys []string, defMillis int) time.Duration {
	return time.Duration(getEnvIntAny(keys, defMillis)) * time.Millisecond
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
