/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version reports the build version and checks for newer releases.
package version

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Version is set at build time via ldflags:
//
//	-X github.com/friendsincode/receiver_portal/internal/version.Version=X.Y.Z
var Version = "0.4.0"

// Repo is the GitHub repository releases are checked against.
const Repo = "friendsincode/receiver_portal"

const defaultAPI = "https://api.github.com"

// UpdateInfo describes the latest known release.
type UpdateInfo struct {
	CurrentVersion  string    `json:"current_version"`
	LatestVersion   string    `json:"latest_version,omitempty"`
	UpdateAvailable bool      `json:"update_available"`
	ReleaseURL      string    `json:"release_url,omitempty"`
	CheckedAt       time.Time `json:"checked_at,omitempty"`
}

type release struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// Checker polls the release API.
type Checker struct {
	api    string
	period time.Duration
	client *http.Client
	logger zerolog.Logger

	mu   sync.RWMutex
	info UpdateInfo
}

// NewChecker creates a checker against the public GitHub API.
func NewChecker(logger zerolog.Logger) *Checker {
	return newChecker(defaultAPI, 6*time.Hour, logger)
}

func newChecker(api string, period time.Duration, logger zerolog.Logger) *Checker {
	return &Checker{
		api:    strings.TrimRight(api, "/"),
		period: period,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger.With().Str("component", "update-checker").Logger(),
		info:   UpdateInfo{CurrentVersion: Version},
	}
}

// Run checks immediately and then every period until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.period)
	defer ticker.Stop()
	for {
		if err := c.Check(ctx); err != nil {
			c.logger.Debug().Err(err).Msg("release check failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Info returns the latest check result.
func (c *Checker) Info() UpdateInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info
}

// Check fetches the latest release once.
func (c *Checker) Check(ctx context.Context) error {
	url := fmt.Sprintf("%s/repos/%s/releases/latest", c.api, Repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "receiver-portal/"+Version)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("release api status %d", resp.StatusCode)
	}

	var rel release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return fmt.Errorf("decode release: %w", err)
	}

	latest := strings.TrimPrefix(rel.TagName, "v")
	info := UpdateInfo{
		CurrentVersion:  Version,
		LatestVersion:   latest,
		UpdateAvailable: Compare(Version, latest) < 0,
		ReleaseURL:      rel.HTMLURL,
		CheckedAt:       time.Now().UTC(),
	}
	c.mu.Lock()
	c.info = info
	c.mu.Unlock()

	if info.UpdateAvailable {
		c.logger.Info().Str("current", Version).Str("latest", latest).Msg("new version available")
	}
	return nil
}

// Compare orders two semver strings: -1 if a < b, 0 if equal, 1 if a > b.
// Pre-release suffixes are ignored.
func Compare(a, b string) int {
	pa, pb := parse(a), parse(b)
	for i := range pa {
		switch {
		case pa[i] < pb[i]:
			return -1
		case pa[i] > pb[i]:
			return 1
		}
	}
	return 0
}

func parse(v string) [3]int {
	v = strings.TrimPrefix(v, "v")
	v, _, _ = strings.Cut(v, "-")
	var out [3]int
	for i, part := range strings.SplitN(v, ".", 3) {
		out[i], _ = strconv.Atoi(part)
	}
	return out
}
