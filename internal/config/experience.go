/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/friendsincode/receiver_portal/internal/media"
	"github.com/friendsincode/receiver_portal/internal/timeline"
)

// ErrInvalidExperience reports a malformed experience file.
var ErrInvalidExperience = errors.New("invalid experience")

// Experience is the content configuration: checkpoint table and media catalog.
type Experience struct {
	Timeline timeline.Table `yaml:"timeline" toml:"timeline" json:"timeline"`
	Assets   []media.Asset  `yaml:"assets" toml:"assets" json:"assets"`
}

// DefaultExperience returns the stock experience.
func DefaultExperience() Experience {
	return Experience{
		Timeline: timeline.Default(),
		Assets:   media.DefaultAssets(),
	}
}

// LoadExperience reads path and merges it over the defaults. An empty path
// returns the defaults. Files ending in .toml are parsed as TOML, everything
// else as YAML.
func LoadExperience(path string) (Experience, error) {
	if path == "" {
		return DefaultExperience(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Experience{}, fmt.Errorf("read experience: %w", err)
	}
	return ParseExperience(data, strings.ToLower(filepath.Ext(path)) == ".toml")
}

// ParseExperience decodes an experience document and merges it over the
// defaults.
func ParseExperience(data []byte, isTOML bool) (Experience, error) {
	var file Experience
	var err error
	if isTOML {
		err = toml.Unmarshal(data, &file)
	} else {
		err = yaml.Unmarshal(data, &file)
	}
	if err != nil {
		return Experience{}, fmt.Errorf("%w: decode: %v", ErrInvalidExperience, err)
	}

	exp := merge(DefaultExperience(), file)
	if err := exp.Validate(); err != nil {
		return Experience{}, err
	}
	return exp, nil
}

func merge(base, over Experience) Experience {
	if len(over.Timeline.Checkpoints) > 0 {
		base.Timeline.Checkpoints = over.Timeline.Checkpoints
	}
	th := over.Timeline.Thresholds
	if th.CueResetBelow != 0 {
		base.Timeline.CueResetBelow = th.CueResetBelow
	}
	if th.FinaleResume != 0 {
		base.Timeline.FinaleResume = th.FinaleResume
	}
	if th.GuestResume != 0 {
		base.Timeline.GuestResume = th.GuestResume
	}

	index := make(map[string]int, len(base.Assets))
	for i, a := range base.Assets {
		index[a.ID] = i
	}
	for _, a := range over.Assets {
		i, ok := index[a.ID]
		if !ok {
			index[a.ID] = len(base.Assets)
			base.Assets = append(base.Assets, a)
			continue
		}
		if a.Source != "" {
			base.Assets[i].Source = a.Source
		}
		if a.Duration != 0 {
			base.Assets[i].Duration = a.Duration
		}
	}
	return base
}

// Validate checks the table and the catalog.
func (e Experience) Validate() error {
	if err := e.Timeline.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidExperience, err)
	}
	seen := make(map[string]bool, len(e.Assets))
	for _, a := range e.Assets {
		if a.ID == "" {
			return fmt.Errorf("%w: asset without id", ErrInvalidExperience)
		}
		if seen[a.ID] {
			return fmt.Errorf("%w: duplicate asset %q", ErrInvalidExperience, a.ID)
		}
		seen[a.ID] = true
		if a.Duration < 0 {
			return fmt.Errorf("%w: asset %q has negative duration", ErrInvalidExperience, a.ID)
		}
	}
	if !seen[media.ElementPrimary] {
		return fmt.Errorf("%w: missing %q asset", ErrInvalidExperience, media.ElementPrimary)
	}
	for _, cue := range e.Timeline.Cues() {
		if !seen[media.CueElement(cue.Channel)] {
			return fmt.Errorf("%w: cue %q has no %q asset", ErrInvalidExperience, cue.ID, media.CueElement(cue.Channel))
		}
	}
	return nil
}
