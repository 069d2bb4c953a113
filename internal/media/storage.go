/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/rs/zerolog"
)

var (
	// ErrAssetMissing indicates a catalog source is not present in storage.
	ErrAssetMissing = errors.New("media asset missing")

	// ErrNoStorage indicates neither a media root nor a bucket is configured.
	ErrNoStorage = errors.New("media storage not configured")
)

// URLPrefix is the path under which the portal serves catalog sources.
const URLPrefix = "/media/"

// Object describes a stored asset.
type Object struct {
	Size        int64
	ContentType string
}

// Storage resolves catalog sources against where the media actually lives.
type Storage interface {
	Stat(ctx context.Context, source string) (Object, error)
	URL(source string) string
	CheckAccess(ctx context.Context) error
}

// StorageConfig selects and configures a storage backend.
type StorageConfig struct {
	MediaRoot string

	Bucket          string
	Region          string
	Endpoint        string
	Prefix          string
	PublicBaseURL   string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// Enabled reports whether any backend is configured.
func (c StorageConfig) Enabled() bool {
	return c.Bucket != "" || c.MediaRoot != ""
}

// NewStorage builds S3 storage when a bucket is configured, filesystem storage
// when only a media root is, and returns ErrNoStorage otherwise.
func NewStorage(ctx context.Context, cfg StorageConfig, logger zerolog.Logger) (Storage, error) {
	logger = logger.With().Str("component", "storage").Logger()
	switch {
	case cfg.Bucket != "":
		if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
			logger.Debug().Msg("no static S3 credentials, using the default AWS chain")
		}
		st, err := NewS3Storage(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("initialize S3 storage: %w", err)
		}
		return st, nil
	case cfg.MediaRoot != "":
		return NewFilesystemStorage(cfg.MediaRoot, logger), nil
	}
	return nil, ErrNoStorage
}

// External reports whether source points outside the portal's own storage.
func External(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// objectKey maps a catalog source such as "/media/intro.wav" to a key
// relative to the storage root.
func objectKey(source string) string {
	clean := path.Clean("/" + source)
	if strings.HasPrefix(clean, URLPrefix) {
		return clean[len(URLPrefix):]
	}
	return strings.TrimPrefix(clean, "/")
}

// AssetStatus is the preflight result for one catalog entry.
type AssetStatus struct {
	ID          string `json:"id"`
	Source      string `json:"source"`
	URL         string `json:"url"`
	Available   bool   `json:"available"`
	External    bool   `json:"external,omitempty"`
	Size        int64  `json:"size,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Preflight checks every catalog asset against storage. External sources are
// reported but not fetched.
func Preflight(ctx context.Context, st Storage, assets []Asset) []AssetStatus {
	out := make([]AssetStatus, 0, len(assets))
	for _, a := range assets {
		status := AssetStatus{ID: a.ID, Source: a.Source, URL: a.Source}
		switch {
		case External(a.Source):
			status.External = true
		case ctx.Err() != nil:
			status.Error = ctx.Err().Error()
		default:
			status.URL = st.URL(a.Source)
			obj, err := st.Stat(ctx, a.Source)
			if err != nil {
				status.Error = err.Error()
				break
			}
			status.Available = true
			status.Size = obj.Size
			status.ContentType = obj.ContentType
		}
		out = append(out, status)
	}
	return out
}

// Missing returns the ids of assets that were checked and not found.
func Missing(statuses []AssetStatus) []string {
	var ids []string
	for _, s := range statuses {
		if !s.Available && !s.External {
			ids = append(ids, s.ID)
		}
	}
	return ids
}
