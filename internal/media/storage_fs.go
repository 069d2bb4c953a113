/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// FilesystemStorage resolves sources under a local media root.
type FilesystemStorage struct {
	rootDir string
	logger  zerolog.Logger
}

// NewFilesystemStorage creates a filesystem-based storage backend.
func NewFilesystemStorage(rootDir string, logger zerolog.Logger) *FilesystemStorage {
	return &FilesystemStorage{
		rootDir: rootDir,
		logger:  logger,
	}
}

// Root returns the media root directory.
func (fs *FilesystemStorage) Root() string {
	return fs.rootDir
}

// Stat reports the size and type of the file behind source.
func (fs *FilesystemStorage) Stat(ctx context.Context, source string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	fullPath := filepath.Join(fs.rootDir, filepath.FromSlash(objectKey(source)))
	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Object{}, fmt.Errorf("%w: %s", ErrAssetMissing, source)
		}
		return Object{}, fmt.Errorf("stat media: %w", err)
	}
	if info.IsDir() {
		return Object{}, fmt.Errorf("%w: %s is a directory", ErrAssetMissing, source)
	}

	fs.logger.Debug().Str("path", fullPath).Int64("size", info.Size()).Msg("filesystem storage: asset found")
	return Object{Size: info.Size(), ContentType: mime.TypeByExtension(filepath.Ext(fullPath))}, nil
}

// URL returns the source unchanged; the portal serves the media root itself.
func (fs *FilesystemStorage) URL(source string) string {
	return source
}

// CheckAccess verifies the storage directory exists and is accessible.
func (fs *FilesystemStorage) CheckAccess(ctx context.Context) error {
	info, err := os.Stat(fs.rootDir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("media root directory does not exist: %s", fs.rootDir)
		}
		return fmt.Errorf("cannot access media root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("media root is not a directory: %s", fs.rootDir)
	}
	return nil
}
