/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/bragi_tv/internal/config"
	"github.com/friendsincode/bragi_tv/internal/models"
)

// Local enumerates video files under a configured root directory.
type Local struct {
	root       string
	extensions map[string]struct{}
	recursive  bool
	logger     zerolog.Logger
}

// NewLocal creates a local folder source.
func NewLocal(cfg config.SourceConfig, logger zerolog.Logger) *Local {
	return &Local{
		root:       cfg.Path,
		extensions: extensionSet(cfg.Extensions),
		recursive:  cfg.Recursive,
		logger:     logger.With().Str("component", "source").Str("source", "local").Logger(),
	}
}

// Name identifies the adapter.
func (l *Local) Name() string { return "local:" + l.root }

// List walks the root and returns matching files in sorted path order.
func (l *Local) List(ctx context.Context) ([]models.MediaItem, error) {
	if _, err := os.Stat(l.root); err != nil {
		return nil, fmt.Errorf("%w: stat %s: %v", ErrSourceUnavailable, l.root, err)
	}

	generation := uuid.NewString()
	var items []models.MediaItem

	// WalkDir yields lexically sorted entries, which gives the stable
	// listing order sequential mode depends on.
	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if !l.recursive && path != l.root {
				return fs.SkipDir
			}
			return nil
		}
		if _, ok := l.extensions[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}

		var size int64
		if info, err := d.Info(); err == nil {
			size = info.Size()
		}
		items = append(items, models.MediaItem{
			ID:         path,
			Name:       d.Name(),
			SourceName: l.Name(),
			Generation: generation,
			SizeBytes:  size,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: walk %s: %v", ErrSourceUnavailable, l.root, err)
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSourceEmpty, l.root)
	}

	l.logger.Info().Str("root", l.root).Int("items", len(items)).Msg("listed local media")
	return items, nil
}

// Resolve re-checks existence since files may be deleted or moved
// mid-run, then maps the item to its local path.
func (l *Local) Resolve(ctx context.Context, item models.MediaItem) (Input, error) {
	if _, err := os.Stat(item.ID); err != nil {
		return Input{}, fmt.Errorf("%w: %s: %v", ErrItemUnresolvable, item.Name, err)
	}
	return Input{URL: item.ID}, nil
}

// CheckAccess verifies the root exists and is a directory.
func (l *Local) CheckAccess(ctx context.Context) error {
	info, err := os.Stat(l.root)
	if err != nil {
		return fmt.Errorf("cannot access media root %s: %w", l.root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("media root is not a directory: %s", l.root)
	}
	return nil
}
