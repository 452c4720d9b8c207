/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package source abstracts where media files live (local disk, remote
// WebDAV storage) behind one listing/resolution contract.
package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/friendsincode/bragi_tv/internal/config"
	"github.com/friendsincode/bragi_tv/internal/models"
)

var (
	// ErrSourceUnavailable indicates a transient connectivity or auth
	// failure. Callers retry after a delay; it never crashes the loop.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrSourceEmpty indicates a successful listing with zero playable
	// items. Recoverable and reportable, not fatal.
	ErrSourceEmpty = errors.New("source has no playable items")

	// ErrItemUnresolvable indicates the item vanished between listing
	// and resolution. Callers skip to the next item.
	ErrItemUnresolvable = errors.New("item unresolvable")
)

// Input is a locally consumable playback reference: a filesystem path
// or an authenticated URL plus the headers the transcoder must send.
type Input struct {
	URL     string
	Headers map[string]string
	Remote  bool
}

// Source lists media items and resolves them into playable inputs.
// Implementations own no items; listings are transient and items are
// re-resolved on each playback to tolerate listing drift.
type Source interface {
	// Name identifies the adapter in items and logs.
	Name() string
	// List enumerates playable items in a stable order.
	List(ctx context.Context) ([]models.MediaItem, error)
	// Resolve turns a listed item into a playable input, re-checking
	// that the item still exists.
	Resolve(ctx context.Context, item models.MediaItem) (Input, error)
	// CheckAccess verifies the backing store is reachable.
	CheckAccess(ctx context.Context) error
}

// New creates the configured source adapter.
func New(cfg *config.Config, logger zerolog.Logger) (Source, error) {
	switch cfg.Source.Type {
	case config.SourceLocal:
		return NewLocal(cfg.Source, logger), nil
	case config.SourceWebDAV:
		return NewWebDAV(cfg.Source, cfg.ListingTTL(), logger), nil
	default:
		return nil, fmt.Errorf("unknown source type %q", cfg.Source.Type)
	}
}

// extensionSet builds a lowercase lookup set of accepted extensions.
func extensionSet(extensions []string) map[string]struct{} {
	set := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		set[strings.ToLower(ext)] = struct{}{}
	}
	return set
}
