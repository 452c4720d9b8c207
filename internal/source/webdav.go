/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package source

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/studio-b12/gowebdav"

	"github.com/friendsincode/bragi_tv/internal/config"
	"github.com/friendsincode/bragi_tv/internal/models"
)

// WebDAV lists and resolves media on an authenticated WebDAV share.
// Listings are cached for a bounded TTL; resolved URLs are built fresh
// per playback and never cached, since a stale URL may expire between
// listing and play time.
type WebDAV struct {
	endpoint   string
	root       string
	authValue  string
	extensions map[string]struct{}
	recursive  bool
	ttl        time.Duration
	client     *gowebdav.Client
	logger     zerolog.Logger

	mu       sync.Mutex
	cached   []models.MediaItem
	cachedAt time.Time
}

// NewWebDAV creates a WebDAV source. Credentials are held read-only
// after construction.
func NewWebDAV(cfg config.SourceConfig, ttl time.Duration, logger zerolog.Logger) *WebDAV {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")

	client := gowebdav.NewClient(endpoint, cfg.Username, cfg.Password)
	client.SetTimeout(30 * time.Second)

	root := cfg.Path
	if root == "" {
		root = "/"
	}

	credentials := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))

	return &WebDAV{
		endpoint:   endpoint,
		root:       root,
		authValue:  "Basic " + credentials,
		extensions: extensionSet(cfg.Extensions),
		recursive:  cfg.Recursive,
		ttl:        ttl,
		client:     client,
		logger:     logger.With().Str("component", "source").Str("source", "webdav").Logger(),
	}
}

// Name identifies the adapter.
func (w *WebDAV) Name() string { return "webdav:" + w.endpoint + w.root }

// List returns the cached listing while it is fresh, otherwise scans
// the share. A scan failure is transient: the error surfaces and the
// caller retries after a delay.
func (w *WebDAV) List(ctx context.Context) ([]models.MediaItem, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cached != nil && time.Since(w.cachedAt) < w.ttl {
		return append([]models.MediaItem(nil), w.cached...), nil
	}

	generation := uuid.NewString()
	items, err := w.scan(ctx, w.root, generation)
	if err != nil {
		return nil, fmt.Errorf("%w: scan %s: %v", ErrSourceUnavailable, w.root, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: %s%s", ErrSourceEmpty, w.endpoint, w.root)
	}

	w.cached = items
	w.cachedAt = time.Now()

	w.logger.Info().Str("path", w.root).Int("items", len(items)).Msg("listed remote media")
	return append([]models.MediaItem(nil), items...), nil
}

func (w *WebDAV) scan(ctx context.Context, dir, generation string) ([]models.MediaItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := w.client.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	var items []models.MediaItem
	for _, entry := range entries {
		full := path.Join(dir, entry.Name())

		if entry.IsDir() {
			if !w.recursive {
				continue
			}
			sub, err := w.scan(ctx, full, generation)
			if err != nil {
				return nil, err
			}
			items = append(items, sub...)
			continue
		}

		if _, ok := w.extensions[strings.ToLower(path.Ext(entry.Name()))]; !ok {
			continue
		}

		items = append(items, models.MediaItem{
			ID:         full,
			Name:       entry.Name(),
			SourceName: w.Name(),
			Generation: generation,
			SizeBytes:  entry.Size(),
		})
	}
	return items, nil
}

// Resolve re-checks that the item still exists on the share and builds
// a fresh authenticated stream URL for this playback only.
func (w *WebDAV) Resolve(ctx context.Context, item models.MediaItem) (Input, error) {
	if _, err := w.client.Stat(item.ID); err != nil {
		return Input{}, fmt.Errorf("%w: %s: %v", ErrItemUnresolvable, item.Name, err)
	}

	return Input{
		URL:     w.itemURL(item.ID),
		Headers: map[string]string{"Authorization": w.authValue},
		Remote:  true,
	}, nil
}

// CheckAccess performs a listing of the configured root.
func (w *WebDAV) CheckAccess(ctx context.Context) error {
	if _, err := w.client.ReadDir(w.root); err != nil {
		return fmt.Errorf("cannot access %s%s: %w", w.endpoint, w.root, err)
	}
	return nil
}

// InvalidateListing drops the cached listing so the next List scans.
func (w *WebDAV) InvalidateListing() {
	w.mu.Lock()
	w.cached = nil
	w.mu.Unlock()
}

// itemURL joins the endpoint with the percent-encoded remote key.
func (w *WebDAV) itemURL(key string) string {
	if !strings.HasPrefix(key, "/") {
		key = "/" + key
	}
	escaped := (&url.URL{Path: key}).EscapedPath()
	return w.endpoint + escaped
}
