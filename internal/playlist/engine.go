/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playlist

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/bragi_tv/internal/events"
	"github.com/friendsincode/bragi_tv/internal/models"
)

// ErrIndexOutOfRange indicates a jump target outside the current deck.
var ErrIndexOutOfRange = errors.New("playlist index out of range")

// Engine owns the playback order. It holds one deck of items listed
// from the source and a cursor into it. The deck is only rebuilt when
// the cursor runs off the end or a reload is requested, so additions
// and removals on the source surface at deck boundaries.
type Engine struct {
	source Lister
	mode   models.PlayMode
	bus    *events.Bus
	rng    *rand.Rand
	logger zerolog.Logger

	mu        sync.Mutex
	deck      []models.MediaItem
	cursor    int
	current   int // index of the last item handed out, -1 before first play
	lastName  string
	reload    bool
	resume    resumeState
}

// Lister is the slice of the source adapter the engine needs.
type Lister interface {
	List(ctx context.Context) ([]models.MediaItem, error)
}

type resumeState struct {
	name    string
	seconds float64
	pending bool
}

// New creates a playlist engine. The seed only matters for shuffled
// mode and is exposed for tests.
func New(source Lister, mode models.PlayMode, bus *events.Bus, seed int64, logger zerolog.Logger) *Engine {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Engine{
		source:  source,
		mode:    mode,
		bus:     bus,
		rng:     rand.New(rand.NewSource(seed)),
		current: -1,
		logger:  logger.With().Str("component", "playlist").Logger(),
	}
}

// Restore arms a one-shot resume target. The next deck build moves the
// cursor to the named item if it still exists; the saved position is
// handed out once via ConsumeResumePosition.
func (e *Engine) Restore(name string, seconds float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if name == "" {
		return
	}
	e.resume = resumeState{name: name, seconds: seconds, pending: true}
}

// Next advances the cursor and returns the item to play. When the deck
// is exhausted it relists the source first; listing errors propagate
// unchanged so the caller can tell unavailable from empty.
func (e *Engine) Next(ctx context.Context) (models.MediaItem, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.reload || e.cursor >= len(e.deck) {
		if err := e.rebuild(ctx); err != nil {
			return models.MediaItem{}, err
		}
	}

	item := e.deck[e.cursor]
	e.current = e.cursor
	e.cursor++
	e.lastName = item.Name
	return item, nil
}

// ConsumeResumePosition returns the saved offset for the item if it is
// the armed resume target, exactly once.
func (e *Engine) ConsumeResumePosition(item models.MediaItem) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.resume.pending || e.resume.name != item.Name {
		return 0
	}
	e.resume.pending = false
	return e.resume.seconds
}

// JumpTo moves the cursor so the next Next returns the entry at index.
func (e *Engine) JumpTo(index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if index < 0 || index >= len(e.deck) {
		return ErrIndexOutOfRange
	}
	e.cursor = index
	e.resume.pending = false
	return nil
}

// Reload forces a relisting before the next item is handed out.
// Sources that cache listings get their cache dropped so the relist
// actually hits the backend.
func (e *Engine) Reload() {
	e.mu.Lock()
	if inv, ok := e.source.(interface{ InvalidateListing() }); ok {
		inv.InvalidateListing()
	}
	e.reload = true
	e.mu.Unlock()
	e.logger.Info().Msg("playlist reload requested")
}

// Total returns the current deck size.
func (e *Engine) Total() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.deck)
}

// Snapshot returns the deck in play order with the active entry marked.
func (e *Engine) Snapshot() []models.PlaylistEntry {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries := make([]models.PlaylistEntry, len(e.deck))
	for i, item := range e.deck {
		entries[i] = models.PlaylistEntry{
			Index:   i,
			Name:    item.Name,
			Current: i == e.current,
		}
	}
	return entries
}

// rebuild relists the source and lays out a fresh deck. Caller holds mu.
func (e *Engine) rebuild(ctx context.Context) error {
	items, err := e.source.List(ctx)
	if err != nil {
		return err
	}

	// Sequential mode keeps the adapter's listing order untouched.
	if e.mode == models.PlayModeShuffled {
		e.rng.Shuffle(len(items), func(i, j int) {
			items[i], items[j] = items[j], items[i]
		})
		// Avoid replaying the previous tail straight away across the
		// deck boundary.
		if len(items) > 1 && items[0].Name == e.lastName {
			j := 1 + e.rng.Intn(len(items)-1)
			items[0], items[j] = items[j], items[0]
		}
	}

	e.deck = items
	e.cursor = 0
	e.current = -1
	e.reload = false

	if e.resume.pending {
		found := false
		for i, item := range e.deck {
			if item.Name == e.resume.name {
				e.cursor = i
				found = true
				break
			}
		}
		if !found {
			e.logger.Warn().Str("item", e.resume.name).Msg("resume target no longer listed, starting from deck head")
			e.resume.pending = false
		}
	}

	if e.bus != nil {
		e.bus.Publish(events.EventPlaylistReloaded, events.Payload{
			"items": len(e.deck),
			"mode":  string(e.mode),
		})
	}
	e.logger.Info().Int("items", len(e.deck)).Str("mode", string(e.mode)).Msg("playlist deck rebuilt")
	return nil
}
