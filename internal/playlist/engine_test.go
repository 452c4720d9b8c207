/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playlist

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/bragi_tv/internal/models"
)

type fakeLister struct {
	names []string
	calls int
	err   error
}

func (f *fakeLister) List(ctx context.Context) ([]models.MediaItem, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	items := make([]models.MediaItem, len(f.names))
	for i, n := range f.names {
		items[i] = models.MediaItem{ID: n, Name: n, SourceName: "fake"}
	}
	return items, nil
}

func nextName(t *testing.T, e *Engine) string {
	t.Helper()
	item, err := e.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	return item.Name
}

func TestSequentialOrderAndWrap(t *testing.T) {
	// Listing order is the play order, even when it is not
	// alphabetical by basename.
	src := &fakeLister{names: []string{"b.mp4", "a.mp4", "c.mp4"}}
	e := New(src, models.PlayModeSequential, nil, 1, zerolog.Nop())

	got := []string{nextName(t, e), nextName(t, e), nextName(t, e)}
	want := []string{"b.mp4", "a.mp4", "c.mp4"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("play order = %v, want %v", got, want)
		}
	}
	if src.calls != 1 {
		t.Fatalf("source listed %d times within one deck, want 1", src.calls)
	}

	// Wrap relists and starts over.
	if n := nextName(t, e); n != "b.mp4" {
		t.Errorf("after wrap got %q, want b.mp4", n)
	}
	if src.calls != 2 {
		t.Errorf("source listed %d times after wrap, want 2", src.calls)
	}
}

func TestDeckPicksUpSourceChangesAtBoundary(t *testing.T) {
	src := &fakeLister{names: []string{"a.mp4", "b.mp4"}}
	e := New(src, models.PlayModeSequential, nil, 1, zerolog.Nop())

	nextName(t, e)
	src.names = []string{"a.mp4", "b.mp4", "new.mp4"}
	nextName(t, e)

	if e.Total() != 2 {
		t.Fatalf("deck grew mid-cycle: total = %d, want 2", e.Total())
	}

	nextName(t, e)
	if e.Total() != 3 {
		t.Errorf("after boundary total = %d, want 3", e.Total())
	}
}

func TestShuffleCoversAllItemsPerDeck(t *testing.T) {
	names := []string{"a", "b", "c", "d", "e"}
	src := &fakeLister{names: names}
	e := New(src, models.PlayModeShuffled, nil, 42, zerolog.Nop())

	seen := map[string]int{}
	for range names {
		seen[nextName(t, e)]++
	}
	for _, n := range names {
		if seen[n] != 1 {
			t.Fatalf("item %q played %d times in one deck, want 1 (%v)", n, seen[n], seen)
		}
	}
}

func TestShuffleNoImmediateRepeatAcrossBoundary(t *testing.T) {
	src := &fakeLister{names: []string{"a", "b", "c", "d"}}

	for seed := int64(1); seed <= 50; seed++ {
		e := New(src, models.PlayModeShuffled, nil, seed, zerolog.Nop())
		var last string
		for i := 0; i < 12; i++ {
			n := nextName(t, e)
			if n == last {
				t.Fatalf("seed %d: %q played twice in a row", seed, n)
			}
			last = n
		}
	}
}

func TestShuffleSingleItemRepeats(t *testing.T) {
	src := &fakeLister{names: []string{"only.mp4"}}
	e := New(src, models.PlayModeShuffled, nil, 7, zerolog.Nop())

	for i := 0; i < 3; i++ {
		if n := nextName(t, e); n != "only.mp4" {
			t.Fatalf("got %q, want only.mp4", n)
		}
	}
}

func TestListErrorPropagates(t *testing.T) {
	boom := errors.New("listing failed")
	src := &fakeLister{err: boom}
	e := New(src, models.PlayModeSequential, nil, 1, zerolog.Nop())

	if _, err := e.Next(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("got %v, want listing error", err)
	}

	// A later Next retries the listing instead of caching the failure.
	src.err = nil
	src.names = []string{"a.mp4"}
	if n := nextName(t, e); n != "a.mp4" {
		t.Errorf("after recovery got %q, want a.mp4", n)
	}
}

func TestRestoreResumesAtNamedItem(t *testing.T) {
	src := &fakeLister{names: []string{"a.mp4", "b.mp4", "c.mp4"}}
	e := New(src, models.PlayModeSequential, nil, 1, zerolog.Nop())
	e.Restore("b.mp4", 93.5)

	item, err := e.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if item.Name != "b.mp4" {
		t.Fatalf("resumed at %q, want b.mp4", item.Name)
	}
	if pos := e.ConsumeResumePosition(item); pos != 93.5 {
		t.Errorf("resume position = %v, want 93.5", pos)
	}
	// One-shot.
	if pos := e.ConsumeResumePosition(item); pos != 0 {
		t.Errorf("second consume = %v, want 0", pos)
	}
	if n := nextName(t, e); n != "c.mp4" {
		t.Errorf("after resume got %q, want c.mp4", n)
	}
}

func TestRestoreMissingItemFallsBack(t *testing.T) {
	src := &fakeLister{names: []string{"a.mp4", "b.mp4"}}
	e := New(src, models.PlayModeSequential, nil, 1, zerolog.Nop())
	e.Restore("deleted.mp4", 50)

	item, err := e.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if item.Name != "a.mp4" {
		t.Fatalf("got %q, want deck head a.mp4", item.Name)
	}
	if pos := e.ConsumeResumePosition(item); pos != 0 {
		t.Errorf("position for different item = %v, want 0", pos)
	}
}

func TestJumpTo(t *testing.T) {
	src := &fakeLister{names: []string{"a.mp4", "b.mp4", "c.mp4"}}
	e := New(src, models.PlayModeSequential, nil, 1, zerolog.Nop())
	nextName(t, e)

	if err := e.JumpTo(2); err != nil {
		t.Fatalf("JumpTo: %v", err)
	}
	if n := nextName(t, e); n != "c.mp4" {
		t.Errorf("after jump got %q, want c.mp4", n)
	}

	if err := e.JumpTo(5); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("JumpTo(5) = %v, want ErrIndexOutOfRange", err)
	}
	if err := e.JumpTo(-1); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("JumpTo(-1) = %v, want ErrIndexOutOfRange", err)
	}
}

func TestReloadForcesRelist(t *testing.T) {
	src := &fakeLister{names: []string{"a.mp4", "b.mp4", "c.mp4"}}
	e := New(src, models.PlayModeSequential, nil, 1, zerolog.Nop())
	nextName(t, e)

	src.names = []string{"x.mp4", "y.mp4"}
	e.Reload()

	if n := nextName(t, e); n != "x.mp4" {
		t.Errorf("after reload got %q, want x.mp4", n)
	}
	if src.calls != 2 {
		t.Errorf("source listed %d times, want 2", src.calls)
	}
}

type cachingLister struct {
	fakeLister
	invalidations int
}

func (c *cachingLister) InvalidateListing() { c.invalidations++ }

func TestReloadInvalidatesSourceCache(t *testing.T) {
	src := &cachingLister{fakeLister: fakeLister{names: []string{"a.mp4"}}}
	e := New(src, models.PlayModeSequential, nil, 1, zerolog.Nop())
	nextName(t, e)

	e.Reload()
	if src.invalidations != 1 {
		t.Fatalf("invalidations = %d, want 1", src.invalidations)
	}

	// Exhaustion relists without dropping the cache.
	nextName(t, e)
	nextName(t, e)
	if src.invalidations != 1 {
		t.Errorf("boundary relist invalidated cache: %d, want 1", src.invalidations)
	}
}

func TestSnapshotMarksCurrent(t *testing.T) {
	src := &fakeLister{names: []string{"a.mp4", "b.mp4", "c.mp4"}}
	e := New(src, models.PlayModeSequential, nil, 1, zerolog.Nop())
	nextName(t, e)
	nextName(t, e)

	entries := e.Snapshot()
	if len(entries) != 3 {
		t.Fatalf("snapshot has %d entries, want 3", len(entries))
	}
	for _, entry := range entries {
		wantCurrent := entry.Name == "b.mp4"
		if entry.Current != wantCurrent {
			t.Errorf("entry %q current = %v, want %v", entry.Name, entry.Current, wantCurrent)
		}
	}
}
