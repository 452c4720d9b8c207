/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package models defines the shared data types of the broadcast core.
package models

import "time"

// PlayMode selects the playlist ordering strategy.
type PlayMode string

const (
	PlayModeSequential PlayMode = "sequential"
	PlayModeShuffled   PlayMode = "shuffled"
)

// MediaItem is a single playable entry produced by a source listing.
// Items are transient: a fresh listing produces a new generation and
// items are re-resolved through their source on every playback.
type MediaItem struct {
	// ID is the local path or remote key of the item.
	ID string `json:"id"`
	// Name is the human-readable file name.
	Name string `json:"name"`
	// SourceName identifies the adapter that listed the item, for
	// re-resolution. The item does not own the adapter.
	SourceName string `json:"source_name"`
	// Generation ties the item to the listing that produced it.
	Generation string `json:"generation"`
	// SizeBytes is a listing hint and may be zero for remote items.
	SizeBytes int64 `json:"size_bytes,omitempty"`
}

// Phase enumerates the supervisor lifecycle states.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseStarting     Phase = "starting"
	PhaseStreaming    Phase = "streaming"
	PhaseCompleted    Phase = "completed"
	PhaseCrashed      Phase = "crashed"
	PhaseReconnecting Phase = "reconnecting"
	PhaseStopping     Phase = "stopping"
	PhaseStopped      Phase = "stopped"
)

// StreamProgress carries the metrics parsed from the transcoder's
// diagnostic output while an item is streaming.
type StreamProgress struct {
	DurationSeconds float64 `json:"duration_seconds"`
	PositionSeconds float64 `json:"position_seconds"`
	Percent         float64 `json:"percent"`
	Bitrate         string  `json:"bitrate"`
	Speed           string  `json:"speed"`
}

// StatusSnapshot is the read-only supervisor state exposed to the
// control surface. It is copied under the supervisor's lock; consumers
// never observe partial updates.
type StatusSnapshot struct {
	Phase               Phase          `json:"phase"`
	Running             bool           `json:"running"`
	ActiveItemName      string         `json:"active_item_name"`
	ConsecutiveFailures int            `json:"consecutive_failures"`
	LastError           string         `json:"last_error,omitempty"`
	StartedAt           time.Time      `json:"started_at,omitempty"`
	UptimeSeconds       int64          `json:"uptime_seconds"`
	ItemsPlayed         int64          `json:"items_played"`
	PlaylistTotal       int            `json:"playlist_total"`
	Progress            StreamProgress `json:"progress"`
}

// PlaylistEntry is the panel-facing summary of one deck position.
type PlaylistEntry struct {
	Index   int    `json:"index"`
	Name    string `json:"name"`
	Current bool   `json:"current"`
}

// PlaybackState persists the resume point for one broadcast channel so
// an unattended restart continues where the previous run stopped.
type PlaybackState struct {
	ID              string    `gorm:"primaryKey" json:"id"`
	Channel         string    `gorm:"uniqueIndex" json:"channel"`
	ItemName        string    `json:"item_name"`
	PositionSeconds float64   `json:"position_seconds"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// PlayRecord is one row of play history.
type PlayRecord struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	Channel    string    `gorm:"index" json:"channel"`
	ItemName   string    `json:"item_name"`
	SourceName string    `json:"source_name"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
	Outcome    string    `json:"outcome"` // completed, crashed, skipped
	ExitDetail string    `json:"exit_detail,omitempty"`
}
