/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package state persists playback position and play history so an
// unattended restart picks up where the previous run stopped.
package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/friendsincode/bragi_tv/internal/models"
)

// Store is the gorm-backed playback state store.
type Store struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewStore creates a store on an already migrated database.
func NewStore(db *gorm.DB, logger zerolog.Logger) *Store {
	return &Store{db: db, logger: logger.With().Str("component", "state").Logger()}
}

// SaveProgress upserts the resume point for a channel.
func (s *Store) SaveProgress(ctx context.Context, channel, itemName string, position float64) error {
	row := models.PlaybackState{
		ID:              uuid.NewString(),
		Channel:         channel,
		ItemName:        itemName,
		PositionSeconds: position,
		UpdatedAt:       time.Now(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "channel"}},
		DoUpdates: clause.Assignments(map[string]any{
			"item_name":        itemName,
			"position_seconds": position,
			"updated_at":       row.UpdatedAt,
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save playback state: %w", err)
	}
	return nil
}

// LoadProgress returns the saved resume point, or ok=false when the
// channel has no saved state.
func (s *Store) LoadProgress(ctx context.Context, channel string) (itemName string, position float64, ok bool, err error) {
	var row models.PlaybackState
	err = s.db.WithContext(ctx).Where("channel = ?", channel).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, fmt.Errorf("load playback state: %w", err)
	}
	return row.ItemName, row.PositionSeconds, true, nil
}

// RecordPlay appends one row of play history.
func (s *Store) RecordPlay(ctx context.Context, rec models.PlayRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("record play: %w", err)
	}
	return nil
}

// RecentPlays returns the newest play records for a channel.
func (s *Store) RecentPlays(ctx context.Context, channel string, limit int) ([]models.PlayRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var recs []models.PlayRecord
	err := s.db.WithContext(ctx).
		Where("channel = ?", channel).
		Order("started_at DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("query play history: %w", err)
	}
	return recs, nil
}
