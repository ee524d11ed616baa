/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"errors"

	"github.com/slinkd/jukebox/internal/models"
	"gorm.io/gorm"
)

// Migrate applies database schema migrations using GORM auto-migrate and
// seeds the singleton playback state row.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		&models.Disc{},
		&models.Track{},
		&models.PlaybackState{},
		&models.Command{},
		&models.TrackPlay{},
	); err != nil {
		return err
	}

	return seedPlaybackState(database)
}

// seedPlaybackState ensures the single playback_state row exists. The state
// machine unconditionally updates row 1, so it must be present from the start.
func seedPlaybackState(database *gorm.DB) error {
	var state models.PlaybackState
	err := database.First(&state, 1).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	state = models.PlaybackState{ID: 1, State: models.StateStop}
	return database.Create(&state).Error
}
