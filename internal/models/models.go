/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// PlayState enumerates the reported transport states of the changer.
type PlayState string

const (
	StatePlay  PlayState = "play"
	StatePause PlayState = "pause"
	StateStop  PlayState = "stop"

	// StateLoading is surfaced to observers between command issuance and the
	// device's first state report. It is never written to the database.
	StateLoading PlayState = "loading"
)

// Valid reports whether s is a persistable transport state.
func (s PlayState) Valid() bool {
	return s == StatePlay || s == StatePause || s == StateStop
}

// CommandVerb enumerates the transport commands the changer understands.
type CommandVerb string

const (
	CommandPlay     CommandVerb = "play"
	CommandPause    CommandVerb = "pause"
	CommandStop     CommandVerb = "stop"
	CommandNext     CommandVerb = "next"
	CommandPrevious CommandVerb = "previous"
)

// Valid reports whether v is a known transport command.
func (v CommandVerb) Valid() bool {
	switch v {
	case CommandPlay, CommandPause, CommandStop, CommandNext, CommandPrevious:
		return true
	}
	return false
}

// Disc is a catalog entry for one physical CD at a known (player, slot) location.
// player is the hardware unit (1 or 2), position the slot within it (1-300).
type Disc struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	Player         int    `gorm:"uniqueIndex:idx_discs_player_position;index" json:"player"`
	Position       int    `gorm:"uniqueIndex:idx_discs_player_position" json:"position"`
	Artist         string `gorm:"index" json:"artist"`
	Album          string `gorm:"index" json:"album"`
	MusicBrainzID  string `gorm:"column:musicbrainz_id" json:"musicbrainz_id,omitempty"`
	Year           int    `json:"year,omitempty"`
	Genre          string `json:"genre,omitempty"`
	CoverArtPath   string `json:"cover_art_path,omitempty"`
	DurationSec    int    `gorm:"column:duration_seconds" json:"duration_seconds,omitempty"`
	TrackCount     int    `json:"track_count,omitempty"`
	MediumPosition int    `gorm:"default:1" json:"medium_position"`
	LastPlayed     *time.Time `gorm:"index:,sort:desc" json:"last_played,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	Tracks []Track `gorm:"foreignKey:DiscID;constraint:OnDelete:CASCADE" json:"tracks,omitempty"`
}

// Track belongs to exactly one disc. Artist is set only when the track's
// performer differs from the release artist (compilations).
type Track struct {
	ID          uint   `gorm:"primaryKey" json:"-"`
	DiscID      uint   `gorm:"uniqueIndex:idx_tracks_disc_number;index" json:"-"`
	TrackNumber int    `gorm:"uniqueIndex:idx_tracks_disc_number" json:"track_number"`
	Title       string `json:"title"`
	DurationSec int    `gorm:"column:duration_seconds" json:"duration_seconds,omitempty"`
	Artist      string `json:"artist,omitempty"`
}

// PlaybackState is the singleton record of what the hardware is doing.
// Exactly one row (ID = 1); mutated only by device state reports.
type PlaybackState struct {
	ID            int       `gorm:"primaryKey" json:"-"`
	CurrentPlayer int       `json:"current_player"`
	CurrentDisc   int       `json:"current_disc"`
	CurrentTrack  int       `json:"current_track"`
	State         PlayState `gorm:"type:varchar(8);default:stop" json:"state"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Command is a queued transport instruction awaiting pickup by the polling
// device. Immutable apart from the acknowledged flag.
type Command struct {
	ID           string      `gorm:"primaryKey" json:"id"`
	Verb         CommandVerb `gorm:"column:command;type:varchar(16)" json:"command"`
	Player       int         `json:"player,omitempty"`
	Disc         int         `json:"disc,omitempty"`
	Track        int         `json:"track,omitempty"`
	CreatedAt    time.Time   `gorm:"index" json:"created_at"`
	Acknowledged bool        `gorm:"index;default:false" json:"acknowledged"`
}

// TrackPlay is an append-only record of a track starting on the hardware.
// Play counts derive from this log; there is no separate counter.
type TrackPlay struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	DiscID      uint      `gorm:"index;index:idx_track_plays_disc_track" json:"disc_id"`
	TrackNumber int       `gorm:"index:idx_track_plays_disc_track" json:"track_number"`
	PlayedAt    time.Time `json:"played_at"`
}
