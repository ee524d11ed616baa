/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/slinkd/jukebox/internal/models"
)

// AlbumStat is one row of the most-played-albums leaderboard.
type AlbumStat struct {
	DiscID          uint   `json:"id"`
	Player          int    `json:"player"`
	Position        int    `json:"position"`
	Artist          string `json:"artist"`
	Album           string `json:"album"`
	TrackCount      int    `json:"track_count"`
	CoverArtPath    string `json:"cover_art_path,omitempty"`
	TotalTrackPlays int64  `json:"total_track_plays"`
	AlbumPlays      int64  `json:"album_plays"`
}

// TrackStat is one row of the most-played-tracks leaderboard.
type TrackStat struct {
	Player      int    `json:"player"`
	Position    int    `json:"position"`
	Artist      string `json:"artist"`
	Album       string `json:"album"`
	TrackNumber int    `json:"track_number"`
	TrackTitle  string `json:"track_title,omitempty"`
	PlayCount   int64  `json:"play_count"`
}

// RecentDisc is one row of the recently-played list.
type RecentDisc struct {
	Player       int        `json:"player"`
	Position     int        `json:"position"`
	Artist       string     `json:"artist"`
	Album        string     `json:"album"`
	CoverArtPath string     `json:"cover_art_path,omitempty"`
	LastPlayed   *time.Time `json:"last_played"`
}

// Stats aggregates listening history for the stats page.
type Stats struct {
	TotalDiscs       int64        `json:"total_discs"`
	Player1Discs     int64        `json:"player1_discs"`
	Player2Discs     int64        `json:"player2_discs"`
	TotalTrackPlays  int64        `json:"total_track_plays"`
	MostPlayedAlbums []AlbumStat  `json:"most_played_albums"`
	MostPlayedTracks []TrackStat  `json:"most_played_tracks"`
	RecentlyPlayed   []RecentDisc `json:"recently_played"`
}

// Stats computes catalog-wide listening statistics.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	out := &Stats{}
	database := s.db.WithContext(ctx)

	if err := database.Model(&models.Disc{}).Count(&out.TotalDiscs).Error; err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	if err := database.Model(&models.Disc{}).Where("player = 1").Count(&out.Player1Discs).Error; err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	if err := database.Model(&models.Disc{}).Where("player = 2").Count(&out.Player2Discs).Error; err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	if err := database.Model(&models.TrackPlay{}).Count(&out.TotalTrackPlays).Error; err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}

	err := database.Raw(`
		SELECT d.id AS disc_id, d.player, d.position, d.artist, d.album,
		       d.track_count, d.cover_art_path, COUNT(tp.id) AS total_track_plays
		FROM discs d
		JOIN track_plays tp ON d.id = tp.disc_id
		GROUP BY d.id, d.player, d.position, d.artist, d.album, d.track_count, d.cover_art_path
		ORDER BY total_track_plays DESC
		LIMIT 10`).Scan(&out.MostPlayedAlbums).Error
	if err != nil {
		return nil, fmt.Errorf("stats: most played albums: %w", err)
	}
	for i := range out.MostPlayedAlbums {
		plays, err := s.AlbumPlayCount(ctx, out.MostPlayedAlbums[i].DiscID)
		if err != nil {
			return nil, err
		}
		out.MostPlayedAlbums[i].AlbumPlays = plays
	}

	err = database.Raw(`
		SELECT d.player, d.position, d.artist, d.album,
		       tp.track_number, t.title AS track_title, COUNT(tp.id) AS play_count
		FROM track_plays tp
		JOIN discs d ON tp.disc_id = d.id
		LEFT JOIN tracks t ON d.id = t.disc_id AND tp.track_number = t.track_number
		GROUP BY tp.disc_id, tp.track_number, d.player, d.position, d.artist, d.album, t.title
		ORDER BY play_count DESC
		LIMIT 10`).Scan(&out.MostPlayedTracks).Error
	if err != nil {
		return nil, fmt.Errorf("stats: most played tracks: %w", err)
	}

	err = database.Model(&models.Disc{}).
		Select("player, position, artist, album, cover_art_path, last_played").
		Where("last_played IS NOT NULL").
		Order("last_played DESC").
		Limit(10).
		Find(&out.RecentlyPlayed).Error
	if err != nil {
		return nil, fmt.Errorf("stats: recently played: %w", err)
	}

	return out, nil
}
