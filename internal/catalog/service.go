/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package catalog owns the disc/track catalog and the track-play history log.
// Play counts are derived from the append-only track_plays log; there is no
// separate counter to keep in sync.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/slinkd/jukebox/internal/models"
)

// ErrDiscNotFound is returned when a (player, position) pair has no catalog entry.
var ErrDiscNotFound = errors.New("disc not found")

// Service provides catalog reads and writes.
type Service struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// New constructs the catalog service.
func New(database *gorm.DB, logger zerolog.Logger) *Service {
	return &Service{db: database, logger: logger.With().Str("component", "catalog").Logger()}
}

// ListOptions filters and orders a disc listing.
type ListOptions struct {
	Player int    // 0 = both players
	Search string // free-text match over artist/album
	Sort   string // position | artist | album | lastPlayed | playCount
	Limit  int
	Offset int
}

// DiscSummary is a listing row: the disc plus its derived total play count.
type DiscSummary struct {
	models.Disc
	PlayCount int64 `json:"play_count"`
}

// DiscList is a page of discs plus the unpaginated total.
type DiscList struct {
	Discs []DiscSummary `json:"discs"`
	Total int64         `json:"total"`
}

const playCountSubquery = "(SELECT COUNT(*) FROM track_plays WHERE track_plays.disc_id = discs.id)"

var sortColumns = map[string]string{
	"position":   "player, position",
	"artist":     "artist",
	"album":      "album",
	"lastPlayed": "last_played DESC",
	"playCount":  "play_count DESC",
}

// ListDiscs returns a filtered, sorted, paginated disc listing.
func (s *Service) ListDiscs(ctx context.Context, opts ListOptions) (*DiscList, error) {
	if opts.Limit <= 0 {
		opts.Limit = 600
	}

	base := s.db.WithContext(ctx).Model(&models.Disc{})
	if opts.Player != 0 {
		base = base.Where("player = ?", opts.Player)
	}
	if opts.Search != "" {
		pattern := "%" + opts.Search + "%"
		base = base.Where("artist LIKE ? OR album LIKE ?", pattern, pattern)
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count discs: %w", err)
	}

	order, ok := sortColumns[opts.Sort]
	if !ok {
		order = sortColumns["position"]
	}

	var discs []DiscSummary
	err := base.
		Select("discs.*, " + playCountSubquery + " AS play_count").
		Order(order).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Find(&discs).Error
	if err != nil {
		return nil, fmt.Errorf("list discs: %w", err)
	}

	return &DiscList{Discs: discs, Total: total}, nil
}

// GetDisc returns a disc with its tracks ordered by track number.
func (s *Service) GetDisc(ctx context.Context, player, position int) (*models.Disc, error) {
	var disc models.Disc
	err := s.db.WithContext(ctx).
		Preload("Tracks", func(tx *gorm.DB) *gorm.DB { return tx.Order("track_number") }).
		Where("player = ? AND position = ?", player, position).
		First(&disc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDiscNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get disc: %w", err)
	}
	return &disc, nil
}

// GetDiscByID returns a disc by synthetic id with its tracks.
func (s *Service) GetDiscByID(ctx context.Context, id uint) (*models.Disc, error) {
	var disc models.Disc
	err := s.db.WithContext(ctx).
		Preload("Tracks", func(tx *gorm.DB) *gorm.DB { return tx.Order("track_number") }).
		First(&disc, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDiscNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get disc by id: %w", err)
	}
	return &disc, nil
}

// DiscUpsert carries the mutable metadata of a catalog entry. Zero values for
// optional fields leave nothing behind: the row is overwritten wholesale, as
// enrichment always supplies the complete record.
type DiscUpsert struct {
	Artist         string
	Album          string
	MusicBrainzID  string
	Year           int
	Genre          string
	CoverArtPath   string
	DurationSec    int
	TrackCount     int
	MediumPosition int
}

// UpsertDisc creates or overwrites the catalog entry at (player, position).
func (s *Service) UpsertDisc(ctx context.Context, player, position int, up DiscUpsert) (*models.Disc, error) {
	if player != 1 && player != 2 {
		return nil, fmt.Errorf("player must be 1 or 2, got %d", player)
	}
	if position < 1 || position > 300 {
		return nil, fmt.Errorf("position must be within 1-300, got %d", position)
	}
	if up.MediumPosition == 0 {
		up.MediumPosition = 1
	}

	var disc models.Disc
	err := s.db.WithContext(ctx).
		Where("player = ? AND position = ?", player, position).
		First(&disc).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		disc = models.Disc{Player: player, Position: position}
	case err != nil:
		return nil, fmt.Errorf("upsert disc: %w", err)
	}

	disc.Artist = up.Artist
	disc.Album = up.Album
	disc.MusicBrainzID = up.MusicBrainzID
	disc.Year = up.Year
	disc.Genre = up.Genre
	disc.CoverArtPath = up.CoverArtPath
	disc.DurationSec = up.DurationSec
	disc.TrackCount = up.TrackCount
	disc.MediumPosition = up.MediumPosition

	if err := s.db.WithContext(ctx).Save(&disc).Error; err != nil {
		return nil, fmt.Errorf("upsert disc: %w", err)
	}
	return &disc, nil
}

// ReplaceTracks swaps a disc's track list in a single transaction so a
// concurrent reader never observes the disc with zero tracks mid-update.
func (s *Service) ReplaceTracks(ctx context.Context, discID uint, tracks []models.Track) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("disc_id = ?", discID).Delete(&models.Track{}).Error; err != nil {
			return fmt.Errorf("delete tracks: %w", err)
		}
		for i := range tracks {
			tracks[i].ID = 0
			tracks[i].DiscID = discID
		}
		if len(tracks) > 0 {
			if err := tx.Create(&tracks).Error; err != nil {
				return fmt.Errorf("insert tracks: %w", err)
			}
		}
		return tx.Model(&models.Disc{}).
			Where("id = ?", discID).
			Update("track_count", len(tracks)).Error
	})
}

// RecordTrackPlay appends a play event and bumps the disc's last-played
// timestamp. Unknown discs are skipped: the hardware can play slots the
// catalog has never heard of.
func (s *Service) RecordTrackPlay(ctx context.Context, player, position, trackNumber int) error {
	var disc models.Disc
	err := s.db.WithContext(ctx).
		Select("id").
		Where("player = ? AND position = ?", player, position).
		First(&disc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Debug().Int("player", player).Int("position", position).Msg("play on uncataloged slot, not recorded")
		return nil
	}
	if err != nil {
		return fmt.Errorf("record track play: %w", err)
	}

	now := time.Now().UTC()
	play := models.TrackPlay{DiscID: disc.ID, TrackNumber: trackNumber, PlayedAt: now}
	if err := s.db.WithContext(ctx).Create(&play).Error; err != nil {
		return fmt.Errorf("record track play: %w", err)
	}

	return s.db.WithContext(ctx).Model(&models.Disc{}).
		Where("id = ?", disc.ID).
		Update("last_played", now).Error
}

// TrackPlayCount is the number of plays of one track on a disc.
type TrackPlayCount struct {
	TrackNumber int   `json:"track_number"`
	PlayCount   int64 `json:"play_count"`
}

// TrackPlayCounts returns per-track play counts for a disc, ordered by track number.
func (s *Service) TrackPlayCounts(ctx context.Context, discID uint) ([]TrackPlayCount, error) {
	var counts []TrackPlayCount
	err := s.db.WithContext(ctx).Model(&models.TrackPlay{}).
		Select("track_number, COUNT(*) AS play_count").
		Where("disc_id = ?", discID).
		Group("track_number").
		Order("track_number").
		Find(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("track play counts: %w", err)
	}
	return counts, nil
}

// AlbumPlayCount computes full-album plays: the minimum per-track play count,
// or 0 unless every track has been played at least once. An album only counts
// as played once the listener has heard all of it.
func (s *Service) AlbumPlayCount(ctx context.Context, discID uint) (int64, error) {
	var disc models.Disc
	if err := s.db.WithContext(ctx).Select("track_count").First(&disc, discID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("album play count: %w", err)
	}
	if disc.TrackCount == 0 {
		return 0, nil
	}

	counts, err := s.TrackPlayCounts(ctx, discID)
	if err != nil {
		return 0, err
	}
	if len(counts) < disc.TrackCount {
		return 0, nil
	}

	min := counts[0].PlayCount
	for _, c := range counts[1:] {
		if c.PlayCount < min {
			min = c.PlayCount
		}
	}
	return min, nil
}

// TotalTrackPlays returns the number of play events recorded for a disc.
func (s *Service) TotalTrackPlays(ctx context.Context, discID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.TrackPlay{}).
		Where("disc_id = ?", discID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("total track plays: %w", err)
	}
	return count, nil
}

// TrackInfo is the metadata needed to scrobble one track.
type TrackInfo struct {
	Artist      string
	Album       string
	Title       string
	DurationSec int
}

// TrackInfo resolves scrobble metadata for a playing track. The per-track
// artist override wins over the release artist; a missing track row falls
// back to a "Track N" title so plays of un-enriched discs still scrobble.
func (s *Service) TrackInfo(ctx context.Context, player, position, trackNumber int) (*TrackInfo, error) {
	var disc models.Disc
	err := s.db.WithContext(ctx).
		Select("id, artist, album").
		Where("player = ? AND position = ?", player, position).
		First(&disc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDiscNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("track info: %w", err)
	}

	var track models.Track
	err = s.db.WithContext(ctx).
		Where("disc_id = ? AND track_number = ?", disc.ID, trackNumber).
		First(&track).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && track.Title == "") {
		return &TrackInfo{
			Artist: disc.Artist,
			Album:  disc.Album,
			Title:  fmt.Sprintf("Track %d", trackNumber),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("track info: %w", err)
	}

	artist := track.Artist
	if artist == "" {
		artist = disc.Artist
	}

	return &TrackInfo{
		Artist:      artist,
		Album:       disc.Album,
		Title:       track.Title,
		DurationSec: track.DurationSec,
	}, nil
}
