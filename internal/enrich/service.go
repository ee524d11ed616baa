/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package enrich fills catalog entries with MusicBrainz release metadata,
// track listings, and cover art.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/slinkd/jukebox/internal/catalog"
	"github.com/slinkd/jukebox/internal/events"
	"github.com/slinkd/jukebox/internal/models"
	"github.com/slinkd/jukebox/internal/musicbrainz"
)

// ErrNoMatch is returned when a MusicBrainz search finds no release for
// the disc's artist and album.
var ErrNoMatch = errors.New("no matching release found")

// ReleaseSource is the slice of the MusicBrainz client the enricher needs.
type ReleaseSource interface {
	SearchReleases(ctx context.Context, artist, album string, limit int) ([]musicbrainz.Release, error)
	GetRelease(ctx context.Context, mbid string, mediumPosition int) (*musicbrainz.Release, error)
	DownloadCoverArt(ctx context.Context, mbid, destPath string) error
}

// Service enriches catalog entries.
type Service struct {
	catalog   *catalog.Service
	mb        ReleaseSource
	bus       *events.Bus
	coversDir string
	logger    zerolog.Logger
}

// New constructs the enricher. coversDir is where downloaded art lands;
// the stored cover path is always the public /covers URL.
func New(cat *catalog.Service, mb ReleaseSource, bus *events.Bus, coversDir string, logger zerolog.Logger) *Service {
	return &Service{
		catalog:   cat,
		mb:        mb,
		bus:       bus,
		coversDir: coversDir,
		logger:    logger.With().Str("component", "enrich").Logger(),
	}
}

// Options controls one enrichment run.
type Options struct {
	// MBID pins the release instead of searching. Used when the operator
	// picked a specific search result.
	MBID string
	// Force re-enriches discs that already carry metadata.
	Force bool
	// MediumPosition overrides the stored medium for multi-disc releases.
	// Zero keeps whatever the disc already has.
	MediumPosition int
}

// NeedsEnrichment reports whether a disc is missing metadata worth fetching.
func NeedsEnrichment(disc *models.Disc) bool {
	return disc.MusicBrainzID == "" || disc.TrackCount == 0 || disc.CoverArtPath == ""
}

// coverFilename is the canonical cover art name for a slot.
func coverFilename(player, position int) string {
	return fmt.Sprintf("p%d-%d.jpg", player, position)
}

// EnrichDisc enriches a single catalog entry and returns the updated disc.
// Discs that already look complete are skipped unless opts.Force or an
// explicit MBID is given.
func (s *Service) EnrichDisc(ctx context.Context, player, position int, opts Options) (*models.Disc, error) {
	disc, err := s.catalog.GetDisc(ctx, player, position)
	if err != nil {
		return nil, err
	}
	if opts.MBID == "" && !opts.Force && !NeedsEnrichment(disc) {
		return disc, nil
	}

	mbid := opts.MBID
	if mbid == "" {
		results, err := s.mb.SearchReleases(ctx, disc.Artist, disc.Album, 1)
		if err != nil {
			return nil, fmt.Errorf("search release: %w", err)
		}
		if len(results) == 0 {
			return nil, ErrNoMatch
		}
		mbid = results[0].MBID
	}

	mediumPosition := disc.MediumPosition
	if opts.MediumPosition > 0 {
		mediumPosition = opts.MediumPosition
	}

	release, err := s.mb.GetRelease(ctx, mbid, mediumPosition)
	if err != nil {
		return nil, fmt.Errorf("fetch release %s: %w", mbid, err)
	}

	coverPath := disc.CoverArtPath
	dest := filepath.Join(s.coversDir, coverFilename(player, position))
	switch err := s.mb.DownloadCoverArt(ctx, mbid, dest); {
	case err == nil:
		coverPath = "/covers/" + coverFilename(player, position)
	case errors.Is(err, musicbrainz.ErrNotFound):
		s.logger.Debug().Str("mbid", mbid).Msg("release has no cover art")
	default:
		// Metadata still lands even when the archive is flaky.
		s.logger.Warn().Err(err).Str("mbid", mbid).Msg("cover art download failed")
	}

	totalDuration := 0
	tracks := make([]models.Track, 0, len(release.Tracks))
	for _, t := range release.Tracks {
		totalDuration += t.DurationSec
		tracks = append(tracks, models.Track{
			TrackNumber: t.Number,
			Title:       t.Title,
			DurationSec: t.DurationSec,
			Artist:      t.Artist,
		})
	}

	year := release.Year()
	if year == 0 {
		year = disc.Year
	}

	updated, err := s.catalog.UpsertDisc(ctx, player, position, catalog.DiscUpsert{
		Artist:         release.Artist,
		Album:          release.Title,
		MusicBrainzID:  release.MBID,
		Year:           year,
		Genre:          disc.Genre,
		CoverArtPath:   coverPath,
		DurationSec:    totalDuration,
		TrackCount:     len(tracks),
		MediumPosition: mediumPosition,
	})
	if err != nil {
		return nil, err
	}
	if err := s.catalog.ReplaceTracks(ctx, updated.ID, tracks); err != nil {
		return nil, err
	}

	s.bus.Publish(events.EventMetadataUpdated, events.Payload{
		"player":   player,
		"position": position,
	})
	s.logger.Info().
		Int("player", player).
		Int("position", position).
		Str("mbid", release.MBID).
		Int("tracks", len(tracks)).
		Msg("disc enriched")

	return s.catalog.GetDisc(ctx, player, position)
}

// BatchResult summarizes an EnrichAll run.
type BatchResult struct {
	Enriched int
	Skipped  int
	Failed   int
}

// EnrichAll walks the catalog and enriches every disc that needs it, or
// every disc when force is set. Failures are logged and counted, never
// fatal: one unmatchable disc should not stop the sweep.
func (s *Service) EnrichAll(ctx context.Context, player int, force bool) (*BatchResult, error) {
	list, err := s.catalog.ListDiscs(ctx, catalog.ListOptions{Player: player, Limit: 600})
	if err != nil {
		return nil, err
	}

	result := &BatchResult{}
	for i := range list.Discs {
		disc := &list.Discs[i].Disc
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if !force && !NeedsEnrichment(disc) {
			result.Skipped++
			continue
		}
		if _, err := s.EnrichDisc(ctx, disc.Player, disc.Position, Options{Force: force}); err != nil {
			result.Failed++
			s.logger.Warn().Err(err).
				Int("player", disc.Player).
				Int("position", disc.Position).
				Str("artist", disc.Artist).
				Str("album", disc.Album).
				Msg("enrichment failed")
			continue
		}
		result.Enriched++
	}
	return result, nil
}
