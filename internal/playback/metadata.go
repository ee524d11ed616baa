/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"context"

	"github.com/slinkd/jukebox/internal/catalog"
	"github.com/slinkd/jukebox/internal/scrobble"
)

// CatalogMetadata adapts the catalog to the scrobble scheduler's
// metadata lookup.
type CatalogMetadata struct {
	Catalog *catalog.Service
}

func (c CatalogMetadata) TrackInfo(ctx context.Context, player, position, trackNumber int) (*scrobble.Track, error) {
	info, err := c.Catalog.TrackInfo(ctx, player, position, trackNumber)
	if err != nil {
		return nil, err
	}
	return &scrobble.Track{
		Artist:      info.Artist,
		Album:       info.Album,
		Title:       info.Title,
		DurationSec: info.DurationSec,
	}, nil
}
