/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scrobble reports listens to an external scrobbling service. The
// scheduler decides when a listen counts; the Scrobbler submits it.
package scrobble

import "context"

// Track is the metadata submitted for one listen.
type Track struct {
	Artist      string
	Album       string
	Title       string
	DurationSec int
}

// Scrobbler submits listens to a scrobbling backend.
type Scrobbler interface {
	// Enabled reports whether the backend is configured. When false the
	// scheduler skips scheduling entirely.
	Enabled() bool
	// NowPlaying updates the listener's now-playing status. Best effort.
	NowPlaying(ctx context.Context, track Track) error
	// Scrobble records a completed listen. startedAt is the unix timestamp
	// the track started playing, not when the scrobble fires.
	Scrobble(ctx context.Context, track Track, startedAt int64) error
}
