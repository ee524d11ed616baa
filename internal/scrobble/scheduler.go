/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scrobble

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/slinkd/jukebox/internal/telemetry"
)

const (
	// defaultDelay applies when the track duration is unknown.
	defaultDelay = 180 * time.Second
	// maxDelay caps the wait for long tracks, matching the Last.fm rule
	// that four minutes of listening always qualifies.
	maxDelay = 240 * time.Second
)

// scrobbleDelay is how long a track must play before the listen counts:
// half its duration, capped at maxDelay, defaultDelay when unknown.
func scrobbleDelay(duration time.Duration) time.Duration {
	if duration <= 0 {
		return defaultDelay
	}
	delay := duration / 2
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

// TrackMeta identifies a playing track by its physical slot.
type TrackMeta struct {
	Player int
	Disc   int
	Track  int
}

// MetadataSource resolves scrobble metadata for a physical slot.
type MetadataSource interface {
	TrackInfo(ctx context.Context, player, position, trackNumber int) (*Track, error)
}

// timerFactory lets tests substitute time.AfterFunc.
type timerFactory func(d time.Duration, f func()) *time.Timer

// Scheduler holds at most one pending scrobble, for the track currently
// playing. A new track replaces the pending one; a stop cancels it.
type Scheduler struct {
	scrobbler Scrobbler
	meta      MetadataSource
	logger    zerolog.Logger

	mu         sync.Mutex
	generation uint64
	pending    *time.Timer
	current    *TrackMeta

	newTimer timerFactory
}

// NewScheduler constructs the scrobble scheduler.
func NewScheduler(scrobbler Scrobbler, meta MetadataSource, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		scrobbler: scrobbler,
		meta:      meta,
		logger:    logger.With().Str("component", "scrobble").Logger(),
		newTimer:  time.AfterFunc,
	}
}

// OnTrackStart arms a scrobble for a track that just started playing. Any
// previously pending scrobble is cancelled: the listener moved on before
// the old track qualified.
func (s *Scheduler) OnTrackStart(ctx context.Context, meta TrackMeta) {
	// The listener moved on, so whatever was pending is stale now even if
	// the new track turns out not to be scrobblable.
	s.mu.Lock()
	s.cancelLocked()
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	if !s.scrobbler.Enabled() {
		return
	}

	info, err := s.meta.TrackInfo(ctx, meta.Player, meta.Disc, meta.Track)
	if err != nil {
		s.logger.Debug().Err(err).
			Int("player", meta.Player).Int("disc", meta.Disc).Int("track", meta.Track).
			Msg("no metadata for playing track, not scrobbling")
		return
	}
	track := *info
	startedAt := time.Now().Unix()
	delay := scrobbleDelay(time.Duration(track.DurationSec) * time.Second)

	go func() {
		// Detached from the report request, which completes long before
		// the Last.fm round-trip does.
		npCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.scrobbler.NowPlaying(npCtx, track); err != nil {
			s.logger.Warn().Err(err).Msg("now playing update failed")
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		// A newer start or a stop won the race while metadata resolved.
		return
	}
	s.current = &meta
	s.pending = s.newTimer(delay, func() {
		s.fire(gen, track, startedAt)
	})

	telemetry.ScrobblesTotal.WithLabelValues("scheduled").Inc()
	s.logger.Debug().
		Str("artist", track.Artist).
		Str("track", track.Title).
		Dur("delay", delay).
		Msg("scrobble scheduled")
}

// OnPlaybackStopped cancels any pending scrobble. The listen did not last
// long enough to count.
func (s *Scheduler) OnPlaybackStopped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		telemetry.ScrobblesTotal.WithLabelValues("cancelled").Inc()
		s.logger.Debug().Msg("pending scrobble cancelled")
	}
	s.cancelLocked()
	s.generation++
}

// cancelLocked stops the pending timer. Callers hold s.mu.
func (s *Scheduler) cancelLocked() {
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	s.current = nil
}

// fire submits the scrobble unless a newer track or a stop superseded it.
// Stop on a fired timer can race its callback, so the generation check is
// what actually prevents a stale submit.
func (s *Scheduler) fire(gen uint64, track Track, startedAt int64) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.pending = nil
	s.current = nil
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := s.scrobbler.Scrobble(ctx, track, startedAt); err != nil {
		telemetry.ScrobblesTotal.WithLabelValues("failed").Inc()
		s.logger.Warn().Err(err).
			Str("artist", track.Artist).
			Str("track", track.Title).
			Msg("scrobble failed")
		return
	}
	telemetry.ScrobblesTotal.WithLabelValues("submitted").Inc()
}
