/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playback maintains the singleton playback state reported by the
// changer firmware and derives the side effects of state transitions: play
// history, scrobble scheduling, and realtime notifications.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/slinkd/jukebox/internal/catalog"
	"github.com/slinkd/jukebox/internal/events"
	"github.com/slinkd/jukebox/internal/models"
	"github.com/slinkd/jukebox/internal/scrobble"
	"github.com/slinkd/jukebox/internal/telemetry"
)

// Report is one state report from the firmware. All fields are required.
type Report struct {
	Player int              `json:"player"`
	Disc   int              `json:"disc"`
	Track  int              `json:"track"`
	State  models.PlayState `json:"state"`
}

// ErrInvalidReport marks reports rejected by validation, as opposed to
// storage failures while applying one.
var ErrInvalidReport = errors.New("invalid state report")

// Validate checks a report's field ranges.
func (r Report) Validate() error {
	if r.Player != 1 && r.Player != 2 {
		return fmt.Errorf("%w: player must be 1 or 2, got %d", ErrInvalidReport, r.Player)
	}
	if r.Disc < 1 || r.Disc > 300 {
		return fmt.Errorf("%w: disc must be within 1-300, got %d", ErrInvalidReport, r.Disc)
	}
	if r.Track < 1 {
		return fmt.Errorf("%w: track must be positive, got %d", ErrInvalidReport, r.Track)
	}
	if !r.State.Valid() {
		return fmt.Errorf("%w: unknown state %q", ErrInvalidReport, r.State)
	}
	return nil
}

// StateView is the current playback state joined with catalog metadata for
// whatever disc is in the player.
type StateView struct {
	Player        int              `json:"current_player"`
	Disc          int              `json:"current_disc"`
	Track         int              `json:"current_track"`
	State         models.PlayState `json:"state"`
	UpdatedAt     time.Time        `json:"updated_at"`
	Artist        string           `json:"artist,omitempty"`
	Album         string           `json:"album,omitempty"`
	Year          int              `json:"year,omitempty"`
	CoverArtPath  string           `json:"cover_art_path,omitempty"`
	TrackTitle    string           `json:"track_title,omitempty"`
	TrackDuration int              `json:"track_duration,omitempty"`
}

// Machine serializes state reports and owns the singleton state row.
type Machine struct {
	db        *gorm.DB
	catalog   *catalog.Service
	scheduler *scrobble.Scheduler
	bus       *events.Bus
	logger    zerolog.Logger

	// mu serializes ReportState so the read-compare-write on the singleton
	// row cannot interleave between two firmware reports.
	mu sync.Mutex
}

// New constructs the playback state machine.
func New(database *gorm.DB, cat *catalog.Service, scheduler *scrobble.Scheduler, bus *events.Bus, logger zerolog.Logger) *Machine {
	return &Machine{
		db:        database,
		catalog:   cat,
		scheduler: scheduler,
		bus:       bus,
		logger:    logger.With().Str("component", "playback").Logger(),
	}
}

// ReportState ingests one firmware report. A play report for a different
// (player, disc, track) tuple than the previous play records a listen and
// arms the scrobbler; a duplicate play report is a heartbeat and records
// nothing. Non-play reports cancel any pending scrobble.
func (m *Machine) ReportState(ctx context.Context, report Report) (*StateView, error) {
	if err := report.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var prev models.PlaybackState
	if err := m.db.WithContext(ctx).First(&prev, 1).Error; err != nil {
		return nil, fmt.Errorf("load playback state: %w", err)
	}

	next := models.PlaybackState{
		ID:            1,
		CurrentPlayer: report.Player,
		CurrentDisc:   report.Disc,
		CurrentTrack:  report.Track,
		State:         report.State,
		UpdatedAt:     time.Now().UTC(),
	}
	if err := m.db.WithContext(ctx).Save(&next).Error; err != nil {
		return nil, fmt.Errorf("save playback state: %w", err)
	}

	telemetry.StateReportsTotal.WithLabelValues(string(report.State)).Inc()

	switch report.State {
	case models.StatePlay:
		// Any change in the tuple is a new listen, including switching
		// players while the disc/track numbers happen to match. A resume
		// of the same track after pause is not: the tuple survives the
		// pause, so the comparison still sees the same listen.
		changed := prev.CurrentPlayer != report.Player ||
			prev.CurrentDisc != report.Disc ||
			prev.CurrentTrack != report.Track
		if changed {
			if err := m.catalog.RecordTrackPlay(ctx, report.Player, report.Disc, report.Track); err != nil {
				m.logger.Error().Err(err).Msg("record track play failed")
			} else {
				telemetry.TrackPlaysTotal.Inc()
			}
			m.scheduler.OnTrackStart(ctx, scrobble.TrackMeta{
				Player: report.Player,
				Disc:   report.Disc,
				Track:  report.Track,
			})
			m.logger.Info().
				Int("player", report.Player).
				Int("disc", report.Disc).
				Int("track", report.Track).
				Msg("track started")
		}
	case models.StatePause, models.StateStop:
		m.scheduler.OnPlaybackStopped()
	}

	view, err := m.stateView(ctx, &next)
	if err != nil {
		return nil, err
	}
	m.publish(view)
	return view, nil
}

// GetState returns the current playback state with catalog metadata.
func (m *Machine) GetState(ctx context.Context) (*StateView, error) {
	var state models.PlaybackState
	if err := m.db.WithContext(ctx).First(&state, 1).Error; err != nil {
		return nil, fmt.Errorf("load playback state: %w", err)
	}
	return m.stateView(ctx, &state)
}

// PublishLoading broadcasts a transient loading state for a disc the user
// just requested. Nothing is persisted: the firmware's next report is the
// truth.
func (m *Machine) PublishLoading(ctx context.Context, player, disc, track int) {
	view := StateView{
		Player:    player,
		Disc:      disc,
		Track:     track,
		State:     models.StateLoading,
		UpdatedAt: time.Now().UTC(),
	}
	if d, err := m.catalog.GetDisc(ctx, player, disc); err == nil {
		view.Artist = d.Artist
		view.Album = d.Album
		view.Year = d.Year
		view.CoverArtPath = d.CoverArtPath
	}
	m.publish(&view)
}

// stateView joins a state row with disc and track metadata. An uncataloged
// disc yields the bare state.
func (m *Machine) stateView(ctx context.Context, state *models.PlaybackState) (*StateView, error) {
	view := &StateView{
		Player:    state.CurrentPlayer,
		Disc:      state.CurrentDisc,
		Track:     state.CurrentTrack,
		State:     state.State,
		UpdatedAt: state.UpdatedAt,
	}
	if state.CurrentPlayer == 0 || state.CurrentDisc == 0 {
		return view, nil
	}

	disc, err := m.catalog.GetDisc(ctx, state.CurrentPlayer, state.CurrentDisc)
	if err == catalog.ErrDiscNotFound {
		return view, nil
	}
	if err != nil {
		return nil, err
	}

	view.Artist = disc.Artist
	view.Album = disc.Album
	view.Year = disc.Year
	view.CoverArtPath = disc.CoverArtPath
	for _, track := range disc.Tracks {
		if track.TrackNumber == state.CurrentTrack {
			view.TrackTitle = track.Title
			view.TrackDuration = track.DurationSec
			break
		}
	}
	return view, nil
}

func (m *Machine) publish(view *StateView) {
	m.bus.Publish(events.EventState, events.Payload{
		"current_player": view.Player,
		"current_disc":   view.Disc,
		"current_track":  view.Track,
		"state":          string(view.State),
		"updated_at":     view.UpdatedAt,
		"artist":         view.Artist,
		"album":          view.Album,
		"cover_art_path": view.CoverArtPath,
		"track_title":    view.TrackTitle,
	})
}
