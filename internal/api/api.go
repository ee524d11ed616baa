/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/slinkd/jukebox/internal/catalog"
	"github.com/slinkd/jukebox/internal/commands"
	"github.com/slinkd/jukebox/internal/enrich"
	"github.com/slinkd/jukebox/internal/events"
	"github.com/slinkd/jukebox/internal/models"
	"github.com/slinkd/jukebox/internal/musicbrainz"
	"github.com/slinkd/jukebox/internal/playback"
	"github.com/slinkd/jukebox/internal/telemetry"
	ws "nhooyr.io/websocket"
)

// API exposes HTTP handlers.
type API struct {
	catalog  *catalog.Service
	queue    *commands.Queue
	playback *playback.Machine
	enricher *enrich.Service
	mb       *musicbrainz.Client
	bus      *events.Bus
	logger   zerolog.Logger
}

// New creates the API router wrapper.
func New(cat *catalog.Service, queue *commands.Queue, machine *playback.Machine, enricher *enrich.Service, mb *musicbrainz.Client, bus *events.Bus, logger zerolog.Logger) *API {
	return &API{
		catalog:  cat,
		queue:    queue,
		playback: machine,
		enricher: enricher,
		mb:       mb,
		bus:      bus,
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

type discUpsertRequest struct {
	Artist         string `json:"artist"`
	Album          string `json:"album"`
	Year           int    `json:"year"`
	Genre          string `json:"genre"`
	MediumPosition int    `json:"medium_position"`
}

type stateReportRequest struct {
	Player *int   `json:"player"`
	Disc   *int   `json:"disc"`
	Track  *int   `json:"track"`
	State  string `json:"state"`
}

type controlRequest struct {
	Player int `json:"player"`
	Disc   int `json:"disc"`
	Track  int `json:"track"`
}

type ackRequest struct {
	ID string `json:"id"`
}

type enrichRequest struct {
	MBID           string `json:"mbid"`
	Force          bool   `json:"force"`
	MediumPosition int    `json:"medium_position"`
}

// Routes mounts API routes on the provided router.
func (a *API) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		r.Route("/discs", func(r chi.Router) {
			r.Get("/", a.handleDiscsList)
			r.Route("/{player}/{position}", func(r chi.Router) {
				r.Get("/", a.handleDiscGet)
				r.Post("/", a.handleDiscUpsert)
			})
		})

		r.Get("/current", a.handleCurrent)
		r.Post("/state", a.handleStateReport)

		r.Route("/control", func(r chi.Router) {
			r.Post("/play", a.handleControl(models.CommandPlay))
			r.Post("/pause", a.handleControl(models.CommandPause))
			r.Post("/stop", a.handleControl(models.CommandStop))
			r.Post("/next", a.handleControl(models.CommandNext))
			r.Post("/previous", a.handleControl(models.CommandPrevious))
		})

		r.Route("/device", func(r chi.Router) {
			r.Get("/poll", a.handleDevicePoll)
			r.Post("/ack", a.handleDeviceAck)
		})

		r.Get("/search/musicbrainz", a.handleMusicBrainzSearch)
		r.Get("/musicbrainz/release/{mbid}", a.handleMusicBrainzRelease)
		r.Post("/enrich/{player}/{position}", a.handleEnrich)

		r.Get("/stats", a.handleStats)
		r.Get("/events", a.handleEvents)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// slotParams extracts and validates the {player}/{position} URL pair.
func slotParams(r *http.Request) (player, position int, err error) {
	player, err = strconv.Atoi(chi.URLParam(r, "player"))
	if err != nil || (player != 1 && player != 2) {
		return 0, 0, errors.New("player must be 1 or 2")
	}
	position, err = strconv.Atoi(chi.URLParam(r, "position"))
	if err != nil || position < 1 || position > 300 {
		return 0, 0, errors.New("position must be within 1-300")
	}
	return player, position, nil
}

func (a *API) handleDiscsList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := catalog.ListOptions{
		Search: q.Get("search"),
		Sort:   q.Get("sort"),
	}
	if v := q.Get("player"); v != "" {
		player, err := strconv.Atoi(v)
		if err != nil || (player != 1 && player != 2) {
			writeError(w, http.StatusBadRequest, "invalid_player")
			return
		}
		opts.Player = player
	}
	if v := q.Get("limit"); v != "" {
		opts.Limit, _ = strconv.Atoi(v)
	}
	if v := q.Get("offset"); v != "" {
		opts.Offset, _ = strconv.Atoi(v)
	}

	list, err := a.catalog.ListDiscs(r.Context(), opts)
	if err != nil {
		a.logger.Error().Err(err).Msg("list discs failed")
		writeError(w, http.StatusInternalServerError, "list_failed")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleDiscGet(w http.ResponseWriter, r *http.Request) {
	player, position, err := slotParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_slot")
		return
	}

	disc, err := a.catalog.GetDisc(r.Context(), player, position)
	if errors.Is(err, catalog.ErrDiscNotFound) {
		writeError(w, http.StatusNotFound, "disc_not_found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("get disc failed")
		writeError(w, http.StatusInternalServerError, "get_failed")
		return
	}

	// Fill in metadata on first view. Failures degrade to the bare entry.
	if enrich.NeedsEnrichment(disc) {
		if enriched, err := a.enricher.EnrichDisc(r.Context(), player, position, enrich.Options{}); err == nil {
			disc = enriched
		} else {
			a.logger.Debug().Err(err).
				Int("player", player).Int("position", position).
				Msg("on-demand enrichment failed")
		}
	}

	counts, err := a.catalog.TrackPlayCounts(r.Context(), disc.ID)
	if err != nil {
		a.logger.Error().Err(err).Msg("track play counts failed")
		writeError(w, http.StatusInternalServerError, "get_failed")
		return
	}
	albumPlays, err := a.catalog.AlbumPlayCount(r.Context(), disc.ID)
	if err != nil {
		a.logger.Error().Err(err).Msg("album play count failed")
		writeError(w, http.StatusInternalServerError, "get_failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"disc":              disc,
		"track_play_counts": counts,
		"album_plays":       albumPlays,
	})
}

func (a *API) handleDiscUpsert(w http.ResponseWriter, r *http.Request) {
	player, position, err := slotParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_slot")
		return
	}

	var req discUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Artist == "" || req.Album == "" {
		writeError(w, http.StatusBadRequest, "artist_and_album_required")
		return
	}

	// Carry over fields a manual edit does not touch.
	existing, err := a.catalog.GetDisc(r.Context(), player, position)
	if err != nil && !errors.Is(err, catalog.ErrDiscNotFound) {
		a.logger.Error().Err(err).Msg("load disc failed")
		writeError(w, http.StatusInternalServerError, "upsert_failed")
		return
	}

	up := catalog.DiscUpsert{
		Artist:         req.Artist,
		Album:          req.Album,
		Year:           req.Year,
		Genre:          req.Genre,
		MediumPosition: req.MediumPosition,
	}
	if existing != nil {
		up.MusicBrainzID = existing.MusicBrainzID
		up.CoverArtPath = existing.CoverArtPath
		up.DurationSec = existing.DurationSec
		up.TrackCount = existing.TrackCount
		if up.MediumPosition == 0 {
			up.MediumPosition = existing.MediumPosition
		}
	}

	disc, err := a.catalog.UpsertDisc(r.Context(), player, position, up)
	if err != nil {
		a.logger.Error().Err(err).Msg("upsert disc failed")
		writeError(w, http.StatusInternalServerError, "upsert_failed")
		return
	}
	writeJSON(w, http.StatusOK, disc)
}

func (a *API) handleCurrent(w http.ResponseWriter, r *http.Request) {
	view, err := a.playback.GetState(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("get state failed")
		writeError(w, http.StatusInternalServerError, "state_failed")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleStateReport(w http.ResponseWriter, r *http.Request) {
	var req stateReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Player == nil || req.Disc == nil || req.Track == nil || req.State == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	view, err := a.playback.ReportState(r.Context(), playback.Report{
		Player: *req.Player,
		Disc:   *req.Disc,
		Track:  *req.Track,
		State:  models.PlayState(req.State),
	})
	switch {
	case errors.Is(err, playback.ErrInvalidReport):
		writeError(w, http.StatusBadRequest, "invalid_state_report")
		return
	case err != nil:
		a.logger.Error().Err(err).Msg("state report failed")
		writeError(w, http.StatusInternalServerError, "state_report_failed")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleControl enqueues one transport command. Play requires a target
// slot in the body; the other verbs ignore it.
func (a *API) handleControl(verb models.CommandVerb) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req controlRequest
		if r.Body != nil {
			// Transport verbs have empty bodies; a decode error only
			// matters for play.
			_ = json.NewDecoder(r.Body).Decode(&req)
		}

		opts := commands.EnqueueOptions{}
		if verb == models.CommandPlay {
			if req.Player == 0 || req.Disc == 0 {
				writeError(w, http.StatusBadRequest, "player_and_disc_required")
				return
			}
			opts = commands.EnqueueOptions{Player: req.Player, Disc: req.Disc, Track: req.Track}
		}

		cmd, err := a.queue.Enqueue(r.Context(), verb, opts)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_command")
			return
		}

		if verb == models.CommandPlay {
			// Give the UI immediate feedback while the changer swaps discs.
			a.playback.PublishLoading(r.Context(), cmd.Player, cmd.Disc, cmd.Track)
		}
		writeJSON(w, http.StatusOK, cmd)
	}
}

func (a *API) handleDevicePoll(w http.ResponseWriter, r *http.Request) {
	cmd, err := a.queue.PeekOldest(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("poll failed")
		writeError(w, http.StatusInternalServerError, "poll_failed")
		return
	}
	if cmd == nil {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	// The firmware wire format uses "action" for the verb.
	writeJSON(w, http.StatusOK, map[string]any{
		"id":     cmd.ID,
		"action": cmd.Verb,
		"player": cmd.Player,
		"disc":   cmd.Disc,
		"track":  cmd.Track,
	})
}

func (a *API) handleDeviceAck(w http.ResponseWriter, r *http.Request) {
	var req ackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		writeError(w, http.StatusBadRequest, "id_required")
		return
	}
	if err := a.queue.Acknowledge(r.Context(), req.ID); err != nil {
		a.logger.Error().Err(err).Msg("ack failed")
		writeError(w, http.StatusInternalServerError, "ack_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleMusicBrainzSearch(w http.ResponseWriter, r *http.Request) {
	artist := r.URL.Query().Get("artist")
	album := r.URL.Query().Get("album")
	if artist == "" || album == "" {
		writeError(w, http.StatusBadRequest, "artist_and_album_required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	releases, err := a.mb.SearchReleases(r.Context(), artist, album, limit)
	if err != nil {
		a.logger.Error().Err(err).Msg("musicbrainz search failed")
		writeError(w, http.StatusBadGateway, "musicbrainz_unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"releases": releases})
}

func (a *API) handleMusicBrainzRelease(w http.ResponseWriter, r *http.Request) {
	mbid := chi.URLParam(r, "mbid")
	medium, _ := strconv.Atoi(r.URL.Query().Get("medium"))

	release, err := a.mb.GetRelease(r.Context(), mbid, medium)
	if errors.Is(err, musicbrainz.ErrNotFound) {
		writeError(w, http.StatusNotFound, "release_not_found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("musicbrainz lookup failed")
		writeError(w, http.StatusBadGateway, "musicbrainz_unavailable")
		return
	}
	writeJSON(w, http.StatusOK, release)
}

func (a *API) handleEnrich(w http.ResponseWriter, r *http.Request) {
	player, position, err := slotParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_slot")
		return
	}

	var req enrichRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	disc, err := a.enricher.EnrichDisc(r.Context(), player, position, enrich.Options{MBID: req.MBID, Force: req.Force, MediumPosition: req.MediumPosition})
	switch {
	case errors.Is(err, catalog.ErrDiscNotFound):
		writeError(w, http.StatusNotFound, "disc_not_found")
		return
	case errors.Is(err, enrich.ErrNoMatch):
		writeError(w, http.StatusNotFound, "no_release_match")
		return
	case err != nil:
		a.logger.Error().Err(err).Msg("enrichment failed")
		writeError(w, http.StatusBadGateway, "enrichment_failed")
		return
	}
	writeJSON(w, http.StatusOK, disc)
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.catalog.Stats(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("stats failed")
		writeError(w, http.StatusInternalServerError, "stats_failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func parseEventTypes(raw string) []events.EventType {
	if raw == "" {
		return nil
	}
	var types []events.EventType
	for _, part := range strings.Split(raw, ",") {
		switch events.EventType(strings.TrimSpace(part)) {
		case events.EventState, events.EventMetadataUpdated:
			types = append(types, events.EventType(strings.TrimSpace(part)))
		}
	}
	return types
}

// wsRequest is a client-initiated subscription change on the event socket.
type wsRequest struct {
	Action string `json:"action"` // subscribe | unsubscribe
	Type   string `json:"type"`
}

func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.APIWebSocketConnections.Inc()
	defer telemetry.APIWebSocketConnections.Dec()

	subs := map[events.EventType]events.Subscriber{}
	defer func() {
		for eventType, sub := range subs {
			a.bus.Unsubscribe(eventType, sub)
		}
	}()

	// Initial subscriptions from the query string, everything by default.
	initial := parseEventTypes(r.URL.Query().Get("types"))
	if len(initial) == 0 {
		initial = []events.EventType{events.EventState, events.EventMetadataUpdated}
	}
	for _, eventType := range initial {
		subs[eventType] = a.bus.Subscribe(eventType)
	}

	// Reader goroutine feeds subscribe/unsubscribe requests to the loop.
	ctrl := make(chan wsRequest, 4)
	go func() {
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var req wsRequest
			if err := json.Unmarshal(data, &req); err != nil {
				continue
			}
			select {
			case ctrl <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "context cancelled")
			return
		case req := <-ctrl:
			eventType := events.EventType(req.Type)
			if eventType != events.EventState && eventType != events.EventMetadataUpdated {
				continue
			}
			switch req.Action {
			case "subscribe":
				if _, ok := subs[eventType]; !ok {
					subs[eventType] = a.bus.Subscribe(eventType)
				}
			case "unsubscribe":
				if sub, ok := subs[eventType]; ok {
					a.bus.Unsubscribe(eventType, sub)
					delete(subs, eventType)
				}
			}
		case <-ticker.C:
			if err := conn.Write(ctx, ws.MessageText, []byte(`{"type":"ping"}`)); err != nil {
				a.logger.Debug().Err(err).Msg("websocket ping failed")
				conn.Close(ws.StatusInternalError, "write failed")
				return
			}
		default:
			sent := false
			for eventType, sub := range subs {
				select {
				case payload := <-sub:
					if err := a.writeEvent(ctx, conn, eventType, payload); err != nil {
						a.logger.Debug().Err(err).Msg("websocket write failed")
						conn.Close(ws.StatusInternalError, "write failed")
						return
					}
					sent = true
				default:
				}
			}
			if !sent {
				time.Sleep(100 * time.Millisecond)
			}
		}
	}
}

func (a *API) writeEvent(ctx context.Context, conn *ws.Conn, eventType events.EventType, payload events.Payload) error {
	data := map[string]any{
		"type":    eventType,
		"payload": payload,
	}
	bytes, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return conn.Write(ctx, ws.MessageText, bytes)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
