/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/slinkd/jukebox/internal/api"
	"github.com/slinkd/jukebox/internal/catalog"
	"github.com/slinkd/jukebox/internal/commands"
	"github.com/slinkd/jukebox/internal/config"
	"github.com/slinkd/jukebox/internal/db"
	"github.com/slinkd/jukebox/internal/enrich"
	"github.com/slinkd/jukebox/internal/events"
	"github.com/slinkd/jukebox/internal/musicbrainz"
	"github.com/slinkd/jukebox/internal/playback"
	"github.com/slinkd/jukebox/internal/scrobble"
	"github.com/slinkd/jukebox/internal/telemetry"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db       *gorm.DB
	bus      *events.Bus
	catalog  *catalog.Service
	queue    *commands.Queue
	playback *playback.Machine
	enricher *enrich.Service
	mb       *musicbrainz.Client
	api      *api.API

	metricsServer *http.Server

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(telemetry.MetricsMiddleware)
	// Skip timeout for the websocket event stream; everything else gets 60s.
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
		bus:    events.NewBus(),
	}

	if err := srv.initDependencies(); err != nil {
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	addr := fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort)
	srv.httpServer = &http.Server{
		Addr:              addr,
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		// WriteTimeout stays 0 so the websocket event stream is not cut;
		// the middleware timeout covers normal routes.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return srv, nil
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	if err := db.Migrate(database); err != nil {
		return err
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	if err := os.MkdirAll(s.cfg.CoversDir, 0o755); err != nil {
		return fmt.Errorf("create covers directory %s: %w", s.cfg.CoversDir, err)
	}
	s.logger.Info().Str("path", s.cfg.CoversDir).Msg("covers directory ready")

	s.catalog = catalog.New(database, s.logger)
	s.queue = commands.New(database, s.logger, s.cfg.CommandRetention, s.cfg.CommandGCInterval)

	scrobbler := scrobble.NewLastFM(s.cfg.LastFMAPIKey, s.cfg.LastFMAPISecret, s.cfg.LastFMSessionKey, s.logger)
	if scrobbler.Enabled() {
		s.logger.Info().Msg("last.fm scrobbling enabled")
	} else {
		s.logger.Info().Msg("last.fm scrobbling disabled, credentials not configured")
	}
	scheduler := scrobble.NewScheduler(scrobbler, playback.CatalogMetadata{Catalog: s.catalog}, s.logger)

	s.playback = playback.New(database, s.catalog, scheduler, s.bus, s.logger)
	s.mb = musicbrainz.New(s.cfg.MusicBrainzUserAgent, s.cfg.MusicBrainzRateLimit, s.logger)
	s.enricher = enrich.New(s.catalog, s.mb, s.bus, s.cfg.CoversDir, s.logger)

	s.api = api.New(s.catalog, s.queue, s.playback, s.enricher, s.mb, s.bus, s.logger)
	return nil
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.queue.Run(ctx)
	}()

	if s.cfg.MetricsBind != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", telemetry.Handler())
		s.metricsServer = &http.Server{
			Addr:              s.cfg.MetricsBind,
			Handler:           mux,
			ReadHeaderTimeout: 15 * time.Second,
		}
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.logger.Info().Str("addr", s.cfg.MetricsBind).Msg("metrics listener started")
			if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.logger.Error().Err(err).Msg("metrics listener exited")
			}
		}()
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	if s.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = s.metricsServer.Shutdown(ctx)
		cancel()
		s.metricsServer = nil
	}
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Downloaded cover art, served as-is.
	s.router.Handle("/covers/*", http.StripPrefix("/covers/", http.FileServer(http.Dir(s.cfg.CoversDir))))

	s.api.Routes(s.router)
}
