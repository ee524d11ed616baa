/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	BaseURL     string // Public base URL (e.g., http://jukebox.local:3000)
	DBBackend   DatabaseBackend
	DBDSN       string
	CoversDir   string // Directory where downloaded cover art is stored and served from
	MetricsBind string

	// Command queue maintenance
	CommandRetention  time.Duration // How long acknowledged commands are kept before GC
	CommandGCInterval time.Duration // How often the GC loop runs

	// Last.fm scrobbling (optional; scrobbling is disabled when unset)
	LastFMAPIKey     string
	LastFMAPISecret  string
	LastFMSessionKey string

	// MusicBrainz client
	MusicBrainzUserAgent string
	MusicBrainzRateLimit time.Duration // Minimum spacing between MusicBrainz requests
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("JUKEBOX_ENV", "development"),
		HTTPBind:    getEnv("JUKEBOX_HTTP_BIND", "0.0.0.0"),
		HTTPPort:    getEnvInt("JUKEBOX_HTTP_PORT", 3000),
		BaseURL:     getEnv("JUKEBOX_BASE_URL", ""),
		DBBackend:   DatabaseBackend(getEnv("JUKEBOX_DB_BACKEND", string(DatabaseSQLite))),
		DBDSN:       getEnv("JUKEBOX_DB_DSN", "./data/jukebox.db"),
		CoversDir:   getEnv("JUKEBOX_COVERS_DIR", "./public/covers"),
		MetricsBind: getEnv("JUKEBOX_METRICS_BIND", "127.0.0.1:9000"),

		CommandRetention:  time.Duration(getEnvInt("JUKEBOX_COMMAND_RETENTION_MINUTES", 60)) * time.Minute,
		CommandGCInterval: time.Duration(getEnvInt("JUKEBOX_COMMAND_GC_INTERVAL_SECONDS", 60)) * time.Second,

		LastFMAPIKey:     getEnv("JUKEBOX_LASTFM_API_KEY", ""),
		LastFMAPISecret:  getEnv("JUKEBOX_LASTFM_API_SECRET", ""),
		LastFMSessionKey: getEnv("JUKEBOX_LASTFM_SESSION_KEY", ""),

		MusicBrainzUserAgent: getEnv("JUKEBOX_MB_USER_AGENT", "CDJukebox/1.0.0 (https://github.com/slinkd/jukebox)"),
		MusicBrainzRateLimit: time.Duration(getEnvInt("JUKEBOX_MB_RATE_LIMIT_MS", 1100)) * time.Millisecond,
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("JUKEBOX_DB_DSN must be provided")
	}

	if cfg.CommandRetention <= 0 {
		return nil, fmt.Errorf("JUKEBOX_COMMAND_RETENTION_MINUTES must be positive")
	}

	if cfg.CommandGCInterval <= 0 {
		return nil, fmt.Errorf("JUKEBOX_COMMAND_GC_INTERVAL_SECONDS must be positive")
	}

	// A session key without credentials can never sign requests.
	if cfg.LastFMSessionKey != "" && (cfg.LastFMAPIKey == "" || cfg.LastFMAPISecret == "") {
		return nil, fmt.Errorf("JUKEBOX_LASTFM_SESSION_KEY requires JUKEBOX_LASTFM_API_KEY and JUKEBOX_LASTFM_API_SECRET")
	}

	return cfg, nil
}

// ScrobblingConfigured reports whether Last.fm credentials and a session are present.
func (c *Config) ScrobblingConfigured() bool {
	return c.LastFMAPIKey != "" && c.LastFMAPISecret != "" && c.LastFMSessionKey != ""
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}
