/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scrobble

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const lastFMEndpoint = "https://ws.audioscrobbler.com/2.0/"

// LastFM scrobbles to the Last.fm API using a pre-authorized session key.
type LastFM struct {
	apiKey     string
	apiSecret  string
	sessionKey string
	endpoint   string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewLastFM constructs the Last.fm client. Empty credentials yield a
// disabled client, which the scheduler treats as scrobbling off.
func NewLastFM(apiKey, apiSecret, sessionKey string, logger zerolog.Logger) *LastFM {
	return &LastFM{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		sessionKey: sessionKey,
		endpoint:   lastFMEndpoint,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With().Str("component", "lastfm").Logger(),
	}
}

// Enabled reports whether all three credentials are present.
func (l *LastFM) Enabled() bool {
	return l.apiKey != "" && l.apiSecret != "" && l.sessionKey != ""
}

// sign computes the Last.fm method signature: parameters sorted by name,
// concatenated as name+value, secret appended, md5-hexed. The format
// parameter is excluded from signing per the API contract.
func (l *LastFM) sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "format" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(params[k])
	}
	b.WriteString(l.apiSecret)

	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

type lastFMError struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}

// call signs and POSTs one API method as a form body.
func (l *LastFM) call(ctx context.Context, method string, params map[string]string) error {
	params["method"] = method
	params["api_key"] = l.apiKey
	params["sk"] = l.sessionKey
	params["api_sig"] = l.sign(params)
	params["format"] = "json"

	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("lastfm %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("lastfm %s: %w", method, err)
	}
	defer resp.Body.Close()

	var apiErr lastFMError
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != 0 {
		return fmt.Errorf("lastfm %s: api error %d: %s", method, apiErr.Error, apiErr.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("lastfm %s: unexpected status %d", method, resp.StatusCode)
	}
	return nil
}

func trackParams(track Track) map[string]string {
	params := map[string]string{
		"artist": track.Artist,
		"track":  track.Title,
	}
	if track.Album != "" {
		params["album"] = track.Album
	}
	if track.DurationSec > 0 {
		params["duration"] = strconv.Itoa(track.DurationSec)
	}
	return params
}

// NowPlaying updates the now-playing status.
func (l *LastFM) NowPlaying(ctx context.Context, track Track) error {
	if err := l.call(ctx, "track.updateNowPlaying", trackParams(track)); err != nil {
		return err
	}
	l.logger.Debug().Str("artist", track.Artist).Str("track", track.Title).Msg("now playing updated")
	return nil
}

// Scrobble records a listen with the given start timestamp.
func (l *LastFM) Scrobble(ctx context.Context, track Track, startedAt int64) error {
	params := trackParams(track)
	params["timestamp"] = strconv.FormatInt(startedAt, 10)
	if err := l.call(ctx, "track.scrobble", params); err != nil {
		return err
	}
	l.logger.Info().Str("artist", track.Artist).Str("track", track.Title).Msg("scrobbled")
	return nil
}
