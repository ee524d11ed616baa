/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package musicbrainz is a minimal MusicBrainz and Cover Art Archive client
// for release lookups. All calls share one rate limiter because MusicBrainz
// enforces roughly one request per second per client.
package musicbrainz

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	apiBase      = "https://musicbrainz.org/ws/2"
	coverArtBase = "https://coverartarchive.org/release"
)

// Release is a summarized MusicBrainz release.
type Release struct {
	MBID        string  `json:"mbid"`
	Title       string  `json:"title"`
	Artist      string  `json:"artist"`
	Date        string  `json:"date,omitempty"`
	Country     string  `json:"country,omitempty"`
	Label       string  `json:"label,omitempty"`
	TrackCount  int     `json:"track_count"`
	MediumCount int     `json:"medium_count"`
	Score       int     `json:"score,omitempty"`
	Tracks      []Track `json:"tracks,omitempty"`
}

// Track is one recording on a release medium. Artist is empty when it
// matches the release artist.
type Track struct {
	Number      int    `json:"number"`
	Title       string `json:"title"`
	DurationSec int    `json:"duration_seconds,omitempty"`
	Artist      string `json:"artist,omitempty"`
}

// Year extracts the release year from the date field, 0 when unknown.
func (r Release) Year() int {
	if len(r.Date) < 4 {
		return 0
	}
	var year int
	if _, err := fmt.Sscanf(r.Date[:4], "%d", &year); err != nil {
		return 0
	}
	return year
}

// Client talks to the MusicBrainz web service.
type Client struct {
	userAgent  string
	apiBase    string
	coverBase  string
	httpClient *http.Client
	logger     zerolog.Logger

	// mu and lastRequest enforce the courtesy rate limit across all
	// concurrent callers.
	mu          sync.Mutex
	lastRequest time.Time
	minInterval time.Duration
}

// New constructs the client. userAgent must identify the application per
// the MusicBrainz etiquette rules.
func New(userAgent string, minInterval time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		userAgent:   userAgent,
		apiBase:     apiBase,
		coverBase:   coverArtBase,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		logger:      logger.With().Str("component", "musicbrainz").Logger(),
		minInterval: minInterval,
	}
}

// throttle blocks until the rate limit allows the next request.
func (c *Client) throttle(ctx context.Context) error {
	c.mu.Lock()
	wait := c.minInterval - time.Since(c.lastRequest)
	if wait > 0 {
		c.lastRequest = c.lastRequest.Add(c.minInterval)
	} else {
		c.lastRequest = time.Now()
		wait = 0
	}
	c.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

// get performs one rate-limited API request and decodes the JSON body.
func (c *Client) get(ctx context.Context, rawURL string, out any) error {
	if err := c.throttle(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("musicbrainz request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("musicbrainz request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("musicbrainz: unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("musicbrainz: decode response: %w", err)
	}
	return nil
}

// ErrNotFound is returned for lookups of unknown MBIDs or releases without
// cover art.
var ErrNotFound = fmt.Errorf("musicbrainz: not found")

// search wire format.
type searchResponse struct {
	Releases []struct {
		ID           string `json:"id"`
		Title        string `json:"title"`
		Score        int    `json:"score"`
		Date         string `json:"date"`
		Country      string `json:"country"`
		ArtistCredit []struct {
			Name       string `json:"name"`
			JoinPhrase string `json:"joinphrase"`
		} `json:"artist-credit"`
		LabelInfo []struct {
			Label struct {
				Name string `json:"name"`
			} `json:"label"`
		} `json:"label-info"`
		TrackCount int `json:"track-count"`
		Media      []struct {
			Format string `json:"format"`
		} `json:"media"`
	} `json:"releases"`
}

func joinArtistCredit(credit []struct {
	Name       string `json:"name"`
	JoinPhrase string `json:"joinphrase"`
}) string {
	var b strings.Builder
	for _, part := range credit {
		b.WriteString(part.Name)
		b.WriteString(part.JoinPhrase)
	}
	return b.String()
}

// SearchReleases queries releases by artist and album name. Results come
// back ordered by MusicBrainz match score.
func (c *Client) SearchReleases(ctx context.Context, artist, album string, limit int) ([]Release, error) {
	if limit <= 0 {
		limit = 5
	}
	query := fmt.Sprintf(`artist:%q AND release:%q`, artist, album)
	u := fmt.Sprintf("%s/release?query=%s&limit=%d&fmt=json", c.apiBase, url.QueryEscape(query), limit)

	var resp searchResponse
	if err := c.get(ctx, u, &resp); err != nil {
		return nil, err
	}

	releases := make([]Release, 0, len(resp.Releases))
	for _, r := range resp.Releases {
		rel := Release{
			MBID:        r.ID,
			Title:       r.Title,
			Artist:      joinArtistCredit(r.ArtistCredit),
			Date:        r.Date,
			Country:     r.Country,
			TrackCount:  r.TrackCount,
			MediumCount: len(r.Media),
			Score:       r.Score,
		}
		if len(r.LabelInfo) > 0 {
			rel.Label = r.LabelInfo[0].Label.Name
		}
		releases = append(releases, rel)
	}
	return releases, nil
}

// release lookup wire format.
type releaseResponse struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Date         string `json:"date"`
	Country      string `json:"country"`
	ArtistCredit []struct {
		Name       string `json:"name"`
		JoinPhrase string `json:"joinphrase"`
	} `json:"artist-credit"`
	LabelInfo []struct {
		Label struct {
			Name string `json:"name"`
		} `json:"label"`
	} `json:"label-info"`
	Media []struct {
		Position int `json:"position"`
		Tracks   []struct {
			Position  int    `json:"position"`
			Title     string `json:"title"`
			Length    int    `json:"length"`
			Recording struct {
				Length int `json:"length"`
			} `json:"recording"`
			ArtistCredit []struct {
				Name       string `json:"name"`
				JoinPhrase string `json:"joinphrase"`
			} `json:"artist-credit"`
		} `json:"tracks"`
	} `json:"media"`
}

// GetRelease fetches a release with its track listing for one medium. A CD
// box set has several media; mediumPosition selects which disc, 1-based.
// A track-level artist is reported only when it differs from the release
// artist.
func (c *Client) GetRelease(ctx context.Context, mbid string, mediumPosition int) (*Release, error) {
	if mediumPosition < 1 {
		mediumPosition = 1
	}
	u := fmt.Sprintf("%s/release/%s?inc=recordings+artist-credits+labels&fmt=json", c.apiBase, url.PathEscape(mbid))

	var resp releaseResponse
	if err := c.get(ctx, u, &resp); err != nil {
		return nil, err
	}

	release := &Release{
		MBID:        resp.ID,
		Title:       resp.Title,
		Artist:      joinArtistCredit(resp.ArtistCredit),
		Date:        resp.Date,
		Country:     resp.Country,
		MediumCount: len(resp.Media),
	}
	if len(resp.LabelInfo) > 0 {
		release.Label = resp.LabelInfo[0].Label.Name
	}

	for _, medium := range resp.Media {
		if medium.Position != mediumPosition {
			continue
		}
		for _, t := range medium.Tracks {
			length := t.Length
			if length == 0 {
				length = t.Recording.Length
			}
			track := Track{
				Number:      t.Position,
				Title:       t.Title,
				DurationSec: length / 1000,
			}
			if artist := joinArtistCredit(t.ArtistCredit); artist != "" && artist != release.Artist {
				track.Artist = artist
			}
			release.Tracks = append(release.Tracks, track)
		}
		break
	}
	// A release with no resolvable tracks must not come back empty: callers
	// replace the stored track list with whatever arrives here.
	if len(release.Tracks) == 0 {
		return nil, fmt.Errorf("musicbrainz: release %s has no tracks at medium position %d", mbid, mediumPosition)
	}

	release.TrackCount = len(release.Tracks)
	return release, nil
}

// DownloadCoverArt fetches the 500px front cover from the Cover Art Archive
// and writes it to destPath. An existing file is kept as-is; a release
// without cover art returns ErrNotFound.
func (c *Client) DownloadCoverArt(ctx context.Context, mbid, destPath string) error {
	if _, err := os.Stat(destPath); err == nil {
		c.logger.Debug().Str("path", destPath).Msg("cover art already present")
		return nil
	}

	if err := c.throttle(ctx); err != nil {
		return err
	}

	u := fmt.Sprintf("%s/%s/front-500", c.coverBase, url.PathEscape(mbid))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("cover art request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("cover art request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cover art: unexpected status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("cover art: %w", err)
	}
	tmp := destPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("cover art: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("cover art: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("cover art: %w", err)
	}
	if err := os.Rename(tmp, destPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("cover art: %w", err)
	}

	c.logger.Info().Str("mbid", mbid).Str("path", destPath).Msg("cover art downloaded")
	return nil
}
