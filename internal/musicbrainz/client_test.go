package musicbrainz

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestClient(apiURL, coverURL string) *Client {
	c := New("TestAgent/1.0", time.Millisecond, zerolog.Nop())
	c.apiBase = apiURL
	c.coverBase = coverURL
	return c
}

func TestSearchReleases(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte(`{"releases":[{
			"id":"abc-123",
			"title":"Kind of Blue",
			"score":100,
			"date":"1959-08-17",
			"country":"US",
			"artist-credit":[{"name":"Miles Davis","joinphrase":""}],
			"label-info":[{"label":{"name":"Columbia"}}],
			"track-count":5,
			"media":[{"format":"CD"}]
		}]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.URL)
	releases, err := client.SearchReleases(context.Background(), "Miles Davis", "Kind of Blue", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if gotUA != "TestAgent/1.0" {
		t.Fatalf("expected identifying user agent, got %q", gotUA)
	}
	if len(releases) != 1 {
		t.Fatalf("expected 1 release, got %d", len(releases))
	}
	r := releases[0]
	if r.MBID != "abc-123" || r.Artist != "Miles Davis" || r.Label != "Columbia" {
		t.Fatalf("unexpected release: %+v", r)
	}
	if r.Year() != 1959 {
		t.Fatalf("expected year 1959, got %d", r.Year())
	}
}

func TestGetReleaseMediumSelection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"id":"box-set",
			"title":"Anthology",
			"date":"1995",
			"artist-credit":[{"name":"The Beatles","joinphrase":""}],
			"media":[
				{"position":1,"tracks":[
					{"position":1,"title":"Disc One Opener","length":180000,
					 "artist-credit":[{"name":"The Beatles","joinphrase":""}]}
				]},
				{"position":2,"tracks":[
					{"position":1,"title":"Disc Two Opener","length":0,
					 "recording":{"length":200000},
					 "artist-credit":[{"name":"Guest Singer","joinphrase":""}]}
				]}
			]
		}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.URL)
	release, err := client.GetRelease(context.Background(), "box-set", 2)
	if err != nil {
		t.Fatalf("get release: %v", err)
	}
	if release.MediumCount != 2 || len(release.Tracks) != 1 {
		t.Fatalf("unexpected release: %+v", release)
	}
	track := release.Tracks[0]
	if track.Title != "Disc Two Opener" {
		t.Fatalf("expected medium 2 track, got %q", track.Title)
	}
	// Track length falls back to the recording length.
	if track.DurationSec != 200 {
		t.Fatalf("expected 200s duration, got %d", track.DurationSec)
	}
	// The guest artist differs from the release artist, so it is kept.
	if track.Artist != "Guest Singer" {
		t.Fatalf("expected track artist override, got %q", track.Artist)
	}
}

func TestGetReleaseDropsMatchingTrackArtist(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"id":"x",
			"title":"Album",
			"artist-credit":[{"name":"Band","joinphrase":""}],
			"media":[{"position":1,"tracks":[
				{"position":1,"title":"Song","length":120000,
				 "artist-credit":[{"name":"Band","joinphrase":""}]}
			]}]
		}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.URL)
	release, err := client.GetRelease(context.Background(), "x", 1)
	if err != nil {
		t.Fatalf("get release: %v", err)
	}
	if release.Tracks[0].Artist != "" {
		t.Fatalf("expected empty artist when matching the release, got %q", release.Tracks[0].Artist)
	}
}

func TestGetReleaseUnknownMBID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.URL)
	if _, err := client.GetRelease(context.Background(), "nope", 1); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetReleaseWithoutMediaErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"id":"empty-1",
			"title":"Phantom Release",
			"artist-credit":[{"name":"Nobody","joinphrase":""}],
			"media":[]
		}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.URL)
	if _, err := client.GetRelease(context.Background(), "empty-1", 1); err == nil {
		t.Fatal("expected error for release without tracks")
	}
}

func TestThrottleSpacesRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"releases":[]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.URL)
	client.minInterval = 50 * time.Millisecond

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := client.SearchReleases(context.Background(), "a", "b", 1); err != nil {
			t.Fatalf("search %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Fatalf("expected three requests to take at least 100ms, took %v", elapsed)
	}
}

func TestDownloadCoverArt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("jpeg-bytes"))
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.URL)
	dest := filepath.Join(t.TempDir(), "covers", "p1-5.jpg")

	if err := client.DownloadCoverArt(context.Background(), "abc", dest); err != nil {
		t.Fatalf("download: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read cover: %v", err)
	}
	if string(data) != "jpeg-bytes" {
		t.Fatalf("unexpected cover content %q", data)
	}

	// A second download keeps the existing file without re-fetching.
	if err := client.DownloadCoverArt(context.Background(), "abc", dest); err != nil {
		t.Fatalf("re-download: %v", err)
	}
}

func TestDownloadCoverArtMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.URL)
	dest := filepath.Join(t.TempDir(), "p1-6.jpg")
	if err := client.DownloadCoverArt(context.Background(), "noart", dest); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatal("expected no file written for missing cover art")
	}
}
