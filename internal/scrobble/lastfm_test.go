package scrobble

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestLastFMEnabled(t *testing.T) {
	if NewLastFM("key", "secret", "session", zerolog.Nop()).Enabled() != true {
		t.Fatal("expected enabled with full credentials")
	}
	if NewLastFM("key", "secret", "", zerolog.Nop()).Enabled() {
		t.Fatal("expected disabled without a session key")
	}
	if NewLastFM("", "", "", zerolog.Nop()).Enabled() {
		t.Fatal("expected disabled without credentials")
	}
}

func TestLastFMScrobbleRequest(t *testing.T) {
	var form map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		form = map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		w.Write([]byte(`{"scrobbles":{}}`))
	}))
	defer server.Close()

	client := NewLastFM("apikey", "secret", "sk1", zerolog.Nop())
	client.endpoint = server.URL

	track := Track{Artist: "Nirvana", Album: "Nevermind", Title: "Lithium", DurationSec: 257}
	if err := client.Scrobble(context.Background(), track, 1700000000); err != nil {
		t.Fatalf("scrobble: %v", err)
	}

	want := map[string]string{
		"method":    "track.scrobble",
		"artist":    "Nirvana",
		"album":     "Nevermind",
		"track":     "Lithium",
		"duration":  "257",
		"timestamp": "1700000000",
		"api_key":   "apikey",
		"sk":        "sk1",
		"format":    "json",
	}
	for k, v := range want {
		if form[k] != v {
			t.Fatalf("form[%q] = %q, want %q", k, form[k], v)
		}
	}

	// The signature covers all parameters except format, sorted by name.
	signed := "albumNevermind" + "api_keyapikey" + "artistNirvana" + "duration257" +
		"methodtrack.scrobble" + "sksk1" + "timestamp1700000000" + "trackLithium" + "secret"
	sum := md5.Sum([]byte(signed))
	if form["api_sig"] != hex.EncodeToString(sum[:]) {
		t.Fatalf("unexpected signature %q", form["api_sig"])
	}
}

func TestLastFMAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":9,"message":"Invalid session key"}`))
	}))
	defer server.Close()

	client := NewLastFM("apikey", "secret", "stale", zerolog.Nop())
	client.endpoint = server.URL

	err := client.NowPlaying(context.Background(), Track{Artist: "a", Title: "b"})
	if err == nil {
		t.Fatal("expected an error for an api error response")
	}
}
