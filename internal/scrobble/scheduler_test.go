package scrobble

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeScrobbler struct {
	mu            sync.Mutex
	enabled       bool
	nowPlaying    []Track
	nowPlayingErr error
	npSeen        chan struct{}
	scrobbles     []Track
	timestamps    []int64
}

func (f *fakeScrobbler) Enabled() bool { return f.enabled }

func (f *fakeScrobbler) NowPlaying(ctx context.Context, track Track) error {
	f.mu.Lock()
	f.nowPlaying = append(f.nowPlaying, track)
	f.nowPlayingErr = ctx.Err()
	seen := f.npSeen
	f.mu.Unlock()
	if seen != nil {
		select {
		case seen <- struct{}{}:
		default:
		}
	}
	return nil
}

func (f *fakeScrobbler) nowPlayingCtxErr() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nowPlayingErr
}

func (f *fakeScrobbler) Scrobble(_ context.Context, track Track, startedAt int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scrobbles = append(f.scrobbles, track)
	f.timestamps = append(f.timestamps, startedAt)
	return nil
}

func (f *fakeScrobbler) scrobbled() []Track {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Track, len(f.scrobbles))
	copy(out, f.scrobbles)
	return out
}

type fakeMeta struct {
	track Track
	err   error
}

func (f *fakeMeta) TrackInfo(context.Context, int, int, int) (*Track, error) {
	if f.err != nil {
		return nil, f.err
	}
	t := f.track
	return &t, nil
}

// capturedTimer records armed timers without real delays; the test fires
// them by hand.
type capturedTimer struct {
	mu     sync.Mutex
	delays []time.Duration
	funcs  []func()
}

func (c *capturedTimer) factory(d time.Duration, f func()) *time.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delays = append(c.delays, d)
	c.funcs = append(c.funcs, f)
	return time.NewTimer(time.Hour)
}

func (c *capturedTimer) fireLast() {
	c.mu.Lock()
	f := c.funcs[len(c.funcs)-1]
	c.mu.Unlock()
	f()
}

func newTestScheduler(scrobbler Scrobbler, meta MetadataSource) (*Scheduler, *capturedTimer) {
	s := NewScheduler(scrobbler, meta, zerolog.Nop())
	timers := &capturedTimer{}
	s.newTimer = timers.factory
	return s, timers
}

func TestScrobbleDelay(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		want     time.Duration
	}{
		{"unknown duration", 0, 180 * time.Second},
		{"short track halves", 100 * time.Second, 50 * time.Second},
		{"long track capped", 1000 * time.Second, 240 * time.Second},
		{"exactly at cap", 480 * time.Second, 240 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scrobbleDelay(tt.duration); got != tt.want {
				t.Fatalf("scrobbleDelay(%v) = %v, want %v", tt.duration, got, tt.want)
			}
		})
	}
}

func TestSchedulerFiresAfterDelay(t *testing.T) {
	scrobbler := &fakeScrobbler{enabled: true}
	meta := &fakeMeta{track: Track{Artist: "Miles Davis", Album: "Kind of Blue", Title: "So What", DurationSec: 545}}
	s, timers := newTestScheduler(scrobbler, meta)

	before := time.Now().Unix()
	s.OnTrackStart(context.Background(), TrackMeta{Player: 1, Disc: 3, Track: 1})

	if len(timers.delays) != 1 || timers.delays[0] != 240*time.Second {
		t.Fatalf("expected one timer at 240s, got %v", timers.delays)
	}
	if got := scrobbler.scrobbled(); len(got) != 0 {
		t.Fatalf("scrobbled before the timer fired: %+v", got)
	}

	timers.fireLast()

	got := scrobbler.scrobbled()
	if len(got) != 1 || got[0].Title != "So What" {
		t.Fatalf("unexpected scrobbles: %+v", got)
	}
	// The submitted timestamp is the listen start, not the fire time.
	if ts := scrobbler.timestamps[0]; ts < before || ts > time.Now().Unix() {
		t.Fatalf("timestamp %d outside listen start window", ts)
	}
}

func TestTrackChangeCancelsPendingScrobble(t *testing.T) {
	scrobbler := &fakeScrobbler{enabled: true}
	meta := &fakeMeta{track: Track{Artist: "a", Title: "one", DurationSec: 300}}
	s, timers := newTestScheduler(scrobbler, meta)
	ctx := context.Background()

	s.OnTrackStart(ctx, TrackMeta{Player: 1, Disc: 1, Track: 1})
	firstTimer := timers.funcs[0]

	meta.track = Track{Artist: "a", Title: "two", DurationSec: 300}
	s.OnTrackStart(ctx, TrackMeta{Player: 1, Disc: 1, Track: 2})

	// The first timer fires late (Stop raced the callback); the generation
	// check must discard it.
	firstTimer()
	if got := scrobbler.scrobbled(); len(got) != 0 {
		t.Fatalf("stale timer submitted a scrobble: %+v", got)
	}

	timers.fireLast()
	got := scrobbler.scrobbled()
	if len(got) != 1 || got[0].Title != "two" {
		t.Fatalf("expected only the second track scrobbled, got %+v", got)
	}
}

func TestMetadataFailureStillCancelsPending(t *testing.T) {
	scrobbler := &fakeScrobbler{enabled: true}
	meta := &fakeMeta{track: Track{Artist: "a", Title: "one", DurationSec: 300}}
	s, timers := newTestScheduler(scrobbler, meta)
	ctx := context.Background()

	s.OnTrackStart(ctx, TrackMeta{Player: 1, Disc: 1, Track: 1})

	// The next slot is uncataloged. Nothing new gets scheduled, but the
	// listener still abandoned the first track, so its pending scrobble
	// must not survive.
	meta.err = errors.New("uncataloged slot")
	s.OnTrackStart(ctx, TrackMeta{Player: 1, Disc: 2, Track: 1})

	timers.fireLast()
	if got := scrobbler.scrobbled(); len(got) != 0 {
		t.Fatalf("superseded scrobble fired: %+v", got)
	}
}

func TestNowPlayingOutlivesReportRequest(t *testing.T) {
	scrobbler := &fakeScrobbler{enabled: true, npSeen: make(chan struct{}, 1)}
	meta := &fakeMeta{track: Track{Artist: "a", Title: "one", DurationSec: 300}}
	s, _ := newTestScheduler(scrobbler, meta)

	// The report request's context is already gone by the time the
	// now-playing call goes out.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.OnTrackStart(ctx, TrackMeta{Player: 1, Disc: 1, Track: 1})

	select {
	case <-scrobbler.npSeen:
	case <-time.After(2 * time.Second):
		t.Fatal("now playing update never sent")
	}
	if err := scrobbler.nowPlayingCtxErr(); err != nil {
		t.Fatalf("now playing call inherited a dead context: %v", err)
	}
}

func TestStopCancelsPendingScrobble(t *testing.T) {
	scrobbler := &fakeScrobbler{enabled: true}
	meta := &fakeMeta{track: Track{Artist: "a", Title: "one", DurationSec: 300}}
	s, timers := newTestScheduler(scrobbler, meta)

	s.OnTrackStart(context.Background(), TrackMeta{Player: 1, Disc: 1, Track: 1})
	s.OnPlaybackStopped()

	timers.fireLast()
	if got := scrobbler.scrobbled(); len(got) != 0 {
		t.Fatalf("scrobble fired after stop: %+v", got)
	}
}

func TestDisabledScrobblerSchedulesNothing(t *testing.T) {
	scrobbler := &fakeScrobbler{enabled: false}
	meta := &fakeMeta{track: Track{Artist: "a", Title: "one"}}
	s, timers := newTestScheduler(scrobbler, meta)

	s.OnTrackStart(context.Background(), TrackMeta{Player: 1, Disc: 1, Track: 1})
	if len(timers.funcs) != 0 {
		t.Fatalf("expected no timers with scrobbling disabled, got %d", len(timers.funcs))
	}
}

func TestMissingMetadataSkipsScrobble(t *testing.T) {
	scrobbler := &fakeScrobbler{enabled: true}
	meta := &fakeMeta{err: context.DeadlineExceeded}
	s, timers := newTestScheduler(scrobbler, meta)

	s.OnTrackStart(context.Background(), TrackMeta{Player: 2, Disc: 250, Track: 4})
	if len(timers.funcs) != 0 {
		t.Fatalf("expected no timers without metadata, got %d", len(timers.funcs))
	}
}
