package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/slinkd/jukebox/internal/catalog"
	"github.com/slinkd/jukebox/internal/events"
	"github.com/slinkd/jukebox/internal/models"
	"github.com/slinkd/jukebox/internal/scrobble"
)

type recordingScrobbler struct {
	mu        sync.Mutex
	scrobbles []scrobble.Track
}

func (r *recordingScrobbler) Enabled() bool { return true }

func (r *recordingScrobbler) NowPlaying(context.Context, scrobble.Track) error { return nil }

func (r *recordingScrobbler) Scrobble(_ context.Context, track scrobble.Track, _ int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scrobbles = append(r.scrobbles, track)
	return nil
}

type fixture struct {
	machine   *Machine
	catalog   *catalog.Service
	bus       *events.Bus
	scrobbler *recordingScrobbler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := database.AutoMigrate(&models.Disc{}, &models.Track{}, &models.PlaybackState{}, &models.TrackPlay{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := database.Create(&models.PlaybackState{ID: 1, State: models.StateStop}).Error; err != nil {
		t.Fatalf("seed state: %v", err)
	}

	cat := catalog.New(database, zerolog.Nop())
	scrobbler := &recordingScrobbler{}
	scheduler := scrobble.NewScheduler(scrobbler, CatalogMetadata{Catalog: cat}, zerolog.Nop())
	bus := events.NewBus()
	return &fixture{
		machine:   New(database, cat, scheduler, bus, zerolog.Nop()),
		catalog:   cat,
		bus:       bus,
		scrobbler: scrobbler,
	}
}

func (f *fixture) seedDisc(t *testing.T, player, position int) {
	t.Helper()
	disc, err := f.catalog.UpsertDisc(context.Background(), player, position, catalog.DiscUpsert{
		Artist: "Miles Davis",
		Album:  "Kind of Blue",
		Year:   1959,
	})
	if err != nil {
		t.Fatalf("seed disc: %v", err)
	}
	err = f.catalog.ReplaceTracks(context.Background(), disc.ID, []models.Track{
		{TrackNumber: 1, Title: "So What", DurationSec: 545},
		{TrackNumber: 2, Title: "Freddie Freeloader", DurationSec: 589},
	})
	if err != nil {
		t.Fatalf("seed tracks: %v", err)
	}
}

func (f *fixture) playCount(t *testing.T, player, position int) int64 {
	t.Helper()
	disc, err := f.catalog.GetDisc(context.Background(), player, position)
	if err != nil {
		t.Fatalf("get disc: %v", err)
	}
	count, err := f.catalog.TotalTrackPlays(context.Background(), disc.ID)
	if err != nil {
		t.Fatalf("play count: %v", err)
	}
	return count
}

func TestReportStateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		report Report
	}{
		{"bad player", Report{Player: 3, Disc: 1, Track: 1, State: models.StatePlay}},
		{"bad disc", Report{Player: 1, Disc: 301, Track: 1, State: models.StatePlay}},
		{"bad track", Report{Player: 1, Disc: 1, Track: 0, State: models.StatePlay}},
		{"bad state", Report{Player: 1, Disc: 1, Track: 1, State: "rewind"}},
		{"loading not reportable", Report{Player: 1, Disc: 1, Track: 1, State: models.StateLoading}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.machine.ReportState(ctx, tt.report)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, ErrInvalidReport) {
				t.Fatalf("expected ErrInvalidReport, got %v", err)
			}
		})
	}
}

func TestDuplicatePlayReportRecordsOneListen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedDisc(t, 1, 5)

	report := Report{Player: 1, Disc: 5, Track: 1, State: models.StatePlay}
	for i := 0; i < 3; i++ {
		if _, err := f.machine.ReportState(ctx, report); err != nil {
			t.Fatalf("report %d: %v", i, err)
		}
	}

	if got := f.playCount(t, 1, 5); got != 1 {
		t.Fatalf("expected 1 recorded play for repeated reports, got %d", got)
	}
}

func TestTrackAdvanceRecordsNewListen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedDisc(t, 1, 5)

	if _, err := f.machine.ReportState(ctx, Report{Player: 1, Disc: 5, Track: 1, State: models.StatePlay}); err != nil {
		t.Fatalf("report: %v", err)
	}
	if _, err := f.machine.ReportState(ctx, Report{Player: 1, Disc: 5, Track: 2, State: models.StatePlay}); err != nil {
		t.Fatalf("report: %v", err)
	}

	if got := f.playCount(t, 1, 5); got != 2 {
		t.Fatalf("expected 2 recorded plays, got %d", got)
	}
}

func TestPlayerChangeAloneIsNewListen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedDisc(t, 1, 5)
	f.seedDisc(t, 2, 5)

	if _, err := f.machine.ReportState(ctx, Report{Player: 1, Disc: 5, Track: 1, State: models.StatePlay}); err != nil {
		t.Fatalf("report: %v", err)
	}
	// Same disc and track numbers, different player.
	if _, err := f.machine.ReportState(ctx, Report{Player: 2, Disc: 5, Track: 1, State: models.StatePlay}); err != nil {
		t.Fatalf("report: %v", err)
	}

	if got := f.playCount(t, 2, 5); got != 1 {
		t.Fatalf("expected a play recorded on player 2, got %d", got)
	}
}

func TestResumeAfterPauseIsNotNewListen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedDisc(t, 1, 5)

	reports := []Report{
		{Player: 1, Disc: 5, Track: 1, State: models.StatePlay},
		{Player: 1, Disc: 5, Track: 1, State: models.StatePause},
		{Player: 1, Disc: 5, Track: 1, State: models.StatePlay},
	}
	for _, r := range reports {
		if _, err := f.machine.ReportState(ctx, r); err != nil {
			t.Fatalf("report: %v", err)
		}
	}

	// The tuple survives the pause, so the resume is the same listen.
	if got := f.playCount(t, 1, 5); got != 1 {
		t.Fatalf("expected 1 recorded play across a pause, got %d", got)
	}
}

func TestReportStatePublishesEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedDisc(t, 1, 5)

	sub := f.bus.Subscribe(events.EventState)
	defer f.bus.Unsubscribe(events.EventState, sub)

	view, err := f.machine.ReportState(ctx, Report{Player: 1, Disc: 5, Track: 2, State: models.StatePlay})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if view.Artist != "Miles Davis" || view.TrackTitle != "Freddie Freeloader" {
		t.Fatalf("unexpected view metadata: %+v", view)
	}

	select {
	case payload := <-sub:
		if payload["state"] != "play" {
			t.Fatalf("unexpected payload: %+v", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}

func TestGetStateUncatalogedDisc(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.machine.ReportState(ctx, Report{Player: 2, Disc: 250, Track: 4, State: models.StatePlay}); err != nil {
		t.Fatalf("report: %v", err)
	}

	view, err := f.machine.GetState(ctx)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if view.Player != 2 || view.Disc != 250 || view.Track != 4 {
		t.Fatalf("unexpected state: %+v", view)
	}
	if view.Artist != "" || view.TrackTitle != "" {
		t.Fatalf("expected bare state for uncataloged disc, got %+v", view)
	}
}
