package collector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ademuri/listening-identity/internal/store"
)

type fakeClient struct {
	plays       []Play
	playsErr    error
	top         map[string][]RankedArtist
	topErr      error
	features    map[string]store.Features
	featureErrs map[string]error
	featureHits int
}

func (f *fakeClient) RecentlyPlayed(ctx context.Context, limit int) ([]Play, error) {
	if f.playsErr != nil {
		return nil, f.playsErr
	}
	if len(f.plays) > limit {
		return f.plays[:limit], nil
	}
	return f.plays, nil
}

func (f *fakeClient) TopArtists(ctx context.Context, window string) ([]RankedArtist, error) {
	if f.topErr != nil {
		return nil, f.topErr
	}
	return f.top[window], nil
}

func (f *fakeClient) AudioFeatures(ctx context.Context, trackID string) (store.Features, error) {
	f.featureHits++
	if err, ok := f.featureErrs[trackID]; ok {
		return store.Features{}, err
	}
	return f.features[trackID], nil
}

func createTestDb(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "collector.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var base = time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)

func features(tempo float64) store.Features {
	return store.Features{Danceability: 0.5, Energy: 0.5, Valence: 0.5, Tempo: tempo}
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		plays: []Play{
			{TrackID: "spotify:t1", TrackName: "Holocene", ArtistID: "spotify:a1", ArtistName: "Bon Iver", PlayedAt: base},
			{TrackID: "spotify:t2", TrackName: "Something in the Orange", ArtistID: "spotify:a2", ArtistName: "Zach Bryan", PlayedAt: base.Add(4 * time.Minute)},
			{TrackID: "spotify:t1", TrackName: "Holocene", ArtistID: "spotify:a1", ArtistName: "Bon Iver", PlayedAt: base.Add(9 * time.Minute)},
		},
		top: map[string][]RankedArtist{
			"short_term": {
				{ArtistID: "spotify:a2", Name: "Zach Bryan", Rank: 1},
				{ArtistID: "spotify:a1", Name: "Bon Iver", Rank: 2},
			},
		},
		features: map[string]store.Features{
			"spotify:t1": features(110),
			"spotify:t2": features(95),
		},
	}
}

func testOptions() Options {
	return Options{Windows: []string{"short_term"}, Now: func() time.Time { return base.Add(time.Hour) }}
}

func TestCollectOnce(t *testing.T) {
	s := createTestDb(t)
	client := newFakeClient()

	report, err := CollectOnce(context.Background(), client, s, testOptions())
	if err != nil {
		t.Fatalf("CollectOnce: %v", err)
	}
	if report.EventsAdded != 3 || report.EventsSkipped != 0 || report.ArtistsRanked != 2 {
		t.Errorf("unexpected report %+v", report)
	}
	if len(report.Errors) != 0 {
		t.Errorf("unexpected errors %v", report.Errors)
	}
	// The second play of t1 finds features already stored.
	if client.featureHits != 2 {
		t.Errorf("expected 2 feature fetches, got %d", client.featureHits)
	}

	runs, _ := s.Runs(context.Background(), 5)
	if len(runs) != 1 || runs[0].ID != report.RunID || runs[0].EventsAdded != 3 {
		t.Errorf("unexpected run log %+v", runs)
	}
}

func TestCollectOnceIsIdempotent(t *testing.T) {
	s := createTestDb(t)
	ctx := context.Background()

	first, err := CollectOnce(ctx, newFakeClient(), s, testOptions())
	if err != nil {
		t.Fatalf("first CollectOnce: %v", err)
	}
	second, err := CollectOnce(ctx, newFakeClient(), s, testOptions())
	if err != nil {
		t.Fatalf("second CollectOnce: %v", err)
	}
	if second.EventsAdded != 0 || second.EventsSkipped != 3 {
		t.Errorf("expected all events skipped on repeat, got %+v", second)
	}
	if first.RunID == second.RunID {
		t.Errorf("expected distinct run ids")
	}

	counts, _ := s.Counts(ctx)
	if counts.Events != 3 || counts.Tracks != 2 || counts.Artists != 2 {
		t.Errorf("unexpected counts %+v", counts)
	}
}

func TestCollectOnceFeatureFailure(t *testing.T) {
	s := createTestDb(t)
	ctx := context.Background()
	client := newFakeClient()
	client.plays = client.plays[1:2]
	client.featureErrs = map[string]error{"spotify:t2": errors.New("503 from provider")}

	report, err := CollectOnce(ctx, client, s, testOptions())
	if err != nil {
		t.Fatalf("CollectOnce: %v", err)
	}
	if report.EventsAdded != 1 {
		t.Errorf("expected the play to be stored, got %+v", report)
	}
	if len(report.Errors) != 1 {
		t.Errorf("expected exactly one error, got %v", report.Errors)
	}

	has, _ := s.TrackHasFeatures(ctx, "spotify:t2")
	if has {
		t.Errorf("expected track without features")
	}

	// A later run fills them in.
	client.featureErrs = nil
	if _, err := CollectOnce(ctx, client, s, testOptions()); err != nil {
		t.Fatalf("CollectOnce: %v", err)
	}
	has, _ = s.TrackHasFeatures(ctx, "spotify:t2")
	if !has {
		t.Errorf("expected features after second run")
	}
}

func TestCollectOnceInvalidFeatures(t *testing.T) {
	s := createTestDb(t)
	client := newFakeClient()
	client.plays = client.plays[:1]
	client.features["spotify:t1"] = features(400)

	report, err := CollectOnce(context.Background(), client, s, testOptions())
	if err != nil {
		t.Fatalf("CollectOnce: %v", err)
	}
	if report.EventsAdded != 1 || len(report.Errors) != 1 {
		t.Errorf("unexpected report %+v", report)
	}
	if !store.IsValidation(report.Errors[0]) {
		t.Errorf("expected validation error, got %v", report.Errors[0])
	}
}

func TestCollectOnceNoFeaturesIsNotAnError(t *testing.T) {
	s := createTestDb(t)
	client := newFakeClient()
	client.featureErrs = map[string]error{"spotify:t1": ErrNoFeatures, "spotify:t2": ErrNoFeatures}

	report, err := CollectOnce(context.Background(), client, s, testOptions())
	if err != nil {
		t.Fatalf("CollectOnce: %v", err)
	}
	if len(report.Errors) != 0 || report.EventsAdded != 3 {
		t.Errorf("unexpected report %+v", report)
	}
}

func TestCollectOnceTopArtistsFailure(t *testing.T) {
	s := createTestDb(t)
	client := newFakeClient()
	client.topErr = errors.New("401 unauthorized")

	report, err := CollectOnce(context.Background(), client, s, testOptions())
	if err != nil {
		t.Fatalf("CollectOnce: %v", err)
	}
	if report.EventsAdded != 3 || report.ArtistsRanked != 0 || len(report.Errors) != 1 {
		t.Errorf("unexpected report %+v", report)
	}

	runs, _ := s.Runs(context.Background(), 1)
	if !strings.Contains(runs[0].Notes, "401") {
		t.Errorf("expected the error in the run notes, got %q", runs[0].Notes)
	}
}

func TestCollectOnceRecentlyPlayedFailure(t *testing.T) {
	s := createTestDb(t)
	client := newFakeClient()
	client.playsErr = errors.New("timeout")

	report, err := CollectOnce(context.Background(), client, s, testOptions())
	if err != nil {
		t.Fatalf("CollectOnce: %v", err)
	}
	if report.EventsAdded != 0 || report.ArtistsRanked != 2 || len(report.Errors) != 1 {
		t.Errorf("unexpected report %+v", report)
	}
}

// brokenStore fails every event write.
type brokenStore struct {
	*store.Store
	finished []store.Run
}

func (b *brokenStore) RecordListeningEvent(context.Context, int64, time.Time, store.Source) (bool, error) {
	return false, &store.StorageError{Op: "inserting listening event", Err: errors.New("disk I/O error")}
}

func (b *brokenStore) FinishRun(ctx context.Context, run store.Run) error {
	b.finished = append(b.finished, run)
	return b.Store.FinishRun(ctx, run)
}

func TestCollectOnceStorageFailureAborts(t *testing.T) {
	s := &brokenStore{Store: createTestDb(t)}
	client := newFakeClient()

	report, err := CollectOnce(context.Background(), client, s, testOptions())
	if !store.IsStorage(err) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if report.ArtistsRanked != 0 {
		t.Errorf("expected run to stop before top artists, got %+v", report)
	}
	if len(s.finished) != 1 || !strings.HasPrefix(s.finished[0].Notes, "aborted") {
		t.Errorf("expected the run to be closed as aborted, got %+v", s.finished)
	}
}

func TestWriteTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collector.prom")
	report := Report{EventsAdded: 4, EventsSkipped: 1, Errors: []error{errors.New("x")}, Duration: 2 * time.Second}

	if err := report.WriteTextfile(path, float64(base.Unix())); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	for _, want := range []string{
		"listening_collector_events_added 4",
		"listening_collector_events_skipped 1",
		"listening_collector_errors 1",
		"listening_collector_duration_seconds 2",
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("expected %q in:\n%s", want, data)
		}
	}
}
