// Package collector pulls a window of recent listening activity from a music
// service and records it in the store. It keeps no memory of its own between
// runs: calling CollectOnce repeatedly over overlapping windows is safe
// because the store rejects duplicate events.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ademuri/listening-identity/internal/store"
)

// ErrNoFeatures is returned by clients that cannot supply audio features at
// all. It is not counted as a run error.
var ErrNoFeatures = errors.New("audio features not available")

// Play is one entry of the recently-played feed. TrackID and ArtistID are
// provider-qualified identities, e.g. "spotify:6rqhFgbbKwnb9MLmUQDhG6".
// ArtistID may be empty when the provider only knows the name.
type Play struct {
	TrackID    string
	TrackName  string
	ArtistID   string
	ArtistName string
	PlayedAt   time.Time
}

type RankedArtist struct {
	ArtistID string
	Name     string
	Rank     int
}

// Client is a music-service account. Authentication, retries and rate
// limiting are the client's concern.
type Client interface {
	RecentlyPlayed(ctx context.Context, limit int) ([]Play, error)
	TopArtists(ctx context.Context, window string) ([]RankedArtist, error)
	AudioFeatures(ctx context.Context, trackID string) (store.Features, error)
}

// Store is the part of *store.Store the collector writes to.
type Store interface {
	UpsertArtist(ctx context.Context, artist store.ArtistIdentity) (int64, error)
	UpsertTrack(ctx context.Context, track store.TrackIdentity, artistID int64, features *store.Features) (int64, error)
	TrackHasFeatures(ctx context.Context, identity string) (bool, error)
	RecordListeningEvent(ctx context.Context, trackID int64, playedAt time.Time, source store.Source) (bool, error)
	RecordTopArtist(ctx context.Context, e store.TopArtistEntry) error
	StartRun(ctx context.Context, id string, startedAt time.Time) error
	FinishRun(ctx context.Context, run store.Run) error
}

type Options struct {
	// Limit is passed to RecentlyPlayed. Zero means 50.
	Limit int
	// Windows lists the top-artist windows to snapshot. Empty skips them.
	Windows []string
	Now     func() time.Time
	Logger  *slog.Logger
}

// Report summarises one run. Errors holds every recoverable failure; a
// storage failure is returned separately by CollectOnce.
type Report struct {
	RunID         string
	EventsAdded   int
	EventsSkipped int
	ArtistsRanked int
	Errors        []error
	Duration      time.Duration
}

// CollectOnce runs a single collection pass. Failures of the provider are
// recorded in the report and the rest of the run continues; anything already
// written stays written. A storage failure ends the run and is returned.
func CollectOnce(ctx context.Context, client Client, st Store, opts Options) (Report, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	started := opts.Now()
	report := Report{RunID: uuid.NewString()}
	logger = logger.With("run", report.RunID)

	if err := st.StartRun(ctx, report.RunID, started); err != nil {
		return report, fmt.Errorf("starting run: %w", err)
	}

	c := &collection{client: client, store: st, report: &report, logger: logger}
	err := c.recentlyPlayed(ctx, opts.Limit)
	if err == nil {
		err = c.topArtists(ctx, started, opts.Windows)
	}

	report.Duration = opts.Now().Sub(started)
	notes := summarize(report.Errors)
	if err != nil {
		notes = "aborted: " + err.Error()
	}
	finishErr := st.FinishRun(ctx, store.Run{
		ID:            report.RunID,
		FinishedAt:    opts.Now(),
		EventsAdded:   report.EventsAdded,
		EventsSkipped: report.EventsSkipped,
		Errors:        len(report.Errors),
		Notes:         notes,
	})
	if err != nil {
		if finishErr != nil {
			logger.Error("closing aborted run", "error", finishErr)
		}
		return report, err
	}
	if finishErr != nil {
		return report, fmt.Errorf("finishing run: %w", finishErr)
	}

	logger.Info("collection finished",
		"added", report.EventsAdded,
		"skipped", report.EventsSkipped,
		"ranked", report.ArtistsRanked,
		"errors", len(report.Errors))
	return report, nil
}

type collection struct {
	client Client
	store  Store
	report *Report
	logger *slog.Logger
}

func (c *collection) fail(err error) {
	c.logger.Warn("collection error", "error", err)
	c.report.Errors = append(c.report.Errors, err)
}

func (c *collection) recentlyPlayed(ctx context.Context, limit int) error {
	plays, err := c.client.RecentlyPlayed(ctx, limit)
	if err != nil {
		c.fail(fmt.Errorf("fetching recently played: %w", err))
		return nil
	}
	c.logger.Debug("fetched recently played", "count", len(plays))

	for _, play := range plays {
		if err := c.play(ctx, play); err != nil {
			return err
		}
	}
	return nil
}

// play stores a single play. Only storage failures are returned.
func (c *collection) play(ctx context.Context, play Play) error {
	if play.TrackID == "" {
		c.fail(&store.ValidationError{Field: "track identity", Value: play.TrackName, Reason: "empty"})
		return nil
	}

	artistID, err := c.store.UpsertArtist(ctx, artistIdentity(play.ArtistID, play.ArtistName))
	if err != nil {
		return c.recordOrAbort(fmt.Errorf("storing artist %q: %w", play.ArtistName, err))
	}

	track := store.TrackIdentity{Identity: play.TrackID, Name: play.TrackName}
	features, err := c.features(ctx, play.TrackID)
	if err != nil {
		return err
	}

	trackID, err := c.store.UpsertTrack(ctx, track, artistID, features)
	if store.IsValidation(err) && features != nil {
		// Keep the play; the features are retried on a later run.
		c.fail(fmt.Errorf("features for %s: %w", play.TrackID, err))
		trackID, err = c.store.UpsertTrack(ctx, track, artistID, nil)
	}
	if err != nil {
		return c.recordOrAbort(fmt.Errorf("storing track %s: %w", play.TrackID, err))
	}

	added, err := c.store.RecordListeningEvent(ctx, trackID, play.PlayedAt, store.SourceLive)
	if err != nil {
		return c.recordOrAbort(fmt.Errorf("storing play of %s: %w", play.TrackID, err))
	}
	if added {
		c.report.EventsAdded++
	} else {
		c.report.EventsSkipped++
	}
	return nil
}

// features returns nil when the track already has features or they could not
// be fetched.
func (c *collection) features(ctx context.Context, trackID string) (*store.Features, error) {
	has, err := c.store.TrackHasFeatures(ctx, trackID)
	if err != nil {
		return nil, fmt.Errorf("checking features of %s: %w", trackID, err)
	}
	if has {
		return nil, nil
	}

	f, err := c.client.AudioFeatures(ctx, trackID)
	if errors.Is(err, ErrNoFeatures) {
		return nil, nil
	}
	if err != nil {
		c.fail(fmt.Errorf("fetching features for %s: %w", trackID, err))
		return nil, nil
	}
	return &f, nil
}

func (c *collection) topArtists(ctx context.Context, day time.Time, windows []string) error {
	for _, window := range windows {
		artists, err := c.client.TopArtists(ctx, window)
		if err != nil {
			c.fail(fmt.Errorf("fetching top artists (%s): %w", window, err))
			continue
		}

		for _, a := range artists {
			artistID, err := c.store.UpsertArtist(ctx, artistIdentity(a.ArtistID, a.Name))
			if err != nil {
				if err := c.recordOrAbort(fmt.Errorf("storing artist %q: %w", a.Name, err)); err != nil {
					return err
				}
				continue
			}
			err = c.store.RecordTopArtist(ctx, store.TopArtistEntry{Day: day, Window: window, ArtistID: artistID, Rank: a.Rank})
			if err != nil {
				if err := c.recordOrAbort(fmt.Errorf("storing top artist %q: %w", a.Name, err)); err != nil {
					return err
				}
				continue
			}
			c.report.ArtistsRanked++
		}
	}
	return nil
}

// recordOrAbort keeps validation failures in the report and hands storage
// failures back to end the run.
func (c *collection) recordOrAbort(err error) error {
	if store.IsValidation(err) {
		c.fail(err)
		return nil
	}
	return err
}

// artistIdentity returns an empty identity, rejected by the store, when
// neither an id nor a name is known.
func artistIdentity(id, name string) store.ArtistIdentity {
	if id == "" {
		if strings.TrimSpace(name) == "" {
			return store.ArtistIdentity{}
		}
		return store.ArtistByName(name)
	}
	return store.ArtistIdentity{Identity: id, Name: name}
}

func summarize(errs []error) string {
	if len(errs) == 0 {
		return ""
	}
	const shown = 3
	var parts []string
	for i, err := range errs {
		if i == shown {
			parts = append(parts, fmt.Sprintf("and %d more", len(errs)-shown))
			break
		}
		parts = append(parts, err.Error())
	}
	return strings.Join(parts, "; ")
}
