package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/ademuri/listening-identity/internal/reconcile"
)

// Source tags where a listening event came from.
type Source string

const (
	SourceLive    Source = "live"
	SourceRanking Source = "ranking"
)

func (s Source) valid() bool {
	return s == SourceLive || s == SourceRanking
}

// ArtistIdentity identifies an artist. Identity is a provider id such as
// "spotify:4oLeXFyACqeem2VImYeBFe", or "name:<normalized name>" when only the
// name is known.
type ArtistIdentity struct {
	Identity string
	Name     string
}

// ArtistByName builds the identity used for artists known only by name.
func ArtistByName(name string) ArtistIdentity {
	return ArtistIdentity{Identity: "name:" + reconcile.Normalize(name), Name: strings.TrimSpace(name)}
}

type TrackIdentity struct {
	Identity string
	Name     string
}

// UpsertArtist inserts the artist if absent and returns its id. Repeat calls
// return the same id. A known name is never replaced, only filled in.
func (s *Store) UpsertArtist(ctx context.Context, artist ArtistIdentity) (int64, error) {
	return s.upsertArtist(ctx, s.db, artist)
}

func (s *Store) upsertArtist(ctx context.Context, q querier, artist ArtistIdentity) (int64, error) {
	if strings.TrimSpace(artist.Identity) == "" {
		return 0, &ValidationError{Field: "artist identity", Value: artist.Identity, Reason: "empty"}
	}

	name := strings.TrimSpace(artist.Name)
	_, err := q.ExecContext(ctx, `
		INSERT INTO Artist (identity, name, normalized_name, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			name = CASE WHEN Artist.name = '' THEN excluded.name ELSE Artist.name END,
			normalized_name = CASE WHEN Artist.normalized_name = '' THEN excluded.normalized_name ELSE Artist.normalized_name END
	`, artist.Identity, name, reconcile.Normalize(name), s.now().Unix())
	if err != nil {
		return 0, &StorageError{Op: "inserting artist " + artist.Identity, Err: err}
	}

	var id int64
	if err := q.QueryRowContext(ctx, "SELECT id FROM Artist WHERE identity = ?", artist.Identity).Scan(&id); err != nil {
		return 0, &StorageError{Op: "reading artist " + artist.Identity, Err: err}
	}
	return id, nil
}

// UpsertTrack inserts the track if absent and returns its id. Audio features
// are static metadata: once stored they are never changed, but a track first
// seen without features may have them filled in later.
func (s *Store) UpsertTrack(ctx context.Context, track TrackIdentity, artistID int64, features *Features) (int64, error) {
	if strings.TrimSpace(track.Identity) == "" {
		return 0, &ValidationError{Field: "track identity", Value: track.Identity, Reason: "empty"}
	}
	if features != nil {
		if err := features.Validate(); err != nil {
			return 0, err
		}
	}
	if err := s.requireRow(ctx, "SELECT 1 FROM Artist WHERE id = ?", artistID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, &ValidationError{Field: "artist", Value: artistID, Reason: "no such artist"}
		}
		return 0, &StorageError{Op: "checking artist", Err: err}
	}

	args := []any{track.Identity, artistID, strings.TrimSpace(track.Name)}
	args = append(args, featureArgs(features)...)
	args = append(args, s.now().Unix())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO Track (
			identity, artist, name,
			danceability, energy, valence, acousticness,
			instrumentalness, liveness, speechiness, tempo,
			created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			name = CASE WHEN Track.name = '' THEN excluded.name ELSE Track.name END,
			danceability = COALESCE(Track.danceability, excluded.danceability),
			energy = COALESCE(Track.energy, excluded.energy),
			valence = COALESCE(Track.valence, excluded.valence),
			acousticness = COALESCE(Track.acousticness, excluded.acousticness),
			instrumentalness = COALESCE(Track.instrumentalness, excluded.instrumentalness),
			liveness = COALESCE(Track.liveness, excluded.liveness),
			speechiness = COALESCE(Track.speechiness, excluded.speechiness),
			tempo = COALESCE(Track.tempo, excluded.tempo)
	`, args...)
	if err != nil {
		return 0, &StorageError{Op: "inserting track " + track.Identity, Err: err}
	}

	var id int64
	if err := s.db.QueryRowContext(ctx, "SELECT id FROM Track WHERE identity = ?", track.Identity).Scan(&id); err != nil {
		return 0, &StorageError{Op: "reading track " + track.Identity, Err: err}
	}
	return id, nil
}

// TrackHasFeatures reports whether the track exists and has audio features.
func (s *Store) TrackHasFeatures(ctx context.Context, identity string) (bool, error) {
	var has bool
	err := s.db.QueryRowContext(ctx, "SELECT danceability IS NOT NULL FROM Track WHERE identity = ?", identity).Scan(&has)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, &StorageError{Op: "checking track features", Err: err}
	}
	return has, nil
}

// RecordListeningEvent stores a play. It returns false, without error, when an
// event with the same track, timestamp and source already exists; this is what
// makes repeated polling of an overlapping window safe.
func (s *Store) RecordListeningEvent(ctx context.Context, trackID int64, playedAt time.Time, source Source) (bool, error) {
	if !source.valid() {
		return false, &ValidationError{Field: "source", Value: source, Reason: "unknown source"}
	}
	if playedAt.IsZero() {
		return false, &ValidationError{Field: "timestamp", Value: playedAt, Reason: "zero"}
	}
	if err := s.requireRow(ctx, "SELECT 1 FROM Track WHERE id = ?", trackID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, &ValidationError{Field: "track", Value: trackID, Reason: "no such track"}
		}
		return false, &StorageError{Op: "checking track", Err: err}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO ListeningEvent (track, played_at, source)
		VALUES (?, ?, ?)
		ON CONFLICT(track, played_at, source) DO NOTHING
	`, trackID, playedAt.Unix(), string(source))
	if err != nil {
		return false, &StorageError{Op: "inserting listening event", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &StorageError{Op: "inserting listening event", Err: err}
	}
	return n == 1, nil
}

// TopArtistEntry is one line of a provider's top-artists chart as seen on Day.
type TopArtistEntry struct {
	Day      time.Time
	Window   string
	ArtistID int64
	Rank     int
}

// RecordTopArtist stores a chart position. Collecting the same chart twice on
// one day keeps the latest rank.
func (s *Store) RecordTopArtist(ctx context.Context, e TopArtistEntry) error {
	if e.Rank < 1 {
		return &ValidationError{Field: "rank", Value: e.Rank, Reason: "must be at least 1"}
	}
	if e.Window == "" {
		return &ValidationError{Field: "window", Value: e.Window, Reason: "empty"}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO TopArtistSnapshot (day, time_range, artist, rank)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(day, time_range, artist) DO UPDATE SET rank = excluded.rank
	`, e.Day.UTC().Format("2006-01-02"), e.Window, e.ArtistID, e.Rank)
	if err != nil {
		return &StorageError{Op: "inserting top artist", Err: err}
	}
	return nil
}

func (s *Store) requireRow(ctx context.Context, query string, args ...any) error {
	var one int
	return s.db.QueryRowContext(ctx, query, args...).Scan(&one)
}
