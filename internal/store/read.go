package store

import (
	"context"
	"database/sql"
	"time"
)

// Event is a stored listening event joined with its track and artist.
type Event struct {
	ID        int64
	TrackID   int64
	Track     string
	TrackName string
	ArtistID  int64
	Artist    string
	ArtistKey string
	PlayedAt  time.Time
	Source    Source
	Features  *Features
}

// QueryEventsInRange returns the events played in [start, end), ordered by
// timestamp ascending.
func (s *Store) QueryEventsInRange(ctx context.Context, start, end time.Time) ([]Event, error) {
	if !end.After(start) {
		return nil, nil
	}

	query := `
		SELECT
			e.id, e.track, t.identity, t.name, a.id, a.name, a.normalized_name,
			e.played_at, e.source,
			t.danceability, t.energy, t.valence, t.acousticness,
			t.instrumentalness, t.liveness, t.speechiness, t.tempo
		FROM ListeningEvent e
		JOIN Track t ON e.track = t.id
		JOIN Artist a ON t.artist = a.id
		WHERE e.played_at >= ? AND e.played_at < ?
		ORDER BY e.played_at ASC, e.id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, start.Unix(), end.Unix())
	if err != nil {
		return nil, &StorageError{Op: "querying events", Err: err}
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var playedAt int64
		var source string
		f := make([]sql.NullFloat64, len(FeatureRanges))
		dest := []any{
			&e.ID, &e.TrackID, &e.Track, &e.TrackName, &e.ArtistID, &e.Artist, &e.ArtistKey,
			&playedAt, &source,
		}
		for i := range f {
			dest = append(dest, &f[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, &StorageError{Op: "scanning event", Err: err}
		}
		e.PlayedAt = time.Unix(playedAt, 0).UTC()
		e.Source = Source(source)
		e.Features = featuresFromColumns(f)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "querying events", Err: err}
	}
	return events, nil
}

func featuresFromColumns(cols []sql.NullFloat64) *Features {
	for _, c := range cols {
		if !c.Valid {
			return nil
		}
	}
	return &Features{
		Danceability:     cols[0].Float64,
		Energy:           cols[1].Float64,
		Valence:          cols[2].Float64,
		Acousticness:     cols[3].Float64,
		Instrumentalness: cols[4].Float64,
		Liveness:         cols[5].Float64,
		Speechiness:      cols[6].Float64,
		Tempo:            cols[7].Float64,
	}
}

// ListenSpan returns the first and last listening timestamps. ok is false when
// there are no events.
func (s *Store) ListenSpan(ctx context.Context) (first, last time.Time, ok bool, err error) {
	var lo, hi sql.NullInt64
	err = s.db.QueryRowContext(ctx, "SELECT MIN(played_at), MAX(played_at) FROM ListeningEvent").Scan(&lo, &hi)
	if err != nil {
		return time.Time{}, time.Time{}, false, &StorageError{Op: "reading listen span", Err: err}
	}
	if !lo.Valid || !hi.Valid {
		return time.Time{}, time.Time{}, false, nil
	}
	return time.Unix(lo.Int64, 0).UTC(), time.Unix(hi.Int64, 0).UTC(), true, nil
}

// TopArtists returns one day's chart for window, best rank first.
func (s *Store) TopArtists(ctx context.Context, day time.Time, window string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.name
		FROM TopArtistSnapshot s
		JOIN Artist a ON s.artist = a.id
		WHERE s.day = ? AND s.time_range = ?
		ORDER BY s.rank
	`, day.UTC().Format("2006-01-02"), window)
	if err != nil {
		return nil, &StorageError{Op: "querying top artists", Err: err}
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, &StorageError{Op: "scanning top artist", Err: err}
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "querying top artists", Err: err}
	}
	return names, nil
}

type Counts struct {
	Artists    int64 `json:"artists" yaml:"artists"`
	Tracks     int64 `json:"tracks" yaml:"tracks"`
	Events     int64 `json:"events" yaml:"events"`
	Rankings   int64 `json:"rankings" yaml:"rankings"`
	TopArtists int64 `json:"top_artists" yaml:"top_artists"`
}

func (s *Store) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM Artist),
			(SELECT COUNT(*) FROM Track),
			(SELECT COUNT(*) FROM ListeningEvent),
			(SELECT COUNT(*) FROM RankingRecord),
			(SELECT COUNT(*) FROM TopArtistSnapshot)
	`).Scan(&c.Artists, &c.Tracks, &c.Events, &c.Rankings, &c.TopArtists)
	if err != nil {
		return c, &StorageError{Op: "counting rows", Err: err}
	}
	return c, nil
}

// IntegrityReport counts rows whose references do not resolve. All fields are
// zero for a healthy database.
type IntegrityReport struct {
	OrphanEvents    int64 `json:"orphan_events" yaml:"orphan_events"`
	OrphanTracks    int64 `json:"orphan_tracks" yaml:"orphan_tracks"`
	OrphanRankings  int64 `json:"orphan_rankings" yaml:"orphan_rankings"`
	OrphanSnapshots int64 `json:"orphan_snapshots" yaml:"orphan_snapshots"`
}

func (r IntegrityReport) OK() bool {
	return r.OrphanEvents == 0 && r.OrphanTracks == 0 && r.OrphanRankings == 0 && r.OrphanSnapshots == 0
}

func (s *Store) CheckIntegrity(ctx context.Context) (IntegrityReport, error) {
	var r IntegrityReport
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM ListeningEvent e LEFT JOIN Track t ON e.track = t.id WHERE t.id IS NULL),
			(SELECT COUNT(*) FROM Track t LEFT JOIN Artist a ON t.artist = a.id WHERE a.id IS NULL),
			(SELECT COUNT(*) FROM RankingRecord r LEFT JOIN Artist a ON r.artist = a.id WHERE a.id IS NULL),
			(SELECT COUNT(*) FROM TopArtistSnapshot s LEFT JOIN Artist a ON s.artist = a.id WHERE a.id IS NULL)
	`).Scan(&r.OrphanEvents, &r.OrphanTracks, &r.OrphanRankings, &r.OrphanSnapshots)
	if err != nil {
		return r, &StorageError{Op: "checking integrity", Err: err}
	}
	return r, nil
}
