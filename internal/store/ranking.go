package store

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// RankingRecord is an artist's entry in the manually curated annual ranking.
// There is at most one record per (artist, year, dimension); a ranking that
// lists several songs by the artist is folded into one record carrying the
// song count, the best rank and the mean rank.
type RankingRecord struct {
	ArtistID  int64   `json:"-" yaml:"-"`
	Artist    string  `json:"artist" yaml:"artist"`
	ArtistKey string  `json:"-" yaml:"-"`
	Year      int     `json:"year" yaml:"year"`
	Dimension string  `json:"dimension" yaml:"dimension"`
	Rank      int     `json:"rank" yaml:"rank"`
	Songs     int     `json:"songs" yaml:"songs"`
	MeanRank  float64 `json:"mean_rank" yaml:"mean_rank"`
	Magnitude float64 `json:"magnitude" yaml:"magnitude"`
}

// SongCount is Songs, or 1 for a record that did not set it.
func (r RankingRecord) SongCount() int {
	if r.Songs < 1 {
		return 1
	}
	return r.Songs
}

// AverageRank is MeanRank, or Rank for a record that did not set it.
func (r RankingRecord) AverageRank() float64 {
	if r.MeanRank == 0 {
		return float64(r.Rank)
	}
	return r.MeanRank
}

func (r RankingRecord) Validate() error {
	if strings.TrimSpace(r.Artist) == "" {
		return &ValidationError{Field: "artist", Value: r.Artist, Reason: "empty"}
	}
	if r.Rank < 1 {
		return &ValidationError{Field: "rank", Value: r.Rank, Reason: "must be at least 1"}
	}
	if r.Year < 1900 || r.Year > 9999 {
		return &ValidationError{Field: "year", Value: r.Year, Reason: "out of range"}
	}
	if strings.TrimSpace(r.Dimension) == "" {
		return &ValidationError{Field: "dimension", Value: r.Dimension, Reason: "empty"}
	}
	if r.Songs < 0 {
		return &ValidationError{Field: "songs", Value: r.Songs, Reason: "negative"}
	}
	if r.MeanRank != 0 && (math.IsNaN(r.MeanRank) || r.MeanRank < float64(r.Rank)) {
		return &ValidationError{Field: "mean_rank", Value: r.MeanRank, Reason: "below the best rank"}
	}
	return nil
}

// UpsertRankingRecord writes r, overwriting the ranks, songs and magnitude of any record
// with the same artist, year and dimension.
func (s *Store) UpsertRankingRecord(ctx context.Context, r RankingRecord) error {
	return s.upsertRankingRecord(ctx, s.db, r)
}

func (s *Store) upsertRankingRecord(ctx context.Context, q querier, r RankingRecord) error {
	if err := r.Validate(); err != nil {
		return err
	}
	artistID, err := s.upsertArtist(ctx, q, ArtistByName(r.Artist))
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO RankingRecord (artist, year, dimension, rank, songs, mean_rank, magnitude)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(artist, year, dimension) DO UPDATE SET
			rank = excluded.rank,
			songs = excluded.songs,
			mean_rank = excluded.mean_rank,
			magnitude = excluded.magnitude
	`, artistID, r.Year, strings.TrimSpace(r.Dimension), r.Rank, r.SongCount(), r.AverageRank(), r.Magnitude)
	if err != nil {
		return &StorageError{Op: fmt.Sprintf("inserting ranking record %q/%d", r.Artist, r.Year), Err: err}
	}
	return nil
}

// ReplaceRankingYear atomically swaps the stored records for year with
// records, so importing the same file any number of times yields the same
// record set. It returns the number of records stored for the year.
func (s *Store) ReplaceRankingYear(ctx context.Context, year int, records []RankingRecord) (int, error) {
	for _, r := range records {
		if r.Year != year {
			return 0, &ValidationError{Field: "year", Value: r.Year, Reason: fmt.Sprintf("record does not belong to %d", year)}
		}
		if err := r.Validate(); err != nil {
			return 0, err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &StorageError{Op: "beginning transaction", Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM RankingRecord WHERE year = ?", year); err != nil {
		return 0, &StorageError{Op: fmt.Sprintf("clearing ranking year %d", year), Err: err}
	}
	for _, r := range records {
		if err := s.upsertRankingRecord(ctx, tx, r); err != nil {
			return 0, err
		}
	}

	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM RankingRecord WHERE year = ?", year).Scan(&count); err != nil {
		return 0, &StorageError{Op: "counting ranking records", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return 0, &StorageError{Op: "committing transaction", Err: err}
	}
	return count, nil
}

// RankingRecords returns every ranking record ordered by year, rank and
// artist.
func (s *Store) RankingRecords(ctx context.Context) ([]RankingRecord, error) {
	return s.queryRankings(ctx, "", nil)
}

func (s *Store) RankingYear(ctx context.Context, year int) ([]RankingRecord, error) {
	return s.queryRankings(ctx, "WHERE r.year = ?", []any{year})
}

func (s *Store) queryRankings(ctx context.Context, where string, args []any) ([]RankingRecord, error) {
	query := `
		SELECT a.id, a.name, a.normalized_name, r.year, r.dimension, r.rank, r.songs,
			COALESCE(r.mean_rank, r.rank), r.magnitude
		FROM RankingRecord r
		JOIN Artist a ON r.artist = a.id
		` + where + `
		ORDER BY r.year, r.rank, a.normalized_name, r.dimension
	`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &StorageError{Op: "querying ranking records", Err: err}
	}
	defer rows.Close()

	var records []RankingRecord
	for rows.Next() {
		var r RankingRecord
		if err := rows.Scan(&r.ArtistID, &r.Artist, &r.ArtistKey, &r.Year, &r.Dimension, &r.Rank, &r.Songs, &r.MeanRank, &r.Magnitude); err != nil {
			return nil, &StorageError{Op: "scanning ranking record", Err: err}
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "querying ranking records", Err: err}
	}
	return records, nil
}
