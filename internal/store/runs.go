package store

import (
	"context"
	"database/sql"
	"time"
)

// Run is one collector invocation, kept as an audit log.
type Run struct {
	ID            string    `json:"id" yaml:"id"`
	StartedAt     time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt    time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	EventsAdded   int       `json:"events_added" yaml:"events_added"`
	EventsSkipped int       `json:"events_skipped" yaml:"events_skipped"`
	Errors        int       `json:"errors" yaml:"errors"`
	Notes         string    `json:"notes,omitempty" yaml:"notes,omitempty"`
}

func (s *Store) StartRun(ctx context.Context, id string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO CollectionRun (id, started_at) VALUES (?, ?)", id, startedAt.Unix())
	if err != nil {
		return &StorageError{Op: "starting run " + id, Err: err}
	}
	return nil
}

func (s *Store) FinishRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE CollectionRun
		SET finished_at = ?, events_added = ?, events_skipped = ?, errors = ?, notes = ?
		WHERE id = ?
	`, run.FinishedAt.Unix(), run.EventsAdded, run.EventsSkipped, run.Errors, run.Notes, run.ID)
	if err != nil {
		return &StorageError{Op: "finishing run " + run.ID, Err: err}
	}
	return nil
}

// Runs returns the most recent runs first.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, events_added, events_skipped, errors, notes
		FROM CollectionRun
		ORDER BY started_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, &StorageError{Op: "querying runs", Err: err}
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started int64
		var finished sql.NullInt64
		var notes sql.NullString
		if err := rows.Scan(&r.ID, &started, &finished, &r.EventsAdded, &r.EventsSkipped, &r.Errors, &notes); err != nil {
			return nil, &StorageError{Op: "scanning run", Err: err}
		}
		r.StartedAt = time.Unix(started, 0).UTC()
		if finished.Valid {
			r.FinishedAt = time.Unix(finished.Int64, 0).UTC()
		}
		r.Notes = notes.String
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "querying runs", Err: err}
	}
	return runs, nil
}
