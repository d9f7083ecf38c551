package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ademuri/listening-identity/internal/migration"
	_ "github.com/mattn/go-sqlite3"
)

// Store is the durable record of artists, tracks, listening events and
// ranking records. Uniqueness is enforced by the database so that overlapping
// collector runs, even from separate processes, cannot create duplicates.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func New(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, &StorageError{Op: "opening database", Err: err}
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, &StorageError{Op: "creating tables", Err: err}
	}

	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, &StorageError{Op: "ensuring schema", Err: err}
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func createTables(db *sql.DB) error {
	if _, err := db.Exec(migration.Create); err != nil {
		return fmt.Errorf("executing migration: %w", err)
	}
	return nil
}

// ensureSchema brings databases created by older versions up to date.
func ensureSchema(db *sql.DB) error {
	// RankingRecord.songs and mean_rank: rankings imported before songs were
	// folded into one record count as a single song at their rank.
	if err := addColumnIfNotExists(db, "RankingRecord", "songs", "INTEGER NOT NULL DEFAULT 1"); err != nil {
		return err
	}
	if err := addColumnIfNotExists(db, "RankingRecord", "mean_rank", "REAL"); err != nil {
		return err
	}
	return nil
}

func addColumnIfNotExists(db *sql.DB, table, column, typeDef string) error {
	exists, err := columnExists(db, table, column)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if !exists {
		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, typeDef)
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("adding column %s.%s: %w", table, column, err)
		}
	}
	return nil
}

func columnExists(db *sql.DB, tableName string, columnName string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name string
		var ctype string
		var notnull int
		var dfltValue any
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == columnName {
			return true, nil
		}
	}
	return false, rows.Err()
}
