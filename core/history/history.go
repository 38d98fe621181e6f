// Package history persists conversion run records in a SQLite database
// using the pure Go modernc.org/sqlite driver, so the binary builds with
// CGO disabled.
package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/structweave/stb2ifc/core/integrate"
	"github.com/structweave/stb2ifc/core/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	mode          TEXT    NOT NULL,
	duration_ns   INTEGER NOT NULL,
	element_count INTEGER NOT NULL,
	fell_back     INTEGER NOT NULL,
	timestamp     TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_timestamp ON runs(timestamp);
`

// Store is a SQLite-backed run history. It implements integrate.Recorder.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the history database at path.
// Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts one run record.
func (s *Store) Record(rec integrate.RunRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO runs (mode, duration_ns, element_count, fell_back, timestamp)
		 VALUES (?, ?, ?, ?, ?)`,
		string(rec.Mode),
		rec.Duration.Nanoseconds(),
		rec.ElementCount,
		boolInt(rec.FellBack),
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(limit int) ([]integrate.RunRecord, error) {
	rows, err := s.db.Query(
		`SELECT mode, duration_ns, element_count, fell_back, timestamp
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var records []integrate.RunRecord
	for rows.Next() {
		var (
			mode     string
			duration int64
			count    int
			fellBack int
			stamp    string
		)
		if err := rows.Scan(&mode, &duration, &count, &fellBack, &stamp); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, stamp)
		if err != nil {
			return nil, fmt.Errorf("parsing history timestamp: %w", err)
		}
		records = append(records, integrate.RunRecord{
			Mode:         model.ConversionMode(mode),
			Duration:     time.Duration(duration),
			ElementCount: count,
			FellBack:     fellBack != 0,
			Timestamp:    ts,
		})
	}
	return records, rows.Err()
}

// Count returns the total number of stored runs.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting history: %w", err)
	}
	return n, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
