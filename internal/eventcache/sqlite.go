package eventcache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const eventsTable = "cached_events"

// SQLiteStore keeps entries in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required for sqlite event cache")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening event cache database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			data BLOB,
			recorded_at TEXT NOT NULL
		)
	`, eventsTable))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating event cache schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, e Entry) (Entry, error) {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (name, data, recorded_at) VALUES (?, ?, ?)", eventsTable),
		e.Name, []byte(e.Data), e.RecordedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("inserting cached event: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return Entry{}, fmt.Errorf("reading cached event id: %w", err)
	}
	e.Seq = seq
	return e, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT seq, name, data, recorded_at FROM %s ORDER BY seq", eventsTable))
	if err != nil {
		return nil, fmt.Errorf("listing cached events: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e        Entry
			data     []byte
			recorded string
		)
		if err := rows.Scan(&e.Seq, &e.Name, &data, &recorded); err != nil {
			return nil, fmt.Errorf("scanning cached event: %w", err)
		}
		if len(data) > 0 {
			e.Data = data
		}
		if e.RecordedAt, err = time.Parse(time.RFC3339Nano, recorded); err != nil {
			return nil, fmt.Errorf("parsing recorded_at of event %d: %w", e.Seq, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, seqs []int64) error {
	if len(seqs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting delete: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE seq = ?", eventsTable))
	if err != nil {
		return fmt.Errorf("preparing delete: %w", err)
	}
	defer stmt.Close()

	for _, seq := range seqs {
		if _, err := stmt.ExecContext(ctx, seq); err != nil {
			return fmt.Errorf("deleting cached event %d: %w", seq, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Trim(ctx context.Context, limit int) (int, error) {
	if limit < 0 {
		limit = 0
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM %[1]s WHERE seq NOT IN (
			SELECT seq FROM %[1]s ORDER BY seq DESC LIMIT ?
		)
	`, eventsTable), limit)
	if err != nil {
		return 0, fmt.Errorf("trimming event cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("trimming event cache: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
