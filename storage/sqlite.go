package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"prism-board/domain"
)

const documentID = "board"

var sqlitePragmas = []string{
	"PRAGMA journal_mode=WAL;",
	"PRAGMA synchronous=NORMAL;",
	"PRAGMA foreign_keys=ON;",
	"PRAGMA busy_timeout=5000;",
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		version INTEGER NOT NULL,
		body TEXT NOT NULL,
		updated_at_unixms INTEGER NOT NULL
	);`,
}

// SQLiteBackend stores the document as one row; the integer version column
// carries the optimistic check.
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies the
// schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteBackend, error) {
	// modernc.org/sqlite registers the "sqlite" driver.
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps the pragmas in effect for every statement.
	db.SetMaxOpenConns(1)
	if err := MigrateSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteBackend{db: db}, nil
}

// MigrateSQLite applies the pragmas and creates the documents table.
func MigrateSQLite(ctx context.Context, db *sql.DB) error {
	for _, p := range sqlitePragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	for _, st := range sqliteSchema {
		if _, err := db.ExecContext(ctx, st); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteBackend) Close() error { return s.db.Close() }

func (s *SQLiteBackend) Load(ctx context.Context) (domain.Snapshot, Version, error) {
	var (
		version int64
		body    string
	)
	err := s.db.QueryRowContext(ctx, `SELECT version, body FROM documents WHERE id = ?`, documentID).Scan(&version, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewSnapshot(), "", nil
	}
	if err != nil {
		return domain.Snapshot{}, "", err
	}
	snap, err := decodeSnapshot([]byte(body))
	if err != nil {
		return domain.Snapshot{}, "", fmt.Errorf("decode document: %w", err)
	}
	return snap, intVersion(version), nil
}

func (s *SQLiteBackend) Save(ctx context.Context, snap domain.Snapshot, expected Version) (Version, error) {
	want, err := parseIntVersion(expected)
	if err != nil {
		return "", domain.ErrConcurrencyConflict
	}
	body, err := encodeSnapshot(snap)
	if err != nil {
		return "", err
	}
	now := time.Now().UnixMilli()

	var res sql.Result
	if want == 0 {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO documents(id, version, body, updated_at_unixms) VALUES(?, 1, ?, ?) ON CONFLICT(id) DO NOTHING`,
			documentID, string(body), now)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE documents SET version = version + 1, body = ?, updated_at_unixms = ? WHERE id = ? AND version = ?`,
			string(body), now, documentID, want)
	}
	if err != nil {
		return "", err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", domain.ErrConcurrencyConflict
	}
	return intVersion(want + 1), nil
}
