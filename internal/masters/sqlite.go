// SPDX-License-Identifier: MIT

package masters

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS masters (
	type       TEXT NOT NULL,
	key        TEXT NOT NULL,
	id         TEXT NOT NULL,
	instrument TEXT NOT NULL,
	setup      TEXT NOT NULL,
	detector   INTEGER NOT NULL,
	inputs     TEXT NOT NULL,
	checksum   TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	version    TEXT NOT NULL,
	path       TEXT NOT NULL,
	PRIMARY KEY (type, key)
);
`

// SQLiteIndex persists the master inventory across runs, which is what makes
// reuse work after a restart.
type SQLiteIndex struct {
	db *sql.DB
}

// OpenSQLiteIndex opens (creating if needed) the index database at path.
func OpenSQLiteIndex(path string) (*SQLiteIndex, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open masters index: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent detector workers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init masters index schema: %w", err)
	}
	return &SQLiteIndex{db: db}, nil
}

// Put upserts a record.
func (s *SQLiteIndex) Put(ctx context.Context, rec Record) error {
	inputs, err := json.Marshal(rec.Inputs)
	if err != nil {
		return fmt.Errorf("marshal inputs: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO masters (type, key, id, instrument, setup, detector, inputs, checksum, created_at, version, path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (type, key) DO UPDATE SET
			id = excluded.id,
			instrument = excluded.instrument,
			setup = excluded.setup,
			detector = excluded.detector,
			inputs = excluded.inputs,
			checksum = excluded.checksum,
			created_at = excluded.created_at,
			version = excluded.version,
			path = excluded.path`,
		string(rec.Type), rec.Key, rec.ID, rec.Instrument, rec.Setup, rec.Detector,
		string(inputs), rec.Checksum, rec.CreatedAt.Format(time.RFC3339Nano), rec.Version, rec.Path)
	if err != nil {
		return fmt.Errorf("index master %s %s: %w", rec.Type, rec.Key, err)
	}
	return nil
}

// Get looks up a record, returning ErrNotFound on a miss.
func (s *SQLiteIndex) Get(ctx context.Context, typ Type, key string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT type, key, id, instrument, setup, detector, inputs, checksum, created_at, version, path
		FROM masters WHERE type = ? AND key = ?`, string(typ), key)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s %s", ErrNotFound, typ, key)
	}
	if err != nil {
		return Record{}, fmt.Errorf("query master %s %s: %w", typ, key, err)
	}
	return rec, nil
}

// List returns all records sorted by type then key.
func (s *SQLiteIndex) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT type, key, id, instrument, setup, detector, inputs, checksum, created_at, version, path
		FROM masters ORDER BY type, key`)
	if err != nil {
		return nil, fmt.Errorf("list masters: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan master record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var typ, inputs, created string
	if err := row.Scan(&typ, &rec.Key, &rec.ID, &rec.Instrument, &rec.Setup,
		&rec.Detector, &inputs, &rec.Checksum, &created, &rec.Version, &rec.Path); err != nil {
		return Record{}, err
	}
	rec.Type = Type(typ)
	if err := json.Unmarshal([]byte(inputs), &rec.Inputs); err != nil {
		return Record{}, fmt.Errorf("parse inputs: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return Record{}, fmt.Errorf("parse created_at: %w", err)
	}
	rec.CreatedAt = t
	return rec, nil
}
