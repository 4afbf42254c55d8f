// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/tomtom215/newsdesk/internal/logging"
)

const sqliteTable = "kv_entries"

// SQLiteRepository stores keys in a single SQLite table.
type SQLiteRepository struct {
	db *sql.DB
}

var _ Repository = (*SQLiteRepository)(nil)

// OpenSQLite opens the database file at path (":memory:" for a private in-memory database)
// and creates the table when missing.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepository, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	ddl := `CREATE TABLE IF NOT EXISTS ` + sqliteTable + ` (
		k TEXT PRIMARY KEY,
		v BLOB NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create %s: %w", sqliteTable, err)
	}

	logging.Info().Str("path", path).Msg("Key/value store opened")
	return &SQLiteRepository{db: db}, nil
}

// Get retrieves the value at key.
func (r *SQLiteRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := sq.Select("v").From(sqliteTable).Where(sq.Eq{"k": key}).
		RunWith(r.db).QueryRowContext(ctx).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return v, nil
}

// Put upserts value at key.
func (r *SQLiteRepository) Put(ctx context.Context, key string, value []byte) error {
	_, err := sq.Insert(sqliteTable).Columns("k", "v").Values(key, value).
		Suffix("ON CONFLICT(k) DO UPDATE SET v = excluded.v").
		RunWith(r.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (r *SQLiteRepository) Delete(ctx context.Context, key string) error {
	if _, err := sq.Delete(sqliteTable).Where(sq.Eq{"k": key}).RunWith(r.db).ExecContext(ctx); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// ScanPrefix visits matching keys in ascending order.
// Rows are fully read before callbacks run so the callback may write to the repository.
func (r *SQLiteRepository) ScanPrefix(ctx context.Context, prefix string, fn func(string, []byte) error) error {
	rows, err := sq.Select("k", "v").From(sqliteTable).
		Where(sq.GtOrEq{"k": prefix}).
		OrderBy("k").
		RunWith(r.db).QueryContext(ctx)
	if err != nil {
		return fmt.Errorf("scan %s: %w", prefix, err)
	}

	type row struct {
		k string
		v []byte
	}
	var batch []row
	for rows.Next() {
		var rw row
		if err := rows.Scan(&rw.k, &rw.v); err != nil {
			_ = rows.Close()
			return fmt.Errorf("scan %s: %w", prefix, err)
		}
		if len(rw.k) < len(prefix) || rw.k[:len(prefix)] != prefix {
			break
		}
		batch = append(batch, rw)
	}
	iterErr := rows.Err()
	if err := rows.Close(); err != nil {
		return err
	}
	if iterErr != nil {
		return iterErr
	}

	for _, rw := range batch {
		if err := fn(rw.k, rw.v); err != nil {
			if errors.Is(err, ErrStopScan) {
				return nil
			}
			return err
		}
	}
	return nil
}

// Close closes the database.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}
