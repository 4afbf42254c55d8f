// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/newsdesk/internal/logging"
)

// BadgerRepository stores keys in an embedded BadgerDB.
type BadgerRepository struct {
	db *badger.DB
}

var _ Repository = (*BadgerRepository)(nil)

// OpenBadger opens (or creates) a BadgerDB at path. An empty path opens an in-memory database.
func OpenBadger(path string, syncWrites bool) (*BadgerRepository, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.SyncWrites = syncWrites
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().Str("path", path).Bool("sync_writes", syncWrites).Msg("Key/value store opened")
	return &BadgerRepository{db: db}, nil
}

// NewBadgerRepository wraps an already opened database.
func NewBadgerRepository(db *badger.DB) *BadgerRepository {
	return &BadgerRepository{db: db}
}

// Get retrieves the value at key.
func (r *BadgerRepository) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get %s: %w", key, err)
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Put stores value at key.
func (r *BadgerRepository) Put(_ context.Context, key string, value []byte) error {
	return r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(key), value); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
		return nil
	})
}

// Delete removes key.
func (r *BadgerRepository) Delete(_ context.Context, key string) error {
	return r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(key)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete %s: %w", key, err)
		}
		return nil
	})
}

// ScanPrefix iterates keys under prefix in a read-only transaction.
func (r *BadgerRepository) ScanPrefix(ctx context.Context, prefix string, fn func(string, []byte) error) error {
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key := string(item.KeyCopy(nil))
			if err := item.Value(func(val []byte) error {
				return fn(key, val)
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, ErrStopScan) {
		return nil
	}
	return err
}

// Close closes the database.
func (r *BadgerRepository) Close() error {
	return r.db.Close()
}
