// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

// Package kv provides the key/value repository that backs profiles, feedback logs,
// the content record store and the transform cache.
//
// Callers own value encoding (JSON via goccy/go-json) and key namespacing;
// backends only move bytes. Available backends:
//
//   - memory: process-local map, for tests and ephemeral runs
//   - badger: embedded BadgerDB, the default durable store
//   - sqlite: a single table in a pure-Go SQLite database
//   - redis: a shared Redis instance
package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("kv: key not found")

// ErrStopScan may be returned from a ScanPrefix callback to end the scan early without error.
var ErrStopScan = errors.New("kv: stop scan")

// Repository is a minimal byte-oriented key/value store.
type Repository interface {
	// Get returns the value stored at key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value at key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// ScanPrefix calls fn for every key starting with prefix, in ascending key order.
	// The value slice is only valid for the duration of the callback.
	ScanPrefix(ctx context.Context, prefix string, fn func(key string, value []byte) error) error

	// Close releases backend resources.
	Close() error
}

// Key namespaces shared by the packages that persist through a Repository.
const (
	PrefixProfile  = "profile:"
	PrefixFeedback = "feedback:"
	PrefixCache    = "cache:"
	PrefixRecord   = "record:"
	PrefixHistory  = "history:"
)

// Key joins parts with ':' after the given prefix.
//
//	kv.Key(kv.PrefixFeedback, "u-1", "00000000000000000042") // "feedback:u-1:00000000000000000042"
func Key(prefix string, parts ...string) string {
	return prefix + strings.Join(parts, ":")
}

// Config selects and configures a backend.
type Config struct {
	// Backend is one of memory, badger, sqlite, redis.
	Backend string `koanf:"backend" validate:"oneof=memory badger sqlite redis"`

	// Path is the BadgerDB directory or SQLite file.
	Path string `koanf:"path"`

	// SyncWrites makes BadgerDB fsync every write.
	SyncWrites bool `koanf:"sync_writes"`

	// RedisAddr, RedisPassword and RedisDB configure the redis backend.
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
}

// Open builds the repository described by cfg.
func Open(ctx context.Context, cfg Config) (Repository, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryRepository(), nil
	case "badger":
		return OpenBadger(cfg.Path, cfg.SyncWrites)
	case "sqlite":
		return OpenSQLite(ctx, cfg.Path)
	case "redis":
		return OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	default:
		return nil, fmt.Errorf("kv: unknown backend %q", cfg.Backend)
	}
}
