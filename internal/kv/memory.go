// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

package kv

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

// MemoryRepository keeps everything in a map guarded by an RWMutex.
type MemoryRepository struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{data: make(map[string][]byte)}
}

// Get returns a copy of the stored value.
func (m *MemoryRepository) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Put stores a copy of value.
func (m *MemoryRepository) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = append([]byte(nil), value...)
	return nil
}

// Delete removes key.
func (m *MemoryRepository) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

// ScanPrefix visits matching keys in sorted order. The callback runs without the lock held,
// against a snapshot taken at the start of the scan.
func (m *MemoryRepository) ScanPrefix(ctx context.Context, prefix string, fn func(string, []byte) error) error {
	m.mu.RLock()
	keys := make([]string, 0)
	values := make(map[string][]byte)
	for k, v := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
			values[k] = v
		}
	}
	m.mu.RUnlock()

	sort.Strings(keys)
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(k, values[k]); err != nil {
			if errors.Is(err, ErrStopScan) {
				return nil
			}
			return err
		}
	}
	return nil
}

// Close is a no-op.
func (m *MemoryRepository) Close() error { return nil }

// Len returns the number of stored keys.
func (m *MemoryRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
