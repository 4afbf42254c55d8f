// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/newsdesk/internal/kv"
	"github.com/tomtom215/newsdesk/internal/preference"
)

// HistoryItem is one delivered recommendation as remembered in the history.
type HistoryItem struct {
	ID     string   `json:"id"`
	Title  string   `json:"title"`
	Score  float64  `json:"score"`
	Topics []string `json:"topics,omitempty"`
}

// HistoryEntry is one recommendation batch.
type HistoryEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	TimeOfDay preference.Bucket `json:"time_of_day"`
	Items     []HistoryItem     `json:"items"`
}

func newHistoryEntry(at time.Time, bucket preference.Bucket, recs []Recommendation) HistoryEntry {
	e := HistoryEntry{Timestamp: at, TimeOfDay: bucket, Items: make([]HistoryItem, len(recs))}
	for i, r := range recs {
		e.Items[i] = HistoryItem{
			ID:     r.Item.ID,
			Title:  r.Item.Title,
			Score:  r.Score,
			Topics: append([]string(nil), r.Item.Topics...),
		}
	}
	return e
}

// historyLog keeps the last size batches per user, written through to repo as one
// JSON document per user.
type historyLog struct {
	repo kv.Repository
	size int

	mu     sync.Mutex
	users  map[string][]HistoryEntry
	loaded map[string]bool
}

func newHistoryLog(repo kv.Repository, size int) *historyLog {
	return &historyLog{
		repo:   repo,
		size:   size,
		users:  make(map[string][]HistoryEntry),
		loaded: make(map[string]bool),
	}
}

func (h *historyLog) get(ctx context.Context, userID string) ([]HistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.loadLocked(ctx, userID); err != nil {
		return nil, err
	}
	return append([]HistoryEntry(nil), h.users[userID]...), nil
}

func (h *historyLog) deliveredIDs(ctx context.Context, userID string) (map[string]struct{}, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.loadLocked(ctx, userID); err != nil {
		return nil, err
	}
	ids := make(map[string]struct{})
	for _, e := range h.users[userID] {
		for _, it := range e.Items {
			ids[it.ID] = struct{}{}
		}
	}
	return ids, nil
}

// record appends e in memory and persists the trimmed history. The in-memory
// history is updated even when persisting fails.
func (h *historyLog) record(ctx context.Context, userID string, e HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.loadLocked(ctx, userID); err != nil {
		return err
	}

	entries := append(h.users[userID], e)
	if len(entries) > h.size {
		entries = append([]HistoryEntry(nil), entries[len(entries)-h.size:]...)
	}
	h.users[userID] = entries

	if h.repo == nil {
		return nil
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := h.repo.Put(ctx, kv.Key(kv.PrefixHistory, userID), data); err != nil {
		return fmt.Errorf("persist history: %w", err)
	}
	return nil
}

func (h *historyLog) loadLocked(ctx context.Context, userID string) error {
	if h.loaded[userID] || h.repo == nil {
		return nil
	}
	data, err := h.repo.Get(ctx, kv.Key(kv.PrefixHistory, userID))
	switch {
	case errors.Is(err, kv.ErrNotFound):
	case err != nil:
		return fmt.Errorf("load history for %s: %w", userID, err)
	default:
		var entries []HistoryEntry
		if err := json.Unmarshal(data, &entries); err != nil {
			return fmt.Errorf("decode history for %s: %w", userID, err)
		}
		h.users[userID] = entries
	}
	h.loaded[userID] = true
	return nil
}
