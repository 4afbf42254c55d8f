// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

package content

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"

	"github.com/tomtom215/newsdesk/internal/kv"
)

// MinTitleMatchLength is the rune length both titles must exceed before
// containment counts as a duplicate. Short titles like "Breaking" or "Update"
// would otherwise collide constantly.
const MinTitleMatchLength = 10

// DuplicateKind says which identity rule matched.
type DuplicateKind string

const (
	NotDuplicate   DuplicateKind = ""
	DuplicateHash  DuplicateKind = "hash"
	DuplicateTitle DuplicateKind = "title"
	DuplicateURL   DuplicateKind = "url"
)

// Record is the persisted identity of an admitted item.
type Record struct {
	Hash   string    `json:"hash"`
	Title  string    `json:"title"` // normalized
	URL    string    `json:"url,omitempty"`
	SeenAt time.Time `json:"seen_at"`
}

// RecordStore remembers the identity of every admitted item, in memory and
// optionally in a kv.Repository under the "record:" prefix.
type RecordStore struct {
	mu      sync.RWMutex
	records map[string]Record // by hash
	titles  map[string]string // normalized title -> hash
	urls    map[string]string // url -> hash
	bloom   *bloomFilter

	repo kv.Repository
	now  func() time.Time
}

// StoreOption configures a RecordStore.
type StoreOption func(*RecordStore)

// WithClock overrides the clock used for SeenAt and Prune.
func WithClock(now func() time.Time) StoreOption {
	return func(s *RecordStore) { s.now = now }
}

// WithExpectedItems sizes the bloom filter.
func WithExpectedItems(n int) StoreOption {
	return func(s *RecordStore) { s.bloom = newBloomFilter(n, 0.01) }
}

// NewRecordStore creates an empty store. repo may be nil for a purely in-memory store.
func NewRecordStore(repo kv.Repository, opts ...StoreOption) *RecordStore {
	s := &RecordStore{
		records: make(map[string]Record),
		titles:  make(map[string]string),
		urls:    make(map[string]string),
		bloom:   newBloomFilter(100000, 0.01),
		repo:    repo,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces in-memory state with the records persisted in the repository.
func (s *RecordStore) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}

	loaded := make([]Record, 0)
	err := s.repo.ScanPrefix(ctx, kv.PrefixRecord, func(key string, value []byte) error {
		var r Record
		if err := json.Unmarshal(value, &r); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		loaded = append(loaded, r)
		return nil
	})
	if err != nil {
		return fmt.Errorf("load records: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]Record, len(loaded))
	s.titles = make(map[string]string, len(loaded))
	s.urls = make(map[string]string, len(loaded))
	s.bloom.reset()
	for _, r := range loaded {
		s.insertLocked(r)
	}
	return nil
}

// Seen reports whether hash is registered.
func (s *RecordStore) Seen(hash string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seenLocked(hash)
}

// SeenURL reports whether url is registered.
func (s *RecordStore) SeenURL(url string) bool {
	if url == "" {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.urls[url]
	return ok
}

// MatchTitle returns a registered normalized title that contains, or is contained by,
// the normalized form of title. Both must be longer than MinTitleMatchLength runes.
func (s *RecordStore) MatchTitle(title string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matchTitleLocked(Normalize(title))
}

// CheckAndRegister atomically checks hash, title and url against the store and registers
// the item when none match. The returned kind is NotDuplicate on registration.
// A persistence failure is returned alongside NotDuplicate; the in-memory registration stands.
func (s *RecordStore) CheckAndRegister(ctx context.Context, hash, title, url string) (DuplicateKind, error) {
	normTitle := Normalize(title)

	s.mu.Lock()
	if s.seenLocked(hash) {
		s.mu.Unlock()
		return DuplicateHash, nil
	}
	if _, ok := s.matchTitleLocked(normTitle); ok {
		s.mu.Unlock()
		return DuplicateTitle, nil
	}
	if url != "" {
		if _, ok := s.urls[url]; ok {
			s.mu.Unlock()
			return DuplicateURL, nil
		}
	}
	rec := Record{Hash: hash, Title: normTitle, URL: url, SeenAt: s.now()}
	s.insertLocked(rec)
	s.mu.Unlock()

	return NotDuplicate, s.persist(ctx, rec)
}

// Register records an item identity without checking for duplicates.
func (s *RecordStore) Register(ctx context.Context, hash, title, url string) error {
	rec := Record{Hash: hash, Title: Normalize(title), URL: url, SeenAt: s.now()}

	s.mu.Lock()
	s.insertLocked(rec)
	s.mu.Unlock()

	return s.persist(ctx, rec)
}

// Prune forgets records first seen more than maxAge ago and returns how many were removed.
func (s *RecordStore) Prune(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := s.now().Add(-maxAge)

	s.mu.Lock()
	var expired []string
	for hash, r := range s.records {
		if r.SeenAt.Before(cutoff) {
			expired = append(expired, hash)
		}
	}
	for _, hash := range expired {
		r := s.records[hash]
		delete(s.records, hash)
		if s.titles[r.Title] == hash {
			delete(s.titles, r.Title)
		}
		if r.URL != "" && s.urls[r.URL] == hash {
			delete(s.urls, r.URL)
		}
	}
	// Bloom filters cannot delete; rebuild from the survivors.
	if len(expired) > 0 {
		s.bloom.reset()
		for hash := range s.records {
			s.bloom.add(hash)
		}
	}
	s.mu.Unlock()

	if s.repo == nil {
		return len(expired), nil
	}
	var errs []error
	for _, hash := range expired {
		if err := s.repo.Delete(ctx, kv.Key(kv.PrefixRecord, hash)); err != nil {
			errs = append(errs, err)
		}
	}
	return len(expired), errors.Join(errs...)
}

// Len returns the number of registered records.
func (s *RecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *RecordStore) seenLocked(hash string) bool {
	if !s.bloom.test(hash) {
		return false
	}
	_, ok := s.records[hash]
	return ok
}

func (s *RecordStore) matchTitleLocked(normTitle string) (string, bool) {
	if utf8.RuneCountInString(normTitle) <= MinTitleMatchLength {
		return "", false
	}
	if _, ok := s.titles[normTitle]; ok {
		return normTitle, true
	}
	for seen := range s.titles {
		if utf8.RuneCountInString(seen) <= MinTitleMatchLength {
			continue
		}
		if strings.Contains(seen, normTitle) || strings.Contains(normTitle, seen) {
			return seen, true
		}
	}
	return "", false
}

func (s *RecordStore) insertLocked(r Record) {
	s.records[r.Hash] = r
	s.bloom.add(r.Hash)
	if r.Title != "" {
		s.titles[r.Title] = r.Hash
	}
	if r.URL != "" {
		s.urls[r.URL] = r.Hash
	}
}

func (s *RecordStore) persist(ctx context.Context, r Record) error {
	if s.repo == nil {
		return nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if err := s.repo.Put(ctx, kv.Key(kv.PrefixRecord, r.Hash), data); err != nil {
		return fmt.Errorf("persist record %s: %w", r.Hash, err)
	}
	return nil
}
