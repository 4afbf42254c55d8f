// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

// Package cache provides the content-addressed transform cache and a small
// dedup LRU used by the feedback consumer.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/newsdesk/internal/kv"
	"github.com/tomtom215/newsdesk/internal/logging"
	"github.com/tomtom215/newsdesk/internal/metrics"
	"github.com/tomtom215/newsdesk/internal/transform"
)

// DefaultTTL is how long a transformed variant stays valid.
const DefaultTTL = 24 * time.Hour

// Entry is a cached transformation. Entries are never mutated, only replaced
// after expiry.
type Entry struct {
	// Key is the content-addressed cache key (operation prefix + content hash).
	Key string `json:"key"`

	// OriginalHash is the hash of the text the transformation was computed from.
	OriginalHash string `json:"original_hash,omitempty"`

	// Text is the transformed text.
	Text string `json:"text"`

	// CreatedAt is when the entry was computed.
	CreatedAt time.Time `json:"created_at"`

	// Analysis is the analysis snapshot that led to the transformation, if any.
	Analysis *transform.AnalysisResult `json:"analysis,omitempty"`
}

// Stats is a point-in-time view of cache counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Computes  int64
	Evictions int64
	Entries   int
}

// Config configures a TransformCache.
type Config struct {
	// TTL is the entry lifetime; an entry aged TTL or more is a miss.
	TTL time.Duration `koanf:"ttl"`

	// SweepInterval is how often the background sweeper removes expired entries.
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// DefaultConfig returns a 24h TTL swept every 30 minutes.
func DefaultConfig() Config {
	return Config{TTL: DefaultTTL, SweepInterval: 30 * time.Minute}
}

// TransformCache maps content hashes to transformed text.
//
// Concurrent GetOrCompute calls for the same key share one computation; calls
// for different keys run in parallel. When a kv.Repository is configured every
// entry is written through under the "cache:" prefix and memory misses fall back
// to the repository, so entries survive restarts.
type TransformCache struct {
	mu      sync.RWMutex
	entries map[string]Entry

	group    singleflight.Group
	repo     kv.Repository
	ttl      time.Duration
	now      func() time.Time
	observer metrics.Observer

	hits      atomic.Int64
	misses    atomic.Int64
	computes  atomic.Int64
	evictions atomic.Int64
}

// Option configures a TransformCache.
type Option func(*TransformCache)

// WithRepository enables write-through persistence.
func WithRepository(repo kv.Repository) Option {
	return func(c *TransformCache) { c.repo = repo }
}

// WithClock overrides the clock used for entry ages.
func WithClock(now func() time.Time) Option {
	return func(c *TransformCache) { c.now = now }
}

// WithObserver reports hits, misses, computes and evictions.
func WithObserver(o metrics.Observer) Option {
	return func(c *TransformCache) { c.observer = o }
}

// NewTransformCache creates a cache with the given TTL (DefaultTTL when <= 0).
func NewTransformCache(ttl time.Duration, opts ...Option) *TransformCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &TransformCache{
		entries:  make(map[string]Entry),
		ttl:      ttl,
		now:      time.Now,
		observer: metrics.Nop{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrCompute returns the cached text for key, computing and storing it on a miss.
// Errors from compute are returned and nothing is cached.
func (c *TransformCache) GetOrCompute(ctx context.Context, key string, compute func(ctx context.Context) (string, error)) (string, error) {
	e, err := c.GetOrComputeEntry(ctx, key, func(ctx context.Context) (Entry, error) {
		text, err := compute(ctx)
		return Entry{Text: text}, err
	})
	if err != nil {
		return "", err
	}
	return e.Text, nil
}

// GetOrComputeEntry is GetOrCompute for callers that also cache an analysis snapshot.
// Key and CreatedAt of the computed entry are set by the cache.
//
// The computation runs detached from the cancellation of whichever caller started it,
// so one caller giving up does not fail the others waiting on the same key; each caller
// still stops waiting when its own ctx ends.
func (c *TransformCache) GetOrComputeEntry(ctx context.Context, key string, compute func(ctx context.Context) (Entry, error)) (Entry, error) {
	if e, ok := c.lookup(ctx, key); ok {
		c.hits.Add(1)
		c.observer.CacheHit()
		return e, nil
	}
	c.misses.Add(1)
	c.observer.CacheMiss()

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		// Another flight may have stored the entry between our lookup and now.
		if e, ok := c.lookup(detached, key); ok {
			return e, nil
		}

		c.computes.Add(1)
		e, err := compute(detached)
		c.observer.CacheCompute(err)
		if err != nil {
			return Entry{}, err
		}
		e.Key = key
		e.CreatedAt = c.now()
		c.store(detached, e)
		return e, nil
	})

	select {
	case <-ctx.Done():
		return Entry{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Entry{}, res.Err
		}
		return res.Val.(Entry), nil
	}
}

// Get returns an unexpired entry without computing.
func (c *TransformCache) Get(ctx context.Context, key string) (Entry, bool) {
	return c.lookup(ctx, key)
}

// Sweep physically removes expired entries from memory and the repository.
func (c *TransformCache) Sweep(ctx context.Context) (int, error) {
	now := c.now()

	c.mu.Lock()
	removed := 0
	for k, e := range c.entries {
		if !c.fresh(e, now) {
			delete(c.entries, k)
			removed++
		}
	}
	c.mu.Unlock()

	var errs []error
	if c.repo != nil {
		var stale []string
		err := c.repo.ScanPrefix(ctx, kv.PrefixCache, func(key string, value []byte) error {
			var e Entry
			if err := json.Unmarshal(value, &e); err != nil || !c.fresh(e, now) {
				stale = append(stale, key)
			}
			return nil
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("scan cache entries: %w", err))
		}
		for _, key := range stale {
			if err := c.repo.Delete(ctx, key); err != nil {
				errs = append(errs, err)
				continue
			}
			// Entries only present in the repository count once.
			if _, inMem := c.peek(key[len(kv.PrefixCache):]); !inMem {
				removed++
			}
		}
	}

	c.evictions.Add(int64(removed))
	c.observer.CacheEvicted(removed)
	return removed, errors.Join(errs...)
}

// Stats returns current counters.
func (c *TransformCache) Stats() Stats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Computes:  c.computes.Load(),
		Evictions: c.evictions.Load(),
		Entries:   n,
	}
}

// TTL returns the configured entry lifetime.
func (c *TransformCache) TTL() time.Duration { return c.ttl }

func (c *TransformCache) fresh(e Entry, now time.Time) bool {
	return now.Sub(e.CreatedAt) < c.ttl
}

func (c *TransformCache) peek(key string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

func (c *TransformCache) lookup(ctx context.Context, key string) (Entry, bool) {
	now := c.now()
	if e, ok := c.peek(key); ok {
		return e, c.fresh(e, now)
	}
	if c.repo == nil {
		return Entry{}, false
	}

	data, err := c.repo.Get(ctx, kv.Key(kv.PrefixCache, key))
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			logging.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("Transform cache read failed")
		}
		return Entry{}, false
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("Discarding undecodable transform cache entry")
		return Entry{}, false
	}
	if !c.fresh(e, now) {
		return Entry{}, false
	}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return e, true
}

func (c *TransformCache) store(ctx context.Context, e Entry) {
	c.mu.Lock()
	c.entries[e.Key] = e
	c.mu.Unlock()

	if c.repo == nil {
		return
	}
	data, err := json.Marshal(e)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("key", e.Key).Msg("Transform cache entry not persisted")
		return
	}
	if err := c.repo.Put(ctx, kv.Key(kv.PrefixCache, e.Key), data); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("key", e.Key).Msg("Transform cache entry not persisted")
	}
}
