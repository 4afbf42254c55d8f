// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

// Package pipeline wires admission, content processing, scoring and diversity
// selection into the curation flow that turns raw items into per-user
// recommendations.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/newsdesk/internal/admission"
	"github.com/tomtom215/newsdesk/internal/content"
	"github.com/tomtom215/newsdesk/internal/diversity"
	"github.com/tomtom215/newsdesk/internal/feedback"
	"github.com/tomtom215/newsdesk/internal/kv"
	"github.com/tomtom215/newsdesk/internal/logging"
	"github.com/tomtom215/newsdesk/internal/metrics"
	"github.com/tomtom215/newsdesk/internal/preference"
	"github.com/tomtom215/newsdesk/internal/scoring"
)

// ErrEmptyUser is returned when a recommendation is requested without a user id.
var ErrEmptyUser = errors.New("pipeline: empty user id")

// Config configures the Curator.
type Config struct {
	Process ProcessConfig `koanf:"process"`

	// PoolSize caps the number of processed candidates kept for Recommend.
	PoolSize int `koanf:"pool_size" validate:"min=1"`

	// PoolMaxAge drops candidates ingested longer ago than this. Zero keeps them until evicted by size.
	PoolMaxAge time.Duration `koanf:"pool_max_age"`

	// HistorySize is how many recommendation batches are kept per user.
	HistorySize int `koanf:"history_size" validate:"min=1"`

	// DefaultCount is the number of recommendations when the caller asks for none.
	DefaultCount int `koanf:"default_count" validate:"min=1"`

	// Concurrency bounds parallel content processing within a batch.
	Concurrency int `koanf:"concurrency" validate:"min=1"`
}

// DefaultConfig keeps 500 candidates for three days and 100 history batches per user.
func DefaultConfig() Config {
	return Config{
		Process:      DefaultProcessConfig(),
		PoolSize:     500,
		PoolMaxAge:   72 * time.Hour,
		HistorySize:  100,
		DefaultCount: 3,
		Concurrency:  4,
	}
}

// Recommendation is one item handed to the delivery boundary.
type Recommendation struct {
	Item     *content.Item   `json:"item"`
	Score    float64         `json:"score"`
	Factors  scoring.Factors `json:"factors"`
	Adjusted bool            `json:"adjusted"`
}

// IngestReport summarizes one ingested batch.
type IngestReport struct {
	Received int                      `json:"received"`
	Admitted int                      `json:"admitted"`
	Rejected map[admission.Reason]int `json:"rejected"`
	Filtered int                      `json:"filtered"`
	Kept     int                      `json:"kept"`
}

type candidate struct {
	item    *content.Item
	addedAt time.Time
}

// Curator runs the curation pipeline. It is safe for concurrent use; items
// are read-only once they enter the candidate pool.
type Curator struct {
	cfg       Config
	filter    *admission.Filter
	processor *Processor
	engine    *scoring.Engine
	selector  diversity.Selector
	profiles  *preference.Store
	repo      kv.Repository
	observer  metrics.Observer
	now       func() time.Time
	logger    zerolog.Logger

	poolMu sync.RWMutex
	pool   []candidate
	byID   map[string]*content.Item

	history *historyLog
}

// Option configures a Curator.
type Option func(*Curator)

// WithRepository persists recommendation history under the "history:" prefix.
func WithRepository(repo kv.Repository) Option {
	return func(c *Curator) { c.repo = repo }
}

// WithObserver reports served recommendations.
func WithObserver(o metrics.Observer) Option {
	return func(c *Curator) { c.observer = o }
}

// WithClock overrides the clock used for time-of-day buckets and pool ages.
func WithClock(now func() time.Time) Option {
	return func(c *Curator) { c.now = now }
}

// NewCurator assembles a Curator from its stages.
func NewCurator(cfg Config, filter *admission.Filter, processor *Processor, engine *scoring.Engine,
	selector diversity.Selector, profiles *preference.Store, opts ...Option,
) *Curator {
	def := DefaultConfig()
	if cfg.PoolSize < 1 {
		cfg.PoolSize = def.PoolSize
	}
	if cfg.HistorySize < 1 {
		cfg.HistorySize = def.HistorySize
	}
	if cfg.DefaultCount < 1 {
		cfg.DefaultCount = def.DefaultCount
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}

	c := &Curator{
		cfg:       cfg,
		filter:    filter,
		processor: processor,
		engine:    engine,
		selector:  selector,
		profiles:  profiles,
		observer:  metrics.Nop{},
		now:       time.Now,
		logger:    logging.WithComponent("pipeline"),
		byID:      make(map[string]*content.Item),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.history = newHistoryLog(c.repo, cfg.HistorySize)
	return c
}

// Ingest admits and processes items and adds the survivors to the candidate pool.
func (c *Curator) Ingest(ctx context.Context, items []*content.Item) IngestReport {
	kept, report := c.process(ctx, items)

	now := c.now()
	c.poolMu.Lock()
	for _, it := range kept {
		if _, ok := c.byID[it.ID]; ok {
			continue
		}
		c.pool = append(c.pool, candidate{item: it, addedAt: now})
		c.byID[it.ID] = it
	}
	c.pruneLocked(now)
	size := len(c.pool)
	c.poolMu.Unlock()

	logging.Ctx(ctx).Info().
		Str("component", "pipeline").
		Int("received", report.Received).
		Int("admitted", report.Admitted).
		Int("filtered", report.Filtered).
		Int("kept", report.Kept).
		Int("pool", size).
		Msg("Batch ingested")
	return report
}

// Curate runs items through the whole pipeline for one user and returns up to k
// recommendations drawn from this batch only. Survivors also join the pool.
func (c *Curator) Curate(ctx context.Context, userID string, items []*content.Item, k int) ([]Recommendation, IngestReport, error) {
	if userID == "" {
		return nil, IngestReport{}, ErrEmptyUser
	}
	kept, report := c.process(ctx, items)

	now := c.now()
	c.poolMu.Lock()
	for _, it := range kept {
		if _, ok := c.byID[it.ID]; !ok {
			c.pool = append(c.pool, candidate{item: it, addedAt: now})
			c.byID[it.ID] = it
		}
	}
	c.pruneLocked(now)
	c.poolMu.Unlock()

	recs, err := c.recommendFrom(ctx, userID, kept, k)
	return recs, report, err
}

// Recommend returns up to k recommendations for userID from the candidate pool,
// skipping items already recommended to the user. k <= 0 uses DefaultCount.
func (c *Curator) Recommend(ctx context.Context, userID string, k int) ([]Recommendation, error) {
	if userID == "" {
		return nil, ErrEmptyUser
	}
	delivered, err := c.history.deliveredIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	c.poolMu.RLock()
	candidates := make([]*content.Item, 0, len(c.pool))
	for _, cand := range c.pool {
		if _, ok := delivered[cand.item.ID]; !ok {
			candidates = append(candidates, cand.item)
		}
	}
	c.poolMu.RUnlock()

	return c.recommendFrom(ctx, userID, candidates, k)
}

// Item returns a pooled candidate by id.
func (c *Curator) Item(id string) (*content.Item, bool) {
	c.poolMu.RLock()
	defer c.poolMu.RUnlock()
	it, ok := c.byID[id]
	return it, ok
}

// PoolSize returns the number of pooled candidates.
func (c *Curator) PoolSize() int {
	c.poolMu.RLock()
	defer c.poolMu.RUnlock()
	return len(c.pool)
}

// PrunePool drops candidates older than PoolMaxAge and returns how many were removed.
func (c *Curator) PrunePool() int {
	c.poolMu.Lock()
	defer c.poolMu.Unlock()
	return c.pruneLocked(c.now())
}

// History returns the user's recommendation history, oldest first.
func (c *Curator) History(ctx context.Context, userID string) ([]HistoryEntry, error) {
	return c.history.get(ctx, userID)
}

// ClassifySource reduces a source name to the category scoring reads.
func (c *Curator) ClassifySource(source string) string {
	return c.engine.ClassifySource(source)
}

// Descriptor builds the feedback descriptor for item. The source is reduced to the
// category scoring looks up, so reactions move the weight that scoring reads.
func (c *Curator) Descriptor(item *content.Item) feedback.Descriptor {
	d := feedback.Descriptor{
		Topics: append([]string(nil), item.Topics...),
		Source: c.engine.ClassifySource(item.Source),
	}
	if item.Analysis != nil {
		d.Style = item.Analysis.StyleFeatures()
	}
	return d
}

func (c *Curator) process(ctx context.Context, items []*content.Item) ([]*content.Item, IngestReport) {
	admitted, ar := c.filter.AdmitBatch(ctx, items)
	report := IngestReport{
		Received: len(items),
		Admitted: ar.Admitted,
		Rejected: ar.Rejected,
	}

	keep := make([]bool, len(admitted))
	g := new(errgroup.Group)
	g.SetLimit(c.cfg.Concurrency)
	for i, it := range admitted {
		g.Go(func() error {
			keep[i] = c.processor.Process(ctx, it)
			return nil
		})
	}
	_ = g.Wait()

	kept := make([]*content.Item, 0, len(admitted))
	for i, it := range admitted {
		if keep[i] {
			kept = append(kept, it)
		} else {
			report.Filtered++
		}
	}
	report.Kept = len(kept)
	return kept, report
}

func (c *Curator) recommendFrom(ctx context.Context, userID string, items []*content.Item, k int) ([]Recommendation, error) {
	if k <= 0 {
		k = c.cfg.DefaultCount
	}
	profile, err := c.profiles.Snapshot(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	now := c.now()
	bucket := scoring.TimeOfDay(now)
	ranked := c.engine.Rank(ctx, items, &profile, bucket)
	selected := c.selector.Select(ranked, k)

	recs := make([]Recommendation, len(selected))
	for i, s := range selected {
		recs[i] = Recommendation{Item: s.Item, Score: s.Result.Score, Factors: s.Result.Factors, Adjusted: s.Result.Adjusted}
	}

	if len(recs) > 0 {
		if err := c.history.record(ctx, userID, newHistoryEntry(now, bucket, recs)); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("component", "pipeline").Str("user", userID).Msg("Recommendation history not persisted")
		}
	}
	c.observer.RecommendationsServed(len(recs))

	logging.Ctx(ctx).Debug().
		Str("component", "pipeline").
		Str("user", userID).
		Str("time_of_day", string(bucket)).
		Str("selector", c.selector.Name()).
		Int("candidates", len(items)).
		Int("ranked", len(ranked)).
		Int("returned", len(recs)).
		Msg("Recommendations selected")
	return recs, nil
}

// pruneLocked enforces PoolMaxAge and PoolSize. Caller holds poolMu.
func (c *Curator) pruneLocked(now time.Time) int {
	start := 0
	if c.cfg.PoolMaxAge > 0 {
		for start < len(c.pool) && now.Sub(c.pool[start].addedAt) > c.cfg.PoolMaxAge {
			start++
		}
	}
	if over := len(c.pool) - start - c.cfg.PoolSize; over > 0 {
		start += over
	}
	if start == 0 {
		return 0
	}
	for _, cand := range c.pool[:start] {
		delete(c.byID, cand.item.ID)
	}
	c.pool = append([]candidate(nil), c.pool[start:]...)
	return start
}
