// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/newsdesk/internal/content"
	"github.com/tomtom215/newsdesk/internal/feed"
	"github.com/tomtom215/newsdesk/internal/logging"
	"github.com/tomtom215/newsdesk/internal/pipeline"
)

// Ingester admits a batch of items into the candidate pool. *pipeline.Curator satisfies it.
type Ingester interface {
	Ingest(ctx context.Context, items []*content.Item) pipeline.IngestReport
}

// FeedPollerService fetches every source on each tick and ingests the items.
// Sources are fetched concurrently; a failing source is logged and skipped.
type FeedPollerService struct {
	sources  []feed.Source
	ingester Ingester
	interval time.Duration
	logger   zerolog.Logger
}

// NewFeedPollerService creates a poller. A non-positive interval means 15 minutes.
func NewFeedPollerService(sources []feed.Source, ingester Ingester, interval time.Duration) *FeedPollerService {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &FeedPollerService{
		sources:  sources,
		ingester: ingester,
		interval: interval,
		logger:   logging.WithComponent("feed-poller"),
	}
}

// Serve implements suture.Service. The first poll happens immediately.
func (s *FeedPollerService) Serve(ctx context.Context) error {
	s.logger.Info().Int("sources", len(s.sources)).Dur("interval", s.interval).Msg("feed poller starting")

	s.Poll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Poll(ctx)
		}
	}
}

// Poll fetches all sources once and ingests what they returned as one batch.
func (s *FeedPollerService) Poll(ctx context.Context) pipeline.IngestReport {
	var (
		mu    sync.Mutex
		items []*content.Item
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, src := range s.sources {
		g.Go(func() error {
			fetched, err := src.Fetch(gctx)
			if err != nil {
				s.logger.Warn().Err(err).Str("source", src.Name()).Msg("feed fetch failed")
				return nil
			}
			mu.Lock()
			items = append(items, fetched...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(items) == 0 || ctx.Err() != nil {
		return pipeline.IngestReport{}
	}

	report := s.ingester.Ingest(ctx, items)
	s.logger.Info().
		Int("received", report.Received).
		Int("admitted", report.Admitted).
		Int("kept", report.Kept).
		Msg("feed poll ingested")
	return report
}

// String returns the service name for logging.
func (s *FeedPollerService) String() string {
	return "feed-poller"
}
