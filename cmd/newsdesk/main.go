// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

// Package main is the entry point for the Newsdesk server.
//
// Newsdesk admits news items, restyles and translates them through a text
// transform service, and serves per-user recommendations that adapt to
// like/dislike/refresh feedback.
//
// # Startup Order
//
//  1. Configuration: defaults, config.yaml, NEWSDESK_* environment (Koanf v2)
//  2. Storage: memory, BadgerDB, SQLite or Redis behind kv.Repository
//  3. Pipeline: transform service, cache, admission, scoring, diversity
//  4. Feedback: preference store, feedback processor, Watermill bus
//  5. Supervisor tree: maintenance jobs, bus, feed poller, HTTP server
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the root context. The supervisor stops every
// service, then the bus and the repository are closed.
//
// # Example Usage
//
//	export NEWSDESK_STORAGE_BACKEND=sqlite
//	export NEWSDESK_STORAGE_PATH=/var/lib/newsdesk/newsdesk.db
//	export NEWSDESK_TRANSFORM_PROVIDER=remote
//	export NEWSDESK_TRANSFORM_API_KEY=sk-...
//	./newsdesk
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tomtom215/newsdesk/internal/admission"
	"github.com/tomtom215/newsdesk/internal/api"
	"github.com/tomtom215/newsdesk/internal/cache"
	"github.com/tomtom215/newsdesk/internal/config"
	"github.com/tomtom215/newsdesk/internal/content"
	"github.com/tomtom215/newsdesk/internal/diversity"
	"github.com/tomtom215/newsdesk/internal/events"
	"github.com/tomtom215/newsdesk/internal/feed"
	"github.com/tomtom215/newsdesk/internal/feedback"
	"github.com/tomtom215/newsdesk/internal/kv"
	"github.com/tomtom215/newsdesk/internal/logging"
	"github.com/tomtom215/newsdesk/internal/metrics"
	"github.com/tomtom215/newsdesk/internal/middleware"
	"github.com/tomtom215/newsdesk/internal/pipeline"
	"github.com/tomtom215/newsdesk/internal/preference"
	"github.com/tomtom215/newsdesk/internal/scoring"
	"github.com/tomtom215/newsdesk/internal/supervisor"
	"github.com/tomtom215/newsdesk/internal/supervisor/services"
	"github.com/tomtom215/newsdesk/internal/transform"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(cfg.Logging.ToLogging())

	if err := run(cfg); err != nil {
		logging.Error().Err(err).Msg("Newsdesk stopped with error")
		os.Exit(1)
	}
	logging.Info().Msg("Application stopped gracefully")
}

//nolint:gocyclo // sequential wiring of every component
func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().
		Str("storage", cfg.Storage.Backend).
		Str("transform", cfg.Transform.Provider).
		Str("addr", cfg.Server.Addr).
		Msg("Starting Newsdesk")

	repo, err := kv.Open(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing storage")
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var observer metrics.Observer = metrics.NewPrometheus(reg)

	var service transform.Service
	switch cfg.Transform.Provider {
	case config.ProviderRemote:
		service = transform.NewRemoteService(cfg.Transform.Remote, observer)
	default:
		service = transform.NewStubService()
	}

	transformCache := cache.NewTransformCache(cfg.Cache.TTL,
		cache.WithRepository(repo),
		cache.WithObserver(observer),
	)

	records := content.NewRecordStore(repo, content.WithExpectedItems(cfg.Pipeline.PoolSize*20))
	if err := records.Load(ctx); err != nil {
		return err
	}
	logging.Info().Int("records", records.Len()).Msg("Content records loaded")

	filter := admission.NewFilter(cfg.Admission, records, admission.WithObserver(observer))
	processor := pipeline.NewProcessor(cfg.Pipeline.Process, service, transformCache, observer)

	engineOpts := []scoring.Option{scoring.WithObserver(observer)}
	if cfg.Scoring.AdvisorEnabled {
		engineOpts = append(engineOpts, scoring.WithAdvisor(scoring.NewAdvisor(service, cfg.Scoring.AdvisorTimeout)))
	}
	engine := scoring.NewEngine(cfg.Scoring, engineOpts...)

	selector, err := diversity.New(cfg.Diversity)
	if err != nil {
		return err
	}

	profiles := preference.NewStore(repo)
	feedbackProcessor := feedback.NewProcessor(cfg.Feedback, profiles,
		feedback.WithRepository(repo),
		feedback.WithObserver(observer),
	)

	curator := pipeline.NewCurator(cfg.Pipeline, filter, processor, engine, selector, profiles,
		pipeline.WithRepository(repo),
		pipeline.WithObserver(observer),
	)

	bus, err := events.NewBus(cfg.Events, feedbackProcessor, observer)
	if err != nil {
		return err
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing feedback bus")
		}
	}()

	parser := feed.NewParser(cfg.Pipeline.Process.TargetLanguage)
	handler := api.NewHandler(curator, profiles, feedbackProcessor,
		api.WithPublisher(bus),
		api.WithParser(parser),
		api.WithRepository(repo),
		api.WithGatherer(reg),
		api.WithHTTPMetrics(middleware.NewHTTPMetrics(reg)),
		api.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
	)
	server := api.NewServer(cfg.Server, api.NewRouter(handler, cfg.Server))

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger("supervisor"), cfg.Supervisor)
	if err != nil {
		return err
	}

	tree.AddDataService(services.NewPeriodicService("transform-cache-sweeper", transformCache.Sweep,
		services.PeriodicServiceConfig{Interval: cfg.Cache.SweepInterval}))
	if cfg.Maintenance.RecordMaxAge > 0 {
		maxAge := cfg.Maintenance.RecordMaxAge
		tree.AddDataService(services.NewPeriodicService("record-pruner",
			func(ctx context.Context) (int, error) { return records.Prune(ctx, maxAge) },
			services.PeriodicServiceConfig{Interval: cfg.Maintenance.RecordPruneInterval, RunOnStart: true}))
	}
	tree.AddDataService(services.NewPeriodicService("pool-pruner", services.CountJob(curator.PrunePool),
		services.PeriodicServiceConfig{Interval: cfg.Maintenance.PoolPruneInterval}))
	tree.AddDataService(services.NewPeriodicService("feedback-dedup-cleanup", services.CountJob(feedbackProcessor.CleanupDedup),
		services.PeriodicServiceConfig{Interval: cfg.Maintenance.DedupCleanupInterval}))

	tree.AddMessagingService(bus)
	if len(cfg.Feeds.Sources) > 0 {
		sources := make([]feed.Source, 0, len(cfg.Feeds.Sources))
		for _, src := range cfg.Feeds.Sources {
			sources = append(sources, feed.NewFileSource(src.Name, src.Path, parser))
		}
		tree.AddMessagingService(services.NewFeedPollerService(sources, curator, cfg.Feeds.PollInterval))
	}

	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	var runErr error
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		runErr = err
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}
	return runErr
}
