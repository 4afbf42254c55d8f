// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/newsdesk/internal/logging"
)

// Job is one run of a periodic task. It returns how many entries it affected.
type Job func(ctx context.Context) (int, error)

// PeriodicServiceConfig holds configuration for a PeriodicService.
type PeriodicServiceConfig struct {
	// Interval between runs. Non-positive means one hour.
	Interval time.Duration

	// RunOnStart runs the job once before the first tick.
	RunOnStart bool

	// Timeout bounds a single run. Zero means Interval.
	Timeout time.Duration
}

// PeriodicService runs a Job on a ticker until its context is canceled.
// A failed run is logged and retried on the next tick; it never stops the service.
type PeriodicService struct {
	name   string
	job    Job
	config PeriodicServiceConfig
	logger zerolog.Logger
}

// NewPeriodicService creates a service named name running job.
func NewPeriodicService(name string, job Job, cfg PeriodicServiceConfig) *PeriodicService {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = cfg.Interval
	}
	return &PeriodicService{
		name:   name,
		job:    job,
		config: cfg,
		logger: logging.WithComponent(name),
	}
}

// Serve implements suture.Service.
func (s *PeriodicService) Serve(ctx context.Context) error {
	s.logger.Debug().
		Dur("interval", s.config.Interval).
		Bool("run_on_start", s.config.RunOnStart).
		Msg("periodic service starting")

	if s.config.RunOnStart {
		s.run(ctx)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.run(ctx)
		}
	}
}

func (s *PeriodicService) run(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	start := time.Now()
	n, err := s.job(runCtx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn().Err(err).Msg("periodic run failed")
		}
		return
	}
	if n > 0 {
		s.logger.Info().Int("affected", n).Dur("duration", time.Since(start)).Msg("periodic run complete")
	}
}

// String returns the service name for logging.
func (s *PeriodicService) String() string {
	return s.name
}

// CountJob adapts a context-free func returning a count, such as Curator.PrunePool.
func CountJob(fn func() int) Job {
	return func(context.Context) (int, error) {
		return fn(), nil
	}
}
