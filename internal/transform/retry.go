// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

package transform

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
)

// RetryConfig bounds retries of a single transform request.
type RetryConfig struct {
	MaxAttempts    int           `koanf:"max_attempts" validate:"min=1,max=10"`
	InitialBackoff time.Duration `koanf:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff"`
	Multiplier     float64       `koanf:"multiplier"`
	JitterFraction float64       `koanf:"jitter_fraction"`
}

// DefaultRetryConfig is 3 attempts with 1s, 2s exponential backoff and 10% jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// permanent marks err as not worth retrying (bad request, unparseable reply).
func permanent(err error) error {
	return backoff.Permanent(err)
}

// newBackOff builds the exponential schedule described by cfg.
func newBackOff(cfg RetryConfig) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialBackoff
	b.Multiplier = cfg.Multiplier
	if b.Multiplier < 1 {
		b.Multiplier = 2
	}
	b.RandomizationFactor = max(0, cfg.JitterFraction)
	if cfg.MaxBackoff > 0 {
		b.MaxInterval = cfg.MaxBackoff
	}
	return b
}

// retry runs op up to MaxAttempts times, sleeping with jittered exponential backoff
// between attempts. It returns the last error; context cancellation ends it early.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func retry(ctx context.Context, cfg RetryConfig, logger zerolog.Logger, op func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	attempt := 0
	var lastErr error
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		lastErr = op(ctx)
		return struct{}{}, lastErr
	},
		backoff.WithBackOff(newBackOff(cfg)),
		backoff.WithMaxTries(uint(cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logger.Debug().Err(err).Int("attempt", attempt).Dur("backoff", wait).Msg("Transform request failed, retrying")
		}),
	)
	if err == nil {
		if attempt > 1 {
			logger.Debug().Int("attempt", attempt).Msg("Transform request succeeded after retry")
		}
		return nil
	}
	if lastErr != nil && ctx.Err() != nil && !errors.Is(lastErr, ctx.Err()) {
		// Canceled while waiting: report the failure that caused the wait.
		var perm *backoff.PermanentError
		if errors.As(lastErr, &perm) {
			return perm.Unwrap()
		}
		return lastErr
	}
	return err
}
