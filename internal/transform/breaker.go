// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

package transform

import (
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/newsdesk/internal/logging"
	"github.com/tomtom215/newsdesk/internal/metrics"
)

// BreakerConfig configures the circuit breaker in front of the remote service.
type BreakerConfig struct {
	// MaxRequests is the number of probe requests allowed while half-open.
	MaxRequests uint32 `koanf:"max_requests"`

	// Interval resets the failure counts while closed.
	Interval time.Duration `koanf:"interval"`

	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration `koanf:"timeout"`

	// MinRequests and FailureRatio decide when to trip.
	MinRequests  uint32  `koanf:"min_requests"`
	FailureRatio float64 `koanf:"failure_ratio" validate:"gt=0,lte=1"`
}

// DefaultBreakerConfig opens after 60% failures over at least 10 requests and probes after 2 minutes.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:  3,
		Interval:     time.Minute,
		Timeout:      2 * time.Minute,
		MinRequests:  10,
		FailureRatio: 0.6,
	}
}

// newBreaker builds a gobreaker whose transitions are logged and reported to observer.
func newBreaker(name string, cfg BreakerConfig, observer metrics.Observer) *gobreaker.CircuitBreaker[string] {
	log := logging.WithComponent("transform")

	return gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			if ratio >= cfg.FailureRatio {
				log.Warn().Uint32("failures", counts.TotalFailures).Float64("failure_rate", ratio*100).Msg("Opening transform circuit")
				return true
			}
			return false
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info().Str("breaker", name).Str("from", stateName(from)).Str("to", stateName(to)).Msg("Circuit breaker state transition")
			observer.BreakerStateChanged(name, stateName(from), stateName(to))
		},

		// Cancellations by the caller say nothing about the service's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errCallerCanceled)
		},
	})
}

var errCallerCanceled = errors.New("caller canceled")

func isBreakerRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func stateName(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
