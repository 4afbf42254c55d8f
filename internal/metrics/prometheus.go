// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus is an Observer backed by Prometheus collectors.
type Prometheus struct {
	// Admission
	admitted prometheus.Counter
	rejected *prometheus.CounterVec

	// Transform cache
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	cacheComputes  *prometheus.CounterVec
	cacheEvictions prometheus.Counter

	// Transform service
	transformDuration *prometheus.HistogramVec
	transformErrors   *prometheus.CounterVec
	transformTokens   *prometheus.CounterVec

	breakerState       *prometheus.GaugeVec
	breakerTransitions *prometheus.CounterVec
	breakerRejected    *prometheus.CounterVec

	// Scoring and delivery
	contentProcessed *prometheus.CounterVec
	scoreDuration    *prometheus.HistogramVec
	served           prometheus.Counter

	// Feedback
	feedbackApplied   *prometheus.CounterVec
	feedbackMalformed prometheus.Counter
	satisfaction      prometheus.Histogram
}

var _ Observer = (*Prometheus)(nil)

// NewPrometheus registers the Newsdesk collectors with reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	f := promauto.With(reg)

	return &Prometheus{
		admitted: f.NewCounter(prometheus.CounterOpts{
			Name: "newsdesk_admission_admitted_total",
			Help: "Total number of items admitted into scoring",
		}),
		rejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdesk_admission_rejected_total",
			Help: "Total number of items rejected at admission",
		}, []string{"reason"}),

		cacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "newsdesk_transform_cache_hits_total",
			Help: "Total number of transform cache hits",
		}),
		cacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "newsdesk_transform_cache_misses_total",
			Help: "Total number of transform cache misses, including expired entries",
		}),
		cacheComputes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdesk_transform_cache_computes_total",
			Help: "Total number of compute calls issued on cache miss",
		}, []string{"status"}),
		cacheEvictions: f.NewCounter(prometheus.CounterOpts{
			Name: "newsdesk_transform_cache_evictions_total",
			Help: "Total number of expired entries removed by the sweeper",
		}),

		transformDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "newsdesk_transform_request_duration_seconds",
			Help:    "Duration of text transform service requests",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"op"}),
		transformErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdesk_transform_request_errors_total",
			Help: "Total number of failed text transform requests",
		}, []string{"op"}),
		transformTokens: f.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdesk_transform_tokens_total",
			Help: "Total number of tokens consumed by the text transform service",
		}, []string{"op"}),

		breakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "newsdesk_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		}, []string{"name"}),
		breakerTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdesk_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		}, []string{"name", "from", "to"}),
		breakerRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdesk_circuit_breaker_rejected_total",
			Help: "Total number of requests rejected by an open circuit breaker",
		}, []string{"name"}),

		contentProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdesk_content_processed_total",
			Help: "Total number of content processing outcomes",
		}, []string{"outcome"}),
		scoreDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "newsdesk_score_duration_seconds",
			Help:    "Duration of scoring one item",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1, 5, 30},
		}, []string{"adjusted"}),
		served: f.NewCounter(prometheus.CounterOpts{
			Name: "newsdesk_recommendations_served_total",
			Help: "Total number of recommendations handed to delivery",
		}),

		feedbackApplied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdesk_feedback_applied_total",
			Help: "Total number of feedback events applied to profiles",
		}, []string{"reaction"}),
		feedbackMalformed: f.NewCounter(prometheus.CounterOpts{
			Name: "newsdesk_feedback_malformed_total",
			Help: "Total number of feedback events dropped as malformed",
		}),
		satisfaction: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "newsdesk_recent_satisfaction",
			Help:    "Distribution of recomputed recent satisfaction values",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
	}
}

func (p *Prometheus) ItemAdmitted() { p.admitted.Inc() }

func (p *Prometheus) ItemRejected(reason string) { p.rejected.WithLabelValues(reason).Inc() }

func (p *Prometheus) CacheHit() { p.cacheHits.Inc() }

func (p *Prometheus) CacheMiss() { p.cacheMisses.Inc() }

func (p *Prometheus) CacheCompute(err error) {
	p.cacheComputes.WithLabelValues(status(err)).Inc()
}

func (p *Prometheus) CacheEvicted(n int) { p.cacheEvictions.Add(float64(n)) }

func (p *Prometheus) TransformCall(op string, duration time.Duration, err error) {
	p.transformDuration.WithLabelValues(op).Observe(duration.Seconds())
	if err != nil {
		p.transformErrors.WithLabelValues(op).Inc()
	}
}

func (p *Prometheus) TransformTokens(op string, tokens int) {
	if tokens > 0 {
		p.transformTokens.WithLabelValues(op).Add(float64(tokens))
	}
}

func (p *Prometheus) BreakerStateChanged(name, from, to string) {
	p.breakerState.WithLabelValues(name).Set(breakerStateValue(to))
	p.breakerTransitions.WithLabelValues(name, from, to).Inc()
}

func (p *Prometheus) BreakerRejected(name string) { p.breakerRejected.WithLabelValues(name).Inc() }

func (p *Prometheus) ContentProcessed(outcome string) {
	p.contentProcessed.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) ItemScored(duration time.Duration, adjusted bool) {
	p.scoreDuration.WithLabelValues(strconv.FormatBool(adjusted)).Observe(duration.Seconds())
}

func (p *Prometheus) RecommendationsServed(n int) { p.served.Add(float64(n)) }

func (p *Prometheus) FeedbackApplied(reaction string) {
	p.feedbackApplied.WithLabelValues(reaction).Inc()
}

func (p *Prometheus) FeedbackMalformed() { p.feedbackMalformed.Inc() }

func (p *Prometheus) SatisfactionObserved(value float64) { p.satisfaction.Observe(value) }

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func breakerStateValue(state string) float64 {
	switch state {
	case "closed":
		return 0
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return -1
	}
}
