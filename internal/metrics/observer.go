// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

// Package metrics defines the Observer every pipeline component reports to,
// with a Prometheus implementation and a no-op implementation.
//
// Components never touch package-level counters; they receive an Observer at
// construction time so tests can swap in Nop or a Prometheus observer bound to
// a private registry.
package metrics

import "time"

// Observer receives measurements from pipeline components.
// Implementations must be safe for concurrent use.
type Observer interface {
	// ItemAdmitted counts an item that passed the admission filter.
	ItemAdmitted()
	// ItemRejected counts an admission rejection by reason.
	ItemRejected(reason string)

	// CacheHit, CacheMiss and CacheCompute track the transform cache.
	CacheHit()
	CacheMiss()
	CacheCompute(err error)
	// CacheEvicted counts entries physically removed by a sweep.
	CacheEvicted(n int)

	// TransformCall records one external transform request by operation.
	TransformCall(op string, duration time.Duration, err error)
	// TransformTokens adds token usage reported by the transform service.
	TransformTokens(op string, tokens int)
	// BreakerStateChanged records a circuit breaker transition.
	BreakerStateChanged(name, from, to string)
	// BreakerRejected counts a request refused by an open breaker.
	BreakerRejected(name string)

	// ContentProcessed counts content processing outcomes (kept, rewritten, filtered, translated).
	ContentProcessed(outcome string)
	// ItemScored records the scoring duration and whether external adjustment applied.
	ItemScored(duration time.Duration, adjusted bool)
	// RecommendationsServed counts items handed to the delivery boundary.
	RecommendationsServed(n int)

	// FeedbackApplied counts a feedback event applied to a profile.
	FeedbackApplied(reaction string)
	// FeedbackMalformed counts a dropped feedback event.
	FeedbackMalformed()
	// SatisfactionObserved records a recomputed recent_satisfaction value.
	SatisfactionObserved(value float64)
}

// Nop discards every measurement.
type Nop struct{}

var _ Observer = Nop{}

func (Nop) ItemAdmitted() {}
func (Nop) ItemRejected(string) {}
func (Nop) CacheHit() {}
func (Nop) CacheMiss() {}
func (Nop) CacheCompute(error) {}
func (Nop) CacheEvicted(int) {}
func (Nop) TransformCall(string, time.Duration, error) {}
func (Nop) TransformTokens(string, int) {}
func (Nop) BreakerStateChanged(string, string, string) {}
func (Nop) BreakerRejected(string) {}
func (Nop) ContentProcessed(string) {}
func (Nop) ItemScored(time.Duration, bool) {}
func (Nop) RecommendationsServed(int) {}
func (Nop) FeedbackApplied(string) {}
func (Nop) FeedbackMalformed() {}
func (Nop) SatisfactionObserved(float64) {}
