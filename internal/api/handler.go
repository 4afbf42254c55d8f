// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

// Package api exposes the curation pipeline over HTTP: recommendations,
// feedback, profile edits, insights and batch ingestion.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tomtom215/newsdesk/internal/feed"
	"github.com/tomtom215/newsdesk/internal/feedback"
	"github.com/tomtom215/newsdesk/internal/kv"
	"github.com/tomtom215/newsdesk/internal/middleware"
	"github.com/tomtom215/newsdesk/internal/pipeline"
	"github.com/tomtom215/newsdesk/internal/preference"
	"github.com/tomtom215/newsdesk/internal/validation"
)

// Publisher enqueues feedback for asynchronous application.
// *events.Bus satisfies it.
type Publisher interface {
	Publish(ctx context.Context, ev feedback.Event) (string, error)
}

// Handler holds the dependencies of all HTTP endpoints.
type Handler struct {
	curator   *pipeline.Curator
	profiles  *preference.Store
	feedback  *feedback.Processor
	publisher Publisher
	parser    *feed.Parser
	repo      kv.Repository
	gatherer  prometheus.Gatherer
	maxBody   int64
	startTime time.Time

	httpMetrics *middleware.HTTPMetrics
}

// Option configures a Handler.
type Option func(*Handler)

// WithPublisher routes feedback through an event bus. Without one, feedback
// is applied synchronously.
func WithPublisher(p Publisher) Option {
	return func(h *Handler) { h.publisher = p }
}

// WithParser sets the RSS/Atom parser used by the ingest endpoint.
func WithParser(p *feed.Parser) Option {
	return func(h *Handler) { h.parser = p }
}

// WithRepository lets the health endpoints probe storage.
func WithRepository(repo kv.Repository) Option {
	return func(h *Handler) { h.repo = repo }
}

// WithGatherer exposes g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(h *Handler) { h.gatherer = g }
}

// WithHTTPMetrics instruments every request.
func WithHTTPMetrics(m *middleware.HTTPMetrics) Option {
	return func(h *Handler) { h.httpMetrics = m }
}

// WithMaxBodyBytes caps request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) { h.maxBody = n }
}

// NewHandler creates a Handler.
func NewHandler(curator *pipeline.Curator, profiles *preference.Store, processor *feedback.Processor, opts ...Option) *Handler {
	h := &Handler{
		curator:   curator,
		profiles:  profiles,
		feedback:  processor,
		parser:    feed.NewParser("zh"),
		gatherer:  prometheus.DefaultGatherer,
		maxBody:   4 << 20,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// decodeJSON decodes the request body into dst and validates it. On failure
// the error response has been written and false is returned.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body", err)
		return false
	}
	return validateRequest(w, r, dst)
}

func validateRequest(w http.ResponseWriter, r *http.Request, v any) bool {
	if verr := validation.ValidateStruct(v); verr != nil {
		apiErr := verr.ToAPIError()
		respondValidation(w, r, &APIError{Code: apiErr.Code, Message: apiErr.Message, Details: apiErr.Details})
		return false
	}
	return true
}
