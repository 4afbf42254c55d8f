// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

package api

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/tomtom215/newsdesk/internal/content"
	"github.com/tomtom215/newsdesk/internal/logging"
	"github.com/tomtom215/newsdesk/internal/pipeline"
)

type recommendQuery struct {
	UserID string `json:"user" validate:"required,max=128"`
	Count  int    `json:"k" validate:"gte=0,lte=50"`
}

// RecommendationsResponse is returned by the recommendation and curate endpoints.
type RecommendationsResponse struct {
	UserID          string                    `json:"user_id"`
	Recommendations []pipeline.Recommendation `json:"recommendations"`
	Ingest          *pipeline.IngestReport    `json:"ingest,omitempty"`
}

// Recommendations serves GET /api/v1/recommendations?user=<id>&k=<n>.
func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	q, ok := parseRecommendQuery(w, r)
	if !ok {
		return
	}
	ctx := logging.ContextWithUserID(r.Context(), q.UserID)

	recs, err := h.curator.Recommend(ctx, q.UserID, q.Count)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Failed to build recommendations", err)
		return
	}
	respondData(w, r, http.StatusOK, RecommendationsResponse{UserID: q.UserID, Recommendations: nonNil(recs)})
}

func parseRecommendQuery(w http.ResponseWriter, r *http.Request) (recommendQuery, bool) {
	q := recommendQuery{UserID: strings.TrimSpace(r.URL.Query().Get("user"))}
	if raw := r.URL.Query().Get("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "k must be an integer", nil)
			return q, false
		}
		q.Count = n
	}
	return q, validateRequest(w, r, &q)
}

// IngestItem is one item in a JSON ingest request.
type IngestItem struct {
	Title     string   `json:"title" validate:"required,max=1024"`
	Body      string   `json:"body" validate:"required"`
	Source    string   `json:"source" validate:"required,max=256"`
	Author    string   `json:"author,omitempty" validate:"max=256"`
	URL       string   `json:"url,omitempty" validate:"omitempty,url"`
	Topics    []string `json:"topics,omitempty" validate:"max=32,dive,required,max=64"`
	Language  string   `json:"language,omitempty" validate:"max=16"`
	Published string   `json:"published,omitempty"`

	NeedsTranslation bool `json:"needs_translation,omitempty"`
}

// IngestRequest is the JSON body of POST /api/v1/ingest.
type IngestRequest struct {
	Items []IngestItem `json:"items" validate:"required,min=1,max=1000,dive"`
}

func (it *IngestItem) toContent() *content.Item {
	item := &content.Item{
		Title:            it.Title,
		Body:             it.Body,
		Source:           it.Source,
		Author:           it.Author,
		URL:              it.URL,
		Topics:           it.Topics,
		Language:         it.Language,
		PublishedRaw:     it.Published,
		NeedsTranslation: it.NeedsTranslation,
	}
	if t, ok := content.ParseTime(it.Published); ok {
		item.PublishedAt = t
	}
	return item
}

// Ingest serves POST /api/v1/ingest. The body is either an IngestRequest or an
// RSS/Atom document (?source=<name> names the outlet). With ?user=<id> the batch
// is curated for that user and recommendations from it are returned; otherwise
// survivors only join the candidate pool.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	items, ok := h.readItems(w, r)
	if !ok {
		return
	}

	if r.URL.Query().Get("user") == "" {
		report := h.curator.Ingest(r.Context(), items)
		respondData(w, r, http.StatusOK, report)
		return
	}

	q, ok := parseRecommendQuery(w, r)
	if !ok {
		return
	}
	ctx := logging.ContextWithUserID(r.Context(), q.UserID)
	recs, report, err := h.curator.Curate(ctx, q.UserID, items, q.Count)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Failed to curate batch", err)
		return
	}
	respondData(w, r, http.StatusOK, RecommendationsResponse{
		UserID:          q.UserID,
		Recommendations: nonNil(recs),
		Ingest:          &report,
	})
}

func (h *Handler) readItems(w http.ResponseWriter, r *http.Request) ([]*content.Item, bool) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		mediaType = "application/json"
	}

	switch {
	case mediaType == "application/json":
		var req IngestRequest
		if !h.decodeJSON(w, r, &req) {
			return nil, false
		}
		items := make([]*content.Item, len(req.Items))
		for i := range req.Items {
			items[i] = req.Items[i].toContent()
		}
		return items, true

	case strings.HasSuffix(mediaType, "xml"):
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				respondError(w, r, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "Feed document too large", nil)
				return nil, false
			}
			respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Failed to read feed document", err)
			return nil, false
		}
		source := r.URL.Query().Get("source")
		if source == "" {
			source = "unknown"
		}
		items, err := h.parser.Parse(data, source)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Invalid RSS/Atom document", err)
			return nil, false
		}
		return items, true

	default:
		respondError(w, r, http.StatusUnsupportedMediaType, ErrCodeUnsupportedMedia,
			"Content-Type must be application/json or an RSS/Atom XML type", nil)
		return nil, false
	}
}

func nonNil(recs []pipeline.Recommendation) []pipeline.Recommendation {
	if recs == nil {
		return []pipeline.Recommendation{}
	}
	return recs
}
