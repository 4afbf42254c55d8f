// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/tomtom215/newsdesk/internal/events"
	"github.com/tomtom215/newsdesk/internal/feedback"
	"github.com/tomtom215/newsdesk/internal/logging"
	"github.com/tomtom215/newsdesk/internal/preference"
)

// FeedbackRequest is the body of POST /api/v1/feedback. Content may be omitted
// when ContentID names an item still in the candidate pool. A source given in
// Content is reduced to its scoring category before the event is applied.
type FeedbackRequest struct {
	ID        string               `json:"id,omitempty" validate:"max=64"`
	UserID    string               `json:"user_id" validate:"required,max=128"`
	ContentID string               `json:"content_id" validate:"required,max=128"`
	Reaction  string               `json:"reaction" validate:"required,reaction"`
	Timestamp *time.Time           `json:"timestamp,omitempty"`
	Comment   string               `json:"comment,omitempty" validate:"max=2000"`
	Content   *feedback.Descriptor `json:"content,omitempty"`
}

// FeedbackResponse acknowledges a feedback submission.
type FeedbackResponse struct {
	EventID string `json:"event_id"`
	// Status is "queued" when the event went to the bus, "applied" or "duplicate" otherwise.
	Status  string              `json:"status"`
	Comfort *preference.Comfort `json:"comfort,omitempty"`
}

// Feedback serves POST /api/v1/feedback.
func (h *Handler) Feedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	reaction, err := feedback.ParseReaction(req.Reaction)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeValidationFailed, err.Error(), nil)
		return
	}

	ev := feedback.Event{
		ID:        req.ID,
		UserID:    req.UserID,
		ContentID: req.ContentID,
		Reaction:  reaction,
		Comment:   req.Comment,
	}
	if req.Timestamp != nil {
		ev.Timestamp = *req.Timestamp
	}
	if req.Content != nil {
		ev.Content = *req.Content
		ev.Content.Source = h.curator.ClassifySource(ev.Content.Source)
	}
	if ev.Content.Empty() {
		item, ok := h.curator.Item(req.ContentID)
		if !ok {
			respondError(w, r, http.StatusUnprocessableEntity, ErrCodeValidationFailed,
				"content is required for items no longer in the candidate pool", nil)
			return
		}
		ev.Content = h.curator.Descriptor(item)
	}

	ctx := logging.ContextWithUserID(r.Context(), req.UserID)

	if h.publisher != nil {
		id, err := h.publisher.Publish(ctx, ev)
		if err != nil {
			if errors.Is(err, events.ErrNotRunning) {
				respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Feedback bus is not running", err)
				return
			}
			respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Failed to queue feedback", err)
			return
		}
		respondData(w, r, http.StatusAccepted, FeedbackResponse{EventID: id, Status: "queued"})
		return
	}

	out, err := h.feedback.Apply(ctx, ev)
	if err != nil {
		if errors.Is(err, feedback.ErrMalformedFeedback) {
			respondError(w, r, http.StatusBadRequest, ErrCodeValidationFailed, err.Error(), nil)
			return
		}
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Failed to apply feedback", err)
		return
	}
	status := "applied"
	if out.Duplicate {
		status = "duplicate"
	}
	comfort := out.Profile.Comfort
	respondData(w, r, http.StatusOK, FeedbackResponse{EventID: out.Event.ID, Status: status, Comfort: &comfort})
}
