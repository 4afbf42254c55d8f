// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/newsdesk/internal/logging"
	"github.com/tomtom215/newsdesk/internal/preference"
)

type userPath struct {
	UserID string `json:"id" validate:"required,max=128"`
}

// userID extracts and validates the {id} path parameter.
func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	p := userPath{UserID: strings.TrimSpace(chi.URLParam(r, "id"))}
	return p.UserID, validateRequest(w, r, &p)
}

// Profile serves GET /api/v1/users/{id}/profile.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	profile, err := h.profiles.Snapshot(r.Context(), id)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Failed to load profile", err)
		return
	}
	respondData(w, r, http.StatusOK, profile)
}

// BlacklistRequest adds or removes one blacklist entry.
type BlacklistRequest struct {
	Kind  string `json:"kind" validate:"required,oneof=author source keyword"`
	Value string `json:"value" validate:"required,max=256"`
}

// AddBlacklist serves POST /api/v1/users/{id}/blacklist.
func (h *Handler) AddBlacklist(w http.ResponseWriter, r *http.Request) {
	h.editBlacklist(w, r, func(p *preference.Profile, req BlacklistRequest) error {
		return p.AddBlacklist(preference.BlacklistKind(req.Kind), req.Value)
	})
}

// RemoveBlacklist serves DELETE /api/v1/users/{id}/blacklist.
func (h *Handler) RemoveBlacklist(w http.ResponseWriter, r *http.Request) {
	h.editBlacklist(w, r, func(p *preference.Profile, req BlacklistRequest) error {
		return p.RemoveBlacklist(preference.BlacklistKind(req.Kind), req.Value)
	})
}

func (h *Handler) editBlacklist(w http.ResponseWriter, r *http.Request, edit func(*preference.Profile, BlacklistRequest) error) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	var req BlacklistRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	ctx := logging.ContextWithUserID(r.Context(), id)
	profile, err := h.profiles.Update(ctx, id, func(p *preference.Profile) error {
		return edit(p, req)
	})
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Failed to update blacklist", err)
		return
	}
	logging.Ctx(ctx).Info().Str("kind", req.Kind).Str("method", r.Method).Msg("Blacklist updated")
	respondData(w, r, http.StatusOK, profile.Blacklist)
}

// ScheduleRequest replaces the preferred content types of one time-of-day bucket.
type ScheduleRequest struct {
	Bucket string   `json:"bucket" validate:"required,bucket"`
	Types  []string `json:"types" validate:"required,min=1,max=16,dive,required,max=64"`
}

// SetSchedule serves PUT /api/v1/users/{id}/schedule.
func (h *Handler) SetSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	var req ScheduleRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	bucket, err := preference.ParseBucket(req.Bucket)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeValidationFailed, err.Error(), nil)
		return
	}

	profile, err := h.profiles.SetSchedule(r.Context(), id, bucket, req.Types)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Failed to update schedule", err)
		return
	}
	respondData(w, r, http.StatusOK, profile.Schedule)
}

// Insights serves GET /api/v1/users/{id}/insights.
func (h *Handler) Insights(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	insights, err := h.feedback.Insights(r.Context(), id)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Failed to derive insights", err)
		return
	}
	respondData(w, r, http.StatusOK, insights)
}

// History serves GET /api/v1/users/{id}/history, the recommendations recently delivered.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	history, err := h.curator.History(r.Context(), id)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Failed to load history", err)
		return
	}
	if history == nil {
		respondData(w, r, http.StatusOK, []any{})
		return
	}
	respondData(w, r, http.StatusOK, history)
}
