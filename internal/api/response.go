// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/newsdesk/internal/logging"
	"github.com/tomtom215/newsdesk/internal/middleware"
)

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Meta    *APIMeta  `json:"meta,omitempty"`
}

// APIError describes a failed request.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// APIMeta carries response metadata.
type APIMeta struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// Error codes for API responses
const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeTooManyRequests    = "TOO_MANY_REQUESTS"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeUnsupportedMedia   = "UNSUPPORTED_MEDIA_TYPE"
)

func respondJSON(w http.ResponseWriter, status int, response *APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func respondData(w http.ResponseWriter, r *http.Request, status int, data any) {
	respondJSON(w, status, &APIResponse{
		Success: true,
		Data:    data,
		Meta:    &APIMeta{Timestamp: time.Now(), RequestID: middleware.GetRequestID(r.Context())},
	})
}

// respondError writes an error envelope. A non-nil err is logged, never sent to the client.
func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, err error) {
	requestID := middleware.GetRequestID(r.Context())
	if err != nil {
		logging.Ctx(r.Context()).Error().
			Str("code", code).
			Str("path", r.URL.Path).
			Str("error", sanitizeLogValue(err.Error())).
			Msg("API error")
	}

	respondJSON(w, status, &APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message, RequestID: requestID},
		Meta:    &APIMeta{Timestamp: time.Now(), RequestID: requestID},
	})
}

func respondValidation(w http.ResponseWriter, r *http.Request, apiErr *APIError) {
	apiErr.RequestID = middleware.GetRequestID(r.Context())
	respondJSON(w, http.StatusBadRequest, &APIResponse{
		Success: false,
		Error:   apiErr,
		Meta:    &APIMeta{Timestamp: time.Now(), RequestID: apiErr.RequestID},
	})
}

// sanitizeLogValue strips line breaks so user input cannot forge log lines.
func sanitizeLogValue(s string) string {
	return strings.NewReplacer("\n", " ", "\r", " ").Replace(s)
}
