// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/newsdesk/internal/logging"
)

func TestRequestID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		inbound  string
		wantSame bool
	}{
		{name: "generates new id", inbound: ""},
		{name: "preserves upstream id", inbound: "edge-7f3a", wantSame: true},
		{name: "replaces oversized id", inbound: strings.Repeat("x", 200)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var ctxID, correlationID string
			handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctxID = GetRequestID(r.Context())
				correlationID = logging.CorrelationIDFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.inbound != "" {
				req.Header.Set(RequestIDHeader, tt.inbound)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			got := rec.Header().Get(RequestIDHeader)
			if tt.wantSame {
				if got != tt.inbound {
					t.Errorf("response id = %q, want %q", got, tt.inbound)
				}
			} else if _, err := uuid.Parse(got); err != nil {
				t.Errorf("response id %q is not a UUID: %v", got, err)
			}
			if ctxID != got || correlationID != got {
				t.Errorf("context id = %q, correlation id = %q, want %q", ctxID, correlationID, got)
			}
		})
	}
}

func TestGetRequestID_Empty(t *testing.T) {
	t.Parallel()

	if id := GetRequestID(httptest.NewRequest(http.MethodGet, "/", nil).Context()); id != "" {
		t.Errorf("GetRequestID() = %q, want empty", id)
	}
}

func TestHTTPMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	r := chi.NewRouter()
	r.Use(m.Handler)
	r.Get("/api/v1/users/{id}/profile", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/api/v1/feedback", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	for _, target := range []string{"/api/v1/users/alice/profile", "/api/v1/users/bob/profile"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/feedback", nil))

	if got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/api/v1/users/{id}/profile", "200")); got != 2 {
		t.Errorf("profile requests = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodPost, "/api/v1/feedback", "202")); got != 1 {
		t.Errorf("feedback requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.active); got != 0 {
		t.Errorf("in-flight = %v, want 0", got)
	}
}

func TestCORS(t *testing.T) {
	t.Parallel()

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	t.Run("disabled without origins", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://reader.example")
		rec := httptest.NewRecorder()
		CORS(nil)(ok).ServeHTTP(rec, req)
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Allow-Origin = %q, want empty", got)
		}
	})

	t.Run("allows configured origin", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://reader.example")
		rec := httptest.NewRecorder()
		CORS([]string{"https://reader.example"})(ok).ServeHTTP(rec, req)
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://reader.example" {
			t.Errorf("Allow-Origin = %q", got)
		}
	})

	t.Run("ignores other origins", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://evil.example")
		rec := httptest.NewRecorder()
		CORS([]string{"https://reader.example"})(ok).ServeHTTP(rec, req)
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Allow-Origin = %q, want empty", got)
		}
	})
}
