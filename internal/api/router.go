// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/newsdesk/internal/logging"
	"github.com/tomtom215/newsdesk/internal/middleware"
)

// Config configures the HTTP server.
type Config struct {
	Addr            string        `koanf:"addr" validate:"required"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	MaxBodyBytes    int64         `koanf:"max_body_bytes" validate:"gte=1024"`

	// RateLimitRequests per RateLimitWindow per client IP on /api/v1.
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"gte=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`

	// CORSAllowedOrigins enables CORS for browser clients. Empty disables it.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins" validate:"dive,required"`
}

// DefaultConfig listens on :8080 with 100 requests per minute per IP.
func DefaultConfig() Config {
	return Config{
		Addr:              ":8080",
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
		ShutdownTimeout:   10 * time.Second,
		MaxBodyBytes:      4 << 20,
		RateLimitRequests: 100,
		RateLimitWindow:   time.Minute,
	}
}

// NewRouter mounts every endpoint on a chi router.
//
//	GET    /health, /health/live, /health/ready
//	GET    /metrics
//	GET    /api/v1/recommendations?user=&k=
//	POST   /api/v1/ingest[?user=&k=&source=]
//	POST   /api/v1/feedback
//	GET    /api/v1/users/{id}/profile
//	POST   /api/v1/users/{id}/blacklist
//	DELETE /api/v1/users/{id}/blacklist
//	PUT    /api/v1/users/{id}/schedule
//	GET    /api/v1/users/{id}/insights
//	GET    /api/v1/users/{id}/history
func NewRouter(h *Handler, cfg Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	if h.httpMetrics != nil {
		r.Use(h.httpMetrics.Handler)
	}
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	r.Use(chimiddleware.Compress(5, "application/json"))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Get("/health", h.Health)
	r.Get("/health/live", h.HealthLive)
	r.Get("/health/ready", h.HealthReady)
	r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rateLimit(cfg))

		r.Get("/recommendations", h.Recommendations)
		r.Post("/ingest", h.Ingest)
		r.Post("/feedback", h.Feedback)

		r.Route("/users/{id}", func(r chi.Router) {
			r.Get("/profile", h.Profile)
			r.Post("/blacklist", h.AddBlacklist)
			r.Delete("/blacklist", h.RemoveBlacklist)
			r.Put("/schedule", h.SetSchedule)
			r.Get("/insights", h.Insights)
			r.Get("/history", h.History)
		})
	})

	return r
}

// NewServer builds the http.Server for cfg; the supervisor runs it.
func NewServer(cfg Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// rateLimit limits /api/v1 per client IP with go-chi/httprate.
func rateLimit(cfg Config) func(http.Handler) http.Handler {
	if cfg.RateLimitDisabled || cfg.RateLimitRequests <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	window := cfg.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}
	return httprate.Limit(
		cfg.RateLimitRequests,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			respondError(w, r, http.StatusTooManyRequests, ErrCodeTooManyRequests, "Rate limit exceeded", nil)
		}),
	)
}

// requestLogger logs one line per request through zerolog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logging.Ctx(r.Context()).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("HTTP request")
	})
}
