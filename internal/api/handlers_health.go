// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/tomtom215/newsdesk/internal/kv"
)

const healthProbeKey = "health:probe"

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status         string  `json:"status"`
	StorageHealthy bool    `json:"storage_healthy"`
	BusRunning     bool    `json:"bus_running"`
	PoolSize       int     `json:"pool_size"`
	Uptime         float64 `json:"uptime_seconds"`
}

// Health serves GET /health. The service is degraded when storage cannot be
// read or the feedback bus is configured but not running.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	storageOK := h.storageHealthy(r.Context())
	busOK := h.busRunning()

	status := "healthy"
	if !storageOK || !busOK {
		status = "degraded"
	}
	respondData(w, r, http.StatusOK, HealthStatus{
		Status:         status,
		StorageHealthy: storageOK,
		BusRunning:     busOK,
		PoolSize:       h.curator.PoolSize(),
		Uptime:         time.Since(h.startTime).Seconds(),
	})
}

// HealthLive serves GET /health/live; it only reports that the process is up.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondData(w, r, http.StatusOK, map[string]any{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady serves GET /health/ready with 503 until storage and the bus are usable.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	storageOK := h.storageHealthy(r.Context())
	busOK := h.busRunning()
	ready := storageOK && busOK

	data := map[string]any{
		"storage_healthy": storageOK,
		"bus_running":     busOK,
		"ready_to_serve":  ready,
	}
	if !ready {
		respondJSON(w, http.StatusServiceUnavailable, &APIResponse{Success: false, Data: data})
		return
	}
	respondData(w, r, http.StatusOK, data)
}

func (h *Handler) storageHealthy(ctx context.Context) bool {
	if h.repo == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := h.repo.Get(ctx, healthProbeKey)
	return err == nil || errors.Is(err, kv.ErrNotFound)
}

// busRunning reports whether the publisher, when it exposes Running, has started.
func (h *Handler) busRunning() bool {
	runner, ok := h.publisher.(interface{ Running() <-chan struct{} })
	if !ok {
		return true
	}
	select {
	case <-runner.Running():
		return true
	default:
		return false
	}
}
