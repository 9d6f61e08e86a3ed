package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// Health status constants for health check responses.
const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
	healthStatusUnavailable  = "unavailable"
)

// DefaultPingTimeout bounds the store check done by the readiness probe.
const DefaultPingTimeout = 2 * time.Second

// Pinger reports whether a dependency is reachable. account.Store
// satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker provides health check endpoints for Kubernetes probes.
type HealthChecker struct {
	ready        atomic.Bool
	shuttingDown atomic.Bool

	// store is checked by readiness. May be nil.
	store       Pinger
	pingTimeout time.Duration

	startTime time.Time
}

// NewHealthChecker creates a HealthChecker. The server starts as ready.
func NewHealthChecker(store Pinger) *HealthChecker {
	h := &HealthChecker{
		store:       store,
		pingTimeout: DefaultPingTimeout,
		startTime:   time.Now(),
	}
	h.ready.Store(true)
	return h
}

// SetReady sets the readiness state of the server.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady returns whether the server is ready to receive traffic.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// MarkShuttingDown makes readiness fail so load balancers drain the pod.
func (h *HealthChecker) MarkShuttingDown() {
	h.shuttingDown.Store(true)
}

// HealthResponse represents the JSON response for health endpoints.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse provides comprehensive health information.
type DetailedHealthResponse struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LivenessHandler serves /healthz. It only says the process is running.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{Status: healthStatusOK})
	})
}

// ReadinessHandler serves /readyz. It fails while not ready, while shutting
// down, or when the account store does not answer a ping.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checks, ok := h.checks(r.Context())
		response := HealthResponse{Status: healthStatusOK, Checks: checks}
		code := http.StatusOK
		if !ok {
			response.Status = healthStatusNotReady
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, response)
	})
}

// DetailedHealthHandler serves /healthz/detailed.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checks, ok := h.checks(r.Context())
		response := DetailedHealthResponse{
			Status: healthStatusOK,
			Uptime: time.Since(h.startTime).Truncate(time.Second).String(),
			Checks: checks,
		}
		code := http.StatusOK
		switch {
		case h.shuttingDown.Load():
			response.Status = healthStatusShuttingDown
			code = http.StatusServiceUnavailable
		case !ok:
			response.Status = healthStatusNotReady
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, response)
	})
}

// RegisterHealthEndpoints registers health check endpoints on the given mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("GET /healthz", h.LivenessHandler())
	mux.Handle("GET /readyz", h.ReadinessHandler())
	mux.Handle("GET /healthz/detailed", h.DetailedHealthHandler())
}

func (h *HealthChecker) checks(ctx context.Context) (map[string]string, bool) {
	checks := make(map[string]string, 3)
	ok := true

	if h.ready.Load() {
		checks["ready"] = healthStatusOK
	} else {
		checks["ready"] = healthStatusNotReady
		ok = false
	}

	if h.shuttingDown.Load() {
		checks["shutdown"] = healthStatusShuttingDown
		ok = false
	} else {
		checks["shutdown"] = healthStatusOK
	}

	if h.store != nil {
		ctx, cancel := context.WithTimeout(ctx, h.pingTimeout)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			checks["store"] = healthStatusUnavailable
			ok = false
		} else {
			checks["store"] = healthStatusOK
		}
	}

	return checks, ok
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
