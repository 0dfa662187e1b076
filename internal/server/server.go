// Package server is the HTTP surface of the gateway. It exposes the
// aggregated market summary, single data points, health, and metrics.
// Handlers stay thin: resilience decisions live behind the aggregator.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tradewatch/market-gateway/pkg/aggregator"
	"github.com/tradewatch/market-gateway/pkg/breaker"
	"github.com/tradewatch/market-gateway/pkg/cache"
	"github.com/tradewatch/market-gateway/pkg/logging"
)

// Server bundles the collaborators the HTTP handlers need.
type Server struct {
	agg     *aggregator.Aggregator
	manager *cache.Manager
	breaker *breaker.CircuitBreaker
	logger  zerolog.Logger
}

// New creates a Server around the given collaborators.
func New(agg *aggregator.Aggregator, manager *cache.Manager, cb *breaker.CircuitBreaker) *Server {
	return &Server{
		agg:     agg,
		manager: manager,
		breaker: cb,
		logger:  logging.NewLogger("gateway"),
	}
}

// Router registers the gateway routes and middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(s.loggingMiddleware)

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/summary", s.handleSummary)
		r.Get("/points/{name}", s.handlePoint)
	})

	return r
}

// handleHealthz reports cache tier health and circuit states. A downed
// shared tier reads as "degraded" and still answers 200; only a broken
// memory tier makes the gateway unhealthy.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	health := s.manager.HealthCheck(r.Context())

	circuits := make(map[string]string)
	for service, state := range s.breaker.HealthCheck() {
		circuits[service] = state.String()
	}

	status := http.StatusOK
	if health.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]any{
		"status":   health.Status,
		"cache":    health.Components,
		"circuits": circuits,
	})
}

// handleSummary serves the aggregated market summary. Degraded points ride
// along inside the body (partial_failure, per-point status) rather than
// changing the HTTP status.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	result, err := s.agg.FetchSummary(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "AGGREGATION_ABORTED", "summary could not be assembled")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handlePoint serves one data point's raw document.
func (s *Server) handlePoint(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	value, err := s.agg.FetchPoint(r.Context(), name)
	switch {
	case err == nil:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(value)
	case errors.Is(err, aggregator.ErrUnknownPoint):
		writeError(w, http.StatusNotFound, "UNKNOWN_POINT", "no data point named "+name)
	default:
		writeError(w, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "no provider could serve "+name)
	}
}

type apiError struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, apiError{
		Status:  "error",
		Code:    code,
		Message: message,
	})
}
