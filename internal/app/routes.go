package app

import (
	"net/http"

	"github.com/gorilla/mux"

	"template-service/internal/common/logging"
	"template-service/internal/common/ratelimit"
	"template-service/internal/handlers"
	"template-service/internal/metrics"
	"template-service/internal/middleware"
)

// SetupRoutes configures all HTTP routes for the application
func SetupRoutes(router *mux.Router, h *handlers.Handlers, m *metrics.Metrics, rateLimiter *ratelimit.Limiter, maxBody int64) {
	logger := logging.Component("http")
	router.Use(middleware.RequestID)
	router.Use(middleware.Logging(logger))
	router.Use(middleware.Recover(logger))

	// Health check and metrics
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)

	// Job endpoint, rate limited per client
	jobs := router.PathPrefix("/worker").Subrouter()
	if rateLimiter != nil {
		jobs.Use(ratelimit.HTTPMiddleware(rateLimiter, ratelimit.IPKey))
	}
	jobs.Use(middleware.BodyLimit(maxBody))
	jobs.HandleFunc("/{task}", h.HandleWorker).Methods(http.MethodPost)
	// no task name: answered as an unknown worker
	jobs.HandleFunc("", h.HandleWorker).Methods(http.MethodPost)
	jobs.HandleFunc("/", h.HandleWorker).Methods(http.MethodPost)
}
