// Package handlers is the HTTP front end of the template service. It
// authenticates callers with a shared key and forwards request bodies to
// the dispatcher as job payloads.
package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"template-service/internal/common/logging"
	"template-service/internal/dispatcher"
	"template-service/internal/metrics"
)

// Submitter runs jobs. *dispatcher.Dispatcher implements it.
type Submitter interface {
	Submit(ctx context.Context, task string, payload map[string]any) (*dispatcher.Result, error)
	HasTask(name string) bool
}

type Handlers struct {
	jobs    Submitter
	key     string
	metrics *metrics.Metrics
	logger  logging.Logger
	started time.Time
}

func New(jobs Submitter, key string, m *metrics.Metrics, logger logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.Component("handlers")
	}
	return &Handlers{
		jobs:    jobs,
		key:     key,
		metrics: m,
		logger:  logger,
		started: time.Now(),
	}
}

// HandleWorker runs the task named in the path with the request body as
// payload.
//
//	POST /worker/{task}?key=SECRET
//
// 401 on a bad key, 400 on an unknown task or a body that is not a JSON
// object, 500 when the job was rejected, 200 with the job result
// otherwise. A render fault is still a 200 with {"error": message}.
func (h *Handlers) HandleWorker(w http.ResponseWriter, r *http.Request) {
	task := mux.Vars(r)["task"]
	code := h.handleWorker(w, r, task)
	h.metrics.RecordRequest(task, code)
}

func (h *Handlers) handleWorker(w http.ResponseWriter, r *http.Request, task string) int {
	if !h.authorized(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return http.StatusUnauthorized
	}
	if task == "" || !h.jobs.HasTask(task) {
		http.Error(w, "Unknown worker", http.StatusBadRequest)
		return http.StatusBadRequest
	}

	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return http.StatusRequestEntityTooLarge
		}
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return http.StatusBadRequest
	}

	res, err := h.jobs.Submit(r.Context(), task, payload)
	if err != nil {
		h.logger.WithContext(r.Context()).Error("Job failed", err, logging.String("task", task))
		http.Error(w, dispatcher.Message(err), http.StatusInternalServerError)
		return http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		h.logger.WithContext(r.Context()).Warn("Failed to write job result", logging.Err(err))
	}
	return http.StatusOK
}

func (h *Handlers) authorized(r *http.Request) bool {
	key := r.URL.Query().Get("key")
	if key == "" || h.key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(h.key)) == 1
}

// HealthCheck reports that the service is up.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}
