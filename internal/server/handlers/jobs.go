// Package handlers implements the HTTP endpoints of the jobforge API.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apperrors "github.com/arcfield/jobforge/internal/errors"
	"github.com/arcfield/jobforge/internal/server/middleware"
	"github.com/arcfield/jobforge/pkg/jobstore"
	"github.com/arcfield/jobforge/pkg/orchestrator"
	"github.com/arcfield/jobforge/pkg/submission"
)

// JobsHandler adapts the orchestrator's client API to HTTP. It is a thin
// framing layer: all semantics live in the orchestrator.
type JobsHandler struct {
	mgr     *orchestrator.Manager
	logger  *zap.Logger
	limiter *rate.Limiter // nil = unlimited
}

// NewJobsHandler creates the handler. submitRate caps submissions per
// second; zero disables throttling.
func NewJobsHandler(mgr *orchestrator.Manager, logger *zap.Logger, submitRate float64) *JobsHandler {
	h := &JobsHandler{mgr: mgr, logger: logger}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	if submitRate > 0 {
		h.limiter = rate.NewLimiter(rate.Limit(submitRate), 1)
	}
	return h
}

// listResponse wraps job listings.
type listResponse struct {
	Jobs []jobstore.Job `json:"jobs"`
}

// Submit handles POST /jobs. The body mirrors the submission manifest
// schema.
func (h *JobsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())

	if h.limiter != nil && !h.limiter.Allow() {
		writeRateLimited(w, reqID)
		return
	}

	var m submission.Manifest
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeBadRequest(w, reqID, fmt.Errorf("decode request body: %w", err))
		return
	}
	if err := m.Validate(); err != nil {
		writeBadRequest(w, reqID, err)
		return
	}

	job, err := h.mgr.Submit(m.SubmitRequest())
	if err != nil {
		apperrors.RespondWithError(w, reqID, err)
		return
	}
	respondJSON(w, http.StatusCreated, job)
}

// GetStatus handles GET /jobs/{jobID}.
func (h *JobsHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, err := h.mgr.GetStatus(jobID)
	if err != nil {
		apperrors.RespondWithError(w, middleware.GetRequestID(r.Context()), err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// GetResults handles GET /jobs/{jobID}/results.
func (h *JobsHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	payload, err := h.mgr.GetResults(jobID)
	if err != nil {
		apperrors.RespondWithError(w, middleware.GetRequestID(r.Context()), err)
		return
	}
	respondJSON(w, http.StatusOK, payload)
}

// List handles GET /jobs?status=&limit=.
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())

	filter, err := parseStatusFilter(r.URL.Query().Get("status"))
	if err != nil {
		writeBadRequest(w, reqID, err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeBadRequest(w, reqID, fmt.Errorf("invalid limit %q", raw))
			return
		}
	}

	jobs := h.mgr.List(filter, limit)
	if jobs == nil {
		jobs = []jobstore.Job{}
	}
	respondJSON(w, http.StatusOK, listResponse{Jobs: jobs})
}

// Terminate handles DELETE /jobs/{jobID}.
func (h *JobsHandler) Terminate(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, err := h.mgr.Terminate(jobID)
	if err != nil {
		apperrors.RespondWithError(w, middleware.GetRequestID(r.Context()), err)
		return
	}
	h.logger.Info("termination requested via API", zap.String("job_id", jobID))
	respondJSON(w, http.StatusOK, job)
}

func parseStatusFilter(raw string) (jobstore.Status, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	switch jobstore.Status(raw) {
	case "", jobstore.StatusPending, jobstore.StatusRunning,
		jobstore.StatusCompleted, jobstore.StatusFailed, jobstore.StatusTerminated:
		return jobstore.Status(raw), nil
	default:
		return "", fmt.Errorf("invalid status filter %q", raw)
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeBadRequest(w http.ResponseWriter, requestID string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(apperrors.HTTPErrorResponse{
		Error: apperrors.HTTPErrorBody{
			Code:      "INVALID_REQUEST",
			Message:   err.Error(),
			RequestID: requestID,
		},
	})
}

func writeRateLimited(w http.ResponseWriter, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(apperrors.HTTPErrorResponse{
		Error: apperrors.HTTPErrorBody{
			Code:      "RATE_LIMITED",
			Message:   "submission rate limit exceeded",
			RequestID: requestID,
		},
	})
}
