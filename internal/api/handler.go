// Package api exposes the reporting boundary over HTTP and MCP. Both
// transports are thin: all semantics live in the inspector, and every
// response is derived from a single inspection call.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mkoval/storecheck/internal/compare"
	"github.com/mkoval/storecheck/internal/inspect"
	"github.com/mkoval/storecheck/internal/repair"
	"github.com/mkoval/storecheck/internal/store"
)

const (
	maxBatchBodySize = 1 << 20 // 1MB
	maxBatchIDs      = 500
)

// InspectService abstracts the inspector for the transport layer.
type InspectService interface {
	Inspect(ctx context.Context, id string) inspect.Result
	Diff(ctx context.Context, id string) compare.Report
	Batch(ctx context.Context, ids []string) []inspect.BatchResult
	Health(ctx context.Context) map[string]store.Health
}

// Deps holds what the HTTP handler needs.
type Deps struct {
	Inspector InspectService
	// Token guards every route except /health. Empty disables auth
	// (local-only deployments).
	Token string
	// Env is the environment this server was configured for. Requests
	// carrying ?env= must match it; env selection is configuration, not a
	// request-time switch.
	Env string
	// Planner is optional; nil hides the repair-plan route entirely.
	Planner *repair.Planner
	Logger  *slog.Logger
}

// NewHandler builds the chi router for the reporting boundary.
func NewHandler(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Get("/inspect/{id}", handleInspect(deps, logger))
		r.Get("/diff/{id}", handleDiff(deps, logger))
		r.Post("/batch", handleBatch(deps, logger))
		if deps.Planner != nil {
			r.Post("/repair/plan", handleRepairPlan(deps, logger))
		}
	})

	return r
}

func handleInspect(deps Deps, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !envMatches(w, r, deps.Env) {
			return
		}

		start := time.Now()
		res := deps.Inspector.Inspect(r.Context(), id)
		logger.Info("inspect request",
			"record_id", id, "status", res.Report.Status,
			"remote", r.RemoteAddr, "elapsed", time.Since(start))

		writeJSON(w, http.StatusOK, res)
	}
}

func handleDiff(deps Deps, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !envMatches(w, r, deps.Env) {
			return
		}

		rep := deps.Inspector.Diff(r.Context(), id)
		logger.Info("diff request", "record_id", id, "status", rep.Status, "remote", r.RemoteAddr)

		writeJSON(w, http.StatusOK, rep)
	}
}

type batchRequest struct {
	IDs []string `json:"ids"`
}

type batchResponse struct {
	Results []inspect.BatchResult `json:"results"`
}

func handleBatch(deps Deps, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !envMatches(w, r, deps.Env) {
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBatchBodySize)
		defer r.Body.Close()

		var req batchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if len(req.IDs) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "ids is required")
			return
		}
		if len(req.IDs) > maxBatchIDs {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "at most %d ids per batch", maxBatchIDs)
			return
		}

		start := time.Now()
		results := deps.Inspector.Batch(r.Context(), req.IDs)
		logger.Info("batch request", "ids", len(req.IDs), "remote", r.RemoteAddr, "elapsed", time.Since(start))

		writeJSON(w, http.StatusOK, batchResponse{Results: results})
	}
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		statuses := deps.Inspector.Health(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{"providers": statuses})
	}
}

type repairPlanRequest struct {
	ID string `json:"id"`
}

func handleRepairPlan(deps Deps, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBatchBodySize)
		defer r.Body.Close()

		var req repairPlanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.ID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "id is required")
			return
		}

		res := deps.Inspector.Inspect(r.Context(), req.ID)
		plan := deps.Planner.Plan(res)
		logger.Info("repair plan generated",
			"plan_id", plan.ID, "record_id", req.ID, "actions", len(plan.Actions), "remote", r.RemoteAddr)

		writeJSON(w, http.StatusOK, plan)
	}
}

// envMatches rejects requests that name a different environment than the one
// this server was configured for.
func envMatches(w http.ResponseWriter, r *http.Request, env string) bool {
	q := r.URL.Query().Get("env")
	if q != "" && q != env {
		httpError(w, http.StatusBadRequest, "invalid_request_error",
			"this server inspects env %q, not %q", env, q)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func httpError(w http.ResponseWriter, status int, errType, format string, args ...any) {
	writeJSON(w, status, errorResponse{Error: errorBody{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
	}})
}
