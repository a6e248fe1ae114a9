package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gaiacurves/gaiacurves/internal/api/problem"
	"github.com/gaiacurves/gaiacurves/internal/storage/postgres"
	"github.com/oklog/ulid/v2"
)

// MaxRunsLimit caps ?limit on the run list.
const MaxRunsLimit = 200

// RunStore reads the run ledger.
type RunStore interface {
	ListRuns(ctx context.Context, limit int) ([]postgres.RunRecord, error)
	GetRun(ctx context.Context, runID string) (postgres.RunRecord, error)
	RunOutcomes(ctx context.Context, runID string) ([]postgres.OutcomeRecord, error)
}

// RunDetail is a run with its per-name outcomes.
type RunDetail struct {
	postgres.RunRecord
	Outcomes []postgres.OutcomeRecord `json:"outcomes"`
}

type RunsHandler struct {
	Store RunStore
	Env   string
}

func NewRunsHandler(store RunStore, env string) *RunsHandler {
	return &RunsHandler{Store: store, Env: env}
}

// List handles GET /api/v1/runs?limit=N, newest first.
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := postgres.DefaultListLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > MaxRunsLimit {
			problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request",
				errors.New("limit must be an integer between 1 and 200"), h.Env)
			return
		}
		limit = parsed
	}

	runs, err := h.Store.ListRuns(r.Context(), limit)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServer, "Could not list runs", err, h.Env)
		return
	}
	if runs == nil {
		runs = []postgres.RunRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// Get handles GET /api/v1/runs/{id}.
func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if _, err := ulid.ParseStrict(id); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid run id", err, h.Env)
		return
	}

	run, err := h.Store.GetRun(r.Context(), id)
	if errors.Is(err, postgres.ErrRunNotFound) {
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Run not found", err, h.Env)
		return
	}
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServer, "Could not load run", err, h.Env)
		return
	}

	outcomes, err := h.Store.RunOutcomes(r.Context(), id)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServer, "Could not load run outcomes", err, h.Env)
		return
	}
	if outcomes == nil {
		outcomes = []postgres.OutcomeRecord{}
	}
	writeJSON(w, http.StatusOK, RunDetail{RunRecord: run, Outcomes: outcomes})
}
