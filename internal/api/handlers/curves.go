package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gaiacurves/gaiacurves/internal/api/problem"
	"github.com/gaiacurves/gaiacurves/internal/lightcurve"
	"github.com/gaiacurves/gaiacurves/internal/plot"
	"github.com/go-playground/validator/v10"
)

// BatchFetcher runs a batch of star names.
type BatchFetcher interface {
	FetchCurves(ctx context.Context, names []string, opts lightcurve.Options) (lightcurve.BatchResult, error)
}

// BatchQueue hands a batch to background workers and returns the run it
// will be recorded under.
type BatchQueue interface {
	Enqueue(ctx context.Context, names []string, opts lightcurve.Options) (string, error)
}

// CurvesRequest is the body of POST /api/v1/curves.
type CurvesRequest struct {
	Stars  []string `json:"stars" validate:"required,min=1,max=500,dive,required,max=256"`
	Ignore string   `json:"ignore" validate:"omitempty,max=16"`
}

// CurvesResponse maps each requested name to its outcome. Complete is false
// when the batch ran out of time; the names it did not finish carry the
// deadline error.
type CurvesResponse struct {
	Results  map[string]lightcurve.OutcomeView `json:"results"`
	Found    int                               `json:"found"`
	Missing  int                               `json:"missing"`
	Complete bool                              `json:"complete"`
}

// QueuedResponse acknowledges a batch handed to the queue.
type QueuedResponse struct {
	RunID     string `json:"run_id"`
	Stars     int    `json:"stars"`
	StatusURL string `json:"status_url"`
}

// CurvesHandler runs batches and serves the stored light curves. With a
// Queue, batches are queued and polled through the run ledger; without one
// they run inside the request, bounded by Timeout.
type CurvesHandler struct {
	Fetcher     BatchFetcher
	Queue       BatchQueue
	OutputDir   string
	Concurrency int
	Timeout     time.Duration
	Env         string

	validate *validator.Validate
}

func NewCurvesHandler(fetcher BatchFetcher, queue BatchQueue, outputDir string, concurrency int, timeout time.Duration, env string) *CurvesHandler {
	if outputDir == "" {
		outputDir = lightcurve.DefaultOutputDir
	}
	return &CurvesHandler{
		Fetcher:     fetcher,
		Queue:       queue,
		OutputDir:   outputDir,
		Concurrency: concurrency,
		Timeout:     timeout,
		Env:         env,
		validate:    validator.New(),
	}
}

// Fetch handles POST /api/v1/curves. A queued batch answers 202 with the
// run to poll. A batch run in the request answers 200 with one entry per
// distinct name; per-name failures appear in that name's error field.
func (h *CurvesHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	var req CurvesRequest
	if err := decodeJSON(r, &req); err != nil {
		if errors.Is(err, errBodyTooLarge) {
			problem.Write(w, r, http.StatusRequestEntityTooLarge, problem.TypeRequestTooBig, "Request too large", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env,
			problem.WithErrors(fieldErrors(err)))
		return
	}

	ignore, err := lightcurve.ParseIgnore(req.Ignore)
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env,
			problem.WithErrors(map[string]any{"ignore": err.Error()}))
		return
	}

	opts := lightcurve.Options{
		OutputDir:   h.OutputDir,
		Ignore:      ignore,
		Concurrency: h.Concurrency,
	}

	if h.Queue != nil {
		runID, err := h.Queue.Enqueue(r.Context(), req.Stars, opts)
		if err != nil {
			problem.Write(w, r, http.StatusServiceUnavailable, problem.TypeUnavailable, "Batch could not be queued", err, h.Env)
			return
		}
		statusURL := "/api/v1/runs/" + runID
		w.Header().Set("Location", statusURL)
		writeJSON(w, http.StatusAccepted, QueuedResponse{RunID: runID, Stars: len(req.Stars), StatusURL: statusURL})
		return
	}

	ctx := r.Context()
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}

	result, err := h.Fetcher.FetchCurves(ctx, req.Stars, opts)
	complete := err == nil
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded) && result != nil && r.Context().Err() == nil:
		// Out of time, but the client is still there: report what finished.
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		problem.Write(w, r, http.StatusServiceUnavailable, problem.TypeUnavailable, "Batch did not complete", err, h.Env)
		return
	default:
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServer, "Batch did not complete", err, h.Env)
		return
	}

	resp := CurvesResponse{Results: result.Views(), Complete: complete}
	for _, o := range result {
		if o.Found() {
			resp.Found++
		} else {
			resp.Missing++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Download handles GET /api/v1/curves/{id}/{release}. The stored CSV is
// served as is; ?format=png|svg|pdf renders it as a plot instead.
func (h *CurvesHandler) Download(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if err := lightcurve.ValidateIdentifier(id); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid source id", err, h.Env)
		return
	}
	release, err := lightcurve.ParseRelease(r.PathValue("release"))
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid release", err, h.Env)
		return
	}

	path := lightcurve.PathFor(h.OutputDir, id, release)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Light curve not found", nil, h.Env,
			problem.WithDetail(fmt.Sprintf("no %s light curve stored for source %s", release, id)))
		return
	}
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServer, "Could not open light curve", err, h.Env)
		return
	}
	defer f.Close()

	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" || format == "csv" {
		info, err := f.Stat()
		modTime := time.Time{}
		if err == nil {
			modTime = info.ModTime()
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+"_data_"+release.Tag()+".csv"))
		http.ServeContent(w, r, path, modTime, f)
		return
	}

	table, err := lightcurve.ReadTable(path)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServer, "Could not read light curve", err, h.Env)
		return
	}

	var buf bytes.Buffer
	if err := plot.Render(&buf, table, format, plot.Options{Title: fmt.Sprintf("Gaia %s %s", release, id)}); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Could not render plot", err, h.Env)
		return
	}
	w.Header().Set("Content-Type", plotContentType(format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func plotContentType(format string) string {
	switch format {
	case "svg":
		return "image/svg+xml"
	case "pdf":
		return "application/pdf"
	default:
		return "image/png"
	}
}

func fieldErrors(err error) map[string]any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		out[strings.ToLower(fe.Field())] = fe.Tag()
	}
	return out
}
