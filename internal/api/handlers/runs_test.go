package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gaiacurves/gaiacurves/internal/storage/postgres"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunStore struct {
	runs      []postgres.RunRecord
	outcomes  map[string][]postgres.OutcomeRecord
	err       error
	lastLimit int
}

func (f *fakeRunStore) ListRuns(_ context.Context, limit int) ([]postgres.RunRecord, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.runs) {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

func (f *fakeRunStore) GetRun(_ context.Context, id string) (postgres.RunRecord, error) {
	if f.err != nil {
		return postgres.RunRecord{}, f.err
	}
	for _, r := range f.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return postgres.RunRecord{}, postgres.ErrRunNotFound
}

func (f *fakeRunStore) RunOutcomes(_ context.Context, id string) ([]postgres.OutcomeRecord, error) {
	return f.outcomes[id], nil
}

func serveRuns(h *RunsHandler, target string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/runs", h.List)
	mux.HandleFunc("GET /api/v1/runs/{id}", h.Get)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestRunsHandler_List(t *testing.T) {
	store := &fakeRunStore{runs: []postgres.RunRecord{
		{ID: ulid.Make().String(), Stars: []string{"NQ Dra"}, StartedAt: time.Now()},
		{ID: ulid.Make().String(), Stars: []string{"gibberish"}, StartedAt: time.Now()},
	}}
	h := NewRunsHandler(store, "test")

	rec := serveRuns(h, "/api/v1/runs?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, store.lastLimit)

	var body struct {
		Runs []postgres.RunRecord `json:"runs"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Runs, 1)
	assert.Equal(t, []string{"NQ Dra"}, body.Runs[0].Stars)

	serveRuns(h, "/api/v1/runs")
	assert.Equal(t, postgres.DefaultListLimit, store.lastLimit)
}

func TestRunsHandler_ListEmptyIsArray(t *testing.T) {
	rec := serveRuns(NewRunsHandler(&fakeRunStore{}, "test"), "/api/v1/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"runs":[]}`, rec.Body.String())
}

func TestRunsHandler_ListErrors(t *testing.T) {
	for _, limit := range []string{"0", "-1", "abc", "201"} {
		rec := serveRuns(NewRunsHandler(&fakeRunStore{}, "test"), "/api/v1/runs?limit="+limit)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "limit %s", limit)
	}

	rec := serveRuns(NewRunsHandler(&fakeRunStore{err: errors.New("db down")}, "test"), "/api/v1/runs")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRunsHandler_Get(t *testing.T) {
	id := ulid.Make().String()
	store := &fakeRunStore{
		runs: []postgres.RunRecord{{ID: id, Stars: []string{"NQ Dra"}, Found: 1}},
		outcomes: map[string][]postgres.OutcomeRecord{
			id: {{Name: "NQ Dra", Identifier: "2154100169676165120", Source: "DR2", Path: "data/2154100169676165120_data_dr2.csv"}},
		},
	}
	h := NewRunsHandler(store, "test")

	rec := serveRuns(h, "/api/v1/runs/"+id)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, id, body["id"])
	assert.Equal(t, float64(1), body["found"])
	outcomes, ok := body["outcomes"].([]any)
	require.True(t, ok)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "DR2", outcomes[0].(map[string]any)["source"])
}

func TestRunsHandler_GetErrors(t *testing.T) {
	h := NewRunsHandler(&fakeRunStore{}, "test")

	assert.Equal(t, http.StatusBadRequest, serveRuns(h, "/api/v1/runs/not-a-ulid").Code)
	assert.Equal(t, http.StatusNotFound, serveRuns(h, "/api/v1/runs/"+ulid.Make().String()).Code)
}
