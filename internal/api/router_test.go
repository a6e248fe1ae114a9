package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gaiacurves/gaiacurves/internal/api/handlers"
	"github.com/gaiacurves/gaiacurves/internal/archivetest"
	"github.com/gaiacurves/gaiacurves/internal/config"
	"github.com/gaiacurves/gaiacurves/internal/gaia"
	"github.com/gaiacurves/gaiacurves/internal/lightcurve"
	"github.com/gaiacurves/gaiacurves/internal/simbad"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*httptest.Server
	archive   *archivetest.Archive
	outputDir string
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()
	a := archivetest.New(t)

	cfg := config.Defaults()
	cfg.Environment = "test"
	cfg.Fetch.OutputDir = t.TempDir()
	cfg.Fetch.Concurrency = 2
	cfg.Server.BatchesPerMinute = 0
	if mutate != nil {
		mutate(&cfg)
	}

	logger := zerolog.Nop()
	resolver := lightcurve.NewCrossIDResolver(simbad.NewClient(a.SimbadURL()), logger)
	primary := lightcurve.NewPrimaryProvider(gaia.NewDataLinkClient(a.DataLinkURL()), logger)
	secondary := lightcurve.NewSecondaryProvider(
		gaia.NewTAPClient(a.TAPURL(), gaia.WithPollInterval(time.Millisecond)), logger)

	router := NewRouter(Dependencies{
		Config:   cfg,
		Logger:   logger,
		Build:    NewBuildInfo("1.2.3", "abc", ""),
		Resolver: resolver,
		Fetcher:  lightcurve.NewCoordinator(resolver, primary, secondary, logger),
	})
	t.Cleanup(router.Close)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, archive: a, outputDir: cfg.Fetch.OutputDir}
}

func (s *testServer) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(s.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (s *testServer) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(s.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestRouter_Health(t *testing.T) {
	s := newTestServer(t, nil)

	resp := s.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp = s.get(t, "/readyz")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	health := decode[handlers.HealthCheck](t, resp)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "1.2.3", health.Version)
	assert.Equal(t, "skip", health.Checks["ledger"].Status)
	assert.Equal(t, "pass", health.Checks["output_dir"].Status)
}

func TestRouter_Version(t *testing.T) {
	s := newTestServer(t, nil)

	info := decode[BuildInfo](t, s.get(t, "/version"))
	assert.Equal(t, "1.2.3", info.Version)
	assert.Equal(t, "unknown", info.BuildDate)
}

func TestRouter_Resolve(t *testing.T) {
	s := newTestServer(t, nil)

	resp := s.get(t, "/api/v1/resolve?name=NQ+Dra")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[handlers.ResolveResponse](t, resp)
	assert.Equal(t, archivetest.PrimaryID, body.ID)
	assert.Equal(t, "NQ Dra", body.Name)
	assert.Equal(t, 5, body.CrossIDs)

	resp = s.get(t, "/api/v1/resolve?name=gibberish")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))

	resp = s.get(t, "/api/v1/resolve")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	s.archive.FailWith(archivetest.KindSimbad, http.StatusServiceUnavailable)
	resp = s.get(t, "/api/v1/resolve?name=NQ+Dra")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestRouter_FetchBatch(t *testing.T) {
	s := newTestServer(t, nil)

	resp := s.post(t, "/api/v1/curves", `{"stars":["NQ Dra","DR1 Only Star","gibberish"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[handlers.CurvesResponse](t, resp)

	assert.Equal(t, 2, body.Found)
	assert.Equal(t, 1, body.Missing)
	assert.True(t, body.Complete)
	require.Len(t, body.Results, 3)

	assert.Equal(t, "DR2", body.Results["NQ Dra"].Source)
	assert.Equal(t, archivetest.PrimaryID, body.Results["NQ Dra"].ID)
	assert.Equal(t, lightcurve.PathFor(s.outputDir, archivetest.PrimaryID, lightcurve.ReleasePrimary), body.Results["NQ Dra"].Pathname)

	assert.Equal(t, "DR1", body.Results["DR1 Only Star"].Source)

	assert.Equal(t, lightcurve.OutcomeView{ID: "N/A", Pathname: "N/A", Source: "N/A"}, body.Results["gibberish"])
}

func TestRouter_FetchBatchStopsAtBatchTimeout(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.BatchTimeout = 200 * time.Millisecond
	})
	s.archive.SetJobScript(0, "")

	resp := s.post(t, "/api/v1/curves", `{"stars":["NQ Dra","DR1 Only Star"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[handlers.CurvesResponse](t, resp)

	assert.False(t, body.Complete)
	assert.Equal(t, "DR2", body.Results["NQ Dra"].Source)
	assert.Equal(t, lightcurve.NotAvailable, body.Results["DR1 Only Star"].Source)
	assert.NotEmpty(t, body.Results["DR1 Only Star"].Error)
	assert.True(t, s.archive.Aborted(), "the stuck DR1 job is released")
}

func TestRouter_FetchBatchIgnore(t *testing.T) {
	s := newTestServer(t, nil)

	resp := s.post(t, "/api/v1/curves", `{"stars":["NQ Dra"],"ignore":"DR2"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[handlers.CurvesResponse](t, resp)
	assert.Equal(t, "N/A", body.Results["NQ Dra"].Source)
	assert.Equal(t, archivetest.PrimaryID, body.Results["NQ Dra"].ID)
	assert.Zero(t, s.archive.Count(archivetest.KindDataLink))
}

func TestRouter_FetchBatchRejectsBadRequests(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"empty body", ``, http.StatusBadRequest},
		{"not json", `stars`, http.StatusBadRequest},
		{"no stars", `{"stars":[]}`, http.StatusBadRequest},
		{"blank star", `{"stars":[""]}`, http.StatusBadRequest},
		{"unknown field", `{"stars":["a"],"extra":1}`, http.StatusBadRequest},
		{"bad ignore", `{"stars":["a"],"ignore":"DR3"}`, http.StatusBadRequest},
		{"two documents", `{"stars":["a"]}{"stars":["b"]}`, http.StatusBadRequest},
		{"too large", `{"stars":["` + strings.Repeat("a", 70<<10) + `"]}`, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.post(t, "/api/v1/curves", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))
		})
	}
	assert.Zero(t, s.archive.Count(archivetest.KindSimbad))
}

func TestRouter_FetchBatchRateLimited(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) { cfg.Server.BatchesPerMinute = 1 })

	resp := s.post(t, "/api/v1/curves", `{"stars":["gibberish"]}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.post(t, "/api/v1/curves", `{"stars":["gibberish"]}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))
}

func TestRouter_Download(t *testing.T) {
	s := newTestServer(t, nil)
	resp := s.post(t, "/api/v1/curves", `{"stars":["NQ Dra"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.get(t, "/api/v1/curves/"+archivetest.PrimaryID+"/dr2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv; charset=utf-8", resp.Header.Get("Content-Type"))
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, archivetest.DR2CSV(archivetest.PrimaryID, archivetest.PrimaryRows), string(data))

	resp = s.get(t, "/api/v1/curves/"+archivetest.PrimaryID+"/DR2?format=png")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	data, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))
}

func TestRouter_DownloadErrors(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"not stored", "/api/v1/curves/" + archivetest.PrimaryID + "/dr1", http.StatusNotFound},
		{"bad id", "/api/v1/curves/12ab/dr2", http.StatusBadRequest},
		{"bad release", "/api/v1/curves/" + archivetest.PrimaryID + "/dr3", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, s.get(t, tt.path).StatusCode)
		})
	}
}

func TestRouter_RunsDisabledWithoutLedger(t *testing.T) {
	s := newTestServer(t, nil)
	assert.Equal(t, http.StatusNotFound, s.get(t, "/api/v1/runs").StatusCode)
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	s := newTestServer(t, nil)
	resp := s.get(t, "/api/v1/curves")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestRouter_Metrics(t *testing.T) {
	s := newTestServer(t, nil)
	s.get(t, "/api/v1/resolve?name=NQ+Dra")

	resp := s.get(t, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `gaiacurves_http_requests_total{method="GET",path="/api/v1/resolve",status="200"}`)
}
