package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthChecker(nil, t.TempDir(), "dev", "unknown").Healthz().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestReadyz_OutputDir(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	tests := []struct {
		name       string
		outputDir  string
		wantCode   int
		wantStatus string
		wantCheck  string
	}{
		{"existing directory", dir, http.StatusOK, "healthy", "pass"},
		{"missing directory", filepath.Join(dir, "later"), http.StatusOK, "degraded", "warn"},
		{"path is a file", file, http.StatusServiceUnavailable, "unhealthy", "fail"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHealthChecker(nil, tt.outputDir, "1.0.0", "abc").Readyz().
				ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			require.Equal(t, tt.wantCode, rec.Code)
			var body HealthCheck
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.wantStatus, body.Status)
			assert.Equal(t, tt.wantCheck, body.Checks["output_dir"].Status)
			assert.Equal(t, "skip", body.Checks["ledger"].Status)
			assert.Equal(t, "skip", body.Checks["migrations"].Status)
			assert.Equal(t, "1.0.0", body.Version)
		})
	}
}
