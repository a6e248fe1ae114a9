package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_URL", "")
	t.Setenv("GAIACURVES_OUTPUT_DIR", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultOutputDir, cfg.Fetch.OutputDir)
	assert.Equal(t, 1, cfg.Fetch.Concurrency)
	assert.Equal(t, 2*time.Second, cfg.Fetch.PollInterval)
	assert.Equal(t, 10*time.Minute, cfg.Fetch.JobTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Server.BatchTimeout)
	assert.Equal(t, 2, cfg.Server.BatchWorkers)
	assert.Equal(t, DefaultSimbadTAPURL, cfg.Archive.SimbadTAPURL)
	assert.Empty(t, cfg.Database.URL, "run ledger is opt-in")
	assert.False(t, cfg.Tracing.Enabled)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "gaiacurves.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
fetch:
  output_dir: from-file
  concurrency: 3
  poll_interval: 500ms
archive:
  user_agent: file-agent
`), 0o644))

	t.Setenv("GAIACURVES_OUTPUT_DIR", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Fetch.OutputDir)
	assert.Equal(t, 3, cfg.Fetch.Concurrency)
	assert.Equal(t, 500*time.Millisecond, cfg.Fetch.PollInterval)
	assert.Equal(t, "file-agent", cfg.Archive.UserAgent)
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GAIACURVES_JOB_TIMEOUT=90s\n"), 0o644))
	t.Setenv("GAIACURVES_JOB_TIMEOUT", "")
	os.Unsetenv("GAIACURVES_JOB_TIMEOUT")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.Fetch.JobTimeout)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "concurrency below one",
			env:     map[string]string{"GAIACURVES_CONCURRENCY": "0"},
			wantErr: "Concurrency",
		},
		{
			name:    "unknown environment",
			env:     map[string]string{"ENVIRONMENT": "moon"},
			wantErr: "Environment",
		},
		{
			name:    "malformed archive url",
			env:     map[string]string{"GAIACURVES_GAIA_TAP_URL": "not a url"},
			wantErr: "GaiaTAPURL",
		},
		{
			name:    "no batch workers",
			env:     map[string]string{"SERVER_BATCH_WORKERS": "0"},
			wantErr: "BatchWorkers",
		},
		{
			name:    "negative batch timeout",
			env:     map[string]string{"SERVER_BATCH_TIMEOUT": "-1s"},
			wantErr: "BatchTimeout",
		},
		{
			name:    "sample rate above one",
			env:     map[string]string{"TRACING_SAMPLE_RATE": "1.5"},
			wantErr: "SampleRate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := Load("does-not-exist.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestNewLoggerTo_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, LoggingConfig{Level: "warn", Format: "json"})

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())
}

func TestNewLoggerTo_BadLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, LoggingConfig{Level: "chatty"})
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
}
