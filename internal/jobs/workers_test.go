package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/gaiacurves/gaiacurves/internal/lightcurve"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	names []string
	opts  lightcurve.Options
	err   error
}

func (f *fakeFetcher) FetchCurves(_ context.Context, names []string, opts lightcurve.Options) (lightcurve.BatchResult, error) {
	f.names = names
	f.opts = opts
	return lightcurve.BatchResult{}, f.err
}

func newJob(args FetchCurvesArgs) *river.Job[FetchCurvesArgs] {
	return &river.Job[FetchCurvesArgs]{
		JobRow: &rivertype.JobRow{ID: 1, Kind: JobKindFetchCurves, Attempt: 1},
		Args:   args,
	}
}

func TestFetchCurvesArgs_KindAndInsertOpts(t *testing.T) {
	args := FetchCurvesArgs{RunID: "run-1"}
	assert.Equal(t, JobKindFetchCurves, args.Kind())
	assert.Equal(t, JobKindFetchCurves, FetchCurvesWorker{}.Kind())

	opts := args.InsertOpts()
	assert.Equal(t, QueueBatches, opts.Queue)
	assert.Equal(t, FetchCurvesMaxAttempts, opts.MaxAttempts)
}

func TestFetchCurvesWorker_RunsBatchUnderQueuedRun(t *testing.T) {
	fetcher := &fakeFetcher{}
	w := FetchCurvesWorker{Fetcher: fetcher, Logger: zerolog.Nop()}

	err := w.Work(context.Background(), newJob(FetchCurvesArgs{
		RunID:       "run-1",
		Stars:       []string{"NQ Dra", "gibberish"},
		OutputDir:   "out",
		Ignore:      "DR1",
		Concurrency: 2,
	}))
	require.NoError(t, err)

	assert.Equal(t, []string{"NQ Dra", "gibberish"}, fetcher.names)
	assert.Equal(t, lightcurve.Options{
		OutputDir:   "out",
		Ignore:      lightcurve.IgnoreSecondary,
		Concurrency: 2,
		RunID:       "run-1",
	}, fetcher.opts)
}

func TestFetchCurvesWorker_Errors(t *testing.T) {
	tests := []struct {
		name    string
		worker  FetchCurvesWorker
		job     *river.Job[FetchCurvesArgs]
		wantErr error
	}{
		{
			name:   "no fetcher",
			worker: FetchCurvesWorker{},
			job:    newJob(FetchCurvesArgs{RunID: "run-1", Stars: []string{"A"}}),
		},
		{
			name:   "nil job",
			worker: FetchCurvesWorker{Fetcher: &fakeFetcher{}},
		},
		{
			name:   "missing run id",
			worker: FetchCurvesWorker{Fetcher: &fakeFetcher{}},
			job:    newJob(FetchCurvesArgs{Stars: []string{"A"}}),
		},
		{
			name:   "bad ignore",
			worker: FetchCurvesWorker{Fetcher: &fakeFetcher{}},
			job:    newJob(FetchCurvesArgs{RunID: "run-1", Stars: []string{"A"}, Ignore: "DR3"}),
		},
		{
			name:    "interrupted batch",
			worker:  FetchCurvesWorker{Fetcher: &fakeFetcher{err: context.Canceled}},
			job:     newJob(FetchCurvesArgs{RunID: "run-1", Stars: []string{"A"}}),
			wantErr: context.Canceled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.worker.Work(context.Background(), tt.job)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
			}
		})
	}
}

func TestNewClientConfig(t *testing.T) {
	workers := NewWorkers(&fakeFetcher{}, zerolog.Nop())
	cfg := NewClientConfig(workers, 0, zerolog.Nop())

	assert.Same(t, workers, cfg.Workers)
	assert.Equal(t, FetchCurvesMaxAttempts, cfg.MaxAttempts)
	assert.Equal(t, 1, cfg.Queues[QueueBatches].MaxWorkers)
	assert.NotNil(t, cfg.ErrorHandler)

	cfg = NewClientConfig(workers, 4, zerolog.Nop())
	assert.Equal(t, 4, cfg.Queues[QueueBatches].MaxWorkers)
}

func TestLoggingErrorHandler(t *testing.T) {
	h := NewLoggingErrorHandler(zerolog.Nop())
	row := &rivertype.JobRow{ID: 7, Kind: JobKindFetchCurves, Attempt: 1}

	assert.Nil(t, h.HandleError(context.Background(), row, errors.New("boom")))
	assert.Nil(t, h.HandlePanic(context.Background(), row, "exploded", "trace"))
}
