package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/gaiacurves/gaiacurves/internal/lightcurve"
	"github.com/gaiacurves/gaiacurves/internal/metrics"
	"github.com/riverqueue/river"
	"github.com/rs/zerolog"
)

// BatchFetcher runs a batch of star names.
type BatchFetcher interface {
	FetchCurves(ctx context.Context, names []string, opts lightcurve.Options) (lightcurve.BatchResult, error)
}

// FetchCurvesArgs is a queued batch. RunID is the ledger run the batch was
// started under when it was queued.
type FetchCurvesArgs struct {
	RunID       string   `json:"run_id"`
	Stars       []string `json:"stars"`
	OutputDir   string   `json:"output_dir"`
	Ignore      string   `json:"ignore"`
	Concurrency int      `json:"concurrency"`
}

func (FetchCurvesArgs) Kind() string { return JobKindFetchCurves }

func (FetchCurvesArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{Queue: QueueBatches, MaxAttempts: FetchCurvesMaxAttempts}
}

// FetchCurvesWorker runs a queued batch. Per-star outcomes and the run
// summary reach the ledger through the fetcher's recorder.
type FetchCurvesWorker struct {
	river.WorkerDefaults[FetchCurvesArgs]
	Fetcher BatchFetcher
	Logger  zerolog.Logger
}

func (FetchCurvesWorker) Kind() string { return JobKindFetchCurves }

func (w FetchCurvesWorker) Work(ctx context.Context, job *river.Job[FetchCurvesArgs]) (err error) {
	if w.Fetcher == nil {
		return fmt.Errorf("batch fetcher not configured")
	}
	if job == nil {
		return fmt.Errorf("fetch curves job missing")
	}
	args := job.Args
	if args.RunID == "" {
		return fmt.Errorf("run ID is required")
	}
	ignore, err := lightcurve.ParseIgnore(args.Ignore)
	if err != nil {
		return err
	}

	metrics.BatchJobsInFlight.Inc()
	defer func() {
		metrics.BatchJobsInFlight.Dec()
		result := "success"
		if err != nil {
			result = "error"
		}
		metrics.BatchJobsCompleted.WithLabelValues(result).Inc()
	}()

	w.Logger.Info().Str("run_id", args.RunID).Int("stars", len(args.Stars)).Msg("working queued batch")

	_, err = w.Fetcher.FetchCurves(ctx, args.Stars, lightcurve.Options{
		OutputDir:   args.OutputDir,
		Ignore:      ignore,
		Concurrency: args.Concurrency,
		RunID:       args.RunID,
	})
	if errors.Is(err, lightcurve.ErrNoStars) {
		return river.JobCancel(err)
	}
	return err
}

// NewWorkers registers the batch worker.
func NewWorkers(fetcher BatchFetcher, logger zerolog.Logger) *river.Workers {
	workers := river.NewWorkers()
	river.AddWorker[FetchCurvesArgs](workers, FetchCurvesWorker{Fetcher: fetcher, Logger: logger})
	return workers
}
