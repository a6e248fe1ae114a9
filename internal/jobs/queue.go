package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/gaiacurves/gaiacurves/internal/lightcurve"
	"github.com/gaiacurves/gaiacurves/internal/metrics"
	"github.com/gaiacurves/gaiacurves/internal/storage/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
)

// Queue starts a ledger run and inserts the job that works it in one
// transaction, so a run exists exactly when its job does.
type Queue struct {
	client *river.Client[pgx.Tx]
	runs   *postgres.RunRepository
}

func NewQueue(client *river.Client[pgx.Tx], runs *postgres.RunRepository) *Queue {
	return &Queue{client: client, runs: runs}
}

// Enqueue queues names and returns the ID of the run recording them.
func (q *Queue) Enqueue(ctx context.Context, names []string, opts lightcurve.Options) (string, error) {
	if len(names) == 0 {
		return "", lightcurve.ErrNoStars
	}
	if opts.OutputDir == "" {
		opts.OutputDir = lightcurve.DefaultOutputDir
	}

	var runID string
	err := q.runs.WithTx(ctx, func(ctx context.Context, repo *postgres.RunRepository) error {
		id, err := repo.StartRun(ctx, lightcurve.Run{
			Stars:     names,
			OutputDir: opts.OutputDir,
			Ignore:    opts.Ignore,
			StartedAt: time.Now(),
		})
		if err != nil {
			return err
		}
		args := FetchCurvesArgs{
			RunID:       id,
			Stars:       names,
			OutputDir:   opts.OutputDir,
			Ignore:      opts.Ignore.String(),
			Concurrency: opts.Concurrency,
		}
		if _, err := q.client.InsertTx(ctx, repo.Tx(), args, nil); err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		runID = id
		return nil
	})
	if err != nil {
		return "", err
	}

	metrics.BatchJobsQueued.Inc()
	return runID, nil
}
