// Package jobs works queued batches on River, backed by the run ledger's
// PostgreSQL database.
package jobs

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog"
)

const (
	JobKindFetchCurves = "fetch_curves"

	// QueueBatches holds fetch_curves jobs. Its worker count bounds how many
	// batches hit the archives at once.
	QueueBatches = "batches"

	// FetchCurvesMaxAttempts is one: outcomes are recorded while a batch
	// runs, and a second attempt would rewrite a run that clients may
	// already be reading.
	FetchCurvesMaxAttempts = 1
)

// NewClientConfig builds the River configuration for the batch workers.
// Jobs have no River timeout; each archive call carries its own.
func NewClientConfig(workers *river.Workers, maxWorkers int, logger zerolog.Logger) *river.Config {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &river.Config{
		Workers:     workers,
		MaxAttempts: FetchCurvesMaxAttempts,
		JobTimeout:  -1,
		Queues: map[string]river.QueueConfig{
			QueueBatches: {MaxWorkers: maxWorkers},
		},
		ErrorHandler: NewLoggingErrorHandler(logger),
	}
}

// NewClient creates a River client using pgx v5.
func NewClient(pool *pgxpool.Pool, workers *river.Workers, maxWorkers int, logger zerolog.Logger) (*river.Client[pgx.Tx], error) {
	return river.NewClient(riverpgxv5.New(pool), NewClientConfig(workers, maxWorkers, logger))
}

// Migrate brings River's own tables up to date.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("init river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, &rivermigrate.MigrateOpts{}); err != nil {
		return fmt.Errorf("migrate river: %w", err)
	}
	return nil
}

// SchemaReady reports whether River's job table exists in the current
// schema.
func SchemaReady(ctx context.Context, pool *pgxpool.Pool) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = current_schema()
			AND table_name = 'river_job'
		)
	`
	var ready bool
	if err := pool.QueryRow(ctx, query).Scan(&ready); err != nil {
		return false, fmt.Errorf("check river schema: %w", err)
	}
	return ready, nil
}

// LoggingErrorHandler logs failed and panicking jobs. The returned results
// are nil so River applies its normal retry rules.
type LoggingErrorHandler struct {
	logger zerolog.Logger
}

func NewLoggingErrorHandler(logger zerolog.Logger) *LoggingErrorHandler {
	return &LoggingErrorHandler{logger: logger}
}

func (h *LoggingErrorHandler) HandleError(ctx context.Context, job *rivertype.JobRow, err error) *river.ErrorHandlerResult {
	h.logger.Error().Err(err).
		Int64("job_id", job.ID).
		Str("kind", job.Kind).
		Int("attempt", job.Attempt).
		Msg("job failed")
	return nil
}

func (h *LoggingErrorHandler) HandlePanic(ctx context.Context, job *rivertype.JobRow, panicVal any, trace string) *river.ErrorHandlerResult {
	h.logger.Error().
		Int64("job_id", job.ID).
		Str("kind", job.Kind).
		Int("attempt", job.Attempt).
		Interface("panic", panicVal).
		Str("trace", trace).
		Msg("job panicked")
	return nil
}
