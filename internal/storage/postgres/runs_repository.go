package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gaiacurves/gaiacurves/internal/lightcurve"
	"github.com/gaiacurves/gaiacurves/internal/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
)

// ErrRunNotFound is returned when a run id is not in the ledger.
var ErrRunNotFound = errors.New("run not found")

// DefaultListLimit caps ListRuns when no limit is given.
const DefaultListLimit = 20

var _ lightcurve.RunRecorder = (*RunRepository)(nil)

// RunRecord is a stored batch.
type RunRecord struct {
	ID         string     `json:"id" yaml:"id"`
	Stars      []string   `json:"stars" yaml:"stars"`
	OutputDir  string     `json:"output_dir" yaml:"output_dir"`
	Ignore     string     `json:"ignore" yaml:"ignore"`
	StartedAt  time.Time  `json:"started_at" yaml:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	Found      int        `json:"found" yaml:"found"`
	Missing    int        `json:"missing" yaml:"missing"`
	Faults     int        `json:"faults" yaml:"faults"`
	Error      string     `json:"error,omitempty" yaml:"error,omitempty"`
}

// OutcomeRecord is the stored outcome of one name in a run.
type OutcomeRecord struct {
	Name       string    `json:"name" yaml:"name"`
	Identifier string    `json:"ID" yaml:"ID"`
	Source     string    `json:"source" yaml:"source"`
	Path       string    `json:"pathname" yaml:"pathname"`
	Error      string    `json:"error,omitempty" yaml:"error,omitempty"`
	RecordedAt time.Time `json:"recorded_at" yaml:"recorded_at"`
}

// StartRun inserts a new run and returns its ULID.
func (r *RunRepository) StartRun(ctx context.Context, run lightcurve.Run) (id string, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("start_run", start, err) }()

	stars := run.Stars
	if stars == nil {
		stars = []string{}
	}
	startedAt := run.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	id = ulid.Make().String()
	const query = `
		INSERT INTO runs (id, stars, output_dir, ignore, started_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err = r.queryer().Exec(ctx, query, id, stars, run.OutputDir, run.Ignore.String(), startedAt.UTC()); err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// RecordOutcome stores the outcome for name, replacing an earlier outcome
// for the same name in the run.
func (r *RunRepository) RecordOutcome(ctx context.Context, runID, name string, outcome lightcurve.Outcome) (err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("record_outcome", start, err) }()

	var errText string
	if outcome.Err != nil {
		errText = outcome.Err.Error()
	}

	const query = `
		INSERT INTO run_outcomes (run_id, name, identifier, source, path, error)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id, name)
		DO UPDATE SET
			identifier = EXCLUDED.identifier,
			source = EXCLUDED.source,
			path = EXCLUDED.path,
			error = EXCLUDED.error,
			recorded_at = now()
	`
	_, err = r.queryer().Exec(ctx, query,
		runID,
		name,
		nullable(outcome.Identifier),
		outcome.Source.String(),
		nullable(outcome.Path),
		nullable(errText),
	)
	if err != nil {
		return fmt.Errorf("record outcome for %q: %w", name, err)
	}
	return nil
}

// FinishRun stores the closing summary of a run.
func (r *RunRepository) FinishRun(ctx context.Context, runID string, summary lightcurve.RunSummary) (err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("finish_run", start, err) }()

	finishedAt := summary.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = time.Now()
	}
	var errText string
	if summary.Err != nil {
		errText = summary.Err.Error()
	}

	const query = `
		UPDATE runs
		   SET finished_at = $2, found = $3, missing = $4, faults = $5, error = $6
		 WHERE id = $1
	`
	tag, err := r.queryer().Exec(ctx, query, runID, finishedAt.UTC(), summary.Found, summary.Missing, summary.Faults, nullable(errText))
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finish run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (r *RunRepository) ListRuns(ctx context.Context, limit int) (runs []RunRecord, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("list_runs", start, err) }()

	if limit <= 0 {
		limit = DefaultListLimit
	}

	const query = `
		SELECT id, stars, output_dir, ignore, started_at, finished_at,
		       found, missing, faults, error
		FROM runs
		ORDER BY started_at DESC, id DESC
		LIMIT $1
	`
	rows, err := r.queryer().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		run, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan run: %w", scanErr)
		}
		runs = append(runs, run)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun returns one run.
func (r *RunRepository) GetRun(ctx context.Context, runID string) (run RunRecord, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("get_run", start, err) }()

	const query = `
		SELECT id, stars, output_dir, ignore, started_at, finished_at,
		       found, missing, faults, error
		FROM runs
		WHERE id = $1
	`
	run, err = scanRun(r.queryer().QueryRow(ctx, query, runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// RunOutcomes returns the outcomes recorded for a run, ordered by name.
func (r *RunRepository) RunOutcomes(ctx context.Context, runID string) (outcomes []OutcomeRecord, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("run_outcomes", start, err) }()

	const query = `
		SELECT name, identifier, source, path, error, recorded_at
		FROM run_outcomes
		WHERE run_id = $1
		ORDER BY name COLLATE "C"
	`
	rows, err := r.queryer().Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			o                        OutcomeRecord
			identifier, path, errMsg *string
		)
		if err = rows.Scan(&o.Name, &identifier, &o.Source, &path, &errMsg, &o.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Identifier = orNotAvailable(identifier)
		o.Path = orNotAvailable(path)
		o.Error = deref(errMsg)
		outcomes = append(outcomes, o)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return outcomes, nil
}

func scanRun(row pgx.Row) (RunRecord, error) {
	var (
		run    RunRecord
		errMsg *string
	)
	err := row.Scan(
		&run.ID,
		&run.Stars,
		&run.OutputDir,
		&run.Ignore,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Found,
		&run.Missing,
		&run.Faults,
		&errMsg,
	)
	if err != nil {
		return RunRecord{}, err
	}
	run.Error = deref(errMsg)
	return run, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func orNotAvailable(s *string) string {
	if s == nil || *s == "" {
		return lightcurve.NotAvailable
	}
	return *s
}
