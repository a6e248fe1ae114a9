package lightcurve

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gaiacurves/gaiacurves/internal/metrics"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// DefaultOutputDir is used when a batch names no output directory.
const DefaultOutputDir = "data"

// Options control a batch.
type Options struct {
	OutputDir string
	Ignore    Ignore
	// Concurrency is the number of names processed at once; values below
	// one mean one.
	Concurrency int
	// RunID names a run already started on the recorder. Outcomes and the
	// summary go to that run and no new run is started.
	RunID string
}

// Run describes a batch as handed to a RunRecorder.
type Run struct {
	Stars     []string
	OutputDir string
	Ignore    Ignore
	StartedAt time.Time
}

// RunSummary closes a recorded batch.
type RunSummary struct {
	Found      int
	Missing    int
	Faults     int
	FinishedAt time.Time
	Err        error
}

// RunRecorder persists batches and their per-name outcomes. Implementations
// must be safe for concurrent RecordOutcome calls.
type RunRecorder interface {
	StartRun(ctx context.Context, run Run) (string, error)
	RecordOutcome(ctx context.Context, runID, name string, outcome Outcome) error
	FinishRun(ctx context.Context, runID string, summary RunSummary) error
}

// Coordinator runs resolve-then-retrieve over a batch of star names.
type Coordinator struct {
	resolver  Resolver
	primary   Provider
	secondary Provider
	recorder  RunRecorder
	logger    zerolog.Logger
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithRecorder records every batch to r.
func WithRecorder(r RunRecorder) CoordinatorOption {
	return func(c *Coordinator) {
		c.recorder = r
	}
}

// NewCoordinator creates a coordinator. Either provider may be nil, which
// has the same effect as always ignoring that release.
func NewCoordinator(resolver Resolver, primary, secondary Provider, logger zerolog.Logger, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		resolver:  resolver,
		primary:   primary,
		secondary: secondary,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchCurves resolves and retrieves every name and returns one outcome per
// distinct name; when a name repeats, its last occurrence wins. A failure
// for one name, including a panic, is recorded in that name's Outcome.Err
// and does not affect the others.
//
// The returned error is ErrNoStars for an empty batch, or the context error
// when ctx ended before the batch finished. In the latter case the result
// still holds every name, those never attempted carrying the context error.
func (c *Coordinator) FetchCurves(ctx context.Context, names []string, opts Options) (BatchResult, error) {
	if len(names) == 0 {
		return nil, ErrNoStars
	}
	if opts.OutputDir == "" {
		opts.OutputDir = DefaultOutputDir
	}
	limit := opts.Concurrency
	if limit < 1 {
		limit = 1
	}

	ctx, span := tracer().Start(ctx, "lightcurve.FetchCurves")
	defer span.End()
	span.SetAttributes(
		attribute.Int("batch.size", len(names)),
		attribute.Int("batch.concurrency", limit),
		attribute.String("batch.ignore", opts.Ignore.String()),
	)

	start := time.Now()
	runID := opts.RunID
	if runID == "" {
		runID = c.startRun(ctx, names, opts, start)
	}

	outcomes := make([]Outcome, len(names))
	var (
		mu      sync.Mutex
		summary RunSummary
	)

	var g errgroup.Group
	g.SetLimit(limit)
	for i, name := range names {
		g.Go(func() error {
			o := c.fetchOne(ctx, name, opts)
			outcomes[i] = o

			mu.Lock()
			if o.Found() {
				summary.Found++
			} else {
				summary.Missing++
			}
			if o.Err != nil {
				summary.Faults++
			}
			mu.Unlock()

			metrics.BatchOutcomesTotal.WithLabelValues(o.Source.String()).Inc()
			c.recordOutcome(ctx, runID, name, o)
			return nil
		})
	}
	_ = g.Wait()

	result := make(BatchResult, len(names))
	for i, name := range names {
		result[name] = outcomes[i]
	}

	summary.Err = ctx.Err()
	summary.FinishedAt = time.Now()
	metrics.BatchDuration.Observe(summary.FinishedAt.Sub(start).Seconds())
	c.finishRun(ctx, runID, summary)

	span.SetAttributes(
		attribute.Int("batch.found", summary.Found),
		attribute.Int("batch.faults", summary.Faults),
	)
	c.logger.Info().
		Int("stars", len(names)).
		Int("found", summary.Found).
		Int("missing", summary.Missing).
		Int("faults", summary.Faults).
		Dur("duration", summary.FinishedAt.Sub(start)).
		Msg("batch complete")

	return result, summary.Err
}

// fetchOne never panics and never returns an error; whatever goes wrong
// ends up in the outcome.
func (c *Coordinator) fetchOne(ctx context.Context, name string, opts Options) (o Outcome) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Str("star", name).Interface("panic", r).Msg("panic while fetching light curve")
			o = Outcome{Identifier: o.Identifier, Err: fmt.Errorf("panic while fetching %q: %v", name, r)}
		}
	}()

	if err := ctx.Err(); err != nil {
		return Outcome{Err: err}
	}

	ctx, span := tracer().Start(ctx, "lightcurve.FetchStar")
	defer span.End()
	span.SetAttributes(attribute.String("star.name", name))

	res, err := c.resolver.Resolve(ctx, name)
	if err != nil {
		c.logger.Warn().Err(err).Str("star", name).Msg("could not resolve star name")
		return Outcome{Err: err}
	}
	if res.Status != Resolved {
		c.logger.Info().Str("star", name).Msg("gaia id not found for star")
		return Outcome{}
	}
	o.Identifier = res.Identifier

	var faults []error
	for _, p := range []Provider{c.primary, c.secondary} {
		if p == nil || opts.Ignore.Skips(p.Release()) {
			continue
		}
		r, err := p.Fetch(ctx, res.Identifier, opts.OutputDir)
		if err != nil {
			c.logger.Warn().Err(err).
				Str("star", name).
				Str("source_id", res.Identifier).
				Str("release", p.Release().String()).
				Msg("light curve retrieval failed")
			faults = append(faults, err)
			continue
		}
		if r.Status == Found {
			o.Path = r.Path
			o.Source = r.Release
			break
		}
	}
	o.Err = errors.Join(faults...)
	span.SetAttributes(attribute.String("lightcurve.source", o.Source.String()))
	return o
}

func (c *Coordinator) startRun(ctx context.Context, names []string, opts Options, start time.Time) string {
	if c.recorder == nil {
		return ""
	}
	id, err := c.recorder.StartRun(context.WithoutCancel(ctx), Run{
		Stars:     names,
		OutputDir: opts.OutputDir,
		Ignore:    opts.Ignore,
		StartedAt: start,
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("could not record batch run")
		return ""
	}
	return id
}

func (c *Coordinator) recordOutcome(ctx context.Context, runID, name string, o Outcome) {
	if c.recorder == nil || runID == "" {
		return
	}
	if err := c.recorder.RecordOutcome(context.WithoutCancel(ctx), runID, name, o); err != nil {
		c.logger.Warn().Err(err).Str("run_id", runID).Str("star", name).Msg("could not record outcome")
	}
}

func (c *Coordinator) finishRun(ctx context.Context, runID string, summary RunSummary) {
	if c.recorder == nil || runID == "" {
		return
	}
	if err := c.recorder.FinishRun(context.WithoutCancel(ctx), runID, summary); err != nil {
		c.logger.Warn().Err(err).Str("run_id", runID).Msg("could not record batch completion")
	}
}
