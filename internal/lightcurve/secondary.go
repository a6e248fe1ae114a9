package lightcurve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gaiacurves/gaiacurves/internal/gaia"
	"github.com/gaiacurves/gaiacurves/internal/metrics"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// AsyncQueryRunner runs ADQL as an asynchronous job. gaia.TAPClient
// satisfies it.
type AsyncQueryRunner interface {
	Submit(ctx context.Context, adql string) (*gaia.Job, error)
	Wait(ctx context.Context, job *gaia.Job) error
	Results(ctx context.Context, job *gaia.Job, w io.Writer) (int64, error)
}

// DR1Query selects the G-band time series of one source from the DR1
// variable-star table, with the magnitude error derived from the flux error.
func DR1Query(id string) string {
	return "SELECT solution_id, source_id, observation_time, g_flux, g_flux_error, g_magnitude, " +
		"2.5/log(10)*g_flux_error/g_flux AS g_magnitude_error, " +
		"rejected_by_variability_processing AS rejected " +
		"FROM gaiadr1.phot_variable_time_series_gfov " +
		"WHERE source_id=" + id
}

// SecondaryProvider fetches the Gaia DR1 G-band time series through an
// asynchronous TAP job.
type SecondaryProvider struct {
	runner AsyncQueryRunner
	logger zerolog.Logger
}

// NewSecondaryProvider creates a DR1 provider over runner.
func NewSecondaryProvider(runner AsyncQueryRunner, logger zerolog.Logger) *SecondaryProvider {
	return &SecondaryProvider{runner: runner, logger: logger}
}

func (p *SecondaryProvider) Release() Release {
	return ReleaseSecondary
}

// Fetch runs the DR1 query for id, writes the CSV result to
// PathFor(outputDir, id, ReleaseSecondary), and removes it again when the
// job returned no rows.
func (p *SecondaryProvider) Fetch(ctx context.Context, id, outputDir string) (Retrieval, error) {
	empty := Retrieval{Release: ReleaseSecondary, Status: Empty}
	if err := ValidateIdentifier(id); err != nil {
		return empty, err
	}

	ctx, span := tracer().Start(ctx, "lightcurve.FetchSecondary")
	defer span.End()
	span.SetAttributes(attribute.String("gaia.source_id", id))

	start := time.Now()
	defer func() {
		metrics.RetrievalLatency.WithLabelValues(ReleaseSecondary.String()).Observe(time.Since(start).Seconds())
	}()

	fail := func(stage Stage, err error) (Retrieval, error) {
		metrics.RetrievalRequestsTotal.WithLabelValues(ReleaseSecondary.String(), "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, string(stage)+" failed")
		return empty, fault(stage, ReleaseSecondary, err)
	}

	job, err := p.runner.Submit(ctx, DR1Query(id))
	if err != nil {
		return fail(StageRetrieve, err)
	}
	span.SetAttributes(attribute.String("tap.job", job.URL))

	err = p.runner.Wait(ctx, job)
	metrics.TAPJobsTotal.WithLabelValues(job.State.String()).Inc()
	metrics.TAPJobPolls.Observe(float64(job.Polls))
	if err != nil {
		return fail(StageRetrieve, err)
	}

	path := PathFor(outputDir, id, ReleaseSecondary)
	var downloadErr error
	n, err := writeFile(path, func(w io.Writer) (int64, error) {
		n, err := p.runner.Results(ctx, job, w)
		downloadErr = err
		return n, err
	})
	if err != nil {
		if downloadErr != nil {
			return fail(StageRetrieve, err)
		}
		return fail(StagePersist, err)
	}

	rows, err := countRows(path)
	if err != nil {
		_ = os.Remove(path)
		return fail(StagePersist, fmt.Errorf("job %s returned unreadable CSV: %w", job.URL, err))
	}
	if rows == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fail(StagePersist, err)
		}
		metrics.RetrievalRequestsTotal.WithLabelValues(ReleaseSecondary.String(), Empty.String()).Inc()
		p.logger.Info().Str("source_id", id).Msg("could not fetch light curve from DR1")
		return empty, nil
	}

	metrics.RetrievalRequestsTotal.WithLabelValues(ReleaseSecondary.String(), Found.String()).Inc()
	metrics.RetrievalBytes.WithLabelValues(ReleaseSecondary.String()).Observe(float64(n))
	span.SetAttributes(attribute.Int("lightcurve.rows", rows))
	p.logger.Info().
		Str("source_id", id).
		Str("path", path).
		Int("rows", rows).
		Int("polls", job.Polls).
		Msg("fetched DR1 light curve")

	return Retrieval{Release: ReleaseSecondary, Status: Found, Path: path, Bytes: n, Rows: rows}, nil
}
