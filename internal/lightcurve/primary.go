package lightcurve

import (
	"bytes"
	"context"
	"time"

	"github.com/gaiacurves/gaiacurves/internal/metrics"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// EpochPhotometrySource downloads DR2 epoch photometry as CSV. An empty
// result with a nil error means the source has none. gaia.DataLinkClient
// satisfies it.
type EpochPhotometrySource interface {
	EpochPhotometry(ctx context.Context, sourceID string) ([]byte, error)
}

// PrimaryProvider fetches Gaia DR2 epoch photometry.
type PrimaryProvider struct {
	source EpochPhotometrySource
	logger zerolog.Logger
}

// NewPrimaryProvider creates a DR2 provider over source.
func NewPrimaryProvider(source EpochPhotometrySource, logger zerolog.Logger) *PrimaryProvider {
	return &PrimaryProvider{source: source, logger: logger}
}

func (p *PrimaryProvider) Release() Release {
	return ReleasePrimary
}

// Fetch downloads the epoch photometry of id and writes it to
// PathFor(outputDir, id, ReleasePrimary). An empty download writes nothing.
func (p *PrimaryProvider) Fetch(ctx context.Context, id, outputDir string) (Retrieval, error) {
	empty := Retrieval{Release: ReleasePrimary, Status: Empty}
	if err := ValidateIdentifier(id); err != nil {
		return empty, err
	}

	ctx, span := tracer().Start(ctx, "lightcurve.FetchPrimary")
	defer span.End()
	span.SetAttributes(attribute.String("gaia.source_id", id))

	start := time.Now()
	defer func() {
		metrics.RetrievalLatency.WithLabelValues(ReleasePrimary.String()).Observe(time.Since(start).Seconds())
	}()

	body, err := p.source.EpochPhotometry(ctx, id)
	if err != nil {
		metrics.RetrievalRequestsTotal.WithLabelValues(ReleasePrimary.String(), "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "epoch photometry download failed")
		return empty, fault(StageRetrieve, ReleasePrimary, err)
	}
	if len(body) == 0 {
		metrics.RetrievalRequestsTotal.WithLabelValues(ReleasePrimary.String(), Empty.String()).Inc()
		p.logger.Info().Str("source_id", id).Msg("could not fetch light curve from DR2")
		return empty, nil
	}

	path := PathFor(outputDir, id, ReleasePrimary)
	n, err := writeBytes(path, body)
	if err != nil {
		metrics.RetrievalRequestsTotal.WithLabelValues(ReleasePrimary.String(), "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		return empty, fault(StagePersist, ReleasePrimary, err)
	}

	rows := 0
	if t, err := parseTable(bytes.NewReader(body)); err == nil {
		rows = len(t.Rows)
	} else {
		p.logger.Debug().Err(err).Str("path", path).Msg("could not count rows of DR2 light curve")
	}

	metrics.RetrievalRequestsTotal.WithLabelValues(ReleasePrimary.String(), Found.String()).Inc()
	metrics.RetrievalBytes.WithLabelValues(ReleasePrimary.String()).Observe(float64(n))
	span.SetAttributes(attribute.Int("lightcurve.rows", rows))
	p.logger.Info().Str("source_id", id).Str("path", path).Int("rows", rows).Msg("fetched DR2 light curve")

	return Retrieval{Release: ReleasePrimary, Status: Found, Path: path, Bytes: n, Rows: rows}, nil
}
