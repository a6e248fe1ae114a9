package lightcurve

import (
	"context"
	"strings"
	"time"

	"github.com/gaiacurves/gaiacurves/internal/metrics"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// gaiaDR2Tag marks the cross-identifier carrying a DR2 source id, e.g.
// "Gaia DR2 2154100169676165120".
const gaiaDR2Tag = "Gaia DR2"

// CrossIdentifierSource lists every catalog identifier known for a name.
// simbad.Client satisfies it.
type CrossIdentifierSource interface {
	QueryObjectIDs(ctx context.Context, name string) ([]string, error)
}

// Resolver turns a star name into a Gaia DR2 source identifier.
type Resolver interface {
	Resolve(ctx context.Context, name string) (Resolution, error)
}

// CrossIDResolver resolves names by scanning their cross-identifiers for a
// Gaia DR2 entry. Every call queries the source afresh.
type CrossIDResolver struct {
	source CrossIdentifierSource
	logger zerolog.Logger
}

// NewCrossIDResolver creates a resolver over source.
func NewCrossIDResolver(source CrossIdentifierSource, logger zerolog.Logger) *CrossIDResolver {
	return &CrossIDResolver{source: source, logger: logger}
}

// Resolve looks name up. A name without any Gaia DR2 cross-identifier (or
// unknown to the source) is Unresolved with a nil error; an error means the
// source could not be queried.
func (r *CrossIDResolver) Resolve(ctx context.Context, name string) (Resolution, error) {
	if strings.TrimSpace(name) == "" {
		return Resolution{Name: name}, ErrEmptyName
	}

	ctx, span := tracer().Start(ctx, "lightcurve.Resolve")
	defer span.End()
	span.SetAttributes(attribute.String("star.name", name))

	start := time.Now()
	ids, err := r.source.QueryObjectIDs(ctx, name)
	metrics.ResolveLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ResolveRequestsTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "cross-identifier query failed")
		return Resolution{Name: name}, fault(StageResolve, ReleaseNone, err)
	}

	res := Resolution{Name: name, CrossIDs: len(ids)}
	if id, ok := GaiaDR2Identifier(ids); ok {
		res.Identifier = id
		res.Status = Resolved
	}

	metrics.ResolveRequestsTotal.WithLabelValues(res.Status.String()).Inc()
	span.SetAttributes(
		attribute.String("gaia.source_id", res.Identifier),
		attribute.Int("simbad.cross_ids", res.CrossIDs),
	)
	r.logger.Debug().
		Str("star", name).
		Str("source_id", res.Identifier).
		Int("cross_ids", res.CrossIDs).
		Str("status", res.Status.String()).
		Msg("resolved star name")
	return res, nil
}

// GaiaDR2Identifier scans ids in order and returns the source id of the last
// entry tagged "Gaia DR2". The id is the second whitespace-separated token
// after the "Gaia " prefix; tagged entries lacking it are skipped.
func GaiaDR2Identifier(ids []string) (string, bool) {
	var found string
	for _, id := range ids {
		if !strings.HasPrefix(id, gaiaDR2Tag) {
			continue
		}
		fields := strings.Fields(id[len("Gaia "):])
		if len(fields) < 2 {
			continue
		}
		found = fields[1]
	}
	return found, found != ""
}
