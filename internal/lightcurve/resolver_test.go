package lightcurve

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gaiacurves/gaiacurves/internal/archivetest"
	"github.com/gaiacurves/gaiacurves/internal/metrics"
	"github.com/gaiacurves/gaiacurves/internal/simbad"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGaiaDR2Identifier(t *testing.T) {
	tests := []struct {
		name   string
		ids    []string
		want   string
		wantOK bool
	}{
		{
			name:   "single tagged entry",
			ids:    []string{"V* NQ Dra", "Gaia DR2 2154100169676165120"},
			want:   "2154100169676165120",
			wantOK: true,
		},
		{
			name:   "last match wins",
			ids:    []string{"Gaia DR2 111", "HD 1", "Gaia DR2 222"},
			want:   "222",
			wantOK: true,
		},
		{
			name:   "other releases ignored",
			ids:    []string{"Gaia DR1 333", "Gaia DR3 444", "Gaia EDR3 555"},
			wantOK: false,
		},
		{
			name:   "extra whitespace",
			ids:    []string{"Gaia DR2   666  "},
			want:   "666",
			wantOK: true,
		},
		{
			name:   "malformed tag skipped",
			ids:    []string{"Gaia DR2 777", "Gaia DR2"},
			want:   "777",
			wantOK: true,
		},
		{
			name:   "prefix must be at the start",
			ids:    []string{"NAME Gaia DR2 888"},
			wantOK: false,
		},
		{
			name:   "no identifiers",
			ids:    nil,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := GaiaDR2Identifier(tt.ids)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func newResolver(a *archivetest.Archive) *CrossIDResolver {
	return NewCrossIDResolver(simbad.NewClient(a.SimbadURL()), zerolog.Nop())
}

func TestCrossIDResolver_Resolved(t *testing.T) {
	a := archivetest.New(t)
	before := testutil.ToFloat64(metrics.ResolveRequestsTotal.WithLabelValues("resolved"))

	res, err := newResolver(a).Resolve(context.Background(), archivetest.PrimaryStar)
	require.NoError(t, err)
	assert.Equal(t, Resolved, res.Status)
	assert.Equal(t, "2154100169676165120", res.Identifier)
	assert.Equal(t, 5, res.CrossIDs)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ResolveRequestsTotal.WithLabelValues("resolved")))
}

func TestCrossIDResolver_Unknown(t *testing.T) {
	a := archivetest.New(t)

	res, err := newResolver(a).Resolve(context.Background(), archivetest.UnknownStar)
	require.NoError(t, err)
	assert.Equal(t, Unresolved, res.Status)
	assert.Empty(t, res.Identifier)
}

func TestCrossIDResolver_NoGaiaTag(t *testing.T) {
	a := archivetest.New(t)
	a.SetCrossIDs("HD 1", "HD 1", "Gaia DR3 42")

	res, err := newResolver(a).Resolve(context.Background(), "HD 1")
	require.NoError(t, err)
	assert.Equal(t, Unresolved, res.Status)
	assert.Equal(t, 2, res.CrossIDs)
}

func TestCrossIDResolver_EmptyName(t *testing.T) {
	a := archivetest.New(t)

	_, err := newResolver(a).Resolve(context.Background(), " ")
	assert.ErrorIs(t, err, ErrEmptyName)
	assert.Zero(t, a.Count(archivetest.KindSimbad))
}

func TestCrossIDResolver_ServiceFault(t *testing.T) {
	a := archivetest.New(t)
	a.FailWith(archivetest.KindSimbad, http.StatusServiceUnavailable)

	res, err := newResolver(a).Resolve(context.Background(), archivetest.PrimaryStar)
	require.Error(t, err)
	assert.Equal(t, Unresolved, res.Status)

	var fe *FaultError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, StageResolve, fe.Stage)

	var statusErr *simbad.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
}

func TestCrossIDResolver_AlwaysQueriesFresh(t *testing.T) {
	a := archivetest.New(t)
	r := newResolver(a)

	first, err := r.Resolve(context.Background(), archivetest.PrimaryStar)
	require.NoError(t, err)

	a.SetCrossIDs(archivetest.PrimaryStar, "Gaia DR2 999")
	second, err := r.Resolve(context.Background(), archivetest.PrimaryStar)
	require.NoError(t, err)

	assert.Equal(t, archivetest.PrimaryID, first.Identifier)
	assert.Equal(t, "999", second.Identifier)
	assert.Equal(t, 2, a.Count(archivetest.KindSimbad))
}
