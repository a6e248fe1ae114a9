package lightcurve

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gaiacurves/gaiacurves/internal/archivetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadTable_DR2Series(t *testing.T) {
	path := writeTemp(t, "dr2.csv", archivetest.DR2CSV("1", 84))

	table, err := ReadTable(path)
	require.NoError(t, err)
	assert.Equal(t, ReleasePrimary, table.DetectRelease())
	assert.Len(t, table.Rows, 84)

	series, err := table.Series()
	require.NoError(t, err)
	require.Len(t, series, 3)
	assert.Equal(t, []string{"BP", "G", "RP"}, []string{series[0].Band, series[1].Band, series[2].Band})
	for _, s := range series {
		assert.Equal(t, 28, s.Len())
	}
}

func TestReadTable_DR1Series(t *testing.T) {
	path := writeTemp(t, "dr1.csv", archivetest.DR1CSV("2", 144))

	table, err := ReadTable(path)
	require.NoError(t, err)
	assert.Equal(t, ReleaseSecondary, table.DetectRelease())

	series, err := table.Series()
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, "G", series[0].Band)
	assert.Equal(t, 144, series[0].Len())
}

func TestTable_SeriesSkipsBadRows(t *testing.T) {
	content := strings.Join([]string{
		"source_id,band,time,mag",
		"1,G,1700.5,15.1",
		"1,G,,15.2",
		"1,BP,1701.0,NaN-ish",
		"1,RP,1702.0,14.9",
		"1,G",
	}, "\n")
	table, err := parseTable(strings.NewReader(content))
	require.NoError(t, err)
	assert.Len(t, table.Rows, 5)

	series, err := table.Series()
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, "G", series[0].Band)
	assert.Equal(t, []float64{1700.5}, series[0].Time)
	assert.Equal(t, "RP", series[1].Band)
}

func TestTable_UnknownSchema(t *testing.T) {
	table, err := parseTable(strings.NewReader("a,b\n1,2\n"))
	require.NoError(t, err)
	assert.Equal(t, ReleaseNone, table.DetectRelease())

	_, err = table.Series()
	assert.Error(t, err)
}

func TestParseTable_Empty(t *testing.T) {
	table, err := parseTable(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, table.Rows)
}

func TestParseTable_HeaderOnlyAndBOM(t *testing.T) {
	table, err := parseTable(strings.NewReader("\ufeffsolution_id,source_id,observation_time,g_magnitude\n"))
	require.NoError(t, err)
	assert.Empty(t, table.Rows)
	assert.Equal(t, 0, table.Column("solution_id"))
}

func TestReadTable_MissingFile(t *testing.T) {
	_, err := ReadTable(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
