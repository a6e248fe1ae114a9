package lightcurve

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Column names of the two persisted schemas.
const (
	dr2TimeColumn = "time"
	dr2MagColumn  = "mag"
	dr2BandColumn = "band"

	dr1TimeColumn = "observation_time"
	dr1MagColumn  = "g_magnitude"
	dr1Band       = "G"
)

// Table is a light-curve file read into memory.
type Table struct {
	Header []string
	Rows   [][]string
}

// ReadTable loads a persisted CSV light curve.
func ReadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	t, err := parseTable(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return t, nil
}

func parseTable(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return &Table{}, nil
	}
	if err != nil {
		return nil, err
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	t := &Table{Header: header}
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

// countRows returns the number of data rows in the CSV file at path.
func countRows(path string) (int, error) {
	t, err := ReadTable(path)
	if err != nil {
		return 0, err
	}
	return len(t.Rows), nil
}

// Column returns the index of name in the header, or -1.
func (t *Table) Column(name string) int {
	for i, h := range t.Header {
		if strings.EqualFold(h, name) {
			return i
		}
	}
	return -1
}

// DetectRelease infers the release from the header.
func (t *Table) DetectRelease() Release {
	switch {
	case t.Column(dr2TimeColumn) >= 0 && t.Column(dr2MagColumn) >= 0:
		return ReleasePrimary
	case t.Column(dr1TimeColumn) >= 0 && t.Column(dr1MagColumn) >= 0:
		return ReleaseSecondary
	default:
		return ReleaseNone
	}
}

// Series is the magnitude-over-time curve of one photometric band.
type Series struct {
	Band string
	Time []float64
	Mag  []float64
}

// Len returns the number of points.
func (s Series) Len() int {
	return len(s.Time)
}

// Series splits the table into one curve per band, ordered by band name.
// DR1 tables carry the G band only. Rows whose time or magnitude is missing
// or not numeric are left out.
func (t *Table) Series() ([]Series, error) {
	var timeCol, magCol, bandCol int
	switch t.DetectRelease() {
	case ReleasePrimary:
		timeCol, magCol, bandCol = t.Column(dr2TimeColumn), t.Column(dr2MagColumn), t.Column(dr2BandColumn)
	case ReleaseSecondary:
		timeCol, magCol, bandCol = t.Column(dr1TimeColumn), t.Column(dr1MagColumn), -1
	default:
		return nil, fmt.Errorf("unrecognised light-curve columns: %s", strings.Join(t.Header, ","))
	}

	byBand := make(map[string]*Series)
	for _, row := range t.Rows {
		if timeCol >= len(row) || magCol >= len(row) {
			continue
		}
		tm, err := strconv.ParseFloat(strings.TrimSpace(row[timeCol]), 64)
		if err != nil {
			continue
		}
		mag, err := strconv.ParseFloat(strings.TrimSpace(row[magCol]), 64)
		if err != nil {
			continue
		}

		band := dr1Band
		if bandCol >= 0 && bandCol < len(row) {
			band = strings.TrimSpace(row[bandCol])
		}
		s, ok := byBand[band]
		if !ok {
			s = &Series{Band: band}
			byBand[band] = s
		}
		s.Time = append(s.Time, tm)
		s.Mag = append(s.Mag, mag)
	}

	out := make([]Series, 0, len(byBand))
	for _, s := range byBand {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Band < out[j].Band })
	return out, nil
}
