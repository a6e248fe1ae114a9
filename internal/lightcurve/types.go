// Package lightcurve resolves star names to Gaia DR2 source identifiers and
// retrieves their light curves, preferring DR2 epoch photometry and falling
// back to the DR1 variable-star time series.
package lightcurve

import (
	"fmt"
	"strings"
)

// Release identifies the Gaia data release a light curve came from.
type Release int

const (
	ReleaseNone Release = iota
	// ReleasePrimary is Gaia DR2 epoch photometry.
	ReleasePrimary
	// ReleaseSecondary is the Gaia DR1 G-band variable-star time series.
	ReleaseSecondary
)

// String returns the label used in batch results: DR2, DR1, or N/A.
func (r Release) String() string {
	switch r {
	case ReleasePrimary:
		return "DR2"
	case ReleaseSecondary:
		return "DR1"
	default:
		return "N/A"
	}
}

// Tag is the lowercase form used in file names.
func (r Release) Tag() string {
	switch r {
	case ReleasePrimary:
		return "dr2"
	case ReleaseSecondary:
		return "dr1"
	default:
		return ""
	}
}

// ParseRelease accepts dr2/primary and dr1/secondary in any case.
func ParseRelease(s string) (Release, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dr2", "primary":
		return ReleasePrimary, nil
	case "dr1", "secondary":
		return ReleaseSecondary, nil
	default:
		return ReleaseNone, fmt.Errorf("unknown release %q (want DR2 or DR1)", s)
	}
}

// Ignore selects a release to skip during a batch.
type Ignore int

const (
	IgnoreNone Ignore = iota
	IgnorePrimary
	IgnoreSecondary
)

// ParseIgnore accepts "", "none", "dr2"/"primary" and "dr1"/"secondary",
// case-insensitively.
func ParseIgnore(s string) (Ignore, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return IgnoreNone, nil
	case "dr2", "primary":
		return IgnorePrimary, nil
	case "dr1", "secondary":
		return IgnoreSecondary, nil
	default:
		return IgnoreNone, fmt.Errorf("invalid ignore value %q (want DR2, DR1, or none)", s)
	}
}

func (i Ignore) String() string {
	switch i {
	case IgnorePrimary:
		return "DR2"
	case IgnoreSecondary:
		return "DR1"
	default:
		return "none"
	}
}

// Skips reports whether r is excluded by i.
func (i Ignore) Skips(r Release) bool {
	return (i == IgnorePrimary && r == ReleasePrimary) ||
		(i == IgnoreSecondary && r == ReleaseSecondary)
}

// ResolutionStatus tags the result of a name lookup.
type ResolutionStatus int

const (
	Unresolved ResolutionStatus = iota
	Resolved
)

func (s ResolutionStatus) String() string {
	if s == Resolved {
		return "resolved"
	}
	return "unresolved"
}

// Resolution is the outcome of translating a star name. Identifier is empty
// exactly when Status is Unresolved.
type Resolution struct {
	Name       string
	Identifier string
	Status     ResolutionStatus
	// CrossIDs is the number of cross-identifiers the lookup returned.
	CrossIDs int
}

// RetrievalStatus tags the result of a provider fetch.
type RetrievalStatus int

const (
	Empty RetrievalStatus = iota
	Found
)

func (s RetrievalStatus) String() string {
	if s == Found {
		return "found"
	}
	return "empty"
}

// Retrieval is what a provider produced. Path is set only when Status is Found.
type Retrieval struct {
	Release Release
	Status  RetrievalStatus
	Path    string
	Bytes   int64
	// Rows counts data rows, excluding the header.
	Rows int
}

// Outcome is the per-name entry of a batch. Path is non-empty exactly when
// Source is not ReleaseNone. Err records faults met along the way; a plain
// "no data" result leaves it nil.
type Outcome struct {
	Identifier string
	Path       string
	Source     Release
	Err        error
}

// Found reports whether a light curve was persisted for this name.
func (o Outcome) Found() bool {
	return o.Source != ReleaseNone
}

// NotAvailable is shown in place of a missing identifier, path, or source.
const NotAvailable = "N/A"

// OutcomeView is the presentation form of an Outcome, with missing values
// rendered as N/A.
type OutcomeView struct {
	ID       string `json:"ID" yaml:"ID"`
	Pathname string `json:"pathname" yaml:"pathname"`
	Source   string `json:"source" yaml:"source"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
}

// View converts o for display.
func (o Outcome) View() OutcomeView {
	v := OutcomeView{ID: o.Identifier, Pathname: o.Path, Source: o.Source.String()}
	if v.ID == "" {
		v.ID = NotAvailable
	}
	if v.Pathname == "" {
		v.Pathname = NotAvailable
	}
	if o.Err != nil {
		v.Error = o.Err.Error()
	}
	return v
}

// BatchResult maps each input name to its outcome.
type BatchResult map[string]Outcome

// Views converts every outcome for display.
func (b BatchResult) Views() map[string]OutcomeView {
	out := make(map[string]OutcomeView, len(b))
	for name, o := range b {
		out[name] = o.View()
	}
	return out
}
