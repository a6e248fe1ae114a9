package lightcurve

import (
	"errors"
	"fmt"
)

var (
	// ErrNoStars is returned when a batch is started without any names.
	ErrNoStars = errors.New("at least one star name is required")
	// ErrEmptyName is returned when resolving a blank name.
	ErrEmptyName = errors.New("star name cannot be empty")
	// ErrEmptyIdentifier is returned when a provider is called without a source id.
	ErrEmptyIdentifier = errors.New("source identifier cannot be empty")
	// ErrInvalidIdentifier is returned for a source identifier that is not a
	// decimal number.
	ErrInvalidIdentifier = errors.New("source identifier must be decimal digits")
)

// Stage names the pipeline step a fault happened in.
type Stage string

const (
	StageResolve  Stage = "resolve"
	StageRetrieve Stage = "retrieve"
	StagePersist  Stage = "persist"
)

// FaultError wraps a transport, service, or filesystem failure so callers can
// tell an outage apart from a star that simply has no data.
type FaultError struct {
	Stage   Stage
	Release Release
	Err     error
}

func (e *FaultError) Error() string {
	if e.Release == ReleaseNone {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Release, e.Err)
}

func (e *FaultError) Unwrap() error {
	return e.Err
}

func fault(stage Stage, release Release, err error) error {
	if err == nil {
		return nil
	}
	var fe *FaultError
	if errors.As(err, &fe) {
		return err
	}
	return &FaultError{Stage: stage, Release: release, Err: err}
}

// IsFault reports whether err is (or wraps) a FaultError.
func IsFault(err error) bool {
	var fe *FaultError
	return errors.As(err, &fe)
}
