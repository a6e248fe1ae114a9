package lightcurve

import (
	"context"
	"fmt"
	"strings"
)

// Provider retrieves the light curve of one source from one data release and
// persists it under an output directory.
type Provider interface {
	Release() Release
	// Fetch returns Found with the persisted path, or Empty when the release
	// holds no data for id. An error means the release could not be queried
	// or the file could not be written.
	Fetch(ctx context.Context, id, outputDir string) (Retrieval, error)
}

// ValidateIdentifier accepts a non-empty string of decimal digits.
func ValidateIdentifier(id string) error {
	if id == "" {
		return ErrEmptyIdentifier
	}
	if strings.IndexFunc(id, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
	}
	return nil
}
