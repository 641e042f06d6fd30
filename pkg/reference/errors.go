package reference

import (
	"errors"
	"fmt"
)

var (
	// ErrNoLandmarks is returned when a reference clip yields no usable frames.
	ErrNoLandmarks = errors.New("no landmarks detected in reference clip")

	// ErrInvalidKey is returned for keys without an asset or with a bad fps.
	ErrInvalidKey = errors.New("reference: invalid key")

	// ErrNoOpener is returned when the loader is built without a video opener.
	ErrNoOpener = errors.New("reference: video opener required")
)

// ClipExtractionError reports a reference extraction that failed. It is
// returned to every caller waiting on the same key, and the cache entry is
// evicted so a later call retries.
type ClipExtractionError struct {
	Key string
	Err error
}

// Error implements the error interface.
func (e *ClipExtractionError) Error() string {
	return fmt.Sprintf("reference [%s]: %v", e.Key, e.Err)
}

// Unwrap returns the underlying error.
func (e *ClipExtractionError) Unwrap() error {
	return e.Err
}
