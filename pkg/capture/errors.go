package capture

import (
	"errors"
	"fmt"
)

// ErrDetectorPanic is wrapped when the detector panics during extraction.
var ErrDetectorPanic = errors.New("capture: detector panicked")

// ExtractionError reports a single failed detector call during live
// recording. It is recovered locally: the frame is skipped and recording
// continues.
type ExtractionError struct {
	TimestampMs float64
	Err         error
}

// Error implements the error interface.
func (e *ExtractionError) Error() string {
	return fmt.Sprintf("capture: extraction at %.0fms: %v", e.TimestampMs, e.Err)
}

// Unwrap returns the underlying error.
func (e *ExtractionError) Unwrap() error {
	return e.Err
}
