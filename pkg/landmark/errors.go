package landmark

import "errors"

var (
	// ErrPointCount is returned when a frame does not carry the point count
	// its target requires.
	ErrPointCount = errors.New("landmark: unexpected point count")

	// ErrConfidence is returned when a confidence lies outside [0,1].
	ErrConfidence = errors.New("landmark: confidence out of range")

	// ErrTimestampOrder is returned when clip timestamps decrease.
	ErrTimestampOrder = errors.New("landmark: timestamps must be non-decreasing")

	// ErrInvalidClip is returned for malformed clip metadata.
	ErrInvalidClip = errors.New("landmark: invalid clip")
)
