// Package pose defines the pose-detector capability consumed by the capture
// and reference packages, and the hand-selection rules applied to its output.
package pose

import (
	"context"
	"image"

	"github.com/teslashibe/go-gesture/pkg/landmark"
)

// Category is one handedness classification reported by a detector.
type Category struct {
	Label string  // Detector label, e.g. "Left", "right"
	Score float64 // Classification confidence (0-1)
}

// Detection is the raw output of one detector call.
// Hands[i] is classified by Handedness[i] when present.
type Detection struct {
	Hands      [][]landmark.Point
	Handedness []Category
}

// Hand is the single hand selected from a Detection.
type Hand struct {
	Points     []landmark.Point
	Handedness landmark.Handedness
	Confidence float64
}

// Frame converts the hand into a landmark frame at the given timestamp.
func (h Hand) Frame(timestampMs float64) landmark.Frame {
	return landmark.Frame{
		Points:      h.Points,
		Handedness:  h.Handedness,
		Confidence:  h.Confidence,
		TimestampMs: timestampMs,
	}
}

// Detector is the interface for landmark detection backends.
type Detector interface {
	// Detect finds landmarks in the image. A nil Detection with a nil error
	// means nothing was found.
	Detect(ctx context.Context, img image.Image) (*Detection, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, img image.Image) (*Detection, error)

// Detect calls f.
func (f DetectorFunc) Detect(ctx context.Context, img image.Image) (*Detection, error) {
	return f(ctx, img)
}

// SelectHand picks exactly one hand from the detection: the entry whose
// handedness score is highest. Hands without a handedness entry score 0 and
// are labelled Unknown. Returns false when there is nothing to select.
func SelectHand(det *Detection) (Hand, bool) {
	if det == nil || len(det.Hands) == 0 {
		return Hand{}, false
	}

	best := -1
	bestScore := -1.0
	for i, pts := range det.Hands {
		if len(pts) == 0 {
			continue
		}
		score := 0.0
		if i < len(det.Handedness) {
			score = det.Handedness[i].Score
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return Hand{}, false
	}

	hand := Hand{
		Points:     append([]landmark.Point(nil), det.Hands[best]...),
		Handedness: landmark.Unknown,
		Confidence: clamp01(bestScore),
	}
	if best < len(det.Handedness) {
		hand.Handedness = landmark.ParseHandedness(det.Handedness[best].Label)
	}
	return hand, true
}

func clamp01(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
