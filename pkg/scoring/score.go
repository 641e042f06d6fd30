// Package scoring grades a user landmark clip against a reference clip.
//
// Both clips are resampled to a common length, each frame pair is compared in
// a wrist-anchored, hand-size-normalized space, and the mean pointwise
// distance is mapped onto a 0-1 similarity score.
package scoring

import (
	"encoding/json"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/teslashibe/go-gesture/pkg/landmark"
)

const (
	// MaxNormDistance is the mean normalized distance that maps to a score of 0.
	// A confident handedness mismatch is charged exactly this much.
	MaxNormDistance = 0.5

	// HandednessConfidence is the confidence both frames need before a
	// Left/Right disagreement short-circuits the geometric comparison.
	HandednessConfidence = 0.6
)

// Reasons reported in Metadata for negative results that carry no score.
const (
	ReasonNoFrames           = "no_frames"
	ReasonInsufficientFrames = "insufficient_frames"
)

// Options tune a comparison.
type Options struct {
	MaxFrames        int     // Cap on compared frames; 0 uses the overlap
	MinValidFrames   int     // Valid pairs required for a score (default 6)
	SuccessThreshold float64 // Score needed to pass (default 0.7)
	AllowMirror      bool    // Accept mirrored motion when handedness is unknown
}

// DefaultOptions returns the default scoring options.
func DefaultOptions() Options {
	return Options{
		MinValidFrames:   6,
		SuccessThreshold: 0.7,
	}
}

// withDefaults fills zero-valued fields.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MinValidFrames <= 0 {
		o.MinValidFrames = d.MinValidFrames
	}
	if !(o.SuccessThreshold > 0) {
		o.SuccessThreshold = d.SuccessThreshold
	}
	return o
}

// Metadata describes how a score was reached.
//
// Its JSON form depends on Reason: a no_frames result carries only the
// reason, an insufficient_frames result adds validFrames, and a scored
// result carries avgDistance, validFrames, frameCount and threshold.
type Metadata struct {
	Reason      string  `json:"reason,omitempty"`
	AvgDistance float64 `json:"avgDistance"`
	ValidFrames int     `json:"validFrames"`
	FrameCount  int     `json:"frameCount"`
	Threshold   float64 `json:"threshold"`
	Mirrored    int     `json:"mirrored,omitempty"`
}

// MarshalJSON emits only the fields that apply to the result's reason.
func (m Metadata) MarshalJSON() ([]byte, error) {
	switch m.Reason {
	case ReasonNoFrames:
		return json.Marshal(struct {
			Reason string `json:"reason"`
		}{m.Reason})
	case ReasonInsufficientFrames:
		return json.Marshal(struct {
			Reason      string `json:"reason"`
			ValidFrames int    `json:"validFrames"`
		}{m.Reason, m.ValidFrames})
	}
	type scored Metadata
	return json.Marshal(scored(m))
}

// Result is the outcome of one comparison.
type Result struct {
	Pass     bool     `json:"pass"`
	Score    float64  `json:"score"`
	Metadata Metadata `json:"metadata"`
}

// Outcome returns "pass", "fail", or the insufficiency reason.
func (r Result) Outcome() string {
	switch {
	case r.Metadata.Reason != "":
		return r.Metadata.Reason
	case r.Pass:
		return "pass"
	default:
		return "fail"
	}
}

// Score compares user against reference. Insufficient data is reported as a
// negative Result, never as an error.
func Score(reference, user landmark.Clip, opts Options) Result {
	opts = opts.withDefaults()

	overlap := min(reference.Len(), user.Len())
	if overlap == 0 {
		return Result{Metadata: Metadata{Reason: ReasonNoFrames}}
	}

	frameCount := overlap
	if opts.MaxFrames > 0 && opts.MaxFrames < frameCount {
		frameCount = opts.MaxFrames
	}
	ref := landmark.Resample(reference, frameCount)
	usr := landmark.Resample(user, frameCount)

	distances := make([]float64, 0, frameCount)
	mirrored := 0
	for i := 0; i < frameCount; i++ {
		d, m, ok := FrameDistance(ref.Frames[i], usr.Frames[i], opts.AllowMirror)
		if !ok {
			continue
		}
		if m {
			mirrored++
		}
		distances = append(distances, d)
	}

	if len(distances) < opts.MinValidFrames {
		return Result{Metadata: Metadata{
			Reason:      ReasonInsufficientFrames,
			ValidFrames: len(distances),
			FrameCount:  frameCount,
			Threshold:   opts.SuccessThreshold,
		}}
	}

	avg := stat.Mean(distances, nil)
	normalized := clamp(avg/MaxNormDistance, 0, 1)
	score := clamp(1-normalized, 0, 1)

	return Result{
		Pass:  score >= opts.SuccessThreshold,
		Score: score,
		Metadata: Metadata{
			AvgDistance: avg,
			ValidFrames: len(distances),
			FrameCount:  frameCount,
			Threshold:   opts.SuccessThreshold,
			Mirrored:    mirrored,
		},
	}
}

// FrameDistance returns the normalized distance between a reference and a
// user frame, whether the mirrored user pose was used, and false when the
// pair cannot be compared.
//
// Two confidently classified hands of opposite sides are charged
// MaxNormDistance without looking at geometry. Mirroring is only tried when
// allowMirror is set and neither frame knows its handedness.
func FrameDistance(ref, user landmark.Frame, allowMirror bool) (float64, bool, bool) {
	if handednessMismatch(ref, user) {
		return MaxNormDistance, false, true
	}

	r := landmark.Normalize(ref.Points)
	u := landmark.Normalize(user.Points)
	if len(r) == 0 || len(u) == 0 {
		return 0, false, false
	}

	direct := meanDistance(r, u)
	if !allowMirror || ref.Handedness.Known() || user.Handedness.Known() {
		return direct, false, true
	}

	if m := meanDistance(r, landmark.Mirror(u)); m < direct {
		return m, true, true
	}
	return direct, false, true
}

func handednessMismatch(ref, user landmark.Frame) bool {
	return ref.Handedness.Known() && user.Handedness.Known() &&
		ref.Handedness != user.Handedness &&
		ref.Confidence >= HandednessConfidence &&
		user.Confidence >= HandednessConfidence
}

// meanDistance averages pointwise Euclidean distance over the shorter list.
func meanDistance(a, b []landmark.Point) float64 {
	n := min(len(a), len(b))
	d := make([]float64, n)
	for i := 0; i < n; i++ {
		d[i] = a[i].Distance(b[i])
	}
	return stat.Mean(d, nil)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return hi
	}
	return math.Max(lo, math.Min(hi, v))
}
