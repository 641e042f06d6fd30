// Package landmark defines the frame and clip model shared by the capture,
// reference and scoring packages, plus the pure geometry helpers that operate
// on it (normalization, mirroring and resampling).
package landmark

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

// Hand landmark indices following the MediaPipe convention.
const (
	Wrist     = 0
	MiddleMCP = 9

	// HandPoints is the number of landmarks reported for one hand.
	HandPoints = 21

	// PosePoints is the number of landmarks reported for a full-body pose.
	PosePoints = 33
)

// Point is a single tracked landmark position.
type Point struct {
	X float64 `json:"x" cbor:"x"`
	Y float64 `json:"y" cbor:"y"`
	Z float64 `json:"z" cbor:"z"`
}

// Sub returns p - o.
func (p Point) Sub(o Point) Point {
	return Point{X: p.X - o.X, Y: p.Y - o.Y, Z: p.Z - o.Z}
}

// Scale returns p with every coordinate divided by s.
func (p Point) Scale(s float64) Point {
	return Point{X: p.X / s, Y: p.Y / s, Z: p.Z / s}
}

// Distance returns the Euclidean distance between p and o.
func (p Point) Distance(o Point) float64 {
	dx := p.X - o.X
	dy := p.Y - o.Y
	dz := p.Z - o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Handedness classifies a detected hand.
type Handedness string

const (
	Left    Handedness = "Left"
	Right   Handedness = "Right"
	Unknown Handedness = "Unknown"
)

// ParseHandedness maps a detector label onto Left, Right or Unknown.
func ParseHandedness(label string) Handedness {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "left", "l":
		return Left
	case "right", "r":
		return Right
	default:
		return Unknown
	}
}

// Known reports whether h is Left or Right.
func (h Handedness) Known() bool {
	return h == Left || h == Right
}

// Target identifies which capability produced the landmarks.
type Target string

const (
	TargetHands Target = "hands"
	TargetPose  Target = "pose"
)

// PointCount returns the fixed number of points per frame for the target,
// or 0 when the target is not recognised.
func (t Target) PointCount() int {
	switch t {
	case TargetHands:
		return HandPoints
	case TargetPose:
		return PosePoints
	default:
		return 0
	}
}

// Frame is one landmark snapshot.
type Frame struct {
	Points      []Point    `json:"points" cbor:"points"`
	Handedness  Handedness `json:"handedness" cbor:"handedness"`
	Confidence  float64    `json:"confidence" cbor:"confidence"`
	TimestampMs float64    `json:"timestamp_ms" cbor:"timestamp_ms"`
}

// Validate checks the point count for target and the confidence range.
// A target without a fixed point count only requires a non-empty frame.
func (f Frame) Validate(target Target) error {
	want := target.PointCount()
	switch {
	case want > 0 && len(f.Points) != want:
		return fmt.Errorf("%w: got %d points, want %d for %s", ErrPointCount, len(f.Points), want, target)
	case want == 0 && len(f.Points) == 0:
		return fmt.Errorf("%w: frame has no points", ErrPointCount)
	}
	if math.IsNaN(f.Confidence) || f.Confidence < 0 || f.Confidence > 1 {
		return fmt.Errorf("%w: %v", ErrConfidence, f.Confidence)
	}
	return nil
}

// Clone returns a deep copy of the frame.
func (f Frame) Clone() Frame {
	f.Points = append([]Point(nil), f.Points...)
	return f
}

// Clip is an ordered sequence of frames plus timing metadata.
// Clips handed to callers are snapshots and are never mutated afterwards.
type Clip struct {
	ID         string  `json:"id" cbor:"id"`
	Target     Target  `json:"target" cbor:"target"`
	FPS        float64 `json:"fps" cbor:"fps"`
	DurationMs float64 `json:"duration_ms" cbor:"duration_ms"`
	Frames     []Frame `json:"frames" cbor:"frames"`
}

// NewClip creates a clip with a fresh ID.
func NewClip(target Target, fps, durationMs float64, frames []Frame) Clip {
	return Clip{
		ID:         uuid.NewString(),
		Target:     target,
		FPS:        fps,
		DurationMs: durationMs,
		Frames:     frames,
	}
}

// Len returns the number of frames.
func (c Clip) Len() int {
	return len(c.Frames)
}

// Empty reports whether the clip has no frames.
func (c Clip) Empty() bool {
	return len(c.Frames) == 0
}

// WithFrames returns a copy of the clip metadata carrying frames.
func (c Clip) WithFrames(frames []Frame) Clip {
	c.Frames = frames
	return c
}

// Clone returns a deep copy of the clip.
func (c Clip) Clone() Clip {
	if c.Frames == nil {
		return c
	}
	frames := make([]Frame, len(c.Frames))
	for i, f := range c.Frames {
		frames[i] = f.Clone()
	}
	c.Frames = frames
	return c
}

// Validate checks every frame and that timestamps never decrease.
func (c Clip) Validate() error {
	if math.IsNaN(c.DurationMs) || c.DurationMs < 0 {
		return fmt.Errorf("%w: duration %v", ErrInvalidClip, c.DurationMs)
	}
	for i, f := range c.Frames {
		if err := f.Validate(c.Target); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		if i > 0 && f.TimestampMs < c.Frames[i-1].TimestampMs {
			return fmt.Errorf("frame %d: %w", i, ErrTimestampOrder)
		}
	}
	return nil
}
