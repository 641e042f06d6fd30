// Package capture turns a live stream of camera frames into a landmark clip:
// a rate-limiting sampler, a capacity-1 backpressure slot and the recorder
// that ties them to the pose detector.
package capture

import (
	"image"
	"math"
	"time"
)

// Frame is one image delivered by a live camera feed.
type Frame struct {
	Image       image.Image
	TimestampMs float64 // Capture time in milliseconds; NaN or Inf means unknown
}

// HasTimestamp reports whether the frame carries a usable timestamp.
func (f Frame) HasTimestamp() bool {
	return !math.IsNaN(f.TimestampMs) && !math.IsInf(f.TimestampMs, 0)
}

// Sampler rate-limits an unbounded frame stream to a target fps.
// It is not safe for concurrent use; the recorder serializes access.
type Sampler struct {
	intervalMs float64
	last       float64
	hasLast    bool
	downstream func(Frame)
}

// NewSampler creates a sampler admitting at most fps frames per second.
// fps <= 0 disables rate limiting.
func NewSampler(fps float64) *Sampler {
	s := &Sampler{}
	if fps > 0 {
		s.intervalMs = 1000 / fps
	}
	return s
}

// NewSamplerFunc creates a sampler that forwards admitted frames to fn.
func NewSamplerFunc(fps float64, fn func(Frame)) *Sampler {
	s := NewSampler(fps)
	s.downstream = fn
	return s
}

// Push admits f if at least 1000/fps ms have passed since the last admitted
// frame. Frames without a timestamp are dropped. Returns whether f was admitted.
func (s *Sampler) Push(f Frame) bool {
	if !f.HasTimestamp() {
		return false
	}
	if s.hasLast && f.TimestampMs-s.last < s.intervalMs {
		return false
	}

	s.last = f.TimestampMs
	s.hasLast = true
	if s.downstream != nil {
		s.downstream(f)
	}
	return true
}

// Reset forgets the last admitted timestamp so the next frame is admitted.
func (s *Sampler) Reset() {
	s.last = 0
	s.hasLast = false
}

// Interval returns the minimum spacing between admitted frames.
func (s *Sampler) Interval() time.Duration {
	return time.Duration(s.intervalMs * float64(time.Millisecond))
}
