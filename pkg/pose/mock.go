package pose

import (
	"context"
	"image"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-gesture/pkg/landmark"
)

// Mock implements Detector for testing.
type Mock struct {
	// DetectFunc is called when Detect is invoked.
	DetectFunc func(ctx context.Context, img image.Image) (*Detection, error)

	calls atomic.Int64

	mu     sync.Mutex
	images []image.Image
}

// NewMock creates a mock that reports one right hand with the given points
// at 0.9 confidence for every image.
func NewMock(points []landmark.Point) *Mock {
	return &Mock{
		DetectFunc: func(ctx context.Context, img image.Image) (*Detection, error) {
			return &Detection{
				Hands:      [][]landmark.Point{points},
				Handedness: []Category{{Label: "Right", Score: 0.9}},
			}, nil
		},
	}
}

// Detect calls DetectFunc and records the call.
func (m *Mock) Detect(ctx context.Context, img image.Image) (*Detection, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.images = append(m.images, img)
	m.mu.Unlock()

	if m.DetectFunc == nil {
		return nil, nil
	}
	return m.DetectFunc(ctx, img)
}

// Calls returns how many times Detect was invoked.
func (m *Mock) Calls() int {
	return int(m.calls.Load())
}

// Images returns the images passed to Detect, in call order.
func (m *Mock) Images() []image.Image {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]image.Image(nil), m.images...)
}
