package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-gesture/internal/log"
	"github.com/teslashibe/go-gesture/pkg/capture"
)

// ErrReadFailed is returned when the device stops delivering frames.
var ErrReadFailed = errors.New("camera: frame read failed")

// Feed delivers device frames with capture timestamps.
type Feed struct {
	cfg Config
	log *slog.Logger

	mu  sync.Mutex
	vc  *gocv.VideoCapture
	mat gocv.Mat
}

// Open opens the capture device described by cfg.
func Open(cfg Config, logger *slog.Logger) (*Feed, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid camera config: %v", errs)
	}
	if logger == nil {
		logger = log.Component("camera")
	}

	vc, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", cfg.Device, err)
	}
	vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))

	logger.Info("camera opened",
		"device", cfg.Device,
		"width", vc.Get(gocv.VideoCaptureFrameWidth),
		"height", vc.Get(gocv.VideoCaptureFrameHeight),
		"fps", vc.Get(gocv.VideoCaptureFPS))

	return &Feed{cfg: cfg, log: logger, vc: vc, mat: gocv.NewMat()}, nil
}

// Run reads frames until ctx is done or the device fails, passing each one
// to sink with a timestamp in milliseconds since Run started. sink is called
// on Run's goroutine at the device cadence.
func (f *Feed) Run(ctx context.Context, sink func(capture.Frame)) error {
	start := time.Now()
	misses := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		frame, ok, err := f.read(start)
		if err != nil {
			return err
		}
		if !ok {
			misses++
			if misses > 30 {
				return ErrReadFailed
			}
			continue
		}
		misses = 0
		sink(frame)
	}
}

func (f *Feed) read(start time.Time) (capture.Frame, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if ok := f.vc.Read(&f.mat); !ok {
		return capture.Frame{}, false, ErrReadFailed
	}
	ts := float64(time.Since(start).Microseconds()) / 1000
	if f.mat.Empty() {
		return capture.Frame{}, false, nil
	}
	if f.cfg.Mirror {
		gocv.Flip(f.mat, &f.mat, 1)
	}

	img, err := f.mat.ToImage()
	if err != nil {
		f.log.Debug("frame conversion failed", "error", err)
		return capture.Frame{}, false, nil
	}
	return capture.Frame{Image: img, TimestampMs: ts}, true, nil
}

// Close releases the device.
func (f *Feed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mat.Close()
	return f.vc.Close()
}
