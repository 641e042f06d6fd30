package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-gesture/internal/log"
	"github.com/teslashibe/go-gesture/pkg/landmark"
	"github.com/teslashibe/go-gesture/pkg/metrics"
	"github.com/teslashibe/go-gesture/pkg/pose"
)

// State is the recorder lifecycle state.
type State int

const (
	// StateIdle means frames are ignored.
	StateIdle State = iota

	// StateRecording means admitted frames are sent to the detector.
	StateRecording
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	default:
		return "unknown"
	}
}

// Config holds recorder configuration.
type Config struct {
	FPS    float64         // Sampling rate for detector calls
	Target landmark.Target // Capability target; fixes the point count

	// OnExtractionError is called for every failed extraction.
	OnExtractionError func(err error)

	Logger *slog.Logger
	Clock  func() time.Time
}

// Option is a functional option for configuring the recorder.
type Option func(*Config)

// WithFPS sets the sampling rate.
func WithFPS(fps float64) Option {
	return func(c *Config) { c.FPS = fps }
}

// WithTarget sets the capability target.
func WithTarget(t landmark.Target) Option {
	return func(c *Config) { c.Target = t }
}

// WithErrorHandler sets a callback for failed extractions.
func WithErrorHandler(fn func(err error)) Option {
	return func(c *Config) { c.OnExtractionError = fn }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithClock overrides the wall clock used for the empty-clip duration.
func WithClock(now func() time.Time) Option {
	return func(c *Config) { c.Clock = now }
}

// DefaultConfig returns the recommended live capture configuration.
func DefaultConfig() Config {
	return Config{
		FPS:    12,
		Target: landmark.TargetHands,
		Clock:  time.Now,
	}
}

// Stats counts frame outcomes for the current recording cycle.
type Stats struct {
	Admitted    int // Passed the sampler
	DroppedRate int // Rejected by the sampler
	DroppedBusy int // Admitted while an extraction was in flight
	Extracted   int // Appended to the clip
	NoHand      int // Detector found nothing
	Failed      int // Detector error or malformed result
}

// Recorder captures a landmark clip from live frames.
//
// OnFrame is called from the frame-delivery goroutine. Admitted frames are
// handed to the detector on a separate goroutine, one at a time; frames
// that arrive while a detection is in flight are dropped.
type Recorder struct {
	detector pose.Detector
	cfg      Config
	log      *slog.Logger
	slot     Slot

	mu         sync.Mutex
	state      State
	sampler    *Sampler
	frames     []landmark.Frame
	startedAt  time.Time
	generation uint64
	ctx        context.Context
	stats      Stats
}

// NewRecorder creates a recorder. A nil detector is a configuration error.
func NewRecorder(detector pose.Detector, opts ...Option) (*Recorder, error) {
	if err := pose.RequireDetector("recorder", detector); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Component("recorder")
	}

	return &Recorder{
		detector: detector,
		cfg:      cfg,
		log:      cfg.Logger,
		sampler:  NewSampler(cfg.FPS),
		ctx:      context.Background(),
	}, nil
}

// Start clears the buffer, resets the sampler and begins recording.
// Calling Start while recording re-initializes the buffer; detections still
// in flight from the previous cycle are discarded when they finish.
func (r *Recorder) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateRecording {
		r.log.Debug("restarting recording", "frames_discarded", len(r.frames))
	}

	r.frames = make([]landmark.Frame, 0, 64)
	r.sampler.Reset()
	r.startedAt = r.cfg.Clock()
	r.generation++
	r.ctx = ctx
	r.stats = Stats{}
	r.state = StateRecording

	r.log.Info("recording started", "fps", r.cfg.FPS, "target", r.cfg.Target)
}

// OnFrame offers one live frame to the recorder. It never blocks on the
// detector.
func (r *Recorder) OnFrame(frame Frame) {
	r.mu.Lock()
	if r.state != StateRecording {
		r.mu.Unlock()
		return
	}
	if !r.sampler.Push(frame) {
		r.stats.DroppedRate++
		r.mu.Unlock()
		metrics.RecordFrame(metrics.FrameDroppedRate)
		return
	}
	r.stats.Admitted++
	gen, ctx := r.generation, r.ctx
	r.mu.Unlock()
	metrics.RecordFrame(metrics.FrameAdmitted)

	if !r.slot.TryGo(func() { r.extract(ctx, gen, frame) }) {
		r.mu.Lock()
		r.stats.DroppedBusy++
		r.mu.Unlock()
		metrics.RecordFrame(metrics.FrameDroppedBusy)
	}
}

func (r *Recorder) extract(ctx context.Context, gen uint64, frame Frame) {
	defer func() {
		if p := recover(); p != nil {
			r.fail(gen, frame, fmt.Errorf("%w: %v", ErrDetectorPanic, p))
		}
	}()

	start := time.Now()
	det, err := r.detector.Detect(ctx, frame.Image)
	metrics.RecordDetect("live", time.Since(start))
	if err != nil {
		r.fail(gen, frame, err)
		return
	}

	hand, ok := pose.SelectHand(det)
	if !ok {
		r.mu.Lock()
		defer r.mu.Unlock()
		if !r.currentLocked(gen) {
			return
		}
		r.stats.NoHand++
		metrics.RecordFrame(metrics.FrameNoHand)
		return
	}

	lf := hand.Frame(frame.TimestampMs)
	if err := lf.Validate(r.cfg.Target); err != nil {
		r.fail(gen, frame, err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.currentLocked(gen) {
		return
	}
	r.frames = append(r.frames, lf)
	r.stats.Extracted++
	metrics.RecordFrame(metrics.FrameExtracted)
}

// currentLocked reports whether a result started in generation gen still
// belongs to the running recording.
func (r *Recorder) currentLocked(gen uint64) bool {
	return r.state == StateRecording && gen == r.generation
}

func (r *Recorder) fail(gen uint64, frame Frame, err error) {
	xerr := &ExtractionError{TimestampMs: frame.TimestampMs, Err: err}

	r.mu.Lock()
	current := r.currentLocked(gen)
	if current {
		r.stats.Failed++
	}
	r.mu.Unlock()

	if !current {
		r.log.Debug("discarding stale extraction failure", "error", xerr)
		return
	}
	metrics.RecordFrame(metrics.FrameFailed)

	r.log.Warn("landmark extraction failed", "error", xerr)
	if r.cfg.OnExtractionError != nil {
		r.cfg.OnExtractionError(xerr)
	}
}

// Stop ends recording and returns a snapshot of the captured clip.
// Duration spans the first and last frame timestamps, or the wall-clock time
// since Start when nothing was captured.
func (r *Recorder) Stop() landmark.Clip {
	r.mu.Lock()
	defer r.mu.Unlock()

	frames := make([]landmark.Frame, len(r.frames))
	copy(frames, r.frames)

	var durationMs float64
	if n := len(frames); n > 0 {
		durationMs = frames[n-1].TimestampMs - frames[0].TimestampMs
	} else if !r.startedAt.IsZero() {
		durationMs = float64(r.cfg.Clock().Sub(r.startedAt)) / float64(time.Millisecond)
	}
	if durationMs < 0 || durationMs != durationMs {
		durationMs = 0
	}

	r.state = StateIdle
	r.generation++

	r.log.Info("recording stopped",
		"frames", len(frames),
		"duration_ms", durationMs,
		"dropped_busy", r.stats.DroppedBusy,
		"failed", r.stats.Failed)

	return landmark.NewClip(r.cfg.Target, r.cfg.FPS, durationMs, frames)
}

// Wait blocks until the extraction in flight when it is called, if any,
// finishes. It is safe to call while frames are still arriving.
func (r *Recorder) Wait() {
	r.slot.Wait()
}

// State returns the current lifecycle state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Stats returns the frame counters for the current cycle.
func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Busy reports whether an extraction is in flight.
func (r *Recorder) Busy() bool {
	return r.slot.Busy()
}
