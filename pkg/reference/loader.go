package reference

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/teslashibe/go-gesture/internal/log"
	"github.com/teslashibe/go-gesture/pkg/landmark"
	"github.com/teslashibe/go-gesture/pkg/metrics"
	"github.com/teslashibe/go-gesture/pkg/pose"
)

// Config holds loader configuration.
type Config struct {
	// Offscreen raster size handed to the detector. Zero keeps the decoded
	// frame size.
	SurfaceWidth  int
	SurfaceHeight int

	MaxConcurrent int64   // Distinct extractions running at once
	SeekTolerance float64 // Seconds; seeks closer than this are skipped
	EndEpsilon    float64 // Seconds kept clear of the media end

	// Progress is called after each sampled frame.
	Progress func(key Key, done, total int)

	Cache  *Cache
	Logger *slog.Logger
}

// Option is a functional option for configuring the loader.
type Option func(*Config)

// WithSurfaceSize sets the offscreen raster size.
func WithSurfaceSize(w, h int) Option {
	return func(c *Config) {
		c.SurfaceWidth = w
		c.SurfaceHeight = h
	}
}

// WithMaxConcurrent bounds how many distinct keys extract at once.
func WithMaxConcurrent(n int64) Option {
	return func(c *Config) { c.MaxConcurrent = n }
}

// WithProgress sets the per-frame progress callback.
func WithProgress(fn func(key Key, done, total int)) Option {
	return func(c *Config) { c.Progress = fn }
}

// WithCache shares an existing cache.
func WithCache(cache *Cache) Option {
	return func(c *Config) { c.Cache = cache }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns loader defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 2,
		SeekTolerance: 0.001,
		EndEpsilon:    0.001,
	}
}

// Loader extracts reference clips from video assets.
type Loader struct {
	detector pose.Detector
	opener   Opener
	cfg      Config
	cache    *Cache
	sem      *semaphore.Weighted
	log      *slog.Logger
}

// NewLoader creates a loader. A nil detector or opener is a configuration
// error.
func NewLoader(detector pose.Detector, opener Opener, opts ...Option) (*Loader, error) {
	if err := pose.RequireDetector("reference", detector); err != nil {
		return nil, err
	}
	if opener == nil {
		return nil, &pose.ConfigurationError{Component: "reference", Err: ErrNoOpener}
	}

	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.Cache == nil {
		cfg.Cache = NewCache()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Component("reference")
	}

	return &Loader{
		detector: detector,
		opener:   opener,
		cfg:      cfg,
		cache:    cfg.Cache,
		sem:      semaphore.NewWeighted(cfg.MaxConcurrent),
		log:      cfg.Logger,
	}, nil
}

// Cache returns the loader's cache.
func (l *Loader) Cache() *Cache {
	return l.cache
}

// Load returns the reference clip for key. Concurrent calls with the same
// key share one extraction; a failed extraction is not cached.
func (l *Loader) Load(ctx context.Context, key Key) (landmark.Clip, error) {
	if err := key.Validate(); err != nil {
		return landmark.Clip{}, err
	}
	return l.cache.Do(ctx, key.String(), func(ctx context.Context) (landmark.Clip, error) {
		return l.extract(ctx, key)
	})
}

// Preload loads every key concurrently and returns the first error.
func (l *Loader) Preload(ctx context.Context, keys ...Key) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, key := range keys {
		g.Go(func() error {
			_, err := l.Load(ctx, key)
			return err
		})
	}
	return g.Wait()
}

func (l *Loader) extract(ctx context.Context, key Key) (landmark.Clip, error) {
	start := time.Now()
	clip, err := l.decode(ctx, key)
	metrics.RecordExtraction(err, time.Since(start))

	if err != nil {
		l.log.Warn("reference extraction failed", "key", key.String(), "error", err)
		return landmark.Clip{}, &ClipExtractionError{Key: key.String(), Err: err}
	}

	l.log.Info("reference clip extracted",
		"key", key.String(),
		"frames", clip.Len(),
		"duration_ms", clip.DurationMs,
		"elapsed", time.Since(start))
	return clip, nil
}

func (l *Loader) decode(ctx context.Context, key Key) (landmark.Clip, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return landmark.Clip{}, err
	}
	defer l.sem.Release(1)

	v, err := l.opener.Open(ctx, key)
	if err != nil {
		return landmark.Clip{}, fmt.Errorf("open video: %w", err)
	}
	defer v.Close()

	duration := v.DurationSeconds()
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration < 0 {
		return landmark.Clip{}, fmt.Errorf("invalid video duration %v", duration)
	}

	frameCount := int(math.Floor(duration * key.FPS))
	if frameCount < 1 {
		frameCount = 1
	}

	var (
		frames  = make([]landmark.Frame, 0, frameCount)
		surface *image.RGBA
		lastErr error
	)
	for i := 0; i < frameCount; i++ {
		t := sampleTime(i, frameCount, duration, l.cfg.EndEpsilon)

		if math.Abs(v.PositionSeconds()-t) > l.cfg.SeekTolerance {
			if err := v.Seek(ctx, t); err != nil {
				return landmark.Clip{}, fmt.Errorf("seek to %.3fs: %w", t, err)
			}
		}

		img, err := v.ReadFrame(ctx)
		if err != nil {
			return landmark.Clip{}, fmt.Errorf("read frame at %.3fs: %w", t, err)
		}
		surface = l.render(surface, img)

		if f, ok := l.detect(ctx, key, surface, t, &lastErr); ok {
			frames = append(frames, f)
		}

		if l.cfg.Progress != nil {
			l.cfg.Progress(key, i+1, frameCount)
		}
	}

	if len(frames) == 0 {
		if lastErr != nil {
			return landmark.Clip{}, fmt.Errorf("%w (last detector error: %v)", ErrNoLandmarks, lastErr)
		}
		return landmark.Clip{}, ErrNoLandmarks
	}

	return landmark.NewClip(key.Target, key.FPS, duration*1000, frames), nil
}

// detect runs the detector on the rendered surface. Detector errors and
// malformed results skip the frame.
func (l *Loader) detect(ctx context.Context, key Key, surface image.Image, t float64, lastErr *error) (landmark.Frame, bool) {
	start := time.Now()
	det, err := l.detector.Detect(ctx, surface)
	metrics.RecordDetect("reference", time.Since(start))
	if err != nil {
		*lastErr = err
		l.log.Debug("reference frame skipped", "key", key.String(), "t", t, "error", err)
		return landmark.Frame{}, false
	}

	hand, ok := pose.SelectHand(det)
	if !ok {
		return landmark.Frame{}, false
	}

	f := hand.Frame(t * 1000)
	if err := f.Validate(key.Target); err != nil {
		*lastErr = err
		l.log.Debug("reference frame skipped", "key", key.String(), "t", t, "error", err)
		return landmark.Frame{}, false
	}
	return f, true
}

// render draws img onto the offscreen surface, reallocating it when the
// target size changes.
func (l *Loader) render(surface *image.RGBA, img image.Image) *image.RGBA {
	size := img.Bounds().Size()
	if l.cfg.SurfaceWidth > 0 && l.cfg.SurfaceHeight > 0 {
		size = image.Pt(l.cfg.SurfaceWidth, l.cfg.SurfaceHeight)
	}
	if surface == nil || surface.Bounds().Size() != size {
		surface = image.NewRGBA(image.Rectangle{Max: size})
	}

	if size == img.Bounds().Size() {
		draw.Draw(surface, surface.Bounds(), img, img.Bounds().Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(surface, surface.Bounds(), img, img.Bounds(), draw.Src, nil)
	}
	return surface
}

// sampleTime returns the i-th of n uniformly spaced sample times across
// duration, kept eps short of the end.
func sampleTime(i, n int, duration, eps float64) float64 {
	if n <= 1 {
		return 0
	}
	t := math.Min(duration-eps, float64(i)/float64(n-1)*duration)
	if t < 0 {
		return 0
	}
	return t
}
