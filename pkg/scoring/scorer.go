package scoring

import (
	"log/slog"

	"github.com/teslashibe/go-gesture/internal/log"
	"github.com/teslashibe/go-gesture/pkg/landmark"
	"github.com/teslashibe/go-gesture/pkg/metrics"
)

// Config holds scorer configuration.
type Config struct {
	Options Options
	Logger  *slog.Logger
}

// Option is a functional option for configuring the scorer.
type Option func(*Config)

// WithOptions replaces the scoring options.
func WithOptions(o Options) Option {
	return func(c *Config) { c.Options = o }
}

// WithThreshold sets the pass threshold.
func WithThreshold(t float64) Option {
	return func(c *Config) { c.Options.SuccessThreshold = t }
}

// WithMirror enables the mirrored comparison for unknown handedness.
func WithMirror(allow bool) Option {
	return func(c *Config) { c.Options.AllowMirror = allow }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// Scorer applies fixed options to every comparison and reports each one.
type Scorer struct {
	opts Options
	log  *slog.Logger
}

// NewScorer creates a scorer with DefaultOptions unless overridden.
func NewScorer(opts ...Option) *Scorer {
	cfg := Config{Options: DefaultOptions()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Component("scoring")
	}
	return &Scorer{opts: cfg.Options.withDefaults(), log: cfg.Logger}
}

// Options returns the effective options.
func (s *Scorer) Options() Options {
	return s.opts
}

// Score grades user against reference.
func (s *Scorer) Score(reference, user landmark.Clip) Result {
	res := Score(reference, user, s.opts)
	metrics.RecordScore(res.Score, res.Outcome())

	s.log.Info("attempt scored",
		"reference", reference.ID,
		"outcome", res.Outcome(),
		"score", res.Score,
		"avg_distance", res.Metadata.AvgDistance,
		"valid_frames", res.Metadata.ValidFrames,
		"frame_count", res.Metadata.FrameCount)
	return res
}
