// Package trainer composes live capture, reference extraction and scoring
// into a practice session: record an attempt, grade it against a reference
// gesture, keep the history.
package trainer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-gesture/internal/log"
	"github.com/teslashibe/go-gesture/pkg/capture"
	"github.com/teslashibe/go-gesture/pkg/landmark"
	"github.com/teslashibe/go-gesture/pkg/pose"
	"github.com/teslashibe/go-gesture/pkg/reference"
	"github.com/teslashibe/go-gesture/pkg/scoring"
)

// Config holds session configuration.
type Config struct {
	RecorderOptions []capture.Option
	LoaderOptions   []reference.Option
	ScorerOptions   []scoring.Option

	Cache   *reference.Cache
	History int // Attempts kept; 0 keeps all
	Logger  *slog.Logger
	Clock   func() time.Time
}

// Option is a functional option for configuring the session.
type Option func(*Config)

// WithRecorderOptions passes options to the live recorder.
func WithRecorderOptions(opts ...capture.Option) Option {
	return func(c *Config) { c.RecorderOptions = append(c.RecorderOptions, opts...) }
}

// WithLoaderOptions passes options to the reference loader.
func WithLoaderOptions(opts ...reference.Option) Option {
	return func(c *Config) { c.LoaderOptions = append(c.LoaderOptions, opts...) }
}

// WithScorerOptions passes options to the scorer.
func WithScorerOptions(opts ...scoring.Option) Option {
	return func(c *Config) { c.ScorerOptions = append(c.ScorerOptions, opts...) }
}

// WithCache shares a reference cache between sessions.
func WithCache(cache *reference.Cache) Option {
	return func(c *Config) { c.Cache = cache }
}

// WithHistory bounds the attempt history.
func WithHistory(n int) Option {
	return func(c *Config) { c.History = n }
}

// WithLogger sets the structured logger for the session and its components.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithClock overrides the attempt timestamp clock.
func WithClock(now func() time.Time) Option {
	return func(c *Config) { c.Clock = now }
}

// Attempt is one graded performance.
type Attempt struct {
	Reference reference.Key
	User      landmark.Clip
	Result    scoring.Result
	At        time.Time
}

// Session owns the recorder, loader and scorer for one learner.
type Session struct {
	recorder *capture.Recorder
	loader   *reference.Loader
	scorer   *scoring.Scorer
	log      *slog.Logger
	now      func() time.Time
	keep     int

	mu      sync.Mutex
	history []Attempt
}

// NewSession wires a session around one detector. A nil detector or opener
// is a configuration error.
func NewSession(detector pose.Detector, opener reference.Opener, opts ...Option) (*Session, error) {
	cfg := Config{Clock: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Component("trainer")
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Cache == nil {
		cfg.Cache = reference.NewCache()
	}

	recorder, err := capture.NewRecorder(detector,
		append([]capture.Option{capture.WithLogger(cfg.Logger.With("component", "recorder"))}, cfg.RecorderOptions...)...)
	if err != nil {
		return nil, err
	}

	loader, err := reference.NewLoader(detector, opener,
		append([]reference.Option{
			reference.WithCache(cfg.Cache),
			reference.WithLogger(cfg.Logger.With("component", "reference")),
		}, cfg.LoaderOptions...)...)
	if err != nil {
		return nil, err
	}

	scorer := scoring.NewScorer(
		append([]scoring.Option{scoring.WithLogger(cfg.Logger.With("component", "scoring"))}, cfg.ScorerOptions...)...)

	return &Session{
		recorder: recorder,
		loader:   loader,
		scorer:   scorer,
		log:      cfg.Logger,
		now:      cfg.Clock,
		keep:     cfg.History,
	}, nil
}

// Recorder returns the live recorder.
func (s *Session) Recorder() *capture.Recorder { return s.recorder }

// Loader returns the reference loader.
func (s *Session) Loader() *reference.Loader { return s.loader }

// Begin starts recording a new attempt.
func (s *Session) Begin(ctx context.Context) {
	s.recorder.Start(ctx)
}

// OnFrame forwards a live frame to the recorder.
func (s *Session) OnFrame(f capture.Frame) {
	s.recorder.OnFrame(f)
}

// Attempt stops recording and grades the captured clip against key.
func (s *Session) Attempt(ctx context.Context, key reference.Key) (Attempt, error) {
	user := s.recorder.Stop()
	return s.Grade(ctx, key, user)
}

// Grade scores a previously captured clip against key and records it.
func (s *Session) Grade(ctx context.Context, key reference.Key, user landmark.Clip) (Attempt, error) {
	ref, err := s.loader.Load(ctx, key)
	if err != nil {
		return Attempt{}, fmt.Errorf("load reference: %w", err)
	}

	a := Attempt{
		Reference: key,
		User:      user,
		Result:    s.scorer.Score(ref, user),
		At:        s.now(),
	}

	s.mu.Lock()
	s.history = append(s.history, a)
	if s.keep > 0 && len(s.history) > s.keep {
		s.history = append([]Attempt(nil), s.history[len(s.history)-s.keep:]...)
	}
	s.mu.Unlock()

	s.log.Info("attempt graded",
		"reference", key.String(),
		"outcome", a.Result.Outcome(),
		"score", a.Result.Score)
	return a, nil
}

// Preload extracts reference clips ahead of the first attempt.
func (s *Session) Preload(ctx context.Context, keys ...reference.Key) error {
	return s.loader.Preload(ctx, keys...)
}

// History returns graded attempts, oldest first.
func (s *Session) History() []Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Attempt(nil), s.history...)
}

// Best returns the highest scoring attempt for key.
func (s *Session) Best(key reference.Key) (Attempt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best Attempt
	found := false
	for _, a := range s.history {
		if a.Reference.String() != key.String() {
			continue
		}
		if !found || a.Result.Score > best.Result.Score {
			best, found = a, true
		}
	}
	return best, found
}
