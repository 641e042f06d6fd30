package main

import (
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"

	"github.com/teslashibe/go-gesture/internal/config"
	"github.com/teslashibe/go-gesture/pkg/camera"
	"github.com/teslashibe/go-gesture/pkg/capture"
	"github.com/teslashibe/go-gesture/pkg/landmark"
	"github.com/teslashibe/go-gesture/pkg/pose/onnx"
	"github.com/teslashibe/go-gesture/pkg/reference"
	"github.com/teslashibe/go-gesture/pkg/scoring"
)

const progressTemplate = `{{ string . "prefix" }} {{counters . }} {{bar . }} {{percent . }} {{etime . "%s elapsed"}}`

func newDetector(c config.Config) (*onnx.HandLandmarker, error) {
	dcfg := onnx.DefaultConfig()
	dcfg.ModelPath = c.ModelPath
	return onnx.New(dcfg)
}

func scoringOptions(c config.Config) scoring.Options {
	return scoring.Options{
		MaxFrames:        c.Scoring.MaxFrames,
		MinValidFrames:   c.Scoring.MinValidFrames,
		SuccessThreshold: c.Scoring.SuccessThreshold,
		AllowMirror:      c.Scoring.AllowMirror,
	}
}

func newCache(c config.Config) *reference.Cache {
	return reference.NewCache(
		reference.WithMaxEntries(c.Reference.CacheEntries),
		reference.WithTTL(c.Reference.CacheTTL))
}

func loaderOptions(c config.Config) []reference.Option {
	return []reference.Option{
		reference.WithSurfaceSize(c.Reference.SurfaceWidth, c.Reference.SurfaceHeight),
		reference.WithMaxConcurrent(c.Reference.MaxConcurrent),
	}
}

func recorderOptions(c config.Config) []capture.Option {
	return []capture.Option{
		capture.WithFPS(c.Recorder.FPS),
		capture.WithTarget(landmark.Target(c.Recorder.Target)),
	}
}

func cameraConfig(c config.Config) camera.Config {
	return camera.Config{
		Device:    c.Camera.Device,
		Width:     c.Camera.Width,
		Height:    c.Camera.Height,
		Framerate: c.Camera.Framerate,
		Mirror:    c.Camera.Mirror,
	}
}

// progressBars renders one bar per reference key from loader callbacks.
type progressBars struct {
	mu   sync.Mutex
	bars map[string]*pb.ProgressBar
}

func newProgressBars() *progressBars {
	return &progressBars{bars: make(map[string]*pb.ProgressBar)}
}

func (p *progressBars) update(key reference.Key, done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := key.String()
	bar, ok := p.bars[id]
	if !ok {
		bar = pb.ProgressBarTemplate(progressTemplate).Start(total)
		bar.Set("prefix", id)
		bar.SetRefreshRate(100 * time.Millisecond)
		p.bars[id] = bar
	}
	bar.SetCurrent(int64(done))
	if done >= total {
		bar.Finish()
	}
}

func (p *progressBars) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, bar := range p.bars {
		if !bar.IsFinished() {
			bar.Finish()
		}
	}
}
