// Package config loads go-gesture settings from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings.
const (
	EnvLogLevel     = "GESTURE_LOG_LEVEL"
	EnvModelPath    = "GESTURE_MODEL_PATH"
	EnvCameraDevice = "GESTURE_CAMERA_DEVICE"
	EnvMetricsAddr  = "GESTURE_METRICS_ADDR"
)

// Config is the top-level configuration.
type Config struct {
	LogLevel     string `yaml:"log_level"`
	ModelPath    string `yaml:"model_path"`
	ReferenceDir string `yaml:"reference_dir"`
	MetricsAddr  string `yaml:"metrics_addr"` // Empty disables the status server

	Camera    Camera    `yaml:"camera"`
	Recorder  Recorder  `yaml:"recorder"`
	Reference Reference `yaml:"reference"`
	Scoring   Scoring   `yaml:"scoring"`
}

// Camera selects the live capture device.
type Camera struct {
	Device    int  `yaml:"device"`
	Width     int  `yaml:"width"`
	Height    int  `yaml:"height"`
	Framerate int  `yaml:"framerate"`
	Mirror    bool `yaml:"mirror"`
}

// Recorder configures live landmark capture.
type Recorder struct {
	FPS    float64 `yaml:"fps"`
	Target string  `yaml:"target"`
}

// Reference configures reference extraction and caching.
type Reference struct {
	SurfaceWidth  int           `yaml:"surface_width"`
	SurfaceHeight int           `yaml:"surface_height"`
	MaxConcurrent int64         `yaml:"max_concurrent"`
	CacheEntries  int           `yaml:"cache_entries"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
}

// Scoring configures attempt grading.
type Scoring struct {
	MaxFrames        int     `yaml:"max_frames"`
	MinValidFrames   int     `yaml:"min_valid_frames"`
	SuccessThreshold float64 `yaml:"success_threshold"`
	AllowMirror      bool    `yaml:"allow_mirror"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel:     "info",
		ModelPath:    "models/hand_landmark.onnx",
		ReferenceDir: "references",
		Camera: Camera{
			Width:     640,
			Height:    480,
			Framerate: 30,
		},
		Recorder: Recorder{
			FPS:    12,
			Target: "hands",
		},
		Reference: Reference{
			SurfaceWidth:  640,
			SurfaceHeight: 480,
			MaxConcurrent: 2,
			CacheEntries:  64,
		},
		Scoring: Scoring{
			MinValidFrames:   6,
			SuccessThreshold: 0.7,
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty or missing path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvModelPath); v != "" {
		c.ModelPath = v
	}
	if v := os.Getenv(EnvMetricsAddr); v != "" {
		c.MetricsAddr = v
	}
	if v := os.Getenv(EnvCameraDevice); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvCameraDevice, err)
		}
		c.Camera.Device = n
	}
	return nil
}

// Validate checks value ranges. Returns a list of validation errors, or nil
// if valid.
func (c *Config) Validate() []string {
	var errs []string

	if c.ModelPath == "" {
		errs = append(errs, "model_path is required")
	}
	if !(c.Recorder.FPS > 0) {
		errs = append(errs, "recorder.fps must be positive")
	}
	if c.Recorder.Target != "hands" && c.Recorder.Target != "pose" {
		errs = append(errs, "recorder.target must be hands or pose")
	}
	if c.Reference.SurfaceWidth < 0 || c.Reference.SurfaceHeight < 0 {
		errs = append(errs, "reference surface size must not be negative")
	}
	if c.Reference.MaxConcurrent < 1 {
		errs = append(errs, "reference.max_concurrent must be at least 1")
	}
	if c.Reference.CacheEntries < 0 || c.Reference.CacheTTL < 0 {
		errs = append(errs, "reference cache bounds must not be negative")
	}
	if c.Scoring.MaxFrames < 0 || c.Scoring.MinValidFrames < 0 {
		errs = append(errs, "scoring frame counts must not be negative")
	}
	if c.Scoring.SuccessThreshold < 0 || c.Scoring.SuccessThreshold > 1 {
		errs = append(errs, "scoring.success_threshold must be between 0 and 1")
	}

	return errs
}
