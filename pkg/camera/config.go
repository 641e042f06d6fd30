// Package camera streams frames from a local capture device into the live
// gesture recorder.
package camera

import "fmt"

// Config holds capture device settings.
//
// Mirror flips frames before landmark detection, which swaps the
// handedness the detector reports. Leave it off unless the reference
// videos were recorded mirrored too.
type Config struct {
	Device    int  `json:"device" yaml:"device"`       // OpenCV device index
	Width     int  `json:"width" yaml:"width"`         // Requested frame width
	Height    int  `json:"height" yaml:"height"`       // Requested frame height
	Framerate int  `json:"framerate" yaml:"framerate"` // Requested device FPS
	Mirror    bool `json:"mirror" yaml:"mirror"`       // Flip horizontally before detection
}

// Preset names for common configurations
const (
	PresetDefault = "default"
	PresetLow     = "low"
	Preset720p    = "720p"
)

// DefaultConfig returns a 640x480 30fps configuration on device 0.
func DefaultConfig() Config {
	return Config{
		Width:     640,
		Height:    480,
		Framerate: 30,
	}
}

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	low := DefaultConfig()
	low.Width, low.Height, low.Framerate = 320, 240, 15

	hd := DefaultConfig()
	hd.Width, hd.Height = 1280, 720

	return map[string]Config{
		PresetDefault: DefaultConfig(),
		PresetLow:     low,
		Preset720p:    hd,
	}
}

// Preset returns the named preset.
func Preset(name string) (Config, error) {
	cfg, ok := Presets()[name]
	if !ok {
		return Config{}, fmt.Errorf("unknown camera preset: %s", name)
	}
	return cfg, nil
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errs []string

	if c.Device < 0 {
		errs = append(errs, "device must be >= 0")
	}
	if c.Width < 160 || c.Width > 3840 {
		errs = append(errs, "width must be between 160 and 3840")
	}
	if c.Height < 120 || c.Height > 2160 {
		errs = append(errs, "height must be between 120 and 2160")
	}
	if c.Framerate < 1 || c.Framerate > 120 {
		errs = append(errs, "framerate must be between 1 and 120")
	}

	return errs
}
