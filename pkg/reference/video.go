// Package reference extracts landmark clips from prerecorded gesture videos
// and memoizes them per asset, target and fps.
package reference

import (
	"context"
	"fmt"
	"image"
	"strconv"

	"github.com/teslashibe/go-gesture/pkg/landmark"
)

// Key identifies one reference extraction.
type Key struct {
	AssetID string          // Stable asset identifier; preferred over Src
	Src     string          // Media location, used when AssetID is empty
	Target  landmark.Target // Capability target
	FPS     float64         // Sampling rate
}

// String returns the cache key: (AssetID|Src)|target|fps.
func (k Key) String() string {
	id := k.AssetID
	if id == "" {
		id = k.Src
	}
	return id + "|" + string(k.Target) + "|" + strconv.FormatFloat(k.FPS, 'f', -1, 64)
}

// Validate checks that the key names an asset and a positive fps.
func (k Key) Validate() error {
	if k.AssetID == "" && k.Src == "" {
		return fmt.Errorf("%w: asset id or src required", ErrInvalidKey)
	}
	if !(k.FPS > 0) {
		return fmt.Errorf("%w: fps must be positive, got %v", ErrInvalidKey, k.FPS)
	}
	return nil
}

// Video is a seekable, decodable media resource. Implementations are used
// by one extraction at a time.
type Video interface {
	// DurationSeconds returns the media duration.
	DurationSeconds() float64

	// PositionSeconds returns the current playback position.
	PositionSeconds() float64

	// Seek moves to t seconds and returns once the seek has completed.
	Seek(ctx context.Context, t float64) error

	// ReadFrame decodes the frame at the current position.
	ReadFrame(ctx context.Context) (image.Image, error)

	// Close releases decoder resources.
	Close() error
}

// Opener fully loads a video asset: Open returns once metadata and the
// first decodable frame are available.
type Opener interface {
	Open(ctx context.Context, key Key) (Video, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, key Key) (Video, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context, key Key) (Video, error) {
	return f(ctx, key)
}
