// Package video decodes reference gesture videos from disk with OpenCV.
package video

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-gesture/internal/log"
	"github.com/teslashibe/go-gesture/pkg/reference"
)

var (
	// ErrNotDecodable is returned when a file opens but yields no frame.
	ErrNotDecodable = errors.New("video: no decodable frame")

	// ErrClosed is returned by reads on a closed video.
	ErrClosed = errors.New("video: closed")
)

// FileOpener opens reference videos from a directory.
type FileOpener struct {
	// Root is joined with Key.Src; AssetID is used when Src is empty.
	// When Root is set, names must stay inside it.
	Root   string
	Logger *slog.Logger
}

// NewFileOpener creates an opener rooted at dir. An empty dir opens paths
// as given, which is what the extract command uses.
func NewFileOpener(dir string) *FileOpener {
	return &FileOpener{Root: dir, Logger: log.Component("video")}
}

// Path resolves the media file for key. With a Root, absolute names and
// names that climb out of Root fail with reference.ErrInvalidKey.
func (o *FileOpener) Path(key reference.Key) (string, error) {
	name := key.Src
	if name == "" {
		name = key.AssetID
	}
	if o.Root == "" {
		return name, nil
	}
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("%w: %q is outside the reference directory", reference.ErrInvalidKey, name)
	}
	return filepath.Join(o.Root, name), nil
}

// Open loads the file and decodes its first frame, so the returned video
// has metadata and a decodable frame available.
func (o *FileOpener) Open(ctx context.Context, key reference.Key) (reference.Video, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := o.Path(key)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("video file: %w", err)
	}

	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	v := &File{vc: vc, mat: gocv.NewMat(), path: path}
	v.fps = vc.Get(gocv.VideoCaptureFPS)
	if frames := vc.Get(gocv.VideoCaptureFrameCount); v.fps > 0 && frames > 0 {
		v.duration = frames / v.fps
	}

	first, err := v.ReadFrame(ctx)
	if err != nil {
		v.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if isBlank(first) {
		o.logger().Warn("reference video starts with a blank frame", "path", path)
	}
	if err := v.Seek(ctx, 0); err != nil {
		v.Close()
		return nil, err
	}

	o.logger().Debug("video opened",
		"path", path,
		"duration", v.duration,
		"fps", v.fps,
		"size", first.Bounds().Size())
	return v, nil
}

func (o *FileOpener) logger() *slog.Logger {
	if o.Logger == nil {
		return log.Component("video")
	}
	return o.Logger
}

// File is a seekable OpenCV video capture.
type File struct {
	path     string
	duration float64
	fps      float64

	mu     sync.Mutex
	vc     *gocv.VideoCapture
	mat    gocv.Mat
	closed bool
}

// DurationSeconds returns the duration derived from frame count and fps.
func (f *File) DurationSeconds() float64 {
	return f.duration
}

// PositionSeconds returns the decoder position.
func (f *File) PositionSeconds() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0
	}
	return f.vc.Get(gocv.VideoCapturePosMsec) / 1000
}

// Seek moves the decoder to t seconds. OpenCV seeks synchronously.
func (f *File) Seek(ctx context.Context, t float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	f.vc.Set(gocv.VideoCapturePosMsec, t*1000)
	return nil
}

// ReadFrame decodes the frame at the current position.
func (f *File) ReadFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}
	if ok := f.vc.Read(&f.mat); !ok || f.mat.Empty() {
		return nil, ErrNotDecodable
	}
	img, err := f.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	return img, nil
}

// Close releases the capture.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	f.mat.Close()
	return f.vc.Close()
}
