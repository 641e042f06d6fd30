// Package clipio reads and writes landmark clips as JSON or CBOR files.
package clipio

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/teslashibe/go-gesture/pkg/landmark"
)

// Format is a clip file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCBOR Format = "cbor"
)

// ErrUnknownFormat is returned for file extensions with no known encoding.
var ErrUnknownFormat = errors.New("clipio: unknown clip format")

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".cbor", ".clip":
		return FormatCBOR, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, filepath.Ext(path))
	}
}

var encMode = func() cbor.EncMode {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Encode writes clip to w.
func Encode(w io.Writer, clip landmark.Clip, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(clip)
	case FormatCBOR:
		return encMode.NewEncoder(w).Encode(clip)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// Decode reads a clip from r and validates it.
func Decode(r io.Reader, format Format) (landmark.Clip, error) {
	var clip landmark.Clip
	var err error
	switch format {
	case FormatJSON:
		err = json.NewDecoder(r).Decode(&clip)
	case FormatCBOR:
		err = cbor.NewDecoder(r).Decode(&clip)
	default:
		return landmark.Clip{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return landmark.Clip{}, fmt.Errorf("decode %s clip: %w", format, err)
	}
	if err := clip.Validate(); err != nil {
		return landmark.Clip{}, err
	}
	return clip, nil
}

// Save writes clip to path, choosing the format from the extension.
func Save(path string, clip landmark.Clip) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create clip file: %w", err)
	}
	if err := Encode(f, clip, format); err != nil {
		f.Close()
		return fmt.Errorf("encode clip: %w", err)
	}
	return f.Close()
}

// Load reads a clip file, choosing the format from the extension.
func Load(path string) (landmark.Clip, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return landmark.Clip{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return landmark.Clip{}, fmt.Errorf("open clip file: %w", err)
	}
	defer f.Close()

	return Decode(f, format)
}
