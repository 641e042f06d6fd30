// Package onnx provides a pose.Detector backed by an ONNX hand-landmark model
// running on OpenCV's DNN module.
package onnx

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-gesture/pkg/landmark"
	"github.com/teslashibe/go-gesture/pkg/pose"
)

// Config holds hand landmarker configuration.
type Config struct {
	ModelPath      string  // Path to ONNX model
	PresenceThresh float64 // Minimum hand presence score (default 0.5)
	InputWidth     int     // Model input width
	InputHeight    int     // Model input height

	// Output layer names: 63 landmark values, presence score, handedness score.
	LandmarksOutput  string
	PresenceOutput   string
	HandednessOutput string
}

// DefaultConfig returns defaults for the MediaPipe hand landmark model
// exported to ONNX with NCHW input.
func DefaultConfig() Config {
	return Config{
		ModelPath:        "models/hand_landmark.onnx",
		PresenceThresh:   0.5,
		InputWidth:       224,
		InputHeight:      224,
		LandmarksOutput:  "Identity",
		PresenceOutput:   "Identity_1",
		HandednessOutput: "Identity_2",
	}
}

// HandLandmarker runs a single-hand landmark model over the whole image.
type HandLandmarker struct {
	net       gocv.Net
	config    Config
	mu        sync.Mutex // Protects inference
	inputSize image.Point
}

var _ pose.Detector = (*HandLandmarker)(nil)

// New loads the model and prepares the network.
func New(cfg Config) (*HandLandmarker, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, &pose.ConfigurationError{
			Component: "onnx",
			Err:       fmt.Errorf("%w: model file not found: %s", pose.ErrMalformed, cfg.ModelPath),
		}
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, &pose.ConfigurationError{
			Component: "onnx",
			Err:       fmt.Errorf("%w: failed to load model from %s", pose.ErrMalformed, cfg.ModelPath),
		}
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &HandLandmarker{
		net:       net,
		config:    cfg,
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
	}, nil
}

// Detect runs the model over img. Returns nil when no hand is present.
func (h *HandLandmarker) Detect(ctx context.Context, img image.Image) (*pose.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert image: %w", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	blob := gocv.BlobFromImage(mat, 1.0/255.0, h.inputSize, gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	h.net.SetInput(blob, "")

	outs := h.net.ForwardLayers([]string{
		h.config.LandmarksOutput,
		h.config.PresenceOutput,
		h.config.HandednessOutput,
	})
	defer func() {
		for i := range outs {
			outs[i].Close()
		}
	}()
	if len(outs) != 3 {
		return nil, fmt.Errorf("expected 3 outputs, got %d", len(outs))
	}

	raw, err := outs[0].DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read landmarks: %w", err)
	}
	presence, err := firstFloat(outs[1])
	if err != nil {
		return nil, fmt.Errorf("read presence: %w", err)
	}
	handedness, err := firstFloat(outs[2])
	if err != nil {
		return nil, fmt.Errorf("read handedness: %w", err)
	}

	return decodeOutput(raw, presence, handedness, h.config), nil
}

// Close releases the network.
func (h *HandLandmarker) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.net.Close()
}

func firstFloat(m gocv.Mat) (float32, error) {
	data, err := m.DataPtrFloat32()
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, fmt.Errorf("empty output")
	}
	return data[0], nil
}

// decodeOutput turns the raw model outputs into a Detection. Landmarks are
// reported in input pixels and normalized to 0-1; z shares the x scale.
// The handedness output is the probability of a right hand.
func decodeOutput(raw []float32, presence, handedness float32, cfg Config) *pose.Detection {
	if float64(presence) < cfg.PresenceThresh || len(raw) < landmark.HandPoints*3 {
		return nil
	}

	w := float64(cfg.InputWidth)
	h := float64(cfg.InputHeight)
	pts := make([]landmark.Point, landmark.HandPoints)
	for i := range pts {
		pts[i] = landmark.Point{
			X: float64(raw[i*3]) / w,
			Y: float64(raw[i*3+1]) / h,
			Z: float64(raw[i*3+2]) / w,
		}
	}

	cat := pose.Category{Label: "Right", Score: float64(handedness)}
	if handedness < 0.5 {
		cat = pose.Category{Label: "Left", Score: 1 - float64(handedness)}
	}

	return &pose.Detection{
		Hands:      [][]landmark.Point{pts},
		Handedness: []pose.Category{cat},
	}
}
