package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-gesture/pkg/clipio"
	"github.com/teslashibe/go-gesture/pkg/landmark"
	"github.com/teslashibe/go-gesture/pkg/reference"
	"github.com/teslashibe/go-gesture/pkg/video"
)

var (
	extractOut    string
	extractFPS    float64
	extractTarget string
)

var extractCmd = &cobra.Command{
	Use:   "extract <video>...",
	Short: "Extract reference landmark clips from gesture videos",
	Long: `Extract samples each video uniformly at --fps, runs the hand landmark
model on every sample and writes the clip next to the video (or to --out
when a single video is given). The output format follows the extension:
.json or .cbor.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVarP(&extractOut, "out", "o", "", "output clip path (single video only)")
	extractCmd.Flags().Float64Var(&extractFPS, "fps", 0, "sampling rate (default: recorder fps)")
	extractCmd.Flags().StringVar(&extractTarget, "target", "", "landmark target (default: recorder target)")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	if extractOut != "" && len(args) > 1 {
		return fmt.Errorf("--out needs exactly one video, got %d", len(args))
	}
	fps := cfg.Recorder.FPS
	if extractFPS > 0 {
		fps = extractFPS
	}
	target := landmark.Target(cfg.Recorder.Target)
	if extractTarget != "" {
		target = landmark.Target(extractTarget)
	}

	detector, err := newDetector(cfg)
	if err != nil {
		return err
	}
	defer detector.Close()

	bars := newProgressBars()
	defer bars.finish()

	loader, err := reference.NewLoader(detector, video.NewFileOpener(""),
		append(loaderOptions(cfg), reference.WithProgress(bars.update))...)
	if err != nil {
		return err
	}

	keys := make([]reference.Key, len(args))
	for i, path := range args {
		keys[i] = reference.Key{AssetID: filepath.Base(path), Src: path, Target: target, FPS: fps}
	}
	if err := loader.Preload(cmd.Context(), keys...); err != nil {
		return err
	}
	bars.finish()

	for _, key := range keys {
		clip, err := loader.Load(cmd.Context(), key)
		if err != nil {
			return err
		}
		out := extractOut
		if out == "" {
			out = strings.TrimSuffix(key.Src, filepath.Ext(key.Src)) + ".cbor"
		}
		if err := clipio.Save(out, clip); err != nil {
			return err
		}
		fmt.Printf("✅ %s: %d frames over %.0fms → %s\n", key.Src, clip.Len(), clip.DurationMs, out)
	}
	return nil
}
