package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-gesture/internal/log"
	"github.com/teslashibe/go-gesture/pkg/camera"
	"github.com/teslashibe/go-gesture/pkg/capture"
	"github.com/teslashibe/go-gesture/pkg/clipio"
	"github.com/teslashibe/go-gesture/pkg/landmark"
	"github.com/teslashibe/go-gesture/pkg/reference"
	"github.com/teslashibe/go-gesture/pkg/scoring"
	"github.com/teslashibe/go-gesture/pkg/trainer"
	"github.com/teslashibe/go-gesture/pkg/video"
	"github.com/teslashibe/go-gesture/pkg/web"
)

var (
	recordReference string
	recordDuration  time.Duration
	recordCountdown time.Duration
	recordOut       string
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Perform a gesture in front of the camera and grade it",
	RunE:  runRecord,
}

func init() {
	recordCmd.Flags().StringVarP(&recordReference, "reference", "r", "", "reference video, relative to reference_dir")
	recordCmd.Flags().DurationVarP(&recordDuration, "duration", "d", 4*time.Second, "recording length")
	recordCmd.Flags().DurationVar(&recordCountdown, "countdown", 3*time.Second, "delay before recording starts")
	recordCmd.Flags().StringVarP(&recordOut, "out", "o", "", "save the recorded clip (.json or .cbor)")
	_ = recordCmd.MarkFlagRequired("reference")
	rootCmd.AddCommand(recordCmd)
}

func runRecord(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	detector, err := newDetector(cfg)
	if err != nil {
		return err
	}
	defer detector.Close()

	bars := newProgressBars()
	session, err := trainer.NewSession(detector, video.NewFileOpener(cfg.ReferenceDir),
		trainer.WithCache(newCache(cfg)),
		trainer.WithRecorderOptions(append(recorderOptions(cfg),
			capture.WithErrorHandler(func(err error) {
				log.Debug("frame skipped", "error", err)
			}))...),
		trainer.WithLoaderOptions(append(loaderOptions(cfg), reference.WithProgress(bars.update))...),
		trainer.WithScorerOptions(scoring.WithOptions(scoringOptions(cfg))))
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		srv, err := web.NewServer(cfg.MetricsAddr, session, prometheus.NewRegistry(), nil)
		if err != nil {
			return err
		}
		srv.StartAsync()
		defer srv.Shutdown()
	}

	key := reference.Key{
		AssetID: recordReference,
		Src:     recordReference,
		Target:  landmark.Target(cfg.Recorder.Target),
		FPS:     cfg.Recorder.FPS,
	}
	fmt.Printf("📼 Loading reference %s...\n", filepath.Base(recordReference))
	if err := session.Preload(ctx, key); err != nil {
		return err
	}
	bars.finish()

	feed, err := camera.Open(cameraConfig(cfg), nil)
	if err != nil {
		return err
	}
	defer feed.Close()

	fmt.Printf("⏳ Get ready... recording starts in %s\n", recordCountdown)
	select {
	case <-time.After(recordCountdown):
	case <-ctx.Done():
		return ctx.Err()
	}

	recCtx, cancel := context.WithTimeout(ctx, recordDuration)
	defer cancel()

	fmt.Printf("🔴 Recording for %s\n", recordDuration)
	session.Begin(recCtx)
	if err := feed.Run(recCtx, session.OnFrame); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		session.Recorder().Stop()
		return err
	}

	attempt, err := session.Attempt(ctx, key)
	if err != nil {
		return err
	}
	stats := session.Recorder().Stats()
	log.Info("recording summary",
		"admitted", stats.Admitted,
		"extracted", stats.Extracted,
		"dropped_busy", stats.DroppedBusy,
		"no_hand", stats.NoHand,
		"failed", stats.Failed)

	if recordOut != "" {
		if err := clipio.Save(recordOut, attempt.User); err != nil {
			return err
		}
	}

	printResult(attempt.Result)
	return nil
}

func printResult(r scoring.Result) {
	switch r.Metadata.Reason {
	case scoring.ReasonNoFrames:
		fmt.Println("🤷 No hand was captured. Make sure your hand is in view.")
		return
	case scoring.ReasonInsufficientFrames:
		fmt.Printf("🤷 Only %d usable frames; try again with your hand in view.\n", r.Metadata.ValidFrames)
		return
	}

	icon := "❌"
	if r.Pass {
		icon = "✅"
	}
	fmt.Printf("%s Score %.0f%% (threshold %.0f%%, %d/%d frames)\n",
		icon, r.Score*100, r.Metadata.Threshold*100, r.Metadata.ValidFrames, r.Metadata.FrameCount)
}
