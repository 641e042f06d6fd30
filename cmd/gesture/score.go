package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-gesture/pkg/clipio"
	"github.com/teslashibe/go-gesture/pkg/scoring"
)

var (
	scoreMirror    bool
	scoreThreshold float64
)

var scoreCmd = &cobra.Command{
	Use:   "score <reference-clip> <user-clip>",
	Short: "Score a recorded clip against a reference clip",
	Args:  cobra.ExactArgs(2),
	RunE:  runScore,
}

func init() {
	scoreCmd.Flags().BoolVar(&scoreMirror, "mirror", false, "accept mirrored motion when handedness is unknown")
	scoreCmd.Flags().Float64Var(&scoreThreshold, "threshold", 0, "pass threshold (default from config)")
	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, args []string) error {
	ref, err := clipio.Load(args[0])
	if err != nil {
		return err
	}
	user, err := clipio.Load(args[1])
	if err != nil {
		return err
	}

	opts := scoringOptions(cfg)
	if cmd.Flags().Changed("mirror") {
		opts.AllowMirror = scoreMirror
	}
	if scoreThreshold > 0 {
		opts.SuccessThreshold = scoreThreshold
	}

	res := scoring.NewScorer(scoring.WithOptions(opts)).Score(ref, user)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
