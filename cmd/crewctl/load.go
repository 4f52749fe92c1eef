package main

import (
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/crewtrain/internal/loadtest"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Drive load against a running server",
	Long:  "Generates random crews from a pilot pool, posts them to /plans concurrently, checks every returned plan and replays a sample to confirm the answers are deterministic.",
	RunE:  runLoad,
}

var loadConfig loadtest.Config

func init() {
	f := loadCmd.Flags()
	f.StringVar(&loadConfig.BaseURL, "url", "http://localhost:9080", "Base URL of the service")
	f.IntVarP(&loadConfig.Requests, "requests", "n", 1000, "Number of plan requests")
	f.Int64SliceVarP(&loadConfig.Pilots, "pilots", "p", nil, "Pilot ids crews are drawn from (required)")
	f.IntVar(&loadConfig.MaxLimit, "max-limit", 8, "Largest slot budget to request")
	f.IntVar(&loadConfig.Replays, "replays", 50, "Requests re-sent to check determinism")
	f.IntVarP(&loadConfig.Workers, "workers", "w", runtime.NumCPU()*2, "Number of concurrent workers")
	f.DurationVar(&loadConfig.Timeout, "timeout", 30*time.Second, "HTTP request timeout")
	f.Uint64Var(&loadConfig.Seed, "seed", 1, "Request generator seed")
	f.StringVarP(&loadConfig.OutputFile, "out", "o", "", "Write the generated requests to this JSON file")

	if err := loadCmd.MarkFlagRequired("pilots"); err != nil {
		panic(fmt.Sprintf("failed to mark pilots flag as required: %v", err))
	}

	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, _ []string) error {
	stats, err := loadtest.Run(cmd.Context(), &loadConfig)
	if werr := writeJSON(cmd.OutOrStdout(), stats); werr != nil && err == nil {
		err = werr
	}
	return err
}
