// Package main provides crewctl, the command line companion of the
// crewtrain server: one-off plans, optimizer benchmarks and load runs.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/okian/crewtrain/internal/config"
	"github.com/okian/crewtrain/pkg/logger"
)

// cfg is loaded once before any subcommand runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:           "crewctl",
	Short:         "Crew training planner tools",
	Long:          "crewctl plans exercises for a crew, benchmarks the balance optimizer and drives load against a running crewtrain server.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := config.Load(cmd.Context())
		if err != nil {
			return err
		}
		// Logs go to stderr so stdout carries only command output.
		if err := logger.Init(
			logger.WithFormat(loaded.LogFormat),
			logger.WithLevel(loaded.LogLevel),
			logger.WithWriter(cmd.ErrOrStderr()),
		); err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// writeJSON prints v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
