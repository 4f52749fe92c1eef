package main

import (
	"fmt"

	"github.com/spf13/cobra"

	service "github.com/okian/crewtrain/internal/app"
	"github.com/okian/crewtrain/internal/bootstrap"
	"github.com/okian/crewtrain/internal/domain/types"
	"github.com/okian/crewtrain/pkg/logger"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Plan exercises for one crew",
	Long:  "Reads crew data from the configured provider and prints the plan of one or two pilots as JSON.",
	RunE:  runPlan,
}

// crewFlags are the crew selection flags shared by plan and bench.
type crewFlags struct {
	pilots    []int64
	limit     int
	reference float64
	increment float64
}

func (f *crewFlags) register(cmd *cobra.Command, pilotsUsage string) {
	cmd.Flags().Int64SliceVarP(&f.pilots, "pilots", "p", nil, pilotsUsage)
	cmd.Flags().IntVarP(&f.limit, "limit", "l", 0, "Number of exercises (default from config)")
	cmd.Flags().Float64Var(&f.reference, "reference", 0, "Reference score (default from config)")
	cmd.Flags().Float64Var(&f.increment, "increment", 0, "Development per exercise (default from config)")
}

// request builds a plan request from the flags that were set.
func (f *crewFlags) request(cmd *cobra.Command) types.PlanRequest {
	req := types.PlanRequest{Pilots: f.pilots}
	if cmd.Flags().Changed("limit") {
		req.Limit = &f.limit
	}
	if cmd.Flags().Changed("reference") {
		req.Reference = &f.reference
	}
	if cmd.Flags().Changed("increment") {
		req.Increment = &f.increment
	}
	return req
}

var planFlags crewFlags

func init() {
	planFlags.register(planCmd, "One or two pilot ids (required)")

	if err := planCmd.MarkFlagRequired("pilots"); err != nil {
		panic(fmt.Sprintf("failed to mark pilots flag as required: %v", err))
	}

	rootCmd.AddCommand(planCmd)
}

// startService opens the configured provider and starts a service on it.
func startService(cmd *cobra.Command) (*service.Service, error) {
	ctx := cmd.Context()
	provider, err := bootstrap.OpenProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	svc := service.New(bootstrap.ServiceOptions(cfg, provider, logger.Named("crewctl"))...)
	if err := svc.Start(ctx); err != nil {
		_ = provider.Close()
		return nil, err
	}
	return svc, nil
}

func runPlan(cmd *cobra.Command, _ []string) error {
	svc, err := startService(cmd)
	if err != nil {
		return err
	}
	defer svc.Stop()

	plan, err := svc.Plan(cmd.Context(), planFlags.request(cmd))
	if err != nil {
		return fmt.Errorf("failed to plan: %w", err)
	}
	return writeJSON(cmd.OutOrStdout(), plan)
}
