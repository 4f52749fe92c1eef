package main

import (
	"fmt"
	"math/rand/v2"

	"github.com/spf13/cobra"

	"github.com/okian/crewtrain/internal/bootstrap"
	"github.com/okian/crewtrain/internal/domain/benchmark"
	"github.com/okian/crewtrain/internal/domain/planner"
	"github.com/okian/crewtrain/pkg/logger"
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Benchmark the balance optimizer",
	Long:  "Compares the balance optimizer with a greedy softmin baseline and random feasible selections. With --pilots the problem comes from crew data, otherwise a built-in sample problem is used.",
	RunE:  runBench,
}

var (
	benchFlags  crewFlags
	benchTrials int
	benchSeed   uint64
)

func init() {
	benchFlags.register(benchCmd, "One or two pilot ids; empty runs the sample problem")
	benchCmd.Flags().IntVar(&benchTrials, "trials", 200, "Random selections to draw")
	benchCmd.Flags().Uint64Var(&benchSeed, "seed", 54321, "Random source seed")

	rootCmd.AddCommand(benchCmd)
}

func runBench(cmd *cobra.Command, _ []string) error {
	problem := benchmark.SampleProblem()
	if len(benchFlags.pilots) > 0 {
		svc, err := startService(cmd)
		if err != nil {
			return err
		}
		defer svc.Stop()
		if problem, err = svc.BalanceProblem(cmd.Context(), benchFlags.request(cmd)); err != nil {
			return fmt.Errorf("failed to build problem: %w", err)
		}
	}

	opt := planner.NewBalanceOptimizer(bootstrap.BalanceConfig(cfg))
	rng := rand.New(rand.NewPCG(benchSeed, 1))
	report, err := benchmark.Compare(problem, opt, cfg.PenaltyLambda, benchTrials, rng)
	if err != nil {
		return err
	}
	logger.Named("crewctl").Info(cmd.Context(), "benchmark finished",
		logger.Float64("optimizerSoftmin", report.Optimizer.SoftminAfter),
		logger.Float64("greedySoftmin", report.Greedy.SoftminAfter),
		logger.Float64("randomMedianSoftmin", report.RandomMedian.SoftminAfter))
	return writeJSON(cmd.OutOrStdout(), report)
}
