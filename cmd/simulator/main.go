package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/downlink-simulator/core"
	"github.com/signalsfoundry/downlink-simulator/internal/logging"
	"github.com/signalsfoundry/downlink-simulator/internal/observability"
	"github.com/signalsfoundry/downlink-simulator/internal/telemetry"
	"github.com/signalsfoundry/downlink-simulator/timectrl"
)

var (
	scenarioPath string
	steps        uint64
	tick         time.Duration
	realTime     bool
	policyName   string
	strategyName string
	seed         int64
	outDir       string
	metricsAddr  string
	logLevel     string
	logFormat    string
)

var rootCmd = &cobra.Command{
	Use:   "downlink-sim",
	Short: "Satellite constellation downlink contention simulator",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation from a scenario file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runSimulation(cmd.Context())
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List valid scheduling policies and spacing strategies",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("scheduling policies:  %s\n", strings.Join(core.SchedulingPolicyNames(), ", "))
		fmt.Printf("spacing strategies:   %s\n", strings.Join(core.SpacingStrategyNames(), ", "))
	},
}

func init() {
	runCmd.Flags().StringVar(&scenarioPath, "scenario", "", "path to the YAML scenario file (required)")
	runCmd.Flags().Uint64Var(&steps, "steps", 86400, "number of simulation steps to run")
	runCmd.Flags().DurationVar(&tick, "tick", time.Second, "simulation tick duration")
	runCmd.Flags().BoolVar(&realTime, "real-time", false, "pace steps against wall-clock time")
	runCmd.Flags().StringVar(&policyName, "policy", "", "override the scenario's scheduling policy")
	runCmd.Flags().StringVar(&strategyName, "strategy", "", "override the scenario's spacing strategy")
	runCmd.Flags().Int64Var(&seed, "seed", 0, "override the random policy's seed")
	runCmd.Flags().StringVar(&outDir, "out", "", "directory for telemetry CSV output")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to expose Prometheus /metrics on (e.g. :9090)")
	runCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	runCmd.Flags().StringVar(&logFormat, "log-format", "text", "log format: text or json")
	_ = runCmd.MarkFlagRequired("scenario")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
}

func runSimulation(ctx context.Context) error {
	log := logging.New(logging.Config{Level: logLevel, Format: logFormat})

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	scenario, err := core.LoadScenarioFile(scenarioPath)
	if err != nil {
		return err
	}
	if policyName != "" {
		scenario.Scheduling.Policy = policyName
	}
	if strategyName != "" {
		scenario.Spacing.Strategy = strategyName
	}
	if seed != 0 {
		scenario.Scheduling.Seed = seed
	}

	var rec telemetry.Recorder = telemetry.NewLogRecorder(log)
	if outDir != "" {
		csv, err := telemetry.NewCSVDir(outDir)
		if err != nil {
			return err
		}
		defer func() {
			if err := csv.Close(); err != nil {
				log.Warn(ctx, "telemetry close failed", logging.String("error", err.Error()))
			}
		}()
		rec = csv
	}

	var metrics *observability.SimCollector
	if metricsAddr != "" {
		metrics, err = observability.NewSimCollector(nil)
		if err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				log.Error(ctx, "metrics server failed", logging.String("error", err.Error()))
			}
		}()
		log.Info(ctx, "metrics exposed", logging.String("addr", metricsAddr))
	}

	strategy, err := core.SpacingFromScenario(scenario.Spacing)
	if err != nil {
		return err
	}
	policy := core.SchedulingFromScenario(scenario.Scheduling)

	mode := timectrl.Accelerated
	if realTime {
		mode = timectrl.RealTime
	}
	clock := timectrl.NewTimeController(time.Now().UTC(), tick, mode)

	constellation, err := core.BuildConstellation(scenario, clock.Now(), rec)
	if err != nil {
		return err
	}

	engine, err := core.NewEngine(core.EngineConfig{
		Constellation:  constellation,
		Strategy:       strategy,
		Policy:         policy,
		Clock:          clock,
		ThresholdCoeff: scenario.Spacing.ThresholdCoeff,
		Logger:         log,
		Recorder:       rec,
		Metrics:        metrics,
	})
	if err != nil {
		return err
	}

	summary, err := engine.Run(ctx, steps)
	printSummary(summary)
	return err
}

func printSummary(s *core.Summary) {
	if s == nil {
		return
	}
	fmt.Printf("simulation summary: %d steps\n\n", s.Steps)

	fmt.Printf("%-16s %12s %12s %14s %10s\n", "SATELLITE", "BUFFERED MB", "LOST MB", "DOWNLINKED MB", "TRIGGERS")
	for _, sat := range s.Satellites {
		fmt.Printf("%-16s %12.2f %12.2f %14.2f %10d\n",
			sat.ID, sat.BufferedMB, sat.LostMB, sat.DownlinkedMB, sat.Triggers)
	}

	fmt.Printf("\n%-16s %12s %12s %14s\n", "STATION", "CONNECTED", "IDLE", "RECEIVED MB")
	for _, gs := range s.Stations {
		fmt.Printf("%-16s %12d %12d %14.2f\n",
			gs.ID, gs.StepsConnected, gs.IdleSteps, gs.ReceivedMB)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
