package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/circpad-sim/circpad-sim/sim"
	"github.com/circpad-sim/circpad-sim/sim/trace"
)

var (
	// CLI flags for a single run
	clientTrace  string  // Path to the client input trace
	relayTrace   string  // Path to the relay input trace
	machinesPath string  // Padding machine definition (.yaml or .lua)
	seed         int64   // Seed for latency sampling and machine randomness
	latencyMean  int64   // One-way latency in ns (0 = estimate from client trace)
	latencyScale float64 // Logistic scale of sampled delays in ns
	timerStep    int64   // Clock increment while padding timers are armed (ns)
	horizon      int64   // Stop once the virtual clock passes this time (ns, 0 = unlimited)
	maxSteps     int64   // Stop after this many dispatched events (0 = unlimited)
	unknownLines string  // What to do with unrecognised trace lines (pass, drop)
	outDir       string  // Directory for simulated traces and summary.yaml
	configPath   string  // Optional YAML run file whose values fill unset flags

	logLevel string // Log verbosity level
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "circpad-sim",
	Short: "Trace-driven simulator for circuit padding machines",
}

// setLogLevel applies the --log flag. Shared by every subcommand.
func setLogLevel() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

// runCmd simulates one client/relay trace pair
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Simulate a padding machine over a client and relay trace",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()

		if configPath != "" {
			cfg, err := loadRunConfig(configPath)
			if err != nil {
				logrus.Fatalf("Failed to load run config: %v", err)
			}
			applyRunConfig(cmd.Flags(), cfg)
		}
		if clientTrace == "" || relayTrace == "" {
			logrus.Fatalf("Both --client and --relay traces are required")
		}
		if !trace.IsValidUnknownPolicy(unknownLines) {
			logrus.Fatalf("Unknown --unknown policy %q; valid: pass, drop", unknownLines)
		}

		logrus.Infof("Starting simulation of %s / %s with seed=%d, machines=%q", clientTrace, relayTrace, seed, machinesPath)
		summary, err := runSimulation(currentRunOptions())
		if err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		printSummary(summary)
		logrus.Info("Simulation complete.")
	},
}

// currentRunOptions snapshots the run flags.
func currentRunOptions() runOptions {
	return runOptions{
		ClientTrace:  clientTrace,
		RelayTrace:   relayTrace,
		Machines:     machinesPath,
		Seed:         seed,
		Latency:      latencyMean,
		LatencyScale: latencyScale,
		TimerStep:    timerStep,
		Horizon:      horizon,
		MaxSteps:     maxSteps,
		Unknown:      unknownLines,
		OutDir:       outDir,
	}
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// registerSimFlags adds the simulation tunables shared by run and batch.
func registerSimFlags(c *cobra.Command) {
	c.Flags().StringVar(&machinesPath, "machines", "", "Padding machine definition (.yaml or .lua); empty runs without padding")
	c.Flags().Int64Var(&seed, "seed", 42, "Seed for latency sampling and machine randomness")
	c.Flags().Int64Var(&latencyMean, "latency", 0, "One-way latency in ns (0 estimates it from the client trace)")
	c.Flags().Float64Var(&latencyScale, "latency-scale", sim.DefaultLatencyScale, "Logistic scale of sampled delays in ns")
	c.Flags().Int64Var(&timerStep, "timer-step", sim.DefaultTimerStep, "Clock increment while padding timers are armed (ns)")
	c.Flags().Int64Var(&horizon, "horizon", 0, "Stop once the virtual clock passes this time (ns, 0 = unlimited)")
	c.Flags().Int64Var(&maxSteps, "max-steps", 0, "Stop after this many dispatched events (0 = unlimited)")
	c.Flags().StringVar(&unknownLines, "unknown", string(trace.UnknownPassThrough), "Unrecognised trace lines: pass (copy to output) or drop")
	c.Flags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
}

// init sets up CLI flags and subcommands
func init() {
	runCmd.Flags().StringVar(&clientTrace, "client", "", "Client input trace")
	runCmd.Flags().StringVar(&relayTrace, "relay", "", "Relay input trace")
	runCmd.Flags().StringVarP(&outDir, "out", "o", "", "Directory for client.trace, relay.trace and summary.yaml")
	runCmd.Flags().StringVar(&configPath, "config", "", "YAML run file; its values fill flags not given on the command line")
	registerSimFlags(runCmd)

	rootCmd.AddCommand(runCmd)
}
