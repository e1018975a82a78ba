package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/circpad-sim/circpad-sim/sim"
	"github.com/circpad-sim/circpad-sim/sim/machine"
	"github.com/circpad-sim/circpad-sim/sim/trace"
)

// Names of the files a run writes into its output directory.
const (
	clientOutputFile = "client.trace"
	relayOutputFile  = "relay.trace"
	summaryFile      = "summary.yaml"
)

// runOptions is everything one simulation run needs.
type runOptions struct {
	ClientTrace  string
	RelayTrace   string
	Machines     string
	Seed         int64
	Latency      int64
	LatencyScale float64
	TimerStep    int64
	Horizon      int64
	MaxSteps     int64
	Unknown      string
	OutDir       string
}

// RunSummary is written to summary.yaml after each run.
type RunSummary struct {
	RunID              string                 `yaml:"run_id"`
	Seed               int64                  `yaml:"seed"`
	ClientTrace        string                 `yaml:"client_trace"`
	RelayTrace         string                 `yaml:"relay_trace"`
	Machines           string                 `yaml:"machines,omitempty"`
	LatencyMean        int64                  `yaml:"latency_mean_ns"`
	Steps              int64                  `yaml:"steps"`
	ClientDispatched   int                    `yaml:"client_dispatched"`
	RelayDispatched    int                    `yaml:"relay_dispatched"`
	ClientInjected     int                    `yaml:"client_injected"`
	RelayInjected      int                    `yaml:"relay_injected"`
	PassedThrough      int                    `yaml:"passed_through"`
	TimerSteps         int64                  `yaml:"timer_steps"`
	EndClock           int64                  `yaml:"end_clock_ns"`
	TimersPendingAtEnd bool                   `yaml:"timers_pending_at_end"`
	StepBudgetExceeded bool                   `yaml:"step_budget_exceeded"`
	Negotiated         bool                   `yaml:"negotiated"`
	ClientCells        trace.CellCounts       `yaml:"client_cells"`
	RelayCells         trace.CellCounts       `yaml:"relay_cells"`
	Overhead           *trace.OverheadSummary `yaml:"overhead,omitempty"`
	WallTime           string                 `yaml:"wall_time"`

	clientRecords []trace.Record
	relayRecords  []trace.Record
}

// runSimulation loads both traces into a fresh context, runs the engine
// and, when opts.OutDir is set, writes the simulated traces and summary.
// A spent step budget is reported in the summary rather than as an error.
func runSimulation(opts runOptions) (*RunSummary, error) {
	startTime := time.Now()
	ctx := sim.NewSimulationContext(sim.NewSimulationKey(opts.Seed))
	loadOpts := trace.LoadOptions{Unknown: trace.UnknownPolicy(opts.Unknown)}

	// The client trace is loaded first so it wins timestamp ties.
	clientQ, err := trace.LoadFile(opts.ClientTrace, &ctx.Sequencer, loadOpts)
	if err != nil {
		return nil, fmt.Errorf("client trace: %w", err)
	}
	relayQ, err := trace.LoadFile(opts.RelayTrace, &ctx.Sequencer, loadOpts)
	if err != nil {
		return nil, fmt.Errorf("relay trace: %w", err)
	}
	ctx.SetInput(sim.SideClient, clientQ)
	ctx.SetInput(sim.SideRelay, relayQ)
	logrus.Debugf("Loaded %d client and %d relay events", clientQ.Len(), relayQ.Len())

	var observer sim.PaddingObserver
	var machines *machine.Observer
	if opts.Machines != "" {
		m, err := machine.Load(opts.Machines)
		if err != nil {
			return nil, err
		}
		machines, err = machine.New(m, ctx.RNG)
		if err != nil {
			return nil, fmt.Errorf("machines %q: %w", opts.Machines, err)
		}
		observer = machines
	}

	cfg := sim.NewConfig()
	cfg.LatencyMean = opts.Latency
	if opts.LatencyScale > 0 {
		cfg.LatencyScale = opts.LatencyScale
	}
	cfg.Engine = sim.EngineConfig{TimerStep: opts.TimerStep, Horizon: opts.Horizon, MaxSteps: opts.MaxSteps}

	eng, mean, err := sim.Setup(ctx, observer, cfg)
	if err != nil {
		return nil, err
	}
	stats, err := eng.Run()
	budgetExceeded := errors.Is(err, sim.ErrStepBudgetExceeded)
	if err != nil && !budgetExceeded {
		return nil, fmt.Errorf("simulation: %w", err)
	}
	if budgetExceeded {
		logrus.Warnf("Run stopped early: %v", err)
	}

	s := &RunSummary{
		RunID:              uuid.NewString(),
		Seed:               opts.Seed,
		ClientTrace:        opts.ClientTrace,
		RelayTrace:         opts.RelayTrace,
		Machines:           opts.Machines,
		LatencyMean:        mean,
		Steps:              stats.Steps,
		ClientDispatched:   stats.Dispatched[sim.SideClient],
		RelayDispatched:    stats.Dispatched[sim.SideRelay],
		ClientInjected:     stats.Injected[sim.SideClient],
		RelayInjected:      stats.Injected[sim.SideRelay],
		PassedThrough:      stats.PassedThrough,
		TimerSteps:         stats.TimerSteps,
		EndClock:           stats.EndClock,
		TimersPendingAtEnd: stats.TimersPendingAtEnd,
		StepBudgetExceeded: budgetExceeded,
		Negotiated:         machines != nil && machines.Negotiated(),
		clientRecords:      trace.FromEvents(ctx.Outputs().Output(sim.SideClient)),
		relayRecords:       trace.FromEvents(ctx.Outputs().Output(sim.SideRelay)),
	}
	s.ClientCells = trace.CountCells(s.clientRecords)
	s.RelayCells = trace.CountCells(s.relayRecords)
	if ov, err := trace.ComputeOverhead([][]trace.Record{s.clientRecords}); err == nil {
		s.Overhead = ov
	} else {
		logrus.Debugf("No overhead for run: %v", err)
	}
	s.WallTime = time.Since(startTime).String()

	if opts.OutDir != "" {
		if err := writeRunOutput(opts.OutDir, s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// writeRunOutput writes the simulated traces and summary.yaml into dir.
func writeRunOutput(dir string, s *RunSummary) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	if err := trace.WriteFile(filepath.Join(dir, clientOutputFile), s.clientRecords); err != nil {
		return err
	}
	if err := trace.WriteFile(filepath.Join(dir, relayOutputFile), s.relayRecords); err != nil {
		return err
	}
	return writeYAML(filepath.Join(dir, summaryFile), s)
}

func writeYAML(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// printSummary reports a run on stdout.
func printSummary(s *RunSummary) {
	fmt.Println("=== Simulation Summary ===")
	fmt.Printf("Run ID             : %s\n", s.RunID)
	fmt.Printf("Latency (ns)       : %d\n", s.LatencyMean)
	fmt.Printf("Events dispatched  : %d client, %d relay\n", s.ClientDispatched, s.RelayDispatched)
	fmt.Printf("Cells injected     : %d client, %d relay\n", s.ClientInjected, s.RelayInjected)
	fmt.Printf("Negotiated         : %v\n", s.Negotiated)
	fmt.Printf("Client padding     : %d sent, %d received\n", s.ClientCells.SentPadding, s.ClientCells.RecvPadding)
	fmt.Printf("End clock (ns)     : %d\n", s.EndClock)
	if s.Overhead != nil {
		fmt.Printf("Overhead (total)   : %.3f\n", s.Overhead.AvgTotalOverhead)
	}
	if s.StepBudgetExceeded {
		fmt.Println("Step budget exceeded; output is partial.")
	}
}
