package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Config groups the parameters of one simulation run.
type Config struct {
	LatencyMean  int64        // one-way latency in ns; 0 = estimate from the client trace
	LatencyScale float64      // logistic scale of sampled delays in ns (0 = DefaultLatencyScale)
	Engine       EngineConfig // clock stepping and budgets
}

// NewConfig returns a Config with default sampling and stepping.
func NewConfig() Config {
	return Config{
		LatencyScale: DefaultLatencyScale,
		Engine:       EngineConfig{TimerStep: DefaultTimerStep},
	}
}

// Setup prepares a loaded context for simulation: it estimates (or takes)
// the latency, validates it and builds the sampler and engine. Both input
// traces must already be set on ctx. Nothing is consumed from the traces.
func Setup(ctx *SimulationContext, observer PaddingObserver, cfg Config) (*Engine, int64, error) {
	mean := cfg.LatencyMean
	if mean == 0 {
		var err error
		mean, err = EstimateLatency(ctx.Input(SideClient))
		if err != nil {
			return nil, 0, err
		}
		logrus.Infof("Estimated one-way latency %d ns from client trace", mean)
	}
	if err := ValidateLatency(mean); err != nil {
		return nil, 0, fmt.Errorf("setup: %w", err)
	}

	sampler := NewLogisticSampler(ctx, mean, cfg.LatencyScale)
	return NewEngine(ctx, observer, sampler, cfg.Engine), mean, nil
}
