package sim

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

const (
	// MaxLatencyMean is the exclusive upper bound of a sane one-way latency.
	MaxLatencyMean int64 = 1_000_000_000

	// DefaultLatencyScale is the logistic scale used by the sampler, in ns.
	DefaultLatencyScale = 1_000_000.0

	// circuitHops is the number of hops a standard circuit is built with.
	circuitHops = 3
)

var (
	ErrTooFewHops        = errors.New("trace has fewer than three hop-added events")
	ErrNoRoundTrip       = errors.New("no non-padding sent/received pair before the third hop")
	ErrLatencyOutOfRange = errors.New("latency estimate out of range")
)

// EstimateLatency derives the mean one-way latency from a client-side input
// trace. It scans a snapshot, so q is left untouched.
//
// The circuit is built hop by hop. After the first hop is added the first
// non-padding cell sent and the first non-padding cell received after it
// model a request and its echo; half that round trip is the estimate. The
// pair must be seen before the third hop, and the trace must contain at
// least three hops.
func EstimateLatency(q *TimedQueue) (int64, error) {
	hops := 0
	sent, recv := int64(-1), int64(-1)

	for _, e := range q.Events() {
		if hops >= circuitHops {
			break
		}
		switch e.Kind {
		case KindHopAdded:
			hops++
		case KindNonPaddingSent:
			if hops >= 1 && sent < 0 {
				sent = e.Timestamp
			}
		case KindNonPaddingReceived:
			if sent >= 0 && recv < 0 {
				recv = e.Timestamp
			}
		}
	}

	if hops < circuitHops {
		return 0, fmt.Errorf("estimate latency: %w (found %d)", ErrTooFewHops, hops)
	}
	if sent < 0 || recv < 0 {
		return 0, fmt.Errorf("estimate latency: %w", ErrNoRoundTrip)
	}
	return (recv - sent) / 2, nil
}

// ValidateLatency checks that mean lies strictly within (0, MaxLatencyMean).
func ValidateLatency(mean int64) error {
	if mean <= 0 || mean >= MaxLatencyMean {
		return fmt.Errorf("%w: %d ns not in (0, %d)", ErrLatencyOutOfRange, mean, MaxLatencyMean)
	}
	return nil
}

// DelaySampler produces one network delay per injected event.
type DelaySampler interface {
	// Sample returns a non-negative delay in ns.
	Sample() int64
}

// LogisticSampler draws delays from a logistic distribution centred on the
// estimated latency. Each call is independent.
type LogisticSampler struct {
	mu, scale float64
	rng       *rand.Rand
}

// NewLogisticSampler creates a sampler centred on mean using the context's
// latency RNG subsystem.
func NewLogisticSampler(ctx *SimulationContext, mean int64, scale float64) *LogisticSampler {
	if scale <= 0 {
		scale = DefaultLatencyScale
	}
	return &LogisticSampler{
		mu:    float64(mean),
		scale: scale,
		rng:   ctx.RNG.ForSubsystem(SubsystemLatency),
	}
}

func (s *LogisticSampler) Sample() int64 {
	u := s.rng.Float64()
	if u == 0 {
		u = math.SmallestNonzeroFloat64 // log(0) would give -Inf
	}
	val := s.mu + s.scale*math.Log(u/(1-u))
	if math.IsNaN(val) || val < 0 {
		return 0
	}
	if math.IsInf(val, 1) || val > math.MaxInt64/2 {
		return math.MaxInt64 / 2
	}
	return int64(math.Round(val))
}

// ConstantSampler always returns the same delay.
type ConstantSampler struct {
	Delay int64
}

func (s ConstantSampler) Sample() int64 {
	if s.Delay < 0 {
		return 0
	}
	return s.Delay
}
