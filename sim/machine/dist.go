package machine

import (
	"fmt"
	"math"
	"math/rand"
)

// Distribution types.
const (
	DistNone        = "none"
	DistUniform     = "uniform"
	DistLogistic    = "logistic"
	DistExponential = "exponential"
	DistConstant    = "constant"
)

var validDists = map[string]bool{
	"":              true, // no padding timer
	DistNone:        true,
	DistUniform:     true,
	DistLogistic:    true,
	DistExponential: true,
	DistConstant:    true,
}

// MaxDelay caps a sampled delay so that adding it to any reachable clock
// value cannot overflow.
const MaxDelay int64 = math.MaxInt64 / 2

// DistSpec is a delay distribution in nanoseconds.
//
//	uniform:     Param1 = min, Param2 = max
//	logistic:    Param1 = location, Param2 = scale
//	exponential: Param1 = mean
//	constant:    Param1 = delay
type DistSpec struct {
	Type   string  `yaml:"type"`
	Param1 float64 `yaml:"param1"`
	Param2 float64 `yaml:"param2"`
}

// IsNone reports whether the distribution schedules nothing.
func (d DistSpec) IsNone() bool {
	return d.Type == "" || d.Type == DistNone
}

// Validate checks the type and its parameters.
func (d DistSpec) Validate() error {
	if !validDists[d.Type] {
		return fmt.Errorf("unknown distribution %q; valid: uniform, logistic, exponential, constant, none", d.Type)
	}
	switch d.Type {
	case DistUniform:
		if d.Param1 < 0 || d.Param2 < d.Param1 {
			return fmt.Errorf("uniform needs 0 <= param1 <= param2, got [%g, %g]", d.Param1, d.Param2)
		}
	case DistLogistic:
		if d.Param2 <= 0 {
			return fmt.Errorf("logistic scale must be positive, got %g", d.Param2)
		}
	case DistExponential:
		if d.Param1 <= 0 {
			return fmt.Errorf("exponential mean must be positive, got %g", d.Param1)
		}
	case DistConstant:
		if d.Param1 < 0 {
			return fmt.Errorf("constant delay must be non-negative, got %g", d.Param1)
		}
	}
	return nil
}

// Sample draws one delay, clamped to [0, MaxDelay].
func (d DistSpec) Sample(rng *rand.Rand) int64 {
	var v float64
	switch d.Type {
	case DistUniform:
		v = d.Param1 + rng.Float64()*(d.Param2-d.Param1)
	case DistLogistic:
		u := rng.Float64()
		for u == 0 {
			u = rng.Float64()
		}
		v = d.Param1 + d.Param2*math.Log(u/(1-u))
	case DistExponential:
		v = rng.ExpFloat64() * d.Param1
	case DistConstant:
		v = d.Param1
	}
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	if v >= float64(MaxDelay) {
		return MaxDelay
	}
	return int64(v)
}
