package sim

import (
	"hash/fnv"
	"math/rand"
)

// SimulationKey seeds every random stream of a run. Replaying the same input
// traces under the same key yields byte-identical output traces.
type SimulationKey int64

// NewSimulationKey turns a --seed value into a key.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// SubsystemLatency names the stream behind the cross-side delay sampler. It
// is seeded with the key itself, so --seed alone fixes every sampled delay.
const SubsystemLatency = "latency"

// SubsystemMachine names the stream of the padding machine on side.
func SubsystemMachine(side Side) string {
	return "machine_" + side.String()
}

// PartitionedRNG hands each subsystem its own *rand.Rand so that drawing
// from one never shifts the sequence another sees. Streams other than
// SubsystemLatency are seeded with key XOR fnv1a64(name).
//
// Not safe for concurrent use; a run is single-threaded.
type PartitionedRNG struct {
	key     SimulationKey
	streams map[string]*rand.Rand
}

// NewPartitionedRNG creates the streams of a run lazily from key.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{key: key, streams: make(map[string]*rand.Rand)}
}

// ForSubsystem returns the stream for name, creating it on first use.
// Repeated calls return the same instance.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	rng, ok := p.streams[name]
	if !ok {
		rng = rand.New(rand.NewSource(p.seedFor(name)))
		p.streams[name] = rng
	}
	return rng
}

// Key returns the key the streams derive from.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

func (p *PartitionedRNG) seedFor(name string) int64 {
	if name == SubsystemLatency {
		return int64(p.key)
	}
	return int64(p.key) ^ fnv1a64(name)
}

func fnv1a64(s string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64())
}
