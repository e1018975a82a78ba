package sim

import "fmt"

// Clock is the simulation's virtual notion of "now" in nanoseconds.
// It only moves forward.
type Clock struct {
	now int64
}

// Now returns the current virtual time.
func (c *Clock) Now() int64 {
	return c.now
}

// AdvanceBy moves the clock forward by delta. A negative delta is a logic
// defect in the engine and panics.
func (c *Clock) AdvanceBy(delta int64) {
	if delta < 0 {
		panic(fmt.Sprintf("Clock went backwards: delta %d at %d", delta, c.now))
	}
	c.now += delta
}

// Sequencer hands out strictly increasing sequence numbers. One sequencer is
// shared by every queue of a run so equal timestamps resolve the same way
// across runs.
type Sequencer struct {
	next uint64
}

// Next returns the next sequence number.
func (s *Sequencer) Next() uint64 {
	n := s.next
	s.next++
	return n
}

// Collector holds the two output traces. It is written only by the engine's
// output rule.
type Collector struct {
	queues [2]*TimedQueue
}

// NewCollector creates empty client and relay output traces.
func NewCollector() *Collector {
	return &Collector{queues: [2]*TimedQueue{NewTimedQueue(), NewTimedQueue()}}
}

func (c *Collector) record(side Side, e *Event) {
	c.queues[side].Push(e)
}

// Len returns the number of output events captured for side.
func (c *Collector) Len(side Side) int {
	return c.queues[side].Len()
}

// Output returns the captured events for side in time order.
func (c *Collector) Output(side Side) []*Event {
	return c.queues[side].Events()
}

// SimulationContext owns all mutable state of one simulation run: the
// virtual clock, the input traces, the output collector, both circuits and
// the RNG. It replaces process-wide state so independent runs never share
// anything.
type SimulationContext struct {
	Clock     Clock
	Sequencer Sequencer
	RNG       *PartitionedRNG

	inputs   [2]*TimedQueue
	circuits [2]*Circuit
	outputs  *Collector
}

// NewSimulationContext creates a fresh context seeded with key.
func NewSimulationContext(key SimulationKey) *SimulationContext {
	return &SimulationContext{
		RNG:      NewPartitionedRNG(key),
		inputs:   [2]*TimedQueue{NewTimedQueue(), NewTimedQueue()},
		circuits: [2]*Circuit{newCircuit(SideClient), newCircuit(SideRelay)},
		outputs:  NewCollector(),
	}
}

// Input returns the input trace for side.
func (ctx *SimulationContext) Input(side Side) *TimedQueue {
	return ctx.inputs[side]
}

// SetInput replaces the input trace for side. Used once, after loading.
func (ctx *SimulationContext) SetInput(side Side, q *TimedQueue) {
	if q == nil {
		q = NewTimedQueue()
	}
	ctx.inputs[side] = q
}

// Circuit returns the circuit state for side.
func (ctx *SimulationContext) Circuit(side Side) *Circuit {
	return ctx.circuits[side]
}

// Outputs returns the output collector.
func (ctx *SimulationContext) Outputs() *Collector {
	return ctx.outputs
}
