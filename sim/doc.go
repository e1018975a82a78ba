// Package sim provides the trace-driven discrete-event engine of the
// circuit-padding simulator.
//
// # Reading Guide
//
// Start with these files to understand the simulation kernel:
//   - event.go: the closed event taxonomy and the Event record
//   - queue.go: TimedQueue, the (timestamp, sequence) ordered trace buffer
//   - engine.go: the main loop: timer resolution, selection, dispatch,
//     cross-side injection and output capture
//
// # Architecture
//
// All mutable state of a run lives in a SimulationContext (clock, input
// traces, output collector, circuits, RNG). The padding state machine is an
// external collaborator behind PaddingObserver; it reaches back into the
// engine only through EngineCallbacks. Implementations live in sub-packages:
//   - sim/trace/: trace loading and export, torlog extraction, WF export,
//     overhead statistics
//   - sim/machine/: a configurable padding machine (YAML or Lua defined)
//
// # Time
//
// All timestamps are int64 nanoseconds relative to simulation start.
package sim
