package sim

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// DefaultTimerStep is the clock increment used while a padding timer is armed.
// It is well below the machines' millisecond timer granularity.
const DefaultTimerStep int64 = 100_000

// ErrStepBudgetExceeded is returned by Run when MaxSteps events were
// dispatched and input remains.
var ErrStepBudgetExceeded = errors.New("step budget exceeded")

// EngineConfig groups the engine's tunables.
type EngineConfig struct {
	TimerStep int64 // clock increment while timers are pending (ns, default DefaultTimerStep)
	Horizon   int64 // stop once the clock passes this virtual time (ns, 0 = unlimited)
	MaxSteps  int64 // stop with ErrStepBudgetExceeded after this many dispatches (0 = unlimited)
}

// RunStats summarises a finished run.
type RunStats struct {
	Steps              int64
	Dispatched         [2]int // per side, indexed by Side
	Injected           [2]int // events injected into each side's input
	PassedThrough      int
	TimerSteps         int64
	EndClock           int64
	TimersPendingAtEnd bool
}

// Engine replays the client and relay input traces through a PaddingObserver
// in global time order, injecting the cells the observer sends across the
// circuit and collecting everything it reports.
type Engine struct {
	ctx      *SimulationContext
	observer PaddingObserver
	sampler  DelaySampler
	cfg      EngineConfig
	stats    RunStats
}

// NewEngine wires an engine to ctx. A nil observer means no padding machine.
func NewEngine(ctx *SimulationContext, observer PaddingObserver, sampler DelaySampler, cfg EngineConfig) *Engine {
	if ctx == nil {
		panic("NewEngine: ctx must not be nil")
	}
	if sampler == nil {
		panic("NewEngine: sampler must not be nil")
	}
	if observer == nil {
		observer = NopObserver{}
	}
	if cfg.TimerStep <= 0 {
		cfg.TimerStep = DefaultTimerStep
	}
	e := &Engine{
		ctx:      ctx,
		observer: observer,
		sampler:  sampler,
		cfg:      cfg,
	}
	observer.Attach(e)
	return e
}

// Stats returns the statistics gathered so far.
func (e *Engine) Stats() RunStats {
	return e.stats
}

// Run steps until both input traces are drained, the horizon is passed or
// the step budget runs out.
func (e *Engine) Run() (*RunStats, error) {
	for {
		if e.cfg.MaxSteps > 0 && e.stats.Steps >= e.cfg.MaxSteps && e.pendingInput() {
			e.finish()
			return &e.stats, fmt.Errorf("%w: %d steps", ErrStepBudgetExceeded, e.stats.Steps)
		}
		if e.cfg.Horizon > 0 && e.ctx.Clock.Now() > e.cfg.Horizon {
			logrus.Infof("[tick %016d] Horizon reached", e.ctx.Clock.Now())
			break
		}
		more, err := e.Step()
		if err != nil {
			e.finish()
			return &e.stats, err
		}
		if !more {
			break
		}
	}
	e.finish()
	logrus.Infof("[tick %016d] Simulation ended after %d events", e.stats.EndClock, e.stats.Steps)
	return &e.stats, nil
}

// Step dispatches the next event across both input traces, first letting
// any armed padding timers fire. It returns false once both traces are empty.
func (e *Engine) Step() (bool, error) {
	e.resolveTimers()

	side, ok := e.next()
	if !ok {
		return false, nil
	}
	ev := e.ctx.Input(side).Pop()
	e.advanceTo(ev.Timestamp)
	if err := e.dispatch(side, ev); err != nil {
		return false, err
	}
	e.stats.Steps++
	return true, nil
}

func (e *Engine) finish() {
	e.stats.EndClock = e.ctx.Clock.Now()
	e.stats.TimersPendingAtEnd = e.timerPending()
	if e.stats.TimersPendingAtEnd && !e.pendingInput() {
		// Timers armed after the last input event never fire.
		logrus.Warnf("[tick %016d] Input drained with padding timers still armed", e.stats.EndClock)
	}
}

func (e *Engine) pendingInput() bool {
	return e.ctx.Input(SideClient).Len() > 0 || e.ctx.Input(SideRelay).Len() > 0
}

func (e *Engine) timerPending() bool {
	return e.observer.HasPendingTimer(SideClient) || e.observer.HasPendingTimer(SideRelay)
}

// next picks the side whose head event orders first.
func (e *Engine) next() (Side, bool) {
	client, relay := e.ctx.Input(SideClient), e.ctx.Input(SideRelay)
	switch {
	case client.Len() > 0 && relay.Len() > 0:
		if relay.Peek().Before(client.Peek()) {
			return SideRelay, true
		}
		return SideClient, true
	case client.Len() > 0:
		return SideClient, true
	case relay.Len() > 0:
		return SideRelay, true
	}
	return SideClient, false
}

// resolveTimers walks the clock forward in TimerStep increments while the
// observer has a timer armed and the next recorded event is more than one
// increment away. The next event is re-read every iteration because a firing
// timer may inject an earlier one.
func (e *Engine) resolveTimers() {
	for e.timerPending() {
		side, ok := e.next()
		if !ok {
			return
		}
		now := e.ctx.Clock.Now()
		if e.ctx.Input(side).Peek().Timestamp-now <= e.cfg.TimerStep {
			return
		}
		if e.cfg.Horizon > 0 && now > e.cfg.Horizon {
			return
		}
		e.ctx.Clock.AdvanceBy(e.cfg.TimerStep)
		e.stats.TimerSteps++
		e.observer.RunTimers(e.ctx.Clock.Now())
	}
}

// advanceTo jumps the clock to ts and notifies the observer. Output nudges
// can leave the clock slightly past ts; the event then runs at the current
// clock.
func (e *Engine) advanceTo(ts int64) {
	if now := e.ctx.Clock.Now(); ts > now {
		e.ctx.Clock.AdvanceBy(ts - now)
	}
	e.observer.RunTimers(e.ctx.Clock.Now())
}

func (e *Engine) dispatch(side Side, ev *Event) error {
	logrus.Debugf("[tick %016d] %s %s (recorded %d)", e.ctx.Clock.Now(), side, ev.Kind, ev.Timestamp)

	circ := e.ctx.Circuit(side)
	switch ev.Kind {
	case KindPaddingSent:
		e.observer.CellSent(side, true)
	case KindNonPaddingSent:
		e.observer.CellSent(side, false)
	case KindPaddingReceived:
		e.observer.CellReceived(side, true)
	case KindNonPaddingReceived:
		e.observer.CellReceived(side, false)
	case KindHopAdded:
		circ.AddHop()
		e.observer.HopAdded(side)
	case KindCircuitBuilt:
		circ.MarkOpened()
		e.observer.CircuitBuilt(side)
	case KindHasStreams:
		circ.SetHasStreams(true)
		e.observer.HasStreams(side, true)
	case KindHasNoStreams:
		circ.SetHasStreams(false)
		e.observer.HasStreams(side, false)
	case KindPurposeChanged:
		e.observer.PurposeChanged(side)
	case KindNoRelayEarly:
		circ.ClearRelayEarly()
		e.observer.NoRelayEarly(side)
	case KindNegotiateRequest:
		if err := e.observer.HandleNegotiate(side, Cell{Payload: ev.Payload}); err != nil {
			return fmt.Errorf("negotiate on %s at %d: %w", side, e.ctx.Clock.Now(), err)
		}
	case KindNegotiateReply:
		// The reply rides on a data cell, so the machine sees it arrive first.
		e.observer.CellReceived(side, false)
		if err := e.observer.HandleNegotiated(side, Cell{Payload: ev.Payload}); err != nil {
			return fmt.Errorf("negotiated on %s at %d: %w", side, e.ctx.Clock.Now(), err)
		}
	case KindUnknown:
		e.record(side, &Event{Kind: KindUnknown, Label: ev.Label})
		e.stats.PassedThrough++
	default:
		panic(fmt.Sprintf("dispatch: unhandled event kind %d", int(ev.Kind)))
	}
	e.stats.Dispatched[side]++
	return nil
}

// record stamps out with the current clock and a fresh sequence number,
// appends it to side's output trace, then nudges the clock by one
// nanosecond so near-simultaneous outputs stay strictly ordered.
func (e *Engine) record(side Side, out *Event) {
	out.Timestamp = e.ctx.Clock.Now()
	out.Sequence = e.ctx.Sequencer.Next()
	e.ctx.Outputs().record(side, out)
	e.ctx.Clock.AdvanceBy(1)
}

// === EngineCallbacks ===

// Now returns the current virtual time.
func (e *Engine) Now() int64 {
	return e.ctx.Clock.Now()
}

// Circuit returns a copy of side's circuit state.
func (e *Engine) Circuit(side Side) Circuit {
	return *e.ctx.Circuit(side)
}

// SendCell schedules cell's arrival on the other side at now plus a sampled
// network delay.
func (e *Engine) SendCell(from Side, cell Cell) {
	to := from.Other()
	kind := classifyCell(cell)
	ev := &Event{
		Kind:      kind,
		Timestamp: e.ctx.Clock.Now() + e.sampler.Sample(),
		Label:     kind.Label(),
		Payload:   cell.Clone().Payload,
		Sequence:  e.ctx.Sequencer.Next(),
	}
	e.ctx.Input(to).Push(ev)
	e.stats.Injected[to]++
	logrus.Debugf("[tick %016d] %s -> %s inject %s at %d", e.ctx.Clock.Now(), from, to, kind, ev.Timestamp)
}

// EmitEvent captures an instrumented event into the output trace of the
// side identified by circuitID.
func (e *Engine) EmitEvent(label string, circuitID uint32) {
	e.record(SideFromCircuitID(circuitID), &Event{Kind: KindFromLabel(label), Label: label})
}

func classifyCell(cell Cell) EventKind {
	switch cell.Command() {
	case RelayCommandPaddingNegotiate:
		return KindNegotiateRequest
	case RelayCommandPaddingNegotiated:
		return KindNegotiateReply
	}
	return KindPaddingReceived
}
