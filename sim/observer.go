package sim

// PaddingObserver is the padding state machine as seen by the engine. The
// engine notifies it of every replayed event and lets it fire its timers as
// virtual time advances. Implementations talk back only through the
// EngineCallbacks handed to Attach.
type PaddingObserver interface {
	// Attach hands the observer its view of the engine. Called once by
	// NewEngine before any notification.
	Attach(cb EngineCallbacks)

	CellSent(side Side, padding bool)
	CellReceived(side Side, padding bool)
	HopAdded(side Side)
	CircuitBuilt(side Side)
	HasStreams(side Side, has bool)
	PurposeChanged(side Side)
	NoRelayEarly(side Side)

	// HandleNegotiate processes a padding negotiation request cell.
	HandleNegotiate(side Side, cell Cell) error
	// HandleNegotiated processes a padding negotiation reply cell.
	HandleNegotiated(side Side, cell Cell) error

	// HasPendingTimer reports whether side has a timer armed.
	HasPendingTimer(side Side) bool
	// RunTimers fires every timer due at or before now.
	RunTimers(now int64)
}

// EngineCallbacks is the narrow surface the engine exposes to the observer.
type EngineCallbacks interface {
	// SendCell transmits cell from side across the circuit. The engine
	// schedules its arrival on the other side and returns immediately.
	SendCell(from Side, cell Cell)
	// EmitEvent records an instrumented event for the output trace of the
	// side identified by circuitID (0 = relay, non-zero = client).
	EmitEvent(label string, circuitID uint32)
	// Now returns the current virtual time.
	Now() int64
	// Circuit returns a copy of side's circuit state.
	Circuit(side Side) Circuit
}

// NopObserver stands in for "no padding machine registered": it ignores
// every notification and never arms a timer.
type NopObserver struct{}

func (NopObserver) Attach(EngineCallbacks) {}
func (NopObserver) CellSent(Side, bool) {}
func (NopObserver) CellReceived(Side, bool) {}
func (NopObserver) HopAdded(Side) {}
func (NopObserver) CircuitBuilt(Side) {}
func (NopObserver) HasStreams(Side, bool) {}
func (NopObserver) PurposeChanged(Side) {}
func (NopObserver) NoRelayEarly(Side) {}
func (NopObserver) HandleNegotiate(Side, Cell) error { return nil }
func (NopObserver) HandleNegotiated(Side, Cell) error { return nil }
func (NopObserver) HasPendingTimer(Side) bool { return false }
func (NopObserver) RunTimers(int64) {}
