package machine

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/circpad-sim/circpad-sim/sim"
)

// runtime is the live state of one side's machine.
type runtime struct {
	spec        *MachineSpec
	rng         *rand.Rand
	index       map[string]int
	transitions []map[string]string

	active    bool
	state     int
	remaining int // padding budget left in the current state
	armed     bool
	deadline  int64
}

func newRuntime(spec *MachineSpec, rng *rand.Rand) *runtime {
	rt := &runtime{
		spec:        spec,
		rng:         rng,
		index:       make(map[string]int, len(spec.States)),
		transitions: make([]map[string]string, len(spec.States)),
	}
	for i := range spec.States {
		rt.index[spec.States[i].Name] = i
		rt.transitions[i] = spec.States[i].transitions()
	}
	return rt
}

func (rt *runtime) current() *StateSpec {
	return &rt.spec.States[rt.state]
}

// Observer drives a client and a relay machine from engine notifications.
// Every notification is first instrumented into the side's output trace,
// whether or not a machine runs on that side.
type Observer struct {
	machines *Machines
	cb       sim.EngineCallbacks
	rt       [2]*runtime

	negotiateSent bool
	negotiated    bool
	paddingSent   [2]int
}

// New validates machines and builds an observer drawing randomness from rng.
func New(machines *Machines, rng *sim.PartitionedRNG) (*Observer, error) {
	if machines == nil {
		return nil, fmt.Errorf("machines must not be nil")
	}
	if rng == nil {
		return nil, fmt.Errorf("rng must not be nil")
	}
	if err := machines.Validate(); err != nil {
		return nil, err
	}
	o := &Observer{machines: machines}
	if machines.Client != nil {
		o.rt[sim.SideClient] = newRuntime(machines.Client, rng.ForSubsystem(sim.SubsystemMachine(sim.SideClient)))
	}
	if machines.Relay != nil {
		o.rt[sim.SideRelay] = newRuntime(machines.Relay, rng.ForSubsystem(sim.SubsystemMachine(sim.SideRelay)))
	}
	return o, nil
}

// Negotiated reports whether the client received the relay's reply.
func (o *Observer) Negotiated() bool { return o.negotiated }

// PaddingSent returns the number of padding cells side's machine sent.
func (o *Observer) PaddingSent(side sim.Side) int { return o.paddingSent[side] }

// Active reports whether side's machine is running.
func (o *Observer) Active(side sim.Side) bool {
	return o.rt[side] != nil && o.rt[side].active
}

// State returns the name of side's current state, or "" when stopped.
func (o *Observer) State(side sim.Side) string {
	if !o.Active(side) {
		return ""
	}
	return o.rt[side].current().Name
}

// === sim.PaddingObserver ===

// Attach stores the engine callbacks.
func (o *Observer) Attach(cb sim.EngineCallbacks) {
	o.cb = cb
}

func (o *Observer) CellSent(side sim.Side, padding bool) {
	if padding {
		o.emit(side, sim.LabelPaddingSent)
		o.transition(side, EventPaddingSent)
		return
	}
	o.emit(side, sim.LabelNonPaddingSent)
	o.transition(side, EventNonPaddingSent)
}

func (o *Observer) CellReceived(side sim.Side, padding bool) {
	if padding {
		o.emit(side, sim.LabelPaddingReceived)
		o.transition(side, EventPaddingReceived)
		return
	}
	o.emit(side, sim.LabelNonPaddingReceived)
	o.transition(side, EventNonPaddingReceived)
}

func (o *Observer) HopAdded(side sim.Side) {
	o.emit(side, sim.LabelHopAdded)
	if side == sim.SideClient {
		o.maybeNegotiate()
	}
}

func (o *Observer) CircuitBuilt(side sim.Side) {
	o.emit(side, sim.LabelCircuitBuilt)
	if side == sim.SideClient {
		o.maybeNegotiate()
	}
}

func (o *Observer) HasStreams(side sim.Side, has bool) {
	if has {
		o.emit(side, sim.LabelHasStreams)
		return
	}
	o.emit(side, sim.LabelHasNoStreams)
}

func (o *Observer) PurposeChanged(side sim.Side) {
	o.emit(side, sim.LabelPurposeChanged)
}

func (o *Observer) NoRelayEarly(side sim.Side) {
	o.emit(side, sim.LabelNoRelayEarly)
}

// HandleNegotiate starts the relay machine and answers the client.
func (o *Observer) HandleNegotiate(side sim.Side, cell sim.Cell) error {
	if side != sim.SideRelay {
		return fmt.Errorf("padding negotiate arrived at the %s", side)
	}
	if cell.Command() != sim.RelayCommandPaddingNegotiate {
		return fmt.Errorf("expected negotiate command %d, got %d", sim.RelayCommandPaddingNegotiate, cell.Command())
	}
	o.emit(side, sim.LabelNonPaddingReceived)
	idx, err := o.machineIndex(cell)
	if err != nil {
		return err
	}
	if rt := o.rt[side]; rt != nil && !rt.active {
		o.start(side)
	}
	o.emit(side, sim.LabelNonPaddingSent)
	o.cb.SendCell(side, sim.NewCell(sim.RelayCommandPaddingNegotiated, idx))
	return nil
}

// HandleNegotiated records the relay's acknowledgement on the client.
func (o *Observer) HandleNegotiated(side sim.Side, cell sim.Cell) error {
	if side != sim.SideClient {
		return fmt.Errorf("padding negotiated arrived at the %s", side)
	}
	if cell.Command() != sim.RelayCommandPaddingNegotiated {
		return fmt.Errorf("expected negotiated command %d, got %d", sim.RelayCommandPaddingNegotiated, cell.Command())
	}
	if _, err := o.machineIndex(cell); err != nil {
		return err
	}
	o.negotiated = true
	logrus.Debugf("[tick %016d] client: padding negotiated", o.cb.Now())
	return nil
}

// HasPendingTimer reports whether side's machine has a padding timer armed.
func (o *Observer) HasPendingTimer(side sim.Side) bool {
	return o.rt[side] != nil && o.rt[side].armed
}

// RunTimers sends the padding cell of every timer due at or before now.
// Each side fires at most once per call.
func (o *Observer) RunTimers(now int64) {
	for _, side := range []sim.Side{sim.SideClient, sim.SideRelay} {
		rt := o.rt[side]
		if rt == nil || !rt.armed || rt.deadline > now {
			continue
		}
		o.firePadding(side)
	}
}

// === machine internals ===

func (o *Observer) emit(side sim.Side, label string) {
	o.cb.EmitEvent(label, side.CircuitID())
}

func (o *Observer) machineIndex(cell sim.Cell) (byte, error) {
	if len(cell.Payload) < 2 {
		return 0, fmt.Errorf("negotiation cell carries no machine index")
	}
	if idx := cell.Payload[1]; idx != o.machines.Index {
		return 0, fmt.Errorf("unknown machine index %d, expected %d", idx, o.machines.Index)
	}
	return o.machines.Index, nil
}

// maybeNegotiate sends the negotiate cell once the client circuit is long
// enough, and starts the client machine alongside.
func (o *Observer) maybeNegotiate() {
	if o.negotiateSent {
		return
	}
	if circ := o.cb.Circuit(sim.SideClient); circ.Hops < o.machines.MinHops() {
		return
	}
	o.negotiateSent = true
	logrus.Debugf("[tick %016d] client: negotiating machine %d", o.cb.Now(), o.machines.Index)
	o.emit(sim.SideClient, sim.LabelNonPaddingSent)
	o.cb.SendCell(sim.SideClient, sim.NewCell(sim.RelayCommandPaddingNegotiate, o.machines.Index))
	if o.rt[sim.SideClient] != nil {
		o.start(sim.SideClient)
	}
}

func (o *Observer) start(side sim.Side) {
	rt := o.rt[side]
	rt.active = true
	logrus.Debugf("[tick %016d] %s: machine %q started", o.cb.Now(), side, rt.spec.Name)
	o.enter(side, 0)
}

func (o *Observer) stop(side sim.Side) {
	rt := o.rt[side]
	rt.active = false
	rt.armed = false
	logrus.Debugf("[tick %016d] %s: machine %q ended", o.cb.Now(), side, rt.spec.Name)
}

func (o *Observer) enter(side sim.Side, state int) {
	rt := o.rt[side]
	rt.state = state
	rt.remaining = rt.current().Length
	rt.armed = false
	o.schedule(side)
}

func (o *Observer) schedule(side sim.Side) {
	rt := o.rt[side]
	iat := rt.current().IAT
	if iat.IsNone() {
		rt.armed = false
		return
	}
	now, delay := o.cb.Now(), iat.Sample(rt.rng)
	if delay > math.MaxInt64-now {
		rt.deadline = math.MaxInt64
	} else {
		rt.deadline = now + delay
	}
	rt.armed = true
}

// transition follows event out of the current state. It reports whether the
// machine changed state (or ended).
func (o *Observer) transition(side sim.Side, event string) bool {
	rt := o.rt[side]
	if rt == nil || !rt.active {
		return false
	}
	target, ok := rt.transitions[rt.state][event]
	if !ok {
		return false
	}
	if target == StateEnd {
		o.stop(side)
		return true
	}
	o.enter(side, rt.index[target])
	return true
}

func (o *Observer) firePadding(side sim.Side) {
	rt := o.rt[side]
	rt.armed = false
	o.paddingSent[side]++
	// The cell leaves at the clock padding_sent is stamped with; the emit
	// nudges the clock afterwards.
	o.cb.SendCell(side, sim.NewCell(sim.RelayCommandDrop))
	o.emit(side, sim.LabelPaddingSent)

	limited := rt.current().Length > 0
	if limited {
		rt.remaining--
	}
	if o.transition(side, EventPaddingSent) {
		return
	}
	if limited && rt.remaining <= 0 {
		// Out of budget: idle until an event moves the machine on.
		o.transition(side, EventLengthCount)
		return
	}
	o.schedule(side)
}
