package sim

import "fmt"

// Side identifies one endpoint of the simulated circuit.
type Side int

const (
	SideClient Side = iota
	SideRelay
)

// Circuit identifiers used by the event callback. The relay side always
// reports zero.
const (
	ClientCircuitID uint32 = 1
	RelayCircuitID  uint32 = 0
)

func (s Side) String() string {
	switch s {
	case SideClient:
		return "client"
	case SideRelay:
		return "relay"
	}
	return fmt.Sprintf("side(%d)", int(s))
}

// Other returns the opposite side.
func (s Side) Other() Side {
	if s == SideClient {
		return SideRelay
	}
	return SideClient
}

// CircuitID returns the identifier the side reports through EmitEvent.
func (s Side) CircuitID() uint32 {
	if s == SideRelay {
		return RelayCircuitID
	}
	return ClientCircuitID
}

// SideFromCircuitID maps an event-callback circuit identifier to a side:
// zero is the relay, anything else the client.
func SideFromCircuitID(id uint32) Side {
	if id == RelayCircuitID {
		return SideRelay
	}
	return SideClient
}

// Relay commands carried in the first payload byte of a cell.
const (
	RelayCommandData              byte = 2
	RelayCommandDrop              byte = 10
	RelayCommandPaddingNegotiate  byte = 41
	RelayCommandPaddingNegotiated byte = 42
)

// Cell is the fixed-format unit carried over a circuit.
type Cell struct {
	Payload []byte
}

// NewCell builds a cell with the given relay command followed by body.
func NewCell(command byte, body ...byte) Cell {
	payload := make([]byte, 0, 1+len(body))
	payload = append(payload, command)
	payload = append(payload, body...)
	return Cell{Payload: payload}
}

// Command returns the relay command, or 0 for an empty payload.
func (c Cell) Command() byte {
	if len(c.Payload) == 0 {
		return 0
	}
	return c.Payload[0]
}

// Clone returns a cell with its own copy of the payload.
func (c Cell) Clone() Cell {
	if c.Payload == nil {
		return Cell{}
	}
	p := make([]byte, len(c.Payload))
	copy(p, c.Payload)
	return Cell{Payload: p}
}

// Circuit is the per-side circuit state the engine maintains while replaying
// lifecycle events.
type Circuit struct {
	ID         uint32
	Side       Side
	Hops       int
	Opened     bool
	HasStreams bool
	RelayEarly bool
	Purpose    string
}

func newCircuit(side Side) *Circuit {
	purpose := "general"
	if side == SideRelay {
		purpose = "or"
	}
	return &Circuit{
		ID:         side.CircuitID(),
		Side:       side,
		RelayEarly: true,
		Purpose:    purpose,
	}
}

// AddHop extends the circuit's path by one hop.
func (c *Circuit) AddHop() {
	c.Hops++
}

// MarkOpened records that the circuit finished building.
func (c *Circuit) MarkOpened() {
	c.Opened = true
}

// SetHasStreams toggles stream presence.
func (c *Circuit) SetHasStreams(has bool) {
	c.HasStreams = has
}

// ClearRelayEarly records that no RELAY_EARLY cells remain.
func (c *Circuit) ClearRelayEarly() {
	c.RelayEarly = false
}
