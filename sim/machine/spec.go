// Package machine implements a configurable padding state machine that plugs
// into the simulator as its PaddingObserver. Machines are described in YAML
// or Lua: a list of states, each with an inter-arrival-time distribution for
// padding cells, an optional padding budget and event-driven transitions.
package machine

import (
	"fmt"
	"strings"
)

// Machine events that can drive a transition.
const (
	EventNonPaddingSent     = "nonpadding_sent"
	EventNonPaddingReceived = "nonpadding_received"
	EventPaddingSent        = "padding_sent"
	EventPaddingReceived    = "padding_received"
	EventLengthCount        = "length_count"
)

// StateEnd is the reserved transition target that stops the machine.
const StateEnd = "end"

var machineEvents = []string{
	EventNonPaddingSent,
	EventNonPaddingReceived,
	EventPaddingSent,
	EventPaddingReceived,
	EventLengthCount,
}

// canonicalEvent maps an event name to its canonical spelling. Case and
// underscores are ignored so that Lua tables, whose keys arrive camel-cased,
// and YAML documents name events the same way.
func canonicalEvent(name string) (string, bool) {
	key := strings.ToLower(strings.ReplaceAll(name, "_", ""))
	for _, ev := range machineEvents {
		if strings.ReplaceAll(ev, "_", "") == key {
			return ev, true
		}
	}
	return "", false
}

// Machines is a machine configuration: at most one machine per side, and the
// index the client announces when negotiating.
type Machines struct {
	Index  uint8        `yaml:"index"`
	Client *MachineSpec `yaml:"client"`
	Relay  *MachineSpec `yaml:"relay"`
}

// MachineSpec describes one padding machine.
type MachineSpec struct {
	Name    string      `yaml:"name"`
	Side    string      `yaml:"side"`
	MinHops int         `yaml:"min_hops"` // client only: hops required before negotiating
	States  []StateSpec `yaml:"states"`
}

// StateSpec describes one machine state.
type StateSpec struct {
	Name   string            `yaml:"name"`
	IAT    DistSpec          `yaml:"iat"`    // delay before the next padding cell
	Length int               `yaml:"length"` // padding cells to send in this state, 0 = unlimited
	Next   map[string]string `yaml:"next"`   // event -> target state
}

// Validate checks both machines and fills in their sides.
func (m *Machines) Validate() error {
	if m.Client == nil && m.Relay == nil {
		return fmt.Errorf("no machine configured; need client, relay or both")
	}
	if m.Client != nil {
		if err := m.Client.validate("client"); err != nil {
			return err
		}
	}
	if m.Relay != nil {
		if err := m.Relay.validate("relay"); err != nil {
			return err
		}
	}
	return nil
}

// MinHops returns the hop count at which the client negotiates padding.
func (m *Machines) MinHops() int {
	if m.Client != nil {
		return m.Client.MinHops
	}
	if m.Relay != nil {
		return m.Relay.MinHops
	}
	return 0
}

func (s *MachineSpec) validate(side string) error {
	prefix := fmt.Sprintf("%s machine %q", side, s.Name)
	if s.Name == "" {
		return fmt.Errorf("%s machine: name is required", side)
	}
	switch s.Side {
	case "":
		s.Side = side
	case side:
	default:
		return fmt.Errorf("%s: declared side %q", prefix, s.Side)
	}
	if s.MinHops < 0 {
		return fmt.Errorf("%s: min_hops must be non-negative, got %d", prefix, s.MinHops)
	}
	if len(s.States) == 0 {
		return fmt.Errorf("%s: at least one state required", prefix)
	}

	names := make(map[string]bool, len(s.States))
	for i, st := range s.States {
		if st.Name == "" {
			return fmt.Errorf("%s: state[%d] has no name", prefix, i)
		}
		if st.Name == StateEnd {
			return fmt.Errorf("%s: state name %q is reserved", prefix, StateEnd)
		}
		if names[st.Name] {
			return fmt.Errorf("%s: duplicate state %q", prefix, st.Name)
		}
		names[st.Name] = true
	}
	for i := range s.States {
		if err := s.States[i].validate(names); err != nil {
			return fmt.Errorf("%s: state %q: %w", prefix, s.States[i].Name, err)
		}
	}
	return nil
}

func (st *StateSpec) validate(states map[string]bool) error {
	if st.Length < 0 {
		return fmt.Errorf("length must be non-negative, got %d", st.Length)
	}
	if err := st.IAT.Validate(); err != nil {
		return fmt.Errorf("iat: %w", err)
	}
	for ev, target := range st.Next {
		if _, ok := canonicalEvent(ev); !ok {
			return fmt.Errorf("unknown event %q; valid: %s", ev, strings.Join(machineEvents, ", "))
		}
		if target != StateEnd && !states[target] {
			return fmt.Errorf("event %q targets unknown state %q", ev, target)
		}
	}
	return nil
}

// transitions returns Next keyed by canonical event name.
func (st *StateSpec) transitions() map[string]string {
	out := make(map[string]string, len(st.Next))
	for ev, target := range st.Next {
		if c, ok := canonicalEvent(ev); ok {
			out[c] = target
		}
	}
	return out
}
