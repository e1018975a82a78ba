package sim

import "strings"

// EventKind is the closed set of events the simulator understands.
type EventKind int

const (
	// KindUnknown covers trace lines that carry no recognised label.
	// Unknown records are passed through to the output unchanged.
	KindUnknown EventKind = iota

	// Cell events.
	KindPaddingSent
	KindPaddingReceived
	KindNonPaddingSent
	KindNonPaddingReceived

	// Circuit lifecycle events.
	KindHopAdded
	KindCircuitBuilt
	KindHasStreams
	KindHasNoStreams
	KindPurposeChanged
	KindNoRelayEarly

	// Simulator-internal events, never present in recorded traces.
	KindNegotiateRequest
	KindNegotiateReply
)

// Labels as instrumented in the host networking stack.
const (
	LabelPaddingSent        = "circpad_cell_event_padding_sent"
	LabelPaddingReceived    = "circpad_cell_event_padding_received"
	LabelNonPaddingSent     = "circpad_cell_event_nonpadding_sent"
	LabelNonPaddingReceived = "circpad_cell_event_nonpadding_received"
	LabelHopAdded           = "circpad_machine_event_circ_added_hop"
	LabelCircuitBuilt       = "circpad_machine_event_circ_built"
	LabelHasStreams         = "circpad_machine_event_circ_has_streams"
	LabelHasNoStreams       = "circpad_machine_event_circ_has_no_streams"
	LabelPurposeChanged     = "circpad_machine_event_circ_purpose_changed"
	LabelNoRelayEarly       = "circpad_machine_event_circ_has_no_relay_early"
	LabelNegotiateRequest   = "circpad_sim_negotiate"
	LabelNegotiateReply     = "circpad_sim_negotiated"
)

var kindLabels = map[EventKind]string{
	KindPaddingSent:        LabelPaddingSent,
	KindPaddingReceived:    LabelPaddingReceived,
	KindNonPaddingSent:     LabelNonPaddingSent,
	KindNonPaddingReceived: LabelNonPaddingReceived,
	KindHopAdded:           LabelHopAdded,
	KindCircuitBuilt:       LabelCircuitBuilt,
	KindHasStreams:         LabelHasStreams,
	KindHasNoStreams:       LabelHasNoStreams,
	KindPurposeChanged:     LabelPurposeChanged,
	KindNoRelayEarly:       LabelNoRelayEarly,
	KindNegotiateRequest:   LabelNegotiateRequest,
	KindNegotiateReply:     LabelNegotiateReply,
}

var kindNames = map[EventKind]string{
	KindUnknown:            "unknown",
	KindPaddingSent:        "padding-sent",
	KindPaddingReceived:    "padding-received",
	KindNonPaddingSent:     "nonpadding-sent",
	KindNonPaddingReceived: "nonpadding-received",
	KindHopAdded:           "hop-added",
	KindCircuitBuilt:       "circuit-built",
	KindHasStreams:         "has-streams",
	KindHasNoStreams:       "has-no-streams",
	KindPurposeChanged:     "purpose-changed",
	KindNoRelayEarly:       "no-relay-early",
	KindNegotiateRequest:   "negotiate-request",
	KindNegotiateReply:     "negotiate-reply",
}

// recordedMatchOrder lists the labels a recorded trace may carry, most
// frequent first. Order matters only for speed: no label is a substring of
// another.
var recordedMatchOrder = []EventKind{
	KindNonPaddingReceived,
	KindNonPaddingSent,
	KindPaddingReceived,
	KindPaddingSent,
	KindHopAdded,
	KindCircuitBuilt,
	KindHasStreams,
	KindHasNoStreams,
	KindPurposeChanged,
	KindNoRelayEarly,
}

func (k EventKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Label returns the instrumented label for k, or "" for KindUnknown.
func (k EventKind) Label() string {
	return kindLabels[k]
}

// IsCell reports whether k is one of the four cell-level events.
func (k EventKind) IsCell() bool {
	switch k {
	case KindPaddingSent, KindPaddingReceived, KindNonPaddingSent, KindNonPaddingReceived:
		return true
	}
	return false
}

// IsRecorded reports whether k may appear in a recorded trace.
func (k EventKind) IsRecorded() bool {
	return k != KindUnknown && k != KindNegotiateRequest && k != KindNegotiateReply
}

// KindFromLabel maps an exact label back to its kind.
func KindFromLabel(label string) EventKind {
	for k, l := range kindLabels {
		if l == label {
			return k
		}
	}
	return KindUnknown
}

// MatchLabel searches line for a recorded event label.
func MatchLabel(line string) (EventKind, bool) {
	for _, k := range recordedMatchOrder {
		if strings.Contains(line, kindLabels[k]) {
			return k, true
		}
	}
	return KindUnknown, false
}

// Event is one simulation event. Once pushed into a TimedQueue it is never
// mutated; it is popped and consumed exactly once.
type Event struct {
	Kind      EventKind
	Timestamp int64  // ns relative to simulation start
	Label     string // original text, kept for export and pass-through
	Payload   []byte // cell bytes for cell-carrying events, nil otherwise
	Sequence  uint64 // tie-break for equal timestamps
}

// NewEvent creates an event whose label is the canonical label of kind.
func NewEvent(kind EventKind, timestamp int64, seq uint64) *Event {
	return &Event{
		Kind:      kind,
		Timestamp: timestamp,
		Label:     kind.Label(),
		Sequence:  seq,
	}
}

// Before reports whether e orders strictly before other.
func (e *Event) Before(other *Event) bool {
	if e.Timestamp != other.Timestamp {
		return e.Timestamp < other.Timestamp
	}
	return e.Sequence < other.Sequence
}
