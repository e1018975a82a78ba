package trace

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/circpad-sim/circpad-sim/sim"
	"github.com/circpad-sim/circpad-sim/sim/internal/testutil"
)

const sampleClientTrace = `0000000000000000 circpad_machine_event_circ_added_hop
0000000000000100 circpad_cell_event_nonpadding_sent
0000000000000200 circpad_cell_event_nonpadding_received
0000000000000300 circpad_machine_event_circ_built
`

func TestLoad_RecognisedLabels_QueuedInOrder(t *testing.T) {
	// GIVEN a trace with four recognised lines
	var seq sim.Sequencer

	// WHEN loaded
	q, err := Load(strings.NewReader(sampleClientTrace), &seq, LoadOptions{})

	// THEN all four events are queued in timestamp order with their kinds
	require.NoError(t, err)
	events := q.Events()
	require.Len(t, events, 4)
	wantKinds := []sim.EventKind{sim.KindHopAdded, sim.KindNonPaddingSent, sim.KindNonPaddingReceived, sim.KindCircuitBuilt}
	for i, e := range events {
		assert.Equal(t, wantKinds[i], e.Kind, "event %d", i)
		assert.Equal(t, int64(i*100), e.Timestamp, "event %d", i)
		assert.Equal(t, wantKinds[i].Label(), e.Label, "event %d", i)
	}
}

func TestLoad_SharedSequencer_NumbersContinueAcrossTraces(t *testing.T) {
	// GIVEN one sequencer shared by two loads
	var seq sim.Sequencer
	client, err := Load(strings.NewReader(sampleClientTrace), &seq, LoadOptions{})
	require.NoError(t, err)

	// WHEN a second trace is loaded with it
	relay, err := Load(strings.NewReader("0 circpad_cell_event_nonpadding_received\n"), &seq, LoadOptions{})
	require.NoError(t, err)

	// THEN the relay event's sequence follows the client's last one
	assert.Equal(t, uint64(3), client.Events()[3].Sequence)
	assert.Equal(t, uint64(4), relay.Peek().Sequence)
}

func TestLoad_UnknownLines_PolicyDecides(t *testing.T) {
	input := "10 circpad_cell_event_nonpadding_sent\n20 some_other_event with args\n"

	tests := []struct {
		name      string
		policy    UnknownPolicy
		wantLen   int
		wantLabel string
	}{
		{name: "default passes through", policy: "", wantLen: 2, wantLabel: "some_other_event with args"},
		{name: "pass", policy: UnknownPassThrough, wantLen: 2, wantLabel: "some_other_event with args"},
		{name: "drop", policy: UnknownDrop, wantLen: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seq sim.Sequencer
			q, err := Load(strings.NewReader(input), &seq, LoadOptions{Unknown: tt.policy})
			require.NoError(t, err)
			events := q.Events()
			require.Len(t, events, tt.wantLen)
			if tt.wantLabel != "" {
				assert.Equal(t, sim.KindUnknown, events[1].Kind)
				assert.Equal(t, tt.wantLabel, events[1].Label)
				assert.Equal(t, int64(20), events[1].Timestamp)
			}
		})
	}
}

func TestLoad_NoRecognisedLabel_ReturnsErrNoEvents(t *testing.T) {
	// GIVEN a trace of only unrecognised and blank lines
	input := "10 hello\n\n20 world\n"
	var seq sim.Sequencer

	// WHEN loaded
	_, err := Load(strings.NewReader(input), &seq, LoadOptions{})

	// THEN ErrNoEvents is returned
	assert.True(t, errors.Is(err, ErrNoEvents), "got %v", err)
}

func TestLoad_EmptyInput_ReturnsErrNoEvents(t *testing.T) {
	var seq sim.Sequencer
	_, err := Load(strings.NewReader(""), &seq, LoadOptions{})
	assert.ErrorIs(t, err, ErrNoEvents)
}

func TestLoad_NegativeTimestamp_ReturnsError(t *testing.T) {
	var seq sim.Sequencer
	_, err := Load(strings.NewReader("-5 circpad_cell_event_nonpadding_sent\n"), &seq, LoadOptions{})
	assert.ErrorIs(t, err, ErrNegativeTimestamp)
}

func TestLoad_Rebase_SubtractsFirstTimestamp(t *testing.T) {
	// GIVEN absolute timestamps starting at 5000
	input := "5000 circpad_cell_event_nonpadding_sent\n5250 circpad_cell_event_nonpadding_received\n"
	var seq sim.Sequencer

	// WHEN loaded with Rebase
	q, err := Load(strings.NewReader(input), &seq, LoadOptions{Rebase: true})

	// THEN timestamps start at zero
	require.NoError(t, err)
	events := q.Events()
	assert.Equal(t, int64(0), events[0].Timestamp)
	assert.Equal(t, int64(250), events[1].Timestamp)
}

func TestLoad_NilSequencer_ReturnsError(t *testing.T) {
	_, err := Load(strings.NewReader(sampleClientTrace), nil, LoadOptions{})
	assert.Error(t, err)
}

func TestLoad_LabelWithoutTimestamp_ParsesAsZero(t *testing.T) {
	// GIVEN a recognised label on a line with no leading number
	var seq sim.Sequencer

	// WHEN loaded
	q, err := Load(strings.NewReader("circpad_cell_event_padding_sent\n"), &seq, LoadOptions{})

	// THEN it is queued at time zero
	require.NoError(t, err)
	assert.Equal(t, int64(0), q.Peek().Timestamp)
	assert.Equal(t, sim.KindPaddingSent, q.Peek().Kind)
}

func TestParseLeadingInt(t *testing.T) {
	tests := []struct {
		line     string
		wantTS   int64
		wantRest string
	}{
		{line: "0000000000000100 x", wantTS: 100, wantRest: " x"},
		{line: "  42\tlabel", wantTS: 42, wantRest: "\tlabel"},
		{line: "-12abc", wantTS: -12, wantRest: "abc"},
		{line: "+7 y", wantTS: 7, wantRest: " y"},
		{line: "abc", wantTS: 0, wantRest: "abc"},
		{line: "-", wantTS: 0, wantRest: "-"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			ts, rest := parseLeadingInt(tt.line)
			assert.Equal(t, tt.wantTS, ts)
			assert.Equal(t, tt.wantRest, rest)
		})
	}
}

func TestIsValidUnknownPolicy(t *testing.T) {
	assert.True(t, IsValidUnknownPolicy("pass"))
	assert.True(t, IsValidUnknownPolicy("drop"))
	assert.True(t, IsValidUnknownPolicy(""))
	assert.False(t, IsValidUnknownPolicy("keep"))
}

func TestLoadFile_ReadsTraceFromDisk(t *testing.T) {
	// GIVEN a trace file with an unknown line between two events
	path := testutil.NewTrace().
		Add(500, sim.LabelHopAdded).
		Raw("0000000000000600 connection_ap_handshake_send_begin example.com").
		Add(700, sim.LabelNonPaddingSent).
		WriteFile(t, t.TempDir(), "client.trace")

	// WHEN loaded with rebasing
	var seq sim.Sequencer
	q, err := LoadFile(path, &seq, LoadOptions{Rebase: true})

	// THEN timestamps start at zero and the unknown line is kept
	require.NoError(t, err)
	events := q.Events()
	require.Len(t, events, 3)
	assert.Equal(t, []int64{0, 100, 200}, []int64{events[0].Timestamp, events[1].Timestamp, events[2].Timestamp})
	assert.Equal(t, sim.KindUnknown, events[1].Kind)
	assert.Equal(t, "connection_ap_handshake_send_begin example.com", events[1].Label)
}

func TestLoadFile_Missing_ReturnsError(t *testing.T) {
	var seq sim.Sequencer
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.trace"), &seq, LoadOptions{})
	assert.Error(t, err)
}
