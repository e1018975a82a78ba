package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/circpad-sim/circpad-sim/sim"
	"github.com/circpad-sim/circpad-sim/sim/trace"
)

func hostLogLine(ts int64, cid, event string) string {
	return fmt.Sprintf("Oct 18 09:30:00.000 [info] circpad_trace_event(): timestamp=%d source=client client_circ_id=%s event=%s",
		ts, cid, event)
}

func writeLines(t *testing.T, path string, lines ...string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func writeTraces(t *testing.T, dir string, traces map[string][]trace.Record) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, records := range traces {
		require.NoError(t, trace.WriteFile(filepath.Join(dir, name), records))
	}
}

func TestConvertTorlogDir_WritesLongestCircuit(t *testing.T) {
	// GIVEN a log with a visit circuit and a shorter side circuit
	in, out := t.TempDir(), filepath.Join(t.TempDir(), "traces")
	writeLines(t, filepath.Join(in, "visit.log"),
		"Oct 18 09:30:00.000 [notice] Tor has successfully opened a circuit.",
		hostLogLine(5000, "3", "connection_ap_handshake_send_begin example.org"),
		hostLogLine(5100, "3", sim.LabelNonPaddingSent),
		hostLogLine(5200, "4", "connection_ap_handshake_send_begin example.com"),
		hostLogLine(5250, "3", sim.LabelNonPaddingSent),
		hostLogLine(5300, "3", sim.LabelNonPaddingReceived),
	)

	// WHEN the directory is converted
	n, err := convertTorlogDir(in, out, trace.DefaultExtractOptions())

	// THEN the trace holds the longest circuit without its negotiation send
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err := trace.ReadRecordsFile(filepath.Join(out, "visit.log"))
	require.NoError(t, err)
	assert.Equal(t, []trace.Record{
		{Timestamp: 0, Label: "connection_ap_handshake_send_begin example.org"},
		{Timestamp: 250, Label: sim.LabelNonPaddingSent},
		{Timestamp: 300, Label: sim.LabelNonPaddingReceived},
	}, got)
}

func TestConvertTorlogDir_NoValidCircuit_ReturnsError(t *testing.T) {
	// GIVEN a log whose only circuit is blacklisted
	in, out := t.TempDir(), t.TempDir()
	writeLines(t, filepath.Join(in, "update.log"),
		hostLogLine(100, "8", "connection_ap_handshake_send_begin aus1.torproject.org"),
		hostLogLine(200, "8", sim.LabelNonPaddingSent),
	)

	// WHEN converted
	n, err := convertTorlogDir(in, out, trace.DefaultExtractOptions())

	// THEN the conversion fails and nothing is written
	assert.ErrorIs(t, err, errNoValidCircuit)
	assert.Equal(t, 0, n)
	_, statErr := os.Stat(filepath.Join(out, "update.log"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestConvertTorlogDir_RefusesToOverwrite(t *testing.T) {
	// GIVEN a directory already converted once
	in, out := t.TempDir(), t.TempDir()
	writeLines(t, filepath.Join(in, "visit.log"),
		hostLogLine(1, "3", "connection_ap_handshake_send_begin example.org"),
		hostLogLine(2, "3", sim.LabelNonPaddingSent),
	)
	_, err := convertTorlogDir(in, out, trace.DefaultExtractOptions())
	require.NoError(t, err)

	// WHEN converted again into the same output
	_, err = convertTorlogDir(in, out, trace.DefaultExtractOptions())

	// THEN the existing trace is kept
	assert.ErrorIs(t, err, errOutputExists)
}

func TestConvertTorlogDir_MissingInput_ReturnsError(t *testing.T) {
	_, err := convertTorlogDir(filepath.Join(t.TempDir(), "nope"), t.TempDir(), trace.DefaultExtractOptions())
	assert.Error(t, err)
}

func TestExportWFDir_Formats(t *testing.T) {
	records := []trace.Record{
		{Timestamp: 0, Label: sim.LabelHopAdded},
		{Timestamp: 10, Label: sim.LabelNonPaddingSent},
		{Timestamp: 20, Label: sim.LabelNonPaddingReceived},
		{Timestamp: 30, Label: sim.LabelPaddingSent},
	}
	tests := []struct {
		format trace.WFFormat
		want   string
	}{
		{trace.WFFormatCells, "1\n-1\n1\n"},
		{trace.WFFormatTimeCells, "10 1\n20 -1\n30 1\n"},
		{trace.WFFormatDirTime, "10\n-20\n30\n"},
	}
	for _, tc := range tests {
		t.Run(string(tc.format), func(t *testing.T) {
			// GIVEN a directory holding one trace
			in, out := t.TempDir(), t.TempDir()
			writeTraces(t, in, map[string][]trace.Record{"site-0": records})

			// WHEN exported
			n, err := exportWFDir(in, out, tc.format)

			// THEN one file per trace holds one line per cell
			require.NoError(t, err)
			assert.Equal(t, 1, n)
			data, err := os.ReadFile(filepath.Join(out, "site-0"))
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(data))
		})
	}
}

func TestExportWFDir_ExistingOutput_RefusesToOverwrite(t *testing.T) {
	// GIVEN an output directory that already holds the exported name
	in, out := t.TempDir(), t.TempDir()
	writeTraces(t, in, map[string][]trace.Record{"site-0": {{Timestamp: 1, Label: sim.LabelNonPaddingSent}}})
	writeLines(t, filepath.Join(out, "site-0"), "keep me")

	// WHEN exported into it
	n, err := exportWFDir(in, out, trace.WFFormatCells)

	// THEN the export fails and the file is untouched
	assert.ErrorIs(t, err, errOutputExists)
	assert.Equal(t, 0, n)
	data, err := os.ReadFile(filepath.Join(out, "site-0"))
	require.NoError(t, err)
	assert.Equal(t, "keep me\n", string(data))
}

func TestExportWFDir_CompressedName_WritesCompressed(t *testing.T) {
	// GIVEN a gzip-compressed trace
	in, out := t.TempDir(), t.TempDir()
	writeTraces(t, in, map[string][]trace.Record{"site-0.gz": {
		{Timestamp: 10, Label: sim.LabelNonPaddingSent},
		{Timestamp: 20, Label: sim.LabelNonPaddingReceived},
	}})

	// WHEN exported
	n, err := exportWFDir(in, out, trace.WFFormatCells)

	// THEN the output under the same name is gzip, not plain text
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	raw, err := os.ReadFile(filepath.Join(out, "site-0.gz"))
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(raw), 2)
	assert.Equal(t, []byte{0x1f, 0x8b}, raw[:2], "gzip magic")
	assert.NotEqual(t, "1\n-1\n", string(raw))
}

func TestExportWFDir_UnknownFormat_ReturnsError(t *testing.T) {
	in := t.TempDir()
	writeTraces(t, in, map[string][]trace.Record{"a": {{Timestamp: 1, Label: sim.LabelNonPaddingSent}}})
	_, err := exportWFDir(in, t.TempDir(), "bogus")
	assert.Error(t, err)
}

func TestOverheadForDir_AveragesPerTrace(t *testing.T) {
	// GIVEN one padded and one unpadded trace
	dir := t.TempDir()
	writeTraces(t, dir, map[string][]trace.Record{
		"padded": {
			{Timestamp: 1, Label: sim.LabelNonPaddingSent},
			{Timestamp: 2, Label: sim.LabelNonPaddingReceived},
			{Timestamp: 3, Label: sim.LabelPaddingSent},
		},
		"plain": {
			{Timestamp: 1, Label: sim.LabelNonPaddingSent},
			{Timestamp: 2, Label: sim.LabelNonPaddingReceived},
		},
	})

	// WHEN summarized
	s, err := overheadForDir(dir)

	// THEN ratios are averaged over traces
	require.NoError(t, err)
	assert.Equal(t, 2, s.Traces)
	assert.Equal(t, 5, s.TotalCells)
	assert.InDelta(t, 1.5, s.AvgSentOverhead, 1e-9)
	assert.InDelta(t, 1.0, s.AvgRecvOverhead, 1e-9)
	assert.InDelta(t, 1.25, s.AvgTotalOverhead, 1e-9)
}

func TestOverheadForDir_NoNonPadding_ReturnsError(t *testing.T) {
	dir := t.TempDir()
	writeTraces(t, dir, map[string][]trace.Record{"sendonly": {{Timestamp: 1, Label: sim.LabelNonPaddingSent}}})
	_, err := overheadForDir(dir)
	assert.ErrorIs(t, err, trace.ErrNoNonPadding)
}

func TestRunBatch_PairsBySortedNameWithPerPairSeed(t *testing.T) {
	// GIVEN two client and two relay traces
	root := t.TempDir()
	clients, relays, out := filepath.Join(root, "c"), filepath.Join(root, "r"), filepath.Join(root, "out")
	writeTraces(t, clients, map[string][]trace.Record{"b.trace": clientRecords(), "a.trace": clientRecords()})
	writeTraces(t, relays, map[string][]trace.Record{"b.trace": relayRecords(), "a.trace": relayRecords()})
	base := runOptions{Seed: 100, LatencyScale: 1, TimerStep: 10, Unknown: string(trace.UnknownPassThrough)}

	// WHEN the batch runs
	summaries, err := runBatch(clients, relays, out, base)

	// THEN each pair runs in name order with seed base+index
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, filepath.Join(clients, "a.trace"), summaries[0].ClientTrace)
	assert.Equal(t, int64(100), summaries[0].Seed)
	assert.Equal(t, filepath.Join(clients, "b.trace"), summaries[1].ClientTrace)
	assert.Equal(t, int64(101), summaries[1].Seed)
	for _, name := range []string{"a.trace", "b.trace"} {
		_, err := os.Stat(filepath.Join(out, name, summaryFile))
		assert.NoError(t, err, name)
	}
}

func TestRunBatch_UnequalCounts_ReturnsError(t *testing.T) {
	root := t.TempDir()
	clients, relays := filepath.Join(root, "c"), filepath.Join(root, "r")
	writeTraces(t, clients, map[string][]trace.Record{"a": clientRecords(), "b": clientRecords()})
	writeTraces(t, relays, map[string][]trace.Record{"a": relayRecords()})

	_, err := runBatch(clients, relays, filepath.Join(root, "out"), runOptions{})
	assert.ErrorContains(t, err, "2 client traces but 1 relay traces")
}
