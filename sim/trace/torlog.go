package trace

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/circpad-sim/circpad-sim/sim"
)

// Markers of the instrumented host log.
const (
	logMarker       = "circpad_trace_event"
	logTimestamp    = "timestamp="
	logCircuitID    = "client_circ_id="
	logEvent        = "event="
	logSourceClient = "source=client"
	logSourceRelay  = "source=relay"

	addressEvent          = "connection_ap_handshake_send_begin"
	negotiateLoggingEvent = "circpad_negotiate_logging"
)

// BlacklistedAddresses are destinations whose circuits are background
// traffic of the host rather than the visit being traced.
var BlacklistedAddresses = []string{"aus1.torproject.org"}

// ExtractOptions controls ExtractLogTraces.
type ExtractOptions struct {
	SourceClient bool // keep lines logged by the client
	SourceRelay  bool // keep lines logged by the relay
	AllowIPs     bool // keep circuits whose only destinations are IP literals
}

// DefaultExtractOptions keeps both sources and filters nothing optional.
func DefaultExtractOptions() ExtractOptions {
	return ExtractOptions{SourceClient: true, SourceRelay: true}
}

// Circuit is the trace of one circuit found in a host log.
type Circuit struct {
	ID      string
	Source  string // "client", "relay" or "" when the line carried no source
	Records []Record
}

// ExtractLogTraces groups the instrumented lines of a host log by circuit.
// Timestamps are made relative to the first kept line of the log. Circuits
// visiting a blacklisted address, or (unless AllowIPs) only IP literals, are
// dropped. Circuits are returned in order of first appearance.
func ExtractLogTraces(lines []string, opts ExtractOptions) ([]*Circuit, error) {
	byID := make(map[string]*Circuit)
	var order []*Circuit
	base, haveBase := int64(0), false

	for i, line := range lines {
		if !strings.Contains(line, logMarker) {
			continue
		}
		isClient := strings.Contains(line, logSourceClient)
		isRelay := strings.Contains(line, logSourceRelay)
		if !opts.SourceClient && isClient {
			continue
		}
		if !opts.SourceRelay && isRelay {
			continue
		}

		cid, ts, event, err := extractLine(line)
		if err != nil {
			return nil, fmt.Errorf("log line %d: %w", i+1, err)
		}
		if !haveBase {
			base, haveBase = ts, true
		}

		c, ok := byID[cid]
		if !ok {
			c = &Circuit{ID: cid}
			switch {
			case isClient:
				c.Source = "client"
			case isRelay:
				c.Source = "relay"
			}
			byID[cid] = c
			order = append(order, c)
		}
		c.Records = append(c.Records, Record{Timestamp: ts - base, Label: event})
	}

	kept := order[:0]
	for _, c := range order {
		addrs, err := addresses(c.Records)
		if err != nil {
			return nil, fmt.Errorf("circuit %s: %w", c.ID, err)
		}
		if blacklisted(addrs) {
			continue
		}
		if !opts.AllowIPs && onlyIPs(addrs) {
			continue
		}
		c.Records = removeNegotiateLogging(c.Records)
		kept = append(kept, c)
	}
	return kept, nil
}

// LongestCircuit returns the circuit with the most records, its records
// rebased to its own first timestamp, and the rest in their original order.
func LongestCircuit(circuits []*Circuit) (*Circuit, []*Circuit) {
	if len(circuits) == 0 {
		return nil, nil
	}
	best := 0
	for i, c := range circuits {
		if len(c.Records) > len(circuits[best].Records) {
			best = i
		}
	}
	others := make([]*Circuit, 0, len(circuits)-1)
	for i, c := range circuits {
		if i != best {
			others = append(others, c)
		}
	}

	src := circuits[best]
	out := &Circuit{ID: src.ID, Source: src.Source, Records: make([]Record, len(src.Records))}
	for i, r := range src.Records {
		out.Records[i] = Record{Timestamp: r.Timestamp - src.Records[0].Timestamp, Label: r.Label}
	}
	return out, others
}

func extractLine(line string) (string, int64, string, error) {
	tsField, ok := fieldAfter(line, logTimestamp)
	if !ok {
		return "", 0, "", fmt.Errorf("%w: missing %q", ErrWrongFormat, logTimestamp)
	}
	ts, err := strconv.ParseInt(tsField, 10, 64)
	if err != nil {
		return "", 0, "", fmt.Errorf("%w: timestamp %q", ErrWrongFormat, tsField)
	}
	cid, ok := fieldAfter(line, logCircuitID)
	if !ok {
		return "", 0, "", fmt.Errorf("%w: missing %q", ErrWrongFormat, logCircuitID)
	}
	n := strings.Index(line, logEvent)
	if n < 0 {
		return "", 0, "", fmt.Errorf("%w: missing %q", ErrWrongFormat, logEvent)
	}
	// The event is the rest of the line and may contain spaces.
	return cid, ts, strings.TrimSpace(line[n+len(logEvent):]), nil
}

func fieldAfter(line, key string) (string, bool) {
	n := strings.Index(line, key)
	if n < 0 {
		return "", false
	}
	v := line[n+len(key):]
	if sp := strings.IndexByte(v, ' '); sp >= 0 {
		v = v[:sp]
	}
	return v, true
}

func addresses(records []Record) ([]string, error) {
	var out []string
	for _, r := range records {
		if !strings.Contains(r.Label, addressEvent) {
			continue
		}
		fields := strings.Fields(r.Label)
		if len(fields) < 2 {
			return nil, fmt.Errorf("%w: %q has no address", ErrWrongFormat, r.Label)
		}
		out = append(out, fields[1])
	}
	return out, nil
}

func blacklisted(addrs []string) bool {
	for _, a := range addrs {
		for _, b := range BlacklistedAddresses {
			if a == b {
				return true
			}
		}
	}
	return false
}

// onlyIPs is vacuously true for a circuit without any destination.
func onlyIPs(addrs []string) bool {
	for _, a := range addrs {
		if net.ParseIP(a) == nil {
			return false
		}
	}
	return true
}

// removeNegotiateLogging drops negotiate-logging events together with the
// non-padding send each of them announces. The first non-padding send of
// the circuit is the padding negotiation and goes as well.
func removeNegotiateLogging(records []Record) []Record {
	out := make([]Record, 0, len(records))
	ignoreNextSend := true
	for _, r := range records {
		if r.Label == negotiateLoggingEvent {
			ignoreNextSend = true
			continue
		}
		if ignoreNextSend && strings.Contains(r.Label, sim.LabelNonPaddingSent) {
			ignoreNextSend = false
			continue
		}
		out = append(out, r)
	}
	return out
}

// ReadLogFile reads the lines of a (possibly compressed) host log.
func ReadLogFile(path string) ([]string, error) {
	rc, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	var lines []string
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading log %q: %w", path, err)
	}
	return lines, nil
}
