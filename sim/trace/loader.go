// Package trace reads and writes circuit-padding traces: the line-oriented
// "<timestamp> <label>" files the simulator consumes and produces, the
// instrumented host logs they are extracted from, and the derived formats
// used for website-fingerprinting and overhead analysis.
package trace

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/circpad-sim/circpad-sim/sim"
)

// maxLineBytes bounds a single trace line.
const maxLineBytes = 1 << 20

var (
	ErrNoEvents          = errors.New("no events found in trace")
	ErrNegativeTimestamp = errors.New("negative timestamp in trace")
)

// UnknownPolicy decides what happens to lines without a recognised label.
type UnknownPolicy string

const (
	// UnknownPassThrough keeps unrecognised lines as KindUnknown records that
	// the engine copies to the output unchanged.
	UnknownPassThrough UnknownPolicy = "pass"
	// UnknownDrop discards unrecognised lines.
	UnknownDrop UnknownPolicy = "drop"
)

var validUnknownPolicies = map[UnknownPolicy]bool{
	UnknownPassThrough: true,
	UnknownDrop:        true,
	"":                 true, // empty defaults to pass
}

// IsValidUnknownPolicy returns true if the given policy string is recognised.
func IsValidUnknownPolicy(policy string) bool {
	return validUnknownPolicies[UnknownPolicy(policy)]
}

// LoadOptions controls trace parsing.
type LoadOptions struct {
	Unknown UnknownPolicy
	Rebase  bool // subtract the first kept timestamp from every record
}

// Load parses r into a TimedQueue. Sequence numbers are drawn from seq in
// file order; share one Sequencer between the traces of a run. Returns
// ErrNoEvents when no line carried a recognised label.
func Load(r io.Reader, seq *sim.Sequencer, opts LoadOptions) (*sim.TimedQueue, error) {
	if seq == nil {
		return nil, fmt.Errorf("load trace: sequencer must not be nil")
	}
	q := sim.NewTimedQueue()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	recognised, dropped := 0, 0
	base, haveBase := int64(0), false
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		ts, rest := parseLeadingInt(line)
		kind, ok := sim.MatchLabel(line)
		label := kind.Label()
		if !ok {
			if opts.Unknown == UnknownDrop {
				dropped++
				continue
			}
			label = strings.TrimSpace(rest)
		} else {
			recognised++
		}

		if opts.Rebase {
			if !haveBase {
				base, haveBase = ts, true
			}
			ts -= base
		}
		if ts < 0 {
			return nil, fmt.Errorf("line %d: %w (%d)", lineNo, ErrNegativeTimestamp, ts)
		}

		q.Push(&sim.Event{
			Kind:      kind,
			Timestamp: ts,
			Label:     label,
			Sequence:  seq.Next(),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading trace: %w", err)
	}
	if recognised == 0 {
		return nil, ErrNoEvents
	}
	logrus.Debugf("Loaded %d events (%d recognised, %d dropped)", q.Len(), recognised, dropped)
	return q, nil
}

// LoadFile opens path (decompressing by extension) and parses it with Load.
func LoadFile(path string, seq *sim.Sequencer, opts LoadOptions) (*sim.TimedQueue, error) {
	rc, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	q, err := Load(rc, seq, opts)
	if err != nil {
		return nil, fmt.Errorf("loading %q: %w", path, err)
	}
	return q, nil
}

// parseLeadingInt reads a decimal integer at the start of line the way
// strtol does: leading blanks and a sign are accepted, and a line without
// digits yields 0. The remainder of the line is returned with it.
func parseLeadingInt(line string) (int64, string) {
	i := 0
	for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
		i++
	}
	start := i
	if i < len(line) && (line[i] == '-' || line[i] == '+') {
		i++
	}
	digits := i
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == digits {
		return 0, line
	}
	v, err := strconv.ParseInt(line[start:i], 10, 64)
	if err != nil {
		return 0, line
	}
	return v, line[i:]
}
