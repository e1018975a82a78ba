package trace

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/circpad-sim/circpad-sim/sim"
)

// ErrWrongFormat is returned for trace lines that are not "<int> <label>".
var ErrWrongFormat = errors.New("invalid trace format")

// Record is one exported trace line.
type Record struct {
	Timestamp int64
	Label     string
}

// Kind classifies the record's label.
func (r Record) Kind() sim.EventKind {
	k, _ := sim.MatchLabel(r.Label)
	return k
}

// FromEvents converts events (already in time order) to records.
func FromEvents(events []*sim.Event) []Record {
	out := make([]Record, 0, len(events))
	for _, e := range events {
		out = append(out, Record{Timestamp: e.Timestamp, Label: e.Label})
	}
	return out
}

// Write emits records as zero-padded "%016d <label>" lines, the format the
// loader and the extraction tooling both use.
func Write(w io.Writer, records []Record) error {
	bw := bufio.NewWriter(w)
	for i, r := range records {
		if _, err := fmt.Fprintf(bw, "%016d %s\n", r.Timestamp, strings.TrimSpace(r.Label)); err != nil {
			return fmt.Errorf("writing record %d: %w", i, err)
		}
	}
	return bw.Flush()
}

// WriteFile writes records to path, compressing by extension.
func WriteFile(path string, records []Record) error {
	wc, err := createFile(path)
	if err != nil {
		return err
	}
	if err := Write(wc, records); err != nil {
		_ = wc.Close()
		return fmt.Errorf("writing %q: %w", path, err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("closing %q: %w", path, err)
	}
	return nil
}

// ReadRecords parses every non-blank line of r as "<int> <label...>".
// Unlike Load it keeps the file as-is: no label recognition, no queueing.
func ReadRecords(r io.Reader) ([]Record, error) {
	var out []Record
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: %w", lineNo, ErrWrongFormat)
		}
		ts, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w: %v", lineNo, ErrWrongFormat, err)
		}
		out = append(out, Record{Timestamp: ts, Label: strings.Join(fields[1:], " ")})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading records: %w", err)
	}
	return out, nil
}

// ReadRecordsFile is ReadRecords on a (possibly compressed) file.
func ReadRecordsFile(path string) ([]Record, error) {
	rc, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	records, err := ReadRecords(rc)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", path, err)
	}
	return records, nil
}
