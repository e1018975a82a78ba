// Package testutil provides shared test infrastructure for the simulator.
// It holds the trace builder and assertion helpers used across the sim/
// packages. It does not import sim so that sim's own tests can use it.
package testutil

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TraceBuilder assembles trace text in the "<timestamp> <label>" line format.
type TraceBuilder struct {
	lines []string
}

// NewTrace starts an empty trace.
func NewTrace() *TraceBuilder {
	return &TraceBuilder{}
}

// Add appends an event line with a zero-padded timestamp.
func (b *TraceBuilder) Add(ts int64, label string) *TraceBuilder {
	b.lines = append(b.lines, fmt.Sprintf("%016d %s", ts, label))
	return b
}

// Raw appends line verbatim.
func (b *TraceBuilder) Raw(line string) *TraceBuilder {
	b.lines = append(b.lines, line)
	return b
}

// String returns the trace text, newline-terminated.
func (b *TraceBuilder) String() string {
	if len(b.lines) == 0 {
		return ""
	}
	return strings.Join(b.lines, "\n") + "\n"
}

// Reader returns the trace text as a reader.
func (b *TraceBuilder) Reader() *strings.Reader {
	return strings.NewReader(b.String())
}

// WriteFile writes the trace to dir/name and returns the path.
func (b *TraceBuilder) WriteFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("Failed to write trace %s: %v", path, err)
	}
	return path
}

// AssertNonDecreasing fails if timestamps ever go backwards.
func AssertNonDecreasing(t *testing.T, name string, timestamps []int64) {
	t.Helper()
	for i := 1; i < len(timestamps); i++ {
		if timestamps[i] < timestamps[i-1] {
			t.Errorf("%s: timestamp[%d]=%d before timestamp[%d]=%d", name, i, timestamps[i], i-1, timestamps[i-1])
		}
	}
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
