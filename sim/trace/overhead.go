package trace

import (
	"errors"
	"fmt"

	"github.com/circpad-sim/circpad-sim/sim"
)

// ErrNoNonPadding is returned for traces without non-padding traffic in one
// direction, for which an overhead ratio is undefined.
var ErrNoNonPadding = errors.New("trace has no non-padding cells")

// CellCounts tallies the cell events of one trace.
type CellCounts struct {
	SentNonPadding int `yaml:"sent_nonpadding"`
	RecvNonPadding int `yaml:"recv_nonpadding"`
	SentPadding    int `yaml:"sent_padding"`
	RecvPadding    int `yaml:"recv_padding"`
}

// Sent is the number of cells sent, padding included.
func (c CellCounts) Sent() int { return c.SentNonPadding + c.SentPadding }

// Recv is the number of cells received, padding included.
func (c CellCounts) Recv() int { return c.RecvNonPadding + c.RecvPadding }

// Total is the number of cells in either direction.
func (c CellCounts) Total() int { return c.Sent() + c.Recv() }

// CountCells tallies records. Non-cell records are ignored.
func CountCells(records []Record) CellCounts {
	var c CellCounts
	for _, r := range records {
		switch r.Kind() {
		case sim.KindNonPaddingSent:
			c.SentNonPadding++
		case sim.KindNonPaddingReceived:
			c.RecvNonPadding++
		case sim.KindPaddingSent:
			c.SentPadding++
		case sim.KindPaddingReceived:
			c.RecvPadding++
		}
	}
	return c
}

// OverheadSummary aggregates bandwidth overhead over a set of traces.
// Overheads are ratios of all cells to non-padding cells, so 1.0 means no
// padding at all.
type OverheadSummary struct {
	Traces           int     `yaml:"traces"`
	TotalCells       int     `yaml:"total_cells"`
	Sent             int     `yaml:"sent"`
	Recv             int     `yaml:"recv"`
	AvgSentOverhead  float64 `yaml:"avg_sent_overhead"`
	AvgRecvOverhead  float64 `yaml:"avg_recv_overhead"`
	AvgTotalOverhead float64 `yaml:"avg_total_overhead"`
}

// ComputeOverhead summarizes traces. Every trace must carry non-padding
// cells in both directions. An empty input yields a zero summary.
func ComputeOverhead(traces [][]Record) (*OverheadSummary, error) {
	s := &OverheadSummary{}
	if len(traces) == 0 {
		return s, nil
	}

	var sentSum, recvSum float64
	for i, records := range traces {
		c := CountCells(records)
		if c.SentNonPadding == 0 || c.RecvNonPadding == 0 {
			return nil, fmt.Errorf("trace %d: %w (sent %d, received %d)",
				i, ErrNoNonPadding, c.SentNonPadding, c.RecvNonPadding)
		}
		s.Traces++
		s.Sent += c.Sent()
		s.Recv += c.Recv()
		s.TotalCells += c.Total()

		sentSum += float64(c.Sent()) / float64(c.SentNonPadding)
		recvSum += float64(c.Recv()) / float64(c.RecvNonPadding)
	}
	n := float64(s.Traces)
	s.AvgSentOverhead = sentSum / n
	s.AvgRecvOverhead = recvSum / n
	// Mean of the per-direction ratios, not all cells over non-padding cells.
	s.AvgTotalOverhead = (sentSum + recvSum) / (2 * n)
	return s, nil
}
