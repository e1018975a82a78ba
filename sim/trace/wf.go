package trace

import (
	"bufio"
	"fmt"
	"strconv"

	"github.com/circpad-sim/circpad-sim/sim"
)

// WFFormat names a website-fingerprinting output format.
type WFFormat string

const (
	// WFFormatCells is one "1" (outgoing) or "-1" (incoming) per cell.
	WFFormatCells WFFormat = "cells"
	// WFFormatTimeCells prefixes each cell direction with its timestamp.
	WFFormatTimeCells WFFormat = "timecells"
	// WFFormatDirTime is the timestamp signed by direction.
	WFFormatDirTime WFFormat = "dirtime"
)

// IsValidWFFormat returns true if the given format string is recognised.
func IsValidWFFormat(format string) bool {
	switch WFFormat(format) {
	case WFFormatCells, WFFormatTimeCells, WFFormatDirTime:
		return true
	}
	return false
}

// cellDirection returns +1 for sent cells, -1 for received cells and 0 for
// everything else. Padding and non-padding cells look alike on the wire.
func cellDirection(r Record) int {
	switch r.Kind() {
	case sim.KindNonPaddingSent, sim.KindPaddingSent:
		return 1
	case sim.KindNonPaddingReceived, sim.KindPaddingReceived:
		return -1
	}
	return 0
}

// WFCells converts records to the cells format.
func WFCells(records []Record) []string {
	var out []string
	for _, r := range records {
		if d := cellDirection(r); d != 0 {
			out = append(out, strconv.Itoa(d))
		}
	}
	return out
}

// WFTimeCells converts records to the timecells format.
func WFTimeCells(records []Record) []string {
	var out []string
	for _, r := range records {
		if d := cellDirection(r); d != 0 {
			out = append(out, fmt.Sprintf("%d %d", r.Timestamp, d))
		}
	}
	return out
}

// WFDirTime converts records to the directional-time format.
func WFDirTime(records []Record) []string {
	var out []string
	for _, r := range records {
		if d := cellDirection(r); d != 0 {
			out = append(out, strconv.FormatInt(r.Timestamp*int64(d), 10))
		}
	}
	return out
}

// ToWF converts records to the named format.
func ToWF(records []Record, format WFFormat) ([]string, error) {
	switch format {
	case WFFormatCells:
		return WFCells(records), nil
	case WFFormatTimeCells:
		return WFTimeCells(records), nil
	case WFFormatDirTime:
		return WFDirTime(records), nil
	}
	return nil, fmt.Errorf("unknown WF format %q (valid: cells, timecells, dirtime)", format)
}

// WriteWFFile writes one line per entry of lines to path, compressing by
// extension like WriteFile.
func WriteWFFile(path string, lines []string) error {
	wc, err := createFile(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(wc)
	for _, l := range lines {
		if _, err := bw.WriteString(l + "\n"); err != nil {
			_ = wc.Close()
			return fmt.Errorf("writing %q: %w", path, err)
		}
	}
	if err := bw.Flush(); err != nil {
		_ = wc.Close()
		return fmt.Errorf("writing %q: %w", path, err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("closing %q: %w", path, err)
	}
	return nil
}
