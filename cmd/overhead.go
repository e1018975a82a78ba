package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/circpad-sim/circpad-sim/sim/trace"
)

var (
	overheadInDir   string
	overheadOutPath string
)

// overheadCmd summarizes the bandwidth overhead of a directory of traces
var overheadCmd = &cobra.Command{
	Use:   "overhead",
	Short: "Compute padding overhead over a directory of traces",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		s, err := overheadForDir(overheadInDir)
		if err != nil {
			logrus.Fatalf("Overhead computation failed: %v", err)
		}
		fmt.Println("=== Overhead Summary ===")
		fmt.Printf("Traces             : %d\n", s.Traces)
		fmt.Printf("Cells              : %d (%d sent, %d received)\n", s.TotalCells, s.Sent, s.Recv)
		fmt.Printf("Avg sent overhead  : %.3f\n", s.AvgSentOverhead)
		fmt.Printf("Avg recv overhead  : %.3f\n", s.AvgRecvOverhead)
		fmt.Printf("Avg total overhead : %.3f\n", s.AvgTotalOverhead)
		if overheadOutPath != "" {
			if err := writeYAML(overheadOutPath, s); err != nil {
				logrus.Fatalf("Writing summary failed: %v", err)
			}
		}
	},
}

// overheadForDir reads every trace in dir and summarizes them together.
func overheadForDir(dir string) (*trace.OverheadSummary, error) {
	names, err := listFiles(dir)
	if err != nil {
		return nil, err
	}
	traces := make([][]trace.Record, 0, len(names))
	for _, name := range names {
		records, err := trace.ReadRecordsFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		traces = append(traces, records)
	}
	s, err := trace.ComputeOverhead(traces)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", dir, err)
	}
	return s, nil
}

func init() {
	overheadCmd.Flags().StringVarP(&overheadInDir, "input", "i", "", "Directory of traces")
	overheadCmd.Flags().StringVarP(&overheadOutPath, "output", "o", "", "Optional YAML file for the summary")
	overheadCmd.Flags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	_ = overheadCmd.MarkFlagRequired("input")

	rootCmd.AddCommand(overheadCmd)
}
