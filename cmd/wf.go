package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/circpad-sim/circpad-sim/sim/trace"
)

var (
	wfInDir  string
	wfOutDir string
	wfFormat string
)

// wfCmd exports traces for website-fingerprinting classifiers
var wfCmd = &cobra.Command{
	Use:   "wf",
	Short: "Export a directory of traces in a website-fingerprinting format",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		if !trace.IsValidWFFormat(wfFormat) {
			logrus.Fatalf("Unknown format %q; valid: cells, timecells, dirtime", wfFormat)
		}
		n, err := exportWFDir(wfInDir, wfOutDir, trace.WFFormat(wfFormat))
		if err != nil {
			logrus.Fatalf("WF export failed: %v", err)
		}
		logrus.Infof("Exported %d traces as %s into %s", n, wfFormat, wfOutDir)
	},
}

// exportWFDir converts every trace of inDir into outDir, one output line
// per cell, under the trace's file name. The output is compressed like the
// input when the name carries a compression extension. Existing outputs are
// never overwritten.
func exportWFDir(inDir, outDir string, format trace.WFFormat) (int, error) {
	names, err := listFiles(inDir)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return 0, fmt.Errorf("creating output dir: %w", err)
	}
	exported := 0
	for _, name := range names {
		outPath := filepath.Join(outDir, name)
		if _, err := os.Stat(outPath); err == nil {
			return exported, fmt.Errorf("%w: %s", errOutputExists, outPath)
		}
		records, err := trace.ReadRecordsFile(filepath.Join(inDir, name))
		if err != nil {
			return exported, err
		}
		lines, err := trace.ToWF(records, format)
		if err != nil {
			return exported, err
		}
		if err := trace.WriteWFFile(outPath, lines); err != nil {
			return exported, err
		}
		exported++
	}
	return exported, nil
}

func init() {
	wfCmd.Flags().StringVarP(&wfInDir, "input", "i", "", "Directory of traces")
	wfCmd.Flags().StringVarP(&wfOutDir, "output", "o", "", "Directory for exported files")
	wfCmd.Flags().StringVarP(&wfFormat, "type", "t", string(trace.WFFormatCells), "Output format (cells, timecells, dirtime)")
	wfCmd.Flags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	_ = wfCmd.MarkFlagRequired("input")
	_ = wfCmd.MarkFlagRequired("output")

	rootCmd.AddCommand(wfCmd)
}
