package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/circpad-sim/circpad-sim/sim/trace"
)

// otherCircuitWarnThreshold is the event count above which a circuit that
// was not picked as the visit is worth a warning.
const otherCircuitWarnThreshold = 100

var (
	errOutputExists   = errors.New("output file already exists")
	errNoValidCircuit = errors.New("no valid circuits found")
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert instrumented host logs to simulator traces",
}

// --- circpad-sim convert torlog ---

var (
	torlogInDir      string
	torlogOutDir     string
	torlogClientOnly bool
	torlogRelayOnly  bool
	torlogAllowIPs   bool
)

var convertTorlogCmd = &cobra.Command{
	Use:   "torlog",
	Short: "Extract the longest circuit of every log in a directory",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		if torlogClientOnly && torlogRelayOnly {
			logrus.Fatalf("--client-only and --relay-only are mutually exclusive")
		}
		opts := trace.ExtractOptions{
			SourceClient: !torlogRelayOnly,
			SourceRelay:  !torlogClientOnly,
			AllowIPs:     torlogAllowIPs,
		}
		n, err := convertTorlogDir(torlogInDir, torlogOutDir, opts)
		if err != nil {
			logrus.Fatalf("Log conversion failed: %v", err)
		}
		logrus.Infof("Converted %d logs into %s", n, torlogOutDir)
	},
}

// convertTorlogDir writes one trace per log file of inDir into outDir,
// under the log's file name. Existing outputs are never overwritten, and a
// log without a usable circuit stops the conversion.
func convertTorlogDir(inDir, outDir string, opts trace.ExtractOptions) (int, error) {
	names, err := listFiles(inDir)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return 0, fmt.Errorf("creating output dir: %w", err)
	}

	converted := 0
	for _, name := range names {
		outPath := filepath.Join(outDir, name)
		if _, err := os.Stat(outPath); err == nil {
			return converted, fmt.Errorf("%w: %s", errOutputExists, outPath)
		}

		lines, err := trace.ReadLogFile(filepath.Join(inDir, name))
		if err != nil {
			return converted, err
		}
		circuits, err := trace.ExtractLogTraces(lines, opts)
		if err != nil {
			return converted, fmt.Errorf("%s: %w", name, err)
		}
		longest, others := trace.LongestCircuit(circuits)
		if longest == nil {
			return converted, fmt.Errorf("%s: %w", name, errNoValidCircuit)
		}
		for _, c := range others {
			if len(c.Records) > otherCircuitWarnThreshold {
				logrus.Warnf("%s: circuit %s has %d events besides the visit on circuit %s",
					name, c.ID, len(c.Records), longest.ID)
			}
		}
		if err := trace.WriteFile(outPath, longest.Records); err != nil {
			return converted, err
		}
		logrus.Debugf("%s: circuit %s, %d events", name, longest.ID, len(longest.Records))
		converted++
	}
	return converted, nil
}

// listFiles returns the sorted names of the regular files in dir.
func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading dir %q: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func init() {
	convertTorlogCmd.Flags().StringVarP(&torlogInDir, "input", "i", "", "Directory of host logs")
	convertTorlogCmd.Flags().StringVarP(&torlogOutDir, "output", "o", "", "Directory for extracted traces")
	convertTorlogCmd.Flags().BoolVar(&torlogClientOnly, "client-only", false, "Only keep lines logged by the client")
	convertTorlogCmd.Flags().BoolVar(&torlogRelayOnly, "relay-only", false, "Only keep lines logged by the relay")
	convertTorlogCmd.Flags().BoolVar(&torlogAllowIPs, "allow-ips", false, "Keep circuits whose only destinations are IP addresses")
	convertTorlogCmd.Flags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	_ = convertTorlogCmd.MarkFlagRequired("input")
	_ = convertTorlogCmd.MarkFlagRequired("output")

	convertCmd.AddCommand(convertTorlogCmd)
	rootCmd.AddCommand(convertCmd)
}
