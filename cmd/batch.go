package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/circpad-sim/circpad-sim/sim/trace"
)

var (
	batchClientDir string
	batchRelayDir  string
	batchOutDir    string
)

// batchCmd runs one simulation per client/relay trace pair
var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Simulate every client/relay trace pair of two directories",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		if !trace.IsValidUnknownPolicy(unknownLines) {
			logrus.Fatalf("Unknown --unknown policy %q; valid: pass, drop", unknownLines)
		}
		base := currentRunOptions()
		summaries, err := runBatch(batchClientDir, batchRelayDir, batchOutDir, base)
		if err != nil {
			logrus.Fatalf("Batch failed: %v", err)
		}
		logrus.Infof("Simulated %d trace pairs into %s", len(summaries), batchOutDir)
	},
}

// runBatch pairs the traces of clientDir and relayDir by sorted file name
// and simulates each pair into outDir/<client name>/. Pair i runs with
// seed base.Seed+i so the batch is reproducible and pairs stay independent.
func runBatch(clientDir, relayDir, outDir string, base runOptions) ([]*RunSummary, error) {
	clients, err := listFiles(clientDir)
	if err != nil {
		return nil, err
	}
	relays, err := listFiles(relayDir)
	if err != nil {
		return nil, err
	}
	if len(clients) != len(relays) {
		return nil, fmt.Errorf("%d client traces but %d relay traces", len(clients), len(relays))
	}

	summaries := make([]*RunSummary, 0, len(clients))
	for i := range clients {
		opts := base
		opts.ClientTrace = filepath.Join(clientDir, clients[i])
		opts.RelayTrace = filepath.Join(relayDir, relays[i])
		opts.Seed = base.Seed + int64(i)
		opts.OutDir = filepath.Join(outDir, clients[i])

		logrus.Debugf("Pair %d: %s / %s", i, clients[i], relays[i])
		s, err := runSimulation(opts)
		if err != nil {
			return summaries, fmt.Errorf("pair %d (%s): %w", i, clients[i], err)
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

func init() {
	batchCmd.Flags().StringVarP(&batchClientDir, "client", "c", "", "Directory of client traces")
	batchCmd.Flags().StringVarP(&batchRelayDir, "relay", "r", "", "Directory of relay traces")
	batchCmd.Flags().StringVarP(&batchOutDir, "output", "o", "", "Directory for per-pair results")
	registerSimFlags(batchCmd)
	_ = batchCmd.MarkFlagRequired("client")
	_ = batchCmd.MarkFlagRequired("relay")
	_ = batchCmd.MarkFlagRequired("output")

	rootCmd.AddCommand(batchCmd)
}
