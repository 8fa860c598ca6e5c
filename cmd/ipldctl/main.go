// Command ipldctl is a thin CLI over the block store, CAR streamer, vector
// index, and knowledge graph: put/get raw blocks, export/import CAR
// archives, and drive a named knowledge graph one mutation at a time.
// Grounded on the teacher's cmd/seal and cmd/keygen (flag parsing, direct
// construction of the library types, log.Fatalf-free error propagation)
// restructured onto cobra because this binary has enough independent verbs
// that one flag set per main.go no longer fits.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/endomorphosis/ipfs-datasets-py-sub029/internal/ipld/blockstore"
)

var storeDir string

func rootStore() *blockstore.FSBlockStore {
	return blockstore.NewFSBlockStore(storeDir)
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ipldctl",
		Short: "Content-addressed block store, CAR archives, and knowledge graphs",
	}
	cmd.PersistentFlags().StringVar(&storeDir, "store", "./ipld-data", "block store base directory")

	cmd.AddCommand(putCmd(), getCmd(), exportCARCmd(), importCARCmd(), graphCmd(), vectorCmd())
	return cmd
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
