package main

import (
	"context"
	"fmt"
	"os"

	cid "github.com/ipfs/go-cid"
	"github.com/spf13/cobra"

	"github.com/endomorphosis/ipfs-datasets-py-sub029/internal/ipld/car"
)

func exportCARCmd() *cobra.Command {
	var outFile string
	cmd := &cobra.Command{
		Use:   "export-car <cid>...",
		Short: "Stream one or more roots and everything reachable from them to a CAR file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roots := make([]cid.Cid, len(args))
			for i, a := range args {
				id, err := parseCID(a)
				if err != nil {
					return err
				}
				roots[i] = id
			}
			f, err := os.Create(outFile)
			if err != nil {
				return err
			}
			defer f.Close()
			return car.Export(context.Background(), roots, rootStore(), f)
		},
	}
	cmd.Flags().StringVar(&outFile, "out", "archive.car", "output CAR file path")
	return cmd
}

func importCARCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-car <file>",
		Short: "Import a CAR archive into the block store and print its roots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			roots, err := car.Import(context.Background(), f, rootStore())
			if err != nil {
				return err
			}
			for _, r := range roots {
				fmt.Fprintln(cmd.OutOrStdout(), r.String())
			}
			return nil
		},
	}
}
