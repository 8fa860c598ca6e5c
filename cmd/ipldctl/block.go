package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func putCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <file>",
		Short: "Store a file's raw bytes and print its CID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			id, err := rootStore().Put(data)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id.String())
			return nil
		},
	}
}

func getCmd() *cobra.Command {
	var outFile string
	cmd := &cobra.Command{
		Use:   "get <cid>",
		Short: "Fetch a block's raw bytes by CID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCID(args[0])
			if err != nil {
				return err
			}
			data, err := rootStore().Get(id)
			if err != nil {
				return err
			}
			if outFile == "" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(outFile, data, 0o644)
		},
	}
	cmd.Flags().StringVar(&outFile, "out", "", "write bytes to this file instead of stdout")
	return cmd
}
