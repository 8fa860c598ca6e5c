package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/endomorphosis/ipfs-datasets-py-sub029/internal/ipld/vectorindex"
)

func vectorCARPath(name string) string {
	return filepath.Join(storeDir, "vectors", name+".car")
}

func parseVector(csv string) ([]float32, error) {
	parts := strings.Split(csv, ",")
	out := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %q: %w", p, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}

func loadVectorIndex(name string) (*vectorindex.Index, error) {
	f, err := os.Open(vectorCARPath(name))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return vectorindex.FromCAR(context.Background(), rootStore(), f)
}

func saveVectorIndex(name string, idx *vectorindex.Index) error {
	if err := os.MkdirAll(filepath.Dir(vectorCARPath(name)), 0o755); err != nil {
		return err
	}
	f, err := os.Create(vectorCARPath(name))
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = idx.ExportToCAR(context.Background(), rootStore(), f)
	return err
}

func vectorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vector",
		Short: "Manage named vector indexes",
	}
	cmd.AddCommand(vectorCreateCmd(), vectorAddCmd(), vectorSearchCmd())
	return cmd
}

func vectorCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <name> <dim> <cosine|l2>",
		Short: "Create an empty vector index",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			dim, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid dim: %w", err)
			}
			metric := vectorindex.Metric(args[2])
			if metric != vectorindex.Cosine && metric != vectorindex.L2 {
				return fmt.Errorf("metric must be %q or %q", vectorindex.Cosine, vectorindex.L2)
			}
			idx := vectorindex.New(dim, metric)
			return saveVectorIndex(args[0], idx)
		},
	}
}

func vectorAddCmd() *cobra.Command {
	var metadataID string
	cmd := &cobra.Command{
		Use:   "add <name> <id> <v1,v2,...>",
		Short: "Add a vector to a named index",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := loadVectorIndex(args[0])
			if err != nil {
				return err
			}
			vec, err := parseVector(args[2])
			if err != nil {
				return err
			}
			var meta map[string]interface{}
			if metadataID != "" {
				meta = map[string]interface{}{"entity_id": metadataID}
			}
			if err := idx.Add([]string{args[1]}, [][]float32{vec}, []map[string]interface{}{meta}); err != nil {
				return err
			}
			return saveVectorIndex(args[0], idx)
		},
	}
	cmd.Flags().StringVar(&metadataID, "entity-id", "", "records metadata.entity_id, for cross-referencing a graph entity")
	return cmd
}

func vectorSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <name> <v1,v2,...> <top-k>",
		Short: "Search a named index for its nearest vectors",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := loadVectorIndex(args[0])
			if err != nil {
				return err
			}
			vec, err := parseVector(args[1])
			if err != nil {
				return err
			}
			topK, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid top-k: %w", err)
			}
			results, err := idx.Search(vec, topK, nil)
			if err != nil {
				return err
			}
			return printJSON(cmd, results)
		},
	}
	return cmd
}
