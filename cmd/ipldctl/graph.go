package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	cid "github.com/ipfs/go-cid"
	"github.com/spf13/cobra"

	"github.com/endomorphosis/ipfs-datasets-py-sub029/internal/ipld/blockstore"
	"github.com/endomorphosis/ipfs-datasets-py-sub029/internal/ipld/kg"
)

// refPath is where a named graph's current root CID is remembered between
// invocations, since each ipldctl call is a fresh process.
func refPath(name string) string {
	return filepath.Join(storeDir, "refs", name+".cid")
}

func loadGraphRef(name string) (cid.Cid, bool, error) {
	data, err := os.ReadFile(refPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return cid.Undef, false, nil
		}
		return cid.Undef, false, err
	}
	id, err := parseCID(strings.TrimSpace(string(data)))
	if err != nil {
		return cid.Undef, false, err
	}
	return id, true, nil
}

func saveGraphRef(name string, id cid.Cid) error {
	if err := os.MkdirAll(filepath.Dir(refPath(name)), 0o755); err != nil {
		return err
	}
	return os.WriteFile(refPath(name), []byte(id.String()+"\n"), 0o644)
}

// openGraph loads a named graph from its last-saved root, or creates an
// empty one if this is the first mutation under that name.
func openGraph(ctx context.Context, store *blockstore.FSBlockStore, name string) (*kg.Graph, error) {
	rootID, ok, err := loadGraphRef(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return kg.NewGraph(name, store, nil), nil
	}
	return kg.FromCID(ctx, rootID, store, nil)
}

func graphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Drive a named knowledge graph",
	}
	cmd.AddCommand(
		graphAddEntityCmd(),
		graphAddRelationshipCmd(),
		graphQueryCmd(),
		graphTraverseCmd(),
		graphExportCARCmd(),
		graphImportCARCmd(),
	)
	return cmd
}

func parseProperties(raw string) (map[string]interface{}, error) {
	if raw == "" {
		return nil, nil
	}
	var props map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &props); err != nil {
		return nil, fmt.Errorf("--properties must be a JSON object: %w", err)
	}
	return props, nil
}

func graphAddEntityCmd() *cobra.Command {
	var properties string
	cmd := &cobra.Command{
		Use:   "add-entity <graph> <type> <name>",
		Short: "Add an entity to a named graph and flush",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			store := rootStore()
			g, err := openGraph(ctx, store, args[0])
			if err != nil {
				return err
			}
			props, err := parseProperties(properties)
			if err != nil {
				return err
			}
			e, err := g.AddEntity(args[1], args[2], props, nil)
			if err != nil {
				return err
			}
			rootID, err := g.Flush(ctx)
			if err != nil {
				return err
			}
			if err := saveGraphRef(args[0], rootID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "entity=%s root=%s\n", e.ID, rootID)
			return nil
		},
	}
	cmd.Flags().StringVar(&properties, "properties", "", "JSON object of entity properties")
	return cmd
}

func graphAddRelationshipCmd() *cobra.Command {
	var properties string
	cmd := &cobra.Command{
		Use:   "add-relationship <graph> <type> <source-id> <target-id>",
		Short: "Add a directed relationship between two existing entities and flush",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			store := rootStore()
			g, err := openGraph(ctx, store, args[0])
			if err != nil {
				return err
			}
			props, err := parseProperties(properties)
			if err != nil {
				return err
			}
			r, err := g.AddRelationship(args[1], args[2], args[3], props)
			if err != nil {
				return err
			}
			rootID, err := g.Flush(ctx)
			if err != nil {
				return err
			}
			if err := saveGraphRef(args[0], rootID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "relationship=%s root=%s\n", r.ID, rootID)
			return nil
		},
	}
	cmd.Flags().StringVar(&properties, "properties", "", "JSON object of relationship properties")
	return cmd
}

func graphQueryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query <graph> <start-entity-id> <relationship-type>[,<relationship-type>...]",
		Short: "Run an exact multi-hop query from an entity along a fixed relationship-type path",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			store := rootStore()
			g, err := openGraph(ctx, store, args[0])
			if err != nil {
				return err
			}
			start, ok := g.GetEntity(args[1])
			if !ok {
				return fmt.Errorf("entity %s not found in graph %s", args[1], args[0])
			}
			var path []string
			if args[2] != "" {
				path = strings.Split(args[2], ",")
			}
			results := g.Query(start, path)
			return printJSON(cmd, results)
		},
	}
}

func graphTraverseCmd() *cobra.Command {
	var types string
	var maxDepth, maxNodes int
	cmd := &cobra.Command{
		Use:   "traverse <graph> <seed-entity-id>[,<seed-entity-id>...]",
		Short: "Breadth-first traversal from one or more seed entities",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			store := rootStore()
			g, err := openGraph(ctx, store, args[0])
			if err != nil {
				return err
			}
			seeds := strings.Split(args[1], ",")
			var relTypes []string
			if types != "" {
				relTypes = strings.Split(types, ",")
			}
			results := g.TraverseFromEntitiesWithDepths(seeds, relTypes, maxDepth, maxNodes)
			return printJSON(cmd, results)
		},
	}
	cmd.Flags().StringVar(&types, "types", "", "comma-separated relationship types to cross (default: any)")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 3, "maximum BFS depth")
	cmd.Flags().IntVar(&maxNodes, "max-nodes", 0, "maximum nodes visited (0 = unbounded)")
	return cmd
}

func graphExportCARCmd() *cobra.Command {
	var outFile string
	cmd := &cobra.Command{
		Use:   "export-car <graph>",
		Short: "Export a named graph's root and everything reachable from it to a CAR file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			store := rootStore()
			g, err := openGraph(ctx, store, args[0])
			if err != nil {
				return err
			}
			f, err := os.Create(outFile)
			if err != nil {
				return err
			}
			defer f.Close()
			rootID, err := g.ExportToCAR(ctx, store, f)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rootID.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&outFile, "out", "graph.car", "output CAR file path")
	return cmd
}

func graphImportCARCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import-car <graph> <file>",
		Short: "Import a graph CAR archive and register it under a local name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			store := rootStore()
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()
			g, err := kg.FromCAR(ctx, store, f, nil)
			if err != nil {
				return err
			}
			rootID, _ := g.RootCID()
			if err := saveGraphRef(args[0], rootID); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rootID.String())
			return nil
		},
	}
	return cmd
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
