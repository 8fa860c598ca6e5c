package kg

import (
	"context"
	"io"

	cid "github.com/ipfs/go-cid"

	"github.com/endomorphosis/ipfs-datasets-py-sub029/internal/ipld/blockstore"
	"github.com/endomorphosis/ipfs-datasets-py-sub029/internal/ipld/car"
	"github.com/endomorphosis/ipfs-datasets-py-sub029/internal/ipld/chunker"
	"github.com/endomorphosis/ipfs-datasets-py-sub029/internal/ipld/iperr"
)

// externalizableFields mirrors chunker's own list; kg needs it again here to
// walk a root record's structure without reaching into chunker's
// unexported descriptor/manifest detection.
var externalizableFields = []string{"entity_ids", "entity_cids", "relationship_ids", "relationship_cids"}

type linkIndex map[string][]cid.Cid

func (li linkIndex) add(from, to cid.Cid) {
	li[from.KeyString()] = append(li[from.KeyString()], to)
}

// collectStructuralLinks walks rootID's record (and any chunk descriptors
// or shard manifests the chunker introduced for it) to build the adjacency
// car.Export's DFS needs. The root record and every block it chunks to are
// dag-json, which carries no links of its own, so this is the kg-side
// equivalent of vectorindex/car.go's manifestSource wrapper: both exist
// because dag-json blocks don't self-describe their outbound edges.
func collectStructuralLinks(store chunker.Store, rootID cid.Cid) (linkIndex, error) {
	li := make(linkIndex)
	var root map[string]interface{}
	if err := store.GetJSON(rootID, &root); err != nil {
		return nil, err
	}
	for _, field := range externalizableFields {
		val, ok := root[field]
		if !ok {
			continue
		}
		if err := walkField(store, li, field, rootID, val); err != nil {
			return nil, err
		}
	}
	return li, nil
}

func walkField(store chunker.Store, li linkIndex, field string, containerID cid.Cid, val interface{}) error {
	m, ok := val.(map[string]interface{})
	if !ok {
		// Inline list (entity_ids/relationship_ids): plain id strings, not
		// CIDs, so there is nothing further to link.
		return nil
	}

	if chunked, _ := m["_chunked"].(bool); chunked {
		cidStr, _ := m["_cid"].(string)
		childID, err := cid.Decode(cidStr)
		if err != nil {
			return iperr.Wrap(iperr.KindCorruptBlock, "parse chunk descriptor cid", err)
		}
		li.add(containerID, childID)
		var decoded interface{}
		if err := store.GetJSON(childID, &decoded); err != nil {
			return err
		}
		return walkField(store, li, field, childID, decoded)
	}

	if isManifest, _ := m["_manifest"].(bool); isManifest {
		rawShards, _ := m["shards"].([]interface{})
		for _, s := range rawShards {
			shardStr, _ := s.(string)
			shardID, err := cid.Decode(shardStr)
			if err != nil {
				return iperr.Wrap(iperr.KindCorruptBlock, "parse shard cid", err)
			}
			li.add(containerID, shardID)
			var shardVal interface{}
			if err := store.GetJSON(shardID, &shardVal); err != nil {
				return err
			}
			if err := walkField(store, li, field, shardID, shardVal); err != nil {
				return err
			}
		}
		return nil
	}

	// Inline map: only entity_cids/relationship_cids carry CIDs as values
	// (the entity/relationship blocks themselves).
	if field == "entity_cids" || field == "relationship_cids" {
		for _, v := range m {
			cidStr, _ := v.(string)
			if cidStr == "" {
				continue
			}
			childID, err := cid.Decode(cidStr)
			if err != nil {
				return iperr.Wrap(iperr.KindCorruptBlock, "parse entity/relationship cid", err)
			}
			li.add(containerID, childID)
		}
	}
	return nil
}

// graphSource wraps a block store so car.Export's DFS can walk from a
// graph's root CID to every entity/relationship/chunk block it references.
type graphSource struct {
	*blockstore.FSBlockStore
	links linkIndex
}

func (s graphSource) Links(ctx context.Context, id cid.Cid, raw []byte) ([]cid.Cid, error) {
	if ls, ok := s.links[id.KeyString()]; ok {
		return ls, nil
	}
	return s.FSBlockStore.Links(ctx, id, raw)
}

// ExportToCAR flushes the graph if it has never been flushed, then streams
// its root and everything structurally reachable from it to w. The
// attached vector store, if any, is not bundled into this archive; export
// it separately via vectorindex.Index.ExportToCAR against the same store
// (see DESIGN.md).
func (g *Graph) ExportToCAR(ctx context.Context, store *blockstore.FSBlockStore, w io.Writer) (cid.Cid, error) {
	rootID, ok := g.RootCID()
	if !ok {
		var err error
		rootID, err = g.Flush(ctx)
		if err != nil {
			return cid.Undef, err
		}
	}

	links, err := collectStructuralLinks(store, rootID)
	if err != nil {
		return cid.Undef, err
	}
	src := graphSource{FSBlockStore: store, links: links}
	if err := car.Export(ctx, []cid.Cid{rootID}, src, w); err != nil {
		return cid.Undef, err
	}
	return rootID, nil
}

// FromCAR imports an archive produced by ExportToCAR into store and
// reconstructs the graph from its single root.
func FromCAR(ctx context.Context, store *blockstore.FSBlockStore, r io.Reader, vectorStore VectorStore) (*Graph, error) {
	roots, err := car.Import(ctx, r, store)
	if err != nil {
		return nil, err
	}
	if len(roots) != 1 {
		return nil, iperr.New(iperr.KindCorruptBlock, "graph archive must have exactly one root")
	}
	return FromCID(ctx, roots[0], store, vectorStore)
}
