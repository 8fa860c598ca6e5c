package vectorindex

import (
	"context"
	"io"

	cid "github.com/ipfs/go-cid"

	"github.com/endomorphosis/ipfs-datasets-py-sub029/internal/ipld/blockstore"
	"github.com/endomorphosis/ipfs-datasets-py-sub029/internal/ipld/car"
	"github.com/endomorphosis/ipfs-datasets-py-sub029/internal/ipld/iperr"
)

// vectorEntryBlock is the JSON shape one vector entry is stored as.
type vectorEntryBlock struct {
	ID       string                 `json:"id"`
	Vector   []float32              `json:"vector"`
	Metadata map[string]interface{} `json:"metadata"`
}

// manifestBlock roots an index export: dimension, metric, and the ordered
// list of per-entry block CIDs.
type manifestBlock struct {
	Dim     int      `json:"dim"`
	Metric  string   `json:"metric"`
	Entries []string `json:"entries"` // CID strings, in id-sorted order
}

// manifestSource wraps a block store so car.Export's DFS sees the
// manifest's entry list as outbound links. The manifest is a dag-json
// block, not dag-pb, so it carries no structural links of its own; this
// adapter is what lets the archive still walk from the manifest root to
// every entry it names.
type manifestSource struct {
	*blockstore.FSBlockStore
	manifestID cid.Cid
	entryIDs   []cid.Cid
}

func (m manifestSource) Links(ctx context.Context, id cid.Cid, raw []byte) ([]cid.Cid, error) {
	if id.Equals(m.manifestID) {
		return m.entryIDs, nil
	}
	return m.FSBlockStore.Links(ctx, id, raw)
}

// ExportToCAR serializes every live entry plus a manifest root into store,
// then streams the manifest and its entries to w as a CAR archive. It
// returns the manifest's CID, the archive's sole root.
func (idx *Index) ExportToCAR(ctx context.Context, store *blockstore.FSBlockStore, w io.Writer) (cid.Cid, error) {
	rows := idx.Snapshot()
	entryCIDs := make([]string, len(rows))
	entryIDs := make([]cid.Cid, len(rows))
	for i, row := range rows {
		id, err := store.PutJSON(vectorEntryBlock{ID: row.ID, Vector: row.Vector, Metadata: row.Metadata})
		if err != nil {
			return cid.Undef, err
		}
		entryCIDs[i] = id.String()
		entryIDs[i] = id
	}

	root, err := store.PutJSON(manifestBlock{Dim: idx.dim, Metric: string(idx.metric), Entries: entryCIDs})
	if err != nil {
		return cid.Undef, err
	}

	src := manifestSource{FSBlockStore: store, manifestID: root, entryIDs: entryIDs}
	if err := car.Export(ctx, []cid.Cid{root}, src, w); err != nil {
		return cid.Undef, err
	}
	return root, nil
}

// FromCAR imports an archive produced by ExportToCAR into store and
// rebuilds an Index from its manifest.
func FromCAR(ctx context.Context, store *blockstore.FSBlockStore, r io.Reader) (*Index, error) {
	roots, err := car.Import(ctx, r, store)
	if err != nil {
		return nil, err
	}
	if len(roots) != 1 {
		return nil, iperr.New(iperr.KindCorruptBlock, "vector index archive must have exactly one root")
	}

	var manifest manifestBlock
	if err := store.GetJSON(roots[0], &manifest); err != nil {
		return nil, err
	}

	metric := Metric(manifest.Metric)
	idx := New(manifest.Dim, metric)
	for _, cidStr := range manifest.Entries {
		id, err := cid.Decode(cidStr)
		if err != nil {
			return nil, iperr.Wrap(iperr.KindCorruptBlock, "parse entry cid", err)
		}
		var entryData vectorEntryBlock
		if err := store.GetJSON(id, &entryData); err != nil {
			return nil, err
		}
		// Vectors were already normalized (if cosine) before export; bypass
		// Add's normalization/zero-norm checks by inserting directly.
		idx.byID[entryData.ID] = &entry{vector: entryData.Vector, metadata: entryData.Metadata}
	}
	return idx, nil
}
