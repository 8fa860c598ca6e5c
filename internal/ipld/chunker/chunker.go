// Package chunker keeps a root record under the size thresholds spec.md's
// invariants I3/I4 require, externalizing oversized fields to child blocks
// (and, when a single field is itself too large for one block, to a
// manifest of shards) until the record fits.
package chunker

import (
	"context"

	cid "github.com/ipfs/go-cid"

	"github.com/endomorphosis/ipfs-datasets-py-sub029/internal/ipld/iperr"
	"github.com/endomorphosis/ipfs-datasets-py-sub029/pkg/canonical"
)

// MaxBlockSize is I3: no single block's serialized size may exceed this.
const MaxBlockSize = 1 << 20 // 1 MiB

// RootChunkThreshold is I4's default; Chunker.Threshold may override it.
const RootChunkThreshold = 800 * 1024 // 800 KiB

// maxShardSize bounds each shard of a manifest-split field.
const maxShardSize = 800 * 1024

// externalizableFields lists the root record fields eligible for chunking,
// in the descending-size iteration order spec §4.8 step 4 names.
var externalizableFields = []string{"entity_ids", "entity_cids", "relationship_ids", "relationship_cids"}

// Store is the subset of blockstore.FSBlockStore the chunker needs: it
// never imports blockstore directly so callers can swap in a test double.
type Store interface {
	PutJSON(v interface{}) (cid.Cid, error)
	GetJSON(id cid.Cid, out interface{}) error
}

// Chunker serializes and deserializes root records against threshold and
// shard-size limits. Zero value uses the package defaults.
type Chunker struct {
	Threshold int // defaults to RootChunkThreshold when zero
	ShardSize int // defaults to maxShardSize when zero
}

func (c Chunker) threshold() int {
	if c.Threshold > 0 {
		return c.Threshold
	}
	return RootChunkThreshold
}

func (c Chunker) shardSize() int {
	if c.ShardSize > 0 {
		return c.ShardSize
	}
	return maxShardSize
}

// chunkDescriptor is the sentinel object a chunked field is replaced with.
type chunkDescriptor struct {
	Chunked bool   `json:"_chunked"`
	CID     string `json:"_cid"`
}

// manifestDoc roots a multi-shard field: an ordered list of shard CIDs
// whose concatenated decoded elements reconstruct the field.
type manifestDoc struct {
	Manifest bool     `json:"_manifest"`
	Shards   []string `json:"shards"`
}

func marshalSize(v interface{}) (int, []byte, error) {
	raw, err := canonical.MarshalJSON(v)
	if err != nil {
		return 0, nil, iperr.Wrap(iperr.KindIOFailure, "canonicalize root record", err)
	}
	return len(raw), raw, nil
}

// SerializeRoot builds a root record JSON document from fields (a
// map[string]interface{} keyed by the root record's field names), putting
// oversized fields into child blocks via store until the serialized
// record fits under the chunker's threshold. It returns the (possibly
// rewritten) inline record and its canonical bytes.
func (c Chunker) SerializeRoot(ctx context.Context, store Store, fields map[string]interface{}) (map[string]interface{}, []byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, iperr.Wrap(iperr.KindCancelled, "serialize root", err)
	}

	record := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		record[k] = v
	}

	size, raw, err := marshalSize(record)
	if err != nil {
		return nil, nil, err
	}
	if size <= c.threshold() {
		return record, raw, nil
	}

	for _, field := range externalizableFields {
		val, ok := record[field]
		if !ok {
			continue
		}
		desc, err := c.externalizeField(store, val)
		if err != nil {
			return nil, nil, err
		}
		record[field] = desc

		size, raw, err = marshalSize(record)
		if err != nil {
			return nil, nil, err
		}
		if size <= c.threshold() {
			return record, raw, nil
		}
	}

	return nil, nil, iperr.New(iperr.KindRootTooLarge, "root record exceeds threshold after externalizing every eligible field")
}

// externalizeField stores val as a single block if it fits, or as a
// manifest of equal-byte-sized shards if it does not, returning the
// descriptor the root record's field is replaced with.
func (c Chunker) externalizeField(store Store, val interface{}) (chunkDescriptor, error) {
	fieldSize, _, err := marshalSize(val)
	if err != nil {
		return chunkDescriptor{}, err
	}

	if fieldSize <= MaxBlockSize {
		id, err := store.PutJSON(val)
		if err != nil {
			return chunkDescriptor{}, err
		}
		return chunkDescriptor{Chunked: true, CID: id.String()}, nil
	}

	shards, err := splitIntoShards(val, c.shardSize())
	if err != nil {
		return chunkDescriptor{}, err
	}
	shardCIDs := make([]string, len(shards))
	for i, shard := range shards {
		id, err := store.PutJSON(shard)
		if err != nil {
			return chunkDescriptor{}, err
		}
		shardCIDs[i] = id.String()
	}
	manifestID, err := store.PutJSON(manifestDoc{Manifest: true, Shards: shardCIDs})
	if err != nil {
		return chunkDescriptor{}, err
	}
	return chunkDescriptor{Chunked: true, CID: manifestID.String()}, nil
}

// splitIntoShards partitions a list or map field into shards whose
// canonical JSON size stays under maxShard. Lists are split by element;
// maps are split by key, both in their natural (sorted, for maps) order so
// shard boundaries are deterministic.
func splitIntoShards(val interface{}, maxShard int) ([]interface{}, error) {
	switch v := val.(type) {
	case []interface{}:
		return splitSlice(v, maxShard)
	case map[string]interface{}:
		return splitMap(v, maxShard)
	default:
		// A scalar oversized field has no finer granularity to split on.
		return []interface{}{v}, nil
	}
}

func splitSlice(items []interface{}, maxShard int) ([]interface{}, error) {
	var shards []interface{}
	var current []interface{}
	currentSize := 2 // "[]"
	for _, item := range items {
		_, raw, err := marshalSize(item)
		if err != nil {
			return nil, err
		}
		itemCost := len(raw) + 1
		if len(current) > 0 && currentSize+itemCost > maxShard {
			shards = append(shards, current)
			current = nil
			currentSize = 2
		}
		current = append(current, item)
		currentSize += itemCost
	}
	if len(current) > 0 {
		shards = append(shards, current)
	}
	return shards, nil
}

func splitMap(m map[string]interface{}, maxShard int) ([]interface{}, error) {
	var shards []interface{}
	current := make(map[string]interface{})
	currentSize := 2 // "{}"
	// canonical.MarshalJSON sorts keys; iterate via a second pass to match
	// that order so two runs over the same map shard identically.
	ordered := sortedKeys(m)
	for _, k := range ordered {
		v := m[k]
		_, raw, err := marshalSize(map[string]interface{}{k: v})
		if err != nil {
			return nil, err
		}
		itemCost := len(raw)
		if len(current) > 0 && currentSize+itemCost > maxShard {
			shards = append(shards, current)
			current = make(map[string]interface{})
			currentSize = 2
		}
		current[k] = v
		currentSize += itemCost
	}
	if len(current) > 0 {
		shards = append(shards, current)
	}
	return shards, nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortStrings(keys)
	return keys
}

// sortStrings avoids pulling in sort just for this one call site duplicated
// across two helpers; kept trivial and local.
func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// isChunkDescriptor reports whether raw decodes as a {_chunked: true, _cid}
// sentinel.
func isChunkDescriptor(v interface{}) (string, bool) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return "", false
	}
	chunked, _ := m["_chunked"].(bool)
	if !chunked {
		return "", false
	}
	cidStr, _ := m["_cid"].(string)
	return cidStr, cidStr != ""
}

func isManifest(v interface{}) ([]string, bool) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, false
	}
	isManifest, _ := m["_manifest"].(bool)
	if !isManifest {
		return nil, false
	}
	rawShards, ok := m["shards"].([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]string, len(rawShards))
	for i, s := range rawShards {
		str, _ := s.(string)
		out[i] = str
	}
	return out, true
}

// DeserializeRoot resolves every chunked field in record back to its inline
// value, fetching child blocks (and shard manifests) from store as needed.
// Fields already present inline are passed through unchanged.
func (c Chunker) DeserializeRoot(ctx context.Context, store Store, record map[string]interface{}) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, iperr.Wrap(iperr.KindCancelled, "deserialize root", err)
	}
	out := make(map[string]interface{}, len(record))
	for k, v := range record {
		resolved, err := c.resolveField(store, v)
		if err != nil {
			return nil, err
		}
		out[k] = resolved
	}
	return out, nil
}

func (c Chunker) resolveField(store Store, v interface{}) (interface{}, error) {
	cidStr, ok := isChunkDescriptor(v)
	if !ok {
		return v, nil
	}
	id, err := parseCID(cidStr)
	if err != nil {
		return nil, err
	}

	var decoded interface{}
	if err := store.GetJSON(id, &decoded); err != nil {
		return nil, err
	}

	if shardCIDStrs, ok := isManifest(decoded); ok {
		return c.concatenateShards(store, shardCIDStrs)
	}
	return decoded, nil
}

func (c Chunker) concatenateShards(store Store, shardCIDStrs []string) (interface{}, error) {
	var listResult []interface{}
	mapResult := make(map[string]interface{})
	sawList, sawMap := false, false

	for _, s := range shardCIDStrs {
		id, err := parseCID(s)
		if err != nil {
			return nil, err
		}
		var shard interface{}
		if err := store.GetJSON(id, &shard); err != nil {
			return nil, err
		}
		switch v := shard.(type) {
		case []interface{}:
			sawList = true
			listResult = append(listResult, v...)
		case map[string]interface{}:
			sawMap = true
			for k, val := range v {
				mapResult[k] = val
			}
		default:
			sawList = true
			listResult = append(listResult, v)
		}
	}

	if sawMap && !sawList {
		return mapResult, nil
	}
	return listResult, nil
}

func parseCID(s string) (cid.Cid, error) {
	id, err := cid.Decode(s)
	if err != nil {
		return cid.Undef, iperr.Wrap(iperr.KindCorruptBlock, "parse chunk descriptor cid", err)
	}
	return id, nil
}
