package chunker

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"testing"

	cid "github.com/ipfs/go-cid"

	"github.com/endomorphosis/ipfs-datasets-py-sub029/internal/ipld/cidutil"
	"github.com/endomorphosis/ipfs-datasets-py-sub029/internal/ipld/iperr"
	"github.com/endomorphosis/ipfs-datasets-py-sub029/pkg/canonical"
)

// memStore is an in-memory Store double. It computes real content-addressed
// CIDs the same way blockstore.PutJSON does, so descriptor CIDs the chunker
// emits are exactly what a real store would hand back.
type memStore struct {
	blocks map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{blocks: make(map[string][]byte)}
}

func (m *memStore) PutJSON(v interface{}) (cid.Cid, error) {
	raw, err := canonical.MarshalJSON(v)
	if err != nil {
		return cid.Undef, iperr.Wrap(iperr.KindIOFailure, "marshal json block", err)
	}
	id, err := cidutil.Compute(cidutil.CodecDagJSON, raw)
	if err != nil {
		return cid.Undef, err
	}
	m.blocks[id.String()] = raw
	return id, nil
}

func (m *memStore) GetJSON(id cid.Cid, out interface{}) error {
	raw, ok := m.blocks[id.String()]
	if !ok {
		return iperr.New(iperr.KindNotFound, "block not found")
	}
	if err := cidutil.Verify(id, cidutil.CodecDagJSON, raw); err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func TestSerializeRootPassesThroughUnderThreshold(t *testing.T) {
	store := newMemStore()
	c := Chunker{Threshold: 1024}
	fields := map[string]interface{}{
		"name": "small",
	}
	record, raw, err := c.SerializeRoot(context.Background(), store, fields)
	if err != nil {
		t.Fatalf("SerializeRoot: %v", err)
	}
	if record["name"] != "small" {
		t.Errorf("expected inline passthrough, got %+v", record)
	}
	if len(raw) == 0 {
		t.Error("expected non-empty canonical bytes")
	}
	if len(store.blocks) != 0 {
		t.Errorf("expected no externalized blocks, got %d", len(store.blocks))
	}
}

func TestSerializeRootExternalizesOversizedField(t *testing.T) {
	store := newMemStore()
	c := Chunker{Threshold: 256}

	ids := make([]interface{}, 50)
	for i := range ids {
		ids[i] = fmt.Sprintf("entity-%03d", i)
	}
	fields := map[string]interface{}{
		"entity_ids": ids,
	}
	record, _, err := c.SerializeRoot(context.Background(), store, fields)
	if err != nil {
		t.Fatalf("SerializeRoot: %v", err)
	}
	cidStr, ok := isChunkDescriptor(record["entity_ids"])
	if !ok {
		t.Fatalf("expected entity_ids to be externalized, got %+v", record["entity_ids"])
	}
	if cidStr == "" {
		t.Error("expected non-empty descriptor cid")
	}
}

func TestSerializeRootShardsFieldExceedingMaxBlockSize(t *testing.T) {
	store := newMemStore()
	c := Chunker{Threshold: 256, ShardSize: 100 * 1024}

	// Field must exceed MaxBlockSize (1MiB) itself to force manifest
	// sharding rather than single-block externalization.
	ids := make([]interface{}, 30000)
	for i := range ids {
		ids[i] = fmt.Sprintf("entity-with-a-reasonably-long-id-%05d", i)
	}
	fields := map[string]interface{}{
		"entity_ids": ids,
	}
	record, _, err := c.SerializeRoot(context.Background(), store, fields)
	if err != nil {
		t.Fatalf("SerializeRoot: %v", err)
	}
	cidStr, ok := isChunkDescriptor(record["entity_ids"])
	if !ok {
		t.Fatalf("expected entity_ids to be externalized, got %+v", record["entity_ids"])
	}

	id, err := cid.Decode(cidStr)
	if err != nil {
		t.Fatalf("decode descriptor cid: %v", err)
	}
	var manifest interface{}
	if err := store.GetJSON(id, &manifest); err != nil {
		t.Fatalf("GetJSON manifest: %v", err)
	}
	if _, ok := isManifest(manifest); !ok {
		t.Fatalf("expected a shard manifest, got %+v", manifest)
	}
}

func TestSerializeRootReturnsRootTooLargeWhenUnshardable(t *testing.T) {
	store := newMemStore()
	c := Chunker{Threshold: 8}
	fields := map[string]interface{}{
		"name": "this field is not in the externalizable list so it can never be shrunk",
	}
	_, _, err := c.SerializeRoot(context.Background(), store, fields)
	if err == nil {
		t.Fatal("expected RootTooLarge error")
	}
	if kind, ok := iperr.OfKind(err); !ok || kind != iperr.KindRootTooLarge {
		t.Errorf("expected KindRootTooLarge, got %v (ok=%v)", kind, ok)
	}
}

func TestSerializeDeserializeRoundTripSingleField(t *testing.T) {
	store := newMemStore()
	c := Chunker{Threshold: 256}
	ids := make([]interface{}, 50)
	for i := range ids {
		ids[i] = fmt.Sprintf("entity-%03d", i)
	}
	fields := map[string]interface{}{
		"entity_ids": ids,
		"name":       "graph-root",
	}
	record, _, err := c.SerializeRoot(context.Background(), store, fields)
	if err != nil {
		t.Fatalf("SerializeRoot: %v", err)
	}

	resolved, err := c.DeserializeRoot(context.Background(), store, record)
	if err != nil {
		t.Fatalf("DeserializeRoot: %v", err)
	}
	if resolved["name"] != "graph-root" {
		t.Errorf("expected untouched field to survive round trip, got %+v", resolved["name"])
	}
	got, ok := resolved["entity_ids"].([]interface{})
	if !ok {
		t.Fatalf("expected entity_ids to resolve to a list, got %T", resolved["entity_ids"])
	}
	if len(got) != len(ids) {
		t.Fatalf("expected %d ids back, got %d", len(ids), len(got))
	}
	for i := range ids {
		if got[i] != ids[i] {
			t.Fatalf("mismatch at %d: want %v got %v", i, ids[i], got[i])
		}
	}
}

func TestSerializeDeserializeRoundTripShardedField(t *testing.T) {
	store := newMemStore()
	c := Chunker{Threshold: 256, ShardSize: 100 * 1024}

	ids := make([]interface{}, 30000)
	for i := range ids {
		ids[i] = fmt.Sprintf("entity-with-a-reasonably-long-id-%05d", i)
	}
	fields := map[string]interface{}{
		"entity_ids": ids,
	}
	record, _, err := c.SerializeRoot(context.Background(), store, fields)
	if err != nil {
		t.Fatalf("SerializeRoot: %v", err)
	}
	resolved, err := c.DeserializeRoot(context.Background(), store, record)
	if err != nil {
		t.Fatalf("DeserializeRoot: %v", err)
	}
	got, ok := resolved["entity_ids"].([]interface{})
	if !ok {
		t.Fatalf("expected entity_ids to resolve to a list, got %T", resolved["entity_ids"])
	}
	if !reflect.DeepEqual(got, ids) {
		t.Fatalf("sharded round trip mismatch: got %d elements, want %d", len(got), len(ids))
	}
}

func TestSerializeRootRejectsCancelledContext(t *testing.T) {
	store := newMemStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := Chunker{}
	_, _, err := c.SerializeRoot(ctx, store, map[string]interface{}{"a": 1})
	if kind, ok := iperr.OfKind(err); !ok || kind != iperr.KindCancelled {
		t.Errorf("expected KindCancelled, got %v (ok=%v)", kind, ok)
	}
}

func TestDeserializeRootRejectsCancelledContext(t *testing.T) {
	store := newMemStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := Chunker{}
	_, err := c.DeserializeRoot(ctx, store, map[string]interface{}{"a": 1})
	if kind, ok := iperr.OfKind(err); !ok || kind != iperr.KindCancelled {
		t.Errorf("expected KindCancelled, got %v (ok=%v)", kind, ok)
	}
}
