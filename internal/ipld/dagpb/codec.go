package dagpb

import (
	"encoding/binary"
	"hash/fnv"
	"time"

	cid "github.com/ipfs/go-cid"

	"github.com/endomorphosis/ipfs-datasets-py-sub029/internal/ipld/cidutil"
	"github.com/endomorphosis/ipfs-datasets-py-sub029/internal/ipld/iperr"
	"github.com/endomorphosis/ipfs-datasets-py-sub029/internal/ipld/perf"
)

// Codec ties node canonicalization and wire marshaling to a shared encode
// cache, a decode cache, and a set of performance counters, matching
// spec.md §2's "result is cached" requirement for encode_node/decode_block.
type Codec struct {
	encodeCache *perf.LRU[string, EncodedNode]
	decodeCache *perf.LRU[string, Node]
	counters    *perf.Counters
}

// NewCodec builds a Codec backed by two LRUs of the given capacity (one for
// encode results, one for decoded nodes). A zero capacity disables caching
// (every Get misses).
func NewCodec(cacheCapacity int, counters *perf.Counters) *Codec {
	if counters == nil {
		counters = perf.NewCounters()
	}
	return &Codec{
		encodeCache: perf.NewLRU[string, EncodedNode](cacheCapacity),
		decodeCache: perf.NewLRU[string, Node](cacheCapacity),
		counters:    counters,
	}
}

// EncodedNode is one entry of EncodeBatch's result.
type EncodedNode struct {
	Bytes []byte
	Cid   cid.Cid
}

// encodeCacheKey is the "cheap pre-hash over data + link set" spec.md §4.2
// calls for: a 128-bit FNV hash of the canonical node's Data and its sorted,
// deduplicated Links, computed without touching the multihash/CID machinery
// EncodeNode is trying to avoid repeating on a hit.
func encodeCacheKey(canon Node) string {
	h := fnv.New128a()
	h.Write(canon.Data)
	var tsize [8]byte
	for _, l := range canon.Links {
		h.Write([]byte(l.Name))
		h.Write(l.Cid.Bytes())
		binary.BigEndian.PutUint64(tsize[:], l.Tsize)
		h.Write(tsize[:])
	}
	return string(h.Sum(nil))
}

// EncodeNode canonicalizes node, serializes it to DAG-PB wire bytes, and
// computes its CID. The result is cached under a pre-hash of the canonical
// form, so encoding the same node again skips marshaling and CID hashing
// entirely. The decoded canonical form is also seeded into the decode cache
// under the resulting CID so a subsequent DecodeBlock call is a cache hit
// without re-parsing the bytes it just produced.
func (c *Codec) EncodeNode(node Node) ([]byte, cid.Cid, error) {
	canon := node.Canonical()
	key := encodeCacheKey(canon)
	if cached, ok := c.encodeCache.Get(key); ok {
		c.counters.AddCacheHit()
		return cached.Bytes, cached.Cid, nil
	}
	c.counters.AddCacheMiss()

	start := time.Now()
	raw := marshal(canon)
	id, err := cidutil.Compute(cidutil.CodecDagPB, raw)
	if err != nil {
		return nil, cid.Undef, err
	}
	c.counters.AddEncodeOp(uint64(len(raw)), time.Since(start))
	c.encodeCache.Put(key, EncodedNode{Bytes: raw, Cid: id})
	c.decodeCache.Put(id.KeyString(), canon)
	return raw, id, nil
}

// DecodeBlock parses raw wire bytes into a Node and verifies the recomputed
// CID matches want. A cache hit skips both the parse and the CID
// recomputation.
func (c *Codec) DecodeBlock(raw []byte, want cid.Cid) (Node, error) {
	if cached, ok := c.decodeCache.Get(want.KeyString()); ok {
		c.counters.AddCacheHit()
		return cached, nil
	}
	c.counters.AddCacheMiss()

	start := time.Now()
	if err := cidutil.Verify(want, cidutil.CodecDagPB, raw); err != nil {
		return Node{}, err
	}
	node, err := unmarshal(raw)
	if err != nil {
		return Node{}, err
	}
	c.counters.AddDecodeOp(uint64(len(raw)), time.Since(start))
	canon := node.Canonical()
	c.decodeCache.Put(want.KeyString(), canon)
	return canon, nil
}

// EncodeBatch encodes each node independently, preserving input order. The
// result is byte-identical to calling EncodeNode on each element one at a
// time: batching only amortizes call overhead, it does not change the wire
// bytes produced.
func (c *Codec) EncodeBatch(nodes []Node) ([]EncodedNode, error) {
	out := make([]EncodedNode, len(nodes))
	for i, n := range nodes {
		raw, id, err := c.EncodeNode(n)
		if err != nil {
			return nil, iperr.Wrap(iperr.KindCorruptBlock, "encode batch element", err)
		}
		out[i] = EncodedNode{Bytes: raw, Cid: id}
	}
	return out, nil
}
