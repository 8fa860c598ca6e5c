package perf

import (
	"sync/atomic"
	"time"
)

// Counters tracks codec and cache activity with plain atomic increments.
// Derived rates (hit rate, throughput) are computed once, at Snapshot time,
// rather than recomputed on every increment.
type Counters struct {
	encodeOps       atomic.Uint64
	decodeOps       atomic.Uint64
	encodeBytes     atomic.Uint64
	decodeBytes     atomic.Uint64
	encodeElapsedNs atomic.Uint64
	decodeElapsedNs atomic.Uint64
	cacheHits       atomic.Uint64
	cacheMisses     atomic.Uint64
}

// NewCounters returns a zeroed Counters ready for use.
func NewCounters() *Counters {
	return &Counters{}
}

// AddEncodeOp records one encode operation producing n bytes of wire output
// in elapsed wall-clock time.
func (c *Counters) AddEncodeOp(n uint64, elapsed time.Duration) {
	c.encodeOps.Add(1)
	c.encodeBytes.Add(n)
	c.encodeElapsedNs.Add(uint64(elapsed.Nanoseconds()))
}

// AddDecodeOp records one decode operation consuming n bytes of wire input
// in elapsed wall-clock time.
func (c *Counters) AddDecodeOp(n uint64, elapsed time.Duration) {
	c.decodeOps.Add(1)
	c.decodeBytes.Add(n)
	c.decodeElapsedNs.Add(uint64(elapsed.Nanoseconds()))
}

// AddCacheHit records a cache hit (decode cache or encode cache).
func (c *Counters) AddCacheHit() {
	c.cacheHits.Add(1)
}

// AddCacheMiss records a cache miss (decode cache or encode cache).
func (c *Counters) AddCacheMiss() {
	c.cacheMisses.Add(1)
}

// Snapshot is a point-in-time read of Counters with derived fields computed
// once at capture time.
type Snapshot struct {
	EncodeOps       uint64
	DecodeOps       uint64
	EncodeBytes     uint64
	DecodeBytes     uint64
	EncodeElapsedNs uint64
	DecodeElapsedNs uint64
	CacheHits       uint64
	CacheMisses     uint64
	CacheHitRate    float64
	ThroughputBPS   float64
}

// Snapshot captures the current counter values and derives cache hit rate
// and throughput. A cache with zero lookups reports a hit rate of 0, not
// NaN; zero elapsed time reports a throughput of 0, not +Inf.
func (c *Counters) Snapshot() Snapshot {
	hits := c.cacheHits.Load()
	misses := c.cacheMisses.Load()
	total := hits + misses

	encodeBytes := c.encodeBytes.Load()
	decodeBytes := c.decodeBytes.Load()
	encodeElapsedNs := c.encodeElapsedNs.Load()
	decodeElapsedNs := c.decodeElapsedNs.Load()

	s := Snapshot{
		EncodeOps:       c.encodeOps.Load(),
		DecodeOps:       c.decodeOps.Load(),
		EncodeBytes:     encodeBytes,
		DecodeBytes:     decodeBytes,
		EncodeElapsedNs: encodeElapsedNs,
		DecodeElapsedNs: decodeElapsedNs,
		CacheHits:       hits,
		CacheMisses:     misses,
	}
	if total > 0 {
		s.CacheHitRate = float64(hits) / float64(total)
	}
	if elapsedNs := encodeElapsedNs + decodeElapsedNs; elapsedNs > 0 {
		s.ThroughputBPS = float64(encodeBytes+decodeBytes) / (float64(elapsedNs) / 1e9)
	}
	return s
}
