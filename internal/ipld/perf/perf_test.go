package perf

import (
	"testing"
	"time"
)

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRU[string, int](2)
	c.Put("a", 1)
	c.Put("b", 2)

	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a to be present")
	}
	// a is now most-recently-used; b is least-recently-used.
	c.Put("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("expected b to have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("expected a to still be present")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("expected c to be present")
	}
}

func TestLRUZeroCapacityNeverCaches(t *testing.T) {
	c := NewLRU[string, int](0)
	c.Put("a", 1)
	if _, ok := c.Get("a"); ok {
		t.Error("expected zero-capacity LRU to never cache")
	}
}

func TestLRUUpdateExistingKey(t *testing.T) {
	c := NewLRU[string, int](2)
	c.Put("a", 1)
	c.Put("a", 2)
	if v, ok := c.Get("a"); !ok || v != 2 {
		t.Errorf("expected updated value 2, got %v (ok=%v)", v, ok)
	}
	if c.Len() != 1 {
		t.Errorf("expected length 1 after update, got %d", c.Len())
	}
}

func TestCountersSnapshot(t *testing.T) {
	c := NewCounters()
	c.AddEncodeOp(10, time.Millisecond)
	c.AddEncodeOp(20, time.Millisecond)
	c.AddDecodeOp(5, time.Millisecond)
	c.AddCacheHit()
	c.AddCacheHit()
	c.AddCacheMiss()

	snap := c.Snapshot()
	if snap.EncodeOps != 2 || snap.EncodeBytes != 30 {
		t.Errorf("unexpected encode counters: %+v", snap)
	}
	if snap.DecodeOps != 1 || snap.DecodeBytes != 5 {
		t.Errorf("unexpected decode counters: %+v", snap)
	}
	if snap.CacheHits != 2 || snap.CacheMisses != 1 {
		t.Errorf("unexpected cache counters: %+v", snap)
	}
	want := 2.0 / 3.0
	if snap.CacheHitRate != want {
		t.Errorf("CacheHitRate = %v, want %v", snap.CacheHitRate, want)
	}
	if snap.EncodeElapsedNs != uint64(2*time.Millisecond) {
		t.Errorf("EncodeElapsedNs = %v, want %v", snap.EncodeElapsedNs, 2*time.Millisecond)
	}
	if snap.DecodeElapsedNs != uint64(time.Millisecond) {
		t.Errorf("DecodeElapsedNs = %v, want %v", snap.DecodeElapsedNs, time.Millisecond)
	}
	wantThroughput := float64(30+5) / (float64(3*time.Millisecond) / 1e9)
	if snap.ThroughputBPS != wantThroughput {
		t.Errorf("ThroughputBPS = %v, want %v", snap.ThroughputBPS, wantThroughput)
	}
}

func TestCountersSnapshotNoLookupsHasZeroHitRate(t *testing.T) {
	c := NewCounters()
	if snap := c.Snapshot(); snap.CacheHitRate != 0 {
		t.Errorf("expected hit rate 0 with no lookups, got %v", snap.CacheHitRate)
	}
}

func TestCountersSnapshotNoElapsedTimeHasZeroThroughput(t *testing.T) {
	c := NewCounters()
	c.AddEncodeOp(100, 0)
	if snap := c.Snapshot(); snap.ThroughputBPS != 0 {
		t.Errorf("expected throughput 0 with no elapsed time, got %v", snap.ThroughputBPS)
	}
}
