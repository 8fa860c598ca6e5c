// Package vectorindex implements a flat, linear-scan similarity index over
// fixed-dimension float32 vectors. See spec.md §4.6: dimension and metric
// are fixed at construction, cosine vectors are normalized internally, and
// ties are broken by id lexicographic order.
package vectorindex

import (
	"math"
	"sort"
	"sync"

	"github.com/endomorphosis/ipfs-datasets-py-sub029/internal/ipld/iperr"
)

// Metric selects the similarity function used by Search.
type Metric string

const (
	Cosine Metric = "cosine"
	L2     Metric = "l2"
)

type entry struct {
	vector     []float32 // normalized when Metric == Cosine
	metadata   map[string]interface{}
	tombstoned bool
}

// Index is a fixed-dimension, fixed-metric vector store.
type Index struct {
	mu     sync.RWMutex
	dim    int
	metric Metric
	byID   map[string]*entry
}

// New constructs an empty index of the given dimension and metric.
func New(dim int, metric Metric) *Index {
	return &Index{
		dim:    dim,
		metric: metric,
		byID:   make(map[string]*entry),
	}
}

func normalize(v []float32) ([]float32, float64) {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSquares)
	if norm == 0 {
		return v, 0
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, norm
}

// Add inserts vectors under the given ids, storing their metadata. A vector
// whose length does not equal the index's dimension is rejected wholesale
// (none of the batch is inserted) with KindDimensionMismatch. A zero-norm
// vector under the cosine metric is likewise rejected, since it carries no
// directional information to compare against.
func (idx *Index) Add(ids []string, vectors [][]float32, metadata []map[string]interface{}) error {
	if len(ids) != len(vectors) || len(ids) != len(metadata) {
		return iperr.New(iperr.KindDimensionMismatch, "ids, vectors, and metadata must have equal length")
	}
	prepared := make([]*entry, len(ids))
	for i, v := range vectors {
		if len(v) != idx.dim {
			return iperr.New(iperr.KindDimensionMismatch, "vector has wrong dimension")
		}
		stored := v
		if idx.metric == Cosine {
			normed, norm := normalize(v)
			if norm == 0 {
				return iperr.New(iperr.KindDimensionMismatch, "zero-norm vector rejected under cosine metric")
			}
			stored = normed
		}
		prepared[i] = &entry{vector: append([]float32(nil), stored...), metadata: metadata[i]}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	for i, id := range ids {
		idx.byID[id] = prepared[i]
	}
	return nil
}

// GetVector returns the stored vector for id, or (nil, false) if absent or
// tombstoned. The returned vector is normalized if the index metric is
// cosine.
func (idx *Index) GetVector(id string) ([]float32, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	e, ok := idx.byID[id]
	if !ok || e.tombstoned {
		return nil, false
	}
	return append([]float32(nil), e.vector...), true
}

// GetMetadata returns the stored metadata for id, or (nil, false) if absent
// or tombstoned.
func (idx *Index) GetMetadata(id string) (map[string]interface{}, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	e, ok := idx.byID[id]
	if !ok || e.tombstoned {
		return nil, false
	}
	return e.metadata, true
}

// UpdateMetadata replaces id's metadata, returning false if id is unknown or
// tombstoned.
func (idx *Index) UpdateMetadata(id string, meta map[string]interface{}) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	e, ok := idx.byID[id]
	if !ok || e.tombstoned {
		return false
	}
	e.metadata = meta
	return true
}

// Delete tombstones every id in ids. Get* calls on a tombstoned id behave as
// if it were never added; Search skips it. Returns false if none of the ids
// were present.
func (idx *Index) Delete(ids []string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	any := false
	for _, id := range ids {
		if e, ok := idx.byID[id]; ok {
			e.tombstoned = true
			any = true
		}
	}
	return any
}

// SearchResult is one ranked hit from Search.
type SearchResult struct {
	ID         string
	Similarity float64
	Metadata   map[string]interface{}
}

// Filter is applied to a candidate's metadata; candidates for which it
// returns false are excluded before ranking.
type Filter func(metadata map[string]interface{}) bool

// Search ranks every non-tombstoned vector against query and returns the
// top_k results. For cosine, similarity is the inner product of normalized
// vectors (descending). For L2, Similarity holds the Euclidean distance and
// results are ordered by ascending distance. Ties are broken by id,
// lexicographically.
func (idx *Index) Search(query []float32, topK int, filter Filter) ([]SearchResult, error) {
	if len(query) != idx.dim {
		return nil, iperr.New(iperr.KindDimensionMismatch, "query vector has wrong dimension")
	}

	q := query
	if idx.metric == Cosine {
		normed, norm := normalize(query)
		if norm == 0 {
			return nil, iperr.New(iperr.KindDimensionMismatch, "zero-norm query vector rejected under cosine metric")
		}
		q = normed
	}

	idx.mu.RLock()
	type scored struct {
		id    string
		score float64 // similarity for cosine, distance for l2
		meta  map[string]interface{}
	}
	candidates := make([]scored, 0, len(idx.byID))
	for id, e := range idx.byID {
		if e.tombstoned {
			continue
		}
		if filter != nil && !filter(e.metadata) {
			continue
		}
		var score float64
		if idx.metric == Cosine {
			score = dot(q, e.vector)
		} else {
			score = l2Distance(q, e.vector)
		}
		candidates = append(candidates, scored{id: id, score: score, meta: e.metadata})
	}
	idx.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			if idx.metric == Cosine {
				return candidates[i].score > candidates[j].score
			}
			return candidates[i].score < candidates[j].score
		}
		return candidates[i].id < candidates[j].id
	})

	if topK < len(candidates) {
		candidates = candidates[:topK]
	}
	out := make([]SearchResult, len(candidates))
	for i, c := range candidates {
		out[i] = SearchResult{ID: c.id, Similarity: c.score, Metadata: c.meta}
	}
	return out, nil
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Dim reports the fixed dimension of the index.
func (idx *Index) Dim() int { return idx.dim }

// MetricName reports the configured metric.
func (idx *Index) MetricName() Metric { return idx.metric }

// Len reports the number of non-tombstoned entries.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	n := 0
	for _, e := range idx.byID {
		if !e.tombstoned {
			n++
		}
	}
	return n
}

// Snapshot returns every live (id, vector, metadata) triple, sorted by id.
// This is the enumeration ExportToCAR serializes.
func (idx *Index) Snapshot() []struct {
	ID       string
	Vector   []float32
	Metadata map[string]interface{}
} {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	type row = struct {
		ID       string
		Vector   []float32
		Metadata map[string]interface{}
	}
	out := make([]row, 0, len(idx.byID))
	for id, e := range idx.byID {
		if e.tombstoned {
			continue
		}
		out = append(out, row{ID: id, Vector: append([]float32(nil), e.vector...), Metadata: e.metadata})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
