package kg

import (
	"sort"

	"github.com/endomorphosis/ipfs-datasets-py-sub029/internal/ipld/iperr"
)

// PathStep is one hop recorded in a Query result's trace: the relationship
// type followed and the relationship id that carried it.
type PathStep struct {
	RelationshipType string
	RelationshipID   string
}

// QueryResult pairs a reached entity with the sequence of hops that reached
// it.
type QueryResult struct {
	Entity Entity
	Path   []PathStep
}

// Query performs exact multi-hop chasing from start along path, a fixed
// sequence of relationship types: at each step every outgoing edge of the
// step's type is followed, so a start entity with three same-type outgoing
// edges at step one yields three branches at step two. An empty path
// returns exactly [{start, nil}] (SPEC_FULL.md §7, supplemented from
// original_source/).
func (g *Graph) Query(start Entity, path []string) []QueryResult {
	frontier := []QueryResult{{Entity: start, Path: nil}}
	if len(path) == 0 {
		return frontier
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, relType := range path {
		var next []QueryResult
		for _, cur := range frontier {
			relIDs := append([]string(nil), g.outgoing[cur.Entity.ID]...)
			sort.Strings(relIDs)
			for _, rid := range relIDs {
				r, ok := g.relationships[rid]
				if !ok || r.Type != relType {
					continue
				}
				target, ok := g.entities[r.TargetID]
				if !ok {
					continue
				}
				stepPath := append(append([]PathStep(nil), cur.Path...), PathStep{RelationshipType: relType, RelationshipID: rid})
				next = append(next, QueryResult{Entity: *target, Path: stepPath})
			}
		}
		frontier = next
		if len(frontier) == 0 {
			break
		}
	}
	return frontier
}

// VectorResult is one hit from VectorAugmentedQuery.
type VectorResult struct {
	Entity     Entity
	Similarity float64
	Hops       int
}

// VectorAugmentedQuery vector-searches queryVec for topK seed entities
// (hops=0), expands each up to maxHops via any relationship type, dedupes by
// entity id keeping the minimum hop count seen, and sorts by (ascending
// hops, descending similarity). Returns KindNoVectorStore if the graph has
// no vector store attached.
func (g *Graph) VectorAugmentedQuery(queryVec []float32, topK, maxHops int) ([]VectorResult, error) {
	if g.vectorStore == nil {
		return nil, iperr.New(iperr.KindNoVectorStore, "vector-augmented query requires an attached vector store")
	}
	hits, err := g.vectorStore.Search(queryVec, topK, nil)
	if err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	best := make(map[string]VectorResult)
	type frontierEntry struct {
		id   string
		hops int
	}
	var frontier []frontierEntry

	for _, hit := range hits {
		entityID, _ := hit.Metadata["entity_id"].(string)
		if entityID == "" {
			entityID = hit.ID
		}
		e, ok := g.entities[entityID]
		if !ok {
			continue
		}
		if _, seen := best[entityID]; !seen {
			best[entityID] = VectorResult{Entity: *e, Similarity: hit.Similarity, Hops: 0}
			frontier = append(frontier, frontierEntry{id: entityID, hops: 0})
		}
	}

	visited := make(map[string]struct{}, len(frontier))
	for _, f := range frontier {
		visited[f.id] = struct{}{}
	}

	for len(frontier) > 0 {
		var nextFrontier []frontierEntry
		for _, f := range frontier {
			if f.hops >= maxHops {
				continue
			}
			relIDs := append([]string(nil), g.outgoing[f.id]...)
			sort.Strings(relIDs)
			for _, rid := range relIDs {
				r := g.relationships[rid]
				if r == nil {
					continue
				}
				if _, seen := visited[r.TargetID]; seen {
					continue
				}
				visited[r.TargetID] = struct{}{}
				target, ok := g.entities[r.TargetID]
				if !ok {
					continue
				}
				newHops := f.hops + 1
				if existing, seen := best[r.TargetID]; !seen || newHops < existing.Hops {
					best[r.TargetID] = VectorResult{Entity: *target, Similarity: 0, Hops: newHops}
				}
				nextFrontier = append(nextFrontier, frontierEntry{id: r.TargetID, hops: newHops})
			}
		}
		frontier = nextFrontier
	}

	out := make([]VectorResult, 0, len(best))
	for _, v := range best {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Hops != out[j].Hops {
			return out[i].Hops < out[j].Hops
		}
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].Entity.ID < out[j].Entity.ID
	})
	return out, nil
}

// VisitedEntity is one entry of TraverseFromEntitiesWithDepths' result: the
// entity and the BFS depth at which it was first reached.
type VisitedEntity struct {
	Entity Entity
	Depth  int
}

// TraverseFromEntitiesWithDepths runs a breadth-first search from seedIDs
// (all at depth 0), crossing only edges whose type is in relationshipTypes
// when that list is non-empty, stopping once depth would exceed maxDepth or
// the total number of visited nodes would exceed maxNodesVisited (a
// maxNodesVisited of 0 means unbounded). Results are returned in visit
// order: seeds first in the order given, then each subsequent depth in
// lexicographic order by id.
func (g *Graph) TraverseFromEntitiesWithDepths(seedIDs []string, relationshipTypes []string, maxDepth, maxNodesVisited int) []VisitedEntity {
	g.mu.RLock()
	defer g.mu.RUnlock()

	allowed := make(map[string]bool, len(relationshipTypes))
	for _, t := range relationshipTypes {
		allowed[t] = true
	}
	restrictTypes := len(relationshipTypes) > 0

	var out []VisitedEntity
	visited := make(map[string]struct{})

	// level holds every id reached at the current depth, in the order they
	// were emitted — seeds in the order given, every later depth already
	// lexicographic from the previous iteration's sort.
	var level []string
	for _, id := range seedIDs {
		if _, dup := visited[id]; dup {
			continue
		}
		e, ok := g.entities[id]
		if !ok {
			continue
		}
		visited[id] = struct{}{}
		out = append(out, VisitedEntity{Entity: *e, Depth: 0})
		level = append(level, id)
		if maxNodesVisited > 0 && len(out) >= maxNodesVisited {
			return out
		}
	}

	for depth := 0; len(level) > 0 && depth < maxDepth; depth++ {
		// Collect every parent's candidate children for this depth before
		// sorting, so two different parents at the same depth contribute to
		// one lexicographically-ordered sequence instead of each parent's
		// children being emitted in parent-processing order.
		var candidates []string
		for _, id := range level {
			relIDs := append([]string(nil), g.outgoing[id]...)
			sort.Strings(relIDs)
			for _, rid := range relIDs {
				r := g.relationships[rid]
				if r == nil {
					continue
				}
				if restrictTypes && !allowed[r.Type] {
					continue
				}
				if _, dup := visited[r.TargetID]; dup {
					continue
				}
				candidates = append(candidates, r.TargetID)
			}
		}
		sort.Strings(candidates)

		var nextLevel []string
		for _, targetID := range candidates {
			if _, dup := visited[targetID]; dup {
				continue
			}
			e, ok := g.entities[targetID]
			if !ok {
				continue
			}
			visited[targetID] = struct{}{}
			out = append(out, VisitedEntity{Entity: *e, Depth: depth + 1})
			nextLevel = append(nextLevel, targetID)
			if maxNodesVisited > 0 && len(out) >= maxNodesVisited {
				return out
			}
		}
		level = nextLevel
	}
	return out
}
