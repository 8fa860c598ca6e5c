package kg

import (
	"context"
	"sort"
	"sync"

	cid "github.com/ipfs/go-cid"

	"github.com/endomorphosis/ipfs-datasets-py-sub029/internal/ipld/chunker"
	"github.com/endomorphosis/ipfs-datasets-py-sub029/internal/ipld/iperr"
	"github.com/endomorphosis/ipfs-datasets-py-sub029/internal/ipld/vectorindex"
)

// VectorStore is the subset of *vectorindex.Index AddEntity needs to attach
// a vector to a newly created entity, and VectorAugmentedQuery needs to seed
// a traversal from. Declared narrowly so graph tests can substitute a
// double without pulling in a real index.
type VectorStore interface {
	Add(ids []string, vectors [][]float32, metadata []map[string]interface{}) error
	Search(query []float32, topK int, filter vectorindex.Filter) ([]vectorindex.SearchResult, error)
}

// Graph is an in-memory, mutation-buffered knowledge graph. Mutations
// (AddEntity, AddRelationship) are held in memory; Flush is what persists
// dirty entities/relationships, rebuilds the root record, chunks it, and
// assigns a fresh root CID (spec §4.7 "_update_root_cid", supplemented in
// SPEC_FULL.md §7 to be manually invoked rather than automatic).
type Graph struct {
	mu sync.RWMutex

	name        string
	store       chunker.Store
	chunk       chunker.Chunker
	vectorStore VectorStore

	entities   map[string]*Entity
	entityCIDs map[string]cid.Cid
	entityType map[string][]string // type -> entity ids, insertion order

	relationships   map[string]*Relationship
	relationshipCID map[string]cid.Cid
	outgoing        map[string][]string // source entity id -> relationship ids
	incoming        map[string][]string // target entity id -> relationship ids

	dirtyEntities      map[string]struct{}
	dirtyRelationships map[string]struct{}

	rootCID        *cid.Cid
	vectorStoreCID *cid.Cid
}

// NewGraph constructs an empty graph named name, persisting through store.
// vectorStore may be nil; AddEntity then rejects any call that supplies a
// vector.
func NewGraph(name string, store chunker.Store, vectorStore VectorStore) *Graph {
	return &Graph{
		name:                name,
		store:               store,
		vectorStore:         vectorStore,
		entities:            make(map[string]*Entity),
		entityCIDs:          make(map[string]cid.Cid),
		entityType:          make(map[string][]string),
		relationships:       make(map[string]*Relationship),
		relationshipCID:     make(map[string]cid.Cid),
		outgoing:            make(map[string][]string),
		incoming:            make(map[string][]string),
		dirtyEntities:       make(map[string]struct{}),
		dirtyRelationships:  make(map[string]struct{}),
	}
}

// SetChunker overrides the default Chunker (e.g. to lower thresholds in
// tests). Call before the first Flush.
func (g *Graph) SetChunker(c chunker.Chunker) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.chunk = c
}

// SetVectorStoreCID records the CID under which this graph's attached
// vector index was last exported, so it is carried as the root record's
// optional vector_store_cid field on the next Flush. Graph itself never
// exports the vector index; see DESIGN.md for the scope decision.
func (g *Graph) SetVectorStoreCID(id cid.Cid) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.vectorStoreCID = &id
}

// AddEntity creates a new entity and returns it. If vector is non-nil, it is
// appended to the attached vector store under the entity's id and the id is
// recorded in the entity's VectorIDs; AddEntity returns KindNoVectorStore if
// vector is non-nil but no vector store is attached.
func (g *Graph) AddEntity(entityType, name string, properties map[string]interface{}, vector []float32) (Entity, error) {
	props := properties
	if props == nil {
		props = make(map[string]interface{})
	}
	id := newID()
	e := Entity{ID: id, Type: entityType, Name: name, Properties: props}

	if vector != nil {
		if g.vectorStore == nil {
			return Entity{}, iperr.New(iperr.KindNoVectorStore, "entity supplies a vector but no vector store is attached")
		}
		if err := g.vectorStore.Add([]string{id}, [][]float32{vector}, []map[string]interface{}{{"entity_id": id}}); err != nil {
			return Entity{}, err
		}
		e.VectorIDs = []string{id}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.entities[id] = &e
	g.entityType[entityType] = append(g.entityType[entityType], id)
	g.dirtyEntities[id] = struct{}{}
	return e, nil
}

// AddRelationship creates a directed edge of type relType from source to
// target, each of which may be an Entity, *Entity, or bare id string.
// Returns KindUnknownEntity (I5) if either endpoint is not in the graph.
func (g *Graph) AddRelationship(relType string, source, target interface{}, properties map[string]interface{}) (Relationship, error) {
	sourceID, ok := entityRefID(source)
	if !ok {
		return Relationship{}, iperr.New(iperr.KindUnknownEntity, "relationship source is not a valid entity reference")
	}
	targetID, ok := entityRefID(target)
	if !ok {
		return Relationship{}, iperr.New(iperr.KindUnknownEntity, "relationship target is not a valid entity reference")
	}

	props := properties
	if props == nil {
		props = make(map[string]interface{})
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.entities[sourceID]; !ok {
		return Relationship{}, iperr.New(iperr.KindUnknownEntity, "relationship source id "+sourceID+" does not exist")
	}
	if _, ok := g.entities[targetID]; !ok {
		return Relationship{}, iperr.New(iperr.KindUnknownEntity, "relationship target id "+targetID+" does not exist")
	}

	id := newID()
	r := Relationship{ID: id, Type: relType, SourceID: sourceID, TargetID: targetID, Properties: props}
	g.relationships[id] = &r
	g.outgoing[sourceID] = append(g.outgoing[sourceID], id)
	g.incoming[targetID] = append(g.incoming[targetID], id)
	g.dirtyRelationships[id] = struct{}{}
	return r, nil
}

// GetEntity returns a copy of the entity with id, or false if absent.
func (g *Graph) GetEntity(id string) (Entity, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.entities[id]
	if !ok {
		return Entity{}, false
	}
	return *e, true
}

// GetRelationship returns a copy of the relationship with id, or false if
// absent.
func (g *Graph) GetRelationship(id string) (Relationship, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.relationships[id]
	if !ok {
		return Relationship{}, false
	}
	return *r, true
}

// GetEntityRelationships returns every relationship touching id in the
// requested direction, ordered by relationship id for determinism.
func (g *Graph) GetEntityRelationships(id string, dir Direction) []Relationship {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ids []string
	switch dir {
	case Outgoing:
		ids = append(ids, g.outgoing[id]...)
	case Incoming:
		ids = append(ids, g.incoming[id]...)
	case Both:
		ids = append(ids, g.outgoing[id]...)
		ids = append(ids, g.incoming[id]...)
	}
	sort.Strings(ids)

	out := make([]Relationship, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, rid := range ids {
		if _, dup := seen[rid]; dup {
			continue
		}
		seen[rid] = struct{}{}
		if r, ok := g.relationships[rid]; ok {
			out = append(out, *r)
		}
	}
	return out
}

// EntitiesByType returns the ids of every entity of the given type, in the
// order they were added.
func (g *Graph) EntitiesByType(entityType string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, len(g.entityType[entityType]))
	copy(out, g.entityType[entityType])
	return out
}

// RootCID reports the graph's current root CID, or (undef, false) if the
// graph has never been flushed.
func (g *Graph) RootCID() (cid.Cid, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.rootCID == nil {
		return cid.Undef, false
	}
	return *g.rootCID, true
}

// Flush persists every dirty entity/relationship as its own block, rebuilds
// the root record from the graph's full (not just dirty) entity/relationship
// sets, chunks it via Chunker if oversized, and assigns the result as the
// new root CID. Flush is idempotent: calling it with nothing dirty still
// rebuilds and re-persists the root (cheap, since entity/relationship blocks
// are unchanged and so reuse their existing CIDs).
func (g *Graph) Flush(ctx context.Context) (cid.Cid, error) {
	if err := ctx.Err(); err != nil {
		return cid.Undef, iperr.Wrap(iperr.KindCancelled, "flush graph", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for id := range g.dirtyEntities {
		e := g.entities[id]
		ecid, err := g.store.PutJSON(e)
		if err != nil {
			return cid.Undef, err
		}
		g.entityCIDs[id] = ecid
	}
	g.dirtyEntities = make(map[string]struct{})

	for id := range g.dirtyRelationships {
		r := g.relationships[id]
		rcid, err := g.store.PutJSON(r)
		if err != nil {
			return cid.Undef, err
		}
		g.relationshipCID[id] = rcid
	}
	g.dirtyRelationships = make(map[string]struct{})

	entityIDs := make([]interface{}, 0, len(g.entities))
	entityCIDsOut := make(map[string]interface{}, len(g.entities))
	for id := range g.entities {
		entityIDs = append(entityIDs, id)
		entityCIDsOut[id] = g.entityCIDs[id].String()
	}
	sortInterfaceStrings(entityIDs)

	relationshipIDs := make([]interface{}, 0, len(g.relationships))
	relationshipCIDsOut := make(map[string]interface{}, len(g.relationships))
	for id := range g.relationships {
		relationshipIDs = append(relationshipIDs, id)
		relationshipCIDsOut[id] = g.relationshipCID[id].String()
	}
	sortInterfaceStrings(relationshipIDs)

	fields := map[string]interface{}{
		"name":              g.name,
		"entity_ids":        entityIDs,
		"entity_cids":       entityCIDsOut,
		"relationship_ids":  relationshipIDs,
		"relationship_cids": relationshipCIDsOut,
	}
	if g.vectorStoreCID != nil {
		fields["vector_store_cid"] = g.vectorStoreCID.String()
	}

	record, _, err := g.chunk.SerializeRoot(ctx, g.store, fields)
	if err != nil {
		return cid.Undef, err
	}

	rootID, err := g.store.PutJSON(record)
	if err != nil {
		return cid.Undef, err
	}
	g.rootCID = &rootID
	return rootID, nil
}

func sortInterfaceStrings(s []interface{}) {
	sort.Slice(s, func(i, j int) bool {
		si, _ := s[i].(string)
		sj, _ := s[j].(string)
		return si < sj
	})
}

// FromCID loads a graph from a previously flushed root CID, resolving any
// chunk descriptors the chunker introduced and reconstructing every entity
// and relationship plus the secondary indices over them.
func FromCID(ctx context.Context, rootID cid.Cid, store chunker.Store, vectorStore VectorStore) (*Graph, error) {
	if err := ctx.Err(); err != nil {
		return nil, iperr.Wrap(iperr.KindCancelled, "load graph", err)
	}

	var raw map[string]interface{}
	if err := store.GetJSON(rootID, &raw); err != nil {
		return nil, err
	}

	var c chunker.Chunker
	resolved, err := c.DeserializeRoot(ctx, store, raw)
	if err != nil {
		return nil, err
	}

	g := NewGraph("", store, vectorStore)
	if name, ok := resolved["name"].(string); ok {
		g.name = name
	}
	g.rootCID = &rootID

	entityIDs, _ := resolved["entity_ids"].([]interface{})
	entityCIDsRaw, _ := resolved["entity_cids"].(map[string]interface{})
	for _, v := range entityIDs {
		id, _ := v.(string)
		cidStr, _ := entityCIDsRaw[id].(string)
		ecid, err := cid.Decode(cidStr)
		if err != nil {
			return nil, iperr.Wrap(iperr.KindCorruptBlock, "parse entity cid", err)
		}
		var e Entity
		if err := store.GetJSON(ecid, &e); err != nil {
			return nil, err
		}
		g.entities[e.ID] = &e
		g.entityCIDs[e.ID] = ecid
		g.entityType[e.Type] = append(g.entityType[e.Type], e.ID)
	}

	relationshipIDs, _ := resolved["relationship_ids"].([]interface{})
	relationshipCIDsRaw, _ := resolved["relationship_cids"].(map[string]interface{})
	for _, v := range relationshipIDs {
		id, _ := v.(string)
		cidStr, _ := relationshipCIDsRaw[id].(string)
		rcid, err := cid.Decode(cidStr)
		if err != nil {
			return nil, iperr.Wrap(iperr.KindCorruptBlock, "parse relationship cid", err)
		}
		var r Relationship
		if err := store.GetJSON(rcid, &r); err != nil {
			return nil, err
		}
		g.relationships[r.ID] = &r
		g.relationshipCID[r.ID] = rcid
		g.outgoing[r.SourceID] = append(g.outgoing[r.SourceID], r.ID)
		g.incoming[r.TargetID] = append(g.incoming[r.TargetID], r.ID)
	}

	if vsCIDStr, ok := resolved["vector_store_cid"].(string); ok && vsCIDStr != "" {
		vsCID, err := cid.Decode(vsCIDStr)
		if err != nil {
			return nil, iperr.Wrap(iperr.KindCorruptBlock, "parse vector store cid", err)
		}
		g.vectorStoreCID = &vsCID
	}

	return g, nil
}
