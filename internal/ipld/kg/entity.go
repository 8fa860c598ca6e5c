// Package kg implements the knowledge-graph layer: entities and typed,
// directed relationships between them, persisted through a block store and
// addressed as a whole by a single root CID. See spec §4.7.
package kg

import "github.com/google/uuid"

// Entity is a typed, named node. Identity is ID; Type indexes into the
// graph's secondary type index.
type Entity struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Name       string                 `json:"name"`
	Properties map[string]interface{} `json:"properties"`
	VectorIDs  []string               `json:"vector_ids,omitempty"`
}

// Relationship is a directed, typed edge between two entities. Multiple
// relationships between the same ordered pair are allowed as long as their
// ids differ (I5 only constrains endpoint existence, not edge uniqueness).
type Relationship struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	SourceID   string                 `json:"source_id"`
	TargetID   string                 `json:"target_id"`
	Properties map[string]interface{} `json:"properties"`
}

// Direction selects which edges GetEntityRelationships considers relative to
// an entity.
type Direction string

const (
	Outgoing Direction = "outgoing"
	Incoming Direction = "incoming"
	Both     Direction = "both"
)

func newID() string {
	return uuid.New().String()
}

// entityRefID resolves an AddRelationship endpoint argument, which spec
// §4.7 allows to be either an already-known Entity or a bare id string.
func entityRefID(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, t != ""
	case Entity:
		return t.ID, t.ID != ""
	case *Entity:
		if t == nil {
			return "", false
		}
		return t.ID, t.ID != ""
	default:
		return "", false
	}
}
