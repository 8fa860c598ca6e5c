// Package dagpb implements encode/decode of DAG-PB nodes: an opaque Data
// payload plus an ordered list of named links to other CIDs. See spec.md §4.2
// and §6 for the wire format and canonicalization rules.
package dagpb

import (
	"bytes"
	"encoding/json"
	"sort"

	cid "github.com/ipfs/go-cid"
)

// Link is a single named edge to another CID, with an optional size hint
// (Tsize, following the field name used on the wire).
type Link struct {
	Name  string
	Cid   cid.Cid
	Tsize uint64
}

// Node is the in-memory form of a DAG-PB node: opaque Data plus an ordered
// list of Links. Canonical() returns a copy with links deduplicated and
// sorted, matching what EncodeNode serializes.
type Node struct {
	Data  []byte
	Links []Link
}

// Canonical returns a new Node whose Links are deduplicated by (Name, Cid)
// and sorted ascending by Name, ties broken by Cid's byte form, and whose
// Data is re-emitted with insignificant JSON whitespace stripped when Data
// parses as JSON. This is the pure function referenced by spec invariant I6.
func (n Node) Canonical() Node {
	return Node{
		Data:  canonicalizeData(n.Data),
		Links: canonicalizeLinks(n.Links),
	}
}

// Equal reports whether two nodes have the same canonical form.
func (n Node) Equal(other Node) bool {
	a, b := n.Canonical(), other.Canonical()
	if !bytes.Equal(a.Data, b.Data) {
		return false
	}
	if len(a.Links) != len(b.Links) {
		return false
	}
	for i := range a.Links {
		if a.Links[i].Name != b.Links[i].Name ||
			!a.Links[i].Cid.Equals(b.Links[i].Cid) ||
			a.Links[i].Tsize != b.Links[i].Tsize {
			return false
		}
	}
	return true
}

func canonicalizeLinks(links []Link) []Link {
	if len(links) == 0 {
		return nil
	}
	dedup := make(map[string]Link, len(links))
	order := make([]string, 0, len(links))
	for _, l := range links {
		key := l.Name + "\x00" + l.Cid.KeyString()
		if _, seen := dedup[key]; !seen {
			order = append(order, key)
		}
		// last write wins for a duplicate (name, cid) pair's Tsize, matching
		// "duplicate (name, cid) pairs removed" without mandating which
		// Tsize survives — spec only requires the pair collapse to one link.
		dedup[key] = l
	}
	out := make([]Link, 0, len(order))
	for _, key := range order {
		out = append(out, dedup[key])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Cid.KeyString() < out[j].Cid.KeyString()
	})
	return out
}

// canonicalizeData re-emits Data with insignificant whitespace stripped when
// it parses as JSON; otherwise it is returned unchanged.
func canonicalizeData(data []byte) []byte {
	if len(data) == 0 {
		return data
	}
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return data
	}
	compact, err := json.Marshal(v)
	if err != nil {
		return data
	}
	return compact
}
