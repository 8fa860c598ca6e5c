// Package cidutil computes and parses content identifiers (CIDs) the way
// the rest of internal/ipld/... expects: CIDv1, sha2-256 multihash, caller
// supplied codec tag.
package cidutil

import (
	cid "github.com/ipfs/go-cid"
	"github.com/multiformats/go-multibase"
	mh "github.com/multiformats/go-multihash"

	"github.com/endomorphosis/ipfs-datasets-py-sub029/internal/ipld/iperr"
)

// Multicodec tags used by this module. Raw is uninterpreted bytes,
// DagPB is a DAG-PB encoded node, DagJSON is used for JSON blocks (root
// records, chunk shards, manifests).
const (
	CodecRaw     = 0x55
	CodecDagPB   = 0x70
	CodecDagJSON = 0x0129
)

// HashName is the multicodec name of the hash function this module commits
// to, per spec.md's recorded Open Question decision (sha2-256 multihash).
const HashName = "sha2-256"

// Compute derives a CIDv1 for payload under the given codec tag using
// sha2-256 multihash. Equal (codec, payload) pairs always produce equal
// CIDs; unequal CIDs always imply unequal (codec, payload) pairs (modulo
// hash collision, which the multihash contract treats as infeasible).
func Compute(codec uint64, payload []byte) (cid.Cid, error) {
	digest, err := mh.Sum(payload, mh.SHA2_256, -1)
	if err != nil {
		return cid.Undef, iperr.Wrap(iperr.KindIOFailure, "compute multihash", err)
	}
	return cid.NewCidV1(codec, digest), nil
}

// String returns the stable textual form of c (base32, the default CIDv1
// string encoding).
func String(c cid.Cid) string {
	return c.String()
}

// StringOfBase returns the textual form of c encoded under the given
// multibase.
func StringOfBase(c cid.Cid, base multibase.Encoding) (string, error) {
	s, err := c.StringOfBase(base)
	if err != nil {
		return "", iperr.Wrap(iperr.KindMalformedCID, "encode cid string", err)
	}
	return s, nil
}

// Parse decodes a textual CID form, returning iperr.KindMalformedCID on
// failure.
func Parse(s string) (cid.Cid, error) {
	c, err := cid.Decode(s)
	if err != nil {
		return cid.Undef, iperr.Wrap(iperr.KindMalformedCID, "parse cid "+s, err)
	}
	return c, nil
}

// Verify recomputes the CID of payload under codec and compares it to want,
// returning iperr.KindCIDMismatch on mismatch.
func Verify(want cid.Cid, codec uint64, payload []byte) error {
	got, err := Compute(codec, payload)
	if err != nil {
		return err
	}
	if !got.Equals(want) {
		return iperr.New(iperr.KindCIDMismatch, "recomputed cid "+got.String()+" != expected "+want.String())
	}
	return nil
}

// VerifyAny recomputes the CID of payload under want's own codec tag and
// compares it to want. Unlike Verify, the caller does not need to already
// know which codec the block was stored under — this is what lets a
// generic block store (or the CAR importer, which only sees bytes off the
// wire) check a block's integrity without being told its codec out of band.
func VerifyAny(want cid.Cid, payload []byte) error {
	return Verify(want, want.Prefix().Codec, payload)
}
