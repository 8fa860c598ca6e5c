package blockstore

import (
	"encoding/json"

	cid "github.com/ipfs/go-cid"

	"github.com/endomorphosis/ipfs-datasets-py-sub029/internal/ipld/cidutil"
	"github.com/endomorphosis/ipfs-datasets-py-sub029/internal/ipld/iperr"
	"github.com/endomorphosis/ipfs-datasets-py-sub029/pkg/canonical"
)

// PutJSON canonicalizes v, computes its CID under the dag-json codec, and
// stores the canonical bytes. The CID is therefore a pure function of v's
// decoded value, not of whatever key order the caller happened to build it
// in.
func (s *FSBlockStore) PutJSON(v interface{}) (cid.Cid, error) {
	raw, err := canonical.MarshalJSON(v)
	if err != nil {
		return cid.Undef, iperr.Wrap(iperr.KindIOFailure, "canonicalize json value", err)
	}
	id, err := cidutil.Compute(cidutil.CodecDagJSON, raw)
	if err != nil {
		return cid.Undef, err
	}
	if err := s.PutEncoded(id, raw); err != nil {
		return cid.Undef, err
	}
	return id, nil
}

// GetJSON reads the block stored under id and unmarshals it into out.
func (s *FSBlockStore) GetJSON(id cid.Cid, out interface{}) error {
	raw, err := s.Get(id)
	if err != nil {
		return err
	}
	if err := cidutil.Verify(id, cidutil.CodecDagJSON, raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return iperr.Wrap(iperr.KindCorruptBlock, "unmarshal json block", err)
	}
	return nil
}

// PutJSONBatch canonicalizes and stores every value under one held lock.
func (s *FSBlockStore) PutJSONBatch(values []interface{}) ([]cid.Cid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]cid.Cid, len(values))
	for i, v := range values {
		raw, err := canonical.MarshalJSON(v)
		if err != nil {
			return nil, iperr.Wrap(iperr.KindIOFailure, "canonicalize json value", err)
		}
		id, err := cidutil.Compute(cidutil.CodecDagJSON, raw)
		if err != nil {
			return nil, err
		}
		if err := s.putLocked(id, raw); err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}
