package main

import (
	cid "github.com/ipfs/go-cid"

	"github.com/endomorphosis/ipfs-datasets-py-sub029/internal/ipld/iperr"
)

func parseCID(s string) (cid.Cid, error) {
	id, err := cid.Decode(s)
	if err != nil {
		return cid.Undef, iperr.Wrap(iperr.KindMalformedCID, "parse cid argument "+s, err)
	}
	return id, nil
}
