package blockstore

import (
	"context"

	cid "github.com/ipfs/go-cid"

	"github.com/endomorphosis/ipfs-datasets-py-sub029/internal/ipld/cidutil"
	"github.com/endomorphosis/ipfs-datasets-py-sub029/internal/ipld/dagpb"
)

// PutRaw and GetRaw satisfy internal/ipld/car's BlockSink and the bytes half
// of its BlockSource, so an FSBlockStore can be handed directly to
// car.Export/car.Import.
func (s *FSBlockStore) PutRaw(_ context.Context, id cid.Cid, raw []byte) error {
	return s.PutEncoded(id, raw)
}

func (s *FSBlockStore) GetRaw(_ context.Context, id cid.Cid) ([]byte, error) {
	return s.Get(id)
}

// Links returns id's outbound DAG-PB links, or none for a raw/dag-json leaf.
// This is the other half of car.BlockSource: it lets car.Export walk the
// graph without needing to know which blocks are DAG-PB ahead of time.
func (s *FSBlockStore) Links(_ context.Context, id cid.Cid, raw []byte) ([]cid.Cid, error) {
	if id.Prefix().Codec != cidutil.CodecDagPB {
		return nil, nil
	}
	codec := dagpb.NewCodec(0, nil)
	node, err := codec.DecodeBlock(raw, id)
	if err != nil {
		return nil, err
	}
	links := make([]cid.Cid, len(node.Links))
	for i, l := range node.Links {
		links[i] = l.Cid
	}
	return links, nil
}
