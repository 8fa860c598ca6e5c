// Package car implements the CAR (Content-Addressable aRchive) streaming
// format: a header of root CIDs followed by a sequence of
// length-prefixed (cid, bytes) sections. See spec.md §5.
package car

import (
	"context"
	"io"

	"github.com/fxamacker/cbor/v2"
	cid "github.com/ipfs/go-cid"
	"github.com/multiformats/go-varint"

	"github.com/endomorphosis/ipfs-datasets-py-sub029/internal/ipld/cidutil"
	"github.com/endomorphosis/ipfs-datasets-py-sub029/internal/ipld/iperr"
)

// header is the CBOR form of the CARv1 header, {version, roots}. Roots are
// carried as raw CID bytes rather than CBOR tag-42 links: this module reads
// and writes the archive directly against a BlockSource/BlockStore, so it
// has no need for a full IPLD-schema-typed node to thread CIDs through.
type header struct {
	Version uint64   `cbor:"version"`
	Roots   [][]byte `cbor:"roots"`
}

const currentVersion = 1

// BlockSource supplies a block's bytes and outbound links during Export, so
// the DFS walk knows how to continue without depending on any particular
// node codec.
type BlockSource interface {
	// GetRaw returns the stored bytes for id.
	GetRaw(ctx context.Context, id cid.Cid) ([]byte, error)
	// Links returns the CIDs id's block itself points to (empty for leaves).
	Links(ctx context.Context, id cid.Cid, raw []byte) ([]cid.Cid, error)
}

// BlockSink receives blocks decoded from an archive during Import.
type BlockSink interface {
	PutRaw(ctx context.Context, id cid.Cid, raw []byte) error
}

func putUvarint(v uint64) []byte {
	buf := make([]byte, 10)
	n := varint.PutUvarint(buf, v)
	return buf[:n]
}

func writeSection(w io.Writer, id cid.Cid, raw []byte) error {
	idBytes := id.Bytes()
	total := uint64(len(idBytes) + len(raw))
	lenBuf := putUvarint(total)
	if _, err := w.Write(lenBuf); err != nil {
		return iperr.Wrap(iperr.KindIOFailure, "write section length", err)
	}
	if _, err := w.Write(idBytes); err != nil {
		return iperr.Wrap(iperr.KindIOFailure, "write section cid", err)
	}
	if _, err := w.Write(raw); err != nil {
		return iperr.Wrap(iperr.KindIOFailure, "write section bytes", err)
	}
	return nil
}

type byteReader struct {
	r   io.Reader
	buf [1]byte
}

func (b *byteReader) ReadByte() (byte, error) {
	if _, err := io.ReadFull(b.r, b.buf[:]); err != nil {
		return 0, err
	}
	return b.buf[0], nil
}

// readSection reads one (cid, bytes) section, or io.EOF if the stream ends
// cleanly at a section boundary.
func readSection(r io.Reader) (cid.Cid, []byte, error) {
	br := &byteReader{r: r}
	length, err := varint.ReadUvarint(br)
	if err != nil {
		if err == io.EOF {
			return cid.Undef, nil, io.EOF
		}
		return cid.Undef, nil, iperr.Wrap(iperr.KindIOFailure, "read section length", err)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return cid.Undef, nil, iperr.Wrap(iperr.KindCorruptBlock, "read section body", err)
	}

	n, c, err := cid.CidFromBytes(data)
	if err != nil {
		return cid.Undef, nil, iperr.Wrap(iperr.KindCorruptBlock, "parse section cid", err)
	}
	return c, data[n:], nil
}

// Export streams a DFS traversal of roots (and everything reachable through
// src's Links) into w as a CAR file. Each CID is written at most once even
// if reachable through multiple paths; content addressing precludes cycles,
// so no cycle detection is needed beyond the visited set, which also bounds
// memory to the number of distinct blocks visited rather than path length.
func Export(ctx context.Context, roots []cid.Cid, src BlockSource, w io.Writer) error {
	hdrBytes, err := cbor.Marshal(header{
		Version: currentVersion,
		Roots:   rootBytes(roots),
	})
	if err != nil {
		return iperr.Wrap(iperr.KindIOFailure, "marshal car header", err)
	}
	lenBuf := putUvarint(uint64(len(hdrBytes)))
	if _, err := w.Write(lenBuf); err != nil {
		return iperr.Wrap(iperr.KindIOFailure, "write car header length", err)
	}
	if _, err := w.Write(hdrBytes); err != nil {
		return iperr.Wrap(iperr.KindIOFailure, "write car header", err)
	}

	visited := make(map[string]struct{})
	var walk func(id cid.Cid) error
	walk = func(id cid.Cid) error {
		if ctx.Err() != nil {
			return iperr.Wrap(iperr.KindCancelled, "export cancelled", ctx.Err())
		}
		key := id.KeyString()
		if _, ok := visited[key]; ok {
			return nil
		}
		visited[key] = struct{}{}

		raw, err := src.GetRaw(ctx, id)
		if err != nil {
			return err
		}
		if err := writeSection(w, id, raw); err != nil {
			return err
		}
		links, err := src.Links(ctx, id, raw)
		if err != nil {
			return err
		}
		for _, l := range links {
			if err := walk(l); err != nil {
				return err
			}
		}
		return nil
	}

	for _, root := range roots {
		if err := walk(root); err != nil {
			return err
		}
	}
	return nil
}

// Import reads a CAR stream from r, storing every block into sink and
// returning the archive's declared root CIDs. Each block's bytes are
// re-hashed and checked against its claimed CID before being handed to sink.
func Import(ctx context.Context, r io.Reader, sink BlockSink) ([]cid.Cid, error) {
	br := &byteReader{r: r}
	hdrLen, err := varint.ReadUvarint(br)
	if err != nil {
		return nil, iperr.Wrap(iperr.KindCorruptBlock, "read car header length", err)
	}
	hdrBytes := make([]byte, hdrLen)
	if _, err := io.ReadFull(r, hdrBytes); err != nil {
		return nil, iperr.Wrap(iperr.KindCorruptBlock, "read car header", err)
	}
	var hdr header
	if err := cbor.Unmarshal(hdrBytes, &hdr); err != nil {
		return nil, iperr.Wrap(iperr.KindCorruptBlock, "unmarshal car header", err)
	}

	roots, err := parseRootBytes(hdr.Roots)
	if err != nil {
		return nil, err
	}

	for {
		if ctx.Err() != nil {
			return nil, iperr.Wrap(iperr.KindCancelled, "import cancelled", ctx.Err())
		}
		id, raw, err := readSection(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if err := cidutil.VerifyAny(id, raw); err != nil {
			return nil, err
		}
		if err := sink.PutRaw(ctx, id, raw); err != nil {
			return nil, err
		}
	}
	return roots, nil
}

func rootBytes(roots []cid.Cid) [][]byte {
	out := make([][]byte, len(roots))
	for i, r := range roots {
		out[i] = r.Bytes()
	}
	return out
}

func parseRootBytes(raw [][]byte) ([]cid.Cid, error) {
	out := make([]cid.Cid, len(raw))
	for i, b := range raw {
		c, err := cid.Cast(b)
		if err != nil {
			return nil, iperr.Wrap(iperr.KindCorruptBlock, "parse root cid", err)
		}
		out[i] = c
	}
	return out, nil
}
