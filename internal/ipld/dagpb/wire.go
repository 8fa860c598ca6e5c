package dagpb

import (
	"bytes"
	"io"

	cid "github.com/ipfs/go-cid"
	"github.com/multiformats/go-varint"

	"github.com/endomorphosis/ipfs-datasets-py-sub029/internal/ipld/iperr"
)

// Wire format (spec.md §6): a protobuf message with
//   field 1 (Data, optional bytes)
//   field 2 (Links, repeated message): Hash bytes, Name string, Tsize uint64
// Link sub-fields are, in PBLink itself: field 1 Hash, field 2 Name, field 3
// Tsize. Links are emitted in canonical (sorted, deduped) order.

const (
	wireTypeVarint = 0
	wireTypeBytes  = 2

	fieldNodeData  = 1
	fieldNodeLinks = 2

	fieldLinkHash  = 1
	fieldLinkName  = 2
	fieldLinkTsize = 3
)

func putTag(buf *bytes.Buffer, field int, wireType int) {
	tag := uint64(field)<<3 | uint64(wireType)
	var tmp [binaryMaxVarintLen]byte
	n := varint.PutUvarint(tmp[:], tag)
	buf.Write(tmp[:n])
}

const binaryMaxVarintLen = 10

func putVarint(buf *bytes.Buffer, v uint64) {
	var tmp [binaryMaxVarintLen]byte
	n := varint.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func putBytesField(buf *bytes.Buffer, field int, data []byte) {
	putTag(buf, field, wireTypeBytes)
	putVarint(buf, uint64(len(data)))
	buf.Write(data)
}

func putVarintField(buf *bytes.Buffer, field int, v uint64) {
	putTag(buf, field, wireTypeVarint)
	putVarint(buf, v)
}

// marshalLink encodes a single PBLink sub-message.
func marshalLink(l Link) []byte {
	var buf bytes.Buffer
	putBytesField(&buf, fieldLinkHash, l.Cid.Bytes())
	putBytesField(&buf, fieldLinkName, []byte(l.Name))
	if l.Tsize != 0 {
		putVarintField(&buf, fieldLinkTsize, l.Tsize)
	}
	return buf.Bytes()
}

// marshal serializes a node that has already been canonicalized. Links must
// be written in the order given (the caller is responsible for
// canonicalizing beforehand); this keeps marshal a pure, order-preserving
// function so EncodeBatch can byte-match per-node encoding.
func marshal(n Node) []byte {
	var buf bytes.Buffer
	for _, l := range n.Links {
		putBytesField(&buf, fieldNodeLinks, marshalLink(l))
	}
	if len(n.Data) > 0 {
		putBytesField(&buf, fieldNodeData, n.Data)
	}
	return buf.Bytes()
}

type byteReader struct {
	b   []byte
	pos int
}

func (r *byteReader) ReadByte() (byte, error) {
	if r.pos >= len(r.b) {
		return 0, io.EOF
	}
	c := r.b[r.pos]
	r.pos++
	return c, nil
}

func readTag(r *byteReader) (field int, wireType int, err error) {
	v, err := varint.ReadUvarint(r)
	if err != nil {
		return 0, 0, err
	}
	return int(v >> 3), int(v & 0x7), nil
}

func readLenDelim(r *byteReader) ([]byte, error) {
	l, err := varint.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	if uint64(r.pos)+l > uint64(len(r.b)) {
		return nil, io.ErrUnexpectedEOF
	}
	data := r.b[r.pos : r.pos+int(l)]
	r.pos += int(l)
	return data, nil
}

func readVarint(r *byteReader) (uint64, error) {
	return varint.ReadUvarint(r)
}

// unmarshal parses raw protobuf bytes into a Node. Unknown fields are
// rejected as CorruptBlock since this wire format is fixed and not meant to
// evolve; a genuinely corrupt or truncated message should not silently
// decode into a partial node.
func unmarshal(raw []byte) (Node, error) {
	r := &byteReader{b: raw}
	var n Node
	for r.pos < len(r.b) {
		field, wireType, err := readTag(r)
		if err != nil {
			return Node{}, iperr.Wrap(iperr.KindCorruptBlock, "read field tag", err)
		}
		switch field {
		case fieldNodeData:
			if wireType != wireTypeBytes {
				return Node{}, iperr.New(iperr.KindCorruptBlock, "data field has wrong wire type")
			}
			data, err := readLenDelim(r)
			if err != nil {
				return Node{}, iperr.Wrap(iperr.KindCorruptBlock, "read data field", err)
			}
			n.Data = append([]byte(nil), data...)
		case fieldNodeLinks:
			if wireType != wireTypeBytes {
				return Node{}, iperr.New(iperr.KindCorruptBlock, "links field has wrong wire type")
			}
			sub, err := readLenDelim(r)
			if err != nil {
				return Node{}, iperr.Wrap(iperr.KindCorruptBlock, "read link field", err)
			}
			link, err := unmarshalLink(sub)
			if err != nil {
				return Node{}, err
			}
			n.Links = append(n.Links, link)
		default:
			return Node{}, iperr.New(iperr.KindCorruptBlock, "unknown field in PBNode")
		}
	}
	return n, nil
}

func unmarshalLink(raw []byte) (Link, error) {
	r := &byteReader{b: raw}
	var l Link
	var hashBytes []byte
	for r.pos < len(r.b) {
		field, wireType, err := readTag(r)
		if err != nil {
			return Link{}, iperr.Wrap(iperr.KindCorruptBlock, "read link field tag", err)
		}
		switch field {
		case fieldLinkHash:
			if wireType != wireTypeBytes {
				return Link{}, iperr.New(iperr.KindCorruptBlock, "link hash has wrong wire type")
			}
			hashBytes, err = readLenDelim(r)
			if err != nil {
				return Link{}, iperr.Wrap(iperr.KindCorruptBlock, "read link hash", err)
			}
		case fieldLinkName:
			if wireType != wireTypeBytes {
				return Link{}, iperr.New(iperr.KindCorruptBlock, "link name has wrong wire type")
			}
			nameBytes, err := readLenDelim(r)
			if err != nil {
				return Link{}, iperr.Wrap(iperr.KindCorruptBlock, "read link name", err)
			}
			l.Name = string(nameBytes)
		case fieldLinkTsize:
			if wireType != wireTypeVarint {
				return Link{}, iperr.New(iperr.KindCorruptBlock, "link tsize has wrong wire type")
			}
			l.Tsize, err = readVarint(r)
			if err != nil {
				return Link{}, iperr.Wrap(iperr.KindCorruptBlock, "read link tsize", err)
			}
		default:
			return Link{}, iperr.New(iperr.KindCorruptBlock, "unknown field in PBLink")
		}
	}
	if hashBytes == nil {
		return Link{}, iperr.New(iperr.KindCorruptBlock, "link missing hash field")
	}
	c, err := cid.Cast(hashBytes)
	if err != nil {
		return Link{}, iperr.Wrap(iperr.KindCorruptBlock, "parse link cid", err)
	}
	l.Cid = c
	return l, nil
}
