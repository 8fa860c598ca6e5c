// Package blockstore is a content-addressed, file-system-backed store for
// raw blocks, keyed by CID string. Layout and locking discipline follow the
// gist store this module was adapted from: one mutex guards read-modify-write
// sequences, and every key is sanitized before it touches the filesystem.
package blockstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	cid "github.com/ipfs/go-cid"
	"golang.org/x/sync/errgroup"

	"github.com/endomorphosis/ipfs-datasets-py-sub029/internal/ipld/cidutil"
	"github.com/endomorphosis/ipfs-datasets-py-sub029/internal/ipld/iperr"
)

// sanitizePathComponent rejects any component that could escape the blocks
// directory (empty, separators, "..", or anything filepath.Clean would
// rewrite).
func sanitizePathComponent(component string) (string, error) {
	if component == "" {
		return "", fmt.Errorf("path component cannot be empty")
	}
	if strings.Contains(component, "/") || strings.Contains(component, "\\") ||
		strings.Contains(component, "..") || component == "." {
		return "", fmt.Errorf("invalid path component: %s", component)
	}
	cleaned := filepath.Clean(component)
	if cleaned != component {
		return "", fmt.Errorf("path component contains invalid characters: %s", component)
	}
	return cleaned, nil
}

// FSBlockStore stores raw bytes under {base}/blocks/{cid}.
type FSBlockStore struct {
	base string
	mu   sync.Mutex
}

// NewFSBlockStore returns a store rooted at base. The blocks directory is
// created lazily on first Put.
func NewFSBlockStore(base string) *FSBlockStore {
	return &FSBlockStore{base: base}
}

func (s *FSBlockStore) blockPath(id cid.Cid) (string, error) {
	clean, err := sanitizePathComponent(id.String())
	if err != nil {
		return "", iperr.Wrap(iperr.KindIOFailure, "sanitize cid path component", err)
	}
	return filepath.Join(s.base, "blocks", clean), nil
}

// Put stores raw under the raw-codec CID of its own bytes and returns that
// CID. This is the public put(bytes) -> CID contract: the store computes
// the identifier, the caller never supplies one.
func (s *FSBlockStore) Put(raw []byte) (cid.Cid, error) {
	id, err := cidutil.Compute(cidutil.CodecRaw, raw)
	if err != nil {
		return cid.Undef, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.putLocked(id, raw); err != nil {
		return cid.Undef, err
	}
	return id, nil
}

// PutEncoded stores raw under a CID already computed by the caller (the
// dagpb codec, the CAR importer, and the chunker all compute CIDs under
// non-raw codec tags before the bytes ever reach the store). raw is
// verified against id before being written.
func (s *FSBlockStore) PutEncoded(id cid.Cid, raw []byte) error {
	if err := cidutil.VerifyAny(id, raw); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(id, raw)
}

func (s *FSBlockStore) putLocked(id cid.Cid, raw []byte) error {
	path, err := s.blockPath(id)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return iperr.Wrap(iperr.KindIOFailure, "create blocks directory", err)
	}
	if err := writeAtomic(path, raw); err != nil {
		return iperr.Wrap(iperr.KindIOFailure, "write block", err)
	}
	return nil
}

// writeAtomic implements spec §6's "write to temp, fsync, rename": data
// lands in a sibling temp file first, is flushed to stable storage, then
// swapped into place with a single rename, so a reader never observes a
// partially-written block and a crash mid-write leaves the temp file
// orphaned rather than the real path truncated.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Get reads the raw bytes stored under id, returning iperr.KindNotFound if
// absent.
func (s *FSBlockStore) Get(id cid.Cid) ([]byte, error) {
	path, err := s.blockPath(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, iperr.New(iperr.KindNotFound, "block "+id.String()+" not found")
		}
		return nil, iperr.Wrap(iperr.KindIOFailure, "read block", err)
	}
	return data, nil
}

// Has reports whether id is present, without reading its bytes.
func (s *FSBlockStore) Has(id cid.Cid) (bool, error) {
	path, err := s.blockPath(id)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, iperr.Wrap(iperr.KindIOFailure, "stat block", err)
	}
	return true, nil
}

// Block pairs a CID with its raw bytes, the unit PutBatch/GetBatch operate
// on.
type Block struct {
	Cid   cid.Cid
	Bytes []byte
}

// PutBatch stores every payload under its own raw-codec CID, in one held
// lock, and returns the CIDs in input order. No CID is returned unless its
// block has already been durably written.
func (s *FSBlockStore) PutBatch(payloads [][]byte) ([]cid.Cid, error) {
	ids := make([]cid.Cid, len(payloads))
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, raw := range payloads {
		id, err := cidutil.Compute(cidutil.CodecRaw, raw)
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

// PutEncodedBatch verifies and writes every pre-identified block under one
// held lock, so other writers never interleave with the batch. Get does not
// take that lock, so a concurrent reader can see some of the batch's blocks
// before the rest are written.
func (s *FSBlockStore) PutEncodedBatch(blocks []Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range blocks {
		if err := cidutil.VerifyAny(b.Cid, b.Bytes); err != nil {
			return err
		}
		if err := s.putLocked(b.Cid, b.Bytes); err != nil {
			return err
		}
	}
	return nil
}

// GetBatch reads every id concurrently and returns them in input order,
// canceling the remaining reads on the first error or on ctx cancellation.
func (s *FSBlockStore) GetBatch(ctx context.Context, ids []cid.Cid) ([]Block, error) {
	out := make([]Block, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return iperr.Wrap(iperr.KindCancelled, "get batch", err)
			}
			data, err := s.Get(id)
			if err != nil {
				return err
			}
			out[i] = Block{Cid: id, Bytes: data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
