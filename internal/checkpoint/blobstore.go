// Package checkpoint implements spec.md §4.6 component H: a
// content-addressed file-checkpoint store supporting rollback and unified
// diff. Blob bytes live in a flat directory sharded by the first two hex
// bytes of their SHA-256 hash (spec.md §6's "recommended: sharded by first
// 2 bytes"); checkpoint/file_snapshot/blob metadata rows live in the
// internal/store Repository layer.
package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/orbitx-dev/orbitx/internal/orbiterr"
)

// BlobStore is the on-disk half of the content-addressed store;
// store.BlobRepository (internal/store/checkpoints.go) is the metadata half.
type BlobStore struct {
	root string
}

// NewBlobStore opens (creating if necessary) a blob store rooted at dir.
func NewBlobStore(dir string) (*BlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("checkpoint.NewBlobStore: %w", err)
	}
	return &BlobStore{root: dir}, nil
}

// Hash returns the content address (hex SHA-256) of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (s *BlobStore) path(hash string) string {
	if len(hash) < 2 {
		return filepath.Join(s.root, "_short", hash)
	}
	return filepath.Join(s.root, hash[:2], hash)
}

// Write stores data under its content hash, returning the hash. Writes are
// idempotent by hash (spec.md §5): if the blob already exists on disk it is
// not rewritten.
func (s *BlobStore) Write(data []byte) (string, error) {
	hash := Hash(data)
	p := s.path(hash)
	if _, err := os.Stat(p); err == nil {
		return hash, nil
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("checkpoint.BlobStore.Write: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".blob-*.tmp")
	if err != nil {
		return "", fmt.Errorf("checkpoint.BlobStore.Write: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("checkpoint.BlobStore.Write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("checkpoint.BlobStore.Write: %w", err)
	}
	if err := os.Rename(tmpPath, p); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("checkpoint.BlobStore.Write: %w", err)
	}
	return hash, nil
}

// Read returns the bytes stored under hash.
func (s *BlobStore) Read(hash string) ([]byte, error) {
	data, err := os.ReadFile(s.path(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, orbiterr.New(orbiterr.KindBlobNotFound, "checkpoint.BlobStore.Read", err)
		}
		return nil, fmt.Errorf("checkpoint.BlobStore.Read: %w", err)
	}
	return data, nil
}

// Delete removes the on-disk blob for hash. Idempotent.
func (s *BlobStore) Delete(hash string) error {
	if err := os.Remove(s.path(hash)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("checkpoint.BlobStore.Delete: %w", err)
	}
	return nil
}
