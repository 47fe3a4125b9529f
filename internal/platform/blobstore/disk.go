package blobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// DiskBlobStore keeps each document as <dir>/<id>.bin with a sidecar
// <id>.json holding its metadata.
type DiskBlobStore struct {
	dir string
	mu  sync.RWMutex
}

// NewDiskBlobStore creates dir if needed.
func NewDiskBlobStore(dir string) (*DiskBlobStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &DiskBlobStore{dir: dir}, nil
}

func (s *DiskBlobStore) contentPath(id string) string { return filepath.Join(s.dir, id+".bin") }
func (s *DiskBlobStore) metaPath(id string) string    { return filepath.Join(s.dir, id+".json") }

// ids are generated by us; anything else never touches the filesystem.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (s *DiskBlobStore) Upload(_ context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	data, err := readContent(&meta, content)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.WriteFile(s.contentPath(meta.ID), data, 0o640); err != nil {
		return nil, fmt.Errorf("write blob: %w", err)
	}
	if err := os.WriteFile(s.metaPath(meta.ID), raw, 0o640); err != nil {
		os.Remove(s.contentPath(meta.ID))
		return nil, fmt.Errorf("write metadata: %w", err)
	}
	out := meta
	return &out, nil
}

func (s *DiskBlobStore) readMeta(id string) (*BlobMetadata, error) {
	if !validID(id) {
		return nil, ErrBlobNotFound
	}
	raw, err := os.ReadFile(s.metaPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var meta BlobMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode metadata %s: %w", id, err)
	}
	return &meta, nil
}

func (s *DiskBlobStore) Download(_ context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta, err := s.readMeta(id)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(s.contentPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open blob: %w", err)
	}
	return f, meta, nil
}

func (s *DiskBlobStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.readMeta(id); err != nil {
		return err
	}
	if err := os.Remove(s.metaPath(id)); err != nil {
		return fmt.Errorf("remove metadata: %w", err)
	}
	if err := os.Remove(s.contentPath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}
