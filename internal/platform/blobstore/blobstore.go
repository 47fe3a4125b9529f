// Package blobstore holds the documents doctors upload for verification.
// Metadata rows live in Postgres; the bytes live here, behind BlobStore.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrEmptyFile          = errors.New("file is empty")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrMissingFileName    = errors.New("file name is required")
	ErrMissingOwner       = errors.New("owner is required")
)

// MaxFileSize is the largest accepted document (10 MB).
const MaxFileSize = 10 * 1024 * 1024

// AllowedContentTypes are the scan formats accepted for credentials.
var AllowedContentTypes = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
}

// BlobMetadata describes a stored document.
type BlobMetadata struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Kind        string    `json:"kind"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash"`
	CreatedAt   time.Time `json:"created_at"`
}

// BlobStore is the contract for document storage backends.
type BlobStore interface {
	Upload(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error)
	Download(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error)
	Delete(ctx context.Context, id string) error
}

// readContent validates meta and drains content, enforcing the size limit.
// A blank or generic content type is replaced by the sniffed one.
func readContent(meta *BlobMetadata, content io.Reader) ([]byte, error) {
	if meta.OwnerID == "" {
		return nil, ErrMissingOwner
	}
	if strings.TrimSpace(meta.FileName) == "" {
		return nil, ErrMissingFileName
	}

	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	if int64(len(data)) > MaxFileSize {
		return nil, ErrFileTooLarge
	}

	ct := strings.ToLower(strings.TrimSpace(meta.ContentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "" || ct == "application/octet-stream" {
		ct, _, _ = strings.Cut(http.DetectContentType(data), ";")
	}
	if !AllowedContentTypes[ct] {
		return nil, ErrInvalidContentType
	}
	meta.ContentType = ct

	meta.ID = uuid.New().String()
	meta.Size = int64(len(data))
	meta.Hash = fmt.Sprintf("%x", sha256.Sum256(data))
	meta.CreatedAt = time.Now().UTC()
	return data, nil
}

type storedBlob struct {
	metadata BlobMetadata
	content  []byte
}

// InMemoryBlobStore is a thread-safe BlobStore for tests and development.
type InMemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string]*storedBlob
}

func NewInMemoryBlobStore() *InMemoryBlobStore {
	return &InMemoryBlobStore{blobs: make(map[string]*storedBlob)}
}

func (s *InMemoryBlobStore) Upload(_ context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	data, err := readContent(&meta, content)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.blobs[meta.ID] = &storedBlob{metadata: meta, content: data}
	s.mu.Unlock()

	out := meta
	return &out, nil
}

func (s *InMemoryBlobStore) Download(_ context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrBlobNotFound
	}
	meta := blob.metadata
	return io.NopCloser(bytes.NewReader(blob.content)), &meta, nil
}

func (s *InMemoryBlobStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[id]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, id)
	return nil
}

