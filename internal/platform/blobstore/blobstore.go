// Package blobstore keeps uploaded workbook files so an upload can be
// downloaded again after ingestion. It defines the BlobStore interface, an
// in-memory implementation for tests and development, and a directory
// backed implementation.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrBlobNotFound    = errors.New("blob not found")
	ErrFileTooLarge    = errors.New("file exceeds maximum allowed size")
	ErrMissingFileName = errors.New("file name is required")
	ErrInvalidID       = errors.New("invalid blob id")
)

// MaxFileSize is the largest blob accepted (100 MB).
const MaxFileSize = 100 * 1024 * 1024

// BlobMetadata describes a stored blob.
type BlobMetadata struct {
	ID          string            `json:"id"`
	FileName    string            `json:"file_name"`
	ContentType string            `json:"content_type"`
	Size        int64             `json:"size"`
	Hash        string            `json:"hash"`
	CreatedAt   time.Time         `json:"created_at"`
	CreatedBy   string            `json:"created_by"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// BlobStore defines the contract for blob storage backends. Upload keeps
// meta.ID when set, replacing any blob with that id.
type BlobStore interface {
	Upload(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error)
	Download(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error)
	Delete(ctx context.Context, id string) error
	GetMetadata(ctx context.Context, id string) (*BlobMetadata, error)
}

// prepare reads content and fills the derived metadata fields.
func prepare(meta BlobMetadata, content io.Reader) (BlobMetadata, []byte, error) {
	if meta.FileName == "" {
		return meta, nil, ErrMissingFileName
	}
	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return meta, nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return meta, nil, ErrFileTooLarge
	}

	sum := sha256.Sum256(data)
	if meta.ID == "" {
		meta.ID = uuid.New().String()
	}
	if meta.ContentType == "" {
		meta.ContentType = "application/octet-stream"
	}
	meta.Size = int64(len(data))
	meta.Hash = hex.EncodeToString(sum[:])
	meta.CreatedAt = time.Now().UTC()
	return meta, data, nil
}

// -- In-memory implementation --

type storedBlob struct {
	metadata BlobMetadata
	content  []byte
}

// InMemoryBlobStore is a thread-safe, in-memory BlobStore for testing/dev.
type InMemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string]*storedBlob
}

func NewInMemoryBlobStore() *InMemoryBlobStore {
	return &InMemoryBlobStore{blobs: make(map[string]*storedBlob)}
}

func (s *InMemoryBlobStore) Upload(_ context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	meta, data, err := prepare(meta, content)
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

func (s *InMemoryBlobStore) GetMetadata(_ context.Context, id string) (*BlobMetadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrBlobNotFound
	}
	meta := blob.metadata
	return &meta, nil
}

// -- Directory implementation --

// DirBlobStore stores each blob as <dir>/<id> with its metadata in
// <dir>/<id>.json.
type DirBlobStore struct {
	dir string
}

func NewDirBlobStore(dir string) (*DirBlobStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &DirBlobStore{dir: dir}, nil
}

var blobIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func (s *DirBlobStore) paths(id string) (string, string, error) {
	if !blobIDPattern.MatchString(id) {
		return "", "", ErrInvalidID
	}
	base := filepath.Join(s.dir, id)
	return base, base + ".json", nil
}

func (s *DirBlobStore) Upload(_ context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	meta, data, err := prepare(meta, content)
	if err != nil {
		return nil, err
	}
	blobPath, metaPath, err := s.paths(meta.ID)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(blobPath, data, 0o640); err != nil {
		return nil, fmt.Errorf("write blob: %w", err)
	}
	if err := os.WriteFile(metaPath, encoded, 0o640); err != nil {
		return nil, fmt.Errorf("write blob metadata: %w", err)
	}
	return &meta, nil
}

func (s *DirBlobStore) Download(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	meta, err := s.GetMetadata(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	blobPath, _, _ := s.paths(id)
	f, err := os.Open(blobPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return f, meta, nil
}

func (s *DirBlobStore) Delete(_ context.Context, id string) error {
	blobPath, metaPath, err := s.paths(id)
	if err != nil {
		return err
	}
	if err := os.Remove(metaPath); errors.Is(err, os.ErrNotExist) {
		return ErrBlobNotFound
	} else if err != nil {
		return err
	}
	if err := os.Remove(blobPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *DirBlobStore) GetMetadata(_ context.Context, id string) (*BlobMetadata, error) {
	_, metaPath, err := s.paths(id)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(metaPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, err
	}
	var meta BlobMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode blob metadata: %w", err)
	}
	return &meta, nil
}
