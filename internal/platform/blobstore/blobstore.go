// Package blobstore stores treatment and signature photos. It defines the
// Store interface, a disk-backed implementation with atomic replacement, an
// in-memory implementation for tests and development, and an Echo handler
// that serves stored photos.
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
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrBlobNotFound = errors.New("photo not found")
	ErrBlobExists   = errors.New("photo already exists")
	ErrFileTooLarge = errors.New("file exceeds maximum allowed size")
	ErrInvalidName  = errors.New("invalid photo name")
)

// MaxFileSize is the default upload limit in bytes (10 MiB).
const MaxFileSize = 10 * 1024 * 1024

// tempPrefix marks in-flight writes in a photo directory.
const tempPrefix = ".tmp-"

// ---------------------------------------------------------------------------
// Domain types
// ---------------------------------------------------------------------------

// BlobMetadata describes a stored photo.
type BlobMetadata struct {
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash,omitempty"`
	ModTime     time.Time `json:"mod_time"`
}

// Store is the contract for photo storage backends. Names are flat file
// names; see ValidateName.
type Store interface {
	// Put stores a new photo read from r, failing with ErrFileTooLarge when r
	// yields more than the store's size limit.
	Put(ctx context.Context, name string, r io.Reader) (*BlobMetadata, error)
	// Replace atomically overwrites an existing photo.
	Replace(ctx context.Context, name string, data []byte) (*BlobMetadata, error)
	Open(ctx context.Context, name string) (io.ReadCloser, *BlobMetadata, error)
	Stat(ctx context.Context, name string) (*BlobMetadata, error)
	Delete(ctx context.Context, name string) error
}

// ValidateName rejects names that could escape the photo directory or
// collide with temp files.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("%w: %q is hidden", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	}
	return nil
}

// SniffContentType returns the MIME type of data from its leading bytes.
func SniffContentType(data []byte) string {
	return http.DetectContentType(data)
}

func hashOf(data []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

// readLimited reads r fully, failing with ErrFileTooLarge past limit bytes.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, ErrFileTooLarge
	}
	return data, nil
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

type storedBlob struct {
	metadata BlobMetadata
	content  []byte
}

// InMemoryStore is a thread-safe, in-memory Store for tests and development.
type InMemoryStore struct {
	mu      sync.RWMutex
	blobs   map[string]*storedBlob
	maxSize int64
}

// NewInMemoryStore returns an empty store. maxSize <= 0 selects MaxFileSize.
func NewInMemoryStore(maxSize int64) *InMemoryStore {
	if maxSize <= 0 {
		maxSize = MaxFileSize
	}
	return &InMemoryStore{
		blobs:   make(map[string]*storedBlob),
		maxSize: maxSize,
	}
}

func (s *InMemoryStore) Put(_ context.Context, name string, r io.Reader) (*BlobMetadata, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	data, err := readLimited(r, s.maxSize)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[name]; ok {
		return nil, ErrBlobExists
	}
	meta := s.store(name, data)
	return &meta, nil
}

func (s *InMemoryStore) Replace(_ context.Context, name string, data []byte) (*BlobMetadata, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[name]; !ok {
		return nil, ErrBlobNotFound
	}
	meta := s.store(name, bytes.Clone(data))
	return &meta, nil
}

// store must be called with s.mu held.
func (s *InMemoryStore) store(name string, data []byte) BlobMetadata {
	meta := BlobMetadata{
		Name:        name,
		ContentType: SniffContentType(data),
		Size:        int64(len(data)),
		Hash:        hashOf(data),
		ModTime:     time.Now().UTC(),
	}
	s.blobs[name] = &storedBlob{metadata: meta, content: data}
	return meta
}

func (s *InMemoryStore) Open(_ context.Context, name string) (io.ReadCloser, *BlobMetadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[name]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrBlobNotFound
	}
	meta := blob.metadata
	return io.NopCloser(bytes.NewReader(blob.content)), &meta, nil
}

func (s *InMemoryStore) Stat(_ context.Context, name string) (*BlobMetadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[name]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrBlobNotFound
	}
	meta := blob.metadata
	return &meta, nil
}

func (s *InMemoryStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[name]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, name)
	return nil
}

// Len returns the number of stored photos.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
