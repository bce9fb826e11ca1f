package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DiskStore keeps photos as flat files in one directory. Every write goes
// through a temp file in the same directory, so readers never see a partially
// written photo. Put commits with os.Link, which fails when the name already
// exists; Replace commits with os.Rename.
type DiskStore struct {
	dir     string
	maxSize int64
	logger  zerolog.Logger
}

// NewDiskStore creates dir if needed. maxSize <= 0 selects MaxFileSize.
func NewDiskStore(dir string, maxSize int64, logger zerolog.Logger) (*DiskStore, error) {
	if dir == "" {
		return nil, errors.New("photo directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating photo directory: %w", err)
	}
	if maxSize <= 0 {
		maxSize = MaxFileSize
	}
	return &DiskStore{
		dir:     dir,
		maxSize: maxSize,
		logger:  logger.With().Str("component", "blobstore").Str("dir", dir).Logger(),
	}, nil
}

// Dir returns the photo directory.
func (s *DiskStore) Dir() string { return s.dir }

func (s *DiskStore) path(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, name), nil
}

func (s *DiskStore) Put(ctx context.Context, name string, r io.Reader) (*BlobMetadata, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(p); err == nil {
		return nil, ErrBlobExists
	}
	hash, err := s.writeAtomic(ctx, p, io.LimitReader(r, s.maxSize+1), s.maxSize, true)
	if err != nil {
		return nil, err
	}
	return s.statWithHash(name, p, hash)
}

func (s *DiskStore) Replace(ctx context.Context, name string, data []byte) (*BlobMetadata, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	hash, err := s.writeAtomic(ctx, p, bytes.NewReader(data), -1, false)
	if err != nil {
		return nil, err
	}
	return s.statWithHash(name, p, hash)
}

// writeAtomic copies r into a temp file and moves it to dst. An exclusive
// write links the temp file to dst and returns ErrBlobExists if dst is
// already there; otherwise the temp file is renamed over dst. A limit >= 0
// rejects content longer than limit bytes. It returns the SHA-256 of the
// written content.
func (s *DiskStore) writeAtomic(ctx context.Context, dst string, r io.Reader, limit int64, exclusive bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(s.dir, tempPrefix+"*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if committed {
			return
		}
		tmp.Close()
		if err := os.Remove(tmpName); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn().Err(err).Str("temp", tmpName).Msg("failed to remove temp file")
		}
	}()

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err != nil {
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if limit >= 0 && n > limit {
		return "", ErrFileTooLarge
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	hash := fmt.Sprintf("%x", h.Sum(nil))
	if exclusive {
		// The temp name is removed by the deferred cleanup either way.
		if err := os.Link(tmpName, dst); err != nil {
			if errors.Is(err, fs.ErrExist) {
				return "", ErrBlobExists
			}
			return "", fmt.Errorf("link temp to final: %w", err)
		}
		return hash, nil
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return "", fmt.Errorf("rename temp to final: %w", err)
	}
	committed = true
	return hash, nil
}

func (s *DiskStore) Open(_ context.Context, name string) (io.ReadCloser, *BlobMetadata, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open photo: %w", err)
	}
	meta, err := describe(name, f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, meta, nil
}

func (s *DiskStore) Stat(_ context.Context, name string) (*BlobMetadata, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	return s.statWithHash(name, p, "")
}

func (s *DiskStore) Delete(_ context.Context, name string) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrBlobNotFound
		}
		return fmt.Errorf("delete photo: %w", err)
	}
	return nil
}

func (s *DiskStore) statWithHash(name, p, hash string) (*BlobMetadata, error) {
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open photo: %w", err)
	}
	defer f.Close()
	meta, err := describe(name, f)
	if err != nil {
		return nil, err
	}
	meta.Hash = hash
	return meta, nil
}

// describe stats f and sniffs its content type, leaving f at offset 0.
func describe(name string, f *os.File) (*BlobMetadata, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat photo: %w", err)
	}
	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("read photo header: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind photo: %w", err)
	}
	return &BlobMetadata{
		Name:        name,
		ContentType: SniffContentType(head[:n]),
		Size:        info.Size(),
		ModTime:     info.ModTime().UTC(),
	}, nil
}

// CleanStaleTemp removes temp files older than maxAge left behind by
// interrupted writes. It returns how many were removed.
func (s *DiskStore) CleanStaleTemp(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("reading photo directory: %w", err)
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), tempPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		full := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn().Err(err).Str("temp", full).Msg("failed to remove stale temp file")
			continue
		}
		removed++
	}
	return removed, nil
}
