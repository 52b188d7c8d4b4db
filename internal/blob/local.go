package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const tmpDirName = ".tmp"

// LocalStore keeps blobs on the local filesystem under baseDir.
// Payloads are spooled into baseDir/.tmp and renamed into place, so a key
// never points at a partially written file.
type LocalStore struct {
	baseDir string
	maxSize int64
	now     func() time.Time
}

func NewLocalStore(baseDir string, maxSize int64) (*LocalStore, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("blob: local store needs a base directory")
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(abs, tmpDirName), 0755); err != nil {
		return nil, fmt.Errorf("blob: create base directory: %w", err)
	}
	return &LocalStore{baseDir: abs, maxSize: maxSize, now: time.Now}, nil
}

func (s *LocalStore) Put(ctx context.Context, r io.Reader, contentType string) (Ref, error) {
	sp, err := spool(ctx, r, filepath.Join(s.baseDir, tmpDirName), s.maxSize)
	if err != nil {
		return Ref{}, err
	}
	tmpPath := sp.file.Name()
	if err := sp.file.Close(); err != nil {
		os.Remove(tmpPath)
		return Ref{}, fmt.Errorf("%w: close temp file: %v", ErrStorage, err)
	}

	key := newKey(s.now())
	dst := s.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		os.Remove(tmpPath)
		return Ref{}, fmt.Errorf("%w: create directory: %v", ErrStorage, err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return Ref{}, fmt.Errorf("%w: rename: %v", ErrStorage, err)
	}

	return Ref{Key: key, Size: sp.size, Checksum: sp.checksum}, nil
}

func (s *LocalStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open: %v", ErrStorage, err)
	}
	return f, nil
}

func (s *LocalStore) Size(ctx context.Context, key string) (int64, error) {
	if err := checkKey(key); err != nil {
		return 0, err
	}
	info, err := os.Stat(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("%w: stat: %v", ErrStorage, err)
	}
	return info.Size(), nil
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	err := os.Remove(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: remove: %v", ErrStorage, err)
	}
	return nil
}

func (s *LocalStore) Walk(ctx context.Context, fn func(Object) error) error {
	return filepath.WalkDir(s.baseDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == tmpDirName {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.baseDir, p)
		if err != nil {
			return err
		}
		return fn(Object{Key: filepath.ToSlash(rel), Size: info.Size(), ModTime: info.ModTime()})
	})
}

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(strings.TrimPrefix(key, "/")))
}
