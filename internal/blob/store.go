// Package blob stores uploaded audio payloads behind an opaque key.
package blob

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

var (
	ErrNotFound        = errors.New("blob not found")
	ErrStorage         = errors.New("blob storage failure")
	ErrPayloadTooLarge = errors.New("payload exceeds maximum allowed size")
	ErrInvalidKey      = errors.New("invalid blob key")
)

// Ref describes a stored payload.
type Ref struct {
	Key      string
	Size     int64
	Checksum string // blake2b-256, hex
}

// Object is one entry reported by Store.Walk.
type Object struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// Store is implemented by every blob backend.
//
// Put is atomic: a key is returned only once the whole payload is stored.
// Get streams; callers must close the returned reader.
type Store interface {
	Put(ctx context.Context, r io.Reader, contentType string) (Ref, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Size(ctx context.Context, key string) (int64, error)
	Delete(ctx context.Context, key string) error
	Walk(ctx context.Context, fn func(Object) error) error
}

// newKey returns a fresh key laid out as YYYY/MM/DD/<uuid>.
func newKey(now time.Time) string {
	return now.UTC().Format("2006/01/02") + "/" + uuid.NewString()
}

func checkKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") || path.Clean(key) != key || strings.HasPrefix(key, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// spooled is a payload copied to a local temp file, size-checked and hashed.
type spooled struct {
	file     *os.File
	size     int64
	checksum string
}

// spool copies r into a temp file under dir. It stops reading as soon as more
// than maxSize bytes arrive (maxSize <= 0 disables the limit).
func spool(ctx context.Context, r io.Reader, dir string, maxSize int64) (*spooled, error) {
	f, err := os.CreateTemp(dir, "upload-*")
	if err != nil {
		return nil, fmt.Errorf("%w: create temp file: %v", ErrStorage, err)
	}
	fail := func(err error) (*spooled, error) {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}

	h, err := blake2b.New256(nil)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrStorage, err))
	}

	src := r
	if maxSize > 0 {
		src = io.LimitReader(r, maxSize+1)
	}
	n, err := io.Copy(io.MultiWriter(f, h), src)
	if err != nil {
		return fail(fmt.Errorf("%w: copy payload: %v", ErrStorage, err))
	}
	if maxSize > 0 && n > maxSize {
		return fail(ErrPayloadTooLarge)
	}
	if err := ctx.Err(); err != nil {
		return fail(fmt.Errorf("%w: %v", ErrStorage, err))
	}
	if err := f.Sync(); err != nil {
		return fail(fmt.Errorf("%w: sync: %v", ErrStorage, err))
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fail(fmt.Errorf("%w: rewind: %v", ErrStorage, err))
	}

	return &spooled{file: f, size: n, checksum: hex.EncodeToString(h.Sum(nil))}, nil
}

// discard closes and removes the spool file.
func (s *spooled) discard() {
	s.file.Close()
	os.Remove(s.file.Name())
}
