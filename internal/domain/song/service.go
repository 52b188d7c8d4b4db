package song

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"songshare/internal/blob"
)

const (
	DefaultMaxUploadSize = 50 * 1000 * 1000
	DefaultMaxAttempts   = 3
	DefaultRetryDelay    = 10 * time.Millisecond
	DefaultCacheSize     = 1024
	DefaultCacheTTL      = 10 * time.Minute

	discardTimeout = 30 * time.Second
)

// TokenGenerator mints share tokens.
type TokenGenerator interface {
	Generate() (string, error)
}

type Options struct {
	MaxUploadSize int64
	MaxAttempts   int           // upload attempts, first one included
	RetryDelay    time.Duration // pause between upload attempts
	CacheSize     int
	CacheTTL      time.Duration
}

// Service ingests uploads and resolves tokens back to songs.
// It orchestrates TokenGenerator -> blob.Store -> Repository and undoes the
// blob write whenever the song record cannot be created.
type Service struct {
	repo   Repository
	blobs  blob.Store
	tokens TokenGenerator
	opts   Options
	cache  *expirable.LRU[string, blobInfo]
	now    func() time.Time
}

func NewService(repo Repository, blobs blob.Store, tokens TokenGenerator, opts Options) *Service {
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = DefaultMaxUploadSize
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.CacheSize < 1 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	return &Service{
		repo:   repo,
		blobs:  blobs,
		tokens: tokens,
		opts:   opts,
		cache:  expirable.NewLRU[string, blobInfo](opts.CacheSize, nil, opts.CacheTTL),
		now:    time.Now,
	}
}

// MaxUploadSize is the largest accepted payload in bytes.
func (s *Service) MaxUploadSize() int64 { return s.opts.MaxUploadSize }

// discardBlob removes a blob whose song was never created. It runs even if
// the request context is already cancelled.
func (s *Service) discardBlob(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), discardTimeout)
	defer cancel()
	if err := s.blobs.Delete(ctx, key); err != nil && !errors.Is(err, blob.ErrNotFound) {
		log.Printf("song_upload discard_failed blob_ref=%s error=%v", key, err)
	}
}

// lookupError keeps ErrNotFound as is and reports anything else as an
// infrastructure failure.
func lookupError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
}
