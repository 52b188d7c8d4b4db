package song

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"songshare/internal/blob"
)

// blobInfo is the immutable part of a song needed to serve a download.
type blobInfo struct {
	BlobRef     string
	ContentType string
	FileName    string
	Checksum    string
	Size        int64
}

// Download is an open audio stream. Body must be closed by the caller.
type Download struct {
	Token       string
	ContentType string
	FileName    string
	Checksum    string
	Size        int64
	Body        io.ReadCloser
}

// ResolveMetadata returns the song behind token and counts one view.
// Unknown tokens, whatever their shape, yield ErrNotFound.
func (s *Service) ResolveMetadata(ctx context.Context, token string) (*Song, error) {
	if err := s.repo.IncrementView(ctx, token); err != nil {
		return nil, lookupError(err)
	}
	song, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return nil, lookupError(err)
	}
	return song, nil
}

// ResolveDownload opens the audio behind token and counts one download.
// The counter moves only once the blob is open, so a failed read of the
// store never counts.
func (s *Service) ResolveDownload(ctx context.Context, token string) (*Download, error) {
	info, err := s.lookup(ctx, token)
	if err != nil {
		return nil, err
	}

	body, err := s.blobs.Get(ctx, info.BlobRef)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			log.Printf("song_download missing_blob blob_ref=%s", info.BlobRef)
		}
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}

	if err := s.repo.IncrementDownload(ctx, token); err != nil {
		body.Close()
		return nil, lookupError(err)
	}

	return &Download{
		Token:       token,
		ContentType: info.ContentType,
		FileName:    info.FileName,
		Checksum:    info.Checksum,
		Size:        info.Size,
		Body:        body,
	}, nil
}

// Recent lists songs newest first without touching any counter.
func (s *Service) Recent(ctx context.Context, limit int) ([]*Song, error) {
	songs, err := s.repo.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	return songs, nil
}

// lookup serves the immutable download info from cache. Counters are never
// cached. Misses are not cached either.
func (s *Service) lookup(ctx context.Context, token string) (blobInfo, error) {
	if info, ok := s.cache.Get(token); ok {
		return info, nil
	}
	song, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return blobInfo{}, lookupError(err)
	}
	info := blobInfo{
		BlobRef:     song.BlobRef,
		ContentType: song.ContentType,
		FileName:    song.OriginalName,
		Checksum:    song.Checksum,
		Size:        song.SizeBytes,
	}
	s.cache.Add(token, info)
	return info, nil
}
