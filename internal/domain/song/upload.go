package song

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sethvargo/go-retry"

	"songshare/internal/blob"
	"songshare/internal/pkg/validator"
)

const maxOriginalName = 255

var (
	errGeneration    = errors.New("token generation failed")
	errNotRewindable = errors.New("upload stream cannot be replayed")
)

// UploadInput is one upload as received from a client.
type UploadInput struct {
	File        io.Reader `json:"-"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"` // declared size, -1 when unknown
	Title       string    `json:"title" validate:"required,max=200"`
	Artist      string    `json:"artist" validate:"required,max=200"`
	Description string    `json:"description" validate:"max=2000"`
}

// Upload validates in, stores the payload and creates the song.
//
// Every validation failure is reported before any storage I/O. A token
// collision or a storage fault deletes the stored blob and starts over with
// a new token, up to MaxAttempts. The caller gets either a complete song or
// an error with no blob or record left behind.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*Song, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Artist = strings.TrimSpace(in.Artist)
	in.Description = strings.TrimSpace(in.Description)
	in.FileName = filepath.Base(strings.TrimSpace(in.FileName))
	if in.FileName == "." || in.FileName == "/" {
		in.FileName = ""
	}

	if err := s.validate(in); err != nil {
		return nil, err
	}

	header, detected, err := sniff(in.File)
	if err != nil {
		return nil, fmt.Errorf("%w: read upload: %v", ErrUploadFailed, err)
	}
	if len(header) == 0 {
		return nil, &ValidationError{Fields: map[string]string{"file": "is empty"}}
	}
	declared, _ := declaredAudioType(in.ContentType, in.FileName)
	contentType, ok := audioContentType(detected, declared)
	if !ok {
		return nil, &ValidationError{Fields: map[string]string{"file": "is not a recognised audio file"}}
	}

	var (
		created *Song
		attempt int
	)
	backoff := retry.WithMaxRetries(uint64(s.opts.MaxAttempts-1), retry.NewConstant(s.opts.RetryDelay))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		body, err := replay(in.File, header, attempt)
		if err != nil {
			return err
		}
		song, err := s.store(ctx, body, contentType, in)
		if err != nil {
			return err
		}
		created = song
		return nil
	})
	if err != nil {
		return nil, uploadError(err, attempt)
	}

	log.Printf("song_upload created token_len=%d size=%s content_type=%s attempts=%d",
		len(created.Token), humanize.Bytes(uint64(created.SizeBytes)), created.ContentType, attempt)
	return created, nil
}

func (s *Service) validate(in UploadInput) error {
	fields := validator.Validate(in)
	if fields == nil {
		fields = map[string]string{}
	}

	switch _, audio := declaredAudioType(in.ContentType, in.FileName); {
	case in.File == nil:
		fields["file"] = "is required"
	case in.Size == 0:
		fields["file"] = "is empty"
	case !audio:
		fields["file"] = "must be an audio file"
	}
	if len(in.FileName) > maxOriginalName {
		fields["file_name"] = fmt.Sprintf("must be at most %d characters", maxOriginalName)
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	if in.Size > s.opts.MaxUploadSize {
		return ErrPayloadTooLarge
	}
	return nil
}

// store runs one attempt: token, blob, record. Everything but an oversized
// payload is worth another attempt and is wrapped with retry.RetryableError.
func (s *Service) store(ctx context.Context, body io.Reader, contentType string, in UploadInput) (*Song, error) {
	tok, err := s.tokens.Generate()
	if err != nil {
		return nil, retry.RetryableError(fmt.Errorf("%w: %v", errGeneration, err))
	}

	ref, err := s.blobs.Put(ctx, body, contentType)
	if err != nil {
		if errors.Is(err, blob.ErrPayloadTooLarge) {
			return nil, err
		}
		return nil, retry.RetryableError(err)
	}

	song := &Song{
		Token:        tok,
		Title:        in.Title,
		Artist:       in.Artist,
		Description:  in.Description,
		BlobRef:      ref.Key,
		ContentType:  contentType,
		OriginalName: in.FileName,
		Checksum:     ref.Checksum,
		SizeBytes:    ref.Size,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.Create(ctx, song); err != nil {
		s.discardBlob(ctx, ref.Key)
		if errors.Is(err, ErrConflict) {
			log.Printf("song_upload token_conflict blob_ref=%s", ref.Key)
		}
		return nil, retry.RetryableError(err)
	}
	return song, nil
}

// replay returns the full payload for the given attempt. Seekable inputs
// (multipart files) are rewound; plain streams can only be read once.
func replay(file io.Reader, header []byte, attempt int) (io.Reader, error) {
	if seeker, ok := file.(io.Seeker); ok {
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		return file, nil
	}
	if attempt > 1 {
		return nil, errNotRewindable
	}
	return io.MultiReader(bytes.NewReader(header), file), nil
}

func uploadError(err error, attempts int) error {
	switch {
	case errors.Is(err, blob.ErrPayloadTooLarge):
		return ErrPayloadTooLarge
	case errors.Is(err, ErrConflict):
		return fmt.Errorf("%w: token collision after %d attempts", ErrUploadFailed, attempts)
	case errors.Is(err, errGeneration):
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	default:
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
}
