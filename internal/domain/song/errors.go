package song

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("song not found")
	ErrConflict           = errors.New("song token already exists")
	ErrPayloadTooLarge    = errors.New("file exceeds maximum allowed size")
	ErrUploadFailed       = errors.New("upload failed")
	ErrServiceUnavailable = errors.New("service temporarily unavailable")
)

// ValidationError lists the rejected fields with a reason for each.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }
