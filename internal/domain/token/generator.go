// Package token mints the share tokens that identify songs.
//
// A token is the only secret standing between a song and the public, so it is
// built from 122 random bits (a version 4 UUID) and never from counters,
// clocks or content.
package token

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// Length is the size of an encoded token: 16 bytes in unpadded base64url.
const Length = 22

var ErrGeneration = errors.New("token generation failed")

var encoding = base64.RawURLEncoding

// Generator produces tokens from a cryptographic entropy source.
type Generator struct {
	rand io.Reader
}

// NewGenerator returns a Generator reading from crypto/rand.
func NewGenerator() *Generator {
	return &Generator{}
}

// NewGeneratorFromReader uses r as the entropy source.
func NewGeneratorFromReader(r io.Reader) *Generator {
	return &Generator{rand: r}
}

// Generate returns a new token. An entropy failure is reported as
// ErrGeneration; there is no weaker fallback.
func (g *Generator) Generate() (string, error) {
	var (
		id  uuid.UUID
		err error
	)
	if g.rand != nil {
		id, err = uuid.NewRandomFromReader(g.rand)
	} else {
		id, err = uuid.NewRandom()
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	return encoding.EncodeToString(id[:]), nil
}

// Valid reports whether s has the shape of a token.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	b, err := encoding.DecodeString(s)
	return err == nil && len(b) == 16
}
