package song

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"songshare/internal/blob"
	"songshare/internal/database"
	"songshare/internal/domain/token"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.ConnectQuiet(fmt.Sprintf("file:song_test_%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func setupTestBlobs(t *testing.T, maxSize int64) *blob.LocalStore {
	t.Helper()
	store, err := blob.NewLocalStore(t.TempDir(), maxSize)
	require.NoError(t, err)
	return store
}

type testEnv struct {
	db    *gorm.DB
	repo  Repository
	blobs *blob.LocalStore
	svc   *Service
}

func setupTestService(t *testing.T, opts Options) *testEnv {
	t.Helper()
	return setupTestServiceWith(t, opts, nil, nil)
}

// setupTestServiceWith lets a test swap the repository or the token source.
func setupTestServiceWith(t *testing.T, opts Options, wrap func(Repository) Repository, tokens TokenGenerator) *testEnv {
	t.Helper()
	if opts.RetryDelay == 0 {
		opts.RetryDelay = time.Millisecond
	}
	if opts.MaxUploadSize == 0 {
		opts.MaxUploadSize = 4 << 20
	}
	db := setupTestDB(t)
	repo := NewRepository(db)
	if wrap != nil {
		repo = wrap(repo)
	}
	if tokens == nil {
		tokens = token.NewGenerator()
	}
	blobs := setupTestBlobs(t, opts.MaxUploadSize)
	return &testEnv{db: db, repo: repo, blobs: blobs, svc: NewService(repo, blobs, tokens, opts)}
}

func (e *testEnv) blobCount(t *testing.T) int {
	t.Helper()
	n := 0
	require.NoError(t, e.blobs.Walk(context.Background(), func(blob.Object) error {
		n++
		return nil
	}))
	return n
}

func (e *testEnv) songCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&Song{}).Count(&n).Error)
	return n
}

// wavBytes returns a RIFF/WAVE payload of exactly size bytes.
func wavBytes(size int) []byte {
	if size < 44 {
		size = 44
	}
	buf := make([]byte, size)
	copy(buf, "RIFF")
	binary.LittleEndian.PutUint32(buf[4:], uint32(size-8))
	copy(buf[8:], "WAVEfmt ")
	binary.LittleEndian.PutUint32(buf[16:], 16)
	binary.LittleEndian.PutUint16(buf[20:], 1)     // PCM
	binary.LittleEndian.PutUint16(buf[22:], 1)     // mono
	binary.LittleEndian.PutUint32(buf[24:], 8000)  // sample rate
	binary.LittleEndian.PutUint32(buf[28:], 16000) // byte rate
	binary.LittleEndian.PutUint16(buf[32:], 2)
	binary.LittleEndian.PutUint16(buf[34:], 16)
	copy(buf[36:], "data")
	binary.LittleEndian.PutUint32(buf[40:], uint32(size-44))
	for i := 44; i < size; i++ {
		buf[i] = byte(i % 251)
	}
	return buf
}

func wavInput(title, artist string, size int) UploadInput {
	data := wavBytes(size)
	return UploadInput{
		File:        bytes.NewReader(data),
		FileName:    "track.wav",
		ContentType: "audio/wav",
		Size:        int64(len(data)),
		Title:       title,
		Artist:      artist,
	}
}

type mockTokens struct {
	mock.Mock
}

func (m *mockTokens) Generate() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}
