package analytics

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"songshare/internal/blob"
	"songshare/internal/database"
	"songshare/internal/domain/song"
	"songshare/internal/domain/token"
)

func setupTestRepo(t *testing.T) song.Repository {
	t.Helper()
	db, err := database.ConnectQuiet(fmt.Sprintf("file:analytics_test_%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return song.NewRepository(db)
}

// seed creates one song per entry with the given download count.
func seed(t *testing.T, repo song.Repository, downloads ...int) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	for i, n := range downloads {
		tok := fmt.Sprintf("song%02d", i)
		require.NoError(t, repo.Create(ctx, &song.Song{
			Token:       tok,
			Title:       "Title " + tok,
			Artist:      "Artist",
			BlobRef:     "2026/04/01/" + tok,
			ContentType: "audio/mpeg",
			SizeBytes:   1,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}))
		for j := 0; j < n; j++ {
			require.NoError(t, repo.IncrementDownload(ctx, tok))
		}
		require.NoError(t, repo.IncrementView(ctx, tok))
	}
}

func TestOverviewEmpty(t *testing.T) {
	svc := NewService(setupTestRepo(t), 5)

	got, err := svc.Overview(context.Background())
	require.NoError(t, err)
	assert.Zero(t, got.TotalSongs)
	assert.Zero(t, got.TotalViews)
	assert.Zero(t, got.TotalDownloads)
	assert.NotNil(t, got.TopSongs)
	assert.Empty(t, got.TopSongs)
}

func TestOverviewTotalsAndTop(t *testing.T) {
	repo := setupTestRepo(t)
	seed(t, repo, 4, 0, 9, 2, 4, 1, 7)
	svc := NewService(repo, 3)

	got, err := svc.Overview(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.TotalSongs)
	assert.Equal(t, int64(7), got.TotalViews)
	assert.Equal(t, int64(27), got.TotalDownloads)

	require.Len(t, got.TopSongs, 3)
	assert.Equal(t, "song02", got.TopSongs[0].Token)
	assert.Equal(t, int64(9), got.TopSongs[0].DownloadCount)
	assert.Equal(t, "song06", got.TopSongs[1].Token)
	// tie on 4 goes to the newer song
	assert.Equal(t, "song04", got.TopSongs[2].Token)
}

func TestOverviewTopCoversAllSongsSumsToTotal(t *testing.T) {
	repo := setupTestRepo(t)
	seed(t, repo, 3, 5, 0, 8)
	svc := NewService(repo, 10)

	got, err := svc.Overview(context.Background())
	require.NoError(t, err)
	require.Len(t, got.TopSongs, 4)

	var sum int64
	for i, s := range got.TopSongs {
		sum += s.DownloadCount
		if i > 0 {
			assert.LessOrEqual(t, s.DownloadCount, got.TopSongs[i-1].DownloadCount)
		}
	}
	assert.Equal(t, got.TotalDownloads, sum)
}

func TestOverviewTotalsMatchSongsAfterConcurrentTraffic(t *testing.T) {
	ctx := context.Background()
	repo := setupTestRepo(t)
	store, err := blob.NewLocalStore(t.TempDir(), 1<<20)
	require.NoError(t, err)
	songs := song.NewService(repo, store, token.NewGenerator(), song.Options{})

	wav := func(title string) song.UploadInput {
		data := make([]byte, 4096)
		copy(data, "RIFF")
		binary.LittleEndian.PutUint32(data[4:], uint32(len(data)-8))
		copy(data[8:], "WAVEfmt ")
		return song.UploadInput{
			File:        bytes.NewReader(data),
			FileName:    title + ".wav",
			ContentType: "audio/wav",
			Size:        int64(len(data)),
			Title:       title,
			Artist:      "Band",
		}
	}

	var tokens []string
	for i := 0; i < 4; i++ {
		created, err := songs.Upload(ctx, wav(fmt.Sprintf("first-%d", i)))
		require.NoError(t, err)
		tokens = append(tokens, created.Token)
	}

	const downloadsPerSong = 10
	var g errgroup.Group
	for i := 0; i < 6; i++ {
		g.Go(func() error {
			_, err := songs.Upload(ctx, wav(fmt.Sprintf("late-%d", i)))
			return err
		})
	}
	for _, tok := range tokens {
		for j := 0; j < downloadsPerSong; j++ {
			g.Go(func() error {
				d, err := songs.ResolveDownload(ctx, tok)
				if err != nil {
					return err
				}
				defer d.Body.Close()
				_, err = io.Copy(io.Discard, d.Body)
				return err
			})
		}
	}
	require.NoError(t, g.Wait())

	got, err := NewService(repo, 5).Overview(ctx)
	require.NoError(t, err)

	all, err := repo.ListRecent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 10)

	var sum int64
	for _, s := range all {
		sum += s.DownloadCount
	}
	assert.Equal(t, int64(len(all)), got.TotalSongs)
	assert.Equal(t, sum, got.TotalDownloads)
	assert.Equal(t, int64(len(tokens)*downloadsPerSong), got.TotalDownloads)
}

type mockStats struct {
	mock.Mock
}

func (m *mockStats) Aggregate(ctx context.Context) (*song.Totals, error) {
	args := m.Called(ctx)
	totals, _ := args.Get(0).(*song.Totals)
	return totals, args.Error(1)
}

func (m *mockStats) TopByDownloads(ctx context.Context, n int) ([]*song.Song, error) {
	args := m.Called(ctx, n)
	songs, _ := args.Get(0).([]*song.Song)
	return songs, args.Error(1)
}

func TestOverviewStorageFailure(t *testing.T) {
	stats := &mockStats{}
	stats.On("Aggregate", mock.Anything).Return(nil, errors.New("connection refused"))
	stats.On("TopByDownloads", mock.Anything, DefaultTopN).Return([]*song.Song{}, nil).Maybe()

	_, err := NewService(stats, 0).Overview(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
	stats.AssertCalled(t, "Aggregate", mock.Anything)
}

func TestOverviewHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := setupTestRepo(t)
	seed(t, repo, 2, 5)

	r := gin.New()
	RegisterRoutes(r.Group("/api"), NewHandler(NewService(repo, 5)))

	for _, path := range []string{"/api/analytics", "/api/analytics/overview"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, w.Code, path)

		var got Overview
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, int64(2), got.TotalSongs)
		assert.Equal(t, int64(7), got.TotalDownloads)
		require.Len(t, got.TopSongs, 2)
		assert.Equal(t, "song01", got.TopSongs[0].Token)
	}

	stats := &mockStats{}
	stats.On("Aggregate", mock.Anything).Return(nil, errors.New("boom"))
	stats.On("TopByDownloads", mock.Anything, mock.Anything).Return(nil, errors.New("boom")).Maybe()
	r = gin.New()
	RegisterRoutes(r.Group("/api"), NewHandler(NewService(stats, 5)))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/analytics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"detail"`)
}
