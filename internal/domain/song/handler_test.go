package song

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRouter(t *testing.T, opts Options) (*gin.Engine, *testEnv) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := setupTestService(t, opts)
	h := NewHandler(env.svc, HandlerConfig{
		PublicBaseURL: "https://songs.example.com",
		ListLimit:     2,
		MaxListLimit:  3,
		IOTimeout:     func(int64) time.Duration { return time.Minute },
	})
	r := gin.New()
	RegisterRoutes(r.Group("/api"), h)
	return r, env
}

func multipartBody(t *testing.T, fields map[string]string, fileName string, file []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if file != nil {
		part, err := w.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func doUpload(t *testing.T, r http.Handler, path string, fields map[string]string, fileName string, file []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, fields, fileName, file)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func doGet(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type errorBody struct {
	Detail string            `json:"detail"`
	Code   string            `json:"code"`
	Fields map[string]string `json:"fields"`
}

func TestUploadHandler(t *testing.T) {
	r, _ := setupTestRouter(t, Options{})

	for _, path := range []string{"/api/songs", "/api/songs/upload"} {
		w := doUpload(t, r, path, map[string]string{"title": "Night Drive", "artist": "Echo"}, "drive.wav", wavBytes(2048))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		got := decode[SongResponse](t, w)
		assert.Len(t, got.Token, 22)
		assert.Equal(t, got.Token, got.Slug)
		assert.Equal(t, "Night Drive", got.Title)
		assert.Equal(t, "/api/songs/"+got.Token+"/download", got.DownloadURL)
		assert.Equal(t, "https://songs.example.com/s/"+got.Token, got.ShareURL)
		assert.Zero(t, got.DownloadCount)
	}
}

func TestUploadHandlerValidation(t *testing.T) {
	r, env := setupTestRouter(t, Options{})

	w := doUpload(t, r, "/api/songs", map[string]string{"description": "no title"}, "", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	got := decode[errorBody](t, w)
	assert.Equal(t, "INVALID_INPUT", got.Code)
	assert.NotEmpty(t, got.Detail)
	assert.Contains(t, got.Fields, "title")
	assert.Contains(t, got.Fields, "artist")
	assert.Contains(t, got.Fields, "file")
	assert.Zero(t, env.blobCount(t))

	w = doUpload(t, r, "/api/songs", map[string]string{"title": "T", "artist": "A"}, "notes.txt", []byte("hello"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[errorBody](t, w).Fields, "file")

	req := httptest.NewRequest(http.MethodPost, "/api/songs", bytes.NewBufferString(`{"title":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadHandlerTooLarge(t *testing.T) {
	r, env := setupTestRouter(t, Options{MaxUploadSize: 1000})

	w := doUpload(t, r, "/api/songs", map[string]string{"title": "T", "artist": "A"}, "big.wav", wavBytes(5000))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "PAYLOAD_TOO_LARGE", decode[errorBody](t, w).Code)
	assert.Zero(t, env.blobCount(t))
}

func TestGetAndDownloadHandlers(t *testing.T) {
	r, _ := setupTestRouter(t, Options{})
	payload := wavBytes(3000)

	w := doUpload(t, r, "/api/songs", map[string]string{"title": "Loop", "artist": "Echo"}, "loop.wav", payload)
	require.Equal(t, http.StatusOK, w.Code)
	tok := decode[SongResponse](t, w).Token

	w = doGet(r, "/api/songs/"+tok)
	require.Equal(t, http.StatusOK, w.Code)
	meta := decode[SongResponse](t, w)
	assert.Equal(t, int64(1), meta.ViewCount)
	assert.Equal(t, int64(1), meta.Views)

	w = doGet(r, "/api/songs/"+tok+"/download")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, payload, w.Body.Bytes())
	assert.Equal(t, "audio/wav", w.Header().Get("Content-Type"))
	assert.Equal(t, "3000", w.Header().Get("Content-Length"))
	assert.Equal(t, `attachment; filename=loop.wav`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.NotEmpty(t, w.Header().Get("ETag"))

	w = doGet(r, "/api/songs/"+tok)
	require.Equal(t, http.StatusOK, w.Code)
	meta = decode[SongResponse](t, w)
	assert.Equal(t, int64(2), meta.ViewCount)
	assert.Equal(t, int64(1), meta.DownloadCount)
}

func TestUnknownTokenHandlers(t *testing.T) {
	r, _ := setupTestRouter(t, Options{})

	for _, path := range []string{"/api/songs/nope", "/api/songs/AAAAAAAAAAAAAAAAAAAAAA/download"} {
		w := doGet(r, path)
		require.Equal(t, http.StatusNotFound, w.Code, path)
		got := decode[errorBody](t, w)
		assert.Equal(t, "song not found", got.Detail)
		assert.Equal(t, "NOT_FOUND", got.Code)
	}
}

func TestListHandler(t *testing.T) {
	r, env := setupTestRouter(t, Options{})
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, title := range []string{"a", "b", "c", "d"} {
		at := base.Add(time.Duration(i) * time.Hour)
		env.svc.now = func() time.Time { return at }
		w := doUpload(t, r, "/api/songs", map[string]string{"title": title, "artist": "X"}, "x.wav", wavBytes(100))
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := doGet(r, "/api/songs")
	require.Equal(t, http.StatusOK, w.Code)
	items := decode[[]SongResponse](t, w)
	require.Len(t, items, 2)
	assert.Equal(t, "d", items[0].Title)
	assert.Equal(t, "c", items[1].Title)

	// clamped to the configured maximum
	w = doGet(r, "/api/songs?limit=100")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]SongResponse](t, w), 3)

	w = doGet(r, "/api/songs?limit=zero")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	totals, err := env.repo.Aggregate(t.Context())
	require.NoError(t, err)
	assert.Zero(t, totals.TotalViews)
}
