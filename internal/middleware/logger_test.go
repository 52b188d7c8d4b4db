package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorLoggerRecoversPanics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorLogger())
	r.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"detail":"internal server error","code":"INTERNAL_ERROR"}`, w.Body.String())
	assert.NotContains(t, w.Body.String(), "kaboom")
}

func TestCORSPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestAccessLoggerOmitsTokens(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var out bytes.Buffer
	r := gin.New()
	r.Use(AccessLogger(&out))
	r.GET("/api/songs/:token/download", func(c *gin.Context) { c.Status(http.StatusOK) })

	const tok = "Qm9vdHNBbmRDYXRzQW5kQm9v"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/songs/"+tok+"/download?x="+tok, nil))
	require.Equal(t, http.StatusOK, w.Code)

	line := out.String()
	assert.Contains(t, line, "/api/songs/:token/download")
	assert.Contains(t, line, "200")
	assert.NotContains(t, line, tok)

	out.Reset()
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/unknown/"+tok, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, out.String(), "404")
	assert.NotContains(t, out.String(), tok)
}
