package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newLimitedRouter(rps float64, burst int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimit(rps, burst))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func hit(r http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitRejectsAfterBurst(t *testing.T) {
	r := newLimitedRouter(0.001, 3)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hit(r, "10.0.0.1:1234").Code)
	}
	w := hit(r, "10.0.0.1:1234")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), `"detail"`)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	// other clients have their own bucket
	assert.Equal(t, http.StatusOK, hit(r, "10.0.0.2:1234").Code)
}

func TestRateLimitDisabled(t *testing.T) {
	r := newLimitedRouter(0, 0)
	for i := 0; i < 100; i++ {
		assert.Equal(t, http.StatusOK, hit(r, "10.0.0.1:1234").Code)
	}
}
