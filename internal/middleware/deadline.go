package middleware

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// SetIODeadline bounds the remaining read and write time of the current
// connection. Transfers call it with a timeout proportional to their size so
// a stalled client cannot hold a connection forever.
func SetIODeadline(c *gin.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	deadline := time.Now().Add(d)
	rc := http.NewResponseController(c.Writer)
	if err := rc.SetReadDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
		log.Printf("io_deadline read error=%v", err)
	}
	if err := rc.SetWriteDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
		log.Printf("io_deadline write error=%v", err)
	}
}
