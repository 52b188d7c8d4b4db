package middleware

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"

	"songshare/internal/pkg/response"
)

// ErrorLogger logs errors attached to the context and 5xx responses, and
// recovers from panics.
func ErrorLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		defer func() {
			if recovered := recover(); recovered != nil {
				err := fmt.Errorf("%v", recovered)
				logRequestError(c, start, "panic", err.Error(), debug.Stack())

				if !c.Writer.Written() {
					response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
				}
				c.Abort()
				return
			}

			if len(c.Errors) == 0 {
				if c.Writer.Status() >= http.StatusInternalServerError {
					logRequestError(c, start, "http_error", fmt.Sprintf("status=%d", c.Writer.Status()), nil)
				}
				return
			}

			for _, err := range c.Errors {
				logRequestError(c, start, fmt.Sprintf("%v", err.Type), err.Error(), nil)
				if err.Meta != nil {
					log.Printf("request_error_meta request_id=%s meta=%+v", requestID(c), err.Meta)
				}
			}
		}()

		c.Next()
	}
}

// Path params are left out of the log line: a song token is a credential.
func logRequestError(c *gin.Context, start time.Time, errType string, message string, stack []byte) {
	log.Printf(
		"request_error type=%s status=%d method=%s route=%s client_ip=%s request_id=%s latency=%s error=%q stack=%s",
		errType,
		c.Writer.Status(),
		c.Request.Method,
		c.FullPath(),
		c.ClientIP(),
		requestID(c),
		time.Since(start),
		message,
		string(stack),
	)
}

func requestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = c.GetHeader("X-Request-Id")
	}
	return requestID
}

const accessRouteKey = "access_log_route"

// AccessLogger writes one line per request. It logs the matched route
// pattern rather than the request path so song tokens stay out of the log.
func AccessLogger(out io.Writer) gin.HandlerFunc {
	logger := gin.LoggerWithConfig(gin.LoggerConfig{
		Output: out,
		Formatter: func(param gin.LogFormatterParams) string {
			route, _ := param.Keys[accessRouteKey].(string)
			if route == "" {
				route = "-"
			}
			line := fmt.Sprintf("[GIN] %s | %3d | %13v | %15s | %-7s %s",
				param.TimeStamp.Format("2006/01/02 - 15:04:05"),
				param.StatusCode,
				param.Latency,
				param.ClientIP,
				param.Method,
				route,
			)
			if param.ErrorMessage != "" {
				line += " | " + param.ErrorMessage
			}
			return line + "\n"
		},
	})
	return func(c *gin.Context) {
		c.Set(accessRouteKey, c.FullPath())
		logger(c)
	}
}
