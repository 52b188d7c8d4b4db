package response

import "github.com/gin-gonic/gin"

// Success writes data as the whole response body.
func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, data)
}

// Error writes {"detail": message, "code": code}. Clients show detail as is.
func Error(c *gin.Context, statusCode int, code string, message string) {
	c.JSON(statusCode, gin.H{
		"detail": message,
		"code":   code,
	})
}

func ErrorWithDetails(c *gin.Context, statusCode int, code string, message string, fields any) {
	c.JSON(statusCode, gin.H{
		"detail": message,
		"code":   code,
		"fields": fields,
	})
}

// AbortWithError is Error followed by c.Abort, for middleware.
func AbortWithError(c *gin.Context, statusCode int, code string, message string) {
	Error(c, statusCode, code, message)
	c.Abort()
}
