package song

import "github.com/gin-gonic/gin"

// RegisterRoutes registers song routes. There is no authentication: the
// token in the path is the only credential.
// /songs/upload is kept as an alias of POST /songs.
func RegisterRoutes(r *gin.RouterGroup, h *Handler) {
	songs := r.Group("/songs")
	{
		songs.POST("", h.Upload)
		songs.POST("/upload", h.Upload)
		songs.GET("", h.List)
		songs.GET("/:token", h.Get)
		songs.GET("/:token/download", h.Download)
	}
}
