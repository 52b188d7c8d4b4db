package analytics

import "github.com/gin-gonic/gin"

func RegisterRoutes(r *gin.RouterGroup, h *Handler) {
	analytics := r.Group("/analytics")
	{
		analytics.GET("", h.Overview)
		analytics.GET("/overview", h.Overview)
	}
}
