package analytics

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"songshare/internal/pkg/response"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Overview godoc
// @Summary Totals and most downloaded songs
// @Tags Analytics
// @Produce json
// @Success 200 {object} Overview
// @Failure 503 {object} map[string]interface{}
// @Router /analytics [get]
func (h *Handler) Overview(c *gin.Context) {
	overview, err := h.service.Overview(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		response.Error(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "service temporarily unavailable, please try again later")
		return
	}
	response.Success(c, http.StatusOK, overview)
}
