package song

import (
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"songshare/internal/middleware"
	"songshare/internal/pkg/response"
)

// multipartOverhead is allowed on top of the file size for form fields and
// part headers.
const multipartOverhead = 1 << 20

type HandlerConfig struct {
	PublicBaseURL string
	ListLimit     int
	MaxListLimit  int
	IOTimeout     func(size int64) time.Duration
}

// Handler handles HTTP requests for songs.
type Handler struct {
	service *Service
	cfg     HandlerConfig
}

func NewHandler(service *Service, cfg HandlerConfig) *Handler {
	if cfg.ListLimit < 1 {
		cfg.ListLimit = 50
	}
	if cfg.MaxListLimit < cfg.ListLimit {
		cfg.MaxListLimit = cfg.ListLimit
	}
	if cfg.IOTimeout == nil {
		cfg.IOTimeout = func(int64) time.Duration { return 0 }
	}
	return &Handler{service: service, cfg: cfg}
}

// Upload godoc
// @Summary Upload a song
// @Description Multipart upload of an audio file with title, artist and optional description. Returns the share token.
// @Tags Songs
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Audio file"
// @Param title formData string true "Title"
// @Param artist formData string true "Artist"
// @Param description formData string false "Description"
// @Success 200 {object} SongResponse
// @Failure 400,413,429,500,503 {object} map[string]interface{}
// @Router /songs [post]
func (h *Handler) Upload(c *gin.Context) {
	middleware.SetIODeadline(c, h.cfg.IOTimeout(c.Request.ContentLength))
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.service.MaxUploadSize()+multipartOverhead)

	in := UploadInput{
		Title:       c.PostForm("title"),
		Artist:      c.PostForm("artist"),
		Description: c.PostForm("description"),
	}

	fileHeader, err := c.FormFile("file")
	switch {
	case err == nil:
		file, err := fileHeader.Open()
		if err != nil {
			_ = c.Error(err)
			response.Error(c, http.StatusInternalServerError, "UPLOAD_FAILED", "upload failed, please try again")
			return
		}
		defer file.Close()
		in.File = file
		in.FileName = fileHeader.Filename
		in.ContentType = fileHeader.Header.Get("Content-Type")
		in.Size = fileHeader.Size
	case isBodyTooLarge(err):
		writeError(c, ErrPayloadTooLarge)
		return
	case errors.Is(err, http.ErrMissingFile):
		// reported together with the other fields by validation
	default:
		response.Error(c, http.StatusBadRequest, "INVALID_INPUT", "request must be a multipart form with a file field")
		return
	}

	song, err := h.service.Upload(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, http.StatusOK, toResponse(song, h.cfg.PublicBaseURL))
}

// List godoc
// @Summary List songs, most recent first
// @Tags Songs
// @Produce json
// @Param limit query int false "Maximum number of songs"
// @Success 200 {array} SongResponse
// @Router /songs [get]
func (h *Handler) List(c *gin.Context) {
	limit := h.cfg.ListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.ErrorWithDetails(c, http.StatusBadRequest, "INVALID_INPUT", "limit must be a positive integer",
				map[string]string{"limit": "must be a positive integer"})
			return
		}
		limit = min(n, h.cfg.MaxListLimit)
	}

	songs, err := h.service.Recent(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}

	items := make([]SongResponse, 0, len(songs))
	for _, s := range songs {
		items = append(items, toResponse(s, h.cfg.PublicBaseURL))
	}
	response.Success(c, http.StatusOK, items)
}

// Get godoc
// @Summary Resolve a share token to song metadata
// @Description Counts one view.
// @Tags Songs
// @Produce json
// @Param token path string true "Share token"
// @Success 200 {object} SongResponse
// @Failure 404 {object} map[string]interface{}
// @Router /songs/{token} [get]
func (h *Handler) Get(c *gin.Context) {
	song, err := h.service.ResolveMetadata(c.Request.Context(), c.Param("token"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, toResponse(song, h.cfg.PublicBaseURL))
}

// Download godoc
// @Summary Download the audio behind a share token
// @Description Streams the file and counts one download.
// @Tags Songs
// @Produce octet-stream
// @Param token path string true "Share token"
// @Success 200 {file} binary
// @Failure 404 {object} map[string]interface{}
// @Router /songs/{token}/download [get]
func (h *Handler) Download(c *gin.Context) {
	dl, err := h.service.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		writeError(c, err)
		return
	}
	defer dl.Body.Close()

	middleware.SetIODeadline(c, h.cfg.IOTimeout(dl.Size))

	// every request is one download, so nothing may be served from a cache
	headers := map[string]string{
		"Content-Disposition": mime.FormatMediaType("attachment", map[string]string{"filename": downloadName(dl)}),
		"Cache-Control":       "no-store",
	}
	if dl.Checksum != "" {
		headers["ETag"] = `"` + dl.Checksum + `"`
	}
	c.DataFromReader(http.StatusOK, dl.Size, dl.ContentType, dl.Body, headers)
}

func writeError(c *gin.Context, err error) {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		response.ErrorWithDetails(c, http.StatusBadRequest, "INVALID_INPUT", ve.Error(), ve.Fields)
	case errors.Is(err, ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, "INVALID_INPUT", err.Error())
	case errors.Is(err, ErrPayloadTooLarge):
		response.Error(c, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", ErrPayloadTooLarge.Error())
	case errors.Is(err, ErrNotFound):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", ErrNotFound.Error())
	case errors.Is(err, ErrServiceUnavailable):
		_ = c.Error(err)
		response.Error(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "service temporarily unavailable, please try again later")
	case errors.Is(err, ErrUploadFailed):
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, "UPLOAD_FAILED", "upload failed, please try again")
	default:
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

func isBodyTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large")
}

func downloadName(dl *Download) string {
	if dl.FileName != "" {
		return dl.FileName
	}
	name := dl.Token
	if exts, _ := mime.ExtensionsByType(dl.ContentType); len(exts) > 0 {
		name += exts[0]
	}
	return name
}
