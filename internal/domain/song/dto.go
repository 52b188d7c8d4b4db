package song

import "time"

// SongResponse is the public JSON shape of a song. slug, views and
// downloads repeat token, view_count and download_count for older clients.
type SongResponse struct {
	Token         string    `json:"token"`
	Slug          string    `json:"slug"`
	Title         string    `json:"title"`
	Artist        string    `json:"artist"`
	Description   string    `json:"description"`
	ContentType   string    `json:"content_type"`
	Size          int64     `json:"size"`
	DownloadURL   string    `json:"download_url"`
	ShareURL      string    `json:"share_url"`
	ViewCount     int64     `json:"view_count"`
	DownloadCount int64     `json:"download_count"`
	Views         int64     `json:"views"`
	Downloads     int64     `json:"downloads"`
	CreatedAt     time.Time `json:"created_at"`
}

func toResponse(s *Song, publicBaseURL string) SongResponse {
	return SongResponse{
		Token:         s.Token,
		Slug:          s.Token,
		Title:         s.Title,
		Artist:        s.Artist,
		Description:   s.Description,
		ContentType:   s.ContentType,
		Size:          s.SizeBytes,
		DownloadURL:   "/api/songs/" + s.Token + "/download",
		ShareURL:      publicBaseURL + "/s/" + s.Token,
		ViewCount:     s.ViewCount,
		DownloadCount: s.DownloadCount,
		Views:         s.ViewCount,
		Downloads:     s.DownloadCount,
		CreatedAt:     s.CreatedAt,
	}
}
