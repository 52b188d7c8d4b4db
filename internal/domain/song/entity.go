package song

import "time"

// Song is one shared audio file. Only the counters ever change after creation.
type Song struct {
	Token         string    `gorm:"column:token;primaryKey" json:"token"`
	Title         string    `gorm:"column:title" json:"title"`
	Artist        string    `gorm:"column:artist" json:"artist"`
	Description   string    `gorm:"column:description" json:"description"`
	BlobRef       string    `gorm:"column:blob_ref" json:"-"` // key in the blob store, owned by this song
	ContentType   string    `gorm:"column:content_type" json:"content_type"`
	OriginalName  string    `gorm:"column:original_name" json:"original_name"`
	Checksum      string    `gorm:"column:checksum" json:"checksum"`
	SizeBytes     int64     `gorm:"column:size_bytes" json:"size_bytes"`
	ViewCount     int64     `gorm:"column:view_count" json:"view_count"`
	DownloadCount int64     `gorm:"column:download_count" json:"download_count"`
	CreatedAt     time.Time `gorm:"column:created_at" json:"created_at"`
}

func (Song) TableName() string { return "songs" }

// Totals are the repository-wide counters.
type Totals struct {
	TotalSongs     int64 `json:"total_songs"`
	TotalViews     int64 `json:"total_views"`
	TotalDownloads int64 `json:"total_downloads"`
}
