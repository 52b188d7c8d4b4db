package song

import (
	"context"

	"gorm.io/gorm"
)

const (
	columnViews     = "view_count"
	columnDownloads = "download_count"
)

// IncrementView adds one view to the song.
func (r *repository) IncrementView(ctx context.Context, token string) error {
	return r.increment(ctx, token, columnViews)
}

// IncrementDownload adds one download to the song.
func (r *repository) IncrementDownload(ctx context.Context, token string) error {
	return r.increment(ctx, token, columnDownloads)
}

// increment is a single UPDATE col = col + 1, so the database applies the
// read-modify-write atomically under the row lock of that token only.
// Concurrent callers never lose an update and no process lock is taken.
func (r *repository) increment(ctx context.Context, token, column string) error {
	res := r.db.WithContext(ctx).
		Model(&Song{}).
		Where("token = ?", token).
		UpdateColumn(column, gorm.Expr(column+" + ?", 1))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
