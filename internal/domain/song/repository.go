package song

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// pgUniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

type Repository interface {
	Create(ctx context.Context, s *Song) error
	GetByToken(ctx context.Context, token string) (*Song, error)
	IncrementView(ctx context.Context, token string) error
	IncrementDownload(ctx context.Context, token string) error
	ListRecent(ctx context.Context, limit int) ([]*Song, error)
	Aggregate(ctx context.Context) (*Totals, error)
	TopByDownloads(ctx context.Context, n int) ([]*Song, error)
	BlobRefs(ctx context.Context) (map[string]struct{}, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// Create inserts s. A duplicate token yields ErrConflict.
func (r *repository) Create(ctx context.Context, s *Song) error {
	err := r.db.WithContext(ctx).Create(s).Error
	if err != nil && isUniqueConstraintError(err) {
		return ErrConflict
	}
	return err
}

func (r *repository) GetByToken(ctx context.Context, token string) (*Song, error) {
	var s Song
	err := r.db.WithContext(ctx).Where("token = ?", token).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListRecent returns songs newest first. limit <= 0 means no limit.
func (r *repository) ListRecent(ctx context.Context, limit int) ([]*Song, error) {
	q := r.db.WithContext(ctx).Order("created_at DESC").Order("token")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var songs []*Song
	err := q.Find(&songs).Error
	return songs, err
}

func (r *repository) Aggregate(ctx context.Context) (*Totals, error) {
	var t Totals
	err := r.db.WithContext(ctx).
		Model(&Song{}).
		Select("COUNT(*) AS total_songs, " +
			"CAST(COALESCE(SUM(view_count), 0) AS BIGINT) AS total_views, " +
			"CAST(COALESCE(SUM(download_count), 0) AS BIGINT) AS total_downloads").
		Scan(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *repository) TopByDownloads(ctx context.Context, n int) ([]*Song, error) {
	var songs []*Song
	err := r.db.WithContext(ctx).
		Order("download_count DESC").
		Order("created_at DESC").
		Limit(n).
		Find(&songs).Error
	return songs, err
}

// BlobRefs returns every blob key referenced by a song.
func (r *repository) BlobRefs(ctx context.Context) (map[string]struct{}, error) {
	var keys []string
	if err := r.db.WithContext(ctx).Model(&Song{}).Pluck("blob_ref", &keys).Error; err != nil {
		return nil, err
	}
	refs := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		refs[k] = struct{}{}
	}
	return refs, nil
}

func isUniqueConstraintError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique constraint") || strings.Contains(msg, "unique failed")
}
