// Package analytics reports repository-wide totals and the most downloaded
// songs.
package analytics

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"songshare/internal/domain/song"
)

const DefaultTopN = 5

var ErrUnavailable = errors.New("analytics temporarily unavailable")

// Stats is the read side of the song repository used here.
type Stats interface {
	Aggregate(ctx context.Context) (*song.Totals, error)
	TopByDownloads(ctx context.Context, n int) ([]*song.Song, error)
}

type TopSong struct {
	Token         string `json:"token"`
	Title         string `json:"title"`
	Artist        string `json:"artist"`
	DownloadCount int64  `json:"download_count"`
}

type Overview struct {
	TotalSongs     int64     `json:"total_songs"`
	TotalViews     int64     `json:"total_views"`
	TotalDownloads int64     `json:"total_downloads"`
	TopSongs       []TopSong `json:"top_songs"`
}

type Service struct {
	stats Stats
	topN  int
}

func NewService(stats Stats, topN int) *Service {
	if topN < 1 {
		topN = DefaultTopN
	}
	return &Service{stats: stats, topN: topN}
}

// Overview reads the totals and the top songs concurrently. The two reads
// are not one snapshot, so under concurrent downloads the top list may be
// slightly ahead of the totals.
func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	var (
		totals *song.Totals
		top    []*song.Song
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		totals, err = s.stats.Aggregate(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		top, err = s.stats.TopByDownloads(gctx, s.topN)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	out := &Overview{
		TotalSongs:     totals.TotalSongs,
		TotalViews:     totals.TotalViews,
		TotalDownloads: totals.TotalDownloads,
		TopSongs:       make([]TopSong, 0, len(top)),
	}
	for _, t := range top {
		out.TopSongs = append(out.TopSongs, TopSong{
			Token:         t.Token,
			Title:         t.Title,
			Artist:        t.Artist,
			DownloadCount: t.DownloadCount,
		})
	}
	return out, nil
}
