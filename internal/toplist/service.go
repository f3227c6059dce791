// Package toplist compares one day of snapshots against an earlier day and
// returns the ranked videos.
package toplist

import (
	"context"
	"time"

	"github.com/kapu/top-music-bot-go/internal/constants"
	"github.com/kapu/top-music-bot-go/internal/domain"
	"github.com/kapu/top-music-bot-go/internal/ranking"
	"github.com/kapu/top-music-bot-go/internal/store"
	"github.com/kapu/top-music-bot-go/pkg/errors"
	"go.uber.org/zap"
)

// Cache stores computed top lists. CacheService satisfies it.
type Cache interface {
	GetTopList(ctx context.Context, period domain.Period, day time.Time, limit int) ([]domain.Video, bool)
	SetTopList(ctx context.Context, period domain.Period, day time.Time, limit int, videos []domain.Video, ttl time.Duration)
}

type Service struct {
	snapshots store.SnapshotRepository
	cache     Cache
	logger    *zap.Logger
}

// NewService builds the top list service; cache may be nil.
func NewService(snapshots store.SnapshotRepository, cache Cache, logger *zap.Logger) *Service {
	return &Service{
		snapshots: snapshots,
		cache:     cache,
		logger:    logger,
	}
}

// Windows returns the current window [day, day+1d) and the previous window,
// the single day that starts period.Days() before day.
func Windows(period domain.Period, day time.Time) (curFrom, curTo, prevFrom, prevTo time.Time) {
	curFrom = domain.StartOfDay(day)
	curTo = curFrom.AddDate(0, 0, 1)
	prevFrom = curFrom.AddDate(0, 0, -period.Days())
	prevTo = prevFrom.AddDate(0, 0, 1)
	return curFrom, curTo, prevFrom, prevTo
}

// TopVideos ranks the videos observed on day against the previous window and
// returns at most limit of them (all when limit <= 0).
func (s *Service) TopVideos(ctx context.Context, period domain.Period, day time.Time, limit int) ([]domain.Video, error) {
	if s.cache != nil {
		if videos, ok := s.cache.GetTopList(ctx, period, day, limit); ok {
			return videos, nil
		}
	}

	curFrom, curTo, prevFrom, prevTo := Windows(period, day)

	current, err := s.snapshots.QueryWindow(ctx, curFrom, curTo)
	if err != nil {
		return nil, err
	}
	if len(current) == 0 {
		return nil, errors.ErrNoCurrentData
	}

	previous, err := s.snapshots.QueryWindow(ctx, prevFrom, prevTo)
	if err != nil {
		return nil, err
	}
	if len(previous) == 0 {
		s.logger.Warn("No baseline snapshots, every video ranks as new",
			zap.String("period", period.String()),
			zap.Time("from", prevFrom),
			zap.Time("to", prevTo),
			zap.Error(errors.ErrNoBaselineData))
	}

	ranked, err := ranking.Rank(current, previous)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	enriched, err := s.snapshots.EnrichAll(ctx, ranked)
	if err != nil {
		return nil, err
	}

	videos := make([]domain.Video, len(enriched))
	for i, e := range enriched {
		videos[i] = domain.NewVideo(e.MetricSnapshot, e.Metadata)
	}

	s.logger.Info("Top list computed",
		zap.String("period", period.String()),
		zap.Time("day", curFrom),
		zap.Int("current", len(current)),
		zap.Int("previous", len(previous)),
		zap.Int("videos", len(videos)))

	if s.cache != nil {
		s.cache.SetTopList(ctx, period, day, limit, videos, constants.CacheTTL.TopList)
	}
	return videos, nil
}
