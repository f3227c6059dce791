package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/kapu/top-music-bot-go/internal/domain"
	"go.uber.org/zap"
)

const topListKeyPrefix = "topmusic:toplist:"

func TopListKey(period domain.Period, day time.Time, limit int) string {
	return fmt.Sprintf("%s%s:%s:%d", topListKeyPrefix, period, domain.StartOfDay(day).Format("2006-01-02"), limit)
}

func (c *CacheService) GetTopList(ctx context.Context, period domain.Period, day time.Time, limit int) ([]domain.Video, bool) {
	var videos []domain.Video
	found, err := c.Get(ctx, TopListKey(period, day, limit), &videos)
	if err != nil || !found {
		c.logger.Debug("Top list cache miss", zap.String("period", period.String()), zap.Time("day", day))
		return nil, false
	}
	return videos, true
}

func (c *CacheService) SetTopList(ctx context.Context, period domain.Period, day time.Time, limit int, videos []domain.Video, ttl time.Duration) {
	if err := c.Set(ctx, TopListKey(period, day, limit), videos, ttl); err != nil {
		c.logger.Error("Failed to cache top list", zap.String("period", period.String()), zap.Error(err))
	}
}

// InvalidateTopLists drops every cached top list. Called after new snapshots
// are ranked.
func (c *CacheService) InvalidateTopLists(ctx context.Context) (int64, error) {
	keys, err := c.Keys(ctx, topListKeyPrefix+"*")
	if err != nil {
		return 0, err
	}
	return c.DelMany(ctx, keys)
}
