package youtube

import (
	"context"
	"sync"
	"time"

	"github.com/kapu/top-music-bot-go/internal/constants"
	"github.com/kapu/top-music-bot-go/internal/util"
	"github.com/kapu/top-music-bot-go/pkg/errors"
	"go.uber.org/zap"
)

// QuotaCounter shares quota usage between processes. CacheService satisfies it.
type QuotaCounter interface {
	IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)
}

type quotaTracker struct {
	mu      sync.Mutex
	used    int
	reset   time.Time
	counter QuotaCounter
	now     func() time.Time
	logger  *zap.Logger
}

func newQuotaTracker(counter QuotaCounter, logger *zap.Logger) *quotaTracker {
	q := &quotaTracker{
		counter: counter,
		now:     time.Now,
		logger:  logger,
	}
	q.reset = util.NextPacificMidnight(q.now())
	return q
}

func (q *quotaTracker) rollover() {
	now := q.now()
	if now.Before(q.reset) {
		return
	}
	q.used = 0
	q.reset = util.NextPacificMidnight(now)
	q.logger.Info("YouTube API quota auto-reset", zap.Time("nextReset", q.reset))
}

func (q *quotaTracker) limit() int {
	return constants.YouTubeQuota.DailyLimit - constants.YouTubeQuota.SafetyMargin
}

func (q *quotaTracker) check(cost int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.rollover()
	if q.used+cost > q.limit() {
		return errors.NewQuotaExceededError(q.used, constants.YouTubeQuota.DailyLimit, cost, q.reset)
	}
	return nil
}

func (q *quotaTracker) consume(ctx context.Context, cost int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.rollover()
	q.used += cost

	if q.counter != nil {
		key := constants.CacheKeys.QuotaPrefix + util.PacificDayKey(q.now())
		if shared, err := q.counter.IncrBy(ctx, key, int64(cost), constants.CacheTTL.Quota); err == nil {
			q.used = int(shared)
		} else {
			q.logger.Warn("Failed to share quota usage", zap.Error(err))
		}
	}

	remaining := constants.YouTubeQuota.DailyLimit - q.used
	q.logger.Debug("YouTube API quota consumed",
		zap.Int("cost", cost),
		zap.Int("used", q.used),
		zap.Int("remaining", remaining),
		zap.Float64("usagePercent", float64(q.used)/float64(constants.YouTubeQuota.DailyLimit)*100))

	if remaining < constants.YouTubeQuota.SafetyMargin {
		q.logger.Warn("YouTube API quota running low",
			zap.Int("remaining", remaining),
			zap.Time("resetTime", q.reset))
	}
}

// exhausted marks the quota as used up until the next reset, after the API
// itself reported quotaExceeded.
func (q *quotaTracker) exhausted(requested int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.used = constants.YouTubeQuota.DailyLimit
	return errors.NewQuotaExceededError(q.used, constants.YouTubeQuota.DailyLimit, requested, q.reset)
}

func (q *quotaTracker) status() (used int, remaining int, resetTime time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.rollover()
	return q.used, constants.YouTubeQuota.DailyLimit - q.used, q.reset
}
