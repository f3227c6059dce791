// Package pipeline runs the fetch and publish cycles and schedules them.
package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kapu/top-music-bot-go/internal/constants"
	"github.com/kapu/top-music-bot-go/internal/domain"
	"github.com/kapu/top-music-bot-go/internal/metrics"
	"github.com/kapu/top-music-bot-go/internal/platform"
	"github.com/kapu/top-music-bot-go/internal/ranking"
	"github.com/kapu/top-music-bot-go/internal/service/cache"
	"github.com/kapu/top-music-bot-go/internal/store"
	"github.com/kapu/top-music-bot-go/internal/util"
	"github.com/kapu/top-music-bot-go/pkg/errors"
	"go.uber.org/zap"
)

// Coordinator is the Redis side of a cycle: the single-instance lock and the
// top list cache. A nil Coordinator disables both.
type Coordinator interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (*cache.Lock, error)
	InvalidateTopLists(ctx context.Context) (int64, error)
}

// FetchResult summarizes one fetch cycle.
type FetchResult struct {
	RunID      string
	Skipped    bool
	Reason     string
	ObservedAt time.Time
	Fetched    int
	Stored     int
	Ranked     int
}

type Fetcher struct {
	source      platform.PopularitySource
	snapshots   store.SnapshotRepository
	metadata    store.MetadataRepository
	coordinator Coordinator
	metrics     *metrics.Metrics
	minDays     int
	now         func() time.Time
	logger      *zap.Logger
}

func NewFetcher(
	source platform.PopularitySource,
	snapshots store.SnapshotRepository,
	metadata store.MetadataRepository,
	coordinator Coordinator,
	m *metrics.Metrics,
	minDaysBetweenFetch int,
	logger *zap.Logger,
) *Fetcher {
	return &Fetcher{
		source:      source,
		snapshots:   snapshots,
		metadata:    metadata,
		coordinator: coordinator,
		metrics:     m,
		minDays:     minDaysBetweenFetch,
		now:         time.Now,
		logger:      logger,
	}
}

// Run fetches the current chart, stores it as one snapshot set and ranks it
// against the latest stored set. The cycle is skipped when the latest set is
// younger than the configured number of days.
func (f *Fetcher) Run(ctx context.Context) (FetchResult, error) {
	result := FetchResult{RunID: uuid.NewString()}
	logger := f.logger.With(zap.String("run_id", result.RunID))

	if f.coordinator != nil {
		lock, err := f.coordinator.AcquireLock(ctx, constants.CacheKeys.FetchLock, constants.CacheTTL.FetchLock)
		if err != nil {
			f.metrics.FetchCycle(metrics.ResultError)
			return result, err
		}
		if lock == nil {
			result.Skipped = true
			result.Reason = "another fetch is running"
			f.metrics.FetchCycle(metrics.ResultSkipped)
			return result, nil
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("Failed to release fetch lock", zap.Error(err))
			}
		}()
	}

	res, err := f.run(ctx, result, logger)
	switch {
	case err != nil:
		f.metrics.FetchCycle(metrics.ResultError)
		logger.Error("Fetch cycle failed", zap.Error(err))
	case res.Skipped:
		f.metrics.FetchCycle(metrics.ResultSkipped)
	default:
		f.metrics.FetchCycle(metrics.ResultSuccess)
		f.metrics.Ranked(res.Ranked)
	}
	return res, err
}

func (f *Fetcher) run(ctx context.Context, result FetchResult, logger *zap.Logger) (FetchResult, error) {
	now := f.now()

	latest, found, err := f.snapshots.LatestTimestamp(ctx)
	if err != nil {
		return result, err
	}

	var previous []domain.MetricSnapshot
	if found {
		if days := util.DaysBetween(latest, now); days < f.minDays {
			result.Skipped = true
			result.Reason = fmt.Sprintf("latest snapshot is %d day(s) old, need %d", days, f.minDays)
			logger.Info("Fetch skipped", zap.Time("latest", latest), zap.Int("days", days))
			return result, nil
		}
		previous, err = f.snapshots.SnapshotsAt(ctx, latest)
		if err != nil {
			return result, err
		}
	} else {
		logger.Info("No stored snapshots, this cycle becomes the first baseline")
	}

	popular, err := f.source.FetchCurrentPopularity(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to fetch popularity: %w", err)
	}
	result.Fetched = len(popular)
	if len(popular) == 0 {
		return result, errors.ErrNoCurrentData
	}

	observedAt := domain.NormalizeTimestamp(now)
	result.ObservedAt = observedAt

	current := make([]domain.MetricSnapshot, 0, len(popular))
	for _, video := range popular {
		if err := f.metadata.UpsertMetadata(ctx, video.Metadata()); err != nil {
			return result, err
		}

		snap := domain.MetricSnapshot{
			VideoID:    video.VideoID,
			ObservedAt: observedAt,
			Views:      video.Views,
			Likes:      video.Likes,
		}
		if err := f.snapshots.AppendSnapshot(ctx, snap); err != nil {
			if !stderrors.Is(err, errors.ErrDuplicateSnapshotKey) {
				return result, err
			}
			// the row exists already; ranking below overwrites its annotation
			logger.Warn("Snapshot already stored", zap.String("video_id", video.VideoID))
		} else {
			result.Stored++
		}
		current = append(current, snap)
	}

	ranked, err := ranking.Rank(current, previous)
	if err != nil {
		return result, fmt.Errorf("failed to rank snapshots: %w", err)
	}

	var firstErr error
	for _, snap := range ranked {
		if err := f.snapshots.UpdateSnapshot(ctx, snap.VideoID, snap.ObservedAt, snap.Annotation()); err != nil {
			logger.Error("Failed to store ranking",
				zap.String("video_id", snap.VideoID),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		result.Ranked++
	}

	if f.coordinator != nil {
		if n, err := f.coordinator.InvalidateTopLists(ctx); err != nil {
			logger.Warn("Failed to invalidate cached top lists", zap.Error(err))
		} else if n > 0 {
			logger.Debug("Cached top lists invalidated", zap.Int64("keys", n))
		}
	}

	logger.Info("Fetch cycle completed",
		zap.Time("observed_at", observedAt),
		zap.Int("fetched", result.Fetched),
		zap.Int("stored", result.Stored),
		zap.Int("ranked", result.Ranked),
		zap.Int("baseline", len(previous)),
	)

	if firstErr != nil {
		return result, fmt.Errorf("ranked %d of %d snapshots: %w", result.Ranked, len(ranked), firstErr)
	}
	return result, nil
}
