package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/kapu/top-music-bot-go/internal/domain"
	"go.uber.org/zap"
)

type FetchRunner interface {
	Run(ctx context.Context) (FetchResult, error)
}

type PublishRunner interface {
	Run(ctx context.Context, req PublishRequest) (PublishReport, error)
	Due(ctx context.Context, vertical bool, day time.Time, days int) (bool, error)
}

type ScheduleConfig struct {
	Interval       time.Duration
	DaysBetweenTop int
	TopLimit       int
	VerticalLimit  int
}

// Scheduler runs a fetch on every tick, then the daily vertical top and, every
// DaysBetweenTop days, the weekly horizontal top.
type Scheduler struct {
	fetcher   FetchRunner
	publisher PublishRunner
	cfg       ScheduleConfig
	now       func() time.Time
	logger    *zap.Logger
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	running   sync.Mutex
	done      sync.WaitGroup
}

func NewScheduler(fetcher FetchRunner, publisher PublishRunner, cfg ScheduleConfig, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		fetcher:   fetcher,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	s.ticker = time.NewTicker(s.cfg.Interval)

	s.logger.Info("Top music scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Int("days_between_top", s.cfg.DaysBetweenTop))

	s.done.Add(1)
	go func() {
		defer s.done.Done()
		s.tick(ctx)
		for {
			select {
			case <-s.ticker.C:
				s.tick(ctx)
			case <-s.stopCh:
				s.logger.Info("Top music scheduler stopped")
				return
			case <-ctx.Done():
				s.logger.Info("Top music scheduler context cancelled")
				return
			}
		}
	}()
}

// Stop ends the loop and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
	})
	s.done.Wait()
}

func (s *Scheduler) tick(ctx context.Context) {
	if !s.running.TryLock() {
		s.logger.Warn("Previous cycle still running, skipping tick")
		return
	}
	defer s.running.Unlock()

	result, err := s.fetcher.Run(ctx)
	if err != nil {
		s.logger.Error("Scheduled fetch failed", zap.Error(err))
		return
	}
	if !result.Skipped {
		s.logger.Info("Scheduled fetch stored a new snapshot set",
			zap.Int("ranked", result.Ranked))
	}

	day := s.now()
	s.publishIfDue(ctx, PublishRequest{
		Period:   domain.PeriodDaily,
		Day:      day,
		Limit:    s.cfg.VerticalLimit,
		Vertical: true,
	}, 1)
	s.publishIfDue(ctx, PublishRequest{
		Period: domain.PeriodWeekly,
		Day:    day,
		Limit:  s.cfg.TopLimit,
	}, s.cfg.DaysBetweenTop)
}

func (s *Scheduler) publishIfDue(ctx context.Context, req PublishRequest, everyDays int) {
	due, err := s.publisher.Due(ctx, req.Vertical, req.Day, everyDays)
	if err != nil {
		s.logger.Error("Failed to check releases", zap.Error(err))
		return
	}
	if !due {
		return
	}

	report, err := s.publisher.Run(ctx, req)
	if err != nil {
		s.logger.Error("Scheduled publish failed",
			zap.String("period", req.Period.String()),
			zap.Bool("vertical", req.Vertical),
			zap.Error(err))
		return
	}
	for _, o := range report.Outcomes {
		if o.Err != nil {
			s.logger.Warn("Platform not published",
				zap.String("platform", o.Platform.String()),
				zap.Error(o.Err))
		}
	}
}
