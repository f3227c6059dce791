package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/kapu/top-music-bot-go/internal/constants"
	"github.com/kapu/top-music-bot-go/internal/domain"
	"github.com/kapu/top-music-bot-go/internal/metrics"
	"github.com/kapu/top-music-bot-go/internal/platform"
	"github.com/kapu/top-music-bot-go/internal/store"
	"github.com/kapu/top-music-bot-go/internal/util"
	"github.com/kapu/top-music-bot-go/pkg/errors"
	"go.uber.org/zap"
)

// PublishRequest selects the top list to publish and its format.
type PublishRequest struct {
	Period   domain.Period
	Day      time.Time
	Limit    int
	Vertical bool
}

// Target is one destination of a publish cycle.
type Target struct {
	Publisher platform.Publisher
	// Release is the key releases are recorded and gated under. Defaults to
	// the publisher's platform.
	Release   domain.Platform
	Vertical  bool
	Playlists map[domain.Period]string
}

func (t Target) releasePlatform() domain.Platform {
	if t.Release != "" {
		return t.Release
	}
	return t.Publisher.Platform()
}

type TopLister interface {
	TopVideos(ctx context.Context, period domain.Period, day time.Time, limit int) ([]domain.Video, error)
}

// Outcome statuses of a target or playlist in a publish report.
const (
	StatusPublished = "published"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

type PlatformOutcome struct {
	Platform  domain.Platform
	Status    string
	ReleaseID string
	Err       error
}

type PlaylistOutcome struct {
	Name string
	Err  error
}

// PublishReport is the per-platform result of a publish cycle.
type PublishReport struct {
	RunID     string
	Request   PublishRequest
	Videos    int
	Title     string
	Outcomes  []PlatformOutcome
	Playlists []PlaylistOutcome
}

// Published returns how many targets received the video.
func (r PublishReport) Published() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == StatusPublished {
			n++
		}
	}
	return n
}

type Publisher struct {
	top         TopLister
	releases    store.ReleaseRepository
	builder     VideoBuilder
	templates   Templates
	targets     []Target
	syncers     []platform.PlaylistSyncer
	breakers    map[domain.Platform]*util.CircuitBreaker
	coordinator Coordinator
	metrics     *metrics.Metrics
	now         func() time.Time
	logger      *zap.Logger
}

func NewPublisher(
	top TopLister,
	releases store.ReleaseRepository,
	builder VideoBuilder,
	templates Templates,
	targets []Target,
	syncers []platform.PlaylistSyncer,
	coordinator Coordinator,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Publisher {
	breakers := make(map[domain.Platform]*util.CircuitBreaker, len(targets))
	for _, t := range targets {
		key := t.releasePlatform()
		if _, ok := breakers[key]; ok {
			continue
		}
		breakers[key] = util.NewCircuitBreaker(
			key.String(),
			constants.CircuitBreakerConfig.FailureThreshold,
			constants.CircuitBreakerConfig.ResetTimeout,
			func(name string, _, to util.CircuitState) {
				m.BreakerState(name, to.String())
			},
			logger,
		).WithFailureTimeout(rateLimitBackoff)
		m.BreakerState(key.String(), util.CircuitStateClosed.String())
	}

	return &Publisher{
		top:         top,
		releases:    releases,
		builder:     builder,
		templates:   templates,
		targets:     targets,
		syncers:     syncers,
		breakers:    breakers,
		coordinator: coordinator,
		metrics:     m,
		now:         time.Now,
		logger:      logger,
	}
}

// Run renders the requested top list once and uploads it to every target of
// the requested orientation not yet released on req.Day. A failing target is
// reported and does not stop the others.
func (p *Publisher) Run(ctx context.Context, req PublishRequest) (PublishReport, error) {
	req.Day = domain.StartOfDay(req.Day)
	report := PublishReport{RunID: uuid.NewString(), Request: req}
	logger := p.logger.With(
		zap.String("run_id", report.RunID),
		zap.String("period", req.Period.String()),
		zap.Bool("vertical", req.Vertical),
	)

	if p.coordinator != nil {
		lock, err := p.coordinator.AcquireLock(ctx, constants.CacheKeys.PublishLock, constants.CacheTTL.PublishLock)
		if err != nil {
			return report, err
		}
		if lock == nil {
			return report, fmt.Errorf("another publish cycle is running")
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("Failed to release publish lock", zap.Error(err))
			}
		}()
	}

	pending, err := p.pendingTargets(ctx, req, &report)
	if err != nil {
		return report, err
	}
	if len(pending) == 0 {
		logger.Info("Nothing to publish, every target already released")
		return report, nil
	}

	videos, err := p.top.TopVideos(ctx, req.Period, req.Day, 0)
	if err != nil {
		return report, err
	}
	display := videos
	if req.Limit > 0 && len(display) > req.Limit {
		display = display[:req.Limit]
	}
	report.Videos = len(display)

	built, err := p.builder.Build(ctx, display, req)
	if err != nil {
		return report, fmt.Errorf("failed to render top video: %w", err)
	}

	hashtags := domain.CollectHashtags(display)
	artifact := platform.Artifact{
		FilePath:      built.VideoPath,
		ThumbnailPath: built.ThumbnailPath,
		Title:         p.templates.BuildTitle(display, hashtags, req.Day),
		Description:   p.templates.BuildDescription(display, hashtags, req.Day),
		Tags:          hashtags,
		Vertical:      req.Vertical,
	}
	report.Title = artifact.Title

	for _, target := range pending {
		report.Outcomes = append(report.Outcomes, p.publish(ctx, target, artifact, req, logger))
	}

	for _, syncer := range p.syncers {
		outcome := PlaylistOutcome{Name: syncer.Name()}
		if err := syncer.SyncPlaylist(ctx, videos); err != nil {
			logger.Warn("Playlist sync failed", zap.String("playlist", syncer.Name()), zap.Error(err))
			outcome.Err = err
		}
		report.Playlists = append(report.Playlists, outcome)
	}

	logger.Info("Publish cycle completed",
		zap.Int("videos", report.Videos),
		zap.Int("published", report.Published()),
		zap.Int("targets", len(report.Outcomes)),
	)
	return report, nil
}

func (p *Publisher) pendingTargets(ctx context.Context, req PublishRequest, report *PublishReport) ([]Target, error) {
	var pending []Target
	for _, t := range p.targets {
		if t.Vertical != req.Vertical {
			continue
		}
		key := t.releasePlatform()
		released, err := p.releases.IsReleasedOn(ctx, key, req.Day)
		if err != nil {
			return nil, err
		}
		if released {
			report.Outcomes = append(report.Outcomes, PlatformOutcome{Platform: key, Status: StatusSkipped})
			p.metrics.Publish(key.String(), metrics.ResultSkipped)
			continue
		}
		pending = append(pending, t)
	}
	return pending, nil
}

func (p *Publisher) publish(ctx context.Context, target Target, artifact platform.Artifact, req PublishRequest, logger *zap.Logger) PlatformOutcome {
	key := target.releasePlatform()
	outcome := PlatformOutcome{Platform: key}
	artifact.PlaylistID = target.Playlists[req.Period]

	var releaseID string
	err := p.breakers[key].Execute(func() error {
		id, err := target.Publisher.Publish(ctx, artifact)
		releaseID = id
		return err
	})
	if err != nil {
		outcome.Status = StatusFailed
		outcome.Err = errors.NewPublishError(key.String(), err)
		p.metrics.Publish(key.String(), metrics.ResultError)
		logger.Error("Publish failed", zap.String("platform", key.String()), zap.Error(err))
		return outcome
	}

	outcome.Status = StatusPublished
	outcome.ReleaseID = releaseID
	p.metrics.Publish(key.String(), metrics.ResultSuccess)

	release := domain.Release{
		Platform:    key,
		AccountID:   target.Publisher.AccountID(),
		ReleaseID:   releaseID,
		TopDay:      req.Day,
		PublishedAt: p.now().UTC(),
	}
	if err := p.releases.UpsertRelease(ctx, release); err != nil {
		// the upload happened; a missing row only means a retry may repost
		logger.Error("Failed to record release",
			zap.String("platform", key.String()),
			zap.String("release_id", releaseID),
			zap.Error(err),
		)
	}

	logger.Info("Published",
		zap.String("platform", key.String()),
		zap.String("release_id", releaseID),
	)
	return outcome
}

// rateLimitBackoff keeps a platform that answered 429 closed for longer than
// an ordinary failure.
func rateLimitBackoff(err error) time.Duration {
	if errors.StatusOf(err) == http.StatusTooManyRequests {
		return constants.CircuitBreakerConfig.RateLimitTimeout
	}
	return 0
}

// Due reports whether any target of the orientation has no release in the
// last days days ending on day.
func (p *Publisher) Due(ctx context.Context, vertical bool, day time.Time, days int) (bool, error) {
	day = domain.StartOfDay(day)
	for _, t := range p.targets {
		if t.Vertical != vertical {
			continue
		}
		released := false
		for i := 0; i < days && !released; i++ {
			ok, err := p.releases.IsReleasedOn(ctx, t.releasePlatform(), day.AddDate(0, 0, -i))
			if err != nil {
				return false, err
			}
			released = ok
		}
		if !released {
			return true, nil
		}
	}
	return false, nil
}
