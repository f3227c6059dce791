package youtube

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kapu/top-music-bot-go/internal/constants"
	"github.com/kapu/top-music-bot-go/internal/domain"
	"github.com/kapu/top-music-bot-go/internal/platform"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

type Options struct {
	RegionCode   string
	LanguageCode string
	CategoryID   string
	Tags         []string
	AccountID    string
	PlaylistID   string
}

type YouTubeService struct {
	service *youtube.Service
	quota   *quotaTracker
	opts    Options
	logger  *zap.Logger
}

// NewYouTubeService builds the service on an HTTP client, typically the OAuth
// client from OAuthService.Client.
func NewYouTubeService(ctx context.Context, httpClient *http.Client, opts Options, counter QuotaCounter, logger *zap.Logger) (*YouTubeService, error) {
	service, err := youtube.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}
	return newService(service, opts, counter, logger), nil
}

// NewAPIKeyService builds a read-only service, enough for chart fetching.
func NewAPIKeyService(ctx context.Context, apiKey string, opts Options, counter QuotaCounter, logger *zap.Logger) (*YouTubeService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("YouTube API key is required")
	}
	service, err := youtube.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}
	return newService(service, opts, counter, logger), nil
}

func newService(service *youtube.Service, opts Options, counter QuotaCounter, logger *zap.Logger) *YouTubeService {
	ys := &YouTubeService{
		service: service,
		quota:   newQuotaTracker(counter, logger),
		opts:    opts,
		logger:  logger,
	}

	logger.Info("YouTube service initialized",
		zap.String("region", opts.RegionCode),
		zap.String("category", opts.CategoryID),
		zap.Time("quotaReset", ys.quota.reset))

	return ys
}

// FetchCurrentPopularity reads the "most popular" chart for the configured
// region and category. Statistics, snippet and duration come from the same
// call.
func (ys *YouTubeService) FetchCurrentPopularity(ctx context.Context) ([]platform.PopularVideo, error) {
	cost := constants.YouTubeQuota.ListCost
	if err := ys.quota.check(cost); err != nil {
		return nil, err
	}

	call := ys.service.Videos.List([]string{"snippet", "contentDetails", "statistics"}).
		Chart("mostPopular").
		MaxResults(constants.APIConfig.YouTubeMaxResults)
	if ys.opts.RegionCode != "" {
		call = call.RegionCode(ys.opts.RegionCode)
	}
	if ys.opts.LanguageCode != "" {
		call = call.Hl(ys.opts.LanguageCode)
	}
	if ys.opts.CategoryID != "" {
		call = call.VideoCategoryId(ys.opts.CategoryID)
	}

	response, err := call.Context(ctx).Do()
	if err != nil {
		return nil, ys.wrapAPIError(err, cost)
	}
	ys.quota.consume(ctx, cost)

	videos := make([]platform.PopularVideo, 0, len(response.Items))
	for _, item := range response.Items {
		video, ok := ys.toPopularVideo(item)
		if !ok {
			continue
		}
		videos = append(videos, video)
	}

	ys.logger.Info("Popular chart fetched",
		zap.Int("items", len(response.Items)),
		zap.Int("videos", len(videos)),
		zap.Int("quota_used", cost))

	return videos, nil
}

func (ys *YouTubeService) toPopularVideo(item *youtube.Video) (platform.PopularVideo, bool) {
	if item == nil || item.Id == "" {
		return platform.PopularVideo{}, false
	}

	video := platform.PopularVideo{VideoID: item.Id}
	if item.Snippet != nil {
		video.Title = item.Snippet.Title
		video.Description = item.Snippet.Description
		video.Channel = domain.Channel{ID: item.Snippet.ChannelId, Name: item.Snippet.ChannelTitle}
	}
	if item.Statistics != nil {
		video.Views = int64(item.Statistics.ViewCount)
		video.Likes = int64(item.Statistics.LikeCount)
	}
	if item.ContentDetails != nil && item.ContentDetails.Duration != "" {
		seconds, err := parseISODuration(item.ContentDetails.Duration)
		if err != nil {
			ys.logger.Warn("Unparseable video duration",
				zap.String("video_id", item.Id),
				zap.String("duration", item.ContentDetails.Duration),
				zap.Error(err))
		}
		video.DurationSeconds = seconds
	}
	return video, true
}

func (ys *YouTubeService) GetQuotaStatus() (used int, remaining int, resetTime time.Time) {
	return ys.quota.status()
}

func (ys *YouTubeService) IsQuotaAvailable(cost int) bool {
	return ys.quota.check(cost) == nil
}

func (ys *YouTubeService) wrapAPIError(err error, cost int) error {
	var apiErr *googleapi.Error
	if stderrors.As(err, &apiErr) && apiErr.Code == http.StatusForbidden && isQuotaReason(apiErr) {
		ys.logger.Error("YouTube API reported quota exhaustion", zap.Error(err))
		return ys.quota.exhausted(cost)
	}
	return fmt.Errorf("YouTube API error: %w", err)
}

func isQuotaReason(apiErr *googleapi.Error) bool {
	if len(apiErr.Errors) == 0 {
		return true
	}
	for _, item := range apiErr.Errors {
		if item.Reason == "quotaExceeded" || item.Reason == "dailyLimitExceeded" {
			return true
		}
	}
	return false
}
