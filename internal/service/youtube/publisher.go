package youtube

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kapu/top-music-bot-go/internal/constants"
	"github.com/kapu/top-music-bot-go/internal/domain"
	"github.com/kapu/top-music-bot-go/internal/platform"
	"github.com/kapu/top-music-bot-go/internal/util"
	"go.uber.org/zap"
	"google.golang.org/api/youtube/v3"
)

const yearPlaceholder = "@@YEAR@@"

func (ys *YouTubeService) Platform() domain.Platform {
	return domain.PlatformYouTube
}

func (ys *YouTubeService) AccountID() string {
	return ys.opts.AccountID
}

// Publish uploads the rendered video, sets its thumbnail and adds it to the
// artifact's playlist. The returned ID is the new YouTube video ID.
func (ys *YouTubeService) Publish(ctx context.Context, artifact platform.Artifact) (string, error) {
	cost := constants.YouTubeQuota.UploadCost
	if artifact.ThumbnailPath != "" {
		cost += constants.YouTubeQuota.ThumbCost
	}
	if artifact.PlaylistID != "" {
		cost += constants.YouTubeQuota.PlaylistCost
	}
	if err := ys.quota.check(cost); err != nil {
		return "", err
	}

	file, err := os.Open(artifact.FilePath)
	if err != nil {
		return "", fmt.Errorf("failed to open video file: %w", err)
	}
	defer file.Close()

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:                util.TruncateRunes(artifact.Title, constants.PublishLimits.TitleRunes),
			Description:          util.TruncateRunes(artifact.Description, constants.PublishLimits.DescriptionRunes),
			Tags:                 BuildTags(ys.opts.Tags, artifact.Tags, time.Now().Year()),
			CategoryId:           ys.opts.CategoryID,
			DefaultAudioLanguage: ys.opts.LanguageCode,
			DefaultLanguage:      ys.opts.LanguageCode,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           "public",
			SelfDeclaredMadeForKids: false,
			ForceSendFields:         []string{"SelfDeclaredMadeForKids"},
		},
	}

	uploadCtx, cancel := context.WithTimeout(ctx, constants.APIConfig.UploadTimeout)
	defer cancel()

	uploaded, err := ys.service.Videos.Insert([]string{"snippet", "status"}, video).
		NotifySubscribers(true).
		Media(file).
		Context(uploadCtx).
		Do()
	if err != nil {
		return "", ys.wrapAPIError(err, cost)
	}
	ys.quota.consume(ctx, constants.YouTubeQuota.UploadCost)

	ys.logger.Info("Video uploaded",
		zap.String("video_id", uploaded.Id),
		zap.String("title", video.Snippet.Title),
		zap.Bool("vertical", artifact.Vertical))

	if artifact.ThumbnailPath != "" {
		if err := ys.setThumbnail(ctx, uploaded.Id, artifact.ThumbnailPath); err != nil {
			ys.logger.Warn("Failed to set thumbnail",
				zap.String("video_id", uploaded.Id),
				zap.Error(err))
		}
	}

	if artifact.PlaylistID != "" {
		if err := ys.insertPlaylistItem(ctx, artifact.PlaylistID, uploaded.Id, nil); err != nil {
			ys.logger.Warn("Failed to add upload to playlist",
				zap.String("video_id", uploaded.Id),
				zap.String("playlist_id", artifact.PlaylistID),
				zap.Error(err))
		}
	}

	return uploaded.Id, nil
}

func (ys *YouTubeService) setThumbnail(ctx context.Context, videoID, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open thumbnail: %w", err)
	}
	defer file.Close()

	if _, err := ys.service.Thumbnails.Set(videoID).Media(file).Context(ctx).Do(); err != nil {
		return ys.wrapAPIError(err, constants.YouTubeQuota.ThumbCost)
	}
	ys.quota.consume(ctx, constants.YouTubeQuota.ThumbCost)
	return nil
}

func (ys *YouTubeService) insertPlaylistItem(ctx context.Context, playlistID, videoID string, position *int64) error {
	cost := constants.YouTubeQuota.PlaylistCost
	if err := ys.quota.check(cost); err != nil {
		return err
	}

	item := &youtube.PlaylistItem{
		Snippet: &youtube.PlaylistItemSnippet{
			PlaylistId: playlistID,
			ResourceId: &youtube.ResourceId{
				Kind:    "youtube#video",
				VideoId: videoID,
			},
		},
	}
	if position != nil {
		item.Snippet.Position = *position
		item.Snippet.ForceSendFields = []string{"Position"}
	}

	if _, err := ys.service.PlaylistItems.Insert([]string{"snippet"}, item).Context(ctx).Do(); err != nil {
		return ys.wrapAPIError(err, cost)
	}
	ys.quota.consume(ctx, cost)
	return nil
}

func (ys *YouTubeService) Name() string {
	return "youtube-playlist"
}

// SyncPlaylist replaces the link playlist with the given videos, in rank order.
func (ys *YouTubeService) SyncPlaylist(ctx context.Context, videos []domain.Video) error {
	playlistID := ys.opts.PlaylistID
	if playlistID == "" {
		return fmt.Errorf("no YouTube link playlist configured")
	}

	itemIDs, err := ys.playlistItemIDs(ctx, playlistID)
	if err != nil {
		return err
	}

	for _, id := range itemIDs {
		cost := constants.YouTubeQuota.PlaylistCost
		if err := ys.quota.check(cost); err != nil {
			return err
		}
		if err := ys.service.PlaylistItems.Delete(id).Context(ctx).Do(); err != nil {
			return ys.wrapAPIError(err, cost)
		}
		ys.quota.consume(ctx, cost)
	}

	for i, video := range videos {
		position := int64(i)
		if err := ys.insertPlaylistItem(ctx, playlistID, video.VideoID, &position); err != nil {
			return fmt.Errorf("failed to insert %s at position %d: %w", video.VideoID, i, err)
		}
	}

	ys.logger.Info("YouTube playlist synced",
		zap.String("playlist_id", playlistID),
		zap.Int("removed", len(itemIDs)),
		zap.Int("added", len(videos)))

	return nil
}

func (ys *YouTubeService) playlistItemIDs(ctx context.Context, playlistID string) ([]string, error) {
	var ids []string
	pageToken := ""

	for {
		cost := constants.YouTubeQuota.ListCost
		if err := ys.quota.check(cost); err != nil {
			return nil, err
		}

		call := ys.service.PlaylistItems.List([]string{"id"}).
			PlaylistId(playlistID).
			MaxResults(constants.APIConfig.YouTubeMaxResults)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		response, err := call.Context(ctx).Do()
		if err != nil {
			return nil, ys.wrapAPIError(err, cost)
		}
		ys.quota.consume(ctx, cost)

		for _, item := range response.Items {
			ids = append(ids, item.Id)
		}
		if response.NextPageToken == "" {
			return ids, nil
		}
		pageToken = response.NextPageToken
	}
}

// BuildTags merges configured tags with the hashtags of the top list. The
// year placeholder is expanded, leading '#' removed and the result capped.
func BuildTags(configured, hashtags []string, year int) []string {
	yearText := strconv.Itoa(year)
	tags := make([]string, 0, len(configured)+len(hashtags))
	seen := make(map[string]struct{}, cap(tags))

	add := func(tag string) {
		tag = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tag), "#"))
		if tag == "" {
			return
		}
		key := strings.ToLower(tag)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		tags = append(tags, tag)
	}

	for _, tag := range configured {
		add(strings.ReplaceAll(tag, yearPlaceholder, yearText))
	}
	for _, tag := range hashtags {
		add(tag)
	}

	return util.LimitTags(tags, constants.PublishLimits.MaxTags)
}
