// Package platform defines what the pipeline needs from video platforms and
// social networks.
package platform

import (
	"context"

	"github.com/kapu/top-music-bot-go/internal/domain"
)

// PopularVideo is one entry of the platform's "most popular" chart.
type PopularVideo struct {
	VideoID         string
	Title           string
	Description     string
	Channel         domain.Channel
	Views           int64
	Likes           int64
	DurationSeconds int64
}

// Metadata returns the descriptive part of the chart entry.
func (v PopularVideo) Metadata() domain.VideoMetadata {
	channel := v.Channel
	return domain.VideoMetadata{
		VideoID:         v.VideoID,
		Title:           v.Title,
		Description:     v.Description,
		Channel:         &channel,
		DurationSeconds: v.DurationSeconds,
	}
}

type PopularitySource interface {
	FetchCurrentPopularity(ctx context.Context) ([]PopularVideo, error)
}

// Artifact is a rendered video ready for upload.
type Artifact struct {
	FilePath      string
	Title         string
	Description   string
	Tags          []string
	ThumbnailPath string
	PlaylistID    string
	Vertical      bool
}

type Publisher interface {
	Platform() domain.Platform
	AccountID() string
	Publish(ctx context.Context, artifact Artifact) (string, error)
}

// PlaylistSyncer replaces a playlist with the videos of a top list.
type PlaylistSyncer interface {
	Name() string
	SyncPlaylist(ctx context.Context, videos []domain.Video) error
}

// Authorizer runs the OAuth authorization code flow of one platform and
// persists the resulting token.
type Authorizer interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) error
}
