package domain

import (
	"fmt"
	"strings"
	"time"
)

type Platform string

const (
	PlatformYouTube   Platform = "YOUTUBE"
	PlatformTikTok    Platform = "TIKTOK"
	PlatformInstagram Platform = "INSTAGRAM"
	PlatformSpotify   Platform = "SPOTIFY"

	// PlatformYouTubeShorts tracks vertical YouTube releases separately so the
	// daily short and the weekly video do not gate each other.
	PlatformYouTubeShorts Platform = "YOUTUBE_SHORTS"
)

func (p Platform) String() string {
	return string(p)
}

func ParsePlatform(value string) (Platform, error) {
	p := Platform(strings.ToUpper(strings.TrimSpace(value)))
	switch p {
	case PlatformYouTube, PlatformYouTubeShorts, PlatformTikTok, PlatformInstagram, PlatformSpotify:
		return p, nil
	default:
		return "", fmt.Errorf("unknown platform %q", value)
	}
}

// Release records a publish event; one per (Platform, ReleaseID). TopDay is
// the day of the top list that was published, which differs from PublishedAt
// when a past day is published.
type Release struct {
	Platform    Platform  `json:"platform"`
	AccountID   string    `json:"account_id"`
	ReleaseID   string    `json:"release_id"`
	TopDay      time.Time `json:"top_day"`
	PublishedAt time.Time `json:"published_at"`
}
