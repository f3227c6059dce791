package constants

import "time"

var CacheTTL = struct {
	TopList     time.Duration
	FetchLock   time.Duration
	PublishLock time.Duration
	Quota       time.Duration
}{
	TopList:     30 * time.Minute, // ranked list for a period/day
	FetchLock:   30 * time.Minute, // single-instance fetch guard
	PublishLock: 4 * time.Hour,    // downloads, render, compose and every upload
	Quota:       25 * time.Hour,   // daily quota counter, outlives the Pacific reset
}

var CacheKeys = struct {
	FetchLock   string
	PublishLock string
	QuotaPrefix string
}{
	FetchLock:   "topmusic:lock:fetch",
	PublishLock: "topmusic:lock:publish",
	QuotaPrefix: "topmusic:quota:youtube:",
}

var RedisConfig = struct {
	ReadyTimeout time.Duration
}{
	ReadyTimeout: 5 * time.Second,
}

var RetryConfig = struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Jitter      time.Duration
}{
	MaxAttempts: 3,
	BaseDelay:   500 * time.Millisecond,
	Jitter:      250 * time.Millisecond,
}

var CircuitBreakerConfig = struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	RateLimitTimeout time.Duration
}{
	FailureThreshold: 3,                // consecutive failures before OPEN
	ResetTimeout:     30 * time.Minute, // publish attempts are rare, wait long
	RateLimitTimeout: 1 * time.Hour,    // 429 from a platform
}

var YouTubeQuota = struct {
	DailyLimit   int
	SafetyMargin int
	ListCost     int
	UploadCost   int
	ThumbCost    int
	PlaylistCost int
}{
	DailyLimit:   10000,
	SafetyMargin: 500,
	ListCost:     1,
	UploadCost:   1600,
	ThumbCost:    50,
	PlaylistCost: 50,
}

var PublishLimits = struct {
	TitleRunes       int
	DescriptionRunes int
	MaxTags          int
	OverlayTitle     int
	VerticalTitle    int
}{
	TitleRunes:       95,
	DescriptionRunes: 4900,
	MaxTags:          30,
	OverlayTitle:     42,
	VerticalTitle:    38,
}

var APIConfig = struct {
	YouTubeMaxResults  int64
	HTTPTimeout        time.Duration
	UploadTimeout      time.Duration
	RequestsPerSecond  float64
	Burst              int
	StatusPollInterval time.Duration
	StatusPollAttempts int
}{
	YouTubeMaxResults:  50,
	HTTPTimeout:        30 * time.Second,
	UploadTimeout:      10 * time.Minute,
	RequestsPerSecond:  2,
	Burst:              4,
	StatusPollInterval: 10 * time.Second,
	StatusPollAttempts: 30,
}

var RenderGeometry = struct {
	HorizontalWidth  int
	HorizontalHeight int
	VerticalWidth    int
	VerticalHeight   int
	ThumbnailWidth   int
	ThumbnailHeight  int
}{
	HorizontalWidth:  1920,
	HorizontalHeight: 1080,
	VerticalWidth:    1080,
	VerticalHeight:   1920,
	ThumbnailWidth:   1280,
	ThumbnailHeight:  720,
}

var RenderTiming = struct {
	ClipSeconds        int
	ShortVideoSeconds  int64
	CrossFadeSeconds   int
	FPS                int
	ShortsMaxSeconds   int64
	DownloadFromSecond int
	DownloadToSecond   int
}{
	ClipSeconds:        8,
	ShortVideoSeconds:  50,
	CrossFadeSeconds:   1,
	FPS:                24,
	ShortsMaxSeconds:   60,
	DownloadFromSecond: 30,
	DownloadToSecond:   90,
}
