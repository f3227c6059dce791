package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kapu/top-music-bot-go/internal/config"
	"github.com/kapu/top-music-bot-go/internal/domain"
	"go.uber.org/zap"
)

func developmentConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		Env:     config.EnvDevelopment,
		Store:   config.StoreConfig{Driver: "sqlite"},
		SQLite:  config.SQLiteConfig{Path: filepath.Join(dir, "topmusic.db")},
		YouTube: config.YouTubeConfig{AuthUserID: "dev", TitleTemplate: "Top @@TOP_DATE@@"},
		Ranking: config.RankingConfig{MinDaysBetweenFetch: 1, DaysBetweenTop: 7, TopLimit: 25, VerticalLimit: 5},
		Render:  config.RenderConfig{OutputDir: filepath.Join(dir, "generated"), FFmpegPath: "ffmpeg", YtDlpPath: "yt-dlp"},
		Publish: config.PublishConfig{CheckInterval: time.Hour},
		Server:  config.ServerConfig{Addr: ":0"},
	}
}

func TestBuildDevelopmentContainer(t *testing.T) {
	ctx := context.Background()
	c, err := Build(ctx, developmentConfig(t), zap.NewNop())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer c.Close()

	if c.Cache != nil {
		t.Fatalf("redis is disabled, expected no cache")
	}

	result, err := c.Fetcher.Run(ctx)
	if err != nil || result.Skipped || result.Ranked == 0 {
		t.Fatalf("fixture fetch failed: %+v, %v", result, err)
	}

	videos, err := c.TopList.TopVideos(ctx, domain.PeriodDaily, time.Now(), 5)
	if err != nil || len(videos) != 5 {
		t.Fatalf("expected five videos, got %d, %v", len(videos), err)
	}

	rec := httptest.NewRecorder()
	c.Server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected healthy store, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestBuildRejectsUnknownDriver(t *testing.T) {
	cfg := developmentConfig(t)
	cfg.Store.Driver = "mongo"

	if _, err := Build(context.Background(), cfg, zap.NewNop()); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestNewAuthorizer(t *testing.T) {
	cfg := developmentConfig(t)

	if _, err := NewAuthorizer(cfg, nil, domain.PlatformInstagram, zap.NewNop()); err == nil {
		t.Fatalf("instagram uses a long-lived token and has no OAuth flow")
	}
	if _, err := NewAuthorizer(cfg, nil, domain.PlatformTikTok, zap.NewNop()); err == nil {
		t.Fatalf("expected error for unconfigured tiktok")
	}

	cfg.TikTok = config.TikTokConfig{ClientKey: "key", ClientSecret: "secret", RedirectURI: "https://example.com/cb"}
	a, err := NewAuthorizer(cfg, nil, domain.PlatformTikTok, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url := a.AuthURL("s1"); !strings.Contains(url, "client_key=key") || !strings.Contains(url, "state=s1") {
		t.Fatalf("unexpected auth url %q", url)
	}
}
