package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/kapu/top-music-bot-go/internal/config"
	"github.com/kapu/top-music-bot-go/internal/constants"
	"github.com/kapu/top-music-bot-go/internal/domain"
	"github.com/kapu/top-music-bot-go/internal/metrics"
	"github.com/kapu/top-music-bot-go/internal/pipeline"
	"github.com/kapu/top-music-bot-go/internal/platform"
	"github.com/kapu/top-music-bot-go/internal/render"
	"github.com/kapu/top-music-bot-go/internal/server"
	"github.com/kapu/top-music-bot-go/internal/service/cache"
	"github.com/kapu/top-music-bot-go/internal/service/database"
	"github.com/kapu/top-music-bot-go/internal/service/fixture"
	"github.com/kapu/top-music-bot-go/internal/service/instagram"
	"github.com/kapu/top-music-bot-go/internal/service/spotify"
	"github.com/kapu/top-music-bot-go/internal/service/tiktok"
	"github.com/kapu/top-music-bot-go/internal/service/youtube"
	"github.com/kapu/top-music-bot-go/internal/store"
	"github.com/kapu/top-music-bot-go/internal/toplist"
	"go.uber.org/zap"
)

// Container bundles the assembled services the binaries run.
type Container struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	Store       *store.SQLStore
	Cache       *cache.CacheService
	TopList     *toplist.Service
	Fetcher     *pipeline.Fetcher
	Publisher   *pipeline.Publisher
	Scheduler   *pipeline.Scheduler
	Server      *server.Server
	Authorizers map[domain.Platform]platform.Authorizer

	closers []func()
}

// Close releases connections in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// OpenStore connects to the configured database and applies the schema.
func OpenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*store.SQLStore, server.Pinger, func(), error) {
	dialect, err := store.ParseDialect(cfg.Store.Driver)
	if err != nil {
		return nil, nil, nil, err
	}

	var (
		db     *sql.DB
		pinger server.Pinger
		closer func()
	)
	switch dialect {
	case store.DialectPostgres:
		svc, err := database.NewPostgresService(ctx, database.PostgresConfig{
			URL:      cfg.Postgres.URL,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			Database: cfg.Postgres.Database,
			SSLMode:  cfg.Postgres.SSLMode,
			Pool: database.Pool{
				MaxOpenConns:    cfg.Postgres.MaxOpenConns,
				MaxIdleConns:    cfg.Postgres.MaxIdleConns,
				ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
			},
		}, logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create postgres service: %w", err)
		}
		db, pinger, closer = svc.GetDB(), svc, func() { _ = svc.Close() }
	default:
		svc, err := database.NewSQLiteService(cfg.SQLite.Path, logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create sqlite service: %w", err)
		}
		db, pinger, closer = svc.GetDB(), svc, func() { _ = svc.Close() }
	}

	s := store.New(db, dialect, logger)
	if err := s.Migrate(ctx); err != nil {
		closer()
		return nil, nil, nil, err
	}
	return s, pinger, closer, nil
}

// Build assembles every service. Production wires the live platform clients;
// development uses the deterministic fixtures.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (container *Container, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c := &Container{
		Config:      cfg,
		Logger:      logger,
		Metrics:     metrics.New(),
		Authorizers: make(map[domain.Platform]platform.Authorizer),
	}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	// Store and cache
	st, storePinger, closeStore, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, closeStore)
	c.Store = st
	pingers := map[string]server.Pinger{"store": storePinger}

	var coordinator pipeline.Coordinator
	var topCache toplist.Cache
	var quotaCounter youtube.QuotaCounter
	if cfg.Redis.Enabled {
		cacheSvc, err := cache.NewCacheService(cache.CacheConfig{
			URL:      cfg.Redis.URL,
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create cache service: %w", err)
		}
		c.closers = append(c.closers, func() { _ = cacheSvc.Close() })
		c.Cache = cacheSvc
		coordinator, topCache, quotaCounter = cacheSvc, cacheSvc, cacheSvc
		pingers["redis"] = cacheSvc
	}

	c.TopList = toplist.NewService(st, topCache, logger)

	// Platforms
	var (
		source  platform.PopularitySource
		targets []pipeline.Target
		syncers []platform.PlaylistSyncer
	)
	playlists := map[domain.Period]string{
		domain.PeriodDaily:  cfg.YouTube.PlaylistIDDaily,
		domain.PeriodWeekly: cfg.YouTube.PlaylistIDWeekly,
	}

	if cfg.IsProduction() {
		source, targets, syncers, err = c.livePlatforms(ctx, quotaCounter, playlists)
		if err != nil {
			return nil, err
		}
	} else {
		logger.Info("Development mode, using fixture platforms")
		source = fixture.NewPopularitySource()
		yt := fixture.NewPublisher(domain.PlatformYouTube, cfg.YouTube.AuthUserID)
		targets = []pipeline.Target{
			{Publisher: yt, Playlists: playlists},
			{Publisher: yt, Release: domain.PlatformYouTubeShorts, Vertical: true, Playlists: playlists},
			{Publisher: fixture.NewPublisher(domain.PlatformTikTok, cfg.TikTok.UserOpenID), Vertical: true},
			{Publisher: fixture.NewPublisher(domain.PlatformInstagram, cfg.Instagram.UserID), Vertical: true},
		}
		syncers = []platform.PlaylistSyncer{
			fixture.NewPlaylistSyncer("youtube-playlist"),
			fixture.NewPlaylistSyncer("spotify-playlist"),
		}
	}

	// Rendering
	builder, err := c.renderBuilder()
	if err != nil {
		return nil, err
	}

	c.Fetcher = pipeline.NewFetcher(source, st, st, coordinator, c.Metrics, cfg.Ranking.MinDaysBetweenFetch, logger)
	c.Publisher = pipeline.NewPublisher(c.TopList, st, builder, pipeline.Templates{
		Title:       cfg.YouTube.TitleTemplate,
		Description: cfg.YouTube.DescriptionTemplate,
		Disclaimer:  cfg.Publish.Disclaimer,
	}, targets, syncers, coordinator, c.Metrics, logger)
	c.Scheduler = pipeline.NewScheduler(c.Fetcher, c.Publisher, pipeline.ScheduleConfig{
		Interval:       cfg.Publish.CheckInterval,
		DaysBetweenTop: cfg.Ranking.DaysBetweenTop,
		TopLimit:       cfg.Ranking.TopLimit,
		VerticalLimit:  cfg.Ranking.VerticalLimit,
	}, logger)

	c.Server = server.New(server.Options{
		Addr:         cfg.Server.Addr,
		DefaultLimit: cfg.Ranking.TopLimit,
	}, c.TopList, st, c.Metrics.Registry, c.Authorizers, pingers, logger)

	logger.Info("Application assembled",
		zap.String("env", cfg.Env),
		zap.String("store", cfg.Store.Driver),
		zap.Bool("redis", cfg.Redis.Enabled),
		zap.Int("targets", len(targets)),
		zap.Int("playlists", len(syncers)),
	)
	return c, nil
}

func (c *Container) livePlatforms(ctx context.Context, counter youtube.QuotaCounter, playlists map[domain.Period]string) (
	platform.PopularitySource, []pipeline.Target, []platform.PlaylistSyncer, error,
) {
	cfg, logger := c.Config, c.Logger
	var (
		source  platform.PopularitySource
		targets []pipeline.Target
		syncers []platform.PlaylistSyncer
	)

	ytOpts := youtube.Options{
		RegionCode:   cfg.YouTube.RegionCode,
		LanguageCode: cfg.YouTube.LanguageCode,
		CategoryID:   cfg.YouTube.CategoryID,
		Tags:         cfg.YouTube.Tags,
		AccountID:    cfg.YouTube.AuthUserID,
		PlaylistID:   cfg.YouTube.LinkPlaylistID,
	}

	if cfg.YouTube.ClientSecretFile != "" {
		oauthSvc, err := newYouTubeOAuth(cfg, c.Store, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		c.Authorizers[domain.PlatformYouTube] = oauthSvc

		if oauthSvc.IsAuthorized(ctx) {
			client, err := oauthSvc.Client(ctx)
			if err != nil {
				return nil, nil, nil, err
			}
			ytSvc, err := youtube.NewYouTubeService(ctx, client, ytOpts, counter, logger)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("failed to create youtube service: %w", err)
			}
			source = quotaReportingSource{ytSvc, c.Metrics}
			targets = append(targets,
				pipeline.Target{Publisher: ytSvc, Playlists: playlists},
				pipeline.Target{Publisher: ytSvc, Release: domain.PlatformYouTubeShorts, Vertical: true, Playlists: playlists},
			)
			if cfg.YouTube.LinkPlaylistID != "" {
				syncers = append(syncers, ytSvc)
			}
		} else {
			logger.Warn("YouTube account not authorized, uploads disabled until /auth/youtube completes")
		}
	}

	if source == nil {
		if cfg.YouTube.APIKey == "" {
			return nil, nil, nil, fmt.Errorf("youtube is not authorized and no API key is configured")
		}
		ytSvc, err := youtube.NewAPIKeyService(ctx, cfg.YouTube.APIKey, ytOpts, counter, logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create youtube service: %w", err)
		}
		source = quotaReportingSource{ytSvc, c.Metrics}
	}

	if cfg.TikTok.Enabled() {
		tt := newTikTok(cfg, c.Store, logger)
		c.Authorizers[domain.PlatformTikTok] = tt
		targets = append(targets, pipeline.Target{Publisher: tt, Vertical: true})
	}

	if cfg.Instagram.Enabled() {
		ig := instagram.NewInstagramService(platform.NewAPIClient("instagram", nil, logger), instagram.Options{
			AccessToken: cfg.Instagram.AccessToken,
			UserID:      cfg.Instagram.UserID,
		}, logger)
		targets = append(targets, pipeline.Target{Publisher: ig, Vertical: true})
	}

	if cfg.Spotify.Enabled() {
		sp := newSpotify(cfg, c.Store, logger)
		c.Authorizers[domain.PlatformSpotify] = sp
		if cfg.Spotify.PlaylistID != "" {
			syncers = append(syncers, sp)
		}
	}

	return source, targets, syncers, nil
}

func newYouTubeOAuth(cfg *config.Config, tokens platform.TokenRepository, logger *zap.Logger) (*youtube.OAuthService, error) {
	svc, err := youtube.NewOAuthService(cfg.YouTube.ClientSecretFile, cfg.YouTube.RedirectURI,
		cfg.YouTube.AuthUserID, tokens, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create youtube oauth service: %w", err)
	}
	return svc, nil
}

func newTikTok(cfg *config.Config, tokens platform.TokenRepository, logger *zap.Logger) *tiktok.TikTokService {
	return tiktok.NewTikTokService(platform.NewAPIClient("tiktok", nil, logger), tiktok.Options{
		ClientKey:    cfg.TikTok.ClientKey,
		ClientSecret: cfg.TikTok.ClientSecret,
		RedirectURI:  cfg.TikTok.RedirectURI,
		OpenID:       cfg.TikTok.UserOpenID,
	}, tokens, logger)
}

func newSpotify(cfg *config.Config, tokens platform.TokenRepository, logger *zap.Logger) *spotify.SpotifyService {
	return spotify.NewSpotifyService(spotify.Options{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		RedirectURI:  cfg.Spotify.RedirectURI,
		UserID:       cfg.Spotify.UserID,
		PlaylistID:   cfg.Spotify.PlaylistID,
	}, tokens, &http.Client{Timeout: constants.APIConfig.HTTPTimeout}, logger)
}

// NewAuthorizer returns the OAuth flow of p without assembling the rest of
// the application, so an account can be authorized before first start.
func NewAuthorizer(cfg *config.Config, tokens platform.TokenRepository, p domain.Platform, logger *zap.Logger) (platform.Authorizer, error) {
	switch p {
	case domain.PlatformYouTube, domain.PlatformYouTubeShorts:
		if cfg.YouTube.ClientSecretFile == "" {
			return nil, fmt.Errorf("youtube client secret file is not configured")
		}
		return newYouTubeOAuth(cfg, tokens, logger)
	case domain.PlatformTikTok:
		if !cfg.TikTok.Enabled() {
			return nil, fmt.Errorf("tiktok client key and secret are not configured")
		}
		return newTikTok(cfg, tokens, logger), nil
	case domain.PlatformSpotify:
		if !cfg.Spotify.Enabled() {
			return nil, fmt.Errorf("spotify client id and secret are not configured")
		}
		return newSpotify(cfg, tokens, logger), nil
	default:
		return nil, fmt.Errorf("%s has no OAuth flow", p)
	}
}

func (c *Container) renderBuilder() (*pipeline.RenderBuilder, error) {
	cfg, logger := c.Config, c.Logger

	horizontal, err := render.NewOverlayRenderer(cfg.Render.FontFile, cfg.Render.GlyphFontFile, false)
	if err != nil {
		return nil, fmt.Errorf("failed to create overlay renderer: %w", err)
	}
	vertical, err := render.NewOverlayRenderer(cfg.Render.FontFile, cfg.Render.GlyphFontFile, true)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertical overlay renderer: %w", err)
	}
	thumbnails, err := render.NewThumbnailRenderer(platform.NewAPIClient("thumbnails", nil, logger),
		cfg.Render.ThumbnailTemplate, cfg.Render.FontFile, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create thumbnail renderer: %w", err)
	}

	return pipeline.NewRenderBuilder(
		render.NewDownloader(cfg.Render.YtDlpPath, filepath.Join(cfg.Render.OutputDir, "downloads"), logger),
		horizontal,
		vertical,
		render.NewComposer(cfg.Render.FFmpegPath, filepath.Join(cfg.Render.OutputDir, "clips"), logger),
		thumbnails,
		pipeline.BuildOptions{
			OutputDir:        cfg.Render.OutputDir,
			TemplateFile:     cfg.Render.TemplateFile,
			VerticalTemplate: cfg.Render.VerticalTemplate,
			StartScreenFile:  cfg.Render.StartScreenFile,
			EndScreenFile:    cfg.Render.EndScreenFile,
			Workers:          cfg.Render.Workers,
		},
		c.Metrics,
		logger,
	), nil
}

// quotaReportingSource publishes the YouTube quota usage after each chart
// fetch.
type quotaReportingSource struct {
	yt      *youtube.YouTubeService
	metrics *metrics.Metrics
}

func (s quotaReportingSource) FetchCurrentPopularity(ctx context.Context) ([]platform.PopularVideo, error) {
	videos, err := s.yt.FetchCurrentPopularity(ctx)
	used, _, _ := s.yt.GetQuotaStatus()
	s.metrics.Quota(used)
	return videos, err
}
