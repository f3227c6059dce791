package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "TOP_MUSIC_"

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

type Config struct {
	Env       string
	Store     StoreConfig
	Postgres  PostgresConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	YouTube   YouTubeConfig
	TikTok    TikTokConfig
	Instagram InstagramConfig
	Spotify   SpotifyConfig
	Ranking   RankingConfig
	Render    RenderConfig
	Publish   PublishConfig
	Server    ServerConfig
	Logging   LoggingConfig
}

type StoreConfig struct {
	Driver string
}

type PostgresConfig struct {
	URL             string
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	URL      string
	Host     string
	Port     int
	Password string
	DB       int
}

type YouTubeConfig struct {
	APIKey              string
	ClientSecretFile    string
	RedirectURI         string
	AuthUserID          string
	RegionCode          string
	LanguageCode        string
	CategoryID          string
	TitleTemplate       string
	DescriptionTemplate string
	Tags                []string
	PlaylistIDDaily     string
	PlaylistIDWeekly    string
	LinkPlaylistID      string
}

type TikTokConfig struct {
	ClientKey    string
	ClientSecret string
	RedirectURI  string
	UserOpenID   string
}

func (c TikTokConfig) Enabled() bool {
	return c.ClientKey != "" && c.ClientSecret != ""
}

type InstagramConfig struct {
	AccessToken string
	UserID      string
}

func (c InstagramConfig) Enabled() bool {
	return c.AccessToken != "" && c.UserID != ""
}

type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	UserID       string
	PlaylistID   string
}

func (c SpotifyConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

type RankingConfig struct {
	MinDaysBetweenFetch int
	DaysBetweenTop      int
	TopLimit            int
	VerticalLimit       int
}

type RenderConfig struct {
	Workers           int
	FontFile          string
	GlyphFontFile     string
	ThumbnailTemplate string
	OutputDir         string
	TemplateFile      string
	VerticalTemplate  string
	StartScreenFile   string
	EndScreenFile     string
	FFmpegPath        string
	YtDlpPath         string
}

type PublishConfig struct {
	Disclaimer    string
	CheckInterval time.Duration
}

type ServerConfig struct {
	Enabled bool
	Addr    string
}

type LoggingConfig struct {
	Level string
	File  string
	JSON  bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env: getEnv("ENV", EnvProduction),
		Store: StoreConfig{
			Driver: getEnv("STORE_DRIVER", "sqlite"),
		},
		Postgres: PostgresConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "topmusic"),
			Password: getEnv("POSTGRES_PASSWORD", ""),
			Database: getEnv("POSTGRES_DB", "topmusic"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

			URL:             getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("POSTGRES_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvInt("POSTGRES_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: time.Duration(getEnvInt("POSTGRES_CONN_MAX_LIFETIME_MIN", 30)) * time.Minute,
		},
		SQLite: SQLiteConfig{
			Path: getEnv("SQLITE_PATH", "data/topmusic.db"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			URL:      getEnv("REDIS_URL", ""),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		YouTube: YouTubeConfig{
			APIKey:              getEnv("YT_API_KEY", ""),
			ClientSecretFile:    getEnv("YT_CLIENT_SECRET_FILE", ""),
			RedirectURI:         getEnv("YT_REDIRECT_URI", "urn:ietf:wg:oauth:2.0:oob"),
			AuthUserID:          getEnv("YT_AUTH_USER_ID", "default"),
			RegionCode:          getEnv("YT_SEARCH_REGION_CODE", "US"),
			LanguageCode:        getEnv("YT_SEARCH_LANGUAGE_CODE", "en"),
			CategoryID:          getEnv("YT_SEARCH_CATEGORY_CODE", "10"),
			TitleTemplate:       getEnv("YT_TITLE_TEMPLATE", "Top Music Videos @@TOP_DATE@@ @@HASHTAGS@@"),
			DescriptionTemplate: getEnv("YT_DESCRIPTION_TEMPLATE", "@@VIDEO_LIST@@\n@@HASHTAGS@@\n@@DISCLAIMER@@"),
			Tags:                parseCommaSeparated(getEnv("YT_TAGS", "")),
			PlaylistIDDaily:     getEnv("YT_PLAYLIST_ID_DAILY", ""),
			PlaylistIDWeekly:    getEnv("YT_PLAYLIST_ID_WEEKLY", ""),
			LinkPlaylistID:      getEnv("YT_LINK_PLAYLIST_ID", ""),
		},
		TikTok: TikTokConfig{
			ClientKey:    getEnv("TIKTOK_CLIENT_KEY", ""),
			ClientSecret: getEnv("TIKTOK_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("TIKTOK_REDIRECT_URI", ""),
			UserOpenID:   getEnv("TIKTOK_USER_OPENID", ""),
		},
		Instagram: InstagramConfig{
			AccessToken: getEnv("INSTAGRAM_ACCESS_TOKEN", ""),
			UserID:      getEnv("INSTAGRAM_USER_ID", ""),
		},
		Spotify: SpotifyConfig{
			ClientID:     getEnv("SPOTIFY_CLIENT_ID", ""),
			ClientSecret: getEnv("SPOTIFY_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("SPOTIFY_REDIRECT_URI", ""),
			UserID:       getEnv("SPOTIFY_USER_ID", "default"),
			PlaylistID:   getEnv("SPOTIFY_PLAYLIST_ID", ""),
		},
		Ranking: RankingConfig{
			MinDaysBetweenFetch: getEnvInt("MIN_DAYS_BETWEEN_FETCH", 1),
			DaysBetweenTop:      getEnvInt("DAYS_BETWEEN_TOP", 7),
			TopLimit:            getEnvInt("TOP_LIMIT", 25),
			VerticalLimit:       getEnvInt("VERTICAL_TOP_LIMIT", 5),
		},
		Render: RenderConfig{
			Workers:           getEnvInt("CPU_WORKERS", 0),
			FontFile:          getEnv("VIDEO_TEMPLATE_FONT_FILE", ""),
			GlyphFontFile:     getEnv("VIDEO_TEMPLATE_GLYPH_FONT_FILE", ""),
			ThumbnailTemplate: getEnv("VIDEO_TEMPLATE_THUMBNAIL_FILE", ""),
			OutputDir:         getEnv("VIDEO_GENERATED_FOLDER", "generated"),
			TemplateFile:      getEnv("VIDEO_TEMPLATE_FILE", ""),
			VerticalTemplate:  getEnv("VIDEO_TEMPLATE_VERTICAL_FILE", ""),
			StartScreenFile:   getEnv("VIDEO_TEMPLATE_START_SCREEN_FILE", ""),
			EndScreenFile:     getEnv("VIDEO_TEMPLATE_END_SCREEN_FILE", ""),
			FFmpegPath:        getEnv("FFMPEG_PATH", "ffmpeg"),
			YtDlpPath:         getEnv("YTDLP_PATH", "yt-dlp"),
		},
		Publish: PublishConfig{
			Disclaimer:    getEnv("DISCLAIMER", "All clips belong to their respective owners."),
			CheckInterval: time.Duration(getEnvInt("CHECK_INTERVAL_MINUTES", 60)) * time.Minute,
		},
		Server: ServerConfig{
			Enabled: getEnvBool("SERVER_ENABLED", true),
			Addr:    getEnv("SERVER_ADDR", ":8080"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", ""),
			JSON:  getEnv("LOG_FORMAT", "console") == "json",
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

func (c *Config) Validate() error {
	if c.Env != EnvProduction && c.Env != EnvDevelopment {
		return fmt.Errorf("%sENV must be %q or %q", envPrefix, EnvProduction, EnvDevelopment)
	}
	switch c.Store.Driver {
	case "postgres":
		if c.Postgres.URL == "" && (c.Postgres.Host == "" || c.Postgres.Database == "") {
			return fmt.Errorf("%sDATABASE_URL or %sPOSTGRES_HOST and %sPOSTGRES_DB are required for the postgres driver", envPrefix, envPrefix, envPrefix)
		}
	case "sqlite":
		if c.SQLite.Path == "" {
			return fmt.Errorf("%sSQLITE_PATH is required for the sqlite driver", envPrefix)
		}
	default:
		return fmt.Errorf("%sSTORE_DRIVER must be postgres or sqlite, got %q", envPrefix, c.Store.Driver)
	}
	if c.IsProduction() && c.YouTube.APIKey == "" && c.YouTube.ClientSecretFile == "" {
		return fmt.Errorf("%sYT_API_KEY or %sYT_CLIENT_SECRET_FILE is required in production", envPrefix, envPrefix)
	}
	if c.Ranking.MinDaysBetweenFetch < 1 {
		return fmt.Errorf("%sMIN_DAYS_BETWEEN_FETCH must be positive", envPrefix)
	}
	if c.Ranking.DaysBetweenTop < 1 {
		return fmt.Errorf("%sDAYS_BETWEEN_TOP must be positive", envPrefix)
	}
	if c.Ranking.TopLimit < 1 || c.Ranking.VerticalLimit < 1 {
		return fmt.Errorf("%sTOP_LIMIT and %sVERTICAL_TOP_LIMIT must be positive", envPrefix, envPrefix)
	}
	if c.Render.Workers < 0 {
		return fmt.Errorf("%sCPU_WORKERS must not be negative", envPrefix)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(envPrefix + key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(envPrefix + key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func parseCommaSeparated(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
