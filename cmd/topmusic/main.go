package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kapu/top-music-bot-go/internal/app"
	"github.com/kapu/top-music-bot-go/internal/config"
	"github.com/kapu/top-music-bot-go/internal/domain"
	"github.com/kapu/top-music-bot-go/internal/pipeline"
	"github.com/kapu/top-music-bot-go/internal/platform"
	"github.com/kapu/top-music-bot-go/internal/util"
	"go.uber.org/zap"
)

const usage = `usage: topmusic <command> [flags]

commands:
  fetch       store today's chart snapshot and rank it
  publish     render and upload a top video
  toplist     print a ranked top list as JSON
  serve       run the scheduler and the HTTP server
  authorize   authorize a platform account (youtube, tiktok, spotify)
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := util.NewLogger(util.LogOptions{
		Level: cfg.Logging.Level,
		File:  cfg.Logging.File,
		JSON:  cfg.Logging.JSON,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	command, args := os.Args[1], os.Args[2:]
	switch command {
	case "fetch":
		err = runFetch(ctx, cfg, logger)
	case "publish":
		err = runPublish(ctx, cfg, logger, args)
	case "toplist":
		err = runTopList(ctx, cfg, logger, args)
	case "serve":
		err = runServe(ctx, cfg, logger)
	case "authorize":
		err = runAuthorize(ctx, cfg, logger, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		logger.Error("Command failed", zap.String("command", command), zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app.Container, error) {
	buildCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return app.Build(buildCtx, cfg, logger)
}

func runFetch(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	c, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	result, err := c.Fetcher.Run(ctx)
	if err != nil {
		return err
	}
	if result.Skipped {
		logger.Info("Fetch skipped", zap.String("reason", result.Reason))
	}
	return nil
}

// listFlags are shared by publish and toplist.
type listFlags struct {
	period string
	day    string
	limit  int
}

func (f *listFlags) register(fs *flag.FlagSet, defaultPeriod string, defaultLimit int) {
	fs.StringVar(&f.period, "period", defaultPeriod, "daily or weekly")
	fs.StringVar(&f.day, "day", "", "day of the top list, YYYY-MM-DD (default today)")
	fs.IntVar(&f.limit, "limit", defaultLimit, "number of videos")
}

func (f *listFlags) parse() (domain.Period, time.Time, error) {
	period, err := domain.ParsePeriod(f.period)
	if err != nil {
		return "", time.Time{}, err
	}
	day := time.Now()
	if f.day != "" {
		day, err = time.Parse("2006-01-02", f.day)
		if err != nil {
			return "", time.Time{}, fmt.Errorf("invalid -day %q: %w", f.day, err)
		}
	}
	if f.limit < 1 {
		return "", time.Time{}, fmt.Errorf("-limit must be positive")
	}
	return period, domain.StartOfDay(day), nil
}

func runPublish(ctx context.Context, cfg *config.Config, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("publish", flag.ExitOnError)
	var lf listFlags
	lf.register(fs, string(domain.PeriodWeekly), cfg.Ranking.TopLimit)
	vertical := fs.Bool("vertical", false, "render the vertical short (defaults to the daily period and vertical limit)")
	_ = fs.Parse(args)

	if *vertical {
		explicit := map[string]bool{}
		fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
		if !explicit["period"] {
			lf.period = string(domain.PeriodDaily)
		}
		if !explicit["limit"] {
			lf.limit = cfg.Ranking.VerticalLimit
		}
	}

	period, day, err := lf.parse()
	if err != nil {
		return err
	}

	c, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	report, err := c.Publisher.Run(ctx, pipeline.PublishRequest{
		Period:   period,
		Day:      day,
		Limit:    lf.limit,
		Vertical: *vertical,
	})
	if err != nil {
		return err
	}

	for _, o := range report.Outcomes {
		fields := []zap.Field{zap.String("platform", o.Platform.String()), zap.String("status", o.Status)}
		if o.ReleaseID != "" {
			fields = append(fields, zap.String("release_id", o.ReleaseID))
		}
		if o.Err != nil {
			fields = append(fields, zap.Error(o.Err))
		}
		logger.Info("Publish outcome", fields...)
	}
	return nil
}

func runTopList(ctx context.Context, cfg *config.Config, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("toplist", flag.ExitOnError)
	var lf listFlags
	lf.register(fs, string(domain.PeriodDaily), cfg.Ranking.TopLimit)
	_ = fs.Parse(args)

	period, day, err := lf.parse()
	if err != nil {
		return err
	}

	c, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	videos, err := c.TopList.TopVideos(ctx, period, day, lf.limit)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(videos)
}

func runServe(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	c, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	logger.Info("Top music bot starting",
		zap.String("env", cfg.Env),
		zap.Duration("check_interval", cfg.Publish.CheckInterval),
	)

	c.Scheduler.Start(ctx)
	defer c.Scheduler.Stop()

	if !cfg.Server.Enabled {
		<-ctx.Done()
		logger.Info("Shutting down gracefully...")
		return nil
	}
	err = c.Server.ListenAndServe(ctx)
	logger.Info("Shutting down gracefully...")
	return err
}

func runAuthorize(ctx context.Context, cfg *config.Config, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("authorize", flag.ExitOnError)
	name := fs.String("platform", "youtube", "youtube, tiktok or spotify")
	_ = fs.Parse(args)

	p, err := domain.ParsePlatform(*name)
	if err != nil {
		return err
	}

	st, _, closeStore, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	authorizer, err := app.NewAuthorizer(cfg, st, p, logger)
	if err != nil {
		return err
	}
	if err := platform.AuthorizeConsole(ctx, authorizer, os.Stdin, os.Stdout); err != nil {
		return err
	}
	logger.Info("Platform authorized", zap.String("platform", p.String()))
	return nil
}
