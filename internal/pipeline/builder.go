package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/kapu/top-music-bot-go/internal/domain"
	"github.com/kapu/top-music-bot-go/internal/metrics"
	"github.com/kapu/top-music-bot-go/internal/render"
	"github.com/kapu/top-music-bot-go/internal/worker"
	"go.uber.org/zap"
)

// Render stages reported to the render duration histogram.
const (
	stageClip      = "clip"
	stageConcat    = "concat"
	stageThumbnail = "thumbnail"
)

type Downloader interface {
	Download(ctx context.Context, video domain.Video) (string, error)
}

type ClipComposer interface {
	ComposeClip(ctx context.Context, job render.ClipJob) (string, error)
	Concat(ctx context.Context, clips []string, startScreen, endScreen, outputPath string) (string, error)
}

type ThumbnailMaker interface {
	Render(ctx context.Context, videos []domain.Video, day time.Time, outputPath string) (string, error)
}

// Built is the output of a render run.
type Built struct {
	VideoPath     string
	ThumbnailPath string
}

// VideoBuilder turns a top list into an uploadable video.
type VideoBuilder interface {
	Build(ctx context.Context, videos []domain.Video, req PublishRequest) (Built, error)
}

type BuildOptions struct {
	OutputDir        string
	TemplateFile     string
	VerticalTemplate string
	StartScreenFile  string
	EndScreenFile    string
	Workers          int
}

// RenderBuilder downloads, overlays and cuts every video on a worker pool,
// then joins the clips counting down to number one.
type RenderBuilder struct {
	downloader Downloader
	horizontal render.OverlayRenderer
	vertical   render.OverlayRenderer
	composer   ClipComposer
	thumbnails ThumbnailMaker
	opts       BuildOptions
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

func NewRenderBuilder(
	downloader Downloader,
	horizontal, vertical render.OverlayRenderer,
	composer ClipComposer,
	thumbnails ThumbnailMaker,
	opts BuildOptions,
	m *metrics.Metrics,
	logger *zap.Logger,
) *RenderBuilder {
	return &RenderBuilder{
		downloader: downloader,
		horizontal: horizontal,
		vertical:   vertical,
		composer:   composer,
		thumbnails: thumbnails,
		opts:       opts,
		metrics:    m,
		logger:     logger,
	}
}

type clip struct {
	rank int
	path string
}

func (b *RenderBuilder) Build(ctx context.Context, videos []domain.Video, req PublishRequest) (Built, error) {
	if len(videos) == 0 {
		return Built{}, fmt.Errorf("no videos to render")
	}

	overlays := b.horizontal
	template := b.opts.TemplateFile
	if req.Vertical {
		overlays = b.vertical
		template = b.opts.VerticalTemplate
	}

	pool := worker.NewPool[domain.Video, clip](worker.Workers(b.opts.Workers), b.logger)
	results := pool.Run(ctx, videos, func(ctx context.Context, video domain.Video) (clip, error) {
		started := time.Now()
		defer b.metrics.ObserveRender(stageClip, started)

		source, err := b.downloader.Download(ctx, video)
		if err != nil {
			return clip{}, err
		}
		overlay, err := overlays.RenderOverlay(ctx, video, b.overlayPath(video, req.Vertical))
		if err != nil {
			return clip{}, err
		}
		path, err := b.composer.ComposeClip(ctx, render.ClipJob{
			VideoID:         video.VideoID,
			SourcePath:      source,
			OverlayPath:     overlay,
			TemplatePath:    template,
			DurationSeconds: video.DurationSeconds,
			Vertical:        req.Vertical,
		})
		if err != nil {
			return clip{}, err
		}
		return clip{rank: video.RankValue(), path: path}, nil
	})

	clips := make([]clip, 0, len(results))
	for _, r := range worker.Ordered(results) {
		if r.Err != nil {
			return Built{}, fmt.Errorf("render %s: %w", r.Task.VideoID, r.Err)
		}
		clips = append(clips, r.Value)
	}

	// countdown: the last clip is number one
	sort.SliceStable(clips, func(i, j int) bool { return clips[i].rank > clips[j].rank })
	paths := make([]string, len(clips))
	for i, c := range clips {
		paths[i] = c.path
	}

	startScreen, endScreen := b.opts.StartScreenFile, b.opts.EndScreenFile
	if req.Vertical {
		startScreen, endScreen = "", ""
	}

	started := time.Now()
	videoPath, err := b.composer.Concat(ctx, paths, startScreen, endScreen, b.outputPath(req, ".mp4"))
	b.metrics.ObserveRender(stageConcat, started)
	if err != nil {
		return Built{}, err
	}
	built := Built{VideoPath: videoPath}

	if !req.Vertical && b.thumbnails != nil {
		started := time.Now()
		thumb, err := b.thumbnails.Render(ctx, videos, req.Day, b.outputPath(req, ".jpg"))
		b.metrics.ObserveRender(stageThumbnail, started)
		if err != nil {
			b.logger.Warn("Thumbnail render failed, publishing without it", zap.Error(err))
		} else {
			built.ThumbnailPath = thumb
		}
	}

	b.logger.Info("Top video rendered",
		zap.String("path", built.VideoPath),
		zap.Int("clips", len(paths)),
		zap.Bool("vertical", req.Vertical),
	)
	return built, nil
}

func (b *RenderBuilder) overlayPath(video domain.Video, vertical bool) string {
	name := video.VideoID
	if vertical {
		name += "_vertical"
	}
	return filepath.Join(b.opts.OutputDir, "overlays", name+".png")
}

func (b *RenderBuilder) outputPath(req PublishRequest, ext string) string {
	name := fmt.Sprintf("top_%s_%s", req.Period, req.Day.UTC().Format("20060102"))
	if req.Vertical {
		name += "_vertical"
	}
	return filepath.Join(b.opts.OutputDir, name+ext)
}
