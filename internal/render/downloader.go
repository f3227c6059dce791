package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kapu/top-music-bot-go/internal/constants"
	"github.com/kapu/top-music-bot-go/internal/domain"
	"go.uber.org/zap"
)

const ytdlpFormat = "best[height<=720][ext=mp4]/best[ext=mp4]/mp4/best"

// Downloader fetches source videos with yt-dlp into a cache directory.
type Downloader struct {
	binary string
	dir    string
	runner CommandRunner
	logger *zap.Logger
}

func NewDownloader(binary, dir string, logger *zap.Logger) *Downloader {
	return &Downloader{binary: binary, dir: dir, runner: execRunner{}, logger: logger}
}

func (d *Downloader) Path(videoID string) string {
	return filepath.Join(d.dir, videoID+".mp4")
}

// Download returns the local file of the video, downloading it when missing.
// Long videos are cut to the 30s-90s section; shorts are kept whole.
func (d *Downloader) Download(ctx context.Context, video domain.Video) (string, error) {
	path := d.Path(video.VideoID)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}

	if _, err := d.runner.Run(ctx, d.binary, d.args(video)...); err != nil {
		return "", fmt.Errorf("download %s: %w", video.VideoID, err)
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("download %s produced no file: %w", video.VideoID, err)
	}

	d.logger.Debug("Video downloaded", zap.String("video_id", video.VideoID), zap.String("path", path))
	return path, nil
}

func (d *Downloader) args(video domain.Video) []string {
	args := []string{
		"--format", ytdlpFormat,
		"--output", filepath.Join(d.dir, "%(id)s.%(ext)s"),
		"--merge-output-format", "mp4",
		"--no-playlist",
		"--quiet",
		"--no-progress",
		"--retries", "3",
		"--fragment-retries", "3",
	}
	if video.DurationSeconds > constants.RenderTiming.ShortsMaxSeconds {
		args = append(args,
			"--download-sections", fmt.Sprintf("*%d-%d", constants.RenderTiming.DownloadFromSecond, constants.RenderTiming.DownloadToSecond),
			"--force-keyframes-at-cuts",
		)
	}
	return append(args, video.URL())
}
