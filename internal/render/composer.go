package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kapu/top-music-bot-go/internal/constants"
	"go.uber.org/zap"
)

// ClipJob describes one ranked clip: the source video cut to a few seconds,
// the frame template keyed on pure blue, and the text overlay on top.
type ClipJob struct {
	VideoID         string
	SourcePath      string
	OverlayPath     string
	TemplatePath    string
	DurationSeconds int64
	Vertical        bool
}

// Composer builds clips and the final video with ffmpeg.
type Composer struct {
	binary    string
	outputDir string
	runner    CommandRunner
	logger    *zap.Logger
}

func NewComposer(binary, outputDir string, logger *zap.Logger) *Composer {
	return &Composer{binary: binary, outputDir: outputDir, runner: execRunner{}, logger: logger}
}

func (c *Composer) clipPath(job ClipJob) string {
	suffix := ""
	if job.Vertical {
		suffix = "_vertical"
	}
	return filepath.Join(c.outputDir, job.VideoID+suffix+"_format.mp4")
}

// clipStart cuts short sources from the beginning and longer ones from the
// middle.
func clipStart(duration int64) int64 {
	if duration < constants.RenderTiming.ShortVideoSeconds {
		return 0
	}
	return duration / 2
}

// ComposeClip renders one clip and returns its path. Existing clips are reused.
func (c *Composer) ComposeClip(ctx context.Context, job ClipJob) (string, error) {
	out := c.clipPath(job)
	if _, err := os.Stat(out); err == nil {
		return out, nil
	}
	if err := os.MkdirAll(c.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	if _, err := c.runner.Run(ctx, c.binary, clipArgs(job, out)...); err != nil {
		return "", fmt.Errorf("compose clip %s: %w", job.VideoID, err)
	}
	c.logger.Debug("Clip composed", zap.String("video_id", job.VideoID), zap.String("path", out))
	return out, nil
}

func clipArgs(job ClipJob, out string) []string {
	width, height := constants.RenderGeometry.HorizontalWidth, constants.RenderGeometry.HorizontalHeight
	if job.Vertical {
		width, height = constants.RenderGeometry.VerticalWidth, constants.RenderGeometry.VerticalHeight
	}
	size := fmt.Sprintf("%d:%d", width, height)

	args := []string{
		"-y",
		"-ss", strconv.FormatInt(clipStart(job.DurationSeconds), 10),
		"-t", strconv.Itoa(constants.RenderTiming.ClipSeconds),
		"-i", job.SourcePath,
	}

	// the source fills the frame (cropped for vertical), the template's blue
	// area is keyed out, the overlay is drawn last
	var filters []string
	if job.Vertical {
		filters = append(filters, fmt.Sprintf("[0:v]scale=%s:force_original_aspect_ratio=increase,crop=%s[base]", size, size))
	} else {
		filters = append(filters, fmt.Sprintf("[0:v]scale=%s:force_original_aspect_ratio=decrease,pad=%s:(ow-iw)/2:(oh-ih)/2:black[base]", size, size))
	}

	next := 1
	current := "base"
	if job.TemplatePath != "" {
		args = append(args, "-i", job.TemplatePath)
		filters = append(filters,
			fmt.Sprintf("[%d:v]scale=%s,colorkey=0x0000FF:0.4:0.1[frame]", next, size),
			fmt.Sprintf("[%s][frame]overlay=0:0:shortest=1[framed]", current))
		current = "framed"
		next++
	}
	if job.OverlayPath != "" {
		args = append(args, "-i", job.OverlayPath)
		filters = append(filters, fmt.Sprintf("[%s][%d:v]overlay=0:0[out]", current, next))
		current = "out"
	}

	args = append(args,
		"-filter_complex", strings.Join(filters, ";"),
		"-map", "["+current+"]",
		"-map", "0:a?",
		"-r", strconv.Itoa(constants.RenderTiming.FPS),
	)
	return append(args, encodeArgs(out)...)
}

func encodeArgs(out string) []string {
	return []string{
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-ar", "44100",
		"-ac", "2",
		out,
	}
}

// Concat joins clips with a short cross fade, wrapped in the start and end
// screens when they are given.
func (c *Composer) Concat(ctx context.Context, clips []string, startScreen, endScreen, outputPath string) (string, error) {
	inputs := make([]string, 0, len(clips)+2)
	if startScreen != "" {
		inputs = append(inputs, startScreen)
	}
	inputs = append(inputs, clips...)
	if endScreen != "" {
		inputs = append(inputs, endScreen)
	}
	if len(inputs) == 0 {
		return "", fmt.Errorf("nothing to concatenate")
	}

	durations := make([]float64, len(inputs))
	for i, in := range inputs {
		durations[i] = float64(constants.RenderTiming.ClipSeconds)
		if in == startScreen || in == endScreen {
			d, err := c.probeDuration(ctx, in)
			if err != nil {
				return "", err
			}
			durations[i] = d
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	if _, err := c.runner.Run(ctx, c.binary, concatArgs(inputs, durations, outputPath)...); err != nil {
		return "", fmt.Errorf("concat %d clips: %w", len(inputs), err)
	}

	c.logger.Info("Video composed",
		zap.String("path", outputPath),
		zap.Int("clips", len(clips)))
	return outputPath, nil
}

func concatArgs(inputs []string, durations []float64, out string) []string {
	args := []string{"-y"}
	for _, in := range inputs {
		args = append(args, "-i", in)
	}

	if len(inputs) == 1 {
		return append(append(args, "-map", "0:v", "-map", "0:a?"), encodeArgs(out)...)
	}

	fade := float64(constants.RenderTiming.CrossFadeSeconds)
	var filters []string
	video, audio := "[0:v]", "[0:a]"
	offset := 0.0
	for i := 1; i < len(inputs); i++ {
		offset += durations[i-1] - fade
		v, a := fmt.Sprintf("[v%d]", i), fmt.Sprintf("[a%d]", i)
		filters = append(filters,
			fmt.Sprintf("%s[%d:v]xfade=transition=fade:duration=%g:offset=%g%s", video, i, fade, offset, v),
			fmt.Sprintf("%s[%d:a]acrossfade=d=%g%s", audio, i, fade, a))
		video, audio = v, a
	}

	args = append(args,
		"-filter_complex", strings.Join(filters, ";"),
		"-map", video,
		"-map", audio,
	)
	return append(args, encodeArgs(out)...)
}

func (c *Composer) probeDuration(ctx context.Context, path string) (float64, error) {
	probe := strings.TrimSuffix(c.binary, "ffmpeg") + "ffprobe"
	out, err := c.runner.Run(ctx, probe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", path, err)
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("probe %s: unexpected duration %q", path, strings.TrimSpace(string(out)))
	}
	return d, nil
}
