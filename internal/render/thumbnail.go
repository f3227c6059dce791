package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/fogleman/gg"
	"github.com/kapu/top-music-bot-go/internal/constants"
	"github.com/kapu/top-music-bot-go/internal/domain"
	"github.com/kapu/top-music-bot-go/internal/platform"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
)

const (
	thumbnailVideos  = 4
	thumbnailQuality = 95
)

// ThumbnailRenderer tiles the thumbnails of the top four videos in a 2x2 grid
// under an optional template and writes the date on it.
type ThumbnailRenderer struct {
	api          *platform.APIClient
	templateFile string
	fonts        *fontSet
	logger       *zap.Logger
	thumbnailURL func(domain.Video) string
}

func NewThumbnailRenderer(api *platform.APIClient, templateFile, fontFile string, logger *zap.Logger) (*ThumbnailRenderer, error) {
	fonts, err := loadFontSet(fontFile, "")
	if err != nil {
		return nil, err
	}
	return &ThumbnailRenderer{
		api:          api,
		templateFile: templateFile,
		fonts:        fonts,
		logger:       logger,
		thumbnailURL: domain.Video.ThumbnailURL,
	}, nil
}

// Render draws videos ordered by rank; only the first four are used.
func (r *ThumbnailRenderer) Render(ctx context.Context, videos []domain.Video, day time.Time, outputPath string) (string, error) {
	if len(videos) == 0 {
		return "", fmt.Errorf("no videos for thumbnail")
	}
	if len(videos) > thumbnailVideos {
		videos = videos[:thumbnailVideos]
	}

	var template image.Image
	width, height := constants.RenderGeometry.ThumbnailWidth, constants.RenderGeometry.ThumbnailHeight
	if r.templateFile != "" {
		img, err := gg.LoadImage(r.templateFile)
		if err != nil {
			return "", fmt.Errorf("failed to load thumbnail template: %w", err)
		}
		template = img
		width, height = img.Bounds().Dx(), img.Bounds().Dy()
	}

	halfW, halfH := width/2, height/2
	dc := gg.NewContext(width, height)
	dc.SetColor(colorBlack)
	dc.Clear()

	for i, video := range videos {
		tile, err := r.fetchThumbnail(ctx, video)
		if err != nil {
			r.logger.Warn("Skipping thumbnail tile",
				zap.String("video_id", video.VideoID),
				zap.Error(err))
			continue
		}
		scaled := image.NewRGBA(image.Rect(0, 0, halfW, halfH))
		draw.CatmullRom.Scale(scaled, scaled.Bounds(), tile, tile.Bounds(), draw.Over, nil)
		dc.DrawImage(scaled, (i%2)*halfW, (i/2)*halfH)
	}

	if template != nil {
		dc.DrawImage(template, 0, 0)
	}

	// date banner sits in the lower right quadrant
	dc.SetFontFace(face(r.fonts.bold, float64(height)*70/1080))
	dc.SetColor(colorBlack)
	dc.DrawStringAnchored(day.UTC().Format("02 / 01 / 2006"), float64(width)*996/1920, float64(height)*960/1080, 0, 0)

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create thumbnail directory: %w", err)
	}
	if err := gg.SaveJPG(outputPath, dc.Image(), thumbnailQuality); err != nil {
		return "", fmt.Errorf("failed to save thumbnail: %w", err)
	}
	return outputPath, nil
}

func (r *ThumbnailRenderer) fetchThumbnail(ctx context.Context, video domain.Video) (image.Image, error) {
	body, err := r.api.Do(ctx, platform.Request{Method: http.MethodGet, URL: r.thumbnailURL(video)})
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to decode thumbnail: %w", err)
	}
	return img, nil
}
