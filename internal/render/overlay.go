package render

import (
	"context"
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
	"github.com/kapu/top-music-bot-go/internal/constants"
	"github.com/kapu/top-music-bot-go/internal/domain"
	"github.com/kapu/top-music-bot-go/internal/util"
)

// OverlayRenderer draws the transparent per-video layer composed over the clip.
type OverlayRenderer interface {
	RenderOverlay(ctx context.Context, video domain.Video, outputPath string) (string, error)
}

type textBox struct {
	x, y, width float64
	size        float64
}

// layout holds top-left anchored positions for one orientation.
type layout struct {
	width, height int
	rank          textBox
	delta         textBox
	previous      *textBox
	title         textBox
	titleRunes    int
	channel       textBox
	views         textBox
	growth        textBox
	viewsLabel    *textBox
	growthLabel   *textBox
	viewsColor    color.Color
}

var horizontalLayout = layout{
	width:      constants.RenderGeometry.HorizontalWidth,
	height:     constants.RenderGeometry.HorizontalHeight,
	rank:       textBox{x: 190, y: 705, size: 130},
	delta:      textBox{x: 335, y: 730, size: 77},
	title:      textBox{x: 180, y: 940, width: 1250, size: 42},
	titleRunes: constants.PublishLimits.OverlayTitle,
	channel:    textBox{x: 258, y: 115, size: 24},
	views:      textBox{x: 1525, y: 210, width: 240, size: 41},
	growth:     textBox{x: 1525, y: 480, width: 240, size: 38},
	viewsColor: colorBlack,
}

var verticalLayout = layout{
	width:       constants.RenderGeometry.VerticalWidth,
	height:      constants.RenderGeometry.VerticalHeight,
	rank:        textBox{x: 96, y: 770, size: 240},
	delta:       textBox{x: 170, y: 990, size: 77},
	previous:    &textBox{x: 245, y: 995, size: 66},
	title:       textBox{x: 83, y: 1180, width: 850, size: 58},
	titleRunes:  constants.PublishLimits.VerticalTitle,
	channel:     textBox{x: 83, y: 1347, size: 24},
	views:       textBox{x: 83, y: 1400, width: 300, size: 58},
	growth:      textBox{x: 400, y: 1400, width: 300, size: 58},
	viewsLabel:  &textBox{x: 83, y: 1480, width: 300, size: 24},
	growthLabel: &textBox{x: 400, y: 1480, width: 300, size: 24},
	viewsColor:  colorWhite,
}

// GGOverlayRenderer renders overlays with gg onto a transparent canvas.
type GGOverlayRenderer struct {
	fonts  *fontSet
	layout layout
}

func NewOverlayRenderer(fontFile, glyphFontFile string, vertical bool) (*GGOverlayRenderer, error) {
	fonts, err := loadFontSet(fontFile, glyphFontFile)
	if err != nil {
		return nil, err
	}
	l := horizontalLayout
	if vertical {
		l = verticalLayout
	}
	return &GGOverlayRenderer{fonts: fonts, layout: l}, nil
}

func (r *GGOverlayRenderer) RenderOverlay(ctx context.Context, video domain.Video, outputPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	l := r.layout
	delta := video.Delta()
	dc := gg.NewContext(l.width, l.height)

	dc.SetFontFace(face(r.fonts.bold, l.rank.size))
	dc.SetColor(colorWhite)
	dc.DrawStringAnchored(RankLabel(video.RankValue()), l.rank.x, l.rank.y, 0, 1)

	r.drawDelta(dc, delta, l.delta)

	if l.previous != nil {
		dc.SetFontFace(face(r.fonts.bold, l.previous.size))
		dc.SetColor(DeltaColor(delta))
		dc.DrawStringAnchored(PreviousRankLabel(video.PreviousRank), l.previous.x, l.previous.y, 0, 1)
	}

	title := util.TruncateRunes(video.CleanTitle(), l.titleRunes)
	dc.SetFontFace(face(r.fonts.regular, l.title.size))
	dc.SetColor(colorWhite)
	dc.DrawStringWrapped(title, l.title.x, l.title.y, 0, 0, l.title.width, 1.2, gg.AlignLeft)

	if name := video.Channel.GetDisplayName(); name != "" {
		dc.SetFontFace(face(r.fonts.regular, l.channel.size))
		dc.DrawStringAnchored("© "+name, l.channel.x, l.channel.y, 0, 1)
	}

	dc.SetFontFace(face(r.fonts.regular, l.views.size))
	dc.SetColor(l.viewsColor)
	drawCentered(dc, FormatCount(video.Views), l.views)

	dc.SetFontFace(face(r.fonts.regular, l.growth.size))
	dc.SetColor(GrowthColor(delta))
	drawCentered(dc, FormatCount(video.GrowthValue()), l.growth)

	if l.viewsLabel != nil {
		dc.SetFontFace(face(r.fonts.regular, l.viewsLabel.size))
		dc.SetColor(colorWhite)
		drawCentered(dc, "views", *l.viewsLabel)
	}
	if l.growthLabel != nil {
		dc.SetFontFace(face(r.fonts.regular, l.growthLabel.size))
		dc.SetColor(GrowthColor(delta))
		drawCentered(dc, "NEW views", *l.growthLabel)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create overlay directory: %w", err)
	}
	if err := dc.SavePNG(outputPath); err != nil {
		return "", fmt.Errorf("failed to save overlay: %w", err)
	}
	return outputPath, nil
}

func drawCentered(dc *gg.Context, text string, box textBox) {
	dc.DrawStringAnchored(text, box.x+box.width/2, box.y, 0.5, 1)
}

// drawDelta uses the symbol font when one is configured and simple shapes
// otherwise.
func (r *GGOverlayRenderer) drawDelta(dc *gg.Context, delta domain.RankDelta, box textBox) {
	if r.fonts.glyph != nil {
		dc.SetFontFace(face(r.fonts.glyph, box.size))
		glyph := DeltaGlyph(delta)
		dc.SetColor(colorWhite)
		for _, off := range [][2]float64{{-2, 0}, {2, 0}, {0, -2}, {0, 2}} {
			dc.DrawStringAnchored(glyph, box.x+off[0], box.y+off[1], 0, 1)
		}
		dc.SetColor(DeltaColor(delta))
		dc.DrawStringAnchored(glyph, box.x, box.y, 0, 1)
		return
	}

	s := box.size
	cx, cy := box.x+s/2, box.y+s/2
	switch delta {
	case domain.RankDeltaUp:
		dc.MoveTo(cx, box.y)
		dc.LineTo(box.x+s, box.y+s)
		dc.LineTo(box.x, box.y+s)
		dc.ClosePath()
	case domain.RankDeltaDown:
		dc.MoveTo(box.x, box.y)
		dc.LineTo(box.x+s, box.y)
		dc.LineTo(cx, box.y+s)
		dc.ClosePath()
	case domain.RankDeltaEqual:
		dc.DrawRectangle(box.x, cy-s/8, s, s/4)
	default:
		dc.DrawCircle(cx, cy, s/2)
	}
	dc.SetColor(DeltaColor(delta))
	dc.FillPreserve()
	dc.SetColor(colorWhite)
	dc.SetLineWidth(4)
	dc.Stroke()
}
