// Package render draws the per-video overlays and the thumbnail, and drives
// yt-dlp and ffmpeg to build the final video.
package render

import (
	"fmt"
	"image/color"
	"math"

	"github.com/kapu/top-music-bot-go/internal/domain"
)

var (
	colorYellow = color.RGBA{R: 255, G: 255, A: 255}
	colorBlue   = color.RGBA{B: 205, A: 255}
	colorRed    = color.RGBA{R: 255, A: 255}
	colorWhite  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	colorBlack  = color.RGBA{A: 255}
)

// DeltaGlyph is the symbol-font character drawn next to the rank.
func DeltaGlyph(d domain.RankDelta) string {
	switch d {
	case domain.RankDeltaNew:
		return "~"
	case domain.RankDeltaUp:
		return "5"
	case domain.RankDeltaDown:
		return "6"
	case domain.RankDeltaEqual:
		return ";"
	default:
		return "~"
	}
}

func DeltaColor(d domain.RankDelta) color.RGBA {
	switch d {
	case domain.RankDeltaNew:
		return colorYellow
	case domain.RankDeltaUp:
		return colorBlue
	case domain.RankDeltaDown:
		return colorRed
	case domain.RankDeltaEqual:
		return colorWhite
	default:
		return colorWhite
	}
}

func GrowthColor(d domain.RankDelta) color.RGBA {
	switch d {
	case domain.RankDeltaNew:
		return colorBlack
	case domain.RankDeltaUp:
		return colorBlue
	case domain.RankDeltaDown:
		return colorRed
	case domain.RankDeltaEqual:
		return colorBlack
	default:
		return colorBlack
	}
}

var countSuffixes = []string{"", "k", "M", "B", "T"}

// FormatCount abbreviates n with two decimals: 1250000 -> "1.25M",
// 1500 -> "1.50k", 999 -> "999.00".
func FormatCount(n int64) string {
	value := float64(n)
	idx := 0
	if n != 0 {
		idx = int(math.Floor(math.Log10(math.Abs(value)) / 3))
	}
	if idx < 0 {
		idx = 0
	}
	if idx > len(countSuffixes)-1 {
		idx = len(countSuffixes) - 1
	}
	return fmt.Sprintf("%.2f%s", value/math.Pow(10, float64(3*idx)), countSuffixes[idx])
}

// RankLabel formats a rank as two digits, "--" when unranked.
func RankLabel(rank int) string {
	if rank <= 0 {
		return "--"
	}
	return fmt.Sprintf("%02d", rank)
}

// PreviousRankLabel is the previous position, "N" for new entries.
func PreviousRankLabel(previous *int) string {
	if previous == nil {
		return "N"
	}
	return fmt.Sprintf("%d", *previous)
}
