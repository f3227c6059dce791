package render

import (
	"fmt"
	"os"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
)

// fontSet loads faces from a TrueType file, falling back to the embedded Go
// fonts when no file is configured.
type fontSet struct {
	regular *truetype.Font
	bold    *truetype.Font
	glyph   *truetype.Font
}

func loadFontSet(fontFile, glyphFontFile string) (*fontSet, error) {
	regular, err := parseFont(fontFile, gomono.TTF)
	if err != nil {
		return nil, err
	}
	bold := regular
	if fontFile == "" {
		if bold, err = truetype.Parse(gomonobold.TTF); err != nil {
			return nil, fmt.Errorf("failed to parse embedded bold font: %w", err)
		}
	}

	fs := &fontSet{regular: regular, bold: bold}
	if glyphFontFile != "" {
		if fs.glyph, err = parseFont(glyphFontFile, nil); err != nil {
			return nil, err
		}
	}
	return fs, nil
}

func parseFont(path string, fallback []byte) (*truetype.Font, error) {
	data := fallback
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read font file: %w", err)
		}
		data = raw
	}
	f, err := truetype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font %q: %w", path, err)
	}
	return f, nil
}

func face(f *truetype.Font, size float64) font.Face {
	return truetype.NewFace(f, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
}
