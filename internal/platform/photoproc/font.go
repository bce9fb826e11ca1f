package photoproc

import (
	"fmt"
	"os"
	"unicode"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
)

// CaptionGlyphs holds the non-ASCII runes every timestamp caption draws.
const CaptionGlyphs = "年月日"

// Fonts holds the parsed caption font. The parsed font is read-only and can
// be shared; faces are not safe for concurrent use, so one is built per
// render and closed afterwards.
type Fonts struct {
	font   *opentype.Font
	source string
}

// LoadFonts parses the font file at path (.ttf, .otf or a .ttc/.otc
// collection, of which the first face is used). A font that cannot draw
// CaptionGlyphs is rejected. An empty path selects the embedded Go Bold font,
// which has no CJK glyphs; callers should check MissingGlyphs on it.
func LoadFonts(path string) (*Fonts, error) {
	if path == "" {
		return DefaultFonts()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading font %s: %w", path, err)
	}
	coll, err := opentype.ParseCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parsing font %s: %w", path, err)
	}
	if coll.NumFonts() == 0 {
		return nil, fmt.Errorf("font %s contains no faces", path)
	}
	f, err := coll.Font(0)
	if err != nil {
		return nil, fmt.Errorf("loading first face of %s: %w", path, err)
	}
	fonts := &Fonts{font: f, source: path}
	if missing := fonts.MissingGlyphs(CaptionGlyphs); len(missing) > 0 {
		return nil, fmt.Errorf("font %s has no glyphs for %q", path, string(missing))
	}
	return fonts, nil
}

// DefaultFonts returns the embedded Go Bold font.
func DefaultFonts() (*Fonts, error) {
	f, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing embedded font: %w", err)
	}
	return &Fonts{font: f, source: "gobold"}, nil
}

// Source names where the font came from.
func (f *Fonts) Source() string { return f.source }

// Face builds a face at size points and 72 DPI, so one point is one pixel.
func (f *Fonts) Face(size float64) (font.Face, error) {
	face, err := opentype.NewFace(f.font, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("building %.0fpt face: %w", size, err)
	}
	return face, nil
}

// MissingGlyphs returns the distinct non-space runes of text that the font
// has no glyph for, in order of first appearance.
func (f *Fonts) MissingGlyphs(text string) []rune {
	var (
		buf     sfnt.Buffer
		missing []rune
		seen    = make(map[rune]bool)
	)
	for _, r := range text {
		if unicode.IsSpace(r) || seen[r] {
			continue
		}
		seen[r] = true
		if idx, err := f.font.GlyphIndex(&buf, r); err != nil || idx == 0 {
			missing = append(missing, r)
		}
	}
	return missing
}
