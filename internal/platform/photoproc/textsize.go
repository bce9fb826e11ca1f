package photoproc

import "math"

// narrowRatio is the width of a narrow glyph relative to the font size.
const narrowRatio = 0.6

// SizerOptions controls caption font sizing.
type SizerOptions struct {
	// WidthDivisor derives the initial font size from the image width.
	WidthDivisor int
	// MinInitial is the smallest initial font size.
	MinInitial int
	// MinFont is the floor applied after shrinking.
	MinFont int
	// SidePadding is subtracted from the image width to get the text budget.
	SidePadding int
	// BandPadding is added to the font size to get the caption band height.
	BandPadding int
	// LineSpacing multiplies the font size to get the line height.
	LineSpacing float64
}

func DefaultSizerOptions() SizerOptions {
	return SizerOptions{
		WidthDivisor: 18,
		MinInitial:   20,
		MinFont:      14,
		SidePadding:  40,
		BandPadding:  12,
		LineSpacing:  1.3,
	}
}

// WatermarkSpec is the computed layout of a caption. It is derived per
// upload and never stored.
type WatermarkSpec struct {
	Text           string  `json:"text"`
	FontSize       int     `json:"font_size"`
	LineHeight     float64 `json:"line_height"`
	BandHeight     int     `json:"band_height"`
	MaxWidth       int     `json:"max_width"`
	EstimatedWidth float64 `json:"estimated_width"`
	WideCount      int     `json:"wide_count"`
	NarrowCount    int     `json:"narrow_count"`
}

// IsWide reports whether r is in the CJK Unified Ideographs range
// U+4E00..U+9FA5. Other wide scripts are estimated as narrow.
func IsWide(r rune) bool {
	return r >= 0x4e00 && r <= 0x9fa5
}

// CountChars splits text into wide and narrow rune counts.
func CountChars(text string) (wide, narrow int) {
	for _, r := range text {
		if IsWide(r) {
			wide++
		} else {
			narrow++
		}
	}
	return wide, narrow
}

// EstimateWidth approximates the rendered width of text at fontSize.
func EstimateWidth(text string, fontSize float64) float64 {
	wide, narrow := CountChars(text)
	return float64(wide)*fontSize + float64(narrow)*fontSize*narrowRatio
}

// FitFontSize returns initial when the estimated width fits maxWidth, and
// otherwise the single-step estimate floor(maxWidth / units) clamped to
// minFont. Text that still overflows at minFont is accepted.
func FitFontSize(text string, maxWidth, initial, minFont int) int {
	if EstimateWidth(text, float64(initial)) <= float64(maxWidth) {
		return initial
	}
	wide, narrow := CountChars(text)
	units := float64(wide) + float64(narrow)*narrowRatio
	if units == 0 {
		return initial
	}
	size := int(math.Floor(float64(maxWidth) / units))
	return max(minFont, size)
}

// LayoutCaption sizes text for an image imageWidth pixels wide.
func LayoutCaption(text string, imageWidth int, opts SizerOptions) WatermarkSpec {
	divisor := opts.WidthDivisor
	if divisor <= 0 {
		divisor = 1
	}
	initial := max(opts.MinInitial, imageWidth/divisor)
	maxWidth := imageWidth - opts.SidePadding
	size := FitFontSize(text, maxWidth, initial, opts.MinFont)
	wide, narrow := CountChars(text)

	return WatermarkSpec{
		Text:           text,
		FontSize:       size,
		LineHeight:     float64(size) * opts.LineSpacing,
		BandHeight:     size + opts.BandPadding,
		MaxWidth:       maxWidth,
		EstimatedWidth: EstimateWidth(text, float64(size)),
		WideCount:      wide,
		NarrowCount:    narrow,
	}
}
