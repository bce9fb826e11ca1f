package photoproc

import "image"

// Default signature detection parameters.
const (
	DefaultThreshold = 250
	DefaultPadding   = 15
)

// BoundingBox is an inclusive pixel rectangle. Found is false when no
// foreground pixel was seen and the box covers the whole image.
type BoundingBox struct {
	MinX  int  `json:"min_x"`
	MinY  int  `json:"min_y"`
	MaxX  int  `json:"max_x"`
	MaxY  int  `json:"max_y"`
	Found bool `json:"found"`
}

func (b BoundingBox) Width() int  { return b.MaxX - b.MinX + 1 }
func (b BoundingBox) Height() int { return b.MaxY - b.MinY + 1 }

// Rect returns the half-open image.Rectangle covering the box.
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.MinX, b.MinY, b.MaxX+1, b.MaxY+1)
}

// Expand grows the box by padding on every side and clamps it to a
// width x height image.
func (b BoundingBox) Expand(padding, width, height int) BoundingBox {
	b.MinX = max(0, b.MinX-padding)
	b.MinY = max(0, b.MinY-padding)
	b.MaxX = min(width-1, b.MaxX+padding)
	b.MaxY = min(height-1, b.MaxY+padding)
	return b
}

// isForeground reports whether mean(r, g, b) < threshold. The mean is
// compared as r+g+b < 3*threshold so no precision is lost; a mean exactly
// equal to threshold is background.
func isForeground(r, g, b uint8, threshold int) bool {
	return int(r)+int(g)+int(b) < 3*threshold
}

// ScanForeground walks every pixel of raw once and returns the tightest box
// around pixels darker than threshold. An image without foreground yields
// Found=false and the full-image box. raw must be valid.
func ScanForeground(raw *RawImage, threshold int) BoundingBox {
	box := BoundingBox{MinX: raw.Width, MinY: raw.Height, MaxX: 0, MaxY: 0}
	c := raw.Channels
	i := 0
	for y := 0; y < raw.Height; y++ {
		for x := 0; x < raw.Width; x++ {
			if isForeground(raw.Pix[i], raw.Pix[i+1], raw.Pix[i+2], threshold) {
				if x < box.MinX {
					box.MinX = x
				}
				if x > box.MaxX {
					box.MaxX = x
				}
				if y < box.MinY {
					box.MinY = y
				}
				if y > box.MaxY {
					box.MaxY = y
				}
				box.Found = true
			}
			i += c
		}
	}
	if !box.Found {
		return BoundingBox{MinX: 0, MinY: 0, MaxX: raw.Width - 1, MaxY: raw.Height - 1}
	}
	return box
}

// SignatureBounds scans raw and pads the result, producing the crop rectangle
// for a signature photo.
func SignatureBounds(raw *RawImage, threshold, padding int) BoundingBox {
	return ScanForeground(raw, threshold).Expand(padding, raw.Width, raw.Height)
}
