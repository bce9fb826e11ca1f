package photoproc

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func solidImage(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	fillRect(img, 0, 0, w, h, c)
	return img
}

// fillRect paints the half-open rectangle [x0,x1)x[y0,y1) without any
// premultiplication round trip.
func fillRect(img *image.NRGBA, x0, y0, x1, y1 int, c color.Color) {
	nc := color.NRGBAModel.Convert(c).(color.NRGBA)
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			img.SetNRGBA(x, y, nc)
		}
	}
}

// gradientImage is smooth content that compresses well.
func gradientImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x * 255 / w),
				G: uint8(y * 255 / h),
				B: 160,
				A: 255,
			})
		}
	}
	return img
}

// noiseImage is high-entropy content that resists compression.
func noiseImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	var s uint32 = 2463534242
	for i := 0; i < len(img.Pix); i += 4 {
		s ^= s << 13
		s ^= s >> 17
		s ^= s << 5
		img.Pix[i] = uint8(s)
		img.Pix[i+1] = uint8(s >> 8)
		img.Pix[i+2] = uint8(s >> 16)
		img.Pix[i+3] = 255
	}
	return img
}

func jpegBytes(t *testing.T, img image.Image, quality int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		t.Fatalf("encoding jpeg: %v", err)
	}
	return buf.Bytes()
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding png: %v", err)
	}
	return buf.Bytes()
}

func rawFrom(img image.Image) *RawImage { return NewRawImage(img) }

// visibleBounds returns the inclusive box of pixels with non-zero alpha in
// rows [0, rows).
func visibleBounds(img *image.NRGBA, rows int) (BoundingBox, bool) {
	box := BoundingBox{MinX: img.Rect.Dx(), MinY: rows}
	found := false
	for y := 0; y < rows; y++ {
		for x := 0; x < img.Rect.Dx(); x++ {
			if img.NRGBAAt(x, y).A == 0 {
				continue
			}
			found = true
			box.MinX = min(box.MinX, x)
			box.MinY = min(box.MinY, y)
			box.MaxX = max(box.MaxX, x)
			box.MaxY = max(box.MaxY, y)
		}
	}
	box.Found = found
	return box, found
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
