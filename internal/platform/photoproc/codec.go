package photoproc

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"

	// Registers the WebP decoder with image.Decode, which imaging.Decode uses.
	_ "golang.org/x/image/webp"
)

// DetectFormat returns the short format name ("jpeg", "png", "gif", "webp")
// sniffed from the leading bytes of data, or "" when it is not an image type
// the pipeline accepts.
func DetectFormat(data []byte) string {
	ct := http.DetectContentType(data)
	switch {
	case strings.HasPrefix(ct, "image/jpeg"):
		return "jpeg"
	case strings.HasPrefix(ct, "image/png"):
		return "png"
	case strings.HasPrefix(ct, "image/gif"):
		return "gif"
	case strings.HasPrefix(ct, "image/webp"):
		return "webp"
	default:
		return ""
	}
}

// Decode validates and decodes an uploaded image. The header is checked with
// image.DecodeConfig before any pixels are decoded so frames over MaxPixels
// are turned away without allocating them. JPEG frames get their EXIF
// orientation applied. Undecodable input is returned as a *DecodeError; an
// over-budget frame is a *ProcessingError so the upload can keep the original.
func Decode(data []byte) (image.Image, string, error) {
	format := DetectFormat(data)
	if format == "" {
		return nil, "", &DecodeError{Err: ErrNotAnImage}
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, format, &DecodeError{Format: format, Err: err}
	}
	if err := checkDimensions(cfg.Width, cfg.Height); err != nil {
		if errors.Is(err, ErrImageTooLarge) {
			return nil, format, &ProcessingError{Stage: StageDecode, Err: err}
		}
		return nil, format, &DecodeError{Format: format, Err: err}
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, format, &DecodeError{Format: format, Err: err}
	}

	if format == "jpeg" {
		img = ApplyEXIFOrientation(img, bytes.NewReader(data))
	}
	return img, format, nil
}

func checkDimensions(w, h int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, w, h)
	}
	if int64(w)*int64(h) > MaxPixels {
		return fmt.Errorf("%w: %dx%d", ErrImageTooLarge, w, h)
	}
	return nil
}

// ApplyEXIFOrientation reads EXIF from r and applies the orientation
// transform to img. Missing or unparsable EXIF returns img unchanged.
func ApplyEXIFOrientation(img image.Image, r io.Reader) image.Image {
	x, err := exif.Decode(r)
	if err != nil {
		return img
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return img
	}
	orient, err := tag.Int(0)
	if err != nil {
		return img
	}
	return orientationTransform(img, orient)
}

// orientationTransform applies the flip/rotation for EXIF orientation values
// 1-8. Unknown values return img.
func orientationTransform(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// EncodeJPEG encodes img as JPEG at the given quality (clamped to 1..100).
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("encode jpeg: nil image")
	}
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodePNG encodes img as PNG, keeping its alpha channel.
func EncodePNG(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("encode png: nil image")
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// RawImage is a flat, row-major pixel buffer with interleaved channels.
// Channels is 3 (RGB) or 4 (RGBA, non-premultiplied).
type RawImage struct {
	Width    int
	Height   int
	Channels int
	Pix      []uint8
}

// NewRawImage copies img into a tightly packed 4-channel buffer.
func NewRawImage(img image.Image) *RawImage {
	return wrapNRGBA(imaging.Clone(img))
}

// wrapNRGBA views src as a 4-channel RawImage. A packed src shares its Pix
// with the result, so neither may be written while the other is in use.
// Strided or offset rectangles are copied.
func wrapNRGBA(src *image.NRGBA) *RawImage {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	row := w * 4
	if src.Rect.Min == (image.Point{}) && src.Stride == row && len(src.Pix) >= row*h {
		return &RawImage{Width: w, Height: h, Channels: 4, Pix: src.Pix[:row*h]}
	}
	pix := make([]uint8, row*h)
	for y := 0; y < h; y++ {
		off := src.PixOffset(src.Rect.Min.X, src.Rect.Min.Y+y)
		copy(pix[y*row:(y+1)*row], src.Pix[off:off+row])
	}
	return &RawImage{Width: w, Height: h, Channels: 4, Pix: pix}
}

// Validate checks that the buffer length matches the declared geometry.
func (r *RawImage) Validate() error {
	if r == nil {
		return fmt.Errorf("nil raw image")
	}
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, r.Width, r.Height)
	}
	if r.Channels != 3 && r.Channels != 4 {
		return fmt.Errorf("unsupported channel count %d", r.Channels)
	}
	if len(r.Pix) != r.Width*r.Height*r.Channels {
		return fmt.Errorf("pixel buffer length %d does not match %dx%dx%d",
			len(r.Pix), r.Width, r.Height, r.Channels)
	}
	return nil
}

// NRGBA converts the buffer to an *image.NRGBA. 3-channel buffers become
// fully opaque.
func (r *RawImage) NRGBA() *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, r.Width, r.Height))
	if r.Channels == 4 {
		copy(dst.Pix, r.Pix)
		return dst
	}
	for i, j := 0, 0; i < len(r.Pix); i, j = i+3, j+4 {
		dst.Pix[j] = r.Pix[i]
		dst.Pix[j+1] = r.Pix[i+1]
		dst.Pix[j+2] = r.Pix[i+2]
		dst.Pix[j+3] = 255
	}
	return dst
}
