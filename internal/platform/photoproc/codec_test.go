package photoproc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
)

func TestDetectFormat(t *testing.T) {
	img := solidImage(4, 4, color.White)
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"jpeg", jpegBytes(t, img, 90), "jpeg"},
		{"png", pngBytes(t, img), "png"},
		{"text", []byte("hello, not an image"), ""},
		{"empty", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFormat(tt.data); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestDecode_NotAnImage(t *testing.T) {
	_, _, err := Decode([]byte("plain text body"))
	if err == nil {
		t.Fatal("expected error")
	}
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DecodeError, got %T", err)
	}
	if !errors.Is(err, ErrNotAnImage) {
		t.Errorf("expected ErrNotAnImage, got %v", err)
	}
}

func TestDecode_TruncatedJPEG(t *testing.T) {
	data := jpegBytes(t, gradientImage(64, 64), 90)
	_, _, err := Decode(data[:len(data)/3])
	if !IsDecodeError(err) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestDecode_WideFrameAccepted(t *testing.T) {
	img, _, err := Decode(jpegBytes(t, solidImage(8200, 100, color.White), 80))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if img.Bounds().Dx() != 8200 {
		t.Errorf("expected width 8200, got %d", img.Bounds().Dx())
	}
}

// pngHeader returns a PNG signature and IHDR chunk only, enough for
// image.DecodeConfig to report the frame size.
func pngHeader(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.Write([]byte("\x89PNG\r\n\x1a\n"))
	chunk := make([]byte, 0, 17)
	chunk = append(chunk, "IHDR"...)
	chunk = binary.BigEndian.AppendUint32(chunk, w)
	chunk = binary.BigEndian.AppendUint32(chunk, h)
	chunk = append(chunk, 8, 6, 0, 0, 0)
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(chunk)-4))
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestDecode_OverPixelBudget(t *testing.T) {
	_, format, err := Decode(pngHeader(20000, 20000))
	if !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("expected ErrImageTooLarge, got %v", err)
	}
	if IsDecodeError(err) {
		t.Error("an over-budget frame is a valid image and must not be a decode error")
	}
	var pe *ProcessingError
	if !errors.As(err, &pe) || pe.Stage != StageDecode {
		t.Errorf("expected *ProcessingError at decode stage, got %T", err)
	}
	if format != "png" {
		t.Errorf("expected png, got %q", format)
	}
}

func TestDecode_ZeroDimension(t *testing.T) {
	_, _, err := Decode(pngHeader(0, 10))
	if !IsDecodeError(err) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestCheckDimensions(t *testing.T) {
	tests := []struct {
		w, h int
		want error
	}{
		{4000, 3000, nil},
		{MaxPixels, 1, nil},
		{0x3FFF, 0x3FFF + 1, ErrImageTooLarge},
		{-1, 10, ErrInvalidDimensions},
	}
	for _, tt := range tests {
		err := checkDimensions(tt.w, tt.h)
		if tt.want == nil && err != nil {
			t.Errorf("%dx%d: unexpected error %v", tt.w, tt.h, err)
		}
		if tt.want != nil && !errors.Is(err, tt.want) {
			t.Errorf("%dx%d: expected %v, got %v", tt.w, tt.h, tt.want, err)
		}
	}
}

func TestDecode_PNG(t *testing.T) {
	img, format, err := Decode(pngBytes(t, solidImage(30, 20, color.Black)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if format != "png" {
		t.Errorf("expected png, got %s", format)
	}
	if img.Bounds().Dx() != 30 || img.Bounds().Dy() != 20 {
		t.Errorf("expected 30x20, got %v", img.Bounds())
	}
}

func TestOrientationTransform(t *testing.T) {
	src := solidImage(4, 2, color.White)
	tests := []struct {
		orientation int
		w, h        int
	}{
		{1, 4, 2},
		{2, 4, 2},
		{3, 4, 2},
		{6, 2, 4},
		{8, 2, 4},
		{42, 4, 2},
	}
	for _, tt := range tests {
		out := orientationTransform(src, tt.orientation)
		if out.Bounds().Dx() != tt.w || out.Bounds().Dy() != tt.h {
			t.Errorf("orientation %d: expected %dx%d, got %v", tt.orientation, tt.w, tt.h, out.Bounds())
		}
	}
}

func TestEncodeJPEG_ClampsQuality(t *testing.T) {
	img := gradientImage(16, 16)
	for _, q := range []int{-5, 0, 150} {
		data, err := EncodeJPEG(img, q)
		if err != nil {
			t.Fatalf("quality %d: unexpected error: %v", q, err)
		}
		if DetectFormat(data) != "jpeg" {
			t.Errorf("quality %d: expected jpeg output", q)
		}
	}
	if _, err := EncodeJPEG(nil, 80); err == nil {
		t.Error("expected error for nil image")
	}
}

func TestRawImage_RoundTrip(t *testing.T) {
	src := solidImage(3, 2, color.NRGBA{R: 10, G: 20, B: 30, A: 128})
	raw := NewRawImage(src)
	if err := raw.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw.Channels != 4 || len(raw.Pix) != 3*2*4 {
		t.Fatalf("unexpected buffer %d channels, %d bytes", raw.Channels, len(raw.Pix))
	}
	out := raw.NRGBA()
	if got := out.NRGBAAt(2, 1); got != (color.NRGBA{R: 10, G: 20, B: 30, A: 128}) {
		t.Errorf("unexpected pixel %v", got)
	}
}

func TestRawImage_ThreeChannel(t *testing.T) {
	raw := &RawImage{Width: 2, Height: 1, Channels: 3, Pix: []uint8{1, 2, 3, 4, 5, 6}}
	if err := raw.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := raw.NRGBA()
	if got := out.NRGBAAt(1, 0); got != (color.NRGBA{R: 4, G: 5, B: 6, A: 255}) {
		t.Errorf("unexpected pixel %v", got)
	}
}

func TestRawImage_ValidateMismatch(t *testing.T) {
	raw := &RawImage{Width: 2, Height: 2, Channels: 4, Pix: make([]uint8, 10)}
	if err := raw.Validate(); err == nil {
		t.Error("expected length mismatch error")
	}
	raw = &RawImage{Width: 0, Height: 2, Channels: 4}
	if err := raw.Validate(); !errors.Is(err, ErrInvalidDimensions) {
		t.Errorf("expected ErrInvalidDimensions, got %v", err)
	}
	var empty image.Image = image.NewNRGBA(image.Rect(0, 0, 1, 1))
	if err := NewRawImage(empty).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewRawImage_DoesNotAliasInput(t *testing.T) {
	src := solidImage(2, 2, color.White)
	raw := NewRawImage(src)
	raw.Pix[0] = 0
	if src.Pix[0] != 255 {
		t.Error("NewRawImage must copy its input")
	}
}

func TestWrapNRGBA(t *testing.T) {
	src := gradientImage(8, 6)

	packed := wrapNRGBA(src)
	if &packed.Pix[0] != &src.Pix[0] {
		t.Error("packed frame should be wrapped without a copy")
	}

	sub := src.SubImage(image.Rect(2, 1, 6, 5)).(*image.NRGBA)
	raw := wrapNRGBA(sub)
	if err := raw.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw.Width != 4 || raw.Height != 4 {
		t.Fatalf("expected 4x4, got %dx%d", raw.Width, raw.Height)
	}
	if got, want := raw.NRGBA().NRGBAAt(0, 0), src.NRGBAAt(2, 1); got != want {
		t.Errorf("pixel (0,0) = %v, want %v", got, want)
	}
	if got, want := raw.NRGBA().NRGBAAt(3, 3), src.NRGBAAt(5, 4); got != want {
		t.Errorf("pixel (3,3) = %v, want %v", got, want)
	}
}

func TestWrapNRGBA_CropMatchesRoundTrip(t *testing.T) {
	src := noiseImage(40, 30)
	box := image.Rect(5, 7, 31, 22)

	direct := wrapNRGBA(imaging.Crop(src, box))
	viaRaw := NewRawImage(imaging.Crop(NewRawImage(src).NRGBA(), box))
	if direct.Width != viaRaw.Width || direct.Height != viaRaw.Height {
		t.Fatalf("size mismatch %dx%d vs %dx%d", direct.Width, direct.Height, viaRaw.Width, viaRaw.Height)
	}
	if !bytes.Equal(direct.Pix, viaRaw.Pix) {
		t.Error("cropping the decoded frame directly must match the raw round trip")
	}
}
