package photoproc

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/image/font/gofont/gobold"
)

func mustFonts(t *testing.T) *Fonts {
	t.Helper()
	f, err := DefaultFonts()
	if err != nil {
		t.Fatalf("loading default fonts: %v", err)
	}
	return f
}

func TestFormatDateAndTime(t *testing.T) {
	ts := time.Date(2024, time.March, 5, 9, 7, 3, 0, time.UTC)
	if got := FormatDate(ts); got != "2024年03月05日" {
		t.Errorf("unexpected date %q", got)
	}
	if got := FormatTime(ts); got != "09:07:03" {
		t.Errorf("unexpected time %q", got)
	}
}

func TestSignatureCaption(t *testing.T) {
	m := SignatureMode{
		MedicalRecordNo: "12345",
		TreatmentTime:   time.Date(2024, time.March, 5, 10, 30, 0, 0, time.UTC),
		ProjectName:     "针灸",
	}
	want := "12345 2024年03月05日 10:30:00 针灸"
	if got := SignatureCaption(m); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestModeNames(t *testing.T) {
	var m Mode = TimestampMode{}
	if m.Name() != "timestamp" {
		t.Errorf("unexpected name %s", m.Name())
	}
	m = SignatureMode{}
	if m.Name() != "signature" {
		t.Errorf("unexpected name %s", m.Name())
	}
}

func TestBannerFontSize(t *testing.T) {
	if got := bannerFontSize(180); got != TimestampFontSize {
		t.Errorf("expected %d, got %d", TimestampFontSize, got)
	}
	if got := bannerFontSize(75); got != 28 {
		t.Errorf("expected 28, got %d", got)
	}
	if got := bannerFontSize(1); got != 1 {
		t.Errorf("expected 1, got %d", got)
	}
}

func TestDrawTimestampBanner(t *testing.T) {
	src := gradientImage(400, 300)
	ts := time.Date(2024, time.March, 5, 10, 30, 0, 0, time.UTC)

	out, size, err := DrawTimestampBanner(src, ts, mustFonts(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Rect.Dx() != 400 || out.Rect.Dy() != 300 {
		t.Fatalf("unexpected size %v", out.Rect)
	}
	if size != 28 {
		t.Errorf("expected font size 28, got %d", size)
	}

	if got, want := out.NRGBAAt(5, 10), src.NRGBAAt(5, 10); got != want {
		t.Errorf("pixel above banner changed: %v -> %v", want, got)
	}
	corner := out.NRGBAAt(2, 298)
	if corner.R > 60 || corner.G > 60 || corner.B > 60 {
		t.Errorf("expected darkened banner corner, got %v", corner)
	}

	bright := 0
	for y := 300 - BannerHeight(300); y < 300; y++ {
		for x := 0; x < 400; x++ {
			p := out.NRGBAAt(x, y)
			if p.R > 200 && p.G > 200 && p.B > 200 {
				bright++
			}
		}
	}
	if bright == 0 {
		t.Error("expected white caption pixels inside the banner")
	}
	if src.NRGBAAt(2, 298) == corner {
		t.Error("source image was modified")
	}
}

func TestDrawTimestampBanner_TooSmall(t *testing.T) {
	if _, _, err := DrawTimestampBanner(solidImage(10, 3, color.White), time.Now(), mustFonts(t)); err == nil {
		t.Error("expected error for a frame without banner rows")
	}
}

func TestDrawSignatureCaption(t *testing.T) {
	sig := image.NewNRGBA(image.Rect(0, 0, 200, 50))
	layout := LayoutCaption("12345", 200, DefaultSizerOptions())

	out, err := DrawSignatureCaption(sig, layout, mustFonts(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Rect.Dx() != 200 || out.Rect.Dy() != 50+layout.BandHeight {
		t.Fatalf("unexpected canvas %v", out.Rect)
	}
	if _, ok := visibleBounds(out, 50); ok {
		t.Error("expected signature area to stay transparent")
	}

	inked := 0
	for y := 50; y < out.Rect.Dy(); y++ {
		for x := 0; x < 200; x++ {
			p := out.NRGBAAt(x, y)
			if p.A == 0 {
				continue
			}
			inked++
			if p.R > 10 || p.G > 10 || p.B > 10 {
				t.Fatalf("expected black caption ink, got %v at (%d,%d)", p, x, y)
			}
		}
	}
	if inked == 0 {
		t.Error("expected caption pixels in the band")
	}
}

func TestLoadFonts_MissingFile(t *testing.T) {
	if _, err := LoadFonts("/nonexistent/font.ttf"); err == nil {
		t.Error("expected error for missing font")
	}
	f, err := LoadFonts("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Source() != "gobold" {
		t.Errorf("expected gobold fallback, got %s", f.Source())
	}
}

func TestMissingGlyphs(t *testing.T) {
	f := mustFonts(t)
	got := f.MissingGlyphs(FormatDate(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)) + " 09:07:03 针灸")
	if string(got) != "年月日针灸" {
		t.Errorf("expected the CJK runes to be missing, got %q", string(got))
	}
	if got := f.MissingGlyphs("12345 2024 09:07:03"); len(got) != 0 {
		t.Errorf("expected Latin glyphs to be present, got %q", string(got))
	}
}

func TestLoadFonts_RejectsFontWithoutCaptionGlyphs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latin.ttf")
	if err := os.WriteFile(path, gobold.TTF, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadFonts(path)
	if err == nil || !strings.Contains(err.Error(), "no glyphs") {
		t.Errorf("expected missing glyph error, got %v", err)
	}
}
