package photoproc

import (
	"math"
	"testing"
)

func TestIsWide(t *testing.T) {
	tests := []struct {
		r    rune
		want bool
	}{
		{'针', true},
		{'灸', true},
		{0x4e00, true},
		{0x9fa5, true},
		{0x9fa6, false},
		{'年', true},
		{'A', false},
		{'1', false},
		{':', false},
		{'ア', false},
	}
	for _, tt := range tests {
		if got := IsWide(tt.r); got != tt.want {
			t.Errorf("IsWide(%q): expected %v, got %v", tt.r, tt.want, got)
		}
	}
}

func TestEstimateWidth_NarrowOnly(t *testing.T) {
	text := "12345 10:30:00"
	got := EstimateWidth(text, 20)
	want := float64(len(text)) * 20 * 0.6
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("expected %.2f, got %.2f", want, got)
	}
}

func TestEstimateWidth_Mixed(t *testing.T) {
	got := EstimateWidth("针灸 A", 10)
	want := 2*10 + 2*10*0.6
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("expected %.2f, got %.2f", want, got)
	}
}

func TestLayoutCaption_FitsAtInitialSize(t *testing.T) {
	layout := LayoutCaption("12345", 900, DefaultSizerOptions())
	if layout.FontSize != 50 {
		t.Errorf("expected floor(900/18)=50, got %d", layout.FontSize)
	}
	if layout.BandHeight != 62 {
		t.Errorf("expected band 62, got %d", layout.BandHeight)
	}
	if math.Abs(layout.LineHeight-65) > 1e-9 {
		t.Errorf("expected line height 65, got %.2f", layout.LineHeight)
	}
	if layout.MaxWidth != 860 {
		t.Errorf("expected max width 860, got %d", layout.MaxWidth)
	}
}

func TestLayoutCaption_MinInitial(t *testing.T) {
	layout := LayoutCaption("1", 100, DefaultSizerOptions())
	if layout.FontSize != 20 {
		t.Errorf("expected minimum initial size 20, got %d", layout.FontSize)
	}
}

func TestLayoutCaption_ShrinksOnce(t *testing.T) {
	text := "12345 2024年03月05日 10:30:00 针灸"
	layout := LayoutCaption(text, 400, DefaultSizerOptions())
	wide, narrow := CountChars(text)
	want := int(math.Floor(360 / (float64(wide) + 0.6*float64(narrow))))
	if layout.FontSize != max(14, want) {
		t.Errorf("expected %d, got %d", max(14, want), layout.FontSize)
	}
	if layout.EstimatedWidth > float64(layout.MaxWidth) && layout.FontSize != 14 {
		t.Errorf("estimated width %.1f exceeds %d above the floor", layout.EstimatedWidth, layout.MaxWidth)
	}
	if layout.WideCount != wide || layout.NarrowCount != narrow {
		t.Errorf("unexpected counts %d/%d", layout.WideCount, layout.NarrowCount)
	}
}

func TestLayoutCaption_ClampsToMinFont(t *testing.T) {
	text := "12345 2024年03月05日 10:30:00 针灸针灸针灸针灸针灸针灸"
	layout := LayoutCaption(text, 130, DefaultSizerOptions())
	if layout.FontSize != 14 {
		t.Errorf("expected minimum font 14, got %d", layout.FontSize)
	}
	if layout.BandHeight != 26 {
		t.Errorf("expected band 26, got %d", layout.BandHeight)
	}
}

func TestLayoutCaption_EmptyText(t *testing.T) {
	layout := LayoutCaption("", 10, DefaultSizerOptions())
	if layout.FontSize != 20 {
		t.Errorf("expected initial size for empty text, got %d", layout.FontSize)
	}
}

func TestFitFontSize_NoUnits(t *testing.T) {
	if got := FitFontSize("", -5, 30, 14); got != 30 {
		t.Errorf("expected initial 30, got %d", got)
	}
}
