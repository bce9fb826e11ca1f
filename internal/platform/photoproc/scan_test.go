package photoproc

import (
	"image"
	"image/color"
	"testing"
)

func TestScanForeground_ExactBox(t *testing.T) {
	img := solidImage(200, 120, color.White)
	fillRect(img, 50, 50, 150, 100, color.Black)

	box := ScanForeground(rawFrom(img), DefaultThreshold)
	want := BoundingBox{MinX: 50, MinY: 50, MaxX: 149, MaxY: 99, Found: true}
	if box != want {
		t.Errorf("expected %+v, got %+v", want, box)
	}
	if box.Width() != 100 || box.Height() != 50 {
		t.Errorf("expected 100x50, got %dx%d", box.Width(), box.Height())
	}
	if box.Rect() != image.Rect(50, 50, 150, 100) {
		t.Errorf("unexpected rect %v", box.Rect())
	}
}

func TestScanForeground_AllBackground(t *testing.T) {
	raw := rawFrom(solidImage(40, 30, color.White))
	box := ScanForeground(raw, DefaultThreshold)
	if box.Found {
		t.Error("expected Found=false")
	}
	want := BoundingBox{MinX: 0, MinY: 0, MaxX: 39, MaxY: 29}
	if box != want {
		t.Errorf("expected full image %+v, got %+v", want, box)
	}
	padded := SignatureBounds(raw, DefaultThreshold, DefaultPadding)
	if padded != want {
		t.Errorf("expected padding to clamp to %+v, got %+v", want, padded)
	}
}

func TestScanForeground_ThresholdTieIsBackground(t *testing.T) {
	img := solidImage(10, 10, color.White)
	img.SetNRGBA(3, 3, color.NRGBA{R: 250, G: 250, B: 250, A: 255})
	img.SetNRGBA(6, 7, color.NRGBA{R: 250, G: 250, B: 249, A: 255})

	box := ScanForeground(rawFrom(img), 250)
	want := BoundingBox{MinX: 6, MinY: 7, MaxX: 6, MaxY: 7, Found: true}
	if box != want {
		t.Errorf("expected %+v, got %+v", want, box)
	}
}

func TestScanForeground_ThreeChannel(t *testing.T) {
	w, h := 5, 4
	pix := make([]uint8, w*h*3)
	for i := range pix {
		pix[i] = 255
	}
	i := (2*w + 1) * 3
	pix[i], pix[i+1], pix[i+2] = 0, 0, 0
	raw := &RawImage{Width: w, Height: h, Channels: 3, Pix: pix}

	box := ScanForeground(raw, DefaultThreshold)
	want := BoundingBox{MinX: 1, MinY: 2, MaxX: 1, MaxY: 2, Found: true}
	if box != want {
		t.Errorf("expected %+v, got %+v", want, box)
	}
}

func TestBoundingBox_Expand(t *testing.T) {
	box := BoundingBox{MinX: 5, MinY: 50, MaxX: 60, MaxY: 95, Found: true}
	got := box.Expand(15, 70, 100)
	want := BoundingBox{MinX: 0, MinY: 35, MaxX: 69, MaxY: 99, Found: true}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

func TestSignatureBounds_Padded(t *testing.T) {
	img := solidImage(2000, 1500, color.White)
	fillRect(img, 50, 50, 150, 100, color.Black)
	got := SignatureBounds(rawFrom(img), DefaultThreshold, DefaultPadding)
	want := BoundingBox{MinX: 35, MinY: 35, MaxX: 164, MaxY: 114, Found: true}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}
