package photoproc

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// Timestamp banner layout.
const (
	TimestampFontSize   = 48
	TimestampLineFactor = 1.3
	bannerAlpha         = 204 // 80% of 255
	captionBaselineGap  = 5
)

// Mode selects how a photo is processed. It is either TimestampMode or
// SignatureMode.
type Mode interface {
	Name() string
	isMode()
}

// TimestampMode burns the capture time into an ordinary treatment photo.
type TimestampMode struct {
	Time time.Time
}

func (TimestampMode) Name() string { return "timestamp" }
func (TimestampMode) isMode()      {}

// SignatureMode isolates a patient signature and captions it with the
// record number, treatment time and project.
type SignatureMode struct {
	MedicalRecordNo string
	TreatmentTime   time.Time
	ProjectName     string
}

func (SignatureMode) Name() string { return "signature" }
func (SignatureMode) isMode()      {}

// FormatDate renders t as YYYY年MM月DD日.
func FormatDate(t time.Time) string {
	return fmt.Sprintf("%04d年%02d月%02d日", t.Year(), int(t.Month()), t.Day())
}

// FormatTime renders t as HH:MM:SS.
func FormatTime(t time.Time) string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour(), t.Minute(), t.Second())
}

// SignatureCaption builds "<record> <date> <time> <project>". Empty parts
// are kept so the field positions stay stable.
func SignatureCaption(m SignatureMode) string {
	return strings.Join([]string{
		m.MedicalRecordNo,
		FormatDate(m.TreatmentTime),
		FormatTime(m.TreatmentTime),
		m.ProjectName,
	}, " ")
}

// TimestampCaption returns the two banner lines for t.
func TimestampCaption(t time.Time) (string, string) {
	return FormatDate(t), FormatTime(t)
}

// BannerHeight is the height of the timestamp banner for a frame h pixels
// tall.
func BannerHeight(h int) int { return h / 4 }

// bannerFontSize caps the timestamp font so both lines fit the banner.
func bannerFontSize(banner int) int {
	limit := int(float64(banner) / (2 * TimestampLineFactor))
	return max(1, min(TimestampFontSize, limit))
}

// DrawTimestampBanner returns a copy of img with a translucent black banner
// over its bottom quarter and the date and time lines centered in it in
// white. It returns the font size used.
func DrawTimestampBanner(img image.Image, t time.Time, fonts *Fonts) (*image.NRGBA, int, error) {
	dst := imaging.Clone(img)
	w, h := dst.Rect.Dx(), dst.Rect.Dy()
	banner := BannerHeight(h)
	if banner <= 0 {
		return nil, 0, fmt.Errorf("frame %dx%d too small for a banner", w, h)
	}

	bannerRect := image.Rect(0, h-banner, w, h)
	draw.Draw(dst, bannerRect, image.NewUniform(color.NRGBA{A: bannerAlpha}), image.Point{}, draw.Over)

	size := bannerFontSize(banner)
	face, err := fonts.Face(float64(size))
	if err != nil {
		return nil, 0, err
	}
	defer face.Close()

	dateLine, timeLine := TimestampCaption(t)
	lineHeight := float64(size) * TimestampLineFactor
	center := float64(h) - float64(banner)/2
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(color.White), Face: face}
	drawCentered(d, dateLine, w, center-lineHeight/2)
	drawCentered(d, timeLine, w, center+lineHeight/2)

	return dst, size, nil
}

// DrawSignatureCaption stacks sig above a transparent caption band of
// layout.BandHeight rows and draws layout.Text in black, centered, with its
// baseline captionBaselineGap pixels above the bottom edge.
func DrawSignatureCaption(sig image.Image, layout WatermarkSpec, fonts *Fonts) (*image.NRGBA, error) {
	sb := sig.Bounds()
	w, h := sb.Dx(), sb.Dy()
	canvas := image.NewNRGBA(image.Rect(0, 0, w, h+layout.BandHeight))
	draw.Draw(canvas, image.Rect(0, 0, w, h), sig, sb.Min, draw.Src)

	if layout.Text == "" {
		return canvas, nil
	}

	face, err := fonts.Face(float64(layout.FontSize))
	if err != nil {
		return nil, err
	}
	defer face.Close()

	d := &font.Drawer{Dst: canvas, Src: image.NewUniform(color.Black), Face: face}
	adv := d.MeasureString(layout.Text)
	x := (fixed.I(w) - adv) / 2
	baseline := h + layout.BandHeight - captionBaselineGap
	d.Dot = fixed.Point26_6{X: x, Y: fixed.I(baseline)}
	d.DrawString(layout.Text)

	return canvas, nil
}

// drawCentered draws s centered horizontally on a width-pixel canvas with its
// visual middle at row centerY.
func drawCentered(d *font.Drawer, s string, width int, centerY float64) {
	m := d.Face.Metrics()
	adv := d.MeasureString(s)
	glyph := (m.Ascent - m.Descent) / 2
	d.Dot = fixed.Point26_6{
		X: (fixed.I(width) - adv) / 2,
		Y: fixed.Int26_6(centerY*64) + glyph,
	}
	d.DrawString(s)
}
