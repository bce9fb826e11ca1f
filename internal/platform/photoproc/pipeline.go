package photoproc

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
)

// Options configures a Processor.
type Options struct {
	Compress  CompressOptions
	Threshold int
	Padding   int
	Sizer     SizerOptions
	// Location is the zone captions are rendered in. Nil means time.Local.
	Location *time.Location
}

func DefaultOptions() Options {
	return Options{
		Compress:  DefaultCompressOptions(),
		Threshold: DefaultThreshold,
		Padding:   DefaultPadding,
		Sizer:     DefaultSizerOptions(),
	}
}

func (o Options) Validate() error {
	if err := o.Compress.Validate(); err != nil {
		return err
	}
	if o.Threshold < 0 || o.Threshold > 256 {
		return fmt.Errorf("%w: threshold %d", ErrInvalidOptions, o.Threshold)
	}
	if o.Padding < 0 {
		return fmt.Errorf("%w: padding %d", ErrInvalidOptions, o.Padding)
	}
	return nil
}

// Result is a processed photo ready to replace the raw upload.
type Result struct {
	Data     []byte
	Format   string // "jpeg" or "png"
	Width    int
	Height   int
	HasAlpha bool
	Quality  int
	Caption  string
	// Bounds is the padded crop rectangle in source pixels (signature only).
	Bounds *BoundingBox
	// Compression is the quality search outcome (timestamp only).
	Compression *CompressionState
	// Layout is the caption sizing (signature only).
	Layout *WatermarkSpec
}

// Processor runs the photo pipeline. It holds no mutable state, so one
// instance serves concurrent uploads.
type Processor struct {
	opts   Options
	fonts  *Fonts
	logger zerolog.Logger
	now    func() time.Time
}

// NewProcessor validates opts. A nil fonts uses the embedded default.
func NewProcessor(opts Options, fonts *Fonts, logger zerolog.Logger) (*Processor, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if fonts == nil {
		f, err := DefaultFonts()
		if err != nil {
			return nil, err
		}
		fonts = f
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Processor{
		opts:   opts,
		fonts:  fonts,
		logger: logger.With().Str("component", "photoproc").Logger(),
		now:    time.Now,
	}, nil
}

// Options returns the processor configuration.
func (p *Processor) Options() Options { return p.opts }

// Process decodes data and runs the stages for mode. Undecodable input
// yields a *DecodeError; any later failure yields a *ProcessingError naming
// the stage.
func (p *Processor) Process(ctx context.Context, data []byte, mode Mode) (*Result, error) {
	if mode == nil {
		return nil, &ProcessingError{Stage: StageDecode, Err: fmt.Errorf("%w: nil mode", ErrInvalidOptions)}
	}
	log := p.logger.With().Str("mode", mode.Name()).Logger()

	start := time.Now()
	img, format, err := Decode(data)
	if err != nil {
		log.Debug().Err(err).Str("stage", string(StageDecode)).Msg("decode failed")
		return nil, err
	}
	b := img.Bounds()
	log.Debug().Str("stage", string(StageDecode)).Str("format", format).
		Int("width", b.Dx()).Int("height", b.Dy()).Msg("decoded")

	var res *Result
	switch m := mode.(type) {
	case TimestampMode:
		res, err = p.processTimestamp(ctx, img, m, log)
	case SignatureMode:
		res, err = p.processSignature(ctx, img, m, log)
	default:
		err = &ProcessingError{Stage: StageDecode, Err: fmt.Errorf("%w: unknown mode %T", ErrInvalidOptions, mode)}
	}
	if err != nil {
		return nil, err
	}

	log.Info().Str("format", res.Format).Int("width", res.Width).Int("height", res.Height).
		Int("size", len(res.Data)).Dur("elapsed", time.Since(start)).Msg("photo processed")
	return res, nil
}

func (p *Processor) processTimestamp(ctx context.Context, img image.Image, m TimestampMode, log zerolog.Logger) (*Result, error) {
	t := m.Time
	if t.IsZero() {
		t = p.now()
	}
	t = t.In(p.opts.Location)

	var c *Compressed
	if err := runStage(ctx, StageCompress, func() (err error) {
		c, err = Compress(img, p.opts.Compress)
		return err
	}); err != nil {
		return nil, err
	}
	log.Debug().Str("stage", string(StageCompress)).Int("quality", c.State.Quality).
		Int("size", c.State.Size).Int("iterations", c.State.Iterations).
		Bool("within_budget", c.State.WithinBudget()).Msg("compressed")

	var marked *image.NRGBA
	var fontSize int
	if err := runStage(ctx, StageWatermark, func() (err error) {
		marked, fontSize, err = DrawTimestampBanner(c.Image, t, p.fonts)
		return err
	}); err != nil {
		return nil, err
	}
	dateLine, timeLine := TimestampCaption(t)
	log.Debug().Str("stage", string(StageWatermark)).Int("font_size", fontSize).Msg("banner drawn")

	var out []byte
	if err := runStage(ctx, StageEncode, func() (err error) {
		out, err = EncodeJPEG(marked, c.State.Quality)
		return err
	}); err != nil {
		return nil, err
	}

	state := c.State
	return &Result{
		Data:        out,
		Format:      "jpeg",
		Width:       marked.Rect.Dx(),
		Height:      marked.Rect.Dy(),
		Quality:     state.Quality,
		Caption:     dateLine + " " + timeLine,
		Compression: &state,
	}, nil
}

func (p *Processor) processSignature(ctx context.Context, img image.Image, m SignatureMode, log zerolog.Logger) (*Result, error) {
	if m.TreatmentTime.IsZero() {
		m.TreatmentTime = p.now()
	}
	m.TreatmentTime = m.TreatmentTime.In(p.opts.Location)

	// One NRGBA conversion feeds both the scan and the crop.
	src := imaging.Clone(img)
	raw := wrapNRGBA(src)

	var box BoundingBox
	if err := runStage(ctx, StageScan, func() error {
		if err := raw.Validate(); err != nil {
			return err
		}
		box = SignatureBounds(raw, p.opts.Threshold, p.opts.Padding)
		return nil
	}); err != nil {
		return nil, err
	}
	ev := log.Debug()
	if !box.Found {
		ev = log.Warn()
	}
	ev.Str("stage", string(StageScan)).Bool("found", box.Found).
		Interface("bounds", box).Msg("signature bounds")

	var cropped *RawImage
	if err := runStage(ctx, StageCrop, func() error {
		cropped = wrapNRGBA(imaging.Crop(src, box.Rect()))
		return cropped.Validate()
	}); err != nil {
		return nil, err
	}

	var transparent *RawImage
	if err := runStage(ctx, StageTransparent, func() error {
		transparent = KnockOutBackground(cropped, p.opts.Threshold)
		return nil
	}); err != nil {
		return nil, err
	}
	log.Debug().Str("stage", string(StageTransparent)).
		Int("opaque_pixels", OpaqueCount(transparent)).Msg("background removed")

	caption := SignatureCaption(m)
	if missing := p.fonts.MissingGlyphs(caption); len(missing) > 0 {
		log.Warn().Str("stage", string(StageCaption)).Str("missing", string(missing)).
			Msg("caption font lacks glyphs")
	}
	layout := LayoutCaption(caption, transparent.Width, p.opts.Sizer)
	var canvas *image.NRGBA
	if err := runStage(ctx, StageCaption, func() (err error) {
		canvas, err = DrawSignatureCaption(transparent.NRGBA(), layout, p.fonts)
		return err
	}); err != nil {
		return nil, err
	}
	log.Debug().Str("stage", string(StageCaption)).Int("font_size", layout.FontSize).
		Int("band_height", layout.BandHeight).Msg("caption drawn")

	var out []byte
	if err := runStage(ctx, StageEncode, func() (err error) {
		out, err = EncodePNG(canvas)
		return err
	}); err != nil {
		return nil, err
	}

	return &Result{
		Data:     out,
		Format:   "png",
		Width:    canvas.Rect.Dx(),
		Height:   canvas.Rect.Dy(),
		HasAlpha: true,
		Caption:  caption,
		Bounds:   &box,
		Layout:   &layout,
	}, nil
}

// runStage checks ctx, runs fn and converts errors and panics into a
// *ProcessingError for stage.
func runStage(ctx context.Context, stage Stage, fn func() error) (err error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &ProcessingError{Stage: stage, Err: ctxErr}
	}
	defer func() {
		if r := recover(); r != nil {
			err = &ProcessingError{Stage: stage, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := fn(); err != nil {
		return &ProcessingError{Stage: stage, Err: err}
	}
	return nil
}
