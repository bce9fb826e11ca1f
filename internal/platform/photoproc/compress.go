package photoproc

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// CompressOptions bounds the output frame and its encoded size.
type CompressOptions struct {
	TargetHeight   int
	ByteBudget     int
	InitialQuality int
	MinQuality     int
	QualityStep    int
}

// DefaultCompressOptions returns the 720p / 100 KiB profile used for
// treatment photos.
func DefaultCompressOptions() CompressOptions {
	return CompressOptions{
		TargetHeight:   720,
		ByteBudget:     100 * 1024,
		InitialQuality: 80,
		MinQuality:     50,
		QualityStep:    10,
	}
}

// Validate rejects option sets that would not terminate sensibly.
func (o CompressOptions) Validate() error {
	switch {
	case o.TargetHeight <= 0:
		return fmt.Errorf("%w: target height %d", ErrInvalidOptions, o.TargetHeight)
	case o.ByteBudget <= 0:
		return fmt.Errorf("%w: byte budget %d", ErrInvalidOptions, o.ByteBudget)
	case o.QualityStep <= 0:
		return fmt.Errorf("%w: quality step %d", ErrInvalidOptions, o.QualityStep)
	case o.MinQuality < 1 || o.InitialQuality > 100 || o.MinQuality > o.InitialQuality:
		return fmt.Errorf("%w: quality range [%d, %d]", ErrInvalidOptions, o.MinQuality, o.InitialQuality)
	}
	return nil
}

// MaxIterations is the upper bound on encode attempts for these options.
func (o CompressOptions) MaxIterations() int {
	span := o.InitialQuality - o.MinQuality
	return (span+o.QualityStep-1)/o.QualityStep + 1
}

// CompressionState is the outcome of the quality search. Quality is the
// quality of the returned artifact and Size its encoded length.
type CompressionState struct {
	Quality    int `json:"quality"`
	Size       int `json:"size"`
	Budget     int `json:"budget"`
	Iterations int `json:"iterations"`
}

// WithinBudget reports whether the final artifact met the byte budget.
func (s CompressionState) WithinBudget() bool { return s.Size <= s.Budget }

// Compressed holds the resized frame and its smallest encoding.
type Compressed struct {
	Image image.Image
	Data  []byte
	State CompressionState
}

// TargetSize returns the frame size for a source of w x h. Frames taller than
// targetHeight are scaled to exactly targetHeight keeping the aspect ratio;
// smaller frames keep their size.
func TargetSize(w, h, targetHeight int) (int, int) {
	if w <= 0 || h <= 0 || targetHeight <= 0 || h <= targetHeight {
		return w, h
	}
	nw := int(math.Round(float64(w) * float64(targetHeight) / float64(h)))
	if nw < 1 {
		nw = 1
	}
	return nw, targetHeight
}

// Compress resizes img to the target height and searches downward from
// InitialQuality in QualityStep decrements until the JPEG encoding fits
// ByteBudget or MinQuality is reached. The quality floor wins over the
// budget. All intermediate encodings stay in memory.
func Compress(img image.Image, opts CompressOptions) (*Compressed, error) {
	if img == nil {
		return nil, fmt.Errorf("compress: nil image")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	b := img.Bounds()
	nw, nh := TargetSize(b.Dx(), b.Dy(), opts.TargetHeight)
	frame := img
	if nw != b.Dx() || nh != b.Dy() {
		frame = imaging.Resize(img, nw, nh, imaging.Lanczos)
	}

	state := CompressionState{Budget: opts.ByteBudget}
	var best []byte
	quality := opts.InitialQuality
	for {
		data, err := EncodeJPEG(frame, quality)
		if err != nil {
			return nil, err
		}
		state.Iterations++
		if best == nil || len(data) < len(best) {
			best = data
			state.Quality = quality
			state.Size = len(data)
		}
		if len(data) <= opts.ByteBudget || quality <= opts.MinQuality {
			break
		}
		quality -= opts.QualityStep
		if quality < opts.MinQuality {
			quality = opts.MinQuality
		}
	}

	return &Compressed{Image: frame, Data: best, State: state}, nil
}
