package photoproc

import (
	"errors"
	"fmt"
)

var (
	ErrNotAnImage        = errors.New("uploaded file is not an image")
	ErrInvalidDimensions = errors.New("image dimensions out of range")
	ErrImageTooLarge     = errors.New("image exceeds the pixel budget")
	ErrInvalidOptions    = errors.New("invalid processing options")
)

// MaxPixels bounds width*height of a frame the pipeline will decode.
// Larger frames are valid uploads that are stored without processing.
const MaxPixels = 0x3FFF * 0x3FFF

// Stage names a step of the processing pipeline.
type Stage string

const (
	StageDecode      Stage = "decode"
	StageCompress    Stage = "compress"
	StageWatermark   Stage = "watermark"
	StageScan        Stage = "scan"
	StageCrop        Stage = "crop"
	StageTransparent Stage = "transparent"
	StageCaption     Stage = "caption"
	StageEncode      Stage = "encode"
)

// DecodeError reports input bytes that could not be decoded as an image.
// It is the only pipeline error that should fail an upload.
type DecodeError struct {
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Format != "" {
		return fmt.Sprintf("decode %s: %v", e.Format, e.Err)
	}
	return fmt.Sprintf("decode: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ProcessingError reports a failure in any stage after decoding.
type ProcessingError struct {
	Stage Stage
	Err   error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// IsDecodeError reports whether err is, or wraps, a *DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
