package codec

import (
	"errors"
	"fmt"
	"image"
)

// Format is an image container format recognized by the codec.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatGIF  Format = "gif"
	FormatTIFF Format = "tiff"
	FormatBMP  Format = "bmp"
)

// String returns the upper-case display name of the format.
func (f Format) String() string {
	switch f {
	case FormatJPEG:
		return "JPEG"
	case FormatPNG:
		return "PNG"
	case FormatGIF:
		return "GIF"
	case FormatTIFF:
		return "TIFF"
	case FormatBMP:
		return "BMP"
	default:
		return "Unknown"
	}
}

// Reencodable reports whether the codec can re-encode the format without converting it.
func (f Format) Reencodable() bool {
	switch f {
	case FormatJPEG, FormatPNG, FormatGIF:
		return true
	default:
		return false
	}
}

var (
	ErrUnknownFormat     = errors.New("unknown image format")
	ErrUnsupportedFormat = errors.New("format cannot be re-encoded at a quality level")
	ErrInvalidQuality    = errors.New("quality must be between 0 and 100")
)

// DecodeError wraps a failure to turn raw bytes into an image.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// EncodeError wraps a failure to re-encode an image.
type EncodeError struct {
	Format Format
	Err    error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode error (%s): %v", e.Format, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// Codec defines the image decode/encode capability used by the batch compressor.
type Codec interface {
	// Decode detects the format of data and decodes it.
	Decode(data []byte) (image.Image, Format, error)
	// Encode re-encodes img in format at quality, using the most compact
	// encoding available for that quality.
	Encode(img image.Image, format Format, quality int) ([]byte, error)
}
