package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
)

const (
	minGIFColors = 2
	maxGIFColors = 256
)

// ImagingCodec implements Codec on top of github.com/disintegration/imaging.
type ImagingCodec struct{}

// NewImagingCodec creates a new ImagingCodec instance.
func NewImagingCodec() *ImagingCodec {
	return &ImagingCodec{}
}

// Decode detects the format from the byte stream and decodes the image.
// EXIF orientation is left untouched so the pixel data matches the input.
func (c *ImagingCodec) Decode(data []byte) (image.Image, Format, error) {
	if len(data) == 0 {
		return nil, "", &DecodeError{Err: fmt.Errorf("empty input: %w", ErrUnknownFormat)}
	}

	_, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", &DecodeError{Err: err}
	}
	format, err := parseFormat(name)
	if err != nil {
		return nil, "", &DecodeError{Err: err}
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, format, &DecodeError{Err: err}
	}
	return img, format, nil
}

// Encode re-encodes img in its original format.
func (c *ImagingCodec) Encode(img image.Image, format Format, quality int) ([]byte, error) {
	if quality < 0 || quality > 100 {
		return nil, &EncodeError{Format: format, Err: ErrInvalidQuality}
	}

	var (
		target imaging.Format
		opts   []imaging.EncodeOption
	)
	switch format {
	case FormatJPEG:
		target = imaging.JPEG
		opts = append(opts, imaging.JPEGQuality(quality))
	case FormatPNG:
		// PNG is lossless; the quality value only selects how hard we squeeze.
		target = imaging.PNG
		opts = append(opts, imaging.PNGCompressionLevel(png.BestCompression))
	case FormatGIF:
		target = imaging.GIF
		opts = append(opts, imaging.GIFNumColors(gifColors(quality)))
	case FormatTIFF, FormatBMP:
		return nil, &EncodeError{Format: format, Err: ErrUnsupportedFormat}
	default:
		return nil, &EncodeError{Format: format, Err: ErrUnknownFormat}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, target, opts...); err != nil {
		return nil, &EncodeError{Format: format, Err: err}
	}
	return buf.Bytes(), nil
}

// gifColors maps quality 0..100 onto a palette of 2..256 colours.
func gifColors(quality int) int {
	return minGIFColors + quality*(maxGIFColors-minGIFColors)/100
}

func parseFormat(name string) (Format, error) {
	f, err := imaging.FormatFromExtension(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, name)
	}
	switch f {
	case imaging.JPEG:
		return FormatJPEG, nil
	case imaging.PNG:
		return FormatPNG, nil
	case imaging.GIF:
		return FormatGIF, nil
	case imaging.TIFF:
		return FormatTIFF, nil
	case imaging.BMP:
		return FormatBMP, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownFormat, name)
}
