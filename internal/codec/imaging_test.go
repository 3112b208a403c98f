package codec

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradient(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: uint8((x + y) % 256), A: 255})
		}
	}
	return img
}

func encodeFixture(t *testing.T, format imaging.Format) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, gradient(64, 48), format))
	return buf.Bytes()
}

func TestImagingCodec_DecodeDetectsFormat(t *testing.T) {
	tests := []struct {
		name   string
		format imaging.Format
		want   Format
	}{
		{name: "jpeg", format: imaging.JPEG, want: FormatJPEG},
		{name: "png", format: imaging.PNG, want: FormatPNG},
		{name: "gif", format: imaging.GIF, want: FormatGIF},
		{name: "tiff", format: imaging.TIFF, want: FormatTIFF},
		{name: "bmp", format: imaging.BMP, want: FormatBMP},
	}

	c := NewImagingCodec()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, format, err := c.Decode(encodeFixture(t, tt.format))
			require.NoError(t, err)
			assert.Equal(t, tt.want, format)
			assert.Equal(t, 64, img.Bounds().Dx())
			assert.Equal(t, 48, img.Bounds().Dy())
		})
	}
}

func TestImagingCodec_DecodeErrors(t *testing.T) {
	c := NewImagingCodec()

	for name, data := range map[string][]byte{
		"empty":     nil,
		"garbage":   []byte("definitely not an image"),
		"truncated": encodeFixture(t, imaging.PNG)[:40],
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := c.Decode(data)
			require.Error(t, err)
			var decErr *DecodeError
			assert.ErrorAs(t, err, &decErr)
		})
	}
}

func TestImagingCodec_EncodePreservesFormat(t *testing.T) {
	c := NewImagingCodec()

	for _, format := range []imaging.Format{imaging.JPEG, imaging.PNG, imaging.GIF} {
		t.Run(format.String(), func(t *testing.T) {
			img, detected, err := c.Decode(encodeFixture(t, format))
			require.NoError(t, err)

			out, err := c.Encode(img, detected, 50)
			require.NoError(t, err)
			assert.NotEmpty(t, out)

			_, roundTrip, err := c.Decode(out)
			require.NoError(t, err)
			assert.Equal(t, detected, roundTrip)
		})
	}
}

func TestImagingCodec_JPEGQualityAffectsSize(t *testing.T) {
	c := NewImagingCodec()
	img := gradient(256, 256)

	low, err := c.Encode(img, FormatJPEG, 5)
	require.NoError(t, err)
	high, err := c.Encode(img, FormatJPEG, 100)
	require.NoError(t, err)

	assert.Less(t, len(low), len(high))
}

func TestImagingCodec_EncodeQualityBounds(t *testing.T) {
	c := NewImagingCodec()
	img := gradient(8, 8)

	_, err := c.Encode(img, FormatJPEG, 0)
	assert.NoError(t, err)
	_, err = c.Encode(img, FormatJPEG, 100)
	assert.NoError(t, err)

	_, err = c.Encode(img, FormatJPEG, 101)
	assert.ErrorIs(t, err, ErrInvalidQuality)
	_, err = c.Encode(img, FormatJPEG, -1)
	assert.ErrorIs(t, err, ErrInvalidQuality)
}

func TestImagingCodec_EncodeUnsupported(t *testing.T) {
	c := NewImagingCodec()
	img := gradient(8, 8)

	for _, format := range []Format{FormatTIFF, FormatBMP} {
		_, err := c.Encode(img, format, 80)
		var encErr *EncodeError
		require.ErrorAs(t, err, &encErr)
		assert.Equal(t, format, encErr.Format)
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
		assert.False(t, format.Reencodable())
	}

	_, err := c.Encode(img, Format("webp"), 80)
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestGIFColors(t *testing.T) {
	assert.Equal(t, 2, gifColors(0))
	assert.Equal(t, 129, gifColors(50))
	assert.Equal(t, 256, gifColors(100))
}
