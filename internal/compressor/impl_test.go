package compressor

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"

	"image-compressor-go/internal/archive"
	"image-compressor-go/internal/codec"

	"github.com/disintegration/imaging"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixture(t *testing.T, format imaging.Format, seed uint8) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 96, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 96; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x*2) + seed, G: uint8(y*3) ^ seed, B: uint8(x+y) + seed, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, format, imaging.JPEGQuality(100)))
	return buf.Bytes()
}

func newTestCompressor(opts ...Option) *BatchCompressor {
	return NewBatchCompressor(codec.NewImagingCodec(), nil, opts...)
}

func archiveMap(t *testing.T, blob []byte) map[string][]byte {
	t.Helper()
	entries, err := archive.Entries(blob)
	require.NoError(t, err)
	return lo.SliceToMap(entries, func(e archive.Entry) (string, []byte) {
		return e.Name, e.Data
	})
}

func TestCompressBatch_Success(t *testing.T) {
	items := []Item{
		{Name: "photo.jpg", Data: fixture(t, imaging.JPEG, 1)},
		{Name: "diagram.png", Data: fixture(t, imaging.PNG, 2)},
		{Name: "anim.gif", Data: fixture(t, imaging.GIF, 3)},
	}

	batch, err := newTestCompressor().CompressBatch(items, 60)
	require.NoError(t, err)
	require.Len(t, batch.Results, len(items))
	assert.NotEmpty(t, batch.ID)
	assert.Equal(t, 60, batch.Quality)

	for i, res := range batch.Results {
		assert.Equal(t, items[i].Name, res.Name, "order preserved")
		assert.True(t, res.Success, res.Message)
		assert.Equal(t, int64(len(items[i].Data)), res.OriginalSize)
		assert.Positive(t, res.CompressedSize)
		require.NotNil(t, res.Ratio)
		assert.InDelta(t, float64(res.CompressedSize)/float64(res.OriginalSize), *res.Ratio, 1e-9)
		assert.False(t, res.EXIFStripped, "generated fixtures carry no EXIF")
	}
	assert.Equal(t, codec.FormatJPEG, batch.Results[0].Format)
	assert.Equal(t, codec.FormatPNG, batch.Results[1].Format)
	assert.Equal(t, codec.FormatGIF, batch.Results[2].Format)

	entries := archiveMap(t, batch.Archive)
	assert.Len(t, entries, 3)
	assert.Equal(t, 3, batch.ArchiveEntries)
	for _, res := range batch.Results {
		assert.Equal(t, res.Data, entries[res.Name])
	}

	var total int64
	for _, res := range batch.Results {
		total += res.CompressedSize
	}
	assert.Equal(t, total, batch.Report.TotalCompressedSize)
	assert.Equal(t, 3, batch.Report.ItemsSucceeded)
	require.NotNil(t, batch.Report.OverallRatio)
}

func TestCompressBatch_Empty(t *testing.T) {
	batch, err := newTestCompressor().CompressBatch(nil, 85)
	require.NoError(t, err)
	assert.Empty(t, batch.Results)
	assert.Zero(t, batch.ArchiveEntries)
	assert.Empty(t, archiveMap(t, batch.Archive))
	assert.Nil(t, batch.Report.OverallRatio)
	assert.Zero(t, batch.Report.TotalOriginalSize)
}

func TestCompressBatch_InvalidQuality(t *testing.T) {
	items := []Item{{Name: "a.jpg", Data: fixture(t, imaging.JPEG, 0)}}

	for _, q := range []int{-1, 101, 150} {
		batch, err := newTestCompressor().CompressBatch(items, q)
		assert.Nil(t, batch)
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "quality", vErr.Field)
		assert.Equal(t, q, vErr.Value)
		assert.ErrorIs(t, err, ErrInvalidQuality)
	}
}

func TestCompressBatch_QualityBoundsAccepted(t *testing.T) {
	items := []Item{{Name: "a.jpg", Data: fixture(t, imaging.JPEG, 0)}}
	for _, q := range []int{0, 100} {
		batch, err := newTestCompressor().CompressBatch(items, q)
		require.NoError(t, err)
		assert.True(t, batch.Results[0].Success)
	}
}

func TestCompressBatch_DecodeFailureIsNotFatal(t *testing.T) {
	items := []Item{
		{Name: "good.jpg", Data: fixture(t, imaging.JPEG, 4)},
		{Name: "broken.jpg", Data: []byte("not really a jpeg")},
		{Name: "empty.png", Data: nil},
		{Name: "also-good.png", Data: fixture(t, imaging.PNG, 5)},
	}

	batch, err := newTestCompressor().CompressBatch(items, 70)
	require.NoError(t, err)
	require.Len(t, batch.Results, 4)

	broken := batch.Results[1]
	assert.False(t, broken.Success)
	assert.Equal(t, ReasonDecode, broken.Reason)
	assert.Zero(t, broken.CompressedSize)
	assert.Nil(t, broken.Ratio)
	var decErr *codec.DecodeError
	assert.ErrorAs(t, broken.Error, &decErr)

	empty := batch.Results[2]
	assert.False(t, empty.Success)
	assert.Zero(t, empty.OriginalSize)
	assert.Nil(t, empty.Ratio)

	entries := archiveMap(t, batch.Archive)
	assert.Len(t, entries, 2)
	assert.Contains(t, entries, "good.jpg")
	assert.Contains(t, entries, "also-good.png")
	assert.NotContains(t, entries, "broken.jpg")
	assert.Len(t, batch.Succeeded(), 2)
	assert.Len(t, batch.Failed(), 2)

	report := batch.Report
	assert.Equal(t, int64(len(items[0].Data)+len(items[1].Data)+len(items[3].Data)), report.TotalOriginalSize)
	assert.Equal(t, batch.Results[0].CompressedSize+batch.Results[3].CompressedSize, report.TotalCompressedSize)
}

func TestCompressBatch_EncodeFailureIsNotFatal(t *testing.T) {
	items := []Item{
		{Name: "scan.tiff", Data: fixture(t, imaging.TIFF, 6)},
		{Name: "ok.jpg", Data: fixture(t, imaging.JPEG, 7)},
	}

	batch, err := newTestCompressor().CompressBatch(items, 50)
	require.NoError(t, err)

	tiff := batch.Results[0]
	assert.False(t, tiff.Success)
	assert.Equal(t, ReasonEncode, tiff.Reason)
	assert.Equal(t, codec.FormatTIFF, tiff.Format)
	assert.ErrorIs(t, tiff.Error, codec.ErrUnsupportedFormat)
	assert.True(t, batch.Results[1].Success)
	assert.Equal(t, 1, batch.ArchiveEntries)
}

func TestCompressBatch_AllFailed(t *testing.T) {
	items := []Item{
		{Name: "a", Data: []byte("x")},
		{Name: "b", Data: []byte("y")},
	}
	batch, err := newTestCompressor().CompressBatch(items, 50)
	require.NoError(t, err)
	assert.Empty(t, archiveMap(t, batch.Archive))
	assert.Nil(t, batch.Report.OverallRatio)
	assert.Equal(t, int64(2), batch.Report.TotalOriginalSize)
	assert.Zero(t, batch.Report.TotalCompressedSize)
}

func TestCompressBatch_DuplicateNamesLastWriteWins(t *testing.T) {
	first := fixture(t, imaging.PNG, 10)
	second := fixture(t, imaging.PNG, 200)
	items := []Item{
		{Name: "a.png", Data: first},
		{Name: "a.png", Data: second},
	}

	batch, err := newTestCompressor().CompressBatch(items, 50)
	require.NoError(t, err)
	require.Len(t, batch.Results, 2)

	entries := archiveMap(t, batch.Archive)
	require.Len(t, entries, 1)
	assert.Equal(t, batch.Results[1].Data, entries["a.png"])
	assert.NotEqual(t, batch.Results[0].Data, entries["a.png"])
	assert.Equal(t, 1, batch.ArchiveEntries)
}

func TestCompressBatch_ParallelMatchesSequential(t *testing.T) {
	var items []Item
	for i := 0; i < 12; i++ {
		format := imaging.JPEG
		if i%3 == 0 {
			format = imaging.PNG
		}
		items = append(items, Item{Name: "img.jpg", Data: fixture(t, format, uint8(i*17))})
		if i%4 == 0 {
			items = append(items, Item{Name: "bad.bin", Data: []byte{0x00, 0x01}})
		}
	}
	items[5].Name = "unique.jpg"

	seq, err := newTestCompressor().CompressBatch(items, 40)
	require.NoError(t, err)
	par, err := newTestCompressor(WithWorkers(4)).CompressBatch(items, 40)
	require.NoError(t, err)

	require.Len(t, par.Results, len(seq.Results))
	for i := range seq.Results {
		assert.Equal(t, seq.Results[i].Name, par.Results[i].Name)
		assert.Equal(t, seq.Results[i].Success, par.Results[i].Success)
		assert.Equal(t, seq.Results[i].Data, par.Results[i].Data)
	}
	assert.Equal(t, archiveMap(t, seq.Archive), archiveMap(t, par.Archive))
	assert.Equal(t, seq.Report.TotalCompressedSize, par.Report.TotalCompressedSize)
}

func TestCompressBatch_ProgressInInputOrder(t *testing.T) {
	items := []Item{
		{Name: "a.jpg", Data: fixture(t, imaging.JPEG, 1)},
		{Name: "b.jpg", Data: []byte("bad")},
		{Name: "a.jpg", Data: fixture(t, imaging.JPEG, 2)},
	}

	for _, workers := range []int{1, 3} {
		var (
			mu     sync.Mutex
			events []ItemEvent
		)
		c := newTestCompressor(WithWorkers(workers), WithProgress(func(e ItemEvent) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, e)
		}))

		batch, err := c.CompressBatch(items, 80)
		require.NoError(t, err)
		require.Len(t, events, 3)
		for i, e := range events {
			assert.Equal(t, i, e.Index)
			assert.Equal(t, 3, e.Total)
			assert.Equal(t, batch.ID, e.BatchID)
			assert.Equal(t, items[i].Name, e.Result.Name)
		}
		assert.False(t, events[1].Result.Success)
		assert.False(t, events[0].Replaced)
		assert.True(t, events[2].Replaced)
	}
}

type failingArchive struct {
	addErr      error
	finalizeErr error
	added       int
}

func (f *failingArchive) Add(string, []byte) (bool, error) {
	if f.addErr != nil {
		return false, f.addErr
	}
	f.added++
	return false, nil
}

func (f *failingArchive) Len() int { return f.added }

func (f *failingArchive) Finalize() ([]byte, error) {
	return nil, f.finalizeErr
}

func TestCompressBatch_ArchiveFailureIsFatal(t *testing.T) {
	items := []Item{{Name: "a.jpg", Data: fixture(t, imaging.JPEG, 1)}}
	diskFull := errors.New("disk full")

	t.Run("finalize", func(t *testing.T) {
		c := newTestCompressor(WithArchiveFactory(func() ArchiveWriter {
			return &failingArchive{finalizeErr: diskFull}
		}))
		batch, err := c.CompressBatch(items, 50)
		assert.Nil(t, batch)
		var archErr *archive.ArchiveError
		require.ErrorAs(t, err, &archErr)
		assert.Equal(t, "finalize", archErr.Op)
		assert.ErrorIs(t, err, diskFull)
	})

	t.Run("add", func(t *testing.T) {
		c := newTestCompressor(WithArchiveFactory(func() ArchiveWriter {
			return &failingArchive{addErr: diskFull}
		}))
		batch, err := c.CompressBatch(items, 50)
		assert.Nil(t, batch)
		var archErr *archive.ArchiveError
		require.ErrorAs(t, err, &archErr)
		assert.Equal(t, "add", archErr.Op)
	})
}

func TestCompressBatch_IndependentCalls(t *testing.T) {
	c := newTestCompressor()
	first, err := c.CompressBatch([]Item{{Name: "one.jpg", Data: fixture(t, imaging.JPEG, 1)}}, 50)
	require.NoError(t, err)
	second, err := c.CompressBatch([]Item{{Name: "two.jpg", Data: fixture(t, imaging.JPEG, 2)}}, 50)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	entries := archiveMap(t, second.Archive)
	assert.Len(t, entries, 1)
	assert.Contains(t, entries, "two.jpg")
}
