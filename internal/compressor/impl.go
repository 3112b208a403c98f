package compressor

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"image-compressor-go/internal/archive"
	"image-compressor-go/internal/codec"
	"image-compressor-go/internal/logger"
	"image-compressor-go/internal/metadata"
	"image-compressor-go/internal/statistics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ArchiveWriter is the archive capability the compressor fills.
type ArchiveWriter interface {
	Add(name string, data []byte) (bool, error)
	Len() int
	Finalize() ([]byte, error)
}

// ItemEvent is emitted once per item, in input order.
type ItemEvent struct {
	BatchID  string
	Index    int
	Total    int
	Result   Result
	Replaced bool
}

// ProgressFunc receives per-item progress events.
type ProgressFunc func(ItemEvent)

// Option configures a BatchCompressor.
type Option func(*BatchCompressor)

// WithWorkers sets the number of goroutines decoding and encoding items.
// Values below 2 process items strictly one after another.
func WithWorkers(n int) Option {
	return func(c *BatchCompressor) {
		c.workers = n
	}
}

// WithProgress registers a hook called after each item is handled.
func WithProgress(fn ProgressFunc) Option {
	return func(c *BatchCompressor) {
		c.progress = fn
	}
}

// WithArchiveFactory overrides how a fresh archive is created for each batch.
func WithArchiveFactory(fn func() ArchiveWriter) Option {
	return func(c *BatchCompressor) {
		c.newArchive = fn
	}
}

// BatchCompressor is the default implementation of the Compressor interface.
// It holds no per-batch state, so one instance can serve many calls.
type BatchCompressor struct {
	codec      codec.Codec
	log        *logrus.Logger
	workers    int
	progress   ProgressFunc
	newArchive func() ArchiveWriter
	now        func() time.Time
}

// NewBatchCompressor creates a new BatchCompressor instance.
func NewBatchCompressor(c codec.Codec, log *logrus.Logger, opts ...Option) *BatchCompressor {
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	bc := &BatchCompressor{
		codec:      c,
		log:        log,
		workers:    1,
		newArchive: func() ArchiveWriter { return archive.NewBuilder() },
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(bc)
	}
	return bc
}

// CompressBatch performs batch compression at the given quality.
func (c *BatchCompressor) CompressBatch(items []Item, quality int) (*Batch, error) {
	if err := ValidateQuality(quality); err != nil {
		return nil, err
	}

	start := c.now()
	batchID := uuid.NewString()
	log := logger.WithBatch(c.log, batchID)
	log.WithFields(logrus.Fields{
		"items":   len(items),
		"quality": quality,
		"workers": c.workers,
	}).Info("Starting batch compression")

	results := make([]Result, len(items))
	parallel := c.workers > 1 && len(items) > 1
	if parallel {
		c.compressParallel(items, quality, results)
	}

	ar := c.newArchive()
	for i, item := range items {
		if !parallel {
			results[i] = c.compressOne(item, quality)
		}
		res := results[i]

		var replaced bool
		if res.Success {
			var err error
			replaced, err = ar.Add(res.Name, res.Data)
			if err != nil {
				log.WithError(err).WithField("file", res.Name).Error("Failed to add item to archive")
				return nil, wrapArchiveError("add", err)
			}
			if replaced {
				log.WithField("file", res.Name).Warn("Duplicate file name, archive entry replaced by later item")
			}
		}
		c.logResult(log, res)

		if c.progress != nil {
			c.progress(ItemEvent{BatchID: batchID, Index: i, Total: len(items), Result: res, Replaced: replaced})
		}
	}

	entries := ar.Len()
	blob, err := ar.Finalize()
	if err != nil {
		log.WithError(err).Error("Failed to finalize archive")
		return nil, wrapArchiveError("finalize", err)
	}

	report := statistics.NewReport(itemResults(results), start, c.now())
	log.WithFields(logrus.Fields{
		"succeeded":        report.ItemsSucceeded,
		"failed":           report.ItemsFailed,
		"original_bytes":   report.TotalOriginalSize,
		"compressed_bytes": report.TotalCompressedSize,
		"archive_entries":  entries,
		"duration":         report.Duration.String(),
	}).Info("Batch compression finished")

	return &Batch{
		ID:             batchID,
		Quality:        quality,
		Results:        results,
		Archive:        blob,
		ArchiveEntries: entries,
		Report:         report,
	}, nil
}

// compressParallel fills results by input index, so output order never
// depends on completion order.
func (c *BatchCompressor) compressParallel(items []Item, quality int, results []Result) {
	numWorkers := min(c.workers, len(items))
	jobs := make(chan int, len(items))

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = c.compressOne(items[i], quality)
			}
		}()
	}

	for i := range items {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}

// compressOne decodes and re-encodes a single item.
func (c *BatchCompressor) compressOne(item Item, quality int) Result {
	res := Result{
		Name:         item.Name,
		OriginalSize: int64(len(item.Data)),
		StartedAt:    c.now(),
	}

	img, format, err := c.codec.Decode(item.Data)
	if err != nil {
		return c.fail(res, ReasonDecode, err)
	}
	res.Format = format

	out, err := c.codec.Encode(img, format, quality)
	if err != nil {
		return c.fail(res, ReasonEncode, err)
	}

	res.Data = out
	res.EXIFStripped = metadata.HasEXIF(item.Data)
	res.CompressedSize = int64(len(out))
	res.Ratio = statistics.Ratio(res.CompressedSize, res.OriginalSize)
	res.Success = true
	res.Message = "Image compressed"
	res.FinishedAt = c.now()
	return res
}

func (c *BatchCompressor) fail(res Result, reason string, err error) Result {
	res.Success = false
	res.Reason = reason
	res.Message = fmt.Sprintf("%s: %v", reason, err)
	res.Error = err
	res.FinishedAt = c.now()
	return res
}

func (c *BatchCompressor) logResult(log *logrus.Entry, res Result) {
	entry := log.WithFields(logrus.Fields{
		"file":          res.Name,
		"original_size": res.OriginalSize,
	})
	if !res.Success {
		entry.WithError(res.Error).WithField("reason", res.Reason).Warn("Compression failed")
		return
	}
	entry.WithFields(logrus.Fields{
		"format":          res.Format,
		"compressed_size": res.CompressedSize,
		"ratio":           statistics.FormatRatio(res.Ratio),
	}).Debug("Image compressed")
}

func wrapArchiveError(op string, err error) error {
	var archErr *archive.ArchiveError
	if errors.As(err, &archErr) {
		return archErr
	}
	return &archive.ArchiveError{Op: op, Err: err}
}
