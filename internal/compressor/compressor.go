package compressor

import (
	"errors"
	"fmt"
	"time"

	"image-compressor-go/internal/codec"
)

const (
	MinQuality     = 0
	MaxQuality     = 100
	DefaultQuality = 85
)

// Failure reasons reported on a failed Result.
const (
	ReasonDecode = "decode error"
	ReasonEncode = "encode error"
)

var ErrInvalidQuality = errors.New("quality out of range")

// ValidationError reports a malformed batch-level parameter. It aborts the
// whole batch.
type ValidationError struct {
	Field string
	Value int
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %d: %v (valid: %d..%d)", e.Field, e.Value, e.Err, MinQuality, MaxQuality)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Item is one submitted image.
type Item struct {
	Name string
	Data []byte
}

// Result describes the outcome of compressing a single item.
// CompressedSize, Ratio and Data are only set on success; Reason and Error
// only on failure. EXIFStripped marks inputs whose EXIF the re-encode dropped.
type Result struct {
	Name           string       `json:"name"`
	Format         codec.Format `json:"format,omitempty"`
	OriginalSize   int64        `json:"original_size"`
	CompressedSize int64        `json:"compressed_size,omitempty"`
	Ratio          *float64     `json:"ratio,omitempty"`
	EXIFStripped   bool         `json:"exif_stripped,omitempty"`
	Success        bool         `json:"success"`
	Reason         string       `json:"reason,omitempty"`
	Message        string       `json:"message,omitempty"`
	StartedAt      time.Time    `json:"started_at"`
	FinishedAt     time.Time    `json:"finished_at"`
	Data           []byte       `json:"-"`
	Error          error        `json:"-"`
}

// Compressor defines the interface for batch image compression.
type Compressor interface {
	// CompressBatch re-encodes every item at quality and bundles the successes
	// into one archive. Only an invalid quality or an archive failure make it
	// return an error; per-item failures are reported on the results.
	CompressBatch(items []Item, quality int) (*Batch, error)
}

// ValidateQuality checks that quality is within [MinQuality, MaxQuality].
func ValidateQuality(quality int) error {
	if quality < MinQuality || quality > MaxQuality {
		return &ValidationError{Field: "quality", Value: quality, Err: ErrInvalidQuality}
	}
	return nil
}
