// Package metadata reads EXIF tags from raw image bytes. Re-encoding drops
// EXIF, so callers use it to report what a compressed copy loses.
package metadata

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

var ErrNoEXIF = errors.New("no EXIF metadata")

// EXIF holds the tags worth showing to a user.
type EXIF struct {
	DateTime    *time.Time `json:"date_time,omitempty"`
	Make        string     `json:"make,omitempty"`
	Model       string     `json:"model,omitempty"`
	Software    string     `json:"software,omitempty"`
	Orientation int        `json:"orientation,omitempty"`
}

// Read decodes EXIF from data. It returns ErrNoEXIF when the image carries none.
func Read(data []byte) (*EXIF, error) {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		if exif.IsCriticalError(err) {
			return nil, fmt.Errorf("%w: %v", ErrNoEXIF, err)
		}
		// Non-critical errors still leave usable tags behind.
	}
	if x == nil {
		return nil, ErrNoEXIF
	}

	meta := &EXIF{
		Make:     stringTag(x, exif.Make),
		Model:    stringTag(x, exif.Model),
		Software: stringTag(x, exif.Software),
	}
	if tm, err := x.DateTime(); err == nil {
		meta.DateTime = &tm
	} else if date := parseEXIFDateTime(stringTag(x, exif.DateTimeOriginal)); date != nil {
		meta.DateTime = date
	}
	if tag, err := x.Get(exif.Orientation); err == nil {
		if v, err := tag.Int(0); err == nil {
			meta.Orientation = v
		}
	}
	return meta, nil
}

// HasEXIF reports whether data carries any EXIF metadata.
func HasEXIF(data []byte) bool {
	_, err := Read(data)
	return err == nil
}

func stringTag(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return s
}

// parseEXIFDateTime parses an EXIF date time string. Returns nil if parsing fails.
func parseEXIFDateTime(dateStr string) *time.Time {
	if dateStr == "" {
		return nil
	}

	formats := []string{
		"2006:01:02 15:04:05",
		"2006-01-02 15:04:05",
		"2006:01:02",
		"2006-01-02",
	}

	for _, format := range formats {
		if date, err := time.Parse(format, dateStr); err == nil {
			return &date
		}
	}
	return nil
}
