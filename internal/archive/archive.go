// Package archive bundles compressed images into a single ZIP container.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zip"
)

const (
	// DefaultName is the suggested download name for a finalized archive.
	DefaultName = "compressed_images.zip"
	// ContentType is the media type of a finalized archive.
	ContentType = "application/zip"
)

var (
	ErrFinalized = errors.New("archive already finalized")
	ErrEmptyName = errors.New("archive entry name is empty")
)

// ArchiveError reports a failure to build or finalize the archive.
type ArchiveError struct {
	Op  string
	Err error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("archive %s: %v", e.Op, e.Err)
}

func (e *ArchiveError) Unwrap() error {
	return e.Err
}

type entry struct {
	name string
	data []byte
}

// Builder collects named blobs and writes them out as one ZIP archive.
// Adding a name twice replaces the earlier content but keeps its position.
type Builder struct {
	entries   []entry
	index     map[string]int
	finalized bool
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{index: make(map[string]int)}
}

// Add stores data under name. It reports whether an earlier entry was replaced.
func (b *Builder) Add(name string, data []byte) (bool, error) {
	if b.finalized {
		return false, &ArchiveError{Op: "add", Err: ErrFinalized}
	}
	if name == "" {
		return false, &ArchiveError{Op: "add", Err: ErrEmptyName}
	}
	if i, ok := b.index[name]; ok {
		b.entries[i].data = data
		return true, nil
	}
	b.index[name] = len(b.entries)
	b.entries = append(b.entries, entry{name: name, data: data})
	return false, nil
}

// Len returns the number of distinct entries.
func (b *Builder) Len() int {
	return len(b.entries)
}

// Finalize writes all entries into a ZIP blob. It can only be called once.
// Entries are stored uncompressed since the images already are.
func (b *Builder) Finalize() ([]byte, error) {
	if b.finalized {
		return nil, &ArchiveError{Op: "finalize", Err: ErrFinalized}
	}
	b.finalized = true

	var buf bytes.Buffer
	if err := b.writeTo(&buf); err != nil {
		return nil, &ArchiveError{Op: "finalize", Err: err}
	}
	b.entries = nil
	b.index = nil
	return buf.Bytes(), nil
}

func (b *Builder) writeTo(w io.Writer) error {
	zw := zip.NewWriter(w)
	for _, e := range b.entries {
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:   e.name,
			Method: zip.Store,
		})
		if err != nil {
			return fmt.Errorf("failed to create zip entry %s: %w", e.name, err)
		}
		if _, err := fw.Write(e.data); err != nil {
			return fmt.Errorf("failed to write zip entry %s: %w", e.name, err)
		}
	}
	return zw.Close()
}

// Entry is a named blob read back from an archive.
type Entry struct {
	Name string
	Data []byte
}

// Entries reads a finalized archive back into its entries, in archive order.
func Entries(blob []byte) ([]Entry, error) {
	zr, err := zip.NewReader(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		return nil, &ArchiveError{Op: "read", Err: err}
	}
	out := make([]Entry, 0, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, &ArchiveError{Op: "read", Err: fmt.Errorf("open %s: %w", f.Name, err)}
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, &ArchiveError{Op: "read", Err: fmt.Errorf("read %s: %w", f.Name, err)}
		}
		out = append(out, Entry{Name: f.Name, Data: data})
	}
	return out, nil
}
