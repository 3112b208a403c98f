package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"image-compressor-go/internal/compressor"
	"image-compressor-go/internal/logger"
	"image-compressor-go/internal/statistics"

	"github.com/sirupsen/logrus"
)

// collectItems reads the given files, and every file with a supported
// extension under the given directories, in argument and walk order.
// Items are named by base file name, as they will appear in the archive.
func collectItems(inputPaths []string, formats []string, log *logrus.Logger) ([]compressor.Item, error) {
	extSet := make(map[string]struct{})
	for _, f := range formats {
		extSet[strings.ToLower(f)] = struct{}{}
	}

	var paths []string
	for _, in := range inputPaths {
		info, err := os.Stat(in)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", in, err)
		}
		if !info.IsDir() {
			paths = append(paths, in)
			continue
		}
		err = filepath.WalkDir(in, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				logger.WithFile(log, path).WithError(err).Warn("Skipping unreadable path")
				return nil
			}
			if d.IsDir() {
				return nil
			}
			if _, ok := extSet[strings.ToLower(filepath.Ext(d.Name()))]; ok {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", in, err)
		}
	}

	items := make([]compressor.Item, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		items = append(items, compressor.Item{Name: filepath.Base(path), Data: data})
	}
	return items, nil
}

// printBatch writes per-image lines and the total summary.
func printBatch(w io.Writer, batch *compressor.Batch) {
	for _, res := range batch.Results {
		if !res.Success {
			fmt.Fprintf(w, "Failed %s: %s\n", res.Name, res.Message)
			fmt.Fprintln(w, "---")
			continue
		}
		fmt.Fprintf(w, "Compressed %s\n", res.Name)
		fmt.Fprintf(w, "Original size: %s\n", statistics.FormatKB(res.OriginalSize))
		fmt.Fprintf(w, "Compressed size: %s\n", statistics.FormatKB(res.CompressedSize))
		fmt.Fprintf(w, "Compression ratio: %s\n", statistics.FormatRatio(res.Ratio))
		fmt.Fprintln(w, "---")
	}
	fmt.Fprintln(w, batch.Report.GetSummary())
	if batch.Report.ItemsFailed > 0 {
		fmt.Fprint(w, statistics.GetErrorSummary(batch.ItemResults()))
	}
}
