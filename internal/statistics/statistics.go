package statistics

import (
	"fmt"
	"strings"
	"time"
)

// ItemResult is the subset of a per-item compression result the report needs.
type ItemResult struct {
	Name           string
	OriginalSize   int64
	CompressedSize int64
	Success        bool
	Reason         string
}

// Report contains the aggregate statistics for one compression batch.
type Report struct {
	ItemsTotal          int           `json:"items_total"`
	ItemsSucceeded      int           `json:"items_succeeded"`
	ItemsFailed         int           `json:"items_failed"`
	TotalOriginalSize   int64         `json:"total_original_size"`
	SucceededOrigSize   int64         `json:"succeeded_original_size"`
	TotalCompressedSize int64         `json:"total_compressed_size"`
	OverallRatio        *float64      `json:"overall_ratio"`
	StartTime           time.Time     `json:"start_time"`
	EndTime             time.Time     `json:"end_time"`
	Duration            time.Duration `json:"duration"`
}

// NewReport aggregates per-item results. TotalOriginalSize counts every item,
// failed ones included; the compressed total and the overall ratio only count
// items that succeeded.
func NewReport(results []ItemResult, start, end time.Time) Report {
	r := Report{
		ItemsTotal: len(results),
		StartTime:  start,
		EndTime:    end,
		Duration:   end.Sub(start),
	}
	for _, res := range results {
		r.TotalOriginalSize += res.OriginalSize
		if !res.Success {
			r.ItemsFailed++
			continue
		}
		r.ItemsSucceeded++
		r.SucceededOrigSize += res.OriginalSize
		r.TotalCompressedSize += res.CompressedSize
	}
	r.OverallRatio = Ratio(r.TotalCompressedSize, r.SucceededOrigSize)
	if r.ItemsSucceeded == 0 {
		r.OverallRatio = nil
	}
	return r
}

// Ratio returns compressed/original, or nil when original is not positive.
func Ratio(compressed, original int64) *float64 {
	if original <= 0 {
		return nil
	}
	v := float64(compressed) / float64(original)
	return &v
}

// GetSummary returns a formatted summary of the batch.
func (r Report) GetSummary() string {
	return fmt.Sprintf(`Total Compression Results:
		Images: %d (succeeded %d, failed %d)
		Total original size: %s
		Total compressed size: %s
		Overall compression ratio: %s
		Duration: %v`,
		r.ItemsTotal, r.ItemsSucceeded, r.ItemsFailed,
		FormatKB(r.TotalOriginalSize),
		FormatKB(r.TotalCompressedSize),
		FormatRatio(r.OverallRatio),
		r.Duration)
}

// FormatKB renders a byte count in kilobytes with two decimals.
func FormatKB(bytes int64) string {
	return fmt.Sprintf("%.2f KB", float64(bytes)/1024)
}

// FormatRatio renders a ratio as a percentage, or "n/a" when undefined.
func FormatRatio(ratio *float64) string {
	if ratio == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", *ratio*100)
}

// FormatBytes returns a human-readable string for a byte count.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// GetErrorSummary lists failed items, capped at ten lines.
func GetErrorSummary(results []ItemResult) string {
	var failed []ItemResult
	for _, res := range results {
		if !res.Success {
			failed = append(failed, res)
		}
	}
	if len(failed) == 0 {
		return "No errors occurred during processing"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Errors (%d total):\n", len(failed))
	for i, res := range failed {
		if i >= 10 {
			fmt.Fprintf(&sb, "  ... and %d more errors\n", len(failed)-10)
			break
		}
		fmt.Fprintf(&sb, "  %s: %s\n", res.Name, res.Reason)
	}
	return sb.String()
}
