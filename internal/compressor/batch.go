package compressor

import (
	"image-compressor-go/internal/statistics"
)

// Batch is the outcome of one CompressBatch call.
type Batch struct {
	ID             string            `json:"id"`
	Quality        int               `json:"quality"`
	Results        []Result          `json:"results"`
	Archive        []byte            `json:"archive"`
	ArchiveEntries int               `json:"archive_entries"`
	Report         statistics.Report `json:"report"`
}

// Succeeded returns the results that were compressed successfully.
func (b *Batch) Succeeded() []Result {
	var out []Result
	for _, r := range b.Results {
		if r.Success {
			out = append(out, r)
		}
	}
	return out
}

// Failed returns the results that failed.
func (b *Batch) Failed() []Result {
	var out []Result
	for _, r := range b.Results {
		if !r.Success {
			out = append(out, r)
		}
	}
	return out
}

// ItemResults converts the results into the form statistics aggregates.
func (b *Batch) ItemResults() []statistics.ItemResult {
	return itemResults(b.Results)
}

func itemResults(results []Result) []statistics.ItemResult {
	out := make([]statistics.ItemResult, len(results))
	for i, r := range results {
		out[i] = statistics.ItemResult{
			Name:           r.Name,
			OriginalSize:   r.OriginalSize,
			CompressedSize: r.CompressedSize,
			Success:        r.Success,
			Reason:         r.Reason,
		}
	}
	return out
}
