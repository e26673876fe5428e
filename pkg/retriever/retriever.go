// Package retriever fetches raw annotations from the remote sources: UniProt
// entries, taxonomy lineages and InterPro signature matches.
//
// Every retriever processes its keys in fixed-size batches, one batch at a
// time. A batch that fails does not fail the source: its keys get
// placeholder records and the failure is reported in Result.Failures.
package retriever

import (
	"context"
	"fmt"
	"strings"

	"github.com/ajitpratap0/protspace/pkg/annotation"
)

// DefaultBatchSize is used when a retriever is configured with size <= 0.
const DefaultBatchSize = 100

// Retriever produces annotation records for a list of keys.
type Retriever interface {
	// Name returns the source name used in logs, metrics and reports.
	Name() string
	// Fetch retrieves records for keys. The error return is reserved for
	// failures of the whole source; batch failures are in Result.Failures.
	Fetch(ctx context.Context, keys []string) (*Result, error)
}

// BatchFailure records one batch that could not be retrieved.
type BatchFailure struct {
	Source string
	Batch  int
	Keys   []string
	Err    error
}

func (f BatchFailure) Error() string {
	return fmt.Sprintf("%s batch %d (%d keys): %v", f.Source, f.Batch, len(f.Keys), f.Err)
}

// Result is the outcome of a Fetch.
type Result struct {
	Records  []annotation.Record
	Failures []BatchFailure
	// Skipped lists keys deliberately left without a record.
	Skipped []string
}

// Placeholders returns the number of keys covered by failed batches.
func (r *Result) Placeholders() int {
	n := 0
	for _, f := range r.Failures {
		n += len(f.Keys)
	}
	return n
}

// Failed reports whether any key of the result comes from a failed batch.
func (r *Result) Failed(key string) bool {
	for _, f := range r.Failures {
		for _, k := range f.Keys {
			if k == key {
				return true
			}
		}
	}
	return false
}

// NormalizeHeader reduces a UniProt FASTA header such as "sp|P12345|NAME"
// or "tr|Q9XYZ1|NAME" to its accession. Other values are returned trimmed.
func NormalizeHeader(header string) string {
	h := strings.TrimSpace(header)
	lower := strings.ToLower(h)
	if strings.HasPrefix(lower, "sp|") || strings.HasPrefix(lower, "tr|") {
		parts := strings.Split(h, "|")
		if len(parts) >= 2 && parts[1] != "" {
			return parts[1]
		}
	}
	return h
}

func batchSize(n int) int {
	if n <= 0 {
		return DefaultBatchSize
	}
	return n
}
