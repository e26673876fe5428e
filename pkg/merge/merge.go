// Package merge joins primary, taxonomy and signature annotations into one
// record per primary-source record.
package merge

import (
	"strconv"
	"strings"

	"github.com/ajitpratap0/protspace/pkg/annotation"
)

// TaxonomyIndex maps an organism id to its lineage features.
type TaxonomyIndex map[int]annotation.Features

// ParseOrganismID coerces a raw organism_id value to an integer.
func ParseOrganismID(raw string) (int, bool) {
	id, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, false
	}
	return id, true
}

// NewTaxonomyIndex indexes taxonomy records by their organism id
// identifier. Records whose identifier is not an integer are ignored.
func NewTaxonomyIndex(records []annotation.Record) TaxonomyIndex {
	idx := make(TaxonomyIndex, len(records))
	for _, r := range records {
		id, ok := ParseOrganismID(r.Identifier)
		if !ok {
			continue
		}
		idx[id] = r.Features.Clone()
	}
	return idx
}

// OrganismCounts counts primary records per organism id and returns the
// distinct ids in first-seen order. Missing or invalid ids are skipped.
func OrganismCounts(primary []annotation.Record) (map[int]int, []string) {
	counts := make(map[int]int)
	var order []string
	for _, r := range primary {
		id, ok := ParseOrganismID(r.Features.Value(annotation.OrganismID))
		if !ok {
			continue
		}
		if counts[id] == 0 {
			order = append(order, strconv.Itoa(id))
		}
		counts[id]++
	}
	return counts, order
}

// SignatureIndex maps identifiers to their signature features. A later
// record for the same identifier replaces an earlier one.
func SignatureIndex(records []annotation.Record) map[string]annotation.Features {
	idx := make(map[string]annotation.Features, len(records))
	for _, r := range records {
		idx[r.Identifier] = r.Features
	}
	return idx
}

// Merge returns one record per primary record, in the same order. Taxonomy
// features are added when the organism id parses and is indexed; signature
// features are added when the identifier has an entry. Entries of taxonomy
// or signatures that match no primary record are dropped. Inputs are not
// modified.
func Merge(primary []annotation.Record, taxonomy TaxonomyIndex, signatures []annotation.Record) []annotation.Record {
	sigs := SignatureIndex(signatures)

	out := make([]annotation.Record, len(primary))
	for i, p := range primary {
		merged := p.Clone()

		if len(taxonomy) > 0 {
			if id, ok := ParseOrganismID(p.Features.Value(annotation.OrganismID)); ok {
				if lineage, ok := taxonomy[id]; ok {
					merged.Features.MergeFrom(lineage)
				}
			}
		}

		if sig, ok := sigs[p.Identifier]; ok {
			merged.Features.MergeFrom(sig)
		}

		out[i] = merged
	}
	return out
}
