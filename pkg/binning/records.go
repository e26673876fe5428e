package binning

import (
	"github.com/ajitpratap0/protspace/pkg/annotation"
)

// Lengths reads the raw length field of every record.
func Lengths(records []annotation.Record) []Length {
	out := make([]Length, len(records))
	for i, r := range records {
		out[i] = ParseLength(r.Features.Value(annotation.Length))
	}
	return out
}

// AddBins returns copies of records carrying length_fixed and
// length_quantile, with the raw length removed. Inputs are not modified.
func (b *Binner) AddBins(records []annotation.Record) []annotation.Record {
	lengths := Lengths(records)
	fixed := b.Fixed(lengths)
	quantile := b.Quantile(lengths)

	out := make([]annotation.Record, len(records))
	for i, r := range records {
		c := r.Clone()
		c.Features.Set(annotation.LengthFixed, fixed[i])
		c.Features.Set(annotation.LengthQuantile, quantile[i])
		c.Features.Delete(annotation.Length)
		out[i] = c
	}
	return out
}
