// Package binning discretises protein lengths into categorical buckets,
// either over a fixed partition of the non-negative integers or over
// quantiles of the observed distribution.
package binning

import (
	"math"
	"sort"
	"strconv"

	"github.com/ajitpratap0/protspace/pkg/errors"
)

// Unknown labels a missing length.
const Unknown = "unknown"

// DefaultQuantileBins is the quantile bucket count used when none is set.
const DefaultQuantileBins = 10

// Length is an optional sequence length.
type Length struct {
	Value int
	Valid bool
}

// Known returns a defined length.
func Known(v int) Length {
	return Length{Value: v, Valid: true}
}

// ParseLength accepts only plain digit strings. Anything else, including
// signs and the empty string, is a missing length.
func ParseLength(s string) Length {
	if s == "" {
		return Length{}
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return Length{}
		}
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return Length{}
	}
	return Known(v)
}

// Range is a half-open interval [Min, Max) with its label. Max < 0 marks
// the final open bucket.
type Range struct {
	Min   int
	Max   int
	Label string
}

func (r Range) open() bool { return r.Max < 0 }

func (r Range) contains(v int) bool {
	return v >= r.Min && (r.open() || v < r.Max)
}

// DefaultRanges is the fixed partition of [0, inf).
var DefaultRanges = []Range{
	{0, 50, "<50"},
	{50, 100, "50-100"},
	{100, 200, "100-200"},
	{200, 400, "200-400"},
	{400, 600, "400-600"},
	{600, 800, "600-800"},
	{800, 1000, "800-1000"},
	{1000, 1200, "1000-1200"},
	{1200, 1400, "1200-1400"},
	{1400, 1600, "1400-1600"},
	{1600, 1800, "1600-1800"},
	{1800, 2000, "1800-2000"},
	{2000, -1, "2000+"},
}

// Binner computes fixed and quantile labels.
type Binner struct {
	ranges       []Range
	quantileBins int
}

// NewBinner validates that ranges partition [0, inf) with no gap or overlap:
// the first starts at 0, each starts where the previous ended, and only the
// last is open.
func NewBinner(ranges []Range, quantileBins int) (*Binner, error) {
	if quantileBins < 1 {
		return nil, errors.New(errors.ErrorTypeConfig, "quantile bins must be at least 1").
			WithDetail("bins", quantileBins)
	}
	if len(ranges) == 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "fixed ranges are empty")
	}
	if ranges[0].Min != 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "fixed ranges must start at 0").
			WithDetail("min", ranges[0].Min)
	}
	for i, r := range ranges {
		last := i == len(ranges)-1
		if r.open() != last {
			return nil, errors.New(errors.ErrorTypeConfig, "only the last fixed range may be open").
				WithDetail("label", r.Label)
		}
		if !r.open() && r.Max <= r.Min {
			return nil, errors.New(errors.ErrorTypeConfig, "fixed range is empty").
				WithDetail("label", r.Label)
		}
		if i > 0 && ranges[i-1].Max != r.Min {
			return nil, errors.New(errors.ErrorTypeConfig, "fixed ranges are not contiguous").
				WithDetail("label", r.Label).
				WithDetail("expected_min", ranges[i-1].Max)
		}
	}
	out := make([]Range, len(ranges))
	copy(out, ranges)
	return &Binner{ranges: out, quantileBins: quantileBins}, nil
}

// DefaultBinner uses DefaultRanges and DefaultQuantileBins.
func DefaultBinner() *Binner {
	b, err := NewBinner(DefaultRanges, DefaultQuantileBins)
	if err != nil {
		panic(err)
	}
	return b
}

// QuantileBins returns the configured quantile bucket count.
func (b *Binner) QuantileBins() int { return b.quantileBins }

// Fixed labels each length with the range containing it.
func (b *Binner) Fixed(lengths []Length) []string {
	labels := make([]string, len(lengths))
	for i, l := range lengths {
		labels[i] = b.fixedLabel(l)
	}
	return labels
}

func (b *Binner) fixedLabel(l Length) string {
	if !l.Valid || l.Value < 0 {
		return Unknown
	}
	for _, r := range b.ranges {
		if r.contains(l.Value) {
			return r.Label
		}
	}
	// unreachable for validated ranges
	return b.ranges[len(b.ranges)-1].Label
}

// Quantile labels each length with its quantile bucket using the
// configured bucket count.
func (b *Binner) Quantile(lengths []Length) []string {
	return Quantile(lengths, b.quantileBins)
}

// Quantile labels each length with one of at most bins buckets whose
// boundaries are evenly spaced percentiles of the defined lengths.
// Boundaries that coincide are merged, so skewed data yields fewer buckets.
// Labels are "start-end" with the end exclusive, except for the last bucket
// which includes the maximum.
func Quantile(lengths []Length, bins int) []string {
	labels := make([]string, len(lengths))

	var valid []float64
	first := -1
	for i, l := range lengths {
		if l.Valid && l.Value >= 0 {
			valid = append(valid, float64(l.Value))
			if first < 0 {
				first = i
			}
		}
	}
	if len(valid) == 0 || bins < 1 {
		for i := range labels {
			labels[i] = Unknown
		}
		return labels
	}

	sort.Float64s(valid)
	bounds := boundaries(valid, bins)

	if len(bounds) < 2 {
		literal := strconv.Itoa(lengths[first].Value)
		for i, l := range lengths {
			if l.Valid && l.Value >= 0 {
				labels[i] = literal
			} else {
				labels[i] = Unknown
			}
		}
		return labels
	}

	last := len(bounds) - 2
	for i, l := range lengths {
		if !l.Valid || l.Value < 0 {
			labels[i] = Unknown
			continue
		}
		v := float64(l.Value)
		// count of upper bounds <= v
		idx := sort.Search(len(bounds)-1, func(j int) bool { return bounds[j+1] > v })
		if idx > last {
			idx = last
		}
		start := int(bounds[idx])
		end := int(bounds[idx+1])
		if idx == last {
			labels[i] = strconv.Itoa(start) + "-" + strconv.Itoa(end)
		} else {
			labels[i] = strconv.Itoa(start) + "-" + strconv.Itoa(end-1)
		}
	}
	return labels
}

// boundaries returns the percentiles at 0, 100/bins, ..., 100 of sorted,
// with adjacent duplicates removed.
func boundaries(sorted []float64, bins int) []float64 {
	out := make([]float64, 0, bins+1)
	for k := 0; k <= bins; k++ {
		p := float64(k) / float64(bins)
		q := percentile(sorted, p)
		if len(out) == 0 || q != out[len(out)-1] {
			out = append(out, q)
		}
	}
	return out
}

// percentile interpolates linearly between the closest ranks of sorted.
// p is in [0, 1].
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	pos := p * float64(n-1)
	lo := int(math.Floor(pos))
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
