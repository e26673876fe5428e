package binning

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/protspace/pkg/annotation"
	"github.com/ajitpratap0/protspace/pkg/errors"
)

func TestParseLength(t *testing.T) {
	tests := []struct {
		in   string
		want Length
	}{
		{"350", Known(350)},
		{"0", Known(0)},
		{"", Length{}},
		{"-5", Length{}},
		{"12.5", Length{}},
		{"abc", Length{}},
		{" 12", Length{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLength(tt.in))
		})
	}
}

func TestFixedBoundaries(t *testing.T) {
	b := DefaultBinner()
	tests := []struct {
		length Length
		want   string
	}{
		{Known(0), "<50"},
		{Known(45), "<50"},
		{Known(49), "<50"},
		{Known(50), "50-100"},
		{Known(199), "100-200"},
		{Known(200), "200-400"},
		{Known(1999), "1800-2000"},
		{Known(2000), "2000+"},
		{Known(2500), "2000+"},
		{Known(1 << 30), "2000+"},
		{Length{}, Unknown},
		{Length{Value: -1, Valid: true}, Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.want+"/"+strconv.Itoa(tt.length.Value), func(t *testing.T) {
			assert.Equal(t, []string{tt.want}, b.Fixed([]Length{tt.length}))
		})
	}
}

func TestFixedIsTotal(t *testing.T) {
	b := DefaultBinner()
	for v := 0; v <= 2100; v++ {
		label := b.Fixed([]Length{Known(v)})[0]
		require.NotEqual(t, Unknown, label, "length %d", v)
	}
}

func TestNewBinnerRejectsGaps(t *testing.T) {
	tests := []struct {
		name   string
		ranges []Range
		bins   int
	}{
		{"empty", nil, 10},
		{"zero bins", DefaultRanges, 0},
		{"not from zero", []Range{{10, -1, "10+"}}, 10},
		{"gap", []Range{{0, 50, "<50"}, {60, -1, "60+"}}, 10},
		{"overlap", []Range{{0, 50, "<50"}, {40, -1, "40+"}}, 10},
		{"closed tail", []Range{{0, 50, "<50"}, {50, 100, "50-100"}}, 10},
		{"open in middle", []Range{{0, -1, "all"}, {50, -1, "50+"}}, 10},
		{"empty range", []Range{{0, 0, "none"}, {0, -1, "all"}}, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBinner(tt.ranges, tt.bins)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
		})
	}

	b, err := NewBinner([]Range{{0, 100, "short"}, {100, -1, "long"}}, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"short", "long", "long"}, b.Fixed([]Length{Known(99), Known(100), Known(5000)}))
}

func TestQuantileIdenticalLengthsCollapse(t *testing.T) {
	lengths := []Length{Known(300), {}, Known(300), Known(300)}
	assert.Equal(t, []string{"300", Unknown, "300", "300"}, Quantile(lengths, 10))
}

func TestQuantileNoValidLengths(t *testing.T) {
	assert.Equal(t, []string{Unknown, Unknown}, Quantile([]Length{{}, {}}, 10))
	assert.Empty(t, Quantile(nil, 10))
}

func TestQuantileLabels(t *testing.T) {
	// percentiles over 0..100 at 25% steps: 100, 200, 300, 400, 500
	lengths := []Length{Known(100), Known(200), Known(300), Known(400), Known(500), {}}
	got := Quantile(lengths, 4)
	assert.Equal(t, []string{"100-199", "200-299", "300-399", "400-500", "400-500", Unknown}, got)
}

func TestQuantileSkewedMergesBoundaries(t *testing.T) {
	lengths := []Length{Known(10), Known(10), Known(10), Known(10), Known(10), Known(10), Known(10), Known(10), Known(10), Known(1000)}
	got := Quantile(lengths, 10)

	distinct := map[string]bool{}
	for _, l := range got {
		distinct[l] = true
	}
	assert.LessOrEqual(t, len(distinct), 2)
	assert.True(t, strings.HasPrefix(got[0], "10-"), got[0])
	assert.True(t, strings.HasSuffix(got[9], "-1000"), got[9])
	assert.Equal(t, got[0], got[8])
	assert.NotEqual(t, got[0], got[9])
}

func TestQuantileBucketCountBounded(t *testing.T) {
	var lengths []Length
	for i := 0; i < 500; i++ {
		lengths = append(lengths, Known(50+(i*37)%900))
	}
	for _, bins := range []int{1, 3, 10, 20} {
		t.Run(strconv.Itoa(bins), func(t *testing.T) {
			labels := Quantile(lengths, bins)
			require.Len(t, labels, len(lengths))
			distinct := map[string]bool{}
			for _, l := range labels {
				distinct[l] = true
			}
			assert.LessOrEqual(t, len(distinct), bins)
		})
	}
}

func TestAddBinsCopiesAndDropsLength(t *testing.T) {
	in := []annotation.Record{
		{Identifier: "A", Features: annotation.FromPairs(annotation.Pair{Name: "length", Value: "45"}, annotation.Pair{Name: "reviewed", Value: "true"})},
		{Identifier: "B", Features: annotation.FromPairs(annotation.Pair{Name: "length", Value: ""})},
	}
	out := DefaultBinner().AddBins(in)

	require.Len(t, out, 2)
	assert.Equal(t, "<50", out[0].Features.Value(annotation.LengthFixed))
	assert.Equal(t, "45", out[0].Features.Value(annotation.LengthQuantile))
	assert.False(t, out[0].Features.Has(annotation.Length))
	assert.Equal(t, Unknown, out[1].Features.Value(annotation.LengthFixed))
	assert.Equal(t, Unknown, out[1].Features.Value(annotation.LengthQuantile))

	assert.True(t, in[0].Features.Has(annotation.Length), "inputs must not be modified")
	assert.False(t, in[0].Features.Has(annotation.LengthFixed))
}
