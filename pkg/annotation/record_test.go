package annotation

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeaturesOrderAndPresence(t *testing.T) {
	f := NewFeatures(3)
	f.Set("reviewed", "true")
	f.Set("ec", "")
	f.Set("keyword", "Kinase")
	f.Set("reviewed", "false")

	assert.Equal(t, []string{"reviewed", "ec", "keyword"}, f.Keys())
	assert.Equal(t, "false", f.Value("reviewed"))

	v, ok := f.Get("ec")
	assert.True(t, ok, "present-empty must be distinguishable from absent")
	assert.Equal(t, "", v)

	_, ok = f.Get("pfam")
	assert.False(t, ok)

	f.Delete("ec")
	f.Delete("missing")
	assert.Equal(t, []string{"reviewed", "keyword"}, f.Keys())
	assert.Equal(t, 2, f.Len())
}

func TestFeaturesCloneIsIndependent(t *testing.T) {
	orig := FromPairs(Pair{"a", "1"}, Pair{"b", "2"})
	c := orig.Clone()
	c.Set("a", "changed")
	c.Set("c", "3")
	c.Delete("b")

	assert.Equal(t, "1", orig.Value("a"))
	assert.Equal(t, []string{"a", "b"}, orig.Keys())
	assert.Equal(t, []string{"a", "c"}, c.Keys())
}

func TestFeaturesJSON(t *testing.T) {
	f := FromPairs(Pair{"z", "last"}, Pair{"a", ""})
	data, err := json.Marshal(Record{Identifier: "P12345", Features: f})
	require.NoError(t, err)
	assert.JSONEq(t, `{"identifier":"P12345","features":[{"name":"z","value":"last"},{"name":"a","value":""}]}`, string(data))

	var back Record
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, []string{"z", "a"}, back.Features.Keys())
	assert.True(t, back.Features.Has("a"))
}

func TestEmptyAndIndex(t *testing.T) {
	f := Empty([]string{"x", "y"})
	assert.Equal(t, []Pair{{"x", ""}, {"y", ""}}, f.Pairs())

	records := []Record{{Identifier: "A"}, {Identifier: "B"}, {Identifier: "A"}}
	assert.Equal(t, map[string]int{"A": 0, "B": 1}, Index(records))
}
