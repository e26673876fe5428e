// Package annotation holds the per-protein feature record, the closed
// annotation catalog and the resolver that turns a user request into the
// per-source field lists each retriever must fetch.
package annotation

import (
	"github.com/goccy/go-json"
)

// Features is an insertion-ordered mapping of annotation name to value.
//
// A name can be absent (never fetched), present with an empty value (fetched,
// nothing reported) or present with a value. Has distinguishes the first two.
type Features struct {
	keys   []string
	values map[string]string
}

// Pair is one name/value entry of a Features mapping.
type Pair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewFeatures returns an empty mapping with room for n entries.
func NewFeatures(n int) Features {
	return Features{
		keys:   make([]string, 0, n),
		values: make(map[string]string, n),
	}
}

// FromPairs builds a mapping from pairs. Later duplicates overwrite the
// value but keep the first position.
func FromPairs(pairs ...Pair) Features {
	f := NewFeatures(len(pairs))
	for _, p := range pairs {
		f.Set(p.Name, p.Value)
	}
	return f
}

// Empty returns a mapping holding every name with an empty value, in order.
func Empty(names []string) Features {
	f := NewFeatures(len(names))
	for _, n := range names {
		f.Set(n, "")
	}
	return f
}

// Get returns the value for name and whether it is present.
func (f Features) Get(name string) (string, bool) {
	v, ok := f.values[name]
	return v, ok
}

// Value returns the value for name, or "" when absent.
func (f Features) Value(name string) string {
	return f.values[name]
}

// Has reports whether name is present, even with an empty value.
func (f Features) Has(name string) bool {
	_, ok := f.values[name]
	return ok
}

// Set stores value under name, appending name if it is new.
func (f *Features) Set(name, value string) {
	if f.values == nil {
		f.values = make(map[string]string)
	}
	if _, ok := f.values[name]; !ok {
		f.keys = append(f.keys, name)
	}
	f.values[name] = value
}

// Delete removes name.
func (f *Features) Delete(name string) {
	if _, ok := f.values[name]; !ok {
		return
	}
	delete(f.values, name)
	for i, k := range f.keys {
		if k == name {
			f.keys = append(f.keys[:i:i], f.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the names in insertion order. The slice is a copy.
func (f Features) Keys() []string {
	out := make([]string, len(f.keys))
	copy(out, f.keys)
	return out
}

// Len returns the number of names present.
func (f Features) Len() int {
	return len(f.keys)
}

// Pairs returns the entries in insertion order.
func (f Features) Pairs() []Pair {
	out := make([]Pair, 0, len(f.keys))
	for _, k := range f.keys {
		out = append(out, Pair{Name: k, Value: f.values[k]})
	}
	return out
}

// Clone returns an independent copy.
func (f Features) Clone() Features {
	out := NewFeatures(len(f.keys))
	for _, k := range f.keys {
		out.Set(k, f.values[k])
	}
	return out
}

// MergeFrom copies every entry of other into f, overwriting existing values.
func (f *Features) MergeFrom(other Features) {
	for _, k := range other.keys {
		f.Set(k, other.values[k])
	}
}

// MarshalJSON encodes the mapping as an ordered list of pairs.
func (f Features) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Pairs())
}

// UnmarshalJSON decodes an ordered list of pairs.
func (f *Features) UnmarshalJSON(data []byte) error {
	var pairs []Pair
	if err := json.Unmarshal(data, &pairs); err != nil {
		return err
	}
	*f = FromPairs(pairs...)
	return nil
}

// Record is the annotation set of one protein.
type Record struct {
	Identifier string   `json:"identifier"`
	Features   Features `json:"features"`
}

// NewRecord returns a record holding a copy of features.
func NewRecord(identifier string, features Features) Record {
	return Record{Identifier: identifier, Features: features.Clone()}
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	return Record{Identifier: r.Identifier, Features: r.Features.Clone()}
}

// Index maps identifiers to their position in records. The first occurrence
// wins.
func Index(records []Record) map[string]int {
	idx := make(map[string]int, len(records))
	for i, r := range records {
		if _, ok := idx[r.Identifier]; !ok {
			idx[r.Identifier] = i
		}
	}
	return idx
}
