package annotation

import (
	"fmt"

	"github.com/ajitpratap0/protspace/pkg/errors"
)

// IdentifierColumn is the name of the first column of every output table.
const IdentifierColumn = "identifier"

// ErrUnknownAnnotation is wrapped by Resolve when a requested name is not in
// the catalog.
var ErrUnknownAnnotation = errors.New(errors.ErrorTypeConfig, "unknown annotation")

// Resolution is a validated annotation request split by owning source.
type Resolution struct {
	// Requested holds the validated names in request order, groups expanded.
	Requested []string
	// Explicit is false when the request fell back to defaults.
	Explicit bool

	UniProt  []string
	Taxonomy []string
	InterPro []string

	// Derived lists fields injected for downstream stages that the caller
	// did not ask for.
	Derived []string

	SequenceAutoAdded   bool
	LengthAutoAdded     bool
	LengthBinning       bool
	FullCatalogFallback bool
}

// Resolve validates requested against the catalog and splits it by source.
//
// A nil requested selects defaults. Group names are expanded in both cases.
// Unknown names fail before anything else happens.
func Resolve(requested []string, defaults []string) (*Resolution, error) {
	explicit := requested != nil
	names := requested
	if !explicit {
		names = defaults
	}
	names = ExpandGroups(names)
	for _, name := range names {
		if !IsKnown(name) {
			return nil, errors.Wrap(ErrUnknownAnnotation, errors.ErrorTypeConfig,
				fmt.Sprintf("annotation %q is not in catalog v%d", name, CatalogVersion)).
				WithDetail("annotation", name)
		}
	}

	r := &Resolution{Explicit: explicit}
	r.split(names)

	if !explicit && len(r.Taxonomy) == 0 && len(r.InterPro) == 0 && len(r.UniProt) == len(MandatoryFields) {
		r.FullCatalogFallback = true
		names = Groups["uniprot"]
		r.split(names)
	}

	r.Requested = ExpandGroups(append(append([]string{}, names...), AlwaysIncluded...))
	if !r.FullCatalogFallback {
		r.UniProt = appendMissing(r.UniProt, AlwaysIncluded...)
	}
	return r, nil
}

func (r *Resolution) split(names []string) {
	r.UniProt, r.Taxonomy, r.InterPro, r.Derived = nil, nil, nil, nil
	r.SequenceAutoAdded, r.LengthAutoAdded, r.LengthBinning = false, false, false

	var uniprot []string
	for _, name := range names {
		switch sourceOf[name] {
		case SourceUniProt:
			uniprot = append(uniprot, name)
		case SourceTaxonomy:
			r.Taxonomy = append(r.Taxonomy, name)
		case SourceInterPro:
			r.InterPro = append(r.InterPro, name)
		case SourceDerived:
			r.LengthBinning = true
		}
	}

	if r.LengthBinning && !contains(uniprot, Length) {
		uniprot = append(uniprot, Length)
		r.LengthAutoAdded = true
		r.Derived = append(r.Derived, Length)
	}

	fields := append([]string{}, MandatoryFields...)
	fields = appendMissing(fields, uniprot...)
	if len(r.InterPro) > 0 && !contains(fields, Sequence) {
		fields = append(fields, Sequence)
		r.SequenceAutoAdded = true
		r.Derived = append(r.Derived, Sequence)
	}
	r.UniProt = fields
}

// Fields returns the field list for source.
func (r *Resolution) Fields(source Source) []string {
	switch source {
	case SourceUniProt:
		return r.UniProt
	case SourceTaxonomy:
		return r.Taxonomy
	case SourceInterPro:
		return r.InterPro
	default:
		return nil
	}
}

// Required returns every fetched field across sources, in source order.
func (r *Resolution) Required() []string {
	out := append([]string{}, r.UniProt...)
	out = appendMissing(out, r.Taxonomy...)
	return appendMissing(out, r.InterPro...)
}

// OutputColumns returns the final table columns: the identifier column
// followed by the requested names that are present in available.
// organism_id is never emitted and injected fields are dropped.
func (r *Resolution) OutputColumns(available []string) []string {
	have := make(map[string]bool, len(available))
	for _, a := range available {
		have[a] = true
	}

	cols := []string{IdentifierColumn}
	for _, name := range r.Requested {
		switch {
		case name == OrganismID:
			continue
		case name == Sequence && r.SequenceAutoAdded:
			continue
		case name == Length && r.LengthAutoAdded:
			continue
		case !have[name]:
			continue
		}
		cols = append(cols, name)
	}
	return cols
}

// SourcesToFetch reports which sources must be queried when the fields in
// cached are already available. Taxonomy needs organism_id and InterPro
// needs sequence, both from the primary source.
func SourcesToFetch(cached, required []string) map[Source]bool {
	have := make(map[string]bool, len(cached))
	for _, c := range cached {
		have[c] = true
	}

	need := map[Source]bool{
		SourceUniProt:  false,
		SourceTaxonomy: false,
		SourceInterPro: false,
	}
	for _, name := range required {
		if have[name] {
			continue
		}
		if s, ok := sourceOf[name]; ok && s != SourceDerived {
			need[s] = true
		}
	}

	if need[SourceTaxonomy] && !have[OrganismID] {
		need[SourceUniProt] = true
	}
	if need[SourceInterPro] && !have[Sequence] {
		need[SourceUniProt] = true
	}
	return need
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func appendMissing(list []string, items ...string) []string {
	for _, it := range items {
		if !contains(list, it) {
			list = append(list, it)
		}
	}
	return list
}
