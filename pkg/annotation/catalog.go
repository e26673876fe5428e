package annotation

import (
	"sort"
)

// CatalogVersion identifies the revision of the closed annotation catalog.
// Bump it whenever a name is added, removed or moves between sources.
const CatalogVersion = 2

// Source names an annotation provider.
type Source string

const (
	SourceUniProt  Source = "uniprot"
	SourceTaxonomy Source = "taxonomy"
	SourceInterPro Source = "interpro"
	SourceDerived  Source = "derived"
)

// Sources lists the fetchable sources in pipeline order.
var Sources = []Source{SourceUniProt, SourceTaxonomy, SourceInterPro}

// Field names with special meaning to the pipeline.
const (
	Accession      = "accession"
	OrganismID     = "organism_id"
	Length         = "length"
	Sequence       = "sequence"
	LengthFixed    = "length_fixed"
	LengthQuantile = "length_quantile"

	Reviewed        = "reviewed"
	AnnotationScore = "annotation_score"
	ProteinFamilies = "protein_families"
	XrefPDB         = "xref_pdb"
	Fragment        = "fragment"
	SubcellularLoc  = "cc_subcellular_location"
	GOBiological    = "go_bp"
	GOCellular      = "go_cc"
	GOMolecular     = "go_mf"

	Pfam          = "pfam"
	Cath          = "cath"
	SignalPeptide = "signal_peptide"
)

// UniProtFields are the fields the primary source can return.
var UniProtFields = []string{
	Accession,
	AnnotationScore,
	SubcellularLoc,
	"ec",
	Fragment,
	"gene_name",
	GOBiological,
	GOCellular,
	GOMolecular,
	"keyword",
	Length,
	OrganismID,
	"protein_existence",
	ProteinFamilies,
	"protein_name",
	Reviewed,
	Sequence,
	"uniprot_kb_id",
	XrefPDB,
}

// TaxonomyFields are the lineage ranks the taxonomy source can return.
var TaxonomyFields = []string{
	"root",
	"domain",
	"kingdom",
	"phylum",
	"class",
	"order",
	"family",
	"genus",
	"species",
}

// InterProFields are the member databases the signature source can return.
var InterProFields = []string{
	Pfam,
	"superfamily",
	Cath,
	SignalPeptide,
	"smart",
	"cdd",
	"panther",
	"prosite",
	"prints",
}

// DerivedFields are computed from the raw length by the binner.
var DerivedFields = []string{LengthFixed, LengthQuantile}

// MandatoryFields are always fetched from the primary source, first.
var MandatoryFields = []string{Accession, OrganismID}

// AlwaysIncluded are display fields added to every request by default.
var AlwaysIncluded = []string{"gene_name", "protein_name", "uniprot_kb_id"}

// internalFields are fetched for the pipeline's own use and are not offered
// in the uniprot group.
var internalFields = map[string]bool{
	Accession:  true,
	OrganismID: true,
	Length:     true,
	Sequence:   true,
}

// Groups are preset names that expand to several annotations.
var Groups = map[string][]string{
	"default":  {"ec", "keyword", LengthQuantile, ProteinFamilies, Reviewed},
	"uniprot":  uniprotUserFields(),
	"interpro": InterProFields,
	"taxonomy": TaxonomyFields,
	"all":      concat(uniprotUserFields(), TaxonomyFields, InterProFields),
}

var sourceOf = func() map[string]Source {
	m := make(map[string]Source)
	for _, f := range UniProtFields {
		m[f] = SourceUniProt
	}
	for _, f := range TaxonomyFields {
		m[f] = SourceTaxonomy
	}
	for _, f := range InterProFields {
		m[f] = SourceInterPro
	}
	for _, f := range DerivedFields {
		m[f] = SourceDerived
	}
	return m
}()

func uniprotUserFields() []string {
	out := make([]string, 0, len(UniProtFields)+len(DerivedFields))
	for _, f := range UniProtFields {
		if internalFields[f] {
			continue
		}
		out = append(out, f)
	}
	return append(out, DerivedFields...)
}

func concat(lists ...[]string) []string {
	var out []string
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

// SourceOf returns the source owning name.
func SourceOf(name string) (Source, bool) {
	s, ok := sourceOf[name]
	return s, ok
}

// IsKnown reports whether name is in the catalog.
func IsKnown(name string) bool {
	_, ok := sourceOf[name]
	return ok
}

// IsGroup reports whether name is a group preset.
func IsGroup(name string) bool {
	_, ok := Groups[name]
	return ok
}

// Catalog returns every annotation name sorted, optionally restricted to one
// source.
func Catalog(source Source) []string {
	var out []string
	for name, s := range sourceOf {
		if source == "" || s == source {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// GroupNames returns the group presets sorted.
func GroupNames() []string {
	out := make([]string, 0, len(Groups))
	for g := range Groups {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// ExpandGroups replaces group names with their members, keeping order and
// dropping duplicates. Unknown names pass through untouched.
func ExpandGroups(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		members, ok := Groups[name]
		if !ok {
			members = []string{name}
		}
		for _, m := range members {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	return out
}
