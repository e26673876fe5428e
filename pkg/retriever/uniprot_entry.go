package retriever

import (
	"strconv"
	"strings"

	"github.com/ajitpratap0/protspace/pkg/annotation"
)

// UniProtEntry is the subset of a UniProtKB JSON entry that protspace reads.
type UniProtEntry struct {
	PrimaryAccession    string   `json:"primaryAccession"`
	SecondaryAccessions []string `json:"secondaryAccessions"`
	UniProtKBID         string   `json:"uniProtkbId"`
	EntryType           string   `json:"entryType"`
	AnnotationScore     *float64 `json:"annotationScore"`
	ProteinExistence    string   `json:"proteinExistence"`

	Organism struct {
		TaxonID        int    `json:"taxonId"`
		ScientificName string `json:"scientificName"`
	} `json:"organism"`

	ProteinDescription struct {
		RecommendedName  *proteinName  `json:"recommendedName"`
		AlternativeNames []proteinName `json:"alternativeNames"`
		SubmissionNames  []proteinName `json:"submissionNames"`
	} `json:"proteinDescription"`

	Genes []struct {
		GeneName *evidencedValue `json:"geneName"`
	} `json:"genes"`

	Sequence struct {
		Value    string `json:"value"`
		Length   int    `json:"length"`
		Fragment string `json:"fragment"`
	} `json:"sequence"`

	Keywords []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"keywords"`

	Comments []struct {
		CommentType          string           `json:"commentType"`
		Texts                []evidencedValue `json:"texts"`
		SubcellularLocations []struct {
			Location evidencedValue `json:"location"`
		} `json:"subcellularLocations"`
	} `json:"comments"`

	CrossReferences []struct {
		Database   string `json:"database"`
		ID         string `json:"id"`
		Properties []struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		} `json:"properties"`
	} `json:"uniProtKBCrossReferences"`
}

type proteinName struct {
	FullName  *evidencedValue  `json:"fullName"`
	ECNumbers []evidencedValue `json:"ecNumbers"`
}

type evidencedValue struct {
	Value     string `json:"value"`
	Evidences []struct {
		EvidenceCode string `json:"evidenceCode"`
	} `json:"evidences"`
}

// ecoCodes maps ECO evidence identifiers to the short codes UniProt shows.
var ecoCodes = map[string]string{
	"ECO:0000269": "EXP",
	"ECO:0000303": "NAS",
	"ECO:0000305": "IC",
	"ECO:0000250": "ISS",
	"ECO:0000255": "SAM",
	"ECO:0000256": "SAM",
	"ECO:0000259": "SAM",
	"ECO:0000312": "IEA",
	"ECO:0000313": "IEA",
}

// evidence returns the short code of the first recognised evidence, or "".
func (v evidencedValue) evidence() string {
	for _, e := range v.Evidences {
		if code, ok := ecoCodes[e.EvidenceCode]; ok {
			return code
		}
	}
	return ""
}

// withEvidence renders "value|CODE", or just value when there is no code.
func (v evidencedValue) withEvidence() string {
	if code := v.evidence(); code != "" {
		return v.Value + "|" + code
	}
	return v.Value
}

// Reviewed reports whether the entry is Swiss-Prot.
func (e *UniProtEntry) Reviewed() bool {
	t := strings.ToLower(e.EntryType)
	if strings.Contains(t, "unreviewed") {
		return false
	}
	return strings.Contains(t, "reviewed") || strings.Contains(t, "swiss-prot")
}

// Matches reports whether accession names this entry, either as primary or
// as a secondary (merged) accession.
func (e *UniProtEntry) Matches(accession string) bool {
	if e.PrimaryAccession == accession {
		return true
	}
	for _, s := range e.SecondaryAccessions {
		if s == accession {
			return true
		}
	}
	return false
}

func (e *UniProtEntry) geneName() string {
	if len(e.Genes) == 0 || e.Genes[0].GeneName == nil {
		return ""
	}
	return e.Genes[0].GeneName.Value
}

func (e *UniProtEntry) proteinName() string {
	pd := e.ProteinDescription
	if pd.RecommendedName != nil && pd.RecommendedName.FullName != nil {
		return pd.RecommendedName.FullName.Value
	}
	if len(pd.SubmissionNames) > 0 && pd.SubmissionNames[0].FullName != nil {
		return pd.SubmissionNames[0].FullName.Value
	}
	return ""
}

func (e *UniProtEntry) ecNumbers() []string {
	var out []string
	add := func(n *proteinName) {
		if n == nil {
			return
		}
		for _, ec := range n.ECNumbers {
			if ec.Value != "" {
				out = append(out, ec.withEvidence())
			}
		}
	}
	add(e.ProteinDescription.RecommendedName)
	for i := range e.ProteinDescription.AlternativeNames {
		add(&e.ProteinDescription.AlternativeNames[i])
	}
	return out
}

func (e *UniProtEntry) subcellularLocations() []string {
	var out []string
	for _, c := range e.Comments {
		if c.CommentType != "SUBCELLULAR LOCATION" {
			continue
		}
		for _, loc := range c.SubcellularLocations {
			if loc.Location.Value != "" {
				out = append(out, loc.Location.withEvidence())
			}
		}
	}
	return out
}

func (e *UniProtEntry) proteinFamilies() string {
	const prefix = "Belongs to the "
	for _, c := range e.Comments {
		if c.CommentType != "SIMILARITY" || len(c.Texts) == 0 {
			continue
		}
		t := c.Texts[0]
		t.Value = strings.TrimPrefix(t.Value, prefix)
		return t.withEvidence()
	}
	return ""
}

// goTerms returns the GO terms of one aspect ('P', 'F' or 'C') as
// "P:term|EVIDENCE", keeping the aspect prefix.
func (e *UniProtEntry) goTerms(aspect byte) []string {
	var out []string
	for _, x := range e.CrossReferences {
		if x.Database != "GO" {
			continue
		}
		var term, evidence string
		for _, p := range x.Properties {
			switch p.Key {
			case "GoTerm":
				term = p.Value
			case "GoEvidenceType":
				evidence, _, _ = strings.Cut(p.Value, ":")
			}
		}
		if len(term) < 2 || term[0] != aspect || term[1] != ':' {
			continue
		}
		if evidence != "" {
			term += "|" + evidence
		}
		out = append(out, term)
	}
	return out
}

func (e *UniProtEntry) crossReferenceIDs(database string) []string {
	var out []string
	for _, x := range e.CrossReferences {
		if x.Database == database && x.ID != "" {
			out = append(out, x.ID)
		}
	}
	return out
}

func (e *UniProtEntry) keywords() []string {
	out := make([]string, 0, len(e.Keywords))
	for _, k := range e.Keywords {
		if k.Name != "" {
			out = append(out, k.Name)
		}
	}
	return out
}

// Value renders one catalog field as its raw string form: lists are joined
// with ";", booleans are "True" or "False" and missing values are "".
func (e *UniProtEntry) Value(field string) string {
	switch field {
	case annotation.Accession:
		return e.PrimaryAccession
	case annotation.AnnotationScore:
		if e.AnnotationScore == nil {
			return ""
		}
		return strconv.FormatFloat(*e.AnnotationScore, 'f', -1, 64)
	case annotation.SubcellularLoc:
		return strings.Join(e.subcellularLocations(), ";")
	case "ec":
		return strings.Join(e.ecNumbers(), ";")
	case annotation.Fragment:
		return e.Sequence.Fragment
	case "gene_name":
		return e.geneName()
	case annotation.GOBiological:
		return strings.Join(e.goTerms('P'), ";")
	case annotation.GOCellular:
		return strings.Join(e.goTerms('C'), ";")
	case annotation.GOMolecular:
		return strings.Join(e.goTerms('F'), ";")
	case "keyword":
		return strings.Join(e.keywords(), ";")
	case annotation.Length:
		if e.Sequence.Length == 0 && e.Sequence.Value == "" {
			return ""
		}
		return strconv.Itoa(e.Sequence.Length)
	case annotation.OrganismID:
		if e.Organism.TaxonID == 0 {
			return ""
		}
		return strconv.Itoa(e.Organism.TaxonID)
	case "protein_existence":
		return e.ProteinExistence
	case annotation.ProteinFamilies:
		return e.proteinFamilies()
	case "protein_name":
		return e.proteinName()
	case annotation.Reviewed:
		if e.Reviewed() {
			return "True"
		}
		return "False"
	case annotation.Sequence:
		return e.Sequence.Value
	case "uniprot_kb_id":
		return e.UniProtKBID
	case annotation.XrefPDB:
		return strings.Join(e.crossReferenceIDs("PDB"), ";")
	default:
		return ""
	}
}

// Features renders the named fields in the given order.
func (e *UniProtEntry) Features(fields []string) annotation.Features {
	f := annotation.NewFeatures(len(fields))
	for _, name := range fields {
		f.Set(name, e.Value(name))
	}
	return f
}
