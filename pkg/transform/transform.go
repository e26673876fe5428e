// Package transform normalises merged annotation records field by field and
// dispatches length binning.
package transform

import (
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/protspace/pkg/annotation"
	"github.com/ajitpratap0/protspace/pkg/binning"
)

// DefaultRules is the closed set of per-field rules.
var DefaultRules = map[string]Rule{
	annotation.Reviewed:        Reviewed,
	annotation.AnnotationScore: AnnotationScore,
	annotation.ProteinFamilies: ProteinFamilies,
	annotation.XrefPDB:         Presence,
	annotation.Fragment:        Fragment,
	annotation.SubcellularLoc:  PassThrough,
	annotation.Pfam:            PassThrough,
	annotation.Cath:            Cath,
	annotation.SignalPeptide:   SignalPeptide,
	annotation.GOBiological:    GOTerms,
	annotation.GOCellular:      GOTerms,
	annotation.GOMolecular:     GOTerms,
}

// ScoreBearingFields may carry a "|score" or "|evidence" suffix per entry.
var ScoreBearingFields = []string{
	"ec",
	annotation.SubcellularLoc,
	annotation.ProteinFamilies,
	annotation.GOBiological,
	annotation.GOMolecular,
	annotation.GOCellular,
	annotation.Pfam,
	"superfamily",
	annotation.Cath,
	annotation.SignalPeptide,
	"smart",
	"cdd",
	"panther",
	"prosite",
	"prints",
}

// Transformer applies rules to records.
type Transformer struct {
	rules  map[string]Rule
	binner *binning.Binner
	logger *zap.Logger
}

// New creates a transformer with DefaultRules. A nil binner uses the default
// partition and bucket count.
func New(binner *binning.Binner, logger *zap.Logger) *Transformer {
	if binner == nil {
		binner = binning.DefaultBinner()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transformer{
		rules:  DefaultRules,
		binner: binner,
		logger: logger.With(zap.String("component", "transformer")),
	}
}

// Transform returns normalised copies of records. When applyBinning is set
// and the first record carries a raw length, length categories are added
// and the raw length is removed from every record. Rules only touch fields
// that are present.
func (t *Transformer) Transform(records []annotation.Record, applyBinning bool) []annotation.Record {
	if applyBinning && len(records) > 0 && records[0].Features.Has(annotation.Length) {
		records = t.binner.AddBins(records)
		t.logger.Debug("length bins added",
			zap.Int("records", len(records)),
			zap.Int("quantile_bins", t.binner.QuantileBins()))
	}

	out := make([]annotation.Record, len(records))
	for i, r := range records {
		out[i] = t.TransformRecord(r)
	}
	return out
}

// TransformRecord applies the rules to a copy of r.
func (t *Transformer) TransformRecord(r annotation.Record) annotation.Record {
	c := r.Clone()
	for _, name := range c.Features.Keys() {
		rule, ok := t.rules[name]
		if !ok {
			continue
		}
		c.Features.Set(name, rule(c.Features.Value(name)))
	}
	return c
}

// StripScores returns copies of records with the "|score" suffix removed
// from every semicolon separated entry of the score-bearing fields.
func StripScores(records []annotation.Record) []annotation.Record {
	out := make([]annotation.Record, len(records))
	for i, r := range records {
		c := r.Clone()
		for _, name := range ScoreBearingFields {
			v, ok := c.Features.Get(name)
			if !ok || v == "" {
				continue
			}
			c.Features.Set(name, stripScores(v))
		}
		out[i] = c
	}
	return out
}

func stripScores(value string) string {
	parts := strings.Split(value, ";")
	for i, p := range parts {
		if j := strings.Index(p, "|"); j >= 0 {
			parts[i] = p[:j]
		}
	}
	return strings.Join(parts, ";")
}
