package pipeline

import (
	"context"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajitpratap0/protspace/pkg/annotation"
	"github.com/ajitpratap0/protspace/pkg/cache"
	"github.com/ajitpratap0/protspace/pkg/config"
	"github.com/ajitpratap0/protspace/pkg/errors"
	"github.com/ajitpratap0/protspace/pkg/retriever"
	"github.com/ajitpratap0/protspace/pkg/transform"
)

const entriesJSON = `[
  {
    "entryType": "UniProtKB reviewed (Swiss-Prot)",
    "primaryAccession": "P12345",
    "uniProtkbId": "AATM_RABIT",
    "organism": {"taxonId": 9986},
    "proteinDescription": {
      "recommendedName": {
        "fullName": {"value": "Aspartate aminotransferase"},
        "ecNumbers": [{"value": "2.6.1.1", "evidences": [{"evidenceCode": "ECO:0000269"}]}]
      },
      "alternativeNames": [{"ecNumbers": [{"value": "2.6.1.7"}]}]
    },
    "genes": [{"geneName": {"value": "GOT2"}}],
    "keywords": [{"id": "KW-0032", "name": "Aminotransferase"}],
    "sequence": {"value": "MALLHSARVLSG", "length": 12}
  },
  {
    "entryType": "UniProtKB unreviewed (TrEMBL)",
    "primaryAccession": "A0A000",
    "uniProtkbId": "A0A000_ECOLX",
    "organism": {"taxonId": 562},
    "sequence": {"value": "MKV", "length": 3}
  }
]`

type fakeUniProt struct {
	entries []retriever.UniProtEntry
	calls   int
	err     error
}

func newFakeUniProt(t *testing.T) *fakeUniProt {
	t.Helper()
	var entries []retriever.UniProtEntry
	require.NoError(t, json.Unmarshal([]byte(entriesJSON), &entries))
	return &fakeUniProt{entries: entries}
}

func (f *fakeUniProt) Entries(_ context.Context, accessions []string) ([]retriever.UniProtEntry, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []retriever.UniProtEntry
	for _, e := range f.entries {
		for _, a := range accessions {
			if e.Matches(a) {
				out = append(out, e)
				break
			}
		}
	}
	return out, nil
}

type fakeTaxonomy struct {
	taxa  map[int]retriever.Taxon
	calls int
	err   error
}

func (f *fakeTaxonomy) Lineages(_ context.Context, ids []int) (map[int]retriever.Taxon, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[int]retriever.Taxon)
	for _, id := range ids {
		if t, ok := f.taxa[id]; ok {
			out[id] = t
		}
	}
	return out, nil
}

type fakeInterPro struct {
	results map[string]retriever.InterProResult
	calls   int
	err     error
}

func (f *fakeInterPro) Matches(_ context.Context, digests []string) ([]retriever.InterProResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []retriever.InterProResult
	for _, d := range digests {
		if r, ok := f.results[d]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func rabbit() retriever.Taxon {
	var t retriever.Taxon
	t.TaxonID = 9986
	t.ScientificName = "Oryctolagus cuniculus"
	t.Rank = "species"
	t.Lineage = []retriever.TaxonNode{
		{TaxonID: 9984, ScientificName: "Oryctolagus", Rank: "genus"},
		{TaxonID: 2759, ScientificName: "Eukaryota", Rank: "superkingdom"},
	}
	return t
}

func pfamResult(seq string) retriever.InterProResult {
	var m retriever.InterProMatch
	m.Signature.Accession = "PF00155"
	m.Signature.Name = "Aminotran_1_2"
	m.Signature.Library.Library = "PFAM"
	m.Score = json.RawMessage("12.5")
	return retriever.InterProResult{MD5: retriever.SequenceDigest(seq), Found: true, Matches: []retriever.InterProMatch{m}}
}

type fixture struct {
	uniprot  *fakeUniProt
	taxonomy *fakeTaxonomy
	interpro *fakeInterPro
}

func newFixture(t *testing.T) *fixture {
	return &fixture{
		uniprot:  newFakeUniProt(t),
		taxonomy: &fakeTaxonomy{taxa: map[int]retriever.Taxon{9986: rabbit()}},
		interpro: &fakeInterPro{results: map[string]retriever.InterProResult{
			retriever.SequenceDigest("MALLHSARVLSG"): pfamResult("MALLHSARVLSG"),
		}},
	}
}

func (f *fixture) job(t *testing.T, cfg *config.Config, store *cache.Store) *Job {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	job, err := NewJob(cfg, Clients{UniProt: f.uniprot, Taxonomy: f.taxonomy, InterPro: f.interpro}, store, zap.NewNop())
	require.NoError(t, err)
	return job
}

func byID(t *testing.T, records []annotation.Record, id string) annotation.Record {
	t.Helper()
	for _, r := range records {
		if r.Identifier == id {
			return r
		}
	}
	t.Fatalf("no record for %s", id)
	return annotation.Record{}
}

func TestJobRunDefaults(t *testing.T) {
	f := newFixture(t)
	job := f.job(t, nil, nil)

	res, err := job.Run(context.Background(), Request{
		Identifiers: []string{"sp|P12345|AATM_RABIT", "A0A000", "Q99999", "A0A000"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		annotation.IdentifierColumn,
		"ec", "keyword", annotation.LengthQuantile, annotation.ProteinFamilies, annotation.Reviewed,
		"gene_name", "protein_name", "uniprot_kb_id",
	}, res.Columns)
	require.Len(t, res.Records, 3)
	assert.Equal(t, "sp|P12345|AATM_RABIT", res.Records[0].Identifier)
	assert.Equal(t, "A0A000", res.Records[1].Identifier)
	assert.Equal(t, "Q99999", res.Records[2].Identifier)

	p := res.Records[0].Features
	assert.Equal(t, transform.SwissProt, p.Value(annotation.Reviewed))
	assert.Equal(t, "2.6.1.1|EXP;2.6.1.7", p.Value("ec"))
	assert.Equal(t, "Aminotransferase", p.Value("keyword"))
	assert.NotEmpty(t, p.Value(annotation.LengthQuantile))
	assert.False(t, p.Has(annotation.Length))

	assert.Equal(t, transform.TrEMBL, res.Records[1].Features.Value(annotation.Reviewed))
	assert.Equal(t, "", res.Records[2].Features.Value("ec"))

	assert.Equal(t, 0, f.taxonomy.calls)
	assert.Equal(t, 0, f.interpro.calls)

	rep := res.Report
	assert.NotEmpty(t, rep.JobID)
	assert.Equal(t, 3, rep.Identifiers)
	assert.Equal(t, 3, rep.Records)
	assert.False(t, rep.Degraded())
	assert.Equal(t, 3, rep.Sources[annotation.SourceUniProt].Requested)
	assert.Equal(t, 3, rep.Sources[annotation.SourceUniProt].Fetched)
	assert.Contains(t, rep.Stages, StageUniProt)
	assert.Contains(t, rep.Stages, StageTransform)
	assert.NotContains(t, rep.Stages, StageTaxonomy)
}

func TestJobRunAllSources(t *testing.T) {
	f := newFixture(t)
	job := f.job(t, nil, nil)

	res, err := job.Run(context.Background(), Request{
		Identifiers: []string{"P12345", "A0A000", "Q99999"},
		Annotations: []string{"reviewed", "genus", "domain", "pfam"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		annotation.IdentifierColumn, "reviewed", "genus", "domain", "pfam",
		"gene_name", "protein_name", "uniprot_kb_id",
	}, res.Columns)
	assert.NotContains(t, res.Columns, annotation.Sequence)
	assert.NotContains(t, res.Columns, annotation.OrganismID)

	p := byID(t, res.Records, "P12345").Features
	assert.Equal(t, "Oryctolagus", p.Value("genus"))
	assert.Equal(t, "Eukaryota", p.Value("domain"))
	assert.Equal(t, "PF00155 (Aminotran_1_2)|12.5", p.Value("pfam"))

	a := byID(t, res.Records, "A0A000").Features
	genus, ok := a.Get("genus")
	assert.True(t, ok)
	assert.Equal(t, "", genus)
	pfam, ok := a.Get("pfam")
	assert.True(t, ok)
	assert.Equal(t, "", pfam)

	q := byID(t, res.Records, "Q99999").Features
	assert.False(t, q.Has("pfam"))

	rep := res.Report
	assert.Equal(t, []string{"Q99999"}, rep.Sources[annotation.SourceInterPro].Skipped)
	assert.Equal(t, 2, rep.Sources[annotation.SourceTaxonomy].Requested)
	assert.Equal(t, 1, f.taxonomy.calls)
	assert.Equal(t, 1, f.interpro.calls)
}

func TestJobRunUnknownAnnotation(t *testing.T) {
	f := newFixture(t)
	job := f.job(t, nil, nil)

	_, err := job.Run(context.Background(), Request{
		Identifiers: []string{"P12345"},
		Annotations: []string{"reviewed", "no_such_annotation"},
	})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	assert.True(t, errors.Is(err, annotation.ErrUnknownAnnotation))
	assert.Equal(t, 0, f.uniprot.calls)
}

func TestJobRunSecondaryFailure(t *testing.T) {
	f := newFixture(t)
	f.taxonomy.err = errors.New(errors.ErrorTypeConnection, "taxonomy unavailable")
	job := f.job(t, nil, nil)

	res, err := job.Run(context.Background(), Request{
		Identifiers: []string{"P12345", "A0A000"},
		Annotations: []string{"genus", "reviewed"},
	})
	require.NoError(t, err)

	assert.True(t, res.Report.Degraded())
	failures := res.Report.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, string(annotation.SourceTaxonomy), failures[0].Source)
	assert.ElementsMatch(t, []string{"9986", "562"}, failures[0].Keys)

	genus, ok := byID(t, res.Records, "P12345").Features.Get("genus")
	assert.True(t, ok)
	assert.Equal(t, "", genus)
	assert.Equal(t, transform.SwissProt, byID(t, res.Records, "P12345").Features.Value("reviewed"))
}

func TestJobRunPrimaryFailureKeepsPlaceholders(t *testing.T) {
	f := newFixture(t)
	f.uniprot.err = errors.New(errors.ErrorTypeTimeout, "uniprot timed out")
	job := f.job(t, nil, nil)

	res, err := job.Run(context.Background(), Request{
		Identifiers: []string{"P12345"},
		Annotations: []string{"reviewed"},
	})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.True(t, res.Report.Degraded())
	assert.Equal(t, 1, res.Report.Sources[annotation.SourceUniProt].Placeholders())
}

func TestJobRunNoScores(t *testing.T) {
	f := newFixture(t)
	cfg := config.Default()
	cfg.Annotations.NoScores = true
	job := f.job(t, cfg, nil)

	res, err := job.Run(context.Background(), Request{
		Identifiers: []string{"P12345"},
		Annotations: []string{"ec", "pfam"},
	})
	require.NoError(t, err)
	p := res.Records[0].Features
	assert.Equal(t, "2.6.1.1;2.6.1.7", p.Value("ec"))
	assert.Equal(t, "PF00155 (Aminotran_1_2)", p.Value("pfam"))
}

func TestJobRunUsesCache(t *testing.T) {
	ctx := context.Background()
	store, err := cache.Open(ctx, cache.DriverSQLite, ":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := newFixture(t)
	f.interpro.err = errors.New(errors.ErrorTypeConnection, "interpro unavailable")
	job := f.job(t, nil, store)
	req := Request{
		Identifiers: []string{"P12345", "A0A000"},
		Annotations: []string{"reviewed", "genus", "pfam"},
	}

	first, err := job.Run(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 0, first.Report.Sources[annotation.SourceUniProt].Cached)
	assert.True(t, first.Report.Degraded())

	f.interpro.err = nil
	second, err := job.Run(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, 1, f.uniprot.calls)
	assert.Equal(t, 1, f.taxonomy.calls)
	assert.Equal(t, 2, second.Report.Sources[annotation.SourceUniProt].Cached)
	assert.Equal(t, 2, second.Report.Sources[annotation.SourceTaxonomy].Cached)
	assert.Equal(t, 0, second.Report.Sources[annotation.SourceInterPro].Cached)
	assert.Equal(t, 2, f.interpro.calls)
	assert.False(t, second.Report.Degraded())
	assert.Equal(t, "PF00155 (Aminotran_1_2)|12.5", byID(t, second.Records, "P12345").Features.Value("pfam"))
}

func TestJobRunCancelled(t *testing.T) {
	f := newFixture(t)
	job := f.job(t, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := job.Run(ctx, Request{Identifiers: []string{"P12345"}, Annotations: []string{"reviewed"}})
	require.Error(t, err)
}

func TestNewJobRequiresUniProt(t *testing.T) {
	_, err := NewJob(config.Default(), Clients{}, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestAvailableFields(t *testing.T) {
	records := []annotation.Record{
		annotation.NewRecord("a", annotation.FromPairs(annotation.Pair{Name: "x", Value: "1"})),
		annotation.NewRecord("b", annotation.FromPairs(
			annotation.Pair{Name: "y", Value: ""},
			annotation.Pair{Name: "x", Value: "2"},
		)),
	}
	assert.Equal(t, []string{"x", "y"}, availableFields(records))
	assert.Empty(t, availableFields(nil))
}
