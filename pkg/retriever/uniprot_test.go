package retriever

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajitpratap0/protspace/pkg/annotation"
	"github.com/ajitpratap0/protspace/pkg/clients"
	"github.com/ajitpratap0/protspace/pkg/errors"
)

func loadEntries(t *testing.T) []UniProtEntry {
	t.Helper()
	data, err := os.ReadFile("testdata/uniprot_entries.json")
	require.NoError(t, err)
	var resp uniprotResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	return resp.Results
}

func TestUniProtEntryValues(t *testing.T) {
	entries := loadEntries(t)
	require.Len(t, entries, 2)
	e := &entries[0]

	tests := []struct {
		field string
		want  string
	}{
		{annotation.Accession, "P12345"},
		{"uniprot_kb_id", "AATM_RABIT"},
		{"gene_name", "GOT2"},
		{"protein_name", "Aspartate aminotransferase, mitochondrial"},
		{annotation.OrganismID, "9986"},
		{annotation.Length, "401"},
		{annotation.AnnotationScore, "5"},
		{annotation.Reviewed, "True"},
		{annotation.Fragment, ""},
		{"ec", "2.6.1.1|EXP;2.6.1.7"},
		{"keyword", "Aminotransferase;Mitochondrion"},
		{annotation.SubcellularLoc, "Mitochondrion matrix|ISS;Cell membrane"},
		{annotation.ProteinFamilies, "class-I pyridoxal-phosphate-dependent aminotransferase family|IC"},
		{annotation.XrefPDB, "1AAT;2CST"},
		{annotation.GOCellular, "C:mitochondrial matrix|IDA"},
		{annotation.GOMolecular, "F:L-aspartate:2-oxoglutarate aminotransferase activity|IEA"},
		{annotation.GOBiological, "P:aspartate catabolic process"},
		{"protein_existence", "1: Evidence at protein level"},
		{"not_a_field", ""},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Value(tt.field))
		})
	}

	trembl := &entries[1]
	assert.Equal(t, "False", trembl.Value(annotation.Reviewed))
	assert.Equal(t, "single", trembl.Value(annotation.Fragment))
	assert.Equal(t, "Uncharacterized protein", trembl.Value("protein_name"))
	assert.Equal(t, "", trembl.Value("gene_name"))
	assert.True(t, e.Matches("Q00001"))
	assert.False(t, trembl.Matches("P12345"))
}

func TestNormalizeHeader(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"sp|P12345|AATM_RABIT", "P12345"},
		{"TR|Q9XYZ1|Q9XYZ1_HUMAN", "Q9XYZ1"},
		{"P12345", "P12345"},
		{"  P12345 ", "P12345"},
		{"sp|", "sp|"},
		{"custom|thing", "custom|thing"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeHeader(tt.in), tt.in)
	}
}

type fakeUniProt struct {
	entries []UniProtEntry
	failOn  map[string]bool
	calls   [][]string
}

func (f *fakeUniProt) Entries(_ context.Context, accessions []string) ([]UniProtEntry, error) {
	f.calls = append(f.calls, accessions)
	for _, a := range accessions {
		if f.failOn[a] {
			return nil, errors.New(errors.ErrorTypeConnection, "boom")
		}
	}
	return f.entries, nil
}

func TestUniProtRetrieverOrderAndPlaceholders(t *testing.T) {
	fields := []string{annotation.Accession, annotation.OrganismID, "gene_name"}
	fake := &fakeUniProt{entries: loadEntries(t), failOn: map[string]bool{"FAIL1": true}}
	r := NewUniProtRetriever(fake, fields, 2, zap.NewNop())
	assert.Equal(t, "uniprot", r.Name())

	keys := []string{"A0A000", "sp|P12345|AATM_RABIT", "MISSING", "FAIL1", "Q00001"}
	res, err := r.Fetch(context.Background(), keys)
	require.NoError(t, err)

	require.Len(t, res.Records, len(keys))
	for i, k := range keys {
		assert.Equal(t, k, res.Records[i].Identifier)
		assert.Equal(t, fields, res.Records[i].Features.Keys())
	}
	assert.Equal(t, "562", res.Records[0].Features.Value(annotation.OrganismID))
	assert.Equal(t, "GOT2", res.Records[1].Features.Value("gene_name"))
	assert.Equal(t, "", res.Records[2].Features.Value(annotation.Accession))
	assert.Equal(t, "", res.Records[3].Features.Value("gene_name"))
	assert.Equal(t, "P12345", res.Records[4].Features.Value(annotation.Accession), "secondary accession resolves")

	require.Len(t, res.Failures, 1)
	assert.Equal(t, 1, res.Failures[0].Batch)
	assert.Equal(t, []string{"MISSING", "FAIL1"}, res.Failures[0].Keys)
	assert.True(t, res.Failed("FAIL1"))
	assert.False(t, res.Failed("A0A000"))
	assert.Equal(t, 2, res.Placeholders())

	assert.Equal(t, []string{"A0A000", "P12345"}, fake.calls[0])
}

func TestUniProtRetrieverEmpty(t *testing.T) {
	r := NewUniProtRetriever(&fakeUniProt{}, nil, 0, nil)
	res, err := r.Fetch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Records)
}

func TestRESTUniProtClient(t *testing.T) {
	data, err := os.ReadFile("testdata/uniprot_entries.json")
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/uniprotkb/accessions", r.URL.Path)
		assert.Equal(t, "P12345,A0A000", r.URL.Query().Get("accessions"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	c := NewRESTUniProtClient(testHTTPClient(), srv.URL+"/")
	entries, err := c.Entries(context.Background(), []string{"P12345", "A0A000"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "P12345", entries[0].PrimaryAccession)
}

func TestRESTUniProtClientBadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := NewRESTUniProtClient(testHTTPClient(), srv.URL)
	_, err := c.Entries(context.Background(), []string{"P12345"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeFormat))
}

func testHTTPClient() *clients.HTTPClient {
	cfg := clients.DefaultHTTPConfig()
	cfg.RateLimit = 0
	cfg.MaxAttempts = 1
	cfg.InitialDelay = time.Millisecond
	cfg.EnableHTTP2 = false
	return clients.NewHTTPClient(cfg, zap.NewNop())
}
