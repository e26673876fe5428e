package retriever

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/protspace/pkg/annotation"
	"github.com/ajitpratap0/protspace/pkg/errors"
)

const humanTaxonomy = `{"results":[{
  "taxonId": 9606, "scientificName": "Homo sapiens", "rank": "species",
  "lineage": [
    {"taxonId": 9605, "scientificName": "Homo", "rank": "genus"},
    {"taxonId": 9604, "scientificName": "Hominidae", "rank": "family"},
    {"taxonId": 9443, "scientificName": "Primates", "rank": "order"},
    {"taxonId": 40674, "scientificName": "Mammalia", "rank": "class"},
    {"taxonId": 7711, "scientificName": "Chordata", "rank": "phylum"},
    {"taxonId": 33208, "scientificName": "Metazoa", "rank": "kingdom"},
    {"taxonId": 2759, "scientificName": "Eukaryota", "rank": "superkingdom"},
    {"taxonId": 131567, "scientificName": "cellular organisms", "rank": "cellular root"}
  ]}]}`

func TestTaxonFeatures(t *testing.T) {
	taxon := Taxon{
		TaxonNode: TaxonNode{TaxonID: 83333, ScientificName: "Escherichia coli K-12", Rank: "strain"},
		Lineage: []TaxonNode{
			{ScientificName: "Escherichia coli", Rank: "species"},
			{ScientificName: "Escherichia", Rank: "genus"},
			{ScientificName: "Bacteria", Rank: "domain"},
			{ScientificName: "Pseudomonadati", Rank: "kingdom"},
		},
	}
	f := taxon.Features(annotation.TaxonomyFields)
	assert.Equal(t, annotation.TaxonomyFields, f.Keys())
	assert.Equal(t, "Escherichia coli", f.Value("species"))
	assert.Equal(t, "Escherichia", f.Value("genus"))
	assert.Equal(t, "Bacteria", f.Value("domain"))
	assert.Equal(t, "", f.Value("root"))
	assert.Equal(t, "", f.Value("phylum"))

	virus := Taxon{Lineage: []TaxonNode{{ScientificName: "Riboviria", Rank: "realm"}, {ScientificName: "Viruses", Rank: "acellular root"}}}
	vf := virus.Features([]string{"root", "domain"})
	assert.Equal(t, "Viruses", vf.Value("root"))
	assert.Equal(t, "Riboviria", vf.Value("domain"))
}

type fakeTaxonomy struct {
	taxa map[int]Taxon
	err  error
	ids  [][]int
}

func (f *fakeTaxonomy) Lineages(_ context.Context, ids []int) (map[int]Taxon, error) {
	f.ids = append(f.ids, ids)
	if f.err != nil {
		return nil, f.err
	}
	return f.taxa, nil
}

func TestTaxonomyRetriever(t *testing.T) {
	fake := &fakeTaxonomy{taxa: map[int]Taxon{
		9606: {TaxonNode: TaxonNode{TaxonID: 9606, ScientificName: "Homo sapiens", Rank: "species"}},
	}}
	r := NewTaxonomyRetriever(fake, []string{"species", "genus"}, 10, nil)
	assert.Equal(t, "taxonomy", r.Name())

	res, err := r.Fetch(context.Background(), []string{"9606", "9606", "1", "bogus", ""})
	require.NoError(t, err)
	require.Len(t, res.Records, 3)
	assert.Equal(t, "9606", res.Records[0].Identifier)
	assert.Equal(t, "Homo sapiens", res.Records[0].Features.Value("species"))
	assert.Equal(t, "1", res.Records[1].Identifier)
	assert.True(t, res.Records[1].Features.Has("species"))
	assert.Equal(t, "", res.Records[2].Features.Value("genus"))
	assert.Empty(t, res.Failures)
	assert.Equal(t, [][]int{{9606, 1}}, fake.ids)
}

func TestTaxonomyRetrieverBatchFailure(t *testing.T) {
	fake := &fakeTaxonomy{err: errors.New(errors.ErrorTypeTimeout, "slow")}
	r := NewTaxonomyRetriever(fake, []string{"species"}, 1, nil)

	res, err := r.Fetch(context.Background(), []string{"9606", "10090"})
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	require.Len(t, res.Failures, 2)
	assert.Contains(t, res.Failures[1].Error(), "taxonomy batch 1")
}

func TestRESTTaxonomyClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/taxonomy/search", r.URL.Path)
		assert.Equal(t, "tax_id:9606 OR tax_id:10090", r.URL.Query().Get("query"))
		_, _ = w.Write([]byte(humanTaxonomy))
	}))
	defer srv.Close()

	c := NewRESTTaxonomyClient(testHTTPClient(), srv.URL)
	taxa, err := c.Lineages(context.Background(), []int{9606, 10090})
	require.NoError(t, err)
	require.Contains(t, taxa, 9606)
	assert.NotContains(t, taxa, 10090)

	f := taxa[9606].Features(annotation.TaxonomyFields)
	assert.Equal(t, "cellular organisms", f.Value("root"))
	assert.Equal(t, "Eukaryota", f.Value("domain"))
	assert.Equal(t, "Metazoa", f.Value("kingdom"))
	assert.Equal(t, "Chordata", f.Value("phylum"))
	assert.Equal(t, "Mammalia", f.Value("class"))
	assert.Equal(t, "Primates", f.Value("order"))
	assert.Equal(t, "Hominidae", f.Value("family"))
	assert.Equal(t, "Homo", f.Value("genus"))
	assert.Equal(t, "Homo sapiens", f.Value("species"))
}
