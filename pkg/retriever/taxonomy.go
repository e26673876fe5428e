package retriever

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ajitpratap0/protspace/pkg/annotation"
	"github.com/ajitpratap0/protspace/pkg/clients"
	"github.com/ajitpratap0/protspace/pkg/errors"
)

// TaxonNode is one taxon of a lineage.
type TaxonNode struct {
	TaxonID        int    `json:"taxonId"`
	ScientificName string `json:"scientificName"`
	Rank           string `json:"rank"`
}

// Taxon is a taxon together with its ancestors.
type Taxon struct {
	TaxonNode
	Lineage []TaxonNode `json:"lineage"`
}

// rankAliases lists, per output field, the ranks that fill it in order of
// preference.
var rankAliases = map[string][]string{
	"root":   {"cellular root", "acellular root", "no rank root"},
	"domain": {"domain", "superkingdom", "realm"},
}

// Ranks returns rank name to scientific name for the taxon and all of its
// ancestors. The first occurrence of a rank wins, starting with the taxon.
func (t Taxon) Ranks() map[string]string {
	out := make(map[string]string, len(t.Lineage)+1)
	add := func(n TaxonNode) {
		rank := strings.ToLower(strings.TrimSpace(n.Rank))
		if rank == "" || n.ScientificName == "" {
			return
		}
		if _, ok := out[rank]; !ok {
			out[rank] = n.ScientificName
		}
	}
	add(t.TaxonNode)
	for _, n := range t.Lineage {
		add(n)
	}
	return out
}

// Features renders the taxon's lineage over the requested taxonomy fields.
func (t Taxon) Features(fields []string) annotation.Features {
	ranks := t.Ranks()
	f := annotation.NewFeatures(len(fields))
	for _, name := range fields {
		f.Set(name, rankValue(ranks, name))
	}
	return f
}

func rankValue(ranks map[string]string, field string) string {
	if aliases, ok := rankAliases[field]; ok {
		for _, a := range aliases {
			if v := ranks[a]; v != "" {
				return v
			}
		}
		return ""
	}
	return ranks[field]
}

// TaxonomyClient resolves taxon ids to lineages. Unknown ids are absent
// from the returned map.
type TaxonomyClient interface {
	Lineages(ctx context.Context, ids []int) (map[int]Taxon, error)
}

// RESTTaxonomyClient uses the UniProt taxonomy search endpoint.
type RESTTaxonomyClient struct {
	http    *clients.HTTPClient
	baseURL string
}

// NewRESTTaxonomyClient creates a client for baseURL ("" means the public
// UniProt service).
func NewRESTTaxonomyClient(http *clients.HTTPClient, baseURL string) *RESTTaxonomyClient {
	if baseURL == "" {
		baseURL = DefaultUniProtURL
	}
	return &RESTTaxonomyClient{http: http, baseURL: strings.TrimRight(baseURL, "/")}
}

type taxonomyResponse struct {
	Results []Taxon `json:"results"`
}

// Lineages fetches all ids with one search request.
func (c *RESTTaxonomyClient) Lineages(ctx context.Context, ids []int) (map[int]Taxon, error) {
	terms := make([]string, len(ids))
	for i, id := range ids {
		terms[i] = "tax_id:" + strconv.Itoa(id)
	}
	q := url.Values{}
	q.Set("query", strings.Join(terms, " OR "))
	q.Set("format", "json")
	q.Set("size", strconv.Itoa(len(ids)))

	body, err := c.http.Get(ctx, c.baseURL+"/taxonomy/search?"+q.Encode(),
		map[string]string{"Accept": "application/json"})
	if err != nil {
		return nil, err
	}

	var resp taxonomyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFormat, "invalid taxonomy response")
	}
	out := make(map[int]Taxon, len(resp.Results))
	for _, t := range resp.Results {
		out[t.TaxonID] = t
	}
	return out, nil
}

// TaxonomyRetriever maps organism ids to lineage ranks. Keys are decimal
// organism ids; records are keyed the same way.
type TaxonomyRetriever struct {
	client TaxonomyClient
	fields []string
	runner BatchRunner
	logger *zap.Logger
}

// NewTaxonomyRetriever returns a retriever producing the given rank fields.
func NewTaxonomyRetriever(client TaxonomyClient, fields []string, batchSize int, logger *zap.Logger) *TaxonomyRetriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "retriever"), zap.String("source", string(annotation.SourceTaxonomy)))
	return &TaxonomyRetriever{
		client: client,
		fields: fields,
		logger: logger,
		runner: BatchRunner{
			Source: string(annotation.SourceTaxonomy),
			Size:   batchSize,
			Fields: fields,
			Logger: logger,
		},
	}
}

// Name implements Retriever.
func (r *TaxonomyRetriever) Name() string { return string(annotation.SourceTaxonomy) }

// Fetch returns one record per distinct key. Ids the service does not know,
// and keys that are not integers, get empty values.
func (r *TaxonomyRetriever) Fetch(ctx context.Context, keys []string) (*Result, error) {
	unique := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		unique = append(unique, k)
	}
	if len(unique) == 0 {
		return &Result{}, nil
	}
	return r.runner.Run(ctx, unique, r.fetchBatch)
}

func (r *TaxonomyRetriever) fetchBatch(ctx context.Context, keys []string) ([]annotation.Record, error) {
	ids := make([]int, 0, len(keys))
	for _, k := range keys {
		if id, err := strconv.Atoi(k); err == nil {
			ids = append(ids, id)
		}
	}

	var taxa map[int]Taxon
	if len(ids) > 0 {
		var err error
		taxa, err = r.client.Lineages(ctx, ids)
		if err != nil {
			return nil, err
		}
	}

	records := make([]annotation.Record, 0, len(keys))
	for _, k := range keys {
		id, err := strconv.Atoi(k)
		t, ok := taxa[id]
		if err != nil || !ok {
			r.logger.Debug("taxon not found", zap.String("taxon_id", k))
			records = append(records, annotation.NewRecord(k, annotation.Empty(r.fields)))
			continue
		}
		records = append(records, annotation.NewRecord(k, t.Features(r.fields)))
	}
	return records, nil
}
