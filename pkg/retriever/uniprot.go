package retriever

import (
	"context"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ajitpratap0/protspace/pkg/annotation"
	"github.com/ajitpratap0/protspace/pkg/clients"
	"github.com/ajitpratap0/protspace/pkg/errors"
)

// DefaultUniProtURL is the UniProtKB REST base.
const DefaultUniProtURL = "https://rest.uniprot.org"

// UniProtClient loads UniProtKB entries by accession.
type UniProtClient interface {
	Entries(ctx context.Context, accessions []string) ([]UniProtEntry, error)
}

// RESTUniProtClient queries the UniProtKB "accessions" endpoint.
type RESTUniProtClient struct {
	http    *clients.HTTPClient
	baseURL string
}

// NewRESTUniProtClient creates a client for baseURL ("" means the public
// service).
func NewRESTUniProtClient(http *clients.HTTPClient, baseURL string) *RESTUniProtClient {
	if baseURL == "" {
		baseURL = DefaultUniProtURL
	}
	return &RESTUniProtClient{http: http, baseURL: strings.TrimRight(baseURL, "/")}
}

type uniprotResponse struct {
	Results []UniProtEntry `json:"results"`
}

// Entries fetches the entries for accessions in one request.
func (c *RESTUniProtClient) Entries(ctx context.Context, accessions []string) ([]UniProtEntry, error) {
	q := url.Values{}
	q.Set("accessions", strings.Join(accessions, ","))
	q.Set("format", "json")
	q.Set("size", "500")

	body, err := c.http.Get(ctx, c.baseURL+"/uniprotkb/accessions?"+q.Encode(),
		map[string]string{"Accept": "application/json"})
	if err != nil {
		return nil, err
	}

	var resp uniprotResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFormat, "invalid UniProt response")
	}
	return resp.Results, nil
}

// UniProtRetriever is the primary source. Its records are keyed by the
// identifiers as given, while the service is queried with the accession
// extracted from each identifier.
type UniProtRetriever struct {
	client UniProtClient
	fields []string
	runner BatchRunner
	logger *zap.Logger
}

// NewUniProtRetriever returns a retriever producing the given fields.
func NewUniProtRetriever(client UniProtClient, fields []string, batchSize int, logger *zap.Logger) *UniProtRetriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "retriever"), zap.String("source", string(annotation.SourceUniProt)))
	return &UniProtRetriever{
		client: client,
		fields: fields,
		logger: logger,
		runner: BatchRunner{
			Source: string(annotation.SourceUniProt),
			Size:   batchSize,
			Fields: fields,
			Logger: logger,
		},
	}
}

// Name implements Retriever.
func (r *UniProtRetriever) Name() string { return string(annotation.SourceUniProt) }

// Fetch returns one record per key in input order. Accessions the service
// did not return get empty values for every field.
func (r *UniProtRetriever) Fetch(ctx context.Context, keys []string) (*Result, error) {
	if len(keys) == 0 {
		return &Result{}, nil
	}
	return r.runner.Run(ctx, keys, r.fetchBatch)
}

func (r *UniProtRetriever) fetchBatch(ctx context.Context, keys []string) ([]annotation.Record, error) {
	accessions := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		acc := NormalizeHeader(k)
		if acc == "" || seen[acc] {
			continue
		}
		seen[acc] = true
		accessions = append(accessions, acc)
	}

	entries, err := r.client.Entries(ctx, accessions)
	if err != nil {
		return nil, err
	}

	byAccession := make(map[string]*UniProtEntry, len(entries))
	for i := range entries {
		byAccession[entries[i].PrimaryAccession] = &entries[i]
	}

	records := make([]annotation.Record, 0, len(keys))
	for _, k := range keys {
		acc := NormalizeHeader(k)
		entry := byAccession[acc]
		if entry == nil {
			entry = findSecondary(entries, acc)
		}
		if entry == nil {
			r.logger.Debug("accession not returned", zap.String("accession", acc))
			records = append(records, annotation.NewRecord(k, annotation.Empty(r.fields)))
			continue
		}
		records = append(records, annotation.NewRecord(k, entry.Features(r.fields)))
	}
	return records, nil
}

func findSecondary(entries []UniProtEntry, accession string) *UniProtEntry {
	for i := range entries {
		if entries[i].Matches(accession) {
			return &entries[i]
		}
	}
	return nil
}
