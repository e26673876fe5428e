package retriever

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ajitpratap0/protspace/pkg/annotation"
	"github.com/ajitpratap0/protspace/pkg/clients"
	"github.com/ajitpratap0/protspace/pkg/errors"
)

// DefaultInterProURL is the InterPro matches API base.
const DefaultInterProURL = "https://www.ebi.ac.uk/interpro/matches/api"

// interproLibraries maps catalog fields to the lower-cased signature
// library names reported by the matches API.
var interproLibraries = map[string]string{
	annotation.Pfam:          "pfam",
	"superfamily":            "superfamily",
	annotation.Cath:          "cath-gene3d",
	annotation.SignalPeptide: "phobius",
	"smart":                  "smart",
	"cdd":                    "cdd",
	"panther":                "panther",
	"prosite":                "prosite patterns",
	"prints":                 "prints",
}

// SequenceDigest returns the upper-case hex MD5 of a sequence, the key the
// matches API is indexed by.
func SequenceDigest(sequence string) string {
	sum := md5.Sum([]byte(sequence))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// InterProMatch is one signature hit on a sequence.
type InterProMatch struct {
	Signature struct {
		Accession string `json:"accession"`
		Name      string `json:"name"`
		Library   struct {
			Library string `json:"library"`
		} `json:"signatureLibraryRelease"`
	} `json:"signature"`
	Score json.RawMessage `json:"score"`
}

// InterProResult holds the matches for one digest.
type InterProResult struct {
	MD5     string          `json:"md5"`
	Found   bool            `json:"found"`
	Matches []InterProMatch `json:"matches"`
}

// InterProClient looks up signature matches by sequence digest.
type InterProClient interface {
	Matches(ctx context.Context, digests []string) ([]InterProResult, error)
}

// RESTInterProClient posts digests to the InterPro matches API.
type RESTInterProClient struct {
	http    *clients.HTTPClient
	baseURL string
}

// NewRESTInterProClient creates a client for baseURL ("" means the public
// service).
func NewRESTInterProClient(http *clients.HTTPClient, baseURL string) *RESTInterProClient {
	if baseURL == "" {
		baseURL = DefaultInterProURL
	}
	return &RESTInterProClient{http: http, baseURL: strings.TrimRight(baseURL, "/")}
}

// Matches implements InterProClient.
func (c *RESTInterProClient) Matches(ctx context.Context, digests []string) ([]InterProResult, error) {
	payload, err := json.Marshal(map[string][]string{"md5": digests})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode request")
	}
	body, err := c.http.Post(ctx, c.baseURL+"/matches", payload,
		map[string]string{"Accept": "application/json"})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Results []InterProResult `json:"results"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFormat, "invalid InterPro response")
	}
	return resp.Results, nil
}

// InterProRetriever fetches signature annotations for identifiers through
// their sequences. Identifiers without a sequence are skipped.
type InterProRetriever struct {
	client    InterProClient
	fields    []string
	sequences map[string]string
	runner    BatchRunner
	logger    *zap.Logger
}

// NewInterProRetriever returns a retriever producing the given signature
// fields.
func NewInterProRetriever(client InterProClient, fields []string, batchSize int, logger *zap.Logger) *InterProRetriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "retriever"), zap.String("source", string(annotation.SourceInterPro)))
	return &InterProRetriever{
		client: client,
		fields: fields,
		logger: logger,
		runner: BatchRunner{
			Source: string(annotation.SourceInterPro),
			Size:   batchSize,
			Fields: fields,
			Logger: logger,
		},
	}
}

// WithSequences returns a copy of the retriever that reads identifier
// sequences from seqs.
func (r *InterProRetriever) WithSequences(seqs map[string]string) *InterProRetriever {
	c := *r
	c.sequences = seqs
	return &c
}

// Name implements Retriever.
func (r *InterProRetriever) Name() string { return string(annotation.SourceInterPro) }

// Fetch returns one record per identifier that has a sequence, in input
// order. Identifiers sharing a sequence receive the same features.
func (r *InterProRetriever) Fetch(ctx context.Context, keys []string) (*Result, error) {
	res := &Result{}
	digestOf := make(map[string]string, len(keys))
	idsByDigest := make(map[string][]string)
	seen := make(map[string]bool, len(keys))
	var digests []string

	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true
		seq := r.sequences[k]
		if seq == "" {
			res.Skipped = append(res.Skipped, k)
			continue
		}
		d := SequenceDigest(seq)
		digestOf[k] = d
		if _, ok := idsByDigest[d]; !ok {
			digests = append(digests, d)
		}
		idsByDigest[d] = append(idsByDigest[d], k)
	}
	if len(res.Skipped) > 0 {
		r.logger.Debug("identifiers without sequence skipped", zap.Int("count", len(res.Skipped)))
	}
	if len(digests) == 0 {
		return res, nil
	}

	byDigest, err := r.runner.Run(ctx, digests, r.fetchBatch)
	if err != nil {
		return nil, err
	}

	features := make(map[string]annotation.Features, len(byDigest.Records))
	for _, rec := range byDigest.Records {
		features[rec.Identifier] = rec.Features
	}
	for _, k := range keys {
		d, ok := digestOf[k]
		if !ok {
			continue
		}
		f, ok := features[d]
		if !ok {
			continue
		}
		delete(digestOf, k)
		res.Records = append(res.Records, annotation.NewRecord(k, f.Clone()))
	}
	for _, f := range byDigest.Failures {
		var ids []string
		for _, d := range f.Keys {
			ids = append(ids, idsByDigest[d]...)
		}
		f.Keys = ids
		res.Failures = append(res.Failures, f)
	}
	return res, nil
}

func (r *InterProRetriever) fetchBatch(ctx context.Context, digests []string) ([]annotation.Record, error) {
	results, err := r.client.Matches(ctx, digests)
	if err != nil {
		return nil, err
	}
	found := make(map[string]InterProResult, len(results))
	for _, res := range results {
		found[strings.ToUpper(res.MD5)] = res
	}

	records := make([]annotation.Record, 0, len(digests))
	for _, d := range digests {
		res, ok := found[d]
		if !ok || !res.Found {
			records = append(records, annotation.NewRecord(d, annotation.Empty(r.fields)))
			continue
		}
		records = append(records, annotation.NewRecord(d, FormatMatches(res.Matches, r.fields)))
	}
	return records, nil
}

type signatureHits struct {
	name   string
	scores []string
}

// FormatMatches renders matches per field as
// "ACC (name)|score,score;ACC2|score", sorted by accession. A name is shown
// when any hit carries one; scores are omitted when none are present.
func FormatMatches(matches []InterProMatch, fields []string) annotation.Features {
	byField := make(map[string]map[string]*signatureHits)
	for _, m := range matches {
		lib := strings.ToLower(m.Signature.Library.Library)
		acc := m.Signature.Accession
		if acc == "" {
			continue
		}
		for field, want := range interproLibraries {
			if lib != want {
				continue
			}
			hits := byField[field]
			if hits == nil {
				hits = make(map[string]*signatureHits)
				byField[field] = hits
			}
			h := hits[acc]
			if h == nil {
				h = &signatureHits{}
				hits[acc] = h
			}
			if h.name == "" {
				h.name = m.Signature.Name
			}
			if s := scoreText(m.Score); s != "" {
				h.scores = append(h.scores, s)
			}
		}
	}

	f := annotation.NewFeatures(len(fields))
	for _, field := range fields {
		hits := byField[field]
		accs := make([]string, 0, len(hits))
		for acc := range hits {
			accs = append(accs, acc)
		}
		sort.Strings(accs)

		parts := make([]string, 0, len(accs))
		for _, acc := range accs {
			h := hits[acc]
			part := acc
			if h.name != "" {
				part += " (" + h.name + ")"
			}
			if len(h.scores) > 0 {
				part += "|" + strings.Join(h.scores, ",")
			}
			parts = append(parts, part)
		}
		f.Set(field, strings.Join(parts, ";"))
	}
	return f
}

// scoreText keeps the score as the service wrote it.
func scoreText(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	return strings.Trim(s, `"`)
}
