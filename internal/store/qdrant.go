package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mkoval/storecheck/internal/checksum"
)

var (
	_ Provider       = (*QdrantProvider)(nil)
	_ VectorProvider = (*QdrantProvider)(nil)
)

// QdrantOptions configures a vector-family adapter speaking the Qdrant REST API.
type QdrantOptions struct {
	Name       string
	BaseURL    string
	APIKey     string
	Collection string
	// ModelField is the payload key naming the embedding model for unnamed
	// vectors. Defaults to "embedding_model".
	ModelField string
}

// QdrantProvider retrieves points by id from a Qdrant collection. Raw float
// vectors never leave this adapter: RetrieveVector reduces them to a
// dimension and a fingerprint.
type QdrantProvider struct {
	name       string
	baseURL    string
	apiKey     string
	collection string
	modelField string
	fp         checksum.Fingerprinter
	httpClient *http.Client
}

// NewQdrantProvider creates the adapter. Like the cache adapter it does not
// probe connectivity at construction; faults surface per call.
func NewQdrantProvider(opts QdrantOptions, fp checksum.Fingerprinter) *QdrantProvider {
	modelField := opts.ModelField
	if modelField == "" {
		modelField = "embedding_model"
	}
	return &QdrantProvider{
		name:       opts.Name,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		collection: opts.Collection,
		modelField: modelField,
		fp:         fp,
		// Per-call deadlines come from the caller's context; no client-level
		// timeout on top of that.
		httpClient: &http.Client{},
	}
}

func (p *QdrantProvider) Name() string   { return p.name }
func (p *QdrantProvider) Family() Family { return FamilyVector }

// KeyFor is the identity: the record id is used verbatim as the point id.
func (p *QdrantProvider) KeyFor(id string) string { return id }

// pointsRequest mirrors the body of POST /collections/{c}/points.
type pointsRequest struct {
	IDs         []string `json:"ids"`
	WithPayload bool     `json:"with_payload"`
	WithVector  bool     `json:"with_vector"`
}

// pointsResponse mirrors the subset of the points-fetch response we read.
// Vector is either a bare array or a map of named vectors.
type pointsResponse struct {
	Result []struct {
		ID      any             `json:"id"`
		Payload map[string]any  `json:"payload"`
		Vector  json.RawMessage `json:"vector"`
	} `json:"result"`
	Status any `json:"status"`
}

func (p *QdrantProvider) FetchByKey(ctx context.Context, id string) (Snapshot, error) {
	snap := Snapshot{Store: p.name, Family: FamilyVector, NativeKey: p.KeyFor(id)}

	resp, err := p.fetchPoints(ctx, id, false)
	if err != nil {
		return snap, err
	}
	if len(resp.Result) == 0 {
		return snap, nil
	}

	snap.Found = true
	snap.Raw = resp.Result[0].Payload
	return snap, nil
}

// RetrieveVector returns the dimension and fingerprint of every embedding
// stored for the point. Named vectors report the vector name as the model;
// a single unnamed vector falls back to the payload's model field.
func (p *QdrantProvider) RetrieveVector(ctx context.Context, id string) ([]VectorInfo, error) {
	resp, err := p.fetchPoints(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if len(resp.Result) == 0 {
		return nil, nil
	}

	point := resp.Result[0]
	if len(point.Vector) == 0 {
		return nil, nil
	}

	var infos []VectorInfo

	var single []float32
	if err := json.Unmarshal(point.Vector, &single); err == nil {
		model := "default"
		if v, ok := point.Payload[p.modelField].(string); ok && v != "" {
			model = v
		}
		infos = append(infos, VectorInfo{
			Model:       model,
			Store:       p.name,
			Dimension:   len(single),
			Fingerprint: p.fp.Vector(single),
		})
		return infos, nil
	}

	var named map[string][]float32
	if err := json.Unmarshal(point.Vector, &named); err != nil {
		return nil, errMalformed(fmt.Errorf("unexpected vector shape for point %s", id))
	}
	for model, vec := range named {
		infos = append(infos, VectorInfo{
			Model:       model,
			Store:       p.name,
			Dimension:   len(vec),
			Fingerprint: p.fp.Vector(vec),
		})
	}
	return infos, nil
}

func (p *QdrantProvider) fetchPoints(ctx context.Context, id string, withVector bool) (*pointsResponse, error) {
	body, err := json.Marshal(pointsRequest{IDs: []string{id}, WithPayload: true, WithVector: withVector})
	if err != nil {
		return nil, fmt.Errorf("marshalling points request: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points", p.baseURL, p.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("api-key", p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching points: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("points fetch returned status %d", resp.StatusCode)
	}

	var out pointsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errMalformed(fmt.Errorf("decoding points response: %w", err))
	}
	return &out, nil
}

func (p *QdrantProvider) Health(ctx context.Context) Health {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/collections/%s", p.baseURL, p.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Health{OK: false, Detail: err.Error()}
	}
	if p.apiKey != "" {
		req.Header.Set("api-key", p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Health{OK: false, Detail: err.Error()}
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Health{OK: false, Detail: fmt.Sprintf("collection info returned status %d", resp.StatusCode)}
	}
	return Health{OK: true}
}
