// Package qdrant is a minimal REST client to a Qdrant collection.
// It assumes cosine distance and keeps the record id in the payload, since
// Qdrant only accepts integer or UUID point ids.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/vectorstore"
	"github.com/google/uuid"
)

var errCollectionMissing = errors.New("qdrant collection does not exist")

// Config selects the Qdrant instance and collection
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Dimension  int
	Timeout    time.Duration
}

// Store implements vectorstore.Store against Qdrant's REST API
type Store struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client
}

// NewStore creates a store. Call EnsureCollection before first use.
func NewStore(cfg Config) *Store {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Store{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		client:     &http.Client{Timeout: timeout},
	}
}

// PointID maps a record id to the UUID Qdrant stores it under.
func PointID(recordID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(recordID)).String()
}

type payload struct {
	RecordID string `json:"record_id"`
	vectorstore.Metadata
}

type fieldMatch struct {
	Key   string `json:"key"`
	Match struct {
		Value string `json:"value"`
	} `json:"match"`
}

type filter struct {
	Must []fieldMatch `json:"must"`
}

func toFilter(f vectorstore.Filter) *filter {
	if len(f) == 0 {
		return nil
	}
	out := &filter{}
	for k, v := range f {
		m := fieldMatch{Key: k}
		m.Match.Value = v
		out.Must = append(out.Must, m)
	}
	return out
}

// EnsureCollection creates the collection with the configured size if it is missing.
func (s *Store) EnsureCollection(ctx context.Context) error {
	size, err := s.collectionSize(ctx)
	if err == nil {
		if size != 0 && size != s.dimension {
			return domain.Wrap(domain.ErrDimensionMismatch,
				fmt.Errorf("collection %s has size %d, configured %d", s.collection, size, s.dimension))
		}
		return nil
	}
	if !errors.Is(err, errCollectionMissing) {
		return err
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     s.dimension,
			"distance": "Cosine",
		},
	}
	if err := s.do(ctx, http.MethodPut, s.collectionPath(""), body, nil); err != nil {
		return err
	}
	// Deletes by owner filter on entry_id.
	index := map[string]any{"field_name": "entry_id", "field_schema": "keyword"}
	return s.do(ctx, http.MethodPut, s.collectionPath("/index?wait=true"), index, nil)
}

func (s *Store) collectionSize(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodGet, s.collectionPath(""), nil, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Config.Params.Vectors.Size, nil
}

func (s *Store) Upsert(ctx context.Context, items []vectorstore.Item) error {
	if len(items) == 0 {
		return nil
	}
	if err := vectorstore.CheckItems(items, s.dimension); err != nil {
		return err
	}

	points := make([]map[string]any, len(items))
	for i, it := range items {
		points[i] = map[string]any{
			"id":      PointID(it.ID),
			"vector":  it.Vector,
			"payload": payload{RecordID: it.ID, Metadata: it.Metadata},
		}
	}
	return s.do(ctx, http.MethodPut, s.collectionPath("/points?wait=true"), map[string]any{"points": points}, nil)
}

func (s *Store) Query(ctx context.Context, vector []float32, topK int, f vectorstore.Filter) ([]vectorstore.Match, error) {
	if err := vectorstore.CheckVector(vector, s.dimension); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 5
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	if qf := toFilter(f); qf != nil {
		req["filter"] = qf
	}

	var resp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload payload `json:"payload"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionPath("/points/search"), req, &resp); err != nil {
		return nil, err
	}

	matches := make([]vectorstore.Match, 0, len(resp.Result))
	for _, r := range resp.Result {
		matches = append(matches, vectorstore.Match{
			ID:       r.Payload.RecordID,
			Score:    r.Score,
			Metadata: r.Payload.Metadata,
		})
	}
	vectorstore.SortMatches(matches)
	return matches, nil
}

func (s *Store) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	points := make([]string, len(ids))
	for i, id := range ids {
		points[i] = PointID(id)
	}
	return s.do(ctx, http.MethodPost, s.collectionPath("/points/delete?wait=true"), map[string]any{"points": points}, nil)
}

func (s *Store) DeleteByOwner(ctx context.Context, entryID string) error {
	body := map[string]any{"filter": toFilter(vectorstore.Filter{"entry_id": entryID})}
	return s.do(ctx, http.MethodPost, s.collectionPath("/points/delete?wait=true"), body, nil)
}

// HealthCheck reads the collection info
func (s *Store) HealthCheck(ctx context.Context) error {
	_, err := s.collectionSize(ctx)
	return err
}

func (s *Store) Dimension() int {
	return s.dimension
}

func (s *Store) collectionPath(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

func (s *Store) do(ctx context.Context, method, url string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.Wrap(domain.ErrVectorStoreFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && method == http.MethodGet {
		return errCollectionMissing
	}
	if resp.StatusCode >= 300 {
		// Keep upstream bodies out of the error; they can be large.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		return domain.Wrap(domain.ErrVectorStoreFailure, fmt.Errorf("qdrant %s %s failed: %s", method, req.URL.Path, resp.Status))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
