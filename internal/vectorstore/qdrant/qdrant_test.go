package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method string
	path   string
	body   map[string]any
	apiKey string
}

func newTestServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.Path, apiKey: r.Header.Get("api-key")}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&rec.body)
		}
		calls = append(calls, rec)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"result":{"config":{"params":{"vectors":{"size":2}}}},"status":"ok"}`))
}

func TestPointID_IsStableUUID(t *testing.T) {
	a := PointID("entry_e1_chunk_c1")
	assert.Equal(t, a, PointID("entry_e1_chunk_c1"))
	assert.NotEqual(t, a, PointID("entry_e1_chunk_c2"))
	assert.Len(t, a, 36)
}

func TestStore_UpsertSendsPayload(t *testing.T) {
	srv, calls := newTestServer(t, okHandler)
	s := NewStore(Config{URL: srv.URL, APIKey: "secret", Collection: "kb", Dimension: 2})

	err := s.Upsert(context.Background(), []vectorstore.Item{{
		ID:       "entry_e1_chunk_c1",
		Vector:   []float32{0.6, 0.8},
		Metadata: vectorstore.Metadata{EntryID: "e1", ChunkID: "c1", Title: "Refunds"},
	}})

	require.NoError(t, err)
	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, http.MethodPut, call.method)
	assert.Equal(t, "/collections/kb/points", call.path)
	assert.Equal(t, "secret", call.apiKey)

	points := call.body["points"].([]any)
	point := points[0].(map[string]any)
	assert.Equal(t, PointID("entry_e1_chunk_c1"), point["id"])
	p := point["payload"].(map[string]any)
	assert.Equal(t, "entry_e1_chunk_c1", p["record_id"])
	assert.Equal(t, "e1", p["entry_id"])
}

func TestStore_UpsertRejectsWrongDimension(t *testing.T) {
	srv, calls := newTestServer(t, okHandler)
	s := NewStore(Config{URL: srv.URL, Collection: "kb", Dimension: 3})

	err := s.Upsert(context.Background(), []vectorstore.Item{{ID: "a", Vector: []float32{1, 0}}})

	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	assert.Empty(t, *calls)
}

func TestStore_QueryMapsResults(t *testing.T) {
	srv, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":[
			{"id":"u2","score":0.5,"payload":{"record_id":"b","entry_id":"e2","title":"B"}},
			{"id":"u1","score":0.5,"payload":{"record_id":"a","entry_id":"e1","title":"A","source_url":"https://docs.example.com/a"}},
			{"id":"u3","score":0.9,"payload":{"record_id":"c","entry_id":"e3","chunk_index":2}}
		]}`))
	})
	s := NewStore(Config{URL: srv.URL, Collection: "kb", Dimension: 2})

	matches, err := s.Query(context.Background(), []float32{1, 0}, 3, vectorstore.Filter{"category": "billing"})

	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, "c", matches[0].ID)
	assert.Equal(t, 2, matches[0].Metadata.ChunkIndex)
	assert.Equal(t, "a", matches[1].ID)
	assert.Equal(t, "https://docs.example.com/a", matches[1].Metadata.SourceURL)
	assert.Equal(t, "b", matches[2].ID)

	body := (*calls)[0].body
	assert.Equal(t, float64(3), body["limit"])
	must := body["filter"].(map[string]any)["must"].([]any)
	assert.Equal(t, "category", must[0].(map[string]any)["key"])
}

func TestStore_DeleteByOwnerUsesPayloadFilter(t *testing.T) {
	srv, calls := newTestServer(t, okHandler)
	s := NewStore(Config{URL: srv.URL, Collection: "kb", Dimension: 2})

	require.NoError(t, s.DeleteByOwner(context.Background(), "e1"))

	call := (*calls)[0]
	assert.Equal(t, "/collections/kb/points/delete", call.path)
	must := call.body["filter"].(map[string]any)["must"].([]any)
	cond := must[0].(map[string]any)
	assert.Equal(t, "entry_id", cond["key"])
	assert.Equal(t, "e1", cond["match"].(map[string]any)["value"])
}

func TestStore_HealthCheck(t *testing.T) {
	srv, calls := newTestServer(t, okHandler)
	s := NewStore(Config{URL: srv.URL, Collection: "kb", Dimension: 2})

	require.NoError(t, s.HealthCheck(context.Background()))
	assert.Equal(t, http.MethodGet, (*calls)[0].method)
}

func TestStore_ErrorStatusIsWrapped(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"status":{"error":"internal details"}}`))
	})
	s := NewStore(Config{URL: srv.URL, Collection: "kb", Dimension: 2})

	err := s.Delete(context.Background(), []string{"a"})

	require.ErrorIs(t, err, domain.ErrVectorStoreFailure)
	assert.NotContains(t, err.Error(), "internal details")
}

func TestStore_EnsureCollectionCreatesMissing(t *testing.T) {
	srv, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"result":true}`))
	})
	s := NewStore(Config{URL: srv.URL, Collection: "kb", Dimension: 768})

	require.NoError(t, s.EnsureCollection(context.Background()))

	require.Len(t, *calls, 3)
	create := (*calls)[1]
	assert.Equal(t, http.MethodPut, create.method)
	vectors := create.body["vectors"].(map[string]any)
	assert.Equal(t, float64(768), vectors["size"])
	assert.Equal(t, "/collections/kb/index", (*calls)[2].path)
}

func TestStore_EnsureCollectionDetectsSizeMismatch(t *testing.T) {
	srv, _ := newTestServer(t, okHandler)
	s := NewStore(Config{URL: srv.URL, Collection: "kb", Dimension: 1536})

	err := s.EnsureCollection(context.Background())

	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}
