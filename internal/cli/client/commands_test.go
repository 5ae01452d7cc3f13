package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAsk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req AskRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "How do I rotate keys?", req.Question)
		assert.Equal(t, "strict", req.Mode)

		fmt.Fprint(w, `{"data":{"answer":"Use the rotate command [1].","sources":[{"entry_id":"e1","chunk_id":"c1","title":"Key rotation","url":"https://docs.example.com/keys","score":0.91}],"metadata":{"mode":"strict","items_used":1}}}`)
	}))
	defer srv.Close()

	var out bytes.Buffer
	err := runAsk(&out, NewAPIClientWithConfig(srv.URL), AskRequest{Question: "How do I rotate keys?", Mode: "strict"}, false)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Use the rotate command [1].")
	assert.Contains(t, out.String(), "[1] Key rotation (0.91)")
	assert.Contains(t, out.String(), "https://docs.example.com/keys")
}

func TestRunAskStream(t *testing.T) {
	t.Run("prints chunks then sources", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, "event: chunk\ndata: {\"content\":\"Hello \"}\n\n")
			fmt.Fprint(w, "event: chunk\ndata: {\"content\":\"world\"}\n\n")
			fmt.Fprint(w, "event: done\ndata: {\"sources\":[{\"title\":\"Greeting\",\"score\":0.5}],\"metadata\":{\"degraded_embedding\":true}}\n\n")
		}))
		defer srv.Close()

		var out bytes.Buffer
		err := runAskStream(context.Background(), &out, NewAPIClientWithConfig(srv.URL), AskRequest{Question: "hi"}, false)
		require.NoError(t, err)

		assert.Contains(t, out.String(), "Hello world\n")
		assert.Contains(t, out.String(), "non-semantic fallback")
		assert.Contains(t, out.String(), "[1] Greeting (0.50)")
	})

	t.Run("json output assembles the answer", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, "event: chunk\ndata: {\"content\":\"a\"}\n\n")
			fmt.Fprint(w, "event: chunk\ndata: {\"content\":\"b\"}\n\n")
			fmt.Fprint(w, "event: done\ndata: {\"sources\":[],\"metadata\":{\"mode\":\"normal\"}}\n\n")
		}))
		defer srv.Close()

		var out bytes.Buffer
		err := runAskStream(context.Background(), &out, NewAPIClientWithConfig(srv.URL), AskRequest{Question: "q"}, true)
		require.NoError(t, err)

		var answer Answer
		require.NoError(t, json.Unmarshal(out.Bytes(), &answer))
		assert.Equal(t, "ab", answer.Answer)
		assert.Equal(t, "normal", answer.Metadata.Mode)
	})

	t.Run("error event", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, "event: chunk\ndata: {\"content\":\"par\"}\n\n")
			fmt.Fprint(w, "event: error\ndata: {\"error\":\"answer could not be generated\"}\n\n")
		}))
		defer srv.Close()

		var out bytes.Buffer
		err := runAskStream(context.Background(), &out, NewAPIClientWithConfig(srv.URL), AskRequest{Question: "q"}, false)
		assert.ErrorContains(t, err, "answer could not be generated")
	})

	t.Run("stream cut short", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, "event: chunk\ndata: {\"content\":\"par\"}\n\n")
		}))
		defer srv.Close()

		err := runAskStream(context.Background(), &bytes.Buffer{}, NewAPIClientWithConfig(srv.URL), AskRequest{Question: "q"}, false)
		assert.ErrorContains(t, err, "stream ended")
	})
}

func TestRunHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/health/system", r.URL.Path)
			fmt.Fprint(w, `{"data":{"status":"healthy","embedding":{"status":"connected","provider":"primary","model":"text-embedding-3-small","dimension":1536},"vector_store":{"status":"connected","dimension":1536}}}`)
		}))
		defer srv.Close()

		var out bytes.Buffer
		require.NoError(t, runHealth(&out, NewAPIClientWithConfig(srv.URL), false))
		assert.Contains(t, out.String(), "System: healthy")
		assert.Contains(t, out.String(), "Embedding: connected (primary, text-embedding-3-small, 1536 dimensions)")
	})

	t.Run("unhealthy report is printed and returned as an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"data":{"status":"unhealthy","embedding":{"status":"no_active_provider","hint":"activate one"},"vector_store":{"status":"connected","dimension":768}}}`)
		}))
		defer srv.Close()

		var out bytes.Buffer
		err := runHealth(&out, NewAPIClientWithConfig(srv.URL), false)
		assert.ErrorContains(t, err, "system is unhealthy")
		assert.Contains(t, out.String(), "Embedding: no_active_provider")
		assert.Contains(t, out.String(), "hint: activate one")
	})
}

func TestEntryCmd_Add(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req EntryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Runbook", req.Title)
		assert.Equal(t, "Restart the service.", req.Body)
		assert.Equal(t, "ops", req.Category)

		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"data":{"id":"e1","title":"Runbook","indexing_status":"pending"}}`)
	}))
	defer srv.Close()

	cmd := EntryCmd()
	cmd.PersistentFlags().String("api-url", "", "")
	cmd.PersistentFlags().Bool("output", false, "")

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(bytes.NewBufferString("Restart the service."))
	cmd.SetArgs([]string{"add", "--api-url", srv.URL, "--title", "Runbook", "--category", "ops", "--file", "-"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "Entry created: e1 (pending)\n", out.String())
}

func TestWriteEntryTable(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, writeEntryTable(&out, EntryList{
		Items:   []Entry{{ID: "e1", Title: "Runbook", IndexingStatus: "completed", ChunkCount: 3}},
		Cursor:  "next",
		HasMore: true,
	}))
	assert.Contains(t, out.String(), "Runbook")
	assert.Contains(t, out.String(), "--cursor next")

	out.Reset()
	require.NoError(t, writeEntryTable(&out, EntryList{}))
	assert.Equal(t, "No entries found.\n", out.String())
}
