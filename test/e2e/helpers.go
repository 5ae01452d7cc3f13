//go:build e2e

package e2e

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cloo-solutions/groundwork/internal/api/handlers"
	"github.com/cloo-solutions/groundwork/internal/config"
	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/jobs"
	"github.com/cloo-solutions/groundwork/internal/llm/hashing"
	"github.com/cloo-solutions/groundwork/internal/provider"
	"github.com/cloo-solutions/groundwork/internal/repository"
	"github.com/cloo-solutions/groundwork/internal/server"
	"github.com/cloo-solutions/groundwork/internal/service"
	"github.com/cloo-solutions/groundwork/internal/testutil"
	"github.com/cloo-solutions/groundwork/internal/vectorstore/pgvector"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	e2eDimension      = 16
	e2eEmbeddingModel = "text-embedding-3-small"
	e2eChatModel      = "gpt-4o-mini"
	fakeAnswer        = "Restart the ingest worker, then clear the queue [1]."
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	Pool         *pgxpool.Pool
	Provider     *httptest.Server
	ServerURL    string
	ServerCloser func()
	BinaryDir    string
	HTTPClient   *http.Client
}

// SetupE2EEnv starts Postgres, a fake OpenAI-compatible provider, the
// indexing worker and the HTTP server.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	env := &E2ETestEnv{
		T:          t,
		Ctx:        ctx,
		PostgresC:  pgC,
		Pool:       pool,
		Provider:   newFakeProvider(t),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}
	env.ServerURL, env.ServerCloser = env.startServer(port)

	return env
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Provider != nil {
		e.Provider.Close()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
	if e.BinaryDir != "" {
		os.RemoveAll(e.BinaryDir)
	}
}

// ActivateProvider stores a provider configuration pointing at the fake
// provider and makes it active.
func (e *E2ETestEnv) ActivateProvider() *domain.ProviderConfig {
	now := time.Now().UTC()
	p := &domain.ProviderConfig{
		ID:                 uuid.NewString(),
		Name:               "fake-openai",
		Kind:               domain.ProviderKindOpenAI,
		ChatModel:          e2eChatModel,
		ChatEndpoint:       e.Provider.URL + "/v1",
		EmbeddingModel:     e2eEmbeddingModel,
		EmbeddingDimension: e2eDimension,
		SupportsEmbedding:  true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	repo := repository.NewProviderRepository(e.Pool)
	if err := repo.Create(e.Ctx, p); err != nil {
		e.T.Fatalf("failed to create provider: %v", err)
	}
	if err := repo.Activate(e.Ctx, p.ID); err != nil {
		e.T.Fatalf("failed to activate provider: %v", err)
	}
	return p
}

// BuildBinaries builds the groundwork and groundworkd binaries
func (e *E2ETestEnv) BuildBinaries() {
	tmpDir, err := os.MkdirTemp("", "groundwork-e2e-*")
	if err != nil {
		e.T.Fatalf("failed to create temp dir: %v", err)
	}
	e.BinaryDir = tmpDir

	for _, name := range []string{"groundworkd", "groundwork"} {
		cmd := exec.Command("go", "build", "-o", filepath.Join(tmpDir, name), "./cmd/"+name)
		cmd.Dir = "../.."
		if out, err := cmd.CombinedOutput(); err != nil {
			e.T.Fatalf("failed to build %s: %v\n%s", name, err, out)
		}
	}
}

// RunGroundwork runs the groundwork client against the test server
func (e *E2ETestEnv) RunGroundwork(input string, args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "groundwork"), args...)
	cmd.Dir = e.BinaryDir
	if input != "" {
		cmd.Stdin = strings.NewReader(input)
	}
	cmd.Env = append(os.Environ(), "GROUNDWORK_API_URL="+e.ServerURL)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// RunGroundworkd runs the admin binary against the test database
func (e *E2ETestEnv) RunGroundworkd(args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "groundworkd"), args...)
	cmd.Dir = e.BinaryDir
	cmd.Env = append(os.Environ(),
		"GROUNDWORK_DATABASE_URL="+e.PostgresC.ConnectionString(),
		"GROUNDWORK_VECTOR_DIMENSION="+fmt.Sprint(e2eDimension),
	)
	// Logs go to stderr; only stdout is returned so JSON output stays parseable.
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return string(out) + stderr.String(), err
	}
	return string(out), nil
}

// APIResponse represents a standard API response
type APIResponse struct {
	StatusCode int
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error,omitempty"`
	Code       string          `json:"code,omitempty"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path string) (*APIResponse, error) {
	return e.doRequest("GET", path, nil)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body interface{}) (*APIResponse, error) {
	return e.doRequest("POST", path, body)
}

// Put performs a PUT request
func (e *E2ETestEnv) Put(path string, body interface{}) (*APIResponse, error) {
	return e.doRequest("PUT", path, body)
}

// Delete performs a DELETE request
func (e *E2ETestEnv) Delete(path string) (*APIResponse, error) {
	return e.doRequest("DELETE", path, nil)
}

// doRequest returns an error only for transport failures; callers check StatusCode.
func (e *E2ETestEnv) doRequest(method, path string, body interface{}) (*APIResponse, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, e.ServerURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	apiResp := APIResponse{StatusCode: resp.StatusCode}
	if len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, &apiResp); err != nil {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, respBody)
		}
	}
	return &apiResp, nil
}

// SSEEvent is one parsed server-sent event
type SSEEvent struct {
	Event string
	Data  string
}

// PostStream posts body and collects every server-sent event
func (e *E2ETestEnv) PostStream(path string, body interface{}) (*http.Response, []SSEEvent, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, nil, err
	}
	resp, err := e.HTTPClient.Post(e.ServerURL+path, "application/json", bytes.NewReader(jsonData))
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	var events []SSEEvent
	var cur SSEEvent
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if cur.Event != "" {
				events = append(events, cur)
			}
			cur = SSEEvent{}
		case strings.HasPrefix(line, "event: "):
			cur.Event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.Data = strings.TrimPrefix(line, "data: ")
		}
	}
	return resp, events, scanner.Err()
}

// WaitForIndexing polls an entry until it leaves the pending and indexing states.
func (e *E2ETestEnv) WaitForIndexing(entryID string, timeout time.Duration) map[string]interface{} {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := e.Get("/entries/" + entryID)
		if err == nil && resp.StatusCode == http.StatusOK {
			var entry map[string]interface{}
			if err := json.Unmarshal(resp.Data, &entry); err == nil {
				status, _ := entry["indexing_status"].(string)
				if status == string(domain.IndexingStatusCompleted) || status == string(domain.IndexingStatusFailed) {
					return entry
				}
			}
		}
		time.Sleep(200 * time.Millisecond)
	}
	e.T.Fatalf("entry %s was not indexed within %v", entryID, timeout)
	return nil
}

func (e *E2ETestEnv) startServer(port int) (string, func()) {
	t := e.T
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := &config.Config{
		ChunkSize:       400,
		ChunkOverlap:    80,
		TopK:            3,
		VectorDimension: e2eDimension,
	}
	defaults, err := cfg.RAGDefaults()
	if err != nil {
		t.Fatalf("failed to build settings: %v", err)
	}

	store := pgvector.NewStore(e.Pool, e2eDimension)
	if err := store.EnsureSchema(e.Ctx); err != nil {
		t.Fatalf("failed to create vector schema: %v", err)
	}

	entries := repository.NewEntryRepository(e.Pool)
	chunks := repository.NewChunkRepository(e.Pool)
	jobRepo := repository.NewIndexingJobRepository(e.Pool)
	providers := repository.NewProviderRepository(e.Pool)
	settings := repository.NewSettingsRepository(e.Pool, defaults)
	txRunner := repository.NewTxRunner(e.Pool)
	resolver := provider.NewResolver(providers, nil, e2eDimension, logger)

	indexing := service.NewIndexingService(entries, txRunner, store, resolver, settings, logger)
	entrySvc := service.NewEntryService(entries, txRunner, store)
	answerSvc := service.NewAnswerService(chunks, store, resolver, settings, service.AnswerTimeouts{
		Embed:  10 * time.Second,
		Search: 10 * time.Second,
		Chat:   10 * time.Second,
	}, logger)
	healthSvc := service.NewHealthService(providers, resolver, store, logger)

	indexingWorker, err := jobs.NewIndexingWorker(jobRepo, indexing, jobs.IndexingWorkerOptions{
		Concurrency: 2,
		JobTimeout:  30 * time.Second,
		MaxRetries:  2,
	}, logger)
	if err != nil {
		t.Fatalf("failed to create indexing worker: %v", err)
	}
	worker := jobs.NewWorker(indexingWorker, 200*time.Millisecond, logger)
	workerCtx, stopWorker := context.WithCancel(context.Background())
	go worker.Start(workerCtx)

	router := server.NewRouter(server.RouterConfig{
		Logger:        logger,
		EntryHandler:  handlers.NewEntryHandler(entrySvc),
		AskHandler:    handlers.NewAskHandler(answerSvc, logger),
		HealthHandler: handlers.NewHealthHandler(healthSvc),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(t, serverURL, 10*time.Second)

	return serverURL, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		stopWorker()
		worker.Stop()
		indexingWorker.Release()
	}
}

// newFakeProvider serves the OpenAI embeddings and chat completion
// endpoints. Embeddings are the local hashing vectors so similar texts
// still score close together.
func newFakeProvider(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input      []string `json:"input"`
			Model      string   `json:"model"`
			Dimensions int      `json:"dimensions"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		dim := req.Dimensions
		if dim == 0 {
			dim = e2eDimension
		}

		data := make([]map[string]interface{}, len(req.Input))
		for i, text := range req.Input {
			data[i] = map[string]interface{}{
				"object":    "embedding",
				"index":     i,
				"embedding": hashing.Vector(text, dim),
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"model":  req.Model,
			"data":   data,
		})
	})

	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model  string `json:"model"`
			Stream bool   `json:"stream"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if !req.Stream {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id":      "chatcmpl-e2e",
				"object":  "chat.completion",
				"created": time.Now().Unix(),
				"model":   req.Model,
				"choices": []map[string]interface{}{{
					"index":         0,
					"message":       map[string]string{"role": "assistant", "content": fakeAnswer},
					"finish_reason": "stop",
				}},
			})
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, piece := range strings.SplitAfter(fakeAnswer, " ") {
			chunk, _ := json.Marshal(map[string]interface{}{
				"id":      "chatcmpl-e2e",
				"object":  "chat.completion.chunk",
				"created": time.Now().Unix(),
				"model":   req.Model,
				"choices": []map[string]interface{}{{
					"index": 0,
					"delta": map[string]string{"content": piece},
				}},
			})
			fmt.Fprintf(w, "data: %s\n\n", chunk)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	srv := httptest.NewServer(mux)
	t.Logf("fake provider listening on %s", srv.URL)
	return srv
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
