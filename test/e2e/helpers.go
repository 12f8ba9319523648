//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/doctalk-ai/doctalk/internal/api/handlers"
	"github.com/doctalk-ai/doctalk/internal/jobs"
	"github.com/doctalk-ai/doctalk/internal/realtime"
	"github.com/doctalk-ai/doctalk/internal/repository"
	"github.com/doctalk-ai/doctalk/internal/server"
	"github.com/doctalk-ai/doctalk/internal/service"
	"github.com/doctalk-ai/doctalk/internal/testutil"
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	Pool         *pgxpool.Pool
	ServerURL    string
	ServerCloser func()
	AuthSvc      *service.AuthService
	UserID       string
	APIToken     string
	HTTPClient   *http.Client
}

// SetupE2EEnv starts a Postgres container and a full server stack on a
// free port. The OpenAI boundary is replaced with deterministic stubs
// so runs need no API key and retrieval results are reproducible.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	serverURL, authSvc, serverCloser := startServer(t, pool, port)

	return &E2ETestEnv{
		T:            t,
		Ctx:          ctx,
		PostgresC:    pgC,
		Pool:         pool,
		ServerURL:    serverURL,
		ServerCloser: serverCloser,
		AuthSvc:      authSvc,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
}

// Bootstrap provisions a user and API token the way the admin CLI
// does: directly against the service layer, not over HTTP.
func (e *E2ETestEnv) Bootstrap() {
	user, err := e.AuthSvc.CreateUser(e.Ctx, fmt.Sprintf("e2e-%d@example.com", time.Now().UnixNano()))
	if err != nil {
		e.T.Fatalf("failed to create user: %v", err)
	}
	e.UserID = user.ID

	token, err := e.AuthSvc.CreateToken(e.Ctx, user.Email, "e2e")
	if err != nil {
		e.T.Fatalf("failed to create token: %v", err)
	}
	e.APIToken = token
}

// APIResponse represents a standard API response
type APIResponse struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path, authToken string) (*APIResponse, error) {
	return e.doRequest("GET", path, nil, authToken)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body interface{}, authToken string) (*APIResponse, error) {
	return e.doRequest("POST", path, body, authToken)
}

// Delete performs a DELETE request
func (e *E2ETestEnv) Delete(path, authToken string) (*APIResponse, error) {
	return e.doRequest("DELETE", path, nil, authToken)
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}, authToken string) (*APIResponse, error) {
	url := e.ServerURL + path

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, err
	}

	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return parseResponse(resp)
}

// Upload sends a multipart document upload
func (e *E2ETestEnv) Upload(filename string, content []byte, authToken string) (*APIResponse, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(content); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest("POST", e.ServerURL+"/documents", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+authToken)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return parseResponse(resp)
}

func parseResponse(resp *http.Response) (*APIResponse, error) {
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNoContent {
		return &APIResponse{}, nil
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
		}
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiResp.Error)
	}

	return &apiResp, nil
}

// WaitForDocumentStatus polls a document until it reaches the wanted
// status or the timeout expires.
func (e *E2ETestEnv) WaitForDocumentStatus(docID, wanted string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	var last string
	for time.Now().Before(deadline) {
		resp, err := e.Get("/documents/"+docID, e.APIToken)
		if err == nil {
			var doc struct {
				Status string `json:"status"`
			}
			if json.Unmarshal(resp.Data, &doc) == nil {
				last = doc.Status
				if doc.Status == wanted {
					return
				}
			}
		}
		time.Sleep(200 * time.Millisecond)
	}
	e.T.Fatalf("document %s did not reach status %q within %v (last seen %q)", docID, wanted, timeout, last)
}

const embeddingDims = 1536

// stubEmbedder produces deterministic bag-of-bytes vectors: identical
// texts always map to identical vectors, so the exact uploaded
// sentence retrieves itself with a top score.
type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, embeddingDims)
		for _, b := range []byte(text) {
			v[int(b)%embeddingDims]++
		}
		vectors[i] = v
	}
	return vectors, nil
}

func (s stubEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (stubEmbedder) EmbeddingModelID() string {
	return "e2e-embedder"
}

// stubCompleter answers by echoing the first context tag so grounded
// responses are distinguishable from the ungrounded refusal.
type stubCompleter struct{}

func (stubCompleter) Complete(_ context.Context, messages []service.PromptMessage) (string, error) {
	for _, m := range messages {
		if m.Role == service.PromptRoleSystem && strings.Contains(m.Content, "[S1]") {
			return "Based on the provided context [S1], here is the answer.", nil
		}
	}
	return "I don't have enough grounded information to answer that.", nil
}

// startServer wires the full stack against the test database.
func startServer(t *testing.T, pool *pgxpool.Pool, port int) (string, *service.AuthService, func()) {
	docRepo := repository.NewDocumentRepository(pool)
	chunkRepo := repository.NewChunkRepository(pool)
	jobRepo := repository.NewIngestionJobRepository(pool)
	leaseRepo := repository.NewLeaseRepository(pool)
	blobRepo := repository.NewBlobRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	tokenRepo := repository.NewTokenRepository(pool)
	index := repository.NewPgVectorIndex(pool)
	txr := repository.NewTxRunner(pool)

	embedder := stubEmbedder{}
	uuidGen := &service.DefaultUUIDGenerator{}

	ingestSvc := service.NewIngestService(
		docRepo, chunkRepo, jobRepo, leaseRepo, blobRepo,
		embedder, index, txr, uuidGen, nil,
		service.DefaultIngestServiceConfig(),
	)
	docSvc := service.NewDocumentService(docRepo, chunkRepo, blobRepo, index, ingestSvc.Namespace())
	retrievalSvc := service.NewRetrievalService(embedder, index, service.DefaultRetrievalConfig())

	hub := realtime.NewHub()
	chatSvc := service.NewChatService(sessionRepo, messageRepo, hub, uuidGen)
	genSvc := service.NewGenerationService(chatSvc, retrievalSvc, stubCompleter{}, nil, service.DefaultGenerationConfig())
	authSvc := service.NewAuthService(userRepo, tokenRepo, uuidGen)

	router := server.NewRouter(server.RouterConfig{
		AuthValidator:   authSvc,
		DocumentHandler: handlers.NewDocumentHandler(ingestSvc, docSvc),
		ChatHandler:     handlers.NewChatHandler(chatSvc, genSvc),
		WSHandler:       realtime.NewWSHandler(hub, authSvc, chatSvc),
	})

	ingestWorker, err := jobs.NewIngestWorker(jobRepo, ingestSvc, 2)
	if err != nil {
		t.Fatalf("failed to create ingest worker: %v", err)
	}
	worker := jobs.NewWorker(ingestWorker, 200*time.Millisecond)

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	go worker.Start(workerCtx)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(t, serverURL, 10*time.Second)

	return serverURL, authSvc, func() {
		cancelWorker()
		ingestWorker.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
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
