//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/cloo-solutions/vectorgate/internal/api/handlers"
	"github.com/cloo-solutions/vectorgate/internal/domain"
	"github.com/cloo-solutions/vectorgate/internal/jobs"
	"github.com/cloo-solutions/vectorgate/internal/repository"
	"github.com/cloo-solutions/vectorgate/internal/server"
	"github.com/cloo-solutions/vectorgate/internal/service"
	"github.com/cloo-solutions/vectorgate/internal/storage"
	"github.com/cloo-solutions/vectorgate/internal/testutil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const embeddingDim = 1536

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	RustFSC      *testutil.RustFSContainer
	Pool         *pgxpool.Pool
	ServerURL    string
	ServerCloser func()
	S3Client     *storage.S3Client
	AccessRepo   *repository.AccessRepository
	AuthSvc      *service.AuthService
	AuthToken    string
	HTTPClient   *http.Client
}

// hashEmbedder produces a deterministic unit vector per input text, so the
// same text always embeds identically and nearest-neighbour search behaves
// predictably without a real provider.
type hashEmbedder struct{}

func (e *hashEmbedder) Embed(ctx context.Context, text, model string) ([]float32, error) {
	h := fnv.New32a()
	h.Write([]byte(text))
	v := make([]float32, embeddingDim)
	v[int(h.Sum32())%embeddingDim] = 1
	return v, nil
}

// SetupE2EEnv creates a full E2E test environment with containers and server
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)

	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     "rustfsadmin",
		SecretAccessKey: "rustfsadmin",
		Bucket:          "e2e-sources",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}

	if err := s3Client.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	authSvc := service.NewAuthService(repository.NewAPIKeyRepository(pool), &service.DefaultUUIDGenerator{})

	serverURL, serverCloser := startServer(t, pool, s3Client, authSvc, port)

	env := &E2ETestEnv{
		T:            t,
		Ctx:          ctx,
		PostgresC:    pgC,
		RustFSC:      s3C,
		Pool:         pool,
		ServerURL:    serverURL,
		ServerCloser: serverCloser,
		S3Client:     s3Client,
		AccessRepo:   repository.NewAccessRepository(pool),
		AuthSvc:      authSvc,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
	}

	return env
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
}

// Bootstrap provisions an API key and stores its bearer token
func (e *E2ETestEnv) Bootstrap() {
	token, err := e.AuthSvc.CreateAPIKey(e.Ctx, "e2e-test-key")
	if err != nil {
		e.T.Fatalf("failed to create API key: %v", err)
	}
	e.AuthToken = token
}

// CreateKnowledgeBase seeds a knowledge base owned by the given user
func (e *E2ETestEnv) CreateKnowledgeBase(name, ownerUserID string) string {
	kb := &domain.KnowledgeBase{
		ID:          uuid.NewString(),
		Name:        name,
		OwnerUserID: ownerUserID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.AccessRepo.CreateKnowledgeBase(e.Ctx, kb); err != nil {
		e.T.Fatalf("failed to create knowledge base: %v", err)
	}
	return kb.ID
}

// Grant seeds a permission row on a knowledge base
func (e *E2ETestEnv) Grant(kbID string, granteeType domain.GranteeType, granteeID string, role domain.Role) {
	p := &domain.KnowledgeBasePermission{
		ID:              uuid.NewString(),
		KnowledgeBaseID: kbID,
		GranteeType:     granteeType,
		GranteeID:       granteeID,
		Role:            role,
		CreatedAt:       time.Now().UTC(),
	}
	if err := e.AccessRepo.CreatePermission(e.Ctx, p); err != nil {
		e.T.Fatalf("failed to create permission: %v", err)
	}
}

// AddTeamMember seeds a team membership row
func (e *E2ETestEnv) AddTeamMember(teamID, userID string, role domain.Role) {
	m := domain.TeamMembership{TeamID: teamID, UserID: userID, Role: role}
	if err := e.AccessRepo.CreateTeamMembership(e.Ctx, m); err != nil {
		e.T.Fatalf("failed to create team membership: %v", err)
	}
}

// PutSource writes raw source content into the test bucket
func (e *E2ETestEnv) PutSource(key, content string) {
	if err := e.S3Client.PutObject(e.Ctx, key, []byte(content), "text/plain"); err != nil {
		e.T.Fatalf("failed to put source object: %v", err)
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path, authToken string) (*APIResponse, int, error) {
	return e.doRequest("GET", path, nil, authToken)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body interface{}, authToken string) (*APIResponse, int, error) {
	return e.doRequest("POST", path, body, authToken)
}

// Delete performs a DELETE request with a JSON body
func (e *E2ETestEnv) Delete(path string, body interface{}, authToken string) (*APIResponse, int, error) {
	return e.doRequest("DELETE", path, body, authToken)
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}, authToken string) (*APIResponse, int, error) {
	url := e.ServerURL + path

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, 0, err
	}

	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	var apiResp APIResponse
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &apiResp); err != nil {
			return nil, resp.StatusCode, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
		}
	}

	return &apiResp, resp.StatusCode, nil
}

// startServer starts the HTTP server with all handlers and the ingestion worker
func startServer(t *testing.T, pool *pgxpool.Pool, s3Client *storage.S3Client, authSvc *service.AuthService, port int) (string, func()) {
	recordRepo := repository.NewVectorRecordRepository(pool)
	documentRepo := repository.NewDocumentRepository(pool)
	accessRepo := repository.NewAccessRepository(pool)

	embedder := &hashEmbedder{}

	accessSvc := service.NewAccessService(accessRepo)
	ingestionSvc := service.NewIngestionService(s3Client, embedder, recordRepo).
		WithProgressSink(documentRepo)
	querySvc := service.NewQueryService(accessSvc, embedder, recordRepo, "e2e-model")
	lifecycleSvc := service.NewLifecycleService(recordRepo)

	worker := jobs.NewWorker(jobs.NewIngestionWorker(documentRepo, ingestionSvc), 200*time.Millisecond)
	go worker.Start(context.Background())

	cfg := server.RouterConfig{
		AuthValidator:  authSvc,
		IngestHandler:  handlers.NewIngestHandler(ingestionSvc, accessSvc, documentRepo).WithSourceChecker(s3Client),
		QueryHandler:   handlers.NewQueryHandler(querySvc),
		AccessHandler:  handlers.NewAccessHandler(accessSvc),
		VectorsHandler: handlers.NewVectorsHandler(lifecycleSvc),
	}

	router := server.NewRouter(cfg)
	addr := fmt.Sprintf(":%d", port)

	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(t, serverURL, 10*time.Second)

	return serverURL, func() {
		worker.Stop()
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
