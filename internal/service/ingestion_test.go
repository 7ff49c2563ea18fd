package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/cloo-solutions/vectorgate/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockObjectStorage mocks the object storage reader
type MockObjectStorage struct {
	mock.Mock
}

func (m *MockObjectStorage) ReadObject(ctx context.Context, location string) ([]byte, error) {
	args := m.Called(ctx, location)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// fakeEmbedder embeds deterministically and can fail on the Nth call.
type fakeEmbedder struct {
	mu         sync.Mutex
	calls      int
	failAtCall int
	failWith   error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text, model string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	calls := f.calls
	f.mu.Unlock()
	if f.failAtCall > 0 && calls >= f.failAtCall {
		return nil, f.failWith
	}
	return []float32{float32(len(text)), 1, 2}, nil
}

// fakeVectorRepo records inserted batches in memory.
type fakeVectorRepo struct {
	mu        sync.Mutex
	inserted  []domain.VectorRecord
	deletes   []string
	insertErr error
	deleteErr error
}

func (f *fakeVectorRepo) InsertBatch(ctx context.Context, records []domain.VectorRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, records...)
	return nil
}

func (f *fakeVectorRepo) DeleteBySourceDocument(ctx context.Context, id string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	f.deletes = append(f.deletes, id)
	return 0, nil
}

func (f *fakeVectorRepo) DeleteByKnowledgeBase(ctx context.Context, id string) (int64, error) {
	return 0, nil
}

func (f *fakeVectorRepo) SearchByEmbedding(ctx context.Context, embedding []float32, limit int) ([]domain.Candidate, error) {
	return nil, nil
}

type progressEvent struct {
	documentID string
	percent    int
	processed  int
	total      int
	errMsg     string
}

type recordingSink struct {
	mu     sync.Mutex
	events []progressEvent
}

func (r *recordingSink) ReportProgress(ctx context.Context, documentID string, percent, processed, total int, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, progressEvent{documentID, percent, processed, total, errMsg})
}

type seqUUIDGen struct {
	mu sync.Mutex
	n  int
}

func (g *seqUUIDGen) NewString() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%d", g.n)
}

func newTestIngestion(storage ObjectStorage, embedder EmbeddingClient, repo VectorRecordRepository) *IngestionService {
	svc := NewIngestionService(storage, embedder, repo)
	svc.uuidGen = &seqUUIDGen{}
	svc.embedConcurrency = 1
	return svc
}

func baseInput() IngestInput {
	return IngestInput{
		SourceLocation:   "docs/handbook.txt",
		SourceDocumentID: "d1",
		OwnerUserID:      "u1",
		TeamID:           ptr("t1"),
		KnowledgeBaseID:  ptr("kb1"),
		Strategy:         "default",
		StrategyConfig:   map[string]int{"chunk_size": 1000, "chunk_overlap": 200},
	}
}

type testCtxKey string

func TestIngestionService_Ingest_Success(t *testing.T) {
	ctx := context.WithValue(context.Background(), testCtxKey("req"), "r-1")
	storage := new(MockObjectStorage)
	repo := &fakeVectorRepo{}
	sink := &recordingSink{}
	svc := newTestIngestion(storage, &fakeEmbedder{}, repo).WithProgressSink(sink)

	content := strings.Repeat("abcde", 500) // 2500 chars -> 3 windows
	// The service wraps the context in a tracing span before touching
	// storage, so match on derivation rather than identity.
	storage.On("ReadObject", mock.MatchedBy(func(c context.Context) bool {
		return c.Value(testCtxKey("req")) == "r-1"
	}), "docs/handbook.txt").Return([]byte(content), nil)

	result, err := svc.Ingest(ctx, baseInput())
	require.NoError(t, err)
	assert.Equal(t, 3, result.ChunksCreated)
	require.Len(t, repo.inserted, 3)

	// Metadata superset: every record carries the full document-level
	// metadata plus its own chunk index.
	for i, rec := range repo.inserted {
		assert.Equal(t, "d1", rec.Metadata.SourceDocumentID)
		assert.Equal(t, "u1", rec.Metadata.OwnerUserID)
		require.NotNil(t, rec.Metadata.TeamID)
		assert.Equal(t, "t1", *rec.Metadata.TeamID)
		require.NotNil(t, rec.Metadata.KnowledgeBaseID)
		assert.Equal(t, "kb1", *rec.Metadata.KnowledgeBaseID)
		assert.Equal(t, i, rec.Metadata.ChunkIndex)
		assert.NotEmpty(t, rec.Embedding)
		assert.NotEmpty(t, rec.ID)
	}

	require.NotEmpty(t, sink.events)
	last := sink.events[len(sink.events)-1]
	assert.Equal(t, 100, last.percent)
	assert.Equal(t, 3, last.processed)
	assert.Equal(t, 3, last.total)
}

func TestIngestionService_Ingest_ReplacesExistingVectors(t *testing.T) {
	ctx := context.Background()
	storage := new(MockObjectStorage)
	repo := &fakeVectorRepo{}
	svc := newTestIngestion(storage, &fakeEmbedder{}, repo)

	storage.On("ReadObject", mock.Anything, "docs/handbook.txt").Return([]byte("small doc"), nil)

	_, err := svc.Ingest(ctx, baseInput())
	require.NoError(t, err)
	assert.Equal(t, []string{"d1"}, repo.deletes)
}

func TestIngestionService_Ingest_SourceUnavailable(t *testing.T) {
	ctx := context.Background()
	storage := new(MockObjectStorage)
	repo := &fakeVectorRepo{}
	svc := newTestIngestion(storage, &fakeEmbedder{}, repo)

	storage.On("ReadObject", mock.Anything, "docs/missing.txt").Return(nil, errors.New("no such key"))

	input := baseInput()
	input.SourceLocation = "docs/missing.txt"

	_, err := svc.Ingest(ctx, input)
	require.Error(t, err)
	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeSourceUnavailable, domainErr.Code)
	assert.Empty(t, repo.inserted)
}

func TestIngestionService_Ingest_UnknownStrategy(t *testing.T) {
	svc := newTestIngestion(new(MockObjectStorage), &fakeEmbedder{}, &fakeVectorRepo{})

	input := baseInput()
	input.Strategy = "mystery"

	_, err := svc.Ingest(context.Background(), input)
	require.Error(t, err)
	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeConfiguration, domainErr.Code)
}

func TestIngestionService_Ingest_UnknownProvider(t *testing.T) {
	svc := newTestIngestion(new(MockObjectStorage), &fakeEmbedder{}, &fakeVectorRepo{})

	input := baseInput()
	input.EmbeddingProvider = "acme"

	_, err := svc.Ingest(context.Background(), input)
	require.Error(t, err)
	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeConfiguration, domainErr.Code)
}

func TestIngestionService_Ingest_EmbeddingFailureKeepsPersistedChunks(t *testing.T) {
	ctx := context.Background()
	storage := new(MockObjectStorage)
	repo := &fakeVectorRepo{}
	sink := &recordingSink{}

	content := strings.Repeat("abcde", 500)
	// One chunk per batch; the second embed call fails, so exactly one
	// batch has been persisted by then.
	embedder := &fakeEmbedder{failAtCall: 2, failWith: errors.New("provider timeout")}

	svc := newTestIngestion(storage, embedder, repo).WithProgressSink(sink).WithBatchSize(1)
	storage.On("ReadObject", mock.Anything, "docs/handbook.txt").Return([]byte(content), nil)

	_, err := svc.Ingest(ctx, baseInput())
	require.Error(t, err)

	var embErr *domain.EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.Equal(t, 1, embErr.ChunksPersisted)

	// No rollback: the first batch stays persisted.
	assert.Len(t, repo.inserted, 1)

	last := sink.events[len(sink.events)-1]
	assert.NotEmpty(t, last.errMsg)
	assert.Equal(t, 1, last.processed)
}

func TestIngestionService_Ingest_EmptyDocument(t *testing.T) {
	ctx := context.Background()
	storage := new(MockObjectStorage)
	repo := &fakeVectorRepo{}
	sink := &recordingSink{}
	svc := newTestIngestion(storage, &fakeEmbedder{}, repo).WithProgressSink(sink)

	storage.On("ReadObject", mock.Anything, "docs/handbook.txt").Return([]byte("   "), nil)

	result, err := svc.Ingest(ctx, baseInput())
	require.NoError(t, err)
	assert.Equal(t, 0, result.ChunksCreated)
	assert.Empty(t, repo.inserted)

	require.Len(t, sink.events, 1)
	assert.Equal(t, 100, sink.events[0].percent)
}

func TestIngestionService_Ingest_StrategyExtrasKeptWithoutOverwriting(t *testing.T) {
	ctx := context.Background()
	storage := new(MockObjectStorage)
	repo := &fakeVectorRepo{}
	svc := newTestIngestion(storage, &fakeEmbedder{}, repo)

	// Two slides separated by form feed, presentation strategy.
	storage.On("ReadObject", mock.Anything, "decks/q3.txt").Return([]byte("slide one\fslide two"), nil)

	input := baseInput()
	input.SourceLocation = "decks/q3.txt"
	input.Strategy = "presentation"
	input.StrategyConfig = nil

	result, err := svc.Ingest(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, 2, result.ChunksCreated)
	require.Len(t, repo.inserted, 2)

	assert.Equal(t, "1", repo.inserted[0].Metadata.Extra["slide_number"])
	assert.Equal(t, "2", repo.inserted[1].Metadata.Extra["slide_number"])
	// Required fields intact alongside the extras.
	assert.Equal(t, "d1", repo.inserted[0].Metadata.SourceDocumentID)
	assert.Equal(t, 0, repo.inserted[0].Metadata.ChunkIndex)
	assert.Equal(t, 1, repo.inserted[1].Metadata.ChunkIndex)
}

func TestIngestionService_Ingest_MissingRequiredInput(t *testing.T) {
	svc := newTestIngestion(new(MockObjectStorage), &fakeEmbedder{}, &fakeVectorRepo{})

	input := baseInput()
	input.OwnerUserID = ""

	_, err := svc.Ingest(context.Background(), input)
	assert.ErrorIs(t, err, domain.ErrMissingRequiredField)
}

func TestSanitizeExtra_ReservedAndOversizedDropped(t *testing.T) {
	extra := map[string]string{
		"owner_user_id": "spoofed",
		"heading":       "Intro",
		"blob":          strings.Repeat("x", maxExtraBytes),
	}

	out := sanitizeExtra("d1", extra)
	assert.NotContains(t, out, "owner_user_id")
	assert.NotContains(t, out, "blob")
	assert.Equal(t, "Intro", out["heading"])
}
