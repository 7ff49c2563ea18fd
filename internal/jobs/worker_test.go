package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloo-solutions/vectorgate/internal/domain"
	"github.com/cloo-solutions/vectorgate/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockJobProcessor struct {
	mock.Mock
}

func (m *MockJobProcessor) ProcessJobs(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockDocumentQueue struct {
	mock.Mock
}

func (m *MockDocumentQueue) ClaimPending(ctx context.Context, limit int) ([]*domain.Document, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Document), args.Error(1)
}

func (m *MockDocumentQueue) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMsg string) error {
	args := m.Called(ctx, id, status, errMsg)
	return args.Error(0)
}

func (m *MockDocumentQueue) IncrementRetries(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockIngestor struct {
	mock.Mock
}

func (m *MockIngestor) Ingest(ctx context.Context, input service.IngestInput) (*service.IngestResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.IngestResult), args.Error(1)
}

func TestWorker_StartStop(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil)

	worker := NewWorker(mockProcessor, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(150 * time.Millisecond)
	worker.Stop()
	wg.Wait()

	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

func TestWorker_ContextCancellation(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil)

	worker := NewWorker(mockProcessor, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(120 * time.Millisecond)
	cancel()
	wg.Wait()

	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

func pendingDoc(id string, retries int) *domain.Document {
	return &domain.Document{
		ID:             id,
		SourceLocation: "sources/" + id + ".txt",
		OwnerUserID:    "user-1",
		Status:         domain.DocumentStatusProcessing,
		Retries:        retries,
	}
}

func TestIngestionWorker_NoPendingDocuments(t *testing.T) {
	queue := new(MockDocumentQueue)
	ingestor := new(MockIngestor)
	queue.On("ClaimPending", mock.Anything, claimBatchSize).Return([]*domain.Document{}, nil)

	worker := NewIngestionWorker(queue, ingestor)
	require.NoError(t, worker.ProcessJobs(context.Background()))

	ingestor.AssertNotCalled(t, "Ingest", mock.Anything, mock.Anything)
}

func TestIngestionWorker_ClaimError(t *testing.T) {
	queue := new(MockDocumentQueue)
	ingestor := new(MockIngestor)
	queue.On("ClaimPending", mock.Anything, claimBatchSize).Return(nil, errors.New("db down"))

	worker := NewIngestionWorker(queue, ingestor)
	assert.Error(t, worker.ProcessJobs(context.Background()))
}

func TestIngestionWorker_SuccessfulIngestion(t *testing.T) {
	queue := new(MockDocumentQueue)
	ingestor := new(MockIngestor)

	doc := pendingDoc("doc-1", 0)
	queue.On("ClaimPending", mock.Anything, claimBatchSize).Return([]*domain.Document{doc}, nil)
	ingestor.On("Ingest", mock.Anything, mock.MatchedBy(func(in service.IngestInput) bool {
		return in.SourceDocumentID == "doc-1" && in.OwnerUserID == "user-1"
	})).Return(&service.IngestResult{ChunksCreated: 4}, nil)
	queue.On("UpdateStatus", mock.Anything, "doc-1", domain.DocumentStatusCompleted, "").Return(nil)

	worker := NewIngestionWorker(queue, ingestor)
	require.NoError(t, worker.ProcessJobs(context.Background()))

	queue.AssertExpectations(t)
	ingestor.AssertExpectations(t)
}

func TestIngestionWorker_FailureRequeues(t *testing.T) {
	queue := new(MockDocumentQueue)
	ingestor := new(MockIngestor)

	doc := pendingDoc("doc-1", 0)
	queue.On("ClaimPending", mock.Anything, claimBatchSize).Return([]*domain.Document{doc}, nil)
	ingestor.On("Ingest", mock.Anything, mock.Anything).Return(nil, errors.New("embedding provider unavailable"))
	queue.On("IncrementRetries", mock.Anything, "doc-1").Return(nil)
	queue.On("UpdateStatus", mock.Anything, "doc-1", domain.DocumentStatusPending, mock.MatchedBy(func(msg string) bool {
		return msg != ""
	})).Return(nil)

	worker := NewIngestionWorker(queue, ingestor)
	require.NoError(t, worker.ProcessJobs(context.Background()))

	queue.AssertExpectations(t)
}

func TestIngestionWorker_MaxRetriesMarksFailed(t *testing.T) {
	queue := new(MockDocumentQueue)
	ingestor := new(MockIngestor)

	doc := pendingDoc("doc-1", MaxRetries-1)
	queue.On("ClaimPending", mock.Anything, claimBatchSize).Return([]*domain.Document{doc}, nil)
	ingestor.On("Ingest", mock.Anything, mock.Anything).Return(nil, errors.New("boom"))
	queue.On("IncrementRetries", mock.Anything, "doc-1").Return(nil)
	queue.On("UpdateStatus", mock.Anything, "doc-1", domain.DocumentStatusFailed, mock.MatchedBy(func(msg string) bool {
		return msg != ""
	})).Return(nil)

	worker := NewIngestionWorker(queue, ingestor)
	require.NoError(t, worker.ProcessJobs(context.Background()))

	queue.AssertExpectations(t)
}

func TestIngestionWorker_OneFailureDoesNotBlockOthers(t *testing.T) {
	queue := new(MockDocumentQueue)
	ingestor := new(MockIngestor)

	bad := pendingDoc("doc-bad", 0)
	good := pendingDoc("doc-good", 0)
	queue.On("ClaimPending", mock.Anything, claimBatchSize).Return([]*domain.Document{bad, good}, nil)

	ingestor.On("Ingest", mock.Anything, mock.MatchedBy(func(in service.IngestInput) bool {
		return in.SourceDocumentID == "doc-bad"
	})).Return(nil, errors.New("boom"))
	ingestor.On("Ingest", mock.Anything, mock.MatchedBy(func(in service.IngestInput) bool {
		return in.SourceDocumentID == "doc-good"
	})).Return(&service.IngestResult{ChunksCreated: 1}, nil)

	queue.On("IncrementRetries", mock.Anything, "doc-bad").Return(nil)
	queue.On("UpdateStatus", mock.Anything, "doc-bad", domain.DocumentStatusPending, mock.Anything).Return(nil)
	queue.On("UpdateStatus", mock.Anything, "doc-good", domain.DocumentStatusCompleted, "").Return(nil)

	worker := NewIngestionWorker(queue, ingestor)
	require.NoError(t, worker.ProcessJobs(context.Background()))

	queue.AssertExpectations(t)
	ingestor.AssertExpectations(t)
}
