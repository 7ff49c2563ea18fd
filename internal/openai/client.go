package openai

import (
	"context"
	"errors"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultEmbeddingModel is the OpenAI model used for generating embeddings
	DefaultEmbeddingModel = openai.AdaEmbeddingV2
	// DefaultEmbeddingDimensions is the expected dimension of embeddings from ada-002
	DefaultEmbeddingDimensions = 1536
)

var (
	// ErrEmptyText is returned when text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrNoAPIKey is returned when OpenAI API key is not set
	ErrNoAPIKey = errors.New("OPENAI_API_KEY environment variable not set")
)

// modelDimensions maps known embedding models to their output dimensionality.
var modelDimensions = map[openai.EmbeddingModel]int{
	openai.AdaEmbeddingV2:  1536,
	openai.SmallEmbedding3: 1536,
	openai.LargeEmbedding3: 3072,
}

// EmbeddingAPI defines the interface for embedding generation
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, text string, model openai.EmbeddingModel) ([]float32, error)
}

// Client wraps the OpenAI API client
type Client struct {
	api          EmbeddingAPI
	defaultModel openai.EmbeddingModel
}

type OpenAIAdapter struct {
	client *openai.Client
}

func NewOpenAIAdapter(apiKey string) *OpenAIAdapter {
	return &OpenAIAdapter{client: openai.NewClient(apiKey)}
}

// CreateEmbeddings calls the OpenAI API to create embeddings
func (a *OpenAIAdapter) CreateEmbeddings(ctx context.Context, text string, model openai.EmbeddingModel) ([]float32, error) {
	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: model,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding data returned")
	}

	return resp.Data[0].Embedding, nil
}

// NewClient creates a new OpenAI client using the default embedding model.
func NewClient(apiKey string) *Client {
	return NewClientWithModel(apiKey, DefaultEmbeddingModel)
}

// NewClientWithModel creates a new OpenAI client with an explicit default model.
func NewClientWithModel(apiKey string, model openai.EmbeddingModel) *Client {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &Client{
		api:          NewOpenAIAdapter(apiKey),
		defaultModel: model,
	}
}

// NewClientFromEnv creates a new OpenAI client using OPENAI_API_KEY environment variable
func NewClientFromEnv() (*Client, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	return NewClient(apiKey), nil
}

// Embed generates an embedding for the given text. An empty model selects
// the client's default. Embeddings from known models are dimension-checked.
func (c *Client) Embed(ctx context.Context, text, model string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	embeddingModel := openai.EmbeddingModel(model)
	if embeddingModel == "" {
		embeddingModel = c.defaultModel
	}

	embedding, err := c.api.CreateEmbeddings(ctx, text, embeddingModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}

	if expected, ok := modelDimensions[embeddingModel]; ok && len(embedding) != expected {
		return nil, fmt.Errorf("embedding has wrong dimensions: expected %d, got %d", expected, len(embedding))
	}

	return embedding, nil
}
