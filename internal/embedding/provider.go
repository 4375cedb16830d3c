package embedding

import (
	"context"
	"fmt"

	"github.com/yorizo/yorizo/internal/config"
	"github.com/yorizo/yorizo/internal/llm"
)

// Provider is the interface for embedding providers
type Provider interface {
	// EmbedBatch generates embeddings for multiple texts
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// CheckHealth checks if the provider is healthy
	CheckHealth(ctx context.Context) error

	// GetDimension returns the expected vector length, or 0 if unknown
	GetDimension() int

	// Name returns the provider name
	Name() string
}

// OpenAIProvider wraps the OpenAI client as embedding provider
type OpenAIProvider struct {
	client    *llm.Client
	dimension int
}

// NewOpenAIProvider creates a new OpenAI embedding provider
func NewOpenAIProvider(client *llm.Client, dimension int) *OpenAIProvider {
	return &OpenAIProvider{
		client:    client,
		dimension: dimension,
	}
}

func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return p.client.EmbedBatch(ctx, texts)
}

func (p *OpenAIProvider) CheckHealth(ctx context.Context) error {
	return p.client.CheckHealth(ctx)
}

func (p *OpenAIProvider) GetDimension() int {
	return p.dimension
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

// NewProvider creates an embedding provider based on configuration
func NewProvider(cfg *config.Config, client *llm.Client) (Provider, error) {
	switch cfg.Embedding.Provider {
	case "openai", "":
		return NewOpenAIProvider(client, cfg.Embedding.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Embedding.Provider)
	}
}
