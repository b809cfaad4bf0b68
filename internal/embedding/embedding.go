package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"caregiver-rag/internal/config"
)

// Provider turns text into fixed-dimension vectors. Implementations wrap a
// remote model; callers treat failures as non-retryable and batch calls as
// atomic per batch.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// LangchainProvider adapts a langchaingo embedder to the Provider contract.
type LangchainProvider struct {
	embedder *embeddings.EmbedderImpl
}

// NewProvider builds a provider from config, dispatching on the configured
// backend.
func NewProvider(cfg *config.LLMConfig) (*LangchainProvider, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllamaProvider(cfg)
	case "openai", "":
		return NewOpenAIProvider(cfg)
	default:
		return nil, fmt.Errorf("embedding: unknown provider %q", cfg.Provider)
	}
}

// NewOpenAIProvider wraps an OpenAI-compatible embedding endpoint.
func NewOpenAIProvider(cfg *config.LLMConfig) (*LangchainProvider, error) {
	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("embedding: init openai: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("embedding: create embedder: %w", err)
	}
	return &LangchainProvider{embedder: embedder}, nil
}

// NewOllamaProvider wraps a local ollama embedding model.
func NewOllamaProvider(cfg *config.LLMConfig) (*LangchainProvider, error) {
	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("embedding: init ollama: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("embedding: create embedder: %w", err)
	}
	return &LangchainProvider{embedder: embedder}, nil
}

func (p *LangchainProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := p.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding: embed query: %w", err)
	}
	return vec, nil
}

func (p *LangchainProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding: embed batch: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedding: got %d vectors for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}
