package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"caregiver-rag/internal/config"
)

// Completer is the answer-generation capability. Complete blocks for the
// full response; CompleteStream invokes fn for every fragment as it
// arrives and returns when the stream ends.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
	CompleteStream(ctx context.Context, system, user string, fn func(ctx context.Context, fragment []byte) error) error
}

// LangchainCompleter adapts a langchaingo chat model to Completer.
type LangchainCompleter struct {
	model llms.Model
}

func NewCompleter(cfg *config.LLMConfig) (*LangchainCompleter, error) {
	switch cfg.Provider {
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		model, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("llm: init ollama: %w", err)
		}
		return &LangchainCompleter{model: model}, nil
	case "openai", "":
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("llm: init openai: %w", err)
		}
		return &LangchainCompleter{model: model}, nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}

func (c *LangchainCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.model.GenerateContent(ctx, messages(system, user))
	if err != nil {
		return "", fmt.Errorf("llm: generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm: empty response")
	}
	return resp.Choices[0].Content, nil
}

func (c *LangchainCompleter) CompleteStream(ctx context.Context, system, user string, fn func(ctx context.Context, fragment []byte) error) error {
	_, err := c.model.GenerateContent(ctx, messages(system, user), llms.WithStreamingFunc(fn))
	if err != nil {
		return fmt.Errorf("llm: generate stream: %w", err)
	}
	return nil
}

func messages(system, user string) []llms.MessageContent {
	return []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextContent{Text: system}},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextContent{Text: user}},
		},
	}
}
