package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"caregiver-rag/internal/config"
	"caregiver-rag/internal/embedding"
	"caregiver-rag/internal/index"
	"caregiver-rag/internal/llm"
	"caregiver-rag/internal/models"
	"caregiver-rag/internal/ranker"
)

// ErrEmptyIndex is returned by SelfTest when there is nothing indexed to
// validate against.
var ErrEmptyIndex = errors.New("rag: index is empty")

// RAG answers questions grounded in the indexed knowledge base. All
// collaborators are injected once at construction and shared across
// queries; queries themselves are stateless.
type RAG struct {
	embedder  embedding.Provider
	ranker    *ranker.Ranker
	completer llm.Completer
	index     index.Index
	cfg       config.RAGConfig
}

func NewRAG(embedder embedding.Provider, rk *ranker.Ranker, completer llm.Completer, idx index.Index, cfg config.RAGConfig) *RAG {
	return &RAG{
		embedder:  embedder,
		ranker:    rk,
		completer: completer,
		index:     idx,
		cfg:       cfg,
	}
}

// Answer runs the full query pipeline and blocks for the complete answer.
// Zero retrieval hits are not an error: the response carries no sources,
// confidence 0, and an answer produced from general guidance.
func (r *RAG) Answer(ctx context.Context, query string) (*models.RagResponse, error) {
	results, err := r.retrieve(ctx, query)
	if err != nil {
		return nil, err
	}

	system, user := buildPrompt(query, results)
	answer, err := r.completer.Complete(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("rag: completion: %w", err)
	}

	return &models.RagResponse{
		Query:      query,
		Answer:     answer,
		Sources:    results,
		Confidence: Confidence(results),
	}, nil
}

// AnswerStream runs the query pipeline and streams the answer. The first
// event is always metadata (confidence and sources, possibly empty) so a
// consumer can render attribution before text arrives. A failure emits a
// terminal error event; no content follows it. The consumer cancels by
// canceling ctx.
func (r *RAG) AnswerStream(ctx context.Context, query string) <-chan models.StreamEvent {
	events := make(chan models.StreamEvent)

	go func() {
		defer close(events)

		send := func(ev models.StreamEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		results, err := r.retrieve(ctx, query)
		if err != nil {
			// Metadata leads even on failure so consumers never wait on it.
			if send(models.StreamEvent{Type: models.StreamEventMetadata}) {
				send(models.StreamEvent{Type: models.StreamEventError, Message: err.Error()})
			}
			return
		}

		if !send(models.StreamEvent{
			Type:       models.StreamEventMetadata,
			Confidence: Confidence(results),
			Sources:    results,
		}) {
			return
		}

		if ctx.Err() != nil {
			return
		}

		system, user := buildPrompt(query, results)
		err = r.completer.CompleteStream(ctx, system, user, func(ctx context.Context, fragment []byte) error {
			if len(fragment) == 0 {
				return nil
			}
			if !send(models.StreamEvent{Type: models.StreamEventContent, Content: string(fragment)}) {
				return ctx.Err()
			}
			return nil
		})
		if err != nil && ctx.Err() == nil {
			send(models.StreamEvent{Type: models.StreamEventError, Message: fmt.Sprintf("completion: %v", err)})
		}
	}()

	return events
}

// SelfTest runs a canned query through the whole pipeline. An empty index
// is fatal here: a test with nothing to validate against proves nothing.
func (r *RAG) SelfTest(ctx context.Context) (*models.RagResponse, error) {
	stats, err := r.index.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("rag: self-test stats: %w", err)
	}
	if stats.TotalChunks == 0 {
		return nil, ErrEmptyIndex
	}
	log.Info().Int64("chunks", stats.TotalChunks).Msg("Running self-test query")
	return r.Answer(ctx, models.SelfTestQuery)
}

func (r *RAG) retrieve(ctx context.Context, query string) ([]models.SearchResult, error) {
	queryVector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("rag: embed query: %w", err)
	}
	results, err := r.ranker.Rank(ctx, query, queryVector, r.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("rag: rank: %w", err)
	}
	return results, nil
}

// Confidence is the arithmetic mean of the fused scores of the sources
// actually used, clamped to [0,1]. Zero results mean zero confidence.
func Confidence(results []models.SearchResult) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum float64
	for _, res := range results {
		sum += res.Score
	}
	mean := sum / float64(len(results))
	if mean < 0 {
		return 0
	}
	if mean > 1 {
		return 1
	}
	return mean
}

func buildPrompt(query string, results []models.SearchResult) (system, user string) {
	return models.SystemPrompt, fmt.Sprintf(models.UserPromptTemplate, buildContext(results), query)
}

func buildContext(results []models.SearchResult) string {
	if len(results) == 0 {
		return models.EmptyContextNote
	}
	sections := make([]string, len(results))
	for i, res := range results {
		label := res.Chunk.Metadata.Source
		if label == "" {
			label = "knowledge base"
		}
		sections[i] = fmt.Sprintf(models.ContextSectionTemplate,
			i+1, label, res.Chunk.Metadata.Question, res.Chunk.Text)
	}
	return strings.Join(sections, models.ContextSeparator)
}
