package ranker

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"caregiver-rag/internal/index"
	"caregiver-rag/internal/models"
)

// Ranker fuses the two retrieval legs into a single ranking with a
// weighted sum. A chunk present in only one leg contributes zero for the
// missing leg; it is not excluded and not penalized further.
type Ranker struct {
	index           index.Index
	vectorWeight    float64
	lexicalWeight   float64
	similarityFloor float64
}

func NewRanker(idx index.Index, vectorWeight, lexicalWeight, similarityFloor float64) *Ranker {
	return &Ranker{
		index:           idx,
		vectorWeight:    vectorWeight,
		lexicalWeight:   lexicalWeight,
		similarityFloor: similarityFloor,
	}
}

// Rank runs both legs capped at topK, fuses them, and returns at most topK
// results ordered by fused score descending, chunk id ascending on ties.
func (r *Ranker) Rank(ctx context.Context, queryText string, queryVector []float32, topK int) ([]models.SearchResult, error) {
	var (
		vectorResults, lexicalResults []models.SearchResult
		vectorErr, lexicalErr         error
		wg                            sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		vectorResults, vectorErr = r.index.VectorSearch(ctx, queryVector, topK, r.similarityFloor)
	}()
	go func() {
		defer wg.Done()
		lexicalResults, lexicalErr = r.index.LexicalSearch(ctx, queryText, topK)
	}()
	wg.Wait()

	if vectorErr != nil {
		return nil, fmt.Errorf("ranker: vector leg: %w", vectorErr)
	}
	if lexicalErr != nil {
		return nil, fmt.Errorf("ranker: lexical leg: %w", lexicalErr)
	}

	log.Debug().
		Int("vector_hits", len(vectorResults)).
		Int("lexical_hits", len(lexicalResults)).
		Msg("Fusing search results")

	fused := r.fuse(vectorResults, lexicalResults)
	if len(fused) > topK {
		fused = fused[:topK]
	}
	return fused, nil
}

func (r *Ranker) fuse(vectorResults, lexicalResults []models.SearchResult) []models.SearchResult {
	byID := make(map[int64]models.SearchResult)

	for _, res := range vectorResults {
		res.Score = res.Score * r.vectorWeight
		res.Origin = "hybrid"
		byID[res.Chunk.ID] = res
	}
	for _, res := range lexicalResults {
		if existing, ok := byID[res.Chunk.ID]; ok {
			existing.Score += res.Score * r.lexicalWeight
			byID[res.Chunk.ID] = existing
			continue
		}
		res.Score = res.Score * r.lexicalWeight
		res.Origin = "hybrid"
		byID[res.Chunk.ID] = res
	}

	fused := make([]models.SearchResult, 0, len(byID))
	for _, res := range byID {
		fused = append(fused, res)
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].Chunk.ID < fused[j].Chunk.ID
	})
	return fused
}
