package index

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/philippgille/chromem-go"

	"caregiver-rag/internal/models"
)

const memoryCollection = "kb_chunks"

// MemoryIndex is an embedded index for local development and tests. The
// vector leg runs on chromem-go; since chromem stores vectors only, the
// lexical leg scores term overlap against a side table of chunk text.
// The first stored chunk fixes the embedding dimension.
type MemoryIndex struct {
	db  *chromem.DB
	col *chromem.Collection

	mu     sync.Mutex
	chunks map[int64]models.Chunk
	nextID int64
	dim    int
}

var _ Index = (*MemoryIndex)(nil)

func NewMemoryIndex() (*MemoryIndex, error) {
	cdb := chromem.NewDB()
	col, err := cdb.GetOrCreateCollection(memoryCollection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("index: create collection: %w", err)
	}
	return &MemoryIndex{
		db:     cdb,
		col:    col,
		chunks: make(map[int64]models.Chunk),
	}, nil
}

func (m *MemoryIndex) Store(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	m.mu.Lock()
	docs := make([]chromem.Document, 0, len(chunks))
	for _, c := range chunks {
		if m.dim == 0 {
			m.dim = len(c.Embedding)
		} else if len(c.Embedding) != m.dim {
			m.mu.Unlock()
			return fmt.Errorf("index: chunk for record %d has %d-dimensional embedding, index uses %d",
				c.Metadata.RecordID, len(c.Embedding), m.dim)
		}
		m.nextID++
		c.ID = m.nextID
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now()
		}
		m.chunks[c.ID] = c
		docs = append(docs, chromem.Document{
			ID:        strconv.FormatInt(c.ID, 10),
			Content:   c.Text,
			Embedding: c.Embedding,
			Metadata: map[string]string{
				"record_id": strconv.FormatInt(c.Metadata.RecordID, 10),
				"source":    c.Metadata.Source,
			},
		})
	}
	m.mu.Unlock()

	if err := m.col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("index: add documents: %w", err)
	}
	return nil
}

func (m *MemoryIndex) DeleteByRecordID(ctx context.Context, recordID int64) error {
	m.mu.Lock()
	var ids []string
	for id, c := range m.chunks {
		if c.Metadata.RecordID == recordID {
			ids = append(ids, strconv.FormatInt(id, 10))
			delete(m.chunks, id)
		}
	}
	m.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}
	if err := m.col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("index: delete record %d: %w", recordID, err)
	}
	return nil
}

func (m *MemoryIndex) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.db.DeleteCollection(memoryCollection); err != nil {
		return fmt.Errorf("index: delete collection: %w", err)
	}
	col, err := m.db.GetOrCreateCollection(memoryCollection, nil, nil)
	if err != nil {
		return fmt.Errorf("index: recreate collection: %w", err)
	}
	m.col = col
	m.chunks = make(map[int64]models.Chunk)
	m.dim = 0
	return nil
}

func (m *MemoryIndex) VectorSearch(ctx context.Context, queryVector []float32, topK int, similarityFloor float64) ([]models.SearchResult, error) {
	m.mu.Lock()
	dim := m.dim
	total := len(m.chunks)
	m.mu.Unlock()

	if total == 0 {
		return nil, nil
	}
	if dim != 0 && len(queryVector) != dim {
		return nil, fmt.Errorf("%w: got %d, index uses %d", ErrDimensionMismatch, len(queryVector), dim)
	}

	n := topK
	if n > total {
		n = total
	}
	hits, err := m.col.QueryEmbedding(ctx, queryVector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("index: query embedding: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	results := make([]models.SearchResult, 0, len(hits))
	for _, hit := range hits {
		score := float64(hit.Similarity)
		if score <= similarityFloor {
			continue
		}
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		chunk, ok := m.chunks[id]
		if !ok {
			continue
		}
		results = append(results, models.SearchResult{Chunk: chunk, Score: score, Origin: "vector"})
	}
	sortResults(results)
	return results, nil
}

func (m *MemoryIndex) LexicalSearch(ctx context.Context, queryText string, topK int) ([]models.SearchResult, error) {
	terms := tokenize(queryText)
	if len(terms) == 0 {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var results []models.SearchResult
	var maxScore float64
	for _, chunk := range m.chunks {
		text := strings.ToLower(chunk.Text)
		var score float64
		for _, term := range terms {
			score += float64(strings.Count(text, term))
		}
		if score > 0 {
			results = append(results, models.SearchResult{Chunk: chunk, Score: score, Origin: "lexical"})
			if score > maxScore {
				maxScore = score
			}
		}
	}
	// Normalize by the batch max so the top lexical hit scores 1.0,
	// matching the [0,1] range of the Postgres leg.
	for i := range results {
		results[i].Score /= maxScore
	}
	sortResults(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (m *MemoryIndex) Stats(ctx context.Context) (models.IndexStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	records := make(map[int64]bool)
	for _, c := range m.chunks {
		records[c.Metadata.RecordID] = true
	}
	stats := models.IndexStats{
		TotalChunks:  int64(len(m.chunks)),
		TotalRecords: int64(len(records)),
	}
	if stats.TotalRecords > 0 {
		stats.AvgChunksPerRecord = float64(stats.TotalChunks) / float64(stats.TotalRecords)
	}
	return stats, nil
}

func sortResults(results []models.SearchResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	var terms []string
	for _, f := range fields {
		// Single letters and articles add noise, not signal.
		if len(f) > 2 {
			terms = append(terms, f)
		}
	}
	return terms
}
