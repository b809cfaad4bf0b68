package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"caregiver-rag/internal/embedding"
	"caregiver-rag/internal/index"
	"caregiver-rag/internal/models"
	"caregiver-rag/internal/normalizer"
)

// Pipeline loads knowledge records into the index: read, normalize,
// embed, store. Construct once and reuse; the mutex serializes a rebuild's
// clear against any concurrent store on the same index.
type Pipeline struct {
	embedder    embedding.Provider
	index       index.Index
	concurrency int

	mu sync.Mutex
}

func NewPipeline(embedder embedding.Provider, idx index.Index, concurrency int) *Pipeline {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pipeline{embedder: embedder, index: idx, concurrency: concurrency}
}

// Ingest loads all sources into the index. Deduplication runs across the
// combined input of all sources. A record whose embedding call fails is
// skipped and counted; it does not abort the run.
func (p *Pipeline) Ingest(ctx context.Context, sources []Source) (*models.IngestionReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ingest(ctx, sources)
}

// Reingest rebuilds the index from scratch: clear, then load.
func (p *Pipeline) Reingest(ctx context.Context, sources []Source) (*models.IngestionReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.index.Clear(ctx); err != nil {
		return nil, fmt.Errorf("ingest: clear index: %w", err)
	}
	return p.ingest(ctx, sources)
}

// UpdateRecord re-embeds a single record in place: old chunks out, new
// chunks in, no full rebuild.
func (p *Pipeline) UpdateRecord(ctx context.Context, record models.KnowledgeRecord) error {
	record.Question = normalizer.CleanText(record.Question)
	record.Answer = normalizer.CleanText(record.Answer)
	if record.Question == "" || record.Answer == "" {
		return fmt.Errorf("ingest: record %d needs a non-empty question and answer", record.ID)
	}

	chunk, err := p.buildChunk(ctx, record)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.index.DeleteByRecordID(ctx, record.ID); err != nil {
		return err
	}
	return p.index.Store(ctx, []models.Chunk{chunk})
}

func (p *Pipeline) ingest(ctx context.Context, sources []Source) (*models.IngestionReport, error) {
	report := &models.IngestionReport{RunID: uuid.NewString()}

	var raw []models.RawRecord
	for _, src := range sources {
		records, err := src.Read()
		if err != nil {
			return nil, err
		}
		log.Debug().Str("source", src.Name()).Int("records", len(records)).Msg("Read source")
		raw = append(raw, records...)
	}

	records, normReport := normalizer.Normalize(raw)
	report.SkippedInvalid = normReport.SkippedInvalid
	report.SkippedDuplicate = normReport.SkippedDuplicate

	chunks := p.embedAll(ctx, records, report)
	if err := p.index.Store(ctx, chunks); err != nil {
		return nil, fmt.Errorf("ingest: store chunks: %w", err)
	}
	report.Loaded = len(chunks)

	log.Info().
		Str("run_id", report.RunID).
		Int("loaded", report.Loaded).
		Int("skipped_duplicate", report.SkippedDuplicate).
		Int("skipped_invalid", report.SkippedInvalid).
		Msg("Ingestion complete")
	return report, nil
}

// embedAll embeds records with bounded concurrency to respect provider
// rate limits. Output order follows input order so chunk ids are
// deterministic for a given input.
func (p *Pipeline) embedAll(ctx context.Context, records []models.KnowledgeRecord, report *models.IngestionReport) []models.Chunk {
	type slot struct {
		chunk models.Chunk
		err   error
	}
	slots := make([]slot, len(records))

	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup
	for i := range records {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := ctx.Err(); err != nil {
				slots[i].err = err
				return
			}
			slots[i].chunk, slots[i].err = p.buildChunk(ctx, records[i])
		}(i)
	}
	wg.Wait()

	chunks := make([]models.Chunk, 0, len(records))
	for i, s := range slots {
		if s.err != nil {
			report.SkippedInvalid++
			log.Warn().Err(s.err).Int64("record_id", records[i].ID).Msg("Skipping record, embedding failed")
			continue
		}
		chunks = append(chunks, s.chunk)
	}
	return chunks
}

func (p *Pipeline) buildChunk(ctx context.Context, record models.KnowledgeRecord) (models.Chunk, error) {
	text := ChunkText(record)
	vec, err := p.embedder.Embed(ctx, text)
	if err != nil {
		return models.Chunk{}, fmt.Errorf("ingest: embed record %d: %w", record.ID, err)
	}
	return models.Chunk{
		Text:      text,
		Embedding: vec,
		Metadata: models.ChunkMetadata{
			RecordID:    record.ID,
			Question:    record.Question,
			Category:    record.Category,
			Source:      record.Source,
			ChunkIndex:  0,
			TotalChunks: 1,
		},
	}, nil
}

// ChunkText is the retrievable text for a record: question and answer
// combined, one chunk per record.
func ChunkText(record models.KnowledgeRecord) string {
	return record.Question + "\n\n" + record.Answer
}
