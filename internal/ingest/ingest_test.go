package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caregiver-rag/internal/index"
	"caregiver-rag/internal/models"
)

// memSource is an in-memory Source for pipeline tests.
type memSource struct {
	name    string
	records []models.RawRecord
	err     error
}

func (s *memSource) Name() string { return s.name }

func (s *memSource) Read() ([]models.RawRecord, error) {
	out := make([]models.RawRecord, len(s.records))
	for i, r := range s.records {
		r.Source = s.name
		out[i] = r
	}
	return out, s.err
}

// fakeEmbedder returns a fixed-dimension vector and can be told to fail
// for texts containing a marker.
type fakeEmbedder struct {
	failOn string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.failOn != "" && strings.Contains(text, f.failOn) {
		return nil, errors.New("provider unavailable")
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func aduSource(name string) *memSource {
	return &memSource{
		name: name,
		records: []models.RawRecord{
			{Question: "What is an ADU?", Answer: "An ADU is a small secondary dwelling."},
			{Question: "what is an adu??", Answer: "Same question, different casing and punctuation."},
		},
	}
}

func TestIngest_DeduplicatesAcrossRecords(t *testing.T) {
	ctx := context.Background()
	idx, err := index.NewMemoryIndex()
	require.NoError(t, err)
	p := NewPipeline(&fakeEmbedder{}, idx, 2)

	report, err := p.Ingest(ctx, []Source{aduSource("faq.csv")})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Loaded)
	assert.Equal(t, 1, report.SkippedDuplicate)
	assert.Equal(t, 0, report.SkippedInvalid)
	assert.NotEmpty(t, report.RunID)

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalChunks)
}

func TestIngest_SameSourceTwiceStoresOnce(t *testing.T) {
	ctx := context.Background()
	idx, err := index.NewMemoryIndex()
	require.NoError(t, err)
	p := NewPipeline(&fakeEmbedder{}, idx, 2)

	single := &memSource{name: "faq.csv", records: []models.RawRecord{
		{Question: "What is respite care?", Answer: "Short-term relief for caregivers."},
	}}

	_, err = p.Ingest(ctx, []Source{single})
	require.NoError(t, err)
	once, err := idx.Stats(ctx)
	require.NoError(t, err)

	require.NoError(t, idx.Clear(ctx))
	report, err := p.Ingest(ctx, []Source{single, single})
	require.NoError(t, err)
	twice, err := idx.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, once.TotalChunks, twice.TotalChunks)
	assert.Equal(t, 1, report.SkippedDuplicate)
}

func TestIngest_SkipsInvalidAndFailedRecords(t *testing.T) {
	ctx := context.Background()
	idx, err := index.NewMemoryIndex()
	require.NoError(t, err)
	p := NewPipeline(&fakeEmbedder{failOn: "flaky"}, idx, 2)

	src := &memSource{name: "faq.csv", records: []models.RawRecord{
		{Question: "What is an ADU?", Answer: "A small secondary dwelling."},
		{Question: "", Answer: "No question at all."},
		{Question: "A flaky one", Answer: "This record fails to embed."},
	}}

	report, err := p.Ingest(ctx, []Source{src})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Loaded)
	assert.Equal(t, 2, report.SkippedInvalid)

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalChunks)
}

func TestIngest_SourceReadErrorAborts(t *testing.T) {
	idx, err := index.NewMemoryIndex()
	require.NoError(t, err)
	p := NewPipeline(&fakeEmbedder{}, idx, 2)

	_, err = p.Ingest(context.Background(), []Source{
		&memSource{name: "broken.csv", err: errors.New("no such file")},
	})
	assert.Error(t, err)
}

func TestReingest_ClearsBeforeLoading(t *testing.T) {
	ctx := context.Background()
	idx, err := index.NewMemoryIndex()
	require.NoError(t, err)
	p := NewPipeline(&fakeEmbedder{}, idx, 2)

	_, err = p.Ingest(ctx, []Source{aduSource("faq.csv")})
	require.NoError(t, err)

	fresh := &memSource{name: "new.csv", records: []models.RawRecord{
		{Question: "What is a care plan?", Answer: "A written plan for day-to-day care."},
	}}
	report, err := p.Reingest(ctx, []Source{fresh})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Loaded)

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalChunks)
}

func TestUpdateRecord_ReplacesChunks(t *testing.T) {
	ctx := context.Background()
	idx, err := index.NewMemoryIndex()
	require.NoError(t, err)
	p := NewPipeline(&fakeEmbedder{}, idx, 2)

	_, err = p.Ingest(ctx, []Source{&memSource{name: "faq.csv", records: []models.RawRecord{
		{Question: "What is an ADU?", Answer: "An outdated answer."},
	}}})
	require.NoError(t, err)

	require.NoError(t, p.UpdateRecord(ctx, models.KnowledgeRecord{
		ID:       1,
		Question: "What is an ADU?",
		Answer:   "An ADU is a small secondary dwelling, often used for aging parents.",
		Source:   "faq.csv",
	}))

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalChunks)

	results, err := idx.LexicalSearch(ctx, "secondary dwelling aging parents", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Chunk.Text, "often used for aging parents")
}

func TestUpdateRecord_RejectsEmptyFields(t *testing.T) {
	idx, err := index.NewMemoryIndex()
	require.NoError(t, err)
	p := NewPipeline(&fakeEmbedder{}, idx, 2)

	err = p.UpdateRecord(context.Background(), models.KnowledgeRecord{ID: 1, Question: "  ", Answer: "x"})
	assert.Error(t, err)
}

func TestChunkText(t *testing.T) {
	rec := models.KnowledgeRecord{Question: "Q?", Answer: "A."}
	assert.Equal(t, "Q?\n\nA.", ChunkText(rec))
}
