package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caregiver-rag/internal/config"
	"caregiver-rag/internal/index"
	"caregiver-rag/internal/models"
	"caregiver-rag/internal/ranker"
)

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return f.vector, f.err
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, f.err
}

type fakeCompleter struct {
	answer      string
	fragments   []string
	completeErr error
	streamErr   error
	gotUser     string
}

func (f *fakeCompleter) Complete(_ context.Context, _, user string) (string, error) {
	f.gotUser = user
	return f.answer, f.completeErr
}

func (f *fakeCompleter) CompleteStream(ctx context.Context, _, user string, fn func(ctx context.Context, fragment []byte) error) error {
	f.gotUser = user
	for _, frag := range f.fragments {
		if err := fn(ctx, []byte(frag)); err != nil {
			return err
		}
	}
	return f.streamErr
}

func testConfig() config.RAGConfig {
	return config.RAGConfig{
		VectorSize:      4,
		TopK:            5,
		SimilarityFloor: 0.7,
		VectorWeight:    0.7,
		LexicalWeight:   0.3,
	}
}

func newTestRAG(t *testing.T, idx index.Index, completer *fakeCompleter, queryVector []float32) *RAG {
	t.Helper()
	cfg := testConfig()
	rk := ranker.NewRanker(idx, cfg.VectorWeight, cfg.LexicalWeight, cfg.SimilarityFloor)
	return NewRAG(&fakeEmbedder{vector: queryVector}, rk, completer, idx, cfg)
}

func storeChunk(t *testing.T, idx index.Index, recordID int64, question, answer string, embedding []float32) {
	t.Helper()
	require.NoError(t, idx.Store(context.Background(), []models.Chunk{{
		Text:      question + "\n\n" + answer,
		Embedding: embedding,
		Metadata: models.ChunkMetadata{
			RecordID:    recordID,
			Question:    question,
			Source:      "caregiving-faq.csv",
			TotalChunks: 1,
		},
	}}))
}

func TestConfidence(t *testing.T) {
	assert.Equal(t, 0.0, Confidence(nil))
	assert.InDelta(t, 0.67, Confidence([]models.SearchResult{{Score: 0.78}, {Score: 0.56}}), 1e-9)
	assert.Equal(t, 1.0, Confidence([]models.SearchResult{{Score: 1.4}}))
	assert.Equal(t, 0.0, Confidence([]models.SearchResult{{Score: -0.2}}))
}

func TestAnswer_RanksMatchingChunkFirst(t *testing.T) {
	idx, err := index.NewMemoryIndex()
	require.NoError(t, err)

	storeChunk(t, idx, 1, "What is an ADU?", "An ADU is a small secondary dwelling.", []float32{1, 0, 0, 0})
	unrelated := [][]float32{
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
		{0, 0.7, 0.7, 0},
		{0, 0.7, 0, 0.7},
	}
	questions := []string{
		"How do I apply for Medicaid?",
		"What does a geriatric care manager do?",
		"How much does assisted living cost?",
		"What is a power of attorney?",
		"How do I choose a home health agency?",
	}
	for i, q := range questions {
		storeChunk(t, idx, int64(i+2), q, "Unrelated answer.", unrelated[i])
	}

	completer := &fakeCompleter{answer: "An ADU can house an aging parent close by."}
	r := newTestRAG(t, idx, completer, []float32{0.9, 0.1, 0, 0})

	resp, err := r.Answer(context.Background(), "What is an ADU and how can it be used for elder care?")
	require.NoError(t, err)

	require.NotEmpty(t, resp.Sources)
	assert.Equal(t, int64(1), resp.Sources[0].Chunk.Metadata.RecordID)
	assert.Greater(t, resp.Sources[0].Score, 0.5)
	assert.Equal(t, "An ADU can house an aging parent close by.", resp.Answer)
	assert.Greater(t, resp.Confidence, 0.0)
	assert.LessOrEqual(t, resp.Confidence, 1.0)

	// The prompt grounds the answer in the retrieved chunk.
	assert.Contains(t, completer.gotUser, "caregiving-faq.csv")
	assert.Contains(t, completer.gotUser, "An ADU is a small secondary dwelling.")
}

func TestAnswer_EmptyIndexFallsBackToGeneralGuidance(t *testing.T) {
	idx, err := index.NewMemoryIndex()
	require.NoError(t, err)

	completer := &fakeCompleter{answer: "In general, start by talking with the care team."}
	r := newTestRAG(t, idx, completer, []float32{1, 0, 0, 0})

	resp, err := r.Answer(context.Background(), "How do I plan for memory care?")
	require.NoError(t, err)

	assert.Empty(t, resp.Sources)
	assert.Equal(t, 0.0, resp.Confidence)
	assert.NotEmpty(t, resp.Answer)
	assert.Contains(t, completer.gotUser, models.EmptyContextNote)
}

func TestAnswer_CompletionFailureSurfaces(t *testing.T) {
	idx, err := index.NewMemoryIndex()
	require.NoError(t, err)

	completer := &fakeCompleter{completeErr: errors.New("rate limited")}
	r := newTestRAG(t, idx, completer, []float32{1, 0, 0, 0})

	_, err = r.Answer(context.Background(), "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func collectEvents(ch <-chan models.StreamEvent) []models.StreamEvent {
	var events []models.StreamEvent
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func TestAnswerStream_MetadataFirstThenContent(t *testing.T) {
	idx, err := index.NewMemoryIndex()
	require.NoError(t, err)
	storeChunk(t, idx, 1, "What is respite care?", "Short-term relief for caregivers.", []float32{1, 0, 0, 0})

	completer := &fakeCompleter{fragments: []string{"Respite care ", "gives you a break."}}
	r := newTestRAG(t, idx, completer, []float32{1, 0, 0, 0})

	events := collectEvents(r.AnswerStream(context.Background(), "What is respite care?"))
	require.NotEmpty(t, events)

	assert.Equal(t, models.StreamEventMetadata, events[0].Type)
	assert.NotEmpty(t, events[0].Sources)
	assert.Greater(t, events[0].Confidence, 0.0)

	var text strings.Builder
	for _, ev := range events[1:] {
		require.Equal(t, models.StreamEventContent, ev.Type)
		text.WriteString(ev.Content)
	}
	assert.Equal(t, "Respite care gives you a break.", text.String())
}

func TestAnswerStream_MetadataArrivesEvenWithZeroSources(t *testing.T) {
	idx, err := index.NewMemoryIndex()
	require.NoError(t, err)

	completer := &fakeCompleter{fragments: []string{"General guidance."}}
	r := newTestRAG(t, idx, completer, []float32{1, 0, 0, 0})

	events := collectEvents(r.AnswerStream(context.Background(), "anything"))
	require.NotEmpty(t, events)
	assert.Equal(t, models.StreamEventMetadata, events[0].Type)
	assert.Empty(t, events[0].Sources)
	assert.Equal(t, 0.0, events[0].Confidence)
}

func TestAnswerStream_ErrorEventIsTerminal(t *testing.T) {
	idx, err := index.NewMemoryIndex()
	require.NoError(t, err)

	completer := &fakeCompleter{
		fragments: []string{"partial"},
		streamErr: errors.New("connection reset"),
	}
	r := newTestRAG(t, idx, completer, []float32{1, 0, 0, 0})

	events := collectEvents(r.AnswerStream(context.Background(), "anything"))
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.Equal(t, models.StreamEventError, last.Type)
	assert.Contains(t, last.Message, "connection reset")
	for _, ev := range events[:len(events)-1] {
		assert.NotEqual(t, models.StreamEventError, ev.Type)
	}
}

func TestAnswerStream_EmbedFailureEmitsError(t *testing.T) {
	idx, err := index.NewMemoryIndex()
	require.NoError(t, err)

	cfg := testConfig()
	rk := ranker.NewRanker(idx, cfg.VectorWeight, cfg.LexicalWeight, cfg.SimilarityFloor)
	r := NewRAG(&fakeEmbedder{err: errors.New("quota exceeded")}, rk, &fakeCompleter{}, idx, cfg)

	events := collectEvents(r.AnswerStream(context.Background(), "anything"))
	require.Len(t, events, 2)
	assert.Equal(t, models.StreamEventMetadata, events[0].Type)
	assert.Equal(t, models.StreamEventError, events[1].Type)
	assert.Contains(t, events[1].Message, "quota exceeded")
}

func TestSelfTest_EmptyIndexIsFatal(t *testing.T) {
	idx, err := index.NewMemoryIndex()
	require.NoError(t, err)

	r := newTestRAG(t, idx, &fakeCompleter{answer: "ok"}, []float32{1, 0, 0, 0})

	_, err = r.SelfTest(context.Background())
	assert.ErrorIs(t, err, ErrEmptyIndex)
}

func TestSelfTest_RunsCannedQuery(t *testing.T) {
	idx, err := index.NewMemoryIndex()
	require.NoError(t, err)
	storeChunk(t, idx, 1, "What support is there for new caregivers?", "Local agencies on aging run support programs.", []float32{1, 0, 0, 0})

	r := newTestRAG(t, idx, &fakeCompleter{answer: "Support exists."}, []float32{1, 0, 0, 0})

	resp, err := r.SelfTest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.SelfTestQuery, resp.Query)
	assert.NotEmpty(t, resp.Answer)
}
