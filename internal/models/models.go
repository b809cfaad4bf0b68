package models

import "time"

// RawRecord is a question/answer pair as read from a source, before
// normalization. Source is the file or feed it came from.
type RawRecord struct {
	Question string
	Answer   string
	Category string
	Source   string
}

// KnowledgeRecord is a normalized question/answer pair. It is the logical
// source of truth for the chunks derived from it.
type KnowledgeRecord struct {
	ID       int64
	Question string
	Answer   string
	Category string
	Source   string
}

// ChunkMetadata ties a chunk back to its owning record. ChunkIndex and
// TotalChunks exist so that splitting a record into multiple chunks later
// is an additive change.
type ChunkMetadata struct {
	RecordID    int64
	Question    string
	Category    string
	Source      string
	ChunkIndex  int
	TotalChunks int
}

// Chunk is the unit of retrieval: combined question+answer text plus its
// embedding. The index owns chunk storage; ID is assigned on store.
type Chunk struct {
	ID        int64
	Text      string
	Embedding []float32
	Metadata  ChunkMetadata
	CreatedAt time.Time
}

// SearchResult is one ranked chunk. Origin records which retrieval leg
// produced it ("vector", "lexical" or "hybrid").
type SearchResult struct {
	Chunk  Chunk
	Score  float64
	Origin string
}

// RagResponse is the complete answer to one query.
type RagResponse struct {
	Query      string
	Answer     string
	Sources    []SearchResult
	Confidence float64
}

type StreamEventType string

const (
	StreamEventMetadata StreamEventType = "metadata"
	StreamEventContent  StreamEventType = "content"
	StreamEventError    StreamEventType = "error"
)

// StreamEvent is one element of a streamed answer. The first event of any
// stream is metadata; an error event is terminal.
type StreamEvent struct {
	Type       StreamEventType
	Confidence float64
	Sources    []SearchResult
	Content    string
	Message    string
}

// IngestionReport summarizes one ingestion run.
type IngestionReport struct {
	RunID            string
	Loaded           int
	SkippedDuplicate int
	SkippedInvalid   int
}

// IndexStats describes the current state of the chunk index.
type IndexStats struct {
	TotalChunks        int64
	TotalRecords       int64
	AvgChunksPerRecord float64
}
