package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"caregiver-rag/internal/config"
	"caregiver-rag/internal/db"
	"caregiver-rag/internal/embedding"
	"caregiver-rag/internal/index"
	"caregiver-rag/internal/ingest"
	"caregiver-rag/internal/llm"
	"caregiver-rag/internal/models"
	"caregiver-rag/internal/rag"
	"caregiver-rag/internal/ranker"
)

const configFilePath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", configFilePath, "Path to the config file")
	ingestFiles := flag.String("ingest", "", "Comma-separated source files to ingest")
	rebuild := flag.Bool("rebuild", false, "Clear the index before ingesting")
	query := flag.String("query", "", "Question to answer")
	stream := flag.Bool("stream", false, "Stream the answer instead of blocking")
	stats := flag.Bool("stats", false, "Print index statistics")
	selfTest := flag.Bool("selftest", false, "Run the canned self-test query")
	initSchema := flag.Bool("init", false, "Create the database schema")
	updateID := flag.Int64("update", 0, "Record id to re-embed (requires -question and -answer)")
	updateQuestion := flag.String("question", "", "New question text for -update")
	updateAnswer := flag.String("answer", "", "New answer text for -update")
	updateCategory := flag.String("category", "", "New category for -update")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}

	ctx := context.Background()

	dbClient, err := db.ConnectDB(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Error connecting to database")
	}
	bunDB := db.NewDB(dbClient, cfg.Database.Debug)
	defer bunDB.Close()

	if *initSchema {
		if err := db.InitDB(ctx, bunDB, cfg.RAG.VectorSize); err != nil {
			log.Fatal().Err(err).Msg("Error initializing database")
		}
		log.Info().Msg("Schema ready")
		return
	}

	idx := index.NewPGIndex(bunDB, cfg.RAG.VectorSize)
	if err := idx.Initialize(ctx); err != nil {
		log.Fatal().Err(err).Msg("Index schema missing")
	}

	embedder, err := embedding.NewProvider(&cfg.EmbedLLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}

	switch {
	case *ingestFiles != "":
		runIngest(ctx, cfg, embedder, idx, *ingestFiles, *rebuild)
	case *updateID != 0:
		pipeline := ingest.NewPipeline(embedder, idx, cfg.RAG.Concurrency)
		record := models.KnowledgeRecord{
			ID:       *updateID,
			Question: *updateQuestion,
			Answer:   *updateAnswer,
			Category: *updateCategory,
			Source:   "manual-update",
		}
		if err := pipeline.UpdateRecord(ctx, record); err != nil {
			log.Fatal().Err(err).Msg("Error updating record")
		}
		log.Info().Int64("record_id", *updateID).Msg("Record updated")
	case *stats:
		printStats(ctx, idx)
	case *selfTest:
		service := newRAG(cfg, embedder, idx)
		resp, err := service.SelfTest(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Self-test failed")
		}
		printResponse(resp)
	case *query != "":
		service := newRAG(cfg, embedder, idx)
		if *stream {
			runStream(ctx, service, *query)
			return
		}
		resp, err := service.Answer(ctx, *query)
		if err != nil {
			log.Fatal().Err(err).Msg("Error answering query")
		}
		printResponse(resp)
	default:
		log.Fatal().Msg("Provide -ingest, -query, -update, -stats, -selftest or -init")
	}
}

func newRAG(cfg *config.Config, embedder embedding.Provider, idx index.Index) *rag.RAG {
	completer, err := llm.NewCompleter(&cfg.ChatLLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing completer")
	}
	rk := ranker.NewRanker(idx, cfg.RAG.VectorWeight, cfg.RAG.LexicalWeight, cfg.RAG.SimilarityFloor)
	return rag.NewRAG(embedder, rk, completer, idx, cfg.RAG)
}

func runIngest(ctx context.Context, cfg *config.Config, embedder embedding.Provider, idx index.Index, files string, rebuild bool) {
	var sources []ingest.Source
	for _, path := range strings.Split(files, ",") {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		src, err := ingest.Open(path)
		if err != nil {
			log.Fatal().Err(err).Msg("Error opening source")
		}
		sources = append(sources, src)
	}
	if len(sources) == 0 {
		log.Fatal().Msg("No sources to ingest")
	}

	pipeline := ingest.NewPipeline(embedder, idx, cfg.RAG.Concurrency)
	var report *models.IngestionReport
	var err error
	if rebuild {
		report, err = pipeline.Reingest(ctx, sources)
	} else {
		report, err = pipeline.Ingest(ctx, sources)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Ingestion failed")
	}
	fmt.Printf("run %s: loaded %d, skipped %d duplicates, %d invalid\n",
		report.RunID, report.Loaded, report.SkippedDuplicate, report.SkippedInvalid)
}

func runStream(ctx context.Context, service *rag.RAG, query string) {
	for ev := range service.AnswerStream(ctx, query) {
		switch ev.Type {
		case models.StreamEventMetadata:
			fmt.Printf("confidence: %.2f, sources: %d\n", ev.Confidence, len(ev.Sources))
			for i, src := range ev.Sources {
				fmt.Printf("  %d. [%s] %s (%.2f)\n", i+1, src.Chunk.Metadata.Source, src.Chunk.Metadata.Question, src.Score)
			}
		case models.StreamEventContent:
			fmt.Print(ev.Content)
		case models.StreamEventError:
			fmt.Println()
			log.Fatal().Str("message", ev.Message).Msg("Stream failed")
		}
	}
	fmt.Println()
}

func printStats(ctx context.Context, idx index.Index) {
	stats, err := idx.Stats(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Error fetching stats")
	}
	fmt.Printf("chunks: %d, records: %d, avg chunks/record: %.2f\n",
		stats.TotalChunks, stats.TotalRecords, stats.AvgChunksPerRecord)
}

func printResponse(resp *models.RagResponse) {
	log.Info().Float64("confidence", resp.Confidence).Int("sources", len(resp.Sources)).Msg("Query answered")

	fmt.Printf("%s\n\n", resp.Query)
	for i, src := range resp.Sources {
		fmt.Printf("  %d. [%s] %s (%.2f)\n", i+1, src.Chunk.Metadata.Source, src.Chunk.Metadata.Question, src.Score)
	}
	fmt.Printf("\n%s\n", resp.Answer)
}
