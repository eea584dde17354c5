package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"vexa/api"
	"vexa/config"
	"vexa/crawler"
	"vexa/file"
	"vexa/ingest"
	"vexa/pkg/boltstore"
	"vexa/pkg/chunking"
	"vexa/pkg/embedding"
	"vexa/pkg/qdrantdb"
	"vexa/search"
	"vexa/tasks"
)

func main() {
	// =========
	// Config
	// =========
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// =========
	// Logging
	// =========
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// =========
	// Content store (bbolt)
	// =========
	contents, err := boltstore.Open(cfg.BoltPath)
	if err != nil {
		logger.Fatal("failed to open content store", zap.Error(err))
	}
	defer contents.Close()

	// =========
	// Qdrant vector store
	// =========
	vectors, err := qdrantdb.NewClient(cfg.QdrantHost, cfg.QdrantPort, cfg.EmbedderDimension)
	if err != nil {
		logger.Fatal("failed to connect to qdrant", zap.Error(err))
	}
	defer vectors.Close()
	if err := vectors.EnsureCollection(ctx); err != nil {
		logger.Fatal("failed to ensure chunk collection", zap.Error(err))
	}

	// =========
	// Embedding client
	// =========
	embedder := embedding.NewTEI(cfg.EmbedderURL, cfg.EmbedderModel, cfg.EmbedderDimension)

	// =========
	// Chunking client
	// =========
	splitter, err := chunking.NewSplitter(cfg.Chunking)
	if err != nil {
		logger.Fatal("failed to create splitter", zap.Error(err))
	}

	// =========
	// Crawler
	// =========
	httpClient := &http.Client{Timeout: 5 * time.Minute}
	crawl := crawler.New(httpClient, crawler.NewHTMLExtractor(), cfg.Crawler, logger)

	// =========
	// Pipeline, search, tasks, HTTP
	// =========
	pipeline := ingest.NewPipeline(contents, vectors, splitter, embedder, logger)
	coordinator := search.NewCoordinator(vectors, embedder, logger)
	manager := tasks.NewManager(cfg.Crawler.Concurrency, logger)

	server := api.NewServer(pipeline, coordinator, crawl, contents, vectors, embedder, file.NewRegistry(), manager, logger)
	if err := server.Start(ctx, cfg.AppPort); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
