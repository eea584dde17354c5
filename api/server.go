package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"vexa/crawler"
	"vexa/file"
	"vexa/ingest"
	"vexa/pkg/embedding"
	"vexa/repository"
	"vexa/search"
	"vexa/tasks"
)

// maxBatchSeeds bounds a single batch crawl request.
const maxBatchSeeds = 10

// Server is the HTTP surface over the ingestion and retrieval pipeline.
type Server struct {
	pipeline *ingest.Pipeline
	searcher *search.Coordinator
	crawler  *crawler.Crawler
	contents repository.ContentRepo
	vectors  repository.VectorRepo
	embedder embedding.Client
	files    *file.Registry
	tasks    *tasks.Manager
	logger   *zap.Logger

	// baseCtx bounds background crawl tasks instead of the submitting
	// request's context.
	baseCtx context.Context
}

func NewServer(
	pipeline *ingest.Pipeline,
	searcher *search.Coordinator,
	crawl *crawler.Crawler,
	contents repository.ContentRepo,
	vectors repository.VectorRepo,
	embedder embedding.Client,
	files *file.Registry,
	taskManager *tasks.Manager,
	logger *zap.Logger,
) *Server {
	return &Server{
		pipeline: pipeline,
		searcher: searcher,
		crawler:  crawl,
		contents: contents,
		vectors:  vectors,
		embedder: embedder,
		files:    files,
		tasks:    taskManager,
		logger:   logger,
		baseCtx:  context.Background(),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /crawl", s.handleCrawl)
	mux.HandleFunc("POST /crawl/batch", s.handleCrawlBatch)
	mux.HandleFunc("POST /ingest/text", s.handleIngestText)
	mux.HandleFunc("POST /ingest/file", s.handleIngestFile)
	mux.HandleFunc("POST /ingest/batch", s.handleIngestBatch)
	mux.HandleFunc("POST /reembed", s.handleReembed)
	mux.HandleFunc("POST /search", s.handleSearch)
	mux.HandleFunc("GET /content", s.handleGetContent)
	mux.HandleFunc("DELETE /content", s.handleDeleteByBaseURL)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /tasks/{id}", s.handleGetTask)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

// Start serves until ctx is cancelled, then drains in-flight requests and
// background tasks.
func (s *Server) Start(ctx context.Context, port int) error {
	s.baseCtx = ctx
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.Handler(),
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", zap.Int("port", port))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.tasks.Wait()
	return nil
}
