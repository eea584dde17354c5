package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"vexa/crawler"
	"vexa/ingest"
	"vexa/pkg/chunking"
	"vexa/repository"
	"vexa/search"
)

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

// statusFor maps pipeline errors onto HTTP statuses. Validation failures are
// the caller's fault; everything else is a server-side failure.
func statusFor(err error) int {
	var verr *ingest.ValidationError
	switch {
	case errors.As(err, &verr),
		errors.Is(err, search.ErrInvalidLimit),
		errors.Is(err, search.ErrEmptyQuery),
		errors.Is(err, crawler.ErrInvalidSeedURL):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

type crawlRequest struct {
	SeedURL             string `json:"seed_url"`
	MaxPages            int    `json:"max_pages,omitempty"`
	FollowExternalLinks bool   `json:"follow_external_links,omitempty"`
	Concurrency         int    `json:"concurrency,omitempty"`
	TimeoutSeconds      int    `json:"timeout_seconds,omitempty"`
	Strategy            string `json:"strategy,omitempty"`
}

func (r crawlRequest) toCrawler() crawler.Request {
	return crawler.Request{
		SeedURL:             r.SeedURL,
		MaxPages:            r.MaxPages,
		FollowExternalLinks: r.FollowExternalLinks,
		Concurrency:         r.Concurrency,
		Timeout:             time.Duration(r.TimeoutSeconds) * time.Second,
	}
}

// CrawlSummary is the stored result of one crawl task: fetch statistics plus
// per-page ingestion results.
type CrawlSummary struct {
	BaseURL      string               `json:"base_url"`
	PagesCrawled int                  `json:"pages_crawled"`
	PagesFailed  int                  `json:"pages_failed"`
	PageErrors   []*crawler.PageError `json:"page_errors,omitempty"`
	Ingested     int                  `json:"ingested"`
	Duplicates   int                  `json:"duplicates"`
	IngestErrors []ingest.BatchItem   `json:"ingest_errors,omitempty"`
	DurationMs   int64                `json:"duration_ms"`
}

type taskAccepted struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

func (s *Server) handleCrawl(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if !validStrategy(req.Strategy) {
		s.writeJSON(w, http.StatusBadRequest,
			errorResponse{Error: fmt.Sprintf("unknown chunking strategy %q", req.Strategy)})
		return
	}
	if _, err := crawler.ParseSeed(req.SeedURL); err != nil {
		s.writeError(w, err)
		return
	}

	task := s.tasks.Submit(s.baseCtx, "crawl", func(ctx context.Context) (any, error) {
		return s.crawlAndIngest(ctx, req)
	})
	s.writeJSON(w, http.StatusAccepted, taskAccepted{TaskID: task.ID, Status: string(task.Status)})
}

type crawlBatchRequest struct {
	Seeds []crawlRequest `json:"seeds"`
}

func (s *Server) handleCrawlBatch(w http.ResponseWriter, r *http.Request) {
	var req crawlBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if len(req.Seeds) == 0 {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "seeds must not be empty"})
		return
	}
	if len(req.Seeds) > maxBatchSeeds {
		s.writeJSON(w, http.StatusBadRequest,
			errorResponse{Error: fmt.Sprintf("at most %d seeds per batch", maxBatchSeeds)})
		return
	}
	for _, seed := range req.Seeds {
		if _, err := crawler.ParseSeed(seed.SeedURL); err != nil {
			s.writeError(w, err)
			return
		}
	}

	task := s.tasks.Submit(s.baseCtx, "crawl_batch", func(ctx context.Context) (any, error) {
		results := make(map[string]any, len(req.Seeds))
		for _, seed := range req.Seeds {
			summary, err := s.crawlAndIngest(ctx, seed)
			if err != nil {
				results[seed.SeedURL] = errorResponse{Error: err.Error()}
				continue
			}
			results[seed.SeedURL] = summary
		}
		return results, nil
	})
	s.writeJSON(w, http.StatusAccepted, taskAccepted{TaskID: task.ID, Status: string(task.Status)})
}

// crawlAndIngest runs one crawl and feeds every fetched page through the
// ingestion pipeline.
func (s *Server) crawlAndIngest(ctx context.Context, req crawlRequest) (*CrawlSummary, error) {
	result, err := s.crawler.Crawl(ctx, req.toCrawler())
	if err != nil {
		return nil, err
	}

	summary := &CrawlSummary{
		BaseURL:      result.BaseURL,
		PagesCrawled: result.TotalPagesCrawled,
		PagesFailed:  len(result.Errors),
		PageErrors:   result.Errors,
		DurationMs:   result.Duration.Milliseconds(),
	}
	for _, page := range result.Pages {
		outcome, err := s.pipeline.Ingest(ctx, ingest.Source{
			SourceType:       repository.SourceURL,
			SourceIdentifier: page.URL,
			Title:            page.Title,
			Text:             page.Text,
			BaseURL:          result.BaseURL,
			ImageCount:       page.ImageCount,
			Strategy:         chunkStrategy(req.Strategy),
		})
		if err != nil {
			summary.IngestErrors = append(summary.IngestErrors, ingest.BatchItem{
				SourceIdentifier: page.URL,
				Error:            err.Error(),
			})
			continue
		}
		if outcome.Duplicate {
			summary.Duplicates++
			continue
		}
		summary.Ingested++
	}
	return summary, nil
}

type ingestTextRequest struct {
	SourceIdentifier string         `json:"source_identifier"`
	Title            string         `json:"title,omitempty"`
	Text             string         `json:"text"`
	SourceType       string         `json:"source_type,omitempty"`
	Strategy         string         `json:"strategy,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

func (r ingestTextRequest) toSource() ingest.Source {
	sourceType := repository.SourceType(r.SourceType)
	if sourceType == "" {
		sourceType = repository.SourceText
	}
	return ingest.Source{
		SourceType:       sourceType,
		SourceIdentifier: r.SourceIdentifier,
		Title:            r.Title,
		Text:             r.Text,
		Metadata:         r.Metadata,
		Strategy:         chunkStrategy(r.Strategy),
	}
}

func (s *Server) handleIngestText(w http.ResponseWriter, r *http.Request) {
	var req ingestTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if !validStrategy(req.Strategy) {
		s.writeJSON(w, http.StatusBadRequest,
			errorResponse{Error: fmt.Sprintf("unknown chunking strategy %q", req.Strategy)})
		return
	}

	outcome, err := s.pipeline.Ingest(r.Context(), req.toSource())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, outcome)
}

// maxUploadBytes bounds one uploaded file.
const maxUploadBytes = 50 << 20

// handleIngestFile accepts a multipart upload, extracts its text with the
// extension-matched extractor and feeds it through the pipeline. The filename
// is the source identifier; "title" and "strategy" form fields are optional.
func (s *Server) handleIngestFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	upload, header, err := r.FormFile("file")
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "file form field is required"})
		return
	}
	defer upload.Close()

	strategy := r.FormValue("strategy")
	if !validStrategy(strategy) {
		s.writeJSON(w, http.StatusBadRequest,
			errorResponse{Error: fmt.Sprintf("unknown chunking strategy %q", strategy)})
		return
	}

	data, err := io.ReadAll(upload)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "read upload: " + err.Error()})
		return
	}
	extraction, err := s.files.Extract(header.Filename, data)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	title := r.FormValue("title")
	if title == "" {
		title = extraction.Title
	}
	outcome, err := s.pipeline.Ingest(r.Context(), ingest.Source{
		SourceType:       extraction.SourceType,
		SourceIdentifier: header.Filename,
		Title:            title,
		Text:             extraction.Text,
		Metadata: map[string]any{
			"filename":   header.Filename,
			"size_bytes": len(data),
		},
		Strategy: chunkStrategy(strategy),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, outcome)
}

type ingestBatchRequest struct {
	Items []ingestTextRequest `json:"items"`
}

func (s *Server) handleIngestBatch(w http.ResponseWriter, r *http.Request) {
	var req ingestBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if len(req.Items) == 0 {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "items must not be empty"})
		return
	}

	sources := make([]ingest.Source, 0, len(req.Items))
	for _, item := range req.Items {
		if !validStrategy(item.Strategy) {
			s.writeJSON(w, http.StatusBadRequest,
				errorResponse{Error: fmt.Sprintf("unknown chunking strategy %q", item.Strategy)})
			return
		}
		sources = append(sources, item.toSource())
	}
	items := s.pipeline.IngestBatch(r.Context(), sources)
	s.writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type reembedRequest struct {
	Limit uint32 `json:"limit,omitempty"`
}

func (s *Server) handleReembed(w http.ResponseWriter, r *http.Request) {
	var req reembedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if req.Limit == 0 {
		req.Limit = 100
	}

	outcome, err := s.pipeline.Reembed(r.Context(), req.Limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, outcome)
}

type searchRequest struct {
	Query         string `json:"query"`
	TopK          int    `json:"top_k"`
	SourceType    string `json:"source_type,omitempty"`
	BaseURLPrefix string `json:"base_url_prefix,omitempty"`
	CreatedAfter  string `json:"created_after,omitempty"`
	CreatedBefore string `json:"created_before,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	filter := repository.SearchFilter{
		SourceType:    repository.SourceType(req.SourceType),
		BaseURLPrefix: req.BaseURLPrefix,
	}
	var err error
	if filter.CreatedAfter, err = parseTime(req.CreatedAfter); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "created_after: " + err.Error()})
		return
	}
	if filter.CreatedBefore, err = parseTime(req.CreatedBefore); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "created_before: " + err.Error()})
		return
	}

	hits, err := s.searcher.Search(r.Context(), search.Request{
		Query:  req.Query,
		TopK:   req.TopK,
		Filter: filter,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"results": hits, "count": len(hits)})
}

func (s *Server) handleGetContent(w http.ResponseWriter, r *http.Request) {
	identifier := r.URL.Query().Get("identifier")
	if identifier == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "identifier query parameter is required"})
		return
	}

	rec, err := s.contents.GetByIdentifier(r.Context(), identifier)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteByBaseURL(w http.ResponseWriter, r *http.Request) {
	baseURL := r.URL.Query().Get("base_url")
	if baseURL == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "base_url query parameter is required"})
		return
	}

	recs, err := s.contents.ListByBaseURL(r.Context(), baseURL)
	if err != nil {
		s.writeError(w, err)
		return
	}
	deleted := 0
	for _, rec := range recs {
		if err := s.vectors.DeleteByContentID(r.Context(), rec.ID); err != nil {
			s.writeError(w, err)
			return
		}
		if err := s.contents.Delete(r.Context(), rec.SourceIdentifier); err != nil {
			s.writeError(w, err)
			return
		}
		deleted++
	}
	s.logger.Info("deleted by base url",
		zap.String("base_url", baseURL), zap.Int("records", deleted))
	s.writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	records, err := s.contents.Count(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	chunks, err := s.vectors.CountChunks(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"content_records":    records,
		"chunks":             chunks,
		"embedder_model":     s.embedder.Model(),
		"embedder_dimension": s.embedder.Dimension(),
	})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.tasks.Get(r.PathValue("id"))
	if !ok {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown task"})
		return
	}
	s.writeJSON(w, http.StatusOK, task)
}

func chunkStrategy(name string) chunking.Strategy {
	if name == "" {
		return chunking.StrategyRecursive
	}
	return chunking.Strategy(name)
}

func validStrategy(name string) bool {
	switch chunking.Strategy(name) {
	case "", chunking.StrategyRecursive, chunking.StrategyParagraphs,
		chunking.StrategySentences, chunking.StrategyMarkdown:
		return true
	}
	return false
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, value)
}
