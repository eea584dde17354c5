package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vexa/pkg/chunking"
	"vexa/pkg/embedding"
	"vexa/repository"
)

// Source describes one unit of content handed to the pipeline, whatever its
// origin: a crawled page, an extracted file, or raw text.
type Source struct {
	SourceType       repository.SourceType
	SourceIdentifier string
	Title            string
	Text             string
	BaseURL          string
	ImageCount       int
	Metadata         map[string]any
	Strategy         chunking.Strategy
}

// Outcome summarizes one ingestion. Duplicate means the identifier already
// held content with the same hash and nothing was touched. Warning is set
// when the record was stored but could not be made searchable.
type Outcome struct {
	ContentID     string `json:"content_id"`
	ChunksCreated int    `json:"chunks_created"`
	VectorStored  bool   `json:"vector_stored"`
	Duplicate     bool   `json:"duplicate"`
	EmbedFailures int    `json:"embed_failures,omitempty"`
	Warning       string `json:"warning,omitempty"`
}

// BatchItem is the per-source result of a batch ingestion. One item's failure
// never masks its siblings.
type BatchItem struct {
	SourceIdentifier string   `json:"source_identifier"`
	Outcome          *Outcome `json:"outcome,omitempty"`
	Error            string   `json:"error,omitempty"`
}

// ReembedOutcome reports one re-embed pass over chunks stored without a
// vector.
type ReembedOutcome struct {
	Scanned  int `json:"scanned"`
	Embedded int `json:"embedded"`
	Failed   int `json:"failed"`
}

// Pipeline runs dedup, chunking, embedding and storage for every ingested
// source. Writes to one source identifier are serialized through an
// in-process lock table; independent identifiers ingest concurrently.
type Pipeline struct {
	contents repository.ContentRepo
	vectors  repository.VectorRepo
	chunker  chunking.Client
	embedder embedding.Client
	logger   *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewPipeline(
	contents repository.ContentRepo,
	vectors repository.VectorRepo,
	chunker chunking.Client,
	embedder embedding.Client,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		contents: contents,
		vectors:  vectors,
		chunker:  chunker,
		embedder: embedder,
		logger:   logger,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (p *Pipeline) lockFor(identifier string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.locks[identifier]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[identifier] = lock
	}
	return lock
}

// Ingest runs the full pipeline for one source. Validation failures leave no
// partial state. A chunker failure still persists the record (stored but not
// searchable) and reports a warning. A single chunk's embedding failure does
// not abort the batch: the chunk is stored without a vector and picked up by
// a later Reembed pass.
func (p *Pipeline) Ingest(ctx context.Context, src Source) (*Outcome, error) {
	if src.SourceIdentifier == "" {
		return nil, &ValidationError{Field: "source_identifier", Reason: "required"}
	}
	text, err := NormalizeText(src.Text)
	if err != nil {
		return nil, err
	}

	lock := p.lockFor(src.SourceIdentifier)
	lock.Lock()
	defer lock.Unlock()

	hash := Fingerprint(text)
	existing, err := p.contents.GetByIdentifier(ctx, src.SourceIdentifier)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("ingest: lookup %s: %w", src.SourceIdentifier, err)
	}
	if existing != nil && IsDuplicate(existing.ContentHash, hash) {
		p.logger.Debug("duplicate content, skipping",
			zap.String("source_identifier", src.SourceIdentifier))
		return &Outcome{ContentID: existing.ID, Duplicate: true}, nil
	}

	now := time.Now().UTC()
	rec := &repository.ContentRecord{
		ID:               uuid.NewString(),
		SourceType:       src.SourceType,
		SourceIdentifier: src.SourceIdentifier,
		BaseURL:          src.BaseURL,
		Title:            src.Title,
		Text:             text,
		Snippet:          Snippet(text, snippetLength),
		ContentHash:      hash,
		WordCount:        wordCount(text),
		ImageCount:       src.ImageCount,
		Metadata:         src.Metadata,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if existing != nil {
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
	}
	if err := p.contents.Upsert(ctx, rec); err != nil {
		return nil, fmt.Errorf("ingest: store record %s: %w", src.SourceIdentifier, err)
	}

	outcome := &Outcome{ContentID: rec.ID}

	strategy := src.Strategy
	if strategy == "" {
		strategy = chunking.StrategyRecursive
	}
	spans, err := p.chunker.Chunk(text, strategy)
	if err != nil {
		// record stays; the old chunk set must not outlive the old text
		if existing != nil {
			if delErr := p.vectors.DeleteByContentID(ctx, rec.ID); delErr != nil {
				return nil, fmt.Errorf("ingest: drop stale chunks for %s: %w", rec.ID, delErr)
			}
		}
		p.logger.Warn("chunking failed, record stored without chunks",
			zap.String("source_identifier", src.SourceIdentifier),
			zap.Error(err))
		outcome.Warning = fmt.Sprintf("chunking failed: %v", err)
		return outcome, nil
	}

	chunks := make([]repository.Chunk, 0, len(spans))
	for _, span := range spans {
		vector, embErr := p.embedder.GetEmbeddings(ctx, []string{span.Text})
		chunk := repository.Chunk{
			ID:         chunkID(rec.ID, span.Index),
			ContentID:  rec.ID,
			Index:      span.Index,
			StartChar:  span.StartChar,
			EndChar:    span.EndChar,
			TokenCount: span.TokenCount,
			Text:       span.Text,
		}
		if embErr != nil {
			outcome.EmbedFailures++
			p.logger.Warn("embedding failed, chunk stored without vector",
				zap.String("content_id", rec.ID),
				zap.Int("chunk_index", span.Index),
				zap.Error(embErr))
		} else if len(vector) > 0 {
			chunk.Embedding = vector[0]
		}
		chunks = append(chunks, chunk)
	}

	if err := p.vectors.ReplaceChunks(ctx, rec, chunks); err != nil {
		return nil, fmt.Errorf("ingest: store chunks for %s: %w", rec.ID, err)
	}
	outcome.ChunksCreated = len(chunks)
	outcome.VectorStored = true

	p.logger.Info("content ingested",
		zap.String("content_id", rec.ID),
		zap.String("source_identifier", src.SourceIdentifier),
		zap.Int("chunks", len(chunks)),
		zap.Int("embed_failures", outcome.EmbedFailures),
		zap.Bool("update", existing != nil))
	return outcome, nil
}

// IngestBatch applies Ingest per item and collects per-item results.
func (p *Pipeline) IngestBatch(ctx context.Context, sources []Source) []BatchItem {
	items := make([]BatchItem, 0, len(sources))
	for _, src := range sources {
		item := BatchItem{SourceIdentifier: src.SourceIdentifier}
		outcome, err := p.Ingest(ctx, src)
		if err != nil {
			item.Error = err.Error()
		} else {
			item.Outcome = outcome
		}
		items = append(items, item)
	}
	return items
}

// Reembed retries embedding for up to limit chunks that were stored without
// a vector. Chunks that fail again stay unembedded for the next pass.
func (p *Pipeline) Reembed(ctx context.Context, limit uint32) (*ReembedOutcome, error) {
	chunks, err := p.vectors.UnembeddedChunks(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("ingest: list unembedded chunks: %w", err)
	}

	outcome := &ReembedOutcome{Scanned: len(chunks)}
	for _, chunk := range chunks {
		vectors, err := p.embedder.GetEmbeddings(ctx, []string{chunk.Text})
		if err != nil || len(vectors) == 0 {
			outcome.Failed++
			p.logger.Warn("re-embed failed",
				zap.String("chunk_id", chunk.ID), zap.Error(err))
			continue
		}
		if err := p.vectors.SetEmbedding(ctx, chunk.ID, vectors[0]); err != nil {
			return nil, fmt.Errorf("ingest: set embedding for %s: %w", chunk.ID, err)
		}
		outcome.Embedded++
	}

	p.logger.Info("re-embed pass finished",
		zap.Int("scanned", outcome.Scanned),
		zap.Int("embedded", outcome.Embedded),
		zap.Int("failed", outcome.Failed))
	return outcome, nil
}

const snippetLength = 500

// chunkID derives a stable point ID from the owning record and chunk index,
// so re-chunking the same record reuses IDs instead of leaking points.
func chunkID(contentID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s:%d", contentID, index))).String()
}
