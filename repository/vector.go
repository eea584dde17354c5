package repository

import (
	"context"
	"time"
)

// Chunk is a bounded slice of a content record's text, the unit of retrieval.
// StartChar/EndChar are half-open offsets into the owning record's text at the
// time of chunking. Embedding is nil until the embedder succeeds.
type Chunk struct {
	ID         string    `json:"id"`
	ContentID  string    `json:"content_id"`
	Index      int       `json:"chunk_index"`
	StartChar  int       `json:"start_char"`
	EndChar    int       `json:"end_char"`
	TokenCount int       `json:"token_count"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"embedding,omitempty"`
}

// SearchFilter narrows a similarity query. Zero values mean "no constraint".
type SearchFilter struct {
	SourceType    SourceType
	BaseURLPrefix string
	CreatedAfter  time.Time
	CreatedBefore time.Time
}

// SearchHit is one ranked result: the matched chunk plus owning-record
// metadata and the cosine similarity score.
type SearchHit struct {
	ChunkID          string     `json:"chunk_id"`
	ContentID        string     `json:"content_id"`
	ChunkIndex       int        `json:"chunk_index"`
	Text             string     `json:"text"`
	Title            string     `json:"title,omitempty"`
	SourceType       SourceType `json:"source_type"`
	SourceIdentifier string     `json:"source_identifier"`
	BaseURL          string     `json:"base_url,omitempty"`
	Score            float32    `json:"score"`
	CreatedAt        time.Time  `json:"created_at"`
}

// VectorRepo persists chunks with their vectors and answers nearest-neighbor
// queries. Chunks of one record are replaced wholesale; partial updates are
// not supported.
type VectorRepo interface {
	// ReplaceChunks atomically supersedes the chunk set of a record: old
	// chunks removed, new chunks inserted. Chunks without an embedding are
	// stored but excluded from similarity search.
	ReplaceChunks(ctx context.Context, rec *ContentRecord, chunks []Chunk) error
	// SetEmbedding attaches a vector to an already-stored chunk and makes it
	// visible to similarity search. Used by the re-embed pass.
	SetEmbedding(ctx context.Context, chunkID string, vector []float32) error
	QuerySimilar(ctx context.Context, vector []float32, limit uint64, filter *SearchFilter) ([]SearchHit, error)
	DeleteByContentID(ctx context.Context, contentID string) error
	// UnembeddedChunks returns up to limit stored chunks that still lack a
	// real embedding, together with their owning content IDs.
	UnembeddedChunks(ctx context.Context, limit uint32) ([]Chunk, error)
	CountChunks(ctx context.Context) (uint64, error)
}
