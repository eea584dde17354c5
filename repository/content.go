package repository

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by lookups when no record matches.
var ErrNotFound = errors.New("repository: record not found")

type SourceType string

const (
	SourceURL  SourceType = "url"
	SourcePDF  SourceType = "pdf"
	SourceDOCX SourceType = "docx"
	SourceTXT  SourceType = "txt"
	SourceMD   SourceType = "md"
	SourceHTML SourceType = "html"
	SourceText SourceType = "text"
)

// ContentRecord is one normalized unit of ingested content. Text is the
// authoritative payload for chunking; ContentHash fingerprints it for dedup.
type ContentRecord struct {
	ID               string         `json:"id"`
	SourceType       SourceType     `json:"source_type"`
	SourceIdentifier string         `json:"source_identifier"`
	BaseURL          string         `json:"base_url,omitempty"`
	Title            string         `json:"title,omitempty"`
	Text             string         `json:"text"`
	Snippet          string         `json:"snippet,omitempty"`
	ContentHash      string         `json:"content_hash"`
	WordCount        int            `json:"word_count"`
	ImageCount       int            `json:"image_count,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// ContentRepo is the durable store for content records, keyed by source
// identifier. Implementations must tolerate concurrent writers.
type ContentRepo interface {
	Upsert(ctx context.Context, rec *ContentRecord) error
	GetByIdentifier(ctx context.Context, identifier string) (*ContentRecord, error)
	Delete(ctx context.Context, identifier string) error
	ListByBaseURL(ctx context.Context, baseURL string) ([]*ContentRecord, error)
	Count(ctx context.Context) (int, error)
}
