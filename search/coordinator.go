package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"vexa/pkg/embedding"
	"vexa/repository"
)

// ErrInvalidLimit is returned for a non-positive top_k.
var ErrInvalidLimit = fmt.Errorf("search: top_k must be positive")

// ErrEmptyQuery is returned when the query text is blank.
var ErrEmptyQuery = fmt.Errorf("search: query must not be empty")

// queryHeadroom over-fetches from the store so that post-filtering still
// leaves enough hits for the top-k cut.
const queryHeadroom = 4

// Request is one similarity search. Filter fields are optional.
type Request struct {
	Query  string
	TopK   int
	Filter repository.SearchFilter
}

// Coordinator embeds queries and ranks vector-store hits. It is stateless
// between calls; concurrent searches need no coordination.
type Coordinator struct {
	vectors  repository.VectorRepo
	embedder embedding.Client
	logger   *zap.Logger
}

func NewCoordinator(vectors repository.VectorRepo, embedder embedding.Client, logger *zap.Logger) *Coordinator {
	return &Coordinator{vectors: vectors, embedder: embedder, logger: logger}
}

// Search embeds the query, runs the nearest-neighbor lookup with headroom,
// applies the parts of the filter the store cannot express, then sorts and
// truncates. Filters always apply before the top-k cut. An embedding failure
// fails the whole call; search cannot degrade without a query vector.
func (c *Coordinator) Search(ctx context.Context, req Request) ([]repository.SearchHit, error) {
	if req.TopK <= 0 {
		return nil, ErrInvalidLimit
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	vectors, err := c.embedder.GetEmbeddings(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("search: embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("search: embedder returned no vector")
	}

	limit := uint64(req.TopK * queryHeadroom)
	hits, err := c.vectors.QuerySimilar(ctx, vectors[0], limit, &req.Filter)
	if err != nil {
		return nil, fmt.Errorf("search: query store: %w", err)
	}

	hits = applyFilter(hits, req.Filter)
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].CreatedAt.After(hits[j].CreatedAt)
	})
	if len(hits) > req.TopK {
		hits = hits[:req.TopK]
	}

	c.logger.Debug("search completed",
		zap.String("query", query),
		zap.Int("top_k", req.TopK),
		zap.Int("results", len(hits)))
	return hits, nil
}

// applyFilter enforces the constraints the store query could not: base URL
// prefix and created_at range. Source type is already pushed down.
func applyFilter(hits []repository.SearchHit, filter repository.SearchFilter) []repository.SearchHit {
	out := hits[:0]
	for _, hit := range hits {
		if filter.BaseURLPrefix != "" && !strings.HasPrefix(hit.BaseURL, filter.BaseURLPrefix) {
			continue
		}
		if !filter.CreatedAfter.IsZero() && hit.CreatedAt.Before(filter.CreatedAfter) {
			continue
		}
		if !filter.CreatedBefore.IsZero() && hit.CreatedAt.After(filter.CreatedBefore) {
			continue
		}
		out = append(out, hit)
	}
	return out
}
