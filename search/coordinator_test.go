package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vexa/repository"
)

type stubVectors struct {
	hits      []repository.SearchHit
	err       error
	gotLimit  uint64
	gotFilter *repository.SearchFilter
}

func (s *stubVectors) QuerySimilar(_ context.Context, _ []float32, limit uint64, filter *repository.SearchFilter) ([]repository.SearchHit, error) {
	s.gotLimit = limit
	s.gotFilter = filter
	return s.hits, s.err
}

func (s *stubVectors) ReplaceChunks(context.Context, *repository.ContentRecord, []repository.Chunk) error {
	return nil
}
func (s *stubVectors) SetEmbedding(context.Context, string, []float32) error { return nil }
func (s *stubVectors) DeleteByContentID(context.Context, string) error       { return nil }
func (s *stubVectors) UnembeddedChunks(context.Context, uint32) ([]repository.Chunk, error) {
	return nil, nil
}
func (s *stubVectors) CountChunks(context.Context) (uint64, error) { return 0, nil }

type stubEmbedder struct {
	err error
}

func (s *stubEmbedder) GetEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (s *stubEmbedder) Dimension() int { return 3 }
func (s *stubEmbedder) Model() string  { return "stub" }

func hit(id string, score float32, createdAt time.Time, baseURL string) repository.SearchHit {
	return repository.SearchHit{
		ChunkID:   id,
		Score:     score,
		CreatedAt: createdAt,
		BaseURL:   baseURL,
	}
}

func TestSearchRejectsBadInput(t *testing.T) {
	c := NewCoordinator(&stubVectors{}, &stubEmbedder{}, zap.NewNop())

	_, err := c.Search(context.Background(), Request{Query: "x", TopK: 0})
	assert.ErrorIs(t, err, ErrInvalidLimit)
	_, err = c.Search(context.Background(), Request{Query: "x", TopK: -3})
	assert.ErrorIs(t, err, ErrInvalidLimit)
	_, err = c.Search(context.Background(), Request{Query: "  ", TopK: 5})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestSearchEmbedFailureFailsFast(t *testing.T) {
	vectors := &stubVectors{}
	c := NewCoordinator(vectors, &stubEmbedder{err: errors.New("down")}, zap.NewNop())

	_, err := c.Search(context.Background(), Request{Query: "anything", TopK: 5})
	require.Error(t, err)
	assert.Zero(t, vectors.gotLimit, "store must not be queried without a query vector")
}

func TestSearchRankingAndTieBreak(t *testing.T) {
	now := time.Now()
	vectors := &stubVectors{hits: []repository.SearchHit{
		hit("old-high", 0.9, now.Add(-time.Hour), ""),
		hit("low", 0.2, now, ""),
		hit("new-high", 0.9, now, ""),
		hit("mid", 0.5, now, ""),
	}}
	c := NewCoordinator(vectors, &stubEmbedder{}, zap.NewNop())

	hits, err := c.Search(context.Background(), Request{Query: "q", TopK: 3})
	require.NoError(t, err)
	require.Len(t, hits, 3)

	// descending score; equal scores break ties by most recent first
	assert.Equal(t, "new-high", hits[0].ChunkID)
	assert.Equal(t, "old-high", hits[1].ChunkID)
	assert.Equal(t, "mid", hits[2].ChunkID)
}

func TestSearchQueriesWithHeadroom(t *testing.T) {
	vectors := &stubVectors{}
	c := NewCoordinator(vectors, &stubEmbedder{}, zap.NewNop())

	_, err := c.Search(context.Background(), Request{Query: "q", TopK: 5})
	require.NoError(t, err)
	assert.Equal(t, uint64(20), vectors.gotLimit)
}

func TestSearchFiltersBeforeTopKCut(t *testing.T) {
	now := time.Now()
	vectors := &stubVectors{hits: []repository.SearchHit{
		hit("a", 0.9, now, "https://other.example.com"),
		hit("b", 0.8, now, "https://docs.example.com"),
		hit("c", 0.7, now.Add(-48*time.Hour), "https://docs.example.com"),
		hit("d", 0.6, now, "https://docs.example.com"),
	}}
	c := NewCoordinator(vectors, &stubEmbedder{}, zap.NewNop())

	hits, err := c.Search(context.Background(), Request{
		Query: "q",
		TopK:  2,
		Filter: repository.SearchFilter{
			BaseURLPrefix: "https://docs.example.com",
			CreatedAfter:  now.Add(-time.Hour),
		},
	})
	require.NoError(t, err)

	// "a" fails the prefix filter and "c" the date filter even though both
	// outscore "d"; the cut happens after filtering
	require.Len(t, hits, 2)
	assert.Equal(t, "b", hits[0].ChunkID)
	assert.Equal(t, "d", hits[1].ChunkID)
}
