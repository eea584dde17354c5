package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vexa/pkg/chunking"
	"vexa/repository"
)

type fakeContents struct {
	mu   sync.Mutex
	recs map[string]*repository.ContentRecord
}

func newFakeContents() *fakeContents {
	return &fakeContents{recs: make(map[string]*repository.ContentRecord)}
}

func (f *fakeContents) Upsert(_ context.Context, rec *repository.ContentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *rec
	f.recs[rec.SourceIdentifier] = &clone
	return nil
}

func (f *fakeContents) GetByIdentifier(_ context.Context, identifier string) (*repository.ContentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[identifier]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *rec
	return &clone, nil
}

func (f *fakeContents) Delete(_ context.Context, identifier string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.recs, identifier)
	return nil
}

func (f *fakeContents) ListByBaseURL(_ context.Context, baseURL string) ([]*repository.ContentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*repository.ContentRecord
	for _, rec := range f.recs {
		if rec.BaseURL == baseURL {
			clone := *rec
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakeContents) Count(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recs), nil
}

type fakeVectors struct {
	mu           sync.Mutex
	chunks       map[string][]repository.Chunk
	replaceCalls int
}

func newFakeVectors() *fakeVectors {
	return &fakeVectors{chunks: make(map[string][]repository.Chunk)}
}

func (f *fakeVectors) ReplaceChunks(_ context.Context, rec *repository.ContentRecord, chunks []repository.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaceCalls++
	f.chunks[rec.ID] = append([]repository.Chunk(nil), chunks...)
	return nil
}

func (f *fakeVectors) SetEmbedding(_ context.Context, chunkID string, vector []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for contentID, chunks := range f.chunks {
		for i, chunk := range chunks {
			if chunk.ID == chunkID {
				f.chunks[contentID][i].Embedding = vector
				return nil
			}
		}
	}
	return fmt.Errorf("chunk %s not found", chunkID)
}

func (f *fakeVectors) QuerySimilar(context.Context, []float32, uint64, *repository.SearchFilter) ([]repository.SearchHit, error) {
	return nil, nil
}

func (f *fakeVectors) DeleteByContentID(_ context.Context, contentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.chunks, contentID)
	return nil
}

func (f *fakeVectors) UnembeddedChunks(_ context.Context, limit uint32) ([]repository.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.Chunk
	for _, chunks := range f.chunks {
		for _, chunk := range chunks {
			if len(chunk.Embedding) == 0 && uint32(len(out)) < limit {
				out = append(out, chunk)
			}
		}
	}
	return out, nil
}

func (f *fakeVectors) CountChunks(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n uint64
	for _, chunks := range f.chunks {
		n += uint64(len(chunks))
	}
	return n, nil
}

func (f *fakeVectors) chunksFor(contentID string) []repository.Chunk {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]repository.Chunk(nil), f.chunks[contentID]...)
}

// fakeEmbedder returns a constant-ish vector, or errors while fail is set.
type fakeEmbedder struct {
	mu    sync.Mutex
	fail  bool
	calls int
}

func (f *fakeEmbedder) GetEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return nil, errors.New("gateway unavailable")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return 3 }
func (f *fakeEmbedder) Model() string  { return "fake-model" }

func (f *fakeEmbedder) setFail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = v
}

type failingChunker struct{}

func (failingChunker) Chunk(string, chunking.Strategy) ([]chunking.Chunk, error) {
	return nil, errors.New("boom")
}

func newTestPipeline(t *testing.T) (*Pipeline, *fakeContents, *fakeVectors, *fakeEmbedder) {
	t.Helper()
	contents := newFakeContents()
	vectors := newFakeVectors()
	embedder := &fakeEmbedder{}
	splitter, err := chunking.NewSplitter(chunking.Config{TargetTokens: 20, OverlapTokens: 4})
	require.NoError(t, err)
	return NewPipeline(contents, vectors, splitter, embedder, zap.NewNop()), contents, vectors, embedder
}

const sampleText = "The quick brown fox jumps over the lazy dog. " +
	"Pack my box with five dozen liquor jugs. " +
	"How vexingly quick daft zebras jump. " +
	"Sphinx of black quartz, judge my vow."

func TestIngestCreatesRecordAndChunks(t *testing.T) {
	pipeline, contents, vectors, _ := newTestPipeline(t)

	outcome, err := pipeline.Ingest(context.Background(), Source{
		SourceType:       repository.SourceText,
		SourceIdentifier: "doc-1",
		Title:            "Pangrams",
		Text:             sampleText,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, outcome.ContentID)
	assert.False(t, outcome.Duplicate)
	assert.True(t, outcome.VectorStored)
	assert.Greater(t, outcome.ChunksCreated, 1)
	assert.Zero(t, outcome.EmbedFailures)
	assert.Empty(t, outcome.Warning)

	rec, err := contents.GetByIdentifier(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, outcome.ContentID, rec.ID)
	assert.Equal(t, Fingerprint(sampleText), rec.ContentHash)
	assert.Equal(t, wordCount(sampleText), rec.WordCount)
	assert.Equal(t, sampleText, rec.Snippet)
	assert.Equal(t, rec.CreatedAt, rec.UpdatedAt)

	chunks := vectors.chunksFor(rec.ID)
	require.Len(t, chunks, outcome.ChunksCreated)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index)
		assert.Equal(t, rec.ID, chunk.ContentID)
		assert.Equal(t, chunkID(rec.ID, i), chunk.ID)
		assert.NotEmpty(t, chunk.Embedding)
		assert.Equal(t, sampleText[chunk.StartChar:chunk.EndChar], chunk.Text)
	}
}

func TestIngestDuplicateShortCircuits(t *testing.T) {
	pipeline, contents, vectors, embedder := newTestPipeline(t)
	src := Source{SourceType: repository.SourceText, SourceIdentifier: "doc-1", Text: sampleText}

	first, err := pipeline.Ingest(context.Background(), src)
	require.NoError(t, err)
	recBefore, err := contents.GetByIdentifier(context.Background(), "doc-1")
	require.NoError(t, err)
	callsBefore := embedder.calls

	second, err := pipeline.Ingest(context.Background(), src)
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	assert.Equal(t, first.ContentID, second.ContentID)
	assert.Zero(t, second.ChunksCreated)
	assert.Equal(t, 1, vectors.replaceCalls)
	assert.Equal(t, callsBefore, embedder.calls)

	recAfter, err := contents.GetByIdentifier(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, recBefore.UpdatedAt, recAfter.UpdatedAt)
}

func TestIngestUpdateReplacesChunks(t *testing.T) {
	pipeline, contents, vectors, _ := newTestPipeline(t)

	first, err := pipeline.Ingest(context.Background(), Source{
		SourceType: repository.SourceText, SourceIdentifier: "doc-1", Text: sampleText,
	})
	require.NoError(t, err)
	recBefore, err := contents.GetByIdentifier(context.Background(), "doc-1")
	require.NoError(t, err)

	updated := sampleText + " Jackdaws love my big sphinx of quartz."
	second, err := pipeline.Ingest(context.Background(), Source{
		SourceType: repository.SourceText, SourceIdentifier: "doc-1", Text: updated,
	})
	require.NoError(t, err)

	assert.Equal(t, first.ContentID, second.ContentID)
	assert.False(t, second.Duplicate)
	assert.Equal(t, 2, vectors.replaceCalls)

	recAfter, err := contents.GetByIdentifier(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, recBefore.CreatedAt, recAfter.CreatedAt)
	assert.True(t, recAfter.UpdatedAt.After(recBefore.UpdatedAt))
	assert.Equal(t, Fingerprint(updated), recAfter.ContentHash)

	for _, chunk := range vectors.chunksFor(second.ContentID) {
		assert.Equal(t, updated[chunk.StartChar:chunk.EndChar], chunk.Text)
	}
}

func TestIngestValidation(t *testing.T) {
	pipeline, contents, vectors, _ := newTestPipeline(t)

	_, err := pipeline.Ingest(context.Background(), Source{SourceIdentifier: "doc-1", Text: "   \r\n "})
	require.Error(t, err)
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))

	_, err = pipeline.Ingest(context.Background(), Source{Text: "some text"})
	require.Error(t, err)
	assert.True(t, errors.As(err, &verr))

	// no partial state
	n, err := contents.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	chunkCount, err := vectors.CountChunks(context.Background())
	require.NoError(t, err)
	assert.Zero(t, chunkCount)
}

func TestIngestChunkerFailureIsDegradedSuccess(t *testing.T) {
	contents := newFakeContents()
	vectors := newFakeVectors()
	pipeline := NewPipeline(contents, vectors, failingChunker{}, &fakeEmbedder{}, zap.NewNop())

	outcome, err := pipeline.Ingest(context.Background(), Source{
		SourceType: repository.SourceText, SourceIdentifier: "doc-1", Text: sampleText,
	})
	require.NoError(t, err)

	assert.Zero(t, outcome.ChunksCreated)
	assert.False(t, outcome.VectorStored)
	assert.Contains(t, outcome.Warning, "chunking failed")

	// text is stored even though it is not searchable
	rec, err := contents.GetByIdentifier(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, sampleText, rec.Text)
}

func TestIngestEmbedFailureIsolatedAndReembed(t *testing.T) {
	pipeline, _, vectors, embedder := newTestPipeline(t)
	embedder.setFail(true)

	outcome, err := pipeline.Ingest(context.Background(), Source{
		SourceType: repository.SourceText, SourceIdentifier: "doc-1", Text: sampleText,
	})
	require.NoError(t, err)

	// every chunk failed to embed but all were stored
	assert.True(t, outcome.VectorStored)
	assert.Equal(t, outcome.ChunksCreated, outcome.EmbedFailures)
	for _, chunk := range vectors.chunksFor(outcome.ContentID) {
		assert.Empty(t, chunk.Embedding)
	}

	embedder.setFail(false)
	reembed, err := pipeline.Reembed(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, outcome.ChunksCreated, reembed.Scanned)
	assert.Equal(t, reembed.Scanned, reembed.Embedded)
	assert.Zero(t, reembed.Failed)
	for _, chunk := range vectors.chunksFor(outcome.ContentID) {
		assert.NotEmpty(t, chunk.Embedding)
	}

	again, err := pipeline.Reembed(context.Background(), 100)
	require.NoError(t, err)
	assert.Zero(t, again.Scanned)
}

func TestIngestBatchIsolatesFailures(t *testing.T) {
	pipeline, _, _, _ := newTestPipeline(t)

	items := pipeline.IngestBatch(context.Background(), []Source{
		{SourceType: repository.SourceText, SourceIdentifier: "good", Text: sampleText},
		{SourceType: repository.SourceText, SourceIdentifier: "bad", Text: "  "},
		{SourceType: repository.SourceText, SourceIdentifier: "also-good", Text: "More text to keep. " + sampleText},
	})
	require.Len(t, items, 3)

	assert.NotNil(t, items[0].Outcome)
	assert.Empty(t, items[0].Error)
	assert.Nil(t, items[1].Outcome)
	assert.NotEmpty(t, items[1].Error)
	assert.NotNil(t, items[2].Outcome)
}

func TestSameTextDifferentIdentifiers(t *testing.T) {
	pipeline, contents, _, _ := newTestPipeline(t)

	a, err := pipeline.Ingest(context.Background(), Source{
		SourceType: repository.SourceTXT, SourceIdentifier: "a.txt", Text: sampleText,
	})
	require.NoError(t, err)
	b, err := pipeline.Ingest(context.Background(), Source{
		SourceType: repository.SourceTXT, SourceIdentifier: "b.txt", Text: sampleText,
	})
	require.NoError(t, err)

	assert.NotEqual(t, a.ContentID, b.ContentID)
	assert.False(t, b.Duplicate)

	recA, err := contents.GetByIdentifier(context.Background(), "a.txt")
	require.NoError(t, err)
	recB, err := contents.GetByIdentifier(context.Background(), "b.txt")
	require.NoError(t, err)
	assert.Equal(t, recA.ContentHash, recB.ContentHash)
}

func TestConcurrentIngestSameIdentifier(t *testing.T) {
	pipeline, contents, _, _ := newTestPipeline(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := pipeline.Ingest(context.Background(), Source{
				SourceType:       repository.SourceText,
				SourceIdentifier: "doc-1",
				Text:             sampleText + strings.Repeat("!", i%2),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	n, err := contents.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
