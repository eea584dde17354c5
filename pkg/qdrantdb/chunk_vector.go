package qdrantdb

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"vexa/repository"
)

// ReplaceChunks supersedes a record's chunk set: the old points are removed
// by content_id filter, then the new batch is upserted. Chunks lacking an
// embedding are stored with a zero vector and flagged so similarity queries
// skip them.
func (c *Client) ReplaceChunks(ctx context.Context, rec *repository.ContentRecord, chunks []repository.Chunk) error {
	if err := c.DeleteByContentID(ctx, rec.ID); err != nil {
		return err
	}
	return c.UpsertChunks(ctx, rec, chunks)
}

func (c *Client) UpsertChunks(ctx context.Context, rec *repository.ContentRecord, chunks []repository.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, chunk := range chunks {
		vector := chunk.Embedding
		embedded := len(vector) > 0
		if !embedded {
			vector = make([]float32, c.dimension)
		}
		payload := map[string]any{
			"content_id":        chunk.ContentID,
			"chunk_index":       int64(chunk.Index),
			"start_char":        int64(chunk.StartChar),
			"end_char":          int64(chunk.EndChar),
			"token_count":       int64(chunk.TokenCount),
			"text":              chunk.Text,
			"title":             rec.Title,
			"source_type":       string(rec.SourceType),
			"source_identifier": rec.SourceIdentifier,
			"base_url":          rec.BaseURL,
			"created_at":        rec.CreatedAt.UTC().Format(time.RFC3339Nano),
			"embedded":          embedded,
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(chunk.ID),
			Vectors: qdrant.NewVectorsDense(vector),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: ChunkCollectionName,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrantdb: upsert chunks for %s: %w", rec.ID, err)
	}
	return nil
}

// SetEmbedding overwrites a stored chunk's vector in place and clears its
// unembedded flag. Payload fields other than "embedded" are untouched.
func (c *Client) SetEmbedding(ctx context.Context, chunkID string, vector []float32) error {
	_, err := c.client.UpdateVectors(ctx, &qdrant.UpdatePointVectors{
		CollectionName: ChunkCollectionName,
		Points: []*qdrant.PointVectors{{
			Id:      qdrant.NewID(chunkID),
			Vectors: qdrant.NewVectorsDense(vector),
		}},
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrantdb: update vector for chunk %s: %w", chunkID, err)
	}

	_, err = c.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: ChunkCollectionName,
		Payload:        qdrant.NewValueMap(map[string]any{"embedded": true}),
		PointsSelector: qdrant.NewPointsSelector(qdrant.NewID(chunkID)),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrantdb: mark chunk %s embedded: %w", chunkID, err)
	}
	return nil
}

func (c *Client) DeleteByContentID(ctx context.Context, contentID string) error {
	_, err := c.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: ChunkCollectionName,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("content_id", contentID)},
		}),
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrantdb: delete chunks for %s: %w", contentID, err)
	}
	return nil
}

// QuerySimilar runs a cosine nearest-neighbor query. The source_type
// constraint is pushed into the store filter; prefix and time-range
// constraints are the caller's concern. Unembedded chunks never match.
func (c *Client) QuerySimilar(ctx context.Context, vector []float32, limit uint64, filter *repository.SearchFilter) ([]repository.SearchHit, error) {
	must := []*qdrant.Condition{qdrant.NewMatchBool("embedded", true)}
	if filter != nil && filter.SourceType != "" {
		must = append(must, qdrant.NewMatch("source_type", string(filter.SourceType)))
	}

	points, err := c.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: ChunkCollectionName,
		Query:          qdrant.NewQueryDense(vector),
		Limit:          qdrant.PtrOf(limit),
		Filter:         &qdrant.Filter{Must: must},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrantdb: query similar: %w", err)
	}

	hits := make([]repository.SearchHit, 0, len(points))
	for _, point := range points {
		hit := hitFromPayload(point.GetPayload())
		hit.ChunkID = point.GetId().GetUuid()
		hit.Score = point.GetScore()
		hits = append(hits, hit)
	}
	return hits, nil
}

// UnembeddedChunks returns stored chunks still carrying the zero vector, for
// the re-embed pass.
func (c *Client) UnembeddedChunks(ctx context.Context, limit uint32) ([]repository.Chunk, error) {
	points, err := c.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: ChunkCollectionName,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatchBool("embedded", false)},
		},
		Limit:       qdrant.PtrOf(limit),
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrantdb: scroll unembedded: %w", err)
	}

	chunks := make([]repository.Chunk, 0, len(points))
	for _, point := range points {
		payload := point.GetPayload()
		chunks = append(chunks, repository.Chunk{
			ID:         point.GetId().GetUuid(),
			ContentID:  payload["content_id"].GetStringValue(),
			Index:      int(payload["chunk_index"].GetIntegerValue()),
			StartChar:  int(payload["start_char"].GetIntegerValue()),
			EndChar:    int(payload["end_char"].GetIntegerValue()),
			TokenCount: int(payload["token_count"].GetIntegerValue()),
			Text:       payload["text"].GetStringValue(),
		})
	}
	return chunks, nil
}

func (c *Client) CountChunks(ctx context.Context) (uint64, error) {
	count, err := c.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: ChunkCollectionName,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrantdb: count chunks: %w", err)
	}
	return count, nil
}

func hitFromPayload(payload map[string]*qdrant.Value) repository.SearchHit {
	createdAt, _ := time.Parse(time.RFC3339Nano, payload["created_at"].GetStringValue())
	return repository.SearchHit{
		ContentID:        payload["content_id"].GetStringValue(),
		ChunkIndex:       int(payload["chunk_index"].GetIntegerValue()),
		Text:             payload["text"].GetStringValue(),
		Title:            payload["title"].GetStringValue(),
		SourceType:       repository.SourceType(payload["source_type"].GetStringValue()),
		SourceIdentifier: payload["source_identifier"].GetStringValue(),
		BaseURL:          payload["base_url"].GetStringValue(),
		CreatedAt:        createdAt,
	}
}
