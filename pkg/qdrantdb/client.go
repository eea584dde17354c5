package qdrantdb

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

const ChunkCollectionName = "content_chunks"

// Client wraps the qdrant gRPC client for the chunk collection.
type Client struct {
	client    *qdrant.Client
	dimension uint64
}

func NewClient(host string, port int, dimension int) (*Client, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port, // gRPC port
	})
	if err != nil {
		return nil, fmt.Errorf("qdrantdb: connect: %w", err)
	}
	return &Client{client: client, dimension: uint64(dimension)}, nil
}

// EnsureCollection creates the chunk collection with cosine distance and the
// payload indexes the pipeline filters on. Safe to call on every start.
func (c *Client) EnsureCollection(ctx context.Context) error {
	exists, err := c.client.CollectionExists(ctx, ChunkCollectionName)
	if err != nil {
		return fmt.Errorf("qdrantdb: collection exists: %w", err)
	}
	if exists {
		return nil
	}

	err = c.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: ChunkCollectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     c.dimension,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrantdb: create collection: %w", err)
	}

	keywordFields := []string{"content_id", "source_type", "source_identifier"}
	for _, field := range keywordFields {
		_, err = c.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: ChunkCollectionName,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("qdrantdb: create %s index: %w", field, err)
		}
	}

	_, err = c.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: ChunkCollectionName,
		FieldName:      "embedded",
		FieldType:      qdrant.FieldType_FieldTypeBool.Enum(),
	})
	if err != nil {
		return fmt.Errorf("qdrantdb: create embedded index: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.client.Close()
}
