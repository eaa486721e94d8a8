package qdrant

import (
	"context"
	"fmt"

	"github.com/screenhire/screener/internal/domain"
)

// Index adapts the Qdrant client to the domain reference index port.
type Index struct {
	client     *Client
	collection string
}

// NewIndex builds an Index over the given collection; an empty collection
// name selects DefaultCollection.
func NewIndex(client *Client, collection string) *Index {
	if collection == "" {
		collection = DefaultCollection
	}
	return &Index{client: client, collection: collection}
}

// Query implements domain.ReferenceIndex. An empty or missing collection
// yields an empty slice so callers degrade to context-free scoring.
func (i *Index) Query(ctx context.Context, vector []float32, category string, k int) ([]domain.ReferenceChunk, error) {
	points, err := i.client.Search(ctx, i.collection, vector, category, k)
	if err != nil {
		return nil, fmt.Errorf("op=qdrant.Index.Query category=%s: %w", category, err)
	}
	chunks := make([]domain.ReferenceChunk, 0, len(points))
	for _, p := range points {
		if p.Text == "" {
			continue
		}
		chunks = append(chunks, domain.ReferenceChunk{Text: p.Text, Score: p.Score})
	}
	return chunks, nil
}
