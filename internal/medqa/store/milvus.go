package store

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus/client/v2/entity"

	"github.com/kart-io/medqa/pkg/component/milvus"
)

// MilvusStore implements VectorStore on top of Milvus.
type MilvusStore struct {
	client *milvus.Client
}

// NewMilvusStore creates a Milvus-backed store.
func NewMilvusStore(client *milvus.Client) *MilvusStore {
	return &MilvusStore{client: client}
}

// CreateCollection creates the Milvus collection for page chunks.
func (s *MilvusStore) CreateCollection(ctx context.Context, config *CollectionConfig) error {
	schema := &milvus.CollectionSchema{
		Name:        config.Name,
		Description: config.Description,
		Dimension:   config.Dimension,
		MetaFields: []milvus.MetaField{
			{Name: "chunk_id", DataType: entity.FieldTypeVarChar, MaxLen: 64},
			{Name: "source_url", DataType: entity.FieldTypeVarChar, MaxLen: 512},
			{Name: "title", DataType: entity.FieldTypeVarChar, MaxLen: 255},
			{Name: "section", DataType: entity.FieldTypeVarChar, MaxLen: 255},
			{Name: "content", DataType: entity.FieldTypeVarChar, MaxLen: 65535},
			{Name: "chunk_index", DataType: entity.FieldTypeInt64},
		},
	}
	return s.client.CreateCollection(ctx, schema)
}

// Search performs a vector similarity search over page chunks.
func (s *MilvusStore) Search(ctx context.Context, collection string, embedding []float32, topK int) ([]*SearchResult, error) {
	outputFields := []string{"chunk_id", "source_url", "title", "section", "content", "chunk_index"}
	results, err := s.client.Search(ctx, collection, embedding, topK, outputFields)
	if err != nil {
		return nil, fmt.Errorf("failed to search milvus: %w", err)
	}

	searchResults := make([]*SearchResult, len(results))
	for i, r := range results {
		sr := &SearchResult{Score: r.Score}
		if v, ok := r.Metadata["chunk_id"].(string); ok {
			sr.ID = v
		}
		if v, ok := r.Metadata["source_url"].(string); ok {
			sr.SourceURL = v
		}
		if v, ok := r.Metadata["title"].(string); ok {
			sr.Title = v
		}
		if v, ok := r.Metadata["section"].(string); ok {
			sr.Section = v
		}
		if v, ok := r.Metadata["content"].(string); ok {
			sr.Content = v
		}
		if v, ok := r.Metadata["chunk_index"].(int64); ok {
			sr.ChunkIndex = int(v)
		}
		searchResults[i] = sr
	}

	return searchResults, nil
}

// GetStats returns the chunk count for the collection.
func (s *MilvusStore) GetStats(ctx context.Context, collection string) (int64, error) {
	return s.client.GetCollectionStats(ctx, collection)
}

// Close closes the Milvus connection.
func (s *MilvusStore) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

var _ VectorStore = (*MilvusStore)(nil)
