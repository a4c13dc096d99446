// Package store defines the vector storage layer for medical page chunks.
package store

import (
	"context"
)

// SearchResult represents one retrieved chunk with its distance score.
// Lower scores mean closer matches under the L2 metric.
type SearchResult struct {
	// ID is the chunk ID.
	ID string
	// SourceURL is the canonical URL of the page the chunk came from.
	SourceURL string
	// Title is the page title.
	Title string
	// Section is the page section heading the chunk belongs to.
	Section string
	// Content is the chunk text.
	Content string
	// ChunkIndex is the position of the chunk within its page.
	ChunkIndex int
	// Score is the vector distance to the query.
	Score float32
}

// CollectionConfig describes a vector collection.
type CollectionConfig struct {
	// Name is the collection name.
	Name string
	// Description is the collection description.
	Description string
	// Dimension is the embedding dimension.
	Dimension int
}

// VectorStore defines the vector storage interface. Chunks are written by
// the offline ingestion tooling; this service only creates the collection
// and reads from it.
type VectorStore interface {
	// CreateCollection creates the collection if it does not exist.
	CreateCollection(ctx context.Context, config *CollectionConfig) error

	// Search performs a vector similarity search.
	Search(ctx context.Context, collection string, embedding []float32, topK int) ([]*SearchResult, error)

	// GetStats returns the number of chunks in the collection.
	GetStats(ctx context.Context, collection string) (int64, error)

	// Close closes the connection.
	Close(ctx context.Context) error
}

// EnsureCollection creates the chunk collection when it does not already
// exist, so a fresh deployment serves stats and empty searches instead of
// erroring until ingestion runs.
func EnsureCollection(ctx context.Context, vs VectorStore, name string, dimension int) error {
	return vs.CreateCollection(ctx, &CollectionConfig{
		Name:        name,
		Description: "Ingested medical page chunks",
		Dimension:   dimension,
	})
}
