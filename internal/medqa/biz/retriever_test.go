package biz

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/medqa/internal/medqa/store"
	pkgerrors "github.com/kart-io/medqa/pkg/errors"
	"github.com/kart-io/medqa/pkg/pool"
)

func newTestRetriever(vs *mockVectorStore, workers *pool.Pool) *MultiRetriever {
	return NewMultiRetriever(vs, &mockEmbedder{}, workers, &RetrieverConfig{
		Collection: "test_pages",
	})
}

func TestMultiRetriever_OrderedFanIn(t *testing.T) {
	resultsByQuery := map[string][]*store.SearchResult{
		"query one": {
			{SourceURL: "https://example.org/a", Content: "a", Score: 0.5},
		},
		"query two": {
			{SourceURL: "https://example.org/b", Content: "b", Score: 0.1},
		},
	}
	vs := &mockVectorStore{
		searchFn: func(query string, _ int) ([]*store.SearchResult, error) {
			return resultsByQuery[query], nil
		},
	}

	workers, err := pool.New("test", &pool.Config{Capacity: 4})
	require.NoError(t, err)
	defer workers.Release()

	retriever := newTestRetriever(vs, workers)

	subQueries := []SubQuery{
		{Section: SectionOverview, QueryText: "query one"},
		{Section: SectionCauses, QueryText: "query two"},
	}

	chunks, err := retriever.Retrieve(context.Background(), subQueries, 4)

	require.NoError(t, err)
	require.Len(t, chunks, 2)
	// Chunks come back in sub-query emission order regardless of which
	// pool task finished first.
	assert.Equal(t, "a", chunks[0].Text)
	assert.Equal(t, SectionOverview, chunks[0].Section)
	assert.Equal(t, "b", chunks[1].Text)
	assert.Equal(t, SectionCauses, chunks[1].Section)
}

func TestMultiRetriever_CancelledContext(t *testing.T) {
	vs := &mockVectorStore{}

	workers, err := pool.New("test", &pool.Config{Capacity: 4})
	require.NoError(t, err)
	defer workers.Release()

	retriever := newTestRetriever(vs, workers)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = retriever.Retrieve(ctx, []SubQuery{
		{Section: SectionDirect, QueryText: "question"},
	}, 4)

	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrRetrieval.Code))
	assert.Equal(t, 0, vs.searchCalls())
}

func TestMultiRetriever_RetriesOnceThenSucceeds(t *testing.T) {
	var mu sync.Mutex
	failures := 1
	vs := &mockVectorStore{}
	vs.searchFn = func(query string, _ int) ([]*store.SearchResult, error) {
		mu.Lock()
		defer mu.Unlock()
		if failures > 0 {
			failures--
			return nil, errors.New("transient store error")
		}
		return []*store.SearchResult{
			{SourceURL: "https://example.org/a", Content: "a", Score: 0.5},
		}, nil
	}

	retriever := newTestRetriever(vs, nil)

	chunks, err := retriever.Retrieve(context.Background(), []SubQuery{
		{Section: SectionDirect, QueryText: "question"},
	}, 4)

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 2, vs.searchCalls())
}

func TestMultiRetriever_RetriesOnceThenPropagates(t *testing.T) {
	vs := &mockVectorStore{
		searchFn: func(string, int) ([]*store.SearchResult, error) {
			return nil, errors.New("store unreachable")
		},
	}

	retriever := newTestRetriever(vs, nil)

	_, err := retriever.Retrieve(context.Background(), []SubQuery{
		{Section: SectionDirect, QueryText: "question"},
	}, 4)

	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrRetrieval.Code))
	// Exactly one retry.
	assert.Equal(t, 2, vs.searchCalls())
}

func TestMultiRetriever_EmptyQueryText(t *testing.T) {
	retriever := newTestRetriever(&mockVectorStore{}, nil)

	_, err := retriever.Retrieve(context.Background(), []SubQuery{
		{Section: SectionDirect, QueryText: "  "},
	}, 4)

	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrRetrieval.Code))
}

func TestMultiRetriever_NoSubQueries(t *testing.T) {
	retriever := newTestRetriever(&mockVectorStore{}, nil)

	chunks, err := retriever.Retrieve(context.Background(), nil, 4)

	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestMultiRetriever_EmbeddingFailure(t *testing.T) {
	retriever := NewMultiRetriever(
		&mockVectorStore{},
		&mockEmbedder{err: errors.New("embedding service down")},
		nil,
		&RetrieverConfig{Collection: "test_pages"},
	)

	_, err := retriever.Retrieve(context.Background(), []SubQuery{
		{Section: SectionDirect, QueryText: "question"},
	}, 4)

	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrRetrieval.Code))
}
