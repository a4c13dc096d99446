package biz

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/medqa/internal/medqa/store"
	"github.com/kart-io/medqa/pkg/errors"
	"github.com/kart-io/medqa/pkg/llm"
	"github.com/kart-io/medqa/pkg/pool"
)

// Chunk is one retrieved unit of page text, tagged with the sub-query
// section that produced it.
type Chunk struct {
	// Text is the chunk content.
	Text string
	// SourceURL is the raw URL of the originating page.
	SourceURL string
	// Title is the page title.
	Title string
	// Section is the sub-query section that retrieved the chunk.
	Section Section
	// Score is the vector distance, lower is better.
	Score float32
}

// RetrieverConfig configures the multi-query retriever.
type RetrieverConfig struct {
	// Collection is the Milvus collection to search.
	Collection string
	// Timeout bounds each embed+search round trip.
	Timeout time.Duration
}

// MultiRetriever embeds sub-queries and searches the vector store, fanning
// out independent sub-queries onto a worker pool.
type MultiRetriever struct {
	store         store.VectorStore
	embedProvider llm.EmbeddingProvider
	workers       *pool.Pool
	config        *RetrieverConfig
}

// NewMultiRetriever creates a retriever. workers may be nil, in which case
// sub-queries run sequentially.
func NewMultiRetriever(
	vectorStore store.VectorStore,
	embedProvider llm.EmbeddingProvider,
	workers *pool.Pool,
	config *RetrieverConfig,
) *MultiRetriever {
	return &MultiRetriever{
		store:         vectorStore,
		embedProvider: embedProvider,
		workers:       workers,
		config:        config,
	}
}

// Retrieve runs every sub-query and returns all chunks in sub-query
// emission order, so downstream ranking is deterministic regardless of
// which fan-out call finishes first.
func (r *MultiRetriever) Retrieve(ctx context.Context, subQueries []SubQuery, k int) ([]Chunk, error) {
	if len(subQueries) == 0 {
		return nil, nil
	}

	// Position-indexed fan-in; each slot is written by exactly one task.
	results := make([][]Chunk, len(subQueries))
	taskErrs := make([]error, len(subQueries))

	var wg sync.WaitGroup
	for i, sq := range subQueries {
		i, sq := i, sq
		wg.Add(1)
		task := func() {
			defer wg.Done()
			results[i], taskErrs[i] = r.retrieveOne(ctx, sq, k)
		}
		if r.workers == nil {
			task()
			continue
		}
		if err := r.workers.SubmitWithContext(ctx, task); err != nil {
			// Pool unavailable or ctx already done, run inline; the task
			// surfaces the cancellation itself.
			task()
		}
	}
	wg.Wait()

	chunks := make([]Chunk, 0, len(subQueries)*k)
	for i := range subQueries {
		if taskErrs[i] != nil {
			return nil, taskErrs[i]
		}
		chunks = append(chunks, results[i]...)
	}

	return chunks, nil
}

// retrieveOne embeds one sub-query and searches, retrying a failed round
// trip exactly once before propagating.
func (r *MultiRetriever) retrieveOne(ctx context.Context, sq SubQuery, k int) ([]Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.ErrRetrieval.WithCause(err)
	}
	if strings.TrimSpace(sq.QueryText) == "" {
		return nil, errors.ErrRetrieval.WithMessage("query text is empty")
	}

	chunks, err := r.searchOnce(ctx, sq, k)
	if err == nil {
		return chunks, nil
	}
	if ctx.Err() != nil {
		return nil, errors.ErrRetrieval.WithCause(ctx.Err())
	}

	logger.Warnw("retrieval failed, retrying once",
		"section", string(sq.Section),
		"error", err.Error(),
	)

	chunks, retryErr := r.searchOnce(ctx, sq, k)
	if retryErr != nil {
		return nil, errors.ErrRetrieval.WithCause(retryErr)
	}
	return chunks, nil
}

func (r *MultiRetriever) searchOnce(ctx context.Context, sq SubQuery, k int) ([]Chunk, error) {
	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	embedding, err := r.embedProvider.EmbedSingle(ctx, sq.QueryText)
	if err != nil {
		return nil, err
	}

	results, err := r.store.Search(ctx, r.config.Collection, embedding, k)
	if err != nil {
		return nil, err
	}

	chunks := make([]Chunk, 0, len(results))
	for _, res := range results {
		chunks = append(chunks, Chunk{
			Text:      res.Content,
			SourceURL: res.SourceURL,
			Title:     res.Title,
			Section:   sq.Section,
			Score:     res.Score,
		})
	}
	return chunks, nil
}
