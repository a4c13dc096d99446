package biz

import (
	"context"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/medqa/internal/medqa/store"
	"github.com/kart-io/medqa/internal/model"
	"github.com/kart-io/medqa/pkg/errors"
	"github.com/kart-io/medqa/pkg/llm"
	"github.com/kart-io/medqa/pkg/pool"
)

// Service defines the question answering service interface.
type Service interface {
	// Ask answers a question under the requested mode.
	Ask(ctx context.Context, question string, mode model.QueryMode) (*model.AskResult, error)
	// GetStats reports knowledge base and cache statistics.
	GetStats(ctx context.Context) (*model.StatsResult, error)
}

// ServiceConfig composes the per-component configs.
type ServiceConfig struct {
	Collection        string
	DirectTopK        int
	SectionTopK       int
	RetrieverConfig   *RetrieverConfig
	DeduperConfig     *DeduperConfig
	AssemblerConfig   *AssemblerConfig
	PipelineConfig    *PipelineConfig
	AnswerCacheConfig *AnswerCacheConfig
}

// QAService wires the pipeline and the answer cache behind Service.
type QAService struct {
	pipeline   *Pipeline
	cache      *AnswerCache
	store      store.VectorStore
	collection string
}

// NewQAService builds the pipeline from its parts and returns the service.
func NewQAService(
	vectorStore store.VectorStore,
	embedProvider llm.EmbeddingProvider,
	chatProvider llm.ChatProvider,
	workers *pool.Pool,
	cache *AnswerCache,
	config *ServiceConfig,
) *QAService {
	retriever := NewMultiRetriever(vectorStore, embedProvider, workers, config.RetrieverConfig)
	deduper := NewDeduper(config.DeduperConfig)
	assembler := NewAssembler(config.AssemblerConfig)
	generator := NewGenerator(chatProvider)

	pipeline := NewPipeline(
		NewDirectStrategy(config.DirectTopK),
		NewSectionedStrategy(chatProvider, config.SectionTopK),
		retriever,
		deduper,
		assembler,
		generator,
		config.PipelineConfig,
	)

	return &QAService{
		pipeline:   pipeline,
		cache:      cache,
		store:      vectorStore,
		collection: config.Collection,
	}
}

// Ask answers the question, consulting the answer cache first.
func (s *QAService) Ask(ctx context.Context, question string, mode model.QueryMode) (*model.AskResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errors.ErrInvalidRequest.WithMessage("question is empty")
	}
	if mode == "" {
		mode = model.ModeDirect
	}
	if !mode.Valid() {
		return nil, errors.ErrInvalidRequest.WithMessagef("unknown mode %q", mode)
	}

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, question, mode); err == nil && cached != nil {
			cached.Cached = true
			return cached, nil
		}
	}

	start := time.Now()
	runResult, err := s.pipeline.Run(ctx, question, mode)
	if err != nil {
		return nil, err
	}

	result := &model.AskResult{
		Question:  question,
		Mode:      mode,
		ElapsedMS: time.Since(start).Milliseconds(),
		AskedAt:   start.UTC(),
	}
	result.Direct = toAnswer(runResult.Direct)
	result.Decomposed = toAnswer(runResult.Decomposed)

	if s.cache != nil {
		if err := s.cache.Set(ctx, question, mode, result); err != nil {
			logger.Warnw("failed to cache ask result", "error", err.Error())
		}
	}

	return result, nil
}

// toAnswer converts a strategy result to its caller-facing shape. Failed
// runs in both mode surface as nil answers.
func toAnswer(res *StrategyResult) *model.Answer {
	if res == nil || res.Err != nil || res.Answer == nil {
		return nil
	}

	answer := &model.Answer{
		Text:     res.Answer.Text,
		Grounded: res.Answer.Grounded,
		Strategy: res.Strategy,
	}

	if len(res.Answer.CitedSources) > 0 {
		cited := make(map[string]struct{}, len(res.Answer.CitedSources))
		for _, id := range res.Answer.CitedSources {
			cited[id] = struct{}{}
		}
		for _, ref := range SourceRefs(res.Sources) {
			if _, ok := cited[ref.SourceURL]; ok {
				answer.CitedSources = append(answer.CitedSources, ref)
			}
		}
	}

	return answer
}

// GetStats reports collection chunk count and cache statistics.
func (s *QAService) GetStats(ctx context.Context) (*model.StatsResult, error) {
	count, err := s.store.GetStats(ctx, s.collection)
	if err != nil {
		return nil, errors.ErrStatsUnavailable.WithCause(err)
	}

	result := &model.StatsResult{
		Collection: s.collection,
		ChunkCount: count,
	}

	if s.cache != nil {
		if stats, err := s.cache.GetStats(ctx); err == nil {
			result.CacheStats = stats
		}
	}

	return result, nil
}

var _ Service = (*QAService)(nil)
