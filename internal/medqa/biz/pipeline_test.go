package biz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/medqa/internal/medqa/store"
	"github.com/kart-io/medqa/internal/model"
	pkgerrors "github.com/kart-io/medqa/pkg/errors"
)

func newTestPipeline(vs *mockVectorStore, chat *mockChat, direct, decomposed Strategy) *Pipeline {
	retriever := NewMultiRetriever(vs, &mockEmbedder{}, nil, &RetrieverConfig{
		Collection: "test_pages",
	})
	return NewPipeline(
		direct,
		decomposed,
		retriever,
		NewDeduper(&DeduperConfig{MaxSources: 5}),
		NewAssembler(&AssemblerConfig{Budget: 8000, PerSourceChars: 1400}),
		NewGenerator(chat),
		&PipelineConfig{MaxSources: 5, ExpansionTopK: 12},
	)
}

// failingStrategy always fails expansion.
type failingStrategy struct{}

func (failingStrategy) Expand(context.Context, string) ([]SubQuery, error) {
	return nil, errors.New("expansion exploded")
}
func (failingStrategy) KPerSubQuery() int { return 1 }
func (failingStrategy) Name() string      { return "failing" }

func TestPipeline_DirectTwoSources(t *testing.T) {
	vs := &mockVectorStore{
		searchFn: func(string, int) ([]*store.SearchResult, error) {
			return []*store.SearchResult{
				{SourceURL: "https://medlineplus.gov/hbp.html", Content: "chunk one", Score: 0.9},
				{SourceURL: "https://medlineplus.gov/hbp.html#treat", Content: "chunk two", Score: 0.85},
				{SourceURL: "https://medlineplus.gov/heart.html", Content: "chunk three", Score: 0.7},
			}, nil
		},
	}
	chat := &mockChat{
		generateFn: func(string) (string, error) { return groundedAnswer, nil },
	}
	pipeline := newTestPipeline(vs, chat, NewDirectStrategy(10), NewSectionedStrategy(chat, 4))

	result, err := pipeline.Run(context.Background(), "What is high blood pressure?", model.ModeDirect)

	require.NoError(t, err)
	require.NotNil(t, result.Direct)
	assert.Nil(t, result.Decomposed)
	assert.Equal(t, StateDone, result.Direct.State)

	// Two unique sources ranked by their best score.
	require.Len(t, result.Direct.Sources, 2)
	assert.Equal(t, "https://medlineplus.gov/heart.html", result.Direct.Sources[0].SourceID)
	assert.Equal(t, "https://medlineplus.gov/hbp.html", result.Direct.Sources[1].SourceID)

	require.NotNil(t, result.Direct.Answer)
	assert.True(t, result.Direct.Answer.Grounded)
	assert.ElementsMatch(t,
		[]string{"https://medlineplus.gov/heart.html", "https://medlineplus.gov/hbp.html"},
		result.Direct.Answer.CitedSources,
	)
}

func TestPipeline_Idempotent(t *testing.T) {
	vs := &mockVectorStore{
		searchFn: func(string, int) ([]*store.SearchResult, error) {
			return []*store.SearchResult{
				{SourceURL: "https://medlineplus.gov/a.html", Content: "a", Score: 0.4},
				{SourceURL: "https://medlineplus.gov/b.html", Content: "b", Score: 0.5},
			}, nil
		},
	}
	chat := &mockChat{
		generateFn: func(string) (string, error) { return groundedAnswer, nil },
	}
	pipeline := newTestPipeline(vs, chat, NewDirectStrategy(10), NewSectionedStrategy(chat, 4))

	first, err := pipeline.Run(context.Background(), "question", model.ModeDirect)
	require.NoError(t, err)
	second, err := pipeline.Run(context.Background(), "question", model.ModeDirect)
	require.NoError(t, err)

	assert.Equal(t, first.Direct.Answer.CitedSources, second.Direct.Answer.CitedSources)
}

func TestPipeline_ZeroChunksBothStrategies(t *testing.T) {
	vs := &mockVectorStore{
		searchFn: func(string, int) ([]*store.SearchResult, error) {
			return nil, nil
		},
	}
	// Any model call fails; a successful run therefore proves neither the
	// planner failure nor the generator blocked it.
	chat := &mockChat{
		generateFn: func(string) (string, error) { return "", errors.New("must not be needed") },
	}
	pipeline := newTestPipeline(vs, chat, NewDirectStrategy(10), NewSectionedStrategy(chat, 4))

	result, err := pipeline.Run(context.Background(), "What is xyzzy?", model.ModeBoth)

	require.NoError(t, err)
	require.NotNil(t, result.Direct)
	require.NotNil(t, result.Decomposed)
	require.NotNil(t, result.Direct.Answer)
	require.NotNil(t, result.Decomposed.Answer)

	assert.False(t, result.Direct.Answer.Grounded)
	assert.False(t, result.Decomposed.Answer.Grounded)
	assert.Equal(t, result.Direct.Answer.Text, result.Decomposed.Answer.Text)
	assert.Contains(t, result.Direct.Answer.Text, InsufficiencyStatement)
	assert.Empty(t, result.Direct.Answer.CitedSources)
	assert.Empty(t, result.Decomposed.Answer.CitedSources)
}

func TestPipeline_UrgentSectionSkippedRunCompletes(t *testing.T) {
	vs := &mockVectorStore{
		searchFn: func(string, int) ([]*store.SearchResult, error) {
			return []*store.SearchResult{
				{SourceURL: "https://medlineplus.gov/hbp.html", Content: "facts", Score: 0.3},
			}, nil
		},
	}

	answered := false
	chat := &mockChat{
		generateFn: func(prompt string) (string, error) {
			// First call is the planner, which omits the urgent line.
			if !answered {
				answered = true
				return `Overview: hypertension overview
Causes: hypertension causes
Symptoms: hypertension symptoms
Diagnosis: hypertension diagnosis
Treatment: hypertension treatment`, nil
			}
			return groundedAnswer, nil
		},
	}

	decomposed := NewSectionedStrategy(chat, 4)
	decomposed.disableFallback = true
	pipeline := newTestPipeline(vs, chat, NewDirectStrategy(10), decomposed)

	result, err := pipeline.Run(context.Background(), "high blood pressure", model.ModeDecomposed)

	require.NoError(t, err)
	require.NotNil(t, result.Decomposed)
	assert.Equal(t, StateDone, result.Decomposed.State)
	require.NotNil(t, result.Decomposed.Answer)
	assert.True(t, result.Decomposed.Answer.Grounded)
}

func TestPipeline_BothModeOneFailureDoesNotAbortOther(t *testing.T) {
	vs := &mockVectorStore{
		searchFn: func(string, int) ([]*store.SearchResult, error) {
			return []*store.SearchResult{
				{SourceURL: "https://medlineplus.gov/hbp.html", Content: "facts", Score: 0.3},
			}, nil
		},
	}
	chat := &mockChat{
		generateFn: func(string) (string, error) { return groundedAnswer, nil },
	}
	pipeline := newTestPipeline(vs, chat, failingStrategy{}, NewSectionedStrategy(chat, 4))

	result, err := pipeline.Run(context.Background(), "high blood pressure", model.ModeBoth)

	require.NoError(t, err)
	require.NotNil(t, result.Direct)
	assert.Equal(t, StateFailed, result.Direct.State)
	assert.Error(t, result.Direct.Err)

	require.NotNil(t, result.Decomposed)
	assert.Equal(t, StateDone, result.Decomposed.State)
	require.NotNil(t, result.Decomposed.Answer)
	assert.True(t, result.Decomposed.Answer.Grounded)
}

func TestPipeline_RetrievalFailureFailsRun(t *testing.T) {
	vs := &mockVectorStore{
		searchFn: func(string, int) ([]*store.SearchResult, error) {
			return nil, errors.New("store unreachable")
		},
	}
	chat := &mockChat{
		generateFn: func(string) (string, error) { return groundedAnswer, nil },
	}
	pipeline := newTestPipeline(vs, chat, NewDirectStrategy(10), NewSectionedStrategy(chat, 4))

	_, err := pipeline.Run(context.Background(), "question", model.ModeDirect)

	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrRetrieval.Code))
}

func TestPipeline_GenerationFailureFailsRun(t *testing.T) {
	vs := &mockVectorStore{
		searchFn: func(string, int) ([]*store.SearchResult, error) {
			return []*store.SearchResult{
				{SourceURL: "https://medlineplus.gov/hbp.html", Content: "facts", Score: 0.3},
			}, nil
		},
	}
	chat := &mockChat{
		generateFn: func(string) (string, error) { return "", errors.New("model exploded") },
	}
	pipeline := newTestPipeline(vs, chat, NewDirectStrategy(10), NewSectionedStrategy(chat, 4))

	_, err := pipeline.Run(context.Background(), "question", model.ModeDirect)

	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrGeneration.Code))
}

func TestPipeline_UnknownMode(t *testing.T) {
	chat := &mockChat{}
	pipeline := newTestPipeline(&mockVectorStore{}, chat, NewDirectStrategy(10), NewSectionedStrategy(chat, 4))

	_, err := pipeline.Run(context.Background(), "question", model.QueryMode("bogus"))

	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrInvalidRequest.Code))
}

func TestPipeline_BroaderHopAddsSources(t *testing.T) {
	// The first pass finds one source; the expanded query surfaces a second.
	vs := &mockVectorStore{}
	vs.searchFn = func(query string, _ int) ([]*store.SearchResult, error) {
		results := []*store.SearchResult{
			{SourceURL: "https://medlineplus.gov/hbp.html", Content: "facts", Score: 0.3},
		}
		if query == "question symptoms causes diagnosis treatment emergency" {
			results = append(results, &store.SearchResult{
				SourceURL: "https://medlineplus.gov/heart.html", Content: "more facts", Score: 0.35,
			})
		}
		return results, nil
	}
	chat := &mockChat{
		generateFn: func(string) (string, error) { return groundedAnswer, nil },
	}
	pipeline := newTestPipeline(vs, chat, NewDirectStrategy(10), NewSectionedStrategy(chat, 4))

	result, err := pipeline.Run(context.Background(), "question", model.ModeDirect)

	require.NoError(t, err)
	require.Len(t, result.Direct.Sources, 2)
}
