package biz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/medqa/internal/model"
	"github.com/kart-io/medqa/pkg/errors"
)

// RunState tracks the progress of one strategy run.
type RunState string

const (
	StateIdle       RunState = "idle"
	StateExpanding  RunState = "expanding"
	StateRetrieving RunState = "retrieving"
	StateDeduping   RunState = "deduping"
	StateAssembling RunState = "assembling_context"
	StateGenerating RunState = "generating"
	StateDone       RunState = "done"
	StateFailed     RunState = "failed"
)

// StrategyResult is the outcome of one strategy run.
type StrategyResult struct {
	// Strategy names the strategy that produced the result.
	Strategy string
	// Answer is the generated answer, nil when the run failed.
	Answer *GeneratedAnswer
	// Sources is the ranked unique source list used for the answer.
	Sources []*Source
	// State is the terminal run state, Done or Failed.
	State RunState
	// Err is the run failure, nil when State is Done.
	Err error
}

// PipelineConfig configures the orchestrator.
type PipelineConfig struct {
	// MaxSources is the target number of unique sources per answer.
	MaxSources int
	// ExpansionTopK is the retrieval depth of the broader-hop query issued
	// when the first pass yields too few sources.
	ExpansionTopK int
	// GenerationTimeout bounds the answer generation call.
	GenerationTimeout time.Duration
}

// Pipeline composes strategy, retrieval, dedup, assembly and generation
// into full question answering runs.
type Pipeline struct {
	direct     Strategy
	decomposed Strategy
	retriever  *MultiRetriever
	deduper    *Deduper
	assembler  *Assembler
	generator  *Generator
	config     *PipelineConfig
}

// NewPipeline creates the orchestrator.
func NewPipeline(
	direct Strategy,
	decomposed Strategy,
	retriever *MultiRetriever,
	deduper *Deduper,
	assembler *Assembler,
	generator *Generator,
	config *PipelineConfig,
) *Pipeline {
	return &Pipeline{
		direct:     direct,
		decomposed: decomposed,
		retriever:  retriever,
		deduper:    deduper,
		assembler:  assembler,
		generator:  generator,
		config:     config,
	}
}

// RunResult holds the answers of one pipeline invocation. Both fields are
// set only in both mode.
type RunResult struct {
	Direct     *StrategyResult
	Decomposed *StrategyResult
}

// Run answers the question under the requested mode. In both mode the two
// strategies run concurrently and independently; one failing does not
// abort the other.
func (p *Pipeline) Run(ctx context.Context, question string, mode model.QueryMode) (*RunResult, error) {
	switch mode {
	case model.ModeDirect:
		res := p.runStrategy(ctx, p.direct, question)
		if res.Err != nil {
			return nil, res.Err
		}
		return &RunResult{Direct: res}, nil

	case model.ModeDecomposed:
		res := p.runStrategy(ctx, p.decomposed, question)
		if res.Err != nil {
			return nil, res.Err
		}
		return &RunResult{Decomposed: res}, nil

	case model.ModeBoth:
		result := &RunResult{}
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			result.Direct = p.runStrategy(ctx, p.direct, question)
		}()
		go func() {
			defer wg.Done()
			result.Decomposed = p.runStrategy(ctx, p.decomposed, question)
		}()
		wg.Wait()

		if result.Direct.Err != nil && result.Decomposed.Err != nil {
			return nil, result.Direct.Err
		}
		return result, nil

	default:
		return nil, errors.ErrInvalidRequest.WithMessagef("unknown mode %q", mode)
	}
}

// runStrategy drives one strategy through the full state progression.
// Chunk, source and context data is scoped to this call and discarded
// when it returns.
func (p *Pipeline) runStrategy(ctx context.Context, strategy Strategy, question string) *StrategyResult {
	result := &StrategyResult{
		Strategy: strategy.Name(),
		State:    StateIdle,
	}

	fail := func(err error) *StrategyResult {
		logger.Errorf("%s run failed in state %s: %v", strategy.Name(), result.State, err)
		result.State = StateFailed
		result.Err = err
		return result
	}

	start := time.Now()

	result.State = StateExpanding
	subQueries, err := strategy.Expand(ctx, question)
	if err != nil {
		return fail(err)
	}

	result.State = StateRetrieving
	chunks, err := p.retriever.Retrieve(ctx, subQueries, strategy.KPerSubQuery())
	if err != nil {
		return fail(err)
	}

	result.State = StateDeduping
	sources := p.deduper.Dedupe(chunks)

	// One broader hop when the gate leaves the source list short.
	if len(sources) < p.config.MaxSources {
		sources = p.broaderHop(ctx, question, chunks, sources)
	}
	result.Sources = sources

	result.State = StateAssembling
	evidence := p.assembler.Assemble(sources)

	result.State = StateGenerating
	genCtx := ctx
	if p.config.GenerationTimeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, p.config.GenerationTimeout)
		defer cancel()
	}
	answer, err := p.generator.Generate(genCtx, question, evidence)
	if err != nil {
		return fail(err)
	}

	result.Answer = answer
	result.State = StateDone
	logger.Infow("strategy run complete",
		"strategy", strategy.Name(),
		"sources", len(sources),
		"grounded", answer.Grounded,
		"elapsed", time.Since(start).String(),
	)
	return result
}

// broaderHop issues one expanded query, merges it into the chunk pool and
// re-dedupes. Failure is not fatal: the first-pass sources stand.
func (p *Pipeline) broaderHop(ctx context.Context, question string, pool []Chunk, sources []*Source) []*Source {
	expanded := SubQuery{
		Section:   SectionExpanded,
		QueryText: fmt.Sprintf("%s symptoms causes diagnosis treatment emergency", question),
	}

	extra, err := p.retriever.Retrieve(ctx, []SubQuery{expanded}, p.config.ExpansionTopK)
	if err != nil {
		logger.Warnw("broader-hop retrieval failed, keeping first-pass sources",
			"error", err.Error(),
		)
		return sources
	}

	merged := p.deduper.Dedupe(append(pool, extra...))
	if len(merged) < len(sources) {
		return sources
	}
	return merged
}

// SourceRefs converts a ranked source list into caller-facing references.
func SourceRefs(sources []*Source) []model.SourceRef {
	refs := make([]model.SourceRef, len(sources))
	for i, src := range sources {
		refs[i] = model.SourceRef{
			SourceURL: src.SourceID,
			Title:     src.Title,
			Score:     src.BestChunk.Score,
		}
	}
	return refs
}
