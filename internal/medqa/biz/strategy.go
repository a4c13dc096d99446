package biz

import (
	"context"
	"fmt"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/medqa/pkg/errors"
	"github.com/kart-io/medqa/pkg/llm"
)

// Strategy turns a question into the sub-queries one pipeline run retrieves.
type Strategy interface {
	// Expand returns the ordered sub-queries for the question.
	Expand(ctx context.Context, question string) ([]SubQuery, error)
	// KPerSubQuery returns how many chunks each sub-query retrieves.
	KPerSubQuery() int
	// Name identifies the strategy in results and logs.
	Name() string
}

// DirectStrategy issues the raw question as a single query.
type DirectStrategy struct {
	topK int
}

// NewDirectStrategy creates the single-query strategy.
func NewDirectStrategy(topK int) *DirectStrategy {
	return &DirectStrategy{topK: topK}
}

// Expand returns exactly one sub-query carrying the question verbatim.
func (s *DirectStrategy) Expand(_ context.Context, question string) ([]SubQuery, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errors.ErrInvalidRequest.WithMessage("question is empty")
	}
	return []SubQuery{{Section: SectionDirect, QueryText: question}}, nil
}

// KPerSubQuery returns the retrieval depth for the single query.
func (s *DirectStrategy) KPerSubQuery() int {
	return s.topK
}

// Name returns the strategy name.
func (s *DirectStrategy) Name() string {
	return "direct"
}

// sectionPlannerPrompt asks for exactly six labeled query lines.
const sectionPlannerPrompt = `Create 6 short search queries to retrieve medical reference info for this question.

Question: %s

Return EXACTLY 6 lines in this format:
Overview: ...
Causes: ...
Symptoms: ...
Diagnosis: ...
Treatment: ...
Urgent: ...

Rules:
- Each query should be 5-12 words.
- Include key medical terms from the question.
- No extra text.`

// SectionedStrategy expands a question into one sub-query per answer
// section. Query text comes from a single planner call; sections the plan
// misses fall back to deterministic templates.
type SectionedStrategy struct {
	chatProvider llm.ChatProvider
	topK         int

	// disableFallback skips the template fallback so a section the planner
	// misses is dropped instead. Used in tests.
	disableFallback bool
}

// NewSectionedStrategy creates the per-section strategy.
func NewSectionedStrategy(chatProvider llm.ChatProvider, topK int) *SectionedStrategy {
	return &SectionedStrategy{
		chatProvider: chatProvider,
		topK:         topK,
	}
}

// Expand plans one query per section. Planner failure is not fatal: every
// section still gets its deterministic template. A section left without
// usable query text is skipped and logged.
func (s *SectionedStrategy) Expand(ctx context.Context, question string) ([]SubQuery, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errors.ErrInvalidRequest.WithMessage("question is empty")
	}

	planned := s.planQueries(ctx, question)

	subQueries := make([]SubQuery, 0, len(AnswerSections))
	for _, section := range AnswerSections {
		queryText := planned[section]
		if queryText == "" && !s.disableFallback {
			queryText = section.FallbackQuery(question)
		}
		if strings.TrimSpace(queryText) == "" {
			logger.Warnw("skipping section with no usable query",
				"section", string(section),
				"error", errors.ErrSectionExpansion.Error(),
			)
			continue
		}
		subQueries = append(subQueries, SubQuery{Section: section, QueryText: queryText})
	}

	if len(subQueries) == 0 {
		return nil, errors.ErrSectionExpansion.WithMessage("no section produced a usable query")
	}

	return subQueries, nil
}

// planQueries runs the planner call and parses its six labeled lines.
// Returns an empty map when the call fails so callers fall back to templates.
func (s *SectionedStrategy) planQueries(ctx context.Context, question string) map[Section]string {
	planned := make(map[Section]string, len(AnswerSections))
	if s.chatProvider == nil {
		return planned
	}

	out, err := s.chatProvider.Generate(ctx, fmt.Sprintf(sectionPlannerPrompt, question), "")
	if err != nil {
		logger.Warnw("section query planning failed, using template queries",
			"error", err.Error(),
		)
		return planned
	}

	for _, line := range strings.Split(out, "\n") {
		label, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if section, ok := sectionByLabel(label); ok {
			planned[section] = value
		}
	}

	return planned
}

// KPerSubQuery returns the per-section retrieval depth.
func (s *SectionedStrategy) KPerSubQuery() int {
	return s.topK
}

// Name returns the strategy name.
func (s *SectionedStrategy) Name() string {
	return "decomposed"
}

var (
	_ Strategy = (*DirectStrategy)(nil)
	_ Strategy = (*SectionedStrategy)(nil)
)
