package biz

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/medqa/pkg/errors"
	"github.com/kart-io/medqa/pkg/llm"
)

// InsufficiencyStatement is the literal text the generator emits for any
// section the context does not cover.
const InsufficiencyStatement = "Not enough information in the retrieved pages."

// answerHeadings are the six headings of a structured answer, in render order.
var answerHeadings = []string{
	"1) Overview",
	"2) Causes / Risk factors",
	"3) Symptoms",
	"4) Diagnosis",
	"5) Treatment / What you can do",
	"6) When to seek urgent care",
}

const answerPrompt = `You are a careful medical information assistant.

RULES:
- Use ONLY the provided context.
- Do NOT guess or add outside knowledge.
- If a section is missing, write exactly: %s
- Do NOT include URLs in the answer body.
- NO blank lines between a heading and its content.

Use these headings EXACTLY:
1) Overview
2) Causes / Risk factors
3) Symptoms
4) Diagnosis
5) Treatment / What you can do
6) When to seek urgent care

CONTEXT:
%s

QUESTION:
%s`

// GeneratedAnswer is the generator output for one strategy run.
type GeneratedAnswer struct {
	// Text is the normalized answer body.
	Text string
	// Grounded is false when the answer is entirely the insufficiency
	// statement.
	Grounded bool
	// CitedSources lists the source ids the answer drew from, always a
	// subset of the assembled context.
	CitedSources []string
}

// Generator produces structured answers constrained to the assembled
// context.
type Generator struct {
	chatProvider llm.ChatProvider
}

// NewGenerator creates a generator.
func NewGenerator(chatProvider llm.ChatProvider) *Generator {
	return &Generator{chatProvider: chatProvider}
}

// Generate answers the question from the context only. An empty context
// short-circuits to the insufficiency answer without calling the model.
// Model failure is a generation error, distinct from insufficiency.
func (g *Generator) Generate(ctx context.Context, question string, evidence *Context) (*GeneratedAnswer, error) {
	if evidence.Empty() {
		return &GeneratedAnswer{
			Text:     insufficiencyAnswer(),
			Grounded: false,
		}, nil
	}

	if ctx.Err() != nil {
		return nil, errors.ErrGeneration.WithCause(ctx.Err())
	}

	prompt := fmt.Sprintf(answerPrompt, InsufficiencyStatement, evidence.Text(), question)

	logger.Infof("Calling LLM to generate answer (context: %d chars, %d sources)",
		evidence.Size(), len(evidence.Entries))

	raw, err := g.chatProvider.Generate(ctx, prompt, "")
	if err != nil {
		logger.Errorf("LLM generation failed: %v", err)
		return nil, errors.ErrGeneration.WithCause(err)
	}

	text := NormalizeAnswer(raw)
	answer := &GeneratedAnswer{
		Text:     text,
		Grounded: !isInsufficient(text),
	}
	if answer.Grounded {
		answer.CitedSources = evidence.SourceIDs()
	}

	return answer, nil
}

// insufficiencyAnswer renders the full six-section insufficiency answer.
func insufficiencyAnswer() string {
	var b strings.Builder
	for i, heading := range answerHeadings {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(heading)
		b.WriteString("\n")
		b.WriteString(InsufficiencyStatement)
	}
	return NormalizeAnswer(b.String())
}

var (
	splitHeading   = regexp.MustCompile(`(?m)^\s*(\d+)\s*[.)]\s*\n\s*([A-Za-z])`)
	looseHeading   = regexp.MustCompile(`(?m)^\s*(\d+)[.)]\s*`)
	headingGap     = regexp.MustCompile(`(?m)(\d\)\s[^\n]+)\n\s*\n+`)
	multiNewline   = regexp.MustCompile(`\n{2,}`)
	headingPattern = regexp.MustCompile(`(?m)^\d\)\s`)
)

// NormalizeAnswer tightens model output: repairs numbered headings split
// across lines, removes blank lines after headings and collapses remaining
// blank runs.
func NormalizeAnswer(answer string) string {
	t := strings.ReplaceAll(answer, "\r\n", "\n")

	lines := strings.Split(t, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	t = strings.Join(lines, "\n")

	t = splitHeading.ReplaceAllString(t, "$1) $2")
	t = looseHeading.ReplaceAllString(t, "$1) ")
	t = headingGap.ReplaceAllString(t, "$1\n")
	t = multiNewline.ReplaceAllString(t, "\n")

	return strings.TrimSpace(t)
}

// isInsufficient reports whether every section body of a normalized answer
// is exactly the insufficiency statement.
func isInsufficient(text string) bool {
	if strings.TrimSpace(text) == "" {
		return true
	}
	if !strings.Contains(text, InsufficiencyStatement) {
		return false
	}

	// Drop heading lines, then check every remaining line.
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || headingPattern.MatchString(line) {
			continue
		}
		if line != InsufficiencyStatement {
			return false
		}
	}
	return true
}
