package biz

import (
	"regexp"
	"strings"
)

// ContextEntry is one source excerpt inside an assembled context.
type ContextEntry struct {
	// SourceID identifies the page the excerpt came from.
	SourceID string
	// Excerpt is the budget-capped page text.
	Excerpt string
}

// Context is the bounded evidence passed to the answer generator. Built
// fresh per request, never persisted.
type Context struct {
	Entries []ContextEntry
}

// Empty reports whether the context carries no usable text.
func (c *Context) Empty() bool {
	if c == nil {
		return true
	}
	for _, e := range c.Entries {
		if strings.TrimSpace(e.Excerpt) != "" {
			return false
		}
	}
	return true
}

// SourceIDs returns the ids of every entry, in order.
func (c *Context) SourceIDs() []string {
	ids := make([]string, len(c.Entries))
	for i, e := range c.Entries {
		ids[i] = e.SourceID
	}
	return ids
}

// Text renders the context as SOURCE-prefixed blocks.
func (c *Context) Text() string {
	blocks := make([]string, 0, len(c.Entries))
	for _, e := range c.Entries {
		blocks = append(blocks, "SOURCE: "+e.SourceID+"\n"+e.Excerpt)
	}
	return strings.Join(blocks, "\n")
}

// Size returns the rendered size in characters.
func (c *Context) Size() int {
	return len(c.Text())
}

// AssemblerConfig bounds the assembled context.
type AssemblerConfig struct {
	// Budget is the total context size in characters.
	Budget int
	// PerSourceChars caps each source's excerpt.
	PerSourceChars int
}

// Assembler builds a bounded context from ranked sources.
type Assembler struct {
	config *AssemblerConfig
}

// NewAssembler creates an assembler.
func NewAssembler(config *AssemblerConfig) *Assembler {
	return &Assembler{config: config}
}

var excessNewlines = regexp.MustCompile(`\n{3,}`)

// Assemble walks sources best-first and appends each source's concatenated
// chunk text, capped per source and bounded overall. A source that does not
// fit whole is truncated to the remaining budget rather than skipped. The
// rendered size never exceeds Budget; at least one source is included when
// sources is non-empty and the budget covers its header line.
func (a *Assembler) Assemble(sources []*Source) *Context {
	ctx := &Context{}
	if len(sources) == 0 || a.config.Budget <= 0 {
		return ctx
	}

	remaining := a.config.Budget
	for _, src := range sources {
		header := "SOURCE: " + src.SourceID + "\n"
		if len(ctx.Entries) > 0 {
			header = "\n" + header
		}
		if len(header) >= remaining {
			break
		}

		excerpt := a.sourceExcerpt(src)
		avail := remaining - len(header)
		if len(excerpt) > avail {
			excerpt = excerpt[:avail]
		}

		ctx.Entries = append(ctx.Entries, ContextEntry{
			SourceID: src.SourceID,
			Excerpt:  excerpt,
		})
		remaining -= len(header) + len(excerpt)
	}

	return ctx
}

// sourceExcerpt concatenates a source's chunk texts, skipping duplicate
// texts within the source, capped at PerSourceChars.
func (a *Assembler) sourceExcerpt(src *Source) string {
	seen := make(map[string]struct{}, len(src.AllChunks))
	parts := make([]string, 0, len(src.AllChunks))
	for _, chunk := range src.AllChunks {
		text := excessNewlines.ReplaceAllString(strings.TrimSpace(chunk.Text), "\n")
		if text == "" {
			continue
		}
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}
		parts = append(parts, text)
	}

	excerpt := strings.Join(parts, "\n")
	if a.config.PerSourceChars > 0 && len(excerpt) > a.config.PerSourceChars {
		excerpt = excerpt[:a.config.PerSourceChars]
	}
	return excerpt
}
