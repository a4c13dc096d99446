package biz

import (
	"sort"
	"strings"
)

// Source is a deduplicated page aggregating every chunk retrieved from it.
type Source struct {
	// SourceID is the page URL with any fragment stripped.
	SourceID string
	// Title is the page title from the best chunk.
	Title string
	// BestChunk is the lowest-scoring chunk of the page.
	BestChunk Chunk
	// AllChunks holds every chunk of the page in first-seen order.
	AllChunks []Chunk
	// Rank is the position after merge, starting at 1.
	Rank int
}

// relevanceMargins widen the score gate step by step until enough sources
// pass. Values follow the distance scale of the ingested embeddings.
var relevanceMargins = []float32{0.15, 0.30, 0.50, 0.80, 1.20, 2.00}

// DeduperConfig configures source deduplication.
type DeduperConfig struct {
	// MaxSources caps the ranked source list.
	MaxSources int
}

// Deduper collapses retrieved chunks into a ranked list of unique sources.
type Deduper struct {
	config *DeduperConfig
}

// NewDeduper creates a deduper.
func NewDeduper(config *DeduperConfig) *Deduper {
	return &Deduper{config: config}
}

// SourceID normalizes a page URL into its dedup key by stripping the
// fragment and surrounding whitespace.
func SourceID(url string) string {
	url, _, _ = strings.Cut(url, "#")
	return strings.TrimSpace(url)
}

// Dedupe groups chunks by source, ranks sources by best score ascending
// with first-seen order breaking ties, gates them by relevance margin and
// truncates to MaxSources.
func (d *Deduper) Dedupe(chunks []Chunk) []*Source {
	if len(chunks) == 0 {
		return nil
	}

	bySource := make(map[string]*Source, len(chunks))
	order := make([]string, 0, len(chunks))

	for _, chunk := range chunks {
		id := SourceID(chunk.SourceURL)
		if id == "" {
			continue
		}
		src, ok := bySource[id]
		if !ok {
			src = &Source{
				SourceID:  id,
				Title:     chunk.Title,
				BestChunk: chunk,
			}
			bySource[id] = src
			order = append(order, id)
		}
		src.AllChunks = append(src.AllChunks, chunk)
		if chunk.Score < src.BestChunk.Score {
			src.BestChunk = chunk
			src.Title = chunk.Title
		}
	}

	sources := make([]*Source, 0, len(order))
	for _, id := range order {
		sources = append(sources, bySource[id])
	}

	// Stable sort keeps first-seen order on equal scores, so earlier
	// sections' sources win ties.
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].BestChunk.Score < sources[j].BestChunk.Score
	})

	sources = d.gate(sources)

	for i, src := range sources {
		src.Rank = i + 1
	}
	return sources
}

// gate applies the widening relevance margins over the best score until at
// least min(3, MaxSources) sources pass, then truncates to MaxSources.
func (d *Deduper) gate(sources []*Source) []*Source {
	if len(sources) == 0 {
		return sources
	}

	limit := d.config.MaxSources
	if limit <= 0 {
		limit = len(sources)
	}

	need := 3
	if limit < need {
		need = limit
	}

	bestScore := sources[0].BestChunk.Score
	for _, margin := range relevanceMargins {
		gate := bestScore + margin
		picked := make([]*Source, 0, limit)
		for _, src := range sources {
			if src.BestChunk.Score <= gate {
				picked = append(picked, src)
				if len(picked) == limit {
					break
				}
			}
		}
		if len(picked) >= need {
			return picked
		}
	}

	if len(sources) > limit {
		return sources[:limit]
	}
	return sources
}
