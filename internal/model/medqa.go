// Package model provides data models for the MedQA service.
package model

import (
	"time"
)

// QueryMode selects which answering strategy the pipeline runs.
type QueryMode string

const (
	// ModeDirect answers from a single retrieval pass over the raw question.
	ModeDirect QueryMode = "direct"
	// ModeDecomposed expands the question into per-section sub-queries.
	ModeDecomposed QueryMode = "decomposed"
	// ModeBoth runs direct and decomposed and returns both answers.
	ModeBoth QueryMode = "both"
)

// Valid reports whether the mode is one of the supported values.
func (m QueryMode) Valid() bool {
	switch m {
	case ModeDirect, ModeDecomposed, ModeBoth:
		return true
	}
	return false
}

// AskRequest is the body of POST /v1/ask.
type AskRequest struct {
	Question string    `json:"question" binding:"required"`
	Mode     QueryMode `json:"mode,omitempty"`
}

// SourceRef identifies one source page used to build an answer.
type SourceRef struct {
	SourceURL string  `json:"source_url"`
	Title     string  `json:"title,omitempty"`
	Score     float32 `json:"score"`
}

// Answer is a single generated answer with its provenance.
type Answer struct {
	Text         string      `json:"text"`
	Grounded     bool        `json:"grounded"`
	CitedSources []SourceRef `json:"cited_sources,omitempty"`
	Strategy     string      `json:"strategy"`
}

// AskResult is the response body of POST /v1/ask.
type AskResult struct {
	Question   string    `json:"question"`
	Mode       QueryMode `json:"mode"`
	Direct     *Answer   `json:"direct,omitempty"`
	Decomposed *Answer   `json:"decomposed,omitempty"`
	Cached     bool      `json:"cached"`
	ElapsedMS  int64     `json:"elapsed_ms"`
	AskedAt    time.Time `json:"asked_at"`
}

// StatsResult is the response body of GET /v1/stats.
type StatsResult struct {
	Collection string `json:"collection"`
	ChunkCount int64  `json:"chunk_count"`
	CacheStats any    `json:"cache_stats,omitempty"`
}
