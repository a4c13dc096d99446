// Package pipeline provides configuration options for the question answering pipeline.
package pipeline

import (
	"fmt"
	"time"

	"github.com/kart-io/medqa/pkg/options"
	"github.com/spf13/pflag"
)

var _ options.IOptions = (*Options)(nil)

// Options contains pipeline-specific configuration.
type Options struct {
	// Collection is the name of the Milvus collection holding ingested pages.
	Collection string `json:"collection" mapstructure:"collection"`

	// EmbeddingDim is the dimension of embedding vectors.
	EmbeddingDim int `json:"embedding-dim" mapstructure:"embedding-dim"`

	// DirectTopK is the number of chunks retrieved for the single direct query.
	DirectTopK int `json:"direct-top-k" mapstructure:"direct-top-k"`

	// SectionTopK is the number of chunks retrieved per section sub-query.
	SectionTopK int `json:"section-top-k" mapstructure:"section-top-k"`

	// ExpansionTopK is the number of chunks retrieved by the broader
	// fallback query issued when too few unique sources were found.
	ExpansionTopK int `json:"expansion-top-k" mapstructure:"expansion-top-k"`

	// MaxSources is the maximum number of unique sources kept after dedup.
	MaxSources int `json:"max-sources" mapstructure:"max-sources"`

	// ContextBudget is the total character budget for the assembled context.
	ContextBudget int `json:"context-budget" mapstructure:"context-budget"`

	// PerSourceChars caps the excerpt length contributed by a single source.
	PerSourceChars int `json:"per-source-chars" mapstructure:"per-source-chars"`

	// RetrievalTimeout bounds a single vector store search.
	RetrievalTimeout time.Duration `json:"retrieval-timeout" mapstructure:"retrieval-timeout"`

	// GenerationTimeout bounds the answer generation call.
	GenerationTimeout time.Duration `json:"generation-timeout" mapstructure:"generation-timeout"`

	// FanOutWorkers is the worker pool size for parallel per-section retrieval.
	FanOutWorkers int `json:"fan-out-workers" mapstructure:"fan-out-workers"`
}

// NewOptions creates new Options with defaults.
// Retrieval breadth and context budgets default to the values the
// MedlinePlus corpus was tuned with.
func NewOptions() *Options {
	return &Options{
		Collection:        "medline_pages",
		EmbeddingDim:      768,
		DirectTopK:        10,
		SectionTopK:       4,
		ExpansionTopK:     12,
		MaxSources:        5,
		ContextBudget:     8000,
		PerSourceChars:    1400,
		RetrievalTimeout:  15 * time.Second,
		GenerationTimeout: 90 * time.Second,
		FanOutWorkers:     6,
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.StringVar(&o.Collection, p+"collection", o.Collection, "Milvus collection with ingested pages.")
	fs.IntVar(&o.EmbeddingDim, p+"embedding-dim", o.EmbeddingDim, "Embedding vector dimension.")
	fs.IntVar(&o.DirectTopK, p+"direct-top-k", o.DirectTopK, "Chunks retrieved for the direct query.")
	fs.IntVar(&o.SectionTopK, p+"section-top-k", o.SectionTopK, "Chunks retrieved per section sub-query.")
	fs.IntVar(&o.ExpansionTopK, p+"expansion-top-k", o.ExpansionTopK, "Chunks retrieved by the broader fallback query.")
	fs.IntVar(&o.MaxSources, p+"max-sources", o.MaxSources, "Maximum unique sources kept after dedup.")
	fs.IntVar(&o.ContextBudget, p+"context-budget", o.ContextBudget, "Character budget for the assembled context.")
	fs.IntVar(&o.PerSourceChars, p+"per-source-chars", o.PerSourceChars, "Maximum excerpt characters per source.")
	fs.DurationVar(&o.RetrievalTimeout, p+"retrieval-timeout", o.RetrievalTimeout, "Timeout for a single vector store search.")
	fs.DurationVar(&o.GenerationTimeout, p+"generation-timeout", o.GenerationTimeout, "Timeout for answer generation.")
	fs.IntVar(&o.FanOutWorkers, p+"fan-out-workers", o.FanOutWorkers, "Worker pool size for parallel retrieval fan-out.")
}

// Complete fills unset fields with defaults.
func (o *Options) Complete() error {
	defaults := NewOptions()
	if o.Collection == "" {
		o.Collection = defaults.Collection
	}
	if o.RetrievalTimeout == 0 {
		o.RetrievalTimeout = defaults.RetrievalTimeout
	}
	if o.GenerationTimeout == 0 {
		o.GenerationTimeout = defaults.GenerationTimeout
	}
	return nil
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Collection == "" {
		errs = append(errs, fmt.Errorf("pipeline collection is required"))
	}
	if o.EmbeddingDim <= 0 {
		errs = append(errs, fmt.Errorf("pipeline embedding-dim must be positive"))
	}
	if o.DirectTopK <= 0 || o.SectionTopK <= 0 || o.ExpansionTopK <= 0 {
		errs = append(errs, fmt.Errorf("pipeline top-k values must be positive"))
	}
	if o.MaxSources <= 0 {
		errs = append(errs, fmt.Errorf("pipeline max-sources must be positive"))
	}
	if o.ContextBudget <= 0 {
		errs = append(errs, fmt.Errorf("pipeline context-budget must be positive"))
	}
	if o.PerSourceChars <= 0 || o.PerSourceChars > o.ContextBudget {
		errs = append(errs, fmt.Errorf("pipeline per-source-chars must be in (0, context-budget]"))
	}
	if o.FanOutWorkers <= 0 {
		errs = append(errs, fmt.Errorf("pipeline fan-out-workers must be positive"))
	}
	return errs
}
