package biz

import (
	"context"
	"errors"
	"sync"

	"github.com/kart-io/medqa/internal/medqa/store"
	"github.com/kart-io/medqa/pkg/llm"
)

// mockVectorStore stubs store.VectorStore. searchFn receives the query text
// recovered from the mock embedder so tests can answer per query.
type mockVectorStore struct {
	mu       sync.Mutex
	searchFn func(query string, topK int) ([]*store.SearchResult, error)
	calls    int
	queries  []string
}

func (m *mockVectorStore) Search(_ context.Context, _ string, embedding []float32, topK int) ([]*store.SearchResult, error) {
	query := decodeQuery(embedding)
	m.mu.Lock()
	m.calls++
	m.queries = append(m.queries, query)
	m.mu.Unlock()

	if m.searchFn == nil {
		return nil, nil
	}
	return m.searchFn(query, topK)
}

func (m *mockVectorStore) CreateCollection(context.Context, *store.CollectionConfig) error {
	return errors.New("not implemented")
}

func (m *mockVectorStore) GetStats(context.Context, string) (int64, error) {
	return 0, errors.New("not implemented")
}

func (m *mockVectorStore) Close(context.Context) error {
	return nil
}

func (m *mockVectorStore) searchCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var _ store.VectorStore = (*mockVectorStore)(nil)

// mockEmbedder encodes the query text bytes into the embedding so the mock
// store can recover it.
type mockEmbedder struct {
	err error
}

func (m *mockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = encodeQuery(t)
	}
	return out, nil
}

func (m *mockEmbedder) EmbedSingle(_ context.Context, text string) ([]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	return encodeQuery(text), nil
}

func (m *mockEmbedder) Name() string { return "mock-embedding" }

var _ llm.EmbeddingProvider = (*mockEmbedder)(nil)

func encodeQuery(text string) []float32 {
	v := make([]float32, len(text))
	for i, b := range []byte(text) {
		v[i] = float32(b)
	}
	return v
}

func decodeQuery(embedding []float32) string {
	b := make([]byte, len(embedding))
	for i, f := range embedding {
		b[i] = byte(f)
	}
	return string(b)
}

// mockChat stubs llm.ChatProvider with a per-prompt hook and a call counter.
type mockChat struct {
	mu         sync.Mutex
	generateFn func(prompt string) (string, error)
	calls      int
	prompts    []string
}

func (m *mockChat) Generate(_ context.Context, prompt string, _ string) (string, error) {
	m.mu.Lock()
	m.calls++
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	if m.generateFn == nil {
		return "", errors.New("no generate function configured")
	}
	return m.generateFn(prompt)
}

func (m *mockChat) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	if len(messages) == 0 {
		return "", errors.New("no messages")
	}
	return m.Generate(ctx, messages[len(messages)-1].Content, "")
}

func (m *mockChat) Name() string { return "mock-chat" }

func (m *mockChat) generateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var _ llm.ChatProvider = (*mockChat)(nil)

// groundedAnswer is a well-formed six-section answer used by tests.
const groundedAnswer = `1) Overview
High blood pressure means the force of blood against artery walls is too high.
2) Causes / Risk factors
Salt intake, obesity and family history raise the risk.
3) Symptoms
Often none; severe cases cause headaches.
4) Diagnosis
Repeated blood pressure measurements.
5) Treatment / What you can do
Lifestyle changes and medication.
6) When to seek urgent care
Readings above 180/120 with symptoms.`

// insufficientAnswer marks every section as uncovered.
const insufficientAnswer = `1) Overview
Not enough information in the retrieved pages.
2) Causes / Risk factors
Not enough information in the retrieved pages.
3) Symptoms
Not enough information in the retrieved pages.
4) Diagnosis
Not enough information in the retrieved pages.
5) Treatment / What you can do
Not enough information in the retrieved pages.
6) When to seek urgent care
Not enough information in the retrieved pages.`
