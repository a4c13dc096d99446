package llm

import (
	"context"
	"testing"
)

// mockProvider is a registry test double.
type mockProvider struct {
	name string
}

func (m *mockProvider) Name() string {
	return m.name
}

func (m *mockProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i := range texts {
		result[i] = []float32{0.1, 0.2, 0.3}
	}
	return result, nil
}

func (m *mockProvider) EmbedSingle(_ context.Context, _ string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *mockProvider) Chat(_ context.Context, _ []Message) (string, error) {
	return "mock response", nil
}

func (m *mockProvider) Generate(_ context.Context, _ string, _ string) (string, error) {
	return "mock generated text", nil
}

func TestRegisterAndNewProvider(t *testing.T) {
	RegisterProvider("test-provider", func(config map[string]any) (Provider, error) {
		name := "test-provider"
		if n, ok := config["name"].(string); ok {
			name = n
		}
		return &mockProvider{name: name}, nil
	})

	provider, err := NewProvider("test-provider", map[string]any{"name": "custom-name"})
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}

	if provider.Name() != "custom-name" {
		t.Errorf("expected name 'custom-name', got '%s'", provider.Name())
	}
}

func TestNewProviderUnknown(t *testing.T) {
	_, err := NewProvider("unknown-provider", nil)
	if err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestNewEmbeddingAndChatProvider(t *testing.T) {
	RegisterProvider("dual", func(config map[string]any) (Provider, error) {
		return &mockProvider{name: "dual"}, nil
	})

	embed, err := NewEmbeddingProvider("dual", nil)
	if err != nil {
		t.Fatalf("NewEmbeddingProvider failed: %v", err)
	}
	if embed.Name() != "dual" {
		t.Errorf("expected name 'dual', got '%s'", embed.Name())
	}

	chat, err := NewChatProvider("dual", nil)
	if err != nil {
		t.Fatalf("NewChatProvider failed: %v", err)
	}
	if chat.Name() != "dual" {
		t.Errorf("expected name 'dual', got '%s'", chat.Name())
	}
}

func TestListProviders(t *testing.T) {
	RegisterProvider("listed", func(config map[string]any) (Provider, error) {
		return &mockProvider{name: "listed"}, nil
	})

	found := false
	for _, name := range ListProviders() {
		if name == "listed" {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected 'listed' in registered providers")
	}
}
