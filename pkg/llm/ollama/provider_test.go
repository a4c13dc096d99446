package ollama

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRetryResendsBody(t *testing.T) {
	var mu sync.Mutex
	var bodies []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		mu.Lock()
		bodies = append(bodies, string(body))
		attempt := len(bodies)
		mu.Unlock()

		if attempt == 1 {
			// Drop the connection so the client sees a transport error.
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			_ = conn.Close()
			return
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"model":"test-model","response":"all good","done":true}`)
	}))
	defer srv.Close()

	provider := NewProviderWithConfig(&Config{
		BaseURL:    srv.URL,
		EmbedModel: "test-embed",
		ChatModel:  "test-model",
		Timeout:    5 * time.Second,
		MaxRetries: 2,
	})

	out, err := provider.Generate(context.Background(), "what causes hypertension", "")
	require.NoError(t, err)
	assert.Equal(t, "all good", out)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 2)
	// The retried attempt posts the full body again, not an empty one.
	assert.True(t, strings.Contains(bodies[1], "what causes hypertension"))
	assert.Equal(t, bodies[0], bodies[1])
}

func TestEmbedSingle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"model":"test-embed","embeddings":[[0.1,0.2,0.3]]}`)
	}))
	defer srv.Close()

	provider := NewProviderWithConfig(&Config{
		BaseURL:    srv.URL,
		EmbedModel: "test-embed",
		ChatModel:  "test-model",
		Timeout:    5 * time.Second,
		MaxRetries: 1,
	})

	vec, err := provider.EmbedSingle(context.Background(), "blood pressure")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}
