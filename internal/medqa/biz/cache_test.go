package biz

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/medqa/internal/model"
)

// setupTestRedis connects to a local Redis on a test database, skipping
// the test when none is available.
func setupTestRedis(t *testing.T) *goredis.Client {
	client := goredis.NewClient(&goredis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("redis not available, skipping")
	}

	client.FlushDB(ctx)
	return client
}

func testCacheConfig() *AnswerCacheConfig {
	return &AnswerCacheConfig{
		Enabled:   true,
		TTL:       1 * time.Hour,
		KeyPrefix: "test:medqa:",
	}
}

func TestNewAnswerCache_NilConfigDefaults(t *testing.T) {
	cache := NewAnswerCache(nil, nil)
	require.NotNil(t, cache)
	assert.False(t, cache.config.Enabled)
	assert.Equal(t, 1*time.Hour, cache.config.TTL)
	assert.Equal(t, "medqa:ask:", cache.config.KeyPrefix)
}

func TestAnswerCache_KeyIncludesMode(t *testing.T) {
	cache := NewAnswerCache(nil, testCacheConfig())

	direct := cache.cacheKey("what is hypertension", model.ModeDirect)
	decomposed := cache.cacheKey("what is hypertension", model.ModeDecomposed)
	directAgain := cache.cacheKey("what is hypertension", model.ModeDirect)
	other := cache.cacheKey("what is diabetes", model.ModeDirect)

	// Same question under a different mode must never collide.
	assert.NotEqual(t, direct, decomposed)
	assert.Equal(t, direct, directAgain)
	assert.NotEqual(t, direct, other)
	assert.Contains(t, direct, "test:medqa:")
}

func TestAnswerCache_SetAndGet(t *testing.T) {
	client := setupTestRedis(t)
	defer func() { _ = client.Close() }()

	cache := NewAnswerCache(client, testCacheConfig())
	ctx := context.Background()

	question := "what causes high blood pressure"
	result := &model.AskResult{
		Question: question,
		Mode:     model.ModeDirect,
		Direct: &model.Answer{
			Text:     "1) Overview\nHigh blood pressure overview.",
			Grounded: true,
			Strategy: "direct",
			CitedSources: []model.SourceRef{
				{SourceURL: "https://medlineplus.gov/highbloodpressure.html", Score: 0.42},
			},
		},
	}

	require.NoError(t, cache.Set(ctx, question, model.ModeDirect, result))

	cached, err := cache.Get(ctx, question, model.ModeDirect)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, result.Question, cached.Question)
	require.NotNil(t, cached.Direct)
	assert.Equal(t, result.Direct.Text, cached.Direct.Text)
	assert.Equal(t, result.Direct.CitedSources, cached.Direct.CitedSources)

	// The decomposed entry for the same question stays independent.
	miss, err := cache.Get(ctx, question, model.ModeDecomposed)
	require.NoError(t, err)
	assert.Nil(t, miss)
}

func TestAnswerCache_GetMiss(t *testing.T) {
	client := setupTestRedis(t)
	defer func() { _ = client.Close() }()

	cache := NewAnswerCache(client, testCacheConfig())

	cached, err := cache.Get(context.Background(), "never asked", model.ModeDirect)
	require.NoError(t, err)
	assert.Nil(t, cached)
}

func TestAnswerCache_Disabled(t *testing.T) {
	client := setupTestRedis(t)
	defer func() { _ = client.Close() }()

	config := testCacheConfig()
	config.Enabled = false
	cache := NewAnswerCache(client, config)
	ctx := context.Background()

	result := &model.AskResult{Question: "q", Mode: model.ModeDirect}
	assert.NoError(t, cache.Set(ctx, "q", model.ModeDirect, result))

	cached, err := cache.Get(ctx, "q", model.ModeDirect)
	assert.Error(t, err)
	assert.Nil(t, cached)
}

func TestAnswerCache_Clear(t *testing.T) {
	client := setupTestRedis(t)
	defer func() { _ = client.Close() }()

	cache := NewAnswerCache(client, testCacheConfig())
	ctx := context.Background()

	questions := []string{"q one", "q two", "q three"}
	for _, q := range questions {
		result := &model.AskResult{Question: q, Mode: model.ModeDirect}
		require.NoError(t, cache.Set(ctx, q, model.ModeDirect, result))
	}

	require.NoError(t, cache.Clear(ctx))

	for _, q := range questions {
		cached, err := cache.Get(ctx, q, model.ModeDirect)
		require.NoError(t, err)
		assert.Nil(t, cached)
	}
}

func TestAnswerCache_GetStats(t *testing.T) {
	client := setupTestRedis(t)
	defer func() { _ = client.Close() }()

	cache := NewAnswerCache(client, testCacheConfig())
	ctx := context.Background()

	result := &model.AskResult{Question: "q", Mode: model.ModeDirect}
	require.NoError(t, cache.Set(ctx, "q", model.ModeDirect, result))

	stats, err := cache.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, true, stats["enabled"])
	assert.Equal(t, 1, stats["key_count"])
	assert.Equal(t, "test:medqa:", stats["key_prefix"])
}
