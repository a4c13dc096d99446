package biz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/medqa/internal/model"
	jsonutil "github.com/kart-io/medqa/pkg/utils/json"
)

// AnswerCacheConfig configures the answer cache.
type AnswerCacheConfig struct {
	// Enabled toggles caching.
	Enabled bool
	// TTL is the cache entry lifetime.
	TTL time.Duration
	// KeyPrefix namespaces cache keys.
	KeyPrefix string
}

// AnswerCache caches finished ask results in Redis, keyed by question and
// mode. Wholly transparent to pipeline contracts.
type AnswerCache struct {
	redis  *goredis.Client
	config *AnswerCacheConfig
}

// NewAnswerCache creates the answer cache.
func NewAnswerCache(redis *goredis.Client, config *AnswerCacheConfig) *AnswerCache {
	if config == nil {
		config = &AnswerCacheConfig{
			Enabled:   false,
			TTL:       1 * time.Hour,
			KeyPrefix: "medqa:ask:",
		}
	}
	return &AnswerCache{
		redis:  redis,
		config: config,
	}
}

// cacheKey hashes the question and mode into a namespaced key.
func (c *AnswerCache) cacheKey(question string, mode model.QueryMode) string {
	hash := sha256.Sum256([]byte(question + "|" + string(mode)))
	return c.config.KeyPrefix + hex.EncodeToString(hash[:])
}

// Get returns a cached result, or (nil, nil) on miss.
func (c *AnswerCache) Get(ctx context.Context, question string, mode model.QueryMode) (*model.AskResult, error) {
	if !c.config.Enabled || c.redis == nil {
		return nil, fmt.Errorf("cache not enabled or redis not available")
	}

	key := c.cacheKey(question, mode)

	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err == goredis.Nil {
			logger.Debugw("cache miss", "key", key)
			return nil, nil
		}
		logger.Warnw("failed to get from cache", "error", err.Error(), "key", key)
		return nil, err
	}

	var result model.AskResult
	if err := jsonutil.Unmarshal(data, &result); err != nil {
		logger.Warnw("failed to unmarshal cached result", "error", err.Error(), "key", key)
		_ = c.redis.Del(ctx, key).Err()
		return nil, err
	}

	logger.Infow("cache hit", "key", key)
	return &result, nil
}

// Set writes a finished result to the cache.
func (c *AnswerCache) Set(ctx context.Context, question string, mode model.QueryMode, result *model.AskResult) error {
	if !c.config.Enabled || c.redis == nil {
		return nil
	}

	key := c.cacheKey(question, mode)

	data, err := jsonutil.Marshal(result)
	if err != nil {
		logger.Warnw("failed to marshal result for caching", "error", err.Error())
		return err
	}

	if err := c.redis.Set(ctx, key, data, c.config.TTL).Err(); err != nil {
		logger.Warnw("failed to set cache", "error", err.Error(), "key", key)
		return err
	}

	logger.Infow("cached ask result", "key", key, "ttl", c.config.TTL)
	return nil
}

// Clear deletes every cached answer under the key prefix.
func (c *AnswerCache) Clear(ctx context.Context) error {
	if !c.config.Enabled || c.redis == nil {
		return nil
	}

	pattern := c.config.KeyPrefix + "*"
	iter := c.redis.Scan(ctx, 0, pattern, 0).Iterator()

	deletedCount := 0
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warnw("failed to delete cache key", "error", err.Error(), "key", iter.Val())
		} else {
			deletedCount++
		}
	}

	if err := iter.Err(); err != nil {
		logger.Warnw("error during cache scan", "error", err.Error())
		return err
	}

	logger.Infow("cleared answer cache", "deleted_count", deletedCount)
	return nil
}

// GetStats reports key count and configuration of the cache.
func (c *AnswerCache) GetStats(ctx context.Context) (map[string]any, error) {
	if !c.config.Enabled || c.redis == nil {
		return map[string]any{
			"enabled": false,
		}, nil
	}

	pattern := c.config.KeyPrefix + "*"
	iter := c.redis.Scan(ctx, 0, pattern, 0).Iterator()

	keyCount := 0
	for iter.Next(ctx) {
		keyCount++
	}

	if err := iter.Err(); err != nil {
		return nil, err
	}

	return map[string]any{
		"enabled":    true,
		"key_count":  keyCount,
		"ttl":        c.config.TTL.String(),
		"key_prefix": c.config.KeyPrefix,
	}, nil
}
