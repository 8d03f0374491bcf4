package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// LLMCache memoizes chat completions keyed by a hash of the canonical
// message list, the way AltairaLabs-PromptKit's Redis-backed state
// store memoizes conversation state — applied here to LLM responses
// rather than session state. Any Redis error degrades silently to a
// cache miss; callers never see cache failures.
type LLMCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

func NewLLMCache(client *redis.Client, ttl time.Duration, log *slog.Logger) *LLMCache {
	if ttl <= 0 {
		ttl = 3600 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &LLMCache{client: client, ttl: ttl, log: log}
}

func cacheKey(messages []ChatMessage) (string, error) {
	b, err := json.Marshal(messages)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return "llmcache:" + hex.EncodeToString(sum[:])[:16], nil
}

func (c *LLMCache) Get(ctx context.Context, messages []ChatMessage) (string, bool) {
	key, err := cacheKey(messages)
	if err != nil {
		c.log.Warn("llm cache: key derivation failed", "error", err)
		return "", false
	}
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("llm cache: get failed", "error", err)
		}
		return "", false
	}
	return val, true
}

func (c *LLMCache) Set(ctx context.Context, messages []ChatMessage, text string) {
	key, err := cacheKey(messages)
	if err != nil {
		c.log.Warn("llm cache: key derivation failed", "error", err)
		return
	}
	if err := c.client.SetEx(ctx, key, text, c.ttl).Err(); err != nil {
		c.log.Warn("llm cache: set failed", "error", err)
	}
}
