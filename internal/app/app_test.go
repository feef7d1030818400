package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suPer8Hu/weirdling/internal/ai"
	"github.com/suPer8Hu/weirdling/internal/config"
	"github.com/suPer8Hu/weirdling/internal/logging"
	"github.com/suPer8Hu/weirdling/internal/weirdling"
)

func baseConfig() config.Config {
	return config.Config{
		AIProvider:       "mock",
		RateLimitBackend: "memory",
		RateLimitMax:     10,
		RateLimitWindow:  time.Minute,
		IdempotencyLock:  "memory",
		OllamaModel:      "llama3:latest",
		OpenRouterModel:  "openrouter/auto",
	}
}

func TestNewProvider(t *testing.T) {
	cfg := baseConfig()
	p, mv, err := NewProvider(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &ai.MockProvider{}, p)
	assert.Equal(t, ai.MockModelVersion, mv)

	cfg.AIProvider = "ollama"
	_, mv, err = NewProvider(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "llama3:latest", mv)

	cfg.AIProvider = "openrouter"
	_, _, err = NewProvider(context.Background(), cfg)
	assert.Error(t, err, "openrouter without a key")

	cfg.AIProvider = "gpt-nope"
	_, _, err = NewProvider(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNewLimiterAndLocker(t *testing.T) {
	cfg := baseConfig()
	_, err := NewLimiter(cfg, nil, logging.Discard())
	require.NoError(t, err)

	l, err := NewLocker(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &weirdling.MemoryLocker{}, l)

	cfg.IdempotencyLock = "none"
	l, err = NewLocker(cfg, nil)
	require.NoError(t, err)
	assert.Nil(t, l)

	cfg.RateLimitBackend = "redis"
	cfg.IdempotencyLock = "redis"
	assert.True(t, NeedsRedis(cfg))
	_, err = NewLimiter(cfg, nil, logging.Discard())
	assert.Error(t, err)
	_, err = NewLocker(cfg, nil)
	assert.Error(t, err)

	cfg.RateLimitBackend = "etcd"
	_, err = NewLimiter(cfg, nil, logging.Discard())
	assert.Error(t, err)
}
