// Package app assembles the generation service from config. The API and the
// worker build the same service so a queued job behaves like a direct one.
package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/suPer8Hu/weirdling/internal/ai"
	"github.com/suPer8Hu/weirdling/internal/config"
	"github.com/suPer8Hu/weirdling/internal/ratelimit"
	"github.com/suPer8Hu/weirdling/internal/store/redisstore"
	"github.com/suPer8Hu/weirdling/internal/weirdling"
)

// NeedsRedis reports whether any configured backend lives in Redis.
func NeedsRedis(cfg config.Config) bool {
	return cfg.RateLimitBackend == "redis" || cfg.IdempotencyLock == "redis"
}

func NewRegistry(cfg config.Config) *ai.Registry {
	reg := ai.NewRegistry()
	reg.Register("mock", func(ctx context.Context, model string) (ai.Provider, error) {
		return ai.NewMockProvider(), nil
	})
	reg.Register("ollama", func(ctx context.Context, model string) (ai.Provider, error) {
		if model == "" {
			model = cfg.OllamaModel
		}
		return ai.WithBreaker("ollama", ai.NewOllamaProvider(cfg.OllamaBaseURL, model)), nil
	})
	reg.Register("openrouter", func(ctx context.Context, model string) (ai.Provider, error) {
		if cfg.OpenRouterAPIKey == "" {
			return nil, fmt.Errorf("openrouter: OPENROUTER_API_KEY is empty")
		}
		if model == "" {
			model = cfg.OpenRouterModel
		}
		p := ai.NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, model, cfg.OpenRouterSiteURL, cfg.OpenRouterAppName)
		return ai.WithBreaker("openrouter", p), nil
	})
	return reg
}

// NewProvider resolves AI_PROVIDER and the model version new jobs are stamped with.
func NewProvider(ctx context.Context, cfg config.Config) (ai.Provider, string, error) {
	p, err := NewRegistry(cfg).Get(ctx, cfg.AIProvider, "")
	if err != nil {
		return nil, "", err
	}
	switch cfg.AIProvider {
	case "ollama":
		return p, cfg.OllamaModel, nil
	case "openrouter":
		return p, cfg.OpenRouterModel, nil
	default:
		return p, ai.MockModelVersion, nil
	}
}

func NewLimiter(cfg config.Config, rds *redisstore.Store, log logrus.FieldLogger) (*ratelimit.Limiter, error) {
	var store ratelimit.Store
	switch cfg.RateLimitBackend {
	case "", "memory":
		store = ratelimit.NewMemoryStore()
	case "redis":
		if rds == nil {
			return nil, fmt.Errorf("rate limit backend redis needs a redis client")
		}
		store = redisstore.NewRateLimitStore(rds)
	default:
		return nil, fmt.Errorf("unsupported RATE_LIMIT_BACKEND=%q", cfg.RateLimitBackend)
	}
	return ratelimit.New(store, cfg.RateLimitMax, cfg.RateLimitWindow, ratelimit.WithLogger(log)), nil
}

// NewLocker returns nil for "none"; duplicates then race as they would without a lock.
func NewLocker(cfg config.Config, rds *redisstore.Store) (weirdling.Locker, error) {
	switch cfg.IdempotencyLock {
	case "", "memory":
		return weirdling.NewMemoryLocker(), nil
	case "redis":
		if rds == nil {
			return nil, fmt.Errorf("idempotency lock redis needs a redis client")
		}
		return redisstore.NewLocker(rds, cfg.LockTTL, cfg.LockWait), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported IDEMPOTENCY_LOCK=%q", cfg.IdempotencyLock)
	}
}

// NewService wires store, limiter, provider and lock. dispatcher may be nil.
func NewService(ctx context.Context, cfg config.Config, gdb *gorm.DB, rds *redisstore.Store, dispatcher weirdling.Dispatcher, log logrus.FieldLogger) (*weirdling.Service, *weirdling.Repo, error) {
	provider, modelVersion, err := NewProvider(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	limiter, err := NewLimiter(cfg, rds, log)
	if err != nil {
		return nil, nil, err
	}
	locker, err := NewLocker(cfg, rds)
	if err != nil {
		return nil, nil, err
	}

	opts := weirdling.Options{
		PromptVersion: cfg.PromptVersion,
		ModelVersion:  modelVersion,
		Locker:        locker,
		Dispatcher:    dispatcher,
		Logger:        log,
	}

	repo := weirdling.NewRepo(gdb)
	return weirdling.NewService(repo, limiter, provider, opts), repo, nil
}
