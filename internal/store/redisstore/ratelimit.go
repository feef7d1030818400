package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/suPer8Hu/weirdling/internal/ratelimit"
)

// KEYS[1] counter, ARGV[1] limit, ARGV[2] window in ms.
// Returns {allowed, count, ttl_ms}.
var takeScript = redis.NewScript(`
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
local ttl = tonumber(redis.call('PTTL', KEYS[1]))
if count == 0 or ttl <= 0 then
	redis.call('SET', KEYS[1], 1, 'PX', ARGV[2])
	return {1, 1, tonumber(ARGV[2])}
end
if count < tonumber(ARGV[1]) then
	count = redis.call('INCR', KEYS[1])
	return {1, count, ttl}
end
return {0, count, ttl}
`)

// RateLimitStore keeps fixed-window counters in Redis so every API instance
// shares one quota per identity.
type RateLimitStore struct {
	client redis.Scripter
	prefix string
}

func NewRateLimitStore(s *Store) *RateLimitStore {
	return &RateLimitStore{client: s.Client, prefix: "ratelimit:"}
}

func (r *RateLimitStore) Take(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (ratelimit.Window, error) {
	res, err := takeScript.Run(ctx, r.client, []string{r.prefix + key}, limit, window.Milliseconds()).Int64Slice()
	if err != nil {
		return ratelimit.Window{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 3 {
		return ratelimit.Window{}, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}
	return ratelimit.Window{
		Allowed: res[0] == 1,
		Count:   int(res[1]),
		ResetAt: now.Add(time.Duration(res[2]) * time.Millisecond),
	}, nil
}
