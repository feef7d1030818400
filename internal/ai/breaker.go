package ai

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
)

type breakerProvider struct {
	next Provider
	cb   *gobreaker.CircuitBreaker
}

// WithBreaker trips after a run of provider failures and fails fast until the
// provider has had time to recover. An open breaker is just another provider error.
func WithBreaker(name string, next Provider) Provider {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     20 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
	})
	return &breakerProvider{next: next, cb: cb}
}

func (b *breakerProvider) Generate(ctx context.Context, in Input) (map[string]any, error) {
	out, err := b.cb.Execute(func() (any, error) {
		return b.next.Generate(ctx, in)
	})
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}
