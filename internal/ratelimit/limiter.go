// Package ratelimit implements per-identity fixed-window admission control.
//
// The counting itself lives behind Store so a single process can keep it in
// memory while a multi-instance deployment shares it through Redis.
package ratelimit

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultLimit  = 10
	DefaultWindow = 60 * time.Second
)

// Window is the outcome of one atomic Take on a store.
type Window struct {
	Allowed bool
	Count   int
	ResetAt time.Time
}

// Store holds per-key window counters. Take must be atomic per key: start a
// fresh window (count 1) when none exists or it expired, otherwise increment
// while count < limit, otherwise report the current window without changing it.
type Store interface {
	Take(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Window, error)
}

type Decision struct {
	Allowed           bool
	RetryAfterSeconds int
}

type Limiter struct {
	store  Store
	limit  int
	window time.Duration
	now    func() time.Time
	log    logrus.FieldLogger
}

type Option func(*Limiter)

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(l *Limiter) { l.log = log }
}

func New(store Store, limit int, window time.Duration, opts ...Option) *Limiter {
	if store == nil {
		store = NewMemoryStore()
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	l := &Limiter{
		store:  store,
		limit:  limit,
		window: window,
		now:    time.Now,
		log:    logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Check admits or denies one request for identity. It never fails: a broken
// store admits the request and logs the problem.
func (l *Limiter) Check(ctx context.Context, identity string) Decision {
	now := l.now()
	w, err := l.store.Take(ctx, "weirdling:"+identity, l.limit, l.window, now)
	if err != nil {
		l.log.WithError(err).WithField("identity", identity).Warn("rate limit store unavailable, admitting request")
		return Decision{Allowed: true}
	}
	if w.Allowed {
		return Decision{Allowed: true}
	}
	return Decision{Allowed: false, RetryAfterSeconds: retryAfter(w.ResetAt, now)}
}

func retryAfter(resetAt, now time.Time) int {
	ms := resetAt.Sub(now).Milliseconds()
	secs := int(math.Ceil(float64(ms) / 1000))
	if secs < 1 {
		secs = 1
	}
	return secs
}
