package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// LimiterMode controls how limiters are shared between endpoints.
type LimiterMode string

const (
	// LimiterShared uses one limiter for every endpoint of every chain.
	LimiterShared LimiterMode = "shared"
	// LimiterPrivate gives each endpoint its own limiter.
	LimiterPrivate LimiterMode = "private"
	// LimiterNone disables rate limiting.
	LimiterNone LimiterMode = "none"
)

// ParseLimiterMode validates a mode name. An empty name means LimiterShared.
func ParseLimiterMode(s string) (LimiterMode, error) {
	switch LimiterMode(s) {
	case LimiterShared, LimiterPrivate, LimiterNone:
		return LimiterMode(s), nil
	case "":
		return LimiterShared, nil
	default:
		return "", fmt.Errorf("unknown limiter mode %q (want shared, private or none)", s)
	}
}

// ErrInvalidLimit is returned for non-positive limiter settings.
var ErrInvalidLimit = errors.New("requests per interval and interval must be positive")

// Limiter is a token bucket that refills to full capacity once a whole
// interval has elapsed since the last refill.
type Limiter struct {
	capacity int
	interval time.Duration
	now      func() time.Time
	metrics  *Metrics

	mu         sync.Mutex
	tokens     int
	lastRefill time.Time
}

// NewLimiter returns a full bucket allowing requestsPerInterval calls per interval.
func NewLimiter(requestsPerInterval int, interval time.Duration) (*Limiter, error) {
	if requestsPerInterval <= 0 || interval <= 0 {
		return nil, ErrInvalidLimit
	}
	l := &Limiter{
		capacity: requestsPerInterval,
		interval: interval,
		now:      time.Now,
	}
	l.tokens = l.capacity
	l.lastRefill = l.now()
	return l, nil
}

// Consume blocks until a token is available and takes it. It only fails when
// ctx is done; with a background context it never fails.
func (l *Limiter) Consume(ctx context.Context) error {
	start := time.Now()
	for {
		wait, ok := l.take()
		if ok {
			l.metrics.observeWait(time.Since(start))
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Available returns the tokens left in the current window.
func (l *Limiter) Available() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill(l.now())
	return l.tokens
}

// take grabs a token, or reports how long to wait before the next attempt.
func (l *Limiter) take() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.refill(now)
	if l.tokens > 0 {
		l.tokens--
		return 0, true
	}
	return max(l.interval-now.Sub(l.lastRefill), 0), false
}

func (l *Limiter) refill(now time.Time) {
	if now.Sub(l.lastRefill) >= l.interval {
		l.tokens = l.capacity
		l.lastRefill = now
	}
}

// Instrument records limiter waits in m. Call before the limiter is shared.
func (l *Limiter) Instrument(m *Metrics) *Limiter {
	l.metrics = m
	return l
}
