package api

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/interview-funnel/internal/domain"
	"github.com/ashureev/interview-funnel/internal/interview"
	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when a session submits faster than allowed.
var ErrRateLimited = errors.New("rate limited")

// RateLimiter throttles requests per key with a token bucket.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewRateLimiter allows perMinute requests per key with the given burst.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 20
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    burst,
	}
}

// Allow reports whether a request for key may proceed now.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	l, ok := r.limiters[key]
	if !ok {
		l = rate.NewLimiter(r.limit, r.burst)
		r.limiters[key] = l
	}
	r.mu.Unlock()
	return l.Allow()
}

// Forget drops the bucket for key. It is called when a session is evicted.
func (r *RateLimiter) Forget(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.limiters, key)
}

// limitedSubmitter is the submission path shared by typed and spoken input.
// Only a submission that would start an exchange spends a token; empty
// input, an ignored duplicate and a closed conversation go straight to the
// session, which rejects or ignores them.
type limitedSubmitter struct {
	session *interview.Session
	limiter *RateLimiter
}

func (l limitedSubmitter) Submit(ctx context.Context, content string) (*interview.ExchangeResult, error) {
	if l.limiter != nil && l.countsTowardLimit(content) && !l.limiter.Allow(l.session.ID()) {
		return nil, ErrRateLimited
	}
	return l.session.Submit(ctx, content)
}

func (l limitedSubmitter) countsTowardLimit(content string) bool {
	return strings.TrimSpace(content) != "" &&
		!l.session.InFlight() &&
		l.session.Phase() == domain.PhaseConversation
}
