package gateway

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// ClientRateLimiter implements sliding window rate limiting per client
type ClientRateLimiter struct {
	mu                 sync.Mutex
	requestsPerMinute  int
	maxConcurrent      int
	requests           []time.Time
	concurrentRequests int
	lastSeen           time.Time
}

// NewClientRateLimiterWithLimits creates a rate limiter with custom limits.
// A zero limit disables that check.
func NewClientRateLimiterWithLimits(requestsPerMinute, maxConcurrent int) *ClientRateLimiter {
	return &ClientRateLimiter{
		requestsPerMinute: requestsPerMinute,
		maxConcurrent:     maxConcurrent,
		requests:          make([]time.Time, 0),
		lastSeen:          time.Now(),
	}
}

// Acquire checks both limits and, when allowed, records the request start.
// The caller must call Release once the request finishes.
func (r *ClientRateLimiter) Acquire() (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.lastSeen = now

	if r.maxConcurrent > 0 && r.concurrentRequests >= r.maxConcurrent {
		return false, "too many concurrent requests"
	}

	r.prune(now)
	if r.requestsPerMinute > 0 && len(r.requests) >= r.requestsPerMinute {
		return false, "rate limit exceeded"
	}

	r.requests = append(r.requests, now)
	r.concurrentRequests++
	return true, ""
}

// Release records the end of a request
func (r *ClientRateLimiter) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.concurrentRequests > 0 {
		r.concurrentRequests--
	}
}

// GetStats returns current rate limiter statistics
func (r *ClientRateLimiter) GetStats() (requestCount, concurrentCount int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prune(time.Now())
	return len(r.requests), r.concurrentRequests
}

func (r *ClientRateLimiter) prune(now time.Time) {
	cutoff := now.Add(-time.Minute)
	valid := r.requests[:0]
	for _, t := range r.requests {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.requests = valid
}

func (r *ClientRateLimiter) idle(now time.Time, after time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.concurrentRequests == 0 && now.Sub(r.lastSeen) > after
}

// RateLimiters hands out one ClientRateLimiter per client address
type RateLimiters struct {
	mu                sync.Mutex
	limiters          map[string]*ClientRateLimiter
	requestsPerMinute int
	maxConcurrent     int
}

// NewRateLimiters creates a keyed limiter set
func NewRateLimiters(requestsPerMinute, maxConcurrent int) *RateLimiters {
	return &RateLimiters{
		limiters:          make(map[string]*ClientRateLimiter),
		requestsPerMinute: requestsPerMinute,
		maxConcurrent:     maxConcurrent,
	}
}

// For returns the limiter for key, creating it on first use
func (l *RateLimiters) For(key string) *ClientRateLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.limiters[key]; ok {
		return lim
	}
	lim := NewClientRateLimiterWithLimits(l.requestsPerMinute, l.maxConcurrent)
	l.limiters[key] = lim
	return lim
}

// Prune drops limiters idle for longer than after and returns how many were dropped
func (l *RateLimiters) Prune(after time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	dropped := 0
	for key, lim := range l.limiters {
		if lim.idle(now, after) {
			delete(l.limiters, key)
			dropped++
		}
	}
	return dropped
}

// clientKey is the remote host without port
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
