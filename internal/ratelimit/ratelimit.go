package ratelimit

import (
	"sync"
	"time"
)

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration // non-zero only when denied
}

// SlidingWindow limits each client to a maximum number of requests per
// rolling time window. Optionally, a client that exceeds the limit is
// blocked outright for a fixed duration. Safe for concurrent use.
type SlidingWindow struct {
	maxRequests   int
	window        time.Duration
	blockDuration time.Duration

	mu       sync.Mutex
	requests map[string][]time.Time
	blocked  map[string]time.Time
	now      func() time.Time
}

// NewSlidingWindow creates a limiter allowing maxRequests per window.
// blockDuration of zero means exceeding the limit only denies the
// current request without blocking subsequent ones.
func NewSlidingWindow(maxRequests int, window, blockDuration time.Duration) *SlidingWindow {
	return &SlidingWindow{
		maxRequests:   maxRequests,
		window:        window,
		blockDuration: blockDuration,
		requests:      make(map[string][]time.Time),
		blocked:       make(map[string]time.Time),
		now:           time.Now,
	}
}

// Allow checks and records one request for clientID.
func (l *SlidingWindow) Allow(clientID string) Decision {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if until, ok := l.blocked[clientID]; ok {
		if now.Before(until) {
			return Decision{Allowed: false, RetryAfter: until.Sub(now)}
		}
		delete(l.blocked, clientID)
	}

	history := l.trim(clientID, now)

	if len(history) < l.maxRequests {
		l.requests[clientID] = append(history, now)
		return Decision{Allowed: true, Remaining: l.maxRequests - len(history) - 1}
	}

	retryAfter := history[0].Add(l.window).Sub(now)
	if l.blockDuration > 0 {
		l.blocked[clientID] = now.Add(l.blockDuration)
		retryAfter = l.blockDuration
	}
	return Decision{Allowed: false, RetryAfter: retryAfter}
}

// Reset clears the state for one client, or for all clients when
// clientID is empty. Called when a client session ends so limiter
// state does not accumulate across reconnects.
func (l *SlidingWindow) Reset(clientID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if clientID == "" {
		l.requests = make(map[string][]time.Time)
		l.blocked = make(map[string]time.Time)
		return
	}
	delete(l.requests, clientID)
	delete(l.blocked, clientID)
}

// trim drops timestamps that fell out of the window. Caller holds mu.
func (l *SlidingWindow) trim(clientID string, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	history := l.requests[clientID]
	i := 0
	for i < len(history) && !history[i].After(cutoff) {
		i++
	}
	if i > 0 {
		history = append([]time.Time(nil), history[i:]...)
		if len(history) == 0 {
			delete(l.requests, clientID)
		} else {
			l.requests[clientID] = history
		}
	}
	return history
}
