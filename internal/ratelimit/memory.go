package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/smallbiznis/hightide/internal/clock"
)

// MemoryLimiter is a sliding-window log per key held in process memory. The
// map is bounded by maxKeys; when full, unseen keys are allowed untracked.
type MemoryLimiter struct {
	clock   clock.Clock
	limit   int
	window  time.Duration
	maxKeys int

	mu   sync.Mutex
	hits map[string][]time.Time

	stop chan struct{}
	done chan struct{}
}

func NewMemoryLimiter(clk clock.Clock, limit int, window time.Duration, maxKeys int) *MemoryLimiter {
	if maxKeys <= 0 {
		maxKeys = 100_000
	}
	return &MemoryLimiter{
		clock:   clk,
		limit:   limit,
		window:  window,
		maxKeys: maxKeys,
		hits:    make(map[string][]time.Time),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	if key == "" {
		return Decision{}, errors.New("rate limiter key is empty")
	}
	if l.limit <= 0 || l.window <= 0 {
		return Decision{}, errors.New("rate limiter limit and window must be positive")
	}

	now := l.clock.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	hits, tracked := l.hits[key]
	if !tracked && len(l.hits) >= l.maxKeys {
		l.sweepLocked(cutoff)
		if len(l.hits) >= l.maxKeys {
			return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit}, nil
		}
	}

	hits = trim(hits, cutoff)
	if len(hits) >= l.limit {
		l.hits[key] = hits
		return Decision{
			Allowed:    false,
			Limit:      l.limit,
			RetryAfter: hits[0].Add(l.window).Sub(now),
		}, nil
	}

	hits = append(hits, now)
	l.hits[key] = hits
	return Decision{
		Allowed:   true,
		Limit:     l.limit,
		Remaining: l.limit - len(hits),
	}, nil
}

// Sweep drops keys whose window has fully elapsed.
func (l *MemoryLimiter) Sweep() int {
	cutoff := l.clock.Now().Add(-l.window)
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sweepLocked(cutoff)
}

func (l *MemoryLimiter) sweepLocked(cutoff time.Time) int {
	removed := 0
	for key, hits := range l.hits {
		hits = trim(hits, cutoff)
		if len(hits) == 0 {
			delete(l.hits, key)
			removed++
			continue
		}
		l.hits[key] = hits
	}
	return removed
}

// Start runs Sweep every interval until Stop.
func (l *MemoryLimiter) Start(interval time.Duration) {
	if interval <= 0 || l.stop != nil {
		return
	}
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	go func() {
		defer close(l.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Sweep()
			case <-l.stop:
				return
			}
		}
	}()
}

func (l *MemoryLimiter) Stop() {
	if l.stop == nil {
		return
	}
	close(l.stop)
	<-l.done
	l.stop = nil
}

func (l *MemoryLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hits)
}

func trim(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return hits
	}
	return append(hits[:0], hits[i:]...)
}
