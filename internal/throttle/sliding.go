// Package throttle limits login attempts per client address.
//
// SlidingWindow keeps its counters in process memory: it resets on restart and
// is not shared between replicas. Stale timestamps are dropped when their key
// is touched, and keys idle for a full window are swept at most once per
// window, so memory is bounded by the keys active in the last two windows.
package throttle

import (
	"sync"
	"time"
)

// Limiter decides whether one more attempt for key is allowed right now and
// records it when it is.
type Limiter interface {
	Allow(key string) bool
}

type SlidingWindow struct {
	window time.Duration
	limit  int
	now    func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	mu   sync.Mutex
	hits []time.Time
	// dead is set once the bucket has been removed from the map.
	dead bool
}

type Option func(*SlidingWindow)

func WithClock(now func() time.Time) Option {
	return func(s *SlidingWindow) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSlidingWindow allows at most limit attempts per key within any window.
// A non-positive limit or window disables throttling.
func NewSlidingWindow(window time.Duration, limit int, opts ...Option) *SlidingWindow {
	s := &SlidingWindow{
		window:  window,
		limit:   limit,
		now:     func() time.Time { return time.Now().UTC() },
		buckets: make(map[string]*bucket),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SlidingWindow) Allow(key string) bool {
	if s.limit <= 0 || s.window <= 0 {
		return true
	}

	for {
		b := s.bucketFor(key)
		b.mu.Lock()
		if b.dead {
			b.mu.Unlock()
			continue
		}

		now := s.now()
		b.evict(now, s.window)
		allowed := len(b.hits) < s.limit
		if allowed {
			b.hits = append(b.hits, now)
		}
		b.mu.Unlock()
		return allowed
	}
}

func (b *bucket) evict(now time.Time, window time.Duration) {
	kept := b.hits[:0]
	for _, t := range b.hits {
		if now.Sub(t) < window {
			kept = append(kept, t)
		}
	}
	b.hits = kept
}

func (s *SlidingWindow) bucketFor(key string) *bucket {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now := s.now(); now.Sub(s.lastSweep) >= s.window {
		s.sweep(now)
		s.lastSweep = now
	}

	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{}
		s.buckets[key] = b
	}
	return b
}

// sweep drops buckets with no hits inside the window. Callers hold s.mu.
func (s *SlidingWindow) sweep(now time.Time) {
	for key, b := range s.buckets {
		b.mu.Lock()
		b.evict(now, s.window)
		if len(b.hits) == 0 {
			b.dead = true
			delete(s.buckets, key)
		}
		b.mu.Unlock()
	}
}
