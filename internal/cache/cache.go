// Package cache provides a process-local TTL cache for ranked candidate
// pages, keyed by (viewer FID, page size).
package cache

import (
	"sync"
	"time"

	"github.com/whycore/basefriends/internal/metrics"
	"github.com/whycore/basefriends/internal/model"
)

// Key identifies one cached candidate page.
type Key struct {
	FID   int64
	Limit int
}

type entry struct {
	candidates []model.Candidate
	expiresAt  time.Time
}

// Store is a mutex-guarded TTL cache. Expired entries are removed on read;
// a full expired-entry sweep runs when the entry count exceeds the ceiling.
// There is no capacity-based eviction.
type Store struct {
	mu      sync.Mutex
	entries map[Key]entry
	ttl     time.Duration
	ceiling int
	nowFn   func() time.Time
}

// New creates a Store with the given TTL and sweep ceiling.
func New(ttl time.Duration, ceiling int) *Store {
	return &Store{
		entries: make(map[Key]entry),
		ttl:     ttl,
		ceiling: ceiling,
		nowFn:   time.Now,
	}
}

// Get returns the cached page for key, if present and fresh. An expired
// entry found at read time is deleted and reported as a miss.
func (s *Store) Get(k Key) ([]model.Candidate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[k]
	if !ok {
		metrics.CacheMisses.Inc()
		return nil, false
	}
	if s.nowFn().After(e.expiresAt) {
		delete(s.entries, k)
		metrics.CacheMisses.Inc()
		return nil, false
	}
	metrics.CacheHits.Inc()
	return e.candidates, true
}

// Set stores a page with expiry now+TTL. Last write wins; concurrent
// populations of the same key are idempotent within the TTL window.
func (s *Store) Set(k Key, candidates []model.Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[k] = entry{candidates: candidates, expiresAt: s.nowFn().Add(s.ttl)}
	if len(s.entries) > s.ceiling {
		s.sweepLocked()
	}
}

// Len reports the current entry count.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// sweepLocked deletes every expired entry. Caller holds the lock.
func (s *Store) sweepLocked() {
	now := s.nowFn()
	for k, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, k)
		}
	}
}
