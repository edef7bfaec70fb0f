// Package cache provides the process-wide response cache of the weather pipeline.
//
// Entries are never evicted by capacity. They are dropped only by SweepExpired
// or overwritten by Put; callers sweep opportunistically before lookups.
package cache

import (
	"encoding/json"
	"sync"
	"time"
)

// Entry is a cached upstream payload.
type Entry struct {
	Payload   json.RawMessage
	CreatedAt time.Time
	TTL       time.Duration
}

// IsExpired reports whether the entry is older than its TTL at now.
// An entry exactly TTL old is still live.
func (e *Entry) IsExpired(now time.Time) bool {
	return now.Sub(e.CreatedAt) > e.TTL
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store maps cache keys to entries. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	now     func() time.Time
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the entry stored under key without mutating the store.
// The entry may be expired; checking is up to the caller.
func (s *Store) Get(key string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	return e, ok
}

// Lookup returns the payload stored under key if the entry is still live.
func (s *Store) Lookup(key string) (json.RawMessage, bool) {
	e, ok := s.Get(key)
	if !ok || e.IsExpired(s.now()) {
		return nil, false
	}
	return e.Payload, true
}

// Put inserts or overwrites the entry for key, stamped with the current time.
func (s *Store) Put(key string, payload json.RawMessage, ttl time.Duration) {
	e := &Entry{
		Payload:   payload,
		CreatedAt: s.now(),
		TTL:       ttl,
	}

	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()
}

// SweepExpired removes every expired entry and returns how many were removed.
func (s *Store) SweepExpired() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.entries {
		if e.IsExpired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, expired or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Clear removes all entries.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*Entry)
}
