package undo

import (
	"sync"
	"time"
)

// DefaultWindow is how long an accepted edit stays reversible.
const DefaultWindow = 10 * time.Second

// Entry snapshots the text a suggestion replaced, so the edit can be
// reversed inside the undo window.
type Entry struct {
	Key          string
	OriginalText string
	RangeStart   int
	RangeEnd     int
	ExpiresAt    time.Time
}

// Store is a keyed, time-expiring store of original-value snapshots.
//
// Expiry is lazy: entries are checked and purged on Get rather than swept by
// a timer. The store is small and short-lived, so a background sweeper would
// be pure overhead. At most one live entry exists per key.
type Store struct {
	mu      sync.Mutex
	entries map[string]Entry
	now     func() time.Time
}

// NewStore constructs a Store. now may be nil, in which case time.Now is used.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		entries: make(map[string]Entry),
		now:     now,
	}
}

// Put stores a snapshot under key, replacing any existing entry, expiring
// after ttl.
func (s *Store) Put(key, originalText string, rangeStart, rangeEnd int, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultWindow
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = Entry{
		Key:          key,
		OriginalText: originalText,
		RangeStart:   rangeStart,
		RangeEnd:     rangeEnd,
		ExpiresAt:    s.now().Add(ttl),
	}
}

// Get returns the live entry for key. A stale entry is treated as absent and
// removed.
func (s *Store) Get(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return Entry{}, false
	}
	if s.now().After(entry.ExpiresAt) {
		delete(s.entries, key)
		return Entry{}, false
	}
	return entry, true
}

// Clear removes the entry for key, if any.
func (s *Store) Clear(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Len returns the number of stored entries, including any not yet lazily
// purged.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
