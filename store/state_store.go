package store

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"
)

// StateStore is the process-local keyed store of CacheEntry values, with
// LRU eviction and a TTL per entry.
//
// Writes replace the whole value for a key. There is no cross-request
// transaction: two concurrent writers for the same identity race and the
// last write wins. The mutex only keeps the map itself consistent.
type StateStore struct {
	capacity int
	ttl      time.Duration
	now      func() time.Time
	mu       sync.Mutex

	entries map[string]*stateEntry
	order   *list.List // front is most recently used
}

type stateEntry struct {
	key       string
	value     *CacheEntry
	expiresAt time.Time
	element   *list.Element
}

// StateStoreOption configures a StateStore.
type StateStoreOption func(*StateStore)

// WithStoreClock overrides the clock used for expiry.
func WithStoreClock(now func() time.Time) StateStoreOption {
	return func(s *StateStore) { s.now = now }
}

// NewStateStore creates a store holding at most capacity identities.
func NewStateStore(capacity int, ttl time.Duration, opts ...StateStoreOption) *StateStore {
	if capacity <= 0 {
		capacity = 1000
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	s := &StateStore{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		entries:  make(map[string]*stateEntry),
		order:    list.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns a copy of the entry for key.
func (s *StateStore) Get(key string) (*CacheEntry, bool) {
	if key == "" {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if s.now().After(e.expiresAt) {
		s.removeEntry(e)
		return nil, false
	}
	s.order.MoveToFront(e.element)
	return e.value.Clone(), true
}

// Put replaces the entry for key.
func (s *StateStore) Put(key string, entry *CacheEntry) {
	if key == "" || entry == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(key, entry.Clone())
}

// putLocked must be called with the lock held.
func (s *StateStore) putLocked(key string, value *CacheEntry) {
	now := s.now()
	value.UpdatedAt = now

	if e, ok := s.entries[key]; ok {
		e.value = value
		e.expiresAt = now.Add(s.ttl)
		s.order.MoveToFront(e.element)
		return
	}

	for len(s.entries) >= s.capacity {
		s.evictOldest()
	}

	e := &stateEntry{key: key, value: value, expiresAt: now.Add(s.ttl)}
	e.element = s.order.PushFront(e)
	s.entries[key] = e
}

// Delete drops the entry for key.
func (s *StateStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		s.removeEntry(e)
	}
}

// Len returns the number of entries, expired ones included.
func (s *StateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// CleanupExpired removes all expired entries and returns how many were removed.
func (s *StateStore) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []*stateEntry
	now := s.now()
	for _, e := range s.entries {
		if now.After(e.expiresAt) {
			expired = append(expired, e)
		}
	}
	for _, e := range expired {
		s.removeEntry(e)
	}
	return len(expired)
}

// RunJanitor removes expired entries every interval until ctx is done.
func (s *StateStore) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.CleanupExpired(); n > 0 {
				slog.Debug("state store cleanup", slog.Int("removed", n))
			}
		}
	}
}

// evictOldest must be called with the lock held.
func (s *StateStore) evictOldest() {
	oldest := s.order.Back()
	if oldest == nil {
		return
	}
	s.removeEntry(oldest.Value.(*stateEntry))
}

// removeEntry must be called with the lock held.
func (s *StateStore) removeEntry(e *stateEntry) {
	s.order.Remove(e.element)
	delete(s.entries, e.key)
}
