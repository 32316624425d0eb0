package application

import (
	"sync"
	"time"
)

// PendingAuthTTL is how long a generated auth code stays redeemable.
const PendingAuthTTL = 30 * time.Minute

// PendingAuth is one outstanding auth code, keyed by normalized sender.
type PendingAuth struct {
	Code      string
	UpdatedAt time.Time
}

type IPendingAuthStore interface {
	Get(key string, now time.Time) (PendingAuth, bool)
	Set(key, code string, now time.Time)
	Clear(key string)
}

// InMemoryPendingAuthStore keeps pending codes per process. Codes expire
// lazily on read.
type InMemoryPendingAuthStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]PendingAuth
}

var _ IPendingAuthStore = (*InMemoryPendingAuthStore)(nil)

func NewInMemoryPendingAuthStore(ttl time.Duration) *InMemoryPendingAuthStore {
	if ttl <= 0 {
		ttl = PendingAuthTTL
	}
	return &InMemoryPendingAuthStore{
		ttl:     ttl,
		entries: make(map[string]PendingAuth),
	}
}

func (s *InMemoryPendingAuthStore) Get(key string, now time.Time) (PendingAuth, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return PendingAuth{}, false
	}
	if now.Sub(entry.UpdatedAt) > s.ttl {
		delete(s.entries, key)
		return PendingAuth{}, false
	}
	return entry, true
}

func (s *InMemoryPendingAuthStore) Set(key, code string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = PendingAuth{Code: code, UpdatedAt: now}
}

func (s *InMemoryPendingAuthStore) Clear(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}
