package cache

import (
	"context"
	"sync"
	"time"
)

const (
	defaultMaxEntries    = 10000
	defaultSweepInterval = time.Minute
)

// MemoryProvider is an in-process Provider with per-key expiry, used when no Redis address
// is configured. Expired entries are swept on writes and the map never grows past maxEntries.
type MemoryProvider struct {
	mu            sync.Mutex
	data          map[string]entry
	now           func() time.Time
	maxEntries    int
	sweepInterval time.Duration
	nextSweep     time.Time
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryProvider creates an empty in-process cache.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		data:          make(map[string]entry),
		now:           time.Now,
		maxEntries:    defaultMaxEntries,
		sweepInterval: defaultSweepInterval,
	}
}

// Get returns a copy of the value, or ErrCacheMiss when absent or expired.
func (m *MemoryProvider) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.data, key)
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), e.value...), nil
}

// Set stores a copy of value; a non-positive ttl never expires.
func (m *MemoryProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if !now.Before(m.nextSweep) {
		m.sweepLocked(now)
	}
	if _, exists := m.data[key]; !exists && m.maxEntries > 0 && len(m.data) >= m.maxEntries {
		m.sweepLocked(now)
		if len(m.data) >= m.maxEntries {
			m.evictSoonestLocked()
		}
	}

	var expires time.Time
	if ttl > 0 {
		expires = now.Add(ttl)
	}
	m.data[key] = entry{value: append([]byte(nil), value...), expiresAt: expires}
	return nil
}

// Len reports the number of stored entries, expired or not.
func (m *MemoryProvider) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

func (m *MemoryProvider) sweepLocked(now time.Time) {
	for key, e := range m.data {
		if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
			delete(m.data, key)
		}
	}
	m.nextSweep = now.Add(m.sweepInterval)
}

// evictSoonestLocked drops the entry closest to expiry; entries without expiry go last.
func (m *MemoryProvider) evictSoonestLocked() {
	var victim string
	var soonest time.Time
	found := false
	for key, e := range m.data {
		if !found {
			victim, soonest, found = key, e.expiresAt, true
			continue
		}
		if e.expiresAt.IsZero() {
			continue
		}
		if soonest.IsZero() || e.expiresAt.Before(soonest) {
			victim, soonest = key, e.expiresAt
		}
	}
	if found {
		delete(m.data, victim)
	}
}

// Del removes an entry.
func (m *MemoryProvider) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Close drops all entries.
func (m *MemoryProvider) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]entry)
	return nil
}
