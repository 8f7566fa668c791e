// Package cache implements the in-process tier of the fabric and the read
// path across all three tiers: memory, the optional redis value plane, and
// the persistent cache_metadata ledger owned by storage.
package cache

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yourorg/market-cache/internal/model"
	"github.com/yourorg/market-cache/internal/storage"
)

// Per-class TTL defaults. Callers may override per call.
const (
	TTLOHLCV       = 15 * time.Minute
	TTLIndicator   = 60 * time.Minute
	TTLFundamental = 6 * time.Hour
	TTLFx          = 60 * time.Minute
	TTLAnalysis    = 60 * time.Minute
	TTLUnknown     = 5 * time.Minute
)

// DefaultTTL returns the TTL for a data type.
func DefaultTTL(dt model.DataType) time.Duration {
	switch dt {
	case model.DataTypeOHLCV:
		return TTLOHLCV
	case model.DataTypeIndicator:
		return TTLIndicator
	case model.DataTypeFundamental:
		return TTLFundamental
	case model.DataTypeFx:
		return TTLFx
	case model.DataTypeAnalysis:
		return TTLAnalysis
	default:
		return TTLUnknown
	}
}

type entry struct {
	value        interface{}
	dataType     model.DataType
	expiresAt    time.Time
	lastAccessed time.Time
}

// Stats is an immutable snapshot of the manager's counters.
type Stats struct {
	Hits           int64 `json:"hits"`
	MemoryHits     int64 `json:"memory_hits"`
	RedisHits      int64 `json:"redis_hits"`
	PersistentHits int64 `json:"persistent_hits"`
	Misses         int64 `json:"misses"`
	Evictions      int64 `json:"evictions"`
	Sets           int64 `json:"sets"`
	Entries        int   `json:"entries"`
}

// HitRate returns hits / (hits + misses), or 0 with no traffic.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Manager coordinates the tiers. It is safe for concurrent use; its shared
// mutable state is the entry map, the single-flight group and the stats
// counters, each behind its own lock.
type Manager struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	maxEntries int

	store  storage.Backend
	remote *Redis
	flight singleflight.Group
	logger *zap.Logger

	statsMu sync.Mutex
	stats   Stats
}

// NewManager creates a cache manager over the given persistent backend.
// remote may be nil. maxEntries caps the in-process tier; zero means
// unbounded.
func NewManager(store storage.Backend, remote *Redis, maxEntries int, logger *zap.Logger) *Manager {
	return &Manager{
		entries:    make(map[string]*entry),
		maxEntries: maxEntries,
		store:      store,
		remote:     remote,
		logger:     logger,
	}
}

// Get walks the tiers for key.
//
// The returned value is non-nil only for the tiers that carry a value
// plane: the typed value from memory, or raw JSON bytes from redis. A hit
// on the persistent ledger returns (nil, true, nil) — the ledger is
// authoritative for freshness and callers reconstruct the value from the
// entity tables.
func (m *Manager) Get(ctx context.Context, key string) (interface{}, bool, error) {
	now := time.Now()

	m.mu.Lock()
	if e, ok := m.entries[key]; ok {
		if now.Before(e.expiresAt) {
			e.lastAccessed = now
			m.mu.Unlock()
			m.count(func(s *Stats) { s.Hits++; s.MemoryHits++ })
			return e.value, true, nil
		}
		delete(m.entries, key)
		m.count(func(s *Stats) { s.Evictions++ })
	}
	m.mu.Unlock()

	if m.remote != nil {
		if data, ttl, ok := m.remote.Get(ctx, key); ok {
			if ttl > 0 {
				m.storeLocal(key, json.RawMessage(data), model.DataTypeUnknown, ttl, now)
			}
			m.count(func(s *Stats) { s.Hits++; s.RedisHits++ })
			return json.RawMessage(data), true, nil
		}
	}

	valid, err := m.store.IsCacheValid(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if valid {
		m.count(func(s *Stats) { s.Hits++; s.PersistentHits++ })
		return nil, true, nil
	}

	m.count(func(s *Stats) { s.Misses++ })
	return nil, false, nil
}

// Set writes the value through the tiers: in-process entry, redis value
// plane (best effort), and the persistent ledger. ttl <= 0 selects the
// data type's default.
func (m *Manager) Set(ctx context.Context, key string, value interface{}, ttl time.Duration, dataType model.DataType) error {
	if ttl <= 0 {
		ttl = DefaultTTL(dataType)
	}
	now := time.Now()

	m.storeLocal(key, value, dataType, ttl, now)
	m.count(func(s *Stats) { s.Sets++ })

	if m.remote != nil {
		if data, err := marshalValue(value); err == nil {
			if err := m.remote.Set(ctx, key, data, ttl); err != nil {
				m.logger.Warn("Redis set failed", zap.Error(err), zap.String("key", key))
			}
		}
	}

	return m.store.TouchCache(ctx, key, dataType, ttl)
}

func (m *Manager) storeLocal(key string, value interface{}, dataType model.DataType, ttl time.Duration, now time.Time) {
	m.mu.Lock()
	m.entries[key] = &entry{
		value:        value,
		dataType:     dataType,
		expiresAt:    now.Add(ttl),
		lastAccessed: now,
	}
	evicted := m.enforceLocked(m.maxEntries)
	m.mu.Unlock()
	if evicted > 0 {
		m.count(func(s *Stats) { s.Evictions += int64(evicted) })
	}
}

func marshalValue(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	default:
		return json.Marshal(value)
	}
}

// Delete removes the key from every tier.
func (m *Manager) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()

	if m.remote != nil {
		if err := m.remote.Delete(ctx, key); err != nil {
			m.logger.Warn("Redis delete failed", zap.Error(err), zap.String("key", key))
		}
	}
	return m.store.DeleteCache(ctx, key)
}

// Clear empties the in-process tier and truncates the metadata ledger.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.entries = make(map[string]*entry)
	m.mu.Unlock()

	if m.remote != nil {
		if err := m.remote.Clear(ctx); err != nil {
			m.logger.Warn("Redis clear failed", zap.Error(err))
		}
	}
	return m.store.ClearCache(ctx)
}

// Stats returns a snapshot of the counters.
func (m *Manager) Stats() Stats {
	m.statsMu.Lock()
	snap := m.stats
	m.statsMu.Unlock()

	m.mu.RLock()
	snap.Entries = len(m.entries)
	m.mu.RUnlock()
	return snap
}

// EnforceMaxSize evicts least-recently-used entries down to n.
func (m *Manager) EnforceMaxSize(n int) {
	m.mu.Lock()
	evicted := m.enforceLocked(n)
	m.mu.Unlock()
	if evicted > 0 {
		m.count(func(s *Stats) { s.Evictions += int64(evicted) })
	}
}

// enforceLocked evicts down to n entries by ascending lastAccessed.
// Caller holds mu. n <= 0 means unbounded.
func (m *Manager) enforceLocked(n int) int {
	if n <= 0 || len(m.entries) <= n {
		return 0
	}

	type victim struct {
		key      string
		accessed time.Time
	}
	victims := make([]victim, 0, len(m.entries))
	for k, e := range m.entries {
		victims = append(victims, victim{k, e.lastAccessed})
	}
	sort.Slice(victims, func(i, j int) bool {
		return victims[i].accessed.Before(victims[j].accessed)
	})

	excess := len(m.entries) - n
	for i := 0; i < excess; i++ {
		delete(m.entries, victims[i].key)
	}
	return excess
}

// SweepExpired removes every expired in-process entry and returns the
// count. Called by the background maintenance loop.
func (m *Manager) SweepExpired() int {
	now := time.Now()
	m.mu.Lock()
	removed := 0
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
			removed++
		}
	}
	m.mu.Unlock()
	if removed > 0 {
		m.count(func(s *Stats) { s.Evictions += int64(removed) })
	}
	return removed
}

// Do runs fn under single-flight for key: with concurrent callers, exactly
// one executes fn and every caller receives its value or its error.
func (m *Manager) Do(key string, fn func() (interface{}, error)) (interface{}, error) {
	v, err, _ := m.flight.Do(key, fn)
	return v, err
}

func (m *Manager) count(f func(*Stats)) {
	m.statsMu.Lock()
	f(&m.stats)
	m.statsMu.Unlock()
}
