package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value    []byte
	storedAt time.Time
	element  *list.Element
}

// invalidation records the generation at which a key was last dropped.
type invalidation struct {
	generation uint64
	at         time.Time
}

// Memory is a TTL and size bounded in-process cache. A background goroutine
// sweeps expired entries until Close is called.
//
// Generations come from one counter shared by all keys. Each key remembers
// the generation of its last invalidation until the sweeper prunes it; floor
// is the highest pruned generation, and a Fill older than floor is refused.
type Memory struct {
	mu          sync.Mutex
	entries     map[Key]*memoryEntry
	order       *list.List
	generation  uint64
	invalidated map[Key]invalidation
	floor       uint64
	ttl         time.Duration
	maxSize     int
	now         func() time.Time
	done        chan struct{}
	closed      bool
}

// MemoryOption configures a Memory cache.
type MemoryOption func(*Memory)

// WithClock overrides the clock used for expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// WithMaxEntries bounds the number of entries; the oldest is evicted first.
func WithMaxEntries(n int) MemoryOption {
	return func(m *Memory) { m.maxSize = n }
}

// NewMemory returns a cache whose entries live for ttl.
func NewMemory(ttl time.Duration, opts ...MemoryOption) *Memory {
	m := &Memory{
		entries:     make(map[Key]*memoryEntry),
		order:       list.New(),
		invalidated: make(map[Key]invalidation),
		ttl:         ttl,
		maxSize:     10000,
		now:         time.Now,
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	go m.sweep()
	return m
}

func (m *Memory) Get(_ context.Context, key Key) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if m.expiredLocked(e, m.now()) {
		m.removeLocked(key, e)
		return nil, false, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

func (m *Memory) Generation(_ context.Context, _ Key) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation, nil
}

func (m *Memory) Fill(_ context.Context, key Key, value []byte, generation uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if generation < m.floor {
		return false, nil
	}
	if inv, ok := m.invalidated[key]; ok && inv.generation > generation {
		return false, nil
	}
	m.setLocked(key, value)
	return true, nil
}

func (m *Memory) Set(_ context.Context, key Key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(key, value)
	return nil
}

func (m *Memory) setLocked(key Key, value []byte) {
	stored := make([]byte, len(value))
	copy(stored, value)

	if e, ok := m.entries[key]; ok {
		e.value = stored
		e.storedAt = m.now()
		m.order.MoveToBack(e.element)
		return
	}
	if m.maxSize > 0 && len(m.entries) >= m.maxSize {
		if front := m.order.Front(); front != nil {
			oldest := front.Value.(Key)
			m.removeLocked(oldest, m.entries[oldest])
		}
	}
	m.entries[key] = &memoryEntry{
		value:    stored,
		storedAt: m.now(),
		element:  m.order.PushBack(key),
	}
}

func (m *Memory) Invalidate(_ context.Context, keys ...Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(keys) == 0 {
		return nil
	}
	m.generation++
	now := m.now()
	for _, key := range keys {
		if e, ok := m.entries[key]; ok {
			m.removeLocked(key, e)
		}
		m.invalidated[key] = invalidation{generation: m.generation, at: now}
	}
	return nil
}

// Len reports the number of live and not yet swept entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Close stops the sweeper. It is safe to call multiple times.
func (m *Memory) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		close(m.done)
		m.closed = true
	}
}

func (m *Memory) expiredLocked(e *memoryEntry, now time.Time) bool {
	return m.ttl > 0 && now.Sub(e.storedAt) >= m.ttl
}

func (m *Memory) removeLocked(key Key, e *memoryEntry) {
	m.order.Remove(e.element)
	delete(m.entries, key)
}

func (m *Memory) sweep() {
	interval := m.ttl
	if interval <= 0 || interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweepOnce()
		case <-m.done:
			return
		}
	}
}

func (m *Memory) sweepOnce() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, e := range m.entries {
		if m.expiredLocked(e, now) {
			m.removeLocked(key, e)
		}
	}
	horizon := m.generationHorizon()
	for key, inv := range m.invalidated {
		if now.Sub(inv.at) >= horizon {
			m.floor = max(m.floor, inv.generation)
			delete(m.invalidated, key)
		}
	}
}

// generationHorizon is how long an invalidation is remembered per key. A
// read-through load that takes longer than this loses its Fill.
func (m *Memory) generationHorizon() time.Duration {
	return max(m.ttl, time.Minute)
}

var _ Cache = (*Memory)(nil)
