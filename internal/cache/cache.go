package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process KV with fixed per-entry TTLs. There is no
// capacity bound and nothing is persisted.
// It is safe for concurrent use by multiple goroutines.
type Memory struct {
	mu         sync.RWMutex
	entries    map[string]Entry
	defaultTTL time.Duration
	legacy     bool
	now        func() time.Time
}

type Options struct {
	// DefaultTTL is used when Put is called with ttl <= 0.
	DefaultTTL time.Duration
	// LegacyTimers arms one timer per Put that deletes the key when it
	// fires. A later Put under the same key does not cancel the earlier
	// timer, so the stale timer removes the newer entry early.
	LegacyTimers bool
	// Now overrides the clock used for expiry checks. Defaults to time.Now.
	Now func() time.Time
}

var _ KV = (*Memory)(nil)

// NewMemory returns an empty store.
func NewMemory(opts Options) *Memory {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Memory{
		entries:    make(map[string]Entry),
		defaultTTL: opts.DefaultTTL,
		legacy:     opts.LegacyTimers,
		now:        now,
	}
}

// Get returns the entry for key if present and not expired. It never
// mutates the store; expired entries are reclaimed by Sweep.
func (m *Memory) Get(key string) (Entry, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return Entry{}, false
	}
	if !m.legacy && e.expired(m.now()) {
		return Entry{}, false
	}
	return e, true
}

// Put stores payload under key, replacing any previous entry.
// If ttl <= 0, DefaultTTL is used; if DefaultTTL <= 0, the entry never expires.
func (m *Memory) Put(key string, payload []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	e := Entry{Payload: payload}
	if ttl > 0 {
		e.ExpiresAt = m.now().Add(ttl)
	}

	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()

	if m.legacy && ttl > 0 {
		time.AfterFunc(ttl, func() { m.Remove(key) })
	}
}

// Remove deletes key. Missing keys are ignored.
func (m *Memory) Remove(key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

// Len reports the number of stored entries, expired ones included until
// they are swept.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Sweep deletes every entry expired at now and returns how many were removed.
func (m *Memory) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, k)
			n++
		}
	}
	return n
}

// Run sweeps expired entries every interval until ctx is done.
// onSweep, when non-nil, receives the number of entries removed by each pass.
func (m *Memory) Run(ctx context.Context, interval time.Duration, onSweep func(removed int)) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			n := m.Sweep(m.now())
			if onSweep != nil {
				onSweep(n)
			}
		}
	}
}
