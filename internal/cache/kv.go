package cache

import "time"

// KV defines the minimal key-value cache contract with TTL semantics.
// Operations never fail; a missing or expired key is reported through the
// boolean result of Get. Implementations must be safe for concurrent use
// by multiple goroutines.
type KV interface {
	Get(key string) (Entry, bool)
	Put(key string, payload []byte, ttl time.Duration)
	Remove(key string)
}

// Entry is a cached payload and the instant it stops being served.
// A zero ExpiresAt means the entry never expires.
type Entry struct {
	Payload   []byte
	ExpiresAt time.Time
}

func (e Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}
