package ports

import "time"

// Cache defines the in-memory entry store consulted first by repositories.
// Implementations must be safe for concurrent use and must never block on I/O.
type Cache interface {
	// Set stores value for key. ttl <= 0 means the entry never expires.
	Set(key string, value any, ttl time.Duration)
	// Get returns the value for key. ok=false if absent or expired; expired entries are dropped.
	Get(key string) (value any, ok bool)
	// Lookup behaves like Get but returns an expired entry's value with expired=true
	// while dropping it, atomically.
	Lookup(key string) (value any, expired bool, ok bool)
	// Contains reports whether key holds a live entry without touching it.
	Contains(key string) bool
	// Remove deletes the key; absence is not an error.
	Remove(key string)
	// ClearByPrefix deletes every key starting with prefix.
	ClearByPrefix(prefix string)
	// ClearAll empties the cache.
	ClearAll()
	// RemoveExpiredEntries sweeps expired entries and returns how many were removed.
	RemoveExpiredEntries() int
}
