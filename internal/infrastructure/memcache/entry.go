package memcache

import "time"

// entry is one cached value. neverExpires replaces a nil expiry: expiresAt is
// only meaningful when neverExpires is false.
type entry struct {
	key            string
	value          any
	expiresAt      time.Time
	neverExpires   bool
	lastAccessedAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	if e.neverExpires {
		return false
	}
	return !now.Before(e.expiresAt)
}
