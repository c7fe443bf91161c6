package memcache

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// Janitor sweeps expired entries on a fixed interval, independent of lazy expiry.
type Janitor struct {
	cache    *Cache
	interval time.Duration
	clock    clockwork.Clock
	logger   *logrus.Logger
}

func NewJanitor(cache *Cache, interval time.Duration, clock clockwork.Clock, logger *logrus.Logger) *Janitor {
	if interval <= 0 {
		interval = time.Minute
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Janitor{cache: cache, interval: interval, clock: clock, logger: logger}
}

// Run blocks until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := j.clock.NewTicker(j.interval)
	defer ticker.Stop()

	if j.logger != nil {
		j.logger.WithField("interval", j.interval.String()).Debug("cache janitor started")
	}
	for {
		select {
		case <-ctx.Done():
			if j.logger != nil {
				j.logger.Debug("cache janitor stopped")
			}
			return
		case <-ticker.Chan():
			j.cache.RemoveExpiredEntries()
		}
	}
}
