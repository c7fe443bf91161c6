package memcache

import "github.com/prometheus/client_golang/prometheus"

var (
	cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "memcache_hits_total",
		Help: "Cache lookups that returned a live entry",
	})
	cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "memcache_misses_total",
		Help: "Cache lookups that found no live entry",
	})
	cacheEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memcache_evictions_total",
			Help: "Entries removed without an explicit delete",
		},
		[]string{"reason"},
	)
	cacheSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "memcache_entries",
		Help: "Entries currently held by the cache",
	})
)

func init() {
	prometheus.MustRegister(cacheHits)
	prometheus.MustRegister(cacheMisses)
	prometheus.MustRegister(cacheEvictions)
	prometheus.MustRegister(cacheSize)
}
