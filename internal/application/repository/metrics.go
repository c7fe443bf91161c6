package repository

import "github.com/prometheus/client_golang/prometheus"

var tierResults = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "repository_tier_results_total",
		Help: "Repository lookups by the tier that answered, or miss",
	},
	[]string{"repository", "tier"},
)

func init() {
	prometheus.MustRegister(tierResults)
}
