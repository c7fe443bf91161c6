package ports

import "context"

// HealthChecker probes one dependency of the client (local store, backend reachability).
// Check returns a non-nil error when the dependency is unusable.
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthReport is the aggregated result served by the diagnostics endpoint.
type HealthReport struct {
	Status       string            `json:"status"`
	Timestamp    string            `json:"timestamp"`
	Version      string            `json:"version"`
	Service      string            `json:"service"`
	Dependencies map[string]string `json:"dependencies"`
}
