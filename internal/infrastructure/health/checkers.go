package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/avatarctic/resilient-client/go/internal/core/ports"
	infraDB "github.com/avatarctic/resilient-client/go/internal/infrastructure/db"
)

// dbHealthChecker wraps the SQL local store database for health checks.
type dbHealthChecker struct{ db *infraDB.Database }

func (d *dbHealthChecker) Name() string                    { return "local_store_" + d.db.Driver }
func (d *dbHealthChecker) Check(ctx context.Context) error { return d.db.Ping(ctx) }

// redisHealthChecker wraps the redis client for health checks.
type redisHealthChecker struct{ client redis.Cmdable }

func (r *redisHealthChecker) Name() string                    { return "local_store_redis" }
func (r *redisHealthChecker) Check(ctx context.Context) error { return r.client.Ping(ctx).Err() }

// NewDBHealthChecker creates a health checker for the local store database.
func NewDBHealthChecker(db *infraDB.Database) ports.HealthChecker { return &dbHealthChecker{db: db} }

// NewRedisHealthChecker creates a health checker for Redis.
func NewRedisHealthChecker(client redis.Cmdable) ports.HealthChecker {
	return &redisHealthChecker{client: client}
}

// Report runs every checker with its own timeout and aggregates the result.
// Status is "degraded" when any dependency fails; the client keeps serving
// from cache and local store, so nothing here is fatal.
func Report(ctx context.Context, checkers []ports.HealthChecker, service, version string, timeout time.Duration, now time.Time) ports.HealthReport {
	report := ports.HealthReport{
		Status:       "healthy",
		Timestamp:    now.UTC().Format(time.RFC3339),
		Version:      version,
		Service:      service,
		Dependencies: make(map[string]string, len(checkers)),
	}
	for _, c := range checkers {
		if c == nil {
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, timeout)
		err := c.Check(cctx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				err = fmt.Errorf("timed out after %s", timeout)
			}
			report.Dependencies[c.Name()] = "unhealthy: " + err.Error()
			report.Status = "degraded"
			continue
		}
		report.Dependencies[c.Name()] = "healthy"
	}
	return report
}
