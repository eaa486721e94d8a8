package app

import (
	"context"
	"fmt"
)

// Pinger is the minimal pool capability needed by the db readiness check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BuildReadinessChecks returns the db and vector index probes wired into the
// readiness handler.
func BuildReadinessChecks(pool Pinger, qdrant Pinger) (func(ctx context.Context) error, func(ctx context.Context) error) {
	dbCheck := func(ctx context.Context) error {
		if pool == nil {
			return fmt.Errorf("db not configured")
		}
		return pool.Ping(ctx)
	}
	qdrantCheck := func(ctx context.Context) error {
		if qdrant == nil {
			return fmt.Errorf("qdrant not configured")
		}
		return qdrant.Ping(ctx)
	}
	return dbCheck, qdrantCheck
}
