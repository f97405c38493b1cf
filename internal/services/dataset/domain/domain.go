// Package domain defines the ports of the dataset service: the executor
// capability the resolver falls back to for legacy value lookups
package domain

import (
	"context"
	"time"
)

// Repo abstracts distinct-value reads from the analytical store
type Repo interface {
	DistinctValues(ctx context.Context, dim string) ([]string, error)
}

// Executor is the value-lookup capability the resolver consumes
type Executor interface {
	FindClosestValue(ctx context.Context, dim, value string) (string, bool, error)
	ClosestMatches(ctx context.Context, dim, value string, limit int) ([]string, error)
	ParseDate(value string) (time.Time, error)
	DistinctValues(ctx context.Context, dim string) ([]string, error)
}
