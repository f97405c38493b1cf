package repo

import (
	"context"

	perr "nqlc/internal/platform/errors"
)

// Memory serves fixed distinct values per dimension, for tests and offline
// runs
type Memory struct {
	values map[string][]string
}

// NewMemory returns a memory dataset repo over the given values
func NewMemory(values map[string][]string) *Memory {
	if values == nil {
		values = map[string][]string{}
	}
	return &Memory{values: values}
}

// DistinctValues returns the configured values for a dimension
func (m *Memory) DistinctValues(_ context.Context, dim string) ([]string, error) {
	values, ok := m.values[dim]
	if !ok {
		return nil, perr.Resolutionf("unknown dimension %q", dim)
	}
	return append([]string(nil), values...), nil
}
