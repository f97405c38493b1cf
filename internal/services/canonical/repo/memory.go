package repo

import (
	"context"
	"sync"
	"time"

	"nqlc/internal/services/canonical/domain"
)

// Memory is an in-process canonical store for tests and offline runs. It
// honors the same contract as PG: upsert keyed on (dim, lower(synonym)) and
// one global version counter bumped per promotion
type Memory struct {
	mu       sync.Mutex
	version  int64
	mappings map[string]map[string]domain.Mapping
}

var _ domain.Repo = (*Memory)(nil)

// NewMemory returns an empty in-memory canonical store at version 1
func NewMemory() *Memory {
	return &Memory{
		version:  1,
		mappings: make(map[string]map[string]domain.Mapping),
	}
}

// Version returns the current global version
func (m *Memory) Version(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version, nil
}

// LoadMappings snapshots every mapping into the cache payload shape
func (m *Memory) LoadMappings(_ context.Context) (domain.Mappings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(domain.Mappings, len(m.mappings))
	for dim, entries := range m.mappings {
		dimMap := make(map[string]domain.Entry, len(entries))
		for key, row := range entries {
			dimMap[key] = domain.Entry{Canonical: row.Canonical, Score: row.Score}
		}
		out[dim] = dimMap
	}
	return out, nil
}

// Promote upserts the mapping and bumps the version
func (m *Memory) Promote(
	_ context.Context,
	dim, synonym, canonical string,
	score float64,
	promotedBy string,
) (int64, error) {
	if promotedBy == "" {
		promotedBy = "admin"
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entries, ok := m.mappings[dim]
	if !ok {
		entries = make(map[string]domain.Mapping)
		m.mappings[dim] = entries
	}
	entries[domain.Normalize(synonym)] = domain.Mapping{
		Dim:        dim,
		Synonym:    synonym,
		Canonical:  canonical,
		Score:      score,
		PromotedBy: promotedBy,
		PromotedAt: time.Now().UTC(),
	}
	m.version++
	return m.version, nil
}

// SynonymValues returns the known synonyms and canonicals for a dimension
func (m *Memory) SynonymValues(_ context.Context, dim string) (synonyms, canonicals []string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.mappings[dim] {
		synonyms = append(synonyms, row.Synonym)
		canonicals = append(canonicals, row.Canonical)
	}
	return synonyms, canonicals, nil
}

// DimMapping returns normalized synonym to canonical for one dimension
func (m *Memory) DimMapping(_ context.Context, dim string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.mappings[dim]))
	for key, row := range m.mappings[dim] {
		out[key] = row.Canonical
	}
	return out, nil
}
