package service

import (
	"strings"
	"sync/atomic"

	"nqlc/internal/services/canonical/domain"
)

// snapshot is one immutable generation of the cache. Load builds a fresh
// snapshot fully off to the side, then swaps the pointer, so readers never
// observe a partially updated mapping
type snapshot struct {
	version  int64
	mappings domain.Mappings
}

// Canonicalizer is the in-process canonical mapping cache. Resolve is safe
// for unlimited concurrent readers while Load swaps generations underneath
type Canonicalizer struct {
	current atomic.Pointer[snapshot]
}

// NewCanonicalizer returns an empty cache at version zero
func NewCanonicalizer() *Canonicalizer {
	c := &Canonicalizer{}
	c.current.Store(&snapshot{mappings: domain.Mappings{}})
	return c
}

// Version returns the cached generation's version
func (c *Canonicalizer) Version() int64 {
	return c.current.Load().version
}

// Load replaces the whole mapping and version wholesale
func (c *Canonicalizer) Load(mappings domain.Mappings, version int64) {
	next := &snapshot{version: version, mappings: make(domain.Mappings, len(mappings))}
	for dim, entries := range mappings {
		dimMap := make(map[string]domain.Entry, len(entries))
		for key, entry := range entries {
			dimMap[key] = entry
		}
		next.mappings[dim] = dimMap
	}
	c.current.Store(next)
}

// Resolve maps a raw filter value to its canonical form. Values carrying a
// LIKE wildcard are returned untouched with LikeBypass set; resolution must
// never rewrite a pattern. Non-string and unmapped values pass through
func (c *Canonicalizer) Resolve(dim string, raw any) domain.Resolution {
	token, ok := raw.(string)
	if !ok {
		return domain.Resolution{Value: raw}
	}
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return domain.Resolution{Value: raw}
	}
	if strings.Contains(trimmed, "%") {
		return domain.Resolution{Value: raw, LikeBypass: true}
	}
	snap := c.current.Load()
	entry, ok := snap.mappings[dim][domain.Normalize(trimmed)]
	if !ok {
		return domain.Resolution{Value: raw}
	}
	canonical := entry.Canonical
	if canonical == "" {
		canonical = token
	}
	return domain.Resolution{
		Value:     canonical,
		Applied:   true,
		Canonical: canonical,
		Synonym:   trimmed,
	}
}
