// Package domain defines the core types and ports for the canonical service
package domain

import (
	"context"
	"strings"
	"time"
)

// Entry is one promoted synonym mapping as the cache sees it
type Entry struct {
	Canonical string
	Score     float64
}

// Mappings is the full cache payload: dimension, then normalized synonym
type Mappings map[string]map[string]Entry

// Mapping is one persisted row of the canonical map
type Mapping struct {
	Dim        string
	Synonym    string
	Canonical  string
	Score      float64
	PromotedBy string
	PromotedAt time.Time
}

// Candidate is one ranked search result, carrying the current canonical for
// the candidate when one is already promoted
type Candidate struct {
	Candidate string
	Score     float64
	Canonical string
}

// Resolution is the outcome of resolving one raw value
type Resolution struct {
	Value      any
	Applied    bool
	LikeBypass bool
	Canonical  string
	Synonym    string
}

// Repo abstracts the persistent canonical store. Promote must be safe under
// concurrent promotions of different synonyms: each call is an independent
// upsert plus one global version bump, and no bump may be lost
type Repo interface {
	Version(ctx context.Context) (int64, error)
	LoadMappings(ctx context.Context) (Mappings, error)
	Promote(ctx context.Context, dim, synonym, canonical string, score float64, promotedBy string) (int64, error)
	SynonymValues(ctx context.Context, dim string) (synonyms, canonicals []string, err error)
	DimMapping(ctx context.Context, dim string) (map[string]string, error)
}

// ValuesSource yields the distinct observed values of a dimension from the
// live dataset. The dataset service implements it
type ValuesSource interface {
	DistinctValues(ctx context.Context, dim string) ([]string, error)
}

// Normalize is the lookup key normalization shared by store and cache
func Normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
