// Package service implements the dataset executor capability: nearest-value
// lookups over live distinct values and permissive date parsing
package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/araddon/dateparse"

	"nqlc/internal/services/dataset/domain"
)

// DefaultSuggestionLimit caps ClosestMatches results
const DefaultSuggestionLimit = 5

// Svc implements domain.Executor over a dataset repo
type Svc struct {
	repo domain.Repo
}

var _ domain.Executor = (*Svc)(nil)

// New constructs the dataset service
func New(repo domain.Repo) *Svc {
	if repo == nil {
		panic("dataset.Service requires a non-nil Repo")
	}
	return &Svc{repo: repo}
}

// DistinctValues exposes the repo's distinct values
func (s *Svc) DistinctValues(ctx context.Context, dim string) ([]string, error) {
	return s.repo.DistinctValues(ctx, dim)
}

// FindClosestValue returns the stored value matching the input, trying exact
// case-insensitive equality first and prefix match second
func (s *Svc) FindClosestValue(ctx context.Context, dim, value string) (string, bool, error) {
	if value == "" {
		return "", false, nil
	}
	values, err := s.repo.DistinctValues(ctx, dim)
	if err != nil {
		return "", false, err
	}
	norm := strings.ToLower(value)
	for _, item := range values {
		if strings.ToLower(item) == norm {
			return item, true, nil
		}
	}
	for _, item := range values {
		if strings.HasPrefix(strings.ToLower(item), norm) {
			return item, true, nil
		}
	}
	return "", false, nil
}

// ClosestMatches ranks the distinct values by edit distance to the input and
// returns the closest few as did-you-mean suggestions
func (s *Svc) ClosestMatches(ctx context.Context, dim, value string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = DefaultSuggestionLimit
	}
	values, err := s.repo.DistinctValues(ctx, dim)
	if err != nil {
		return nil, err
	}
	target := strings.ToLower(value)
	type scored struct {
		distance int
		value    string
	}
	ranked := make([]scored, 0, len(values))
	for _, item := range values {
		ranked = append(ranked, scored{
			distance: levenshtein.ComputeDistance(target, strings.ToLower(item)),
			value:    item,
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].distance != ranked[j].distance {
			return ranked[i].distance < ranked[j].distance
		}
		return ranked[i].value < ranked[j].value
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]string, 0, len(ranked))
	for _, item := range ranked {
		out = append(out, item.value)
	}
	return out, nil
}

// ParseDate parses a date string in any common format
func (s *Svc) ParseDate(value string) (time.Time, error) {
	return dateparse.ParseAny(value)
}
