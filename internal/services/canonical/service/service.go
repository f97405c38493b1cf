// Package service implements canonical synonym search, promotion, the
// in-process cache, and the background watcher that keeps it fresh
package service

import (
	"context"
	"strings"

	"nqlc/internal/core/fuzzy"
	perr "nqlc/internal/platform/errors"
	"nqlc/internal/services/canonical/domain"
)

// Svc is the canonical service: ranked candidate search over dataset values
// plus known synonyms, and promotion into the persistent store
type Svc struct {
	repo    domain.Repo
	values  domain.ValuesSource
	matcher *fuzzy.Matcher
}

// New constructs the canonical service. The values source may be nil when no
// dataset is attached; search then ranks over promoted values only
func New(repo domain.Repo, values domain.ValuesSource, matcher *fuzzy.Matcher) *Svc {
	if repo == nil {
		panic("canonical.Service requires a non-nil Repo")
	}
	if matcher == nil {
		matcher = fuzzy.NewMatcher()
	}
	return &Svc{repo: repo, values: values, matcher: matcher}
}

// Search gathers candidate values for the dimension from the dataset plus
// all known synonyms and canonicals, dedupes them case-insensitively
// preserving first-seen order, and ranks them against the token
func (s *Svc) Search(ctx context.Context, dim, token string) ([]domain.Candidate, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	var values []string
	if s.values != nil {
		observed, err := s.values.DistinctValues(ctx, dim)
		if err != nil {
			return nil, err
		}
		values = append(values, observed...)
	}
	synonyms, canonicals, err := s.repo.SynonymValues(ctx, dim)
	if err != nil {
		return nil, err
	}
	values = append(values, synonyms...)
	values = append(values, canonicals...)

	seen := make(map[string]bool, len(values))
	deduped := make([]string, 0, len(values))
	for _, value := range values {
		if value == "" {
			continue
		}
		key := strings.ToLower(value)
		if seen[key] {
			continue
		}
		seen[key] = true
		deduped = append(deduped, value)
	}

	existing, err := s.repo.DimMapping(ctx, dim)
	if err != nil {
		return nil, err
	}
	matches := s.matcher.Rank(token, deduped)
	out := make([]domain.Candidate, 0, len(matches))
	for _, m := range matches {
		out = append(out, domain.Candidate{
			Candidate: m.Candidate,
			Score:     m.Score,
			Canonical: existing[domain.Normalize(m.Candidate)],
		})
	}
	return out, nil
}

// Promote persists a synonym mapping and returns the new store version
func (s *Svc) Promote(
	ctx context.Context,
	dim, synonym, canonical string,
	score float64,
	promotedBy string,
) (int64, error) {
	if strings.TrimSpace(synonym) == "" || strings.TrimSpace(canonical) == "" {
		return 0, perr.Validationf("promote requires a synonym and a canonical value")
	}
	return s.repo.Promote(ctx, dim, synonym, canonical, score, promotedBy)
}

// CurrentMapping returns the promoted canonical for a synonym, if any
func (s *Svc) CurrentMapping(ctx context.Context, dim, synonym string) (string, bool, error) {
	if strings.TrimSpace(synonym) == "" {
		return "", false, nil
	}
	mapping, err := s.repo.DimMapping(ctx, dim)
	if err != nil {
		return "", false, err
	}
	canonical, ok := mapping[domain.Normalize(synonym)]
	return canonical, ok, nil
}
