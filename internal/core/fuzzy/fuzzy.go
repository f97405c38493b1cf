// Package fuzzy ranks free-text strings by trigram cosine similarity with
// prefix, substring, and acronym boosts. It is the ranking engine behind
// canonical synonym search
package fuzzy

import (
	"math"
	"sort"
	"strings"
)

// Defaults applied by NewMatcher
const (
	DefaultThreshold = 0.75
	DefaultLimit     = 10
)

// Match is one ranked candidate
type Match struct {
	Candidate string
	Score     float64
}

// Matcher ranks candidates against a query. The zero value is unusable; use
// NewMatcher
type Matcher struct {
	Threshold float64
	Limit     int
}

// NewMatcher returns a matcher with the default threshold and limit
func NewMatcher() *Matcher {
	return &Matcher{Threshold: DefaultThreshold, Limit: DefaultLimit}
}

// Rank scores every candidate against query, drops scores below the
// threshold, and returns at most Limit matches ordered by descending score
// with candidate text breaking ties
func (m *Matcher) Rank(query string, candidates []string) []Match {
	queryNorm := normalize(query)
	queryVec := trigrams(query)
	scored := make([]Match, 0, len(candidates))
	for _, candidate := range candidates {
		score := cosine(queryVec, trigrams(candidate))
		candNorm := normalize(candidate)
		switch {
		case strings.HasPrefix(candNorm, queryNorm):
			score = math.Max(score, 0.90)
		case len(queryNorm) >= 3 && strings.Contains(candNorm, queryNorm):
			frac := math.Min(float64(len(queryNorm))/math.Max(float64(len(candNorm)), 1), 1.0)
			score = math.Max(score, 0.75+0.20*frac)
		}
		if acr := acronym(candidate); acr != "" && strings.HasPrefix(normalize(acr), queryNorm) {
			frac := math.Min(float64(len(queryNorm))/float64(len(acr)), 1.0)
			score = math.Max(score, 0.85+0.15*frac)
		}
		if score < m.Threshold {
			continue
		}
		scored = append(scored, Match{Candidate: candidate, Score: score})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Candidate < scored[j].Candidate
	})
	if len(scored) > m.Limit {
		scored = scored[:m.Limit]
	}
	return scored
}

// Cosine returns the trigram cosine similarity of two strings
func Cosine(a, b string) float64 {
	return cosine(trigrams(a), trigrams(b))
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// trigrams counts sliding 3-grams over the padded, normalized string
func trigrams(s string) map[string]int {
	norm := normalize(s)
	if norm == "" {
		return nil
	}
	padded := "  " + norm + "  "
	vec := make(map[string]int, len(padded))
	for i := 0; i+3 <= len(padded); i++ {
		vec[padded[i:i+3]]++
	}
	return vec
}

func cosine(a, b map[string]int) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for tok, wa := range a {
		dot += float64(wa * b[tok])
		normA += float64(wa * wa)
	}
	for _, wb := range b {
		normB += float64(wb * wb)
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// acronym joins the first byte of each alphanumeric run in the string
func acronym(s string) string {
	var out strings.Builder
	inRun := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		alnum := c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
		if alnum && !inRun {
			out.WriteByte(c)
		}
		inRun = alnum
	}
	return out.String()
}
