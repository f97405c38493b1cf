package compile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"nqlc/internal/core/nql"
	"nqlc/internal/core/semantic"
	canonicaldomain "nqlc/internal/services/canonical/domain"
	datasetdomain "nqlc/internal/services/dataset/domain"
)

// ResolutionError reports an unknown metric, dimension, or unmatched value.
// It is recoverable: Suggestions carries up to five ranked alternatives the
// caller can prompt with
type ResolutionError struct {
	Message     string
	Suggestions []string
}

func (e *ResolutionError) Error() string { return e.Message }

func resolutionErrf(suggestions []string, format string, args ...any) *ResolutionError {
	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}
	return &ResolutionError{Message: fmt.Sprintf(format, args...), Suggestions: suggestions}
}

const maxSuggestions = 5

// patternOperators never get their values resolved: the literal wildcard
// pattern passes through verbatim. Canonicalization must not rewrite a LIKE
// pattern
var patternOperators = map[string]bool{
	"like":     true,
	"not like": true,
	"like_any": true,
	"contains": true,
}

func isPatternOperator(op string) bool {
	return patternOperators[strings.ToLower(op)]
}

// CanonicalResolver is the cache seam the resolver consults first
type CanonicalResolver interface {
	Resolve(dim string, raw any) canonicaldomain.Resolution
}

// Resolver binds compiled plans against the semantic catalog, the canonical
// cache, and the dataset executor fallback
type Resolver struct {
	cat   *semantic.Catalog
	canon CanonicalResolver
	exec  datasetdomain.Executor
}

// NewResolver constructs a resolver. canon and exec may each be nil; a nil
// exec disables the legacy nearest-value fallback and suggestions
func NewResolver(cat *semantic.Catalog, canon CanonicalResolver, exec datasetdomain.Executor) *Resolver {
	if cat == nil {
		panic("compile.Resolver requires a non-nil semantic catalog")
	}
	return &Resolver{cat: cat, canon: canon, exec: exec}
}

// Resolve validates the plan against the catalog and resolves every filter
// value, returning a ResolvedPlan or a *ResolutionError
func (r *Resolver) Resolve(ctx context.Context, plan *nql.Plan) (*nql.ResolvedPlan, error) {
	for _, metric := range plan.Metrics {
		if metric == "count" || metric == "*" {
			continue
		}
		if _, ok := r.cat.Metric(metric); !ok {
			return nil, resolutionErrf(nil, "unknown metric %q", metric)
		}
	}
	for _, dim := range plan.GroupBy {
		if _, ok := r.cat.Dimension(dim); !ok {
			return nil, resolutionErrf(nil, "unknown dimension %q", dim)
		}
	}

	resolved := &nql.ResolvedPlan{
		Metrics:      append([]string(nil), plan.Metrics...),
		GroupBy:      append([]string(nil), plan.GroupBy...),
		Aggregate:    plan.Aggregate,
		PanelBy:      plan.PanelBy,
		Bucket:       plan.Bucket,
		AggregateV2:  plan.AggregateV2,
		TopK:         plan.TopK,
		ShareOfTotal: plan.Extras.ShareOfTotal,
		Source:       plan.Source,
	}

	var windowStart, windowEnd time.Time
	haveWindow := false
	for _, filter := range plan.Filters {
		if filter.Field == "month" {
			monthFilter := normalizeMonthFilter(filter)
			resolved.Filters = append(resolved.Filters, monthFilter)
			start, end, ok := r.monthRange(monthFilter)
			if ok {
				windowStart, windowEnd = start, end
				haveWindow = true
			}
			continue
		}
		if isPatternOperator(filter.Op) {
			resolved.Filters = append(resolved.Filters, filter)
			continue
		}
		value, err := r.resolveFilterValue(ctx, filter.Field, filter.Value)
		if err != nil {
			return nil, err
		}
		resolved.Filters = append(resolved.Filters, nql.PlanFilter{
			Field: filter.Field,
			Op:    filter.Op,
			Value: value,
		})
	}

	resolved.OrderBy = plan.OrderBy
	if resolved.OrderBy == nil && !plan.Extras.NQLCompiled {
		// legacy plans predate the compiler and never carry a sort; compiled
		// plans leave ordering to the builder's defaults
		resolved.OrderBy = []nql.OrderKey{{Field: "incidents", Dir: nql.SortDesc}}
	}
	resolved.Limit = clampLimit(plan.Limit)

	singleMonth := haveWindow &&
		(windowStart.Equal(windowEnd) || nql.AddMonths(windowStart, 1).Equal(windowEnd))
	if plan.Compare != nil {
		c := *plan.Compare
		resolved.Compare = &c
		if c.Type == nql.CompareMoM && singleMonth {
			prior := nql.AddMonths(windowStart, -1)
			next := nql.AddMonths(windowStart, 1)
			resolved.InternalWindow = &nql.PlanFilter{
				Field: "month",
				Op:    "between",
				Value: []string{nql.FormatDate(prior), nql.FormatDate(next)},
			}
		}
	}

	resolved.TimeWindowLabel = describeWindow(windowStart, windowEnd, haveWindow)
	return resolved, nil
}

// normalizeMonthFilter collapses a degenerate [start, end] range where the
// end is absent or equals the start into an equality filter
func normalizeMonthFilter(filter nql.PlanFilter) nql.PlanFilter {
	if filter.Op != "between" {
		return filter
	}
	values := monthValues(filter.Value)
	if len(values) == 0 || values[0] == "" {
		return filter
	}
	if len(values) == 1 || values[1] == "" || values[1] == values[0] {
		return nql.PlanFilter{Field: filter.Field, Op: "=", Value: values[0]}
	}
	return filter
}

func (r *Resolver) monthRange(filter nql.PlanFilter) (start, end time.Time, ok bool) {
	values := monthValues(filter.Value)
	if len(values) == 0 || values[0] == "" {
		return start, end, false
	}
	parse := func(raw string) (time.Time, error) {
		if r.exec != nil {
			return r.exec.ParseDate(raw)
		}
		return nql.ParseISODate(raw)
	}
	startParsed, err := parse(values[0])
	if err != nil {
		return start, end, false
	}
	endRaw := values[0]
	if len(values) > 1 && values[1] != "" {
		endRaw = values[1]
	}
	endParsed, err := parse(endRaw)
	if err != nil {
		return start, end, false
	}
	return startParsed, endParsed, true
}

// resolveFilterValue resolves one filter value (or each element of a list):
// canonical cache first, legacy dataset lookup second, suggestion-bearing
// error third. Fields outside the catalog pass through untouched
func (r *Resolver) resolveFilterValue(ctx context.Context, field string, value any) (any, error) {
	if _, ok := r.cat.Dimension(field); !ok {
		return value, nil
	}
	if list, ok := value.([]any); ok {
		out := make([]any, 0, len(list))
		for _, item := range list {
			resolved, err := r.resolveOne(ctx, field, item)
			if err != nil {
				return nil, err
			}
			out = append(out, resolved)
		}
		return out, nil
	}
	return r.resolveOne(ctx, field, value)
}

func (r *Resolver) resolveOne(ctx context.Context, field string, value any) (any, error) {
	if r.canon != nil {
		res := r.canon.Resolve(field, value)
		if res.LikeBypass {
			return value, nil
		}
		if res.Applied {
			return res.Value, nil
		}
	}
	raw, ok := value.(string)
	if !ok {
		return value, nil
	}
	if r.exec == nil {
		return value, nil
	}
	found, ok, err := r.exec.FindClosestValue(ctx, field, raw)
	if err != nil {
		return nil, err
	}
	if ok {
		return found, nil
	}
	suggestions, err := r.exec.ClosestMatches(ctx, field, raw, maxSuggestions)
	if err != nil {
		return nil, err
	}
	return nil, resolutionErrf(suggestions, "could not find value %q for %s", raw, field)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 0
	}
	if limit > nql.ServerMaxLimit {
		return nql.ServerMaxLimit
	}
	return limit
}

func monthValues(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, _ := item.(string)
			out = append(out, s)
		}
		return out
	case string:
		return []string{v}
	}
	return nil
}

func describeWindow(start, end time.Time, ok bool) string {
	if !ok {
		return "All available time"
	}
	startLabel := start.Format("2006-01")
	endLabel := end.AddDate(0, 0, -1).Format("2006-01")
	if startLabel == endLabel || start.Equal(end) {
		return start.Format("2006-01")
	}
	return startLabel + " to " + endLabel
}
