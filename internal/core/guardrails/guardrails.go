// Package guardrails vets generated SQL and plan shape before execution.
// Enforce is the structural pre-flight check; ValidatePlan is the
// pre-execution safety and cardinality check that can rewrite the request
// instead of blocking it; CheckRowcap is the post-flight truncation warning.
// Every function here is a pure function of its inputs
package guardrails

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"nqlc/internal/core/nql"
)

// Decision outcomes
const (
	DecisionAllow   = "allow"
	DecisionBlock   = "block"
	DecisionRewrite = "rewrite"
)

// Default safety bounds
const (
	MaxRows           = 10000
	TopKDefault       = 100
	JoinBlowupFactor  = 10
	MaxTimeRangeYears = 10
	DefaultLimit      = 100
	MaxStatementLimit = 2000
)

var (
	selectOnlyRe = regexp.MustCompile(`(?is)^\s*(?:with\s+.*?\)?\s*)?select`)
	semicolonRe  = regexp.MustCompile(`;`)
	selectStarRe = regexp.MustCompile(`(?i)select\s+\*`)
	wordJoinRe   = regexp.MustCompile(`(?i)\bjoin\b`)
	wordOnRe     = regexp.MustCompile(`(?i)\bon\b`)
	wordUsingRe  = regexp.MustCompile(`(?i)\busing\b`)
	wordWhereRe  = regexp.MustCompile(`(?i)\bwhere\b`)
)

// Error reports a structural SQL safety violation. It indicates an upstream
// code-generation defect, not a user error
type Error struct {
	msg string
}

func (e *Error) Error() string { return e.msg }

func errf(format string, args ...any) *Error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}

// Enforce rejects statements that are not a single explicit-column SELECT
// within the limit bound
func Enforce(sql string, limit int) error {
	if !selectOnlyRe.MatchString(sql) {
		return errf("only SELECT statements are permitted")
	}
	if semicolonRe.MatchString(sql) {
		return errf("multiple statements are not allowed")
	}
	if selectStarRe.MatchString(sql) {
		return errf("SELECT * is not permitted; select explicit columns instead")
	}
	if limit > MaxStatementLimit {
		return errf("LIMIT must be <= %d", MaxStatementLimit)
	}
	return nil
}

// CheckRowcap returns the truncation warning to attach when the executor
// reports a truncated result, or "" when nothing was cut
func CheckRowcap(truncated bool) string {
	if !truncated {
		return ""
	}
	return fmt.Sprintf(
		"Result set exceeds %d rows and has been truncated. Refine your filters or add a time range to narrow the results.",
		MaxRows,
	)
}

// TimeRange is the lowered time window of the plan view
type TimeRange struct {
	Start string
	End   string
}

// View is the plan shape ValidatePlan inspects and rewrites. It mirrors the
// resolved plan but stays mutable so rewrites can land on a copy
type View struct {
	Time    TimeRange
	GroupBy []string
	Filters []nql.PlanFilter
	Limit   *int
}

// Clone returns a deep copy of the view
func (v *View) Clone() *View {
	if v == nil {
		return &View{}
	}
	out := *v
	out.GroupBy = append([]string(nil), v.GroupBy...)
	out.Filters = append([]nql.PlanFilter(nil), v.Filters...)
	if v.Limit != nil {
		l := *v.Limit
		out.Limit = &l
	}
	return &out
}

// Config parameterizes ValidatePlan. The zero value is unusable; use
// DefaultConfig
type Config struct {
	MaxRows           int
	TopKDefault       int
	JoinBlowupFactor  float64
	MaxTimeRangeYears int
	DefaultLimit      int
	CanonicalValues   map[string][]string
}

// DefaultConfig returns the standard safety bounds
func DefaultConfig() Config {
	return Config{
		MaxRows:           MaxRows,
		TopKDefault:       TopKDefault,
		JoinBlowupFactor:  JoinBlowupFactor,
		MaxTimeRangeYears: MaxTimeRangeYears,
		DefaultLimit:      DefaultLimit,
	}
}

// Stats is the executor's preview of the data the plan would touch. Zero
// fields mean unknown
type Stats struct {
	DistinctCounts     map[string]float64
	JoinCardinalityEst float64
	TableRowCounts     map[string]float64
	RowCountEst        float64
}

// Diagnostic is one machine-readable finding attached to a decision
type Diagnostic struct {
	Type    string
	Message string
	Details map[string]any
}

// Limits records the row-cap state of a decision
type Limits struct {
	RowCap  int
	Applied bool
	TopK    int
}

// Decision is the ValidatePlan outcome. Block and rewrite are control flow,
// not errors: the caller can retry with the effective view and SQL
type Decision struct {
	Decision            string
	EffectiveNQL        *View
	EffectiveSQL        string
	Diagnostics         []Diagnostic
	Limits              Limits
	PostflightNumericOK bool
}

// ValidatePlan runs the pre-execution safety checks over a copy of the view.
// Checks run in order: select-star, time sanity and span cap, join safety,
// cardinality estimation with automatic group-by reduction and TOP-K, and
// the unknown-value ILIKE fallback. The input view is never mutated
func ValidatePlan(view *View, sql string, stats *Stats, cfg Config) Decision {
	effective := view.Clone()
	decision := Decision{
		Decision:            DecisionAllow,
		EffectiveNQL:        effective,
		EffectiveSQL:        sql,
		Limits:              Limits{RowCap: cfg.MaxRows},
		PostflightNumericOK: true,
	}
	block := func() Decision {
		decision.Decision = DecisionBlock
		decision.EffectiveSQL = ""
		return decision
	}
	diag := func(kind, message string, details map[string]any) {
		decision.Diagnostics = append(decision.Diagnostics, Diagnostic{Type: kind, Message: message, Details: details})
	}

	if selectStarRe.MatchString(sql) {
		diag("unsafe_select_star", "SELECT * detected. Explicit column selection required.", nil)
		return block()
	}

	start, errStart := parseDate(effective.Time.Start)
	end, errEnd := parseDate(effective.Time.End)
	if errStart != nil || errEnd != nil {
		diag("ambiguous_time", "Time range must include valid start and end dates.", map[string]any{
			"start": effective.Time.Start, "end": effective.Time.End,
		})
		return block()
	}
	if !end.After(start) {
		diag("ambiguous_time", "End date must be after start date.", map[string]any{
			"start": effective.Time.Start, "end": effective.Time.End,
		})
		return block()
	}
	if end.Sub(start) > time.Duration(cfg.MaxTimeRangeYears)*366*24*time.Hour {
		diag("ambiguous_time", "Time range exceeds maximum allowed span.", map[string]any{
			"start": effective.Time.Start, "end": effective.Time.End, "max_years": cfg.MaxTimeRangeYears,
		})
		safeStart := end.AddDate(0, 0, -365)
		effective.Time.Start = safeStart.Format("2006-01-02")
		effective.Time.End = end.Format("2006-01-02")
		diag("blocked_query", "Suggested rewrite: snap to last 12 months.", map[string]any{
			"suggested_start": effective.Time.Start, "suggested_end": effective.Time.End,
		})
		return block()
	}

	if hasJoinWithoutEquality(sql) {
		diag("join_cardinality_exceeded", "Join detected without equality predicate.", map[string]any{
			"suggestions": []string{
				"Add equality predicate on join keys.",
				"Push down time filters before the join.",
			},
		})
		diag("blocked_query", "Execution blocked due to unsafe join.", map[string]any{
			"recommended_patch": "Add join predicates or remove the join.",
		})
		return block()
	}

	var joinCardinality float64
	if stats != nil {
		joinCardinality = stats.JoinCardinalityEst
	}
	if joinCardinality > 0 {
		if largest := largestBaseTable(stats); largest > 0 && joinCardinality > cfg.JoinBlowupFactor*largest {
			diag("join_cardinality_exceeded", "Join cardinality estimate exceeds safety threshold.", map[string]any{
				"join_cardinality_est": joinCardinality,
				"largest_base_table":   largest,
				"threshold":            cfg.JoinBlowupFactor,
			})
			diag("blocked_query", "Execution blocked. Reduce scope or constrain joins.", map[string]any{
				"recommended_patch": "Add equality predicate, tighten time range, or limit dimension values.",
			})
			return block()
		}
	}

	var distinctCounts map[string]float64
	if stats != nil {
		distinctCounts = stats.DistinctCounts
	}
	estimated := estimateGroups(effective.GroupBy, distinctCounts, joinCardinality)
	rowcapModified := false
	if estimated > float64(cfg.MaxRows) {
		if len(effective.GroupBy) > 1 {
			kept := effective.GroupBy[:1]
			dropped := append([]string(nil), effective.GroupBy[1:]...)
			effective.GroupBy = append([]string(nil), kept...)
			diag("row_cap_exceeded", "Expected fan-out exceeds row cap; keeping only first group_by dimension.", map[string]any{
				"estimated_groups": math.Ceil(estimated),
				"dropped":          dropped,
				"kept":             kept,
			})
			rowcapModified = true
			estimated = estimateGroups(effective.GroupBy, distinctCounts, joinCardinality)
		}
		if estimated == 0 || estimated > float64(cfg.MaxRows) {
			topK := cfg.TopKDefault
			if effective.Limit == nil || *effective.Limit > topK {
				effective.Limit = &topK
			}
			details := map[string]any{"top_k": topK}
			if estimated > 0 {
				details["estimated_groups"] = math.Ceil(estimated)
			}
			diag("row_cap_exceeded", "Applied TOP-K to enforce row cap safety.", details)
			decision.Limits.TopK = topK
			rowcapModified = true
		}
	}
	if rowcapModified {
		decision.Limits.Applied = true
		decision.Decision = DecisionRewrite
	}

	for i := range effective.Filters {
		flt := &effective.Filters[i]
		value, ok := flt.Value.(string)
		if flt.Field == "" || !ok {
			continue
		}
		known := cfg.CanonicalValues[flt.Field]
		if len(known) == 0 || containsValue(known, value) {
			continue
		}
		matches := substringMatches(known, value, 5)
		flt.Op = "ilike"
		flt.Value = "%" + value + "%"
		diag("unknown_value_fallback", fmt.Sprintf("Falling back to ILIKE match for %s.", flt.Field), map[string]any{
			"column":  flt.Field,
			"value":   value,
			"matches": matches,
		})
	}

	if effective.Limit == nil {
		l := cfg.DefaultLimit
		effective.Limit = &l
	}
	return decision
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("guardrails: empty date")
	}
	return time.Parse("2006-01-02", raw)
}

// hasJoinWithoutEquality scans every JOIN clause for an equality predicate.
// USING joins imply equality; an ON clause must carry one; a JOIN whose
// predicate cannot be found at all blocks the query
func hasJoinWithoutEquality(sql string) bool {
	joins := wordJoinRe.FindAllStringIndex(sql, -1)
	for i, join := range joins {
		boundary := len(sql)
		if i+1 < len(joins) {
			boundary = joins[i+1][0]
		}
		if where := wordWhereRe.FindStringIndex(sql[join[1]:boundary]); where != nil {
			boundary = join[1] + where[0]
		}
		segment := sql[join[1]:boundary]
		if wordUsingRe.MatchString(segment) {
			continue
		}
		on := wordOnRe.FindStringIndex(segment)
		if on == nil {
			return true
		}
		if !strings.Contains(segment[on[1]:], "=") {
			return true
		}
	}
	return false
}

// estimateGroups multiplies the per-dimension distinct counts and the join
// multiplier. Returns 0 when the estimate is unknowable
func estimateGroups(groupBy []string, distinctCounts map[string]float64, joinCardinality float64) float64 {
	if len(groupBy) == 0 || len(distinctCounts) == 0 {
		return 0
	}
	estimate := 1.0
	for _, dim := range groupBy {
		cardinality, ok := distinctCounts[dim]
		if !ok || cardinality <= 0 {
			return 0
		}
		estimate *= cardinality
		if estimate > 1e12 {
			return estimate
		}
	}
	if joinCardinality > 0 {
		estimate *= joinCardinality
	}
	return estimate
}

func largestBaseTable(stats *Stats) float64 {
	if stats == nil {
		return 0
	}
	largest := 0.0
	for _, count := range stats.TableRowCounts {
		if count > largest {
			largest = count
		}
	}
	if stats.RowCountEst > largest {
		largest = stats.RowCountEst
	}
	return largest
}

func containsValue(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

func substringMatches(values []string, needle string, limit int) []string {
	lowered := strings.ToLower(needle)
	var out []string
	for _, v := range values {
		if strings.Contains(strings.ToLower(v), lowered) {
			out = append(out, v)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}
