package nql

import "time"

// The critic: an ordered pipeline of named normalization and validation
// passes. Order matters - later passes depend on earlier normalization
// (trend grouping must run before limit clamping, quarter bounds before the
// window is lowered). Each pass reports whether it applied so its name lands
// in the provenance audit trail exactly once; re-validating an already
// normalized query is a no-op

// ServerMaxLimit is the hard ceiling any compiled query limit is clamped to
const ServerMaxLimit = 2000

type criticPass struct {
	name string
	run  func(q *Query) (bool, error)
}

// criticPasses runs in declared order.
// Preconditions/postconditions per stage:
//   - quarter_exclusive_end: requires parseable quarter bounds; leaves
//     exclusive_end set
//   - trend_grouping: leaves month grouped first and relative n defaulted
//   - mom_single_month_expand_prior: leaves internal_window.expand_prior set
//   - baseline_absolute_requires_bounds: rejects unbounded absolute baselines
//   - like_passthrough: rejects LIKE-family filters not typed text_raw
//   - sort_safety: requires trend grouping to have run (month is sortable)
//   - limit_clamp: requires grouping normalization to have settled; leaves
//     limit and rowcap_hint within server bounds
var criticPasses = []criticPass{
	{name: "quarter_exclusive_end", run: passQuarterExclusiveEnd},
	{name: "trend_grouping", run: passTrendGrouping},
	{name: "mom_single_month_expand_prior", run: passMoMExpandPrior},
	{name: "baseline_absolute_requires_bounds", run: passBaselineAbsoluteBounds},
	{name: "like_passthrough", run: passLikePassthrough},
	{name: "sort_safety", run: passSortSafety},
	{name: "limit_clamp", run: passLimitClamp},
}

// Validate runs the critic passes over a deep copy and returns the
// normalized query, never mutating the caller's value. The returned query's
// provenance carries the ordered, deduplicated audit trail
func Validate(q *Query) (*Query, error) {
	working := q.Clone()
	if len(working.Metrics) == 0 {
		return nil, validationErrf("metrics must contain at least one entry")
	}
	var applied []string
	for _, pass := range criticPasses {
		ok, err := pass.run(working)
		if err != nil {
			return nil, err
		}
		if ok {
			applied = append(applied, pass.name)
		}
	}
	working.Provenance.CriticPass = mergeAudit(working.Provenance.CriticPass, applied)
	return working, nil
}

func passQuarterExclusiveEnd(q *Query) (bool, error) {
	if q.Time.Window.Type != WindowQuarter || !q.Flags.QuarterExclusiveEnd {
		return false, nil
	}
	start, err := parseWindowDate(q.Time.Window.Start, "quarter.start")
	if err != nil {
		return false, err
	}
	end, err := parseWindowDate(q.Time.Window.End, "quarter.end")
	if err != nil {
		return false, err
	}
	if !end.Equal(AddMonths(MonthStart(start), 3)) {
		return false, validationErrf("quarter window end must be the start shifted by exactly three months")
	}
	q.Time.Window.ExclusiveEnd = true
	return true, nil
}

func passTrendGrouping(q *Query) (bool, error) {
	if q.Intent != IntentTrend || !q.Flags.RequireGroupingForTrend {
		return false, nil
	}
	const timeDim = "month"
	present := false
	for _, d := range q.GroupBy {
		if d == timeDim {
			present = true
		}
	}
	for _, d := range q.Dimensions {
		if d == timeDim {
			present = true
		}
	}
	if !present {
		q.GroupBy = append([]string{timeDim}, q.GroupBy...)
	}
	if q.Time.Window.Type == WindowRelativeMonths && q.Time.Window.N == nil {
		n := 12
		q.Time.Window.N = &n
	}
	return true, nil
}

func passMoMExpandPrior(q *Query) (bool, error) {
	if q.Compare == nil || q.Compare.Type != CompareMoM || q.Time.Window.Type != WindowSingleMonth {
		return false, nil
	}
	if q.Compare.InternalWindow == nil {
		q.Compare.InternalWindow = &CompareInternalWindow{}
	}
	q.Compare.InternalWindow.ExpandPrior = true
	return true, nil
}

func passBaselineAbsoluteBounds(q *Query) (bool, error) {
	if q.Compare == nil || q.Compare.Baseline != BaselineAbsolute {
		return false, nil
	}
	if q.Compare.Start == "" || q.Compare.End == "" {
		return false, validationErrf("compare.baseline=absolute requires both start and end")
	}
	return true, nil
}

func passLikePassthrough(q *Query) (bool, error) {
	for _, f := range q.Filters {
		if !f.Op.Pattern() {
			continue
		}
		if f.Type != TypeTextRaw {
			return false, validationErrf("LIKE filters must use type=text_raw for passthrough")
		}
	}
	return true, nil
}

func passSortSafety(q *Query) (bool, error) {
	if len(q.Sort) == 0 {
		return false, nil
	}
	sortable := map[string]bool{"month": true}
	for _, m := range q.Metrics {
		sortable[m.Alias] = true
	}
	for _, d := range q.Dimensions {
		sortable[d] = true
	}
	for _, d := range q.GroupBy {
		sortable[d] = true
	}
	for _, s := range q.Sort {
		if !sortable[s.By] {
			return false, validationErrf("sort target %q must be a metric alias or dimension", s.By)
		}
	}
	return true, nil
}

func passLimitClamp(q *Query) (bool, error) {
	rowcap := q.Flags.RowcapHint
	if rowcap < 1 {
		rowcap = 1
	}
	if rowcap > ServerMaxLimit {
		rowcap = ServerMaxLimit
	}
	q.Flags.RowcapHint = rowcap

	limit := q.Limit
	if limit < 1 {
		limit = 1
	}
	if limit > rowcap {
		limit = rowcap
	}
	if limit > ServerMaxLimit {
		limit = ServerMaxLimit
	}
	q.Limit = limit
	return true, nil
}

func parseWindowDate(raw, context string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, validationErrf("%s must be provided", context)
	}
	parsed, err := ParseISODate(raw)
	if err != nil {
		return time.Time{}, validationErrf("%s must be an ISO date: %s", context, raw)
	}
	return parsed, nil
}

// mergeAudit appends new pass names preserving first-seen order without dupes
func mergeAudit(seen, applied []string) []string {
	out := make([]string, 0, len(seen)+len(applied))
	have := make(map[string]bool, len(seen)+len(applied))
	for _, s := range append(append([]string{}, seen...), applied...) {
		if have[s] {
			continue
		}
		have[s] = true
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
