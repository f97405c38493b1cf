// Package sqlgen generates SQL text from a resolved plan and the semantic
// catalog. Build is pure and deterministic: the same plan and catalog always
// produce the same statement
package sqlgen

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"nqlc/internal/core/nql"
	"nqlc/internal/core/semantic"
)

// RawDateField marks a filter that must hit the raw date column instead of
// the derived month column (absolute-baseline comparisons)
const RawDateField = "_date_range"

const defaultMetricAlias = "incidents"

// Build renders the resolved plan to a single SELECT statement wrapped in a
// base CTE that derives the truncated month column
func Build(plan *nql.ResolvedPlan, cat *semantic.Catalog) (string, error) {
	baseCTE := fmt.Sprintf(
		"WITH base AS (SELECT DATE_TRUNC('month', %s) AS month, * FROM %s)",
		semantic.QuoteIdent(cat.DateColumn), cat.Table,
	)

	switch {
	case plan.TopK != nil:
		return buildTopK(baseCTE, plan, cat)
	case plan.Bucket != nil:
		return buildBucket(baseCTE, plan, cat)
	case plan.AggregateV2 != nil:
		return buildAggregateV2(baseCTE, plan, cat)
	case plan.Compare != nil && plan.Compare.Baseline != "" && plan.Compare.Method != "":
		return buildBaselineCompare(baseCTE, plan, cat)
	case plan.Compare != nil && (plan.Compare.Type == nql.CompareMoM || plan.Compare.Type == nql.CompareYoY):
		return buildLagCompare(baseCTE, plan, cat)
	}
	return buildAggregate(baseCTE, plan, cat)
}

// buildAggregate is the default group-by branch, with an optional
// share-of-total window column for single-month equality queries
func buildAggregate(baseCTE string, plan *nql.ResolvedPlan, cat *semantic.Catalog) (string, error) {
	selectParts, groupExprs := dimensionSelects(plan.GroupBy, cat)
	metricExprs, metricAliases, err := metricSelects(plan, cat)
	if err != nil {
		return "", err
	}

	query := "SELECT " + strings.Join(append(selectParts, metricExprs...), ", ") + " FROM base"
	if where := buildWhere(plan.Filters, cat, "base"); where != "" {
		query += " " + where
	}
	if len(groupExprs) > 0 {
		query += " GROUP BY " + strings.Join(groupExprs, ", ")
	}

	share := plan.ShareOfTotal && plan.Compare == nil && isSingleMonthEquality(plan.Filters)
	var sql string
	if share {
		alias := defaultMetricAlias
		if len(metricAliases) > 0 {
			alias = metricAliases[0]
		}
		outer := append(append([]string{}, plan.GroupBy...), metricAliases...)
		outer = append(outer, fmt.Sprintf("%s * 1.0 / NULLIF(SUM(%s) OVER (), 0) AS share_total", alias, alias))
		sql = fmt.Sprintf("%s, aggregated AS (%s) SELECT %s FROM aggregated", baseCTE, query, strings.Join(outer, ", "))
	} else {
		sql = baseCTE + " " + query
	}

	if order := orderClause(effectiveOrder(plan)); order != "" {
		sql += " " + order
	}
	return withLimit(sql, plan.Limit), nil
}

// buildLagCompare renders the mom/yoy branch: aggregate per month, then LAG
// back by the compare period, then the percent change guarded against a null
// or zero prior. When the resolver widened the window the caller's original
// month filter is re-applied on the final select so the result stays inside
// the requested window
func buildLagCompare(baseCTE string, plan *nql.ResolvedPlan, cat *semantic.Catalog) (string, error) {
	selectParts, groupExprs := dimensionSelects(plan.GroupBy, cat)
	monthExpr := dimExpr("month", cat, "base")

	aggSelect := append(append([]string{}, selectParts...), monthExpr+" AS month")
	metricAlias, metricExpr, err := compareMetric(plan, cat)
	if err != nil {
		return "", err
	}
	aggSelect = append(aggSelect, metricExpr+" AS "+metricAlias)

	aggFilters := plan.Filters
	widened := false
	if plan.Compare.Type == nql.CompareMoM && plan.InternalWindow != nil {
		aggFilters = spliceMonthFilter(plan.Filters, *plan.InternalWindow)
		widened = true
	}

	aggSQL := "SELECT " + strings.Join(aggSelect, ", ") + " FROM base"
	if where := buildWhere(aggFilters, cat, "base"); where != "" {
		aggSQL += " " + where
	}
	aggGroup := append([]string{}, groupExprs...)
	if !contains(aggGroup, monthExpr) {
		aggGroup = append(aggGroup, monthExpr)
	}
	aggSQL += " GROUP BY " + strings.Join(aggGroup, ", ")

	partition := partitionClause(plan.GroupBy)
	sql := fmt.Sprintf(
		"%s, aggregated AS (%s), ranked AS (SELECT aggregated.*, LAG(%s, %d) OVER (%s ORDER BY month) AS prior_%s FROM aggregated)",
		baseCTE, aggSQL, metricAlias, plan.Compare.Periods, partition, metricAlias,
	)

	finalCols := make([]string, 0, len(plan.GroupBy)+3)
	for _, dim := range plan.GroupBy {
		if dim == "month" {
			continue
		}
		finalCols = append(finalCols, dim)
	}
	finalCols = append(finalCols,
		metricAlias,
		fmt.Sprintf(
			"CASE WHEN prior_%s IS NULL OR prior_%s = 0 THEN NULL ELSE (%s - prior_%s) * 100.0 / prior_%s END AS change_pct",
			metricAlias, metricAlias, metricAlias, metricAlias, metricAlias,
		),
		"month",
	)
	sql += " SELECT " + strings.Join(finalCols, ", ") + " FROM ranked"

	if widened {
		if monthWhere := buildWhere(monthFilters(plan.Filters), cat, ""); monthWhere != "" {
			sql += " " + monthWhere
		}
	}
	if order := orderClause(effectiveOrder(plan)); order != "" {
		sql += " " + order
	}
	return withLimit(sql, plan.Limit), nil
}

// buildBaselineCompare renders the v2 compare: independent current and
// baseline CTEs joined on the group-by keys. The baseline window is the
// current filters shifted back one or twelve months, or an explicit raw date
// range for the absolute baseline
func buildBaselineCompare(baseCTE string, plan *nql.ResolvedPlan, cat *semantic.Catalog) (string, error) {
	selectParts, groupExprs := dimensionSelects(plan.GroupBy, cat)
	_, metricExpr, err := compareMetric(plan, cat)
	if err != nil {
		return "", err
	}
	selectList := append(append([]string{}, selectParts...), metricExpr+" AS value")

	groupClause := ""
	if len(groupExprs) > 0 {
		groupClause = " GROUP BY " + strings.Join(groupExprs, ", ")
	}

	currentSQL := "SELECT " + strings.Join(selectList, ", ") + " FROM base"
	if where := buildWhere(plan.Filters, cat, "base"); where != "" {
		currentSQL += " " + where
	}
	currentSQL += groupClause

	var baselineFilters []nql.PlanFilter
	switch plan.Compare.Baseline {
	case nql.BaselinePreviousPeriod:
		baselineFilters = shiftMonthFilters(plan.Filters, -1)
	case nql.BaselineLastYear:
		baselineFilters = shiftMonthFilters(plan.Filters, -12)
	case nql.BaselineAbsolute:
		baselineFilters = dropMonthFilters(plan.Filters)
		baselineFilters = append(baselineFilters, nql.PlanFilter{
			Field: RawDateField,
			Op:    "between",
			Value: []string{plan.Compare.Start, plan.Compare.End},
		})
	default:
		baselineFilters = plan.Filters
	}

	baselineSQL := "SELECT " + strings.Join(selectList, ", ") + " FROM base"
	if where := buildWhere(baselineFilters, cat, "base"); where != "" {
		baselineSQL += " " + where
	}
	baselineSQL += groupClause

	joinKeys := "1=1"
	if len(plan.GroupBy) > 0 {
		keys := make([]string, 0, len(plan.GroupBy))
		for _, dim := range plan.GroupBy {
			keys = append(keys, fmt.Sprintf("c.%s = b.%s", dim, dim))
		}
		joinKeys = strings.Join(keys, " AND ")
	}

	diffExpr := "c.value - b.value AS diff_abs"
	if plan.Compare.Method == nql.MethodDiffPct {
		diffExpr = "CASE WHEN b.value = 0 THEN NULL ELSE (c.value - b.value) * 100.0 / b.value END AS diff_pct"
	}

	cols := make([]string, 0, len(plan.GroupBy)+3)
	for _, dim := range plan.GroupBy {
		cols = append(cols, "c."+dim)
	}
	cols = append(cols, "c.value AS current", "b.value AS baseline", diffExpr)

	sql := fmt.Sprintf(
		"%s, current AS (%s), baseline AS (%s) SELECT %s FROM current c LEFT JOIN baseline b ON %s",
		baseCTE, currentSQL, baselineSQL, strings.Join(cols, ", "), joinKeys,
	)
	if order := orderClause(plan.OrderBy); order != "" {
		sql += " " + order
	}
	return withLimit(sql, plan.Limit), nil
}

// buildTopK aggregates then ranks with ROW_NUMBER partitioned by every
// group-by dimension except the last. The last dimension is the one being
// ranked inside each outer group
func buildTopK(baseCTE string, plan *nql.ResolvedPlan, cat *semantic.Catalog) (string, error) {
	k := plan.TopK.K
	if k < 1 {
		k = 5
	}
	rankBy := plan.TopK.By
	if rankBy == "" {
		rankBy = defaultMetricAlias
	}

	partition := "PARTITION BY 1"
	if len(plan.GroupBy) > 1 {
		partition = "PARTITION BY " + strings.Join(plan.GroupBy[:len(plan.GroupBy)-1], ", ")
	}

	selectParts, groupExprs := dimensionSelects(plan.GroupBy, cat)
	metricExpr := "COUNT(*) AS " + defaultMetricAlias
	if len(plan.Metrics) > 0 {
		if m, ok := cat.Metric(plan.Metrics[0]); ok {
			expr, err := m.SQLExpr()
			if err != nil {
				return "", err
			}
			metricExpr = expr + " AS " + plan.Metrics[0]
		}
	}

	aggSQL := "SELECT " + strings.Join(append(selectParts, metricExpr), ", ") + " FROM base"
	if where := buildWhere(plan.Filters, cat, "base"); where != "" {
		aggSQL += " " + where
	}
	if len(groupExprs) > 0 {
		aggSQL += " GROUP BY " + strings.Join(groupExprs, ", ")
	}

	rankedSQL := fmt.Sprintf(
		"SELECT *, ROW_NUMBER() OVER (%s ORDER BY %s DESC) AS rn FROM (%s) agg",
		partition, rankBy, aggSQL,
	)
	outputCols := strings.Join(append(append([]string{}, plan.GroupBy...), rankBy), ", ")
	sql := fmt.Sprintf("%s, ranked AS (%s) SELECT %s FROM ranked WHERE rn <= %d", baseCTE, rankedSQL, outputCols, k)
	return withLimit(sql, plan.Limit), nil
}

// buildBucket renders distribution buckets. Quantile edges come from an
// edges CTE read back through scalar subqueries; custom edges become a CASE
// ladder over the literal boundaries
func buildBucket(baseCTE string, plan *nql.ResolvedPlan, cat *semantic.Catalog) (string, error) {
	field := plan.Bucket.Field
	fieldExpr := bucketFieldExpr(field, cat)
	where := buildWhere(plan.Filters, cat, "base")

	var sql string
	switch plan.Bucket.Method {
	case nql.BucketQuantile:
		quantiles := plan.Bucket.Params.Q
		if len(quantiles) == 0 {
			quantiles = []float64{0, 0.25, 0.5, 0.75, 1}
		}
		sorted := append([]float64(nil), quantiles...)
		sort.Float64s(sorted)

		edgeCols := make([]string, 0, len(sorted))
		var caseArms []string
		for _, q := range sorted {
			name := fmt.Sprintf("q%d", int(q*100))
			edgeCols = append(edgeCols, fmt.Sprintf(
				"PERCENTILE_DISC(%s) WITHIN GROUP (ORDER BY %s) AS %s", formatFloat(q), fieldExpr, name,
			))
			if q > 0 {
				caseArms = append(caseArms, fmt.Sprintf(
					"WHEN %s <= (SELECT %s FROM edges) THEN '%s'", fieldExpr, name, name,
				))
			}
		}
		edgesSQL := "SELECT " + strings.Join(edgeCols, ", ") + " FROM base"
		if where != "" {
			edgesSQL += " " + where
		}
		bucketExpr := "CASE " + strings.Join(caseArms, " ") + " ELSE 'overflow' END"
		sql = fmt.Sprintf(
			"%s, edges AS (%s) SELECT %s AS bucket, COUNT(*) AS count FROM base",
			baseCTE, edgesSQL, bucketExpr,
		)
		if where != "" {
			sql += " " + where
		}
		sql += " GROUP BY bucket ORDER BY bucket"
	case nql.BucketCustom:
		edges := plan.Bucket.Params.Edges
		if len(edges) == 0 {
			return "", fmt.Errorf("sqlgen: bucket method custom requires params.edges")
		}
		sorted := append([]float64(nil), edges...)
		sort.Float64s(sorted)
		var caseArms []string
		for i, edge := range sorted {
			label := "< " + formatFloat(edge)
			if i > 0 {
				label = formatFloat(sorted[i-1]) + " - " + formatFloat(edge)
			}
			caseArms = append(caseArms, fmt.Sprintf("WHEN %s < %s THEN '%s'", fieldExpr, formatFloat(edge), label))
		}
		bucketExpr := fmt.Sprintf(
			"CASE %s ELSE '>= %s' END", strings.Join(caseArms, " "), formatFloat(sorted[len(sorted)-1]),
		)
		sql = fmt.Sprintf("%s SELECT %s AS bucket, COUNT(*) AS count FROM base", baseCTE, bucketExpr)
		if where != "" {
			sql += " " + where
		}
		sql += " GROUP BY bucket ORDER BY bucket"
	default:
		return "", fmt.Errorf("sqlgen: unsupported bucket method %q", plan.Bucket.Method)
	}
	return withLimit(sql, plan.Limit), nil
}

// buildAggregateV2 renders median/distinct aggregates. A median over the row
// count needs a daily pre-aggregation CTE first; medians and distincts over
// raw columns go direct
func buildAggregateV2(baseCTE string, plan *nql.ResolvedPlan, cat *semantic.Catalog) (string, error) {
	spec := plan.AggregateV2
	selectParts, groupExprs := dimensionSelects(plan.GroupBy, cat)
	where := buildWhere(plan.Filters, cat, "base")

	if spec.MedianOf != "" && isCountMetricName(spec.MedianOf) {
		dailySelect := []string{fmt.Sprintf("DATE_TRUNC('day', base.%s) AS day", semantic.QuoteIdent(cat.DateColumn))}
		dailySelect = append(dailySelect, selectParts...)
		dailySelect = append(dailySelect, "COUNT(*) AS "+defaultMetricAlias)
		dailyGroup := append([]string{"day"}, groupExprs...)

		dailySQL := "SELECT " + strings.Join(dailySelect, ", ") + " FROM base"
		if where != "" {
			dailySQL += " " + where
		}
		dailySQL += " GROUP BY " + strings.Join(dailyGroup, ", ")

		medianSelect := append([]string{}, plan.GroupBy...)
		medianSelect = append(medianSelect, fmt.Sprintf(
			"PERCENTILE_DISC(0.5) WITHIN GROUP (ORDER BY %s) AS median_%s", defaultMetricAlias, defaultMetricAlias,
		))
		sql := fmt.Sprintf(
			"%s, daily AS (%s) SELECT %s FROM daily", baseCTE, dailySQL, strings.Join(medianSelect, ", "),
		)
		if len(plan.GroupBy) > 0 {
			sql += " GROUP BY " + strings.Join(plan.GroupBy, ", ")
		}
		return withLimit(sql, plan.Limit), nil
	}

	var aggExprs []string
	if spec.MedianOf != "" {
		col := columnExpr(spec.MedianOf)
		aggExprs = append(aggExprs, fmt.Sprintf(
			"PERCENTILE_DISC(0.5) WITHIN GROUP (ORDER BY %s) AS median_%s", col, aliasSafe(spec.MedianOf),
		))
	}
	if spec.DistinctOf != "" {
		col := columnExpr(spec.DistinctOf)
		fn := "COUNT(DISTINCT %s)"
		if spec.Estimator == nql.EstimatorApprox {
			fn = "APPROX_COUNT_DISTINCT(%s)"
		}
		aggExprs = append(aggExprs, fmt.Sprintf(fn+" AS distinct_%s", col, aliasSafe(spec.DistinctOf)))
	}
	if len(aggExprs) == 0 {
		return "", fmt.Errorf("sqlgen: aggregate_v2 requires median_of or distinct_of")
	}

	sql := baseCTE + " SELECT " + strings.Join(append(selectParts, aggExprs...), ", ") + " FROM base"
	if where != "" {
		sql += " " + where
	}
	if len(groupExprs) > 0 {
		sql += " GROUP BY " + strings.Join(groupExprs, ", ")
	}
	return withLimit(sql, plan.Limit), nil
}

func dimensionSelects(groupBy []string, cat *semantic.Catalog) (selectParts, groupExprs []string) {
	for _, dim := range groupBy {
		expr := dimExpr(dim, cat, "base")
		selectParts = append(selectParts, expr+" AS "+dim)
		groupExprs = append(groupExprs, expr)
	}
	return selectParts, groupExprs
}

func metricSelects(plan *nql.ResolvedPlan, cat *semantic.Catalog) (exprs, aliases []string, err error) {
	if plan.Aggregate == nql.AggCount {
		return []string{"COUNT(*) AS count"}, []string{"count"}, nil
	}
	for _, metric := range plan.Metrics {
		if metric == "count" || metric == "*" {
			exprs = append(exprs, "COUNT(*) AS count")
			aliases = append(aliases, "count")
			continue
		}
		m, ok := cat.Metric(metric)
		if !ok {
			return nil, nil, fmt.Errorf("sqlgen: unknown metric %q", metric)
		}
		expr, err := m.SQLExpr()
		if err != nil {
			return nil, nil, err
		}
		exprs = append(exprs, expr+" AS "+metric)
		aliases = append(aliases, metric)
	}
	if len(exprs) == 0 {
		exprs = append(exprs, "COUNT(*) AS "+defaultMetricAlias)
		aliases = append(aliases, defaultMetricAlias)
	}
	return exprs, aliases, nil
}

func compareMetric(plan *nql.ResolvedPlan, cat *semantic.Catalog) (alias, expr string, err error) {
	alias, expr = defaultMetricAlias, "COUNT(*)"
	if len(plan.Metrics) == 0 {
		return alias, expr, nil
	}
	name := plan.Metrics[0]
	if name == "count" || name == "*" {
		return alias, expr, nil
	}
	m, ok := cat.Metric(name)
	if !ok {
		return alias, expr, nil
	}
	sqlExpr, err := m.SQLExpr()
	if err != nil {
		return "", "", err
	}
	return name, sqlExpr, nil
}

// buildWhere renders the filter list to a WHERE clause, or "" when nothing
// applies. Month filters hit the derived month column; RawDateField filters
// hit the raw date column; unknown fields are skipped
func buildWhere(filters []nql.PlanFilter, cat *semantic.Catalog, alias string) string {
	var clauses []string
	for _, f := range filters {
		switch {
		case f.Field == "month":
			if c := monthClause(f, cat, alias); c != "" {
				clauses = append(clauses, c)
			}
		case f.Field == RawDateField:
			if c := rawDateClause(f, cat, alias); c != "" {
				clauses = append(clauses, c)
			}
		default:
			dim, ok := cat.Dimension(f.Field)
			if !ok {
				continue
			}
			if c := dimensionClause(f, dim, alias); c != "" {
				clauses = append(clauses, c)
			}
		}
	}
	if len(clauses) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(clauses, " AND ")
}

func monthClause(f nql.PlanFilter, cat *semantic.Catalog, alias string) string {
	expr := dimExpr("month", cat, alias)
	values := stringValues(f.Value)
	switch {
	case len(values) >= 2 && values[0] != "" && values[1] != "":
		start, end := values[0], values[1]
		if sameDate(start, end) {
			return fmt.Sprintf("%s = DATE '%s'", expr, start)
		}
		return fmt.Sprintf("%s >= DATE '%s' AND %s < DATE '%s'", expr, start, expr, end)
	case len(values) == 1 && values[0] != "":
		if f.Op == ">=" || f.Op == ">" || f.Op == "<" || f.Op == "<=" {
			return fmt.Sprintf("%s %s DATE '%s'", expr, f.Op, values[0])
		}
		return fmt.Sprintf("%s = DATE '%s'", expr, values[0])
	}
	return ""
}

func rawDateClause(f nql.PlanFilter, cat *semantic.Catalog, alias string) string {
	prefix := ""
	if alias != "" {
		prefix = alias + "."
	}
	col := prefix + semantic.QuoteIdent(cat.DateColumn)
	values := stringValues(f.Value)
	if len(values) == 2 && values[0] != "" && values[1] != "" {
		return fmt.Sprintf("%s >= DATE '%s' AND %s < DATE '%s'", col, values[0], col, values[1])
	}
	return ""
}

func dimensionClause(f nql.PlanFilter, dim semantic.Dimension, alias string) string {
	expr := dim.SQLExpr(alias)
	op := strings.ToLower(f.Op)
	switch op {
	case "in", "not_in":
		list, ok := f.Value.([]any)
		if !ok || len(list) == 0 {
			return ""
		}
		literals := make([]string, 0, len(list))
		for _, v := range list {
			literals = append(literals, formatLiteral(v))
		}
		kw := "IN"
		if op == "not_in" {
			kw = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", expr, kw, strings.Join(literals, ", "))
	case "between":
		list, ok := f.Value.([]any)
		if !ok || len(list) != 2 {
			return ""
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s", expr, formatLiteral(list[0]), formatLiteral(list[1]))
	case "like_any":
		list, ok := f.Value.([]any)
		if !ok {
			return ""
		}
		var likes []string
		for _, v := range list {
			s, _ := v.(string)
			if s == "" {
				continue
			}
			likes = append(likes, fmt.Sprintf("LOWER(%s) LIKE %s", expr, formatLiteral(strings.ToLower(s))))
		}
		if len(likes) == 0 {
			return ""
		}
		return "(" + strings.Join(likes, " OR ") + ")"
	default:
		return fmt.Sprintf("%s %s %s", expr, strings.ToUpper(f.Op), formatLiteral(f.Value))
	}
}

func dimExpr(name string, cat *semantic.Catalog, alias string) string {
	if dim, ok := cat.Dimension(name); ok {
		return dim.SQLExpr(alias)
	}
	prefix := ""
	if alias != "" {
		prefix = alias + "."
	}
	return prefix + semantic.QuoteIdent(name)
}

func bucketFieldExpr(field string, cat *semantic.Catalog) string {
	if dim, ok := cat.Dimension(field); ok {
		return dim.SQLExpr("")
	}
	return columnExpr(field)
}

func columnExpr(name string) string {
	if strings.Contains(name, " ") {
		return semantic.QuoteIdent(name)
	}
	return name
}

func aliasSafe(name string) string {
	return strings.ReplaceAll(name, " ", "_")
}

func isCountMetricName(name string) bool {
	switch strings.ToLower(name) {
	case "incidents", "count", "events":
		return true
	}
	return false
}

// effectiveOrder applies the ordering defaults: ascending month (with the
// panel dimension as secondary key) when time is grouped or compared,
// otherwise the caller's explicit keys
func effectiveOrder(plan *nql.ResolvedPlan) []nql.OrderKey {
	if len(plan.OrderBy) > 0 {
		return plan.OrderBy
	}
	if contains(plan.GroupBy, "month") {
		order := []nql.OrderKey{{Field: "month", Dir: nql.SortAsc}}
		if plan.PanelBy != "" && contains(plan.GroupBy, plan.PanelBy) {
			order = append(order, nql.OrderKey{Field: plan.PanelBy, Dir: nql.SortAsc})
		}
		return order
	}
	if plan.Compare != nil && (plan.Compare.Type == nql.CompareMoM || plan.Compare.Type == nql.CompareYoY) {
		return []nql.OrderKey{{Field: "month", Dir: nql.SortAsc}}
	}
	if plan.PanelBy != "" && contains(plan.GroupBy, plan.PanelBy) {
		return []nql.OrderKey{{Field: plan.PanelBy, Dir: nql.SortAsc}}
	}
	return nil
}

func orderClause(order []nql.OrderKey) string {
	if len(order) == 0 {
		return ""
	}
	parts := make([]string, 0, len(order))
	for _, key := range order {
		dir := strings.ToUpper(string(key.Dir))
		if dir == "" {
			dir = "DESC"
		}
		parts = append(parts, key.Field+" "+dir)
	}
	return "ORDER BY " + strings.Join(parts, ", ")
}

func partitionClause(groupBy []string) string {
	var dims []string
	for _, dim := range groupBy {
		if dim != "month" {
			dims = append(dims, dim)
		}
	}
	if len(dims) == 0 {
		return "PARTITION BY 1"
	}
	return "PARTITION BY " + strings.Join(dims, ", ")
}

// spliceMonthFilter replaces the first month filter with the widened window
// and drops any further month filters
func spliceMonthFilter(filters []nql.PlanFilter, window nql.PlanFilter) []nql.PlanFilter {
	out := make([]nql.PlanFilter, 0, len(filters)+1)
	replaced := false
	for _, f := range filters {
		if f.Field == "month" {
			if !replaced {
				out = append(out, window)
				replaced = true
			}
			continue
		}
		out = append(out, f)
	}
	if !replaced {
		out = append(out, window)
	}
	return out
}

func monthFilters(filters []nql.PlanFilter) []nql.PlanFilter {
	var out []nql.PlanFilter
	for _, f := range filters {
		if f.Field == "month" {
			out = append(out, f)
		}
	}
	return out
}

func dropMonthFilters(filters []nql.PlanFilter) []nql.PlanFilter {
	out := make([]nql.PlanFilter, 0, len(filters))
	for _, f := range filters {
		if f.Field != "month" {
			out = append(out, f)
		}
	}
	return out
}

// shiftMonthFilters moves every month range back by deltaMonths, leaving
// filters it cannot parse untouched
func shiftMonthFilters(filters []nql.PlanFilter, deltaMonths int) []nql.PlanFilter {
	out := make([]nql.PlanFilter, 0, len(filters))
	for _, f := range filters {
		if f.Field != "month" {
			out = append(out, f)
			continue
		}
		values := stringValues(f.Value)
		if len(values) < 2 || values[0] == "" {
			out = append(out, f)
			continue
		}
		start, err := nql.ParseISODate(values[0])
		if err != nil {
			out = append(out, f)
			continue
		}
		shiftedStart := nql.AddMonths(nql.MonthStart(start), deltaMonths)
		shiftedEnd := nql.AddMonths(shiftedStart, 1)
		op := f.Op
		if op == "" {
			op = "between"
		}
		out = append(out, nql.PlanFilter{
			Field: "month",
			Op:    op,
			Value: []string{nql.FormatDate(shiftedStart), nql.FormatDate(shiftedEnd)},
		})
	}
	return out
}

// isSingleMonthEquality reports whether the month filter pins exactly one
// month, either by equality or by a [start, start+1) range
func isSingleMonthEquality(filters []nql.PlanFilter) bool {
	for _, f := range filters {
		if f.Field != "month" {
			continue
		}
		if f.Op == "=" && f.Value != nil {
			return true
		}
		values := stringValues(f.Value)
		if len(values) == 1 && values[0] != "" {
			return true
		}
		if len(values) >= 2 && values[0] != "" && values[1] != "" {
			start, errA := time.Parse("2006-01-02", values[0])
			end, errB := time.Parse("2006-01-02", values[1])
			if errA != nil || errB != nil {
				continue
			}
			if nql.AddMonths(start, 1).Equal(end) {
				return true
			}
		}
	}
	return false
}

func sameDate(a, b string) bool {
	if a == b {
		return true
	}
	da, errA := nql.ParseISODate(a)
	db, errB := nql.ParseISODate(b)
	return errA == nil && errB == nil && da.Equal(db)
}

// stringValues normalizes a filter value to a string slice, tolerating the
// []any shape JSON decoding produces
func stringValues(value any) []string {
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

func formatLiteral(value any) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return formatFloat(v)
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	default:
		escaped := strings.ReplaceAll(fmt.Sprint(v), "'", "''")
		return "'" + escaped + "'"
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func withLimit(sql string, limit int) string {
	if limit > 0 {
		return sql + " LIMIT " + strconv.Itoa(limit)
	}
	return sql
}

func contains(list []string, want string) bool {
	for _, item := range list {
		if item == want {
			return true
		}
	}
	return false
}
