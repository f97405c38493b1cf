package nql

import "time"

// Compile lowers a validated query into a Plan. The time window becomes one
// month filter appended after the caller's other filters; group_by and
// dimensions merge order-preserving; trend queries default to ascending month
// order. Compile works on a clone and never mutates the caller's query
func Compile(q *Query, today time.Time) (*Plan, error) {
	src := q.Clone()

	timeFilter, err := compileTimeFilter(src, today)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		Metrics:   make([]string, 0, len(src.Metrics)),
		GroupBy:   compileGroupBy(src),
		OrderBy:   compileSort(src),
		Limit:     src.Limit,
		Aggregate: src.Aggregate,
		Compare:   compileCompare(src),
		Source:    src,
	}
	for _, m := range src.Metrics {
		plan.Metrics = append(plan.Metrics, m.Alias)
	}
	for _, f := range src.Filters {
		if f.Field == "month" {
			continue
		}
		plan.Filters = append(plan.Filters, PlanFilter{Field: f.Field, Op: string(f.Op), Value: f.Value})
	}
	plan.Filters = append(plan.Filters, timeFilter)

	if src.NQLVersion == "0.2" {
		plan.PanelBy = src.PanelBy
		plan.Bucket = src.Bucket
		plan.AggregateV2 = src.AggregateV2
		plan.TopK = src.TopKWithinGroup
	}

	info := &CompileInfo{GroupBy: append([]string(nil), src.GroupBy...)}
	if len(src.Metrics) > 0 {
		info.MetricAlias = src.Metrics[0].Alias
	}
	plan.CompileInfo = info
	plan.Extras = Extras{
		RowcapHint:  src.Flags.RowcapHint,
		NQLCompiled: true,
		CriticPass:  append([]string(nil), src.Provenance.CriticPass...),
		CompileInfo: info,
	}
	return plan, nil
}

func compileTimeFilter(q *Query, today time.Time) (PlanFilter, error) {
	window := &q.Time.Window
	const timeField = "month"
	switch window.Type {
	case WindowSingleMonth:
		start, err := parseWindowDate(window.Start, "single_month.start")
		if err != nil {
			return PlanFilter{}, err
		}
		end := AddMonths(start, 1)
		if window.End == "" {
			window.End = FormatDate(end)
		}
		window.ExclusiveEnd = true
		return betweenMonths(timeField, start, end), nil
	case WindowQuarter:
		start, err := parseWindowDate(window.Start, "quarter.start")
		if err != nil {
			return PlanFilter{}, err
		}
		end, err := parseWindowDate(window.End, "quarter.end")
		if err != nil {
			return PlanFilter{}, err
		}
		return betweenMonths(timeField, start, end), nil
	case WindowAbsolute:
		start, err := parseWindowDate(window.Start, "absolute.start")
		if err != nil {
			return PlanFilter{}, err
		}
		if window.End != "" {
			end, err := parseWindowDate(window.End, "absolute.end")
			if err != nil {
				return PlanFilter{}, err
			}
			return betweenMonths(timeField, start, end), nil
		}
		return PlanFilter{Field: timeField, Op: ">=", Value: FormatDate(start)}, nil
	case WindowRelativeMonths:
		end := MonthStart(today)
		if window.End != "" {
			parsed, err := parseWindowDate(window.End, "relative_months.end")
			if err != nil {
				return PlanFilter{}, err
			}
			end = parsed
		}
		months := 12
		if window.N != nil {
			months = *window.N
		}
		return betweenMonths(timeField, AddMonths(end, -months), end), nil
	case WindowYTD:
		end := AddMonths(MonthStart(today), 1)
		if window.End != "" {
			parsed, err := parseWindowDate(window.End, "ytd.end")
			if err != nil {
				return PlanFilter{}, err
			}
			end = parsed
		}
		var start time.Time
		if window.Start != "" {
			parsed, err := parseWindowDate(window.Start, "ytd.start")
			if err != nil {
				return PlanFilter{}, err
			}
			start = parsed
		} else {
			year := end.Year()
			if end.Month() == time.January {
				year--
			}
			start = time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		}
		return betweenMonths(timeField, start, end), nil
	}
	return PlanFilter{}, validationErrf("unsupported time window type %q", window.Type)
}

func betweenMonths(field string, start, end time.Time) PlanFilter {
	return PlanFilter{Field: field, Op: "between", Value: []string{FormatDate(start), FormatDate(end)}}
}

func compileGroupBy(q *Query) []string {
	ordered := make([]string, 0, len(q.GroupBy)+len(q.Dimensions))
	seen := make(map[string]bool)
	for _, dim := range append(append([]string{}, q.GroupBy...), q.Dimensions...) {
		if dim == "" || seen[dim] {
			continue
		}
		ordered = append(ordered, dim)
		seen[dim] = true
	}
	return ordered
}

func compileSort(q *Query) []OrderKey {
	if len(q.Sort) == 0 {
		if q.Intent == IntentTrend {
			return []OrderKey{{Field: "month", Dir: SortAsc}}
		}
		return nil
	}
	out := make([]OrderKey, 0, len(q.Sort))
	for _, s := range q.Sort {
		out = append(out, OrderKey{Field: s.By, Dir: s.Dir})
	}
	return out
}

func compileCompare(q *Query) *PlanCompare {
	c := q.Compare
	if c == nil {
		return nil
	}
	out := &PlanCompare{Mode: c.Mode, Baseline: c.Baseline}
	if c.Mode == ModeTime {
		out.LHSTime = c.LHSTime
		out.RHSTime = c.RHSTime
	}
	if c.Mode == ModeDimension {
		out.Dimension = c.Dimension
	}
	if c.Type != "" {
		out.Type = c.Type
		out.Periods = c.Type.Periods()
	}
	if q.NQLVersion == "0.2" {
		out.Start = c.Start
		out.End = c.End
		out.Method = c.Method
	}
	if c.InternalWindow != nil {
		iw := *c.InternalWindow
		out.InternalWindow = &iw
	}
	if *out == (PlanCompare{}) {
		return nil
	}
	return out
}
