// Package nql defines the typed intermediate representation for analytics
// queries, its strict decoder, the critic validator, and the plan compiler
package nql

// Closed variant sets are typed strings with exhaustive Valid checks so the
// decoder rejects new variants until every consumer handles them

// Intent classifies what the caller is asking for
type Intent string

// Intent variants
const (
	IntentAggregate    Intent = "aggregate"
	IntentDetail       Intent = "detail"
	IntentTrend        Intent = "trend"
	IntentCompare      Intent = "compare"
	IntentRank         Intent = "rank"
	IntentDistribution Intent = "distribution"
)

// Valid reports whether the intent is a known variant
func (i Intent) Valid() bool {
	switch i {
	case IntentAggregate, IntentDetail, IntentTrend, IntentCompare, IntentRank, IntentDistribution:
		return true
	}
	return false
}

// MetricAgg is the aggregation applied to a metric
type MetricAgg string

// MetricAgg variants
const (
	AggCount         MetricAgg = "count"
	AggSum           MetricAgg = "sum"
	AggAvg           MetricAgg = "avg"
	AggMin           MetricAgg = "min"
	AggMax           MetricAgg = "max"
	AggDistinctCount MetricAgg = "distinct_count"
	AggCountDistinct MetricAgg = "count_distinct"
)

// Valid reports whether the aggregation is a known variant
func (a MetricAgg) Valid() bool {
	switch a {
	case AggCount, AggSum, AggAvg, AggMin, AggMax, AggDistinctCount, AggCountDistinct:
		return true
	}
	return false
}

// FilterOp is the comparison operator of a filter
type FilterOp string

// FilterOp variants
const (
	OpEq      FilterOp = "="
	OpNeq     FilterOp = "!="
	OpGt      FilterOp = ">"
	OpGte     FilterOp = ">="
	OpLt      FilterOp = "<"
	OpLte     FilterOp = "<="
	OpBetween FilterOp = "between"
	OpIn      FilterOp = "in"
	OpNotIn   FilterOp = "not_in"
	OpLike    FilterOp = "like"
	OpILike   FilterOp = "ilike"
	OpLikeAny FilterOp = "like_any"
	OpRegex   FilterOp = "regex"
)

// Valid reports whether the operator is a known variant
func (o FilterOp) Valid() bool {
	switch o {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpBetween, OpIn, OpNotIn, OpLike, OpILike, OpLikeAny, OpRegex:
		return true
	}
	return false
}

// Pattern reports whether the operator carries a LIKE-family pattern whose
// value must pass through untouched
func (o FilterOp) Pattern() bool {
	return o == OpLike || o == OpILike || o == OpLikeAny
}

// FilterType is the declared type of a filter value
type FilterType string

// FilterType variants
const (
	TypeText    FilterType = "text"
	TypeTextRaw FilterType = "text_raw"
	TypeNumber  FilterType = "number"
	TypeDate    FilterType = "date"
	TypeCat     FilterType = "category"
)

// Valid reports whether the filter type is a known variant
func (t FilterType) Valid() bool {
	switch t {
	case TypeText, TypeTextRaw, TypeNumber, TypeDate, TypeCat:
		return true
	}
	return false
}

// TimeGrain is the requested time granularity
type TimeGrain string

// TimeGrain variants
const (
	GrainDay     TimeGrain = "day"
	GrainWeek    TimeGrain = "week"
	GrainMonth   TimeGrain = "month"
	GrainQuarter TimeGrain = "quarter"
	GrainYear    TimeGrain = "year"
)

// Valid reports whether the grain is a known variant
func (g TimeGrain) Valid() bool {
	switch g {
	case GrainDay, GrainWeek, GrainMonth, GrainQuarter, GrainYear:
		return true
	}
	return false
}

// WindowType is the tagged variant of a time window
type WindowType string

// WindowType variants
const (
	WindowSingleMonth    WindowType = "single_month"
	WindowAbsolute       WindowType = "absolute"
	WindowQuarter        WindowType = "quarter"
	WindowRelativeMonths WindowType = "relative_months"
	WindowYTD            WindowType = "ytd"
)

// Valid reports whether the window type is a known variant
func (w WindowType) Valid() bool {
	switch w {
	case WindowSingleMonth, WindowAbsolute, WindowQuarter, WindowRelativeMonths, WindowYTD:
		return true
	}
	return false
}

// CompareType is the period-over-period compare variant
type CompareType string

// CompareType variants
const (
	CompareMoM CompareType = "mom"
	CompareYoY CompareType = "yoy"
	CompareWoW CompareType = "wow"
	CompareDoD CompareType = "dod"
)

// Valid reports whether the compare type is a known variant
func (c CompareType) Valid() bool {
	switch c {
	case CompareMoM, CompareYoY, CompareWoW, CompareDoD:
		return true
	}
	return false
}

// Periods returns the LAG distance in months for the compare type
func (c CompareType) Periods() int {
	if c == CompareYoY {
		return 12
	}
	return 1
}

// CompareMode selects what axis a compare runs over
type CompareMode string

// CompareMode variants
const (
	ModeTime      CompareMode = "time"
	ModeDimension CompareMode = "dimension"
	ModeMetric    CompareMode = "metric"
)

// Valid reports whether the mode is a known variant
func (m CompareMode) Valid() bool {
	switch m {
	case ModeTime, ModeDimension, ModeMetric:
		return true
	}
	return false
}

// CompareBaseline is the reference window a compare measures against
type CompareBaseline string

// CompareBaseline variants
const (
	BaselinePreviousPeriod CompareBaseline = "previous_period"
	BaselineLastYear       CompareBaseline = "same_period_last_year"
	BaselineAbsolute       CompareBaseline = "absolute"
)

// Valid reports whether the baseline is a known variant
func (b CompareBaseline) Valid() bool {
	switch b {
	case BaselinePreviousPeriod, BaselineLastYear, BaselineAbsolute:
		return true
	}
	return false
}

// CompareMethod is how the compare difference is expressed
type CompareMethod string

// CompareMethod variants
const (
	MethodDiffAbs CompareMethod = "diff_abs"
	MethodDiffPct CompareMethod = "diff_pct"
)

// Valid reports whether the method is a known variant
func (m CompareMethod) Valid() bool {
	return m == MethodDiffAbs || m == MethodDiffPct
}

// BucketMethod selects how bucket edges are derived
type BucketMethod string

// BucketMethod variants
const (
	BucketQuantile BucketMethod = "quantile"
	BucketCustom   BucketMethod = "custom"
)

// Valid reports whether the bucket method is a known variant
func (b BucketMethod) Valid() bool {
	return b == BucketQuantile || b == BucketCustom
}

// Estimator selects exact or approximate aggregation
type Estimator string

// Estimator variants
const (
	EstimatorExact  Estimator = "exact"
	EstimatorApprox Estimator = "approx"
)

// Valid reports whether the estimator is a known variant
func (e Estimator) Valid() bool {
	return e == EstimatorExact || e == EstimatorApprox
}

// SortDir is a sort direction
type SortDir string

// SortDir variants
const (
	SortAsc  SortDir = "asc"
	SortDesc SortDir = "desc"
)

// Valid reports whether the direction is a known variant
func (d SortDir) Valid() bool {
	return d == SortAsc || d == SortDesc
}

// Metric is one requested measure
type Metric struct {
	Name  string    `json:"name" validate:"required"`
	Agg   MetricAgg `json:"agg"`
	Alias string    `json:"alias" validate:"required"`
}

// Filter is one predicate over a dimension or the month column
type Filter struct {
	Field string     `json:"field" validate:"required"`
	Op    FilterOp   `json:"op"`
	Value any        `json:"value"`
	Type  FilterType `json:"type"`
	Notes string     `json:"notes,omitempty"`
}

// TimeWindow is the tagged time-window variant
type TimeWindow struct {
	Type         WindowType `json:"type"`
	Start        string     `json:"start,omitempty"`
	End          string     `json:"end,omitempty"`
	ExclusiveEnd bool       `json:"exclusive_end,omitempty"`
	N            *int       `json:"n,omitempty" validate:"omitempty,gte=1"`
}

// TimeSpec carries grain, window, and timezone
type TimeSpec struct {
	Grain  TimeGrain  `json:"grain"`
	Window TimeWindow `json:"window"`
	TZ     string     `json:"tz,omitempty"`
}

// CompareInternalWindow marks that the prior period must be aggregated from
// an expanded window invisible in the result
type CompareInternalWindow struct {
	ExpandPrior bool `json:"expand_prior"`
}

// CompareSpec describes a comparison request
type CompareSpec struct {
	Type           CompareType            `json:"type,omitempty"`
	Baseline       CompareBaseline        `json:"baseline,omitempty"`
	InternalWindow *CompareInternalWindow `json:"internal_window,omitempty"`
	Mode           CompareMode            `json:"mode,omitempty"`
	LHSTime        string                 `json:"lhs_time,omitempty"`
	RHSTime        string                 `json:"rhs_time,omitempty"`
	Dimension      string                 `json:"dimension,omitempty"`
	Start          string                 `json:"start,omitempty"`
	End            string                 `json:"end,omitempty"`
	Method         CompareMethod          `json:"method,omitempty"`
}

// BucketParams parameterizes a bucket spec
type BucketParams struct {
	Q     []float64 `json:"q,omitempty"`
	Edges []float64 `json:"edges,omitempty"`
}

// BucketSpec requests value bucketing
type BucketSpec struct {
	Field  string       `json:"field" validate:"required"`
	Method BucketMethod `json:"method"`
	Params BucketParams `json:"params,omitempty"`
}

// AggregateSpec is the v0.2 median/distinct aggregate request
type AggregateSpec struct {
	MedianOf   string    `json:"median_of,omitempty"`
	DistinctOf string    `json:"distinct_of,omitempty"`
	Estimator  Estimator `json:"estimator,omitempty"`
}

// TopKSpec requests top-k rows within each group
type TopKSpec struct {
	K  int    `json:"k" validate:"gte=1"`
	By string `json:"by" validate:"required"`
}

// Flags carries normalization toggles and the caller's row-cap hint
type Flags struct {
	Trend                   *bool `json:"trend,omitempty"`
	StrictJSON              bool  `json:"strict_json"`
	RequireGroupingForTrend bool  `json:"require_grouping_for_trend"`
	LikePassthrough         bool  `json:"like_passthrough"`
	SingleMonthEquals       bool  `json:"single_month_equals"`
	QuarterExclusiveEnd     bool  `json:"quarter_exclusive_end"`
	RowcapHint              int   `json:"rowcap_hint"`
}

// Provenance records where the query came from and what the critic did to it
type Provenance struct {
	Utterance      string   `json:"utterance,omitempty"`
	RetrievalNotes []string `json:"retrieval_notes,omitempty"`
	Confidence     *float64 `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
	CriticPass     []string `json:"critic_pass,omitempty"`
}

// SortSpec is one ordering key
type SortSpec struct {
	By  string  `json:"by" validate:"required"`
	Dir SortDir `json:"dir"`
}

// Query is the NQL intermediate representation. It is immutable once
// validated; the validator always works on a deep copy
type Query struct {
	NQLVersion      string         `json:"nql_version" validate:"required,oneof=0.1 0.2"`
	Intent          Intent         `json:"intent"`
	Dataset         string         `json:"dataset" validate:"required"`
	Metrics         []Metric       `json:"metrics"`
	Aggregate       MetricAgg      `json:"aggregate,omitempty"`
	Time            TimeSpec       `json:"time"`
	Dimensions      []string       `json:"dimensions,omitempty"`
	Filters         []Filter       `json:"filters,omitempty"`
	Compare         *CompareSpec   `json:"compare,omitempty"`
	GroupBy         []string       `json:"group_by,omitempty"`
	PanelBy         string         `json:"panel_by,omitempty"`
	Sort            []SortSpec     `json:"sort,omitempty"`
	Limit           int            `json:"limit" validate:"gte=1"`
	Bucket          *BucketSpec    `json:"bucket,omitempty"`
	AggregateV2     *AggregateSpec `json:"aggregate_v2,omitempty"`
	TopKWithinGroup *TopKSpec      `json:"top_k_within_group,omitempty"`
	Flags           Flags          `json:"flags"`
	Provenance      Provenance     `json:"provenance"`
}

// DefaultQuery returns a Query pre-populated with the schema defaults so a
// JSON decode over it leaves absent fields at their documented values
func DefaultQuery() *Query {
	return &Query{
		Limit: 100,
		Time:  TimeSpec{TZ: "America/Chicago"},
		Flags: Flags{
			StrictJSON:              true,
			RequireGroupingForTrend: true,
			LikePassthrough:         true,
			SingleMonthEquals:       true,
			QuarterExclusiveEnd:     true,
			RowcapHint:              10000,
		},
	}
}

// Clone returns a deep copy of the query
func (q *Query) Clone() *Query {
	if q == nil {
		return nil
	}
	out := *q
	out.Metrics = append([]Metric(nil), q.Metrics...)
	out.Dimensions = append([]string(nil), q.Dimensions...)
	out.GroupBy = append([]string(nil), q.GroupBy...)
	out.Sort = append([]SortSpec(nil), q.Sort...)
	out.Filters = append([]Filter(nil), q.Filters...)
	if q.Time.Window.N != nil {
		n := *q.Time.Window.N
		out.Time.Window.N = &n
	}
	if q.Compare != nil {
		c := *q.Compare
		if q.Compare.InternalWindow != nil {
			iw := *q.Compare.InternalWindow
			c.InternalWindow = &iw
		}
		out.Compare = &c
	}
	if q.Bucket != nil {
		b := *q.Bucket
		b.Params.Q = append([]float64(nil), q.Bucket.Params.Q...)
		b.Params.Edges = append([]float64(nil), q.Bucket.Params.Edges...)
		out.Bucket = &b
	}
	if q.AggregateV2 != nil {
		a := *q.AggregateV2
		out.AggregateV2 = &a
	}
	if q.TopKWithinGroup != nil {
		tk := *q.TopKWithinGroup
		out.TopKWithinGroup = &tk
	}
	if q.Flags.Trend != nil {
		tr := *q.Flags.Trend
		out.Flags.Trend = &tr
	}
	if q.Provenance.Confidence != nil {
		cf := *q.Provenance.Confidence
		out.Provenance.Confidence = &cf
	}
	out.Provenance.RetrievalNotes = append([]string(nil), q.Provenance.RetrievalNotes...)
	out.Provenance.CriticPass = append([]string(nil), q.Provenance.CriticPass...)
	return &out
}

// checkEnums validates every closed variant set on the query.
// Empty optional enums are allowed; present values must be known variants
func (q *Query) checkEnums() error {
	if !q.Intent.Valid() {
		return validationErrf("intent %q is not a known intent", q.Intent)
	}
	if q.Aggregate != "" && !q.Aggregate.Valid() {
		return validationErrf("aggregate %q is not a known aggregation", q.Aggregate)
	}
	for _, m := range q.Metrics {
		if !m.Agg.Valid() {
			return validationErrf("metric %q: agg %q is not a known aggregation", m.Name, m.Agg)
		}
	}
	if !q.Time.Grain.Valid() {
		return validationErrf("time.grain %q is not a known grain", q.Time.Grain)
	}
	if !q.Time.Window.Type.Valid() {
		return validationErrf("time.window.type %q is not a known window type", q.Time.Window.Type)
	}
	for _, f := range q.Filters {
		if !f.Op.Valid() {
			return validationErrf("filter %q: op %q is not a known operator", f.Field, f.Op)
		}
		if !f.Type.Valid() {
			return validationErrf("filter %q: type %q is not a known filter type", f.Field, f.Type)
		}
	}
	if c := q.Compare; c != nil {
		if c.Type != "" && !c.Type.Valid() {
			return validationErrf("compare.type %q is not a known compare type", c.Type)
		}
		if c.Mode != "" && !c.Mode.Valid() {
			return validationErrf("compare.mode %q is not a known compare mode", c.Mode)
		}
		if c.Baseline != "" && !c.Baseline.Valid() {
			return validationErrf("compare.baseline %q is not a known baseline", c.Baseline)
		}
		if c.Method != "" && !c.Method.Valid() {
			return validationErrf("compare.method %q is not a known method", c.Method)
		}
	}
	for _, s := range q.Sort {
		if !s.Dir.Valid() {
			return validationErrf("sort %q: dir %q is not a known direction", s.By, s.Dir)
		}
	}
	if q.Bucket != nil && !q.Bucket.Method.Valid() {
		return validationErrf("bucket.method %q is not a known bucket method", q.Bucket.Method)
	}
	if q.AggregateV2 != nil && q.AggregateV2.Estimator != "" && !q.AggregateV2.Estimator.Valid() {
		return validationErrf("aggregate_v2.estimator %q is not a known estimator", q.AggregateV2.Estimator)
	}
	return nil
}
