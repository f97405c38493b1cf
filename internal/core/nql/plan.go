package nql

// Plan is the compiled form consumed by the resolver and the SQL builder.
// Metrics are flattened to their aliases and the time window is lowered to a
// single month filter
type Plan struct {
	Metrics     []string
	GroupBy     []string
	Filters     []PlanFilter
	OrderBy     []OrderKey
	Limit       int
	Aggregate   MetricAgg
	Compare     *PlanCompare
	PanelBy     string
	Bucket      *BucketSpec
	AggregateV2 *AggregateSpec
	TopK        *TopKSpec
	CompileInfo *CompileInfo
	Extras      Extras

	// Source is the normalized query the plan was compiled from. Guardrail
	// decisions read it; the builder never does
	Source *Query
}

// PlanFilter is one lowered predicate. Op is a free string because legacy
// plans carry operators ("not like", "contains") outside the NQL closed set
type PlanFilter struct {
	Field string
	Op    string
	Value any
}

// OrderKey is one ordering key of the lowered plan
type OrderKey struct {
	Field string
	Dir   SortDir
}

// PlanCompare is the lowered comparison request. Periods is the LAG distance
// derived from Type
type PlanCompare struct {
	Mode           CompareMode
	LHSTime        string
	RHSTime        string
	Dimension      string
	Type           CompareType
	Periods        int
	Baseline       CompareBaseline
	Start          string
	End            string
	Method         CompareMethod
	InternalWindow *CompareInternalWindow
}

// CompileInfo carries the hints downstream renderers key off
type CompileInfo struct {
	MetricAlias string
	GroupBy     []string
}

// Extras is the diagnostic side channel attached to every compiled plan
type Extras struct {
	RowcapHint   int
	NQLCompiled  bool
	CriticPass   []string
	CompileInfo  *CompileInfo
	ShareOfTotal bool
}

// ResolvedPlan is a plan after value resolution: metrics and dimensions are
// known to exist in the catalog, filter values are canonical or dataset
// values, and a mom compare over a single month carries the widened
// InternalWindow month filter the builder aggregates across
type ResolvedPlan struct {
	Metrics         []string
	GroupBy         []string
	Filters         []PlanFilter
	OrderBy         []OrderKey
	Limit           int
	Aggregate       MetricAgg
	Compare         *PlanCompare
	PanelBy         string
	Bucket          *BucketSpec
	AggregateV2     *AggregateSpec
	TopK            *TopKSpec
	InternalWindow  *PlanFilter
	ShareOfTotal    bool
	TimeWindowLabel string
	Source          *Query
}

// Clone returns a deep copy of the plan
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	out := *p
	out.Metrics = append([]string(nil), p.Metrics...)
	out.GroupBy = append([]string(nil), p.GroupBy...)
	out.Filters = append([]PlanFilter(nil), p.Filters...)
	out.OrderBy = append([]OrderKey(nil), p.OrderBy...)
	if p.Compare != nil {
		c := *p.Compare
		if p.Compare.InternalWindow != nil {
			iw := *p.Compare.InternalWindow
			c.InternalWindow = &iw
		}
		out.Compare = &c
	}
	if p.Bucket != nil {
		b := *p.Bucket
		b.Params.Q = append([]float64(nil), p.Bucket.Params.Q...)
		b.Params.Edges = append([]float64(nil), p.Bucket.Params.Edges...)
		out.Bucket = &b
	}
	if p.AggregateV2 != nil {
		a := *p.AggregateV2
		out.AggregateV2 = &a
	}
	if p.TopK != nil {
		tk := *p.TopK
		out.TopK = &tk
	}
	if p.CompileInfo != nil {
		ci := *p.CompileInfo
		ci.GroupBy = append([]string(nil), p.CompileInfo.GroupBy...)
		out.CompileInfo = &ci
	}
	out.Extras.CriticPass = append([]string(nil), p.Extras.CriticPass...)
	if p.Extras.CompileInfo != nil {
		ci := *p.Extras.CompileInfo
		ci.GroupBy = append([]string(nil), p.Extras.CompileInfo.GroupBy...)
		out.Extras.CompileInfo = &ci
	}
	out.Source = p.Source.Clone()
	return &out
}
