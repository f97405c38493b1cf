package nql

import (
	"reflect"
	"testing"

	"nqlc/internal/platform/testkit"
)

func baseQuery() *Query {
	q := DefaultQuery()
	q.NQLVersion = "0.1"
	q.Intent = IntentAggregate
	q.Dataset = "incidents"
	q.Metrics = []Metric{{Name: "incidents", Agg: AggCount, Alias: "incidents"}}
	q.Time.Grain = GrainMonth
	q.Time.Window = TimeWindow{Type: WindowSingleMonth, Start: "2024-03-01"}
	return q
}

func TestValidate_QuarterExclusiveEnd(t *testing.T) {
	q := baseQuery()
	q.Time.Window = TimeWindow{Type: WindowQuarter, Start: "2024-01-01", End: "2024-04-01"}

	out, err := Validate(q)
	testkit.MustNoErr(t, err)
	if !out.Time.Window.ExclusiveEnd {
		t.Fatal("quarter window should be marked exclusive_end")
	}
	if !hasPass(out, "quarter_exclusive_end") {
		t.Fatalf("audit missing quarter pass: %v", out.Provenance.CriticPass)
	}
	if q.Time.Window.ExclusiveEnd {
		t.Fatal("validator must not mutate the input query")
	}
}

func TestValidate_QuarterWrongSpanFails(t *testing.T) {
	q := baseQuery()
	q.Time.Window = TimeWindow{Type: WindowQuarter, Start: "2024-01-01", End: "2024-03-01"}
	_, err := Validate(q)
	testkit.MustErr(t, err, "three months")
}

func TestValidate_TrendGrouping(t *testing.T) {
	q := baseQuery()
	q.Intent = IntentTrend
	q.Time.Window = TimeWindow{Type: WindowRelativeMonths}
	q.GroupBy = []string{"area"}

	out, err := Validate(q)
	testkit.MustNoErr(t, err)
	if !reflect.DeepEqual(out.GroupBy, []string{"month", "area"}) {
		t.Fatalf("group_by = %v, want month first", out.GroupBy)
	}
	if out.Time.Window.N == nil || *out.Time.Window.N != 12 {
		t.Fatalf("relative window n should default to 12, got %v", out.Time.Window.N)
	}
}

func TestValidate_TrendGroupingRespectsExistingMonth(t *testing.T) {
	q := baseQuery()
	q.Intent = IntentTrend
	q.Dimensions = []string{"month"}

	out, err := Validate(q)
	testkit.MustNoErr(t, err)
	if len(out.GroupBy) != 0 {
		t.Fatalf("month already addressed via dimensions, group_by = %v", out.GroupBy)
	}
}

func TestValidate_MoMSingleMonthExpandsPrior(t *testing.T) {
	q := baseQuery()
	q.Intent = IntentCompare
	q.Compare = &CompareSpec{Type: CompareMoM}

	out, err := Validate(q)
	testkit.MustNoErr(t, err)
	if out.Compare.InternalWindow == nil || !out.Compare.InternalWindow.ExpandPrior {
		t.Fatal("mom over single month should expand the prior window")
	}
}

func TestValidate_BaselineAbsoluteRequiresBounds(t *testing.T) {
	q := baseQuery()
	q.Intent = IntentCompare
	q.Compare = &CompareSpec{Baseline: BaselineAbsolute, Start: "2023-01-01"}
	_, err := Validate(q)
	testkit.MustErr(t, err, "requires both start and end")
}

func TestValidate_LikeWithoutTextRawFails(t *testing.T) {
	q := baseQuery()
	q.Filters = []Filter{{Field: "weapon", Op: OpLike, Value: "%gun%", Type: TypeText}}
	_, err := Validate(q)
	testkit.MustErr(t, err, "text_raw")
}

func TestValidate_SortSafety(t *testing.T) {
	q := baseQuery()
	q.Sort = []SortSpec{{By: "nonexistent", Dir: SortDesc}}
	_, err := Validate(q)
	testkit.MustErr(t, err, "sort target")

	q = baseQuery()
	q.Sort = []SortSpec{{By: "incidents", Dir: SortDesc}}
	out, err := Validate(q)
	testkit.MustNoErr(t, err)
	if !hasPass(out, "sort_safety") {
		t.Fatalf("audit missing sort pass: %v", out.Provenance.CriticPass)
	}
}

func TestValidate_LimitClamp(t *testing.T) {
	q := baseQuery()
	q.Limit = 10000
	q.Flags.RowcapHint = 5000

	out, err := Validate(q)
	testkit.MustNoErr(t, err)
	if out.Flags.RowcapHint != ServerMaxLimit {
		t.Fatalf("rowcap_hint = %d, want %d", out.Flags.RowcapHint, ServerMaxLimit)
	}
	if out.Limit != ServerMaxLimit {
		t.Fatalf("limit = %d, want %d", out.Limit, ServerMaxLimit)
	}
}

func TestValidate_Idempotent(t *testing.T) {
	q := baseQuery()
	q.Intent = IntentTrend
	q.Compare = &CompareSpec{Type: CompareMoM}
	q.Time.Window = TimeWindow{Type: WindowSingleMonth, Start: "2024-03-01"}
	q.Sort = []SortSpec{{By: "incidents", Dir: SortDesc}}

	once, err := Validate(q)
	testkit.MustNoErr(t, err)
	twice, err := Validate(once)
	testkit.MustNoErr(t, err)

	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("second validation changed the query:\nonce:  %+v\ntwice: %+v", once, twice)
	}
	if !reflect.DeepEqual(once.Provenance.CriticPass, twice.Provenance.CriticPass) {
		t.Fatalf("audit trail grew on revalidation: %v vs %v", once.Provenance.CriticPass, twice.Provenance.CriticPass)
	}
}

func TestValidate_NoMetricsFails(t *testing.T) {
	q := baseQuery()
	q.Metrics = nil
	_, err := Validate(q)
	testkit.MustErr(t, err, "metrics")
}

func hasPass(q *Query, name string) bool {
	for _, p := range q.Provenance.CriticPass {
		if p == name {
			return true
		}
	}
	return false
}
