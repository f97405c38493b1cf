package nql

import (
	"reflect"
	"testing"
	"time"

	"nqlc/internal/platform/testkit"
)

var fixedToday = time.Date(2025, time.June, 17, 0, 0, 0, 0, time.UTC)

func lastFilter(t *testing.T, p *Plan) PlanFilter {
	t.Helper()
	if len(p.Filters) == 0 {
		t.Fatal("plan has no filters")
	}
	return p.Filters[len(p.Filters)-1]
}

func TestCompile_SingleMonthWindow(t *testing.T) {
	q := baseQuery()
	plan, err := Compile(q, fixedToday)
	testkit.MustNoErr(t, err)

	f := lastFilter(t, plan)
	if f.Field != "month" || f.Op != "between" {
		t.Fatalf("time filter = %+v", f)
	}
	if !reflect.DeepEqual(f.Value, []string{"2024-03-01", "2024-04-01"}) {
		t.Fatalf("single month bounds = %v", f.Value)
	}
	if q.Time.Window.End != "" {
		t.Fatal("compile must not mutate the caller's window")
	}
}

func TestCompile_TimeFilterAppendedLast(t *testing.T) {
	q := baseQuery()
	q.Filters = []Filter{
		{Field: "area", Op: OpEq, Value: "Hollywood", Type: TypeCat},
		{Field: "month", Op: OpEq, Value: "ignored", Type: TypeDate},
	}
	plan, err := Compile(q, fixedToday)
	testkit.MustNoErr(t, err)
	if len(plan.Filters) != 2 {
		t.Fatalf("want caller filter + one time filter, got %v", plan.Filters)
	}
	if plan.Filters[0].Field != "area" {
		t.Fatalf("caller filters must come first: %v", plan.Filters)
	}
	if plan.Filters[1].Field != "month" || plan.Filters[1].Op != "between" {
		t.Fatalf("window must replace caller month filters: %v", plan.Filters)
	}
}

func TestCompile_RelativeMonthsDefaults(t *testing.T) {
	q := baseQuery()
	q.Time.Window = TimeWindow{Type: WindowRelativeMonths}
	plan, err := Compile(q, fixedToday)
	testkit.MustNoErr(t, err)

	f := lastFilter(t, plan)
	if !reflect.DeepEqual(f.Value, []string{"2024-06-01", "2025-06-01"}) {
		t.Fatalf("relative window = %v, want trailing 12 months from today", f.Value)
	}
}

func TestCompile_RelativeMonthsExplicit(t *testing.T) {
	n := 3
	q := baseQuery()
	q.Time.Window = TimeWindow{Type: WindowRelativeMonths, End: "2024-10-01", N: &n}
	plan, err := Compile(q, fixedToday)
	testkit.MustNoErr(t, err)

	f := lastFilter(t, plan)
	if !reflect.DeepEqual(f.Value, []string{"2024-07-01", "2024-10-01"}) {
		t.Fatalf("relative window = %v", f.Value)
	}
}

func TestCompile_YTDWindow(t *testing.T) {
	q := baseQuery()
	q.Time.Window = TimeWindow{Type: WindowYTD}
	plan, err := Compile(q, fixedToday)
	testkit.MustNoErr(t, err)

	f := lastFilter(t, plan)
	if !reflect.DeepEqual(f.Value, []string{"2025-01-01", "2025-07-01"}) {
		t.Fatalf("ytd window = %v", f.Value)
	}
}

func TestCompile_YTDJanuaryRollsBack(t *testing.T) {
	q := baseQuery()
	q.Time.Window = TimeWindow{Type: WindowYTD, End: "2025-01-01"}
	plan, err := Compile(q, fixedToday)
	testkit.MustNoErr(t, err)

	f := lastFilter(t, plan)
	if !reflect.DeepEqual(f.Value, []string{"2024-01-01", "2025-01-01"}) {
		t.Fatalf("ytd ending in January must start the prior year: %v", f.Value)
	}
}

func TestCompile_AbsoluteOpenEnded(t *testing.T) {
	q := baseQuery()
	q.Time.Window = TimeWindow{Type: WindowAbsolute, Start: "2023-05-01"}
	plan, err := Compile(q, fixedToday)
	testkit.MustNoErr(t, err)

	f := lastFilter(t, plan)
	if f.Op != ">=" || f.Value != "2023-05-01" {
		t.Fatalf("open absolute window = %+v", f)
	}
}

func TestCompile_GroupByMerge(t *testing.T) {
	q := baseQuery()
	q.GroupBy = []string{"month", "area"}
	q.Dimensions = []string{"area", "weapon"}
	plan, err := Compile(q, fixedToday)
	testkit.MustNoErr(t, err)

	if !reflect.DeepEqual(plan.GroupBy, []string{"month", "area", "weapon"}) {
		t.Fatalf("group_by merge = %v", plan.GroupBy)
	}
}

func TestCompile_TrendDefaultOrder(t *testing.T) {
	q := baseQuery()
	q.Intent = IntentTrend
	plan, err := Compile(q, fixedToday)
	testkit.MustNoErr(t, err)

	want := []OrderKey{{Field: "month", Dir: SortAsc}}
	if !reflect.DeepEqual(plan.OrderBy, want) {
		t.Fatalf("trend default order = %v", plan.OrderBy)
	}
}

func TestCompile_ComparePeriods(t *testing.T) {
	q := baseQuery()
	q.Compare = &CompareSpec{Type: CompareYoY}
	plan, err := Compile(q, fixedToday)
	testkit.MustNoErr(t, err)
	if plan.Compare == nil || plan.Compare.Periods != 12 {
		t.Fatalf("yoy compare = %+v", plan.Compare)
	}

	q.Compare = &CompareSpec{Type: CompareMoM}
	plan, err = Compile(q, fixedToday)
	testkit.MustNoErr(t, err)
	if plan.Compare == nil || plan.Compare.Periods != 1 {
		t.Fatalf("mom compare = %+v", plan.Compare)
	}
}

func TestCompile_V02FieldsGated(t *testing.T) {
	q := baseQuery()
	q.TopKWithinGroup = &TopKSpec{K: 3, By: "incidents"}
	plan, err := Compile(q, fixedToday)
	testkit.MustNoErr(t, err)
	if plan.TopK != nil {
		t.Fatal("top_k must be ignored on v0.1 payloads")
	}

	q.NQLVersion = "0.2"
	plan, err = Compile(q, fixedToday)
	testkit.MustNoErr(t, err)
	if plan.TopK == nil || plan.TopK.K != 3 {
		t.Fatalf("top_k dropped on v0.2 payload: %+v", plan.TopK)
	}
}

func TestCompile_ExtrasCarryProvenance(t *testing.T) {
	q := baseQuery()
	q.Provenance.CriticPass = []string{"like_passthrough", "limit_clamp"}
	q.Flags.RowcapHint = 2000
	plan, err := Compile(q, fixedToday)
	testkit.MustNoErr(t, err)

	if !plan.Extras.NQLCompiled {
		t.Fatal("extras must flag nql_compiled")
	}
	if plan.Extras.RowcapHint != 2000 {
		t.Fatalf("rowcap hint = %d", plan.Extras.RowcapHint)
	}
	if !reflect.DeepEqual(plan.Extras.CriticPass, []string{"like_passthrough", "limit_clamp"}) {
		t.Fatalf("critic audit = %v", plan.Extras.CriticPass)
	}
	if plan.CompileInfo.MetricAlias != "incidents" {
		t.Fatalf("metric alias = %q", plan.CompileInfo.MetricAlias)
	}
}
