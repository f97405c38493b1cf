package guardrails

import (
	"reflect"
	"testing"

	"nqlc/internal/core/nql"
	"nqlc/internal/platform/testkit"
)

func safeView() *View {
	return &View{
		Time:    TimeRange{Start: "2024-03-01", End: "2024-04-01"},
		GroupBy: []string{"area"},
	}
}

const safeSQL = "SELECT area, COUNT(*) AS incidents FROM base GROUP BY area LIMIT 100"

func TestEnforce(t *testing.T) {
	testkit.MustNoErr(t, Enforce(safeSQL, 100))
	testkit.MustNoErr(t, Enforce("WITH base AS (SELECT 1 AS x) SELECT x FROM base", 100))

	testkit.MustErr(t, Enforce("DROP TABLE crime", 100), "only SELECT")
	testkit.MustErr(t, Enforce("SELECT 1; SELECT 2", 100), "multiple statements")
	testkit.MustErr(t, Enforce("SELECT * FROM crime", 100), "SELECT *")
	testkit.MustErr(t, Enforce(safeSQL, 5000), "LIMIT must be <= 2000")
}

func TestCheckRowcap(t *testing.T) {
	if msg := CheckRowcap(false); msg != "" {
		t.Fatalf("no truncation should carry no warning, got %q", msg)
	}
	testkit.MustContain(t, CheckRowcap(true), "truncated")
}

func TestValidatePlan_Allow(t *testing.T) {
	d := ValidatePlan(safeView(), safeSQL, nil, DefaultConfig())
	if d.Decision != DecisionAllow {
		t.Fatalf("decision = %q, diagnostics %v", d.Decision, d.Diagnostics)
	}
	if d.EffectiveSQL != safeSQL {
		t.Fatalf("allow must keep the SQL, got %q", d.EffectiveSQL)
	}
	if d.EffectiveNQL.Limit == nil || *d.EffectiveNQL.Limit != DefaultLimit {
		t.Fatalf("default limit not applied: %v", d.EffectiveNQL.Limit)
	}
	if !d.PostflightNumericOK {
		t.Fatal("postflight flag should default true")
	}
}

func TestValidatePlan_SelectStarBlocks(t *testing.T) {
	d := ValidatePlan(safeView(), "SELECT * FROM base", nil, DefaultConfig())
	if d.Decision != DecisionBlock || d.EffectiveSQL != "" {
		t.Fatalf("decision = %+v", d)
	}
	if d.Diagnostics[0].Type != "unsafe_select_star" {
		t.Fatalf("diagnostics = %v", d.Diagnostics)
	}
}

func TestValidatePlan_InvertedRangeBlocks(t *testing.T) {
	v := safeView()
	v.Time = TimeRange{Start: "2024-04-01", End: "2024-03-01"}
	d := ValidatePlan(v, safeSQL, nil, DefaultConfig())
	if d.Decision != DecisionBlock {
		t.Fatalf("decision = %q", d.Decision)
	}
	testkit.MustContain(t, d.Diagnostics[0].Message, "after start")
}

func TestValidatePlan_WideSpanBlocksWithSuggestedRewrite(t *testing.T) {
	v := safeView()
	v.Time = TimeRange{Start: "2010-01-01", End: "2025-01-01"}
	d := ValidatePlan(v, safeSQL, nil, DefaultConfig())
	if d.Decision != DecisionBlock {
		t.Fatalf("decision = %q", d.Decision)
	}

	var sawSuggestion bool
	for _, diag := range d.Diagnostics {
		if diag.Type == "blocked_query" {
			sawSuggestion = true
			if diag.Details["suggested_end"] != "2025-01-01" {
				t.Fatalf("suggestion details = %v", diag.Details)
			}
			if diag.Details["suggested_start"] != "2024-01-02" {
				t.Fatalf("suggestion details = %v", diag.Details)
			}
		}
	}
	if !sawSuggestion {
		t.Fatalf("no rewrite suggestion in %v", d.Diagnostics)
	}
}

func TestValidatePlan_JoinWithoutEqualityBlocks(t *testing.T) {
	sql := "SELECT a.x, b.y FROM a JOIN b ON a.x > b.y LIMIT 10"
	d := ValidatePlan(safeView(), sql, nil, DefaultConfig())
	if d.Decision != DecisionBlock {
		t.Fatalf("decision = %q", d.Decision)
	}
	if d.Diagnostics[0].Type != "join_cardinality_exceeded" {
		t.Fatalf("diagnostics = %v", d.Diagnostics)
	}
}

func TestHasJoinWithoutEquality(t *testing.T) {
	cases := []struct {
		sql    string
		unsafe bool
	}{
		{"SELECT x FROM a JOIN b ON a.id = b.id", false},
		{"SELECT x FROM a JOIN b USING (id)", false},
		{"SELECT x FROM a JOIN b ON a.id > b.id", true},
		{"SELECT x FROM a CROSS JOIN b", true},
		{"SELECT x FROM a JOIN b ON a.id = b.id WHERE a.id > 5", false},
		{"SELECT x FROM a", false},
	}
	for _, tc := range cases {
		if got := hasJoinWithoutEquality(tc.sql); got != tc.unsafe {
			t.Fatalf("hasJoinWithoutEquality(%q) = %v, want %v", tc.sql, got, tc.unsafe)
		}
	}
}

func TestValidatePlan_JoinBlowupBlocks(t *testing.T) {
	stats := &Stats{
		JoinCardinalityEst: 2_000_000,
		TableRowCounts:     map[string]float64{"crime": 100_000},
	}
	d := ValidatePlan(safeView(), safeSQL, stats, DefaultConfig())
	if d.Decision != DecisionBlock {
		t.Fatalf("decision = %q", d.Decision)
	}
}

func TestValidatePlan_CardinalityDropsExtraGroupBys(t *testing.T) {
	v := safeView()
	v.GroupBy = []string{"area", "street"}
	stats := &Stats{DistinctCounts: map[string]float64{"area": 21, "street": 40_000}}

	d := ValidatePlan(v, safeSQL, stats, DefaultConfig())
	if d.Decision != DecisionRewrite {
		t.Fatalf("decision = %q, diagnostics %v", d.Decision, d.Diagnostics)
	}
	if !reflect.DeepEqual(d.EffectiveNQL.GroupBy, []string{"area"}) {
		t.Fatalf("effective group_by = %v", d.EffectiveNQL.GroupBy)
	}
	if !d.Limits.Applied {
		t.Fatal("limits.applied should be set on rewrite")
	}
	// 21 distinct areas fits the cap after the drop, no TOP-K needed
	if d.Limits.TopK != 0 {
		t.Fatalf("top_k = %d", d.Limits.TopK)
	}
}

func TestValidatePlan_TopKWhenStillOverCap(t *testing.T) {
	v := safeView()
	v.GroupBy = []string{"street"}
	stats := &Stats{DistinctCounts: map[string]float64{"street": 40_000}}

	d := ValidatePlan(v, safeSQL, stats, DefaultConfig())
	if d.Decision != DecisionRewrite {
		t.Fatalf("decision = %q", d.Decision)
	}
	if d.Limits.TopK != TopKDefault {
		t.Fatalf("top_k = %d, want %d", d.Limits.TopK, TopKDefault)
	}
	if d.EffectiveNQL.Limit == nil || *d.EffectiveNQL.Limit != TopKDefault {
		t.Fatalf("effective limit = %v", d.EffectiveNQL.Limit)
	}
}

func TestValidatePlan_UnknownValueFallsBackToILike(t *testing.T) {
	v := safeView()
	v.Filters = []nql.PlanFilter{{Field: "area", Op: "=", Value: "holywood"}}
	cfg := DefaultConfig()
	cfg.CanonicalValues = map[string][]string{"area": {"Hollywood", "North Hollywood", "Harbor"}}

	d := ValidatePlan(v, safeSQL, nil, cfg)
	if d.Decision != DecisionAllow {
		t.Fatalf("decision = %q", d.Decision)
	}
	f := d.EffectiveNQL.Filters[0]
	if f.Op != "ilike" || f.Value != "%holywood%" {
		t.Fatalf("fallback filter = %+v", f)
	}

	var saw bool
	for _, diag := range d.Diagnostics {
		if diag.Type == "unknown_value_fallback" {
			saw = true
		}
	}
	if !saw {
		t.Fatalf("no fallback diagnostic in %v", d.Diagnostics)
	}
}

func TestValidatePlan_KnownValueUntouched(t *testing.T) {
	v := safeView()
	v.Filters = []nql.PlanFilter{{Field: "area", Op: "=", Value: "Hollywood"}}
	cfg := DefaultConfig()
	cfg.CanonicalValues = map[string][]string{"area": {"Hollywood"}}

	d := ValidatePlan(v, safeSQL, nil, cfg)
	if d.EffectiveNQL.Filters[0].Op != "=" {
		t.Fatalf("known value rewritten: %+v", d.EffectiveNQL.Filters[0])
	}
}

func TestValidatePlan_InputNotMutated(t *testing.T) {
	v := safeView()
	v.Filters = []nql.PlanFilter{{Field: "area", Op: "=", Value: "holywood"}}
	cfg := DefaultConfig()
	cfg.CanonicalValues = map[string][]string{"area": {"Hollywood"}}

	ValidatePlan(v, safeSQL, nil, cfg)
	if v.Filters[0].Op != "=" || v.Limit != nil {
		t.Fatalf("input view mutated: %+v", v)
	}
}
