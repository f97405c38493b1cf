package compile

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"nqlc/internal/core/nql"
	"nqlc/internal/core/semantic"
	"nqlc/internal/platform/testkit"
	canonicaldomain "nqlc/internal/services/canonical/domain"
	datasetrepo "nqlc/internal/services/dataset/repo"
	datasetservice "nqlc/internal/services/dataset/service"
)

const catalogYAML = `
defaults:
  table: crime
  date_column: date_occ
dimensions:
  area:
    column: area_name
  weapon:
    column: weapon_desc
metrics:
  incidents:
    agg: count
`

func testCatalog(t *testing.T) *semantic.Catalog {
	t.Helper()
	cat, err := semantic.Parse([]byte(catalogYAML))
	testkit.MustNoErr(t, err)
	return cat
}

// countingExecutor wraps the dataset service and counts value lookups so
// tests can assert the pattern-operator bypass never touches the dataset
type countingExecutor struct {
	inner   *datasetservice.Svc
	lookups int
}

func newCountingExecutor(values map[string][]string) *countingExecutor {
	return &countingExecutor{inner: datasetservice.New(datasetrepo.NewMemory(values))}
}

func (c *countingExecutor) FindClosestValue(ctx context.Context, dim, value string) (string, bool, error) {
	c.lookups++
	return c.inner.FindClosestValue(ctx, dim, value)
}

func (c *countingExecutor) ClosestMatches(ctx context.Context, dim, value string, limit int) ([]string, error) {
	c.lookups++
	return c.inner.ClosestMatches(ctx, dim, value, limit)
}

func (c *countingExecutor) ParseDate(value string) (time.Time, error) {
	return c.inner.ParseDate(value)
}

func (c *countingExecutor) DistinctValues(ctx context.Context, dim string) ([]string, error) {
	return c.inner.DistinctValues(ctx, dim)
}

type staticCanonicalizer struct {
	mappings map[string]map[string]string
}

func (s *staticCanonicalizer) Resolve(dim string, raw any) canonicaldomain.Resolution {
	token, ok := raw.(string)
	if !ok {
		return canonicaldomain.Resolution{Value: raw}
	}
	canonical, ok := s.mappings[dim][canonicaldomain.Normalize(token)]
	if !ok {
		return canonicaldomain.Resolution{Value: raw}
	}
	return canonicaldomain.Resolution{Value: canonical, Applied: true, Canonical: canonical, Synonym: token}
}

func simplePlan(filters ...nql.PlanFilter) *nql.Plan {
	return &nql.Plan{
		Metrics: []string{"incidents"},
		Filters: append(filters, nql.PlanFilter{
			Field: "month", Op: "between", Value: []string{"2024-03-01", "2024-04-01"},
		}),
		Limit: 100,
	}
}

func TestResolve_PatternOperatorBypassesLookups(t *testing.T) {
	exec := newCountingExecutor(map[string][]string{"weapon": {"HAND GUN"}})
	r := NewResolver(testCatalog(t), nil, exec)

	plan := simplePlan(nql.PlanFilter{Field: "weapon", Op: "like", Value: "%gun%"})
	resolved, err := r.Resolve(context.Background(), plan)
	testkit.MustNoErr(t, err)

	if exec.lookups != 0 {
		t.Fatalf("pattern operator triggered %d lookups", exec.lookups)
	}
	if resolved.Filters[0].Value != "%gun%" {
		t.Fatalf("pattern value rewritten: %+v", resolved.Filters[0])
	}
}

func TestResolve_CanonicalizerWinsOverDataset(t *testing.T) {
	exec := newCountingExecutor(map[string][]string{"area": {"Hollywood"}})
	canon := &staticCanonicalizer{mappings: map[string]map[string]string{
		"area": {"holywood": "Hollywood"},
	}}
	r := NewResolver(testCatalog(t), canon, exec)

	plan := simplePlan(nql.PlanFilter{Field: "area", Op: "=", Value: "Holywood"})
	resolved, err := r.Resolve(context.Background(), plan)
	testkit.MustNoErr(t, err)

	if resolved.Filters[0].Value != "Hollywood" {
		t.Fatalf("canonical not applied: %+v", resolved.Filters[0])
	}
	if exec.lookups != 0 {
		t.Fatalf("cache hit still reached the dataset: %d lookups", exec.lookups)
	}
}

func TestResolve_DatasetFallback(t *testing.T) {
	exec := newCountingExecutor(map[string][]string{"area": {"Hollywood", "Harbor"}})
	r := NewResolver(testCatalog(t), nil, exec)

	plan := simplePlan(nql.PlanFilter{Field: "area", Op: "=", Value: "hollywood"})
	resolved, err := r.Resolve(context.Background(), plan)
	testkit.MustNoErr(t, err)
	if resolved.Filters[0].Value != "Hollywood" {
		t.Fatalf("dataset lookup not applied: %+v", resolved.Filters[0])
	}
}

func TestResolve_UnmatchedValueCarriesSuggestions(t *testing.T) {
	exec := newCountingExecutor(map[string][]string{
		"area": {"Hollywood", "North Hollywood", "Harbor", "Van Nuys", "Wilshire", "Central", "Olympic"},
	})
	r := NewResolver(testCatalog(t), nil, exec)

	plan := simplePlan(nql.PlanFilter{Field: "area", Op: "=", Value: "atlantis"})
	_, err := r.Resolve(context.Background(), plan)
	var resErr *ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("error = %v", err)
	}
	testkit.MustContain(t, resErr.Message, "atlantis")
	if len(resErr.Suggestions) == 0 || len(resErr.Suggestions) > 5 {
		t.Fatalf("suggestions = %v", resErr.Suggestions)
	}
}

func TestResolve_UnknownMetricAndDimension(t *testing.T) {
	r := NewResolver(testCatalog(t), nil, nil)

	_, err := r.Resolve(context.Background(), &nql.Plan{Metrics: []string{"bogus"}})
	testkit.MustErr(t, err, "unknown metric")

	_, err = r.Resolve(context.Background(), &nql.Plan{Metrics: []string{"count"}, GroupBy: []string{"bogus"}})
	testkit.MustErr(t, err, "unknown dimension")
}

func TestResolve_CountMetricSkipsCatalog(t *testing.T) {
	r := NewResolver(testCatalog(t), nil, nil)
	_, err := r.Resolve(context.Background(), &nql.Plan{Metrics: []string{"count"}})
	testkit.MustNoErr(t, err)
}

func TestResolve_DegenerateMonthRangeCollapsesToEquality(t *testing.T) {
	r := NewResolver(testCatalog(t), nil, nil)
	plan := &nql.Plan{
		Metrics: []string{"incidents"},
		Filters: []nql.PlanFilter{{Field: "month", Op: "between", Value: []string{"2024-03-01", "2024-03-01"}}},
		Limit:   100,
	}
	resolved, err := r.Resolve(context.Background(), plan)
	testkit.MustNoErr(t, err)

	f := resolved.Filters[0]
	if f.Op != "=" || f.Value != "2024-03-01" {
		t.Fatalf("degenerate range = %+v", f)
	}
	if resolved.TimeWindowLabel != "2024-03" {
		t.Fatalf("window label = %q", resolved.TimeWindowLabel)
	}
}

func TestResolve_MoMInternalWindowWidens(t *testing.T) {
	r := NewResolver(testCatalog(t), nil, nil)
	plan := &nql.Plan{
		Metrics: []string{"incidents"},
		Filters: []nql.PlanFilter{{Field: "month", Op: "between", Value: []string{"2024-03-01", "2024-03-01"}}},
		Compare: &nql.PlanCompare{Type: nql.CompareMoM, Periods: 1},
		Limit:   100,
	}
	resolved, err := r.Resolve(context.Background(), plan)
	testkit.MustNoErr(t, err)

	if resolved.InternalWindow == nil {
		t.Fatal("mom over one month should widen the internal window")
	}
	if !reflect.DeepEqual(resolved.InternalWindow.Value, []string{"2024-02-01", "2024-04-01"}) {
		t.Fatalf("internal window = %+v", resolved.InternalWindow)
	}
}

func TestResolve_DefaultsOrderAndClampsLimit(t *testing.T) {
	r := NewResolver(testCatalog(t), nil, nil)
	plan := simplePlan()
	plan.Limit = 99999
	resolved, err := r.Resolve(context.Background(), plan)
	testkit.MustNoErr(t, err)

	want := []nql.OrderKey{{Field: "incidents", Dir: nql.SortDesc}}
	if !reflect.DeepEqual(resolved.OrderBy, want) {
		t.Fatalf("default order = %v", resolved.OrderBy)
	}
	if resolved.Limit != nql.ServerMaxLimit {
		t.Fatalf("limit = %d", resolved.Limit)
	}
}

func TestResolve_CompiledPlanKeepsOrderUnset(t *testing.T) {
	r := NewResolver(testCatalog(t), nil, nil)
	plan := simplePlan()
	plan.Extras.NQLCompiled = true
	resolved, err := r.Resolve(context.Background(), plan)
	testkit.MustNoErr(t, err)

	if resolved.OrderBy != nil {
		t.Fatalf("compiled plan gained an order = %v", resolved.OrderBy)
	}
}

func TestResolve_WindowLabels(t *testing.T) {
	r := NewResolver(testCatalog(t), nil, nil)

	plan := &nql.Plan{Metrics: []string{"incidents"}}
	resolved, err := r.Resolve(context.Background(), plan)
	testkit.MustNoErr(t, err)
	if resolved.TimeWindowLabel != "All available time" {
		t.Fatalf("label = %q", resolved.TimeWindowLabel)
	}

	plan = simplePlan()
	plan.Filters = []nql.PlanFilter{{Field: "month", Op: "between", Value: []string{"2024-01-01", "2024-07-01"}}}
	resolved, err = r.Resolve(context.Background(), plan)
	testkit.MustNoErr(t, err)
	if resolved.TimeWindowLabel != "2024-01 to 2024-06" {
		t.Fatalf("label = %q", resolved.TimeWindowLabel)
	}
}
