// Package compile orchestrates the query pipeline: payload decode, critic
// validation, plan compilation, value resolution, SQL generation, and the
// guardrail checkpoints
package compile

import (
	"context"
	"time"

	"github.com/google/uuid"

	"nqlc/internal/core/guardrails"
	"nqlc/internal/core/nql"
	"nqlc/internal/core/semantic"
	"nqlc/internal/core/sqlgen"
	perr "nqlc/internal/platform/errors"
	"nqlc/internal/platform/logger"
	datasetdomain "nqlc/internal/services/dataset/domain"
)

// Result pairs a validated query with its compiled plan
type Result struct {
	QueryID string
	NQL     *nql.Query
	Plan    *nql.Plan
}

// Compiled is the full pipeline output for one payload
type Compiled struct {
	QueryID  string
	NQL      *nql.Query
	Plan     *nql.Plan
	Resolved *nql.ResolvedPlan
	SQL      string
	Decision guardrails.Decision
}

// Svc wires the pipeline stages together. All stages are synchronous and
// side-effect-free apart from the resolver's bounded fallback lookups
type Svc struct {
	cat      *semantic.Catalog
	resolver *Resolver
	guard    guardrails.Config
	log      *logger.Logger
	now      func() time.Time
}

// Option mutates the service during construction
type Option func(*Svc)

// WithClock overrides the pipeline's notion of today, for deterministic
// relative-window lowering in tests
func WithClock(now func() time.Time) Option {
	return func(s *Svc) { s.now = now }
}

// WithGuardrailConfig overrides the pre-execution safety bounds
func WithGuardrailConfig(cfg guardrails.Config) Option {
	return func(s *Svc) { s.guard = cfg }
}

// New constructs the compile service
func New(cat *semantic.Catalog, canon CanonicalResolver, exec datasetdomain.Executor, opts ...Option) *Svc {
	if cat == nil {
		panic("compile.Service requires a non-nil semantic catalog")
	}
	s := &Svc{
		cat:      cat,
		resolver: NewResolver(cat, canon, exec),
		guard:    guardrails.DefaultConfig(),
		log:      logger.Named("compile"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CompilePayload decodes a raw NQL payload, runs the critic, and lowers the
// normalized query to a plan. The result carries a fresh query id
func (s *Svc) CompilePayload(ctx context.Context, raw []byte) (*Result, error) {
	query, err := nql.Decode(raw)
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeValidation, "decode payload")
	}
	normalized, err := nql.Validate(query)
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeValidation, "validate payload")
	}
	plan, err := nql.Compile(normalized, s.now())
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeValidation, "compile plan")
	}
	id := uuid.NewString()
	logger.C(logger.WithQuery(ctx, id)).Debug().
		Str("intent", string(normalized.Intent)).
		Str("dataset", normalized.Dataset).
		Strs("critic_pass", normalized.Provenance.CriticPass).
		Msg("payload compiled")
	return &Result{QueryID: id, NQL: normalized, Plan: plan}, nil
}

// Resolve binds the plan against the catalog and the canonical cache.
// Resolution failures come back as *ResolutionError wrapped under the
// resolution error code, suggestions intact
func (s *Svc) Resolve(ctx context.Context, plan *nql.Plan) (*nql.ResolvedPlan, error) {
	resolved, err := s.resolver.Resolve(ctx, plan)
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeResolution, "resolve plan")
	}
	return resolved, nil
}

// BuildSQL renders the resolved plan to SQL text
func (s *Svc) BuildSQL(resolved *nql.ResolvedPlan) (string, error) {
	sql, err := sqlgen.Build(resolved, s.cat)
	if err != nil {
		return "", perr.Wrap(err, perr.ErrorCodeValidation, "build sql")
	}
	return sql, nil
}

// Vet runs the structural pre-flight check. A failure indicates an upstream
// code-generation defect and must never be swallowed
func (s *Svc) Vet(sql string, limit int) error {
	if err := guardrails.Enforce(sql, limit); err != nil {
		return perr.Wrap(err, perr.ErrorCodeGuardrail, "sql vet")
	}
	return nil
}

// ValidatePlan runs the pre-execution safety and cardinality checks
func (s *Svc) ValidatePlan(resolved *nql.ResolvedPlan, sql string, stats *guardrails.Stats) guardrails.Decision {
	return guardrails.ValidatePlan(planView(resolved), sql, stats, s.guard)
}

// Compile runs the whole pipeline over one payload. A block decision is not
// an error: the caller inspects Decision and may retry with the effective
// view the guardrails computed
func (s *Svc) Compile(ctx context.Context, raw []byte, stats *guardrails.Stats) (*Compiled, error) {
	result, err := s.CompilePayload(ctx, raw)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithQuery(ctx, result.QueryID)

	resolved, err := s.Resolve(ctx, result.Plan)
	if err != nil {
		return nil, err
	}
	sql, err := s.BuildSQL(resolved)
	if err != nil {
		return nil, err
	}
	if err := s.Vet(sql, resolved.Limit); err != nil {
		return nil, err
	}
	decision := s.ValidatePlan(resolved, sql, stats)
	logger.C(ctx).Info().
		Str("decision", decision.Decision).
		Int("diagnostics", len(decision.Diagnostics)).
		Msg("plan validated")
	return &Compiled{
		QueryID:  result.QueryID,
		NQL:      result.NQL,
		Plan:     result.Plan,
		Resolved: resolved,
		SQL:      sql,
		Decision: decision,
	}, nil
}

// planView projects the resolved plan into the mutable shape the guardrails
// inspect and rewrite
func planView(resolved *nql.ResolvedPlan) *guardrails.View {
	view := &guardrails.View{
		GroupBy: append([]string(nil), resolved.GroupBy...),
	}
	if resolved.Limit > 0 {
		l := resolved.Limit
		view.Limit = &l
	}
	for _, filter := range resolved.Filters {
		if filter.Field == "month" {
			values := monthValues(filter.Value)
			if len(values) > 0 && values[0] != "" {
				view.Time.Start = values[0]
				view.Time.End = values[0]
				if start, err := nql.ParseISODate(values[0]); err == nil {
					view.Time.End = nql.FormatDate(nql.AddMonths(start, 1))
				}
			}
			if len(values) > 1 && values[1] != "" {
				view.Time.End = values[1]
			}
			continue
		}
		view.Filters = append(view.Filters, filter)
	}
	return view
}
