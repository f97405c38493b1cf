// Package repo provides Postgres and in-memory bindings for the canonical
// store port
package repo

import (
	"context"

	perr "nqlc/internal/platform/errors"
	"nqlc/internal/platform/store"
	"nqlc/internal/services/canonical/domain"
)

// Schema creates the canonical tables. Uniqueness is on (dim, lower(synonym))
// and the single global version counter lives in canonical_meta
const Schema = `
CREATE TABLE IF NOT EXISTS canonical_map (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	dim TEXT NOT NULL,
	synonym TEXT NOT NULL,
	canonical TEXT NOT NULL,
	score DOUBLE PRECISION NOT NULL DEFAULT 1.0,
	promoted_by TEXT NOT NULL DEFAULT 'admin',
	promoted_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS canonical_map_dim_syn ON canonical_map (dim, lower(synonym));
CREATE TABLE IF NOT EXISTS canonical_meta (
	k TEXT PRIMARY KEY,
	v BIGINT NOT NULL
);
INSERT INTO canonical_meta (k, v) VALUES ('version', 1) ON CONFLICT (k) DO NOTHING
`

// PG is the Postgres binding for domain.Repo
type PG struct {
	db store.TxRunner
}

var _ domain.Repo = (*PG)(nil)

// NewPG returns a Postgres canonical repo
func NewPG(db store.TxRunner) *PG {
	if db == nil {
		panic("canonical.NewPG requires a non-nil TxRunner")
	}
	return &PG{db: db}
}

// EnsureSchema creates the canonical tables when missing
func (r *PG) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return perr.FromPostgres(err, "canonical: ensure schema")
	}
	return nil
}

// Version reads the global version counter
func (r *PG) Version(ctx context.Context) (int64, error) {
	var v int64
	err := r.db.QueryRow(ctx, `SELECT v FROM canonical_meta WHERE k = 'version'`).Scan(&v)
	if err != nil {
		return 0, perr.FromPostgres(err, "canonical: read version")
	}
	return v, nil
}

// LoadMappings reads every mapping row into the cache payload shape
func (r *PG) LoadMappings(ctx context.Context) (domain.Mappings, error) {
	rows, err := r.db.Query(ctx, `SELECT dim, synonym, canonical, score FROM canonical_map`)
	if err != nil {
		return nil, perr.FromPostgres(err, "canonical: load mappings")
	}
	defer rows.Close()

	mappings := make(domain.Mappings)
	for rows.Next() {
		var dim, synonym, canonical string
		var score float64
		if err := rows.Scan(&dim, &synonym, &canonical, &score); err != nil {
			return nil, perr.FromPostgres(err, "canonical: scan mapping")
		}
		dimMap, ok := mappings[dim]
		if !ok {
			dimMap = make(map[string]domain.Entry)
			mappings[dim] = dimMap
		}
		dimMap[domain.Normalize(synonym)] = domain.Entry{Canonical: canonical, Score: score}
	}
	if err := rows.Err(); err != nil {
		return nil, perr.FromPostgres(err, "canonical: load mappings")
	}
	return mappings, nil
}

// Promote upserts the mapping and bumps the global version inside one
// transaction, returning the new version. The upsert and the counter bump
// commit atomically so concurrent promotions never lose a bump
func (r *PG) Promote(
	ctx context.Context,
	dim, synonym, canonical string,
	score float64,
	promotedBy string,
) (int64, error) {
	if promotedBy == "" {
		promotedBy = "admin"
	}
	var version int64
	err := r.db.Tx(ctx, func(q store.RowQuerier) error {
		if _, err := q.Exec(ctx, `
			INSERT INTO canonical_map (dim, synonym, canonical, score, promoted_by)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (dim, lower(synonym)) DO UPDATE SET
				synonym = EXCLUDED.synonym,
				canonical = EXCLUDED.canonical,
				score = EXCLUDED.score,
				promoted_by = EXCLUDED.promoted_by,
				promoted_at = now()
		`, dim, synonym, canonical, score, promotedBy); err != nil {
			return err
		}
		return q.QueryRow(ctx,
			`UPDATE canonical_meta SET v = v + 1 WHERE k = 'version' RETURNING v`,
		).Scan(&version)
	})
	if err != nil {
		return 0, perr.FromPostgres(err, "canonical: promote")
	}
	return version, nil
}

// SynonymValues returns the known synonyms and canonicals for a dimension
func (r *PG) SynonymValues(ctx context.Context, dim string) (synonyms, canonicals []string, err error) {
	rows, err := r.db.Query(ctx, `SELECT synonym, canonical FROM canonical_map WHERE dim = $1`, dim)
	if err != nil {
		return nil, nil, perr.FromPostgres(err, "canonical: synonym values")
	}
	defer rows.Close()
	for rows.Next() {
		var synonym, canonical string
		if err := rows.Scan(&synonym, &canonical); err != nil {
			return nil, nil, perr.FromPostgres(err, "canonical: scan synonym")
		}
		synonyms = append(synonyms, synonym)
		canonicals = append(canonicals, canonical)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, perr.FromPostgres(err, "canonical: synonym values")
	}
	return synonyms, canonicals, nil
}

// DimMapping returns normalized synonym to canonical for one dimension
func (r *PG) DimMapping(ctx context.Context, dim string) (map[string]string, error) {
	rows, err := r.db.Query(ctx, `SELECT synonym, canonical FROM canonical_map WHERE dim = $1`, dim)
	if err != nil {
		return nil, perr.FromPostgres(err, "canonical: dim mapping")
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var synonym, canonical string
		if err := rows.Scan(&synonym, &canonical); err != nil {
			return nil, perr.FromPostgres(err, "canonical: scan dim mapping")
		}
		out[domain.Normalize(synonym)] = canonical
	}
	if err := rows.Err(); err != nil {
		return nil, perr.FromPostgres(err, "canonical: dim mapping")
	}
	return out, nil
}
