// Package repo provides the ClickHouse binding for the dataset service plus
// an in-memory fake for tests
package repo

import (
	"context"
	"fmt"

	"nqlc/internal/core/semantic"
	perr "nqlc/internal/platform/errors"
	"nqlc/internal/platform/store"
)

// maxDistinctValues bounds how many values a single lookup pulls back
const maxDistinctValues = 500

// CH reads distinct dimension values from the analytical store
type CH struct {
	ch  store.Clickhouse
	cat *semantic.Catalog
}

// NewCH returns a ClickHouse dataset repo over the semantic catalog's table
func NewCH(ch store.Clickhouse, cat *semantic.Catalog) *CH {
	if ch == nil {
		panic("dataset.NewCH requires a non-nil Clickhouse seam")
	}
	if cat == nil {
		panic("dataset.NewCH requires a non-nil semantic catalog")
	}
	return &CH{ch: ch, cat: cat}
}

// DistinctValues returns the distinct non-null values of a dimension
func (r *CH) DistinctValues(ctx context.Context, dim string) ([]string, error) {
	dimension, ok := r.cat.Dimension(dim)
	if !ok {
		return nil, perr.Resolutionf("unknown dimension %q", dim)
	}
	expr := dimension.SQLExpr("")
	if dim == "month" {
		expr = fmt.Sprintf("DATE_TRUNC('month', %s)", semantic.QuoteIdent(r.cat.DateColumn))
	}
	sql := fmt.Sprintf(
		"SELECT DISTINCT %s AS val FROM %s WHERE %s IS NOT NULL LIMIT %d",
		expr, r.cat.Table, expr, maxDistinctValues,
	)
	rows, err := r.ch.Query(ctx, sql)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeDB, "dataset: distinct values for %q", dim)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeDB, "dataset: scan distinct value")
		}
		values = append(values, value)
	}
	if err := rows.Err(); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeDB, "dataset: distinct values for %q", dim)
	}
	return values, nil
}
