// Package semantic loads and queries the semantic catalog: the table, its
// date column, and the dimensions and metrics queries may reference. The
// catalog is the single source of SQL expressions for named fields
package semantic

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Dimension is one queryable grouping/filtering field
type Dimension struct {
	Name   string
	Column string
	DType  string
	Bucket string
}

// SQLExpr returns the SQL expression for the dimension, optionally prefixed
// with a CTE alias. The month dimension lowers to the derived month column of
// the base CTE, never to the raw date column
func (d Dimension) SQLExpr(alias string) string {
	prefix := ""
	if alias != "" {
		prefix = alias + "."
	}
	if d.Name == "month" {
		return prefix + "month"
	}
	return prefix + QuoteIdent(d.Column)
}

// Metric is one queryable measure
type Metric struct {
	Name   string
	Agg    string
	Column string
	Grain  []string
}

// SQLExpr returns the aggregation expression for the metric
func (m Metric) SQLExpr() (string, error) {
	switch m.Agg {
	case "count", "":
		return "COUNT(*)", nil
	case "sum", "avg", "min", "max":
		if m.Column == "" {
			return "", fmt.Errorf("metric %q: agg %q requires a column", m.Name, m.Agg)
		}
		return strings.ToUpper(m.Agg) + "(" + QuoteIdent(m.Column) + ")", nil
	case "distinct_count", "count_distinct":
		if m.Column == "" {
			return "", fmt.Errorf("metric %q: agg %q requires a column", m.Name, m.Agg)
		}
		return "COUNT(DISTINCT " + QuoteIdent(m.Column) + ")", nil
	}
	return "", fmt.Errorf("metric %q: unsupported aggregation %q", m.Name, m.Agg)
}

// Catalog is the loaded semantic model
type Catalog struct {
	Table      string
	DateColumn string
	DateGrain  string
	Dimensions map[string]Dimension
	Metrics    map[string]Metric
}

// Dimension returns the named dimension if it exists
func (c *Catalog) Dimension(name string) (Dimension, bool) {
	d, ok := c.Dimensions[name]
	return d, ok
}

// Metric returns the named metric if it exists
func (c *Catalog) Metric(name string) (Metric, bool) {
	m, ok := c.Metrics[name]
	return m, ok
}

// QuoteIdent double-quotes an identifier unless it is already quoted
func QuoteIdent(name string) string {
	if strings.HasPrefix(name, `"`) && strings.HasSuffix(name, `"`) {
		return name
	}
	return `"` + name + `"`
}

type catalogFile struct {
	Defaults struct {
		Table      string `yaml:"table"`
		DateColumn string `yaml:"date_column"`
		DateGrain  string `yaml:"date_grain"`
	} `yaml:"defaults"`
	Dimensions map[string]struct {
		Column string `yaml:"column"`
		Type   string `yaml:"type"`
		Bucket string `yaml:"bucket"`
	} `yaml:"dimensions"`
	Metrics map[string]struct {
		Agg    string   `yaml:"agg"`
		Column string   `yaml:"column"`
		Grain  []string `yaml:"grain"`
	} `yaml:"metrics"`
}

// Parse builds a catalog from YAML bytes
func Parse(raw []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("semantic catalog: %w", err)
	}
	if file.Defaults.Table == "" {
		return nil, fmt.Errorf("semantic catalog: defaults.table is required")
	}
	if file.Defaults.DateColumn == "" {
		return nil, fmt.Errorf("semantic catalog: defaults.date_column is required")
	}
	cat := &Catalog{
		Table:      file.Defaults.Table,
		DateColumn: file.Defaults.DateColumn,
		DateGrain:  file.Defaults.DateGrain,
		Dimensions: make(map[string]Dimension, len(file.Dimensions)+1),
		Metrics:    make(map[string]Metric, len(file.Metrics)),
	}
	if cat.DateGrain == "" {
		cat.DateGrain = "month"
	}
	for name, payload := range file.Dimensions {
		column := payload.Column
		if column == "" {
			column = name
		}
		dtype := payload.Type
		if dtype == "" {
			dtype = "text"
		}
		cat.Dimensions[name] = Dimension{Name: name, Column: column, DType: dtype, Bucket: payload.Bucket}
	}
	// month is always addressable even if the file leaves it implicit
	if _, ok := cat.Dimensions["month"]; !ok {
		cat.Dimensions["month"] = Dimension{Name: "month", Column: "month", DType: "date"}
	}
	for name, payload := range file.Metrics {
		agg := payload.Agg
		if agg == "" {
			agg = "count"
		}
		cat.Metrics[name] = Metric{Name: name, Agg: agg, Column: payload.Column, Grain: payload.Grain}
	}
	return cat, nil
}

// Load reads and parses a catalog YAML file
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("semantic catalog: %w", err)
	}
	return Parse(raw)
}
