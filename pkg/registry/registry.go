// pkg/registry/registry.go
package registry

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

//go:embed domain-registry.json
var defaultRegistry []byte

// LoadRegistry reads a registry document from path. An empty path loads the
// built-in registry.
func LoadRegistry(path string) (*DomainRegistry, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Default returns the built-in registry.
func Default() (*DomainRegistry, error) {
	return Parse(defaultRegistry)
}

// DefaultJSON returns the raw built-in registry document.
func DefaultJSON() []byte {
	out := make([]byte, len(defaultRegistry))
	copy(out, defaultRegistry)
	return out
}

// Parse decodes and validates a registry document.
func Parse(data []byte) (*DomainRegistry, error) {
	var reg DomainRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	reg.buildIndex()
	return &reg, nil
}

// Validate checks the document for duplicates and dangling defaults.
func (r *DomainRegistry) Validate() error {
	if len(r.Analytics.Metrics) == 0 {
		return fmt.Errorf("registry has no analytics metrics")
	}
	if len(r.Analytics.Dimensions) == 0 {
		return fmt.Errorf("registry has no analytics dimensions")
	}
	if len(r.SEO.Columns) == 0 {
		return fmt.Errorf("registry has no seo columns")
	}

	metrics := make(map[string]bool)
	for _, m := range r.Analytics.Metrics {
		if m.Name == "" {
			return fmt.Errorf("analytics metric missing name")
		}
		if metrics[m.Name] {
			return fmt.Errorf("duplicate analytics metric: %s", m.Name)
		}
		metrics[m.Name] = true
	}
	dimensions := make(map[string]bool)
	for _, d := range r.Analytics.Dimensions {
		if d.Name == "" {
			return fmt.Errorf("analytics dimension missing name")
		}
		if dimensions[d.Name] {
			return fmt.Errorf("duplicate analytics dimension: %s", d.Name)
		}
		dimensions[d.Name] = true
	}
	for _, m := range r.Analytics.DefaultMetrics {
		if !metrics[m] {
			return fmt.Errorf("default metric %s is not a registered metric", m)
		}
	}
	for _, d := range r.Analytics.PageDimensions {
		if !dimensions[d] {
			return fmt.Errorf("page dimension %s is not a registered dimension", d)
		}
	}

	columns := make(map[string]bool)
	for _, c := range r.SEO.Columns {
		if c.Name == "" {
			return fmt.Errorf("seo column missing name")
		}
		if columns[c.Name] {
			return fmt.Errorf("duplicate seo column: %s", c.Name)
		}
		if c.Type != ColumnTypeString && c.Type != ColumnTypeNumber {
			return fmt.Errorf("seo column %s has unknown type %q", c.Name, c.Type)
		}
		columns[c.Name] = true
	}
	if r.SEO.KeyColumn == "" || !columns[r.SEO.KeyColumn] {
		return fmt.Errorf("seo key column %q is not a registered column", r.SEO.KeyColumn)
	}
	for _, c := range r.SEO.DefaultColumns {
		if !columns[c] {
			return fmt.Errorf("default column %s is not a registered column", c)
		}
	}
	return nil
}

func (r *DomainRegistry) buildIndex() {
	r.metricIndex = make(map[string]string)
	r.dimensionIndex = make(map[string]string)
	r.columnIndex = make(map[string]string)
	r.columnTypes = make(map[string]string)

	for _, m := range r.Analytics.Metrics {
		indexField(r.metricIndex, m.Name, m.Aliases)
	}
	for _, d := range r.Analytics.Dimensions {
		indexField(r.dimensionIndex, d.Name, d.Aliases)
	}
	for _, c := range r.SEO.Columns {
		indexField(r.columnIndex, c.Name, c.Aliases)
		r.columnTypes[c.Name] = c.Type
	}

	if r.Analytics.DefaultLimit == 0 {
		r.Analytics.DefaultLimit = 1000
	}
	if r.Analytics.MaxLimit == 0 {
		r.Analytics.MaxLimit = 10000
	}
	if r.SEO.DefaultLimit == 0 {
		r.SEO.DefaultLimit = 100
	}
	if r.SEO.MaxLimit == 0 {
		r.SEO.MaxLimit = 1000
	}
}

// Canonical names win over aliases that collide with them.
func indexField(index map[string]string, name string, aliases []string) {
	index[strings.ToLower(name)] = name
	for _, a := range aliases {
		key := strings.ToLower(a)
		if _, taken := index[key]; !taken {
			index[key] = name
		}
	}
}

// ResolveMetric maps a metric name or alias to its canonical name.
func (r *DomainRegistry) ResolveMetric(name string) (string, bool) {
	v, ok := r.metricIndex[strings.ToLower(strings.TrimSpace(name))]
	return v, ok
}

// ResolveDimension maps a dimension name or alias to its canonical name.
func (r *DomainRegistry) ResolveDimension(name string) (string, bool) {
	v, ok := r.dimensionIndex[strings.ToLower(strings.TrimSpace(name))]
	return v, ok
}

// ResolveColumn maps a crawl column name or alias to its canonical name.
func (r *DomainRegistry) ResolveColumn(name string) (string, bool) {
	v, ok := r.columnIndex[strings.ToLower(strings.TrimSpace(name))]
	return v, ok
}

// ColumnType reports the declared type of a canonical column name.
func (r *DomainRegistry) ColumnType(name string) string {
	if t, ok := r.columnTypes[name]; ok {
		return t
	}
	return ColumnTypeString
}

func (r *DomainRegistry) IsPageDimension(name string) bool {
	for _, d := range r.Analytics.PageDimensions {
		if d == name {
			return true
		}
	}
	return false
}

func (r *DomainRegistry) IsAnalyticsOperator(op string) bool {
	return contains(r.Analytics.FilterOperators, op)
}

func (r *DomainRegistry) IsSEOOperator(op string) bool {
	return contains(r.SEO.Operators, op)
}

func (r *DomainRegistry) IsAggregation(fn string) bool {
	return contains(r.SEO.Aggregations, fn)
}

// AllowedFields lists the canonical field names for a domain.
func (r *DomainRegistry) AllowedFields(domain Domain) []string {
	switch domain {
	case DomainAnalytics:
		out := make([]string, 0, len(r.Analytics.Metrics)+len(r.Analytics.Dimensions))
		for _, m := range r.Analytics.Metrics {
			out = append(out, m.Name)
		}
		for _, d := range r.Analytics.Dimensions {
			out = append(out, d.Name)
		}
		return out
	case DomainSEO:
		out := make([]string, 0, len(r.SEO.Columns))
		for _, c := range r.SEO.Columns {
			out = append(out, c.Name)
		}
		return out
	}
	return nil
}

func (r *DomainRegistry) MetricNames() []string {
	out := make([]string, len(r.Analytics.Metrics))
	for i, m := range r.Analytics.Metrics {
		out[i] = m.Name
	}
	return out
}

func (r *DomainRegistry) DimensionNames() []string {
	out := make([]string, len(r.Analytics.Dimensions))
	for i, d := range r.Analytics.Dimensions {
		out[i] = d.Name
	}
	return out
}

// DerivedColumns lists columns the SEO dataset computes when absent.
func (r *DomainRegistry) DerivedColumns() []string {
	var out []string
	for _, c := range r.SEO.Columns {
		if c.Derived {
			out = append(out, c.Name)
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
