// Package plan turns untrusted drafts (model output merged with keyword hints)
// into validated per-domain query plans. Only BuildAnalytics and BuildSEO mint
// plans an agent will accept.
package plan

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"query-orchestrator/pkg/registry"
)

// ErrUnvalidatedPlan is returned by agents handed a plan that did not come from a Build function.
var ErrUnvalidatedPlan = errors.New("plan was not validated against the registry")

// PlanningError reports a draft that named fields of which none survived the allowlist.
type PlanningError struct {
	Domain string
	Reason string
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("planning failed for %s: %s", e.Domain, e.Reason)
}

type AnalyticsFilter struct {
	Field    string   `json:"field"`
	Operator string   `json:"operator"`
	Value    string   `json:"value,omitempty"`
	Values   []string `json:"values,omitempty"`
}

type OrderBy struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc"`
}

// AnalyticsDraft is the unvalidated shape produced by the planner.
type AnalyticsDraft struct {
	Metrics    []string          `json:"metrics,omitempty"`
	Dimensions []string          `json:"dimensions,omitempty"`
	DateRanges []DateRange       `json:"date_ranges,omitempty"`
	Filters    []AnalyticsFilter `json:"filters,omitempty"`
	OrderBy    *OrderBy          `json:"order_by,omitempty"`
	Limit      int               `json:"limit,omitempty"`
}

type AnalyticsPlan struct {
	Metrics    []string          `json:"metrics"`
	Dimensions []string          `json:"dimensions"`
	DateRanges []DateRange       `json:"date_ranges"`
	Filters    []AnalyticsFilter `json:"filters,omitempty"`
	OrderBy    *OrderBy          `json:"order_by,omitempty"`
	Limit      int               `json:"limit"`

	validated bool
}

func (p *AnalyticsPlan) Validated() bool {
	return p != nil && p.validated
}

// OrderByMetric reports whether the order field is one of the plan's metrics.
func (p *AnalyticsPlan) OrderByMetric() bool {
	if p.OrderBy == nil {
		return false
	}
	return containsString(p.Metrics, p.OrderBy.Field)
}

// PageDimension returns the first page-level dimension of the plan.
func (p *AnalyticsPlan) PageDimension(reg *registry.DomainRegistry) (string, bool) {
	for _, d := range p.Dimensions {
		if reg.IsPageDimension(d) {
			return d, true
		}
	}
	return "", false
}

// BuildAnalytics filters draft against the registry allowlists and fills defaults.
// Every dropped element yields a warning.
func BuildAnalytics(draft AnalyticsDraft, reg *registry.DomainRegistry, today time.Time) (*AnalyticsPlan, []string, error) {
	var warnings []string
	named := len(draft.Metrics) + len(draft.Dimensions)

	metrics := resolveAll(draft.Metrics, reg.ResolveMetric, "metric", &warnings)
	dimensions := resolveAll(draft.Dimensions, reg.ResolveDimension, "dimension", &warnings)

	if named > 0 && len(metrics) == 0 && len(dimensions) == 0 {
		return nil, warnings, &PlanningError{
			Domain: string(registry.DomainAnalytics),
			Reason: fmt.Sprintf("none of the requested fields are available: %s",
				strings.Join(append(append([]string{}, draft.Metrics...), draft.Dimensions...), ", ")),
		}
	}
	if len(metrics) == 0 {
		metrics = append(metrics, reg.Analytics.DefaultMetrics...)
	}

	filters := make([]AnalyticsFilter, 0, len(draft.Filters))
	for _, f := range draft.Filters {
		clean, err := validateAnalyticsFilter(f, reg)
		if err != nil {
			warnings = append(warnings, err.Error())
			continue
		}
		filters = append(filters, clean)
	}

	ranges, rangeWarnings := normalizeRanges(draft.DateRanges, today)
	warnings = append(warnings, rangeWarnings...)
	if len(ranges) == 0 {
		ranges = []DateRange{DefaultDateRange(today)}
	}

	var orderBy *OrderBy
	if draft.OrderBy != nil && draft.OrderBy.Field != "" {
		field := ""
		if m, ok := reg.ResolveMetric(draft.OrderBy.Field); ok && containsString(metrics, m) {
			field = m
		} else if d, ok := reg.ResolveDimension(draft.OrderBy.Field); ok && containsString(dimensions, d) {
			field = d
		}
		if field == "" {
			warnings = append(warnings, fmt.Sprintf("dropped order by %q: not a requested metric or dimension", draft.OrderBy.Field))
		} else {
			orderBy = &OrderBy{Field: field, Desc: draft.OrderBy.Desc}
		}
	}

	limit := clampLimit(draft.Limit, reg.Analytics.DefaultLimit, reg.Analytics.MaxLimit, &warnings)

	return &AnalyticsPlan{
		Metrics:    metrics,
		Dimensions: dimensions,
		DateRanges: ranges,
		Filters:    filters,
		OrderBy:    orderBy,
		Limit:      limit,
		validated:  true,
	}, warnings, nil
}

func validateAnalyticsFilter(f AnalyticsFilter, reg *registry.DomainRegistry) (AnalyticsFilter, error) {
	field, ok := reg.ResolveDimension(f.Field)
	if !ok {
		return AnalyticsFilter{}, fmt.Errorf("dropped filter on unknown dimension %q", f.Field)
	}
	op := strings.ToUpper(strings.TrimSpace(f.Operator))
	if op == "" {
		op = "EXACT"
	}
	if !reg.IsAnalyticsOperator(op) {
		return AnalyticsFilter{}, fmt.Errorf("dropped filter on %s: unsupported operator %q", field, f.Operator)
	}

	out := AnalyticsFilter{Field: field, Operator: op}
	if op == "IN_LIST" {
		values := f.Values
		if len(values) == 0 && f.Value != "" {
			values = splitList(f.Value)
		}
		if len(values) == 0 {
			return AnalyticsFilter{}, fmt.Errorf("dropped IN_LIST filter on %s: no values", field)
		}
		out.Values = values
		return out, nil
	}
	if strings.TrimSpace(f.Value) == "" {
		return AnalyticsFilter{}, fmt.Errorf("dropped filter on %s: empty value", field)
	}
	out.Value = f.Value
	return out, nil
}

func resolveAll(names []string, resolve func(string) (string, bool), kind string, warnings *[]string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		canonical, ok := resolve(n)
		if !ok {
			*warnings = append(*warnings, fmt.Sprintf("dropped unknown %s %q", kind, n))
			continue
		}
		if !containsString(out, canonical) {
			out = append(out, canonical)
		}
	}
	return out
}

func clampLimit(requested, def, max int, warnings *[]string) int {
	if requested <= 0 {
		return def
	}
	if max > 0 && requested > max {
		*warnings = append(*warnings, fmt.Sprintf("limit %d capped at %d", requested, max))
		return max
	}
	return requested
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
