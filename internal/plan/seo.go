package plan

import (
	"fmt"
	"strconv"
	"strings"

	"query-orchestrator/pkg/registry"
)

type SEOFilter struct {
	Column   string      `json:"column"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
}

type Aggregation struct {
	Column   string `json:"column"`
	Function string `json:"function"`
}

// OutputName is the result column an aggregation produces. Counting the key
// column is reported simply as "count".
func (a Aggregation) OutputName(keyColumn string) string {
	if a.Function == "count" && (a.Column == "" || a.Column == keyColumn) {
		return "count"
	}
	return a.Column + "_" + a.Function
}

type SortBy struct {
	Column string `json:"column"`
	Desc   bool   `json:"desc"`
}

type SEODraft struct {
	Filters       []SEOFilter   `json:"filters,omitempty"`
	GroupBy       string        `json:"group_by,omitempty"`
	Aggregations  []Aggregation `json:"aggregations,omitempty"`
	SelectColumns []string      `json:"select_columns,omitempty"`
	SortBy        *SortBy       `json:"sort_by,omitempty"`
	Limit         int           `json:"limit,omitempty"`
}

type SEOPlan struct {
	Filters       []SEOFilter   `json:"filters,omitempty"`
	GroupBy       string        `json:"group_by,omitempty"`
	Aggregations  []Aggregation `json:"aggregations,omitempty"`
	SelectColumns []string      `json:"select_columns,omitempty"`
	SortBy        *SortBy       `json:"sort_by,omitempty"`
	Limit         int           `json:"limit"`
	// Anchors restricts rows to these normalised page keys when non-empty.
	Anchors []string `json:"anchors,omitempty"`

	validated bool
}

func (p *SEOPlan) Validated() bool {
	return p != nil && p.validated
}

var seoOperatorAliases = map[string]string{
	"=":                "==",
	"eq":               "==",
	"equals":           "==",
	"<>":               "!=",
	"ne":               "!=",
	"not_equals":       "!=",
	"gt":               ">",
	"gte":              ">=",
	"lt":               "<",
	"lte":              "<=",
	"startswith":       "starts_with",
	"starts with":      "starts_with",
	"not contains":     "not_contains",
	"does_not_contain": "not_contains",
	"not in":           "not_in",
}

var aggregationAliases = map[string]string{
	"avg":      "mean",
	"average":  "mean",
	"distinct": "nunique",
	"unique":   "nunique",
	"total":    "sum",
}

// BuildSEO filters draft against the crawl column vocabulary. anchors must
// already be normalised with the fusion key policy.
func BuildSEO(draft SEODraft, reg *registry.DomainRegistry, anchors []string) (*SEOPlan, []string, error) {
	var warnings []string
	key := reg.SEO.KeyColumn

	named := len(draft.Filters) + len(draft.Aggregations) + len(draft.SelectColumns)
	if draft.GroupBy != "" {
		named++
	}
	survived := 0

	filters := make([]SEOFilter, 0, len(draft.Filters))
	for _, f := range draft.Filters {
		clean, err := validateSEOFilter(f, reg)
		if err != nil {
			warnings = append(warnings, err.Error())
			continue
		}
		filters = append(filters, clean)
	}
	survived += len(filters)

	groupBy := ""
	if draft.GroupBy != "" {
		if c, ok := reg.ResolveColumn(draft.GroupBy); ok {
			groupBy = c
			survived++
		} else {
			warnings = append(warnings, fmt.Sprintf("dropped group by on unknown column %q", draft.GroupBy))
		}
	}

	aggs := make([]Aggregation, 0, len(draft.Aggregations))
	for _, a := range draft.Aggregations {
		clean, err := validateAggregation(a, reg)
		if err != nil {
			warnings = append(warnings, err.Error())
			continue
		}
		if !containsAggregation(aggs, clean) {
			aggs = append(aggs, clean)
		}
	}
	survived += len(aggs)
	if groupBy != "" && len(aggs) == 0 {
		aggs = append(aggs, Aggregation{Column: key, Function: "count"})
	}

	selected := resolveAll(draft.SelectColumns, reg.ResolveColumn, "column", &warnings)
	survived += len(selected)

	if named > 0 && survived == 0 {
		return nil, warnings, &PlanningError{
			Domain: string(registry.DomainSEO),
			Reason: "none of the requested columns, filters or aggregations are available",
		}
	}

	if groupBy == "" && len(aggs) == 0 {
		if len(selected) == 0 {
			selected = append(selected, reg.SEO.DefaultColumns...)
		}
		if !containsString(selected, key) {
			selected = append([]string{key}, selected...)
		}
	} else {
		selected = nil
	}

	var sortBy *SortBy
	if draft.SortBy != nil && draft.SortBy.Column != "" {
		if col, ok := resolveSortColumn(draft.SortBy.Column, reg, groupBy, aggs); ok {
			sortBy = &SortBy{Column: col, Desc: draft.SortBy.Desc}
		} else {
			warnings = append(warnings, fmt.Sprintf("dropped sort on unknown column %q", draft.SortBy.Column))
		}
	}

	limit := clampLimit(draft.Limit, reg.SEO.DefaultLimit, reg.SEO.MaxLimit, &warnings)

	return &SEOPlan{
		Filters:       filters,
		GroupBy:       groupBy,
		Aggregations:  aggs,
		SelectColumns: selected,
		SortBy:        sortBy,
		Limit:         limit,
		Anchors:       anchors,
		validated:     true,
	}, warnings, nil
}

// WithAnchors returns a copy of p scoped to the given page keys.
func (p *SEOPlan) WithAnchors(anchors []string) *SEOPlan {
	cp := *p
	cp.Anchors = anchors
	return &cp
}

func validateSEOFilter(f SEOFilter, reg *registry.DomainRegistry) (SEOFilter, error) {
	col, ok := reg.ResolveColumn(f.Column)
	if !ok {
		return SEOFilter{}, fmt.Errorf("dropped filter on unknown column %q", f.Column)
	}
	op := strings.ToLower(strings.TrimSpace(f.Operator))
	if alias, ok := seoOperatorAliases[op]; ok {
		op = alias
	}
	if !reg.IsSEOOperator(op) {
		return SEOFilter{}, fmt.Errorf("dropped filter on %s: unsupported operator %q", col, f.Operator)
	}

	out := SEOFilter{Column: col, Operator: op}
	switch op {
	case ">", ">=", "<", "<=":
		n, ok := ToFloat(f.Value)
		if !ok {
			return SEOFilter{}, fmt.Errorf("dropped filter %s %s %v: value is not numeric", col, op, f.Value)
		}
		out.Value = n
	case "in", "not_in":
		values := toStringList(f.Value)
		if len(values) == 0 {
			return SEOFilter{}, fmt.Errorf("dropped filter %s %s: no values", col, op)
		}
		out.Value = values
	case "==", "!=":
		if reg.ColumnType(col) == registry.ColumnTypeNumber {
			if n, ok := ToFloat(f.Value); ok {
				out.Value = n
				break
			}
		}
		out.Value = toString(f.Value)
	default:
		out.Value = toString(f.Value)
	}
	return out, nil
}

func validateAggregation(a Aggregation, reg *registry.DomainRegistry) (Aggregation, error) {
	fn := strings.ToLower(strings.TrimSpace(a.Function))
	if alias, ok := aggregationAliases[fn]; ok {
		fn = alias
	}
	if !reg.IsAggregation(fn) {
		return Aggregation{}, fmt.Errorf("dropped unsupported aggregation %q", a.Function)
	}
	if a.Column == "" {
		if fn != "count" {
			return Aggregation{}, fmt.Errorf("dropped %s aggregation without a column", fn)
		}
		return Aggregation{Column: reg.SEO.KeyColumn, Function: fn}, nil
	}
	col, ok := reg.ResolveColumn(a.Column)
	if !ok {
		return Aggregation{}, fmt.Errorf("dropped %s aggregation on unknown column %q", fn, a.Column)
	}
	switch fn {
	case "sum", "mean", "min", "max":
		if reg.ColumnType(col) != registry.ColumnTypeNumber {
			return Aggregation{}, fmt.Errorf("dropped %s aggregation on non-numeric column %s", fn, col)
		}
	}
	return Aggregation{Column: col, Function: fn}, nil
}

func resolveSortColumn(name string, reg *registry.DomainRegistry, groupBy string, aggs []Aggregation) (string, bool) {
	if groupBy != "" || len(aggs) > 0 {
		lower := strings.ToLower(strings.TrimSpace(name))
		for _, a := range aggs {
			out := a.OutputName(reg.SEO.KeyColumn)
			if strings.ToLower(out) == lower {
				return out, true
			}
		}
		if col, ok := reg.ResolveColumn(name); ok && col == groupBy {
			return col, true
		}
		return "", false
	}
	return reg.ResolveColumn(name)
}

func containsAggregation(list []Aggregation, a Aggregation) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}

// ToFloat converts JSON numbers and numeric strings.
func ToFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func toString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func toStringList(v interface{}) []string {
	switch l := v.(type) {
	case []string:
		return l
	case []interface{}:
		out := make([]string, 0, len(l))
		for _, x := range l {
			out = append(out, toString(x))
		}
		return out
	case string:
		return splitList(l)
	case nil:
		return nil
	}
	return []string{toString(v)}
}
