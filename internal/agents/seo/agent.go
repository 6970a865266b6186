// Package seo answers crawl-sheet questions by filtering, grouping and
// aggregating an in-memory snapshot of the crawl export.
package seo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"query-orchestrator/internal/agents"
	"query-orchestrator/internal/common/logger"
	"query-orchestrator/internal/models"
	"query-orchestrator/internal/plan"
	"query-orchestrator/pkg/registry"
)

var ErrDataSourceUnreachable = errors.New("crawl dataset unreachable")

type Agent struct {
	store    *Store
	registry *registry.DomainRegistry
	policy   plan.KeyPolicy
	logger   logger.Logger
}

func NewAgent(store *Store, reg *registry.DomainRegistry, policy plan.KeyPolicy, log logger.Logger) *Agent {
	return &Agent{
		store:    store,
		registry: reg,
		policy:   policy,
		logger:   log.With(map[string]interface{}{"agent": string(registry.DomainSEO)}),
	}
}

// Run executes a validated plan against the current snapshot. Columns the plan
// references but the snapshot lacks are reported as a warning and ignored.
func (a *Agent) Run(ctx context.Context, p *plan.SEOPlan) (*models.AgentResult, error) {
	if !p.Validated() {
		return nil, plan.ErrUnvalidatedPlan
	}

	ds, err := a.store.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataSourceUnreachable, err)
	}

	result := &models.AgentResult{Domain: string(registry.DomainSEO)}
	p, missing := a.restrict(p, ds)
	if len(missing) > 0 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("schema mismatch: missing columns: %s", strings.Join(missing, ", ")))
		a.logger.Warn("crawl snapshot is missing planned columns", map[string]interface{}{"missing": missing})
	}

	matched := make([]int, 0, ds.Len())
	for i := range ds.Rows {
		if a.matches(ds, i, p.Filters) {
			matched = append(matched, i)
		}
	}
	matched = a.anchor(ds, matched, p.Anchors)

	var rows []models.Row
	if p.GroupBy != "" || len(p.Aggregations) > 0 {
		rows = a.aggregate(ds, matched, p)
		if p.SortBy != nil {
			sortRows(rows, p.SortBy)
		}
	} else {
		if p.SortBy != nil {
			a.sortIndices(ds, matched, p.SortBy)
		}
		rows = make([]models.Row, 0, len(matched))
		for _, i := range matched {
			rows = append(rows, a.project(ds, i, p.SelectColumns))
		}
	}

	result.TotalRows = len(rows)
	if p.Limit > 0 && len(rows) > p.Limit {
		rows = rows[:p.Limit]
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Note: Showing %d of %d results", p.Limit, result.TotalRows))
	}
	result.Rows = rows

	a.logger.Debug("seo plan executed", map[string]interface{}{
		"matched":  len(matched),
		"returned": len(rows),
	})
	return result, nil
}

// restrict drops plan parts that reference columns absent from ds.
func (a *Agent) restrict(p *plan.SEOPlan, ds *Dataset) (*plan.SEOPlan, []string) {
	var missing []string
	note := func(col string) {
		for _, m := range missing {
			if m == col {
				return
			}
		}
		missing = append(missing, col)
	}

	cp := *p
	cp.Filters = nil
	for _, f := range p.Filters {
		if !ds.Has(f.Column) {
			note(f.Column)
			continue
		}
		cp.Filters = append(cp.Filters, f)
	}

	if p.GroupBy != "" && !ds.Has(p.GroupBy) {
		note(p.GroupBy)
		cp.GroupBy = ""
	}

	key := a.registry.SEO.KeyColumn
	cp.Aggregations = nil
	for _, ag := range p.Aggregations {
		if !ds.Has(ag.Column) {
			note(ag.Column)
			if ag.Function != "count" || ag.Column != key {
				continue
			}
		}
		cp.Aggregations = append(cp.Aggregations, ag)
	}

	cp.SelectColumns = nil
	for _, c := range p.SelectColumns {
		if !ds.Has(c) {
			note(c)
			continue
		}
		cp.SelectColumns = append(cp.SelectColumns, c)
	}

	if p.SortBy != nil && p.GroupBy == "" && len(p.Aggregations) == 0 && !ds.Has(p.SortBy.Column) {
		note(p.SortBy.Column)
		cp.SortBy = nil
	}

	if len(p.Anchors) > 0 && !ds.Has(key) {
		note(key)
	}
	return &cp, missing
}

func (a *Agent) matches(ds *Dataset, i int, filters []plan.SEOFilter) bool {
	for _, f := range filters {
		if !matchFilter(strings.TrimSpace(ds.Value(i, f.Column)), f) {
			return false
		}
	}
	return true
}

func matchFilter(cell string, f plan.SEOFilter) bool {
	switch f.Operator {
	case "==", "!=":
		eq := false
		if n, ok := f.Value.(float64); ok {
			v, parsed := agents.ParseNumber(cell)
			eq = parsed && v == n
		} else {
			eq = strings.EqualFold(cell, fmt.Sprint(f.Value))
		}
		return eq == (f.Operator == "==")
	case ">", ">=", "<", "<=":
		n, ok := f.Value.(float64)
		v, parsed := agents.ParseNumber(cell)
		if !ok || !parsed {
			return false
		}
		switch f.Operator {
		case ">":
			return v > n
		case ">=":
			return v >= n
		case "<":
			return v < n
		default:
			return v <= n
		}
	case "contains":
		return strings.Contains(strings.ToLower(cell), strings.ToLower(fmt.Sprint(f.Value)))
	case "not_contains":
		return !strings.Contains(strings.ToLower(cell), strings.ToLower(fmt.Sprint(f.Value)))
	case "starts_with":
		return strings.HasPrefix(strings.ToLower(cell), strings.ToLower(fmt.Sprint(f.Value)))
	case "in", "not_in":
		values, _ := f.Value.([]string)
		found := false
		for _, v := range values {
			if strings.EqualFold(cell, strings.TrimSpace(v)) {
				found = true
				break
			}
		}
		return found == (f.Operator == "in")
	}
	return false
}

// anchor keeps the first matched row for each anchor key, so crawl variants of
// one page (scheme, trailing slash, query) cannot crowd other anchors out.
func (a *Agent) anchor(ds *Dataset, matched []int, anchors []string) []int {
	if len(anchors) == 0 {
		return matched
	}
	want := make(map[string]struct{}, len(anchors))
	for _, k := range anchors {
		want[k] = struct{}{}
	}
	key := a.registry.SEO.KeyColumn
	taken := make(map[string]struct{}, len(anchors))
	out := matched[:0]
	for _, i := range matched {
		k := a.policy.Normalize(ds.Value(i, key))
		if _, ok := want[k]; !ok {
			continue
		}
		if _, dup := taken[k]; dup {
			continue
		}
		taken[k] = struct{}{}
		out = append(out, i)
	}
	return out
}

func (a *Agent) aggregate(ds *Dataset, matched []int, p *plan.SEOPlan) []models.Row {
	key := a.registry.SEO.KeyColumn

	groups := map[string][]int{}
	var order []string
	if p.GroupBy == "" {
		groups[""] = matched
		order = []string{""}
	} else {
		for _, i := range matched {
			g := strings.TrimSpace(ds.Value(i, p.GroupBy))
			if _, ok := groups[g]; !ok {
				order = append(order, g)
			}
			groups[g] = append(groups[g], i)
		}
		numeric := a.registry.ColumnType(p.GroupBy) == registry.ColumnTypeNumber
		sort.SliceStable(order, func(x, y int) bool {
			return less(agents.CoerceCell(order[x], numeric), agents.CoerceCell(order[y], numeric), false)
		})
	}

	rows := make([]models.Row, 0, len(order))
	for _, g := range order {
		row := models.Row{}
		if p.GroupBy != "" {
			row[p.GroupBy] = agents.CoerceCell(g, a.registry.ColumnType(p.GroupBy) == registry.ColumnTypeNumber)
		}
		for _, ag := range p.Aggregations {
			row[ag.OutputName(key)] = aggregateColumn(ds, groups[g], ag, key)
		}
		rows = append(rows, row)
	}
	return rows
}

func aggregateColumn(ds *Dataset, idx []int, ag plan.Aggregation, key string) interface{} {
	switch ag.Function {
	case "count":
		if ag.Column == key || !ds.Has(ag.Column) {
			return int64(len(idx))
		}
		n := 0
		for _, i := range idx {
			if strings.TrimSpace(ds.Value(i, ag.Column)) != "" {
				n++
			}
		}
		return int64(n)
	case "nunique":
		seen := map[string]struct{}{}
		for _, i := range idx {
			if v := strings.TrimSpace(ds.Value(i, ag.Column)); v != "" {
				seen[v] = struct{}{}
			}
		}
		return int64(len(seen))
	}

	var values []float64
	for _, i := range idx {
		if v, ok := agents.ParseNumber(ds.Value(i, ag.Column)); ok {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		if ag.Function == "sum" {
			return int64(0)
		}
		return nil
	}

	switch ag.Function {
	case "sum", "mean":
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		if ag.Function == "mean" {
			return agents.CoerceNumber(math.Round(sum/float64(len(values))*100) / 100)
		}
		return agents.CoerceNumber(sum)
	case "min":
		m := values[0]
		for _, v := range values[1:] {
			m = math.Min(m, v)
		}
		return agents.CoerceNumber(m)
	case "max":
		m := values[0]
		for _, v := range values[1:] {
			m = math.Max(m, v)
		}
		return agents.CoerceNumber(m)
	}
	return nil
}

func (a *Agent) sortIndices(ds *Dataset, idx []int, s *plan.SortBy) {
	numeric := a.registry.ColumnType(s.Column) == registry.ColumnTypeNumber
	sort.SliceStable(idx, func(x, y int) bool {
		return less(
			agents.CoerceCell(ds.Value(idx[x], s.Column), numeric),
			agents.CoerceCell(ds.Value(idx[y], s.Column), numeric),
			s.Desc,
		)
	})
}

func sortRows(rows []models.Row, s *plan.SortBy) {
	sort.SliceStable(rows, func(x, y int) bool {
		return less(rows[x][s.Column], rows[y][s.Column], s.Desc)
	})
}

func (a *Agent) project(ds *Dataset, i int, columns []string) models.Row {
	row := make(models.Row, len(columns))
	for _, c := range columns {
		row[c] = agents.CoerceCell(ds.Value(i, c), a.registry.ColumnType(c) == registry.ColumnTypeNumber)
	}
	return row
}

// less orders x before y, keeping empty cells last in both directions.
func less(x, y interface{}, desc bool) bool {
	if x == nil || y == nil {
		return x != nil && y == nil
	}
	c := compareValues(x, y)
	if desc {
		return c > 0
	}
	return c < 0
}

// compareValues orders numbers before strings. Strings compare case-insensitively.
func compareValues(x, y interface{}) int {
	xf, xNum := number(x)
	yf, yNum := number(y)
	switch {
	case xNum && yNum:
		switch {
		case xf < yf:
			return -1
		case xf > yf:
			return 1
		}
		return 0
	case xNum:
		return -1
	case yNum:
		return 1
	}
	return strings.Compare(strings.ToLower(fmt.Sprint(x)), strings.ToLower(fmt.Sprint(y)))
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
