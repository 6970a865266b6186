package plan

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"query-orchestrator/pkg/registry"
)

// Keyword hints are deterministic readings of a question. They back up the
// model draft: merged into it when it parses, used alone when it does not.

var (
	topNPattern     = regexp.MustCompile(`\b(?:top|first|best|highest)\s+(\d+)\b`)
	mostPattern     = regexp.MustCompile(`\b(?:most|highest|top|busiest|best|largest)\b`)
	leastPattern    = regexp.MustCompile(`\b(?:least|lowest|fewest|worst|smallest)\b`)
	pathPattern     = regexp.MustCompile(`(?:^|[\s"'(,])(/[A-Za-z0-9\-_./~%]*)`)
	pagesPattern    = regexp.MustCompile(`\b(?:pages|per page|by page|each page|landing pages?|which page|what page|which urls?|urls)\b`)
	dailyPattern    = regexp.MustCompile(`\b(?:daily|per day|by day|each day|day by day|trend|over time)\b`)
	weeklyPattern   = regexp.MustCompile(`\b(?:weekly|per week|by week|each week)\b`)
	monthlyPattern  = regexp.MustCompile(`\b(?:monthly|per month|by month|each month)\b`)
	notHTTPSPattern = regexp.MustCompile(`\b(?:not|non|without|isn't|aren't|missing|no)[\s-]+(?:use\s+|using\s+|on\s+|served over\s+)?https\b|\binsecure\b|\bhttp only\b|\bplain http\b`)
	statusPattern   = regexp.MustCompile(`\b(?:status(?:\s+codes?)?|returning|returned|return|codes?)\s+(?:of\s+)?([1-5]\d\d)\b|\b([1-5]\d\d)\s+(?:errors?|pages|status|responses?|redirects?)\b`)
	clientErrPat    = regexp.MustCompile(`\b4xx\b|\bbroken\b|\bclient errors?\b|\bnot found\b`)
	serverErrPat    = regexp.MustCompile(`\b5xx\b|\bserver errors?\b`)
	redirectPat     = regexp.MustCompile(`\b3xx\b|\bredirect(?:s|ed|ing)?\b`)
	nonIndexPat     = regexp.MustCompile(`\bnon[\s-]?indexable\b|\bnot indexable\b|\bnoindex\b|\bnot indexed\b`)
	indexablePat    = regexp.MustCompile(`\bindexable\b`)
	groupPattern    = regexp.MustCompile(`\b(?:group(?:ed)?\s+by|broken\s+down\s+by|breakdown\s+by|count(?:ed)?\s+by|per)\s+([a-z0-9 \-()]+)`)
	sortPattern     = regexp.MustCompile(`\b(?:sort(?:ed)?|order(?:ed)?|rank(?:ed)?)\s+by\s+([a-z0-9 \-()]+)`)
	countPattern    = regexp.MustCompile(`\bhow many\b|\bcount\b|\bnumber of\b`)
	stopWordPattern = regexp.MustCompile(`\s+(?:and|with|for|where|that|which|sorted|ordered|in|from|desc|descending|asc|ascending|over|under|on)\b.*$`)
)

const comparatorTail = `(?:\s+(?:is|are|that are|which are))?\s+(?:(longer|more|greater|over|above|exceeding)|(shorter|less|fewer|under|below))(?:\s+than)?\s+(\d+)`

const missingHead = `\b(?:missing|without|no|empty|lacking|lack)\s+(?:an?\s+)?`

type lengthHint struct {
	compare *regexp.Regexp
	missing *regexp.Regexp
	base    string
	length  string
}

func newLengthHint(subject, base, length string) lengthHint {
	return lengthHint{
		compare: regexp.MustCompile(subject + comparatorTail),
		missing: regexp.MustCompile(missingHead + subject + `\b`),
		base:    base,
		length:  length,
	}
}

var lengthHints = []lengthHint{
	newLengthHint(`\btitles?(?:\s+tags?)?(?:\s+lengths?)?`, "Title 1", "Title 1 Length"),
	newLengthHint(`\bmeta\s+descriptions?(?:\s+lengths?)?`, "Meta Description 1", "Meta Description 1 Length"),
	newLengthHint(`\bh1s?(?:\s+headings?)?(?:\s+lengths?)?`, "H1-1", "H1-1 Length"),
}

type phrase struct {
	text      string
	canonical string
	metric    bool
	re        *regexp.Regexp
}

// mentionSet holds a registry's phrases, longest first, with their patterns compiled.
type mentionSet struct {
	analytics []phrase
	seo       []phrase
}

// mentionSets caches one mentionSet per *registry.DomainRegistry.
var mentionSets sync.Map

func mentionsFor(reg *registry.DomainRegistry) *mentionSet {
	if v, ok := mentionSets.Load(reg); ok {
		return v.(*mentionSet)
	}
	var set mentionSet
	for _, m := range reg.Analytics.Metrics {
		set.analytics = appendPhrases(set.analytics, m.Name, m.Aliases, true)
	}
	for _, dim := range reg.Analytics.Dimensions {
		set.analytics = appendPhrases(set.analytics, dim.Name, dim.Aliases, false)
	}
	for _, c := range reg.SEO.Columns {
		set.seo = appendPhrases(set.seo, c.Name, c.Aliases, false)
	}
	compilePhrases(set.analytics)
	compilePhrases(set.seo)

	v, _ := mentionSets.LoadOrStore(reg, &set)
	return v.(*mentionSet)
}

func compilePhrases(phrases []phrase) {
	sort.SliceStable(phrases, func(i, j int) bool { return len(phrases[i].text) > len(phrases[j].text) })
	for i := range phrases {
		phrases[i].re = regexp.MustCompile(`\b` + regexp.QuoteMeta(phrases[i].text) + `s?\b`)
	}
}

// AnalyticsHints reads metrics, dimensions, page filters, dates, limits and
// ordering from the question.
func AnalyticsHints(text string, reg *registry.DomainRegistry, today time.Time) AnalyticsDraft {
	var d AnalyticsDraft
	lower := strings.ToLower(text)

	if ranges, ok := RangesFromText(lower, today); ok {
		d.DateRanges = ranges
	}

	scan := blankDatePhrases(lower)
	for _, p := range findMentions(scan, mentionsFor(reg).analytics) {
		if p.metric {
			d.Metrics = appendUnique(d.Metrics, p.canonical)
		} else {
			d.Dimensions = appendUnique(d.Dimensions, p.canonical)
		}
	}

	if dailyPattern.MatchString(lower) {
		d.Dimensions = appendResolved(d.Dimensions, "date", reg.ResolveDimension)
	}
	if weeklyPattern.MatchString(lower) {
		d.Dimensions = appendResolved(d.Dimensions, "week", reg.ResolveDimension)
	}
	if monthlyPattern.MatchString(lower) {
		d.Dimensions = appendResolved(d.Dimensions, "month", reg.ResolveDimension)
	}

	pageDim := "pagePath"
	if len(reg.Analytics.PageDimensions) > 0 {
		pageDim = reg.Analytics.PageDimensions[0]
	}
	if paths := pagePaths(text); len(paths) > 0 {
		d.Dimensions = appendUnique(d.Dimensions, pageDim)
		if len(paths) == 1 {
			d.Filters = append(d.Filters, AnalyticsFilter{Field: pageDim, Operator: "EXACT", Value: paths[0]})
		} else {
			d.Filters = append(d.Filters, AnalyticsFilter{Field: pageDim, Operator: "IN_LIST", Values: paths})
		}
	} else if pagesPattern.MatchString(lower) {
		d.Dimensions = appendUnique(d.Dimensions, pageDim)
	}

	orderField := ""
	if len(d.Metrics) > 0 {
		orderField = d.Metrics[0]
	} else if len(reg.Analytics.DefaultMetrics) > 0 {
		orderField = reg.Analytics.DefaultMetrics[0]
	}
	if m := topNPattern.FindStringSubmatch(lower); m != nil {
		d.Limit, _ = strconv.Atoi(m[1])
		if orderField != "" {
			d.OrderBy = &OrderBy{Field: orderField, Desc: true}
		}
	} else if orderField != "" && len(d.Dimensions) > 0 {
		if mostPattern.MatchString(lower) {
			d.OrderBy = &OrderBy{Field: orderField, Desc: true}
		} else if leastPattern.MatchString(lower) {
			d.OrderBy = &OrderBy{Field: orderField, Desc: false}
		}
	}
	if d.OrderBy != nil && len(d.Metrics) == 0 {
		// the order field must be requested for GA4 to sort on it
		d.Metrics = append(d.Metrics, reg.Analytics.DefaultMetrics...)
	}
	return d
}

// SEOHints reads crawl filters, grouping, counting and column selection from the question.
func SEOHints(text string, reg *registry.DomainRegistry) SEODraft {
	var d SEODraft
	lower := strings.ToLower(text)

	if notHTTPSPattern.MatchString(lower) {
		d.Filters = append(d.Filters, SEOFilter{Column: "Protocol", Operator: "!=", Value: "https"})
		d.SelectColumns = appendUnique(d.SelectColumns, "Protocol")
	}

	for _, lh := range lengthHints {
		if m := lh.compare.FindStringSubmatch(lower); m != nil {
			op := ">"
			if m[2] != "" {
				op = "<"
			}
			n, _ := strconv.Atoi(m[3])
			d.Filters = append(d.Filters, SEOFilter{Column: lh.length, Operator: op, Value: float64(n)})
			d.SelectColumns = appendUnique(d.SelectColumns, lh.base, lh.length)
			continue
		}
		if lh.missing.MatchString(lower) {
			d.Filters = append(d.Filters, SEOFilter{Column: lh.base, Operator: "==", Value: ""})
			d.SelectColumns = appendUnique(d.SelectColumns, lh.base)
		}
	}

	errText := strings.ReplaceAll(lower, "broken down", "")
	switch {
	case statusPattern.MatchString(lower):
		m := statusPattern.FindStringSubmatch(lower)
		code := m[1]
		if code == "" {
			code = m[2]
		}
		n, _ := strconv.Atoi(code)
		d.Filters = append(d.Filters, SEOFilter{Column: "Status Code", Operator: "==", Value: float64(n)})
	case clientErrPat.MatchString(errText):
		d.Filters = append(d.Filters, statusRange(400, 500)...)
	case serverErrPat.MatchString(lower):
		d.Filters = append(d.Filters, statusRange(500, 600)...)
	case redirectPat.MatchString(lower):
		d.Filters = append(d.Filters, statusRange(300, 400)...)
	}

	if nonIndexPat.MatchString(lower) {
		d.Filters = append(d.Filters, SEOFilter{Column: "Indexability", Operator: "==", Value: "Non-Indexable"})
	} else if indexablePat.MatchString(lower) && !strings.Contains(lower, "indexability") {
		d.Filters = append(d.Filters, SEOFilter{Column: "Indexability", Operator: "==", Value: "Indexable"})
	}

	if m := groupPattern.FindStringSubmatch(lower); m != nil {
		if col, ok := resolveLeadingColumn(m[1], reg); ok {
			d.GroupBy = col
			d.Aggregations = append(d.Aggregations, Aggregation{Column: reg.SEO.KeyColumn, Function: "count"})
		}
	}
	if d.GroupBy == "" && countPattern.MatchString(lower) {
		d.Aggregations = append(d.Aggregations, Aggregation{Column: reg.SEO.KeyColumn, Function: "count"})
	}

	if m := sortPattern.FindStringSubmatch(lower); m != nil {
		if col, ok := resolveLeadingColumn(m[1], reg); ok {
			d.SortBy = &SortBy{Column: col, Desc: mostPattern.MatchString(m[1]) || strings.Contains(m[1], "desc")}
		}
	}

	if m := topNPattern.FindStringSubmatch(lower); m != nil {
		d.Limit, _ = strconv.Atoi(m[1])
	}

	for _, p := range findMentions(blankDatePhrases(lower), mentionsFor(reg).seo) {
		if p.canonical == reg.SEO.KeyColumn {
			continue
		}
		d.SelectColumns = appendUnique(d.SelectColumns, p.canonical)
	}
	return d
}

// MergeAnalytics overlays hints on a model draft. Dates from the text win
// because they are resolved deterministically.
func MergeAnalytics(model, hints AnalyticsDraft) AnalyticsDraft {
	out := model
	out.Metrics = appendUnique(append([]string{}, model.Metrics...), hints.Metrics...)
	out.Dimensions = appendUnique(append([]string{}, model.Dimensions...), hints.Dimensions...)
	if len(hints.DateRanges) > 0 {
		out.DateRanges = hints.DateRanges
	}
	out.Filters = append([]AnalyticsFilter{}, model.Filters...)
	for _, f := range hints.Filters {
		if !hasAnalyticsFilter(out.Filters, f.Field) {
			out.Filters = append(out.Filters, f)
		}
	}
	if out.OrderBy == nil {
		out.OrderBy = hints.OrderBy
	}
	if out.Limit <= 0 {
		out.Limit = hints.Limit
	}
	return out
}

func MergeSEO(model, hints SEODraft) SEODraft {
	out := model
	out.Filters = append([]SEOFilter{}, model.Filters...)
	for _, f := range hints.Filters {
		if !hasSEOFilter(out.Filters, f) {
			out.Filters = append(out.Filters, f)
		}
	}
	if out.GroupBy == "" {
		out.GroupBy = hints.GroupBy
	}
	out.Aggregations = append([]Aggregation{}, model.Aggregations...)
	for _, a := range hints.Aggregations {
		if !containsAggregation(out.Aggregations, a) {
			out.Aggregations = append(out.Aggregations, a)
		}
	}
	out.SelectColumns = appendUnique(append([]string{}, model.SelectColumns...), hints.SelectColumns...)
	if out.SortBy == nil {
		out.SortBy = hints.SortBy
	}
	if out.Limit <= 0 {
		out.Limit = hints.Limit
	}
	return out
}

func statusRange(lo, hi int) []SEOFilter {
	return []SEOFilter{
		{Column: "Status Code", Operator: ">=", Value: float64(lo)},
		{Column: "Status Code", Operator: "<", Value: float64(hi)},
	}
}

func pagePaths(text string) []string {
	var out []string
	for _, m := range pathPattern.FindAllStringSubmatch(text, -1) {
		p := strings.TrimRight(m[1], ".,")
		if p == "" {
			continue
		}
		out = appendUnique(out, p)
	}
	return out
}

// resolveLeadingColumn finds the longest prefix of words that names a column.
func resolveLeadingColumn(s string, reg *registry.DomainRegistry) (string, bool) {
	s = stopWordPattern.ReplaceAllString(strings.TrimSpace(s), "")
	words := strings.Fields(s)
	for n := len(words); n > 0; n-- {
		if col, ok := reg.ResolveColumn(strings.Join(words[:n], " ")); ok {
			return col, true
		}
		singular := strings.TrimSuffix(strings.Join(words[:n], " "), "s")
		if col, ok := reg.ResolveColumn(singular); ok {
			return col, true
		}
	}
	return "", false
}

func blankDatePhrases(s string) string {
	for _, re := range datePhrasePatterns {
		s = re.ReplaceAllStringFunc(s, func(m string) string { return strings.Repeat(" ", len(m)) })
	}
	return s
}

func appendPhrases(out []phrase, name string, aliases []string, metric bool) []phrase {
	out = append(out, phrase{text: strings.ToLower(name), canonical: name, metric: metric})
	for _, a := range aliases {
		out = append(out, phrase{text: strings.ToLower(a), canonical: name, metric: metric})
	}
	return out
}

// findMentions matches phrases in order, longest first as mentionsFor sorts
// them, and blanks each match so a shorter alias ("page") cannot fire inside a
// longer one ("page views").
func findMentions(text string, phrases []phrase) []phrase {
	type hit struct {
		pos int
		p   phrase
	}
	var hits []hit
	for _, p := range phrases {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			hits = append(hits, hit{pos: loc[0], p: p})
			text = text[:loc[0]] + strings.Repeat(" ", loc[1]-loc[0]) + text[loc[1]:]
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	out := make([]phrase, len(hits))
	for i, h := range hits {
		out[i] = h.p
	}
	return out
}

func appendResolved(list []string, name string, resolve func(string) (string, bool)) []string {
	if c, ok := resolve(name); ok {
		return appendUnique(list, c)
	}
	return list
}

func appendUnique(list []string, values ...string) []string {
	for _, v := range values {
		if !containsString(list, v) {
			list = append(list, v)
		}
	}
	return list
}

func hasAnalyticsFilter(list []AnalyticsFilter, field string) bool {
	for _, f := range list {
		if strings.EqualFold(f.Field, field) {
			return true
		}
	}
	return false
}

func hasSEOFilter(list []SEOFilter, f SEOFilter) bool {
	for _, x := range list {
		if strings.EqualFold(x.Column, f.Column) && x.Operator == f.Operator {
			return true
		}
	}
	return false
}
