package plan

import (
	"errors"
	"testing"
	"time"

	"query-orchestrator/pkg/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = time.Date(2026, 10, 19, 15, 4, 5, 0, time.UTC)

func testRegistry(t *testing.T) *registry.DomainRegistry {
	t.Helper()
	reg, err := registry.Default()
	require.NoError(t, err)
	return reg
}

func TestLastNDays(t *testing.T) {
	r := LastNDays(7, today)
	assert.Equal(t, DateRange{StartDate: "2026-10-13", EndDate: "2026-10-19"}, r)
	assert.Equal(t, 7, r.Days())

	assert.Equal(t, DateRange{StartDate: "2026-09-20", EndDate: "2026-10-19"}, DefaultDateRange(today))
}

func TestResolveDate(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"today", "2026-10-19", false},
		{"yesterday", "2026-10-18", false},
		{"7daysAgo", "2026-10-12", false},
		{"2026-01-31", "2026-01-31", false},
		{"last tuesday", "", true},
		{"2026-13-01", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ResolveDate(tt.in, today)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Format(DateLayout))
		})
	}
}

func TestRangesFromText(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []DateRange
	}{
		{
			name: "last n days",
			text: "sessions in the last 14 days",
			want: []DateRange{{"2026-10-06", "2026-10-19"}},
		},
		{
			name: "comparison puts the earlier period first",
			text: "compare users in the last 7 days vs the previous period",
			want: []DateRange{{"2026-10-06", "2026-10-12"}, {"2026-10-13", "2026-10-19"}},
		},
		{
			name: "last calendar month",
			text: "pageviews last month",
			want: []DateRange{{"2026-09-01", "2026-09-30"}},
		},
		{
			name: "explicit dates",
			text: "between 2026-01-01 and 2026-01-31",
			want: []DateRange{{"2026-01-01", "2026-01-31"}},
		},
		{
			name: "two explicit ranges given latest first",
			text: "2026-03-01 to 2026-03-31 versus 2026-02-01 to 2026-02-28",
			want: []DateRange{{"2026-02-01", "2026-02-28"}, {"2026-03-01", "2026-03-31"}},
		},
		{
			name: "yesterday",
			text: "how many sessions yesterday",
			want: []DateRange{{"2026-10-18", "2026-10-18"}},
		},
		{
			name: "this year",
			text: "revenue this year",
			want: []DateRange{{"2026-01-01", "2026-10-19"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := RangesFromText(tt.text, today)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := RangesFromText("top pages by views", today)
	assert.False(t, ok)
}

func TestKeyPolicy_Normalize(t *testing.T) {
	p := DefaultKeyPolicy()
	tests := []struct {
		in   string
		want string
	}{
		{"https://example.com/Pricing/", "/pricing"},
		{"http://example.com/blog/post?utm_source=x#top", "/blog/post"},
		{"/pricing", "/pricing"},
		{"/pricing/", "/pricing"},
		{"https://example.com", "/"},
		{"https://example.com/", "/"},
		{"/", "/"},
		{"  /About  ", "/about"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Normalize(tt.in))
		})
	}

	keep := KeyPolicy{StripHost: true}
	assert.Equal(t, "/Blog/?page=2", keep.Normalize("https://example.com/Blog/?page=2"))

	assert.Equal(t, []string{"/a", "/b"}, p.NormalizeAll([]string{"/a/", "https://x.com/A", "", "/b"}))
}

func TestBuildAnalytics_FiltersAgainstAllowlist(t *testing.T) {
	reg := testRegistry(t)
	draft := AnalyticsDraft{
		Metrics:    []string{"views", "bogusMetric"},
		Dimensions: []string{"page"},
		DateRanges: []DateRange{{"2026-10-10", "2026-10-19"}, {"2026-09-30", "2026-10-09"}},
		Filters: []AnalyticsFilter{
			{Field: "pagePath", Operator: "exact", Value: "/pricing"},
			{Field: "pagePath", Operator: "LIKE", Value: "x"},
			{Field: "nope", Operator: "EXACT", Value: "y"},
		},
		OrderBy: &OrderBy{Field: "views", Desc: true},
		Limit:   50000,
	}

	p, warnings, err := BuildAnalytics(draft, reg, today)
	require.NoError(t, err)
	assert.True(t, p.Validated())
	assert.Equal(t, []string{"screenPageViews"}, p.Metrics)
	assert.Equal(t, []string{"pagePath"}, p.Dimensions)
	assert.Equal(t, []DateRange{{"2026-09-30", "2026-10-09"}, {"2026-10-10", "2026-10-19"}}, p.DateRanges)
	assert.Equal(t, []AnalyticsFilter{{Field: "pagePath", Operator: "EXACT", Value: "/pricing"}}, p.Filters)
	assert.Equal(t, &OrderBy{Field: "screenPageViews", Desc: true}, p.OrderBy)
	assert.True(t, p.OrderByMetric())
	assert.Equal(t, 10000, p.Limit)
	assert.Len(t, warnings, 4)

	for _, m := range p.Metrics {
		_, ok := reg.ResolveMetric(m)
		assert.True(t, ok)
	}
	dim, ok := p.PageDimension(reg)
	assert.True(t, ok)
	assert.Equal(t, "pagePath", dim)
}

func TestBuildAnalytics_Defaults(t *testing.T) {
	reg := testRegistry(t)

	p, warnings, err := BuildAnalytics(AnalyticsDraft{}, reg, today)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, reg.Analytics.DefaultMetrics, p.Metrics)
	assert.Equal(t, []DateRange{DefaultDateRange(today)}, p.DateRanges)
	assert.Equal(t, reg.Analytics.DefaultLimit, p.Limit)
	_, ok := p.PageDimension(reg)
	assert.False(t, ok)

	p, _, err = BuildAnalytics(AnalyticsDraft{Dimensions: []string{"country"}}, reg, today)
	require.NoError(t, err)
	assert.Equal(t, reg.Analytics.DefaultMetrics, p.Metrics)
	assert.Equal(t, []string{"country"}, p.Dimensions)
}

func TestBuildAnalytics_NothingSurvives(t *testing.T) {
	reg := testRegistry(t)

	_, warnings, err := BuildAnalytics(AnalyticsDraft{Metrics: []string{"happiness"}, Dimensions: []string{"mood"}}, reg, today)
	require.Error(t, err)
	var pe *PlanningError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "analytics", pe.Domain)
	assert.Len(t, warnings, 2)
}

func TestBuildAnalytics_InListFilter(t *testing.T) {
	reg := testRegistry(t)
	p, _, err := BuildAnalytics(AnalyticsDraft{
		Filters: []AnalyticsFilter{{Field: "country", Operator: "in_list", Value: "France, Spain"}},
	}, reg, today)
	require.NoError(t, err)
	assert.Equal(t, []string{"France", "Spain"}, p.Filters[0].Values)
}

func TestBuildSEO(t *testing.T) {
	reg := testRegistry(t)

	t.Run("filters and selection", func(t *testing.T) {
		p, warnings, err := BuildSEO(SEODraft{
			Filters: []SEOFilter{
				{Column: "title length", Operator: "gt", Value: "60"},
				{Column: "Protocol", Operator: "!=", Value: "https"},
				{Column: "Title 1 Length", Operator: ">", Value: "long"},
				{Column: "Favourite Colour", Operator: "==", Value: "blue"},
			},
			SelectColumns: []string{"title", "depth"},
			SortBy:        &SortBy{Column: "depth", Desc: true},
			Limit:         5000,
		}, reg, nil)
		require.NoError(t, err)
		assert.True(t, p.Validated())
		assert.Equal(t, []SEOFilter{
			{Column: "Title 1 Length", Operator: ">", Value: 60.0},
			{Column: "Protocol", Operator: "!=", Value: "https"},
		}, p.Filters)
		assert.Equal(t, []string{"Address", "Title 1", "Crawl Depth"}, p.SelectColumns)
		assert.Equal(t, &SortBy{Column: "Crawl Depth", Desc: true}, p.SortBy)
		assert.Equal(t, 1000, p.Limit)
		assert.Len(t, warnings, 3)
	})

	t.Run("defaults", func(t *testing.T) {
		p, warnings, err := BuildSEO(SEODraft{}, reg, []string{"/pricing"})
		require.NoError(t, err)
		assert.Empty(t, warnings)
		assert.Equal(t, reg.SEO.DefaultColumns, p.SelectColumns)
		assert.Equal(t, 100, p.Limit)
		assert.Equal(t, []string{"/pricing"}, p.Anchors)
	})

	t.Run("group by falls back to count", func(t *testing.T) {
		p, _, err := BuildSEO(SEODraft{GroupBy: "status code", SortBy: &SortBy{Column: "count", Desc: true}}, reg, nil)
		require.NoError(t, err)
		assert.Equal(t, "Status Code", p.GroupBy)
		assert.Equal(t, []Aggregation{{Column: "Address", Function: "count"}}, p.Aggregations)
		assert.Nil(t, p.SelectColumns)
		assert.Equal(t, &SortBy{Column: "count", Desc: true}, p.SortBy)
	})

	t.Run("aggregations", func(t *testing.T) {
		p, warnings, err := BuildSEO(SEODraft{
			GroupBy: "indexability",
			Aggregations: []Aggregation{
				{Column: "word count", Function: "avg"},
				{Column: "Title 1", Function: "sum"},
				{Column: "Address", Function: "median"},
			},
		}, reg, nil)
		require.NoError(t, err)
		assert.Equal(t, []Aggregation{{Column: "Word Count", Function: "mean"}}, p.Aggregations)
		assert.Equal(t, "Word Count_mean", p.Aggregations[0].OutputName("Address"))
		assert.Len(t, warnings, 2)
	})

	t.Run("nothing survives", func(t *testing.T) {
		_, _, err := BuildSEO(SEODraft{SelectColumns: []string{"Favourite Colour"}}, reg, nil)
		var pe *PlanningError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, "seo", pe.Domain)
	})

	t.Run("list operators", func(t *testing.T) {
		p, _, err := BuildSEO(SEODraft{Filters: []SEOFilter{
			{Column: "Status Code", Operator: "in", Value: []interface{}{301.0, 302.0}},
			{Column: "Indexability", Operator: "not in", Value: "Non-Indexable"},
		}}, reg, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"301", "302"}, p.Filters[0].Value)
		assert.Equal(t, "not_in", p.Filters[1].Operator)
		assert.Equal(t, []string{"Non-Indexable"}, p.Filters[1].Value)
	})
}

func TestSEOPlan_WithAnchors(t *testing.T) {
	reg := testRegistry(t)
	p, _, err := BuildSEO(SEODraft{}, reg, nil)
	require.NoError(t, err)

	scoped := p.WithAnchors([]string{"/a"})
	assert.True(t, scoped.Validated())
	assert.Equal(t, []string{"/a"}, scoped.Anchors)
	assert.Nil(t, p.Anchors)
}

func TestUnvalidatedPlans(t *testing.T) {
	assert.False(t, (&AnalyticsPlan{Metrics: []string{"sessions"}}).Validated())
	assert.False(t, (&SEOPlan{}).Validated())
	var nilPlan *SEOPlan
	assert.False(t, nilPlan.Validated())
}

func TestParseDrafts(t *testing.T) {
	a, err := ParseAnalyticsDraft([]byte(`{"metrics":["sessions"],"dimensions":["date"],"date_ranges":[{"start_date":"7daysAgo","end_date":"today"}],"limit":null}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"sessions"}, a.Metrics)
	assert.Equal(t, "7daysAgo", a.DateRanges[0].StartDate)

	_, err = ParseAnalyticsDraft([]byte(`{"metrics":"sessions"}`))
	assert.Error(t, err)

	s, err := ParseSEODraft([]byte(`{"filters":[{"column":"Status Code","operator":">=","value":400}],"group_by":null,"limit":20}`))
	require.NoError(t, err)
	assert.Equal(t, 400.0, s.Filters[0].Value)
	assert.Equal(t, 20, s.Limit)

	_, err = ParseSEODraft([]byte(`{"filters":[{"column":"Status Code"}]}`))
	assert.Error(t, err)
}
