package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_LoadsAndValidates(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "1.0.0", reg.Version)
	assert.Equal(t, []string{"screenPageViews", "activeUsers", "sessions"}, reg.Analytics.DefaultMetrics)
	assert.Equal(t, "Address", reg.SEO.KeyColumn)
	assert.Equal(t, 10000, reg.Analytics.MaxLimit)
	assert.Equal(t, 100, reg.SEO.DefaultLimit)
}

func TestResolve(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)

	tests := []struct {
		name    string
		resolve func(string) (string, bool)
		input   string
		want    string
		ok      bool
	}{
		{"canonical metric", reg.ResolveMetric, "sessions", "sessions", true},
		{"metric alias", reg.ResolveMetric, "Page Views", "screenPageViews", true},
		{"metric case", reg.ResolveMetric, "ACTIVEUSERS", "activeUsers", true},
		{"unknown metric", reg.ResolveMetric, "bogusMetric", "", false},
		{"dimension alias", reg.ResolveDimension, "daily", "date", true},
		{"page dimension", reg.ResolveDimension, "pagePath", "pagePath", true},
		{"column alias", reg.ResolveColumn, "title", "Title 1", true},
		{"column canonical", reg.ResolveColumn, "Title 1 Length", "Title 1 Length", true},
		{"column unknown", reg.ResolveColumn, "Favourite Colour", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.resolve(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAllowedFields(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)

	analytics := reg.AllowedFields(DomainAnalytics)
	assert.Contains(t, analytics, "screenPageViews")
	assert.Contains(t, analytics, "pagePath")

	seo := reg.AllowedFields(DomainSEO)
	assert.Contains(t, seo, "Indexability")
	assert.NotContains(t, seo, "screenPageViews")

	assert.Nil(t, reg.AllowedFields(Domain("unknown")))
}

func TestRegistryHelpers(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)

	assert.True(t, reg.IsPageDimension("pagePath"))
	assert.False(t, reg.IsPageDimension("date"))
	assert.True(t, reg.IsSEOOperator("not_contains"))
	assert.False(t, reg.IsSEOOperator("~="))
	assert.True(t, reg.IsAnalyticsOperator("BEGINS_WITH"))
	assert.True(t, reg.IsAggregation("nunique"))
	assert.Equal(t, ColumnTypeNumber, reg.ColumnType("Crawl Depth"))
	assert.Equal(t, ColumnTypeString, reg.ColumnType("not a column"))
	assert.Equal(t, []string{"Protocol"}, reg.DerivedColumns())
}

func TestParse_RejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		msg  string
	}{
		{
			name: "malformed json",
			doc:  `{"analytics":`,
			msg:  "decode registry",
		},
		{
			name: "no metrics",
			doc:  `{"analytics":{"dimensions":[{"name":"date"}]},"seo":{"keyColumn":"Address","columns":[{"name":"Address","type":"string"}]}}`,
			msg:  "no analytics metrics",
		},
		{
			name: "duplicate metric",
			doc:  `{"analytics":{"metrics":[{"name":"sessions"},{"name":"sessions"}],"dimensions":[{"name":"date"}]},"seo":{"keyColumn":"Address","columns":[{"name":"Address","type":"string"}]}}`,
			msg:  "duplicate analytics metric",
		},
		{
			name: "dangling default metric",
			doc:  `{"analytics":{"metrics":[{"name":"sessions"}],"dimensions":[{"name":"date"}],"defaultMetrics":["users"]},"seo":{"keyColumn":"Address","columns":[{"name":"Address","type":"string"}]}}`,
			msg:  "default metric users",
		},
		{
			name: "bad column type",
			doc:  `{"analytics":{"metrics":[{"name":"sessions"}],"dimensions":[{"name":"date"}]},"seo":{"keyColumn":"Address","columns":[{"name":"Address","type":"blob"}]}}`,
			msg:  "unknown type",
		},
		{
			name: "missing key column",
			doc:  `{"analytics":{"metrics":[{"name":"sessions"}],"dimensions":[{"name":"date"}]},"seo":{"keyColumn":"URL","columns":[{"name":"Address","type":"string"}]}}`,
			msg:  "key column",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestLoadRegistry_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	require.NoError(t, os.WriteFile(path, DefaultJSON(), 0o644))

	reg, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.NotEmpty(t, reg.MetricNames())
	assert.NotEmpty(t, reg.DimensionNames())

	_, err = LoadRegistry(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, os.IsNotExist(err))
}
