package fuseresults

import (
	"context"
	"testing"

	"query-orchestrator/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Logger Implementation
// ==========================

type TestLogger struct {
	t      *testing.T
	fields map[string]interface{}
}

func NewTestLogger(t *testing.T) *TestLogger {
	return &TestLogger{t: t, fields: make(map[string]interface{})}
}

func (l *TestLogger) Info(msg string, fields map[string]interface{}) {
	l.t.Logf("INFO: %s %v", msg, l.mergeFields(fields))
}

func (l *TestLogger) Warn(msg string, fields map[string]interface{}) {
	l.t.Logf("WARN: %s %v", msg, l.mergeFields(fields))
}

func (l *TestLogger) Error(msg string, fields map[string]interface{}) {
	l.t.Logf("ERROR: %s %v", msg, l.mergeFields(fields))
}

func (l *TestLogger) With(fields map[string]interface{}) Logger {
	return &TestLogger{t: l.t, fields: l.mergeFields(fields)}
}

func (l *TestLogger) mergeFields(fields map[string]interface{}) map[string]interface{} {
	all := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		all[k] = v
	}
	for k, v := range fields {
		all[k] = v
	}
	return all
}

// ==========================
// Test Helper Functions
// ==========================

func createTestHandler(t *testing.T) *Handler {
	return NewHandler(LoadConfig(), NewTestLogger(t))
}

func analyticsResult() *models.AgentResult {
	return &models.AgentResult{
		Domain: "analytics",
		Rows: []models.Row{
			{"pagePath": "/pricing", "screenPageViews": int64(900)},
			{"pagePath": "/Blog/Launch/", "screenPageViews": int64(400)},
			{"pagePath": "/gone", "screenPageViews": int64(12)},
		},
	}
}

func seoResult() *models.AgentResult {
	return &models.AgentResult{
		Domain: "seo",
		Rows: []models.Row{
			{"Address": "https://example.com/about", "Title 1": "About us"},
			{"Address": "https://example.com/blog/launch", "Title 1": "Launch"},
			{"Address": "https://example.com/pricing/?utm=x", "Title 1": "Pricing"},
			{"Address": "https://example.com/pricing", "Title 1": "Pricing (dup)"},
		},
	}
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_LeftJoinFromAnalytics(t *testing.T) {
	h := createTestHandler(t)
	out, err := h.Execute(context.Background(), &Input{Analytics: analyticsResult(), SEO: seoResult(), JoinKey: "pagePath"})
	require.NoError(t, err)

	fused := out.Fused
	assert.Equal(t, "pagePath", fused.JoinKey)
	require.Len(t, fused.JoinedRows, 4)

	first := fused.JoinedRows[0]
	assert.Equal(t, "/pricing", first[KeyField])
	assert.Equal(t, models.MatchBoth, first[models.MatchField])
	assert.Equal(t, "Pricing", first["Title 1"])
	assert.Equal(t, int64(900), first["screenPageViews"])

	second := fused.JoinedRows[1]
	assert.Equal(t, "/blog/launch", second[KeyField])
	assert.Equal(t, "Launch", second["Title 1"])

	third := fused.JoinedRows[2]
	assert.Equal(t, models.MatchAnalyticsOnly, third[models.MatchField])
	v, present := third["Title 1"]
	assert.True(t, present)
	assert.Nil(t, v)

	// crawl leftovers keep their original order
	assert.Equal(t, "/about", fused.JoinedRows[3][KeyField])
	assert.Equal(t, models.MatchSEOOnly, fused.JoinedRows[3][models.MatchField])
	assert.Nil(t, fused.JoinedRows[3]["screenPageViews"])

	assert.Contains(t, fused.Narrative, "2 pages matched in both")
	assert.Contains(t, fused.Narrative, "1 only in analytics and 1 only in the crawl")
	assert.Empty(t, out.Warnings)
}

func TestHandler_Execute_DuplicateCrawlKeysAreConsumed(t *testing.T) {
	h := createTestHandler(t)
	analytics := &models.AgentResult{Domain: "analytics", Rows: []models.Row{
		{"pagePath": "/pricing", "screenPageViews": int64(900)},
		{"pagePath": "/docs", "screenPageViews": int64(150)},
	}}
	seo := &models.AgentResult{Domain: "seo", Rows: []models.Row{
		{"Address": "http://example.com/pricing", "Title 1": "Pricing (http)"},
		{"Address": "https://example.com/pricing", "Title 1": "Pricing"},
		{"Address": "https://example.com/pricing/", "Title 1": "Pricing (slash)"},
		{"Address": "https://example.com/docs", "Title 1": "Docs"},
		{"Address": "https://example.com/about", "Title 1": "About"},
		{"Address": "https://example.com/about/", "Title 1": "About (slash)"},
	}}

	out, err := h.Execute(context.Background(), &Input{Analytics: analytics, SEO: seo, JoinKey: "pagePath"})
	require.NoError(t, err)

	rows := out.Fused.JoinedRows
	require.Len(t, rows, 3)
	assert.Equal(t, "/pricing", rows[0][KeyField])
	assert.Equal(t, "Pricing (http)", rows[0]["Title 1"])
	assert.Equal(t, "/docs", rows[1][KeyField])
	assert.Equal(t, models.MatchBoth, rows[1][models.MatchField])
	assert.Equal(t, "/about", rows[2][KeyField])
	assert.Equal(t, models.MatchSEOOnly, rows[2][models.MatchField])

	for _, r := range rows {
		if r[KeyField] == "/pricing" || r[KeyField] == "/docs" {
			assert.Equal(t, models.MatchBoth, r[models.MatchField])
		}
	}
	assert.Contains(t, out.Fused.Narrative, "2 pages matched in both, 0 only in analytics and 1 only in the crawl")
}

func TestHandler_Execute_IsDeterministic(t *testing.T) {
	h := createTestHandler(t)
	in := &Input{Analytics: analyticsResult(), SEO: seoResult(), JoinKey: "pagePath"}

	a, err := h.Execute(context.Background(), in)
	require.NoError(t, err)
	b, err := h.Execute(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestHandler_Execute_FieldCollisionIsPrefixed(t *testing.T) {
	h := createTestHandler(t)
	out, err := h.Execute(context.Background(), &Input{
		Analytics: &models.AgentResult{Rows: []models.Row{{"pagePath": "/a", "count": int64(3)}}},
		SEO:       &models.AgentResult{Rows: []models.Row{{"Address": "/a", "count": int64(1)}}},
	})
	require.NoError(t, err)

	row := out.Fused.JoinedRows[0]
	assert.Equal(t, int64(3), row["count"])
	assert.Equal(t, int64(1), row["seo.count"])
	assert.Equal(t, "pagePath", out.Fused.JoinKey)
}

func TestHandler_Execute_NoSharedKey(t *testing.T) {
	tests := []struct {
		name  string
		input *Input
	}{
		{
			name: "analytics without page dimension",
			input: &Input{
				Analytics: &models.AgentResult{Rows: []models.Row{{"date": "2026-10-18", "sessions": int64(5)}}},
				SEO:       seoResult(),
				JoinKey:   "pagePath",
			},
		},
		{
			name: "grouped crawl rows",
			input: &Input{
				Analytics: analyticsResult(),
				SEO:       &models.AgentResult{Rows: []models.Row{{"Indexability": "Indexable", "count": int64(4)}}},
				JoinKey:   "pagePath",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := createTestHandler(t).Execute(context.Background(), tt.input)
			require.NoError(t, err)
			assert.Empty(t, out.Fused.JoinedRows)
			assert.NotNil(t, out.Fused.JoinedRows)
			assert.Equal(t, "", out.Fused.JoinKey)
			assert.NotEmpty(t, out.Fused.Narrative)
			assert.Len(t, out.Warnings, 1)
		})
	}
}

func TestHandler_Execute_EmptySides(t *testing.T) {
	h := createTestHandler(t)

	out, err := h.Execute(context.Background(), &Input{Analytics: &models.AgentResult{Rows: []models.Row{}}, SEO: &models.AgentResult{}})
	require.NoError(t, err)
	assert.Empty(t, out.Fused.JoinedRows)
	assert.NotEmpty(t, out.Fused.Narrative)

	// the two /pricing variants collapse into one crawl-only row
	out, err = h.Execute(context.Background(), &Input{Analytics: nil, SEO: seoResult()})
	require.NoError(t, err)
	require.Len(t, out.Fused.JoinedRows, 3)
	for _, r := range out.Fused.JoinedRows {
		assert.Equal(t, models.MatchSEOOnly, r[models.MatchField])
	}
	assert.Contains(t, out.Fused.Narrative, "No page appeared in both sources.")
}

func TestHandler_Execute_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := createTestHandler(t).Execute(ctx, &Input{})
	assert.ErrorIs(t, err, context.Canceled)
}
