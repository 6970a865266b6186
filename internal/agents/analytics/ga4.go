package analytics

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"query-orchestrator/internal/common/config"
	"query-orchestrator/internal/plan"

	analyticsdata "google.golang.org/api/analyticsdata/v1beta"
	"google.golang.org/api/option"
)

// Reporter runs a GA4 report. property is the bare numeric property id.
type Reporter interface {
	RunReport(ctx context.Context, property string, req *analyticsdata.RunReportRequest) (*analyticsdata.RunReportResponse, error)
}

// GA4Reporter calls the GA4 Data API v1beta.
type GA4Reporter struct {
	svc *analyticsdata.Service
}

// NewGA4Reporter authenticates with cfg.CredentialsFile when set, otherwise with
// application default credentials. A non-empty cfg.Endpoint overrides the API
// base URL; httpClient, when given, is used as is without authentication.
func NewGA4Reporter(ctx context.Context, cfg config.AnalyticsConfig, httpClient *http.Client) (*GA4Reporter, error) {
	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	switch {
	case httpClient != nil:
		opts = append(opts, option.WithHTTPClient(httpClient), option.WithoutAuthentication())
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	svc, err := analyticsdata.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create analytics data client: %w", err)
	}
	return &GA4Reporter{svc: svc}, nil
}

func (r *GA4Reporter) RunReport(ctx context.Context, property string, req *analyticsdata.RunReportRequest) (*analyticsdata.RunReportResponse, error) {
	return r.svc.Properties.RunReport("properties/"+property, req).Context(ctx).Do()
}

// BuildRequest maps a validated plan onto a RunReport request.
func BuildRequest(p *plan.AnalyticsPlan) *analyticsdata.RunReportRequest {
	req := &analyticsdata.RunReportRequest{Limit: int64(p.Limit)}
	for _, m := range p.Metrics {
		req.Metrics = append(req.Metrics, &analyticsdata.Metric{Name: m})
	}
	for _, d := range p.Dimensions {
		req.Dimensions = append(req.Dimensions, &analyticsdata.Dimension{Name: d})
	}
	for _, dr := range p.DateRanges {
		req.DateRanges = append(req.DateRanges, &analyticsdata.DateRange{StartDate: dr.StartDate, EndDate: dr.EndDate})
	}

	var exprs []*analyticsdata.FilterExpression
	for _, f := range p.Filters {
		exprs = append(exprs, filterExpression(f))
	}
	switch len(exprs) {
	case 0:
	case 1:
		req.DimensionFilter = exprs[0]
	default:
		req.DimensionFilter = &analyticsdata.FilterExpression{
			AndGroup: &analyticsdata.FilterExpressionList{Expressions: exprs},
		}
	}

	if p.OrderBy != nil {
		ob := &analyticsdata.OrderBy{Desc: p.OrderBy.Desc}
		if p.OrderByMetric() {
			ob.Metric = &analyticsdata.MetricOrderBy{MetricName: p.OrderBy.Field}
		} else {
			ob.Dimension = &analyticsdata.DimensionOrderBy{DimensionName: p.OrderBy.Field}
		}
		req.OrderBys = []*analyticsdata.OrderBy{ob}
	}
	return req
}

func filterExpression(f plan.AnalyticsFilter) *analyticsdata.FilterExpression {
	filter := &analyticsdata.Filter{FieldName: f.Field}
	negate := false

	switch f.Operator {
	case "IN_LIST":
		filter.InListFilter = &analyticsdata.InListFilter{Values: f.Values}
	case "NOT_EXACT":
		negate = true
		filter.StringFilter = &analyticsdata.StringFilter{MatchType: "EXACT", Value: f.Value}
	default:
		filter.StringFilter = &analyticsdata.StringFilter{MatchType: f.Operator, Value: f.Value}
	}

	expr := &analyticsdata.FilterExpression{Filter: filter}
	if negate {
		return &analyticsdata.FilterExpression{NotExpression: expr}
	}
	return expr
}

// NormalizePropertyID accepts "123" or "properties/123".
func NormalizePropertyID(raw string) (string, bool) {
	id := strings.TrimPrefix(strings.TrimSpace(raw), "properties/")
	if id == "" {
		return "", false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return id, true
}
