// Package analytics runs validated analytics plans against the GA4 Data API.
package analytics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"query-orchestrator/internal/agents"
	"query-orchestrator/internal/common/logger"
	"query-orchestrator/internal/common/metrics"
	"query-orchestrator/internal/models"
	"query-orchestrator/internal/plan"
	"query-orchestrator/pkg/registry"

	analyticsdata "google.golang.org/api/analyticsdata/v1beta"
	"google.golang.org/api/googleapi"
)

var (
	ErrInvalidProperty          = errors.New("INVALID_PROPERTY")
	ErrInvalidMetricCombination = errors.New("INVALID_METRIC_COMBINATION")
	ErrUpstreamUnavailable      = errors.New("UPSTREAM_UNAVAILABLE")
	ErrRateLimited              = errors.New("RATE_LIMITED")
)

const cacheKeyPrefix = "qo:ga4:"

// Cache is satisfied by *database.RedisClient.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst interface{}) error
	SetJSON(ctx context.Context, key string, v interface{}, expiration time.Duration) error
}

type Agent struct {
	reporter Reporter
	cache    Cache
	cacheTTL time.Duration
	logger   logger.Logger
}

func NewAgent(reporter Reporter, log logger.Logger) *Agent {
	return &Agent{
		reporter: reporter,
		logger:   log.With(map[string]interface{}{"agent": string(registry.DomainAnalytics)}),
	}
}

// WithCache memoises reports for ttl. Cache failures are logged and ignored.
func (a *Agent) WithCache(cache Cache, ttl time.Duration) *Agent {
	a.cache = cache
	a.cacheTTL = ttl
	return a
}

// Run executes p for propertyID. Metric values are returned as numbers,
// dimension values as strings.
func (a *Agent) Run(ctx context.Context, p *plan.AnalyticsPlan, propertyID string) (*models.AgentResult, error) {
	if !p.Validated() {
		return nil, plan.ErrUnvalidatedPlan
	}
	property, ok := NormalizePropertyID(propertyID)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a numeric GA4 property id", ErrInvalidProperty, propertyID)
	}

	req := BuildRequest(p)
	key := reportCacheKey(property, req)

	var resp *analyticsdata.RunReportResponse
	if a.cache != nil {
		var cached analyticsdata.RunReportResponse
		if err := a.cache.GetJSON(ctx, key, &cached); err == nil {
			resp = &cached
			a.logger.Debug("report served from cache", map[string]interface{}{"property": property})
		}
	}

	if resp == nil {
		start := time.Now()
		var err error
		resp, err = a.reporter.RunReport(ctx, property, req)
		if err != nil {
			classified := classify(err)
			metrics.AgentErrors.WithLabelValues(string(registry.DomainAnalytics), errorCode(classified)).Inc()
			a.logger.Error("ga4 report failed", map[string]interface{}{
				"property": property,
				"error":    err.Error(),
			})
			return nil, classified
		}
		a.logger.Info("ga4 report completed", map[string]interface{}{
			"property": property,
			"rows":     len(resp.Rows),
			"duration": time.Since(start).String(),
		})
		if a.cache != nil {
			if err := a.cache.SetJSON(ctx, key, resp, a.cacheTTL); err != nil {
				a.logger.Warn("report cache write failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}

	result := convert(resp)
	if result.TotalRows > len(result.Rows) {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Note: Showing %d of %d results", len(result.Rows), result.TotalRows))
	}
	metrics.AgentRows.WithLabelValues(string(registry.DomainAnalytics)).Observe(float64(len(result.Rows)))
	return result, nil
}

func convert(resp *analyticsdata.RunReportResponse) *models.AgentResult {
	result := &models.AgentResult{
		Domain: string(registry.DomainAnalytics),
		Rows:   make([]models.Row, 0, len(resp.Rows)),
	}
	for _, r := range resp.Rows {
		row := make(models.Row, len(resp.DimensionHeaders)+len(resp.MetricHeaders))
		for i, h := range resp.DimensionHeaders {
			if i < len(r.DimensionValues) {
				row[h.Name] = r.DimensionValues[i].Value
			}
		}
		for i, h := range resp.MetricHeaders {
			if i < len(r.MetricValues) {
				row[h.Name] = metricValue(r.MetricValues[i].Value)
			}
		}
		result.Rows = append(result.Rows, row)
	}
	result.TotalRows = int(resp.RowCount)
	if result.TotalRows < len(result.Rows) {
		result.TotalRows = len(result.Rows)
	}
	return result
}

func metricValue(raw string) interface{} {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return raw
	}
	return agents.CoerceNumber(f)
}

// classify maps a Data API failure onto the agent's error sentinels. Context
// errors pass through so the caller can tell a timeout from an outage.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		msg := strings.ToLower(gerr.Message)
		fieldProblem := strings.Contains(msg, "metric") || strings.Contains(msg, "dimension") || strings.Contains(msg, "compatib")
		switch {
		case gerr.Code == 429:
			return fmt.Errorf("%w: %s", ErrRateLimited, gerr.Message)
		case gerr.Code == 401, gerr.Code == 403, gerr.Code == 404,
			gerr.Code == 400 && !fieldProblem && strings.Contains(msg, "property"):
			return fmt.Errorf("%w: %s", ErrInvalidProperty, gerr.Message)
		case gerr.Code == 400:
			return fmt.Errorf("%w: %s", ErrInvalidMetricCombination, gerr.Message)
		}
		return fmt.Errorf("%w: status %d: %s", ErrUpstreamUnavailable, gerr.Code, gerr.Message)
	}
	return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidProperty):
		return ErrInvalidProperty.Error()
	case errors.Is(err, ErrInvalidMetricCombination):
		return ErrInvalidMetricCombination.Error()
	case errors.Is(err, ErrRateLimited):
		return ErrRateLimited.Error()
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "TIMEOUT"
	}
	return ErrUpstreamUnavailable.Error()
}

func reportCacheKey(property string, req *analyticsdata.RunReportRequest) string {
	body, _ := json.Marshal(req)
	sum := sha256.Sum256(append([]byte(property+"|"), body...))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}
