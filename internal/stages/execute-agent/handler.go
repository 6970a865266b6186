package executeagent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"query-orchestrator/internal/agents/analytics"
	"query-orchestrator/internal/agents/seo"
	apperrors "query-orchestrator/internal/common/errors"
	"query-orchestrator/internal/models"
	"query-orchestrator/internal/plan"
	"query-orchestrator/pkg/registry"
)

const (
	TaskType = "execute-agent"

	noDataWarning = "no data for range/filter"
)

var (
	ErrUnknownDomain = errors.New("UNKNOWN_DOMAIN")
	ErrMissingPlan   = errors.New("MISSING_PLAN")
)

// Logger interface definition
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// AnalyticsRunner is satisfied by *analytics.Agent.
type AnalyticsRunner interface {
	Run(ctx context.Context, p *plan.AnalyticsPlan, propertyID string) (*models.AgentResult, error)
}

// SEORunner is satisfied by *seo.Agent.
type SEORunner interface {
	Run(ctx context.Context, p *plan.SEOPlan) (*models.AgentResult, error)
}

type Handler struct {
	config    *Config
	analytics AnalyticsRunner
	seo       SEORunner
	logger    Logger
}

func NewHandler(config *Config, analyticsRunner AnalyticsRunner, seoRunner SEORunner, log Logger) *Handler {
	return &Handler{
		config:    config,
		analytics: analyticsRunner,
		seo:       seoRunner,
		logger: log.With(map[string]interface{}{
			"taskType": TaskType,
		}),
	}
}

// Execute runs one validated plan against its agent. Agent failures come back
// as *apperrors.StandardError; context errors are returned unchanged so the
// caller can tell a timeout from a disconnect.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if h.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := h.run(ctx, input)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			h.logger.Warn("agent call interrupted", map[string]interface{}{
				"domain": string(input.Domain),
				"error":  ctxErr.Error(),
			})
			return nil, ctxErr
		}
		mapped := h.mapError(input, err)
		h.logger.Error("agent call failed", map[string]interface{}{
			"domain":    string(input.Domain),
			"errorCode": string(mapped.Code),
			"error":     err.Error(),
		})
		return nil, mapped
	}

	if result.Rows == nil {
		result.Rows = []models.Row{}
	}
	if len(result.Rows) == 0 {
		result.Warnings = append(result.Warnings, noDataWarning)
	}

	h.logger.Info("agent call completed", map[string]interface{}{
		"domain":    string(input.Domain),
		"rows":      len(result.Rows),
		"totalRows": result.TotalRows,
		"warnings":  len(result.Warnings),
		"duration":  time.Since(start).String(),
	})
	return &Output{Result: result}, nil
}

func (h *Handler) run(ctx context.Context, input *Input) (*models.AgentResult, error) {
	switch input.Domain {
	case registry.DomainAnalytics:
		if input.AnalyticsPlan == nil {
			return nil, fmt.Errorf("%w: analytics", ErrMissingPlan)
		}
		return h.analytics.Run(ctx, input.AnalyticsPlan, input.PropertyID)
	case registry.DomainSEO:
		if input.SEOPlan == nil {
			return nil, fmt.Errorf("%w: seo", ErrMissingPlan)
		}
		return h.seo.Run(ctx, input.SEOPlan)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDomain, input.Domain)
	}
}

func (h *Handler) mapError(input *Input, err error) *apperrors.StandardError {
	domain := string(input.Domain)
	switch {
	case errors.Is(err, analytics.ErrInvalidProperty):
		return apperrors.NewInvalidPropertyError(input.PropertyID, err)
	case errors.Is(err, analytics.ErrInvalidMetricCombination):
		return apperrors.NewInvalidMetricCombinationError(err)
	case errors.Is(err, analytics.ErrRateLimited):
		return apperrors.NewDataSourceRateLimitedError(domain, err)
	case errors.Is(err, analytics.ErrUpstreamUnavailable), errors.Is(err, seo.ErrDataSourceUnreachable):
		return apperrors.NewDataSourceUnreachableError(domain, err)
	}

	var stdErr *apperrors.StandardError
	if errors.As(err, &stdErr) {
		return stdErr
	}
	internal := apperrors.NewInternalError(err)
	internal.Domain = domain
	return internal
}
