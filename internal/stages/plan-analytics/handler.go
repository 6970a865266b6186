package plananalytics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"query-orchestrator/internal/common/reasoning"
	"query-orchestrator/internal/plan"
	"query-orchestrator/pkg/registry"
)

const (
	TaskType = "plan-analytics"
)

var (
	ErrAnalyticsPlanningFailed = errors.New("ANALYTICS_PLANNING_FAILED")
)

// Logger interface definition
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

type Handler struct {
	config   *Config
	reasoner reasoning.Reasoner
	registry *registry.DomainRegistry
	logger   Logger
}

func NewHandler(config *Config, reasoner reasoning.Reasoner, reg *registry.DomainRegistry, log Logger) *Handler {
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Handler{
		config:   config,
		reasoner: reasoner,
		registry: reg,
		logger: log.With(map[string]interface{}{
			"taskType": TaskType,
		}),
	}
}

// Execute drafts a plan with the reasoner, overlays keyword hints and filters
// the result against the registry. A malformed model draft is discarded with a
// warning; only a reasoner outage or a draft with no usable fields fails.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if h.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}

	today := h.config.Now().UTC()
	hints := plan.AnalyticsHints(input.Question, h.registry, today)

	raw, err := h.reasoner.Complete(ctx, h.buildPrompt(input.Question, today), reasoning.Constraints{
		Format:    reasoning.FormatJSON,
		MaxTokens: h.config.MaxTokens,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		h.logger.Error("analytics planning call failed", map[string]interface{}{"error": err.Error()})
		return nil, fmt.Errorf("%w: %w", ErrAnalyticsPlanningFailed, err)
	}

	var warnings []string
	source := "model"
	draft, derr := decodeDraft(raw)
	if derr != nil {
		source = "hints"
		warnings = append(warnings, "model analytics plan discarded: "+derr.Error())
		h.logger.Warn("discarding model analytics draft", map[string]interface{}{"error": derr.Error()})
	}

	p, buildWarnings, err := plan.BuildAnalytics(plan.MergeAnalytics(draft, hints), h.registry, today)
	warnings = append(warnings, buildWarnings...)
	if err != nil {
		h.logger.Warn("analytics plan rejected", map[string]interface{}{
			"error":    err.Error(),
			"warnings": warnings,
		})
		return nil, fmt.Errorf("%w: %w", ErrAnalyticsPlanningFailed, err)
	}

	h.logger.Info("analytics plan built", map[string]interface{}{
		"metrics":    p.Metrics,
		"dimensions": p.Dimensions,
		"dateRanges": len(p.DateRanges),
		"filters":    len(p.Filters),
		"source":     source,
	})
	return &Output{Plan: p, Warnings: warnings, Source: source}, nil
}

func decodeDraft(raw string) (plan.AnalyticsDraft, error) {
	doc, ok := reasoning.ExtractJSON(raw)
	if !ok {
		return plan.AnalyticsDraft{}, errors.New("no JSON object in answer")
	}
	return plan.ParseAnalyticsDraft([]byte(doc))
}

func (h *Handler) buildPrompt(question string, today time.Time) reasoning.Prompt {
	var sb strings.Builder
	sb.WriteString("You translate questions into Google Analytics 4 Data API report requests.\n")
	fmt.Fprintf(&sb, "Today is %s.\n", today.Format(plan.DateLayout))
	fmt.Fprintf(&sb, "Allowed metrics: %s.\n", strings.Join(h.registry.MetricNames(), ", "))
	fmt.Fprintf(&sb, "Allowed dimensions: %s.\n", strings.Join(h.registry.DimensionNames(), ", "))
	fmt.Fprintf(&sb, "Filter operators: %s. Filters apply to dimensions only.\n",
		strings.Join(h.registry.Analytics.FilterOperators, ", "))
	sb.WriteString("Dates are YYYY-MM-DD, NdaysAgo, yesterday or today. Use two date ranges only for comparisons.\n")
	sb.WriteString(`Reply with JSON only: {"metrics": [], "dimensions": [], "date_ranges": [{"start_date": "", "end_date": ""}], ` +
		`"filters": [{"field": "", "operator": "", "value": ""}], "order_by": {"field": "", "desc": true}, "limit": 10}`)

	return reasoning.Prompt{
		System: sb.String(),
		User:   question,
	}
}
