package planseo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"query-orchestrator/internal/common/reasoning"
	"query-orchestrator/internal/plan"
	"query-orchestrator/pkg/registry"
)

const (
	TaskType = "plan-seo"
)

var (
	ErrSEOPlanningFailed = errors.New("SEO_PLANNING_FAILED")
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
	return &Handler{
		config:   config,
		reasoner: reasoner,
		registry: reg,
		logger: log.With(map[string]interface{}{
			"taskType": TaskType,
		}),
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if h.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}

	hints := plan.SEOHints(input.Question, h.registry)

	raw, err := h.reasoner.Complete(ctx, h.buildPrompt(input), reasoning.Constraints{
		Format:    reasoning.FormatJSON,
		MaxTokens: h.config.MaxTokens,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		h.logger.Error("seo planning call failed", map[string]interface{}{"error": err.Error()})
		return nil, fmt.Errorf("%w: %w", ErrSEOPlanningFailed, err)
	}

	var warnings []string
	source := "model"
	draft, derr := decodeDraft(raw)
	if derr != nil {
		source = "hints"
		warnings = append(warnings, "model seo plan discarded: "+derr.Error())
		h.logger.Warn("discarding model seo draft", map[string]interface{}{"error": derr.Error()})
	}

	p, buildWarnings, err := plan.BuildSEO(plan.MergeSEO(draft, hints), h.registry, input.Anchors)
	warnings = append(warnings, buildWarnings...)
	if err != nil {
		h.logger.Warn("seo plan rejected", map[string]interface{}{
			"error":    err.Error(),
			"warnings": warnings,
		})
		return nil, fmt.Errorf("%w: %w", ErrSEOPlanningFailed, err)
	}

	h.logger.Info("seo plan built", map[string]interface{}{
		"filters":      len(p.Filters),
		"groupBy":      p.GroupBy,
		"aggregations": len(p.Aggregations),
		"anchors":      len(p.Anchors),
		"source":       source,
	})
	return &Output{Plan: p, Warnings: warnings, Source: source}, nil
}

func decodeDraft(raw string) (plan.SEODraft, error) {
	doc, ok := reasoning.ExtractJSON(raw)
	if !ok {
		return plan.SEODraft{}, errors.New("no JSON object in answer")
	}
	return plan.ParseSEODraft([]byte(doc))
}

func (h *Handler) buildPrompt(input *Input) reasoning.Prompt {
	var sb strings.Builder
	sb.WriteString("You translate questions about a website crawl export into table operations.\n")
	sb.WriteString("The table has one row per URL with these columns:\n")
	for _, c := range h.registry.SEO.Columns {
		fmt.Fprintf(&sb, "- %s (%s)\n", c.Name, c.Type)
	}
	fmt.Fprintf(&sb, "Filter operators: %s.\n", strings.Join(h.registry.SEO.Operators, ", "))
	fmt.Fprintf(&sb, "Aggregation functions: %s.\n", strings.Join(h.registry.SEO.Aggregations, ", "))
	sb.WriteString(`Reply with JSON only: {"filters": [{"column": "", "operator": "", "value": ""}], "group_by": null, ` +
		`"aggregations": [{"column": "", "function": ""}], "select_columns": [], "sort_by": null, "limit": null}`)

	user := input.Question
	if len(input.Anchors) > 0 {
		user += fmt.Sprintf("\n(Results will be restricted to %d pages selected from analytics data.)", len(input.Anchors))
	}
	return reasoning.Prompt{System: sb.String(), User: user}
}
