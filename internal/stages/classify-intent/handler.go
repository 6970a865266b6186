package classifyintent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"query-orchestrator/internal/common/reasoning"
	"query-orchestrator/internal/common/validation"
	"query-orchestrator/internal/models"
	"query-orchestrator/pkg/registry"
)

const (
	TaskType = "classify-intent"
)

var (
	ErrEmptyQuestion              = errors.New("EMPTY_QUESTION")
	ErrIntentClassificationFailed = errors.New("INTENT_CLASSIFICATION_FAILED")
)

var (
	analyticsKeywords = []string{"user", "session", "page", "traffic", "ga4", "views", "visit", "bounce", "engagement"}
	seoKeywords       = []string{"seo", "title", "meta", "index", "https", "crawl", "canonical", "h1", "status code", "redirect"}
)

var intentSchema = validation.MustCompile("intent", `{
	"type": "object",
	"required": ["intent"],
	"properties": {
		"intent": {"type": "string", "minLength": 1}
	}
}`)

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

// Execute labels the question. An unusable model answer never fails the
// request; only an unreachable or rate-limited reasoner does.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	if h.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}

	labels := make([]string, len(models.Intents))
	for i, intent := range models.Intents {
		labels[i] = intent.String()
	}

	raw, err := h.reasoner.Complete(ctx, h.buildPrompt(question, input.HasPropertyID), reasoning.Constraints{
		Format:    reasoning.FormatJSON,
		Labels:    labels,
		MaxTokens: h.config.MaxTokens,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		h.logger.Error("intent classification failed", map[string]interface{}{"error": err.Error()})
		return nil, fmt.Errorf("%w: %w", ErrIntentClassificationFailed, err)
	}

	if intent, ok := parseIntent(raw); ok {
		h.logger.Info("intent classified", map[string]interface{}{"intent": intent.String()})
		return &Output{Intent: intent, Source: "model"}, nil
	}

	intent := fallbackIntent(input.HasPropertyID)
	warning := fmt.Sprintf("could not read intent from model answer; defaulted to %s", intent)
	h.logger.Warn("unusable intent answer", map[string]interface{}{
		"answer":   truncate(raw, 200),
		"fallback": intent.String(),
	})
	return &Output{Intent: intent, Source: "fallback", Warnings: []string{warning}}, nil
}

func (h *Handler) buildPrompt(question string, hasProperty bool) reasoning.Prompt {
	var sb strings.Builder
	sb.WriteString("You route questions about a website to data domains.\n")
	sb.WriteString("analytics: Google Analytics 4 traffic and behaviour data. Metrics include ")
	sb.WriteString(strings.Join(firstN(h.registry.MetricNames(), 12), ", "))
	sb.WriteString(".\nseo: a site crawl export with one row per URL. Columns include ")
	sb.WriteString(strings.Join(firstN(h.registry.AllowedFields(registry.DomainSEO), 14), ", "))
	sb.WriteString(".\nboth: the question needs traffic data and crawl data about the same pages.\n")
	sb.WriteString(`Reply with JSON only: {"intent": "analytics" | "seo" | "both"}`)

	var user strings.Builder
	fmt.Fprintf(&user, "Question: %s\n", question)
	if hits := keywordHits(question, analyticsKeywords); len(hits) > 0 {
		fmt.Fprintf(&user, "Analytics terms present: %s\n", strings.Join(hits, ", "))
	}
	if hits := keywordHits(question, seoKeywords); len(hits) > 0 {
		fmt.Fprintf(&user, "SEO terms present: %s\n", strings.Join(hits, ", "))
	}
	if hasProperty {
		user.WriteString("A GA4 property id was supplied.")
	} else {
		user.WriteString("No GA4 property id was supplied.")
	}

	return reasoning.Prompt{System: sb.String(), User: user.String()}
}

// parseIntent accepts {"intent": "..."} or a bare label.
func parseIntent(raw string) (models.Intent, bool) {
	if doc, ok := reasoning.ExtractJSON(raw); ok {
		if res := intentSchema.ValidateJSON([]byte(doc)); res.Valid {
			var body struct {
				Intent string `json:"intent"`
			}
			if err := json.Unmarshal([]byte(doc), &body); err == nil {
				return models.ParseIntent(body.Intent)
			}
		}
		return "", false
	}
	return models.ParseIntent(strings.Trim(strings.TrimSpace(raw), `"'.`))
}

func fallbackIntent(hasProperty bool) models.Intent {
	if hasProperty {
		return models.IntentAnalytics
	}
	return models.IntentSEO
}

func keywordHits(question string, keywords []string) []string {
	q := strings.ToLower(question)
	var hits []string
	for _, k := range keywords {
		if strings.Contains(q, k) {
			hits = append(hits, k)
		}
	}
	return hits
}

func firstN(list []string, n int) []string {
	if len(list) > n {
		return list[:n]
	}
	return list
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
