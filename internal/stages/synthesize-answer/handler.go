package synthesizeanswer

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"query-orchestrator/internal/common/reasoning"
	"query-orchestrator/internal/models"
)

const (
	TaskType = "synthesize-answer"

	SourceModel    = "model"
	SourceFallback = "fallback"
	SourceNoData   = "no_data"
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
	logger   Logger
}

func NewHandler(config *Config, reasoner reasoning.Reasoner, log Logger) *Handler {
	return &Handler{
		config:   config,
		reasoner: reasoner,
		logger: log.With(map[string]interface{}{
			"taskType": TaskType,
		}),
	}
}

// Execute writes the top-level answer. It never fails on a reasoner error:
// the answer degrades to a deterministic summary. Only a cancelled caller
// context is returned as an error.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if allEmpty(input) {
		return &Output{Answer: noDataAnswer(input), Source: SourceNoData}, nil
	}

	callCtx := ctx
	if h.config.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}

	text, err := h.reasoner.Complete(callCtx, h.buildPrompt(input), reasoning.Constraints{
		Format:    reasoning.FormatText,
		MaxTokens: h.config.MaxTokens,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		h.logger.Warn("answer synthesis failed, using summary", map[string]interface{}{"error": err.Error()})
		return &Output{Answer: h.summary(input), Source: SourceFallback}, nil
	}

	text = strings.TrimSpace(text)
	if text == "" {
		h.logger.Warn("empty answer from model, using summary", nil)
		return &Output{Answer: h.summary(input), Source: SourceFallback}, nil
	}
	return &Output{Answer: text, Source: SourceModel}, nil
}

func (h *Handler) buildPrompt(input *Input) reasoning.Prompt {
	system := "You are an analytics assistant. Answer the user's question from the data provided.\n" +
		"Start with a direct answer, then list the key numbers as bullet points and point out anything unusual.\n" +
		"Only use the data given. If a source is missing or a note says results were truncated, say so."

	data := map[string]interface{}{}
	if input.Analytics != nil {
		data["analytics"] = input.Analytics.Rows
	}
	if input.SEO != nil {
		data["seo"] = input.SEO.Rows
	}
	if input.Fused != nil && len(input.Fused.JoinedRows) > 0 {
		data["fused"] = input.Fused.JoinedRows
	}
	raw, err := json.Marshal(data)
	if err != nil {
		raw = []byte(fmt.Sprint(data))
	}
	payload := string(raw)
	if h.config.MaxDataChars > 0 && len(payload) > h.config.MaxDataChars {
		cut := h.config.MaxDataChars
		for cut > 0 && !utf8.RuneStart(payload[cut]) {
			cut--
		}
		payload = payload[:cut] + "..."
	}

	var user strings.Builder
	fmt.Fprintf(&user, "Question: %s\n\nData: %s", input.Question, payload)
	if len(input.Warnings) > 0 {
		fmt.Fprintf(&user, "\n\nNotes: %s", strings.Join(input.Warnings, "; "))
	}
	return reasoning.Prompt{System: system, User: user.String()}
}

// summary renders the results without the reasoner.
func (h *Handler) summary(input *Input) string {
	var parts []string
	if input.Fused != nil && input.Fused.Narrative != "" {
		parts = append(parts, input.Fused.Narrative)
	}
	if r := input.Analytics; r != nil {
		parts = append(parts, describe("Analytics", r, h.config.PreviewRows))
	}
	if r := input.SEO; r != nil {
		parts = append(parts, describe("Crawl", r, h.config.PreviewRows))
	}
	for _, w := range input.Warnings {
		if strings.HasPrefix(w, "Note:") {
			parts = append(parts, w)
		}
	}
	return strings.Join(parts, "\n\n")
}

func describe(label string, r *models.AgentResult, preview int) string {
	if len(r.Rows) == 0 {
		return fmt.Sprintf("%s returned no rows for this question.", label)
	}
	var sb strings.Builder
	total := r.TotalRows
	if total < len(r.Rows) {
		total = len(r.Rows)
	}
	fmt.Fprintf(&sb, "%s returned %d rows", label, total)
	if total > len(r.Rows) {
		fmt.Fprintf(&sb, " (%d shown)", len(r.Rows))
	}
	sb.WriteString(":")
	for i, row := range r.Rows {
		if i == preview {
			fmt.Fprintf(&sb, "\n- ... %d more", len(r.Rows)-preview)
			break
		}
		fmt.Fprintf(&sb, "\n- %s", formatRow(row))
	}
	return sb.String()
}

func formatRow(row models.Row) string {
	keys := make([]string, 0, len(row))
	for k := range row {
		if strings.HasPrefix(k, "_") {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		v := row[k]
		if v == nil {
			v = "-"
		}
		pairs = append(pairs, fmt.Sprintf("%s: %v", k, v))
	}
	return strings.Join(pairs, ", ")
}

func allEmpty(input *Input) bool {
	if input.Fused != nil && len(input.Fused.JoinedRows) > 0 {
		return false
	}
	return input.Analytics.IsEmpty() && input.SEO.IsEmpty()
}

func noDataAnswer(input *Input) string {
	var sources []string
	if input.Analytics != nil {
		sources = append(sources, "Google Analytics")
	}
	if input.SEO != nil {
		sources = append(sources, "the site crawl")
	}
	where := "the data sources"
	if len(sources) > 0 {
		where = strings.Join(sources, " and ")
	}
	return fmt.Sprintf("No rows matched your question in %s. The date range or filters may be too narrow, "+
		"or the pages may not have been tracked or crawled yet.", where)
}
