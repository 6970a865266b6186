package fuseresults

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"query-orchestrator/internal/models"
)

const (
	TaskType = "fuse-results"

	// KeyField holds the normalised join key on every fused row.
	KeyField = "_key"

	seoPrefix = "seo."
)

// Logger interface definition
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

type Handler struct {
	config *Config
	logger Logger
}

func NewHandler(config *Config, log Logger) *Handler {
	return &Handler{
		config: config,
		logger: log.With(map[string]interface{}{
			"taskType": TaskType,
		}),
	}
}

type sideStats struct {
	both, analyticsOnly, seoOnly int
}

// Execute joins analytics rows (the anchor side) with crawl rows on the
// normalised page key. The result is a pure function of the input.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	joinKey := input.JoinKey
	if joinKey == "" {
		joinKey = h.config.DefaultJoinKey
	}
	analyticsRows := rowsOf(input.Analytics)
	seoRows := rowsOf(input.SEO)

	var warnings []string
	if len(analyticsRows) > 0 && !carries(analyticsRows, joinKey) {
		warnings = append(warnings, fmt.Sprintf("analytics rows have no %s field; results were not joined", joinKey))
	}
	if len(seoRows) > 0 && !carries(seoRows, h.config.SEOKeyColumn) {
		warnings = append(warnings, fmt.Sprintf("crawl rows have no %s column; results were not joined", h.config.SEOKeyColumn))
	}
	if len(warnings) > 0 {
		h.logger.Warn("join key missing", map[string]interface{}{"joinKey": joinKey, "warnings": warnings})
		fused := &models.FusedResult{JoinedRows: []models.Row{}, JoinKey: ""}
		fused.Narrative = unjoinedNarrative(len(analyticsRows), len(seoRows))
		return &Output{Fused: fused, Warnings: warnings}, nil
	}

	joined, stats := h.join(analyticsRows, seoRows, joinKey)
	fused := &models.FusedResult{
		JoinedRows: joined,
		JoinKey:    joinKey,
		Narrative:  narrative(joined, joinKey, stats),
	}

	h.logger.Info("results fused", map[string]interface{}{
		"joinKey":       joinKey,
		"rows":          len(joined),
		"both":          stats.both,
		"analyticsOnly": stats.analyticsOnly,
		"seoOnly":       stats.seoOnly,
	})
	return &Output{Fused: fused, Warnings: warnings}, nil
}

func (h *Handler) join(analyticsRows, seoRows []models.Row, joinKey string) ([]models.Row, sideStats) {
	var stats sideStats
	seoKey := h.config.SEOKeyColumn

	analyticsFields := fieldSet(analyticsRows)
	seoFields := fieldSet(seoRows)
	seoName := make(map[string]string, len(seoFields))
	for _, f := range seoFields {
		name := f
		if containsField(analyticsFields, f) {
			name = seoPrefix + f
		}
		seoName[f] = name
	}

	// first crawl row per key wins; its duplicates are consumed with it
	seoKeys := make([]string, len(seoRows))
	firstByKey := make(map[string]int, len(seoRows))
	for i, r := range seoRows {
		k := h.config.Policy.Normalize(fmt.Sprint(valueOr(r[seoKey], "")))
		seoKeys[i] = k
		if k == "" {
			continue
		}
		if _, dup := firstByKey[k]; !dup {
			firstByKey[k] = i
		}
	}

	matchedKeys := make(map[string]struct{}, len(analyticsRows))
	out := make([]models.Row, 0, len(analyticsRows)+len(seoRows))

	for _, ar := range analyticsRows {
		key := h.config.Policy.Normalize(fmt.Sprint(valueOr(ar[joinKey], "")))
		row := make(models.Row, len(analyticsFields)+len(seoFields)+2)
		for _, f := range analyticsFields {
			row[f] = ar[f]
		}
		row[KeyField] = key

		idx, ok := firstByKey[key]
		if ok && key != "" {
			matchedKeys[key] = struct{}{}
			for _, f := range seoFields {
				row[seoName[f]] = seoRows[idx][f]
			}
			row[models.MatchField] = models.MatchBoth
			stats.both++
		} else {
			for _, f := range seoFields {
				row[seoName[f]] = nil
			}
			row[models.MatchField] = models.MatchAnalyticsOnly
			stats.analyticsOnly++
		}
		out = append(out, row)
	}

	seenOnly := make(map[string]struct{})
	for i, sr := range seoRows {
		k := seoKeys[i]
		if _, ok := matchedKeys[k]; ok && k != "" {
			continue
		}
		if k != "" {
			if _, dup := seenOnly[k]; dup {
				continue
			}
			seenOnly[k] = struct{}{}
		}
		row := make(models.Row, len(analyticsFields)+len(seoFields)+2)
		for _, f := range analyticsFields {
			row[f] = nil
		}
		for _, f := range seoFields {
			row[seoName[f]] = sr[f]
		}
		row[KeyField] = k
		row[models.MatchField] = models.MatchSEOOnly
		stats.seoOnly++
		out = append(out, row)
	}
	return out, stats
}

func narrative(rows []models.Row, joinKey string, stats sideStats) string {
	if len(rows) == 0 {
		return "Neither analytics nor the crawl returned rows, so there was nothing to join."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Joined analytics and crawl data on %s: %d pages matched in both", joinKey, stats.both)
	fmt.Fprintf(&sb, ", %d only in analytics and %d only in the crawl.", stats.analyticsOnly, stats.seoOnly)

	var matched []string
	for _, r := range rows {
		if r[models.MatchField] == models.MatchBoth {
			matched = append(matched, fmt.Sprint(r[KeyField]))
			if len(matched) == 3 {
				break
			}
		}
	}
	if len(matched) > 0 {
		fmt.Fprintf(&sb, " Matched pages include %s.", strings.Join(matched, ", "))
	}
	if stats.both == 0 {
		sb.WriteString(" No page appeared in both sources.")
	}
	return sb.String()
}

func unjoinedNarrative(analyticsRows, seoRows int) string {
	return fmt.Sprintf("Analytics returned %d rows and the crawl returned %d rows, but they share no page key, "+
		"so they are reported separately.", analyticsRows, seoRows)
}

func rowsOf(r *models.AgentResult) []models.Row {
	if r == nil {
		return nil
	}
	return r.Rows
}

func carries(rows []models.Row, field string) bool {
	if field == "" {
		return false
	}
	for _, r := range rows {
		if _, ok := r[field]; ok {
			return true
		}
	}
	return false
}

// fieldSet returns every field seen across rows, sorted.
func fieldSet(rows []models.Row) []string {
	seen := make(map[string]struct{})
	for _, r := range rows {
		for f := range r {
			seen[f] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func containsField(fields []string, f string) bool {
	i := sort.SearchStrings(fields, f)
	return i < len(fields) && fields[i] == f
}

func valueOr(v, def interface{}) interface{} {
	if v == nil {
		return def
	}
	return v
}
