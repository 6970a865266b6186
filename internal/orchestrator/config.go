package orchestrator

import (
	"time"

	"query-orchestrator/internal/common/config"
	"query-orchestrator/internal/plan"
	classifyintent "query-orchestrator/internal/stages/classify-intent"
	fuseresults "query-orchestrator/internal/stages/fuse-results"
	plananalytics "query-orchestrator/internal/stages/plan-analytics"
	planseo "query-orchestrator/internal/stages/plan-seo"
	synthesizeanswer "query-orchestrator/internal/stages/synthesize-answer"
)

// Config holds per-stage settings. Stage budgets are enforced here, so the
// Timeout fields of the embedded stage configs are ignored.
type Config struct {
	DefaultPropertyID string
	StageTimeouts     map[string]time.Duration

	Classify      classifyintent.Config
	PlanAnalytics plananalytics.Config
	PlanSEO       planseo.Config
	Fuse          fuseresults.Config
	Synthesize    synthesizeanswer.Config
}

func DefaultConfig() Config {
	return Config{
		StageTimeouts: map[string]time.Duration{
			config.StageClassifyIntent:   20 * time.Second,
			config.StagePlanAnalytics:    30 * time.Second,
			config.StagePlanSEO:          30 * time.Second,
			config.StageExecuteAgent:     45 * time.Second,
			config.StageFuseResults:      5 * time.Second,
			config.StageSynthesizeAnswer: 30 * time.Second,
		},
		Classify:      *classifyintent.LoadConfig(),
		PlanAnalytics: *plananalytics.LoadConfig(),
		PlanSEO:       *planseo.LoadConfig(),
		Fuse:          *fuseresults.LoadConfig(),
		Synthesize:    *synthesizeanswer.LoadConfig(),
	}
}

// ConfigFrom maps the application configuration onto the orchestrator.
func ConfigFrom(cfg *config.Config) Config {
	c := DefaultConfig()
	c.DefaultPropertyID = cfg.Analytics.DefaultPropertyID
	for name := range c.StageTimeouts {
		c.StageTimeouts[name] = config.StageTimeout(cfg, name)
	}

	c.Fuse.Policy = plan.KeyPolicy{
		StripHost:         cfg.Fusion.StripHost,
		StripQuery:        cfg.Fusion.StripQuery,
		TrimTrailingSlash: cfg.Fusion.TrimTrailingSlash,
		CaseInsensitive:   cfg.Fusion.CaseInsensitive,
	}
	if cfg.Fusion.JoinKey != "" {
		c.Fuse.DefaultJoinKey = cfg.Fusion.JoinKey
	}
	if cfg.LLM.MaxTokens > 0 {
		c.Synthesize.MaxTokens = cfg.LLM.MaxTokens
	}
	return c
}

func (c Config) timeout(stage string) time.Duration {
	return c.StageTimeouts[stage]
}
