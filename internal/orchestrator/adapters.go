package orchestrator

import (
	"query-orchestrator/internal/common/logger"
	classifyintent "query-orchestrator/internal/stages/classify-intent"
	executeagent "query-orchestrator/internal/stages/execute-agent"
	fuseresults "query-orchestrator/internal/stages/fuse-results"
	plananalytics "query-orchestrator/internal/stages/plan-analytics"
	planseo "query-orchestrator/internal/stages/plan-seo"
	synthesizeanswer "query-orchestrator/internal/stages/synthesize-answer"
)

// Logger adapters for stages that declare their own Logger interfaces
type classifyLoggerAdapter struct {
	logger.Logger
}

func (a *classifyLoggerAdapter) With(fields map[string]interface{}) classifyintent.Logger {
	return &classifyLoggerAdapter{a.Logger.With(fields)}
}

type planAnalyticsLoggerAdapter struct {
	logger.Logger
}

func (a *planAnalyticsLoggerAdapter) With(fields map[string]interface{}) plananalytics.Logger {
	return &planAnalyticsLoggerAdapter{a.Logger.With(fields)}
}

type planSEOLoggerAdapter struct {
	logger.Logger
}

func (a *planSEOLoggerAdapter) With(fields map[string]interface{}) planseo.Logger {
	return &planSEOLoggerAdapter{a.Logger.With(fields)}
}

type executeAgentLoggerAdapter struct {
	logger.Logger
}

func (a *executeAgentLoggerAdapter) With(fields map[string]interface{}) executeagent.Logger {
	return &executeAgentLoggerAdapter{a.Logger.With(fields)}
}

type fuseLoggerAdapter struct {
	logger.Logger
}

func (a *fuseLoggerAdapter) With(fields map[string]interface{}) fuseresults.Logger {
	return &fuseLoggerAdapter{a.Logger.With(fields)}
}

type synthesizeLoggerAdapter struct {
	logger.Logger
}

func (a *synthesizeLoggerAdapter) With(fields map[string]interface{}) synthesizeanswer.Logger {
	return &synthesizeLoggerAdapter{a.Logger.With(fields)}
}
