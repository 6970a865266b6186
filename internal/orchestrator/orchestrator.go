// Package orchestrator drives one question through classification, planning,
// agent execution, fusion and answer synthesis as an explicit state machine.
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"query-orchestrator/internal/audit"
	apperrors "query-orchestrator/internal/common/errors"
	"query-orchestrator/internal/common/logger"
	"query-orchestrator/internal/common/metrics"
	"query-orchestrator/internal/common/observability"
	"query-orchestrator/internal/common/reasoning"
	"query-orchestrator/internal/models"
	classifyintent "query-orchestrator/internal/stages/classify-intent"
	executeagent "query-orchestrator/internal/stages/execute-agent"
	fuseresults "query-orchestrator/internal/stages/fuse-results"
	plananalytics "query-orchestrator/internal/stages/plan-analytics"
	planseo "query-orchestrator/internal/stages/plan-seo"
	synthesizeanswer "query-orchestrator/internal/stages/synthesize-answer"
	"query-orchestrator/pkg/registry"
)

// Auditor is satisfied by *audit.Recorder.
type Auditor interface {
	Record(ctx context.Context, e audit.Entry) error
}

// Deps are the process-wide collaborators shared by every request.
type Deps struct {
	Registry  *registry.DomainRegistry
	Reasoner  reasoning.Reasoner
	Analytics executeagent.AnalyticsRunner
	SEO       executeagent.SEORunner
	Logger    logger.Logger
	Tracer    *observability.Tracer
	Obs       *observability.Observability
	Auditor   Auditor
}

type Orchestrator struct {
	config Config
	deps   Deps
	logger logger.Logger
}

func New(cfg Config, deps Deps) *Orchestrator {
	if deps.Tracer == nil {
		deps.Tracer = observability.NoopTracer()
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNoOpLogger()
	}
	return &Orchestrator{
		config: cfg,
		deps:   deps,
		logger: deps.Logger.With(map[string]interface{}{"component": "orchestrator"}),
	}
}

// stages holds the handlers for one request, bound to the request logger.
type stages struct {
	classify      *classifyintent.Handler
	planAnalytics *plananalytics.Handler
	planSEO       *planseo.Handler
	execute       *executeagent.Handler
	fuse          *fuseresults.Handler
	synthesize    *synthesizeanswer.Handler
}

func (o *Orchestrator) stagesFor(log logger.Logger) stages {
	classifyCfg := o.config.Classify
	classifyCfg.Timeout = 0
	analyticsCfg := o.config.PlanAnalytics
	analyticsCfg.Timeout = 0
	seoCfg := o.config.PlanSEO
	seoCfg.Timeout = 0
	fuseCfg := o.config.Fuse
	synthCfg := o.config.Synthesize
	synthCfg.Timeout = 0

	return stages{
		classify:      classifyintent.NewHandler(&classifyCfg, o.deps.Reasoner, o.deps.Registry, &classifyLoggerAdapter{log}),
		planAnalytics: plananalytics.NewHandler(&analyticsCfg, o.deps.Reasoner, o.deps.Registry, &planAnalyticsLoggerAdapter{log}),
		planSEO:       planseo.NewHandler(&seoCfg, o.deps.Reasoner, o.deps.Registry, &planSEOLoggerAdapter{log}),
		execute:       executeagent.NewHandler(&executeagent.Config{}, o.deps.Analytics, o.deps.SEO, &executeAgentLoggerAdapter{log}),
		fuse:          fuseresults.NewHandler(&fuseCfg, &fuseLoggerAdapter{log}),
		synthesize:    synthesizeanswer.NewHandler(&synthCfg, o.deps.Reasoner, &synthesizeLoggerAdapter{log}),
	}
}

// Run answers q. Failures are returned as *apperrors.StandardError, except a
// cancelled caller context, which is returned as is. An expired caller
// deadline is reported as STAGE_TIMEOUT.
func (o *Orchestrator) Run(ctx context.Context, requestID string, q models.Query) (*models.QueryResponse, error) {
	metrics.InFlightQueries.Inc()
	defer metrics.InFlightQueries.Dec()

	r := o.newRun(requestID, q)
	ctx, span := o.deps.Tracer.Start(ctx, "orchestrator.run", map[string]string{"request_id": requestID})

	resp, err := r.execute(ctx)
	observability.End(span, err)
	o.finish(ctx, r, err)
	return resp, err
}

func (o *Orchestrator) newRun(requestID string, q models.Query) *run {
	propertyID := strings.TrimSpace(q.PropertyID)
	if propertyID == "" {
		propertyID = o.config.DefaultPropertyID
	}
	log := o.logger.With(map[string]interface{}{"requestId": requestID})
	return &run{
		o:          o,
		requestID:  requestID,
		question:   strings.TrimSpace(q.Text),
		propertyID: propertyID,
		logger:     log,
		stages:     o.stagesFor(log),
		start:      time.Now(),
		plans:      make(map[string]interface{}),
	}
}

func (o *Orchestrator) finish(ctx context.Context, r *run, err error) {
	elapsed := time.Since(r.start)
	intent := r.intent.String()
	if intent == "" {
		intent = "unknown"
	}

	outcome, stage := "ok", ""
	if err != nil {
		if errors.Is(err, context.Canceled) {
			outcome = "cancelled"
		} else {
			stdErr := apperrors.Normalize(err)
			outcome, stage = string(stdErr.Code), stdErr.Stage
		}
	}

	metrics.QueryRequests.WithLabelValues(intent, outcome).Inc()
	metrics.QueryDuration.WithLabelValues(intent).Observe(elapsed.Seconds())
	o.deps.Obs.RecordQuery(context.WithoutCancel(ctx), intent, outcome, elapsed)

	fields := map[string]interface{}{
		"intent":     intent,
		"execution":  string(r.execution),
		"outcome":    outcome,
		"agentsUsed": r.agentsUsed,
		"warnings":   len(r.warnings),
		"duration":   elapsed.String(),
	}
	if err != nil {
		fields["stage"] = stage
		r.logger.Warn("query failed", fields)
	} else {
		r.logger.Info("query answered", fields)
	}

	if o.deps.Auditor != nil {
		_ = o.deps.Auditor.Record(ctx, audit.Entry{
			RequestID:  r.requestID,
			Intent:     intent,
			Execution:  string(r.execution),
			Outcome:    outcome,
			Stage:      stage,
			AgentsUsed: r.agentsUsed,
			Warnings:   len(r.warnings),
			Duration:   elapsed,
		})
	}
}
