package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"query-orchestrator/internal/common/config"
	apperrors "query-orchestrator/internal/common/errors"
	"query-orchestrator/internal/common/logger"
	"query-orchestrator/internal/common/metrics"
	"query-orchestrator/internal/common/observability"
	"query-orchestrator/internal/common/reasoning"
	"query-orchestrator/internal/models"
	"query-orchestrator/internal/plan"
	classifyintent "query-orchestrator/internal/stages/classify-intent"
	executeagent "query-orchestrator/internal/stages/execute-agent"
	fuseresults "query-orchestrator/internal/stages/fuse-results"
	plananalytics "query-orchestrator/internal/stages/plan-analytics"
	planseo "query-orchestrator/internal/stages/plan-seo"
	synthesizeanswer "query-orchestrator/internal/stages/synthesize-answer"
	"query-orchestrator/pkg/registry"
)

// State is a node of the request state machine.
type State string

const (
	StateReceived   State = "received"
	StateClassified State = "classified"
	StatePlanned    State = "planned"
	StateExecuting  State = "executing"
	StateFusing     State = "fusing"
	StateResponding State = "responding"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// run is the state of one request. The mutex guards fields written by the
// concurrent legs of an independent multi-domain request.
type run struct {
	o          *Orchestrator
	requestID  string
	question   string
	propertyID string
	logger     logger.Logger
	stages     stages
	start      time.Time

	mu         sync.Mutex
	states     []models.StateRecord
	warnings   []string
	plans      map[string]interface{}
	agentsUsed []string

	intent    models.Intent
	execution models.Execution
	joinKey   string
	analytics *models.AgentResult
	seo       *models.AgentResult
	fused     *models.FusedResult
}

func (r *run) execute(ctx context.Context) (*models.QueryResponse, error) {
	r.enter(StateReceived)
	if r.question == "" {
		return nil, r.fail(apperrors.NewInvalidRequestError("query text is empty").WithStage(string(StateReceived)))
	}

	if err := r.classify(ctx); err != nil {
		return nil, r.fail(err)
	}
	if r.intent.NeedsAnalytics() && r.propertyID == "" {
		return nil, r.fail(apperrors.NewPropertyRequiredError().WithStage(config.StageClassifyIntent))
	}

	var err error
	switch r.intent {
	case models.IntentAnalytics:
		r.execution = models.ExecutionSingle
		err = r.analyticsLeg(ctx)
	case models.IntentSEO:
		r.execution = models.ExecutionSingle
		err = r.seoLeg(ctx, nil)
	default:
		err = r.multi(ctx)
	}
	if err != nil {
		return nil, r.fail(err)
	}

	if r.intent == models.IntentBoth && r.analytics != nil && r.seo != nil {
		if err := r.fuse(ctx); err != nil {
			return nil, r.fail(err)
		}
	}

	answer, err := r.synthesize(ctx)
	if err != nil {
		return nil, r.fail(err)
	}
	r.enter(StateDone)
	return r.response(answer), nil
}

// ==========================
// Stages
// ==========================

func (r *run) classify(ctx context.Context) error {
	return r.step(ctx, StateClassified, config.StageClassifyIntent, func(ctx context.Context) error {
		out, err := r.stages.classify.Execute(ctx, &classifyintent.Input{
			Question:      r.question,
			HasPropertyID: r.propertyID != "",
		})
		if err != nil {
			return err
		}
		r.intent = out.Intent
		r.addWarnings(out.Warnings...)
		return nil
	})
}

func (r *run) planAnalytics(ctx context.Context) (*plan.AnalyticsPlan, error) {
	var p *plan.AnalyticsPlan
	err := r.step(ctx, StatePlanned, config.StagePlanAnalytics, func(ctx context.Context) error {
		out, err := r.stages.planAnalytics.Execute(ctx, &plananalytics.Input{Question: r.question})
		if err != nil {
			return err
		}
		p = out.Plan
		r.addWarnings(out.Warnings...)
		r.setPlan(registry.DomainAnalytics, p)
		return nil
	})
	return p, err
}

func (r *run) planSEO(ctx context.Context, anchors []string) (*plan.SEOPlan, error) {
	var p *plan.SEOPlan
	err := r.step(ctx, StatePlanned, config.StagePlanSEO, func(ctx context.Context) error {
		out, err := r.stages.planSEO.Execute(ctx, &planseo.Input{Question: r.question, Anchors: anchors})
		if err != nil {
			return err
		}
		p = out.Plan
		r.addWarnings(out.Warnings...)
		r.setPlan(registry.DomainSEO, p)
		return nil
	})
	return p, err
}

func (r *run) executeAgent(ctx context.Context, input *executeagent.Input) (*models.AgentResult, error) {
	var result *models.AgentResult
	err := r.step(ctx, StateExecuting, config.StageExecuteAgent, func(ctx context.Context) error {
		out, err := r.stages.execute.Execute(ctx, input)
		if err != nil {
			return err
		}
		result = out.Result
		r.addWarnings(result.Warnings...)
		r.mu.Lock()
		r.agentsUsed = append(r.agentsUsed, string(input.Domain))
		r.mu.Unlock()
		return nil
	})
	return result, err
}

func (r *run) fuse(ctx context.Context) error {
	return r.step(ctx, StateFusing, config.StageFuseResults, func(ctx context.Context) error {
		out, err := r.stages.fuse.Execute(ctx, &fuseresults.Input{
			Analytics: r.analytics,
			SEO:       r.seo,
			JoinKey:   r.joinKey,
		})
		if err != nil {
			return err
		}
		r.fused = out.Fused
		r.addWarnings(out.Warnings...)
		return nil
	})
}

func (r *run) synthesize(ctx context.Context) (string, error) {
	var answer string
	err := r.step(ctx, StateResponding, config.StageSynthesizeAnswer, func(ctx context.Context) error {
		out, err := r.stages.synthesize.Execute(ctx, &synthesizeanswer.Input{
			Question:  r.question,
			Intent:    r.intent,
			Analytics: r.analytics,
			SEO:       r.seo,
			Fused:     r.fused,
			Warnings:  r.warnings,
		})
		if err != nil {
			return err
		}
		answer = out.Answer
		return nil
	})
	return answer, err
}

// ==========================
// Legs
// ==========================

func (r *run) analyticsLeg(ctx context.Context) error {
	p, err := r.planAnalytics(ctx)
	if err != nil {
		return err
	}
	return r.runAnalytics(ctx, p)
}

func (r *run) runAnalytics(ctx context.Context, p *plan.AnalyticsPlan) error {
	res, err := r.executeAgent(ctx, &executeagent.Input{
		Domain:        registry.DomainAnalytics,
		AnalyticsPlan: p,
		PropertyID:    r.propertyID,
	})
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.analytics = res
	r.mu.Unlock()
	return nil
}

func (r *run) seoLeg(ctx context.Context, anchors []string) error {
	p, err := r.planSEO(ctx, anchors)
	if err != nil {
		return err
	}
	res, err := r.executeAgent(ctx, &executeagent.Input{Domain: registry.DomainSEO, SEOPlan: p})
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.seo = res
	r.mu.Unlock()
	return nil
}

// multi answers a question needing both domains. A page-level analytics plan
// makes the crawl lookup depend on the analytics pages; otherwise both legs
// run concurrently. One failed leg degrades to a note.
func (r *run) multi(ctx context.Context) error {
	r.joinKey = r.o.config.Fuse.DefaultJoinKey

	ap, aErr := r.planAnalytics(ctx)
	if aErr != nil {
		if ctx.Err() != nil {
			return aErr
		}
		r.execution = models.ExecutionSingle
		r.legFailed(registry.DomainAnalytics, aErr)
		return r.degrade(aErr, r.seoLeg(ctx, nil))
	}

	if dim, ok := ap.PageDimension(r.o.deps.Registry); ok {
		r.execution = models.ExecutionDependent
		r.joinKey = dim

		if aErr = r.runAnalytics(ctx, ap); aErr != nil {
			if ctx.Err() != nil {
				return aErr
			}
			r.legFailed(registry.DomainAnalytics, aErr)
			return r.degrade(aErr, r.seoLeg(ctx, nil))
		}

		anchors := r.anchors(r.analytics, dim, ap.Limit)
		if len(anchors) == 0 {
			// nothing to look up: the crawl leg is scoped to zero pages
			r.addWarnings("Analytics returned no pages, so no crawl data was looked up")
			r.mu.Lock()
			r.seo = &models.AgentResult{Domain: string(registry.DomainSEO), Rows: []models.Row{}}
			r.mu.Unlock()
			return nil
		}
		if sErr := r.seoLeg(ctx, anchors); sErr != nil {
			if ctx.Err() != nil {
				return sErr
			}
			r.legFailed(registry.DomainSEO, sErr)
		}
		return nil
	}

	r.execution = models.ExecutionIndependent
	var wg sync.WaitGroup
	var sErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		aErr = r.runAnalytics(ctx, ap)
	}()
	go func() {
		defer wg.Done()
		sErr = r.seoLeg(ctx, nil)
	}()
	wg.Wait()

	if ctx.Err() != nil && (aErr != nil || sErr != nil) {
		return ctx.Err()
	}
	switch {
	case aErr != nil && sErr != nil:
		return apperrors.Worse(apperrors.Normalize(aErr), apperrors.Normalize(sErr))
	case aErr != nil:
		r.legFailed(registry.DomainAnalytics, aErr)
	case sErr != nil:
		r.legFailed(registry.DomainSEO, sErr)
	}
	return nil
}

// degrade finishes a multi request whose analytics leg failed. seoErr is the
// outcome of the crawl leg that ran alone.
func (r *run) degrade(analyticsErr, seoErr error) error {
	if seoErr == nil {
		return nil
	}
	var stdErr *apperrors.StandardError
	if !errors.As(seoErr, &stdErr) {
		return seoErr
	}
	return apperrors.Worse(apperrors.Normalize(analyticsErr), stdErr)
}

func (r *run) anchors(res *models.AgentResult, dim string, limit int) []string {
	raw := make([]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		if v, ok := row[dim]; ok && v != nil {
			raw = append(raw, fmt.Sprint(v))
		}
	}
	keys := r.o.config.Fuse.Policy.NormalizeAll(raw)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys
}

func (r *run) legFailed(domain registry.Domain, err error) {
	stdErr := apperrors.Normalize(err)
	label := "Analytics"
	if domain == registry.DomainSEO {
		label = "Crawl"
	}
	r.addWarnings(fmt.Sprintf("%s data could not be retrieved (%s): %s", label, stdErr.Code, stdErr.Message))
	r.logger.Warn("leg failed, continuing with the other domain", map[string]interface{}{
		"domain":    string(domain),
		"errorCode": string(stdErr.Code),
	})
}

// ==========================
// State Bookkeeping
// ==========================

// step runs fn as one state transition under the stage's time budget.
// Errors come back as *apperrors.StandardError attributed to the stage, or as
// the caller's context error when the caller went away.
func (r *run) step(ctx context.Context, state State, stage string, fn func(ctx context.Context) error) error {
	budget := r.o.config.timeout(stage)
	stepCtx, cancel := ctx, context.CancelFunc(func() {})
	if budget > 0 {
		stepCtx, cancel = context.WithTimeout(ctx, budget)
	}
	defer cancel()

	stepCtx, span := r.o.deps.Tracer.Start(stepCtx, "orchestrator."+stage, map[string]string{
		"state":      string(state),
		"request_id": r.requestID,
	})
	start := time.Now()
	err := fn(stepCtx)
	elapsed := time.Since(start)

	if err != nil {
		switch {
		case ctx.Err() != nil:
			err = ctx.Err()
		case stepCtx.Err() != nil:
			err = apperrors.NewStageTimeoutError(stage, budget)
		default:
			err = toStandard(err).WithStage(stage)
		}
	}
	observability.End(span, err)

	record := models.StateRecord{State: string(state), Stage: stage, DurationMs: elapsed.Milliseconds()}
	metrics.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	r.o.deps.Obs.RecordStage(context.WithoutCancel(ctx), stage, elapsed, err != nil)
	if err != nil {
		code := "CANCELLED"
		if errors.Is(err, context.DeadlineExceeded) {
			code = string(apperrors.ErrCodeStageTimeout)
		}
		if stdErr := (*apperrors.StandardError)(nil); errors.As(err, &stdErr) {
			code = string(stdErr.Code)
		}
		record.Error = code
		metrics.StageFailures.WithLabelValues(stage, code).Inc()
	}

	r.mu.Lock()
	r.states = append(r.states, record)
	r.mu.Unlock()
	return err
}

func (r *run) enter(state State) {
	r.mu.Lock()
	r.states = append(r.states, models.StateRecord{State: string(state)})
	r.mu.Unlock()
}

// fail records the failed state. An expired request deadline becomes a
// timeout attributed to the stage that was running; cancellation stays as is.
func (r *run) fail(err error) error {
	record := models.StateRecord{State: string(StateFailed)}
	var stdErr *apperrors.StandardError
	if !errors.As(err, &stdErr) && errors.Is(err, context.DeadlineExceeded) {
		stdErr = apperrors.Normalize(err).WithStage(r.lastStage())
		err = stdErr
	}
	if stdErr != nil {
		record.Stage = stdErr.Stage
		record.Error = string(stdErr.Code)
	}
	r.mu.Lock()
	r.states = append(r.states, record)
	r.mu.Unlock()
	return err
}

func (r *run) lastStage() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.states) - 1; i >= 0; i-- {
		if r.states[i].Stage != "" {
			return r.states[i].Stage
		}
	}
	return string(StateReceived)
}

func (r *run) addWarnings(ws ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range ws {
		if w == "" || containsString(r.warnings, w) {
			continue
		}
		r.warnings = append(r.warnings, w)
	}
}

func (r *run) setPlan(domain registry.Domain, p interface{}) {
	r.mu.Lock()
	r.plans[string(domain)] = p
	r.mu.Unlock()
}

func (r *run) response(answer string) *models.QueryResponse {
	warnings := r.warnings
	if warnings == nil {
		warnings = []string{}
	}
	agents := r.agentsUsed
	if agents == nil {
		agents = []string{}
	}
	return &models.QueryResponse{
		Answer:    answer,
		Analytics: r.analytics,
		SEO:       r.seo,
		Fused:     r.fused,
		Warnings:  warnings,
		Debug: models.Debug{
			RequestID:  r.requestID,
			Intent:     r.intent,
			Plans:      r.plans,
			AgentsUsed: agents,
			Execution:  r.execution,
			States:     r.states,
		},
	}
}

// toStandard maps stage errors onto the API taxonomy.
func toStandard(err error) *apperrors.StandardError {
	var stdErr *apperrors.StandardError
	if errors.As(err, &stdErr) {
		return stdErr
	}
	var perr *plan.PlanningError
	switch {
	case errors.Is(err, classifyintent.ErrEmptyQuestion):
		return apperrors.NewInvalidRequestError("query text is empty")
	case errors.As(err, &perr):
		return apperrors.NewPlanningError(perr.Domain, perr.Reason)
	case errors.Is(err, reasoning.ErrRateLimited):
		return apperrors.NewRateLimitedError(err)
	case errors.Is(err, reasoning.ErrUnavailable):
		return apperrors.NewReasoningUnavailableError(err)
	default:
		return apperrors.NewInternalError(err)
	}
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
