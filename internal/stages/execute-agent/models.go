package executeagent

import (
	"query-orchestrator/internal/models"
	"query-orchestrator/internal/plan"
	"query-orchestrator/pkg/registry"
)

type Input struct {
	Domain        registry.Domain     `json:"domain"`
	AnalyticsPlan *plan.AnalyticsPlan `json:"analyticsPlan,omitempty"`
	SEOPlan       *plan.SEOPlan       `json:"seoPlan,omitempty"`
	PropertyID    string              `json:"propertyId,omitempty"`
}

type Output struct {
	Result *models.AgentResult `json:"result"`
}
