package fuseresults

import "query-orchestrator/internal/models"

type Input struct {
	Analytics *models.AgentResult `json:"analytics"`
	SEO       *models.AgentResult `json:"seo"`
	// JoinKey is the analytics field carrying the page, usually the plan's page dimension.
	JoinKey string `json:"joinKey,omitempty"`
}

type Output struct {
	Fused    *models.FusedResult `json:"fused"`
	Warnings []string            `json:"warnings,omitempty"`
}
