package synthesizeanswer

import "query-orchestrator/internal/models"

type Input struct {
	Question  string              `json:"question"`
	Intent    models.Intent       `json:"intent"`
	Analytics *models.AgentResult `json:"analytics,omitempty"`
	SEO       *models.AgentResult `json:"seo,omitempty"`
	Fused     *models.FusedResult `json:"fused,omitempty"`
	Warnings  []string            `json:"warnings,omitempty"`
}

type Output struct {
	Answer string `json:"answer"`
	// Source is "model", "fallback" or "no_data".
	Source string `json:"source"`
}
