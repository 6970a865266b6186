package classifyintent

import "query-orchestrator/internal/models"

type Input struct {
	Question      string `json:"question"`
	HasPropertyID bool   `json:"hasPropertyId"`
}

type Output struct {
	Intent models.Intent `json:"intent"`
	// Source is "model" when the reasoner's label was usable, "fallback" otherwise.
	Source   string   `json:"source"`
	Warnings []string `json:"warnings,omitempty"`
}
