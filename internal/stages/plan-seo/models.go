package planseo

import "query-orchestrator/internal/plan"

type Input struct {
	Question string `json:"question"`
	// Anchors are normalised page keys from the analytics leg. When set, the
	// plan only covers those pages.
	Anchors []string `json:"anchors,omitempty"`
}

type Output struct {
	Plan     *plan.SEOPlan `json:"plan"`
	Warnings []string      `json:"warnings,omitempty"`
	Source   string        `json:"source"`
}
