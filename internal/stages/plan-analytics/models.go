package plananalytics

import "query-orchestrator/internal/plan"

type Input struct {
	Question string `json:"question"`
}

type Output struct {
	Plan     *plan.AnalyticsPlan `json:"plan"`
	Warnings []string            `json:"warnings,omitempty"`
	// Source is "model" when a usable model draft was merged, "hints" otherwise.
	Source string `json:"source"`
}
