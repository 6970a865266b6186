// internal/models/result.go
package models

// Row is one record returned by an agent or produced by fusion.
type Row map[string]interface{}

// AgentResult is what a domain agent hands back to the orchestrator.
type AgentResult struct {
	Domain    string   `json:"domain"`
	Rows      []Row    `json:"rows"`
	TotalRows int      `json:"total_rows"`
	Narrative string   `json:"narrative,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

// IsEmpty reports whether the agent matched nothing.
func (r *AgentResult) IsEmpty() bool {
	return r == nil || len(r.Rows) == 0
}

// MatchField annotates fused rows with which side contributed them.
const MatchField = "_match"

const (
	MatchBoth          = "both"
	MatchAnalyticsOnly = "analytics_only"
	MatchSEOOnly       = "seo_only"
)

type FusedResult struct {
	JoinedRows []Row  `json:"joined_rows"`
	JoinKey    string `json:"join_key"`
	Narrative  string `json:"narrative"`
}
