// internal/models/response.go
package models

// QueryResponse is the body of a successful POST /query.
type QueryResponse struct {
	Answer    string       `json:"answer"`
	Analytics *AgentResult `json:"analytics,omitempty"`
	SEO       *AgentResult `json:"seo,omitempty"`
	Fused     *FusedResult `json:"fused,omitempty"`
	Warnings  []string     `json:"warnings"`
	Debug     Debug        `json:"debug"`
}

// Execution describes how the domain legs of a request were scheduled.
type Execution string

const (
	ExecutionSingle      Execution = "single"
	ExecutionDependent   Execution = "dependent"
	ExecutionIndependent Execution = "independent"
)

type Debug struct {
	RequestID  string                 `json:"request_id"`
	Intent     Intent                 `json:"intent"`
	Plans      map[string]interface{} `json:"plans"`
	AgentsUsed []string               `json:"agents_used"`
	Execution  Execution              `json:"execution"`
	States     []StateRecord          `json:"states"`
}

// StateRecord is one visited orchestrator state.
type StateRecord struct {
	State      string `json:"state"`
	Stage      string `json:"stage,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}
