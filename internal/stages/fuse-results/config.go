package fuseresults

import "query-orchestrator/internal/plan"

type Config struct {
	Policy plan.KeyPolicy
	// SEOKeyColumn is the crawl column holding the page URL.
	SEOKeyColumn string
	// DefaultJoinKey names the analytics field used when the caller gives none.
	DefaultJoinKey string
}

func LoadConfig() *Config {
	return &Config{
		Policy:         plan.DefaultKeyPolicy(),
		SEOKeyColumn:   "Address",
		DefaultJoinKey: "pagePath",
	}
}
