// pkg/registry/schema.go
package registry

// Domain names a queryable data domain.
type Domain string

const (
	DomainAnalytics Domain = "analytics"
	DomainSEO       Domain = "seo"
)

// DomainRegistry is the read-only catalogue of fields each domain accepts.
type DomainRegistry struct {
	Version     string          `json:"version"`
	LastUpdated string          `json:"lastUpdated"`
	Analytics   AnalyticsSchema `json:"analytics"`
	SEO         SEOSchema       `json:"seo"`

	metricIndex    map[string]string
	dimensionIndex map[string]string
	columnIndex    map[string]string
	columnTypes    map[string]string
}

type AnalyticsSchema struct {
	Metrics         []Field  `json:"metrics"`
	Dimensions      []Field  `json:"dimensions"`
	DefaultMetrics  []string `json:"defaultMetrics"`
	PageDimensions  []string `json:"pageDimensions"`
	FilterOperators []string `json:"filterOperators"`
	DefaultLimit    int      `json:"defaultLimit"`
	MaxLimit        int      `json:"maxLimit"`
}

type SEOSchema struct {
	KeyColumn      string   `json:"keyColumn"`
	Columns        []Column `json:"columns"`
	DefaultColumns []string `json:"defaultColumns"`
	Operators      []string `json:"operators"`
	Aggregations   []string `json:"aggregations"`
	DefaultLimit   int      `json:"defaultLimit"`
	MaxLimit       int      `json:"maxLimit"`
}

type Field struct {
	Name        string   `json:"name"`
	Category    string   `json:"category,omitempty"`
	Description string   `json:"description,omitempty"`
	Aliases     []string `json:"aliases,omitempty"`
}

// Column describes one column of the crawl export.
// Derived columns are computed at load time when the export lacks them.
type Column struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Aliases     []string `json:"aliases,omitempty"`
	Derived     bool     `json:"derived,omitempty"`
}

const (
	ColumnTypeString = "string"
	ColumnTypeNumber = "number"
)
