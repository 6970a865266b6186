// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig              `mapstructure:"app"`
	Server    ServerConfig           `mapstructure:"server"`
	Database  DatabaseConfig         `mapstructure:"database"`
	LLM       LLMConfig              `mapstructure:"llm"`
	Analytics AnalyticsConfig        `mapstructure:"analytics"`
	SEO       SEOConfig              `mapstructure:"seo"`
	Registry  RegistryConfig         `mapstructure:"registry"`
	Stages    map[string]StageConfig `mapstructure:"stages"`
	Fusion    FusionConfig           `mapstructure:"fusion"`
	Audit     AuditConfig            `mapstructure:"audit"`
	Tracing   TracingConfig          `mapstructure:"tracing"`
	Logging   LoggingConfig          `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Port            int `mapstructure:"port"`
	ReadTimeout     int `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int `mapstructure:"write_timeout"`    // milliseconds
	RequestTimeout  int `mapstructure:"request_timeout"`  // milliseconds
	ShutdownTimeout int `mapstructure:"shutdown_timeout"` // milliseconds
	MaxBodyBytes    int `mapstructure:"max_body_bytes"`
}

// Addr returns the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"` // Single URL for backwards compatibility
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

// Enabled reports whether any Elasticsearch endpoint is configured.
func (e ElasticsearchConfig) Enabled() bool {
	return e.GetURL() != ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Enabled reports whether a Redis address is configured. Caches are skipped otherwise.
func (r RedisConfig) Enabled() bool {
	return r.Address != ""
}

// StageConfig holds the settings applicable to every orchestration stage.
type StageConfig struct {
	Timeout    int `mapstructure:"timeout"`     // milliseconds
	MaxRetries int `mapstructure:"max_retries"` // reasoning stages only
}

// LLMConfig configures the OpenAI-compatible reasoning endpoint.
type LLMConfig struct {
	BaseURL       string  `mapstructure:"base_url"`
	APIKey        string  `mapstructure:"api_key"`
	Model         string  `mapstructure:"model"`
	Temperature   float64 `mapstructure:"temperature"`
	MaxTokens     int     `mapstructure:"max_tokens"`
	Timeout       int     `mapstructure:"timeout"`    // milliseconds, per attempt
	MaxRetries    int     `mapstructure:"max_retries"`
	BaseDelay     int     `mapstructure:"base_delay"` // milliseconds
	MaxDelay      int     `mapstructure:"max_delay"`  // milliseconds
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Burst         int     `mapstructure:"burst"`
	CacheEnabled  bool    `mapstructure:"cache_enabled"`
	CacheTTL      int     `mapstructure:"cache_ttl"` // milliseconds
}

// AnalyticsConfig configures the GA4 Data API agent.
type AnalyticsConfig struct {
	DefaultPropertyID string `mapstructure:"default_property_id"`
	CredentialsFile   string `mapstructure:"credentials_file"`
	Endpoint          string `mapstructure:"endpoint"`
	CacheEnabled      bool   `mapstructure:"cache_enabled"`
	CacheTTL          int    `mapstructure:"cache_ttl"` // milliseconds
}

// SEOConfig configures where the crawl export is loaded from.
type SEOConfig struct {
	Source          string `mapstructure:"source"` // csv, file or elasticsearch
	CSVURL          string `mapstructure:"csv_url"`
	FilePath        string `mapstructure:"file_path"`
	Index           string `mapstructure:"index"`
	MaxRows         int    `mapstructure:"max_rows"`
	FetchTimeout    int    `mapstructure:"fetch_timeout"`    // milliseconds
	RefreshInterval int    `mapstructure:"refresh_interval"` // milliseconds, 0 disables
}

const (
	SEOSourceCSV           = "csv"
	SEOSourceFile          = "file"
	SEOSourceElasticsearch = "elasticsearch"
)

type RegistryConfig struct {
	Path string `mapstructure:"path"`
}

// FusionConfig selects the join key and how page keys are normalised before joining.
type FusionConfig struct {
	JoinKey           string `mapstructure:"join_key"`
	StripHost         bool   `mapstructure:"strip_host"`
	StripQuery        bool   `mapstructure:"strip_query"`
	TrimTrailingSlash bool   `mapstructure:"trim_trailing_slash"`
	CaseInsensitive   bool   `mapstructure:"case_insensitive"`
}

type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Table   string `mapstructure:"table"`
	Timeout int    `mapstructure:"timeout"` // milliseconds
}

type TracingConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
