// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultSheetCSVURL is the published crawl export used when no SEO source is configured.
const DefaultSheetCSVURL = "https://docs.google.com/spreadsheets/d/1zzf4ax_H2WiTBVrJigGjF2Q3Yz-qy2qMCbAMKvl6VEE/export?format=csv"

// Stage names used as keys under `stages:`.
const (
	StageClassifyIntent   = "classify-intent"
	StagePlanAnalytics    = "plan-analytics"
	StagePlanSEO          = "plan-seo"
	StageExecuteAgent     = "execute-agent"
	StageFuseResults      = "fuse-results"
	StageSynthesizeAnswer = "synthesize-answer"
)

var defaultStageTimeouts = map[string]int{
	StageClassifyIntent:   20000,
	StagePlanAnalytics:    30000,
	StagePlanSEO:          30000,
	StageExecuteAgent:     45000,
	StageFuseResults:      5000,
	StageSynthesizeAnswer: 30000,
}

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml over it and
// applies environment overrides.
func Load() (*Config, error) {
	LoadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // optional

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	LoadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideEmptyConfig(&cfg)
	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// LoadEnvFile loads the first .env found walking up from the working directory
// and returns its path, or "" when none exists.
func LoadEnvFile() string {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills settings that are conventionally provided through
// well-known environment variables.
func overrideEmptyConfig(cfg *Config) {
	setIfEmpty(&cfg.LLM.APIKey, "LLM_API_KEY", "LITELLM_API_KEY")
	setIfEmpty(&cfg.LLM.BaseURL, "LLM_BASE_URL")
	setIfEmpty(&cfg.LLM.Model, "LLM_MODEL")

	setIfEmpty(&cfg.Analytics.DefaultPropertyID, "GA4_PROPERTY_ID")
	setIfEmpty(&cfg.Analytics.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")

	setIfEmpty(&cfg.SEO.CSVURL, "SEO_CSV_URL")

	setIfEmpty(&cfg.Database.Postgres.User, "DB_USER")
	setIfEmpty(&cfg.Database.Postgres.Password, "DB_PASSWORD")
	setIfEmpty(&cfg.Database.Redis.Address, "REDIS_ADDRESS")

	if cfg.Server.Port == 0 {
		if val := os.Getenv("PORT"); val != "" {
			if port, err := strconv.Atoi(val); err == nil {
				cfg.Server.Port = port
			}
		}
	}
}

func setIfEmpty(dst *string, envNames ...string) {
	if *dst != "" {
		return
	}
	for _, name := range envNames {
		if val := os.Getenv(name); val != "" {
			*dst = val
			return
		}
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "query-orchestrator"
	}
	if cfg.App.Version == "" {
		cfg.App.Version = "1.0.0"
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15000
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 130000
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 120000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30000
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 1 << 16
	}

	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 10
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 2
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}
	if len(cfg.Database.Elasticsearch.Addresses) == 0 && cfg.Database.Elasticsearch.URL != "" {
		cfg.Database.Elasticsearch.Addresses = []string{cfg.Database.Elasticsearch.URL}
	}

	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gemini-1.5-flash"
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.2
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1024
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 30000
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 5
	}
	if cfg.LLM.BaseDelay == 0 {
		cfg.LLM.BaseDelay = 1000
	}
	if cfg.LLM.MaxDelay == 0 {
		cfg.LLM.MaxDelay = 8000
	}
	if cfg.LLM.RatePerSecond == 0 {
		cfg.LLM.RatePerSecond = 5
	}
	if cfg.LLM.Burst == 0 {
		cfg.LLM.Burst = 10
	}
	if cfg.LLM.CacheTTL == 0 {
		cfg.LLM.CacheTTL = 600000
	}

	if cfg.Analytics.CacheTTL == 0 {
		cfg.Analytics.CacheTTL = 300000
	}

	if cfg.SEO.Source == "" {
		switch {
		case cfg.SEO.FilePath != "":
			cfg.SEO.Source = SEOSourceFile
		default:
			cfg.SEO.Source = SEOSourceCSV
		}
	}
	if cfg.SEO.Source == SEOSourceCSV && cfg.SEO.CSVURL == "" {
		cfg.SEO.CSVURL = DefaultSheetCSVURL
	}
	if cfg.SEO.MaxRows == 0 {
		cfg.SEO.MaxRows = 50000
	}
	if cfg.SEO.FetchTimeout == 0 {
		cfg.SEO.FetchTimeout = 20000
	}

	if cfg.Stages == nil {
		cfg.Stages = make(map[string]StageConfig)
	}
	for name, timeout := range defaultStageTimeouts {
		stage := cfg.Stages[name]
		if stage.Timeout == 0 {
			stage.Timeout = timeout
		}
		cfg.Stages[name] = stage
	}

	if cfg.Fusion.JoinKey == "" {
		cfg.Fusion.JoinKey = "pagePath"
		cfg.Fusion.StripHost = true
		cfg.Fusion.StripQuery = true
		cfg.Fusion.TrimTrailingSlash = true
		cfg.Fusion.CaseInsensitive = true
	}

	if cfg.Audit.Table == "" {
		cfg.Audit.Table = "query_audit"
	}
	if cfg.Audit.Timeout == 0 {
		cfg.Audit.Timeout = 2000
	}

	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = cfg.App.Name
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", cfg.Server.Port)
	}

	if cfg.LLM.BaseURL == "" {
		return fmt.Errorf("llm.base_url is required")
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be between 0 and 2")
	}

	switch cfg.SEO.Source {
	case SEOSourceCSV:
		if cfg.SEO.CSVURL == "" {
			return fmt.Errorf("seo.csv_url is required for the csv source")
		}
	case SEOSourceFile:
		if cfg.SEO.FilePath == "" {
			return fmt.Errorf("seo.file_path is required for the file source")
		}
	case SEOSourceElasticsearch:
		if !cfg.Database.Elasticsearch.Enabled() {
			return fmt.Errorf("database.elasticsearch.addresses or url is required for the elasticsearch source")
		}
		if cfg.SEO.Index == "" {
			return fmt.Errorf("seo.index is required for the elasticsearch source")
		}
	default:
		return fmt.Errorf("seo.source %q is not supported", cfg.SEO.Source)
	}

	if cfg.Audit.Enabled {
		if cfg.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required when audit is enabled")
		}
		if cfg.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required when audit is enabled")
		}
		if cfg.Database.Postgres.User == "" {
			return fmt.Errorf("database.postgres.user is required when audit is enabled")
		}
	}

	if (cfg.LLM.CacheEnabled || cfg.Analytics.CacheEnabled) && !cfg.Database.Redis.Enabled() {
		return fmt.Errorf("database.redis.address is required when caching is enabled")
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetStageConfig retrieves stage-specific configuration with fallback to defaults
func GetStageConfig(cfg *Config, stageName string) StageConfig {
	if stage, exists := cfg.Stages[stageName]; exists {
		return stage
	}
	timeout, ok := defaultStageTimeouts[stageName]
	if !ok {
		timeout = 30000
	}
	return StageConfig{Timeout: timeout}
}

// StageTimeout is shorthand for the configured timeout of a stage.
func StageTimeout(cfg *Config, stageName string) time.Duration {
	return GetDuration(GetStageConfig(cfg, stageName).Timeout)
}
