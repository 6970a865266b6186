package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
llm:
  base_url: http://localhost:4000
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ":8080", cfg.Server.Addr())
	assert.Equal(t, "1.0.0", cfg.App.Version)
	assert.Equal(t, 5, cfg.LLM.MaxRetries)
	assert.Equal(t, 0.2, cfg.LLM.Temperature)
	assert.Equal(t, SEOSourceCSV, cfg.SEO.Source)
	assert.Equal(t, DefaultSheetCSVURL, cfg.SEO.CSVURL)
	assert.Equal(t, "pagePath", cfg.Fusion.JoinKey)
	assert.True(t, cfg.Fusion.TrimTrailingSlash)
	assert.Equal(t, 20*time.Second, StageTimeout(cfg, StageClassifyIntent))
	assert.Equal(t, 5*time.Second, StageTimeout(cfg, StageFuseResults))
}

func TestLoadFromFile_ExpandsEnvAndOverrides(t *testing.T) {
	t.Setenv("TEST_LLM_URL", "http://llm.internal:4000")
	t.Setenv("GA4_PROPERTY_ID", "123456")
	t.Setenv("PORT", "9090")

	path := writeConfig(t, `
llm:
  base_url: ${TEST_LLM_URL}
stages:
  execute-agent:
    timeout: 1500
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "http://llm.internal:4000", cfg.LLM.BaseURL)
	assert.Equal(t, "123456", cfg.Analytics.DefaultPropertyID)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 1500*time.Millisecond, StageTimeout(cfg, StageExecuteAgent))
	assert.Equal(t, 30*time.Second, StageTimeout(cfg, StagePlanSEO))
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		msg  string
	}{
		{
			name: "missing llm url",
			body: "app:\n  name: x\n",
			msg:  "llm.base_url is required",
		},
		{
			name: "elasticsearch source without index",
			body: "llm:\n  base_url: http://x\nseo:\n  source: elasticsearch\ndatabase:\n  elasticsearch:\n    addresses: [\"http://es:9200\"]\n",
			msg:  "seo.index is required",
		},
		{
			name: "unknown seo source",
			body: "llm:\n  base_url: http://x\nseo:\n  source: ftp\n",
			msg:  "not supported",
		},
		{
			name: "audit without postgres",
			body: "llm:\n  base_url: http://x\naudit:\n  enabled: true\n",
			msg:  "database.postgres.host is required",
		},
		{
			name: "cache without redis",
			body: "llm:\n  base_url: http://x\n  cache_enabled: true\n",
			msg:  "database.redis.address is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LLM_BASE_URL", "")
			t.Setenv("REDIS_ADDRESS", "")
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestGetStageConfig_Fallback(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, 20000, GetStageConfig(cfg, StageClassifyIntent).Timeout)
	assert.Equal(t, 30000, GetStageConfig(cfg, "unknown-stage").Timeout)
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "audit", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=audit sslmode=disable", p.GetDSN())
}
