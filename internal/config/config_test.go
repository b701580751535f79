package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "company", cfg.Campaign.RecipientMode)
	assert.Equal(t, "ab", cfg.Campaign.VariantMode)
	assert.Equal(t, "ab", cfg.Campaign.OutputSchema)
	assert.Equal(t, "fallback", cfg.Campaign.LLMPolicy)
	assert.Equal(t, "auto", cfg.Campaign.EnrichmentMode)
	assert.Equal(t, 5, cfg.Campaign.MaxConcurrency)
	assert.Equal(t, 3, cfg.Campaign.MaxRetries)
	assert.InDelta(t, 1.0, cfg.Campaign.BackoffBaseSeconds, 0.001)
	assert.InDelta(t, 50.0, cfg.Campaign.CostCapEUR, 0.001)
	assert.Equal(t, 2, cfg.Campaign.RewriteBudget)
	assert.Equal(t, 90, cfg.Campaign.RetentionDays)
	assert.Equal(t, 6, cfg.Campaign.KnowledgeTopK)
	assert.Equal(t, 90, cfg.Quality.SubjectMaxLen)
	assert.Contains(t, cfg.Quality.SpamTokens, "gratis")
	assert.Equal(t, "https://r.jina.ai", cfg.Jina.BaseURL)
	assert.InDelta(t, 0.92, cfg.Pricing.EURPerUSD, 0.001)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
log:
  level: debug
  format: console
campaign:
  max_concurrency: 10
  variant_mode: abc
  output_schema: abc
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 10, cfg.Campaign.MaxConcurrency)
	assert.Equal(t, "abc", cfg.Campaign.VariantMode)
	// Defaults still apply for unset values
	assert.Equal(t, 3, cfg.Campaign.MaxRetries)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("OUTREACH_STORE_DRIVER", "postgres")
	t.Setenv("OUTREACH_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("OUTREACH_CAMPAIGN_COST_CAP_EUR", "12.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.InDelta(t, 12.5, cfg.Campaign.CostCapEUR, 0.001)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "outreach.db"
	cfg.Server.Port = 8080
	cfg.Campaign = CampaignConfig{
		RecipientMode:      "company",
		VariantMode:        "ab",
		OutputSchema:       "ab",
		LLMPolicy:          "fallback",
		EnrichmentMode:     "auto",
		MaxConcurrency:     5,
		MaxRetries:         3,
		BackoffBaseSeconds: 1,
		CostCapEUR:         50,
		RewriteBudget:      2,
	}
	return cfg
}

func TestValidateCampaign_Defaults(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("campaign"))
}

func TestValidateCampaign_BadEnums(t *testing.T) {
	cfg := validDefaults()
	cfg.Campaign.RecipientMode = "everyone"
	cfg.Campaign.LLMPolicy = "yolo"

	err := cfg.Validate("campaign")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "campaign.recipient_mode must be one of company|row")
	assert.Contains(t, err.Error(), "campaign.llm_policy must be one of strict|fallback")
}

func TestValidateCampaign_AcceptsAliases(t *testing.T) {
	cfg := validDefaults()
	cfg.Campaign.EnrichmentMode = "hybrid"
	cfg.Campaign.VariantMode = "abc"
	cfg.Campaign.OutputSchema = "auto"
	assert.NoError(t, cfg.Validate("campaign"))

	cfg.Campaign.EnrichmentMode = "deep"
	err := cfg.Validate("campaign")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "campaign.enrichment_mode must be one of auto|minimal|web|hybrid")
}

func TestValidateCampaign_StrictNeedsKey(t *testing.T) {
	cfg := validDefaults()
	cfg.Campaign.LLMPolicy = "strict"

	err := cfg.Validate("campaign")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")

	cfg.Anthropic.Key = "sk-ant-key"
	assert.NoError(t, cfg.Validate("campaign"))
}

func TestValidateCampaign_SchemaTooNarrow(t *testing.T) {
	cfg := validDefaults()
	cfg.Campaign.VariantMode = "abc"

	err := cfg.Validate("campaign")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output_schema ab cannot hold")
}

func TestValidateCampaign_Bounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Campaign.MaxConcurrency = 0
	cfg.Campaign.CostCapEUR = 0

	err := cfg.Validate("campaign")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_concurrency")
	assert.Contains(t, err.Error(), "cost_cap_eur")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestValidateStore_MissingURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidate_UnknownDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
}

func TestValidate_UnknownMode(t *testing.T) {
	assert.Error(t, validDefaults().Validate("bogus"))
}
