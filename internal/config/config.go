package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	News       NewsConfig       `yaml:"news" mapstructure:"news"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Campaign   CampaignConfig   `yaml:"campaign" mapstructure:"campaign"`
	Quality    QualityConfig    `yaml:"quality" mapstructure:"quality"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	Model     string  `yaml:"model" mapstructure:"model"`
	MaxTokens int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	RPS       float64 `yaml:"rps" mapstructure:"rps"`
}

// JinaConfig holds Jina AI Reader settings.
type JinaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// NewsConfig configures the RSS news lookup used by web enrichment.
type NewsConfig struct {
	FeedURL  string `yaml:"feed_url" mapstructure:"feed_url"`
	MaxItems int    `yaml:"max_items" mapstructure:"max_items"`
}

// NotionConfig holds Notion API credentials for the approval queue.
type NotionConfig struct {
	Token      string `yaml:"token" mapstructure:"token"`
	ApprovalDB string `yaml:"approval_db" mapstructure:"approval_db"`
}

// PricingConfig holds per-model pricing rates.
type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	EURPerUSD float64                 `yaml:"eur_per_usd" mapstructure:"eur_per_usd"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// CampaignConfig holds the generation run defaults. Flags on
// `campaign run` override these.
type CampaignConfig struct {
	RecipientMode      string  `yaml:"recipient_mode" mapstructure:"recipient_mode"`
	VariantMode        string  `yaml:"variant_mode" mapstructure:"variant_mode"`
	OutputSchema       string  `yaml:"output_schema" mapstructure:"output_schema"`
	LLMPolicy          string  `yaml:"llm_policy" mapstructure:"llm_policy"`
	EnrichmentMode     string  `yaml:"enrichment_mode" mapstructure:"enrichment_mode"`
	MaxConcurrency     int     `yaml:"max_concurrency" mapstructure:"max_concurrency"`
	MaxRetries         int     `yaml:"max_retries" mapstructure:"max_retries"`
	BackoffBaseSeconds float64 `yaml:"backoff_base_seconds" mapstructure:"backoff_base_seconds"`
	CostCapEUR         float64 `yaml:"cost_cap_eur" mapstructure:"cost_cap_eur"`
	EstimatePerLeadEUR float64 `yaml:"estimate_per_lead_eur" mapstructure:"estimate_per_lead_eur"`
	RewriteBudget      int     `yaml:"rewrite_budget" mapstructure:"rewrite_budget"`
	CallTimeoutSecs    int     `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs"`
	RetentionDays      int     `yaml:"retention_days" mapstructure:"retention_days"`
	KnowledgeTopK      int     `yaml:"knowledge_top_k" mapstructure:"knowledge_top_k"`
	ActiveParent       string  `yaml:"active_parent" mapstructure:"active_parent"`
}

// QualityConfig holds the quality gate thresholds.
type QualityConfig struct {
	SubjectMaxLen   int      `yaml:"subject_max_len" mapstructure:"subject_max_len"`
	BodyMinLen      int      `yaml:"body_min_len" mapstructure:"body_min_len"`
	BodyMaxLen      int      `yaml:"body_max_len" mapstructure:"body_max_len"`
	MaxExclamations int      `yaml:"max_exclamations" mapstructure:"max_exclamations"`
	MaxCapsRatio    float64  `yaml:"max_caps_ratio" mapstructure:"max_caps_ratio"`
	SpamTokens      []string `yaml:"spam_tokens" mapstructure:"spam_tokens"`
}

// ServerConfig configures the status API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures campaign health alerts raised by the server.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	SpendThresholdEUR    float64 `yaml:"spend_threshold_eur" mapstructure:"spend_threshold_eur"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("OUTREACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "outreach.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1500)
	v.SetDefault("anthropic.rps", 4.0)
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("news.feed_url", "https://news.google.com/rss/search?hl=it&gl=IT&ceid=IT:it")
	v.SetDefault("news.max_items", 3)
	v.SetDefault("pricing.eur_per_usd", 0.92)
	v.SetDefault("campaign.recipient_mode", "company")
	v.SetDefault("campaign.variant_mode", "ab")
	v.SetDefault("campaign.output_schema", "ab")
	v.SetDefault("campaign.llm_policy", "fallback")
	v.SetDefault("campaign.enrichment_mode", "auto")
	v.SetDefault("campaign.max_concurrency", 5)
	v.SetDefault("campaign.max_retries", 3)
	v.SetDefault("campaign.backoff_base_seconds", 1.0)
	v.SetDefault("campaign.cost_cap_eur", 50.0)
	v.SetDefault("campaign.estimate_per_lead_eur", 0.05)
	v.SetDefault("campaign.rewrite_budget", 2)
	v.SetDefault("campaign.call_timeout_secs", 60)
	v.SetDefault("campaign.retention_days", 90)
	v.SetDefault("campaign.knowledge_top_k", 6)
	v.SetDefault("quality.subject_max_len", 90)
	v.SetDefault("quality.body_min_len", 120)
	v.SetDefault("quality.body_max_len", 2200)
	v.SetDefault("quality.max_exclamations", 1)
	v.SetDefault("quality.max_caps_ratio", 0.3)
	v.SetDefault("quality.spam_tokens", []string{"gratis", "offerta imperdibile", "clicca qui", "urgente", "free", "act now"})

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

var enumValues = map[string][]string{
	"recipient_mode":  {"company", "row"},
	"variant_mode":    {"ab", "abc"},
	"output_schema":   {"ab", "abc", "auto"},
	"llm_policy":      {"strict", "fallback"},
	"enrichment_mode": {"auto", "minimal", "web", "hybrid"},
}

// Validate checks that required fields are present for the given command.
// Supported modes: "campaign", "serve", "store".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "campaign":
		cc := c.Campaign
		for name, val := range map[string]string{
			"recipient_mode":  cc.RecipientMode,
			"variant_mode":    cc.VariantMode,
			"output_schema":   cc.OutputSchema,
			"llm_policy":      cc.LLMPolicy,
			"enrichment_mode": cc.EnrichmentMode,
		} {
			if !contains(enumValues[name], val) {
				errs = append(errs, fmt.Sprintf("campaign.%s must be one of %s (got %q)", name, strings.Join(enumValues[name], "|"), val))
			}
		}
		if cc.MaxConcurrency < 1 {
			errs = append(errs, "campaign.max_concurrency must be >= 1")
		}
		if cc.MaxRetries < 0 {
			errs = append(errs, "campaign.max_retries must be >= 0")
		}
		if cc.BackoffBaseSeconds < 0 {
			errs = append(errs, "campaign.backoff_base_seconds must be >= 0")
		}
		if cc.CostCapEUR <= 0 {
			errs = append(errs, "campaign.cost_cap_eur must be > 0")
		}
		if cc.RewriteBudget < 0 {
			errs = append(errs, "campaign.rewrite_budget must be >= 0")
		}
		if cc.VariantMode == "abc" && cc.OutputSchema == "ab" {
			errs = append(errs, "campaign.output_schema ab cannot hold variant_mode abc")
		}
		if cc.LLMPolicy == "strict" && c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required when llm_policy is strict")
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server.port must be 1-65535 (got %d)", c.Server.Port))
		}
	case "store":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}

	if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
		errs = append(errs, fmt.Sprintf("store.driver must be sqlite or postgres (got %q)", c.Store.Driver))
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
