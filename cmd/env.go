package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/approval"
	"github.com/sells-group/outreach-cli/internal/cost"
	"github.com/sells-group/outreach-cli/internal/enrich"
	"github.com/sells-group/outreach-cli/internal/generate"
	"github.com/sells-group/outreach-cli/internal/knowledge"
	"github.com/sells-group/outreach-cli/internal/pipeline"
	"github.com/sells-group/outreach-cli/internal/store"
	anthropicpkg "github.com/sells-group/outreach-cli/pkg/anthropic"
	"github.com/sells-group/outreach-cli/pkg/jina"
	"github.com/sells-group/outreach-cli/pkg/notion"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "outreach.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore opens and migrates the configured store. Callers should defer
// Close.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// campaignEnv holds the store, clients and pipeline needed by campaign run.
type campaignEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the campaign environment.
func (ce *campaignEnv) Close() {
	if ce.Store != nil {
		_ = ce.Store.Close()
	}
}

// initCampaign validates the config, opens the store and wires every
// collaborator of the pipeline. Callers should defer env.Close().
func initCampaign(ctx context.Context) (*campaignEnv, error) {
	if err := cfg.Validate("campaign"); err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	gen, err := initGenerator()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	publisher, err := initPublisher()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	p := pipeline.New(cfg, pipeline.Deps{
		Store:     st,
		Generator: gen,
		Enrichers: initEnrichers(),
		Retriever: knowledge.NewRetriever(st, knowledge.NewHashEmbedder(), cfg.Campaign.KnowledgeTopK),
		Publisher: publisher,
	})

	return &campaignEnv{Store: st, Pipeline: p}, nil
}

// initGenerator picks the model-backed generator when a key is configured
// and the seed-template fallback otherwise.
func initGenerator() (generate.Generator, error) {
	var client anthropicpkg.Client
	if cfg.Anthropic.Key != "" {
		client = anthropicpkg.NewClient(cfg.Anthropic.Key, anthropicpkg.WithRateLimit(cfg.Anthropic.RPS))
	} else {
		zap.L().Info("OUTREACH_ANTHROPIC_KEY not set, using deterministic fallback copy",
			zap.String("llm_policy", cfg.Campaign.LLMPolicy))
	}

	models := make(map[string]cost.ModelRate, len(cfg.Pricing.Anthropic))
	for name, p := range cfg.Pricing.Anthropic {
		models[name] = cost.ModelRate{Input: p.Input, Output: p.Output}
	}

	return generate.New(generate.Policy(cfg.Campaign.LLMPolicy), client, generate.LLMOptions{
		Model:       cfg.Anthropic.Model,
		MaxTokens:   cfg.Anthropic.MaxTokens,
		CallTimeout: time.Duration(cfg.Campaign.CallTimeoutSecs) * time.Second,
		Calculator:  cost.NewCalculator(cost.MergeRates(models, cfg.Pricing.EURPerUSD)),
	})
}

// initEnrichers builds one enricher per enrichment mode. The web enricher
// tries the Jina reader first and falls back to a direct fetch.
func initEnrichers() map[string]enrich.Enricher {
	hc := &http.Client{Timeout: 20 * time.Second}

	var news enrich.NewsSearcher
	if cfg.News.FeedURL != "" {
		news = enrich.NewNewsFeed(cfg.News.FeedURL, cfg.News.MaxItems, hc)
	}
	jinaOpts := []jina.Option{jina.WithHTTPClient(hc)}
	if cfg.Jina.BaseURL != "" {
		jinaOpts = append(jinaOpts, jina.WithBaseURL(cfg.Jina.BaseURL))
	}
	reader := jina.NewClient(cfg.Jina.Key, jinaOpts...)

	return map[string]enrich.Enricher{
		enrich.ModeMinimal: enrich.Minimal{},
		enrich.ModeWeb:     enrich.NewWeb(news, reader, enrich.NewHTMLReader(hc)),
	}
}

// initPublisher returns the Notion approval publisher, or nil when Notion
// is not configured.
func initPublisher() (approval.Publisher, error) {
	if cfg.Notion.Token == "" || cfg.Notion.ApprovalDB == "" {
		zap.L().Debug("notion not configured, approval publishing disabled")
		return nil, nil
	}
	client, err := notion.NewClient(cfg.Notion.Token)
	if err != nil {
		return nil, eris.Wrap(err, "init notion")
	}
	return approval.NewNotionPublisher(client, cfg.Notion.ApprovalDB), nil
}
