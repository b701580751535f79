package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/cost"
	"github.com/sells-group/outreach-cli/internal/knowledge"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/pipeline"
	"github.com/sells-group/outreach-cli/internal/reconcile"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"campaign", "parent", "knowledge", "serve", "store"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "outreach-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestCampaignCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range campaignCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"run", "list", "status", "export"} {
		assert.True(t, names[name], "expected campaign subcommand %q not found", name)
	}
}

func TestCampaignRunCommand_Flags(t *testing.T) {
	for _, name := range []string{"leads", "out", "prior", "parent", "stage", "force-cost-override", "regenerate", "force", "cost-cap-eur", "backoff-base-seconds", "output-schema"} {
		require.NotNil(t, campaignRunCmd.Flags().Lookup(name), "campaign run should have --%s flag", name)
	}
	assert.Equal(t, pipeline.StageAll, campaignRunCmd.Flags().Lookup("stage").DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestParentCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range parentCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"register", "list", "use"} {
		assert.True(t, names[name], "expected parent subcommand %q not found", name)
	}
}

func TestApplyCampaignFlags_OnlyChanged(t *testing.T) {
	cc := config.CampaignConfig{
		RecipientMode:      "company",
		VariantMode:        "ab",
		LLMPolicy:          "fallback",
		MaxConcurrency:     5,
		MaxRetries:         3,
		BackoffBaseSeconds: 1,
		CostCapEUR:         50,
	}

	c := &cobra.Command{Use: "run"}
	c.Flags().String("recipient-mode", "", "")
	c.Flags().String("variant-mode", "", "")
	c.Flags().String("output-schema", "", "")
	c.Flags().String("llm-policy", "", "")
	c.Flags().String("enrichment-mode", "", "")
	c.Flags().Int("max-concurrency", 0, "")
	c.Flags().Int("max-retries", 0, "")
	c.Flags().Int("rewrite-budget", 0, "")
	c.Flags().Float64("backoff-base-seconds", 0, "")
	c.Flags().Float64("cost-cap-eur", 0, "")
	require.NoError(t, c.Flags().Set("variant-mode", "abc"))
	require.NoError(t, c.Flags().Set("max-retries", "0"))
	require.NoError(t, c.Flags().Set("cost-cap-eur", "12.5"))

	applyCampaignFlags(c, &cc)

	assert.Equal(t, "company", cc.RecipientMode)
	assert.Equal(t, "abc", cc.VariantMode)
	assert.Equal(t, "fallback", cc.LLMPolicy)
	assert.Equal(t, 5, cc.MaxConcurrency)
	assert.Equal(t, 0, cc.MaxRetries)
	assert.InDelta(t, 12.5, cc.CostCapEUR, 1e-9)
	assert.InDelta(t, 1.0, cc.BackoffBaseSeconds, 1e-9)

	require.NoError(t, c.Flags().Set("backoff-base-seconds", "0.25"))
	applyCampaignFlags(c, &cc)
	assert.InDelta(t, 0.25, cc.BackoffBaseSeconds, 1e-9)
}

func TestReadPrior(t *testing.T) {
	dir := t.TempDir()

	rows, err := readPrior("", "", "company")
	require.NoError(t, err)
	assert.Nil(t, rows)

	rows, err = readPrior("", filepath.Join(dir, "missing.csv"), "company")
	require.NoError(t, err)
	assert.Nil(t, rows)

	_, err = readPrior(filepath.Join(dir, "missing.csv"), "", "company")
	assert.Error(t, err)

	out := filepath.Join(dir, "queue.csv")
	csv := "campaign_id,company_name,status,lead_key\nc1,Acme,approved,acme\n"
	require.NoError(t, os.WriteFile(out, []byte(csv), 0o644))

	rows, err = readPrior("", out, "company")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "acme", rows[0].LeadKey)
	assert.Equal(t, "approved", rows[0].Status)
}

func TestFormatCampaignList(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC)
	campaigns := []model.Campaign{
		{
			ID:         "abc12345-6789-0000-0000-000000000000",
			ParentSlug: "parent-co",
			Name:       "Spring outreach",
			Status:     model.RunCompleted,
			Summary:    map[string]any{"leads": float64(12)},
			CreatedAt:  now,
		},
		{
			ID:         "def12345-6789-0000-0000-000000000000",
			ParentSlug: "parent-co",
			Name:       "A very long campaign name that will be truncated",
			Status:     model.RunCostCapReached,
			CreatedAt:  now,
		},
	}

	var buf bytes.Buffer
	formatCampaignList(&buf, campaigns)

	output := buf.String()
	assert.Contains(t, output, "PARENT")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
	assert.Contains(t, output, "Spring outreach")
	assert.Contains(t, output, "12")
	assert.Contains(t, output, "cost_cap_reached")
	assert.Contains(t, output, "...")
	assert.Contains(t, output, "2026-03-02 09:15")
}

func TestFormatCampaignStatus(t *testing.T) {
	c := &model.Campaign{
		ID:            "c1",
		Name:          "Spring",
		ParentSlug:    "parent-co",
		Status:        model.RunCompleted,
		RecipientMode: "company",
		VariantMode:   "ab",
		OutputSchema:  "ab",
	}
	counts := map[model.RecordStatus]int{
		model.RecordReadyForApproval: 3,
		model.RecordFailed:           1,
	}

	var buf bytes.Buffer
	formatCampaignStatus(&buf, c, counts)

	output := buf.String()
	assert.Contains(t, output, "company / ab / ab")
	assert.Contains(t, output, "ready_for_approval:")
	assert.Contains(t, output, "failed:")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("failed:")), bytes.Index(buf.Bytes(), []byte("ready_for_approval:")))
}

func TestFormatRunSummary(t *testing.T) {
	res := &pipeline.Result{
		Campaign:    &model.Campaign{ID: "c1", ParentSlug: "parent-co"},
		Leads:       make([]model.Lead, 2),
		Skipped:     1,
		EstimateEUR: 0.1,
		Run: pipeline.RunStats{
			Statuses:    map[model.RecordStatus]int{model.RecordReadyForApproval: 2},
			CostCapStop: true,
			Ledger:      cost.LedgerSnapshot{CapEUR: 1, ChargedEUR: 0.05, Refusals: 2},
		},
		Reconcile: reconcile.Stats{New: 2},
	}

	var buf bytes.Buffer
	formatRunSummary(&buf, res)

	output := buf.String()
	assert.Contains(t, output, "c1")
	assert.Contains(t, output, "Skipped rows:")
	assert.Contains(t, output, "ready_for_approval:")
	assert.Contains(t, output, "reached (2 refusals)")
	assert.Contains(t, output, "2 new")
	assert.NotContains(t, output, "Published:")
}

func TestFormatParentList(t *testing.T) {
	profiles := []model.ParentProfile{
		{Slug: "alpha", CompanyName: "Alpha SpA", Tone: "formale", SenderName: "Anna"},
		{Slug: "beta", CompanyName: "Beta Srl", Tone: "diretto"},
	}

	var buf bytes.Buffer
	formatParentList(&buf, profiles, "beta")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 4)
	assert.NotContains(t, string(lines[2]), "*")
	assert.Contains(t, string(lines[2]), "Anna")
	assert.Contains(t, string(lines[3]), "*")
	assert.Contains(t, string(lines[3]), "Beta Srl")
}

func TestFormatIngestResults(t *testing.T) {
	results := []*knowledge.IngestResult{
		{SourcePath: "offer.md", Kind: model.KindOffer, SourceSHA: "0123456789abcdef", Chunks: 4},
		{SourcePath: "deck.md", Kind: model.KindMarketing, SourceSHA: "fedcba9876543210", Duplicate: true},
	}

	var buf bytes.Buffer
	formatIngestResults(&buf, results)

	output := buf.String()
	assert.Contains(t, output, "offer.md")
	assert.Contains(t, output, "01234567")
	assert.Contains(t, output, "duplicate")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789"))
	assert.Equal(t, "short", truncateID("short"))
}
