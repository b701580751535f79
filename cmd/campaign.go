package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/export"
	"github.com/sells-group/outreach-cli/internal/lead"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/pipeline"
	"github.com/sells-group/outreach-cli/internal/store"
)

var campaignCmd = &cobra.Command{
	Use:   "campaign",
	Short: "Generate and inspect outreach campaigns",
	Long:  "Commands for running a campaign over a lead sheet, listing campaigns, and re-exporting the approval queue.",
}

// -- campaign run --

var campaignRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Generate candidates for a lead sheet and write the approval snapshot",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyCampaignFlags(cmd, &cfg.Campaign)

		leadsPath, _ := cmd.Flags().GetString("leads")
		outPath, _ := cmd.Flags().GetString("out")
		priorPath, _ := cmd.Flags().GetString("prior")
		opts := pipeline.Options{}
		opts.CampaignID, _ = cmd.Flags().GetString("campaign")
		opts.Name, _ = cmd.Flags().GetString("name")
		opts.ParentSlug, _ = cmd.Flags().GetString("parent")
		opts.Stage, _ = cmd.Flags().GetString("stage")
		opts.ForceCostOverride, _ = cmd.Flags().GetBool("force-cost-override")
		opts.Regenerate, _ = cmd.Flags().GetBool("regenerate")
		opts.Force, _ = cmd.Flags().GetStringSlice("force")

		sheet, err := lead.ReadFile(leadsPath)
		if err != nil {
			return err
		}

		prior, err := readPrior(priorPath, outPath, cfg.Campaign.RecipientMode)
		if err != nil {
			return err
		}
		opts.Prior = prior

		env, err := initCampaign(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Pipeline.Run(ctx, sheet, opts)
		if err != nil {
			return eris.Wrap(err, "campaign run")
		}

		if res.Campaign == nil {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}

		if outPath != "" {
			schema := export.ResolveSchema(cfg.Campaign.OutputSchema, res.Rows)
			if err := export.WriteFile(outPath, res.Rows, schema); err != nil {
				return err
			}
			zap.L().Info("campaign: snapshot written",
				zap.String("path", outPath), zap.String("schema", schema), zap.Int("rows", len(res.Rows)))
		}

		formatRunSummary(os.Stdout, res)
		return nil
	},
}

// applyCampaignFlags overrides campaign config values with the flags the
// user set explicitly.
func applyCampaignFlags(cmd *cobra.Command, cc *config.CampaignConfig) {
	f := cmd.Flags()
	strs := map[string]*string{
		"recipient-mode":  &cc.RecipientMode,
		"variant-mode":    &cc.VariantMode,
		"output-schema":   &cc.OutputSchema,
		"llm-policy":      &cc.LLMPolicy,
		"enrichment-mode": &cc.EnrichmentMode,
	}
	for name, dst := range strs {
		if f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}
	ints := map[string]*int{
		"max-concurrency": &cc.MaxConcurrency,
		"max-retries":     &cc.MaxRetries,
		"rewrite-budget":  &cc.RewriteBudget,
	}
	for name, dst := range ints {
		if f.Changed(name) {
			*dst, _ = f.GetInt(name)
		}
	}
	floats := map[string]*float64{
		"backoff-base-seconds": &cc.BackoffBaseSeconds,
		"cost-cap-eur":         &cc.CostCapEUR,
	}
	for name, dst := range floats {
		if f.Changed(name) {
			*dst, _ = f.GetFloat64(name)
		}
	}
}

// readPrior loads the approval snapshot to reconcile against. An explicit
// --prior path must exist; otherwise an existing output file is used.
func readPrior(priorPath, outPath, recipientMode string) ([]model.ApprovalRow, error) {
	if priorPath != "" {
		return export.ReadFile(priorPath, recipientMode)
	}
	if outPath == "" {
		return nil, nil
	}
	if _, err := os.Stat(outPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "stat %s", outPath)
	}
	return export.ReadFile(outPath, recipientMode)
}

// -- campaign list --

var campaignListCmd = &cobra.Command{
	Use:   "list",
	Short: "List campaigns",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		parent, _ := cmd.Flags().GetString("parent")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		since, _ := cmd.Flags().GetDuration("since")

		filter := store.CampaignFilter{
			ParentSlug: parent,
			Status:     model.RunStatus(status),
			Limit:      limit,
		}
		if since > 0 {
			filter.CreatedAfter = time.Now().Add(-since)
		}

		campaigns, err := st.ListCampaigns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "campaign list")
		}
		if len(campaigns) == 0 {
			fmt.Fprintln(os.Stderr, "No campaigns found.")
			return nil
		}

		formatCampaignList(os.Stdout, campaigns)
		return nil
	},
}

// -- campaign status --

var campaignStatusCmd = &cobra.Command{
	Use:   "status <campaign-id>",
	Short: "Show a campaign and its per-status record counts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		c, err := st.GetCampaign(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "campaign status")
		}
		counts, err := st.CountRecords(ctx, c.ID)
		if err != nil {
			return eris.Wrap(err, "campaign status")
		}

		formatCampaignStatus(os.Stdout, c, counts)
		return nil
	},
}

// -- campaign export --

var campaignExportCmd = &cobra.Command{
	Use:   "export <campaign-id>",
	Short: "Re-export a stored campaign as a CSV or XLSX snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if _, err := st.GetCampaign(ctx, args[0]); err != nil {
			return eris.Wrap(err, "campaign export")
		}
		recs, err := st.ListRecords(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "campaign export")
		}

		out, _ := cmd.Flags().GetString("out")
		schema, _ := cmd.Flags().GetString("schema")
		rows := export.FromRecords(recs)
		schema = export.ResolveSchema(schema, rows)

		if out == "" {
			return export.WriteCSV(os.Stdout, rows, schema)
		}
		if err := export.WriteFile(out, rows, schema); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Exported %d rows (%s) to %s\n", len(rows), schema, out)
		return nil
	},
}

// formatRunSummary writes the outcome of a full run to w.
func formatRunSummary(out io.Writer, res *pipeline.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Campaign:\t%s\n", res.Campaign.ID)
	_, _ = fmt.Fprintf(w, "Parent:\t%s\n", res.Campaign.ParentSlug)
	_, _ = fmt.Fprintf(w, "Leads:\t%d\n", len(res.Leads))
	_, _ = fmt.Fprintf(w, "Skipped rows:\t%d\n", res.Skipped)
	_, _ = fmt.Fprintf(w, "Carried approved:\t%d\n", res.Carried)
	writeStatusCounts(w, res.Run.Statuses)
	_, _ = fmt.Fprintf(w, "Repaired:\t%d\n", res.Run.Repaired)
	_, _ = fmt.Fprintf(w, "Estimate:\t€%.2f\n", res.EstimateEUR)
	_, _ = fmt.Fprintf(w, "Spent:\t€%.4f of €%.2f\n", res.Run.Ledger.ChargedEUR, res.Run.Ledger.CapEUR)
	if res.Run.CostCapStop {
		_, _ = fmt.Fprintf(w, "Cost cap:\treached (%d refusals)\n", res.Run.Ledger.Refusals)
	}
	_, _ = fmt.Fprintf(w, "Rows:\t%d new, %d merged, %d approved kept, %d forced\n",
		res.Reconcile.New, res.Reconcile.Merged, res.Reconcile.Approved, res.Reconcile.Forced)
	if res.Published.Created+res.Published.Updated > 0 {
		_, _ = fmt.Fprintf(w, "Published:\t%d created, %d updated\n", res.Published.Created, res.Published.Updated)
	}
	_ = w.Flush()
}

// formatCampaignList writes a tabular list of campaigns to w.
func formatCampaignList(out io.Writer, campaigns []model.Campaign) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tPARENT\tNAME\tSTATUS\tLEADS\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t------\t----\t------\t-----\t-------")

	for _, c := range campaigns {
		leads := ""
		if n, ok := c.Summary["leads"].(float64); ok {
			leads = fmt.Sprintf("%d", int(n))
		}
		name := c.Name
		if len(name) > 30 {
			name = name[:27] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(c.ID),
			c.ParentSlug,
			name,
			c.Status,
			leads,
			c.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatCampaignStatus writes a campaign header and its record counts to w.
func formatCampaignStatus(out io.Writer, c *model.Campaign, counts map[model.RecordStatus]int) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Campaign:\t%s\n", c.ID)
	_, _ = fmt.Fprintf(w, "Name:\t%s\n", c.Name)
	_, _ = fmt.Fprintf(w, "Parent:\t%s\n", c.ParentSlug)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", c.Status)
	_, _ = fmt.Fprintf(w, "Modes:\t%s / %s / %s\n", c.RecipientMode, c.VariantMode, c.OutputSchema)
	_, _ = fmt.Fprintf(w, "Updated:\t%s\n", c.UpdatedAt.Format("2006-01-02 15:04"))
	writeStatusCounts(w, counts)
	_ = w.Flush()
}

func writeStatusCounts(w io.Writer, counts map[model.RecordStatus]int) {
	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", s, counts[model.RecordStatus(s)])
	}
}

// truncateID returns the first 8 characters of an ID.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	run := campaignRunCmd.Flags()
	run.String("leads", "", "lead sheet CSV (required)")
	run.String("out", "", "approval snapshot to write (.csv or .xlsx); reused as the prior snapshot when present")
	run.String("prior", "", "approval snapshot to reconcile against (default: --out when it exists)")
	run.String("parent", "", "parent profile slug (default: active parent)")
	run.String("name", "", "campaign name")
	run.String("campaign", "", "reuse an existing campaign id")
	run.String("stage", pipeline.StageAll, "last stage to run: dedup|enrich|retrieve|generate|all")
	run.Bool("force-cost-override", false, "run even when the estimate exceeds the cost cap")
	run.Bool("regenerate", false, "drop prior rows that no longer match a lead")
	run.StringSlice("force", nil, "lead keys to regenerate even when approved")
	run.String("recipient-mode", "", "company|row")
	run.String("variant-mode", "", "ab|abc")
	run.String("output-schema", "", "ab|abc|auto")
	run.String("llm-policy", "", "strict|fallback")
	run.String("enrichment-mode", "", "auto|minimal|web|hybrid")
	run.Int("max-concurrency", 0, "concurrent leads")
	run.Int("max-retries", 0, "retries per generation call")
	run.Int("rewrite-budget", 0, "repair calls per lead")
	run.Float64("backoff-base-seconds", 0, "base delay before the first retry, doubled per retry")
	run.Float64("cost-cap-eur", 0, "run cost cap in EUR")
	_ = campaignRunCmd.MarkFlagRequired("leads")

	campaignListCmd.Flags().String("parent", "", "filter by parent slug")
	campaignListCmd.Flags().String("status", "", "filter by status (running, completed, cost_cap_reached, failed)")
	campaignListCmd.Flags().Int("limit", 20, "maximum campaigns to show")
	campaignListCmd.Flags().Duration("since", 0, "only campaigns created within this duration (e.g. 24h)")

	campaignExportCmd.Flags().String("out", "", "output path (.csv or .xlsx); stdout CSV when empty")
	campaignExportCmd.Flags().String("schema", "auto", "column schema: auto|ab|abc")

	campaignCmd.AddCommand(campaignRunCmd, campaignListCmd, campaignStatusCmd, campaignExportCmd)
	rootCmd.AddCommand(campaignCmd)
}
