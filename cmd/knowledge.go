package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-cli/internal/knowledge"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

var knowledgeCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "Manage parent marketing knowledge",
	Long:  "Commands for ingesting markdown or text material for a parent profile and listing ingested sources.",
}

// -- knowledge ingest --

var knowledgeIngestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Chunk, embed and store knowledge files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		parent, _ := cmd.Flags().GetString("parent")
		kind, _ := cmd.Flags().GetString("kind")
		slug, err := resolveParent(cmd, st, parent)
		if err != nil {
			return err
		}

		in := knowledge.NewIngester(st, knowledge.NewHashEmbedder())
		results := make([]*knowledge.IngestResult, 0, len(args))
		for _, path := range args {
			res, err := in.IngestFile(ctx, slug, kind, path)
			if err != nil {
				return eris.Wrap(err, "knowledge ingest")
			}
			results = append(results, res)
		}

		formatIngestResults(os.Stdout, results)
		return nil
	},
}

// -- knowledge list --

var knowledgeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingested knowledge sources for a parent",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		parent, _ := cmd.Flags().GetString("parent")
		slug, err := resolveParent(cmd, st, parent)
		if err != nil {
			return err
		}

		sources, err := st.ListSources(ctx, slug)
		if err != nil {
			return eris.Wrap(err, "knowledge list")
		}
		if len(sources) == 0 {
			fmt.Fprintf(os.Stderr, "No knowledge ingested for %s.\n", slug)
			return nil
		}

		formatSourceList(os.Stdout, sources)
		return nil
	},
}

// resolveParent falls back to the active parent when no slug is given.
func resolveParent(cmd *cobra.Command, st store.Store, slug string) (string, error) {
	if slug == "" {
		active, err := st.GetSetting(cmd.Context(), store.SettingActiveParent)
		if err != nil {
			return "", eris.Wrap(err, "read active parent")
		}
		slug = active
	}
	if slug == "" {
		return "", eris.New("no parent given and no active parent set (use --parent or `parent use`)")
	}
	if _, err := st.GetProfile(cmd.Context(), slug); err != nil {
		return "", eris.Wrapf(err, "parent %q", slug)
	}
	return slug, nil
}

// formatIngestResults writes one line per ingested file to w.
func formatIngestResults(out io.Writer, results []*knowledge.IngestResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SOURCE\tKIND\tCHUNKS\tSHA")
	for _, r := range results {
		chunks := fmt.Sprintf("%d", r.Chunks)
		if r.Duplicate {
			chunks = "duplicate"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.SourcePath, r.Kind, chunks, truncateID(r.SourceSHA))
	}
	_ = w.Flush()
}

// formatSourceList writes a tabular list of knowledge sources to w.
func formatSourceList(out io.Writer, sources []model.KnowledgeSource) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SOURCE\tKIND\tCHUNKS\tSHA\tINGESTED")
	_, _ = fmt.Fprintln(w, "------\t----\t------\t---\t--------")
	for _, s := range sources {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			s.SourcePath, s.Kind, s.Chunks, truncateID(s.SourceSHA), s.CreatedAt.Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
}

func init() {
	knowledgeIngestCmd.Flags().String("parent", "", "parent slug (default: active parent)")
	knowledgeIngestCmd.Flags().String("kind", model.KindMarketing, "knowledge kind: marketing|offer")
	knowledgeListCmd.Flags().String("parent", "", "parent slug (default: active parent)")

	knowledgeCmd.AddCommand(knowledgeIngestCmd, knowledgeListCmd)
	rootCmd.AddCommand(knowledgeCmd)
}
