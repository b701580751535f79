package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/profile"
	"github.com/sells-group/outreach-cli/internal/store"
)

var parentCmd = &cobra.Command{
	Use:   "parent",
	Short: "Manage parent company profiles",
	Long:  "Commands for registering parent profiles from YAML, listing them, and choosing the active one.",
}

// -- parent register --

var parentRegisterCmd = &cobra.Command{
	Use:   "register <profile.yaml>",
	Short: "Validate and store a parent profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		slug, _ := cmd.Flags().GetString("slug")
		activate, _ := cmd.Flags().GetBool("activate")

		p, err := profile.LoadFile(args[0], slug)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.SaveProfile(ctx, p); err != nil {
			return eris.Wrap(err, "parent register")
		}
		if activate {
			if err := st.SetSetting(ctx, store.SettingActiveParent, p.Slug); err != nil {
				return eris.Wrap(err, "parent register: activate")
			}
		}

		zap.L().Info("parent: profile registered", zap.String("slug", p.Slug), zap.Bool("active", activate))
		fmt.Fprintf(os.Stdout, "Registered parent %q (%s)\n", p.Slug, p.CompanyName)
		return nil
	},
}

// -- parent list --

var parentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered parent profiles",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		profiles, err := st.ListProfiles(ctx)
		if err != nil {
			return eris.Wrap(err, "parent list")
		}
		if len(profiles) == 0 {
			fmt.Fprintln(os.Stderr, "No parent profiles registered.")
			return nil
		}
		active, err := st.GetSetting(ctx, store.SettingActiveParent)
		if err != nil {
			return eris.Wrap(err, "parent list")
		}

		formatParentList(os.Stdout, profiles, active)
		return nil
	},
}

// -- parent use --

var parentUseCmd = &cobra.Command{
	Use:   "use <slug>",
	Short: "Set the active parent profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p, err := st.GetProfile(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "parent use")
		}
		if err := st.SetSetting(ctx, store.SettingActiveParent, p.Slug); err != nil {
			return eris.Wrap(err, "parent use")
		}

		fmt.Fprintf(os.Stdout, "Active parent: %s\n", p.Slug)
		return nil
	},
}

// formatParentList writes a tabular list of profiles to w, marking the
// active one.
func formatParentList(out io.Writer, profiles []model.ParentProfile, active string) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "\tSLUG\tCOMPANY\tTONE\tSENDER")
	_, _ = fmt.Fprintln(w, "\t----\t-------\t----\t------")

	for _, p := range profiles {
		marker := ""
		if p.Slug == active {
			marker = "*"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", marker, p.Slug, p.CompanyName, p.Tone, p.Signature())
	}
	_ = w.Flush()
}

func init() {
	parentRegisterCmd.Flags().String("slug", "", "override the slug derived from the profile")
	parentRegisterCmd.Flags().Bool("activate", false, "make the profile the active parent")

	parentCmd.AddCommand(parentRegisterCmd, parentListCmd, parentUseCmd)
	rootCmd.AddCommand(parentCmd)
}
