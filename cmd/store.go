package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Manage the campaign store",
}

var storeInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create or migrate the store schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("store"); err != nil {
			return err
		}
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		fmt.Fprintf(os.Stdout, "Store ready (%s)\n", cfg.Store.Driver)
		return nil
	},
}

var storePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete campaigns older than the retention window",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		days, _ := cmd.Flags().GetInt("days")
		if days == 0 {
			days = cfg.Campaign.RetentionDays
		}
		if days <= 0 {
			return eris.New("store purge: retention days must be > 0")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.PurgeExpired(ctx, time.Now().AddDate(0, 0, -days))
		if err != nil {
			return eris.Wrap(err, "store purge")
		}
		fmt.Fprintf(os.Stdout, "Purged %d campaigns older than %d days\n", n, days)
		return nil
	},
}

func init() {
	storePurgeCmd.Flags().Int("days", 0, "retention window in days (default from config)")

	storeCmd.AddCommand(storeInitCmd, storePurgeCmd)
	rootCmd.AddCommand(storeCmd)
}
