package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// cleaner is implemented by stores that can drop stale entries.
type cleaner interface {
	Cleanup(ctx context.Context, maxAge time.Duration) (int64, error)
}

func newSessionCmd(a *app) *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect the token store",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			entries, err := store.List(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No stored entries.")
				return nil
			}
			showValues, _ := cmd.Flags().GetBool("values")
			for _, e := range entries {
				line := fmt.Sprintf("%-24s %s", e.Key, e.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
				if showValues {
					line += "  " + e.Value
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
	listCmd.Flags().Bool("values", false, "Also print stored values (tokens included)")

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete entries not updated within --max-age (sqlite store only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			c, ok := store.(cleaner)
			if !ok {
				return fmt.Errorf("store %q does not support cleanup", a.cfg.StoreType)
			}
			maxAge, _ := cmd.Flags().GetDuration("max-age")
			deleted, err := c.Cleanup(cmd.Context(), maxAge)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[+] Deleted %d entries\n", deleted)
			return nil
		},
	}
	cleanupCmd.Flags().Duration("max-age", 30*24*time.Hour, "Maximum age of kept entries")

	sessionCmd.AddCommand(listCmd, cleanupCmd)
	return sessionCmd
}
