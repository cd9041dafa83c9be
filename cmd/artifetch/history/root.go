package history

import (
	"fmt"

	"artifetch/pkg/db"

	"github.com/spf13/cobra"
)

// GetCommand returns the fetch history listing command.
func GetCommand() *cobra.Command {
	var limit int
	var dbPath string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent fetch operations",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			if dbPath == "" {
				path, err := db.DefaultPath()
				if err != nil {
					return err
				}
				dbPath = path
			}

			store, err := db.Open(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			events, err := store.List(c.Context(), limit)
			if err != nil {
				return err
			}
			for _, ev := range events {
				hit := "miss"
				if ev.CacheHit {
					hit = "hit"
				}
				fmt.Fprintf(c.OutOrStdout(), "%s  %-24s  %-4s  %6dms  %s -> %s\n",
					ev.Time.Format("2006-01-02 15:04:05"), ev.Outcome, hit,
					ev.Duration.Milliseconds(), ev.URL, ev.OutputPath)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of entries to show")
	cmd.Flags().StringVar(&dbPath, "db", "", "History database path (default ~/.local/share/artifetch/history.db)")

	return cmd
}
