package cache

import (
	"fmt"
	"log/slog"

	libcache "artifetch/pkg/cache"

	"github.com/spf13/cobra"
)

// GetCommand returns the cache inspection command group.
func GetCommand() *cobra.Command {
	var cacheRoot string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and clean the artifact cache",
	}
	cmd.PersistentFlags().StringVar(&cacheRoot, "cache-root", "", "Cache directory (default ~/.cache/artifetch, or ARTIFETCH_CACHE)")

	resolveRoot := func() (string, error) {
		if cacheRoot != "" {
			return cacheRoot, nil
		}
		return libcache.DefaultRoot()
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "ls",
		Short: "List cache entries",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			root, err := resolveRoot()
			if err != nil {
				return err
			}
			entries, err := libcache.List(root)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Fprintf(c.OutOrStdout(), "%12d  %s\n", e.Size, e.Name)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rm <entry>",
		Short: "Remove a single cache entry by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			root, err := resolveRoot()
			if err != nil {
				return err
			}
			return libcache.Remove(root, args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Remove every cache entry",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			root, err := resolveRoot()
			if err != nil {
				return err
			}
			if err := libcache.Purge(root); err != nil {
				return err
			}
			slog.Info("cache purged", "root", root)
			return nil
		},
	})

	return cmd
}
