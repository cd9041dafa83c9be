package fetch

import (
	"fmt"
	"log/slog"

	"artifetch/pkg/cache"
	"artifetch/pkg/db"
	libfetch "artifetch/pkg/fetch"
	"artifetch/pkg/mirror"

	"github.com/spf13/cobra"
)

// GetCommand returns the single-artifact fetch command.
func GetCommand() *cobra.Command {
	var output string
	var hash string
	var algo string
	var cacheRoot string
	var mirrorConfig string
	var noHistory bool

	cmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Fetch one artifact into the cache and publish it",
		Example: `  artifetch fetch MAVEN_CENTRAL:junit/junit/4.13/junit-4.13.jar -o lib/junit.jar
  artifetch fetch MAVEN_CENTRAL:com/google/guava/guava/30.1-jre/guava-30.1-jre.jar \
      -o lib/guava.jar --hash 00d0c3ce2311c9e36e73228da25a6e99b2ab826f`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			client, closeClient, err := BuildClient(cacheRoot, mirrorConfig, algo, noHistory)
			if err != nil {
				return err
			}
			defer closeClient()

			res, err := client.Fetch(c.Context(), libfetch.Request{
				OutputPath:   output,
				URL:          args[0],
				ExpectedHash: hash,
			})
			if err != nil {
				return err
			}
			slog.Info("fetched", "dest", output, "cache_hit", res.CacheHit, "url", res.ResolvedURL)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination path for the artifact (required)")
	cmd.Flags().StringVar(&hash, "hash", "", "Expected content digest (hex); enables verification")
	cmd.Flags().StringVar(&algo, "algo", "", "Digest algorithm: sha1, sha256 or sha512 (default sha1)")
	AddCacheFlags(cmd, &cacheRoot, &mirrorConfig, &noHistory)
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func AddCacheFlags(cmd *cobra.Command, cacheRoot, mirrorConfig *string, noHistory *bool) {
	cmd.Flags().StringVar(cacheRoot, "cache-root", "", "Cache directory (default ~/.cache/artifetch, or ARTIFETCH_CACHE)")
	cmd.Flags().StringVar(mirrorConfig, "mirror-config", "", "Mirror configuration file (default ./artifetch.properties, then user config)")
	cmd.Flags().BoolVar(noHistory, "no-history", false, "Do not record this operation in the fetch history")
}

// BuildClient wires a fetch client from CLI flags and defaults. The
// returned closer releases the history store, if one was opened.
func BuildClient(cacheRoot, mirrorConfig, algo string, noHistory bool) (*libfetch.Client, func(), error) {
	if cacheRoot == "" {
		root, err := cache.DefaultRoot()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to locate cache root: %w", err)
		}
		cacheRoot = root
	}

	var mirrors *mirror.Table
	if mirrorConfig != "" {
		mirrors = mirror.Load(mirrorConfig, "")
	} else {
		mirrors = mirror.Load(mirror.DefaultPaths())
	}

	closeStore := func() {}
	var recorder libfetch.Recorder
	if !noHistory {
		path, err := db.DefaultPath()
		if err == nil {
			store, openErr := db.Open(path)
			if openErr != nil {
				slog.Warn("fetch history unavailable", "path", path, "error", openErr)
			} else {
				recorder = store
				closeStore = func() { _ = store.Close() }
			}
		}
	}

	client, err := libfetch.New(libfetch.Options{
		CacheRoot: cacheRoot,
		Mirrors:   mirrors,
		Algo:      algo,
		Recorder:  recorder,
	})
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return client, closeStore, nil
}
