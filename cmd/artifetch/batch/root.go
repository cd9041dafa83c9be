package batch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	fetchcmd "artifetch/cmd/artifetch/fetch"
	libfetch "artifetch/pkg/fetch"
	"artifetch/pkg/manifest"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// GetCommand returns the manifest-driven batch fetch command.
func GetCommand() *cobra.Command {
	var jobs int
	var cacheRoot string
	var mirrorConfig string
	var noHistory bool

	cmd := &cobra.Command{
		Use:   "batch [manifest]",
		Short: "Fetch every artifact listed in a TOML manifest",
		Example: `  artifetch batch artifacts.toml
  artifetch batch artifacts.toml --jobs 8`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			path := "artifacts.toml"
			if len(args) == 1 {
				path = args[0]
			}

			m, err := manifest.Load(path)
			if err != nil {
				return err
			}

			client, closeClient, err := fetchcmd.BuildClient(cacheRoot, mirrorConfig, m.Algo, noHistory)
			if err != nil {
				return err
			}
			defer closeClient()

			return runBatch(c.Context(), client, m, jobs)
		},
	}

	cmd.Flags().IntVar(&jobs, "jobs", runtime.NumCPU(), "Number of concurrent fetches")
	fetchcmd.AddCacheFlags(cmd, &cacheRoot, &mirrorConfig, &noHistory)

	return cmd
}

// runBatch fans the manifest out over a bounded worker pool. Each artifact
// has a distinct cache key, so operations are independent; the first
// failure cancels the remaining work and is reported (individual fetches
// are never retried).
func runBatch(ctx context.Context, client *libfetch.Client, m *manifest.Manifest, jobs int) error {
	names := m.Names()
	if jobs < 1 {
		jobs = 1
	}
	if jobs > len(names) {
		jobs = len(names)
	}

	bar := progressbar.NewOptions(
		len(names),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription(fmt.Sprintf("artifacts(%d jobs)", jobs)),
		progressbar.OptionThrottle(200*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(os.Stderr)
		}),
	)

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	tasks := make(chan string)
	errCh := make(chan error, 1)
	reportErr := func(err error) {
		if err == nil {
			return
		}
		select {
		case errCh <- err:
		default:
		}
		cancel()
	}

	var done int64
	var hits int64

	processOne := func(name string) error {
		a := m.Artifacts[name]
		res, err := client.Fetch(workerCtx, libfetch.Request{
			OutputPath:   a.Out,
			URL:          a.URL,
			ExpectedHash: a.Hash,
		})
		if err != nil {
			return fmt.Errorf("artifact %q: %w", name, err)
		}
		if res.CacheHit {
			atomic.AddInt64(&hits, 1)
		}
		atomic.AddInt64(&done, 1)
		return nil
	}

	progressStop := make(chan struct{})
	var progressWG sync.WaitGroup
	progressWG.Add(1)
	go func() {
		defer progressWG.Done()
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		last := 0
		flush := func() {
			cur := int(atomic.LoadInt64(&done))
			if cur > last {
				_ = bar.Add(cur - last)
				last = cur
			}
		}
		for {
			select {
			case <-ticker.C:
				flush()
			case <-progressStop:
				flush()
				return
			case <-workerCtx.Done():
				flush()
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-workerCtx.Done():
					return
				case name, ok := <-tasks:
					if !ok {
						return
					}
					if err := processOne(name); err != nil {
						reportErr(err)
						return
					}
				}
			}
		}()
	}

feed:
	for _, name := range names {
		select {
		case <-workerCtx.Done():
			break feed
		case tasks <- name:
		}
	}
	close(tasks)
	wg.Wait()
	close(progressStop)
	progressWG.Wait()

	select {
	case err := <-errCh:
		return err
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	slog.Info("batch complete", "artifacts", len(names), "cache_hits", atomic.LoadInt64(&hits))
	return nil
}
