package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
	"pyrock/internal/adapter/introspect"
	"pyrock/internal/adapter/ui"
	"pyrock/internal/adapter/watcher"
	"pyrock/internal/usecase"
)

var (
	watchQuiet    time.Duration
	watchInterval time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the import index current while packages change",
	Long: `Index once if needed, then watch the interpreter's module search path.
Installing or removing a package triggers a rebuild once the search path has
been quiet for --quiet. Rebuilds are limited to one per --interval.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchQuiet, "quiet", watcher.DefaultQuietPeriod, "quiet period before a change batch is handled")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", time.Minute, "minimum time between rebuilds")
	rootCmd.AddCommand(watchCmd)
}

func searchPaths(ctx context.Context) ([]string, error) {
	if len(settings.SearchPaths) > 0 {
		return settings.SearchPaths, nil
	}
	in, err := introspect.NewInterpreter(settings.Interpreter(), nil, log)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	return in.SearchPaths(ctx)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := settings.EnsureDirs(); err != nil {
		return err
	}
	runner := newIndexRunner(ui.NewTerminalNotifier(cmd.OutOrStdout(), log))
	limiter := rate.NewLimiter(rate.Every(watchInterval), 1)

	reindex := func(force bool) {
		res, err := runner.Run(ctx, force)
		switch {
		case errors.Is(err, usecase.ErrIndexRunning):
			log.Info().Msg("indexing already in progress")
		case err != nil:
			log.Error().Err(err).Msg("indexing failed")
		case !res.Skipped && !res.Completed:
			log.Error().Str("evidence", res.Message()).Msg("indexing failed")
		}
	}

	limiter.Allow()
	reindex(false)

	dirs, err := searchPaths(ctx)
	if err != nil {
		return fmt.Errorf("failed to read search path: %w", err)
	}
	w, err := watcher.NewWatcher(dirs, watchQuiet, log)
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer w.Close()
	go w.Start()

	log.Info().Int("dirs", len(dirs)).Msg("watching for package changes")
	for {
		select {
		case <-ctx.Done():
			return nil
		case batch, ok := <-w.Events():
			if !ok {
				return nil
			}
			for _, ev := range batch {
				log.Debug().Str("path", ev.Path).Msg("search path changed")
			}
			if err := limiter.Wait(ctx); err != nil {
				return nil
			}
			drain(w.Events())
			reindex(true)
		}
	}
}

// drain discards batches that arrived while waiting for the limiter; the
// next rebuild covers them.
func drain(ch <-chan []watcher.DebouncedEvent) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
