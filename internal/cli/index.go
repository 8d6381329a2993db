package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"pyrock/config"
	"pyrock/internal/adapter/introspect"
	"pyrock/internal/adapter/store"
	"pyrock/internal/adapter/ui"
	"pyrock/internal/logging"
	"pyrock/internal/metrics"
	"pyrock/internal/port"
	"pyrock/internal/usecase"
)

var reindexForce bool

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Build the import index",
	Long: `Index every module the configured interpreter can import, down to
import_scan_depth levels. The walk runs in a separate worker process and is
stopped after indexing_timeout.

The index is skipped when it exists and was built with the current settings,
unless --force is given.

Examples:
  pyrock reindex            # Index if needed
  pyrock reindex --force    # Always rebuild`,
	Args: cobra.NoArgs,
	RunE: runReindex,
}

var workerSettingsPath string

var indexWorkerCmd = &cobra.Command{
	Use:    "index-worker",
	Short:  "Run the index worker (started by reindex)",
	Hidden: true,
	Args:   cobra.NoArgs,
	// The worker is configured by the serialized settings file only.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	SilenceErrors:     true,
	RunE:              runIndexWorker,
}

func init() {
	reindexCmd.Flags().BoolVarP(&reindexForce, "force", "f", false, "rebuild even when the index is up to date")
	indexWorkerCmd.Flags().StringVar(&workerSettingsPath, "settings", "", "serialized settings file")
	_ = indexWorkerCmd.MarkFlagRequired("settings")

	rootCmd.AddCommand(reindexCmd)
	rootCmd.AddCommand(indexWorkerCmd)
}

func runReindex(cmd *cobra.Command, args []string) error {
	if err := settings.EnsureDirs(); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	notifier := ui.NewTerminalNotifier(out, log)

	start := time.Now()
	res, err := newIndexRunner(notifier).Run(cmd.Context(), reindexForce)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	if res.Skipped {
		fmt.Fprintf(out, "Index is up to date (%s). Use --force to rebuild.\n", res.SkipReason)
		return nil
	}
	if !res.Completed {
		return errors.New("indexing failed")
	}

	idx, err := newIndexStore().Load()
	if err != nil {
		return fmt.Errorf("failed to read index: %w", err)
	}

	fmt.Fprintf(out, "\nIndexing complete:\n")
	fmt.Fprintf(out, "  Entries:  %d\n", idx.Len())
	fmt.Fprintf(out, "  Took:     %s\n", formatDuration(time.Since(start)))
	fmt.Fprintf(out, "\nIndex stored at: %s\n", settings.IndexPath())
	return nil
}

// runIndexWorker is the child side of reindex. Stdout carries progress
// lines only; everything else goes to stderr.
func runIndexWorker(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	h, err := config.ReadSerialized(workerSettingsPath)
	if err != nil {
		usecase.WriteFailure(out, err)
		return err
	}
	wlog := logging.NewJSON(h.LogLevel, os.Stderr).With().Str("component", "index-worker").Logger()

	in, err := newIntrospector(h, wlog)
	if err != nil {
		usecase.WriteFailure(out, err)
		return err
	}
	defer in.Close()

	w := usecase.NewWorker(h, in, store.NewJSONIndexStore(h.IndexPath(), wlog), metrics.NewWalk(), out, wlog)
	if err := w.Run(cmd.Context()); err != nil {
		wlog.Error().Err(err).Msg("indexing failed")
		usecase.WriteFailure(out, err)
		return err
	}
	return nil
}

func newIntrospector(h config.Serialized, log zerolog.Logger) (port.Introspector, error) {
	if h.IntrospectionMode == config.ModeStatic {
		if len(h.SearchPaths) == 0 {
			return nil, errors.New("static introspection requires search_paths")
		}
		return introspect.NewStatic(h.SearchPaths, log), nil
	}
	python := h.PythonInterpreterPath
	if python == "" {
		python = config.DefaultSettings().Interpreter()
	}
	in, err := introspect.NewInterpreter(python, h.SearchPaths, log)
	if err != nil {
		return nil, fmt.Errorf("start interpreter: %w", err)
	}
	return in, nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
