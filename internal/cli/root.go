package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"pyrock/config"
	"pyrock/internal/logging"
)

var (
	cfgFile  string
	settings *config.Settings
	rootDir  string
	logLevel string
	log      zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "pyrock",
	Short: "PyRock - Python import indexer and test path helper",
	Long: `PyRock indexes the modules importable by a Python interpreter, proposes
import statements for a selected symbol and turns a cursor position in a
test file into a runnable test path.

Example usage:
  pyrock reindex                               # Build the import index
  pyrock lookup os.path.join                   # Show import candidates
  pyrock run --action import_symbol --file app.py --selection 120:126
  pyrock test-path --file tests/test_views.py --offset 340
  pyrock serve                                 # JSON requests on stdin`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		if cfgFile != "" {
			settings, err = config.Load(cfgFile)
			if err == nil && settings.ProjectRoot == "" {
				settings.ProjectRoot = rootDir
			}
		} else {
			settings, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if logLevel != "" {
			settings.LogLevel = logLevel
		}
		log = logging.New(settings.LogLevel, os.Stderr)
		log.Debug().Str("dir", rootDir).Int("depth", settings.ImportScanDepth).Msg("settings loaded")

		// A bad field is reported by the action that depends on it.
		if err := settings.Validate(); err != nil {
			log.Warn().Err(err).Msg("invalid settings")
		}
		return nil
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./pyrock.yaml or ./pyrock.toml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "project root directory (default is current directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log_level (CRITICAL, ERROR, WARNING, INFO, DEBUG, NOTSET)")
}

func GetSettings() *config.Settings {
	return settings
}

func GetRootDir() string {
	return rootDir
}
