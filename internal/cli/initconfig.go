package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"pyrock/config"
)

var (
	initFormat string
	initForce  bool
)

var initConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write a settings file with the default values",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var name string
		switch initFormat {
		case "yaml":
			name = "pyrock.yaml"
		case "toml":
			name = "pyrock.toml"
		default:
			return fmt.Errorf("unsupported format %q, expected yaml or toml", initFormat)
		}
		path := filepath.Join(GetRootDir(), name)
		if _, err := os.Stat(path); err == nil && !initForce {
			return fmt.Errorf("%s already exists, use --force to overwrite", path)
		}

		s := config.DefaultSettings()
		if err := s.Save(path); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

func init() {
	initConfigCmd.Flags().StringVar(&initFormat, "format", "yaml", "file format: yaml or toml")
	initConfigCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing file")
	rootCmd.AddCommand(initConfigCmd)
}
