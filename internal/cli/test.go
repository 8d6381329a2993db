package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"pyrock/internal/adapter/ui"
	"pyrock/internal/domain"
	"pyrock/internal/port"
	"pyrock/internal/usecase"
)

var (
	testFile   string
	testOffset int
	testCopy   bool
)

var testPathCmd = &cobra.Command{
	Use:   "test-path",
	Short: "Print the runnable test path at an offset",
	Long: `Print the path of the test class or test function at a byte offset of a
test file, in the format of the configured test framework.

Examples:
  pyrock test-path --file tests/test_views.py --offset 340          # django: tests.test_views.ViewTests.test_get
  pyrock test-path --file tests/test_views.py --offset 340 --copy   # also copy it`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var clip port.Clipboard = ui.WriterClipboard{W: io.Discard}
		if testCopy {
			clip = ui.SystemClipboard{}
		}
		resp, err := dispatchTestAction(cmd, domain.ActionCopyTestPath, clip)
		if err != nil {
			return err
		}
		if resp.TestPath != "" {
			fmt.Fprintln(cmd.OutOrStdout(), resp.TestPath)
		}
		return nil
	},
}

var testsCmd = &cobra.Command{
	Use:   "tests",
	Short: "List the test classes and functions of a test file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := dispatchTestAction(cmd, domain.ActionListTests, ui.WriterClipboard{W: io.Discard})
		if err != nil {
			return err
		}
		for _, t := range resp.Targets {
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\n", t.Line, t.Kind, t.Name)
		}
		return nil
	},
}

var runTestCmd = &cobra.Command{
	Use:   "run-test",
	Short: "Run the test at an offset with the configured test runner",
	Long: `Run the test class or function at a byte offset with test_runner_command
in test_config.working_directory. A still running earlier test run is killed
first.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := dispatchTestAction(cmd, domain.ActionRunTest, ui.WriterClipboard{W: io.Discard})
		if err != nil {
			return err
		}
		if resp.TestRun != nil && !resp.TestRun.Passed() {
			return fmt.Errorf("test failed with exit code %d", resp.TestRun.ExitCode)
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{testPathCmd, testsCmd, runTestCmd} {
		c.Flags().StringVarP(&testFile, "file", "f", "", "test file")
		_ = c.MarkFlagRequired("file")
		if c != testsCmd {
			c.Flags().IntVarP(&testOffset, "offset", "o", 0, "byte offset in the file")
		}
		rootCmd.AddCommand(c)
	}
	testPathCmd.Flags().BoolVarP(&testCopy, "copy", "c", false, "copy the path to the system clipboard")
}

func dispatchTestAction(cmd *cobra.Command, action domain.Action, clip port.Clipboard) (usecase.Response, error) {
	data, err := os.ReadFile(testFile)
	if err != nil {
		return usecase.Response{}, fmt.Errorf("failed to read %s: %w", testFile, err)
	}
	abs, err := filepath.Abs(testFile)
	if err != nil {
		return usecase.Response{}, fmt.Errorf("invalid path: %w", err)
	}

	notifier := ui.NewTerminalNotifier(cmd.OutOrStdout(), log)
	d := newDispatcher(notifier, ui.FirstChooser{}, clip)
	resp, err := d.Dispatch(cmd.Context(), usecase.Request{
		Action:    action,
		Buffer:    string(data),
		FileName:  abs,
		Selection: domain.Region{Begin: testOffset, End: testOffset},
	})
	if err != nil {
		return resp, err
	}
	if resp.Status != "" && resp.TestPath == "" {
		fmt.Fprintln(cmd.ErrOrStderr(), resp.Status)
	}
	return resp, nil
}
