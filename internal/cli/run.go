package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"pyrock/internal/adapter/ui"
	"pyrock/internal/domain"
	"pyrock/internal/port"
	"pyrock/internal/usecase"
)

var (
	runAction         string
	runFile           string
	runSelection      string
	runSymbol         string
	runTestMode       bool
	runDryRun         bool
	runPrintClipboard bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an editor action against a file",
	Long: `Run one host action against a Python file. Edits are written back to the
file unless --dry-run is given, in which case the edited buffer is printed.

Actions: import_symbol, copy_import_symbol, re_index_imports, copy_test_path,
run_test, list_tests, lookup.

The selection is a byte range BEGIN:END, or a single offset for the test
actions.

Examples:
  pyrock run --action import_symbol --file app.py --selection 120:126
  pyrock run --action copy_import_symbol --file app.py --selection 120:126 --test
  pyrock run --action copy_test_path --file tests/test_views.py --selection 340`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFileAction(cmd, domain.Action(runAction))
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Add an import for the selected symbol",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFileAction(cmd, domain.ActionImportSymbol)
	},
}

var copyImportCmd = &cobra.Command{
	Use:   "copy-import",
	Short: "Copy the import statement for the selected symbol",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFileAction(cmd, domain.ActionCopyImportSymbol)
	},
}

func init() {
	runCmd.Flags().StringVarP(&runAction, "action", "a", "", "action to run")
	_ = runCmd.MarkFlagRequired("action")

	for _, c := range []*cobra.Command{runCmd, importCmd, copyImportCmd} {
		c.Flags().StringVarP(&runFile, "file", "f", "", "python file")
		c.Flags().StringVarP(&runSelection, "selection", "s", "", "selected byte range BEGIN:END")
		c.Flags().StringVar(&runSymbol, "symbol", "", "symbol to look up instead of the selection")
		c.Flags().BoolVar(&runTestMode, "test", false, "pick the first candidate without asking")
		c.Flags().BoolVarP(&runDryRun, "dry-run", "n", false, "print the edited buffer instead of writing the file")
		c.Flags().BoolVar(&runPrintClipboard, "print-clipboard", false, "print clipboard text instead of using the system clipboard")
		rootCmd.AddCommand(c)
	}
}

// parseSelection parses "B:E" or a single offset "N".
func parseSelection(s string) (domain.Region, error) {
	if s == "" {
		return domain.Region{}, nil
	}
	beginStr, endStr, hasEnd := strings.Cut(s, ":")
	begin, err := strconv.Atoi(strings.TrimSpace(beginStr))
	if err != nil {
		return domain.Region{}, fmt.Errorf("invalid selection %q: %w", s, err)
	}
	end := begin
	if hasEnd {
		end, err = strconv.Atoi(strings.TrimSpace(endStr))
		if err != nil {
			return domain.Region{}, fmt.Errorf("invalid selection %q: %w", s, err)
		}
	}
	if begin < 0 || end < begin {
		return domain.Region{}, fmt.Errorf("invalid selection %q", s)
	}
	return domain.Region{Begin: begin, End: end}, nil
}

// applyEdits applies non-overlapping edits, last region first.
func applyEdits(buffer string, edits []domain.Edit) string {
	sorted := append([]domain.Edit(nil), edits...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Region.Begin > sorted[j].Region.Begin
	})
	for _, e := range sorted {
		buffer = e.Apply(buffer)
	}
	return buffer
}

func clipboardFor(out io.Writer) port.Clipboard {
	if runPrintClipboard {
		return ui.WriterClipboard{W: out}
	}
	return ui.SystemClipboard{}
}

func runFileAction(cmd *cobra.Command, action domain.Action) error {
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	req := usecase.Request{Action: action, Test: runTestMode, Symbol: runSymbol}
	if runFile != "" {
		data, err := os.ReadFile(runFile)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", runFile, err)
		}
		req.Buffer = string(data)
		if req.FileName, err = filepath.Abs(runFile); err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
	}
	sel, err := parseSelection(runSelection)
	if err != nil {
		return err
	}
	req.Selection = sel

	var chooser port.Chooser = ui.NewChooser(os.Stdin, errOut)
	if runTestMode {
		chooser = ui.FirstChooser{}
	}
	notifier := ui.NewTerminalNotifier(errOut, log)
	d := newDispatcher(notifier, chooser, clipboardFor(out))

	resp, err := d.Dispatch(cmd.Context(), req)
	if err != nil {
		return err
	}
	if resp.Error != "" {
		return errors.New(resp.Error)
	}
	if resp.Status != "" {
		fmt.Fprintln(errOut, resp.Status)
	}
	for _, c := range resp.Candidates {
		log.Debug().Str("candidate", c.DisplayKey).Msg("import candidate")
	}
	for _, t := range resp.Targets {
		fmt.Fprintf(out, "%d\t%s\t%s\n", t.Line, t.Kind, t.Name)
	}
	if resp.TestPath != "" && action == domain.ActionCopyTestPath && !runPrintClipboard {
		fmt.Fprintln(out, resp.TestPath)
	}
	if resp.TestRun != nil && !resp.TestRun.Passed() {
		return fmt.Errorf("test failed with exit code %d", resp.TestRun.ExitCode)
	}

	if len(resp.Edits) == 0 {
		if runDryRun && action == domain.ActionImportSymbol {
			fmt.Fprint(out, req.Buffer)
		}
		return nil
	}
	updated := applyEdits(req.Buffer, resp.Edits)
	if runDryRun {
		fmt.Fprint(out, updated)
		return nil
	}
	return writeFilePreservingMode(runFile, updated)
}

func writeFilePreservingMode(path, content string) error {
	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
