package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"pyrock/internal/adapter/resolver"
	"pyrock/internal/adapter/ui"
	"pyrock/internal/domain"
	"pyrock/internal/usecase"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <symbol>",
	Short: "List import candidates for a symbol",
	Long: `List the import statements that would be offered for a symbol, in the
order the chooser shows them. Candidates come from the project's own files
and from the import index.

Examples:
  pyrock lookup join
  pyrock lookup os.path.join`,
	Args: cobra.ExactArgs(1),
	RunE: runLookup,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <dotted.name>",
	Short: "Show the longest indexed module prefix of a dotted name",
	Args:  cobra.ExactArgs(1),
	RunE:  runResolve,
}

func init() {
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(resolveCmd)
}

func runLookup(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	d := newDispatcher(ui.NewTerminalNotifier(cmd.ErrOrStderr(), log), ui.FirstChooser{}, ui.WriterClipboard{W: out})

	resp, err := d.Dispatch(cmd.Context(), usecase.Request{Action: domain.ActionLookup, Symbol: args[0]})
	if err != nil {
		return err
	}
	if len(resp.Candidates) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), resp.Status)
		return nil
	}
	for _, c := range resp.Candidates {
		fmt.Fprintln(out, c.DisplayKey)
	}
	return nil
}

func runResolve(cmd *cobra.Command, args []string) error {
	idx, err := newIndexStore().Load()
	if errors.Is(err, domain.ErrNoIndex) {
		return fmt.Errorf("no import index at %s, run pyrock reindex first", settings.IndexPath())
	}
	if err != nil {
		return err
	}

	r := resolver.New(idx)
	prefix, ok := r.Longest(args[0])
	if !ok {
		return fmt.Errorf("no indexed module prefix for %q", args[0])
	}
	module, symbol := resolver.Split(args[0])
	fmt.Fprintf(cmd.OutOrStdout(), "module:  %s\nprefix:  %s\nsymbol:  %s\nindexed: %v\n", module, prefix, symbol, r.Has(args[0]))
	return nil
}
