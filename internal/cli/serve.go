package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"pyrock/internal/adapter/ui"
	"pyrock/internal/usecase"
)

// maxRequestSize bounds one request line, buffer included.
const maxRequestSize = 64 << 20

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Answer editor requests as JSON lines on stdin/stdout",
	Long: `Serve reads one JSON request per line on stdin and writes one JSON
response per line on stdout. The editor owns popups and the clipboard: a
response lists the candidates, and a follow-up request with "choice" set
applies one of them.

Request:  {"id": 1, "action": "import_symbol", "buffer": "...",
           "selection": {"begin": 0, "end": 5}, "file_name": "/p/app.py"}
Response: {"id": 1, "edits": [...], "status": "Found 1 imports",
           "messages": [{"kind": "status", "text": "..."}]}`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

type serveRequest struct {
	ID json.RawMessage `json:"id,omitempty"`
	usecase.Request
}

type serveResponse struct {
	ID json.RawMessage `json:"id,omitempty"`
	usecase.Response
	Messages []ui.Message `json:"messages,omitempty"`
}

// promptChooser leaves the choice to the editor.
type promptChooser struct{}

func (promptChooser) Choose(string, []string) (int, error) { return -1, nil }

func runServe(cmd *cobra.Command, args []string) error {
	return serve(cmd, cmd.InOrStdin(), cmd.OutOrStdout())
}

func serve(cmd *cobra.Command, in io.Reader, out io.Writer) error {
	notifier := &ui.RecordingNotifier{}
	d := newDispatcher(notifier, promptChooser{}, ui.WriterClipboard{W: io.Discard})
	enc := json.NewEncoder(out)

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), maxRequestSize)
	log.Info().Msg("serving requests on stdin")

	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}

		var req serveRequest
		var resp serveResponse
		if err := json.Unmarshal(line, &req); err != nil {
			resp.Error = fmt.Sprintf("invalid request: %v", err)
		} else {
			resp.ID = req.ID
			notifier.Messages = nil
			r, err := d.Dispatch(cmd.Context(), req.Request)
			resp.Response = r
			if err != nil && resp.Error == "" {
				resp.Error = err.Error()
			}
			resp.Messages = notifier.Messages
		}

		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
		if err := cmd.Context().Err(); err != nil {
			return nil
		}
	}
	return sc.Err()
}
