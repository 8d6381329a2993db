package ui

import (
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
)

// TerminalNotifier reports status through the logger and renders indexing
// progress as a progress bar.
type TerminalNotifier struct {
	mu           sync.Mutex
	out          io.Writer
	log          zerolog.Logger
	bar          *progressbar.ProgressBar
	ShowProgress bool
}

func NewTerminalNotifier(out io.Writer, log zerolog.Logger) *TerminalNotifier {
	return &TerminalNotifier{out: out, log: log, ShowProgress: true}
}

func (n *TerminalNotifier) Status(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.finishBar()
	fmt.Fprintln(n.out, msg)
}

func (n *TerminalNotifier) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.finishBar()
	n.log.Error().Msg(msg)
}

func (n *TerminalNotifier) Progress(percent int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.ShowProgress {
		return
	}
	if n.bar == nil {
		n.bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(n.out),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription("[cyan]Indexing imports[reset]"),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(n.out)
			}),
		)
	}
	_ = n.bar.Set(percent)
}

func (n *TerminalNotifier) finishBar() {
	if n.bar != nil {
		_ = n.bar.Finish()
		n.bar = nil
	}
}

func (n *TerminalNotifier) Output() io.Writer {
	return n.out
}

// Message is one notification recorded by RecordingNotifier.
type Message struct {
	Kind string `json:"kind"` // "status", "error" or "progress"
	Text string `json:"text"`
}

// RecordingNotifier collects notifications. The serve command returns them
// to the editor in the response.
type RecordingNotifier struct {
	mu       sync.Mutex
	Messages []Message
	Out      io.Writer
}

func (n *RecordingNotifier) add(kind, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Messages = append(n.Messages, Message{Kind: kind, Text: text})
}

func (n *RecordingNotifier) Status(msg string) { n.add("status", msg) }
func (n *RecordingNotifier) Error(msg string)  { n.add("error", msg) }
func (n *RecordingNotifier) Progress(p int)    { n.add("progress", fmt.Sprint(p)) }

func (n *RecordingNotifier) Output() io.Writer {
	if n.Out == nil {
		return io.Discard
	}
	return n.Out
}

// Last returns the most recent message of kind, or "".
func (n *RecordingNotifier) Last(kind string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.Messages) - 1; i >= 0; i-- {
		if n.Messages[i].Kind == kind {
			return n.Messages[i].Text
		}
	}
	return ""
}
