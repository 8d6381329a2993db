package ui

import (
	"fmt"
	"io"

	"github.com/atotto/clipboard"
)

// SystemClipboard writes to the OS clipboard.
type SystemClipboard struct{}

func (SystemClipboard) WriteText(text string) error {
	if clipboard.Unsupported {
		return fmt.Errorf("no clipboard utility available")
	}
	return clipboard.WriteAll(text)
}

// WriterClipboard prints clipboard text to a writer, for headless use.
type WriterClipboard struct {
	W io.Writer
}

func (c WriterClipboard) WriteText(text string) error {
	_, err := fmt.Fprintln(c.W, text)
	return err
}
