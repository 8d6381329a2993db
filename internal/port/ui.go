package port

import "io"

// Chooser asks the user to pick one of items. It returns -1 when nothing was
// picked.
type Chooser interface {
	Choose(title string, items []string) (int, error)
}

type Clipboard interface {
	WriteText(text string) error
}

// Notifier surfaces messages to the user.
type Notifier interface {
	// Status shows a transient status message.
	Status(msg string)

	// Progress reports indexing progress in percent.
	Progress(percent int)

	// Error shows a blocking error message.
	Error(msg string)

	// Output returns the writer for test runner output.
	Output() io.Writer
}
