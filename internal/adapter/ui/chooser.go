// Package ui implements the user-facing ports for the terminal.
package ui

import (
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3B82F6")).
			Bold(true).
			Render

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	itemStyle = lipgloss.NewStyle().PaddingLeft(2)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#64748B")).
			Italic(true)
)

// Chooser shows candidates in an inline terminal list.
type Chooser struct {
	in  io.Reader
	out io.Writer
}

// NewChooser returns a chooser on the given terminal streams. Nil streams
// default to the process terminal.
func NewChooser(in io.Reader, out io.Writer) *Chooser {
	return &Chooser{in: in, out: out}
}

func (c *Chooser) Choose(title string, items []string) (int, error) {
	if len(items) == 0 {
		return -1, nil
	}
	var opts []tea.ProgramOption
	if c.in != nil {
		opts = append(opts, tea.WithInput(c.in))
	}
	if c.out != nil {
		opts = append(opts, tea.WithOutput(c.out))
	}

	final, err := tea.NewProgram(newChooserModel(title, items), opts...).Run()
	if err != nil {
		return -1, fmt.Errorf("chooser: %w", err)
	}
	return final.(chooserModel).chosen, nil
}

type chooserModel struct {
	title  string
	items  []string
	cursor int
	chosen int
	done   bool
}

func newChooserModel(title string, items []string) chooserModel {
	return chooserModel{title: title, items: items, chosen: -1}
}

func (m chooserModel) Init() tea.Cmd {
	return nil
}

func (m chooserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "ctrl+c", "esc", "q":
		m.done = true
		return m, tea.Quit
	case "up", "k", "shift+tab":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j", "tab":
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}
	case "enter":
		m.chosen = m.cursor
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m chooserModel) View() string {
	if m.done {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle(m.title))
	b.WriteString("\n")
	for i, item := range m.items {
		if i == m.cursor {
			b.WriteString(selectedStyle.Render("> " + item))
		} else {
			b.WriteString(itemStyle.Render(item))
		}
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("enter select, esc cancel"))
	b.WriteString("\n")
	return b.String()
}

// FirstChooser always picks the first item. It is used when no terminal is
// attached.
type FirstChooser struct{}

func (FirstChooser) Choose(_ string, items []string) (int, error) {
	if len(items) == 0 {
		return -1, nil
	}
	return 0, nil
}
