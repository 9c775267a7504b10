package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap holds all TUI key bindings.
type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Choose  key.Binding
	Skip    key.Binding
	Refresh key.Binding
	Cancel  key.Binding
	Quit    key.Binding
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Choose: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "choose"),
	),
	Skip: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "skip step"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "cancel"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

func hint(k, desc string) string {
	return keyStyle.Render(k) + keyDescStyle.Render(":"+desc)
}

// keyBarText renders the key hints for the watch view or the picker.
func keyBarText(picking bool) string {
	if picking {
		return hint("↑↓", "select") + "  " +
			hint("enter", "choose") + "  " +
			hint("1-7", "quick") + "  " +
			hint("s", "skip") + "  " +
			hint("esc", "cancel")
	}
	return hint("↑↓", "browse") + "  " +
		hint("r", "refresh") + "  " +
		hint("q", "quit")
}
