package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap implements help.KeyMap.
type keyMap struct {
	Up        key.Binding
	Down      key.Binding
	NextView  key.Binding
	PrevView  key.Binding
	Terminate key.Binding
	Help      key.Binding
	Quit      key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.NextView, k.Down, k.Terminate, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.NextView, k.PrevView},
		{k.Up, k.Down, k.Terminate},
		{k.Help, k.Quit},
	}
}

var keys = keyMap{
	Up:        key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/up", "move up")),
	Down:      key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/dn", "move down")),
	NextView:  key.NewBinding(key.WithKeys("tab", "right"), key.WithHelp("tab", "next view")),
	PrevView:  key.NewBinding(key.WithKeys("shift+tab", "left"), key.WithHelp("shift+tab", "prev view")),
	Terminate: key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "end process")),
	Help:      key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}
