package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Start       key.Binding
	Stop        key.Binding
	Toggle      key.Binding
	Clear       key.Binding
	Export      key.Binding
	Goto        key.Binding
	RadiusUp    key.Binding
	RadiusDown  key.Binding
	BlurUp      key.Binding
	BlurDown    key.Binding
	OpacityUp   key.Binding
	OpacityDown key.Binding
	Help        key.Binding
	Quit        key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Start:       key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start")),
		Stop:        key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "stop")),
		Toggle:      key.NewBinding(key.WithKeys("h"), key.WithHelp("h", "heatmap")),
		Clear:       key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear")),
		Export:      key.NewBinding(key.WithKeys("e", "enter"), key.WithHelp("e", "export")),
		Goto:        key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "go to page")),
		RadiusUp:    key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+/-", "radius")),
		RadiusDown:  key.NewBinding(key.WithKeys("-", "_")),
		BlurUp:      key.NewBinding(key.WithKeys("]"), key.WithHelp("[/]", "blur")),
		BlurDown:    key.NewBinding(key.WithKeys("[")),
		OpacityUp:   key.NewBinding(key.WithKeys("O"), key.WithHelp("o/O", "opacity")),
		OpacityDown: key.NewBinding(key.WithKeys("o")),
		Help:        key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Start, k.Stop, k.Toggle, k.Export, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Start, k.Stop, k.Clear, k.Export},
		{k.Toggle, k.RadiusUp, k.BlurUp, k.OpacityUp},
		{k.Goto, k.Help, k.Quit},
	}
}
