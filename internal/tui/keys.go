package tui

import "github.com/charmbracelet/bubbles/key"

// DashboardKeyMap holds the bindings of the task list.
type DashboardKeyMap struct {
	Up       key.Binding
	Down     key.Binding
	Add      key.Binding
	Pause    key.Binding
	Resume   key.Binding
	Delete   key.Binding
	Discard  key.Binding
	CopyURL  key.Binding
	Settings key.Binding
	Help     key.Binding
	Quit     key.Binding
}

// InputKeyMap holds the bindings of the add form.
type InputKeyMap struct {
	Next   key.Binding
	Prev   key.Binding
	Submit key.Binding
	Cancel key.Binding
}

// SettingsKeyMap holds the bindings of the settings page.
type SettingsKeyMap struct {
	Up    key.Binding
	Down  key.Binding
	Tab   key.Binding
	Edit  key.Binding
	Reset key.Binding
	Close key.Binding
}

var Keys = DashboardKeyMap{
	Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Add:      key.NewBinding(key.WithKeys("a", "g"), key.WithHelp("a", "add")),
	Pause:    key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "pause")),
	Resume:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "resume")),
	Delete:   key.NewBinding(key.WithKeys("x", "delete"), key.WithHelp("x", "remove")),
	Discard:  key.NewBinding(key.WithKeys("X"), key.WithHelp("X", "remove+discard")),
	CopyURL:  key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "copy url")),
	Settings: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "settings")),
	Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

var InputKeys = InputKeyMap{
	Next:   key.NewBinding(key.WithKeys("tab", "down"), key.WithHelp("tab", "next field")),
	Prev:   key.NewBinding(key.WithKeys("shift+tab", "up"), key.WithHelp("shift+tab", "prev field")),
	Submit: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "start")),
	Cancel: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
}

var SettingsKeys = SettingsKeyMap{
	Up:    key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑", "up")),
	Down:  key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓", "down")),
	Tab:   key.NewBinding(key.WithKeys("tab", "1", "2", "3"), key.WithHelp("tab/1-3", "category")),
	Edit:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "edit")),
	Reset: key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "reset")),
	Close: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "save & close")),
}

func (k DashboardKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Add, k.Pause, k.Resume, k.Delete, k.Help, k.Quit}
}

func (k DashboardKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.Add, k.Pause, k.Resume},
		{k.Delete, k.Discard, k.CopyURL},
		{k.Settings, k.Help, k.Quit},
	}
}

func (k InputKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Next, k.Submit, k.Cancel}
}

func (k InputKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

func (k SettingsKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Tab, k.Edit, k.Reset, k.Close}
}

func (k SettingsKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Up, k.Down}, k.ShortHelp()}
}
