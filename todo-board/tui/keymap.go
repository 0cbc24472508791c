package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	left      key.Binding
	right     key.Binding
	up        key.Binding
	down      key.Binding
	slidePrev key.Binding
	slideNext key.Binding
	moveLeft  key.Binding
	moveRight key.Binding
	check     key.Binding
	add       key.Binding
	delete    key.Binding
	reload    key.Binding
	cancel    key.Binding
	help      key.Binding
	quit      key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		left:      key.NewBinding(key.WithKeys("h", "left"), key.WithHelp("h/←", "column left")),
		right:     key.NewBinding(key.WithKeys("l", "right"), key.WithHelp("l/→", "column right")),
		up:        key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "up")),
		down:      key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "down")),
		slidePrev: key.NewBinding(key.WithKeys("["), key.WithHelp("[", "prev slide")),
		slideNext: key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "next slide")),
		moveLeft:  key.NewBinding(key.WithKeys("H", "shift+left"), key.WithHelp("H", "move task left")),
		moveRight: key.NewBinding(key.WithKeys("L", "shift+right"), key.WithHelp("L", "move task right")),
		check:     key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "check")),
		add:       key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new task")),
		delete:    key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
		reload:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		cancel:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		help:      key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.left, k.right, k.check, k.add, k.delete, k.reload, k.help, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.left, k.right, k.up, k.down},
		{k.slidePrev, k.slideNext, k.moveLeft, k.moveRight},
		{k.check, k.add, k.delete, k.reload},
		{k.cancel, k.help, k.quit},
	}
}
