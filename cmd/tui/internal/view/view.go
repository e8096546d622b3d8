package view

import (
	tea "github.com/charmbracelet/bubbletea"
)

// View is the interface that all TUI screens implement.
type View interface {
	tea.Model
	Title() string
	ShortHelp() string
}

// Session identifies who is using the console and which group they look at.
type Session struct {
	UserID  string
	GroupID string
}

type BackMsg struct{}

func Back() tea.Msg {
	return BackMsg{}
}
