package tui

import (
	"github.com/charmbracelet/lipgloss"

	"prism-todo/domain"
)

var (
	accent      = lipgloss.Color("#8BC34A")
	muted       = lipgloss.Color("#7A8599")
	destructive = lipgloss.Color("#E53935")
	warning     = lipgloss.Color("#FFC107")
	info        = lipgloss.Color("#2196F3")
)

type styles struct {
	Title     lipgloss.Style
	Tab       lipgloss.Style
	ActiveTab lipgloss.Style
	Cursor    lipgloss.Style
	Done      lipgloss.Style
	Muted     lipgloss.Style
	Error     lipgloss.Style
	Prompt    lipgloss.Style
	Footer    lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		Title:     lipgloss.NewStyle().Bold(true).Foreground(accent),
		Tab:       lipgloss.NewStyle().Padding(0, 1).Foreground(muted),
		ActiveTab: lipgloss.NewStyle().Padding(0, 1).Bold(true).Underline(true).Foreground(accent),
		Cursor:    lipgloss.NewStyle().Bold(true).Foreground(accent),
		Done:      lipgloss.NewStyle().Strikethrough(true).Foreground(muted),
		Muted:     lipgloss.NewStyle().Foreground(muted),
		Error:     lipgloss.NewStyle().Foreground(destructive),
		Prompt:    lipgloss.NewStyle().Bold(true).Foreground(warning),
		Footer:    lipgloss.NewStyle().MarginTop(1).Foreground(muted),
	}
}

// PriorityStyle colours a priority label.
func PriorityStyle(p domain.Priority) lipgloss.Style {
	switch p {
	case domain.PriorityHigh:
		return lipgloss.NewStyle().Foreground(destructive)
	case domain.PriorityMedium:
		return lipgloss.NewStyle().Foreground(warning)
	default:
		return lipgloss.NewStyle().Foreground(info)
	}
}
