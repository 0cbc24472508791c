package tui

import "github.com/charmbracelet/lipgloss"

var (
	subtle    = lipgloss.Color("240")
	highlight = lipgloss.Color("63")
	dropColor = lipgloss.Color("205")
	errColor  = lipgloss.Color("196")

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(highlight)
	userStyle   = lipgloss.NewStyle().Foreground(subtle)

	columnStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(subtle)
	focusedColumnStyle = columnStyle.BorderForeground(highlight)
	dropColumnStyle    = columnStyle.BorderForeground(dropColor)

	columnTitleStyle  = lipgloss.NewStyle().Bold(true)
	ruleStyle         = lipgloss.NewStyle().Foreground(subtle)
	cardStyle         = lipgloss.NewStyle()
	cardMetaStyle     = lipgloss.NewStyle().Foreground(subtle)
	selectedCardStyle = lipgloss.NewStyle().Reverse(true)
	draggedCardStyle  = lipgloss.NewStyle().Faint(true)

	statusStyle = lipgloss.NewStyle().Foreground(subtle)
	toastStyle  = lipgloss.NewStyle().Foreground(errColor).Bold(true)
)
