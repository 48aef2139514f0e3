package ui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))

	focusedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	blurredStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	selectedStyle = lipgloss.NewStyle().Bold(true)
	unseenStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	seenStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	timeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	actionStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

	alertStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("9")).
			Padding(0, 2)
)
