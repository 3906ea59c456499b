// Package tui renders runner state for the terminal.
package tui

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	warningColor = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")
	cyanColor    = lipgloss.Color("#06B6D4")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(mutedColor)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	warningStyle = lipgloss.NewStyle().
			Foreground(warningColor).
			Bold(true)

	statusQueued    = lipgloss.NewStyle().Foreground(warningColor)
	statusRunning   = lipgloss.NewStyle().Foreground(cyanColor)
	statusCompleted = lipgloss.NewStyle().Foreground(successColor)
	statusTimedOut  = lipgloss.NewStyle().Foreground(errorColor)
	statusDropped   = lipgloss.NewStyle().Foreground(mutedColor)
)
