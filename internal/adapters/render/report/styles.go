package report

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title    lipgloss.Style
	header   lipgloss.Style
	endpoint lipgloss.Style
	count    lipgloss.Style
	failure  lipgloss.Style
	empty    lipgloss.Style
	section  lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:    lipgloss.NewStyle().Bold(true),
		header:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		endpoint: lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		count:    lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		failure:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		empty:    lipgloss.NewStyle().Faint(true),
		section:  lipgloss.NewStyle().MarginTop(1),
	}
}
