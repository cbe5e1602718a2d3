package chat

import "github.com/charmbracelet/lipgloss"

// Styles groups the lipgloss styles used by the chat view.
type Styles struct {
	Header    lipgloss.Style
	UserLabel lipgloss.Style
	CharLabel lipgloss.Style
	Thinking  lipgloss.Style
	Failed    lipgloss.Style
	Status    lipgloss.Style
	Limit     lipgloss.Style
	Help      lipgloss.Style
}

// DefaultStyles returns the standard chat palette.
func DefaultStyles() Styles {
	return Styles{
		Header:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		UserLabel: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		CharLabel: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")),
		Thinking:  lipgloss.NewStyle().Faint(true).Italic(true),
		Failed:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Status:    lipgloss.NewStyle().Faint(true),
		Limit:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		Help:      lipgloss.NewStyle().Faint(true),
	}
}
