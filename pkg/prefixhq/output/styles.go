package output

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/jamesainslie/prefixhq/pkg/prefixhq/types"
)

// Color constants using ANSI 256-color palette.
const (
	// ColorPrimary is used for primary elements like headers (bright blue).
	ColorPrimary = lipgloss.Color("39")

	// ColorSuccess marks installed prefixes (green).
	ColorSuccess = lipgloss.Color("42")

	// ColorWarning marks orphaned prefixes and diagnostics (orange).
	ColorWarning = lipgloss.Color("214")

	// ColorDanger is used for errors (red).
	ColorDanger = lipgloss.Color("196")

	// ColorMarked marks manually overridden prefixes (purple).
	ColorMarked = lipgloss.Color("141")

	// ColorMuted is used for less important or secondary text (gray).
	ColorMuted = lipgloss.Color("245")
)

// Box styles for containing grouped content.
var (
	// HeaderBox is the style for the header section containing scan info.
	HeaderBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorPrimary).
			Padding(0, 1).
			MarginBottom(1)

	// FooterBox is the style for the footer section containing summary info.
	FooterBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorMuted).
			Padding(0, 1).
			MarginTop(1)

	// ErrorBox is the style for the Steam-not-found notice.
	ErrorBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorDanger).
			Padding(0, 1)
)

// Text styles for various content types.
var (
	LabelStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorDanger)

	MutedStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	PathStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	SizeStyle = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true)

	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(ColorMuted)
)

// statusStyles colors each status in the pretty table.
var statusStyles = map[types.Status]lipgloss.Style{
	types.StatusInstalled:      lipgloss.NewStyle().Foreground(ColorSuccess),
	types.StatusOrphaned:       lipgloss.NewStyle().Foreground(ColorWarning).Bold(true),
	types.StatusManuallyMarked: lipgloss.NewStyle().Foreground(ColorMarked),
}

// StatusStyle returns the style for a status.
func StatusStyle(s types.Status) lipgloss.Style {
	if st, ok := statusStyles[s]; ok {
		return st
	}
	return ValueStyle
}
