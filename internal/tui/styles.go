package tui

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	// Colors
	ColorPrimary = lipgloss.Color("#bd93f9") // Dracula Purple
	ColorSuccess = lipgloss.Color("#50fa7b") // Dracula Green
	ColorError   = lipgloss.Color("#ff5555") // Dracula Red
	ColorWarning = lipgloss.Color("#ffb86c") // Dracula Orange
	ColorText    = lipgloss.Color("#f8f8f2") // Dracula Foreground
	ColorSubtext = lipgloss.Color("#6272a4") // Dracula Comment
	ColorBorder  = lipgloss.Color("#44475a") // Dracula Selection

	HeaderStyle = lipgloss.NewStyle().
			Foreground(ColorText).
			Bold(true).
			Padding(DefaultPaddingY, DefaultPaddingX).
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(ColorPrimary).
			BorderBottom(true)

	CardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(DefaultPaddingY, DefaultPaddingX)

	CardTitleStyle = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true)

	CardStatsStyle = lipgloss.NewStyle().
			Foreground(ColorSubtext).
			Italic(true)

	EmptyStyle = lipgloss.NewStyle().
			Foreground(ColorSubtext).
			Padding(DefaultPaddingY, DefaultPaddingX)
)

// stateColors maps DownloadStatus.State values to their badge colour.
var stateColors = map[string]lipgloss.Color{
	"queued":      ColorSubtext,
	"downloading": ColorWarning,
	"completed":   ColorSuccess,
	"failed":      ColorError,
}

// ConfigureOutput picks the colour profile of w, honouring NO_COLOR and
// CLICOLOR_FORCE, and returns it for progress bars.
func ConfigureOutput(w io.Writer) termenv.Profile {
	profile := termenv.NewOutput(w, termenv.WithColorCache(true)).EnvColorProfile()
	lipgloss.SetColorProfile(profile)
	return profile
}
