// Package tui renders daemon state for the terminal.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/lunikdev/pledo/internal/catalog"
	"github.com/lunikdev/pledo/internal/engine/types"
	"github.com/lunikdev/pledo/internal/utils"
)

// ListView renders download listings at a fixed width.
type ListView struct {
	Width   int
	Profile termenv.Profile
}

func NewListView(width int, profile termenv.Profile) *ListView {
	if width <= 0 {
		width = DefaultWidth
	}
	return &ListView{Width: width, Profile: profile}
}

// Downloads renders one card per download with a progress bar.
func (v *ListView) Downloads(title string, statuses []types.DownloadStatus) string {
	header := HeaderStyle.Width(v.Width).Render(fmt.Sprintf("%s (%d)", title, len(statuses)))
	if len(statuses) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, header, EmptyStyle.Render("Nothing here yet."))
	}

	bar := progress.New(
		progress.WithDefaultGradient(),
		progress.WithColorProfile(v.Profile),
		progress.WithWidth(max(v.Width-12, MinProgressWidth)),
	)

	cards := []string{header}
	for _, s := range statuses {
		cards = append(cards, v.card(bar, s))
	}
	return lipgloss.JoinVertical(lipgloss.Left, cards...)
}

func (v *ListView) card(bar progress.Model, s types.DownloadStatus) string {
	state := s.State()
	badge := lipgloss.NewStyle().Foreground(stateColors[state]).Bold(true).Render(strings.ToUpper(state))

	title := lipgloss.JoinHorizontal(lipgloss.Left,
		CardTitleStyle.Render(Truncate(s.Name, NameColumnWidth)),
		"  ",
		badge,
	)
	stats := CardStatsStyle.Render(fmt.Sprintf("%s  key %s  [%s]  %s / %s",
		s.ElementType,
		s.MediaKey,
		ShortID(s.ID),
		utils.ConvertBytesToHumanReadable(s.DownloadedBytes),
		utils.ConvertBytesToHumanReadable(s.TotalBytes),
	))

	lines := []string{title, bar.ViewAs(s.Progress), stats}
	if s.FilePath != "" {
		lines = append(lines, CardStatsStyle.Render(Truncate(s.FilePath, v.Width-6)))
	}
	return CardStyle.Width(v.Width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// Libraries renders the libraries of the catalog as a compact list.
func (v *ListView) Libraries(libs []catalog.Library) string {
	header := HeaderStyle.Width(v.Width).Render(fmt.Sprintf("Libraries (%d)", len(libs)))
	if len(libs) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, header, EmptyStyle.Render("No libraries. Run 'pledo library refresh <server>' first."))
	}
	rows := []string{header}
	for _, l := range libs {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Left,
			CardTitleStyle.Width(12).Render(l.ID),
			lipgloss.NewStyle().Foreground(ColorText).Width(NameColumnWidth).Render(Truncate(l.Name, NameColumnWidth-2)),
			CardStatsStyle.Render(string(l.Kind)),
		))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

// ShortID returns the first characters of a download id.
func ShortID(id string) string {
	if len(id) > ShortIDLength {
		return id[:ShortIDLength]
	}
	return id
}

// Truncate cuts s to at most n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
