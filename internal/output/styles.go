package output

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color palette. Never use inline lipgloss.Color literals elsewhere.
var (
	// ColorCyan is used for identifiable nouns: directories, module identities.
	ColorCyan = lipgloss.Color("14")

	// ColorGreen is used for freshly built indexes and added resources.
	ColorGreen = lipgloss.Color("82")

	// ColorYellow is used for scheduled or in-progress builds and modified resources.
	ColorYellow = lipgloss.Color("220")

	// ColorRed is used for removed resources.
	ColorRed = lipgloss.Color("196")

	// ColorBoldRed is used for failed builds (matches ERROR level).
	ColorBoldRed = lipgloss.Color("204")

	// ColorGreenCheck is used for the completion checkmark.
	ColorGreenCheck = lipgloss.Color("10")

	// ColorDimGray is used for borders and other structural chrome.
	ColorDimGray = lipgloss.Color("240")
)

// Semantic styles.
var (
	// StyleNoun styles identifiable nouns.
	StyleNoun = lipgloss.NewStyle().Foreground(ColorCyan)

	// StyleDim styles structural chrome (prefixes, separators).
	StyleDim = lipgloss.NewStyle().Faint(true)

	// StyleSummary styles completion and summary lines.
	StyleSummary = lipgloss.NewStyle().Bold(true)
)

// Build status words as shown to users.
const (
	StatusBuilt      = "built"
	StatusUpToDate   = "up-to-date"
	StatusScheduled  = "scheduled"
	StatusInProgress = "in-progress"
	StatusFailed     = "failed"
)

// StatusStyle returns the style for a build status. Unknown statuses are unstyled.
func StatusStyle(status string) lipgloss.Style {
	switch status {
	case StatusBuilt:
		return lipgloss.NewStyle().Foreground(ColorGreen)
	case StatusScheduled, StatusInProgress:
		return lipgloss.NewStyle().Foreground(ColorYellow)
	case StatusUpToDate:
		return lipgloss.NewStyle().Faint(true)
	case StatusFailed:
		return lipgloss.NewStyle().Bold(true).Foreground(ColorBoldRed)
	default:
		return lipgloss.NewStyle()
	}
}

// minDirColumnWidth is the minimum width of the directory column before the
// status suffix.
const minDirColumnWidth = 48

// FormatBuildLine renders a directory with a right-aligned, color-coded status.
//
// Format: d:<dir>  <status>
func FormatBuildLine(dir, status string) string {
	padding := minDirColumnWidth - len(dir)
	if padding < 2 {
		padding = 2
	}
	return StyleDim.Render("d:") + StyleNoun.Render(dir) + strings.Repeat(" ", padding) +
		StatusStyle(status).Render(status)
}

// FormatCheckmark renders a green checkmark with a message.
func FormatCheckmark(msg string) string {
	check := lipgloss.NewStyle().Foreground(ColorGreenCheck).Render("✔")
	return check + " " + msg
}

// FormatCount renders "N label" with label pluralized by a trailing s.
func FormatCount(n int, label string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, label)
	}
	return fmt.Sprintf("%d %ss", n, label)
}
