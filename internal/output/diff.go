package output

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ModifiedItem is a changed resource with its rendered diff.
type ModifiedItem struct {
	Name string
	Diff string
}

// RenderDiff renders added, removed and modified resources of an index diff.
func RenderDiff(added, removed []string, modified []ModifiedItem) string {
	if len(added) == 0 && len(removed) == 0 && len(modified) == 0 {
		return "No changes detected."
	}

	addStyle := lipgloss.NewStyle().Foreground(ColorGreen)
	removeStyle := lipgloss.NewStyle().Foreground(ColorRed)
	modifyStyle := lipgloss.NewStyle().Foreground(ColorYellow)

	var sb strings.Builder

	if len(added) > 0 {
		sb.WriteString(addStyle.Render("Added:"))
		sb.WriteString("\n")
		for _, name := range added {
			sb.WriteString("  + ")
			sb.WriteString(addStyle.Render(name))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	if len(removed) > 0 {
		sb.WriteString(removeStyle.Render("Removed:"))
		sb.WriteString("\n")
		for _, name := range removed {
			sb.WriteString("  - ")
			sb.WriteString(removeStyle.Render(name))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	if len(modified) > 0 {
		sb.WriteString(modifyStyle.Render("Modified:"))
		sb.WriteString("\n")
		for _, mod := range modified {
			sb.WriteString("  ~ ")
			sb.WriteString(modifyStyle.Render(mod.Name))
			sb.WriteString("\n")
			sb.WriteString(IndentDiff(mod.Diff, "    "))
			sb.WriteString("\n")
		}
	}

	sb.WriteString("Summary: ")
	sb.WriteString(diffSummary(len(added), len(removed), len(modified)))
	sb.WriteString("\n")

	return sb.String()
}

// IndentDiff indents every non-empty line of diff.
func IndentDiff(diff, indent string) string {
	if diff == "" {
		return ""
	}

	var sb strings.Builder
	for _, line := range strings.Split(diff, "\n") {
		if line != "" {
			sb.WriteString(indent)
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func diffSummary(added, removed, modified int) string {
	parts := make([]string, 0, 3)
	if added > 0 {
		parts = append(parts, FormatCount(added, "addition"))
	}
	if removed > 0 {
		parts = append(parts, FormatCount(removed, "removal"))
	}
	if modified > 0 {
		parts = append(parts, FormatCount(modified, "modification"))
	}
	return strings.Join(parts, ", ")
}
