package output

import (
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// TableStyle defines the style for table output.
type TableStyle struct {
	// Border is the border style.
	Border lipgloss.Border

	// BorderColor is the color for borders.
	BorderColor lipgloss.Color

	// HeaderStyle is the style for header cells.
	HeaderStyle lipgloss.Style

	// CellStyle is the style for regular cells.
	CellStyle lipgloss.Style
}

// DefaultTableStyle returns the default table style.
func DefaultTableStyle() TableStyle {
	return TableStyle{
		Border:      lipgloss.NormalBorder(),
		BorderColor: ColorDimGray,
		HeaderStyle: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		CellStyle:   lipgloss.NewStyle(),
	}
}

// Table represents a styled table.
type Table struct {
	headers []string
	rows    [][]string
	style   TableStyle
}

// NewTable creates a new table with the given headers.
func NewTable(headers ...string) *Table {
	return &Table{
		headers: headers,
		rows:    make([][]string, 0),
		style:   DefaultTableStyle(),
	}
}

// Row adds a row to the table.
func (t *Table) Row(cells ...string) *Table {
	t.rows = append(t.rows, cells)
	return t
}

// String renders the table as a string.
func (t *Table) String() string {
	tbl := table.New().
		Border(t.style.Border).
		BorderStyle(lipgloss.NewStyle().Foreground(t.style.BorderColor)).
		Headers(t.headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return t.style.HeaderStyle
			}
			return t.style.CellStyle
		})

	for _, row := range t.rows {
		tbl.Row(row...)
	}

	return tbl.String()
}

// ResourceRow is one line of the resource listing.
type ResourceRow struct {
	Name         string
	Version      string
	Size         int64
	Capabilities int
	Requirements int
	Modified     time.Time
	Path         string
}

// RenderResourceTable renders the resource listing of an index.
func RenderResourceTable(rows []ResourceRow) string {
	t := NewTable("NAME", "VERSION", "SIZE", "CAPS", "REQS", "MODIFIED", "PATH")
	for _, r := range rows {
		t.Row(
			r.Name,
			r.Version,
			strconv.FormatInt(r.Size, 10),
			strconv.Itoa(r.Capabilities),
			strconv.Itoa(r.Requirements),
			r.Modified.Format(time.RFC3339),
			r.Path,
		)
	}
	return t.String()
}

// SkippedRow is one line of the skipped-file listing.
type SkippedRow struct {
	Path   string
	Reason string
}

// RenderSkippedTable renders the skipped-file listing of an index.
func RenderSkippedTable(rows []SkippedRow) string {
	t := NewTable("PATH", "REASON")
	for _, r := range rows {
		t.Row(r.Path, r.Reason)
	}
	return t.String()
}
