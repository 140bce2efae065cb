package output

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestStatusStyle(t *testing.T) {
	tests := []struct {
		name     string
		status   string
		wantBold bool
		wantFG   lipgloss.TerminalColor
		wantDim  bool
	}{
		{name: "built returns green", status: StatusBuilt, wantFG: ColorGreen},
		{name: "scheduled returns yellow", status: StatusScheduled, wantFG: ColorYellow},
		{name: "in-progress returns yellow", status: StatusInProgress, wantFG: ColorYellow},
		{name: "up-to-date returns faint", status: StatusUpToDate, wantDim: true},
		{name: "failed returns bold red", status: StatusFailed, wantFG: ColorBoldRed, wantBold: true},
		{name: "unknown returns plain", status: "whatever", wantFG: lipgloss.NoColor{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			style := StatusStyle(tt.status)
			assert.Equal(t, tt.wantBold, style.GetBold())
			assert.Equal(t, tt.wantDim, style.GetFaint())
			if !tt.wantDim {
				assert.Equal(t, tt.wantFG, style.GetForeground())
			}
		})
	}
}

func TestFormatBuildLine(t *testing.T) {
	line := FormatBuildLine("/srv/modules", StatusBuilt)
	assert.Contains(t, line, "d:")
	assert.Contains(t, line, "/srv/modules")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(line), StatusBuilt) ||
		strings.Contains(line, StatusBuilt))
}

func TestFormatBuildLine_LongDirKeepsGap(t *testing.T) {
	dir := strings.Repeat("x", 60)
	line := FormatBuildLine(dir, StatusFailed)
	assert.Contains(t, line, dir+"  ")
}

func TestFormatCheckmark(t *testing.T) {
	assert.Contains(t, FormatCheckmark("index built"), "index built")
}

func TestFormatCount(t *testing.T) {
	assert.Equal(t, "1 resource", FormatCount(1, "resource"))
	assert.Equal(t, "0 resources", FormatCount(0, "resource"))
	assert.Equal(t, "3 resources", FormatCount(3, "resource"))
}
