// Package replay renders reconstructed span trees for terminals.
package replay

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/vinayprograms/agentrace/internal/trace"
)

// Each span kind has a distinct, consistent color.
var (
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")) // Gray - durations, metadata

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	orchestrationStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")) // White bold

	subagentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("13")) // Magenta

	toolStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")) // Blue

	modelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")) // Dim

	genericStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("7"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")) // Green

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")) // Red

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")) // Yellow

	divider = lipgloss.NewStyle().
		Foreground(lipgloss.Color("8")).
		Render(strings.Repeat("━", 60))
)

func kindStyle(k trace.Kind) lipgloss.Style {
	switch k {
	case trace.KindOrchestration:
		return orchestrationStyle
	case trace.KindSubagent:
		return subagentStyle
	case trace.KindTool:
		return toolStyle
	case trace.KindModel:
		return modelStyle
	default:
		return genericStyle
	}
}
