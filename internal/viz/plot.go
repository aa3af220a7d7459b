// Package viz renders collision-run diagnostics in the terminal.
package viz

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
)

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true).MarginBottom(1)
	graphStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Padding(1, 0)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(16)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

// Series plots one named time series as an ASCII graph.
func Series(name string, values []float64, width, height int) string {
	if len(values) < 2 {
		return headerStyle.Render(name) + "\n(not enough samples)"
	}
	if width <= 0 {
		width = 72
	}
	if height <= 0 {
		height = 12
	}
	graph := asciigraph.Plot(values,
		asciigraph.Width(width),
		asciigraph.Height(height),
		asciigraph.Caption(name),
	)
	return graphStyle.Render(graph)
}

// KeyValue renders an aligned label/value line.
func KeyValue(label string, format string, args ...interface{}) string {
	return labelStyle.Render(label) + valueStyle.Render(fmt.Sprintf(format, args...))
}

// Header renders a section header.
func Header(text string) string {
	return headerStyle.Render(text)
}

// ErrorLine renders a per-lane error notice.
func ErrorLine(lane int, desc string) string {
	return errStyle.Render(fmt.Sprintf("lane %d: %s", lane, desc))
}

// Downsample reduces a series to at most n points for plotting.
func Downsample(values []float64, n int) []float64 {
	if n <= 0 || len(values) <= n {
		return values
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = values[i*len(values)/n]
	}
	return out
}

// Summary joins lines into a bordered panel.
func Summary(lines ...string) string {
	panel := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)
	return panel.Render(strings.Join(lines, "\n"))
}
