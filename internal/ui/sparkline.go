package ui

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var sparkBlocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// sparkline renders the last width values scaled against [lo, hi], padded
// on the left so the newest sample is always in the rightmost column.
func sparkline(data []float64, width int, lo, hi float64, color lipgloss.Color) string {
	if width <= 0 {
		return ""
	}
	if len(data) > width {
		data = data[len(data)-width:]
	}
	var b strings.Builder
	b.WriteString(strings.Repeat(" ", width-len(data)))
	for _, v := range data {
		n := 0.0
		if hi > lo {
			n = math.Max(0, math.Min(1, (v-lo)/(hi-lo)))
		}
		b.WriteRune(sparkBlocks[int(n*float64(len(sparkBlocks)-1))])
	}
	if color == "" {
		return b.String()
	}
	return lipgloss.NewStyle().Foreground(color).Render(b.String())
}
